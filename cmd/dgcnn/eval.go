package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"sort"

	"github.com/hupe1980/dgcnn"
	"github.com/hupe1980/dgcnn/checkpoint"
)

func runEval(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("eval", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	split := fs.String("split", "val", "Dataset split below -dataset_dir")
	batchSize := fs.Int("eval_batch_size", 8, "Clouds per forward pass")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger, err := common.logger()
	if err != nil {
		return err
	}
	uri, err := parseStoreURI(common.store)
	if err != nil {
		return err
	}
	rc := common.controller()
	store, err := openStore(ctx, uri, common.taskName, common.ddbTable)
	if err != nil {
		return err
	}
	manager := checkpoint.NewManager(store, checkpoint.WithResourceController(rc), checkpoint.WithLogger(logger.Logger))

	cfg := common.network.config()
	s, err := dgcnn.New(cfg, dgcnn.WithLogger(logger), dgcnn.WithResourceController(rc))
	if err != nil {
		return err
	}
	c, err := s.RestoreLatest(ctx, manager)
	if err != nil {
		return err
	}

	ds, err := common.dataset.load(cfg, *split)
	if err != nil {
		return err
	}
	ev, err := s.Evaluate(ctx, ds, *batchSize)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "checkpoint %s (step %d)\n", checkpoint.Name(c.Step), c.Step)
	fmt.Fprintf(stdout, "clouds %d loss %.6f instance_miou %.4f class_miou %.4f\n",
		ev.Clouds, ev.Loss, ev.InstanceMeanIoU, ev.ClassMeanIoU)
	categories := make([]int, 0, len(ev.CategoryMeanIoU))
	for cat := range ev.CategoryMeanIoU {
		categories = append(categories, cat)
	}
	sort.Ints(categories)
	for _, cat := range categories {
		fmt.Fprintf(stdout, "category %d miou %.4f\n", cat, ev.CategoryMeanIoU[cat])
	}
	return nil
}
