package main

import (
	"flag"
	"fmt"
	"path/filepath"

	"github.com/hupe1980/dgcnn/dataset"
	"github.com/hupe1980/dgcnn/network"
)

type networkFlags struct {
	numPoints     int
	numCategories int
	numParts      int
	k             int
	excludeSelf   bool
	dropoutKeep   float64
	weightDecay   float64
	seed          int64
	workers       int
}

func (n *networkFlags) register(fs *flag.FlagSet) {
	def := network.DefaultConfig()
	fs.IntVar(&n.numPoints, "num_points", def.NumPoints, "Points per cloud")
	fs.IntVar(&n.numCategories, "num_categories", def.NumCategories, "Number of object categories")
	fs.IntVar(&n.numParts, "num_parts", def.NumParts, "Number of part classes")
	fs.IntVar(&n.k, "k", def.K, "Neighbors per point")
	fs.BoolVar(&n.excludeSelf, "exclude_self", false, "Remove each point from its own neighborhood")
	fs.Float64Var(&n.dropoutKeep, "dropout_keep", float64(def.DropoutKeep), "Keep probability of the head dropout")
	fs.Float64Var(&n.weightDecay, "weight_decay", float64(def.WeightDecay), "L2 weight decay")
	fs.Int64Var(&n.seed, "seed", def.Seed, "Initialization and sampling seed")
	fs.IntVar(&n.workers, "workers", 0, "Clouds processed concurrently (0 = GOMAXPROCS)")
}

func (n *networkFlags) config() network.Config {
	cfg := network.DefaultConfig()
	cfg.NumPoints = n.numPoints
	cfg.NumCategories = n.numCategories
	cfg.NumParts = n.numParts
	cfg.K = n.k
	cfg.ExcludeSelf = n.excludeSelf
	cfg.DropoutKeep = float32(n.dropoutKeep)
	cfg.WeightDecay = float32(n.weightDecay)
	cfg.Seed = n.seed
	cfg.Workers = n.workers
	return cfg
}

type datasetFlags struct {
	dir              string
	syntheticSamples int
}

func (d *datasetFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&d.dir, "dataset_dir", "", "Directory with <category>/*.txt clouds (empty = synthetic)")
	fs.IntVar(&d.syntheticSamples, "synthetic_samples", 64, "Clouds per synthetic split")
}

// load returns the split of the dataset directory, or a synthetic split
// when no directory is configured. Synthetic splits differ by seed.
func (d *datasetFlags) load(cfg network.Config, split string) (dataset.Dataset, error) {
	if d.dir == "" {
		seed := cfg.Seed
		if split != "train" {
			seed += 1_000_000
		}
		return dataset.NewSynthetic(dataset.SyntheticConfig{
			NumSamples:    d.syntheticSamples,
			NumPoints:     cfg.NumPoints,
			PointDim:      cfg.PointDim,
			NumCategories: cfg.NumCategories,
			NumParts:      cfg.NumParts,
			Noise:         dataset.DefaultSyntheticConfig().Noise,
			Seed:          seed,
		})
	}

	ds, names, err := dataset.ScanDir(filepath.Join(d.dir, split))
	if err != nil {
		return nil, err
	}
	if len(names) > cfg.NumCategories {
		return nil, fmt.Errorf("%s has %d categories, network has %d", d.dir, len(names), cfg.NumCategories)
	}
	return ds, nil
}
