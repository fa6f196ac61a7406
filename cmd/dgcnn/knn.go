package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hupe1980/dgcnn"
	"github.com/hupe1980/dgcnn/dataset"
)

func runKNN(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("knn", flag.ContinueOnError)
	k := fs.Int("k", 5, "Neighbors per point")
	excludeSelf := fs.Bool("exclude_self", false, "Remove each point from its own neighborhood")
	distances := fs.Bool("distances", false, "Print squared distances next to the indices")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: dgcnn knn [-k n] [-exclude_self] [-distances] <file>")
	}

	s, err := dataset.ReadTextFile(fs.Arg(0), 0)
	if err != nil {
		return err
	}
	var opts []dgcnn.Option
	if *excludeSelf {
		opts = append(opts, dgcnn.WithExcludeSelf())
	}
	table, err := dgcnn.Graph(ctx, s.Points, *k, opts...)
	if err != nil {
		return err
	}

	var sb strings.Builder
	for i := range table.N {
		sb.Reset()
		sb.WriteString(strconv.Itoa(i))
		sb.WriteByte(':')
		dist := table.RowDistances(i)
		for j, n := range table.Row(i) {
			sb.WriteByte(' ')
			sb.WriteString(strconv.Itoa(int(n)))
			if *distances {
				sb.WriteByte('(')
				sb.WriteString(strconv.FormatFloat(float64(dist[j]), 'g', -1, 32))
				sb.WriteByte(')')
			}
		}
		if _, err := fmt.Fprintln(stdout, sb.String()); err != nil {
			return err
		}
	}
	return nil
}
