package knn

import (
	"context"
	"runtime"

	"github.com/hupe1980/dgcnn/distance"
	"github.com/hupe1980/dgcnn/internal/queue"
	"github.com/hupe1980/dgcnn/tensor"
	"golang.org/x/sync/errgroup"
)

type options struct {
	excludeSelf bool
	workers     int
}

// Option configures neighbor selection.
type Option func(*options)

// WithExcludeSelf removes each point from its own candidate set.
func WithExcludeSelf() Option {
	return func(o *options) {
		o.excludeSelf = true
	}
}

// WithWorkers bounds the parallelism of the batch functions.
// Values <= 0 mean GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

func applyOptions(optFns []Option) options {
	var o options
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.workers <= 0 {
		o.workers = runtime.GOMAXPROCS(0)
	}
	return o
}

// Select returns the k nearest neighbors of every row of the square distance matrix dist.
func Select(dist *tensor.Matrix, k int, optFns ...Option) (*Table, error) {
	if err := tensor.Check("knn.Select", tensor.Shape{dist.Rows, dist.Rows}, dist.Shape()); err != nil {
		return nil, err
	}
	n := dist.Rows
	if err := Validate(k, n); err != nil {
		return nil, err
	}
	o := applyOptions(optFns)

	t := NewTable(n, k)
	q := queue.NewTopK(k)
	buf := make([]queue.Item, k)
	for i := range n {
		row := dist.Row(i)
		for j, d := range row {
			if o.excludeSelf && j == i {
				continue
			}
			q.Push(queue.Item{Index: int32(j), Distance: d})
		}
		items := q.Drain(buf)
		idx := t.Row(i)
		ds := t.RowDistances(i)
		for j, it := range items {
			idx[j] = it.Index
			ds[j] = it.Distance
		}
	}
	return t, nil
}

// Graph builds the neighbor table of the rows of x: Pairwise followed by Select.
// k is validated before the O(N²) distance computation.
func Graph(x *tensor.Matrix, k int, optFns ...Option) (*Table, error) {
	if err := Validate(k, x.Rows); err != nil {
		return nil, err
	}
	return Select(distance.Pairwise(x), k, optFns...)
}

// GraphBatch runs Graph over independent point clouds concurrently.
func GraphBatch(ctx context.Context, xs []*tensor.Matrix, k int, optFns ...Option) ([]*Table, error) {
	o := applyOptions(optFns)
	for _, x := range xs {
		if err := Validate(k, x.Rows); err != nil {
			return nil, err
		}
	}

	out := make([]*Table, len(xs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for b, x := range xs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			t, err := Graph(x, k, optFns...)
			if err != nil {
				return err
			}
			out[b] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
