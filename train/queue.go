package train

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"

	"github.com/hupe1980/dgcnn/dataset"
	"golang.org/x/sync/errgroup"
)

// ErrQueueClosed is returned by Next after the queue stopped.
var ErrQueueClosed = errors.New("train: queue closed")

// QueueConfig configures a prefetch queue.
type QueueConfig struct {
	BatchSize     int
	NumCategories int
	// NumPoints resamples clouds to this size (0 keeps them as read).
	NumPoints int
	// Capacity is the number of prefetched batches.
	Capacity int
	Shuffle  bool
	Seed     int64
}

// Queue prefetches batches in a background goroutine.
type Queue struct {
	batches chan *dataset.Batch
	cancel  context.CancelFunc
	g       *errgroup.Group
	closed  atomic.Bool
}

// NewQueue starts prefetching batches from ds. The producer runs until
// Close is called, ctx is canceled or loading fails.
func NewQueue(ctx context.Context, ds dataset.Dataset, cfg QueueConfig) *Queue {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	q := &Queue{
		batches: make(chan *dataset.Batch, max(cfg.Capacity, 1)),
		cancel:  cancel,
		g:       g,
	}

	g.Go(func() error {
		defer close(q.batches)
		if ds.Len() == 0 {
			return errors.New("train: empty dataset")
		}
		sampler := dataset.NewSampler(ds.Len(), cfg.Shuffle, cfg.Seed)
		rng := rand.New(rand.NewSource(cfg.Seed + 1))
		for {
			samples, err := dataset.Load(ds, sampler.Next(cfg.BatchSize), cfg.NumPoints, rng)
			if err != nil {
				return err
			}
			batch, err := dataset.MakeBatch(samples, cfg.NumCategories)
			if err != nil {
				return err
			}
			select {
			case q.batches <- batch:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})
	return q
}

// Next returns the next batch.
func (q *Queue) Next(ctx context.Context) (*dataset.Batch, error) {
	select {
	case b, ok := <-q.batches:
		if ok {
			return b, nil
		}
		if q.closed.Load() {
			return nil, ErrQueueClosed
		}
		if err := q.g.Wait(); err != nil {
			return nil, err
		}
		return nil, ErrQueueClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the producer, drops prefetched batches and returns the
// producer's error, if any.
func (q *Queue) Close() error {
	q.closed.Store(true)
	q.cancel()
	err := q.g.Wait()
	for range q.batches {
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
