package dgcnn

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/hupe1980/dgcnn/checkpoint"
	"github.com/hupe1980/dgcnn/dataset"
	"github.com/hupe1980/dgcnn/knn"
	"github.com/hupe1980/dgcnn/loss"
	"github.com/hupe1980/dgcnn/metric"
	"github.com/hupe1980/dgcnn/network"
	"github.com/hupe1980/dgcnn/nn"
	"github.com/hupe1980/dgcnn/resource"
	"github.com/hupe1980/dgcnn/tensor"
	"github.com/hupe1980/dgcnn/train"
)

// Segmenter runs eval-mode part segmentation with a DGCNN network.
// It is safe for concurrent use as long as parameters are not restored
// during a call.
type Segmenter struct {
	net   *network.Network
	parts metric.PartTable
	opts  options
}

// New builds a segmenter with freshly initialized parameters.
func New(cfg network.Config, optFns ...Option) (*Segmenter, error) {
	o := applyOptions(optFns)
	net, err := network.New(cfg, network.WithResourceController(o.rc))
	if err != nil {
		return nil, translateError(err)
	}
	return newSegmenter(net, o)
}

// Wrap builds a segmenter around an existing network, e.g. one produced by
// a trainer.
func Wrap(net *network.Network, optFns ...Option) (*Segmenter, error) {
	return newSegmenter(net, applyOptions(optFns))
}

func newSegmenter(net *network.Network, o options) (*Segmenter, error) {
	cfg := net.Config()
	parts := o.partTable
	if parts == nil {
		parts = metric.DefaultPartTable(cfg.NumCategories, cfg.NumParts)
	}
	if err := parts.Validate(cfg.NumCategories, cfg.NumParts); err != nil {
		return nil, err
	}
	return &Segmenter{net: net, parts: parts, opts: o}, nil
}

// Network returns the underlying network.
func (s *Segmenter) Network() *network.Network { return s.net }

// Parts returns the parts that belong to category c. Without a part table
// every part belongs to every category.
func (s *Segmenter) Parts(c int) []int32 { return s.parts.Parts(c, s.net.Config().NumParts) }

// Restore loads every matching tensor of c into the network. Tensors that
// the network does not have are ignored.
func (s *Segmenter) Restore(c *checkpoint.Checkpoint) (int, error) {
	n, err := checkpoint.Apply(s.net.Registry(), c, nil)
	if err != nil {
		return 0, translateError(err)
	}
	return n, nil
}

// RestoreLatest loads the newest checkpoint managed by m.
func (s *Segmenter) RestoreLatest(ctx context.Context, m *checkpoint.Manager) (*checkpoint.Checkpoint, error) {
	c, err := m.Latest(ctx)
	if err != nil {
		s.opts.logger.LogCheckpoint(ctx, "", 0, err)
		return nil, translateError(err)
	}
	if _, err := s.Restore(c); err != nil {
		s.opts.logger.LogCheckpoint(ctx, checkpoint.Name(c.Step), c.Step, err)
		return nil, err
	}
	s.opts.logger.LogCheckpoint(ctx, checkpoint.Name(c.Step), c.Step, nil)
	return c, nil
}

// Logits runs an eval-mode forward pass over points [B][N, D] whose
// categories are given per cloud.
func (s *Segmenter) Logits(ctx context.Context, points []*tensor.Matrix, categories []int) ([]*tensor.Matrix, error) {
	onehot, err := s.oneHot(points, categories)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := s.net.Forward(ctx, points, onehot, nn.Eval)
	elapsed := time.Since(start)
	s.opts.metricsCollector.RecordForward(len(points), elapsed, err)
	s.opts.logger.LogForward(ctx, len(points), s.net.Config().NumPoints, elapsed, err)
	if err != nil {
		return nil, translateError(err)
	}
	return out.Logits, nil
}

// Segment returns the predicted part of every point. With a part table,
// predictions of a cloud are restricted to the parts of its category.
func (s *Segmenter) Segment(ctx context.Context, points []*tensor.Matrix, categories []int) ([][]int32, error) {
	logits, err := s.Logits(ctx, points, categories)
	if err != nil {
		return nil, err
	}
	preds := make([][]int32, len(logits))
	for i, z := range logits {
		preds[i] = metric.RestrictedArgmax(z.Data, z.Cols, s.parts.Restriction(categories[i]))
	}
	return preds, nil
}

func (s *Segmenter) oneHot(points []*tensor.Matrix, categories []int) ([][]float32, error) {
	if len(categories) != len(points) {
		return nil, &ErrDimensionMismatch{
			Op:       "dgcnn.Segment",
			Expected: tensor.Shape{len(points)},
			Actual:   tensor.Shape{len(categories)},
		}
	}
	nc := s.net.Config().NumCategories
	out := make([][]float32, len(categories))
	for i, c := range categories {
		if c < 0 || c >= nc {
			return nil, fmt.Errorf("%w: cloud %d has category %d, want [0, %d)", ErrCategoryOutOfRange, i, c, nc)
		}
		out[i] = make([]float32, nc)
		out[i][c] = 1
	}
	return out, nil
}

// Evaluation summarizes an eval-mode pass over a dataset.
type Evaluation struct {
	// Loss is the mean per-instance cross-entropy.
	Loss float64
	// InstanceMeanIoU averages part IoU over every cloud.
	InstanceMeanIoU float64
	// ClassMeanIoU averages the per-category means.
	ClassMeanIoU float64
	// CategoryMeanIoU maps category to its mean part IoU.
	CategoryMeanIoU map[int]float64
	// Clouds is the number of scored clouds.
	Clouds int
}

// Evaluate scores every sample of ds in batches of batchSize. A network
// configured with a fixed batch size pads the final batch by repeating its
// last sample; padded clouds are not scored.
func (s *Segmenter) Evaluate(ctx context.Context, ds dataset.Dataset, batchSize int) (*Evaluation, error) {
	cfg := s.net.Config()
	if batchSize <= 0 {
		return nil, fmt.Errorf("dgcnn: batch size %d must be positive", batchSize)
	}
	if cfg.BatchSize > 0 && batchSize != cfg.BatchSize {
		return nil, &ErrDimensionMismatch{
			Op:       "dgcnn.Evaluate",
			Expected: tensor.Shape{cfg.BatchSize},
			Actual:   tensor.Shape{batchSize},
		}
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	acc := metric.NewAccumulator()
	var lossSum float64
	for lo := 0; lo < ds.Len(); lo += batchSize {
		hi := min(lo+batchSize, ds.Len())
		idx := make([]int, 0, batchSize)
		for i := lo; i < hi; i++ {
			idx = append(idx, i)
		}
		scored := len(idx)
		for cfg.BatchSize > 0 && len(idx) < batchSize {
			idx = append(idx, hi-1)
		}

		samples, err := dataset.Load(ds, idx, cfg.NumPoints, rng)
		if err != nil {
			return nil, err
		}
		batch, err := dataset.MakeBatch(samples, cfg.NumCategories)
		if err != nil {
			return nil, err
		}
		logits, err := s.Logits(ctx, batch.Points, batch.Categories)
		if err != nil {
			return nil, err
		}

		logits, batch = logits[:scored], batch.Slice(0, scored)
		lres, err := loss.Evaluate(logits, batch.Labels, loss.WithoutGradient())
		if err != nil {
			return nil, err
		}
		for i, z := range logits {
			c := batch.Categories[i]
			pred := metric.RestrictedArgmax(z.Data, z.Cols, s.parts.Restriction(c))
			iou, err := metric.PartIoU(pred, batch.Labels[i], s.Parts(c))
			if err != nil {
				return nil, err
			}
			acc.Add(batch.Categories[i], iou)
			lossSum += lres.PerInstance[i]
		}
	}

	ev := &Evaluation{
		InstanceMeanIoU: acc.InstanceMean(),
		ClassMeanIoU:    acc.ClassMean(),
		CategoryMeanIoU: acc.CategoryMeans(),
		Clouds:          acc.Count(),
	}
	if ev.Clouds > 0 {
		ev.Loss = lossSum / float64(ev.Clouds)
	}
	return ev, nil
}

// Graph returns the k nearest neighbors of every point of x.
func (s *Segmenter) Graph(ctx context.Context, x *tensor.Matrix, k int) (*knn.Table, error) {
	return graph(ctx, x, k, s.opts)
}

// Graph returns the k nearest neighbors of every point of x without a
// network.
func Graph(ctx context.Context, x *tensor.Matrix, k int, optFns ...Option) (*knn.Table, error) {
	return graph(ctx, x, k, applyOptions(optFns))
}

func graph(ctx context.Context, x *tensor.Matrix, k int, o options) (*knn.Table, error) {
	var knnOpts []knn.Option
	if o.excludeSelf {
		knnOpts = append(knnOpts, knn.WithExcludeSelf())
	}
	if o.workers > 0 {
		knnOpts = append(knnOpts, knn.WithWorkers(o.workers))
	}

	start := time.Now()
	var t *knn.Table
	err := o.rc.WithMemory(ctx, resource.DistanceMatrixBytes(x.Rows), func() error {
		var err error
		t, err = knn.Graph(x, k, knnOpts...)
		return err
	})
	elapsed := time.Since(start)
	o.metricsCollector.RecordGraph(x.Rows, k, elapsed, err)
	if err != nil {
		o.logger.WithK(k).ErrorContext(ctx, "graph failed", "points", x.Rows, "error", err)
		return nil, translateError(err)
	}
	o.logger.WithK(k).DebugContext(ctx, "graph completed", "points", x.Rows, "duration", elapsed)
	return t, nil
}

// TrainerOptions returns trainer options that report steps to the
// configured logger and metrics collector.
func TrainerOptions(optFns ...Option) []train.Option {
	o := applyOptions(optFns)
	return []train.Option{
		train.WithLogger(o.logger.Logger),
		train.WithResourceController(o.rc),
		train.WithStepHook(func(r train.StepResult) {
			o.metricsCollector.RecordStep(r.Step, r.Loss, r.Duration, nil)
			o.logger.LogStep(context.Background(), r.Step, r.Loss, r.LearningRate, nil)
		}),
	}
}
