package dgcnn

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/hupe1980/dgcnn/blobstore"
	"github.com/hupe1980/dgcnn/checkpoint"
	"github.com/hupe1980/dgcnn/dataset"
	"github.com/hupe1980/dgcnn/knn"
	"github.com/hupe1980/dgcnn/loss"
	"github.com/hupe1980/dgcnn/metric"
	"github.com/hupe1980/dgcnn/network"
	"github.com/hupe1980/dgcnn/resource"
	"github.com/hupe1980/dgcnn/tensor"
	"github.com/hupe1980/dgcnn/testutil"
	"github.com/hupe1980/dgcnn/train"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallConfig() network.Config {
	return network.Config{
		NumPoints:     16,
		PointDim:      3,
		NumCategories: 4,
		NumParts:      6,
		K:             4,
		DropoutKeep:   0.6,
		WeightDecay:   1e-4,
		Seed:          7,
		Workers:       2,
		Widths: network.Widths{
			TransformEdge:   8,
			TransformConv:   8,
			TransformGlobal: 16,
			TransformFC:     [2]int{16, 8},
			Edge:            8,
			Global:          16,
			Label:           4,
			Head:            [3]int{16, 16, 8},
		},
	}
}

func synthetic(t *testing.T, n int) *dataset.Synthetic {
	t.Helper()
	ds, err := dataset.NewSynthetic(dataset.SyntheticConfig{
		NumSamples: n, NumPoints: 16, PointDim: 3, NumCategories: 4, NumParts: 6, Noise: 0.1, Seed: 3,
	})
	require.NoError(t, err)
	return ds
}

func fourPoints(t *testing.T) *tensor.Matrix {
	t.Helper()
	x, err := tensor.FromRows([][]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {5, 5, 5}})
	require.NoError(t, err)
	return x
}

func TestGraph(t *testing.T) {
	ctx := context.Background()

	t.Run("FourPoints", func(t *testing.T) {
		metrics := &BasicMetricsCollector{}
		tbl, err := Graph(ctx, fourPoints(t), 2, WithMetricsCollector(metrics))
		require.NoError(t, err)
		assert.Equal(t, []int32{0, 1}, tbl.Row(0))
		assert.Equal(t, []int32{3, 1}, tbl.Row(3))

		stats := metrics.GetStats()
		assert.Equal(t, int64(1), stats.GraphCount)
		assert.Equal(t, int64(4), stats.GraphPoints)
		assert.Zero(t, stats.GraphErrors)
	})

	t.Run("ExcludeSelf", func(t *testing.T) {
		tbl, err := Graph(ctx, fourPoints(t), 2, WithExcludeSelf(), WithWorkers(1))
		require.NoError(t, err)
		assert.Equal(t, []int32{1, 2}, tbl.Row(0))
		assert.Equal(t, []int32{1, 2}, tbl.Row(3))
	})

	t.Run("InvalidK", func(t *testing.T) {
		metrics := &BasicMetricsCollector{}
		_, err := Graph(ctx, fourPoints(t), 4, WithMetricsCollector(metrics))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidK)
		assert.ErrorIs(t, err, knn.ErrInvalidK)
		assert.Equal(t, int64(1), metrics.GetStats().GraphErrors)
	})

	t.Run("MemoryBudget", func(t *testing.T) {
		rc := resource.NewController(resource.Config{MemoryLimitBytes: 8})
		_, err := Graph(ctx, fourPoints(t), 2, WithResourceController(rc))
		require.Error(t, err)
	})
}

func TestSegment(t *testing.T) {
	ctx := context.Background()
	metrics := &BasicMetricsCollector{}
	s, err := New(smallConfig(), WithMetricsCollector(metrics))
	require.NoError(t, err)

	rng := testutil.NewRNG(5)
	points := []*tensor.Matrix{rng.PointCloud(16, 3, 1), rng.PointCloud(16, 3, 1)}
	categories := []int{1, 3}

	preds, err := s.Segment(ctx, points, categories)
	require.NoError(t, err)
	require.Len(t, preds, 2)
	for i, p := range preds {
		require.Len(t, p, 16)
		for _, part := range p {
			assert.Contains(t, s.Parts(categories[i]), part)
		}
	}

	again, err := s.Segment(ctx, points, categories)
	require.NoError(t, err)
	assert.Equal(t, preds, again)

	stats := metrics.GetStats()
	assert.Equal(t, int64(2), stats.ForwardCount)
	assert.Equal(t, int64(4), stats.ForwardClouds)
}

func TestSegmentPartTable(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(11)
	points := []*tensor.Matrix{rng.PointCloud(16, 3, 1), rng.PointCloud(16, 3, 1)}
	categories := []int{0, 2}

	t.Run("UnrestrictedByDefault", func(t *testing.T) {
		s, err := New(smallConfig())
		require.NoError(t, err)
		assert.Equal(t, metric.ContiguousParts(6), s.Parts(0))

		logits, err := s.Logits(ctx, points, categories)
		require.NoError(t, err)
		preds, err := s.Segment(ctx, points, categories)
		require.NoError(t, err)
		for i, z := range logits {
			assert.Equal(t, loss.Argmax(z), preds[i])
		}
	})

	t.Run("Explicit", func(t *testing.T) {
		table := metric.PartTable{{0, 1}, {2}, {3, 4}, {5}}
		s, err := New(smallConfig(), WithPartTable(table))
		require.NoError(t, err)
		assert.Equal(t, []int32{3, 4}, s.Parts(2))

		preds, err := s.Segment(ctx, points, categories)
		require.NoError(t, err)
		for i, p := range preds {
			for _, part := range p {
				assert.Contains(t, table[categories[i]], part)
			}
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := New(smallConfig(), WithPartTable(metric.PartTable{{0}, {1}}))
		assert.Error(t, err)
		_, err = New(smallConfig(), WithPartTable(metric.PartTable{{0}, {1}, {2}, {6}}))
		assert.Error(t, err)
	})
}

func TestSegmentErrors(t *testing.T) {
	ctx := context.Background()
	s, err := New(smallConfig())
	require.NoError(t, err)
	rng := testutil.NewRNG(5)

	t.Run("CategoryOutOfRange", func(t *testing.T) {
		_, err := s.Segment(ctx, []*tensor.Matrix{rng.PointCloud(16, 3, 1)}, []int{4})
		assert.ErrorIs(t, err, ErrCategoryOutOfRange)
	})

	t.Run("CategoryCount", func(t *testing.T) {
		_, err := s.Segment(ctx, []*tensor.Matrix{rng.PointCloud(16, 3, 1)}, []int{0, 1})
		var dm *ErrDimensionMismatch
		require.ErrorAs(t, err, &dm)
	})

	t.Run("WrongPointCount", func(t *testing.T) {
		_, err := s.Segment(ctx, []*tensor.Matrix{rng.PointCloud(12, 3, 1)}, []int{0})
		var dm *ErrDimensionMismatch
		require.ErrorAs(t, err, &dm)
		assert.Equal(t, tensor.Shape{16, 3}, dm.Expected)
		assert.Equal(t, tensor.Shape{12, 3}, dm.Actual)
		assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
	})

	t.Run("InvalidConfig", func(t *testing.T) {
		cfg := smallConfig()
		cfg.K = 16
		_, err := New(cfg)
		assert.ErrorIs(t, err, ErrInvalidK)
	})
}

func TestEvaluate(t *testing.T) {
	ctx := context.Background()

	t.Run("AnyBatch", func(t *testing.T) {
		s, err := New(smallConfig())
		require.NoError(t, err)
		ev, err := s.Evaluate(ctx, synthetic(t, 5), 2)
		require.NoError(t, err)
		assert.Equal(t, 5, ev.Clouds)
		assert.Greater(t, ev.Loss, 0.0)
		assert.GreaterOrEqual(t, ev.InstanceMeanIoU, 0.0)
		assert.LessOrEqual(t, ev.InstanceMeanIoU, 1.0)
		assert.Len(t, ev.CategoryMeanIoU, 4)
	})

	t.Run("FixedBatchPads", func(t *testing.T) {
		cfg := smallConfig()
		cfg.BatchSize = 2
		s, err := New(cfg)
		require.NoError(t, err)
		ev, err := s.Evaluate(ctx, synthetic(t, 5), 2)
		require.NoError(t, err)
		assert.Equal(t, 5, ev.Clouds)

		free, err := New(smallConfig())
		require.NoError(t, err)
		want, err := free.Evaluate(ctx, synthetic(t, 5), 2)
		require.NoError(t, err)
		assert.InDelta(t, want.Loss, ev.Loss, 1e-9)
		assert.InDelta(t, want.InstanceMeanIoU, ev.InstanceMeanIoU, 1e-9)
	})

	t.Run("BatchMismatch", func(t *testing.T) {
		cfg := smallConfig()
		cfg.BatchSize = 2
		s, err := New(cfg)
		require.NoError(t, err)
		_, err = s.Evaluate(ctx, synthetic(t, 5), 3)
		var dm *ErrDimensionMismatch
		require.ErrorAs(t, err, &dm)
		_, err = s.Evaluate(ctx, synthetic(t, 5), 0)
		require.Error(t, err)
	})
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	src, err := New(smallConfig())
	require.NoError(t, err)

	cfg := smallConfig()
	cfg.Seed = 99
	dst, err := New(cfg)
	require.NoError(t, err)

	m := checkpoint.NewManager(blobstore.NewMemoryStore())
	_, err = dst.RestoreLatest(ctx, m)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.Save(ctx, &checkpoint.Checkpoint{Step: 3, Tensors: checkpoint.FromRegistry(src.Network().Registry())})
	require.NoError(t, err)
	c, err := dst.RestoreLatest(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, int64(3), c.Step)

	rng := testutil.NewRNG(1)
	points := []*tensor.Matrix{rng.PointCloud(16, 3, 1)}
	want, err := src.Logits(ctx, points, []int{2})
	require.NoError(t, err)
	got, err := dst.Logits(ctx, points, []int{2})
	require.NoError(t, err)
	assert.Equal(t, want[0].Data, got[0].Data)
}

func TestTrainerOptions(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	metrics := &BasicMetricsCollector{}

	cfg := train.DefaultConfig()
	cfg.Network = smallConfig()
	cfg.BatchSize = 2
	cfg.NumSteps = 2
	cfg.Schedule.TotalSteps = 2
	cfg.SaveSummariesInterval = 0

	tr, err := train.New(cfg, synthetic(t, 4), TrainerOptions(WithLogger(logger), WithMetricsCollector(metrics))...)
	require.NoError(t, err)
	_, err = tr.Run(context.Background())
	require.NoError(t, err)

	stats := metrics.GetStats()
	assert.Equal(t, int64(2), stats.StepCount)
	assert.Equal(t, int64(2), stats.LastStep)
	assert.Greater(t, stats.LastLoss, 0.0)

	var steps int
	dec := json.NewDecoder(&buf)
	for dec.More() {
		var rec map[string]any
		require.NoError(t, dec.Decode(&rec))
		if rec["msg"] == "step completed" {
			steps++
		}
	}
	assert.Equal(t, 2, steps)

	s, err := Wrap(tr.Network())
	require.NoError(t, err)
	assert.Same(t, tr.Network(), s.Network())
}

func TestTranslateError(t *testing.T) {
	assert.Nil(t, translateError(nil))

	other := errors.New("other")
	assert.Equal(t, other, translateError(other))

	err := translateError(blobstore.ErrNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	err = translateError(&tensor.ShapeError{Op: "op", Expected: tensor.Shape{2}, Actual: tensor.Shape{3}})
	var dm *ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, "dimension mismatch in op: expected [2], got [3]", dm.Error())
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(slog.NewJSONHandler(&buf, nil)).WithRun("r1").WithStep(7)

	l.LogCheckpoint(context.Background(), "ckpt-7.bin", 7, nil)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "checkpoint completed", rec["msg"])
	assert.Equal(t, "r1", rec["run_id"])
	assert.Equal(t, "ckpt-7.bin", rec["name"])

	buf.Reset()
	l.LogForward(context.Background(), 2, 16, 0, errors.New("boom"))
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "ERROR", rec["level"])
	assert.Equal(t, "boom", rec["error"])

	buf.Reset()
	NoopLogger().LogStep(context.Background(), 1, 0.5, 0.1, nil)
	assert.Zero(t, buf.Len())
}
