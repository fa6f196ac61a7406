package sqlite

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/hupe1980/dgcnn/summary"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "summaries.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrations(t *testing.T) {
	db := openTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// Re-running is a no-op.
	require.NoError(t, db.MigrateUp())
}

func TestRunScalars(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	run, err := db.StartRun(ctx, "partseg", `{"k":5}`)
	require.NoError(t, err)
	_, err = uuid.Parse(run.ID())
	require.NoError(t, err)

	require.NoError(t, run.Scalar(ctx, 2, summary.TagTrainLoss, 1.25))
	require.NoError(t, run.Scalar(ctx, 1, summary.TagTrainLoss, 2.5))
	require.NoError(t, run.Scalar(ctx, 2, summary.TagTrainLoss, 1.0))
	require.NoError(t, run.Scalar(ctx, 1, summary.TagLearningRate, 0.001))
	require.NoError(t, run.Scalar(ctx, 3, summary.TagTrainLoss, math.NaN()))

	points, err := db.Scalars(ctx, run.ID(), summary.TagTrainLoss)
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, summary.Point{Step: 1, Tag: summary.TagTrainLoss, Value: 2.5}, points[0])
	assert.Equal(t, summary.Point{Step: 2, Tag: summary.TagTrainLoss, Value: 1.0}, points[1])
	assert.True(t, math.IsNaN(points[2].Value))

	runs, err := db.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "partseg", runs[0].Name)
	assert.Equal(t, `{"k":5}`, runs[0].Config)
	assert.True(t, runs[0].FinishedAt.IsZero())

	require.NoError(t, run.Close())
	runs, err = db.Runs(ctx)
	require.NoError(t, err)
	assert.False(t, runs[0].FinishedAt.IsZero())
}

func TestRunsAreIsolated(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	a, err := db.StartRun(ctx, "a", "")
	require.NoError(t, err)
	b, err := db.StartRun(ctx, "b", "")
	require.NoError(t, err)

	w := summary.Multi(a, b)
	require.NoError(t, w.Scalar(ctx, 1, summary.TagValMIoU, 0.75))
	require.NoError(t, a.Scalar(ctx, 2, summary.TagValMIoU, 0.8))

	pa, err := db.Scalars(ctx, a.ID(), summary.TagValMIoU)
	require.NoError(t, err)
	pb, err := db.Scalars(ctx, b.ID(), summary.TagValMIoU)
	require.NoError(t, err)
	assert.Len(t, pa, 2)
	assert.Len(t, pb, 1)
}

func TestReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "summaries.db")

	db, err := Open(path)
	require.NoError(t, err)
	run, err := db.StartRun(ctx, "first", "")
	require.NoError(t, err)
	require.NoError(t, run.Scalar(ctx, 1, summary.TagValLoss, 0.5))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	points, err := db.Scalars(ctx, run.ID(), summary.TagValLoss)
	require.NoError(t, err)
	assert.Equal(t, []summary.Point{{Step: 1, Tag: summary.TagValLoss, Value: 0.5}}, points)
}
