package main

import (
	"bytes"
	"context"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hupe1980/dgcnn/blobstore"
	"github.com/hupe1980/dgcnn/checkpoint"
	"github.com/hupe1980/dgcnn/summary"
	"github.com/hupe1980/dgcnn/summary/sqlite"
	"github.com/hupe1980/dgcnn/train"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStoreURI(t *testing.T) {
	tests := []struct {
		raw  string
		want storeURI
		dir  string
	}{
		{"mem://", storeURI{Scheme: "mem"}, "mem://a"},
		{"file://./runs", storeURI{Scheme: "file", Path: "./runs"}, "file://runs/a"},
		{"file:///tmp/runs", storeURI{Scheme: "file", Path: "/tmp/runs"}, "file:///tmp/runs/a"},
		{"s3://bucket/exp/1/", storeURI{Scheme: "s3", Host: "bucket", Path: "exp/1"}, "s3://bucket/exp/1/a"},
		{"s3://bucket", storeURI{Scheme: "s3", Host: "bucket"}, "s3://bucket/a"},
		{"minio://localhost:9000/ckpts/exp?secure=true", storeURI{Scheme: "minio", Host: "localhost:9000", Bucket: "ckpts", Path: "exp", Secure: true}, "minio://localhost:9000/ckpts/exp/a"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseStoreURI(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.dir, got.String("a"))
		})
	}

	for _, raw := range []string{"gs://bucket", "s3://", "minio://host", "file://"} {
		_, err := parseStoreURI(raw)
		assert.Error(t, err, raw)
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	t.Run("File", func(t *testing.T) {
		root := t.TempDir()
		s, err := openStore(ctx, storeURI{Scheme: "file", Path: root}, "task", "")
		require.NoError(t, err)
		require.NoError(t, s.Put(ctx, "LATEST", []byte("x")))
		_, err = os.Stat(filepath.Join(root, "task", "LATEST"))
		assert.NoError(t, err)
	})

	t.Run("MemoryShared", func(t *testing.T) {
		a, err := openStore(ctx, storeURI{Scheme: "mem"}, "shared-a", "")
		require.NoError(t, err)
		require.NoError(t, a.Put(ctx, "blob", []byte("1")))
		again, err := openStore(ctx, storeURI{Scheme: "mem"}, "shared-a", "")
		require.NoError(t, err)
		ok, err := blobstore.Exists(ctx, again, "blob")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("DDBRequiresS3", func(t *testing.T) {
		_, err := openStore(ctx, storeURI{Scheme: "mem"}, "x", "table")
		assert.Error(t, err)
	})
}

func TestTrainFlags(t *testing.T) {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	f := newTrainFlags(fs)
	require.NoError(t, fs.Parse([]string{
		"-num_clones", "2",
		"-train_batch_size", "4",
		"-learning_policy", "step",
		"-base_learning_rate", "0.01",
		"-learning_rate_decay_step", "100",
		"-training_number_of_steps", "1000",
		"-slow_start_step", "10",
		"-slow_start_learning_rate", "0.001",
		"-if_val",
		"-val_interval_steps", "50",
		"-save_interval_secs", "60",
		"-save_summaries_secs", "5",
		"-num_points", "128",
		"-k", "10",
	}))

	cfg, err := f.config()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.NumClones)
	assert.Equal(t, 2, cfg.CloneBatchSize())
	assert.Equal(t, train.PolicyStep, cfg.Schedule.Policy)
	assert.Equal(t, int64(1000), cfg.Schedule.TotalSteps)
	assert.Equal(t, int64(50), cfg.ValInterval)
	assert.Equal(t, time.Minute, cfg.SaveInterval)
	assert.Equal(t, 5*time.Second, cfg.SaveSummariesInterval)
	assert.Equal(t, 128, cfg.Network.NumPoints)
	assert.Equal(t, 10, cfg.Network.K)
	assert.InDelta(t, 0.001, cfg.Schedule.LearningRate(0), 1e-12)

	fs = flag.NewFlagSet("train", flag.ContinueOnError)
	f = newTrainFlags(fs)
	require.NoError(t, fs.Parse([]string{"-num_clones", "3", "-train_batch_size", "4"}))
	_, err = f.config()
	assert.ErrorIs(t, err, train.ErrInvalidConfig)
}

func tinyArgs(root string) []string {
	return []string{
		"-store", "file://" + root,
		"-task_name", "partseg",
		"-num_points", "16",
		"-k", "4",
		"-synthetic_samples", "4",
		"-train_batch_size", "2",
		"-training_number_of_steps", "2",
		"-save_summaries_secs", "0",
		"-log_level", "error",
	}
}

func TestTrainAndEval(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	db := filepath.Join(root, "summaries.db")

	var out bytes.Buffer
	require.NoError(t, runTrain(ctx, append(tinyArgs(root), "-summary_db", db, "-compression", "lz4"), &out))
	assert.Contains(t, out.String(), "2 steps from 0")
	assert.Contains(t, out.String(), "ckpt-2.bin")

	store := blobstore.NewLocalStore(filepath.Join(root, "partseg"))
	steps, err := checkpoint.NewManager(store).Steps(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, steps)

	sdb, err := sqlite.Open(db)
	require.NoError(t, err)
	runs, err := sdb.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	points, err := sdb.Scalars(ctx, runs[0].ID, summary.TagTrainLoss)
	require.NoError(t, err)
	assert.Len(t, points, 2)
	require.NoError(t, sdb.Close())

	out.Reset()
	args := append(tinyArgs(root), "-if_restore", "-training_number_of_steps", "3")
	require.NoError(t, runTrain(ctx, args, &out))
	assert.Contains(t, out.String(), "1 steps from 2 (restored)")

	out.Reset()
	require.NoError(t, runEval(ctx, []string{
		"-store", "file://" + root, "-task_name", "partseg",
		"-num_points", "16", "-k", "4", "-synthetic_samples", "3", "-eval_batch_size", "2",
		"-log_level", "error",
	}, &out))
	assert.Contains(t, out.String(), "checkpoint ckpt-3.bin (step 3)")
	assert.Contains(t, out.String(), "clouds 3")
}

func TestTrainInitialCheckpoint(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	require.NoError(t, runTrain(ctx, tinyArgs(root), &bytes.Buffer{}))

	var out bytes.Buffer
	args := append(tinyArgs(root), "-task_name", "finetune", "-tf_initial_checkpoint", "partseg/ckpt-2.bin", "-initialize_last_layer=false")
	require.NoError(t, runTrain(ctx, args, &out))
	assert.Contains(t, out.String(), "2 steps from 0 (initial)")
}

func TestKNN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cloud.txt")
	require.NoError(t, os.WriteFile(path, []byte("0 0 0 0\n1 0 0 0\n0 1 0 1\n5 5 5 1\n"), 0o644))

	var out bytes.Buffer
	require.NoError(t, runKNN(context.Background(), []string{"-k", "2", path}, &out))
	assert.Equal(t, "0: 0 1\n1: 1 0\n2: 2 0\n3: 3 1\n", out.String())

	out.Reset()
	require.NoError(t, runKNN(context.Background(), []string{"-k", "2", "-exclude_self", "-distances", path}, &out))
	assert.Contains(t, out.String(), "0: 1(1) 2(1)\n")

	assert.Error(t, runKNN(context.Background(), []string{"-k", "4", path}, &out))
	assert.Error(t, runKNN(context.Background(), []string{}, &out))
}
