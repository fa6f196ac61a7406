package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/hupe1980/dgcnn"
	"github.com/hupe1980/dgcnn/checkpoint"
	"github.com/hupe1980/dgcnn/summary"
	"github.com/hupe1980/dgcnn/summary/sqlite"
	"github.com/hupe1980/dgcnn/train"
)

type trainFlags struct {
	common commonFlags

	numClones                   int
	batchSize                   int
	numSteps                    int64
	learningPolicy              string
	baseLearningRate            float64
	learningRateDecayFactor     float64
	learningRateDecayStep       int64
	learningPower               float64
	slowStartStep               int64
	slowStartLearningRate       float64
	lastLayerGradientMultiplier float64
	batchNormDecay              float64
	ignoreLabel                 int

	ifRestore           bool
	restoreName         string
	initialCheckpoint   string
	initializeLastLayer bool
	maxToKeep           int
	compression         string

	logSteps          int64
	ifVal             bool
	valIntervalSteps  int64
	saveIntervalSecs  int
	saveSummariesSecs int
	summaryDB         string
	shuffle           bool
}

func newTrainFlags(fs *flag.FlagSet) *trainFlags {
	f := &trainFlags{}
	f.common.register(fs)

	def := train.DefaultConfig()
	fs.IntVar(&f.numClones, "num_clones", def.NumClones, "Number of clones to deploy")
	fs.IntVar(&f.batchSize, "train_batch_size", def.BatchSize, "The number of images in each batch during training")
	fs.Int64Var(&f.numSteps, "training_number_of_steps", def.NumSteps, "The number of steps used for training")

	fs.StringVar(&f.learningPolicy, "learning_policy", def.Schedule.Policy, "Learning rate policy for training (poly, step)")
	fs.Float64Var(&f.baseLearningRate, "base_learning_rate", def.Schedule.BaseLearningRate, "The base learning rate for model training")
	fs.Float64Var(&f.learningRateDecayFactor, "learning_rate_decay_factor", def.Schedule.DecayFactor, "The rate to decay the base learning rate")
	fs.Int64Var(&f.learningRateDecayStep, "learning_rate_decay_step", def.Schedule.DecayStep, "Decay the base learning rate at a fixed step")
	fs.Float64Var(&f.learningPower, "learning_power", def.Schedule.Power, "The power value used in the poly learning policy")
	fs.Int64Var(&f.slowStartStep, "slow_start_step", def.Schedule.SlowStartStep, "Training model with small learning rate for few steps")
	fs.Float64Var(&f.slowStartLearningRate, "slow_start_learning_rate", def.Schedule.SlowStartLearningRate, "Learning rate employed during slow start")
	fs.Float64Var(&f.lastLayerGradientMultiplier, "last_layer_gradient_multiplier", def.LastLayerGradientMultiplier, "The gradient multiplier for last layers")
	fs.Float64Var(&f.batchNormDecay, "batch_norm_decay", float64(def.BatchNormDecay), "Decay of the batch-norm running statistics")
	fs.IntVar(&f.ignoreLabel, "ignore_label", int(def.IgnoreLabel), "Part label excluded from the loss (-1 = none)")

	fs.BoolVar(&f.ifRestore, "if_restore", false, "Whether to restore the latest checkpoint")
	fs.StringVar(&f.restoreName, "restore_name", "", "Run directory to restore from (default: -task_name)")
	fs.StringVar(&f.initialCheckpoint, "tf_initial_checkpoint", "", "The initial checkpoint <dir>/ckpt-<step>.bin below the store root")
	fs.BoolVar(&f.initializeLastLayer, "initialize_last_layer", true, "Initialize the last layer from the initial checkpoint")
	fs.IntVar(&f.maxToKeep, "max_to_keep", 5, "Checkpoints kept per run (0 = all)")
	fs.StringVar(&f.compression, "compression", "zstd", "Checkpoint compression (none, lz4, zstd)")

	fs.Int64Var(&f.logSteps, "log_steps", def.LogSteps, "Display logging information at every log_steps")
	fs.BoolVar(&f.ifVal, "if_val", false, "Whether to validate during training")
	fs.Int64Var(&f.valIntervalSteps, "val_interval_steps", def.ValInterval, "Validate every val_interval_steps")
	fs.IntVar(&f.saveIntervalSecs, "save_interval_secs", int(def.SaveInterval/time.Second), "How often, in seconds, we save the model to disk")
	fs.IntVar(&f.saveSummariesSecs, "save_summaries_secs", int(def.SaveSummariesInterval/time.Second), "How often, in seconds, we compute the summaries")
	fs.StringVar(&f.summaryDB, "summary_db", "", "SQLite database for scalar summaries")
	fs.BoolVar(&f.shuffle, "shuffle", true, "Reshuffle the training set every epoch")
	return f
}

func (f *trainFlags) config() (train.Config, error) {
	cfg := train.DefaultConfig()
	cfg.Network = f.common.network.config()
	cfg.NumClones = f.numClones
	cfg.BatchSize = f.batchSize
	cfg.NumSteps = f.numSteps
	cfg.Schedule = train.Schedule{
		Policy:                f.learningPolicy,
		BaseLearningRate:      f.baseLearningRate,
		DecayFactor:           f.learningRateDecayFactor,
		DecayStep:             f.learningRateDecayStep,
		Power:                 f.learningPower,
		TotalSteps:            f.numSteps,
		SlowStartStep:         f.slowStartStep,
		SlowStartLearningRate: f.slowStartLearningRate,
	}
	cfg.LastLayerGradientMultiplier = f.lastLayerGradientMultiplier
	cfg.BatchNormDecay = float32(f.batchNormDecay)
	cfg.IgnoreLabel = int32(f.ignoreLabel)
	cfg.LogSteps = f.logSteps
	cfg.ValInterval = 0
	if f.ifVal {
		cfg.ValInterval = f.valIntervalSteps
	}
	cfg.SaveInterval = time.Duration(f.saveIntervalSecs) * time.Second
	cfg.SaveSummariesInterval = time.Duration(f.saveSummariesSecs) * time.Second
	cfg.Shuffle = f.shuffle
	cfg.Seed = f.common.network.seed
	return cfg, cfg.Validate()
}

func runTrain(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	f := newTrainFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := f.config()
	if err != nil {
		return err
	}
	logger, err := f.common.logger()
	if err != nil {
		return err
	}
	comp, err := checkpoint.ParseCompression(f.compression)
	if err != nil {
		return err
	}
	uri, err := parseStoreURI(f.common.store)
	if err != nil {
		return err
	}
	rc := f.common.controller()

	managerOpts := []checkpoint.ManagerOption{
		checkpoint.WithCompression(comp),
		checkpoint.WithMaxToKeep(f.maxToKeep),
		checkpoint.WithResourceController(rc),
		checkpoint.WithLogger(logger.Logger),
	}
	runStore, err := openStore(ctx, uri, f.common.taskName, f.common.ddbTable)
	if err != nil {
		return err
	}
	manager := checkpoint.NewManager(runStore, managerOpts...)

	policy := checkpoint.Policy{
		Restore:             f.ifRestore,
		InitializeLastLayer: f.initializeLastLayer,
	}
	if f.ifRestore && f.restoreName != "" && f.restoreName != f.common.taskName {
		restoreStore, err := openStore(ctx, uri, f.restoreName, f.common.ddbTable)
		if err != nil {
			return err
		}
		policy.From = checkpoint.NewManager(restoreStore, managerOpts...)
	}
	if f.initialCheckpoint != "" {
		dir, name := path.Split(f.initialCheckpoint)
		initStore, err := openStore(ctx, uri, dir, "")
		if err != nil {
			return err
		}
		policy.Initial = checkpoint.NewManager(initStore, managerOpts...)
		policy.InitialCheckpoint = name
	}

	trainSet, err := f.common.dataset.load(cfg.Network, "train")
	if err != nil {
		return err
	}

	writers := []summary.Writer{summary.NewLogWriter(logger.Logger)}
	if f.summaryDB != "" {
		run, closeDB, err := openSummaryRun(ctx, f.summaryDB, f.common.taskName, cfg)
		if err != nil {
			return err
		}
		defer closeDB()
		writers = append(writers, run)
	}
	summaries := summary.Multi(writers...)
	defer summaries.Close()

	opts := append(dgcnn.TrainerOptions(dgcnn.WithLogger(logger), dgcnn.WithResourceController(rc)),
		train.WithCheckpoints(manager, policy),
		train.WithSummaryWriter(summaries),
	)
	if f.ifVal {
		valSet, err := f.common.dataset.load(cfg.Network, "val")
		if err != nil {
			return err
		}
		opts = append(opts, train.WithValidation(valSet))
	}

	tr, err := train.New(cfg, trainSet, opts...)
	if err != nil {
		return err
	}
	log := logger.WithRun(tr.RunID())
	log.InfoContext(ctx, "training", "store", uri.String(f.common.taskName), "steps", cfg.NumSteps, "clones", cfg.NumClones)

	res, err := tr.Run(ctx)
	if err != nil {
		return err
	}
	log.LogCheckpoint(ctx, res.Checkpoint, tr.GlobalStep(), nil)
	fmt.Fprintf(stdout, "run %s: %d steps from %d (%s), loss %.6f, checkpoint %s\n",
		res.RunID, res.Steps, res.StartStep, res.Source, res.FinalLoss, res.Checkpoint)
	return nil
}

// openSummaryRun opens (and migrates) the summary database and starts a run.
func openSummaryRun(ctx context.Context, dbPath, name string, cfg train.Config) (*sqlite.Run, func(), error) {
	db, err := sqlite.Open(dbPath)
	if err != nil {
		return nil, nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, nil, err
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	run, err := db.StartRun(ctx, name, string(raw))
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return run, func() { _ = db.Close() }, nil
}
