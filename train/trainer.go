package train

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/dgcnn/checkpoint"
	"github.com/hupe1980/dgcnn/dataset"
	"github.com/hupe1980/dgcnn/loss"
	"github.com/hupe1980/dgcnn/metric"
	"github.com/hupe1980/dgcnn/network"
	"github.com/hupe1980/dgcnn/nn"
	"github.com/hupe1980/dgcnn/resource"
	"github.com/hupe1980/dgcnn/summary"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ErrNonFiniteLoss is returned when the total loss is NaN or infinite.
var ErrNonFiniteLoss = errors.New("train: loss is inf or nan")

// prefetchPerClone is the prefetch queue capacity per clone.
const prefetchPerClone = 128

// StepResult describes one training step.
type StepResult struct {
	Step int64
	// Loss is the mean clone loss plus the regularization loss.
	Loss float64
	// DataLoss is the mean clone cross-entropy.
	DataLoss     float64
	LearningRate float64
	Duration     time.Duration
}

// ValResult describes one validation pass.
type ValResult struct {
	Step     int64
	Loss     float64
	MeanIoU  float64
	Clouds   int
	Duration time.Duration
}

// Result summarizes a finished Run.
type Result struct {
	RunID      string
	Source     checkpoint.Source
	StartStep  int64
	Steps      int64
	FinalLoss  float64
	Checkpoint string
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithCheckpoints saves checkpoints through m and restores according to p.
func WithCheckpoints(m *checkpoint.Manager, p checkpoint.Policy) Option {
	return func(t *Trainer) {
		t.ckpt = m
		t.policy = p
	}
}

// WithSummaryWriter sets the scalar summary sink.
func WithSummaryWriter(w summary.Writer) Option {
	return func(t *Trainer) { t.summaries = w }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Trainer) { t.logger = l }
}

// WithOptimizer replaces the default LastLayerAdam.
func WithOptimizer(o Optimizer) Option {
	return func(t *Trainer) { t.opt = o }
}

// WithValidation enables periodic validation on ds.
func WithValidation(ds dataset.Dataset) Option {
	return func(t *Trainer) { t.val = ds }
}

// WithResourceController bounds graph memory and checkpoint IO.
func WithResourceController(rc *resource.Controller) Option {
	return func(t *Trainer) { t.rc = rc }
}

// WithStepHook calls fn after every training step.
func WithStepHook(fn func(StepResult)) Option {
	return func(t *Trainer) { t.onStep = fn }
}

// WithPartTable restricts validation predictions to the parts of each
// category. Without it, 16 categories with 50 parts use the ShapeNet table
// and every other layout is unrestricted.
func WithPartTable(table metric.PartTable) Option {
	return func(t *Trainer) { t.parts = table }
}

// WithValidationHook calls fn after every validation pass.
func WithValidationHook(fn func(ValResult)) Option {
	return func(t *Trainer) { t.onVal = fn }
}

// Trainer runs the training loop.
type Trainer struct {
	cfg       Config
	net       *network.Network
	train     dataset.Dataset
	val       dataset.Dataset
	opt       Optimizer
	stats     *nn.StatsAccumulator
	parts     metric.PartTable
	ckpt      *checkpoint.Manager
	policy    checkpoint.Policy
	summaries summary.Writer
	logger    *slog.Logger
	rc        *resource.Controller
	onStep    func(StepResult)
	onVal     func(ValResult)
	runID     string
	step      int64
}

// New builds the network and the trainer.
func New(cfg Config, ds dataset.Dataset, opts ...Option) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &Trainer{
		cfg:       cfg,
		train:     ds,
		stats:     nn.NewStatsAccumulator(),
		summaries: summary.Discard,
		logger:    slog.New(slog.DiscardHandler),
		runID:     cfg.RunID,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.runID == "" {
		t.runID = uuid.NewString()
	}

	netCfg := cfg.Network
	netCfg.BatchSize = cfg.CloneBatchSize()
	net, err := network.New(netCfg, network.WithResourceController(t.rc))
	if err != nil {
		return nil, err
	}
	t.net = net

	if t.parts == nil {
		t.parts = metric.DefaultPartTable(netCfg.NumCategories, netCfg.NumParts)
	}
	if err := t.parts.Validate(netCfg.NumCategories, netCfg.NumParts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if t.opt == nil {
		adam := DefaultAdamConfig()
		adam.GradientMultiplier = cfg.LastLayerGradientMultiplier
		t.opt = NewLastLayerAdam(net.Registry(), []string{network.LogitsLayer}, adam)
	}
	if t.policy.LastLayers == nil {
		t.policy.LastLayers = []string{network.LogitsLayer}
	}
	return t, nil
}

// Network returns the trained network.
func (t *Trainer) Network() *network.Network { return t.net }

// RunID returns the run identifier.
func (t *Trainer) RunID() string { return t.runID }

// GlobalStep returns the number of completed steps.
func (t *Trainer) GlobalStep() int64 { return t.step }

// Run initializes from a checkpoint (if configured) and trains until
// NumSteps, ctx cancellation or an error. A final checkpoint is saved on
// normal completion.
func (t *Trainer) Run(ctx context.Context) (*Result, error) {
	res := &Result{RunID: t.runID}
	if t.ckpt != nil {
		c, src, err := checkpoint.Init(ctx, t.ckpt, t.net.Registry(), t.policy)
		if err != nil {
			return nil, fmt.Errorf("train: init: %w", err)
		}
		res.Source = src
		if src == checkpoint.SourceRestored {
			t.step = c.Step
			if err := t.opt.Restore(c); err != nil {
				return nil, err
			}
		}
		t.logger.LogAttrs(ctx, slog.LevelInfo, "initialized", slog.String("source", src.String()), slog.Int64("step", t.step))
	}
	res.StartStep = t.step

	q := NewQueue(ctx, t.train, QueueConfig{
		BatchSize:     t.cfg.BatchSize,
		NumCategories: t.cfg.Network.NumCategories,
		NumPoints:     t.cfg.Network.NumPoints,
		Capacity:      prefetchPerClone * t.cfg.NumClones,
		Shuffle:       t.cfg.Shuffle,
		Seed:          t.cfg.Seed,
	})
	defer func() { _ = q.Close() }()

	var valQ *Queue
	if t.val != nil && t.cfg.ValInterval > 0 {
		valQ = NewQueue(ctx, t.val, QueueConfig{
			BatchSize:     t.cfg.CloneBatchSize(),
			NumCategories: t.cfg.Network.NumCategories,
			NumPoints:     t.cfg.Network.NumPoints,
			Capacity:      prefetchPerClone,
			Seed:          t.cfg.Seed,
		})
		defer func() { _ = valQ.Close() }()
	}

	summaries := rate.Sometimes{Interval: t.cfg.SaveSummariesInterval}
	if t.cfg.SaveSummariesInterval == 0 {
		summaries.Every = 1
	}
	lastSave := time.Now()

	for t.step < t.cfg.NumSteps {
		batch, err := q.Next(ctx)
		if err != nil {
			return res, err
		}
		lr := t.cfg.Schedule.LearningRate(t.step)
		sr, err := t.Step(ctx, batch, lr)
		if err != nil {
			return res, err
		}
		res.Steps++
		res.FinalLoss = sr.Loss

		if t.cfg.LogSteps > 0 && t.step%t.cfg.LogSteps == 0 {
			t.logger.LogAttrs(ctx, slog.LevelInfo, "step",
				slog.Int64("step", t.step),
				slog.Float64("loss", sr.Loss),
				slog.Float64("learning_rate", lr),
				slog.Duration("duration", sr.Duration),
			)
		}

		var werr error
		summaries.Do(func() {
			werr = errors.Join(
				t.summaries.Scalar(ctx, t.step, summary.TagTrainLoss, sr.Loss),
				t.summaries.Scalar(ctx, t.step, summary.TagLearningRate, lr),
			)
		})
		if werr != nil {
			t.logger.LogAttrs(ctx, slog.LevelWarn, "summary write failed", slog.String("error", werr.Error()))
		}

		if valQ != nil && t.step%t.cfg.ValInterval == 0 {
			vb, err := valQ.Next(ctx)
			if err != nil {
				return res, err
			}
			vr, err := t.Validate(ctx, vb)
			if err != nil {
				return res, err
			}
			if werr := errors.Join(
				t.summaries.Scalar(ctx, t.step, summary.TagValLoss, vr.Loss),
				t.summaries.Scalar(ctx, t.step, summary.TagValMIoU, vr.MeanIoU),
			); werr != nil {
				t.logger.LogAttrs(ctx, slog.LevelWarn, "summary write failed", slog.String("error", werr.Error()))
			}
		}

		if t.ckpt != nil && time.Since(lastSave) >= t.cfg.SaveInterval {
			if res.Checkpoint, err = t.Save(ctx); err != nil {
				return res, err
			}
			lastSave = time.Now()
		}
	}

	if t.ckpt != nil {
		name, err := t.Save(ctx)
		if err != nil {
			return res, err
		}
		res.Checkpoint = name
	}
	return res, nil
}

type cloneResult struct {
	loss  float64
	grads Gradients
}

// Step runs one training step on batch with learning rate lr.
func (t *Trainer) Step(ctx context.Context, batch *dataset.Batch, lr float64) (StepResult, error) {
	start := time.Now()
	clones := t.cfg.NumClones
	if batch.Len()%clones != 0 {
		return StepResult{}, fmt.Errorf("%w: batch of %d not divisible by %d clones", ErrInvalidConfig, batch.Len(), clones)
	}
	per := batch.Len() / clones
	logits := t.net.Head.Logits
	lossOpts := t.lossOptions()

	results := make([]cloneResult, clones)
	g, gctx := errgroup.WithContext(ctx)
	for c := range clones {
		g.Go(func() error {
			sub := batch.Slice(c*per, (c+1)*per)
			seed := t.cfg.Seed*1_000_003 + t.step*int64(batch.Len()) + int64(c*per)
			out, err := t.net.Forward(gctx, sub.Points, sub.OneHot, nn.Train,
				network.WithStats(t.stats), network.WithDropoutSeed(seed))
			if err != nil {
				return fmt.Errorf("clone %d: %w", c, err)
			}
			lres, err := loss.Evaluate(out.Logits, sub.Labels, lossOpts...)
			if err != nil {
				return fmt.Errorf("clone %d: %w", c, err)
			}
			grads, err := LayerGradients(logits, out.Features, lres.Grad, 1/float32(clones))
			if err != nil {
				return fmt.Errorf("clone %d: %w", c, err)
			}
			results[c] = cloneResult{loss: lres.Loss, grads: grads}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.stats.Reset()
		return StepResult{}, err
	}

	var dataLoss float64
	grads := Gradients{}
	for _, r := range results {
		dataLoss += r.loss
		grads.Add(r.grads)
	}
	dataLoss /= float64(clones)
	total := dataLoss + t.net.Registry().L2()
	if math.IsNaN(total) || math.IsInf(total, 0) {
		t.stats.Reset()
		return StepResult{}, fmt.Errorf("%w (step %d)", ErrNonFiniteLoss, t.step)
	}

	if err := t.opt.Apply(grads, lr); err != nil {
		return StepResult{}, err
	}
	if err := t.stats.Apply(t.net.Registry(), t.cfg.BatchNormDecay); err != nil {
		return StepResult{}, err
	}
	t.step++

	sr := StepResult{
		Step:         t.step,
		Loss:         total,
		DataLoss:     dataLoss,
		LearningRate: lr,
		Duration:     time.Since(start),
	}
	if t.onStep != nil {
		t.onStep(sr)
	}
	return sr, nil
}

func (t *Trainer) lossOptions() []loss.Option {
	opts := []loss.Option{}
	if t.cfg.IgnoreLabel != NoIgnoreLabel {
		opts = append(opts, loss.WithIgnoreLabel(t.cfg.IgnoreLabel))
	}
	return opts
}

// Validate runs an eval-mode pass over batch and returns its loss and mean
// instance part IoU. With a part table, predictions are restricted to the
// parts of each cloud's category.
func (t *Trainer) Validate(ctx context.Context, batch *dataset.Batch) (ValResult, error) {
	start := time.Now()
	out, err := t.net.Forward(ctx, batch.Points, batch.OneHot, nn.Eval)
	if err != nil {
		return ValResult{}, err
	}
	lres, err := loss.Evaluate(out.Logits, batch.Labels, append(t.lossOptions(), loss.WithoutGradient())...)
	if err != nil {
		return ValResult{}, err
	}

	acc := metric.NewAccumulator()
	for i, z := range out.Logits {
		c := batch.Categories[i]
		pred := metric.RestrictedArgmax(z.Data, z.Cols, t.parts.Restriction(c))
		iou, err := metric.PartIoU(pred, batch.Labels[i], t.parts.Parts(c, t.cfg.Network.NumParts))
		if err != nil {
			return ValResult{}, err
		}
		acc.Add(batch.Categories[i], iou)
	}

	vr := ValResult{
		Step:     t.step,
		Loss:     lres.Loss,
		MeanIoU:  acc.InstanceMean(),
		Clouds:   acc.Count(),
		Duration: time.Since(start),
	}
	t.logger.LogAttrs(ctx, slog.LevelInfo, "validation",
		slog.Int64("step", vr.Step),
		slog.Float64("loss", vr.Loss),
		slog.Float64("miou", vr.MeanIoU),
	)
	if t.onVal != nil {
		t.onVal(vr)
	}
	return vr, nil
}

// Checkpoint snapshots parameters, running statistics and optimizer state.
func (t *Trainer) Checkpoint() *checkpoint.Checkpoint {
	tensors := checkpoint.FromRegistry(t.net.Registry())
	tensors = append(tensors, t.opt.State()...)
	return &checkpoint.Checkpoint{
		Step:         t.step,
		LearningRate: t.cfg.Schedule.LearningRate(t.step),
		RunID:        t.runID,
		CreatedAt:    time.Now(),
		Tensors:      tensors,
	}
}

// Save writes a checkpoint of the current state.
func (t *Trainer) Save(ctx context.Context) (string, error) {
	if t.ckpt == nil {
		return "", errors.New("train: no checkpoint manager")
	}
	return t.ckpt.Save(ctx, t.Checkpoint())
}
