package network

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/dgcnn/edge"
	"github.com/hupe1980/dgcnn/knn"
	"github.com/hupe1980/dgcnn/nn"
	"github.com/hupe1980/dgcnn/resource"
	"github.com/hupe1980/dgcnn/tensor"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidLabel is returned when a category label is not one-hot.
var ErrInvalidLabel = errors.New("network: label is not one-hot")

// Option configures a Network.
type Option func(*Network)

// WithResourceController bounds the memory of concurrently live distance
// matrices.
func WithResourceController(rc *resource.Controller) Option {
	return func(n *Network) {
		n.rc = rc
	}
}

// Network is the segmentation network. Parameters are shared by all
// concurrent forward passes and must not be mutated during one.
type Network struct {
	cfg       Config
	reg       *nn.Registry
	rc        *resource.Controller
	Transform *TransformNet
	Stack     *Stack
	Head      *SegHead
}

// New validates cfg and builds a network with seeded parameters.
func New(cfg Config, optFns ...Option) (*Network, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reg := nn.NewRegistry()
	b := nn.NewBuilder(reg, cfg.Seed, cfg.WeightDecay)
	n := &Network{
		cfg:       cfg,
		reg:       reg,
		Transform: newTransformNet(b, cfg.PointDim, cfg.Widths),
		Stack:     newStack(b, cfg.PointDim, cfg.Widths),
		Head:      newSegHead(b, cfg),
	}
	if err := b.Err(); err != nil {
		return nil, err
	}
	for _, fn := range optFns {
		fn(n)
	}
	return n, nil
}

// Config returns the network configuration.
func (n *Network) Config() Config { return n.cfg }

// Registry returns the parameter registry.
func (n *Network) Registry() *nn.Registry { return n.reg }

// Output is the result of a batched forward pass, indexed by cloud.
type Output struct {
	Logits     []*tensor.Matrix // [N, parts]
	Features   []*tensor.Matrix // input of the logits layer
	Transforms []*tensor.Matrix // [D, D]
	// Graphs holds the alignment graph followed by one graph per stage.
	Graphs [][]*knn.Table
}

type forwardOptions struct {
	stats nn.StatsObserver
	seed  int64
}

// ForwardOption configures a forward pass.
type ForwardOption func(*forwardOptions)

// WithStats reports batch-norm moments in Train mode.
func WithStats(obs nn.StatsObserver) ForwardOption {
	return func(o *forwardOptions) { o.stats = obs }
}

// WithDropoutSeed seeds dropout. Cloud b uses seed+b.
func WithDropoutSeed(seed int64) ForwardOption {
	return func(o *forwardOptions) { o.seed = seed }
}

// Forward computes logits for a batch of clouds [B][N, D] with one-hot
// labels [B][categories]. Shapes are checked before any computation.
func (n *Network) Forward(ctx context.Context, points []*tensor.Matrix, labels [][]float32, mode nn.Mode, optFns ...ForwardOption) (*Output, error) {
	if err := n.validate(points, labels); err != nil {
		return nil, err
	}
	var o forwardOptions
	for _, fn := range optFns {
		fn(&o)
	}

	b := len(points)
	out := &Output{
		Logits:     make([]*tensor.Matrix, b),
		Features:   make([]*tensor.Matrix, b),
		Transforms: make([]*tensor.Matrix, b),
		Graphs:     make([][]*knn.Table, b),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.cfg.workers())
	for i := range points {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			nctx := nn.NewContext(mode, o.seed+int64(i), o.stats)
			res, err := n.forwardCloud(gctx, nctx, points[i], labels[i])
			if err != nil {
				return fmt.Errorf("cloud %d: %w", i, err)
			}
			out.Logits[i] = res.head.Logits
			out.Features[i] = res.head.Features
			out.Transforms[i] = res.transform
			out.Graphs[i] = res.graphs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

type cloudResult struct {
	head      *HeadOutput
	transform *tensor.Matrix
	graphs    []*knn.Table
}

func (n *Network) forwardCloud(ctx context.Context, nctx *nn.Context, points *tensor.Matrix, label []float32) (*cloudResult, error) {
	res := &cloudResult{}
	graph := func(x *tensor.Matrix) (*knn.Table, error) {
		var t *knn.Table
		err := n.rc.WithMemory(ctx, resource.DistanceMatrixBytes(x.Rows), func() error {
			var err error
			t, err = n.graph(x)
			return err
		})
		if err != nil {
			return nil, err
		}
		res.graphs = append(res.graphs, t)
		return t, nil
	}

	table, err := graph(points)
	if err != nil {
		return nil, err
	}
	edges, err := edge.Build(points, table, edge.GraphFeature)
	if err != nil {
		return nil, err
	}
	if res.transform, err = n.Transform.Forward(nctx, edges); err != nil {
		return nil, err
	}
	aligned, err := Align(points, res.transform)
	if err != nil {
		return nil, err
	}

	stack, err := n.Stack.Forward(nctx, aligned, graph)
	if err != nil {
		return nil, err
	}
	if res.head, err = n.Head.Forward(nctx, stack, label); err != nil {
		return nil, err
	}
	return res, nil
}

func (n *Network) graph(x *tensor.Matrix) (*knn.Table, error) {
	if n.cfg.ExcludeSelf {
		return knn.Graph(x, n.cfg.K, knn.WithExcludeSelf())
	}
	return knn.Graph(x, n.cfg.K)
}

func (n *Network) validate(points []*tensor.Matrix, labels [][]float32) error {
	if len(points) == 0 || (n.cfg.BatchSize > 0 && len(points) != n.cfg.BatchSize) {
		batch := n.cfg.BatchSize
		if batch == 0 {
			batch = -1
		}
		return &tensor.ShapeError{Op: "network.Forward", Expected: tensor.Shape{batch, n.cfg.NumPoints, n.cfg.PointDim}, Actual: tensor.Shape{len(points), -1, -1}}
	}
	if len(labels) != len(points) {
		return &tensor.ShapeError{Op: "network.Forward labels", Expected: tensor.Shape{len(points), n.cfg.NumCategories}, Actual: tensor.Shape{len(labels), -1}}
	}
	for i, p := range points {
		if err := tensor.Check(fmt.Sprintf("network.Forward cloud %d", i), tensor.Shape{n.cfg.NumPoints, n.cfg.PointDim}, p.Shape()); err != nil {
			return err
		}
	}
	for i, l := range labels {
		if err := tensor.Check(fmt.Sprintf("network.Forward label %d", i), tensor.Shape{n.cfg.NumCategories}, tensor.Shape{len(l)}); err != nil {
			return err
		}
		if !isOneHot(l) {
			return fmt.Errorf("%w: label %d", ErrInvalidLabel, i)
		}
	}
	return nil
}

func isOneHot(l []float32) bool {
	ones := 0
	for _, v := range l {
		switch v {
		case 0:
		case 1:
			ones++
		default:
			return false
		}
	}
	return ones == 1
}
