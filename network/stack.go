package network

import (
	"fmt"

	"github.com/hupe1980/dgcnn/edge"
	"github.com/hupe1980/dgcnn/knn"
	"github.com/hupe1980/dgcnn/nn"
	"github.com/hupe1980/dgcnn/tensor"
)

// GraphFunc builds the neighbor table of a feature matrix.
type GraphFunc func(x *tensor.Matrix) (*knn.Table, error)

// Stage is one edge-convolution stage: edge convs over the graph of its
// input, max and mean over the neighbors, then a fusing conv.
type Stage struct {
	Name  string
	Convs []*nn.Conv
	Fuse  *nn.Conv
}

// StageOutput holds the per-point results of a stage.
type StageOutput struct {
	Graph *knn.Table
	Max   *tensor.Matrix
	Mean  *tensor.Matrix
	Out   *tensor.Matrix
}

// Forward runs the stage on x [N, C] with a freshly built graph.
func (s *Stage) Forward(ctx *nn.Context, x *tensor.Matrix, graph GraphFunc) (*StageOutput, error) {
	table, err := graph(x)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Name, err)
	}
	e, err := edge.Build(x, table, edge.GraphFeature)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Name, err)
	}
	for _, c := range s.Convs {
		if e, err = c.ForwardEdge(ctx, e); err != nil {
			return nil, err
		}
	}

	agg, err := nn.Aggregate(e, nn.AggMaxMean)
	if err != nil {
		return nil, err
	}
	pooled, err := agg.Squeeze()
	if err != nil {
		return nil, err
	}
	out, err := s.Fuse.Forward(ctx, pooled)
	if err != nil {
		return nil, err
	}

	width := pooled.Cols / 2
	mx := tensor.NewMatrix(pooled.Rows, width)
	mean := tensor.NewMatrix(pooled.Rows, width)
	for i := range pooled.Rows {
		row := pooled.Row(i)
		copy(mx.Row(i), row[:width])
		copy(mean.Row(i), row[width:])
	}
	return &StageOutput{Graph: table, Max: mx, Mean: mean, Out: out}, nil
}

// Stack is the three-stage dynamic graph stack plus the terminal conv over
// the concatenated stage outputs.
type Stack struct {
	Stages   []*Stage
	Terminal *nn.Conv
}

// StackOutput holds every stage output and the terminal features.
type StackOutput struct {
	Stages   []*StageOutput
	Terminal *tensor.Matrix
}

func newStack(b *nn.Builder, dim int, w Widths) *Stack {
	return &Stack{
		Stages: []*Stage{
			{
				Name: "stage1",
				Convs: []*nn.Conv{
					b.Conv("adj_conv1", 2*dim, w.Edge),
					b.Conv("adj_conv2", w.Edge, w.Edge),
				},
				Fuse: b.Conv("adj_conv3", 2*w.Edge, w.Edge),
			},
			{
				Name:  "stage2",
				Convs: []*nn.Conv{b.Conv("adj_conv4", 2*w.Edge, w.Edge)},
				Fuse:  b.Conv("adj_conv5", 2*w.Edge, w.Edge),
			},
			{
				Name:  "stage3",
				Convs: []*nn.Conv{b.Conv("adj_conv6", 2*w.Edge, w.Edge)},
				Fuse:  b.Conv("adj_conv7", 2*w.Edge, w.Edge),
			},
		},
		Terminal: b.Conv("adj_conv13", 3*w.Edge, w.Global),
	}
}

// Forward runs every stage, each on the graph of the previous stage's output.
func (s *Stack) Forward(ctx *nn.Context, x *tensor.Matrix, graph GraphFunc) (*StackOutput, error) {
	out := &StackOutput{Stages: make([]*StageOutput, 0, len(s.Stages))}
	outs := make([]*tensor.Matrix, 0, len(s.Stages))
	cur := x
	for _, st := range s.Stages {
		so, err := st.Forward(ctx, cur, graph)
		if err != nil {
			return nil, err
		}
		out.Stages = append(out.Stages, so)
		outs = append(outs, so.Out)
		cur = so.Out
	}

	cat, err := tensor.ConcatCols(outs...)
	if err != nil {
		return nil, err
	}
	if out.Terminal, err = s.Terminal.Forward(ctx, cat); err != nil {
		return nil, err
	}
	return out, nil
}
