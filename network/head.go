package network

import (
	"github.com/hupe1980/dgcnn/nn"
	"github.com/hupe1980/dgcnn/tensor"
)

// LogitsLayer is the name of the final linear layer.
const LogitsLayer = "seg/logits"

// SegHead fuses the global descriptor, the category label and every stage
// output into per-point part logits.
type SegHead struct {
	Label  *nn.Conv
	Convs  [3]*nn.Conv
	Logits *nn.Conv
	Keep   float32
}

// HeadOutput holds the logits and the features feeding the logits layer.
type HeadOutput struct {
	Logits   *tensor.Matrix
	Features *tensor.Matrix
}

func newSegHead(b *nn.Builder, cfg Config) *SegHead {
	w := cfg.Widths
	return &SegHead{
		Label: b.Conv("one_hot_label_expand", cfg.NumCategories, w.Label),
		Convs: [3]*nn.Conv{
			b.Conv("seg/conv1", cfg.headInput(), w.Head[0]),
			b.Conv("seg/conv2", w.Head[0], w.Head[1]),
			b.Conv("seg/conv3", w.Head[1], w.Head[2]),
		},
		Logits: b.Conv(LogitsLayer, w.Head[2], cfg.NumParts, nn.WithoutBatchNorm(), nn.WithoutReLU()),
		Keep:   cfg.DropoutKeep,
	}
}

// Forward computes the logits [N, parts] of one cloud.
func (h *SegHead) Forward(ctx *nn.Context, stack *StackOutput, label []float32) (*HeadOutput, error) {
	n := stack.Terminal.Rows

	global, err := nn.ReduceMax(stack.Terminal)
	if err != nil {
		return nil, err
	}
	lbl, err := h.Label.Forward(ctx, &tensor.Matrix{Rows: 1, Cols: len(label), Data: label})
	if err != nil {
		return nil, err
	}
	if global, err = tensor.ConcatCols(global, lbl); err != nil {
		return nil, err
	}
	tiled, err := tensor.Expand(global, n)
	if err != nil {
		return nil, err
	}

	parts := []*tensor.Matrix{tiled}
	for _, s := range stack.Stages {
		parts = append(parts, s.Max, s.Mean, s.Out)
	}
	parts = append(parts, stack.Terminal)
	x, err := tensor.ConcatCols(parts...)
	if err != nil {
		return nil, err
	}

	for i, c := range h.Convs {
		if x, err = c.Forward(ctx, x); err != nil {
			return nil, err
		}
		if i < 2 {
			if x, err = nn.Dropout(ctx, x, h.Keep); err != nil {
				return nil, err
			}
		}
	}

	logits, err := h.Logits.Forward(ctx, x)
	if err != nil {
		return nil, err
	}
	return &HeadOutput{Logits: logits, Features: x}, nil
}
