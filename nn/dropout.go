package nn

import (
	"fmt"

	"github.com/hupe1980/dgcnn/tensor"
)

// Dropout zeroes each element with probability 1-keep and scales survivors
// by 1/keep. Outside Train mode it returns x unchanged.
func Dropout(ctx *Context, x *tensor.Matrix, keep float32) (*tensor.Matrix, error) {
	if keep <= 0 || keep > 1 {
		return nil, fmt.Errorf("nn.Dropout: keep probability %v outside (0, 1]", keep)
	}
	if !ctx.Training() || keep == 1 {
		return x, nil
	}

	out := tensor.NewMatrix(x.Rows, x.Cols)
	scale := 1 / keep
	for i, v := range x.Data {
		if ctx.rng.Float32() < keep {
			out.Data[i] = v * scale
		}
	}
	return out, nil
}
