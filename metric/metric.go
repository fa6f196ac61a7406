// Package metric scores part segmentations with intersection over union.
package metric

import (
	"errors"
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrLengthMismatch is returned when predictions and labels differ in length.
var ErrLengthMismatch = errors.New("metric: prediction and label lengths differ")

// PartIoU returns the mean IoU over parts for one instance. A part absent from
// both prediction and label scores 1.
func PartIoU(pred, labels []int32, parts []int32) (float64, error) {
	if len(pred) != len(labels) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(pred), len(labels))
	}
	if len(parts) == 0 {
		return 0, errors.New("metric: no parts")
	}

	predSets := make(map[int32]*roaring.Bitmap, len(parts))
	labelSets := make(map[int32]*roaring.Bitmap, len(parts))
	for _, p := range parts {
		predSets[p] = roaring.New()
		labelSets[p] = roaring.New()
	}
	for i := range pred {
		if bm, ok := predSets[pred[i]]; ok {
			bm.Add(uint32(i))
		}
		if bm, ok := labelSets[labels[i]]; ok {
			bm.Add(uint32(i))
		}
	}

	ious := make([]float64, len(parts))
	for j, p := range parts {
		ps, ls := predSets[p], labelSets[p]
		union := ps.OrCardinality(ls)
		if union == 0 {
			ious[j] = 1
			continue
		}
		ious[j] = float64(ps.AndCardinality(ls)) / float64(union)
	}
	return stat.Mean(ious, nil), nil
}

// RestrictedArgmax returns, for every row of logits (row-major, width cols),
// the best part among parts. Ties resolve to the part listed first. A nil
// parts list places no restriction, so ties resolve to the lowest column.
func RestrictedArgmax(logits []float32, cols int, parts []int32) []int32 {
	if cols == 0 || (parts != nil && len(parts) == 0) {
		return nil
	}
	rows := len(logits) / cols
	out := make([]int32, rows)
	for i := range rows {
		row := logits[i*cols : (i+1)*cols]
		if parts == nil {
			best := 0
			for c := 1; c < cols; c++ {
				if row[c] > row[best] {
					best = c
				}
			}
			out[i] = int32(best)
			continue
		}
		best := parts[0]
		for _, p := range parts[1:] {
			if row[p] > row[best] {
				best = p
			}
		}
		out[i] = best
	}
	return out
}

// Accumulator collects per-instance IoUs grouped by category.
type Accumulator struct {
	byCategory map[int][]float64
	all        []float64
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{byCategory: make(map[int][]float64)}
}

// Add records the IoU of one instance of category.
func (a *Accumulator) Add(category int, iou float64) {
	a.byCategory[category] = append(a.byCategory[category], iou)
	a.all = append(a.all, iou)
}

// Count returns the number of recorded instances.
func (a *Accumulator) Count() int { return len(a.all) }

// InstanceMean is the mean IoU over all instances.
func (a *Accumulator) InstanceMean() float64 {
	if len(a.all) == 0 {
		return 0
	}
	return floats.Sum(a.all) / float64(len(a.all))
}

// CategoryMeans returns the mean IoU of every recorded category.
func (a *Accumulator) CategoryMeans() map[int]float64 {
	out := make(map[int]float64, len(a.byCategory))
	for c, ious := range a.byCategory {
		out[c] = stat.Mean(ious, nil)
	}
	return out
}

// ClassMean is the mean of the category means.
func (a *Accumulator) ClassMean() float64 {
	means := a.CategoryMeans()
	if len(means) == 0 {
		return 0
	}
	cats := make([]int, 0, len(means))
	for c := range means {
		cats = append(cats, c)
	}
	sort.Ints(cats)
	vals := make([]float64, len(cats))
	for i, c := range cats {
		vals[i] = means[c]
	}
	return stat.Mean(vals, nil)
}
