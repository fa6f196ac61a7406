package metric

import "fmt"

// ShapeNetCategories lists the 16 ShapeNet part categories in label order.
var ShapeNetCategories = []string{
	"Airplane", "Bag", "Cap", "Car", "Chair", "Earphone", "Guitar", "Knife",
	"Lamp", "Laptop", "Motorbike", "Mug", "Pistol", "Rocket", "Skateboard", "Table",
}

// ShapeNetNumParts is the total number of ShapeNet part labels.
const ShapeNetNumParts = 50

// shapeNetPartCounts holds the number of parts of each category; part ids
// are assigned consecutively in category order.
var shapeNetPartCounts = []int{4, 2, 2, 4, 4, 3, 3, 2, 4, 2, 6, 2, 3, 3, 3, 3}

// ShapeNetParts returns the part ids of category c, or nil if c is unknown.
func ShapeNetParts(c int) []int32 {
	if c < 0 || c >= len(shapeNetPartCounts) {
		return nil
	}
	start := 0
	for _, n := range shapeNetPartCounts[:c] {
		start += n
	}
	parts := make([]int32, shapeNetPartCounts[c])
	for i := range parts {
		parts[i] = int32(start + i)
	}
	return parts
}

// ContiguousParts returns parts [0, n).
func ContiguousParts(n int) []int32 {
	parts := make([]int32, n)
	for i := range parts {
		parts[i] = int32(i)
	}
	return parts
}

// PartTable maps each category to the part ids its points may take. A nil
// table places no restriction: every category may use every part.
type PartTable [][]int32

// ShapeNetTable returns the ShapeNet category to part mapping.
func ShapeNetTable() PartTable {
	table := make(PartTable, len(ShapeNetCategories))
	for c := range table {
		table[c] = ShapeNetParts(c)
	}
	return table
}

// DefaultPartTable returns the ShapeNet table for 16 categories with 50
// parts and nil (unrestricted) for any other layout.
func DefaultPartTable(categories, parts int) PartTable {
	if categories == len(ShapeNetCategories) && parts == ShapeNetNumParts {
		return ShapeNetTable()
	}
	return nil
}

// SplitParts assigns parts to categories in contiguous, near-equal ranges.
// It is a layout for generated data, not a property of any real dataset.
func SplitParts(categories, parts int) (PartTable, error) {
	if categories <= 0 || parts < categories {
		return nil, fmt.Errorf("metric: cannot split %d parts over %d categories", parts, categories)
	}
	table := make(PartTable, categories)
	for c := range table {
		lo, hi := c*parts/categories, (c+1)*parts/categories
		ps := make([]int32, 0, hi-lo)
		for p := lo; p < hi; p++ {
			ps = append(ps, int32(p))
		}
		table[c] = ps
	}
	return table, nil
}

// Validate checks that t covers exactly categories categories and that
// every listed part lies in [0, parts). A nil table is always valid.
func (t PartTable) Validate(categories, parts int) error {
	if t == nil {
		return nil
	}
	if len(t) != categories {
		return fmt.Errorf("metric: part table has %d categories, want %d", len(t), categories)
	}
	for c, ps := range t {
		if len(ps) == 0 {
			return fmt.Errorf("metric: category %d has no parts", c)
		}
		for _, p := range ps {
			if p < 0 || int(p) >= parts {
				return fmt.Errorf("metric: category %d lists part %d outside [0, %d)", c, p, parts)
			}
		}
	}
	return nil
}

// Restriction returns the parts of category c, or nil when t places no
// restriction.
func (t PartTable) Restriction(c int) []int32 {
	if t == nil {
		return nil
	}
	return t[c]
}

// Parts returns the parts scored for category c: its table entry, or all
// numParts parts when t is nil.
func (t PartTable) Parts(c, numParts int) []int32 {
	if t == nil {
		return ContiguousParts(numParts)
	}
	return t[c]
}
