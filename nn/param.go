package nn

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/hupe1980/dgcnn/tensor"
)

// ErrDuplicateParam is returned when a parameter name is registered twice.
var ErrDuplicateParam = errors.New("nn: duplicate parameter")

// Param is a named parameter tensor.
type Param struct {
	Name      string
	Shape     tensor.Shape
	Data      []float32
	Trainable bool
	// WeightDecay is the L2 scale applied to the parameter (0 for none).
	WeightDecay float32
}

// Size returns the number of elements.
func (p *Param) Size() int { return len(p.Data) }

// Registry indexes the parameters and batch-norm layers of a network.
type Registry struct {
	params []*Param
	byName map[string]*Param
	norms  map[string]*BatchNorm
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Param),
		norms:  make(map[string]*BatchNorm),
	}
}

// Add registers p.
func (r *Registry) Add(p *Param) error {
	if _, ok := r.byName[p.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateParam, p.Name)
	}
	r.params = append(r.params, p)
	r.byName[p.Name] = p
	return nil
}

func (r *Registry) addNorm(bn *BatchNorm) error {
	for _, p := range bn.params() {
		if err := r.Add(p); err != nil {
			return err
		}
	}
	r.norms[bn.Name] = bn
	return nil
}

// Params returns the parameters in registration order.
func (r *Registry) Params() []*Param { return slices.Clone(r.params) }

// Lookup returns the parameter with the given name.
func (r *Registry) Lookup(name string) (*Param, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// WithPrefix returns the parameters whose names start with prefix.
func (r *Registry) WithPrefix(prefix string) []*Param {
	var out []*Param
	for _, p := range r.params {
		if strings.HasPrefix(p.Name, prefix) {
			out = append(out, p)
		}
	}
	return out
}

// Norm returns the batch-norm layer with the given name.
func (r *Registry) Norm(name string) (*BatchNorm, bool) {
	bn, ok := r.norms[name]
	return bn, ok
}

// Len returns the number of registered parameters.
func (r *Registry) Len() int { return len(r.params) }

// NumElements returns the total number of parameter elements.
func (r *Registry) NumElements() int {
	n := 0
	for _, p := range r.params {
		n += p.Size()
	}
	return n
}

// L2 returns sum(WeightDecay * ||p||² / 2) over all decayed parameters.
func (r *Registry) L2() float64 {
	var sum float64
	for _, p := range r.params {
		if p.WeightDecay == 0 {
			continue
		}
		var sq float64
		for _, v := range p.Data {
			sq += float64(v) * float64(v)
		}
		sum += float64(p.WeightDecay) * sq / 2
	}
	return sum
}
