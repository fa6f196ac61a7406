package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/dgcnn/nn"
	"github.com/hupe1980/dgcnn/tensor"
)

// Policy decides which checkpoint initializes a run.
type Policy struct {
	// Restore resumes from the latest checkpoint of From.
	Restore bool
	// From is the manager to resume from. Nil means the run's own manager.
	From *Manager

	// InitialCheckpoint names a blob in Initial used when not resuming
	// (or when there is nothing to resume from).
	InitialCheckpoint string
	// Initial holds InitialCheckpoint. Nil means the run's own manager.
	Initial *Manager

	// InitializeLastLayer also loads the tensors of LastLayers from an
	// initial checkpoint. Resumed checkpoints always load every tensor.
	InitializeLastLayer bool
	// LastLayers lists name prefixes of the task-specific output layers.
	LastLayers []string
}

// Source reports where Init found its checkpoint.
type Source int

const (
	// SourceNone means the run starts from freshly initialized parameters.
	SourceNone Source = iota
	// SourceRestored means the run resumed from its latest checkpoint.
	SourceRestored
	// SourceInitial means the run was initialized from InitialCheckpoint.
	SourceInitial
)

func (s Source) String() string {
	switch s {
	case SourceRestored:
		return "restored"
	case SourceInitial:
		return "initial"
	default:
		return "none"
	}
}

// Init loads the checkpoint selected by p into reg. It returns the loaded
// checkpoint (nil for SourceNone) so callers can recover the step and
// optimizer state.
func Init(ctx context.Context, run *Manager, reg *nn.Registry, p Policy) (*Checkpoint, Source, error) {
	if p.Restore {
		from := p.From
		if from == nil {
			from = run
		}
		c, err := from.Latest(ctx)
		switch {
		case err == nil:
			if _, err := Apply(reg, c, nil); err != nil {
				return nil, SourceNone, err
			}
			return c, SourceRestored, nil
		case !errors.Is(err, ErrNoCheckpoint):
			return nil, SourceNone, err
		}
	}

	if p.InitialCheckpoint == "" {
		return nil, SourceNone, nil
	}
	initial := p.Initial
	if initial == nil {
		initial = run
	}
	c, err := initial.Load(ctx, p.InitialCheckpoint)
	if err != nil {
		return nil, SourceNone, err
	}

	var skip func(string) bool
	if !p.InitializeLastLayer {
		skip = func(name string) bool {
			for _, prefix := range p.LastLayers {
				if strings.HasPrefix(name, prefix) {
					return true
				}
			}
			return false
		}
	}
	if _, err := Apply(reg, c, skip); err != nil {
		return nil, SourceNone, err
	}
	return c, SourceInitial, nil
}

// Apply copies the tensors of c into the matching parameters of reg.
// Tensors without a parameter and parameters without a tensor are ignored;
// skip (if non-nil) excludes parameters by name. It returns the number of
// parameters restored.
func Apply(reg *nn.Registry, c *Checkpoint, skip func(name string) bool) (int, error) {
	restored := 0
	for _, p := range reg.Params() {
		if skip != nil && skip(p.Name) {
			continue
		}
		t, ok := c.Lookup(p.Name)
		if !ok {
			continue
		}
		if err := tensor.Check("checkpoint.Apply "+p.Name, p.Shape, t.Shape); err != nil {
			return restored, err
		}
		copy(p.Data, t.Data)
		restored++
	}
	return restored, nil
}

// Extract returns the tensors of c whose names start with prefix.
func (c *Checkpoint) Extract(prefix string) []Tensor {
	var out []Tensor
	for _, t := range c.Tensors {
		if strings.HasPrefix(t.Name, prefix) {
			out = append(out, t)
		}
	}
	return out
}

// String describes the checkpoint.
func (c *Checkpoint) String() string {
	return fmt.Sprintf("checkpoint(step=%d, tensors=%d)", c.Step, len(c.Tensors))
}
