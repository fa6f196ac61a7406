package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/hupe1980/dgcnn/blobstore"
	"github.com/hupe1980/dgcnn/codec"
	"github.com/hupe1980/dgcnn/resource"
)

// PointerName is the pointer blob naming the most recent checkpoint.
const PointerName = "LATEST"

const (
	namePrefix = "ckpt-"
	nameSuffix = ".bin"
)

// ErrNoCheckpoint is returned by Latest when nothing was saved yet.
var ErrNoCheckpoint = errors.New("checkpoint: no checkpoint found")

// Name returns the blob name of the checkpoint for step.
func Name(step int64) string {
	return namePrefix + strconv.FormatInt(step, 10) + nameSuffix
}

// ParseName extracts the step from a checkpoint blob name.
func ParseName(name string) (int64, bool) {
	if !strings.HasPrefix(name, namePrefix) || !strings.HasSuffix(name, nameSuffix) {
		return 0, false
	}
	step, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, namePrefix), nameSuffix), 10, 64)
	if err != nil || step < 0 {
		return 0, false
	}
	return step, true
}

// Manager saves and loads checkpoints of one run.
type Manager struct {
	store       blobstore.Store
	rc          *resource.Controller
	compression Compression
	codec       codec.Codec
	maxToKeep   int
	logger      *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithResourceController throttles checkpoint transfers through rc's IO limit.
func WithResourceController(rc *resource.Controller) ManagerOption {
	return func(m *Manager) { m.rc = rc }
}

// WithCompression sets the payload compression of saved checkpoints.
func WithCompression(c Compression) ManagerOption {
	return func(m *Manager) { m.compression = c }
}

// WithCodec sets the header codec of saved checkpoints.
func WithCodec(c codec.Codec) ManagerOption {
	return func(m *Manager) { m.codec = c }
}

// WithMaxToKeep deletes all but the n most recent checkpoints after each
// save. 0 keeps everything.
func WithMaxToKeep(n int) ManagerOption {
	return func(m *Manager) { m.maxToKeep = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a manager over store.
func NewManager(store blobstore.Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:       store,
		compression: CompressionZSTD,
		codec:       codec.Default,
		maxToKeep:   5,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the underlying blob store.
func (m *Manager) Store() blobstore.Store { return m.store }

// Save writes c as Name(c.Step), moves the LATEST pointer to it and prunes
// old checkpoints.
func (m *Manager) Save(ctx context.Context, c *Checkpoint) (string, error) {
	var buf bytes.Buffer
	w := resource.NewRateLimitedWriter(ctx, &buf, m.rc)
	if err := Encode(w, c, m.compression, m.codec); err != nil {
		return "", err
	}

	name := Name(c.Step)
	if err := m.store.Put(ctx, name, buf.Bytes()); err != nil {
		return "", fmt.Errorf("checkpoint: put %s: %w", name, err)
	}
	if err := m.store.Put(ctx, PointerName, []byte(name)); err != nil {
		return "", fmt.Errorf("checkpoint: update %s: %w", PointerName, err)
	}
	m.logger.LogAttrs(ctx, slog.LevelInfo, "checkpoint saved",
		slog.String("name", name),
		slog.Int64("step", c.Step),
		slog.Int("bytes", buf.Len()),
		slog.String("compression", m.compression.String()),
	)

	if err := m.prune(ctx); err != nil {
		m.logger.LogAttrs(ctx, slog.LevelWarn, "checkpoint prune failed", slog.String("error", err.Error()))
	}
	return name, nil
}

// Load reads the checkpoint blob called name.
func (m *Manager) Load(ctx context.Context, name string) (*Checkpoint, error) {
	data, err := m.store.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: get %s: %w", name, err)
	}
	c, err := Decode(resource.NewRateLimitedReader(ctx, bytes.NewReader(data), m.rc))
	if err != nil {
		return nil, fmt.Errorf("checkpoint: decode %s: %w", name, err)
	}
	return c, nil
}

// LatestName returns the name the LATEST pointer refers to.
func (m *Manager) LatestName(ctx context.Context) (string, error) {
	data, err := m.store.Get(ctx, PointerName)
	if errors.Is(err, blobstore.ErrNotFound) {
		return "", ErrNoCheckpoint
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Latest loads the checkpoint the LATEST pointer refers to.
func (m *Manager) Latest(ctx context.Context) (*Checkpoint, error) {
	name, err := m.LatestName(ctx)
	if err != nil {
		return nil, err
	}
	return m.Load(ctx, name)
}

// Steps returns the steps of all stored checkpoints in ascending order.
func (m *Manager) Steps(ctx context.Context) ([]int64, error) {
	names, err := m.store.List(ctx, namePrefix)
	if err != nil {
		return nil, err
	}
	var steps []int64
	for _, name := range names {
		if step, ok := ParseName(name); ok {
			steps = append(steps, step)
		}
	}
	slices.Sort(steps)
	return steps, nil
}

func (m *Manager) prune(ctx context.Context) error {
	if m.maxToKeep <= 0 {
		return nil
	}
	steps, err := m.Steps(ctx)
	if err != nil {
		return err
	}
	if len(steps) <= m.maxToKeep {
		return nil
	}
	for _, step := range steps[:len(steps)-m.maxToKeep] {
		if err := m.store.Delete(ctx, Name(step)); err != nil {
			return err
		}
	}
	return nil
}
