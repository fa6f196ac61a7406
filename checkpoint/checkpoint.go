package checkpoint

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"slices"
	"time"

	"github.com/hupe1980/dgcnn/codec"
	"github.com/hupe1980/dgcnn/nn"
	"github.com/hupe1980/dgcnn/tensor"
)

const (
	magic         = "DGCK"
	formatVersion = 1
	prefixSize    = 12
)

var (
	// ErrCorrupt is returned when a blob fails structural or checksum validation.
	ErrCorrupt = errors.New("checkpoint: corrupt blob")
	// ErrUnsupportedVersion is returned for blobs written by a newer format.
	ErrUnsupportedVersion = errors.New("checkpoint: unsupported format version")
)

// Tensor is a named float32 tensor.
type Tensor struct {
	Name  string
	Shape tensor.Shape
	Data  []float32
}

// Checkpoint is a snapshot of a training run.
type Checkpoint struct {
	Step         int64
	LearningRate float64
	RunID        string
	CreatedAt    time.Time
	Tensors      []Tensor
}

// Lookup returns the tensor with the given name.
func (c *Checkpoint) Lookup(name string) (*Tensor, bool) {
	for i := range c.Tensors {
		if c.Tensors[i].Name == name {
			return &c.Tensors[i], true
		}
	}
	return nil, false
}

// Names returns the tensor names in stored order.
func (c *Checkpoint) Names() []string {
	names := make([]string, len(c.Tensors))
	for i, t := range c.Tensors {
		names[i] = t.Name
	}
	return names
}

// FromRegistry copies every parameter of reg (trainable weights and running
// statistics) into tensors.
func FromRegistry(reg *nn.Registry) []Tensor {
	params := reg.Params()
	out := make([]Tensor, len(params))
	for i, p := range params {
		out[i] = Tensor{
			Name:  p.Name,
			Shape: slices.Clone(p.Shape),
			Data:  slices.Clone(p.Data),
		}
	}
	return out
}

type header struct {
	Step         int64          `json:"step"`
	LearningRate float64        `json:"learning_rate"`
	RunID        string         `json:"run_id,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	Tensors      []tensorHeader `json:"tensors"`
}

type tensorHeader struct {
	Name   string `json:"name"`
	Shape  []int  `json:"shape"`
	Offset int64  `json:"offset"`
	Length int64  `json:"length"`
}

// Encode writes c to w.
func Encode(w io.Writer, c *Checkpoint, comp Compression, cd codec.Codec) error {
	if cd == nil {
		cd = codec.Default
	}

	h := header{
		Step:         c.Step,
		LearningRate: c.LearningRate,
		RunID:        c.RunID,
		CreatedAt:    c.CreatedAt.UTC(),
		Tensors:      make([]tensorHeader, len(c.Tensors)),
	}
	var total int64
	for i, t := range c.Tensors {
		if n := t.Shape.Size(); n != len(t.Data) {
			return fmt.Errorf("checkpoint: tensor %s has %d elements for shape %s", t.Name, len(t.Data), t.Shape)
		}
		h.Tensors[i] = tensorHeader{Name: t.Name, Shape: t.Shape, Offset: total, Length: int64(len(t.Data))}
		total += int64(len(t.Data))
	}

	hdr, err := cd.Marshal(h)
	if err != nil {
		return fmt.Errorf("checkpoint: encode header: %w", err)
	}
	name := cd.Name()
	if len(name) > math.MaxUint8 {
		return fmt.Errorf("checkpoint: codec name %q too long", name)
	}

	payload := make([]byte, total*4)
	off := 0
	for _, t := range c.Tensors {
		for _, v := range t.Data {
			binary.LittleEndian.PutUint32(payload[off:], math.Float32bits(v))
			off += 4
		}
	}
	block, err := compressBlock(payload, comp)
	if err != nil {
		return fmt.Errorf("checkpoint: compress: %w", err)
	}

	crc := crc32.NewIEEE()
	mw := io.MultiWriter(w, crc)

	prefix := make([]byte, prefixSize)
	copy(prefix, magic)
	prefix[4] = formatVersion
	prefix[5] = byte(comp)
	prefix[6] = byte(len(name))
	binary.LittleEndian.PutUint32(prefix[8:], uint32(len(hdr)))

	for _, part := range [][]byte{prefix, []byte(name), hdr, block} {
		if _, err := mw.Write(part); err != nil {
			return err
		}
	}

	var sum [4]byte
	binary.LittleEndian.PutUint32(sum[:], crc.Sum32())
	_, err = w.Write(sum[:])
	return err
}

// Marshal encodes c into a byte slice.
func Marshal(c *Checkpoint, comp Compression) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, c, comp, nil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads a checkpoint from r.
func Decode(r io.Reader) (*Checkpoint, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}

// Unmarshal decodes a checkpoint blob.
func Unmarshal(data []byte) (*Checkpoint, error) {
	if len(data) < prefixSize+4 || string(data[:4]) != magic {
		return nil, ErrCorrupt
	}
	body, sum := data[:len(data)-4], binary.LittleEndian.Uint32(data[len(data)-4:])
	if crc32.ChecksumIEEE(body) != sum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	if body[4] != formatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, body[4])
	}
	comp := Compression(body[5])
	nameLen := int(body[6])
	hdrLen := int(binary.LittleEndian.Uint32(body[8:]))

	pos := prefixSize
	if len(body) < pos+nameLen+hdrLen {
		return nil, fmt.Errorf("%w: truncated header", ErrCorrupt)
	}
	name := string(body[pos : pos+nameLen])
	pos += nameLen
	cd, ok := codec.ByName(name)
	if !ok {
		return nil, fmt.Errorf("checkpoint: unknown header codec %q", name)
	}

	var h header
	if err := cd.Unmarshal(body[pos:pos+hdrLen], &h); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	pos += hdrLen

	payload, n, err := decompressBlock(body[pos:], comp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if pos+n != len(body) {
		return nil, fmt.Errorf("%w: trailing bytes", ErrCorrupt)
	}

	c := &Checkpoint{
		Step:         h.Step,
		LearningRate: h.LearningRate,
		RunID:        h.RunID,
		CreatedAt:    h.CreatedAt,
		Tensors:      make([]Tensor, len(h.Tensors)),
	}
	words := int64(len(payload) / 4)
	for i, th := range h.Tensors {
		shape := tensor.Shape(th.Shape)
		size, ok := elements(shape)
		switch {
		case !ok:
			return nil, fmt.Errorf("%w: tensor %s has invalid shape %s", ErrCorrupt, th.Name, shape)
		case size != th.Length:
			return nil, fmt.Errorf("%w: tensor %s shape %s has length %d", ErrCorrupt, th.Name, shape, th.Length)
		case th.Offset < 0 || th.Offset > words || th.Length > words-th.Offset:
			return nil, fmt.Errorf("%w: tensor %s out of bounds", ErrCorrupt, th.Name)
		}
		start := th.Offset * 4
		values := make([]float32, th.Length)
		for j := range values {
			values[j] = math.Float32frombits(binary.LittleEndian.Uint32(payload[start+int64(j)*4:]))
		}
		c.Tensors[i] = Tensor{Name: th.Name, Shape: shape, Data: values}
	}
	return c, nil
}

// elements returns the element count of shape, or false if a dimension is
// negative or the count overflows.
func elements(shape tensor.Shape) (int64, bool) {
	n := int64(1)
	for _, d := range shape {
		if d < 0 {
			return 0, false
		}
		if d != 0 && n > math.MaxInt64/int64(d) {
			return 0, false
		}
		n *= int64(d)
	}
	return n, true
}
