package dgcnn

import (
	"errors"
	"fmt"

	"github.com/hupe1980/dgcnn/blobstore"
	"github.com/hupe1980/dgcnn/checkpoint"
	"github.com/hupe1980/dgcnn/knn"
	"github.com/hupe1980/dgcnn/tensor"
)

var (
	// ErrInvalidK is returned when k is outside [1, N).
	ErrInvalidK = errors.New("k must satisfy 1 <= k < N")

	// ErrNotFound is returned when a checkpoint does not exist.
	ErrNotFound = errors.New("not found")

	// ErrCategoryOutOfRange is returned for a category outside [0, categories).
	ErrCategoryOutOfRange = errors.New("category out of range")
)

// ErrDimensionMismatch indicates an input whose shape does not match the
// configured network.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Op       string
	Expected tensor.Shape
	Actual   tensor.Shape
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch in %s: expected %s, got %s", e.Op, e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, blobstore.ErrNotFound) || errors.Is(err, checkpoint.ErrNoCheckpoint) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	var se *tensor.ShapeError
	if errors.As(err, &se) {
		return &ErrDimensionMismatch{Op: se.Op, Expected: se.Expected, Actual: se.Actual, cause: err}
	}
	if errors.Is(err, knn.ErrInvalidK) {
		return fmt.Errorf("%w: %w", ErrInvalidK, err)
	}

	return err
}
