package knn

import (
	"errors"
	"fmt"
)

// ErrInvalidK is returned when k is outside [1, N).
var ErrInvalidK = errors.New("knn: k must satisfy 1 <= k < N")

// ConfigError describes an invalid neighbor count for a point set.
type ConfigError struct {
	K int
	N int
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("knn: invalid k=%d for %d points (want 1 <= k < %d)", e.K, e.N, e.N)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidK }

// Validate checks 1 <= k < n.
func Validate(k, n int) error {
	if k < 1 || k >= n {
		return &ConfigError{K: k, N: n}
	}
	return nil
}
