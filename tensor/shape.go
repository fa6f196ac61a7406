package tensor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrShapeMismatch is the sentinel matched by every *ShapeError.
var ErrShapeMismatch = errors.New("tensor: shape mismatch")

// Shape lists tensor dimensions. A negative entry means "any".
type Shape []int

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		if d < 0 {
			parts[i] = "?"
			continue
		}
		parts[i] = strconv.Itoa(d)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Size returns the number of elements (the product of the dimensions).
func (s Shape) Size() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Matches reports whether s satisfies pattern (negative pattern entries match anything).
func (s Shape) Matches(pattern Shape) bool {
	if len(s) != len(pattern) {
		return false
	}
	for i, d := range pattern {
		if d >= 0 && s[i] != d {
			return false
		}
	}
	return true
}

// ShapeError describes an expected vs actual shape for an operation.
type ShapeError struct {
	Op       string
	Expected Shape
	Actual   Shape
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: expected shape %s, got %s", e.Op, e.Expected, e.Actual)
}

func (e *ShapeError) Unwrap() error { return ErrShapeMismatch }

// Check returns a *ShapeError if actual does not match expected.
func Check(op string, expected, actual Shape) error {
	if actual.Matches(expected) {
		return nil
	}
	return &ShapeError{Op: op, Expected: expected, Actual: actual}
}
