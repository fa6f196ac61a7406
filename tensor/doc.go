// Package tensor holds the dense float32 containers that flow between the
// pipeline stages: Matrix for per-point features ([N, C]) and Edge for
// per-neighbor features ([N, k, C]).
//
// Both store data row-major in a single backing slice. A value returned by a
// stage is never mutated afterwards; stages allocate their outputs.
package tensor
