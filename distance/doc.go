// Package distance computes squared Euclidean distances over point and
// feature matrices.
//
// All kernels go through internal/simd, which selects an implementation for
// the running CPU (AVX-512/AVX2 on x86-64, NEON/SVE2 on ARM64).
//
// # Usage
//
//	d := distance.SquaredL2(a, b)
//	adj := distance.Pairwise(points) // [N, N]
//
// Pairwise uses the Gram expansion ||x_i||² + ||x_j||² - 2·x_i·x_j. The norms
// are the Gram diagonal, so for finite input the diagonal is exactly zero and
// the matrix is exactly symmetric. Values are never clamped: small negative
// rounding artifacts and non-finite inputs propagate to the output.
package distance
