// Package simd provides the float32 kernels used by the distance and layer code.
//
// # Kernel Families
//
// There are two kernel families, both written in portable Go:
//
//   - generic: sequential reference loops
//   - unrolled: four independent accumulators
//
// Runtime CPU feature detection (AVX-512 and AVX2 on x86-64, SVE2 and NEON on
// ARM64) only decides between them. Every detected ISA binds the unrolled
// family and no ISA has an assembly path, so ActiveISA reports the CPU level
// while ISA.Kernels reports the loops that actually run. Set
// DGCNN_SIMD=generic to force the reference loops, for example when comparing
// results across machines.
//
// # Operations
//
//   - Reductions: Dot, SquaredL2, SumSquares
//   - Batch: DotBatch
//   - Elementwise: Axpy, ScaleInPlace, MaxInPlace, AddInPlace
//
// Results are deterministic for a fixed kernel family: the accumulation order
// depends only on the vector length.
package simd
