// Package testutil provides testing utilities for dgcnn.
//
// This package is intended for use in tests and benchmarks only.
// It provides helpers for generating seeded point clouds and computing
// reference nearest-neighbor tables by brute force.
//
// # Random Point Clouds
//
//	rng := testutil.NewRNG(seed)
//	x := rng.PointCloud(1024, 3, 1.0)          // uniform in [-1, 1)^3
//	x, labels := rng.ClusteredCloud(256, 3, 4, 0.05)
//
// # Reference KNN
//
//	want := testutil.BruteForceKNN(x, k)
package testutil
