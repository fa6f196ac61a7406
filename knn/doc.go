// Package knn selects the k nearest neighbors of every point from a pairwise
// distance matrix and packs them into a neighbor index table.
//
// Selection is exact and deterministic: each row holds the k indices with the
// smallest distances, ascending by (distance, index), so ties resolve to the
// smallest index. A point's distance to itself is zero, so by default every
// point is its own first neighbor (a self-loop). WithExcludeSelf drops the
// diagonal from consideration.
//
// NaN distances rank after every other value.
package knn
