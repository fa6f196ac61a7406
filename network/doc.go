// Package network assembles the dynamic graph CNN for point-cloud part
// segmentation.
//
// A forward pass over one cloud:
//
//  1. builds a KNN graph from the raw coordinates and predicts a D×D
//     alignment matrix (TransformNet) that is applied to the points,
//  2. runs three edge-convolution stages, rebuilding the graph from the
//     current feature space before each (Stack),
//  3. pools a global descriptor, fuses it with the category label and every
//     stage output, and maps each point to part logits (SegHead).
//
// Network.Forward fans out over the clouds of a batch.
package network
