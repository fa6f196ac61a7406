// Package nn implements the layers of the segmentation network: position-wise
// convolutions with batch normalization and ReLU, neighbor aggregation,
// global pooling and dropout.
//
// Layers are plain structs over named parameters held in a Registry so that
// checkpoints and optimizers can address them by name. A forward pass never
// mutates parameters. Batch normalization always normalizes with the running
// statistics; in Train mode the per-channel moments of the batch are reported
// to the Context's StatsObserver and folded in by the caller after the step.
package nn
