// Package dataset provides labeled point clouds for part segmentation.
//
// A Sample is one cloud with a part label per point and an object category.
// Datasets are random access; batches are assembled with MakeBatch, which
// also builds the one-hot category matrix the network consumes.
package dataset
