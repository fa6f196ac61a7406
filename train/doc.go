// Package train drives part-segmentation training.
//
// A Trainer pulls batches from a prefetch Queue, splits every batch over
// NumClones concurrent forward passes, averages the clone losses, updates
// the task-specific output layer through an Optimizer and folds the
// observed batch-norm moments into the running statistics. Summaries,
// validation and checkpoints run on their own cadences.
package train
