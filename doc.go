// Package dgcnn provides dynamic graph CNN part segmentation for point clouds.
//
// A DGCNN network re-derives a k-nearest-neighbor graph from the current
// features at every stage, builds edge features [x_i, x_j - x_i] over that
// graph, and aggregates them with shared convolutions. The segmentation head
// combines the stage outputs with a global feature and a category label to
// predict one part per point.
//
// # Quick Start
//
// Segment a batch of clouds with a freshly initialized or restored network:
//
//	ctx := context.Background()
//	s, _ := dgcnn.New(network.DefaultConfig())
//	m := checkpoint.NewManager(blobstore.NewLocalStore("./run"))
//	s.RestoreLatest(ctx, m)
//	parts, _ := s.Segment(ctx, clouds, categories)
//
// Neighbor graphs are available without a network:
//
//	table, _ := dgcnn.Graph(ctx, points, 5)
//
// # Training
//
// The train package runs data-parallel clones over a prefetch queue and
// writes checkpoints to any blobstore.Store (memory, local, S3, MinIO):
//
//	tr, _ := train.New(cfg, ds, append(dgcnn.TrainerOptions(dgcnn.WithLogger(logger)),
//	    train.WithCheckpoints(m, checkpoint.Policy{Restore: true}))...)
//	res, _ := tr.Run(ctx)
//
// # Packages
//
//   - distance, knn, edge: graph construction
//   - nn, network: layers and the full architecture
//   - loss, metric: cross-entropy and part IoU
//   - dataset, train: data, optimization, checkpoints and summaries
//   - checkpoint, blobstore, summary: persistence
//
// Kernels use SIMD where available; set DGCNN_SIMD=generic to force the
// reference loops.
package dgcnn
