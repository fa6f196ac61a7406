// Package s3 provides an Amazon S3 implementation of blobstore.Store.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("runs/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
// Multiple trainers writing to the same prefix can coordinate the latest
// checkpoint pointer through DynamoDB with DDBStore.
package s3
