// Package checkpoint persists network parameters, running statistics,
// optimizer moments and training state to a blobstore.Store.
//
// A checkpoint blob has the layout
//
//	[magic "DGCK"][version u8][compression u8][codec len u8][reserved u8][header len u32]
//	[codec name][header][payload block][crc32 u32]
//
// The header is encoded with a codec.Codec and lists every tensor with its
// shape and element offset. The payload is the little-endian float32 data of
// all tensors, stored as one (optionally compressed) block. The trailing
// CRC32 covers every preceding byte.
//
// A Manager names blobs "ckpt-<step>.bin" and keeps a "LATEST" pointer blob
// holding the name of the most recent checkpoint.
package checkpoint
