// Package s3 provides an S3-backed blob store for container files.
//
// Reads map to ranged GetObject requests. Combine with
// blobstore.CachingStore to amortize request latency and cost across
// repeated reads of the same chunks.
package s3
