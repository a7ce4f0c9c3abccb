// Package blobstore abstracts where container files live.
//
// A BlobStore hands out read-only, positioned handles to immutable blobs.
// The local store memory-maps files; the s3 and minio subpackages translate
// positioned reads into ranged object requests, and CachingStore puts a
// shared block cache with optional request throttling in front of any
// backend.
package blobstore
