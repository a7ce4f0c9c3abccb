// Package minio provides a MinIO-backed blob store for container files,
// usable against any S3-compatible endpoint.
package minio
