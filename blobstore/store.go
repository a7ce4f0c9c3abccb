package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies
// errors.Is(err, ErrNotFound). The default maps to os.ErrNotExist.
var ErrNotFound = os.ErrNotExist

// BlobStore is an abstraction for accessing immutable container blobs.
type BlobStore interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)
}

// Blob is a read-only handle to a container blob. Reads are positioned, so
// a reader can fetch the header, the table of contents and individual
// chunks without downloading the blob as a whole.
type Blob interface {
	io.ReaderAt
	io.Closer
	// Size returns the size of the blob in bytes.
	Size() int64
}

// Mappable is an optional interface for Blobs that support zero-copy access
// to their backing bytes.
type Mappable interface {
	// Bytes returns the underlying byte slice. The slice is valid until
	// the Blob is closed.
	Bytes() ([]byte, error)
}
