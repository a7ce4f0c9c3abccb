// Package container implements a single-file hierarchical store for
// chunked, append-only array datasets.
//
// A container file holds named groups. Each group holds small scalar
// attributes (string, int64, float64) and named datasets: fixed-column
// arrays of float64, int64 or string rows. Dataset rows are packed into
// compressed chunks appended at the end of the file; a table of contents
// written on Flush/Close locates every chunk, and the 64-byte header is
// updated last so an interrupted write leaves the previous state of the
// file fully readable.
//
// Containers are single-writer and not safe for concurrent use. Operations
// are not atomic across processes either: callers must serialize all access
// to a given file externally.
package container
