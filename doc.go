// Package featpack stores large collections of variable-length numerical
// feature matrices in a single chunked, compressed container file.
//
// Data is organized in named groups. A group holds an ordered set of unique
// item identifiers; each item carries a times array (one or two columns per
// frame) and a feature matrix with one row per frame. A cumulative index
// maps items to their row blocks, so reading one item, or a time slice of
// one item, touches only the chunks covering those rows.
//
// Groups are append-only: successive Write calls add new items but never
// modify stored rows, and every append is validated against the group's
// version, format and shape first. Feature matrices are stored dense by
// default; a sparse variant stores (frame, column, value) triples instead.
//
// Containers are plain files readable through any io.ReaderAt, including
// blobs in object storage via the blobstore package.
package featpack
