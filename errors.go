package featpack

import "errors"

var (
	// ErrValidation is returned for malformed input data: non-unique or
	// empty item identifiers, ragged feature shapes, non-monotonic times,
	// mismatched row counts, or an inverted item range. It is always
	// raised before any I/O takes place.
	ErrValidation = errors.New("featpack: invalid input data")

	// ErrNotAppendable is returned when writing to an existing group whose
	// stored layout is incompatible with the new data (different version,
	// format, dimensionality or missing datasets). Nothing is written.
	ErrNotAppendable = errors.New("featpack: data is not appendable to the group")

	// ErrChunkTooSmall is returned when the requested chunk size is below
	// the 8 KB floor. No file or dataset is created.
	ErrChunkTooSmall = errors.New("featpack: chunk size is below 8 KB")

	// ErrItemNotFound is returned when a read references an item that is
	// absent from the group's index.
	ErrItemNotFound = errors.New("featpack: item not found")

	// ErrGroupNotFound is returned when a read references a group that
	// does not exist in the container file.
	ErrGroupNotFound = errors.New("featpack: group not found")

	// ErrSparseUnsupported is returned when sparse storage is requested
	// for input the (column, value) conversion cannot represent.
	ErrSparseUnsupported = errors.New("featpack: sparse conversion not supported for this input")
)
