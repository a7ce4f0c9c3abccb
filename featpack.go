package featpack

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/featpack/featpack/blobstore"
	"github.com/featpack/featpack/container"
)

type writeOptions struct {
	format   string
	chunkMB  float64
	sparsity float64
	width    int
	itemName string
	logger   *slog.Logger
}

// WriteOption configures a top-level Write or SimpleWrite call.
type WriteOption func(*writeOptions)

// WithFormat selects the storage format, FormatDense (the default) or
// FormatSparse.
func WithFormat(format string) WriteOption {
	return func(o *writeOptions) { o.format = format }
}

// WithWriteChunkSize sets the on-disk chunk budget in megabytes.
func WithWriteChunkSize(mb float64) WriteOption {
	return func(o *writeOptions) { o.chunkMB = mb }
}

// WithSparsity sets the expected fraction of non-zero entries per frame for
// sparse groups. It tunes chunk sizes only.
func WithSparsity(sparsity float64) WriteOption {
	return func(o *writeOptions) { o.sparsity = sparsity }
}

// WithTimesWidth sets the number of time columns per frame, 1 (the default)
// or 2 for [start, end] window pairs.
func WithTimesWidth(width int) WriteOption {
	return func(o *writeOptions) { o.width = width }
}

// WithItemName sets the identifier SimpleWrite stores its single item under.
func WithItemName(name string) WriteOption {
	return func(o *writeOptions) { o.itemName = name }
}

// WithWriteLogger attaches a structured logger to the write.
func WithWriteLogger(l *slog.Logger) WriteOption {
	return func(o *writeOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

func newWriteOptions(opts []WriteOption) *writeOptions {
	o := &writeOptions{
		format:   FormatDense,
		chunkMB:  DefaultChunkSize,
		sparsity: 0.1,
		width:    1,
		itemName: "item",
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Write stores per-item times and features in one group of a container
// file, creating the file and group as needed and appending when the group
// already exists. items, times and features are parallel slices, one entry
// per item; times entries are row-major with the configured width.
func Write(filename, group string, items []string, times [][]float64, features [][][]float64, opts ...WriteOption) error {
	o := newWriteOptions(opts)

	set, err := NewItemSet(items)
	if err != nil {
		return err
	}
	tm, err := NewTimes(o.width, times)
	if err != nil {
		return err
	}

	var feats Features
	switch o.format {
	case FormatDense:
		feats, err = NewFeatures(features)
	case FormatSparse:
		feats, err = NewSparseFeatures(features, o.sparsity)
	default:
		return fmt.Errorf("%w: unknown format %q", ErrValidation, o.format)
	}
	if err != nil {
		return err
	}

	wopts := []WriterOption{WithChunkSize(o.chunkMB)}
	if o.logger != nil {
		wopts = append(wopts, WithLogger(o.logger))
	}
	w, err := NewWriter(filename, wopts...)
	if err != nil {
		return err
	}
	return w.Write(group, set, tm, feats)
}

// SimpleWrite stores a single item's data, one center time per frame. The
// item identifier defaults to "item" and can be changed with WithItemName.
func SimpleWrite(filename, group string, times []float64, features [][]float64, opts ...WriteOption) error {
	o := newWriteOptions(opts)
	return Write(filename, group,
		[]string{o.itemName},
		[][]float64{times},
		[][][]float64{features},
		append([]WriteOption{WithTimesWidth(1)}, opts...)...,
	)
}

// ReadStore reads one group of a container held in a blob store, without
// downloading the whole blob: only the header, table of contents and the
// chunks covering the requested rows are fetched.
func ReadStore(ctx context.Context, store blobstore.BlobStore, name, group string, opts ...ReadOption) (*Result, error) {
	blob, err := store.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("featpack: %s: %w", name, err)
	}
	defer blob.Close()

	f, err := container.OpenReaderAt(blob)
	if err != nil {
		return nil, fmt.Errorf("featpack: %s: %w", name, err)
	}
	defer f.Close()

	return readContainer(f, group, opts...)
}
