package featpack

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/featpack/featpack/container"
)

// Version is the data layout version written to every group. Groups written
// by a different version are not appendable.
const Version = "1.1"

// Writer writes item/times/features data into container groups. One Write
// call owns the whole mutation sequence for its group: validate or create
// the layout, then append the index, items, features and times. Validation
// runs before any mutation; a failed validation leaves the file untouched.
type Writer struct {
	filename string
	chunkMB  float64
	logger   *slog.Logger
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithChunkSize sets the on-disk chunk budget in megabytes.
func WithChunkSize(mb float64) WriterOption {
	return func(w *Writer) {
		w.chunkMB = mb
	}
}

// WithLogger attaches a structured logger to the writer. The default
// discards all output.
func WithLogger(l *slog.Logger) WriterOption {
	return func(w *Writer) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWriter prepares a writer for the given container file. The chunk size
// is checked here, before any file or dataset exists.
func NewWriter(filename string, opts ...WriterOption) (*Writer, error) {
	if filename == "" {
		return nil, fmt.Errorf("%w: empty filename", ErrValidation)
	}

	w := &Writer{
		filename: filename,
		chunkMB:  DefaultChunkSize,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(w)
	}

	if w.chunkMB < MinChunkSize {
		return nil, fmt.Errorf("%w: %v MB", ErrChunkTooSmall, w.chunkMB)
	}
	return w, nil
}

// Write stores one batch of per-item data in the named group, creating the
// group if needed and appending to it otherwise. The container file handle
// is scoped to this call and released on every path.
func (w *Writer) Write(group string, items *ItemSet, times *Times, features Features) error {
	if err := validateBatch(items, times, features); err != nil {
		return err
	}

	f, err := w.open()
	if err != nil {
		return err
	}

	if err := w.writeGroup(f, group, items, times, features); err != nil {
		// Appended chunks stay unreferenced: the TOC is not flushed, so
		// readers keep seeing the state before this call.
		f.Abort()
		return err
	}
	return f.Close()
}

func (w *Writer) open() (*container.File, error) {
	if _, err := os.Stat(w.filename); err == nil {
		f, err := container.OpenReadWrite(w.filename)
		if err != nil {
			return nil, fmt.Errorf("featpack: %s: %w", w.filename, err)
		}
		return f, nil
	}
	f, err := container.Create(w.filename)
	if err != nil {
		return nil, fmt.Errorf("featpack: %s: %w", w.filename, err)
	}
	return f, nil
}

func (w *Writer) writeGroup(f *container.File, group string, items *ItemSet, times *Times, features Features) error {
	g, exists := f.Group(group)
	if exists {
		if err := w.checkCompatible(g, items, times, features); err != nil {
			return err
		}
	} else {
		var err error
		if g, err = w.createGroup(f, group, items, times, features); err != nil {
			return err
		}
	}

	// Append order: index first, computed from the finalized frame counts,
	// then items, features, times. No prior rows are touched.
	if err := extendIndex(g, times.counts()); err != nil {
		return err
	}
	if err := items.write(g); err != nil {
		return err
	}
	if err := features.write(g); err != nil {
		return err
	}
	if err := times.write(g); err != nil {
		return err
	}

	w.logger.Debug("wrote group",
		"file", w.filename,
		"group", group,
		"format", features.Format(),
		"items", items.Len(),
		"appended", exists,
	)
	return nil
}

func (w *Writer) createGroup(f *container.File, group string, items *ItemSet, times *Times, features Features) (*container.Group, error) {
	g, err := f.CreateGroup(group)
	if err != nil {
		return nil, err
	}
	if err := g.SetAttr(attrVersion, Version); err != nil {
		return nil, err
	}
	if err := g.SetAttr(attrFormat, features.Format()); err != nil {
		return nil, err
	}

	featRows, err := features.create(g, w.chunkMB)
	if err != nil {
		return nil, err
	}
	if err := times.create(g, featRows); err != nil {
		return nil, err
	}
	if err := items.create(g, w.chunkMB); err != nil {
		return nil, err
	}
	if err := createIndex(g, w.chunkMB); err != nil {
		return nil, err
	}
	return g, nil
}

// checkCompatible verifies that new data can extend an existing group. Any
// mismatch fails before a single row is appended.
func (w *Writer) checkCompatible(g *container.Group, items *ItemSet, times *Times, features Features) error {
	version, ok := g.AttrString(attrVersion)
	if !ok || version != Version {
		return fmt.Errorf("%w: group version %q, writer version %q", ErrNotAppendable, version, Version)
	}

	format, ok := g.AttrString(attrFormat)
	if !ok || format != features.Format() {
		return fmt.Errorf("%w: group stores %s features, new data is %s",
			ErrNotAppendable, format, features.Format())
	}

	for _, name := range []string{datasetItems, datasetTimes, datasetFeats, datasetIndex} {
		if !g.HasDataset(name) {
			return fmt.Errorf("%w: missing %s dataset", ErrNotAppendable, name)
		}
	}

	timesDs, _ := g.Dataset(datasetTimes)
	if timesDs.Cols() != times.Width() {
		return fmt.Errorf("%w: group stores %d time columns, new data has %d",
			ErrNotAppendable, timesDs.Cols(), times.Width())
	}

	if err := features.checkCompatible(g); err != nil {
		return err
	}

	// Items are append-only and unique for the lifetime of a group.
	itemsDs, _ := g.Dataset(datasetItems)
	stored, err := itemsDs.ReadStrings(0, itemsDs.Rows())
	if err != nil {
		return err
	}
	for _, name := range stored {
		if items.Contains(name) {
			return fmt.Errorf("%w: item %q already stored in group %q", ErrValidation, name, g.Name())
		}
	}
	return nil
}

// validateBatch cross-checks the three data sets before any I/O.
func validateBatch(items *ItemSet, times *Times, features Features) error {
	if items == nil || times == nil || features == nil {
		return fmt.Errorf("%w: missing items, times or features", ErrValidation)
	}

	tc, fc := times.counts(), features.counts()
	if items.Len() != len(tc) || items.Len() != len(fc) {
		return fmt.Errorf("%w: %d items, %d time arrays, %d feature matrices",
			ErrValidation, items.Len(), len(tc), len(fc))
	}
	for i := range tc {
		if tc[i] != fc[i] {
			return fmt.Errorf("%w: item %q has %d time frames but %d feature frames",
				ErrValidation, items.names[i], tc[i], fc[i])
		}
	}
	return nil
}
