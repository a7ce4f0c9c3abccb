package featpack

import (
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/featpack/featpack/container"
)

// Item is one item's slice of a read result. Times and Features hold one
// row per frame.
type Item struct {
	Name     string
	Times    [][]float64 // frames x width (1 or 2)
	Features [][]float64 // frames x dim
}

// Result is an ordered per-item read result.
type Result struct {
	Items []Item
}

// Item returns the named item's data.
func (r *Result) Item(name string) (Item, bool) {
	for _, it := range r.Items {
		if it.Name == name {
			return it, true
		}
	}
	return Item{}, false
}

type readOptions struct {
	fromItem string
	toItem   string
	fromTime float64
	toTime   float64
	hasFrom  bool
	hasTo    bool
	rows     *roaring64.Bitmap
	index    *Index
	logger   *slog.Logger
}

// ReadOption narrows or tunes a read.
type ReadOption func(*readOptions)

// FromItem starts the read at the named item (inclusive). When no ToItem is
// given the read covers this single item.
func FromItem(name string) ReadOption {
	return func(o *readOptions) { o.fromItem = name }
}

// ToItem ends the read at the named item (inclusive).
func ToItem(name string) ReadOption {
	return func(o *readOptions) { o.toItem = name }
}

// FromTime drops frames of the first read item that lie before t. Bounds
// outside the item's recorded range clamp to the nearest frame.
func FromTime(t float64) ReadOption {
	return func(o *readOptions) { o.fromTime = t; o.hasFrom = true }
}

// ToTime drops frames of the last read item that lie after t.
func ToTime(t float64) ReadOption {
	return func(o *readOptions) { o.toTime = t; o.hasTo = true }
}

// WithRows reads exactly the given global row positions, bypassing item and
// time resolution. This is the fast path for callers that precomputed row
// positions from an Index. Combining it with item or time bounds fails
// validation.
func WithRows(rows *roaring64.Bitmap) ReadOption {
	return func(o *readOptions) { o.rows = rows }
}

// WithIndex reuses a previously loaded Index instead of reading it from the
// group again.
func WithIndex(ix *Index) ReadOption {
	return func(o *readOptions) { o.index = ix }
}

// WithReadLogger attaches a structured logger to the read.
func WithReadLogger(l *slog.Logger) ReadOption {
	return func(o *readOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// Read loads per-item times and features from one group of a container
// file. Without options the whole group is returned, in item order.
func Read(filename, group string, opts ...ReadOption) (*Result, error) {
	f, err := container.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("featpack: %s: %w", filename, err)
	}
	defer f.Close()

	return readContainer(f, group, opts...)
}

// ReadIndex loads just the cumulative index of a group, for reuse across
// reads via WithIndex or for computing row positions for WithRows.
func ReadIndex(filename, group string) (*Index, error) {
	f, err := container.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("featpack: %s: %w", filename, err)
	}
	defer f.Close()

	g, ok := f.Group(group)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrGroupNotFound, group)
	}
	return loadIndex(g)
}

func readContainer(f *container.File, group string, opts ...ReadOption) (*Result, error) {
	o := &readOptions{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(o)
	}
	if o.rows != nil && (o.fromItem != "" || o.toItem != "" || o.hasFrom || o.hasTo) {
		return nil, fmt.Errorf("%w: row positions cannot be combined with item or time bounds",
			ErrValidation)
	}

	g, ok := f.Group(group)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrGroupNotFound, group)
	}

	ix := o.index
	if ix == nil {
		var err error
		if ix, err = loadIndex(g); err != nil {
			return nil, err
		}
	}

	gr, err := newGroupReader(g, ix)
	if err != nil {
		return nil, err
	}

	var res *Result
	if o.rows != nil {
		res, err = gr.readRowSet(o.rows)
	} else {
		res, err = gr.readRange(o)
	}
	if err != nil {
		return nil, err
	}

	o.logger.Debug("read group", "group", group, "items", len(res.Items))
	return res, nil
}

// groupReader bundles the open datasets of one group for slicing.
type groupReader struct {
	g      *container.Group
	ix     *Index
	sparse bool
	width  int
	dim    int

	times *container.Dataset
	feats *container.Dataset
}

func newGroupReader(g *container.Group, ix *Index) (*groupReader, error) {
	format, ok := g.AttrString(attrFormat)
	if !ok {
		return nil, fmt.Errorf("featpack: group %q has no format attribute", g.Name())
	}
	sparse := format == FormatSparse
	if sparse && ix.nnz == nil {
		return nil, fmt.Errorf("featpack: sparse group %q has no %s dataset", g.Name(), datasetNnz)
	}

	timesDs, ok := g.Dataset(datasetTimes)
	if !ok {
		return nil, fmt.Errorf("featpack: group %q has no times dataset", g.Name())
	}
	featDs, ok := g.Dataset(datasetFeats)
	if !ok {
		return nil, fmt.Errorf("featpack: group %q has no features dataset", g.Name())
	}

	dim := featDs.Cols()
	if sparse {
		d, ok := g.AttrInt(attrDim)
		if !ok {
			return nil, fmt.Errorf("featpack: sparse group %q has no dim attribute", g.Name())
		}
		dim = int(d)
	}

	return &groupReader{
		g:      g,
		ix:     ix,
		sparse: sparse,
		width:  timesDs.Cols(),
		dim:    dim,
		times:  timesDs,
		feats:  featDs,
	}, nil
}

// readRange resolves an inclusive item range with optional time bounds.
// FromTime narrows the first item of the range, ToTime the last; items in
// between are returned whole.
func (gr *groupReader) readRange(o *readOptions) (*Result, error) {
	p0, p1, err := gr.ix.resolve(o.fromItem, o.toItem)
	if err != nil {
		return nil, err
	}

	res := &Result{Items: make([]Item, 0, p1-p0+1)}
	for p := p0; p <= p1; p++ {
		r0, r1 := gr.ix.rowRange(p)

		tvals, err := gr.times.ReadFloat64s(r0, r1)
		if err != nil {
			return nil, err
		}

		lo, hi := timeSearch(tvals, gr.width,
			o.fromTime, o.toTime,
			o.hasFrom && p == p0,
			o.hasTo && p == p1,
		)

		feats, err := gr.readFeatures(p, int64(lo), int64(hi))
		if err != nil {
			return nil, err
		}

		res.Items = append(res.Items, Item{
			Name:     gr.ix.items[p],
			Times:    reshape(tvals[lo*gr.width:hi*gr.width], gr.width),
			Features: feats,
		})
	}
	return res, nil
}

// readFeatures returns the item's feature rows for item-local frames
// [f0, f1).
func (gr *groupReader) readFeatures(p int, f0, f1 int64) ([][]float64, error) {
	if gr.sparse {
		return gr.readSparse(p, f0, f1)
	}
	r0, _ := gr.ix.rowRange(p)
	vals, err := gr.feats.ReadFloat64s(r0+f0, r0+f1)
	if err != nil {
		return nil, err
	}
	return reshape(vals, gr.dim), nil
}

// readSparse reconstructs dense rows from (frame, column, value) triples.
// Frames with no stored triples come back as all-zero rows.
func (gr *groupReader) readSparse(p int, f0, f1 int64) ([][]float64, error) {
	frameDs, ok := gr.g.Dataset(datasetFrames)
	if !ok {
		return nil, fmt.Errorf("featpack: group %q has no frames dataset", gr.g.Name())
	}
	coordDs, ok := gr.g.Dataset(datasetCoords)
	if !ok {
		return nil, fmt.Errorf("featpack: group %q has no coordinates dataset", gr.g.Name())
	}

	n0, n1 := gr.ix.nnzRange(p)
	frames, err := frameDs.ReadInt64s(n0, n1)
	if err != nil {
		return nil, err
	}

	// Triples are stored in frame order, so the wanted frame window is a
	// contiguous run.
	k0 := sort.Search(len(frames), func(k int) bool { return frames[k] >= f0 })
	k1 := sort.Search(len(frames), func(k int) bool { return frames[k] >= f1 })

	coords, err := coordDs.ReadInt64s(n0+int64(k0), n0+int64(k1))
	if err != nil {
		return nil, err
	}
	values, err := gr.feats.ReadFloat64s(n0+int64(k0), n0+int64(k1))
	if err != nil {
		return nil, err
	}

	out := make([][]float64, f1-f0)
	for i := range out {
		out[i] = make([]float64, gr.dim)
	}
	for k := range values {
		out[frames[k0+k]-f0][coords[k]] = values[k]
	}
	return out, nil
}

// readRowSet loads exactly the given global row positions, grouped per item
// in item order.
func (gr *groupReader) readRowSet(rows *roaring64.Bitmap) (*Result, error) {
	if rows.IsEmpty() {
		return &Result{}, nil
	}
	if int64(rows.Maximum()) >= gr.ix.TotalRows() {
		return nil, fmt.Errorf("%w: row %d beyond %d stored rows",
			ErrValidation, rows.Maximum(), gr.ix.TotalRows())
	}

	// The bitmap iterates in ascending order, so contiguous positions
	// within one item collapse into runs read in a single slice.
	type run struct {
		p      int
		f0, f1 int64 // item-local frame range
	}
	var runs []run

	it := rows.Iterator()
	for it.HasNext() {
		row := int64(it.Next())
		p := gr.ix.itemAt(row)
		start, _ := gr.ix.rowRange(p)
		local := row - start

		if n := len(runs); n > 0 && runs[n-1].p == p && runs[n-1].f1 == local {
			runs[n-1].f1++
			continue
		}
		runs = append(runs, run{p: p, f0: local, f1: local + 1})
	}

	res := &Result{}
	for _, r := range runs {
		start, _ := gr.ix.rowRange(r.p)

		tvals, err := gr.times.ReadFloat64s(start+r.f0, start+r.f1)
		if err != nil {
			return nil, err
		}
		feats, err := gr.readFeatures(r.p, r.f0, r.f1)
		if err != nil {
			return nil, err
		}

		name := gr.ix.items[r.p]
		if n := len(res.Items); n > 0 && res.Items[n-1].Name == name {
			last := &res.Items[n-1]
			last.Times = append(last.Times, reshape(tvals, gr.width)...)
			last.Features = append(last.Features, feats...)
			continue
		}
		res.Items = append(res.Items, Item{
			Name:     name,
			Times:    reshape(tvals, gr.width),
			Features: feats,
		})
	}
	return res, nil
}

// reshape splits a row-major flat slice into rows of the given width.
func reshape(flat []float64, cols int) [][]float64 {
	rows := len(flat) / cols
	out := make([][]float64, rows)
	for i := range out {
		out[i] = flat[i*cols : (i+1)*cols : (i+1)*cols]
	}
	return out
}
