package container

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Dataset is a chunked, append-only array of rows.
//
// Rows are grouped into chunks of at most chunkRows rows. Each chunk is
// compressed independently and written at the end of the data region, so
// existing rows are never rewritten. Reads locate chunks by binary search
// over cumulative row counts.
type Dataset struct {
	g    *Group
	name string

	dtype     DType
	codec     Codec
	cols      int
	chunkRows int

	chunks []chunkRef
	cum    []int64 // cumulative rows, len(chunks)+1, cum[0]=0
}

// Name returns the dataset name.
func (d *Dataset) Name() string { return d.name }

// Type returns the element type.
func (d *Dataset) Type() DType { return d.dtype }

// Cols returns the number of columns per row.
func (d *Dataset) Cols() int { return d.cols }

// ChunkRows returns the number of rows per on-disk chunk.
func (d *Dataset) ChunkRows() int { return d.chunkRows }

// Rows returns the total number of rows.
func (d *Dataset) Rows() int64 {
	return d.cum[len(d.cum)-1]
}

// AppendFloat64s appends rows of float64 values. len(vals) must be a
// multiple of the column count.
func (d *Dataset) AppendFloat64s(vals []float64) error {
	if d.dtype != Float64 {
		return fmt.Errorf("%w: dataset %q holds %v", ErrTypeMismatch, d.name, d.dtype)
	}
	if len(vals)%d.cols != 0 {
		return fmt.Errorf("container: %d values do not fill rows of %d columns", len(vals), d.cols)
	}

	rows := len(vals) / d.cols
	for start := 0; start < rows; start += d.chunkRows {
		n := min(d.chunkRows, rows-start)
		raw := make([]byte, 0, n*d.cols*8)
		for _, v := range vals[start*d.cols : (start+n)*d.cols] {
			raw = binary.LittleEndian.AppendUint64(raw, math.Float64bits(v))
		}
		if err := d.writeChunk(raw, n); err != nil {
			return err
		}
	}
	return nil
}

// AppendInt64s appends rows of int64 values.
func (d *Dataset) AppendInt64s(vals []int64) error {
	if d.dtype != Int64 {
		return fmt.Errorf("%w: dataset %q holds %v", ErrTypeMismatch, d.name, d.dtype)
	}
	if len(vals)%d.cols != 0 {
		return fmt.Errorf("container: %d values do not fill rows of %d columns", len(vals), d.cols)
	}

	rows := len(vals) / d.cols
	for start := 0; start < rows; start += d.chunkRows {
		n := min(d.chunkRows, rows-start)
		raw := make([]byte, 0, n*d.cols*8)
		for _, v := range vals[start*d.cols : (start+n)*d.cols] {
			raw = binary.LittleEndian.AppendUint64(raw, uint64(v))
		}
		if err := d.writeChunk(raw, n); err != nil {
			return err
		}
	}
	return nil
}

// AppendStrings appends rows of strings.
func (d *Dataset) AppendStrings(vals []string) error {
	if d.dtype != String {
		return fmt.Errorf("%w: dataset %q holds %v", ErrTypeMismatch, d.name, d.dtype)
	}

	for start := 0; start < len(vals); start += d.chunkRows {
		n := min(d.chunkRows, len(vals)-start)
		var raw []byte
		for _, s := range vals[start : start+n] {
			raw = appendString(raw, s)
		}
		if err := d.writeChunk(raw, n); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dataset) writeChunk(raw []byte, rows int) error {
	comp, err := compress(d.codec, raw)
	if err != nil {
		return err
	}
	off, err := d.g.f.appendBytes(comp)
	if err != nil {
		return err
	}

	d.chunks = append(d.chunks, chunkRef{
		off:     off,
		compLen: uint32(len(comp)),
		rawLen:  uint32(len(raw)),
		rows:    uint32(rows),
		crc:     crc32.ChecksumIEEE(comp),
	})
	d.cum = append(d.cum, d.cum[len(d.cum)-1]+int64(rows))
	return nil
}

// ReadFloat64s reads rows in [from, to). The result holds (to-from)*cols
// values in row-major order.
func (d *Dataset) ReadFloat64s(from, to int64) ([]float64, error) {
	if d.dtype != Float64 {
		return nil, fmt.Errorf("%w: dataset %q holds %v", ErrTypeMismatch, d.name, d.dtype)
	}
	raw, err := d.readRaw(from, to)
	if err != nil {
		return nil, err
	}
	out := make([]float64, (to-from)*int64(d.cols))
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
	}
	return out, nil
}

// ReadInt64s reads rows in [from, to).
func (d *Dataset) ReadInt64s(from, to int64) ([]int64, error) {
	if d.dtype != Int64 {
		return nil, fmt.Errorf("%w: dataset %q holds %v", ErrTypeMismatch, d.name, d.dtype)
	}
	raw, err := d.readRaw(from, to)
	if err != nil {
		return nil, err
	}
	out := make([]int64, (to-from)*int64(d.cols))
	for i := range out {
		out[i] = int64(binary.LittleEndian.Uint64(raw[i*8:]))
	}
	return out, nil
}

// ReadStrings reads rows in [from, to).
func (d *Dataset) ReadStrings(from, to int64) ([]string, error) {
	if d.dtype != String {
		return nil, fmt.Errorf("%w: dataset %q holds %v", ErrTypeMismatch, d.name, d.dtype)
	}
	if err := d.checkRange(from, to); err != nil {
		return nil, err
	}
	if from == to {
		return nil, nil
	}

	ci0, ci1 := d.locate(from), d.locate(to-1)+1
	raws, err := d.fetchChunks(ci0, ci1)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, to-from)
	for k, raw := range raws {
		row := d.cum[ci0+k]
		r := tocReader{buf: raw}
		for row < d.cum[ci0+k+1] && r.err == nil {
			s := r.string()
			if row >= from && row < to {
				out = append(out, s)
			}
			row++
		}
		if r.err != nil {
			return nil, fmt.Errorf("%w: string chunk: %v", ErrCorrupted, r.err)
		}
	}
	return out, nil
}

// readRaw returns the raw bytes of fixed-width rows in [from, to).
func (d *Dataset) readRaw(from, to int64) ([]byte, error) {
	if err := d.checkRange(from, to); err != nil {
		return nil, err
	}
	rowBytes := int64(d.cols) * 8
	out := make([]byte, (to-from)*rowBytes)
	if from == to {
		return out, nil
	}

	ci0, ci1 := d.locate(from), d.locate(to-1)+1
	raws, err := d.fetchChunks(ci0, ci1)
	if err != nil {
		return nil, err
	}

	for k, raw := range raws {
		cStart, cEnd := d.cum[ci0+k], d.cum[ci0+k+1]
		r0, r1 := max(from, cStart), min(to, cEnd)
		src := raw[(r0-cStart)*rowBytes : (r1-cStart)*rowBytes]
		copy(out[(r0-from)*rowBytes:], src)
	}
	return out, nil
}

func (d *Dataset) checkRange(from, to int64) error {
	if from < 0 || to < from || to > d.Rows() {
		return fmt.Errorf("container: row range [%d, %d) out of bounds (dataset %q has %d rows)",
			from, to, d.name, d.Rows())
	}
	return nil
}

// locate returns the index of the chunk containing the given row.
func (d *Dataset) locate(row int64) int {
	return sort.Search(len(d.chunks), func(i int) bool {
		return d.cum[i+1] > row
	})
}

// fetchChunks reads and decompresses chunks [ci0, ci1). Multi-chunk reads
// decompress concurrently.
func (d *Dataset) fetchChunks(ci0, ci1 int) ([][]byte, error) {
	raws := make([][]byte, ci1-ci0)
	if ci1-ci0 == 1 {
		raw, err := d.readChunk(ci0)
		if err != nil {
			return nil, err
		}
		raws[0] = raw
		return raws, nil
	}

	var eg errgroup.Group
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for i := ci0; i < ci1; i++ {
		i := i
		eg.Go(func() error {
			raw, err := d.readChunk(i)
			if err != nil {
				return err
			}
			raws[i-ci0] = raw
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return raws, nil
}

func (d *Dataset) readChunk(i int) ([]byte, error) {
	c := d.chunks[i]
	comp := make([]byte, c.compLen)
	if _, err := d.g.f.r.ReadAt(comp, c.off); err != nil {
		return nil, fmt.Errorf("reading chunk %d of %q: %w", i, d.name, err)
	}
	if crc32.ChecksumIEEE(comp) != c.crc {
		return nil, fmt.Errorf("%w: chunk %d of %q", ErrCorrupted, i, d.name)
	}
	return decompress(d.codec, comp, int(c.rawLen))
}
