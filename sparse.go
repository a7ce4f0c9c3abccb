package featpack

import (
	"fmt"

	"github.com/featpack/featpack/container"
)

// SparseFeatures stores only the non-zero cells of each item's matrix as
// parallel (frame, column, value) triples, plus a per-item non-zero count.
// Frame indices are item-local, so appends never depend on earlier rows.
type SparseFeatures struct {
	dim      int
	sparsity float64
	rows     []int

	frames [][]int64
	coords [][]int64
	values [][]float64
}

// NewSparseFeatures converts per-item dense matrices to sparse triples,
// dropping exact zeros. sparsity is the expected fraction of non-zero
// entries per frame; it only tunes on-disk chunk sizes, never the stored
// content. A frame with no non-zero entries still counts as a row.
func NewSparseFeatures(perItem [][][]float64, sparsity float64) (*SparseFeatures, error) {
	dim, rows, err := validateMatrices(perItem)
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		// A zero-column frame has no (column, value) representation.
		return nil, fmt.Errorf("%w: matrices have no columns", ErrSparseUnsupported)
	}
	if sparsity <= 0 || sparsity > 1 {
		return nil, fmt.Errorf("%w: sparsity %v outside (0, 1]", ErrValidation, sparsity)
	}

	s := &SparseFeatures{
		dim:      dim,
		sparsity: sparsity,
		rows:     rows,
		frames:   make([][]int64, len(perItem)),
		coords:   make([][]int64, len(perItem)),
		values:   make([][]float64, len(perItem)),
	}
	for i, m := range perItem {
		for f, row := range m {
			for j, v := range row {
				if v == 0 {
					continue
				}
				s.frames[i] = append(s.frames[i], int64(f))
				s.coords[i] = append(s.coords[i], int64(j))
				s.values[i] = append(s.values[i], v)
			}
		}
	}
	return s, nil
}

// Format returns FormatSparse.
func (s *SparseFeatures) Format() string { return FormatSparse }

// Dim returns the feature dimensionality.
func (s *SparseFeatures) Dim() int { return s.dim }

func (s *SparseFeatures) counts() []int {
	out := make([]int, len(s.rows))
	copy(out, s.rows)
	return out
}

// nnz returns the non-zero count per item.
func (s *SparseFeatures) nnz() []int {
	out := make([]int, len(s.values))
	for i, v := range s.values {
		out[i] = len(v)
	}
	return out
}

func (s *SparseFeatures) create(g *container.Group, chunkMB float64) (int, error) {
	// One triple costs 24 bytes across the three datasets.
	tripleRows := rowsPerChunk(24, chunkMB)

	for _, ds := range []struct {
		name  string
		dtype container.DType
	}{
		{datasetFeats, container.Float64},
		{datasetCoords, container.Int64},
		{datasetFrames, container.Int64},
	} {
		if _, err := g.CreateDataset(ds.name, ds.dtype, 1, tripleRows); err != nil {
			return 0, err
		}
	}

	nnzDs, err := g.CreateDataset(datasetNnz, container.Int64, 1, linesPerChunk(8, chunkMB))
	if err != nil {
		return 0, err
	}
	if err := nnzDs.AppendInt64s([]int64{0}); err != nil {
		return 0, err
	}

	if err := g.SetAttr(attrDim, int64(s.dim)); err != nil {
		return 0, err
	}
	if err := g.SetAttr(attrSparsity, s.sparsity); err != nil {
		return 0, err
	}

	// The times dataset shares chunk granularity with the features; with
	// sparsity*dim expected entries per frame, a chunk of triples covers
	// this many frames.
	perFrame := s.sparsity * float64(s.dim)
	if perFrame < 1 {
		perFrame = 1
	}
	return max(int(float64(tripleRows)/perFrame), minLineRows), nil
}

func (s *SparseFeatures) write(g *container.Group) error {
	valDs, ok := g.Dataset(datasetFeats)
	if !ok {
		return fmt.Errorf("featpack: group %q has no features dataset", g.Name())
	}
	coordDs, ok := g.Dataset(datasetCoords)
	if !ok {
		return fmt.Errorf("featpack: group %q has no coordinates dataset", g.Name())
	}
	frameDs, ok := g.Dataset(datasetFrames)
	if !ok {
		return fmt.Errorf("featpack: group %q has no frames dataset", g.Name())
	}
	nnzDs, ok := g.Dataset(datasetNnz)
	if !ok {
		return fmt.Errorf("featpack: group %q has no %s dataset", g.Name(), datasetNnz)
	}

	// Extend the cumulative non-zero counts first, mirroring the main
	// index: offset[i] = total non-zeros of all items before i.
	last, err := lastInt64(nnzDs)
	if err != nil {
		return err
	}
	cum := make([]int64, 0, len(s.values))
	for _, v := range s.values {
		last += int64(len(v))
		cum = append(cum, last)
	}
	if err := nnzDs.AppendInt64s(cum); err != nil {
		return err
	}

	for i := range s.values {
		if len(s.values[i]) == 0 {
			continue
		}
		if err := valDs.AppendFloat64s(s.values[i]); err != nil {
			return err
		}
		if err := coordDs.AppendInt64s(s.coords[i]); err != nil {
			return err
		}
		if err := frameDs.AppendInt64s(s.frames[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *SparseFeatures) checkCompatible(g *container.Group) error {
	for _, name := range []string{datasetFeats, datasetFrames, datasetCoords, datasetNnz} {
		if !g.HasDataset(name) {
			return fmt.Errorf("%w: missing %s dataset", ErrNotAppendable, name)
		}
	}
	if dim, ok := g.AttrInt(attrDim); ok && int(dim) != s.dim {
		return fmt.Errorf("%w: group dim attribute is %d, new data has %d",
			ErrNotAppendable, dim, s.dim)
	}
	return nil
}

// lastInt64 reads the final value of a cumulative int64 dataset.
func lastInt64(d *container.Dataset) (int64, error) {
	n := d.Rows()
	if n == 0 {
		return 0, nil
	}
	vals, err := d.ReadInt64s(n-1, n)
	if err != nil {
		return 0, err
	}
	return vals[0], nil
}
