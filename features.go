package featpack

import (
	"fmt"

	"github.com/featpack/featpack/container"
)

// Dataset names inside a group.
const (
	datasetItems  = "items"
	datasetTimes  = "times"
	datasetFeats  = "features"
	datasetIndex  = "index"
	datasetFrames = "frames"
	datasetCoords = "coordinates"
	datasetNnz    = "index_nnz"
)

// Group attribute names.
const (
	attrVersion  = "version"
	attrFormat   = "format"
	attrDim      = "dim"
	attrSparsity = "sparsity"
)

// Storage formats for feature matrices.
const (
	FormatDense  = "dense"
	FormatSparse = "sparse"
)

// Features is the storage-variant interface shared by dense and sparse
// feature sets. A variant is selected once at group creation and validated
// on every append.
type Features interface {
	// Format returns the storage format, dense or sparse.
	Format() string

	// Dim returns the feature dimensionality (columns per frame).
	Dim() int

	// counts returns the number of frames per item.
	counts() []int

	// create allocates the on-disk datasets and returns the number of
	// frames placed in one chunk, which also sizes the times dataset.
	create(g *container.Group, chunkMB float64) (int, error)

	// write appends the buffered rows to the group.
	write(g *container.Group) error

	// checkCompatible verifies this data can extend an existing group.
	checkCompatible(g *container.Group) error
}

// DenseFeatures stores one explicit frames x dim matrix per item.
type DenseFeatures struct {
	dim   int
	items [][][]float64
	rows  []int
}

// NewFeatures validates per-item dense feature matrices. Every matrix must
// share the same column count.
func NewFeatures(perItem [][][]float64) (*DenseFeatures, error) {
	dim, rows, err := validateMatrices(perItem)
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		return nil, fmt.Errorf("%w: features have no columns", ErrValidation)
	}
	return &DenseFeatures{dim: dim, items: perItem, rows: rows}, nil
}

// validateMatrices checks shapes shared by both storage variants: at least
// one item, at least one frame per item, and a constant column count.
func validateMatrices(perItem [][][]float64) (dim int, rows []int, err error) {
	if len(perItem) == 0 {
		return 0, nil, fmt.Errorf("%w: no feature matrices given", ErrValidation)
	}

	dim = -1
	rows = make([]int, len(perItem))
	for i, m := range perItem {
		if len(m) == 0 {
			return 0, nil, fmt.Errorf("%w: item %d has no frames", ErrValidation, i)
		}
		rows[i] = len(m)
		for f, row := range m {
			if dim == -1 {
				dim = len(row)
			}
			if len(row) != dim {
				return 0, nil, fmt.Errorf("%w: item %d frame %d has %d columns, want %d",
					ErrValidation, i, f, len(row), dim)
			}
		}
	}
	return dim, rows, nil
}

// Format returns FormatDense.
func (d *DenseFeatures) Format() string { return FormatDense }

// Dim returns the feature dimensionality.
func (d *DenseFeatures) Dim() int { return d.dim }

func (d *DenseFeatures) counts() []int {
	out := make([]int, len(d.rows))
	copy(out, d.rows)
	return out
}

func (d *DenseFeatures) create(g *container.Group, chunkMB float64) (int, error) {
	chunkRows := rowsPerChunk(d.dim*8, chunkMB)
	if _, err := g.CreateDataset(datasetFeats, container.Float64, d.dim, chunkRows); err != nil {
		return 0, err
	}
	if err := g.SetAttr(attrDim, int64(d.dim)); err != nil {
		return 0, err
	}
	return chunkRows, nil
}

func (d *DenseFeatures) write(g *container.Group) error {
	ds, ok := g.Dataset(datasetFeats)
	if !ok {
		return fmt.Errorf("featpack: group %q has no features dataset", g.Name())
	}

	total := 0
	for _, r := range d.rows {
		total += r
	}
	buf := make([]float64, 0, total*d.dim)
	for _, m := range d.items {
		for _, row := range m {
			buf = append(buf, row...)
		}
	}
	return ds.AppendFloat64s(buf)
}

func (d *DenseFeatures) checkCompatible(g *container.Group) error {
	ds, ok := g.Dataset(datasetFeats)
	if !ok {
		return fmt.Errorf("%w: missing features dataset", ErrNotAppendable)
	}
	if ds.Cols() != d.dim {
		return fmt.Errorf("%w: group stores %d feature columns, new data has %d",
			ErrNotAppendable, ds.Cols(), d.dim)
	}
	if dim, ok := g.AttrInt(attrDim); ok && int(dim) != d.dim {
		return fmt.Errorf("%w: group dim attribute is %d, new data has %d",
			ErrNotAppendable, dim, d.dim)
	}
	return nil
}
