package featpack

import (
	"fmt"
	"sort"

	"github.com/featpack/featpack/container"
)

// Index is the cumulative row-offset table of one group. offsets[i] is the
// total number of rows of items 0..i-1, so item i spans rows
// [offsets[i], offsets[i+1]). An auxiliary name-to-position map resolves
// identifiers; time bounds are then located by binary search inside the
// item's non-decreasing times slice.
//
// An Index can be loaded once with ReadIndex and reused across reads of the
// same group.
type Index struct {
	items   []string
	pos     map[string]int
	offsets []int64 // len = items+1, offsets[0] = 0
	nnz     []int64 // cumulative non-zero counts for sparse groups, else nil
}

func loadIndex(g *container.Group) (*Index, error) {
	itemsDs, ok := g.Dataset(datasetItems)
	if !ok {
		return nil, fmt.Errorf("featpack: group %q has no items dataset", g.Name())
	}
	names, err := itemsDs.ReadStrings(0, itemsDs.Rows())
	if err != nil {
		return nil, err
	}

	idxDs, ok := g.Dataset(datasetIndex)
	if !ok {
		return nil, fmt.Errorf("featpack: group %q has no index dataset", g.Name())
	}
	offsets, err := idxDs.ReadInt64s(0, idxDs.Rows())
	if err != nil {
		return nil, err
	}
	if len(offsets) != len(names)+1 {
		return nil, fmt.Errorf("featpack: group %q index has %d offsets for %d items",
			g.Name(), len(offsets), len(names))
	}

	ix := &Index{
		items:   names,
		pos:     make(map[string]int, len(names)),
		offsets: offsets,
	}
	for i, name := range names {
		ix.pos[name] = i
	}

	if nnzDs, ok := g.Dataset(datasetNnz); ok {
		nnz, err := nnzDs.ReadInt64s(0, nnzDs.Rows())
		if err != nil {
			return nil, err
		}
		if len(nnz) != len(names)+1 {
			return nil, fmt.Errorf("featpack: group %q has %d non-zero offsets for %d items",
				g.Name(), len(nnz), len(names))
		}
		ix.nnz = nnz
	}

	return ix, nil
}

// Len returns the number of indexed items.
func (ix *Index) Len() int {
	return len(ix.items)
}

// Items returns the indexed identifiers in insertion order.
func (ix *Index) Items() []string {
	out := make([]string, len(ix.items))
	copy(out, ix.items)
	return out
}

// TotalRows returns the total row count across all items.
func (ix *Index) TotalRows() int64 {
	return ix.offsets[len(ix.offsets)-1]
}

// Contains reports whether the group stores the given item.
func (ix *Index) Contains(name string) bool {
	_, ok := ix.pos[name]
	return ok
}

func (ix *Index) position(name string) (int, error) {
	p, ok := ix.pos[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrItemNotFound, name)
	}
	return p, nil
}

// rowRange returns the row block [from, to) of the item at position p.
func (ix *Index) rowRange(p int) (int64, int64) {
	return ix.offsets[p], ix.offsets[p+1]
}

// nnzRange returns the triple block of the item at position p in a sparse
// group.
func (ix *Index) nnzRange(p int) (int64, int64) {
	return ix.nnz[p], ix.nnz[p+1]
}

// itemAt returns the position of the item containing the given global row.
func (ix *Index) itemAt(row int64) int {
	return sort.Search(len(ix.items), func(i int) bool {
		return ix.offsets[i+1] > row
	})
}

// resolve maps an inclusive item range to positions. An empty fromItem
// defaults to the first item. An empty toItem defaults to fromItem when
// that was given, and to the last item otherwise.
func (ix *Index) resolve(fromItem, toItem string) (int, int, error) {
	p0, p1 := 0, len(ix.items)-1

	if fromItem != "" {
		p, err := ix.position(fromItem)
		if err != nil {
			return 0, 0, err
		}
		p0 = p
		p1 = p
	}
	if toItem != "" {
		p, err := ix.position(toItem)
		if err != nil {
			return 0, 0, err
		}
		p1 = p
	} else if fromItem == "" {
		p1 = len(ix.items) - 1
	}

	if p1 < p0 {
		return 0, 0, fmt.Errorf("%w: item %q precedes %q in insertion order",
			ErrValidation, toItem, fromItem)
	}
	return p0, p1, nil
}

// createIndex allocates the on-disk offset dataset and seeds it with the
// zero offset.
func createIndex(g *container.Group, chunkMB float64) error {
	d, err := g.CreateDataset(datasetIndex, container.Int64, 1, linesPerChunk(8, chunkMB))
	if err != nil {
		return err
	}
	return d.AppendInt64s([]int64{0})
}

// extendIndex appends one cumulative offset per new item. Prior offsets are
// never modified.
func extendIndex(g *container.Group, counts []int) error {
	d, ok := g.Dataset(datasetIndex)
	if !ok {
		return fmt.Errorf("featpack: group %q has no index dataset", g.Name())
	}

	last, err := lastInt64(d)
	if err != nil {
		return err
	}
	cum := make([]int64, 0, len(counts))
	for _, c := range counts {
		last += int64(c)
		cum = append(cum, last)
	}
	return d.AppendInt64s(cum)
}

// timeSearch returns the frame range [lo, hi) of the rows whose time value
// falls in [from, to]. times is row-major with the given width; bounds
// compare against the first column. Out-of-range bounds clamp to the
// nearest valid frame.
func timeSearch(times []float64, width int, from, to float64, hasFrom, hasTo bool) (int, int) {
	n := len(times) / width
	lo, hi := 0, n
	if hasFrom {
		lo = sort.Search(n, func(r int) bool {
			return times[r*width] >= from
		})
	}
	if hasTo {
		hi = sort.Search(n, func(r int) bool {
			return times[r*width] > to
		})
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}
