package featpack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIndex(names []string, counts []int64) *Index {
	ix := &Index{
		items:   names,
		pos:     make(map[string]int, len(names)),
		offsets: make([]int64, 1, len(names)+1),
	}
	for i, name := range names {
		ix.pos[name] = i
		ix.offsets = append(ix.offsets, ix.offsets[i]+counts[i])
	}
	return ix
}

func TestIndexLookups(t *testing.T) {
	ix := testIndex([]string{"a", "b", "c"}, []int64{3, 2, 4})

	assert.Equal(t, 3, ix.Len())
	assert.Equal(t, []string{"a", "b", "c"}, ix.Items())
	assert.Equal(t, int64(9), ix.TotalRows())
	assert.True(t, ix.Contains("b"))
	assert.False(t, ix.Contains("z"))

	from, to := ix.rowRange(1)
	assert.Equal(t, int64(3), from)
	assert.Equal(t, int64(5), to)

	assert.Equal(t, 0, ix.itemAt(0))
	assert.Equal(t, 0, ix.itemAt(2))
	assert.Equal(t, 1, ix.itemAt(3))
	assert.Equal(t, 2, ix.itemAt(8))
}

func TestIndexResolve(t *testing.T) {
	ix := testIndex([]string{"a", "b", "c"}, []int64{1, 1, 1})

	// No bounds: everything.
	p0, p1, err := ix.resolve("", "")
	require.NoError(t, err)
	assert.Equal(t, 0, p0)
	assert.Equal(t, 2, p1)

	// Only fromItem: that single item.
	p0, p1, err = ix.resolve("b", "")
	require.NoError(t, err)
	assert.Equal(t, 1, p0)
	assert.Equal(t, 1, p1)

	// Only toItem: from the start up to it.
	p0, p1, err = ix.resolve("", "b")
	require.NoError(t, err)
	assert.Equal(t, 0, p0)
	assert.Equal(t, 1, p1)

	// Both bounds, inclusive.
	p0, p1, err = ix.resolve("a", "c")
	require.NoError(t, err)
	assert.Equal(t, 0, p0)
	assert.Equal(t, 2, p1)

	_, _, err = ix.resolve("z", "")
	assert.ErrorIs(t, err, ErrItemNotFound)

	_, _, err = ix.resolve("", "z")
	assert.ErrorIs(t, err, ErrItemNotFound)

	// Reversed order is a caller error.
	_, _, err = ix.resolve("c", "a")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestTimeSearch(t *testing.T) {
	times := []float64{0, 1, 2, 3, 4}

	lo, hi := timeSearch(times, 1, 0, 0, false, false)
	assert.Equal(t, 0, lo)
	assert.Equal(t, 5, hi)

	// Inclusive bounds on both sides: frames 1..3.
	lo, hi = timeSearch(times, 1, 1, 3, true, true)
	assert.Equal(t, 1, lo)
	assert.Equal(t, 4, hi)

	// Bounds between values: frames 1..2.
	lo, hi = timeSearch(times, 1, 0.5, 2.5, true, true)
	assert.Equal(t, 1, lo)
	assert.Equal(t, 3, hi)

	// Out-of-range bounds clamp.
	lo, hi = timeSearch(times, 1, -10, 100, true, true)
	assert.Equal(t, 0, lo)
	assert.Equal(t, 5, hi)

	// An empty window yields no frames.
	lo, hi = timeSearch(times, 1, 2.2, 2.4, true, true)
	assert.Equal(t, hi, lo)
}

func TestTimeSearchWidthTwo(t *testing.T) {
	// Window pairs; bounds compare against the start column.
	times := []float64{0, 1, 1, 2, 2, 3}

	lo, hi := timeSearch(times, 2, 1, 1, true, true)
	assert.Equal(t, 1, lo)
	assert.Equal(t, 2, hi)

	lo, hi = timeSearch(times, 2, 0, 2, true, true)
	assert.Equal(t, 0, lo)
	assert.Equal(t, 3, hi)
}
