package container

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDataset(t *testing.T, dtype DType, cols, chunkRows int, opts ...Option) (*File, *Dataset) {
	t.Helper()

	f, err := Create(filepath.Join(t.TempDir(), "c.fpk"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	g, err := f.CreateGroup("g")
	require.NoError(t, err)
	d, err := g.CreateDataset("d", dtype, cols, chunkRows)
	require.NoError(t, err)
	return f, d
}

func TestDatasetMultiChunkFloat64(t *testing.T) {
	_, d := newTestDataset(t, Float64, 2, 3)

	// 10 rows across 4 chunks (3+3+3+1).
	vals := make([]float64, 20)
	for i := range vals {
		vals[i] = float64(i)
	}
	require.NoError(t, d.AppendFloat64s(vals))
	assert.Equal(t, int64(10), d.Rows())

	got, err := d.ReadFloat64s(0, 10)
	require.NoError(t, err)
	assert.Equal(t, vals, got)

	// A range crossing a chunk boundary.
	got, err = d.ReadFloat64s(2, 5)
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 5, 6, 7, 8, 9}, got)

	// A range inside one chunk.
	got, err = d.ReadFloat64s(7, 8)
	require.NoError(t, err)
	assert.Equal(t, []float64{14, 15}, got)
}

func TestDatasetAppendGrowsChunks(t *testing.T) {
	_, d := newTestDataset(t, Int64, 1, 4)

	require.NoError(t, d.AppendInt64s([]int64{0, 1, 2}))
	require.NoError(t, d.AppendInt64s([]int64{3, 4, 5, 6, 7, 8}))
	assert.Equal(t, int64(9), d.Rows())

	got, err := d.ReadInt64s(0, 9)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8}, got)
}

func TestDatasetStrings(t *testing.T) {
	_, d := newTestDataset(t, String, 1, 2)

	names := []string{"s01", "s02-with-longer-name", "s03", "", "s05"}
	require.NoError(t, d.AppendStrings(names))
	assert.Equal(t, int64(5), d.Rows())

	got, err := d.ReadStrings(0, 5)
	require.NoError(t, err)
	assert.Equal(t, names, got)

	got, err = d.ReadStrings(1, 4)
	require.NoError(t, err)
	assert.Equal(t, names[1:4], got)
}

func TestDatasetRangeErrors(t *testing.T) {
	_, d := newTestDataset(t, Float64, 1, 4)
	require.NoError(t, d.AppendFloat64s([]float64{1, 2, 3}))

	_, err := d.ReadFloat64s(-1, 2)
	assert.Error(t, err)
	_, err = d.ReadFloat64s(2, 1)
	assert.Error(t, err)
	_, err = d.ReadFloat64s(0, 4)
	assert.Error(t, err)

	got, err := d.ReadFloat64s(2, 2)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDatasetTypeMismatch(t *testing.T) {
	_, d := newTestDataset(t, Float64, 1, 4)

	assert.ErrorIs(t, d.AppendInt64s([]int64{1}), ErrTypeMismatch)
	assert.ErrorIs(t, d.AppendStrings([]string{"x"}), ErrTypeMismatch)
	_, err := d.ReadInt64s(0, 0)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestDatasetRaggedAppend(t *testing.T) {
	_, d := newTestDataset(t, Float64, 3, 4)

	// 4 values cannot fill rows of 3 columns.
	assert.Error(t, d.AppendFloat64s([]float64{1, 2, 3, 4}))
}

func TestDatasetCodecs(t *testing.T) {
	for _, codec := range []Codec{CodecNone, CodecZstd, CodecLZ4} {
		t.Run(fmt.Sprintf("codec-%d", codec), func(t *testing.T) {
			f, d := newTestDataset(t, Float64, 1, 5, WithCodec(codec))

			vals := make([]float64, 23)
			for i := range vals {
				vals[i] = float64(i) * 0.5
			}
			require.NoError(t, d.AppendFloat64s(vals))
			require.NoError(t, f.Flush())

			got, err := d.ReadFloat64s(0, 23)
			require.NoError(t, err)
			assert.Equal(t, vals, got)
		})
	}
}

func TestDatasetPersistedAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.fpk")

	f, err := Create(path)
	require.NoError(t, err)
	g, err := f.CreateGroup("g")
	require.NoError(t, err)
	d, err := g.CreateDataset("d", String, 1, 3)
	require.NoError(t, err)
	require.NoError(t, d.AppendStrings([]string{"a", "b", "c", "d", "e"}))
	require.NoError(t, f.Close())

	f, err = Open(path)
	require.NoError(t, err)
	defer f.Close()

	g, _ = f.Group("g")
	d, ok := g.Dataset("d")
	require.True(t, ok)
	assert.Equal(t, String, d.Type())
	assert.Equal(t, 3, d.ChunkRows())

	got, err := d.ReadStrings(3, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "e"}, got)
}
