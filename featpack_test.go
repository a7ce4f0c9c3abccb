package featpack

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/featpack/featpack/blobstore"
)

func TestWriteUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.fpk")

	err := Write(path, "g",
		[]string{"s01"},
		[][]float64{{0}},
		[][][]float64{{{1}}},
		WithFormat("columnar"),
	)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSparseRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.fpk")

	feats := [][][]float64{
		{
			{0, 1.5, 0, 0},
			{0, 0, 0, 0}, // all-zero frame must survive
			{2.5, 0, 0, 3.5},
		},
		{
			{0, 0, 4.5, 0},
		},
	}
	require.NoError(t, Write(path, "g",
		[]string{"s01", "s02"},
		[][]float64{{0, 1, 2}, {0}},
		feats,
		WithFormat(FormatSparse),
		WithSparsity(0.25),
	))

	res, err := Read(path, "g")
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, feats[0], res.Items[0].Features)
	assert.Equal(t, feats[1], res.Items[1].Features)
}

func TestSparseAppendAndSlice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.fpk")

	write := func(item string, times []float64, feats [][]float64) error {
		return Write(path, "g",
			[]string{item},
			[][]float64{times},
			[][][]float64{feats},
			WithFormat(FormatSparse),
			WithSparsity(0.5),
		)
	}
	require.NoError(t, write("s01", []float64{0, 1, 2}, [][]float64{
		{1, 0}, {0, 2}, {3, 0},
	}))
	require.NoError(t, write("s02", []float64{0, 1}, [][]float64{
		{0, 0}, {4, 0},
	}))

	// Time slicing works on sparse groups through the same index.
	res, err := Read(path, "g", FromItem("s01"), FromTime(1), ToTime(2))
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, [][]float64{{0, 2}, {3, 0}}, res.Items[0].Features)

	res, err = Read(path, "g", FromItem("s02"))
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0, 0}, {4, 0}}, res.Items[0].Features)
}

func TestSimpleWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.fpk")

	require.NoError(t, SimpleWrite(path, "g",
		[]float64{0, 0.5, 1},
		[][]float64{{1, 2}, {3, 4}, {5, 6}},
	))

	res, err := Read(path, "g")
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "item", res.Items[0].Name)
	assert.Equal(t, [][]float64{{0}, {0.5}, {1}}, res.Items[0].Times)
	assert.Equal(t, [][]float64{{1, 2}, {3, 4}, {5, 6}}, res.Items[0].Features)
}

func TestSimpleWriteCustomItemName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.fpk")

	require.NoError(t, SimpleWrite(path, "g",
		[]float64{0},
		[][]float64{{1}},
		WithItemName("utt-42"),
	))

	res, err := Read(path, "g")
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "utt-42", res.Items[0].Name)
}

func TestReadStoreLocal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.fpk")
	require.NoError(t, Write(path, "g",
		[]string{"s01"},
		[][]float64{{0, 1}},
		[][][]float64{{{1, 2}, {3, 4}}},
	))

	store := blobstore.NewLocalStore(dir)
	res, err := ReadStore(context.Background(), store, "f.fpk", "g")
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, [][]float64{{1, 2}, {3, 4}}, res.Items[0].Features)
}

func TestReadStoreMemoryWithCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.fpk")
	require.NoError(t, Write(path, "g",
		[]string{"s01", "s02"},
		[][]float64{{0, 1}, {2}},
		[][][]float64{{{1}, {2}}, {{3}}},
	))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	ctx := context.Background()
	mem := blobstore.NewMemoryStore()
	require.NoError(t, mem.Put(ctx, "f.fpk", data))

	store := blobstore.NewCachingStore(mem, blobstore.CachingConfig{BlockSize: 1024})

	res, err := ReadStore(ctx, store, "f.fpk", "g", FromItem("s02"))
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, [][]float64{{3}}, res.Items[0].Features)
}

func TestReadStoreNotFound(t *testing.T) {
	store := blobstore.NewMemoryStore()
	_, err := ReadStore(context.Background(), store, "missing.fpk", "g")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
