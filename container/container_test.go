package container

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.fpk")

	f, err := Create(path)
	require.NoError(t, err)

	g, err := f.CreateGroup("mfcc")
	require.NoError(t, err)
	require.NoError(t, g.SetAttr("version", "1.1"))
	require.NoError(t, g.SetAttr("dim", int64(13)))
	require.NoError(t, g.SetAttr("sparsity", 0.25))

	d, err := g.CreateDataset("features", Float64, 2, 4)
	require.NoError(t, err)
	require.NoError(t, d.AppendFloat64s([]float64{1, 2, 3, 4, 5, 6}))
	require.NoError(t, f.Close())

	f, err = Open(path)
	require.NoError(t, err)
	defer f.Close()

	g, ok := f.Group("mfcc")
	require.True(t, ok)

	s, ok := g.AttrString("version")
	require.True(t, ok)
	assert.Equal(t, "1.1", s)

	i, ok := g.AttrInt("dim")
	require.True(t, ok)
	assert.Equal(t, int64(13), i)

	fv, ok := g.AttrFloat("sparsity")
	require.True(t, ok)
	assert.Equal(t, 0.25, fv)

	d, ok = g.Dataset("features")
	require.True(t, ok)
	assert.Equal(t, int64(3), d.Rows())
	assert.Equal(t, 2, d.Cols())

	vals, err := d.ReadFloat64s(0, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, vals)
}

func TestReopenAndAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.fpk")

	f, err := Create(path)
	require.NoError(t, err)
	g, err := f.CreateGroup("g")
	require.NoError(t, err)
	d, err := g.CreateDataset("v", Int64, 1, 3)
	require.NoError(t, err)
	require.NoError(t, d.AppendInt64s([]int64{1, 2, 3, 4}))
	require.NoError(t, f.Close())

	f, err = OpenReadWrite(path)
	require.NoError(t, err)
	g, ok := f.Group("g")
	require.True(t, ok)
	d, ok = g.Dataset("v")
	require.True(t, ok)
	require.NoError(t, d.AppendInt64s([]int64{5, 6}))
	require.NoError(t, f.Close())

	f, err = Open(path)
	require.NoError(t, err)
	defer f.Close()
	g, _ = f.Group("g")
	d, _ = g.Dataset("v")
	vals, err := d.ReadInt64s(0, 6)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, vals)
}

func TestAbortKeepsPreviousState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.fpk")

	f, err := Create(path)
	require.NoError(t, err)
	g, err := f.CreateGroup("g")
	require.NoError(t, err)
	d, err := g.CreateDataset("v", Int64, 1, 8)
	require.NoError(t, err)
	require.NoError(t, d.AppendInt64s([]int64{1, 2}))
	require.NoError(t, f.Close())

	// Append more data and a second group, then abort instead of closing.
	f, err = OpenReadWrite(path)
	require.NoError(t, err)
	g, _ = f.Group("g")
	d, _ = g.Dataset("v")
	require.NoError(t, d.AppendInt64s([]int64{3, 4}))
	_, err = f.CreateGroup("orphan")
	require.NoError(t, err)
	require.NoError(t, f.Abort())

	f, err = Open(path)
	require.NoError(t, err)
	defer f.Close()

	_, ok := f.Group("orphan")
	assert.False(t, ok)

	g, _ = f.Group("g")
	d, _ = g.Dataset("v")
	assert.Equal(t, int64(2), d.Rows())
	vals, err := d.ReadInt64s(0, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, vals)
}

func TestAppendAfterReopenPreservesLiveTOC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.fpk")

	f, err := Create(path)
	require.NoError(t, err)
	g, err := f.CreateGroup("g")
	require.NoError(t, err)
	d, err := g.CreateDataset("v", Int64, 1, 8)
	require.NoError(t, err)
	require.NoError(t, d.AppendInt64s([]int64{1, 2}))
	require.NoError(t, f.Close())

	// Append in a new session and snapshot the file before any flush, as
	// a crash at that moment would leave it. The header still references
	// the previous TOC, which the appended chunks must not have touched.
	f, err = OpenReadWrite(path)
	require.NoError(t, err)
	g, _ = f.Group("g")
	d, _ = g.Dataset("v")
	require.NoError(t, d.AppendInt64s([]int64{3, 4, 5}))

	crashImage, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, f.Abort())

	snap, err := OpenReaderAt(readerAt{crashImage})
	require.NoError(t, err)
	g, _ = snap.Group("g")
	d, _ = g.Dataset("v")
	assert.Equal(t, int64(2), d.Rows())
	vals, err := d.ReadInt64s(0, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, vals)
	require.NoError(t, snap.Close())

	// The aborted session left the on-disk file in the same state.
	f, err = Open(path)
	require.NoError(t, err)
	defer f.Close()
	g, _ = f.Group("g")
	d, _ = g.Dataset("v")
	assert.Equal(t, int64(2), d.Rows())
}

func TestRepeatedAppendSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.fpk")

	f, err := Create(path)
	require.NoError(t, err)
	g, err := f.CreateGroup("g")
	require.NoError(t, err)
	_, err = g.CreateDataset("v", Int64, 1, 4)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	want := []int64{}
	for i := int64(0); i < 5; i++ {
		f, err = OpenReadWrite(path)
		require.NoError(t, err)
		g, _ := f.Group("g")
		d, _ := g.Dataset("v")
		require.NoError(t, d.AppendInt64s([]int64{i * 2, i*2 + 1}))
		require.NoError(t, f.Close())
		want = append(want, i*2, i*2+1)
	}

	f, err = Open(path)
	require.NoError(t, err)
	defer f.Close()
	g, _ = f.Group("g")
	d, _ := g.Dataset("v")
	vals, err := d.ReadInt64s(0, d.Rows())
	require.NoError(t, err)
	assert.Equal(t, want, vals)
}

func TestOpenReadWriteCodecOption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.fpk")

	f, err := Create(path, WithCodec(CodecLZ4))
	require.NoError(t, err)
	g, err := f.CreateGroup("g")
	require.NoError(t, err)
	d, err := g.CreateDataset("d1", Float64, 1, 8)
	require.NoError(t, err)
	require.NoError(t, d.AppendFloat64s([]float64{1, 2}))
	require.NoError(t, f.Close())

	f, err = OpenReadWrite(path, WithCodec(CodecLZ4))
	require.NoError(t, err)
	g, _ = f.Group("g")

	// Existing datasets keep their codec; new ones take the session's.
	d, _ = g.Dataset("d1")
	assert.Equal(t, CodecLZ4, d.codec)
	d2, err := g.CreateDataset("d2", Float64, 1, 8)
	require.NoError(t, err)
	assert.Equal(t, CodecLZ4, d2.codec)
	require.NoError(t, d2.AppendFloat64s([]float64{3, 4}))
	require.NoError(t, f.Close())

	f, err = Open(path)
	require.NoError(t, err)
	defer f.Close()
	g, _ = f.Group("g")
	d2, _ = g.Dataset("d2")
	vals, err := d2.ReadFloat64s(0, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4}, vals)
}

func TestOpenNotAContainer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a container file, but long enough for a header read"), 0o644))

	_, err := Open(path)
	assert.ErrorIs(t, err, ErrNotContainer)
}

func TestReadOnlyRejectsMutation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.fpk")

	f, err := Create(path)
	require.NoError(t, err)
	g, err := f.CreateGroup("g")
	require.NoError(t, err)
	_, err = g.CreateDataset("v", Float64, 1, 8)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f, err = Open(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.CreateGroup("other")
	assert.ErrorIs(t, err, ErrReadOnly)

	g, _ = f.Group("g")
	assert.ErrorIs(t, g.SetAttr("a", "b"), ErrReadOnly)

	d, _ := g.Dataset("v")
	assert.ErrorIs(t, d.AppendFloat64s([]float64{1}), ErrReadOnly)
}

func TestOpenReaderAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.fpk")

	f, err := Create(path)
	require.NoError(t, err)
	g, err := f.CreateGroup("g")
	require.NoError(t, err)
	d, err := g.CreateDataset("v", Float64, 1, 8)
	require.NoError(t, err)
	require.NoError(t, d.AppendFloat64s([]float64{7, 8, 9}))
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	f, err = OpenReaderAt(readerAt{data})
	require.NoError(t, err)
	defer f.Close()

	g, ok := f.Group("g")
	require.True(t, ok)
	d, _ = g.Dataset("v")
	vals, err := d.ReadFloat64s(1, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{8, 9}, vals)
}

func TestGroupNameValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.fpk")

	f, err := Create(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.CreateGroup("")
	assert.Error(t, err)

	_, err = f.CreateGroup("g")
	require.NoError(t, err)
	_, err = f.CreateGroup("g")
	assert.Error(t, err)

	assert.Equal(t, []string{"g"}, f.Groups())
}
