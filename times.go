package featpack

import (
	"fmt"

	"github.com/featpack/featpack/container"
)

// Times holds per-item timestamps, one row per frame. Width 1 stores a
// single center value per frame; width 2 stores [start, end] window pairs.
// Values must be non-decreasing within an item.
type Times struct {
	width  int
	arrays [][]float64 // per item, row-major, len = frames*width
}

// NewTimes validates per-item time arrays. Each array is row-major with
// the given width (1 or 2).
func NewTimes(width int, perItem [][]float64) (*Times, error) {
	if width != 1 && width != 2 {
		return nil, fmt.Errorf("%w: times must have 1 or 2 columns, got %d", ErrValidation, width)
	}
	if len(perItem) == 0 {
		return nil, fmt.Errorf("%w: no time arrays given", ErrValidation)
	}

	for i, arr := range perItem {
		if len(arr) == 0 {
			return nil, fmt.Errorf("%w: item %d has no frames", ErrValidation, i)
		}
		if len(arr)%width != 0 {
			return nil, fmt.Errorf("%w: item %d times length %d is not a multiple of width %d",
				ErrValidation, i, len(arr), width)
		}
		frames := len(arr) / width
		for f := 1; f < frames; f++ {
			for c := 0; c < width; c++ {
				if arr[f*width+c] < arr[(f-1)*width+c] {
					return nil, fmt.Errorf("%w: item %d times are not sorted in increasing order",
						ErrValidation, i)
				}
			}
		}
	}

	return &Times{width: width, arrays: perItem}, nil
}

// Width returns the number of time columns per frame.
func (t *Times) Width() int {
	return t.width
}

// counts returns the number of frames per item.
func (t *Times) counts() []int {
	out := make([]int, len(t.arrays))
	for i, arr := range t.arrays {
		out[i] = len(arr) / t.width
	}
	return out
}

func (t *Times) create(g *container.Group, chunkRows int) error {
	_, err := g.CreateDataset(datasetTimes, container.Float64, t.width, chunkRows)
	return err
}

func (t *Times) write(g *container.Group) error {
	d, ok := g.Dataset(datasetTimes)
	if !ok {
		return fmt.Errorf("featpack: group %q has no times dataset", g.Name())
	}

	total := 0
	for _, arr := range t.arrays {
		total += len(arr)
	}
	buf := make([]float64, 0, total)
	for _, arr := range t.arrays {
		buf = append(buf, arr...)
	}
	return d.AppendFloat64s(buf)
}
