package surface

import "fmt"

// Volume is a scalar 3D image on a voxel grid. Data is stored with the
// first axis varying fastest.
type Volume struct {
	Dims   [3]int
	Data   []float64
	Affine Affine
}

// NewVolume allocates a zeroed volume.
func NewVolume(dims [3]int, affine Affine) *Volume {
	return &Volume{
		Dims:   dims,
		Data:   make([]float64, dims[0]*dims[1]*dims[2]),
		Affine: affine,
	}
}

// Validate checks that the data length matches the grid.
func (v *Volume) Validate() error {
	for i, d := range v.Dims {
		if d < 1 {
			return fmt.Errorf("volume axis %d has size %d", i, d)
		}
	}
	if want := v.Dims[0] * v.Dims[1] * v.Dims[2]; len(v.Data) != want {
		return fmt.Errorf("volume holds %d values, grid needs %d", len(v.Data), want)
	}
	return nil
}

func (v *Volume) index(i, j, k int) int {
	return i + v.Dims[0]*(j+v.Dims[1]*k)
}

// At returns the value at a voxel.
func (v *Volume) At(i, j, k int) float64 {
	return v.Data[v.index(i, j, k)]
}

// Set stores a value at a voxel.
func (v *Volume) Set(i, j, k int, value float64) {
	v.Data[v.index(i, j, k)] = value
}
