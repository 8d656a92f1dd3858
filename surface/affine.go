package surface

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Affine is a 4x4 voxel-to-physical transform, row major.
type Affine [4][4]float64

// Identity returns the identity transform.
func Identity() Affine {
	return Affine{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}, {0, 0, 0, 1}}
}

// Scaled returns a diagonal transform with the given voxel sizes and origin.
func Scaled(size, origin [3]float64) Affine {
	return Affine{
		{size[0], 0, 0, origin[0]},
		{0, size[1], 0, origin[1]},
		{0, 0, size[2], origin[2]},
		{0, 0, 0, 1},
	}
}

func (a Affine) dense() *mat.Dense {
	data := make([]float64, 0, 16)
	for _, row := range a {
		data = append(data, row[:]...)
	}
	return mat.NewDense(4, 4, data)
}

// Inverse returns the physical-to-voxel transform.
func (a Affine) Inverse() (Affine, error) {
	var inv mat.Dense
	if err := inv.Inverse(a.dense()); err != nil {
		return Affine{}, fmt.Errorf("affine is not invertible: %w", err)
	}
	var out Affine
	for i := range 4 {
		for j := range 4 {
			out[i][j] = inv.At(i, j)
		}
	}
	return out, nil
}

// Apply transforms a point.
func (a Affine) Apply(p [3]float64) [3]float64 {
	var out [3]float64
	for i := range 3 {
		out[i] = a[i][0]*p[0] + a[i][1]*p[1] + a[i][2]*p[2] + a[i][3]
	}
	return out
}

// VoxelSize returns the physical length of one voxel step along each axis,
// the norms of the linear part's columns.
func (a Affine) VoxelSize() [3]float64 {
	m := a.dense()
	var out [3]float64
	for j := range 3 {
		col := mat.Col(nil, j, m.Slice(0, 3, 0, 3))
		out[j] = floats.Norm(col, 2)
	}
	return out
}
