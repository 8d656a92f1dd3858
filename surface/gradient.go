package surface

import "math"

// Field is a vector field on a voxel grid, one component slice per axis.
// Read-only after construction and shared by all descent workers.
type Field struct {
	dims [3]int
	comp [3][]float64
}

// DescentField computes the gradient of the negated volume once over the
// whole grid. Interior samples use central differences and boundary samples
// one-sided differences; an axis of size 1 has zero gradient.
func DescentField(v *Volume) *Field {
	f := &Field{dims: v.Dims}
	n := len(v.Data)
	for axis := range 3 {
		f.comp[axis] = make([]float64, n)
	}

	nx, ny, nz := v.Dims[0], v.Dims[1], v.Dims[2]
	for k := range nz {
		for j := range ny {
			for i := range nx {
				idx := v.index(i, j, k)
				f.comp[0][idx] = -diff(nx, i, func(t int) float64 { return v.At(t, j, k) })
				f.comp[1][idx] = -diff(ny, j, func(t int) float64 { return v.At(i, t, k) })
				f.comp[2][idx] = -diff(nz, k, func(t int) float64 { return v.At(i, j, t) })
			}
		}
	}
	return f
}

// diff is the unit-spacing derivative along one axis at position t.
func diff(size, t int, at func(int) float64) float64 {
	switch {
	case size < 2:
		return 0
	case t == 0:
		return at(1) - at(0)
	case t == size-1:
		return at(t) - at(t-1)
	default:
		return (at(t+1) - at(t-1)) / 2
	}
}

// At returns the field vector at a voxel.
func (f *Field) At(i, j, k int) [3]float64 {
	idx := i + f.dims[0]*(j+f.dims[1]*k)
	return [3]float64{f.comp[0][idx], f.comp[1][idx], f.comp[2][idx]}
}

// Sample trilinearly interpolates the field at a continuous voxel position.
// Positions outside the grid are clamped to its edge.
func (f *Field) Sample(p [3]float64) [3]float64 {
	var lo, hi [3]int
	var w [3]float64
	for a := range 3 {
		x := clamp(p[a], 0, float64(f.dims[a]-1))
		l := int(math.Floor(x))
		if l >= f.dims[a]-1 {
			l = max(f.dims[a]-2, 0)
		}
		lo[a] = l
		hi[a] = min(l+1, f.dims[a]-1)
		w[a] = x - float64(l)
	}

	var out [3]float64
	for _, c := range [8][3]int{
		{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0},
		{0, 0, 1}, {1, 0, 1}, {0, 1, 1}, {1, 1, 1},
	} {
		weight := 1.0
		var idx [3]int
		for a := range 3 {
			if c[a] == 0 {
				idx[a] = lo[a]
				weight *= 1 - w[a]
			} else {
				idx[a] = hi[a]
				weight *= w[a]
			}
		}
		if weight == 0 {
			continue
		}
		g := f.At(idx[0], idx[1], idx[2])
		for a := range 3 {
			out[a] += weight * g[a]
		}
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
