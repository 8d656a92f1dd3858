package surface

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

const tolerance = 1e-9

// linearField builds an n^3 signed distance volume that grows along z,
// zero on the physical plane z = zeroMm.
func linearField(n int, affine Affine, zeroMm float64) *Volume {
	v := NewVolume([3]int{n, n, n}, affine)
	for k := range n {
		for j := range n {
			for i := range n {
				p := affine.Apply([3]float64{float64(i), float64(j), float64(k)})
				v.Set(i, j, k, p[2]-zeroMm)
			}
		}
	}
	return v
}

// planarMesh is a 3x3 vertex grid at height z, triangulated.
func planarMesh(origin [3]float64, spacing, z float64) *Mesh {
	m := &Mesh{}
	for y := range 3 {
		for x := range 3 {
			m.Vertices = append(m.Vertices, [3]float64{
				origin[0] + float64(x)*spacing,
				origin[1] + float64(y)*spacing,
				z,
			})
		}
	}
	for y := range 2 {
		for x := range 2 {
			i := int32(y*3 + x)
			m.Triangles = append(m.Triangles, [3]int32{i, i + 1, i + 3}, [3]int32{i + 1, i + 4, i + 3})
		}
	}
	return m
}

func TestShrink_PlanarSurfaceMovesDistance(t *testing.T) {
	tests := []struct {
		name     string
		affine   Affine
		origin   [3]float64
		spacing  float64
		z        float64
		distance float64
	}{
		{
			name:     "identity affine",
			affine:   Identity(),
			origin:   [3]float64{3, 3, 0},
			spacing:  1,
			z:        5,
			distance: 2,
		},
		{
			name:     "2mm voxels with offset",
			affine:   Scaled([3]float64{2, 2, 2}, [3]float64{-10, -10, -10}),
			origin:   [3]float64{-4, -4, 0},
			spacing:  2,
			z:        0,
			distance: 3,
		},
		{
			name:     "partial last step",
			affine:   Identity(),
			origin:   [3]float64{3, 3, 0},
			spacing:  1,
			z:        6,
			distance: 0.35,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mesh := planarMesh(tt.origin, tt.spacing, tt.z)
			sdf := linearField(12, tt.affine, tt.z)

			out, report, err := Shrink(t.Context(), mesh, sdf, Options{DistanceMm: tt.distance, Workers: 2})
			if err != nil {
				t.Fatalf("Shrink: %v", err)
			}

			if len(out.Vertices) != len(mesh.Vertices) {
				t.Fatalf("vertex count %d, want %d", len(out.Vertices), len(mesh.Vertices))
			}
			if !slices.Equal(out.Triangles, mesh.Triangles) {
				t.Fatal("triangles changed")
			}
			if len(report.Frozen) != 0 {
				t.Errorf("unexpected frozen vertices %v", report.Frozen)
			}

			for i, v := range out.Vertices {
				orig := mesh.Vertices[i]
				if math.Abs(v[0]-orig[0]) > tolerance || math.Abs(v[1]-orig[1]) > tolerance {
					t.Errorf("vertex %d drifted in-plane: %v -> %v", i, orig, v)
				}
				if got := orig[2] - v[2]; math.Abs(got-tt.distance) > tolerance {
					t.Errorf("vertex %d moved %.12f mm, want %.12f", i, got, tt.distance)
				}
			}
		})
	}
}

func TestShrink_ZeroDistanceIsIdentity(t *testing.T) {
	mesh := planarMesh([3]float64{3, 3, 0}, 1, 5)
	sdf := linearField(10, Scaled([3]float64{1.5, 1.5, 1.5}, [3]float64{0.3, 0.1, 0.7}), 5)

	out, _, err := Shrink(t.Context(), mesh, sdf, Options{DistanceMm: 0})
	if err != nil {
		t.Fatalf("Shrink: %v", err)
	}
	if !slices.Equal(out.Vertices, mesh.Vertices) {
		t.Errorf("zero distance changed vertices")
	}
}

func TestShrink_DegenerateGradient(t *testing.T) {
	mesh := planarMesh([3]float64{3, 3, 0}, 1, 5)
	flat := NewVolume([3]int{10, 10, 10}, Identity())

	out, report, err := Shrink(t.Context(), mesh, flat, Options{DistanceMm: 1})
	if err != nil {
		t.Fatalf("freeze policy: %v", err)
	}
	if len(report.Frozen) != len(mesh.Vertices) {
		t.Errorf("frozen = %d, want %d", len(report.Frozen), len(mesh.Vertices))
	}
	if !slices.Equal(out.Vertices, mesh.Vertices) {
		t.Error("frozen vertices moved")
	}
	for _, v := range out.Vertices {
		for _, x := range v {
			if math.IsNaN(x) {
				t.Fatal("NaN vertex")
			}
		}
	}

	_, _, err = Shrink(t.Context(), mesh, flat, Options{DistanceMm: 1, Degenerate: PolicyFail})
	if !errors.Is(err, ErrDegenerateGradient) {
		t.Fatalf("fail policy: expected ErrDegenerateGradient, got %v", err)
	}
	var de *DegenerateError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DegenerateError, got %T", err)
	}
}

func TestShrink_RejectsBadInput(t *testing.T) {
	mesh := &Mesh{Vertices: [][3]float64{{0, 0, 0}}, Triangles: [][3]int32{{0, 1, 2}}}
	if _, _, err := Shrink(t.Context(), mesh, NewVolume([3]int{2, 2, 2}, Identity()), Options{DistanceMm: 1}); err == nil {
		t.Error("expected out-of-range triangle error")
	}

	ok := planarMesh([3]float64{0, 0, 0}, 1, 0)
	if _, _, err := Shrink(t.Context(), ok, NewVolume([3]int{2, 2, 2}, Identity()), Options{DistanceMm: -1}); err == nil {
		t.Error("expected negative distance error")
	}
}

func TestShrink_RejectsBadStep(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"infinite step", Options{DistanceMm: 1, StepMm: math.Inf(1)}},
		{"nan step", Options{DistanceMm: 1, StepMm: math.NaN()}},
		{"negative step", Options{DistanceMm: 1, StepMm: -0.1}},
		{"infinite distance", Options{DistanceMm: math.Inf(1)}},
		{"too many steps", Options{DistanceMm: 1e6, StepMm: 1e-6}},
		{"tiny step", Options{DistanceMm: 1, StepMm: math.SmallestNonzeroFloat64}},
	}
	mesh := planarMesh([3]float64{0, 0, 0}, 1, 0)
	sdf := NewVolume([3]int{2, 2, 2}, Identity())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := Shrink(t.Context(), mesh, sdf, tt.opts); err == nil {
				t.Errorf("Shrink(%+v): expected error", tt.opts)
			}
		})
	}
}

func TestDescentField_EdgesAreOneSided(t *testing.T) {
	v := NewVolume([3]int{4, 1, 1}, Identity())
	for i, x := range []float64{0, 1, 4, 9} {
		v.Set(i, 0, 0, x)
	}
	f := DescentField(v)

	want := []float64{-1, -2, -4, -5}
	for i, w := range want {
		if got := f.At(i, 0, 0)[0]; got != w {
			t.Errorf("gradient[%d] = %v, want %v", i, got, w)
		}
	}
	if g := f.At(0, 0, 0); g[1] != 0 || g[2] != 0 {
		t.Errorf("singleton axes must have zero gradient, got %v", g)
	}
}

func TestAffine_InverseRoundTrip(t *testing.T) {
	a := Scaled([3]float64{2, 3, 4}, [3]float64{10, -5, 1})
	inv, err := a.Inverse()
	if err != nil {
		t.Fatalf("Inverse: %v", err)
	}
	p := [3]float64{1.5, -2, 7}
	q := a.Apply(inv.Apply(p))
	for i := range 3 {
		if math.Abs(p[i]-q[i]) > tolerance {
			t.Fatalf("round trip %v -> %v", p, q)
		}
	}
	if vs := a.VoxelSize(); vs != [3]float64{2, 3, 4} {
		t.Errorf("voxel size = %v", vs)
	}

	var singular Affine
	if _, err := singular.Inverse(); err == nil {
		t.Error("expected singular affine error")
	}
}

func TestProjector_ShrinkFile(t *testing.T) {
	dir := t.TempDir()
	surf := filepath.Join(dir, "sub-01_hemi-L_white.surf.gii")
	ref := filepath.Join(dir, "ribbon.nii.gz")
	out := filepath.Join(dir, "white_shrunk_L.surf.gii")

	mesh := planarMesh([3]float64{3, 3, 0}, 1, 5)
	if err := WriteGIFTI(surf, mesh); err != nil {
		t.Fatalf("WriteGIFTI: %v", err)
	}

	var gotArgs []string
	p := &Projector{
		Generator: GeneratorFunc(func(_ context.Context, s, r, o string) error {
			gotArgs = WorkbenchArgs(s, r, o)
			return WriteNIfTI(o, linearField(10, Identity(), 5))
		}),
		Options: Options{DistanceMm: 1},
	}

	report, err := p.ShrinkFile(t.Context(), surf, ref, out, dir)
	if err != nil {
		t.Fatalf("ShrinkFile: %v", err)
	}
	if report.Vertices != 9 {
		t.Errorf("report vertices = %d", report.Vertices)
	}
	if len(gotArgs) != 4 || gotArgs[0] != "-create-signed-distance-volume" || gotArgs[2] != ref {
		t.Errorf("generator args = %v", gotArgs)
	}

	shrunk, err := ReadGIFTI(out)
	if err != nil {
		t.Fatalf("ReadGIFTI: %v", err)
	}
	for i, v := range shrunk.Vertices {
		// float32 storage in GIFTI.
		if math.Abs(v[2]-4) > 1e-5 {
			t.Errorf("vertex %d z = %v, want 4", i, v[2])
		}
	}

	if _, err := os.Stat(filepath.Join(dir, "signed_distance.nii.gz")); err != nil {
		t.Errorf("signed distance volume not written: %v", err)
	}
}

func TestProjector_GeneratorFailure(t *testing.T) {
	dir := t.TempDir()
	surf := filepath.Join(dir, "white.surf.gii")
	if err := WriteGIFTI(surf, planarMesh([3]float64{0, 0, 0}, 1, 0)); err != nil {
		t.Fatalf("WriteGIFTI: %v", err)
	}
	boom := errors.New("wb_command exited 1")
	p := &Projector{Generator: GeneratorFunc(func(context.Context, string, string, string) error { return boom })}

	_, err := p.ShrinkFile(t.Context(), surf, "ref.nii.gz", filepath.Join(dir, "out.surf.gii"), dir)
	if !errors.Is(err, boom) {
		t.Errorf("expected generator error, got %v", err)
	}
}
