package surface

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// DefaultStepMm is the physical length of one descent step.
const DefaultStepMm = 0.1

// MaxSteps bounds the number of descent steps per vertex.
const MaxSteps = 1_000_000

// ErrDegenerateGradient is returned under PolicyFail when a vertex sits in
// a zero or undefined gradient neighborhood.
var ErrDegenerateGradient = errors.New("degenerate gradient")

// DegeneratePolicy decides what happens to a vertex whose local gradient
// is zero or not finite.
type DegeneratePolicy string

const (
	// PolicyFreeze stops the vertex where it is and reports it.
	PolicyFreeze DegeneratePolicy = "freeze"
	// PolicyFail aborts the whole shrink.
	PolicyFail DegeneratePolicy = "fail"
)

// ParseDegeneratePolicy validates a policy name. Empty means PolicyFreeze.
func ParseDegeneratePolicy(s string) (DegeneratePolicy, error) {
	switch DegeneratePolicy(s) {
	case "":
		return PolicyFreeze, nil
	case PolicyFreeze, PolicyFail:
		return DegeneratePolicy(s), nil
	default:
		return "", fmt.Errorf("invalid degenerate gradient policy %q (want freeze or fail)", s)
	}
}

// DegenerateError identifies the first vertex that hit a degenerate gradient.
type DegenerateError struct {
	Vertex int
	Voxel  [3]float64
	Moved  float64
}

func (e *DegenerateError) Error() string {
	return fmt.Sprintf("vertex %d has a degenerate gradient at voxel (%.3f, %.3f, %.3f) after moving %.3f mm",
		e.Vertex, e.Voxel[0], e.Voxel[1], e.Voxel[2], e.Moved)
}

// Unwrap returns ErrDegenerateGradient.
func (e *DegenerateError) Unwrap() error { return ErrDegenerateGradient }

// Options control a shrink.
type Options struct {
	// DistanceMm is the total physical displacement per vertex.
	DistanceMm float64
	// StepMm is the displacement of one step. Zero means DefaultStepMm.
	StepMm float64
	// Degenerate is the policy for zero-gradient vertices. Empty means freeze.
	Degenerate DegeneratePolicy
	// Workers bounds the number of goroutines. Zero means GOMAXPROCS.
	Workers int
}

// Validate reports whether the options describe a runnable shrink.
func (o Options) Validate() error {
	_, err := o.withDefaults()
	return err
}

func (o Options) withDefaults() (Options, error) {
	if o.DistanceMm < 0 || math.IsNaN(o.DistanceMm) || math.IsInf(o.DistanceMm, 0) {
		return o, fmt.Errorf("shrink distance must be a finite value >= 0, got %v", o.DistanceMm)
	}
	if o.StepMm == 0 {
		o.StepMm = DefaultStepMm
	}
	if o.StepMm < 0 || math.IsNaN(o.StepMm) || math.IsInf(o.StepMm, 0) {
		return o, fmt.Errorf("shrink step must be a finite value > 0, got %v", o.StepMm)
	}
	if n := o.DistanceMm / o.StepMm; n > MaxSteps {
		return o, fmt.Errorf("shrink of %v mm in %v mm steps needs %.0f steps, limit is %d", o.DistanceMm, o.StepMm, math.Ceil(n), MaxSteps)
	}
	if o.Degenerate == "" {
		o.Degenerate = PolicyFreeze
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	return o, nil
}

// Report summarizes a shrink.
type Report struct {
	Vertices int
	Steps    int
	// Frozen lists vertices stopped by a degenerate gradient, ascending.
	Frozen []int
}

// vertexChunk is the number of vertices handled by one task.
const vertexChunk = 4096

// Shrink moves every vertex of mesh DistanceMm into the tissue described by
// the signed distance field sdf (negative inside), whose affine maps the
// reference voxel grid to physical space.
//
// The descent direction is the gradient of the negated field, computed once.
// Each vertex advances in fixed physical steps of StepMm, the last step
// shortened so the total equals DistanceMm. Triangles are copied unchanged.
func Shrink(ctx context.Context, mesh *Mesh, sdf *Volume, opts Options) (*Mesh, *Report, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, nil, err
	}
	if err := mesh.Validate(); err != nil {
		return nil, nil, err
	}
	if err := sdf.Validate(); err != nil {
		return nil, nil, err
	}

	out := make([][3]float64, len(mesh.Vertices))
	copy(out, mesh.Vertices)
	steps := int(math.Ceil(opts.DistanceMm/opts.StepMm - 1e-9))
	report := &Report{Vertices: len(out), Steps: steps}
	if steps == 0 {
		return mesh.withVertices(out), report, nil
	}

	toVoxel, err := sdf.Affine.Inverse()
	if err != nil {
		return nil, nil, err
	}
	d := &descent{
		field:     DescentField(sdf),
		toVoxel:   toVoxel,
		toWorld:   sdf.Affine,
		voxelSize: sdf.Affine.VoxelSize(),
		opts:      opts,
		steps:     steps,
	}

	frozen := make([]bool, len(out))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for start := 0; start < len(out); start += vertexChunk {
		end := min(start+vertexChunk, len(out))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				p, stuck, err := d.move(i, mesh.Vertices[i])
				if err != nil {
					return err
				}
				out[i] = p
				frozen[i] = stuck
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	for i, f := range frozen {
		if f {
			report.Frozen = append(report.Frozen, i)
		}
	}
	return mesh.withVertices(out), report, nil
}

type descent struct {
	field     *Field
	toVoxel   Affine
	toWorld   Affine
	voxelSize [3]float64
	opts      Options
	steps     int
}

// move descends one vertex. A vertex that never moved is returned with its
// original coordinates so no round-off is introduced.
func (d *descent) move(index int, world [3]float64) ([3]float64, bool, error) {
	p := d.toVoxel.Apply(world)
	remaining := d.opts.DistanceMm
	moved := false

	for range d.steps {
		if remaining <= 0 {
			break
		}
		g := d.field.Sample(p)
		physical := math.Sqrt(
			sq(g[0]*d.voxelSize[0]) + sq(g[1]*d.voxelSize[1]) + sq(g[2]*d.voxelSize[2]))
		if physical == 0 || math.IsNaN(physical) || math.IsInf(physical, 0) {
			if d.opts.Degenerate == PolicyFail {
				return world, false, &DegenerateError{
					Vertex: index,
					Voxel:  p,
					Moved:  d.opts.DistanceMm - remaining,
				}
			}
			if !moved {
				return world, true, nil
			}
			return d.toWorld.Apply(p), true, nil
		}

		h := math.Min(d.opts.StepMm, remaining)
		scale := h / physical
		for a := range 3 {
			p[a] += g[a] * scale
		}
		remaining -= h
		moved = true
	}

	if !moved {
		return world, false, nil
	}
	return d.toWorld.Apply(p), false, nil
}

func sq(x float64) float64 { return x * x }
