package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/justapithecus/tractography/log"
	"github.com/justapithecus/tractography/lode"
	"github.com/justapithecus/tractography/metrics"
	"github.com/justapithecus/tractography/naming"
	"github.com/justapithecus/tractography/runtime"
	"github.com/justapithecus/tractography/stage"
	"github.com/justapithecus/tractography/surface"
	"github.com/justapithecus/tractography/types"
)

// TractographyParams tunes fibre modelling and probabilistic tracking.
type TractographyParams struct {
	// RoisDir holds the template-space ROI images (*.nii.gz) used as seeds.
	RoisDir string
	// Fibres is the number of fibres per voxel modelled by bedpostx.
	Fibres int
	// Weight is the ARD weight of the fibre model.
	Weight float64
	// BurnIn is the number of burn-in jumps.
	BurnIn int
	// Jumps is the number of MCMC jumps.
	Jumps int
	// SampleEvery is the sampling interval of the MCMC chain.
	SampleEvery int
	// Samples is the number of streamlines per seed voxel.
	Samples int
	// Steps is the maximum number of steps per streamline.
	Steps int
	// StepLength is the step length in millimetres.
	StepLength float64
	// DistThresh discards connections shorter than this many millimetres.
	DistThresh float64
	// FibThresh is the volume fraction below which secondary fibres are ignored.
	FibThresh float64
}

// DefaultTractographyParams returns the tracking defaults.
func DefaultTractographyParams() TractographyParams {
	return TractographyParams{
		Fibres:      3,
		Weight:      1,
		BurnIn:      1000,
		Jumps:       1250,
		SampleEvery: 25,
		Samples:     5000,
		Steps:       2000,
		StepLength:  0.5,
		DistThresh:  5,
		FibThresh:   0.01,
	}
}

// Options configures stage assembly.
type Options struct {
	// RunID names the output directories of this run.
	RunID string
	// Workers bounds leaf concurrency within a stage graph.
	Workers int
	// Archive receives sink outputs.
	Archive lode.Archive
	// Rules is the naming rule set. Defaults to naming.DefaultRules().
	Rules []naming.Rule
	// Runner launches the external tools.
	Runner *runtime.ToolRunner
	// Shrink configures the surface shrink.
	Shrink surface.Options
	// DistanceField overrides the signed distance generator of a shrink
	// leaf. Nil uses wb_command through Runner.
	DistanceField func(stageName string) surface.DistanceFieldGenerator
	// TemplateT1w is the template image registered to each subject's T1w.
	TemplateT1w string
	// Tractography tunes the tractography stage.
	Tractography TractographyParams
	// Collector records shrink metrics. May be nil.
	Collector *metrics.Collector
	// Logger may be nil.
	Logger *log.Logger
}

// Assembler builds the stage graphs of one run.
type Assembler struct {
	opts Options
}

// NewAssembler returns an assembler. Archive and RunID are required.
func NewAssembler(opts Options) (*Assembler, error) {
	if opts.Archive == nil {
		return nil, errors.New("assembler: archive is required")
	}
	if opts.RunID == "" {
		return nil, errors.New("assembler: run id is required")
	}
	if opts.Rules == nil {
		opts.Rules = naming.DefaultRules()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Runner == nil {
		opts.Runner = &runtime.ToolRunner{}
	}
	return &Assembler{opts: opts}, nil
}

// topStage is the nested core of a top-level stage and how it attaches to
// the datasource and sink leaves.
type topStage struct {
	core stage.Stage
	// inputs maps a promoted core input to the datasource port feeding it.
	inputs map[string]string
	// outputs maps an artifact to the promoted core output producing it.
	outputs map[string]string
}

func (t topStage) artifacts() []string {
	out := make([]string, 0, len(t.outputs))
	for a := range t.outputs {
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}

// Build composes the graph of one top-level stage for a resolved dataset.
func (a *Assembler) Build(name string, ds *types.ResolvedDataset) (*stage.Graph, error) {
	var (
		top topStage
		err error
	)
	switch name {
	case StagePreprocessing:
		top, err = a.preprocessing()
	case StageReconstruction:
		top, err = a.reconstruction()
	case StageTractography:
		top, err = a.tractography()
	default:
		return nil, fmt.Errorf("unknown stage %q", name)
	}
	if err != nil {
		return nil, err
	}

	source, err := Datasource(ds, Inputs(name))
	if err != nil {
		return nil, err
	}
	sink := &Sink{Stage: name, OutputDir: OutputDir(name, a.opts.RunID), Archive: a.opts.Archive, Rules: a.opts.Rules}
	artifacts := top.artifacts()
	sinkStage, err := sink.NewStage(artifacts)
	if err != nil {
		return nil, err
	}

	b := stage.NewBuilder(name).Add(source, top.core, sinkStage)
	core := top.core.Name()
	for _, in := range sortedKeys(top.inputs) {
		b.Connect(DatasourceStage, top.inputs[in], core, in)
	}
	for _, art := range artifacts {
		b.Connect(core, top.outputs[art], SinkStage, art)
	}
	b.Connect(DatasourceStage, EntitiesPort, SinkStage, EntitiesPort)

	g, err := b.Compose()
	if err != nil {
		return nil, err
	}
	return g.WithWorkers(a.opts.Workers), nil
}

// Plan builds the graphs of the given stages, in order.
func (a *Assembler) Plan(ds *types.ResolvedDataset, stages []string) (*runtime.Plan, error) {
	plan := &runtime.Plan{}
	for _, name := range stages {
		g, err := a.Build(name, ds)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		plan.Stages = append(plan.Stages, runtime.PlannedStage{
			Name:      name,
			Graph:     g,
			OutputDir: OutputDir(name, a.opts.RunID),
		})
	}
	return plan, nil
}

// Planner defers Plan until the run starts.
func (a *Assembler) Planner(ds *types.ResolvedDataset, stages []string) runtime.Planner {
	return func(context.Context) (*runtime.Plan, error) {
		return a.Plan(ds, stages)
	}
}

func (a *Assembler) tool(name, program string, inputs []stage.Port, args []string, outputs ...runtime.ToolOutput) stage.Stage {
	return toolStage(name, inputs, &runtime.Tool{
		Runner:  a.opts.Runner,
		Program: program,
		Args:    args,
		Outputs: outputs,
	})
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
