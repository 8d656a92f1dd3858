package pipeline

import (
	"context"
	"path/filepath"

	"github.com/justapithecus/tractography/log"
	"github.com/justapithecus/tractography/metrics"
	"github.com/justapithecus/tractography/runtime"
	"github.com/justapithecus/tractography/stage"
	"github.com/justapithecus/tractography/surface"
)

// Program names of the external tools. ToolRunner.Programs may map them
// to other executables.
const (
	ProgramDenoise         = "dwidenoise"
	ProgramDegibbs         = "mrdegibbs"
	ProgramEddyCorrect     = "eddy_correct"
	ProgramRotateBvecs     = "fdt_rotate_bvecs"
	ProgramExtract         = "dwiextract"
	ProgramMath            = "mrmath"
	ProgramFlirt           = "flirt"
	ProgramGrid            = "mrgrid"
	ProgramWorkbench       = "wb_command"
	ProgramRegistration    = "antsRegistration"
	ProgramApplyTransforms = "antsApplyTransforms"
	ProgramBedpostx        = "bedpostx"
	ProgramProbtrackx      = "probtrackx2"
)

// toolStage builds a leaf stage that runs one program. Output ports are
// derived from the tool outputs: globs become FileList ports.
func toolStage(name string, inputs []stage.Port, t *runtime.Tool) stage.Stage {
	outputs := make([]stage.Port, 0, len(t.Outputs))
	for _, o := range t.Outputs {
		p := stage.FilePort(o.Port)
		if o.Glob != "" {
			p = stage.ListPort(o.Port)
		}
		if o.Optional {
			p = p.AsOptional()
		}
		outputs = append(outputs, p)
	}
	return stage.New(name, inputs, outputs, t)
}

// WorkbenchGenerator creates signed distance volumes with
// "wb_command -create-signed-distance-volume".
func WorkbenchGenerator(runner *runtime.ToolRunner, stageName string) surface.DistanceFieldGenerator {
	return surface.GeneratorFunc(func(ctx context.Context, surfacePath, referencePath, outPath string) error {
		_, err := runner.Run(ctx, stageName, runtime.ToolConfig{
			Program: ProgramWorkbench,
			Args:    surface.WorkbenchArgs(surfacePath, referencePath, outPath),
			Dir:     filepath.Dir(outPath),
		})
		return err
	})
}

// shrinkInvoker shrinks one white surface toward the tissue interior.
type shrinkInvoker struct {
	runner    *runtime.ToolRunner
	generator func(stageName string) surface.DistanceFieldGenerator
	options   surface.Options
	emits     string
	collector *metrics.Collector
	logger    *log.Logger
}

func (s *shrinkInvoker) Invoke(ctx context.Context, call stage.Call) (stage.Values, error) {
	gen := s.generator
	if gen == nil {
		gen = func(name string) surface.DistanceFieldGenerator { return WorkbenchGenerator(s.runner, name) }
	}
	p := &surface.Projector{Generator: gen(call.Stage), Options: s.options}

	out := filepath.Join(call.WorkDir, s.emits+".surf.gii")
	report, err := p.ShrinkFile(ctx, call.Inputs.File("surface"), call.Inputs.File("reference"), out, call.WorkDir)
	if err != nil {
		return nil, err
	}

	s.collector.AddShrink(report.Vertices, len(report.Frozen))
	if len(report.Frozen) > 0 && s.logger != nil {
		s.logger.WithStage(call.Stage).Warn("vertices frozen at degenerate gradient", map[string]any{
			"frozen":   len(report.Frozen),
			"vertices": report.Vertices,
		})
	}
	return stage.Values{"out_file": stage.FileValue(out)}, nil
}

func (a *Assembler) shrinkStage(name, emits string) stage.Stage {
	return stage.New(name,
		[]stage.Port{stage.FilePort("surface"), stage.FilePort("reference")},
		[]stage.Port{stage.FilePort("out_file")},
		&shrinkInvoker{
			runner:    a.opts.Runner,
			generator: a.opts.DistanceField,
			options:   a.opts.Shrink,
			emits:     emits,
			collector: a.opts.Collector,
			logger:    a.opts.Logger,
		})
}
