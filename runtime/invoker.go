package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/justapithecus/tractography/log"
	"github.com/justapithecus/tractography/metrics"
	"github.com/justapithecus/tractography/stage"
)

// ToolRunner launches external programs on behalf of stages. It resolves
// program overrides, records launch metrics and classifies failures.
type ToolRunner struct {
	// Factory overrides launcher creation (for testing).
	// If nil, uses NewToolManager.
	Factory LauncherFactory
	// Programs maps a program name to the executable actually run.
	Programs map[string]string
	// Env holds extra KEY=VALUE entries passed to every program.
	Env []string
	// Collector records tool metrics. May be nil.
	Collector *metrics.Collector
	// Logger receives launch and exit logs. May be nil.
	Logger *log.Logger
}

// Program returns the executable configured for name.
func (r *ToolRunner) Program(name string) string {
	if r == nil {
		return name
	}
	if p, ok := r.Programs[name]; ok && p != "" {
		return p
	}
	return name
}

// Run starts one program for stageName and waits for it. A program that
// cannot start or exits non-zero yields a *ToolError; a canceled context
// yields the context error.
func (r *ToolRunner) Run(ctx context.Context, stageName string, cfg ToolConfig) (*ToolResult, error) {
	program := cfg.Program
	cfg.Program = r.Program(cfg.Program)
	cfg.Env = append(slices.Clone(r.Env), cfg.Env...)

	var launcher Launcher
	if r.Factory != nil {
		launcher = r.Factory(&cfg)
	} else {
		launcher = NewToolManager(&cfg)
	}

	logger := r.logger().WithStage(stageName)
	logger.Debug("launching tool", map[string]any{
		"program": cfg.Program,
		"args":    cfg.Args,
		"dir":     cfg.Dir,
	})

	if err := launcher.Start(ctx); err != nil {
		r.Collector.IncToolLaunchFailure()
		return nil, &ToolError{Stage: stageName, Program: program, Reason: "failed to start", Err: err}
	}
	r.Collector.IncToolLaunchSuccess(program)

	result, err := launcher.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, ctxErr
	}
	if err != nil {
		return nil, &ToolError{Stage: stageName, Program: program, Reason: "wait failed", Err: err}
	}
	if result.ExitCode != 0 {
		r.Collector.IncToolNonZeroExit()
		logger.Error("tool failed", map[string]any{
			"program":   cfg.Program,
			"exit_code": result.ExitCode,
			"duration":  result.Duration.String(),
		})
		return result, &ToolError{
			Stage:    stageName,
			Program:  program,
			ExitCode: result.ExitCode,
			Stderr:   tail(result.StderrBytes),
		}
	}

	logger.Debug("tool finished", map[string]any{
		"program":  cfg.Program,
		"duration": result.Duration.String(),
	})
	return result, nil
}

func (r *ToolRunner) logger() *log.Logger {
	if r == nil || r.Logger == nil {
		return log.Nop()
	}
	return r.Logger
}

// ToolOutput declares where a tool leaves one output port.
type ToolOutput struct {
	// Port is the output port name.
	Port string
	// File is the output file name relative to the work directory. Used
	// for File ports.
	File string
	// Glob matches the files of a FileList port, relative to the work
	// directory. Matches are sorted.
	Glob string
	// Optional outputs may be missing after a successful run.
	Optional bool
}

// Tool is a stage invoker that runs one external program.
//
// Args are templates. Placeholders:
//
//	{in:port}      input path; a whole-argument FileList input expands to one argument per path
//	{out:port}     absolute path of a declared File output
//	{outstem:port} the same path without its extension
//	{param:port}   a Scalar input formatted with %v
//	{workdir}      the invocation work directory
type Tool struct {
	Runner  *ToolRunner
	Program string
	Args    []string
	Outputs []ToolOutput
	Env     []string
	// Stdout names an output file capturing the program's stdout.
	Stdout string
}

var placeholder = regexp.MustCompile(`\{(in|out|outstem|param):([A-Za-z0-9_.]+)\}|\{workdir\}`)

// errUnknownPlaceholder is returned for a template naming an unknown port.
var errUnknownPlaceholder = errors.New("unknown placeholder")

// Invoke expands the argument templates, runs the program in the call's
// work directory and collects the declared outputs.
func (t *Tool) Invoke(ctx context.Context, call stage.Call) (stage.Values, error) {
	args, err := t.ExpandArgs(call)
	if err != nil {
		return nil, &ToolError{Stage: call.Stage, Program: t.Program, Reason: "bad arguments", Err: err}
	}

	cfg := ToolConfig{
		Program: t.Program,
		Args:    args,
		Dir:     call.WorkDir,
		Env:     t.Env,
	}
	if t.Stdout != "" {
		cfg.StdoutPath = filepath.Join(call.WorkDir, t.Stdout)
	}
	runner := t.Runner
	if runner == nil {
		runner = &ToolRunner{}
	}
	if _, err := runner.Run(ctx, call.Stage, cfg); err != nil {
		return nil, err
	}
	return CollectOutputs(call, t.Program, t.Outputs)
}

// ExpandArgs substitutes placeholders in the argument templates.
func (t *Tool) ExpandArgs(call stage.Call) ([]string, error) {
	outputs := make(map[string]ToolOutput, len(t.Outputs))
	for _, o := range t.Outputs {
		outputs[o.Port] = o
	}

	var args []string
	for _, tmpl := range t.Args {
		// A FileList input alone in an argument spreads to several arguments.
		if m := placeholder.FindStringSubmatch(tmpl); m != nil && m[0] == tmpl && m[1] == "in" {
			v, ok := call.Inputs[m[2]]
			if !ok {
				return nil, fmt.Errorf("%w: %s", errUnknownPlaceholder, tmpl)
			}
			args = append(args, v.Paths()...)
			continue
		}

		var expandErr error
		arg := placeholder.ReplaceAllStringFunc(tmpl, func(token string) string {
			m := placeholder.FindStringSubmatch(token)
			if m[0] == "{workdir}" {
				return call.WorkDir
			}
			switch m[1] {
			case "in":
				v, ok := call.Inputs[m[2]]
				if !ok {
					expandErr = fmt.Errorf("%w: %s", errUnknownPlaceholder, token)
					return ""
				}
				return strings.Join(v.Paths(), " ")
			case "param":
				v, ok := call.Inputs[m[2]]
				if !ok {
					expandErr = fmt.Errorf("%w: %s", errUnknownPlaceholder, token)
					return ""
				}
				return fmt.Sprintf("%v", v.Scalar())
			default:
				o, ok := outputs[m[2]]
				if !ok || o.File == "" {
					expandErr = fmt.Errorf("%w: %s", errUnknownPlaceholder, token)
					return ""
				}
				p := filepath.Join(call.WorkDir, o.File)
				if m[1] == "outstem" {
					p = Stem(p)
				}
				return p
			}
		})
		if expandErr != nil {
			return nil, expandErr
		}
		args = append(args, arg)
	}
	return args, nil
}

// CollectOutputs builds the output values of a finished tool and checks
// that every required output exists.
func CollectOutputs(call stage.Call, program string, outputs []ToolOutput) (stage.Values, error) {
	values := make(stage.Values, len(outputs))
	for _, o := range outputs {
		switch {
		case o.Glob != "":
			matches, err := filepath.Glob(filepath.Join(call.WorkDir, o.Glob))
			if err != nil {
				return nil, &ToolError{Stage: call.Stage, Program: program, Reason: "bad output pattern " + o.Glob, Err: err}
			}
			if len(matches) == 0 && !o.Optional {
				return nil, &ToolError{Stage: call.Stage, Program: program, Reason: "missing output " + o.Port}
			}
			slices.Sort(matches)
			values[o.Port] = stage.ListValue(matches...)
		default:
			p := filepath.Join(call.WorkDir, o.File)
			if _, err := os.Stat(p); err != nil {
				if o.Optional {
					continue
				}
				return nil, &ToolError{Stage: call.Stage, Program: program, Reason: "missing output " + o.Port, Err: err}
			}
			values[o.Port] = stage.FileValue(p)
		}
	}
	return values, nil
}

// Stem strips the extension of a path, treating ".nii.gz" and other
// double extensions ending in ".gz" as one extension.
func Stem(p string) string {
	if strings.HasSuffix(p, ".gz") {
		p = strings.TrimSuffix(p, ".gz")
	}
	return strings.TrimSuffix(p, filepath.Ext(p))
}

// Verify Tool implements stage.Invoker.
var _ stage.Invoker = (*Tool)(nil)
