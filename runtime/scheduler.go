package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/justapithecus/tractography/log"
	"github.com/justapithecus/tractography/metrics"
	"github.com/justapithecus/tractography/stage"
)

// Scheduler executes a stage graph. Ready stages run on at most
// graph.Workers() goroutines; a stage starts only after every producer of
// its inputs has finished. The first failure cancels the rest of the run.
type Scheduler struct {
	// WorkRoot holds one work directory per leaf stage.
	WorkRoot string
	// Collector records stage metrics. May be nil.
	Collector *metrics.Collector
	// Logger receives stage lifecycle logs. May be nil.
	Logger *log.Logger
}

// GraphResult is the outcome of one graph execution.
type GraphResult struct {
	// Results holds finished invocations in completion order.
	Results []*StageResult
	// Skipped lists stages never dispatched, in topological order.
	Skipped []string

	outputs map[string]stage.Values
}

// Outputs returns the output values of a finished stage.
func (r *GraphResult) Outputs(name string) stage.Values { return r.outputs[name] }

// Run executes g and returns the first stage error, if any. The returned
// GraphResult is non-nil even on error.
func (s *Scheduler) Run(ctx context.Context, g *stage.Graph) (*GraphResult, error) {
	logger := s.Logger
	if logger == nil {
		logger = log.Nop()
	}

	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.Workers())

	order := g.Order()
	rank := make(map[string]int, len(order))
	remaining := make(map[string]int, len(order))
	var ready []string
	for i, name := range order {
		rank[name] = i
		remaining[name] = len(g.Dependencies(name))
		if remaining[name] == 0 {
			ready = append(ready, name)
		}
	}

	result := &GraphResult{outputs: make(map[string]stage.Values, len(order))}
	dispatched := make(map[string]bool, len(order))
	done := make(chan *StageResult, len(order))
	inflight := 0

	for len(ready) > 0 || inflight > 0 {
		for len(ready) > 0 && egctx.Err() == nil {
			name := ready[0]
			ready = ready[1:]
			inputs, err := s.gather(g, name, result.outputs)
			if err != nil {
				// Unreachable for a composed graph; fail like a stage would.
				eg.Go(func() error { return &StageError{Stage: name, Err: err} })
				break
			}
			dispatched[name] = true
			inflight++
			eg.Go(func() error {
				res := s.runStage(egctx, g, name, inputs, logger)
				done <- res
				return res.err
			})
		}
		if inflight == 0 {
			break
		}

		res := <-done
		inflight--
		result.Results = append(result.Results, res)
		if res.err != nil {
			continue
		}
		result.outputs[res.Stage] = res.values
		for _, next := range g.Dependents(res.Stage) {
			remaining[next]--
			if remaining[next] == 0 {
				ready = insertByRank(ready, next, rank)
			}
		}
	}

	err := eg.Wait()
	for _, name := range order {
		if !dispatched[name] {
			result.Skipped = append(result.Skipped, name)
		}
	}
	s.Collector.AddStagesSkipped(len(result.Skipped))
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return result, err
}

// gather builds the inputs of a ready stage from bindings and producer outputs.
func (s *Scheduler) gather(g *stage.Graph, name string, outputs map[string]stage.Values) (stage.Values, error) {
	st, _ := g.Stage(name)
	inputs := make(stage.Values)
	for _, port := range st.Inputs() {
		src, ok := g.Source(name, port.Name)
		if !ok {
			if port.Optional {
				continue
			}
			return nil, fmt.Errorf("input %s has no source", port.Name)
		}
		if src.Bound {
			inputs[port.Name] = src.Value
			continue
		}
		v, ok := outputs[src.From.Stage][src.From.Port]
		if !ok {
			if port.Optional {
				continue
			}
			return nil, fmt.Errorf("input %s: producer %s left no value", port.Name, src.From)
		}
		inputs[port.Name] = v
	}
	return inputs, nil
}

func (s *Scheduler) runStage(ctx context.Context, g *stage.Graph, name string, inputs stage.Values, logger *log.Logger) *StageResult {
	st, _ := g.Stage(name)
	res := &StageResult{
		Stage:     name,
		WorkDir:   filepath.Join(s.WorkRoot, name),
		StartedAt: time.Now(),
		Inputs:    flattenValues(inputs),
	}
	stageLog := logger.WithStage(name)

	s.Collector.IncStageStarted()
	stageLog.Info("stage started", nil)

	err := os.MkdirAll(res.WorkDir, 0o755)
	var values stage.Values
	if err == nil {
		values, err = st.Invoke(ctx, stage.Call{Stage: name, WorkDir: res.WorkDir, Inputs: inputs})
	}
	if err == nil {
		err = checkOutputs(st, values)
	}
	res.FinishedAt = time.Now()
	s.Collector.ObserveStage(name, res.Duration(), err)

	if err != nil {
		if !errors.Is(err, context.Canceled) {
			stageLog.Error("stage failed", map[string]any{
				"error":    err.Error(),
				"duration": res.Duration().String(),
			})
		}
		res.Error = err.Error()
		res.err = &StageError{Stage: name, Err: err}
	} else {
		res.values = values
		res.Outputs = flattenValues(values)
		stageLog.Info("stage finished", map[string]any{"duration": res.Duration().String()})
	}

	if werr := WriteStageResult(res); werr != nil {
		stageLog.Warn("failed to write stage result", map[string]any{"error": werr.Error()})
	}
	return res
}

// checkOutputs enforces that a stage returned a value of the right kind
// for every required output port.
func checkOutputs(st stage.Stage, values stage.Values) error {
	for _, port := range st.Outputs() {
		v, ok := values[port.Name]
		if !ok || v.IsZero() {
			if port.Optional {
				continue
			}
			return &ToolError{Stage: st.Name(), Reason: "incomplete outputs: missing " + port.Name}
		}
		if v.Kind() != port.Kind {
			return &ToolError{Stage: st.Name(), Reason: fmt.Sprintf("output %s is %s, want %s", port.Name, v.Kind(), port.Kind)}
		}
	}
	return nil
}

func insertByRank(ready []string, name string, rank map[string]int) []string {
	i := len(ready)
	for i > 0 && rank[ready[i-1]] > rank[name] {
		i--
	}
	ready = append(ready, "")
	copy(ready[i+1:], ready[i:])
	ready[i] = name
	return ready
}
