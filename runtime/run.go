package runtime

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"path/filepath"
	"time"

	"github.com/justapithecus/tractography/adapter"
	"github.com/justapithecus/tractography/lode"
	"github.com/justapithecus/tractography/log"
	"github.com/justapithecus/tractography/metrics"
	"github.com/justapithecus/tractography/stage"
	"github.com/justapithecus/tractography/types"
)

// GraphFile is the dependency diagram archived in every stage output directory.
const GraphFile = "graph.dot"

// ArchivedPort is the output port on which sink stages report the
// archive-relative paths they wrote.
const ArchivedPort = "archived"

// finalizeTimeout bounds manifest writes and notifications after the run.
const finalizeTimeout = 30 * time.Second

// PlannedStage is one composed top-level stage of a run.
type PlannedStage struct {
	// Name is the top-level stage name (preproc, recon, tracto).
	Name string
	// Graph is the composed, validated stage graph.
	Graph *stage.Graph
	// OutputDir is the archive-relative output directory of the stage.
	OutputDir string
}

// Plan is the complete, validated work of one run. Planning resolves
// inputs and composes every graph before any tool is launched.
type Plan struct {
	Stages []PlannedStage
}

// Planner builds the plan of a run. Resolution and wiring errors surface here.
type Planner func(ctx context.Context) (*Plan, error)

// RunConfig configures a single run.
type RunConfig struct {
	// RunMeta is the run identity.
	RunMeta *types.RunMeta
	// Planner resolves the dataset and composes the stage graphs.
	Planner Planner
	// WorkDir is the scratch root of this run. Each top-level stage gets
	// its own subdirectory.
	WorkDir string
	// Archive receives graph diagrams, manifest and metrics records.
	// Sink stages hold their own reference to it.
	Archive lode.Archive
	// Adapter is notified when the run finishes. May be nil.
	Adapter adapter.Adapter
	// Collector records run metrics. May be nil.
	Collector *metrics.Collector
	// Logger overrides the default run logger. May be nil.
	Logger *log.Logger
}

// RunResult represents the result of a run.
type RunResult struct {
	// RunMeta is the run identity.
	RunMeta *types.RunMeta
	// Outcome is the run outcome.
	Outcome *types.RunOutcome
	// Duration is the total run duration.
	Duration time.Duration
	// Artifacts is the number of files archived by sink stages.
	Artifacts int
	// OutputDirs lists the output directory of every planned stage.
	OutputDirs []string
	// Stages holds the graph result of every stage that ran, by name.
	Stages map[string]*GraphResult
}

// RunOrchestrator orchestrates a single run.
type RunOrchestrator struct {
	config    *RunConfig
	logger    *log.Logger
	startTime time.Time
}

// NewRunOrchestrator creates a new run orchestrator.
// Returns error if run metadata is invalid.
func NewRunOrchestrator(config *RunConfig) (*RunOrchestrator, error) {
	if err := config.RunMeta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run metadata: %w", err)
	}
	if config.Planner == nil {
		return nil, fmt.Errorf("run %s has no planner", config.RunMeta.RunID)
	}
	if config.Archive == nil {
		return nil, fmt.Errorf("run %s has no archive", config.RunMeta.RunID)
	}

	logger := config.Logger
	if logger == nil {
		logger = log.NewLogger(config.RunMeta)
	}
	return &RunOrchestrator{config: config, logger: logger}, nil
}

// Execute executes the run end-to-end.
//
// Execution flow:
//  1. Plan: resolve inputs and compose every selected stage
//  2. For each stage in order: archive graph.dot, then schedule the graph
//  3. Classify the outcome
//  4. Record manifest and metrics (best effort)
//  5. Notify the adapter (best effort)
//
// The returned error is reserved for misuse; run failures are reported
// through RunResult.Outcome.
func (r *RunOrchestrator) Execute(ctx context.Context) (*RunResult, error) {
	r.startTime = time.Now()
	r.config.Collector.IncRunStarted()
	r.logger.Info("starting run", map[string]any{"stages": r.config.RunMeta.Stages})

	result := &RunResult{
		RunMeta: r.config.RunMeta,
		Stages:  make(map[string]*GraphResult),
	}

	runErr := r.run(ctx, result)
	result.Outcome = ClassifyError(runErr)
	if runErr != nil {
		r.logger.Error("run failed", map[string]any{
			"outcome":      result.Outcome.Status,
			"failed_stage": result.Outcome.FailedStage,
			"error":        runErr.Error(),
		})
	}

	r.finalize(ctx, result)
	return result, nil
}

func (r *RunOrchestrator) run(ctx context.Context, result *RunResult) error {
	plan, err := r.config.Planner(ctx)
	if err != nil {
		return err
	}
	for _, ps := range plan.Stages {
		result.OutputDirs = append(result.OutputDirs, ps.OutputDir)
	}

	for _, ps := range plan.Stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.writeGraph(ctx, ps); err != nil {
			return &StageError{Stage: ps.Name, Err: err}
		}

		stageLog := r.logger.WithStage(ps.Name)
		stageLog.Info("running stage graph", map[string]any{
			"leaves":  ps.Graph.Len(),
			"workers": ps.Graph.Workers(),
		})
		sched := &Scheduler{
			WorkRoot:  filepath.Join(r.config.WorkDir, ps.Name),
			Collector: r.config.Collector,
			Logger:    stageLog,
		}
		gr, err := sched.Run(ctx, ps.Graph)
		result.Stages[ps.Name] = gr
		result.Artifacts += countArchived(gr)
		if err != nil {
			return err
		}
	}
	return nil
}

// writeGraph archives the stage dependency diagram.
func (r *RunOrchestrator) writeGraph(ctx context.Context, ps PlannedStage) error {
	var buf bytes.Buffer
	if err := ps.Graph.WriteDOT(&buf); err != nil {
		return fmt.Errorf("render %s: %w", GraphFile, err)
	}
	_, err := r.config.Archive.PutFile(ctx, path.Join(ps.OutputDir, GraphFile), &buf)
	return err
}

func countArchived(gr *GraphResult) int {
	if gr == nil {
		return 0
	}
	n := 0
	for _, res := range gr.Results {
		n += len(res.Outputs[ArchivedPort])
	}
	return n
}

// finalize writes the manifest and metrics records and notifies the
// adapter. It runs even when ctx is canceled.
func (r *RunOrchestrator) finalize(ctx context.Context, result *RunResult) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	completedAt := time.Now()
	rec := lode.RunRecord{
		Stages:      r.config.RunMeta.Stages,
		OutputDirs:  result.OutputDirs,
		Outcome:     result.Outcome,
		Artifacts:   result.Artifacts,
		StartedAt:   r.startTime,
		CompletedAt: completedAt,
	}
	if err := r.config.Archive.WriteRun(fctx, rec); err != nil {
		r.logger.Error("failed to write run record", map[string]any{"error": err.Error()})
		if result.Outcome.Status == types.OutcomeSuccess {
			result.Outcome = &types.RunOutcome{
				Status:  types.OutcomeArchiveFailure,
				Message: fmt.Sprintf("write run record: %v", err),
			}
		}
	}

	if result.Outcome.Status == types.OutcomeSuccess {
		r.config.Collector.IncRunCompleted()
	} else {
		r.config.Collector.IncRunFailed()
	}
	result.Duration = time.Since(r.startTime)

	if r.config.Collector != nil {
		if err := r.config.Archive.WriteMetrics(fctx, r.config.Collector.Snapshot(), completedAt); err != nil {
			r.logger.Warn("failed to write metrics record", map[string]any{"error": err.Error()})
		}
	}

	r.logger.Info("run completed", map[string]any{
		"outcome":   result.Outcome.Status,
		"artifacts": result.Artifacts,
		"duration":  result.Duration.String(),
	})

	if r.config.Adapter != nil {
		if err := r.config.Adapter.Publish(fctx, r.event(result, completedAt)); err != nil {
			r.logger.Warn("failed to publish run completion", map[string]any{"error": err.Error()})
		}
	}
}

func (r *RunOrchestrator) event(result *RunResult, completedAt time.Time) *adapter.RunCompletedEvent {
	meta := r.config.RunMeta
	return &adapter.RunCompletedEvent{
		ManifestVersion: types.ManifestVersion,
		EventType:       adapter.EventTypeRunCompleted,
		RunID:           meta.RunID,
		Subject:         meta.Subject,
		Session:         meta.Session,
		Stages:          meta.Stages,
		Outcome:         string(result.Outcome.Status),
		Message:         result.Outcome.Message,
		FailedStage:     result.Outcome.FailedStage,
		OutputDirs:      result.OutputDirs,
		ArtifactCount:   result.Artifacts,
		Timestamp:       completedAt.UTC().Format(time.RFC3339),
		DurationMs:      result.Duration.Milliseconds(),
	}
}
