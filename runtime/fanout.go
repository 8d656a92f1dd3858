package runtime

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/justapithecus/tractography/types"
)

// FanOutConfig configures the dataset fan-out operator.
type FanOutConfig struct {
	// Parallel is the maximum number of concurrent participant runs.
	// Values below 1 mean 1.
	Parallel int
	// FailFast cancels pending participant runs after the first failure.
	FailFast bool
}

// WorkItem is one participant run of a dataset fan-out.
type WorkItem struct {
	Subject string
	Session string
}

// Key identifies the item: "sub-X" or "sub-X_ses-Y".
func (w WorkItem) Key() string {
	if w.Session == "" {
		return "sub-" + w.Subject
	}
	return "sub-" + w.Subject + "_ses-" + w.Session
}

// FanOutResult aggregates fan-out execution statistics.
type FanOutResult struct {
	// RunsTotal is the number of participant runs executed.
	RunsTotal int64
	// RunsSucceeded is the number of runs with a success outcome.
	RunsSucceeded int64
	// RunsFailed is the number of runs with any other outcome.
	RunsFailed int64
	// RunsSkipped counts items not started because of FailFast or cancellation.
	RunsSkipped int64
	// Deduped counts duplicate items dropped before scheduling.
	Deduped int64
	// Results holds the result of each run, keyed by WorkItem.Key.
	Results map[string]*RunResult
}

// RunFactory builds and executes the run of one work item.
type RunFactory func(ctx context.Context, item WorkItem) (*RunResult, error)

// Operator runs one pipeline per participant with bounded concurrency.
type Operator struct {
	config  FanOutConfig
	factory RunFactory

	succeeded atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
	deduped   atomic.Int64

	mu      sync.Mutex
	results map[string]*RunResult
}

// NewOperator creates a new fan-out operator.
func NewOperator(config FanOutConfig, factory RunFactory) *Operator {
	if config.Parallel < 1 {
		config.Parallel = 1
	}
	return &Operator{
		config:  config,
		factory: factory,
		results: make(map[string]*RunResult),
	}
}

// Run executes every item and returns once all started runs finished.
// Items are started in the given order; duplicates are dropped.
func (o *Operator) Run(ctx context.Context, items []WorkItem) FanOutResult {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unique := make([]WorkItem, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, ok := seen[item.Key()]; ok {
			o.deduped.Add(1)
			continue
		}
		seen[item.Key()] = struct{}{}
		unique = append(unique, item)
	}

	sem := make(chan struct{}, o.config.Parallel)
	var wg sync.WaitGroup

	for i, item := range unique {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			o.skipped.Add(int64(len(unique) - i))
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := o.factory(ctx, item)
			ok := err == nil && result != nil && result.Outcome != nil &&
				result.Outcome.Status == types.OutcomeSuccess
			if ok {
				o.succeeded.Add(1)
			} else {
				o.failed.Add(1)
				if o.config.FailFast {
					cancel()
				}
			}
			if result != nil {
				o.mu.Lock()
				o.results[item.Key()] = result
				o.mu.Unlock()
			}
		}()
	}

	wg.Wait()
	return o.Results()
}

// Results returns the aggregate fan-out statistics.
func (o *Operator) Results() FanOutResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	results := make(map[string]*RunResult, len(o.results))
	for k, v := range o.results {
		results[k] = v
	}
	return FanOutResult{
		RunsTotal:     o.succeeded.Load() + o.failed.Load(),
		RunsSucceeded: o.succeeded.Load(),
		RunsFailed:    o.failed.Load(),
		RunsSkipped:   o.skipped.Load(),
		Deduped:       o.deduped.Load(),
		Results:       results,
	}
}

// WorstOutcome returns the outcome status that decides the process exit
// code of a fan-out: the first non-success status in key order, or success.
func (r FanOutResult) WorstOutcome() types.OutcomeStatus {
	for _, key := range r.keys() {
		if res := r.Results[key]; res.Outcome != nil && res.Outcome.Status != types.OutcomeSuccess {
			return res.Outcome.Status
		}
	}
	if r.RunsFailed > 0 {
		return types.OutcomeToolFailure
	}
	if r.RunsSkipped > 0 {
		return types.OutcomeCanceled
	}
	return types.OutcomeSuccess
}

func (r FanOutResult) keys() []string {
	keys := make([]string, 0, len(r.Results))
	for k := range r.Results {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// PrintFanOutSummary writes a human-readable fan-out summary to w.
func PrintFanOutSummary(w io.Writer, result FanOutResult) {
	fmt.Fprintf(w, "\n=== Run Summary ===\n")
	fmt.Fprintf(w, "Participant runs: %d total, %d succeeded, %d failed, %d skipped\n",
		result.RunsTotal, result.RunsSucceeded, result.RunsFailed, result.RunsSkipped)
	if result.Deduped > 0 {
		fmt.Fprintf(w, "Duplicates:       %d dropped\n", result.Deduped)
	}

	if len(result.Results) == 0 {
		return
	}
	fmt.Fprintf(w, "\n--- Participant Results ---\n")
	for _, key := range result.keys() {
		res := result.Results[key]
		line := fmt.Sprintf("  %s: outcome=%s, artifacts=%d, duration=%s",
			key, res.Outcome.Status, res.Artifacts, res.Duration)
		if res.Outcome.FailedStage != "" {
			line += ", failed_stage=" + res.Outcome.FailedStage
		}
		fmt.Fprintln(w, line)
	}
}
