package runtime

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/justapithecus/tractography/types"
)

func resultFor(item WorkItem, status types.OutcomeStatus) *RunResult {
	return &RunResult{
		RunMeta: &types.RunMeta{RunID: "r", Subject: item.Subject, Session: item.Session, Stages: []string{"reconstruction"}},
		Outcome: &types.RunOutcome{Status: status},
	}
}

func TestWorkItem_Key(t *testing.T) {
	if got := (WorkItem{Subject: "01"}).Key(); got != "sub-01" {
		t.Errorf("Key = %q", got)
	}
	if got := (WorkItem{Subject: "01", Session: "pre"}).Key(); got != "sub-01_ses-pre" {
		t.Errorf("Key = %q", got)
	}
}

func TestOperator_RunsEveryItemOnce(t *testing.T) {
	var calls atomic.Int64
	op := NewOperator(FanOutConfig{Parallel: 2}, func(_ context.Context, item WorkItem) (*RunResult, error) {
		calls.Add(1)
		return resultFor(item, types.OutcomeSuccess), nil
	})

	res := op.Run(t.Context(), []WorkItem{
		{Subject: "01", Session: "pre"},
		{Subject: "01", Session: "post"},
		{Subject: "02"},
		{Subject: "01", Session: "pre"},
	})
	if calls.Load() != 3 {
		t.Errorf("factory calls = %d, want 3", calls.Load())
	}
	if res.RunsTotal != 3 || res.RunsSucceeded != 3 || res.Deduped != 1 {
		t.Errorf("result = %+v", res)
	}
	for _, key := range []string{"sub-01_ses-pre", "sub-01_ses-post", "sub-02"} {
		if _, ok := res.Results[key]; !ok {
			t.Errorf("missing result for %s", key)
		}
	}
	if res.WorstOutcome() != types.OutcomeSuccess {
		t.Errorf("WorstOutcome = %s", res.WorstOutcome())
	}
}

func TestOperator_BoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int64
	op := NewOperator(FanOutConfig{Parallel: 2}, func(_ context.Context, item WorkItem) (*RunResult, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		running.Add(-1)
		return resultFor(item, types.OutcomeSuccess), nil
	})

	op.Run(t.Context(), []WorkItem{{Subject: "01"}, {Subject: "02"}, {Subject: "03"}, {Subject: "04"}, {Subject: "05"}})
	if p := peak.Load(); p > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", p)
	}
}

func TestOperator_FailuresContinueByDefault(t *testing.T) {
	op := NewOperator(FanOutConfig{Parallel: 1}, func(_ context.Context, item WorkItem) (*RunResult, error) {
		switch item.Subject {
		case "01":
			return resultFor(item, types.OutcomeToolFailure), nil
		case "02":
			return nil, errors.New("could not build run")
		}
		return resultFor(item, types.OutcomeSuccess), nil
	})

	res := op.Run(t.Context(), []WorkItem{{Subject: "01"}, {Subject: "02"}, {Subject: "03"}})
	if res.RunsTotal != 3 || res.RunsFailed != 2 || res.RunsSucceeded != 1 {
		t.Errorf("result = %+v", res)
	}
	if res.WorstOutcome() != types.OutcomeToolFailure {
		t.Errorf("WorstOutcome = %s", res.WorstOutcome())
	}
}

func TestOperator_FailFast(t *testing.T) {
	var calls atomic.Int64
	op := NewOperator(FanOutConfig{Parallel: 1, FailFast: true}, func(_ context.Context, item WorkItem) (*RunResult, error) {
		calls.Add(1)
		return resultFor(item, types.OutcomeInputError), nil
	})

	res := op.Run(t.Context(), []WorkItem{{Subject: "01"}, {Subject: "02"}, {Subject: "03"}})
	if calls.Load() != 1 {
		t.Errorf("factory calls = %d, want 1", calls.Load())
	}
	if res.RunsSkipped != 2 {
		t.Errorf("RunsSkipped = %d, want 2", res.RunsSkipped)
	}
	if res.WorstOutcome() != types.OutcomeInputError {
		t.Errorf("WorstOutcome = %s", res.WorstOutcome())
	}
}

func TestPrintFanOutSummary(t *testing.T) {
	res := FanOutResult{
		RunsTotal:     2,
		RunsSucceeded: 1,
		RunsFailed:    1,
		Results: map[string]*RunResult{
			"sub-02": {Outcome: &types.RunOutcome{Status: types.OutcomeToolFailure, FailedStage: "bedpostx"}},
			"sub-01": {Outcome: &types.RunOutcome{Status: types.OutcomeSuccess}, Artifacts: 7},
		},
	}
	var buf bytes.Buffer
	PrintFanOutSummary(&buf, res)
	out := buf.String()

	if !strings.Contains(out, "2 total, 1 succeeded, 1 failed") {
		t.Errorf("summary missing totals:\n%s", out)
	}
	i1 := strings.Index(out, "sub-01: outcome=success, artifacts=7")
	i2 := strings.Index(out, "sub-02: outcome=tool_failure")
	if i1 < 0 || i2 < 0 || i1 > i2 {
		t.Errorf("participant lines missing or unsorted:\n%s", out)
	}
	if !strings.Contains(out, "failed_stage=bedpostx") {
		t.Errorf("summary missing failed stage:\n%s", out)
	}
}
