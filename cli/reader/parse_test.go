package reader

import (
	"slices"
	"strings"
	"testing"
)

func TestParseMetricsRecord(t *testing.T) {
	// Simulate a JSON-round-tripped record (float64 values)
	record := map[string]any{
		"record_kind":                 "metrics",
		"ts":                          "2026-02-03T15:00:00Z",
		"run_id":                      "20260203-150000_01",
		"subject":                     "01",
		"session":                     "none",
		"storage_backend":             "s3",
		"runs_started_total":          float64(1),
		"runs_completed_total":        float64(1),
		"stages_started_total":        float64(9),
		"stages_succeeded_total":      float64(9),
		"stage_duration_ms":           map[string]any{"preprocessing": float64(61000)},
		"tool_launch_success_total":   float64(7),
		"tool_nonzero_exit_total":     float64(0),
		"tool_launches":               map[string]any{"flirt": float64(1), "mrgrid": float64(1)},
		"vertices_shrunk_total":       float64(40962),
		"vertices_frozen_total":       float64(3),
		"archive_write_success_total": float64(5),
		"archive_bytes_total":         float64(1 << 20),
	}

	parsed, err := ParseMetricsRecord(record)
	if err != nil {
		t.Fatalf("ParseMetricsRecord failed: %v", err)
	}

	if parsed.Ts != "2026-02-03T15:00:00Z" {
		t.Errorf("Ts = %q", parsed.Ts)
	}
	if parsed.RunsStarted != 1 || parsed.RunsCompleted != 1 {
		t.Errorf("runs = %d/%d", parsed.RunsStarted, parsed.RunsCompleted)
	}
	if parsed.StagesStarted != 9 || parsed.StagesSucceeded != 9 {
		t.Errorf("stages = %d/%d", parsed.StagesStarted, parsed.StagesSucceeded)
	}
	if parsed.StageDurationMs["preprocessing"] != 61000 {
		t.Errorf("StageDurationMs = %v", parsed.StageDurationMs)
	}
	if parsed.ToolLaunches["flirt"] != 1 || len(parsed.ToolLaunches) != 2 {
		t.Errorf("ToolLaunches = %v", parsed.ToolLaunches)
	}
	if parsed.VerticesShrunk != 40962 || parsed.VerticesFrozen != 3 {
		t.Errorf("vertices = %d/%d", parsed.VerticesShrunk, parsed.VerticesFrozen)
	}
	if parsed.ArchiveBytes != 1<<20 {
		t.Errorf("ArchiveBytes = %d", parsed.ArchiveBytes)
	}
	if parsed.StorageBackend != "s3" || parsed.Subject != "01" {
		t.Errorf("dimensions = %q/%q", parsed.StorageBackend, parsed.Subject)
	}
}

func TestParseMetricsRecord_NilRecord(t *testing.T) {
	if _, err := ParseMetricsRecord(nil); err == nil {
		t.Error("expected error for nil record")
	}
}

func TestParseMetricsRecord_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name   string
		record map[string]any
		errMsg string
	}{
		{
			name:   "missing ts",
			record: map[string]any{"run_id": "r", "subject": "01"},
			errMsg: "ts",
		},
		{
			name:   "missing run_id",
			record: map[string]any{"ts": "2026-02-03T15:00:00Z", "subject": "01"},
			errMsg: "run_id",
		},
		{
			name:   "missing subject",
			record: map[string]any{"ts": "2026-02-03T15:00:00Z", "run_id": "r"},
			errMsg: "subject",
		},
		{
			name:   "all required missing",
			record: map[string]any{"record_kind": "metrics"},
			errMsg: "ts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMetricsRecord(tt.record)
			if err == nil {
				t.Fatal("expected error for missing required field, got nil")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error = %q, want it to mention %q", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestParseRunRecord(t *testing.T) {
	run, err := ParseRunRecord(map[string]any{
		"run_id":       "r1",
		"subject":      "01",
		"session":      "pre",
		"outcome":      "tool_failure",
		"message":      "bedpostx exited with code 1",
		"failed_stage": "tracto.bedpostx",
		"stages":       []any{"tractography"},
		"output_dirs":  []any{"tractography_output_r1"},
		"artifacts":    float64(0),
		"duration_ms":  float64(1500),
	})
	if err != nil {
		t.Fatalf("ParseRunRecord: %v", err)
	}
	if run.Outcome != "tool_failure" || run.FailedStage != "tracto.bedpostx" {
		t.Errorf("run = %+v", run)
	}
	if !slices.Equal(run.Stages, []string{"tractography"}) || !slices.Equal(run.OutputDirs, []string{"tractography_output_r1"}) {
		t.Errorf("stages/output dirs = %v/%v", run.Stages, run.OutputDirs)
	}
	if run.DurationMs != 1500 {
		t.Errorf("DurationMs = %d", run.DurationMs)
	}

	for _, missing := range []string{"run_id", "subject", "outcome"} {
		rec := map[string]any{"run_id": "r1", "subject": "01", "outcome": "success"}
		delete(rec, missing)
		if _, err := ParseRunRecord(rec); err == nil || !strings.Contains(err.Error(), missing) {
			t.Errorf("without %s: err = %v", missing, err)
		}
	}
}

func TestParseArtifactRecord(t *testing.T) {
	item, err := ParseArtifactRecord(map[string]any{
		"stage":         "preprocessing",
		"artifact":      "bvec_rotated",
		"destination":   "preprocessing_output_r1/sub-01/dwi/sub-01_desc-rotated_dwi.bvec",
		"size_bytes":    float64(123),
		"rules_version": "1",
	})
	if err != nil {
		t.Fatalf("ParseArtifactRecord: %v", err)
	}
	if item.SizeBytes != 123 || item.Artifact != "bvec_rotated" {
		t.Errorf("item = %+v", item)
	}

	if _, err := ParseArtifactRecord(map[string]any{"artifact": "x"}); err == nil {
		t.Error("expected error without destination")
	}
}

func TestToInt64(t *testing.T) {
	tests := []struct {
		in   any
		want int64
	}{
		{int64(3), 3},
		{float64(4), 4},
		{5, 5},
		{"6", 0},
		{nil, 0},
	}
	for _, tt := range tests {
		if got := toInt64(tt.in); got != tt.want {
			t.Errorf("toInt64(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
