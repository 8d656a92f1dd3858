package reader

import "errors"

// ParseMetricsRecord converts a Lode record (map[string]any) to a MetricsSnapshot.
// Handles both int64 (direct writes) and float64 (JSON round-trips) for numeric fields.
func ParseMetricsRecord(record map[string]any) (*MetricsSnapshot, error) {
	if record == nil {
		return nil, errors.New("nil record")
	}

	snap := &MetricsSnapshot{
		Ts:             toString(record["ts"]),
		RunID:          toString(record["run_id"]),
		Subject:        toString(record["subject"]),
		Session:        toString(record["session"]),
		StorageBackend: toString(record["storage_backend"]),

		RunsStarted:   toInt64(record["runs_started_total"]),
		RunsCompleted: toInt64(record["runs_completed_total"]),
		RunsFailed:    toInt64(record["runs_failed_total"]),

		StagesStarted:   toInt64(record["stages_started_total"]),
		StagesSucceeded: toInt64(record["stages_succeeded_total"]),
		StagesFailed:    toInt64(record["stages_failed_total"]),
		StagesSkipped:   toInt64(record["stages_skipped_total"]),
		StageDurationMs: toInt64Map(record["stage_duration_ms"]),

		ToolLaunchSuccess: toInt64(record["tool_launch_success_total"]),
		ToolLaunchFailure: toInt64(record["tool_launch_failure_total"]),
		ToolNonZeroExit:   toInt64(record["tool_nonzero_exit_total"]),
		ToolLaunches:      toInt64Map(record["tool_launches"]),

		VerticesShrunk: toInt64(record["vertices_shrunk_total"]),
		VerticesFrozen: toInt64(record["vertices_frozen_total"]),

		ArchiveWriteSuccess: toInt64(record["archive_write_success_total"]),
		ArchiveWriteFailure: toInt64(record["archive_write_failure_total"]),
		ArchiveBytes:        toInt64(record["archive_bytes_total"]),
	}

	// The write path always populates these; missing values indicate
	// a malformed record.
	if snap.Ts == "" {
		return nil, errors.New("metrics record missing required field: ts")
	}
	if snap.RunID == "" {
		return nil, errors.New("metrics record missing required field: run_id")
	}
	if snap.Subject == "" {
		return nil, errors.New("metrics record missing required field: subject")
	}
	return snap, nil
}

// ParseRunRecord converts a run manifest record. Files are filled in by
// the caller from artifact records.
func ParseRunRecord(record map[string]any) (*ParticipantRun, error) {
	if record == nil {
		return nil, errors.New("nil record")
	}
	run := &ParticipantRun{
		Subject:     toString(record["subject"]),
		Session:     toString(record["session"]),
		Outcome:     toString(record["outcome"]),
		Message:     toString(record["message"]),
		FailedStage: toString(record["failed_stage"]),
		Stages:      toStrings(record["stages"]),
		OutputDirs:  toStrings(record["output_dirs"]),
		Artifacts:   toInt64(record["artifacts"]),
		StartedAt:   toString(record["started_at"]),
		CompletedAt: toString(record["completed_at"]),
		DurationMs:  toInt64(record["duration_ms"]),
	}
	if toString(record["run_id"]) == "" {
		return nil, errors.New("run record missing required field: run_id")
	}
	if run.Subject == "" {
		return nil, errors.New("run record missing required field: subject")
	}
	if run.Outcome == "" {
		return nil, errors.New("run record missing required field: outcome")
	}
	return run, nil
}

// ParseArtifactRecord converts an archived file record.
func ParseArtifactRecord(record map[string]any) (ArtifactItem, error) {
	item := ArtifactItem{
		Stage:        toString(record["stage"]),
		Artifact:     toString(record["artifact"]),
		Destination:  toString(record["destination"]),
		SizeBytes:    toInt64(record["size_bytes"]),
		RulesVersion: toString(record["rules_version"]),
	}
	if item.Destination == "" {
		return ArtifactItem{}, errors.New("artifact record missing required field: destination")
	}
	return item, nil
}

// toInt64 converts a value to int64, handling float64 from JSON and int64 from direct writes.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toStrings(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			out = append(out, toString(item))
		}
		return out
	default:
		return nil
	}
}

// toInt64Map handles both map[string]int64 (direct) and map[string]any
// (JSON round-trip).
func toInt64Map(v any) map[string]int64 {
	switch m := v.(type) {
	case map[string]int64:
		return m
	case map[string]any:
		result := make(map[string]int64, len(m))
		for k, val := range m {
			result[k] = toInt64(val)
		}
		return result
	default:
		return nil
	}
}
