package lode

import (
	"time"

	"github.com/justapithecus/tractography/metrics"
	"github.com/justapithecus/tractography/types"
)

// RecordKind discriminator values. The record kind is also the last
// partition key, so each kind lands in its own directory.
const (
	RecordKindArtifact = "artifact"
	RecordKindRun      = "run"
	RecordKindMetrics  = "metrics"
)

// StageAll is the stage partition value of run-level records.
const StageAll = "all"

// partitionKeys is the Hive layout shared by the write and read paths.
var partitionKeys = []string{"subject", "session", "stage", "run_id", "record_kind"}

// ArtifactRecord describes one file archived by a sink stage.
type ArtifactRecord struct {
	// Stage is the top-level stage that produced the file.
	Stage string
	// Artifact is the producing port, for example "shrunk_surface_lh".
	Artifact string
	// Source is the tool output path the file was copied from.
	Source string
	// Destination is the archive-relative path of the copy.
	Destination string
	// SizeBytes is the number of bytes archived.
	SizeBytes int64
	// RulesVersion is the naming rule set that produced Destination.
	RulesVersion string
}

// RunRecord is the manifest entry written once per completed run.
type RunRecord struct {
	Stages      []string
	OutputDirs  []string
	Outcome     *types.RunOutcome
	Artifacts   int
	StartedAt   time.Time
	CompletedAt time.Time
}

func (c *LodeClient) baseRecord(kind, stage string) map[string]any {
	return map[string]any{
		"record_kind":      kind,
		"manifest_version": types.ManifestVersion,
		"run_id":           c.config.RunID,
		"subject":          c.config.Subject,
		"session":          sessionPartition(c.config.Session),
		"stage":            stage,
	}
}

func toArtifactRecordMap(base map[string]any, rec ArtifactRecord, ts time.Time) map[string]any {
	base["artifact"] = rec.Artifact
	base["source"] = rec.Source
	base["destination"] = rec.Destination
	base["size_bytes"] = rec.SizeBytes
	base["rules_version"] = rec.RulesVersion
	base["ts"] = ts.UTC().Format(time.RFC3339Nano)
	return base
}

func toRunRecordMap(base map[string]any, rec RunRecord) map[string]any {
	base["stages"] = rec.Stages
	base["output_dirs"] = rec.OutputDirs
	base["artifacts"] = rec.Artifacts
	base["started_at"] = rec.StartedAt.UTC().Format(time.RFC3339Nano)
	base["completed_at"] = rec.CompletedAt.UTC().Format(time.RFC3339Nano)
	base["duration_ms"] = rec.CompletedAt.Sub(rec.StartedAt).Milliseconds()
	if rec.Outcome != nil {
		base["outcome"] = string(rec.Outcome.Status)
		base["message"] = rec.Outcome.Message
		base["failed_stage"] = rec.Outcome.FailedStage
	}
	return base
}

func toMetricsRecordMap(base map[string]any, snap metrics.Snapshot, ts time.Time) map[string]any {
	durations := make(map[string]int64, len(snap.StageDurations))
	for name, d := range snap.StageDurations {
		durations[name] = d.Milliseconds()
	}
	base["ts"] = ts.UTC().Format(time.RFC3339Nano)
	base["storage_backend"] = snap.StorageBackend
	base["runs_started_total"] = snap.RunsStarted
	base["runs_completed_total"] = snap.RunsCompleted
	base["runs_failed_total"] = snap.RunsFailed
	base["stages_started_total"] = snap.StagesStarted
	base["stages_succeeded_total"] = snap.StagesSucceeded
	base["stages_failed_total"] = snap.StagesFailed
	base["stages_skipped_total"] = snap.StagesSkipped
	base["stage_duration_ms"] = durations
	base["tool_launch_success_total"] = snap.ToolLaunchSuccess
	base["tool_launch_failure_total"] = snap.ToolLaunchFailure
	base["tool_nonzero_exit_total"] = snap.ToolNonZeroExit
	base["tool_launches"] = snap.ToolLaunches
	base["vertices_shrunk_total"] = snap.VerticesShrunk
	base["vertices_frozen_total"] = snap.VerticesFrozen
	base["archive_write_success_total"] = snap.ArchiveWriteSuccess
	base["archive_write_failure_total"] = snap.ArchiveWriteFailure
	base["archive_bytes_total"] = snap.ArchiveBytes
	return base
}

func sessionPartition(session string) string {
	if session == "" {
		return "none"
	}
	return session
}
