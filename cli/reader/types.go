// Package reader provides the read side of the tractography CLI.
//
// Every read-only command goes through this package. It queries the run
// manifest dataset written by the lode archive and never touches stage
// work directories or the BIDS dataset.
package reader

// ListRunItem is one participant run in `list runs`.
type ListRunItem struct {
	RunID      string `json:"run_id"`
	Subject    string `json:"subject"`
	Session    string `json:"session"`
	Outcome    string `json:"outcome"`
	Artifacts  int64  `json:"artifacts"`
	StartedAt  string `json:"started_at"`
	DurationMs int64  `json:"duration_ms"`
}

// ArtifactItem is one archived file of a participant run.
type ArtifactItem struct {
	Stage        string `json:"stage"`
	Artifact     string `json:"artifact"`
	Destination  string `json:"destination"`
	SizeBytes    int64  `json:"size_bytes"`
	RulesVersion string `json:"rules_version"`
}

// ParticipantRun is the manifest of one subject/session within a run.
type ParticipantRun struct {
	Subject     string         `json:"subject"`
	Session     string         `json:"session"`
	Outcome     string         `json:"outcome"`
	Message     string         `json:"message"`
	FailedStage string         `json:"failed_stage,omitempty"`
	Stages      []string       `json:"stages"`
	OutputDirs  []string       `json:"output_dirs"`
	Artifacts   int64          `json:"artifacts"`
	StartedAt   string         `json:"started_at"`
	CompletedAt string         `json:"completed_at"`
	DurationMs  int64          `json:"duration_ms"`
	Files       []ArtifactItem `json:"files"`
}

// InspectRunResponse is the deep view of one run across its participants.
type InspectRunResponse struct {
	RunID string `json:"run_id"`
	// Outcome is the first non-success participant outcome, or success.
	Outcome      string           `json:"outcome"`
	Participants []ParticipantRun `json:"participants"`
}

// RunStats aggregates participant run outcomes.
type RunStats struct {
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	ByOutcome map[string]int `json:"by_outcome"`
	Artifacts int64          `json:"artifacts"`
}

// MetricsSnapshot is a parsed metrics record.
type MetricsSnapshot struct {
	Ts             string `json:"ts"`
	RunID          string `json:"run_id"`
	Subject        string `json:"subject"`
	Session        string `json:"session"`
	StorageBackend string `json:"storage_backend"`

	// Run lifecycle
	RunsStarted   int64 `json:"runs_started"`
	RunsCompleted int64 `json:"runs_completed"`
	RunsFailed    int64 `json:"runs_failed"`

	// Stages
	StagesStarted   int64            `json:"stages_started"`
	StagesSucceeded int64            `json:"stages_succeeded"`
	StagesFailed    int64            `json:"stages_failed"`
	StagesSkipped   int64            `json:"stages_skipped"`
	StageDurationMs map[string]int64 `json:"stage_duration_ms,omitempty"`

	// External tools
	ToolLaunchSuccess int64            `json:"tool_launch_success"`
	ToolLaunchFailure int64            `json:"tool_launch_failure"`
	ToolNonZeroExit   int64            `json:"tool_nonzero_exit"`
	ToolLaunches      map[string]int64 `json:"tool_launches,omitempty"`

	// Surface shrink
	VerticesShrunk int64 `json:"vertices_shrunk"`
	VerticesFrozen int64 `json:"vertices_frozen"`

	// Archive
	ArchiveWriteSuccess int64 `json:"archive_write_success"`
	ArchiveWriteFailure int64 `json:"archive_write_failure"`
	ArchiveBytes        int64 `json:"archive_bytes"`
}

// ListRunsOptions filters `list runs`.
type ListRunsOptions struct {
	Subject string
	Outcome string
	// Limit caps the number of items. Zero means no limit.
	Limit int
}
