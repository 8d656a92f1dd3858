// Package adapter defines the notification boundary of the pipeline.
//
// Adapters publish run completion notifications to downstream systems
// (for example a lab scheduler waiting for a participant's derivatives).
// The runtime owns adapter lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"fmt"
	"time"
)

// EventTypeRunCompleted is the only event type published.
const EventTypeRunCompleted = "run_completed"

// RunCompletedEvent is the payload published when a run finishes.
type RunCompletedEvent struct {
	ManifestVersion string   `json:"manifest_version"`
	EventType       string   `json:"event_type"` // always "run_completed"
	RunID           string   `json:"run_id"`
	Subject         string   `json:"subject"`
	Session         string   `json:"session,omitempty"`
	Stages          []string `json:"stages"`
	Outcome         string   `json:"outcome"` // success, input_error, tool_failure, ...
	Message         string   `json:"message,omitempty"`
	FailedStage     string   `json:"failed_stage,omitempty"`
	OutputDirs      []string `json:"output_dirs"`
	ArtifactCount   int      `json:"artifact_count"`
	Timestamp       string   `json:"timestamp"` // RFC 3339
	DurationMs      int64    `json:"duration_ms"`
}

// Adapter publishes run completion events to a downstream system.
type Adapter interface {
	// Publish sends a run completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *RunCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// BaseBackoff is the delay before the first retry. It doubles per retry.
var BaseBackoff = 500 * time.Millisecond

// Retry calls op up to 1+retries times with exponential backoff between
// attempts. It stops early when ctx is done or when permanent reports the
// error as non-retriable. name prefixes returned errors.
func Retry(ctx context.Context, name string, retries int, op func(context.Context) error, permanent func(error) bool) error {
	var lastErr error
	attempts := 1 + retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * BaseBackoff
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(backoff):
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if permanent != nil && permanent(lastErr) {
			return fmt.Errorf("%s: non-retriable error: %w", name, lastErr)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
