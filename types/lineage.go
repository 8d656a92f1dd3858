// Package types defines the core domain types shared by the resolver,
// the output namer, the stage graph and the run orchestrator.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"fmt"
)

// RunMeta identifies a single pipeline run over one subject/session.
type RunMeta struct {
	// RunID is the run identifier: a timestamp plus the first participant label.
	RunID string
	// Subject is the participant label without the "sub-" prefix.
	Subject string
	// Session is the session label without the "ses-" prefix. Empty when
	// the dataset has no sessions.
	Session string
	// Stages lists the selected top-level stages in execution order.
	Stages []string
}

// Validate checks run identity rules:
//   - run_id must be non-empty
//   - subject must be a concrete label
//   - at least one stage must be selected
func (r *RunMeta) Validate() error {
	if r.RunID == "" {
		return errors.New("run_id must be non-empty")
	}
	if r.Subject == "" {
		return errors.New("subject must be non-empty")
	}
	if len(r.Stages) == 0 {
		return fmt.Errorf("run %s selects no stages", r.RunID)
	}
	return nil
}

// SessionOrNone returns the session label, or "none" when the run has no session.
// Used as a partition value where an empty string is not allowed.
func (r *RunMeta) SessionOrNone() string {
	if r.Session == "" {
		return "none"
	}
	return r.Session
}

// OutcomeStatus represents the final status of a run.
type OutcomeStatus string

const (
	// OutcomeSuccess indicates every selected stage completed.
	OutcomeSuccess OutcomeStatus = "success"
	// OutcomeInputError indicates dataset resolution or graph wiring failed.
	OutcomeInputError OutcomeStatus = "input_error"
	// OutcomeToolFailure indicates an external tool or in-process stage failed.
	OutcomeToolFailure OutcomeStatus = "tool_failure"
	// OutcomeArchiveFailure indicates archiving an output failed.
	OutcomeArchiveFailure OutcomeStatus = "archive_failure"
	// OutcomeCanceled indicates the run was interrupted.
	OutcomeCanceled OutcomeStatus = "canceled"
)

// RunOutcome represents the final outcome of a run.
type RunOutcome struct {
	// Status is the outcome classification.
	Status OutcomeStatus
	// Message is a human-readable description.
	Message string
	// FailedStage names the stage that failed, if any.
	FailedStage string
}
