package bids

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for dataset resolution. Use errors.Is against these;
// the typed errors below carry the details.
var (
	// ErrConflictingFilter is returned when a filter file pins a reserved
	// entity (subject, session) to a value other than the run identity.
	ErrConflictingFilter = errors.New("conflicting filter")

	// ErrResolutionCardinality is returned when a file type resolves to
	// more or fewer files than it allows.
	ErrResolutionCardinality = errors.New("resolution cardinality violated")

	// ErrMissingRequiredInput is returned when a required file type matches nothing.
	ErrMissingRequiredInput = errors.New("missing required input")

	// ErrInvalidFilter is returned for malformed or unknown filter entries.
	ErrInvalidFilter = errors.New("invalid filter")
)

// ConflictingFilterError reports a filter that contradicts the run identity.
type ConflictingFilterError struct {
	FileType string
	Entity   string
	Identity string
	Filter   []string
}

func (e *ConflictingFilterError) Error() string {
	return fmt.Sprintf("filter for %q sets %s to %s, conflicting with the requested %s %q",
		e.FileType, e.Entity, strings.Join(e.Filter, ","), e.Entity, e.Identity)
}

// Unwrap returns ErrConflictingFilter.
func (e *ConflictingFilterError) Unwrap() error { return ErrConflictingFilter }

// CardinalityError reports a file type that resolved to the wrong number of files.
type CardinalityError struct {
	FileType string
	Want     int
	Paths    []string
	Reason   string
}

func (e *CardinalityError) Error() string {
	msg := fmt.Sprintf("expected %d file(s) for %q, found %d", e.Want, e.FileType, len(e.Paths))
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if len(e.Paths) > 0 {
		msg += " [" + strings.Join(e.Paths, ", ") + "]"
	}
	if len(e.Paths) > e.Want {
		msg += "; narrow the selection with a filter file"
	}
	return msg
}

// Unwrap returns ErrResolutionCardinality.
func (e *CardinalityError) Unwrap() error { return ErrResolutionCardinality }

// MissingInputError reports a required file type with no matching file.
type MissingInputError struct {
	FileType   string
	Query      string
	ProducedBy string
}

func (e *MissingInputError) Error() string {
	msg := fmt.Sprintf("no file found for required input %q (%s)", e.FileType, e.Query)
	if e.ProducedBy != "" {
		msg += "; " + e.ProducedBy
	}
	return msg
}

// Unwrap returns ErrMissingRequiredInput.
func (e *MissingInputError) Unwrap() error { return ErrMissingRequiredInput }
