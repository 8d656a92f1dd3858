package runtime

import (
	"context"
	"errors"

	"github.com/justapithecus/tractography/bids"
	"github.com/justapithecus/tractography/lode"
	"github.com/justapithecus/tractography/naming"
	"github.com/justapithecus/tractography/stage"
	"github.com/justapithecus/tractography/types"
)

// Process exit codes, one per outcome status.
const (
	ExitCodeSuccess        = 0
	ExitCodeInputError     = 1
	ExitCodeToolFailure    = 2
	ExitCodeArchiveFailure = 3
	ExitCodeCanceled       = 130
)

// ClassifyError maps a run error to its outcome. A nil error is success.
//
// Classification order:
//   - context cancellation or deadline: canceled
//   - resolution, filter, wiring and naming errors: input_error
//   - archive storage errors: archive_failure
//   - anything else, including external tool failures: tool_failure
func ClassifyError(err error) *types.RunOutcome {
	if err == nil {
		return &types.RunOutcome{Status: types.OutcomeSuccess, Message: "run completed successfully"}
	}

	outcome := &types.RunOutcome{
		Message:     err.Error(),
		FailedStage: FailedStage(err),
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome.Status = types.OutcomeCanceled
	case isInputError(err):
		outcome.Status = types.OutcomeInputError
	case lode.IsStorageError(err), errors.Is(err, lode.ErrInvalidPath):
		outcome.Status = types.OutcomeArchiveFailure
	default:
		outcome.Status = types.OutcomeToolFailure
	}
	return outcome
}

func isInputError(err error) bool {
	for _, target := range []error{
		bids.ErrConflictingFilter,
		bids.ErrResolutionCardinality,
		bids.ErrMissingRequiredInput,
		bids.ErrInvalidFilter,
		stage.ErrGraphWiring,
		naming.ErrNamingPolicyGap,
		naming.ErrMissingSubject,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ExitCode returns the process exit code for an outcome status.
func ExitCode(status types.OutcomeStatus) int {
	switch status {
	case types.OutcomeSuccess:
		return ExitCodeSuccess
	case types.OutcomeInputError:
		return ExitCodeInputError
	case types.OutcomeArchiveFailure:
		return ExitCodeArchiveFailure
	case types.OutcomeCanceled:
		return ExitCodeCanceled
	default:
		return ExitCodeToolFailure
	}
}
