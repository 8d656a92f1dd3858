package main

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/tractography/runtime"
	"github.com/justapithecus/tractography/types"
)

func TestExitErrHandler_NilError(t *testing.T) {
	// Should not panic or exit on nil error
	exitErrHandler(nil, nil)
}

func TestExitStatus_ExitCoder(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"success no message", cli.Exit("", 0), 0, ""},
		{"input error", cli.Exit("sub-01: missing required input", 1), 1, "sub-01: missing required input\n"},
		{"tool failure", cli.Exit("", 2), 2, ""},
		{"archive failure", cli.Exit("archive unreachable", 3), 3, "archive unreachable\n"},
		{"canceled", cli.Exit("", 130), 130, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if got := exitStatus(&buf, tt.err); got != tt.wantCode {
				t.Errorf("exit code = %d, want %d", got, tt.wantCode)
			}
			if buf.String() != tt.wantMsg {
				t.Errorf("message = %q, want %q", buf.String(), tt.wantMsg)
			}
		})
	}
}

func TestExitStatus_WrappedExitCoder(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", cli.Exit("inner error", 42))

	var buf bytes.Buffer
	if got := exitStatus(&buf, wrapped); got != 42 {
		t.Errorf("exit code = %d, want 42", got)
	}
}

func TestExitStatus_RegularError(t *testing.T) {
	var buf bytes.Buffer
	if got := exitStatus(&buf, errors.New("regular error")); got != 1 {
		t.Errorf("exit code = %d, want 1", got)
	}
	if buf.String() != "Error: regular error\n" {
		t.Errorf("message = %q", buf.String())
	}
}

// TestExitStatus_OutcomeCodes verifies every run outcome reaches the
// process with its own exit code.
func TestExitStatus_OutcomeCodes(t *testing.T) {
	tests := []struct {
		status types.OutcomeStatus
		want   int
	}{
		{types.OutcomeSuccess, 0},
		{types.OutcomeInputError, 1},
		{types.OutcomeToolFailure, 2},
		{types.OutcomeArchiveFailure, 3},
		{types.OutcomeCanceled, 130},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			err := cli.Exit("", runtime.ExitCode(tt.status))
			if got := exitStatus(&bytes.Buffer{}, err); got != tt.want {
				t.Errorf("exit code = %d, want %d", got, tt.want)
			}
		})
	}
}
