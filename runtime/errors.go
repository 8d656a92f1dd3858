package runtime

import (
	"errors"
	"fmt"
	"strings"
)

// ErrExternalTool classifies failures of a stage's work: a program that
// could not start, exited non-zero, or left a declared output missing.
var ErrExternalTool = errors.New("external tool failure")

// stderrTail bounds the stderr kept in ToolError messages.
const stderrTail = 2048

// ToolError describes a failed stage invocation.
type ToolError struct {
	// Stage is the leaf stage name.
	Stage string
	// Program is the external program, empty for in-process stages.
	Program string
	// ExitCode is the program exit code, -1 when it was killed by a signal.
	ExitCode int
	// Stderr is the tail of the captured stderr.
	Stderr string
	// Reason describes the failure when there is no exit code.
	Reason string
	// Err is the underlying error, if any.
	Err error
}

func (e *ToolError) Error() string {
	var b strings.Builder
	if e.Program != "" {
		b.WriteString(e.Program)
	} else {
		b.WriteString(e.Stage)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	} else {
		fmt.Fprintf(&b, " exited with code %d", e.ExitCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Stderr != "" {
		fmt.Fprintf(&b, "\n%s", e.Stderr)
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *ToolError) Unwrap() error { return e.Err }

// Is matches ErrExternalTool.
func (e *ToolError) Is(target error) bool { return target == ErrExternalTool }

// StageError attributes a failure to the leaf stage it happened in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("stage %s: %v", e.Stage, e.Err) }

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error { return e.Err }

// FailedStage returns the stage a run error is attributed to, if any.
func FailedStage(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// tail returns the last stderrTail bytes of b, trimmed.
func tail(b []byte) string {
	if len(b) > stderrTail {
		b = b[len(b)-stderrTail:]
	}
	return strings.TrimSpace(string(b))
}
