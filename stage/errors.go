package stage

import (
	"errors"
	"fmt"
	"strings"
)

// ErrGraphWiring is the sentinel for every composition failure.
var ErrGraphWiring = errors.New("graph wiring")

// WiringKind classifies a wiring failure.
type WiringKind string

const (
	WiringUnknownStage   WiringKind = "unknown_stage"
	WiringUnknownPort    WiringKind = "unknown_port"
	WiringKindMismatch   WiringKind = "kind_mismatch"
	WiringDuplicateStage WiringKind = "duplicate_stage"
	WiringMultipleSource WiringKind = "multiple_sources"
	WiringUnconnected    WiringKind = "unconnected_input"
	WiringCycle          WiringKind = "cycle"
	WiringNoInvoker      WiringKind = "no_invoker"
)

// WiringError identifies the offending stage and port of a wiring failure.
type WiringError struct {
	Kind  WiringKind
	Stage string
	Port  string
	Msg   string
	Cycle []string
}

func (e *WiringError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Stage != "" {
		b.WriteString(" at ")
		b.WriteString(e.Stage)
		if e.Port != "" {
			b.WriteString(".")
			b.WriteString(e.Port)
		}
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if len(e.Cycle) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Cycle, " -> "))
	}
	return b.String()
}

// Unwrap returns ErrGraphWiring.
func (e *WiringError) Unwrap() error { return ErrGraphWiring }

func wiringf(kind WiringKind, stage, port, format string, args ...any) *WiringError {
	return &WiringError{Kind: kind, Stage: stage, Port: port, Msg: fmt.Sprintf(format, args...)}
}
