package naming

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNamingPolicyGap is returned when a persisted artifact has no naming rule.
var ErrNamingPolicyGap = errors.New("naming policy gap")

// ErrMissingSubject is returned when identity entities carry no subject.
var ErrMissingSubject = errors.New("identity entities have no subject")

// GapError reports the artifacts that have no destination rule.
type GapError struct {
	Artifacts []string
}

func (e *GapError) Error() string {
	return fmt.Sprintf("no naming rule for artifact(s) %s (rules version %s)",
		strings.Join(e.Artifacts, ", "), RulesVersion)
}

// Unwrap returns ErrNamingPolicyGap.
func (e *GapError) Unwrap() error { return ErrNamingPolicyGap }
