package types

import (
	"maps"
	"slices"
)

// Canonical entity names. Filenames carry the short forms (sub, ses, acq...);
// everything past the parser uses these long forms.
const (
	EntitySubject     = "subject"
	EntitySession     = "session"
	EntityAcquisition = "acquisition"
	EntityDirection   = "direction"
	EntityRun         = "run"
	EntityPart        = "part"
	EntityDesc        = "desc"
	EntitySpace       = "space"
	EntityHemi        = "hemi"
	EntityFrom        = "from"
	EntityTo          = "to"
	EntityMode        = "mode"
	EntitySuffix      = "suffix"
	EntityExtension   = "extension"
	EntityDatatype    = "datatype"
)

// Entities maps canonical entity names to values decoded from a file path.
// Values handed out by CandidateFile are copies; mutating them has no effect
// on the file they came from.
type Entities map[string]string

// Get returns the value of an entity and whether it is present.
func (e Entities) Get(name string) (string, bool) {
	v, ok := e[name]
	return v, ok
}

// Clone returns an independent copy.
func (e Entities) Clone() Entities {
	if e == nil {
		return Entities{}
	}
	return maps.Clone(e)
}

// Keys returns the entity names in sorted order.
func (e Entities) Keys() []string {
	return slices.Sorted(maps.Keys(e))
}

// CandidateFile is an indexed dataset file with its decoded entities.
// Immutable once constructed.
type CandidateFile struct {
	path       string
	entities   Entities
	derivative bool
}

// NewCandidateFile creates a candidate file. The entity map is copied.
func NewCandidateFile(path string, entities Entities, derivative bool) CandidateFile {
	return CandidateFile{
		path:       path,
		entities:   entities.Clone(),
		derivative: derivative,
	}
}

// Path returns the absolute path of the file.
func (c CandidateFile) Path() string { return c.path }

// Derivative reports whether the file came from a derivatives tree.
func (c CandidateFile) Derivative() bool { return c.derivative }

// Entity returns a single entity value.
func (c CandidateFile) Entity(name string) (string, bool) {
	v, ok := c.entities[name]
	return v, ok
}

// Entities returns a copy of all decoded entities.
func (c CandidateFile) Entities() Entities {
	return c.entities.Clone()
}

// IsZero reports whether c is the zero value.
func (c CandidateFile) IsZero() bool {
	return c.path == ""
}
