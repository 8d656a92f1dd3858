package types

import (
	"slices"
)

// Identity selects the subject and session a resolution targets.
// An empty field means "any".
type Identity struct {
	Subject string
	Session string
	// SessionOptional also accepts files without a session entity. It is
	// set for sessions discovered in the dataset rather than requested.
	SessionOptional bool
}

// Value returns the identity value of a reserved entity ("subject" or "session").
func (i Identity) Value(entity string) string {
	switch entity {
	case EntitySubject:
		return i.Subject
	case EntitySession:
		return i.Session
	default:
		return ""
	}
}

// Matches reports whether a candidate belongs to this identity.
// An "any" or optional session also accepts files without a session entity.
func (i Identity) Matches(c CandidateFile) bool {
	if i.Subject != "" {
		if v, ok := c.Entity(EntitySubject); !ok || v != i.Subject {
			return false
		}
	}
	if i.Session != "" {
		v, ok := c.Entity(EntitySession)
		if !ok {
			return i.SessionOptional
		}
		if v != i.Session {
			return false
		}
	}
	return true
}

// ResolvedDataset maps file type keys to the files they resolved to.
// Single-file types hold one file; paired types hold both files in pair order.
// Types that matched nothing and were not required are absent.
type ResolvedDataset struct {
	identity Identity
	order    []string
	entries  map[string][]CandidateFile
}

// NewResolvedDataset builds a dataset from resolved entries, keeping the
// order in which keys are listed. Slices are copied.
func NewResolvedDataset(identity Identity, order []string, entries map[string][]CandidateFile) *ResolvedDataset {
	d := &ResolvedDataset{
		identity: identity,
		entries:  make(map[string][]CandidateFile, len(entries)),
	}
	for _, name := range order {
		files, ok := entries[name]
		if !ok || len(files) == 0 {
			continue
		}
		if _, dup := d.entries[name]; dup {
			continue
		}
		d.order = append(d.order, name)
		d.entries[name] = slices.Clone(files)
	}
	return d
}

// Identity returns the identity the dataset was resolved for.
func (d *ResolvedDataset) Identity() Identity { return d.identity }

// Names returns the resolved file type keys in resolution order.
func (d *ResolvedDataset) Names() []string { return slices.Clone(d.order) }

// Len returns the number of resolved file types.
func (d *ResolvedDataset) Len() int { return len(d.order) }

// Has reports whether a file type was resolved.
func (d *ResolvedDataset) Has(name string) bool {
	_, ok := d.entries[name]
	return ok
}

// Files returns the files of a resolved type in order.
func (d *ResolvedDataset) Files(name string) []CandidateFile {
	return slices.Clone(d.entries[name])
}

// File returns the single file of a resolved type. For paired types it
// returns the first file of the pair.
func (d *ResolvedDataset) File(name string) (CandidateFile, bool) {
	files := d.entries[name]
	if len(files) == 0 {
		return CandidateFile{}, false
	}
	return files[0], true
}

// Paths returns the absolute paths of a resolved type in order.
func (d *ResolvedDataset) Paths(name string) []string {
	files := d.entries[name]
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path()
	}
	return out
}
