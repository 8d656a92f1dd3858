// Package naming turns the identity entities of a run into canonical
// BIDS-style destination paths for archived stage outputs.
package naming

import (
	"fmt"
	"maps"
	"path"
	"slices"
	"strings"

	"github.com/justapithecus/tractography/types"
)

// labelFields are the identity entities that make up a label, in order.
var labelFields = []struct {
	entity string
	key    string
}{
	{types.EntitySubject, "sub"},
	{types.EntitySession, "ses"},
	{types.EntityAcquisition, "acq"},
	{types.EntityDirection, "dir"},
	{types.EntityPart, "part"},
}

// Label builds the canonical identity label, e.g. "sub-01_ses-pre_acq-ms".
// Absent fields are omitted and unknown entities are ignored.
func Label(entities types.Entities) (string, error) {
	if v, ok := entities.Get(types.EntitySubject); !ok || v == "" {
		return "", ErrMissingSubject
	}
	parts := make([]string, 0, len(labelFields))
	for _, f := range labelFields {
		if v, ok := entities.Get(f.entity); ok && v != "" {
			parts = append(parts, f.key+"-"+v)
		}
	}
	return strings.Join(parts, "_"), nil
}

// Substitution maps an intermediate filename stem to its canonical name.
type Substitution struct {
	Artifact  string
	From      string
	To        string
	Extension string
}

// Table is the substitution table for one identity.
// Immutable; safe for concurrent use.
type Table struct {
	label  string
	prefix string
	rules  map[string]Rule
	order  []string
}

// BuildPaths builds the substitution table for a set of identity entities.
func BuildPaths(entities types.Entities, rules []Rule) (*Table, error) {
	label, err := Label(entities)
	if err != nil {
		return nil, err
	}

	prefix := "sub-" + entities[types.EntitySubject]
	if ses, ok := entities.Get(types.EntitySession); ok && ses != "" {
		prefix = path.Join(prefix, "ses-"+ses)
	}

	t := &Table{
		label:  label,
		prefix: prefix,
		rules:  make(map[string]Rule, len(rules)),
	}
	for _, r := range rules {
		if r.Artifact == "" || r.Template == "" {
			return nil, fmt.Errorf("naming rule %+v is incomplete", r)
		}
		if _, dup := t.rules[r.Artifact]; dup {
			return nil, fmt.Errorf("duplicate naming rule for artifact %q", r.Artifact)
		}
		t.rules[r.Artifact] = r
		t.order = append(t.order, r.Artifact)
	}
	return t, nil
}

// Label returns the identity label the table was built for.
func (t *Table) Label() string { return t.label }

// Substitutions lists every rule expanded for this identity, in rule order.
func (t *Table) Substitutions() []Substitution {
	out := make([]Substitution, 0, len(t.order))
	for _, a := range t.order {
		r := t.rules[a]
		out = append(out, Substitution{
			Artifact:  a,
			From:      r.Emits,
			To:        t.render(r),
			Extension: r.Extension,
		})
	}
	return out
}

// Destination returns the relative destination path of an artifact,
// sub-<id>[/ses-<id>]/<modality>/<canonical name><ext>. The extension is
// taken from the rule or else from the source file.
func (t *Table) Destination(artifact, source string) (string, error) {
	r, ok := t.rules[artifact]
	if !ok {
		return "", &GapError{Artifacts: []string{artifact}}
	}
	ext := r.Extension
	if ext == "" {
		ext = Extension(source)
	}
	name := t.render(r)
	return path.Join(t.prefix, Modality(name), name+ext), nil
}

// CheckTotal verifies every artifact has a rule.
func (t *Table) CheckTotal(artifacts []string) error {
	return CheckTotal(artifacts, slices.Collect(maps.Values(t.rules)))
}

func (t *Table) render(r Rule) string {
	return strings.ReplaceAll(r.Template, "{label}", t.label)
}

// CheckTotal verifies every artifact in the list is covered by a rule.
// Called when a stage is built, before any tool runs.
func CheckTotal(artifacts []string, rules []Rule) error {
	covered := make(map[string]bool, len(rules))
	for _, r := range rules {
		covered[r.Artifact] = true
	}
	var gaps []string
	for _, a := range artifacts {
		if !covered[a] {
			gaps = append(gaps, a)
		}
	}
	if len(gaps) > 0 {
		slices.Sort(gaps)
		return &GapError{Artifacts: slices.Compact(gaps)}
	}
	return nil
}

// Modality returns the output subdirectory for a canonical filename,
// derived from its suffix (the last underscore-separated segment).
func Modality(name string) string {
	suffix := name
	if i := strings.LastIndex(name, "_"); i >= 0 {
		suffix = name[i+1:]
	}
	if i := strings.Index(suffix, "."); i >= 0 {
		suffix = suffix[:i]
	}
	if m, ok := modalities[suffix]; ok {
		return m
	}
	return suffix
}

// Extension returns the extension of a path starting at the first dot of
// its basename, so "x.nii.gz" yields ".nii.gz". Empty when there is none.
func Extension(p string) string {
	base := path.Base(strings.ReplaceAll(p, "\\", "/"))
	if i := strings.Index(base, "."); i > 0 {
		return base[i:]
	}
	return ""
}
