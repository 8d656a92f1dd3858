package types

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Origin restricts a query to raw or derivative files.
type Origin int

const (
	// OriginAny accepts files from either tree.
	OriginAny Origin = iota
	// OriginRaw accepts only files outside derivatives trees.
	OriginRaw
	// OriginDerivative accepts only files from derivatives trees.
	OriginDerivative
)

// String returns the origin name.
func (o Origin) String() string {
	switch o {
	case OriginRaw:
		return "raw"
	case OriginDerivative:
		return "derivative"
	default:
		return "any"
	}
}

type matchMode int

const (
	matchAny matchMode = iota
	matchAbsent
	matchValues
	matchNone
)

// Match constrains a single entity of a candidate file.
// The zero value matches anything, including an absent entity.
type Match struct {
	mode   matchMode
	values []string
}

// Any matches every value and the absence of the entity.
func Any() Match { return Match{} }

// Absent matches only files that do not carry the entity.
func Absent() Match { return Match{mode: matchAbsent} }

// OneOf matches files carrying the entity with one of the given values.
func OneOf(values ...string) Match {
	v := slices.Clone(values)
	slices.Sort(v)
	v = slices.Compact(v)
	if len(v) == 0 {
		return Match{mode: matchNone}
	}
	return Match{mode: matchValues, values: v}
}

// IsAny reports whether m places no constraint.
func (m Match) IsAny() bool { return m.mode == matchAny }

// IsAbsent reports whether m requires the entity to be absent.
func (m Match) IsAbsent() bool { return m.mode == matchAbsent }

// Values returns the accepted values, sorted. Nil for Any and Absent.
func (m Match) Values() []string { return slices.Clone(m.values) }

// Matches reports whether an entity value satisfies m.
func (m Match) Matches(value string, present bool) bool {
	switch m.mode {
	case matchAny:
		return true
	case matchAbsent:
		return !present
	case matchValues:
		return present && slices.Contains(m.values, value)
	default:
		return false
	}
}

// Refine intersects m with o. The result matches only what both accept.
func (m Match) Refine(o Match) Match {
	switch {
	case m.mode == matchAny:
		return o
	case o.mode == matchAny:
		return m
	case m.mode == matchNone || o.mode == matchNone:
		return Match{mode: matchNone}
	case m.mode == matchAbsent && o.mode == matchAbsent:
		return m
	case m.mode == matchAbsent || o.mode == matchAbsent:
		return Match{mode: matchNone}
	}
	var both []string
	for _, v := range m.values {
		if slices.Contains(o.values, v) {
			both = append(both, v)
		}
	}
	return OneOf(both...)
}

// Equal reports whether two matches accept exactly the same files.
func (m Match) Equal(o Match) bool {
	return m.mode == o.mode && slices.Equal(m.values, o.values)
}

// String renders the match for diagnostics.
func (m Match) String() string {
	switch m.mode {
	case matchAny:
		return "*"
	case matchAbsent:
		return "<absent>"
	case matchNone:
		return "<none>"
	default:
		return strings.Join(m.values, "|")
	}
}

// Constraints maps entity names to matches.
type Constraints map[string]Match

// FileQuery describes how to select one file type from a dataset.
// Refine returns a new query; a FileQuery is never mutated after construction.
type FileQuery struct {
	// Name is the file type key, e.g. "dwi" or "brain_mask".
	Name string
	// Constraints restrict entities, including datatype, suffix and extension.
	Constraints Constraints
	// Origin selects raw or derivative files.
	Origin Origin
	// PairEntity, when set, makes the query resolve to exactly two files
	// ordered by PairValues, e.g. hemi L then R.
	PairEntity string
	// PairValues lists the expected values of PairEntity in output order.
	PairValues []string
	// ProducedBy names the flag or tool that produces this file type.
	ProducedBy string
}

// Cardinality is the number of files the query must resolve to.
func (q FileQuery) Cardinality() int {
	if q.PairEntity != "" {
		return len(q.PairValues)
	}
	return 1
}

// Constraint returns the match for an entity, Any when unconstrained.
func (q FileQuery) Constraint(entity string) Match {
	return q.Constraints[entity]
}

// Refine returns a copy of q with each filter intersected into its constraints.
func (q FileQuery) Refine(filter Constraints) FileQuery {
	out := q
	out.Constraints = maps.Clone(q.Constraints)
	if out.Constraints == nil {
		out.Constraints = Constraints{}
	}
	out.PairValues = slices.Clone(q.PairValues)
	for entity, m := range filter {
		out.Constraints[entity] = out.Constraints[entity].Refine(m)
	}
	return out
}

// Accepts reports whether a candidate satisfies every constraint and the origin.
// Pairing is not checked here.
func (q FileQuery) Accepts(c CandidateFile) bool {
	switch q.Origin {
	case OriginRaw:
		if c.Derivative() {
			return false
		}
	case OriginDerivative:
		if !c.Derivative() {
			return false
		}
	}
	for entity, m := range q.Constraints {
		v, ok := c.Entity(entity)
		if !m.Matches(v, ok) {
			return false
		}
	}
	return true
}

// String renders the query for diagnostics, constraints in sorted order.
func (q FileQuery) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s{origin=%s", q.Name, q.Origin)
	for _, k := range slices.Sorted(maps.Keys(q.Constraints)) {
		fmt.Fprintf(&b, " %s=%s", k, q.Constraints[k])
	}
	if q.PairEntity != "" {
		fmt.Fprintf(&b, " pair=%s:%s", q.PairEntity, strings.Join(q.PairValues, ","))
	}
	b.WriteString("}")
	return b.String()
}
