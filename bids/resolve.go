package bids

import (
	"fmt"
	"slices"
	"strings"

	"github.com/justapithecus/tractography/types"
)

// reservedEntities are owned by the run identity. Filters may restate them
// but never contradict them.
var reservedEntities = []string{types.EntitySubject, types.EntitySession}

// SessionPolicy controls how ResolveAll treats a subject with several sessions.
type SessionPolicy string

const (
	// SessionEach resolves every session of the subject separately.
	SessionEach SessionPolicy = "each"
	// SessionFirst resolves only the first session in sorted order.
	SessionFirst SessionPolicy = "first"
	// SessionAny resolves once without constraining the session.
	SessionAny SessionPolicy = "any"
)

// ParseSessionPolicy validates a session policy name. Empty means SessionEach.
func ParseSessionPolicy(s string) (SessionPolicy, error) {
	switch SessionPolicy(s) {
	case "":
		return SessionEach, nil
	case SessionEach, SessionFirst, SessionAny:
		return SessionPolicy(s), nil
	default:
		return "", fmt.Errorf("invalid session policy %q (want each, first or any)", s)
	}
}

// Request describes one resolution.
type Request struct {
	// Identity selects the subject and session. Empty fields mean any.
	Identity types.Identity
	// Queries is the query table in resolution order.
	Queries []types.FileQuery
	// Filters refine individual queries by file type key.
	Filters Filters
	// Required lists the file type keys that must resolve.
	Required map[string]bool
}

// Resolver resolves requests against a dataset index.
// Stateless beyond the index; safe for concurrent use.
type Resolver struct {
	index *Index
}

// NewResolver creates a resolver over an index.
func NewResolver(index *Index) *Resolver {
	return &Resolver{index: index}
}

// Index returns the index the resolver reads from.
func (r *Resolver) Index() *Index { return r.index }

// Resolve maps each query to its files for the request identity.
//
// Filter conflicts with the identity are detected before the index is read.
// Queries are processed in order and the first failure is returned.
// Optional types that match nothing are left out of the result.
func (r *Resolver) Resolve(req Request) (*types.ResolvedDataset, error) {
	queries, err := MergeFilters(req.Identity, req.Queries, req.Filters)
	if err != nil {
		return nil, err
	}
	for name := range req.Required {
		if !slices.ContainsFunc(queries, func(q types.FileQuery) bool { return q.Name == name }) {
			return nil, fmt.Errorf("%w: required file type %q has no query", ErrInvalidFilter, name)
		}
	}

	entries := make(map[string][]types.CandidateFile, len(queries))
	for _, q := range queries {
		matches := r.index.Match(q, req.Identity)

		if len(matches) == 0 {
			if req.Required[q.Name] {
				return nil, &MissingInputError{
					FileType:   q.Name,
					Query:      q.String(),
					ProducedBy: q.ProducedBy,
				}
			}
			continue
		}

		files, err := selectFiles(q, matches)
		if err != nil {
			return nil, err
		}
		entries[q.Name] = files
	}

	return types.NewResolvedDataset(req.Identity, QueryNames(queries), entries), nil
}

// ResolveAll resolves a request once per session according to policy.
// An explicit session in the request identity always yields a single resolution.
// Discovered sessions also accept session-less files, and sessions that a
// filter pins away from are skipped.
func (r *Resolver) ResolveAll(req Request, policy SessionPolicy) ([]*types.ResolvedDataset, error) {
	if req.Identity.Session != "" || policy == SessionAny {
		d, err := r.Resolve(req)
		if err != nil {
			return nil, err
		}
		return []*types.ResolvedDataset{d}, nil
	}

	sessions := r.index.Sessions(req.Identity.Subject)
	if len(sessions) == 0 {
		d, err := r.Resolve(req)
		if err != nil {
			return nil, err
		}
		return []*types.ResolvedDataset{d}, nil
	}
	kept := slices.DeleteFunc(slices.Clone(sessions), func(ses string) bool {
		return excludedSession(req.Filters, ses) != ""
	})
	if len(kept) == 0 {
		fileType := excludedSession(req.Filters, sessions[0])
		return nil, &ConflictingFilterError{
			FileType: fileType,
			Entity:   types.EntitySession,
			Identity: strings.Join(sessions, ","),
			Filter:   filterValues(req.Filters[fileType][types.EntitySession]),
		}
	}
	if policy == SessionFirst {
		kept = kept[:1]
	}

	out := make([]*types.ResolvedDataset, 0, len(kept))
	for _, ses := range kept {
		sreq := req
		sreq.Identity.Session = ses
		sreq.Identity.SessionOptional = true
		d, err := r.Resolve(sreq)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", ses, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// MergeFilters checks filters against the identity and returns the queries
// refined by their filters. Filters naming an unknown file type are rejected.
func MergeFilters(id types.Identity, queries []types.FileQuery, filters Filters) ([]types.FileQuery, error) {
	known := make(map[string]bool, len(queries))
	for _, q := range queries {
		known[q.Name] = true
	}

	for _, fileType := range filters.FileTypes() {
		if !known[fileType] {
			return nil, fmt.Errorf("%w: unknown file type %q", ErrInvalidFilter, fileType)
		}
		c := filters[fileType]
		for _, entity := range reservedEntities {
			want := id.Value(entity)
			m, ok := c[entity]
			if want == "" || !ok {
				continue
			}
			// Discovered sessions were already checked by ResolveAll.
			if entity == types.EntitySession && id.SessionOptional {
				continue
			}
			if !m.Equal(types.OneOf(want)) {
				return nil, &ConflictingFilterError{
					FileType: fileType,
					Entity:   entity,
					Identity: want,
					Filter:   filterValues(m),
				}
			}
		}
	}

	out := make([]types.FileQuery, len(queries))
	for i, q := range queries {
		if c, ok := filters[q.Name]; ok {
			q = q.Refine(c)
		}
		out[i] = q
	}
	return out, nil
}

// excludedSession returns the first file type, in sorted order, whose
// filter pins the session to values other than ses. An absent session
// filter excludes nothing.
func excludedSession(filters Filters, ses string) string {
	for _, fileType := range filters.FileTypes() {
		m, ok := filters[fileType][types.EntitySession]
		if ok && !m.IsAbsent() && !m.Matches(ses, true) {
			return fileType
		}
	}
	return ""
}

func filterValues(m types.Match) []string {
	if m.IsAbsent() {
		return []string{"null"}
	}
	return m.Values()
}

// selectFiles enforces the cardinality of a query over its sorted matches.
func selectFiles(q types.FileQuery, matches []types.CandidateFile) ([]types.CandidateFile, error) {
	if q.PairEntity == "" {
		if len(matches) != 1 {
			return nil, cardinalityError(q, matches, "")
		}
		return matches, nil
	}

	if len(matches) != q.Cardinality() {
		return nil, cardinalityError(q, matches, "")
	}
	out := make([]types.CandidateFile, 0, len(q.PairValues))
	for _, want := range q.PairValues {
		i := slices.IndexFunc(matches, func(c types.CandidateFile) bool {
			v, _ := c.Entity(q.PairEntity)
			return v == want
		})
		if i < 0 {
			return nil, cardinalityError(q, matches, fmt.Sprintf("no file with %s-%s", q.PairEntity, want))
		}
		out = append(out, matches[i])
	}
	return out, nil
}

func cardinalityError(q types.FileQuery, matches []types.CandidateFile, reason string) error {
	paths := make([]string, len(matches))
	for i, m := range matches {
		paths[i] = m.Path()
	}
	return &CardinalityError{
		FileType: q.Name,
		Want:     q.Cardinality(),
		Paths:    paths,
		Reason:   reason,
	}
}
