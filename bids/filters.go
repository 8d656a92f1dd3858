package bids

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/justapithecus/tractography/types"
)

// Filters maps file type keys to per-entity constraints that refine the
// default queries. Loaded from a JSON filter file of the form:
//
//	{"dwi": {"acquisition": "multishell", "run": ["1", "2"], "part": null}}
//
// A string pins one value, a list accepts any of its values, null requires
// the entity to be absent. Short entity keys (acq, ses...) are accepted.
type Filters map[string]types.Constraints

// LoadFilters reads a filter file from disk.
func LoadFilters(path string) (Filters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read filter file: %w", err)
	}
	f, err := ParseFilters(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// ParseFilters decodes filter JSON.
func ParseFilters(data []byte) (Filters, error) {
	var raw map[string]map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	}

	out := make(Filters, len(raw))
	for fileType, entities := range raw {
		c := make(types.Constraints, len(entities))
		for key, value := range entities {
			m, err := decodeMatch(value)
			if err != nil {
				return nil, fmt.Errorf("%w: %s.%s: %w", ErrInvalidFilter, fileType, key, err)
			}
			c[CanonicalEntity(key)] = m
		}
		out[fileType] = c
	}
	return out, nil
}

func decodeMatch(raw json.RawMessage) (types.Match, error) {
	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("null")) {
		return types.Absent(), nil
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return types.OneOf(s), nil
	}

	var list []string
	if err := json.Unmarshal(trimmed, &list); err == nil {
		if len(list) == 0 {
			return types.Match{}, fmt.Errorf("empty value list")
		}
		return types.OneOf(list...), nil
	}

	return types.Match{}, fmt.Errorf("unsupported value %s (want string, list of strings or null)", trimmed)
}

// FileTypes returns the filtered file type keys in sorted order.
func (f Filters) FileTypes() []string {
	return slices.Sorted(maps.Keys(f))
}
