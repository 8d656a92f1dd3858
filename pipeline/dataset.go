package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/justapithecus/tractography/bids"
	"github.com/justapithecus/tractography/types"
)

// DatasetConfig locates the dataset and selects the participants to resolve.
type DatasetConfig struct {
	// BIDSDir is the raw dataset root.
	BIDSDir string
	// Derivatives are extra derivative roots searched for precomputed inputs.
	Derivatives []string
	// OutputDir holds the outputs of earlier runs. Indexed as a derivative
	// root when it exists.
	OutputDir string
	// FilterFile is an optional JSON per-acquisition filter file.
	FilterFile string
	// Participants restricts the run to these subject labels ("sub-" optional).
	// Empty means every subject in the dataset.
	Participants []string
	// Sessions restricts the run to these session labels ("ses-" optional).
	Sessions []string
	// SessionPolicy decides how subjects with several sessions are resolved
	// when Sessions is empty.
	SessionPolicy bids.SessionPolicy
}

// Dataset is an indexed dataset plus the filters that refine its queries.
type Dataset struct {
	config   DatasetConfig
	resolver *bids.Resolver
	filters  bids.Filters
}

// OpenDataset indexes the raw root, the derivative roots and the output
// directory, and loads the filter file.
func OpenDataset(cfg DatasetConfig) (*Dataset, error) {
	if cfg.BIDSDir == "" {
		return nil, fmt.Errorf("%w: bids_dir is required", bids.ErrInvalidFilter)
	}
	roots := []bids.Root{{Path: cfg.BIDSDir}}
	for _, d := range cfg.Derivatives {
		roots = append(roots, bids.Root{Path: d, Derivative: true})
	}
	if cfg.OutputDir != "" {
		if _, err := os.Stat(cfg.OutputDir); err == nil {
			roots = append(roots, bids.Root{Path: cfg.OutputDir, Derivative: true})
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("output dir: %w", err)
		}
	}

	index, err := bids.NewIndex(roots...)
	if err != nil {
		return nil, err
	}

	var filters bids.Filters
	if cfg.FilterFile != "" {
		filters, err = bids.LoadFilters(cfg.FilterFile)
		if err != nil {
			if !errors.Is(err, bids.ErrInvalidFilter) {
				err = fmt.Errorf("%w: %w", bids.ErrInvalidFilter, err)
			}
			return nil, err
		}
	}

	policy := cfg.SessionPolicy
	if policy == "" {
		policy = bids.SessionEach
	}
	cfg.SessionPolicy = policy
	cfg.Participants = trimLabels(cfg.Participants, "sub-")
	cfg.Sessions = trimLabels(cfg.Sessions, "ses-")

	return &Dataset{config: cfg, resolver: bids.NewResolver(index), filters: filters}, nil
}

// NewDataset wraps an existing index. Used by tests and tools that build
// the index themselves.
func NewDataset(index *bids.Index, filters bids.Filters, cfg DatasetConfig) *Dataset {
	if cfg.SessionPolicy == "" {
		cfg.SessionPolicy = bids.SessionEach
	}
	cfg.Participants = trimLabels(cfg.Participants, "sub-")
	cfg.Sessions = trimLabels(cfg.Sessions, "ses-")
	return &Dataset{config: cfg, resolver: bids.NewResolver(index), filters: filters}
}

// Index returns the dataset index.
func (d *Dataset) Index() *bids.Index { return d.resolver.Index() }

// Participants returns the subjects the run covers, in order.
func (d *Dataset) Participants() []string {
	if len(d.config.Participants) > 0 {
		return d.config.Participants
	}
	return d.resolver.Index().Subjects()
}

// Resolve resolves the default queries for every participant and session
// the run covers. Every file type the stages consume must resolve.
// The first failure is returned with the participant it belongs to.
func (d *Dataset) Resolve(stages []string) ([]*types.ResolvedDataset, error) {
	participants := d.Participants()
	if len(participants) == 0 {
		return nil, &bids.MissingInputError{
			FileType:   "participant",
			Query:      "sub-*",
			ProducedBy: "check bids_dir and --participant-label",
		}
	}

	required := RequiredInputs(stages)
	var out []*types.ResolvedDataset
	for _, sub := range participants {
		req := bids.Request{
			Identity: types.Identity{Subject: sub},
			Queries:  bids.DefaultQueries(),
			Filters:  d.filters,
			Required: required,
		}

		if len(d.config.Sessions) == 0 {
			resolved, err := d.resolver.ResolveAll(req, d.config.SessionPolicy)
			if err != nil {
				return nil, fmt.Errorf("sub-%s: %w", sub, err)
			}
			out = append(out, resolved...)
			continue
		}

		for _, ses := range d.config.Sessions {
			sreq := req
			sreq.Identity.Session = ses
			resolved, err := d.resolver.Resolve(sreq)
			if err != nil {
				return nil, fmt.Errorf("sub-%s_ses-%s: %w", sub, ses, err)
			}
			out = append(out, resolved)
		}
	}
	return out, nil
}

func trimLabels(labels []string, prefix string) []string {
	if len(labels) == 0 {
		return nil
	}
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if l = strings.TrimPrefix(strings.TrimSpace(l), prefix); l != "" {
			out = append(out, l)
		}
	}
	return out
}
