package reader

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	lodelib "github.com/justapithecus/lode/lode"

	"github.com/justapithecus/tractography/lode"
	"github.com/justapithecus/tractography/types"
)

// ErrRunNotFound is returned when no run record matches a run ID.
var ErrRunNotFound = errors.New("run not found")

// Source locates the manifest dataset.
type Source struct {
	// Dataset is the Lode dataset ID. Empty means lode.DefaultDataset.
	Dataset string
	// Backend is "fs" or "s3".
	Backend string
	// Path is the archive root (fs) or "bucket/prefix" (s3).
	Path        string
	Region      string
	Endpoint    string
	S3PathStyle bool
}

// Reader queries run manifests.
type Reader struct {
	ds lodelib.Dataset
}

// New wraps an open read dataset.
func New(ds lodelib.Dataset) *Reader {
	return &Reader{ds: ds}
}

// Open builds a reader over the dataset named by src.
func Open(ctx context.Context, src Source) (*Reader, error) {
	dataset := cmp.Or(src.Dataset, lode.DefaultDataset)
	if src.Path == "" {
		return nil, errors.New("archive path is required")
	}

	var ds lodelib.Dataset
	var err error
	switch src.Backend {
	case "fs", "":
		ds, err = lode.NewReadDatasetFS(dataset, src.Path)
	case "s3":
		bucket, prefix := lode.ParseS3Path(src.Path)
		ds, err = lode.NewReadDatasetS3(ctx, dataset, lode.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       src.Region,
			Endpoint:     src.Endpoint,
			UsePathStyle: src.S3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unsupported archive backend: %s (must be fs or s3)", src.Backend)
	}
	if err != nil {
		return nil, err
	}
	return New(ds), nil
}

// ListRuns returns participant runs, most recent first.
func (r *Reader) ListRuns(ctx context.Context, opts ListRunsOptions) ([]ListRunItem, error) {
	records, err := lode.QueryRecords(ctx, r.ds, lode.RecordKindRun, lode.Filter{Subject: opts.Subject})
	if err != nil {
		return nil, err
	}

	items := make([]ListRunItem, 0, len(records))
	for _, rec := range records {
		run, err := ParseRunRecord(rec)
		if err != nil {
			return nil, err
		}
		if opts.Outcome != "" && run.Outcome != opts.Outcome {
			continue
		}
		items = append(items, ListRunItem{
			RunID:      toString(rec["run_id"]),
			Subject:    run.Subject,
			Session:    run.Session,
			Outcome:    run.Outcome,
			Artifacts:  run.Artifacts,
			StartedAt:  run.StartedAt,
			DurationMs: run.DurationMs,
		})
	}

	slices.SortStableFunc(items, func(a, b ListRunItem) int {
		return cmp.Or(
			cmp.Compare(b.StartedAt, a.StartedAt),
			cmp.Compare(a.RunID, b.RunID),
			cmp.Compare(a.Subject, b.Subject),
			cmp.Compare(a.Session, b.Session),
		)
	})
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items, nil
}

// InspectRun returns every participant of a run with its archived files.
func (r *Reader) InspectRun(ctx context.Context, runID string) (*InspectRunResponse, error) {
	filter := lode.Filter{RunID: runID}
	runs, err := lode.QueryRecords(ctx, r.ds, lode.RecordKindRun, filter)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	artifacts, err := lode.QueryRecords(ctx, r.ds, lode.RecordKindArtifact, filter)
	if err != nil {
		return nil, err
	}

	resp := &InspectRunResponse{RunID: runID, Outcome: string(types.OutcomeSuccess)}
	for _, rec := range runs {
		run, err := ParseRunRecord(rec)
		if err != nil {
			return nil, err
		}
		run.Files = []ArtifactItem{}
		for _, a := range artifacts {
			if toString(a["subject"]) != run.Subject || toString(a["session"]) != run.Session {
				continue
			}
			item, err := ParseArtifactRecord(a)
			if err != nil {
				return nil, err
			}
			run.Files = append(run.Files, item)
		}
		slices.SortFunc(run.Files, func(a, b ArtifactItem) int {
			return cmp.Compare(a.Destination, b.Destination)
		})
		resp.Participants = append(resp.Participants, *run)
	}

	slices.SortFunc(resp.Participants, func(a, b ParticipantRun) int {
		return cmp.Or(cmp.Compare(a.Subject, b.Subject), cmp.Compare(a.Session, b.Session))
	})
	for _, p := range resp.Participants {
		if p.Outcome != string(types.OutcomeSuccess) {
			resp.Outcome = p.Outcome
			break
		}
	}
	return resp, nil
}

// StatsRuns aggregates the outcomes of the runs that pass the filter.
func (r *Reader) StatsRuns(ctx context.Context, f lode.Filter) (*RunStats, error) {
	records, err := lode.QueryRecords(ctx, r.ds, lode.RecordKindRun, f)
	if err != nil {
		return nil, err
	}

	stats := &RunStats{ByOutcome: make(map[string]int)}
	for _, rec := range records {
		run, err := ParseRunRecord(rec)
		if err != nil {
			return nil, err
		}
		stats.Total++
		stats.ByOutcome[run.Outcome]++
		stats.Artifacts += run.Artifacts
		if run.Outcome == string(types.OutcomeSuccess) {
			stats.Succeeded++
		} else {
			stats.Failed++
		}
	}
	return stats, nil
}

// StatsMetrics returns the most recent metrics record that passes the filter.
func (r *Reader) StatsMetrics(ctx context.Context, f lode.Filter) (*MetricsSnapshot, error) {
	record, err := lode.QueryLatestMetrics(ctx, r.ds, f)
	if err != nil {
		return nil, err
	}
	return ParseMetricsRecord(record)
}
