package lode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/justapithecus/lode/lode"
)

// ErrNoMetricsFound is returned when no metrics records exist in the dataset.
var ErrNoMetricsFound = errors.New("no metrics records found")

// Filter narrows record queries. Empty fields match everything.
type Filter struct {
	RunID   string
	Subject string
	// Session matches the partition value, so "none" selects runs without sessions.
	Session string
	Stage   string
}

func (f Filter) fields() [][2]string {
	return [][2]string{
		{"run_id", f.RunID},
		{"subject", f.Subject},
		{"session", f.Session},
		{"stage", f.Stage},
	}
}

// NewReadDataset creates a Lode Dataset for reading.
// Uses the same codec and layout as the write path to ensure compatibility.
func NewReadDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// NewReadDatasetFS creates a read Dataset with filesystem storage.
func NewReadDatasetFS(dataset, rootPath string) (lode.Dataset, error) {
	return NewReadDataset(dataset, lode.NewFSFactory(rootPath))
}

// NewReadDatasetS3 creates a read Dataset with S3 storage.
func NewReadDatasetS3(ctx context.Context, dataset string, s3cfg S3Config) (lode.Dataset, error) {
	factory, err := NewS3Factory(ctx, s3cfg)
	if err != nil {
		return nil, err
	}
	return NewReadDataset(dataset, factory)
}

// QueryRecords returns every record of the given kind that passes the
// filter, oldest snapshot first. Records repeated across snapshots are
// returned once.
func QueryRecords(ctx context.Context, ds lode.Dataset, kind string, f Filter) ([]map[string]any, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, fmt.Sprintf("%s/snapshots", ds.ID()))
	}

	seen := make(map[string]struct{})
	var out []map[string]any
	for _, snap := range snapshots {
		if !snapshotMatches(snap, kind, f) {
			continue
		}
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", ds.ID(), snap.ID))
		}
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || !recordMatches(record, kind, f) {
				continue
			}
			key := recordKey(record)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, record)
		}
	}
	return out, nil
}

// QueryLatestMetrics finds the most recent metrics record that passes the filter.
// Returns ErrNoMetricsFound if none exist.
func QueryLatestMetrics(ctx context.Context, ds lode.Dataset, f Filter) (map[string]any, error) {
	records, err := QueryRecords(ctx, ds, RecordKindMetrics, f)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNoMetricsFound
	}
	return records[len(records)-1], nil
}

// snapshotMatches is a coarse pre-filter on manifest file paths. Record
// fields stay authoritative.
func snapshotMatches(snap *lode.Snapshot, kind string, f Filter) bool {
	if !snapshotHasPartition(snap, "record_kind", kind) {
		return false
	}
	for _, kv := range f.fields() {
		if !snapshotHasPartition(snap, kv[0], kv[1]) {
			return false
		}
	}
	return true
}

func recordMatches(record map[string]any, kind string, f Filter) bool {
	if toString(record["record_kind"]) != kind {
		return false
	}
	for _, kv := range f.fields() {
		if kv[1] != "" && toString(record[kv[0]]) != kv[1] {
			return false
		}
	}
	return true
}

func recordKey(record map[string]any) string {
	return strings.Join([]string{
		toString(record["record_kind"]),
		toString(record["run_id"]),
		toString(record["subject"]),
		toString(record["session"]),
		toString(record["stage"]),
		toString(record["destination"]),
		toString(record["ts"]),
		toString(record["completed_at"]),
	}, "\x00")
}

func snapshotHasPartition(snap *lode.Snapshot, key, value string) bool {
	if value == "" {
		return true
	}
	for _, f := range snap.Manifest.Files {
		if matchesPartitionValue(f.Path, key, value) {
			return true
		}
	}
	return false
}

// matchesPartitionValue checks if a Hive-partitioned path contains an exact
// key=value segment. This avoids substring false positives (e.g.,
// run_id=run-1 matching run_id=run-10).
func matchesPartitionValue(path, key, value string) bool {
	segment := key + "=" + value
	for part := range strings.SplitSeq(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
