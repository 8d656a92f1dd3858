// Package lode archives pipeline outputs and run manifests through Lode.
//
// Files copied out of stage work directories go straight to the Lode Store
// under "<stage>_output_<run_id>/...". Manifest records (archived artifacts,
// the run outcome and the metrics snapshot) go to a Hive-partitioned JSONL
// dataset keyed by subject/session/stage/run_id/record_kind.
package lode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/tractography/metrics"
)

// DefaultDataset is the Lode dataset ID of run manifests.
const DefaultDataset = "tractography"

// ErrInvalidPath is returned when an archive-relative path is absolute or
// escapes the archive root.
var ErrInvalidPath = errors.New("invalid archive path")

// Config identifies the run whose records a client writes.
type Config struct {
	// Dataset is the Lode dataset ID. Empty means DefaultDataset.
	Dataset string
	// RunID is the run identifier.
	RunID string
	// Subject is the participant label.
	Subject string
	// Session is the session label, empty when the dataset has none.
	Session string
}

// Archive abstracts output archival for the runtime and the sink stages.
// Implementations must be safe for concurrent use.
type Archive interface {
	// PutFile copies r to the archive-relative path and returns the bytes written.
	PutFile(ctx context.Context, relPath string, r io.Reader) (int64, error)
	// WriteArtifacts records archived files of one stage.
	WriteArtifacts(ctx context.Context, records []ArtifactRecord) error
	// WriteRun records the run manifest entry.
	WriteRun(ctx context.Context, rec RunRecord) error
	// WriteMetrics records the run metrics snapshot.
	WriteMetrics(ctx context.Context, snap metrics.Snapshot, completedAt time.Time) error
	// Close releases client resources.
	Close() error
}

// LodeClient is the Lode-backed Archive.
type LodeClient struct {
	config       Config
	dataset      lode.Dataset
	storeFactory lode.StoreFactory

	storeOnce sync.Once
	store     lode.Store
	storeErr  error

	mu sync.Mutex // serializes dataset writes
}

// NewLodeClient creates a client with filesystem storage rooted at root.
// The root directory is created if missing.
func NewLodeClient(cfg Config, root string) (*LodeClient, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, WrapInitError(err, root)
	}
	return NewLodeClientWithFactory(cfg, lode.NewFSFactory(root))
}

// NewLodeClientWithFactory creates a client with a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewLodeClientWithFactory(cfg Config, factory lode.StoreFactory) (*LodeClient, error) {
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultDataset
	}
	ds, err := NewReadDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return &LodeClient{
		config:       cfg,
		dataset:      ds,
		storeFactory: factory,
	}, nil
}

// PutFile writes r to the store at relPath.
func (c *LodeClient) PutFile(ctx context.Context, relPath string, r io.Reader) (int64, error) {
	clean, err := CleanPath(relPath)
	if err != nil {
		return 0, err
	}
	store, err := c.getOrCreateStore()
	if err != nil {
		return 0, WrapInitError(err, c.config.Dataset)
	}
	cr := &countingReader{r: r}
	if err := store.Put(ctx, clean, cr); err != nil {
		return cr.n, WrapWriteError(err, clean)
	}
	return cr.n, nil
}

// WriteArtifacts writes one artifact record per archived file.
func (c *LodeClient) WriteArtifacts(ctx context.Context, records []ArtifactRecord) error {
	if len(records) == 0 {
		return nil
	}
	now := time.Now()
	items := make([]any, 0, len(records))
	for _, rec := range records {
		items = append(items, toArtifactRecordMap(c.baseRecord(RecordKindArtifact, rec.Stage), rec, now))
	}
	return c.write(ctx, items, RecordKindArtifact)
}

// WriteRun writes the run manifest entry.
func (c *LodeClient) WriteRun(ctx context.Context, rec RunRecord) error {
	return c.write(ctx, []any{toRunRecordMap(c.baseRecord(RecordKindRun, StageAll), rec)}, RecordKindRun)
}

// WriteMetrics writes the metrics snapshot of the run.
func (c *LodeClient) WriteMetrics(ctx context.Context, snap metrics.Snapshot, completedAt time.Time) error {
	return c.write(ctx, []any{toMetricsRecordMap(c.baseRecord(RecordKindMetrics, StageAll), snap, completedAt)}, RecordKindMetrics)
}

// Close releases client resources.
func (c *LodeClient) Close() error {
	// Dataset doesn't require explicit close in current Lode API
	return nil
}

func (c *LodeClient) write(ctx context.Context, items []any, kind string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.dataset.Write(ctx, items, lode.Metadata{}); err != nil {
		return WrapWriteError(err, fmt.Sprintf("%s/%s/%s", c.config.Dataset, c.config.RunID, kind))
	}
	return nil
}

// getOrCreateStore lazily initializes the Store from the factory.
func (c *LodeClient) getOrCreateStore() (lode.Store, error) {
	c.storeOnce.Do(func() {
		c.store, c.storeErr = c.storeFactory()
	})
	return c.store, c.storeErr
}

// CleanPath normalizes an archive-relative path. Absolute paths and paths
// that leave the archive root are rejected.
func CleanPath(relPath string) (string, error) {
	p := strings.ReplaceAll(relPath, "\\", "/")
	if p == "" || strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, relPath)
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, relPath)
	}
	return clean, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)
	return n, err
}

// Verify LodeClient implements Archive.
var _ Archive = (*LodeClient)(nil)
