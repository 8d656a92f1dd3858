package lode

import (
	"context"
	"io"
	"time"

	"github.com/justapithecus/tractography/metrics"
)

// InstrumentedArchive wraps an Archive and records archive write metrics.
// Each PutFile or record write increments archive_write_success or
// archive_write_failure on the collector.
type InstrumentedArchive struct {
	inner     Archive
	collector *metrics.Collector
}

// NewInstrumentedArchive wraps an archive with metrics instrumentation.
func NewInstrumentedArchive(inner Archive, collector *metrics.Collector) *InstrumentedArchive {
	return &InstrumentedArchive{inner: inner, collector: collector}
}

// PutFile delegates to the inner archive and records bytes written.
func (a *InstrumentedArchive) PutFile(ctx context.Context, relPath string, r io.Reader) (int64, error) {
	n, err := a.inner.PutFile(ctx, relPath, r)
	a.observe(n, err)
	return n, err
}

// WriteArtifacts delegates to the inner archive.
func (a *InstrumentedArchive) WriteArtifacts(ctx context.Context, records []ArtifactRecord) error {
	err := a.inner.WriteArtifacts(ctx, records)
	a.observe(0, err)
	return err
}

// WriteRun delegates to the inner archive.
func (a *InstrumentedArchive) WriteRun(ctx context.Context, rec RunRecord) error {
	err := a.inner.WriteRun(ctx, rec)
	a.observe(0, err)
	return err
}

// WriteMetrics delegates to the inner archive. The metrics record itself is
// not counted, so the snapshot it carries stays accurate.
func (a *InstrumentedArchive) WriteMetrics(ctx context.Context, snap metrics.Snapshot, completedAt time.Time) error {
	return a.inner.WriteMetrics(ctx, snap, completedAt)
}

// Close delegates to the inner archive.
func (a *InstrumentedArchive) Close() error {
	return a.inner.Close()
}

func (a *InstrumentedArchive) observe(n int64, err error) {
	if err != nil {
		a.collector.IncArchiveWriteFailure()
		return
	}
	a.collector.IncArchiveWriteSuccess(n)
}

// Verify InstrumentedArchive implements Archive.
var _ Archive = (*InstrumentedArchive)(nil)
