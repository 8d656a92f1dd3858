package lode

import (
	"bytes"
	"context"
	"io"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/justapithecus/tractography/metrics"
)

// StubArchive records archive calls in memory for tests.
type StubArchive struct {
	mu        sync.Mutex
	Files     map[string][]byte
	Artifacts []ArtifactRecord
	Runs      []RunRecord
	Metrics   []metrics.Snapshot
	Closed    bool

	// PutErr, when set, is returned by every PutFile call.
	PutErr error
}

// NewStubArchive creates an empty stub archive.
func NewStubArchive() *StubArchive {
	return &StubArchive{Files: make(map[string][]byte)}
}

// PutFile implements Archive.
func (s *StubArchive) PutFile(_ context.Context, relPath string, r io.Reader) (int64, error) {
	if s.PutErr != nil {
		return 0, s.PutErr
	}
	clean, err := CleanPath(relPath)
	if err != nil {
		return 0, err
	}
	var buf bytes.Buffer
	n, err := io.Copy(&buf, r)
	if err != nil {
		return n, err
	}
	s.mu.Lock()
	s.Files[clean] = buf.Bytes()
	s.mu.Unlock()
	return n, nil
}

// WriteArtifacts implements Archive.
func (s *StubArchive) WriteArtifacts(_ context.Context, records []ArtifactRecord) error {
	s.mu.Lock()
	s.Artifacts = append(s.Artifacts, records...)
	s.mu.Unlock()
	return nil
}

// WriteRun implements Archive.
func (s *StubArchive) WriteRun(_ context.Context, rec RunRecord) error {
	s.mu.Lock()
	s.Runs = append(s.Runs, rec)
	s.mu.Unlock()
	return nil
}

// WriteMetrics implements Archive.
func (s *StubArchive) WriteMetrics(_ context.Context, snap metrics.Snapshot, _ time.Time) error {
	s.mu.Lock()
	s.Metrics = append(s.Metrics, snap)
	s.mu.Unlock()
	return nil
}

// Close implements Archive.
func (s *StubArchive) Close() error {
	s.mu.Lock()
	s.Closed = true
	s.mu.Unlock()
	return nil
}

// Paths returns the archived paths in sorted order.
func (s *StubArchive) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.Files))
}

// File returns the archived bytes at path.
func (s *StubArchive) File(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.Files[path]
	return b, ok
}

// Verify StubArchive implements Archive.
var _ Archive = (*StubArchive)(nil)
