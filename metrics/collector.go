// Package metrics provides per-run metrics collection.
//
// The Collector accumulates counters during a single pipeline run. It is a
// leaf package with no internal dependencies; stage and tool names are plain
// strings.
package metrics

import (
	"maps"
	"sync"
	"time"
)

// Snapshot is an immutable point-in-time view of the run counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Run lifecycle
	RunsStarted   int64
	RunsCompleted int64
	RunsFailed    int64

	// Stage execution
	StagesStarted   int64
	StagesSucceeded int64
	StagesFailed    int64
	StagesSkipped   int64
	StageDurations  map[string]time.Duration

	// External tools
	ToolLaunchSuccess int64
	ToolLaunchFailure int64
	ToolNonZeroExit   int64
	ToolLaunches      map[string]int64

	// Surface shrink
	VerticesShrunk  int64
	VerticesFrozen  int64

	// Archive
	ArchiveWriteSuccess int64
	ArchiveWriteFailure int64
	ArchiveBytes        int64

	// Dimensions (informational, set at construction)
	StorageBackend string
	RunID          string
	Subject        string
	Session        string
}

// Collector accumulates metrics during a single run.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	runsStarted   int64
	runsCompleted int64
	runsFailed    int64

	stagesStarted   int64
	stagesSucceeded int64
	stagesFailed    int64
	stagesSkipped   int64
	stageDurations  map[string]time.Duration

	toolLaunchSuccess int64
	toolLaunchFailure int64
	toolNonZeroExit   int64
	toolLaunches      map[string]int64

	verticesShrunk int64
	verticesFrozen int64

	archiveWriteSuccess int64
	archiveWriteFailure int64
	archiveBytes        int64

	storageBackend string
	runID          string
	subject        string
	session        string
}

// NewCollector creates a Collector with dimension labels.
// session may be empty for datasets without sessions.
func NewCollector(storageBackend, runID, subject, session string) *Collector {
	return &Collector{
		stageDurations: make(map[string]time.Duration),
		toolLaunches:   make(map[string]int64),
		storageBackend: storageBackend,
		runID:          runID,
		subject:        subject,
		session:        session,
	}
}

// --- Run lifecycle ---

// IncRunStarted records a run start.
func (c *Collector) IncRunStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.runsStarted++
	c.mu.Unlock()
}

// IncRunCompleted records a successful run completion.
func (c *Collector) IncRunCompleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.runsCompleted++
	c.mu.Unlock()
}

// IncRunFailed records a failed run of any outcome other than success.
func (c *Collector) IncRunFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.runsFailed++
	c.mu.Unlock()
}

// --- Stages ---

// IncStageStarted records a leaf stage dispatch.
func (c *Collector) IncStageStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.stagesStarted++
	c.mu.Unlock()
}

// ObserveStage records a finished leaf stage and its wall time.
func (c *Collector) ObserveStage(name string, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.mu.Lock()
	if err != nil {
		c.stagesFailed++
	} else {
		c.stagesSucceeded++
	}
	c.stageDurations[name] = d
	c.mu.Unlock()
}

// AddStagesSkipped records stages never dispatched because the run was canceled.
func (c *Collector) AddStagesSkipped(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.mu.Lock()
	c.stagesSkipped += int64(n)
	c.mu.Unlock()
}

// --- External tools ---

// IncToolLaunchSuccess records a started external program.
func (c *Collector) IncToolLaunchSuccess(program string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.toolLaunchSuccess++
	c.toolLaunches[program]++
	c.mu.Unlock()
}

// IncToolLaunchFailure records a program that could not be started.
func (c *Collector) IncToolLaunchFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.toolLaunchFailure++
	c.mu.Unlock()
}

// IncToolNonZeroExit records a program that exited with a non-zero status.
func (c *Collector) IncToolNonZeroExit() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.toolNonZeroExit++
	c.mu.Unlock()
}

// --- Surface shrink ---

// AddShrink records one surface shrink: vertices processed and vertices frozen
// on a degenerate gradient.
func (c *Collector) AddShrink(vertices, frozen int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.verticesShrunk += int64(vertices)
	c.verticesFrozen += int64(frozen)
	c.mu.Unlock()
}

// --- Archive ---
// Archive counters are per-call. A single file put or record write counts once.

// IncArchiveWriteSuccess records a successful archive write of n bytes.
func (c *Collector) IncArchiveWriteSuccess(n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.archiveWriteSuccess++
	c.archiveBytes += n
	c.mu.Unlock()
}

// IncArchiveWriteFailure records a failed archive write.
func (c *Collector) IncArchiveWriteFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.archiveWriteFailure++
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		RunsStarted:   c.runsStarted,
		RunsCompleted: c.runsCompleted,
		RunsFailed:    c.runsFailed,

		StagesStarted:   c.stagesStarted,
		StagesSucceeded: c.stagesSucceeded,
		StagesFailed:    c.stagesFailed,
		StagesSkipped:   c.stagesSkipped,
		StageDurations:  maps.Clone(c.stageDurations),

		ToolLaunchSuccess: c.toolLaunchSuccess,
		ToolLaunchFailure: c.toolLaunchFailure,
		ToolNonZeroExit:   c.toolNonZeroExit,
		ToolLaunches:      maps.Clone(c.toolLaunches),

		VerticesShrunk: c.verticesShrunk,
		VerticesFrozen: c.verticesFrozen,

		ArchiveWriteSuccess: c.archiveWriteSuccess,
		ArchiveWriteFailure: c.archiveWriteFailure,
		ArchiveBytes:        c.archiveBytes,

		StorageBackend: c.storageBackend,
		RunID:          c.runID,
		Subject:        c.subject,
		Session:        c.session,
	}
}
