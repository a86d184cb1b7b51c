// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sync"
	"time"

	"github.com/jocr1627/fun-with-ml-server/internal/models"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	Errors    int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64
	Errors      int64
	TotalTimeMs int64
	AvgTimeMs   float64
	MinTimeMs   int64
	MaxTimeMs   int64
}

// JobCounts tallies how jobs of one kind ended.
type JobCounts struct {
	Started int64
	Done    int64
	Failed  int64
}

// Snapshot represents the full server statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64
	WorkerSession *OperationSnapshot
	WorkerAck     *OperationSnapshot
	RegistryRead  *OperationSnapshot
	RegistryWrite *OperationSnapshot
	GenerateJobs  JobCounts
	TrainingJobs  JobCounts
}

// Operation names for the collector.
const (
	OpWorkerSession = "worker_session"
	OpWorkerAck     = "worker_ack"
	OpRegistryRead  = "registry_read"
	OpRegistryWrite = "registry_write"
)

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
	jobs      map[models.JobKind]*JobCounts
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
		jobs: map[models.JobKind]*JobCounts{
			models.JobKindGenerate: {},
			models.JobKindTrain:    {},
		},
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.ops[op] = m
	}
	return m
}

// RecordTiming records timing for an operation. A non-nil err also counts as a failure.
func (c *Collector) RecordTiming(op string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration
	if err != nil {
		m.Errors++
	}

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// Track returns a func that records the time elapsed since Track was called.
//
//	defer c.Track(metrics.OpRegistryRead)(err)
func (c *Collector) Track(op string) func(err error) {
	start := time.Now()
	return func(err error) {
		c.RecordTiming(op, time.Since(start), err)
	}
}

// RecordJobStarted counts a dispatched job.
func (c *Collector) RecordJobStarted(kind models.JobKind) {
	c.updateJobs(kind, func(j *JobCounts) { j.Started++ })
}

// RecordJobFinished counts a job reaching a terminal status.
func (c *Collector) RecordJobFinished(kind models.JobKind, status models.JobStatus) {
	c.updateJobs(kind, func(j *JobCounts) {
		switch status {
		case models.JobStatusDone:
			j.Done++
		case models.JobStatusError:
			j.Failed++
		}
	})
}

func (c *Collector) updateJobs(kind models.JobKind, fn func(*JobCounts)) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if j, ok := c.jobs[kind]; ok {
		fn(j)
	}
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	return &OperationSnapshot{
		Count:       m.Count,
		Errors:      m.Errors,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		WorkerSession: snapshotOp(c.ops[OpWorkerSession]),
		WorkerAck:     snapshotOp(c.ops[OpWorkerAck]),
		RegistryRead:  snapshotOp(c.ops[OpRegistryRead]),
		RegistryWrite: snapshotOp(c.ops[OpRegistryWrite]),
		GenerateJobs:  *c.jobs[models.JobKindGenerate],
		TrainingJobs:  *c.jobs[models.JobKindTrain],
	}
}
