// Package service provides the job orchestration logic of the fun-with-ml server.
package service

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jocr1627/fun-with-ml-server/internal/models"
	"github.com/jocr1627/fun-with-ml-server/internal/worker"
)

// JobManager tracks generate and train jobs in memory.
// Each kind has its own id space. All methods are safe for concurrent use
// and return snapshots, never the tracked job itself.
type JobManager struct {
	mu   sync.RWMutex
	jobs map[models.JobKind]map[string]*models.Job
	now  func() time.Time
}

// NewJobManager creates an empty job manager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs: map[models.JobKind]map[string]*models.Job{
			models.JobKindGenerate: {},
			models.JobKindTrain:    {},
		},
		now: time.Now,
	}
}

// Create inserts a pending job, replacing any job tracked under the same id.
func (m *JobManager) Create(kind models.JobKind, id string) (models.Job, error) {
	if !kind.Valid() {
		return models.Job{}, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(kind, id), nil
}

// Start is like Create but refuses to replace a job that has not finished.
func (m *JobManager) Start(kind models.JobKind, id string) (models.Job, error) {
	if !kind.Valid() {
		return models.Job{}, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.jobs[kind][id]; ok && !existing.Status.Terminal() {
		return existing.Clone(), fmt.Errorf("%w: %s job %s is %s", ErrJobInProgress, kind, id, existing.Status)
	}
	return m.createLocked(kind, id), nil
}

func (m *JobManager) createLocked(kind models.JobKind, id string) models.Job {
	now := m.now()
	job := &models.Job{
		ID:        id,
		Kind:      kind,
		ModelID:   id,
		Status:    models.JobStatusPending,
		Chunks:    []string{},
		Errors:    []string{},
		StartedAt: now,
		UpdatedAt: now,
	}
	m.jobs[kind][id] = job

	slog.Debug("job created", "kind", kind, "job_id", id)
	return job.Clone()
}

// Apply moves a job through its state machine according to a worker event.
// It returns the resulting snapshot and whether the event changed anything.
// Events for unknown or finished jobs are dropped.
func (m *JobManager) Apply(kind models.JobKind, id string, ev worker.Event) (models.Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[kind][id]
	if !ok {
		return models.Job{}, false
	}
	if job.Status.Terminal() {
		slog.Debug("dropping event for finished job", "kind", kind, "job_id", id, "event", ev.Type)
		return job.Clone(), false
	}

	now := m.now()
	switch ev.Type {
	case worker.EventProgress:
		if err := applyProgress(job, ev.Payload); err != nil {
			fail(job, err.Error(), now)
			break
		}
		job.Status = models.JobStatusActive
	case worker.EventDone:
		job.Status = models.JobStatusDone
		job.CompletedAt = &now
	case worker.EventError:
		fail(job, ev.Message, now)
	default:
		return job.Clone(), false
	}
	job.UpdatedAt = now

	return job.Clone(), true
}

// applyProgress folds a progress payload into the job.
// Generate jobs append text; train jobs replace their metrics snapshot.
func applyProgress(job *models.Job, payload json.RawMessage) error {
	switch job.Kind {
	case models.JobKindGenerate:
		var chunk string
		if err := json.Unmarshal(payload, &chunk); err != nil {
			return fmt.Errorf("malformed generate progress: %s", payload)
		}
		job.Chunks = append(job.Chunks, chunk)
	case models.JobKindTrain:
		var metrics map[string]any
		if err := json.Unmarshal(payload, &metrics); err != nil || metrics == nil {
			return fmt.Errorf("malformed training progress: %s", payload)
		}
		job.Metrics = metrics
	}
	return nil
}

func fail(job *models.Job, msg string, now time.Time) {
	job.Errors = append(job.Errors, msg)
	job.Status = models.JobStatusError
	job.CompletedAt = &now
}

// Get returns a snapshot of a job, or nil if none is tracked under id.
func (m *JobManager) Get(kind models.JobKind, id string) *models.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[kind][id]
	if !ok {
		return nil
	}
	c := job.Clone()
	return &c
}

// List returns snapshots of all jobs of a kind, most recent first.
func (m *JobManager) List(kind models.JobKind) []models.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]models.Job, 0, len(m.jobs[kind]))
	for _, job := range m.jobs[kind] {
		jobs = append(jobs, job.Clone())
	}

	slices.SortFunc(jobs, func(a, b models.Job) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	return jobs
}

// Release drops a job claimed by Start and puts prev back in its place.
// A nil prev leaves no job tracked under id.
func (m *JobManager) Release(kind models.JobKind, id string, prev *models.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev == nil {
		delete(m.jobs[kind], id)
		return
	}
	c := prev.Clone()
	m.jobs[kind][id] = &c
}

// Remove forgets a job.
func (m *JobManager) Remove(kind models.JobKind, id string) {
	m.mu.Lock()
	delete(m.jobs[kind], id)
	m.mu.Unlock()
}

// Prune forgets finished jobs that completed more than retention ago.
// Returns the number of jobs removed.
func (m *JobManager) Prune(retention time.Duration) int {
	cutoff := m.now().Add(-retention)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for _, jobs := range m.jobs {
		for id, job := range jobs {
			if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
				delete(jobs, id)
				removed++
			}
		}
	}
	return removed
}
