package models

import (
	"maps"
	"slices"
	"time"
)

// JobKind distinguishes the two job id spaces.
type JobKind string

const (
	JobKindGenerate JobKind = "generate"
	JobKindTrain    JobKind = "train"
)

// Valid reports whether k is a known job kind.
func (k JobKind) Valid() bool {
	return k == JobKindGenerate || k == JobKindTrain
}

// JobStatus is the lifecycle state of a job.
// Jobs move Pending -> Active* -> Done|Error.
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusActive  JobStatus = "ACTIVE"
	JobStatusDone    JobStatus = "DONE"
	JobStatusError   JobStatus = "ERROR"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// Job is a generation or training run driven by the remote worker.
// Chunks is only populated for generate jobs, Metrics only for train jobs.
type Job struct {
	ID          string         `json:"id"`
	Kind        JobKind        `json:"kind"`
	ModelID     string         `json:"model_id"`
	Status      JobStatus      `json:"status"`
	Chunks      []string       `json:"chunks,omitempty"`
	Metrics     map[string]any `json:"metrics,omitempty"`
	Errors      []string       `json:"errors,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (j *Job) Clone() Job {
	c := *j
	c.Chunks = slices.Clone(j.Chunks)
	c.Errors = slices.Clone(j.Errors)
	c.Metrics = maps.Clone(j.Metrics)
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return c
}

// Text joins the generated chunks.
func (j *Job) Text() string {
	n := 0
	for _, c := range j.Chunks {
		n += len(c)
	}
	b := make([]byte, 0, n)
	for _, c := range j.Chunks {
		b = append(b, c...)
	}
	return string(b)
}
