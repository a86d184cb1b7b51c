package graph

import (
	"fmt"
	"io"
	"strconv"
	"time"
)

type Model struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Sources   []string  `json:"sources"`
	Urls      []string  `json:"urls"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type GenerateJob struct {
	ID          string     `json:"id"`
	ModelID     string     `json:"modelId"`
	Status      JobStatus  `json:"status"`
	Text        []string   `json:"text"`
	Output      string     `json:"output"`
	Errors      []string   `json:"errors"`
	StartedAt   time.Time  `json:"startedAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

type TrainingJob struct {
	ID          string         `json:"id"`
	ModelID     string         `json:"modelId"`
	Status      JobStatus      `json:"status"`
	Metrics     map[string]any `json:"metrics,omitempty"`
	Errors      []string       `json:"errors"`
	StartedAt   time.Time      `json:"startedAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

// OperationStats holds timing statistics for one operation type.
type OperationStats struct {
	Count       int     `json:"count"`
	Errors      int     `json:"errors"`
	TotalTimeMs int     `json:"totalTimeMs"`
	AvgTimeMs   float64 `json:"avgTimeMs"`
	MinTimeMs   int     `json:"minTimeMs"`
	MaxTimeMs   int     `json:"maxTimeMs"`
}

type JobCounts struct {
	Started int `json:"started"`
	Done    int `json:"done"`
	Failed  int `json:"failed"`
}

// ServerStats holds runtime statistics for the server.
type ServerStats struct {
	UptimeSeconds float64         `json:"uptimeSeconds"`
	WorkerSession *OperationStats `json:"workerSession,omitempty"`
	WorkerAck     *OperationStats `json:"workerAck,omitempty"`
	RegistryRead  *OperationStats `json:"registryRead,omitempty"`
	RegistryWrite *OperationStats `json:"registryWrite,omitempty"`
	GenerateJobs  *JobCounts      `json:"generateJobs"`
	TrainingJobs  *JobCounts      `json:"trainingJobs"`
}

type ModelInput struct {
	ID string `json:"id"`
}

type JobInput struct {
	ID string `json:"id"`
}

type CreateModelInput struct {
	Name string `json:"name"`
}

type UpdateModelInput struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type DeleteModelInput struct {
	ID string `json:"id"`
}

type GenerateTextInput struct {
	ID          string  `json:"id"`
	Prefix      string  `json:"prefix"`
	Count       int     `json:"count"`
	MaxLength   int     `json:"maxLength"`
	Temperature float64 `json:"temperature"`
}

type TrainModelInput struct {
	ID        string   `json:"id"`
	URL       string   `json:"url"`
	Epochs    int      `json:"epochs"`
	Selectors []string `json:"selectors,omitempty"`
	Force     *bool    `json:"force,omitempty"`
}

type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusActive  JobStatus = "ACTIVE"
	JobStatusDone    JobStatus = "DONE"
	JobStatusError   JobStatus = "ERROR"
)

var AllJobStatus = []JobStatus{
	JobStatusPending,
	JobStatusActive,
	JobStatusDone,
	JobStatusError,
}

func (e JobStatus) IsValid() bool {
	switch e {
	case JobStatusPending, JobStatusActive, JobStatusDone, JobStatusError:
		return true
	}
	return false
}

func (e JobStatus) String() string {
	return string(e)
}

func (e *JobStatus) UnmarshalGQL(v any) error {
	str, ok := v.(string)
	if !ok {
		return fmt.Errorf("enums must be strings")
	}

	*e = JobStatus(str)
	if !e.IsValid() {
		return fmt.Errorf("%s is not a valid JobStatus", str)
	}
	return nil
}

func (e JobStatus) MarshalGQL(w io.Writer) {
	fmt.Fprint(w, strconv.Quote(e.String()))
}
