package graph

import (
	"context"
	"errors"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/jocr1627/fun-with-ml-server/internal/metrics"
	"github.com/jocr1627/fun-with-ml-server/internal/models"
	"github.com/jocr1627/fun-with-ml-server/internal/service"
	"github.com/jocr1627/fun-with-ml-server/internal/worker"
)

// Error codes set in the extensions of rejected operations.
const (
	CodeAlreadyIngested   = "ALREADY_INGESTED"
	CodeJobInProgress     = "JOB_IN_PROGRESS"
	CodeBadUserInput      = "BAD_USER_INPUT"
	CodeWorkerUnavailable = "WORKER_UNAVAILABLE"
)

func modelToGraphQL(m *models.Model) *Model {
	if m == nil {
		return nil
	}
	m = m.Clone()
	return &Model{
		ID:        m.ID,
		Name:      m.Name,
		Sources:   m.Sources,
		Urls:      m.Sources,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func modelsToGraphQL(ms []models.Model) []*Model {
	out := make([]*Model, len(ms))
	for i := range ms {
		out[i] = modelToGraphQL(&ms[i])
	}
	return out
}

func generateJobToGraphQL(j *models.Job) *GenerateJob {
	if j == nil {
		return nil
	}
	return &GenerateJob{
		ID:          j.ID,
		ModelID:     j.ModelID,
		Status:      JobStatus(j.Status),
		Text:        nonNil(j.Chunks),
		Output:      j.Text(),
		Errors:      nonNil(j.Errors),
		StartedAt:   j.StartedAt,
		UpdatedAt:   j.UpdatedAt,
		CompletedAt: j.CompletedAt,
	}
}

func trainingJobToGraphQL(j *models.Job) *TrainingJob {
	if j == nil {
		return nil
	}
	return &TrainingJob{
		ID:          j.ID,
		ModelID:     j.ModelID,
		Status:      JobStatus(j.Status),
		Metrics:     j.Metrics,
		Errors:      nonNil(j.Errors),
		StartedAt:   j.StartedAt,
		UpdatedAt:   j.UpdatedAt,
		CompletedAt: j.CompletedAt,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// operationSnapshotToGraphQL converts a metrics.OperationSnapshot to a GraphQL OperationStats.
func operationSnapshotToGraphQL(s *metrics.OperationSnapshot) *OperationStats {
	if s == nil {
		return nil
	}
	return &OperationStats{
		Count:       int(s.Count),
		Errors:      int(s.Errors),
		TotalTimeMs: int(s.TotalTimeMs),
		AvgTimeMs:   s.AvgTimeMs,
		MinTimeMs:   int(s.MinTimeMs),
		MaxTimeMs:   int(s.MaxTimeMs),
	}
}

func jobCountsToGraphQL(c metrics.JobCounts) *JobCounts {
	return &JobCounts{Started: int(c.Started), Done: int(c.Done), Failed: int(c.Failed)}
}

// metricsSnapshotToGraphQL converts a metrics.Snapshot to a GraphQL ServerStats.
func metricsSnapshotToGraphQL(s metrics.Snapshot) *ServerStats {
	return &ServerStats{
		UptimeSeconds: s.UptimeSeconds,
		WorkerSession: operationSnapshotToGraphQL(s.WorkerSession),
		WorkerAck:     operationSnapshotToGraphQL(s.WorkerAck),
		RegistryRead:  operationSnapshotToGraphQL(s.RegistryRead),
		RegistryWrite: operationSnapshotToGraphQL(s.RegistryWrite),
		GenerateJobs:  jobCountsToGraphQL(s.GenerateJobs),
		TrainingJobs:  jobCountsToGraphQL(s.TrainingJobs),
	}
}

// toGraphQLError turns service rejections into errors carrying an
// extensions.code. Other errors pass through unchanged.
func toGraphQLError(ctx context.Context, err error) error {
	var code string
	switch {
	case errors.Is(err, service.ErrAlreadyIngested):
		code = CodeAlreadyIngested
	case errors.Is(err, service.ErrJobInProgress):
		code = CodeJobInProgress
	case errors.Is(err, service.ErrInvalidInput):
		code = CodeBadUserInput
	case errors.Is(err, worker.ErrConnection), errors.Is(err, worker.ErrTimeout):
		code = CodeWorkerUnavailable
	default:
		return err
	}

	return &gqlerror.Error{
		Err:        err,
		Message:    err.Error(),
		Path:       graphql.GetPath(ctx),
		Extensions: map[string]any{"code": code},
	}
}

// forward converts a stream of job snapshots until in closes or ctx ends.
func forward[T any](ctx context.Context, in <-chan models.Job, convert func(*models.Job) *T) <-chan *T {
	out := make(chan *T, 1)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case job, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- convert(&job):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
