// Package client provides a GraphQL client for the fun-with-ml server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// DefaultEndpoint is used when neither an endpoint nor FWML_SERVER_URL is set.
const DefaultEndpoint = "http://localhost:4000/query"

// Client is a GraphQL client for the fun-with-ml server.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// New creates a new GraphQL client.
// If endpoint is empty, uses FWML_SERVER_URL env var or defaults to localhost:4000.
// Timeout can be configured via FWML_CLIENT_TIMEOUT env var (default 30s).
func New(endpoint string) *Client {
	if endpoint == "" {
		endpoint = os.Getenv("FWML_SERVER_URL")
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	timeout := 30 * time.Second
	if t := os.Getenv("FWML_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Endpoint returns the GraphQL endpoint URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// graphQLRequest is the request payload for GraphQL operations.
type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphQLResponse is the response payload from GraphQL operations.
type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []*Error        `json:"errors,omitempty"`
}

// Error is a GraphQL error returned by the server.
type Error struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// Code returns the extensions.code of the error, if any.
func (e *Error) Code() string {
	code, _ := e.Extensions["code"].(string)
	return code
}

// HasCode reports whether err carries a GraphQL error with the given code.
func HasCode(err error, code string) bool {
	var gqlErr *Error
	return errors.As(err, &gqlErr) && gqlErr.Code() == code
}

// Execute sends a GraphQL query/mutation and returns the result.
func (c *Client) Execute(ctx context.Context, query string, variables map[string]any, result any) error {
	reqBody, err := json.Marshal(graphQLRequest{
		Query:     query,
		Variables: variables,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server error: %s - %s", resp.Status, string(body))
	}

	var gqlResp graphQLResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	if len(gqlResp.Errors) > 0 {
		return fmt.Errorf("graphql error: %w", gqlResp.Errors[0])
	}

	if result != nil && len(gqlResp.Data) > 0 {
		if err := json.Unmarshal(gqlResp.Data, result); err != nil {
			return fmt.Errorf("unmarshal data: %w", err)
		}
	}

	return nil
}

// =============================================================================
// TYPES (matching GraphQL schema)
// =============================================================================

// Model is a text-generation model known to the server.
type Model struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Sources   []string  `json:"sources"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Job statuses as reported by the server.
const (
	StatusPending = "PENDING"
	StatusActive  = "ACTIVE"
	StatusDone    = "DONE"
	StatusError   = "ERROR"
)

// GenerateJob is a text generation job.
type GenerateJob struct {
	ID          string     `json:"id"`
	ModelID     string     `json:"modelId"`
	Status      string     `json:"status"`
	Text        []string   `json:"text"`
	Output      string     `json:"output"`
	Errors      []string   `json:"errors"`
	StartedAt   time.Time  `json:"startedAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Finished reports whether the job reached DONE or ERROR.
func (j *GenerateJob) Finished() bool {
	return j.Status == StatusDone || j.Status == StatusError
}

// TrainingJob is a training job.
type TrainingJob struct {
	ID          string         `json:"id"`
	ModelID     string         `json:"modelId"`
	Status      string         `json:"status"`
	Metrics     map[string]any `json:"metrics,omitempty"`
	Errors      []string       `json:"errors"`
	StartedAt   time.Time      `json:"startedAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

// Finished reports whether the job reached DONE or ERROR.
func (j *TrainingJob) Finished() bool {
	return j.Status == StatusDone || j.Status == StatusError
}

// OperationStats holds metrics for a single operation type.
type OperationStats struct {
	Count       int     `json:"count"`
	Errors      int     `json:"errors"`
	TotalTimeMs int     `json:"totalTimeMs"`
	AvgTimeMs   float64 `json:"avgTimeMs"`
	MinTimeMs   int     `json:"minTimeMs"`
	MaxTimeMs   int     `json:"maxTimeMs"`
}

// JobCounts tallies jobs of one kind.
type JobCounts struct {
	Started int `json:"started"`
	Done    int `json:"done"`
	Failed  int `json:"failed"`
}

// ServerStats holds in-memory runtime statistics (resets on server restart).
type ServerStats struct {
	UptimeSeconds float64         `json:"uptimeSeconds"`
	WorkerSession *OperationStats `json:"workerSession,omitempty"`
	WorkerAck     *OperationStats `json:"workerAck,omitempty"`
	RegistryRead  *OperationStats `json:"registryRead,omitempty"`
	RegistryWrite *OperationStats `json:"registryWrite,omitempty"`
	GenerateJobs  JobCounts       `json:"generateJobs"`
	TrainingJobs  JobCounts       `json:"trainingJobs"`
}

const (
	modelFields       = `id name sources createdAt updatedAt`
	generateJobFields = `id modelId status text output errors startedAt updatedAt completedAt`
	trainingJobFields = `id modelId status metrics errors startedAt updatedAt completedAt`
	statsFields       = `count errors totalTimeMs avgTimeMs minTimeMs maxTimeMs`
)

// =============================================================================
// MODEL OPERATIONS
// =============================================================================

// CreateModel creates a new model.
func (c *Client) CreateModel(ctx context.Context, name string) (*Model, error) {
	const query = `
		mutation CreateModel($input: CreateModelInput!) {
			createModel(input: $input) { ` + modelFields + ` }
		}
	`

	var result struct {
		CreateModel *Model `json:"createModel"`
	}
	if err := c.Execute(ctx, query, map[string]any{"input": map[string]any{"name": name}}, &result); err != nil {
		return nil, err
	}
	return result.CreateModel, nil
}

// UpdateModel renames a model. Returns nil if it does not exist.
func (c *Client) UpdateModel(ctx context.Context, id, name string) (*Model, error) {
	const query = `
		mutation UpdateModel($input: UpdateModelInput!) {
			updateModel(input: $input) { ` + modelFields + ` }
		}
	`

	var result struct {
		UpdateModel *Model `json:"updateModel"`
	}
	vars := map[string]any{"input": map[string]any{"id": id, "name": name}}
	if err := c.Execute(ctx, query, vars, &result); err != nil {
		return nil, err
	}
	return result.UpdateModel, nil
}

// DeleteModel deletes a model once the worker acknowledged it.
// Returns nil if it does not exist.
func (c *Client) DeleteModel(ctx context.Context, id string) (*Model, error) {
	const query = `
		mutation DeleteModel($input: DeleteModelInput!) {
			deleteModel(input: $input) { ` + modelFields + ` }
		}
	`

	var result struct {
		DeleteModel *Model `json:"deleteModel"`
	}
	if err := c.Execute(ctx, query, map[string]any{"input": map[string]any{"id": id}}, &result); err != nil {
		return nil, err
	}
	return result.DeleteModel, nil
}

// GetModel returns a model by id, or nil if it does not exist.
func (c *Client) GetModel(ctx context.Context, id string) (*Model, error) {
	const query = `
		query GetModel($input: ModelInput!) {
			model(input: $input) { ` + modelFields + ` }
		}
	`

	var result struct {
		Model *Model `json:"model"`
	}
	if err := c.Execute(ctx, query, map[string]any{"input": map[string]any{"id": id}}, &result); err != nil {
		return nil, err
	}
	return result.Model, nil
}

// ListModels returns all models.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	const query = `
		query ListModels {
			models { ` + modelFields + ` }
		}
	`

	var result struct {
		Models []Model `json:"models"`
	}
	if err := c.Execute(ctx, query, nil, &result); err != nil {
		return nil, err
	}
	return result.Models, nil
}

// =============================================================================
// JOB OPERATIONS
// =============================================================================

// GenerateTextInput is the input for starting a generate job.
// Zero values are omitted so the server defaults apply.
type GenerateTextInput struct {
	ID          string  `json:"id"`
	Prefix      string  `json:"prefix,omitempty"`
	Count       int     `json:"count,omitempty"`
	MaxLength   int     `json:"maxLength,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// GenerateText starts a generate job. Returns nil if the model does not exist.
func (c *Client) GenerateText(ctx context.Context, input GenerateTextInput) (*GenerateJob, error) {
	const query = `
		mutation GenerateText($input: GenerateTextInput!) {
			generateTextFromModel(input: $input) { ` + generateJobFields + ` }
		}
	`

	var result struct {
		GenerateTextFromModel *GenerateJob `json:"generateTextFromModel"`
	}
	if err := c.Execute(ctx, query, map[string]any{"input": input}, &result); err != nil {
		return nil, err
	}
	return result.GenerateTextFromModel, nil
}

// TrainModelInput is the input for starting a training job.
type TrainModelInput struct {
	ID        string   `json:"id"`
	URL       string   `json:"url"`
	Epochs    int      `json:"epochs,omitempty"`
	Selectors []string `json:"selectors,omitempty"`
	Force     bool     `json:"force,omitempty"`
}

// TrainModel starts a training job. Returns nil if the model does not exist.
func (c *Client) TrainModel(ctx context.Context, input TrainModelInput) (*TrainingJob, error) {
	const query = `
		mutation TrainModel($input: TrainModelInput!) {
			trainModel(input: $input) { ` + trainingJobFields + ` }
		}
	`

	var result struct {
		TrainModel *TrainingJob `json:"trainModel"`
	}
	if err := c.Execute(ctx, query, map[string]any{"input": input}, &result); err != nil {
		return nil, err
	}
	return result.TrainModel, nil
}

// GetGenerateJob returns a generate job, or nil if none is tracked.
func (c *Client) GetGenerateJob(ctx context.Context, id string) (*GenerateJob, error) {
	const query = `
		query GetGenerateJob($input: JobInput!) {
			generateJob(input: $input) { ` + generateJobFields + ` }
		}
	`

	var result struct {
		GenerateJob *GenerateJob `json:"generateJob"`
	}
	if err := c.Execute(ctx, query, map[string]any{"input": map[string]any{"id": id}}, &result); err != nil {
		return nil, err
	}
	return result.GenerateJob, nil
}

// ListGenerateJobs returns all tracked generate jobs, most recent first.
func (c *Client) ListGenerateJobs(ctx context.Context) ([]GenerateJob, error) {
	const query = `
		query ListGenerateJobs {
			generateJobs { ` + generateJobFields + ` }
		}
	`

	var result struct {
		GenerateJobs []GenerateJob `json:"generateJobs"`
	}
	if err := c.Execute(ctx, query, nil, &result); err != nil {
		return nil, err
	}
	return result.GenerateJobs, nil
}

// GetTrainingJob returns a training job, or nil if none is tracked.
func (c *Client) GetTrainingJob(ctx context.Context, id string) (*TrainingJob, error) {
	const query = `
		query GetTrainingJob($input: JobInput!) {
			trainingJob(input: $input) { ` + trainingJobFields + ` }
		}
	`

	var result struct {
		TrainingJob *TrainingJob `json:"trainingJob"`
	}
	if err := c.Execute(ctx, query, map[string]any{"input": map[string]any{"id": id}}, &result); err != nil {
		return nil, err
	}
	return result.TrainingJob, nil
}

// ListTrainingJobs returns all tracked training jobs, most recent first.
func (c *Client) ListTrainingJobs(ctx context.Context) ([]TrainingJob, error) {
	const query = `
		query ListTrainingJobs {
			trainingJobs { ` + trainingJobFields + ` }
		}
	`

	var result struct {
		TrainingJobs []TrainingJob `json:"trainingJobs"`
	}
	if err := c.Execute(ctx, query, nil, &result); err != nil {
		return nil, err
	}
	return result.TrainingJobs, nil
}

// GetServerStats returns in-memory runtime statistics.
func (c *Client) GetServerStats(ctx context.Context) (*ServerStats, error) {
	const query = `
		query GetServerStats {
			serverStats {
				uptimeSeconds
				workerSession { ` + statsFields + ` }
				workerAck { ` + statsFields + ` }
				registryRead { ` + statsFields + ` }
				registryWrite { ` + statsFields + ` }
				generateJobs { started done failed }
				trainingJobs { started done failed }
			}
		}
	`

	var result struct {
		ServerStats ServerStats `json:"serverStats"`
	}
	if err := c.Execute(ctx, query, nil, &result); err != nil {
		return nil, err
	}
	return &result.ServerStats, nil
}
