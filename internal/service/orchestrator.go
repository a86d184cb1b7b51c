package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jocr1627/fun-with-ml-server/internal/metrics"
	"github.com/jocr1627/fun-with-ml-server/internal/models"
	"github.com/jocr1627/fun-with-ml-server/internal/pubsub"
	"github.com/jocr1627/fun-with-ml-server/internal/worker"
)

// ModelRegistry is the durable store of model metadata.
// Lookups signal absence with a nil model and a nil error.
type ModelRegistry interface {
	GetModel(ctx context.Context, id string) (*models.Model, error)
	ListModels(ctx context.Context) ([]models.Model, error)
	CreateModel(ctx context.Context, name string) (*models.Model, error)
	UpdateModelName(ctx context.Context, id, name string) (*models.Model, error)
	DeleteModel(ctx context.Context, id string) (bool, error)
	// AppendModelSource adds url to the model's sources unless already present.
	AppendModelSource(ctx context.Context, id, url string) (*models.Model, error)
}

// WorkerLink opens sessions against the remote worker.
type WorkerLink interface {
	Open(ctx context.Context, cmd worker.Command) (*worker.Session, error)
	Acknowledge(ctx context.Context, cmd worker.Command) error
}

const publishTimeout = 5 * time.Second

// Options configures an Orchestrator.
type Options struct {
	Registry ModelRegistry
	Link     WorkerLink
	// Jobs defaults to an empty JobManager.
	Jobs *JobManager
	// Bus defaults to an in-memory broker.
	Bus     pubsub.Broker
	Metrics *metrics.Collector
	Logger  *slog.Logger
	// Retention evicts finished jobs after this long. Zero keeps them forever.
	Retention time.Duration
}

// GenerateInput holds the arguments of a text generation request.
type GenerateInput struct {
	ModelID     string
	Prefix      string
	Count       int
	MaxLength   int
	Temperature float64
}

// TrainInput holds the arguments of a training request.
type TrainInput struct {
	ModelID   string
	URL       string
	Epochs    int
	Selectors []string
	// Force retrains on a source the model already ingested.
	Force bool
}

// Orchestrator runs model operations against the registry and the worker,
// tracking generate and train jobs and publishing every transition.
type Orchestrator struct {
	registry ModelRegistry
	link     WorkerLink
	jobs     *JobManager
	bus      pubsub.Broker
	metrics  *metrics.Collector
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	relays errgroup.Group

	shutdownOnce sync.Once
}

// NewOrchestrator creates an orchestrator. Registry and Link are required.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Registry == nil {
		return nil, errors.New("orchestrator: registry is required")
	}
	if opts.Link == nil {
		return nil, errors.New("orchestrator: worker link is required")
	}
	if opts.Jobs == nil {
		opts.Jobs = NewJobManager()
	}
	if opts.Bus == nil {
		opts.Bus = pubsub.NewMemoryBroker()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		registry: opts.Registry,
		link:     opts.Link,
		jobs:     opts.Jobs,
		bus:      opts.Bus,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		ctx:      ctx,
		cancel:   cancel,
	}

	if opts.Retention > 0 {
		o.relays.Go(func() error {
			o.janitor(opts.Retention)
			return nil
		})
	}
	return o, nil
}

// Jobs returns the job tracker.
func (o *Orchestrator) Jobs() *JobManager {
	return o.jobs
}

// CreateModel registers a model with no sources.
func (o *Orchestrator) CreateModel(ctx context.Context, name string) (*models.Model, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: model name is required", ErrInvalidInput)
	}

	done := o.metrics.Track(metrics.OpRegistryWrite)
	m, err := o.registry.CreateModel(ctx, name)
	done(err)
	if err != nil {
		return nil, fmt.Errorf("create model: %w", err)
	}

	o.logger.Info("model created", "model_id", m.ID, "name", m.Name)
	return m, nil
}

// UpdateModel renames a model. Returns nil if the model does not exist.
func (o *Orchestrator) UpdateModel(ctx context.Context, id, name string) (*models.Model, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: model name is required", ErrInvalidInput)
	}

	done := o.metrics.Track(metrics.OpRegistryWrite)
	m, err := o.registry.UpdateModelName(ctx, id, name)
	done(err)
	if err != nil {
		return nil, fmt.Errorf("update model %s: %w", id, err)
	}
	return m, nil
}

// DeleteModel asks the worker to drop the model and, once it acknowledged,
// removes it from the registry. Returns the deleted model, or nil if it did
// not exist. Nothing is deleted when the worker does not acknowledge.
func (o *Orchestrator) DeleteModel(ctx context.Context, id string) (*models.Model, error) {
	m, err := o.GetModel(ctx, id)
	if err != nil || m == nil {
		return nil, err
	}

	done := o.metrics.Track(metrics.OpWorkerAck)
	err = o.link.Acknowledge(ctx, worker.DeleteCommand(m))
	done(err)
	if err != nil {
		return nil, fmt.Errorf("delete model %s: %w", id, err)
	}

	doneWrite := o.metrics.Track(metrics.OpRegistryWrite)
	deleted, err := o.registry.DeleteModel(ctx, id)
	doneWrite(err)
	if err != nil {
		return nil, fmt.Errorf("delete model %s: %w", id, err)
	}
	if !deleted {
		return nil, nil
	}

	o.logger.Info("model deleted", "model_id", id)
	return m, nil
}

// GenerateTextFromModel starts a generate job for the model and returns its
// pending snapshot. Returns nil if the model does not exist.
func (o *Orchestrator) GenerateTextFromModel(ctx context.Context, in GenerateInput) (*models.Job, error) {
	m, err := o.GetModel(ctx, in.ModelID)
	if err != nil || m == nil {
		return nil, err
	}

	job, err := o.jobs.Start(models.JobKindGenerate, m.ID)
	if err != nil {
		return nil, err
	}

	cmd := worker.GenerateCommand(m, in.Prefix, in.Count, in.MaxLength, in.Temperature)
	o.dispatch(job, cmd)
	return &job, nil
}

// TrainModel starts a train job on url and returns its pending snapshot.
// A url the model already ingested is rejected with ErrAlreadyIngested
// unless in.Force is set. New urls are recorded on the model before the
// worker is contacted. Returns nil if the model does not exist.
func (o *Orchestrator) TrainModel(ctx context.Context, in TrainInput) (*models.Job, error) {
	if strings.TrimSpace(in.URL) == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidInput)
	}

	m, err := o.GetModel(ctx, in.ModelID)
	if err != nil || m == nil {
		return nil, err
	}

	if m.HasSource(in.URL) && !in.Force {
		return nil, alreadyIngested(m.ID, in.URL)
	}

	prev := o.jobs.Get(models.JobKindTrain, m.ID)
	job, err := o.jobs.Start(models.JobKindTrain, m.ID)
	if err != nil {
		return nil, err
	}

	// A train job that finished before Start may have appended url since
	// the first read. Holding the job serialises appends for this model.
	m, err = o.GetModel(ctx, m.ID)
	if err != nil || m == nil {
		o.jobs.Release(models.JobKindTrain, in.ModelID, prev)
		return nil, err
	}

	ingested := m.HasSource(in.URL)
	if ingested && !in.Force {
		o.jobs.Release(models.JobKindTrain, m.ID, prev)
		return nil, alreadyIngested(m.ID, in.URL)
	}

	if !ingested {
		done := o.metrics.Track(metrics.OpRegistryWrite)
		updated, err := o.registry.AppendModelSource(ctx, m.ID, in.URL)
		done(err)
		if err != nil {
			o.jobs.Release(models.JobKindTrain, m.ID, prev)
			return nil, fmt.Errorf("append source to model %s: %w", m.ID, err)
		}
		if updated == nil {
			o.jobs.Release(models.JobKindTrain, m.ID, prev)
			return nil, nil
		}
		m = updated
	}

	cmd := worker.TrainCommand(m, in.URL, in.Epochs, in.Selectors)
	o.dispatch(job, cmd)
	return &job, nil
}

func alreadyIngested(modelID, url string) error {
	return fmt.Errorf("%w: model %s already trained on %s", ErrAlreadyIngested, modelID, url)
}

// GetModel returns a model, or nil if it does not exist.
func (o *Orchestrator) GetModel(ctx context.Context, id string) (*models.Model, error) {
	done := o.metrics.Track(metrics.OpRegistryRead)
	m, err := o.registry.GetModel(ctx, id)
	done(err)
	if err != nil {
		return nil, fmt.Errorf("get model %s: %w", id, err)
	}
	return m, nil
}

// ListModels returns all models.
func (o *Orchestrator) ListModels(ctx context.Context) ([]models.Model, error) {
	done := o.metrics.Track(metrics.OpRegistryRead)
	ms, err := o.registry.ListModels(ctx)
	done(err)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	return ms, nil
}

// GetGenerateJob returns a snapshot of a generate job, or nil.
func (o *Orchestrator) GetGenerateJob(id string) *models.Job {
	return o.jobs.Get(models.JobKindGenerate, id)
}

// GetTrainingJob returns a snapshot of a train job, or nil.
func (o *Orchestrator) GetTrainingJob(id string) *models.Job {
	return o.jobs.Get(models.JobKindTrain, id)
}

// SubscribeJobs streams snapshots of jobs of a kind as they change.
// A non-empty id restricts the feed to that job. The channel is closed
// when ctx ends.
func (o *Orchestrator) SubscribeJobs(ctx context.Context, kind models.JobKind, id string) (<-chan models.Job, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	in, err := o.bus.Subscribe(ctx, pubsub.TopicFor(kind))
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s jobs: %w", kind, err)
	}
	if id == "" {
		return in, nil
	}

	out := make(chan models.Job)
	go func() {
		defer close(out)
		for job := range in {
			if job.ID != id {
				continue
			}
			select {
			case out <- job:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// dispatch publishes the pending job and relays the worker session in the background.
func (o *Orchestrator) dispatch(job models.Job, cmd worker.Command) {
	o.metrics.RecordJobStarted(job.Kind)
	o.publish(job)
	o.logger.Info("job dispatched", "kind", job.Kind, "job_id", job.ID)

	o.relays.Go(func() error {
		o.relay(job.Kind, job.ID, cmd)
		return nil
	})
}

// relay feeds every event of one worker session into the job tracker.
func (o *Orchestrator) relay(kind models.JobKind, id string, cmd worker.Command) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("job relay panicked", "kind", kind, "job_id", id, "panic", r)
			o.apply(kind, id, worker.Event{Type: worker.EventError, Message: fmt.Sprintf("internal error: %v", r)})
		}
	}()

	start := time.Now()
	sess, err := o.link.Open(o.ctx, cmd)
	if err != nil {
		o.metrics.RecordTiming(metrics.OpWorkerSession, time.Since(start), err)
		o.logger.Warn("worker session failed", "kind", kind, "job_id", id, "error", err)
		o.apply(kind, id, worker.ErrorEvent(err))
		return
	}
	defer sess.Close()

	var sessErr error
	for ev := range sess.Events() {
		if ev.Type == worker.EventError {
			sessErr = ev.Err
			if sessErr == nil {
				sessErr = errors.New(ev.Message)
			}
		}
		o.apply(kind, id, ev)
	}
	o.metrics.RecordTiming(metrics.OpWorkerSession, time.Since(start), sessErr)
}

func (o *Orchestrator) apply(kind models.JobKind, id string, ev worker.Event) {
	job, changed := o.jobs.Apply(kind, id, ev)
	if !changed {
		return
	}
	o.publish(job)

	if job.Status.Terminal() {
		o.metrics.RecordJobFinished(kind, job.Status)
		o.logger.Info("job finished", "kind", kind, "job_id", id, "status", job.Status, "errors", len(job.Errors))
	}
}

func (o *Orchestrator) publish(job models.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := o.bus.Publish(ctx, pubsub.TopicFor(job.Kind), job); err != nil {
		o.logger.Warn("failed to publish job update", "kind", job.Kind, "job_id", job.ID, "error", err)
	}
}

func (o *Orchestrator) janitor(retention time.Duration) {
	interval := min(retention, time.Minute)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			if n := o.jobs.Prune(retention); n > 0 {
				o.logger.Debug("pruned finished jobs", "count", n)
			}
		}
	}
}

// Shutdown cancels running worker sessions and waits for their relays
// to finish or ctx to end.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.shutdownOnce.Do(o.cancel)

	done := make(chan struct{})
	go func() {
		_ = o.relays.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for job relays: %w", ctx.Err())
	}
}
