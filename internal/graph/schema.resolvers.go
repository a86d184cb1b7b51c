package graph

// This file will be automatically regenerated based on the schema, any resolver
// implementations will be copied through when generating and any unknown code
// will be moved to the end.
// Code generated by github.com/99designs/gqlgen version v0.17.86

import (
	"context"

	"github.com/jocr1627/fun-with-ml-server/internal/models"
	"github.com/jocr1627/fun-with-ml-server/internal/service"
)

// CreateModel is the resolver for the createModel field.
func (r *mutationResolver) CreateModel(ctx context.Context, input CreateModelInput) (*Model, error) {
	m, err := r.orch.CreateModel(ctx, input.Name)
	if err != nil {
		return nil, toGraphQLError(ctx, err)
	}
	return modelToGraphQL(m), nil
}

// UpdateModel is the resolver for the updateModel field.
func (r *mutationResolver) UpdateModel(ctx context.Context, input UpdateModelInput) (*Model, error) {
	m, err := r.orch.UpdateModel(ctx, input.ID, input.Name)
	if err != nil {
		return nil, toGraphQLError(ctx, err)
	}
	return modelToGraphQL(m), nil
}

// DeleteModel is the resolver for the deleteModel field.
func (r *mutationResolver) DeleteModel(ctx context.Context, input DeleteModelInput) (*Model, error) {
	m, err := r.orch.DeleteModel(ctx, input.ID)
	if err != nil {
		return nil, toGraphQLError(ctx, err)
	}
	return modelToGraphQL(m), nil
}

// GenerateTextFromModel is the resolver for the generateTextFromModel field.
func (r *mutationResolver) GenerateTextFromModel(ctx context.Context, input GenerateTextInput) (*GenerateJob, error) {
	job, err := r.orch.GenerateTextFromModel(ctx, service.GenerateInput{
		ModelID:     input.ID,
		Prefix:      input.Prefix,
		Count:       input.Count,
		MaxLength:   input.MaxLength,
		Temperature: input.Temperature,
	})
	if err != nil {
		return nil, toGraphQLError(ctx, err)
	}
	return generateJobToGraphQL(job), nil
}

// TrainModel is the resolver for the trainModel field.
func (r *mutationResolver) TrainModel(ctx context.Context, input TrainModelInput) (*TrainingJob, error) {
	job, err := r.orch.TrainModel(ctx, service.TrainInput{
		ModelID:   input.ID,
		URL:       input.URL,
		Epochs:    input.Epochs,
		Selectors: input.Selectors,
		Force:     input.Force != nil && *input.Force,
	})
	if err != nil {
		return nil, toGraphQLError(ctx, err)
	}
	return trainingJobToGraphQL(job), nil
}

// Model is the resolver for the model field.
func (r *queryResolver) Model(ctx context.Context, input ModelInput) (*Model, error) {
	m, err := r.orch.GetModel(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return modelToGraphQL(m), nil
}

// Models is the resolver for the models field.
func (r *queryResolver) Models(ctx context.Context) ([]*Model, error) {
	ms, err := r.orch.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	return modelsToGraphQL(ms), nil
}

// GenerateJob is the resolver for the generateJob field.
func (r *queryResolver) GenerateJob(ctx context.Context, input JobInput) (*GenerateJob, error) {
	return generateJobToGraphQL(r.orch.GetGenerateJob(input.ID)), nil
}

// GenerateJobs is the resolver for the generateJobs field.
func (r *queryResolver) GenerateJobs(ctx context.Context) ([]*GenerateJob, error) {
	jobs := r.orch.Jobs().List(models.JobKindGenerate)
	out := make([]*GenerateJob, len(jobs))
	for i := range jobs {
		out[i] = generateJobToGraphQL(&jobs[i])
	}
	return out, nil
}

// TrainingJob is the resolver for the trainingJob field.
func (r *queryResolver) TrainingJob(ctx context.Context, input JobInput) (*TrainingJob, error) {
	return trainingJobToGraphQL(r.orch.GetTrainingJob(input.ID)), nil
}

// TrainingJobs is the resolver for the trainingJobs field.
func (r *queryResolver) TrainingJobs(ctx context.Context) ([]*TrainingJob, error) {
	jobs := r.orch.Jobs().List(models.JobKindTrain)
	out := make([]*TrainingJob, len(jobs))
	for i := range jobs {
		out[i] = trainingJobToGraphQL(&jobs[i])
	}
	return out, nil
}

// ServerStats is the resolver for the serverStats field.
func (r *queryResolver) ServerStats(ctx context.Context) (*ServerStats, error) {
	return metricsSnapshotToGraphQL(r.metrics.Snapshot()), nil
}

// TextGenerated is the resolver for the textGenerated field.
func (r *subscriptionResolver) TextGenerated(ctx context.Context, id *string) (<-chan *GenerateJob, error) {
	in, err := r.orch.SubscribeJobs(ctx, models.JobKindGenerate, deref(id))
	if err != nil {
		return nil, err
	}
	return forward(ctx, in, generateJobToGraphQL), nil
}

// BatchCompleted is the resolver for the batchCompleted field.
func (r *subscriptionResolver) BatchCompleted(ctx context.Context, id *string) (<-chan *TrainingJob, error) {
	in, err := r.orch.SubscribeJobs(ctx, models.JobKindTrain, deref(id))
	if err != nil {
		return nil, err
	}
	return forward(ctx, in, trainingJobToGraphQL), nil
}

// Mutation returns MutationResolver implementation.
func (r *Resolver) Mutation() MutationResolver { return &mutationResolver{r} }

// Query returns QueryResolver implementation.
func (r *Resolver) Query() QueryResolver { return &queryResolver{r} }

// Subscription returns SubscriptionResolver implementation.
func (r *Resolver) Subscription() SubscriptionResolver { return &subscriptionResolver{r} }

type mutationResolver struct{ *Resolver }
type queryResolver struct{ *Resolver }
type subscriptionResolver struct{ *Resolver }
