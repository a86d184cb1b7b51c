package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/jocr1627/fun-with-ml-server/internal/models"
)

// modelRecord is a row of the model table.
type modelRecord struct {
	ID        surrealmodels.RecordID `json:"id"`
	Name      string                 `json:"name"`
	Sources   []string               `json:"sources"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// modelKey returns the key part of a model record id.
func modelKey(id surrealmodels.RecordID) (string, error) {
	key, ok := id.ID.(string)
	if !ok {
		return "", fmt.Errorf("unexpected model id type %T", id.ID)
	}
	return key, nil
}

func (r modelRecord) toModel() (*models.Model, error) {
	id, err := modelKey(r.ID)
	if err != nil {
		return nil, err
	}
	m := &models.Model{
		ID:        id,
		Name:      r.Name,
		Sources:   r.Sources,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	return m.Clone(), nil
}

// first converts the first record of a single-statement result, or returns nil.
func first(results *[]surrealdb.QueryResult[[]modelRecord]) (*models.Model, error) {
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return (*results)[0].Result[0].toModel()
}

// GetModel retrieves a model by id. Returns nil if not found.
func (c *Client) GetModel(ctx context.Context, id string) (*models.Model, error) {
	results, err := surrealdb.Query[[]modelRecord](ctx, c.db, `
		SELECT * FROM type::record("model", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get model: %w", wrapQueryError(err))
	}
	return first(results)
}

// ListModels returns every model, oldest first.
func (c *Client) ListModels(ctx context.Context) ([]models.Model, error) {
	results, err := surrealdb.Query[[]modelRecord](ctx, c.db, `
		SELECT * FROM model ORDER BY created_at ASC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", wrapQueryError(err))
	}

	out := []models.Model{}
	if results == nil || len(*results) == 0 {
		return out, nil
	}
	for _, r := range (*results)[0].Result {
		m, err := r.toModel()
		if err != nil {
			return nil, fmt.Errorf("list models: %w", err)
		}
		out = append(out, *m)
	}
	return out, nil
}

// CreateModel inserts a model with a fresh id and no sources.
func (c *Client) CreateModel(ctx context.Context, name string) (*models.Model, error) {
	id := uuid.New().String()
	results, err := surrealdb.Query[[]modelRecord](ctx, c.db, `
		CREATE type::record("model", $id) SET
			name = $name,
			sources = []
		RETURN AFTER
	`, map[string]any{"id": id, "name": name})
	if err != nil {
		return nil, fmt.Errorf("create model: %w", wrapQueryError(err))
	}

	m, err := first(results)
	if err != nil {
		return nil, fmt.Errorf("create model: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("create model: no result returned")
	}
	return m, nil
}

// UpdateModelName renames a model. Returns nil if not found.
func (c *Client) UpdateModelName(ctx context.Context, id, name string) (*models.Model, error) {
	results, err := surrealdb.Query[[]modelRecord](ctx, c.db, `
		UPDATE type::record("model", $id) SET
			name = $name,
			updated_at = time::now()
		RETURN AFTER
	`, map[string]any{"id": id, "name": name})
	if err != nil {
		return nil, fmt.Errorf("update model: %w", wrapQueryError(err))
	}
	return first(results)
}

// DeleteModel removes a model. Reports whether it existed.
func (c *Client) DeleteModel(ctx context.Context, id string) (bool, error) {
	results, err := surrealdb.Query[[]modelRecord](ctx, c.db, `
		DELETE type::record("model", $id) RETURN BEFORE
	`, map[string]any{"id": id})
	if err != nil {
		return false, fmt.Errorf("delete model: %w", wrapQueryError(err))
	}
	// RETURN BEFORE yields the deleted record
	return results != nil && len(*results) > 0 && len((*results)[0].Result) > 0, nil
}

// AppendModelSource adds url to the model's sources unless already present.
// array::union keeps the existing order and drops the duplicate.
// Returns nil if the model does not exist.
func (c *Client) AppendModelSource(ctx context.Context, id, url string) (*models.Model, error) {
	results, err := surrealdb.Query[[]modelRecord](ctx, c.db, `
		UPDATE type::record("model", $id) SET
			sources = array::union(sources ?? [], [$url]),
			updated_at = time::now()
		RETURN AFTER
	`, map[string]any{"id": id, "url": url})
	if err != nil {
		return nil, fmt.Errorf("append model source: %w", wrapQueryError(err))
	}
	return first(results)
}
