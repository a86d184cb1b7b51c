// Package pgstore is the PostgreSQL model registry.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jocr1627/fun-with-ml-server/internal/models"
)

//go:embed schema.sql
var schemaSQL string

const modelColumns = "id, name, sources, created_at, updated_at"

// Store keeps models in a PostgreSQL table.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Connect opens a pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logger.Info("postgres connected", "host", pool.Config().ConnConfig.Host, "database", pool.Config().ConnConfig.Database)
	return &Store{pool: pool, logger: logger}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Migrate creates the models table if needed. It is safe to call multiple times.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

type modelRow struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	Sources   []string  `db:"sources"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r modelRow) toModel() *models.Model {
	m := &models.Model{
		ID:        strconv.FormatInt(r.ID, 10),
		Name:      r.Name,
		Sources:   r.Sources,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	return m.Clone()
}

// parseID maps a model id to its primary key. Ids that are not integers
// cannot exist in the table.
func parseID(id string) (int64, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	return n, err == nil
}

// queryOne runs a single-row query. Returns nil when no row matched.
func (s *Store) queryOne(ctx context.Context, sql string, args ...any) (*models.Model, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[modelRow])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

// GetModel retrieves a model by id. Returns nil if not found.
func (s *Store) GetModel(ctx context.Context, id string) (*models.Model, error) {
	pk, ok := parseID(id)
	if !ok {
		return nil, nil
	}
	m, err := s.queryOne(ctx, `SELECT `+modelColumns+` FROM models WHERE id = $1`, pk)
	if err != nil {
		return nil, fmt.Errorf("get model: %w", err)
	}
	return m, nil
}

// ListModels returns every model in id order.
func (s *Store) ListModels(ctx context.Context) ([]models.Model, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+modelColumns+` FROM models ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	list, err := pgx.CollectRows(rows, pgx.RowToStructByName[modelRow])
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}

	out := make([]models.Model, 0, len(list))
	for _, r := range list {
		out = append(out, *r.toModel())
	}
	return out, nil
}

// CreateModel inserts a model with no sources.
func (s *Store) CreateModel(ctx context.Context, name string) (*models.Model, error) {
	m, err := s.queryOne(ctx, `
		INSERT INTO models (name) VALUES ($1)
		RETURNING `+modelColumns, name)
	if err != nil {
		return nil, fmt.Errorf("create model: %w", err)
	}
	return m, nil
}

// UpdateModelName renames a model. Returns nil if not found.
func (s *Store) UpdateModelName(ctx context.Context, id, name string) (*models.Model, error) {
	pk, ok := parseID(id)
	if !ok {
		return nil, nil
	}
	m, err := s.queryOne(ctx, `
		UPDATE models SET name = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+modelColumns, pk, name)
	if err != nil {
		return nil, fmt.Errorf("update model: %w", err)
	}
	return m, nil
}

// DeleteModel removes a model. Reports whether it existed.
func (s *Store) DeleteModel(ctx context.Context, id string) (bool, error) {
	pk, ok := parseID(id)
	if !ok {
		return false, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM models WHERE id = $1`, pk)
	if err != nil {
		return false, fmt.Errorf("delete model: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// AppendModelSource adds url to the model's sources unless already present.
// The check and the append run in one statement. Returns nil if not found.
func (s *Store) AppendModelSource(ctx context.Context, id, url string) (*models.Model, error) {
	pk, ok := parseID(id)
	if !ok {
		return nil, nil
	}
	m, err := s.queryOne(ctx, `
		UPDATE models SET
			sources = CASE WHEN $2::text = ANY(sources) THEN sources ELSE array_append(sources, $2::text) END,
			updated_at = CASE WHEN $2::text = ANY(sources) THEN updated_at ELSE now() END
		WHERE id = $1
		RETURNING `+modelColumns, pk, url)
	if err != nil {
		return nil, fmt.Errorf("append model source: %w", err)
	}
	return m, nil
}
