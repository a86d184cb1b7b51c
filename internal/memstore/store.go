// Package memstore is a process-local model registry.
package memstore

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/jocr1627/fun-with-ml-server/internal/models"
)

// Store keeps models in memory. Ids are sequential integers starting at 0.
type Store struct {
	mu     sync.RWMutex
	models map[string]*models.Model
	order  []string
	nextID int
	now    func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		models: make(map[string]*models.Model),
		now:    time.Now,
	}
}

// GetModel returns a copy of the model, or nil if it does not exist.
func (s *Store) GetModel(_ context.Context, id string) (*models.Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.models[id].Clone(), nil
}

// ListModels returns all models in creation order.
func (s *Store) ListModels(_ context.Context) ([]models.Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Model, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.models[id].Clone())
	}
	return out, nil
}

// CreateModel stores a new model under the next free id.
func (s *Store) CreateModel(_ context.Context, name string) (*models.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := strconv.Itoa(s.nextID)
	s.nextID++

	now := s.now()
	m := &models.Model{
		ID:        id,
		Name:      name,
		Sources:   []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.models[id] = m
	s.order = append(s.order, id)
	return m.Clone(), nil
}

// UpdateModelName renames a model. Returns nil if it does not exist.
func (s *Store) UpdateModelName(_ context.Context, id, name string) (*models.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.models[id]
	if !ok {
		return nil, nil
	}
	m.Name = name
	m.UpdatedAt = s.now()
	return m.Clone(), nil
}

// DeleteModel removes a model and reports whether it existed.
func (s *Store) DeleteModel(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.models[id]; !ok {
		return false, nil
	}
	delete(s.models, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	return true, nil
}

// AppendModelSource adds url to the model's sources unless already present.
// Returns nil if the model does not exist.
func (s *Store) AppendModelSource(_ context.Context, id, url string) (*models.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.models[id]
	if !ok {
		return nil, nil
	}
	if !m.HasSource(url) {
		m.Sources = append(m.Sources, url)
		m.UpdatedAt = s.now()
	}
	return m.Clone(), nil
}
