// Package models defines the data structures shared by the fun-with-ml server.
package models

import (
	"slices"
	"time"
)

// Model is a trainable text model known to the registry.
// Sources lists the URLs the model has ingested, in ingestion order.
type Model struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Sources   []string  `json:"sources"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasSource reports whether url was already ingested by the model.
func (m *Model) HasSource(url string) bool {
	return slices.Contains(m.Sources, url)
}

// Clone returns a copy of m that shares no slices with it.
func (m *Model) Clone() *Model {
	if m == nil {
		return nil
	}
	c := *m
	c.Sources = slices.Clone(m.Sources)
	if c.Sources == nil {
		c.Sources = []string{}
	}
	return &c
}
