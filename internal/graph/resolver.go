// Package graph provides the GraphQL schema and resolvers of the server.
package graph

//go:generate go tool gqlgen generate

import (
	"log/slog"

	"github.com/jocr1627/fun-with-ml-server/internal/metrics"
	"github.com/jocr1627/fun-with-ml-server/internal/service"
)

// This file will not be regenerated automatically.
//
// It serves as dependency injection for your app, add any dependencies you require here.

// Resolver is the root resolver with all dependencies.
type Resolver struct {
	orch    *service.Orchestrator
	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewResolver creates a resolver backed by orch.
func NewResolver(orch *service.Orchestrator, mc *metrics.Collector, logger *slog.Logger) *Resolver {
	if mc == nil {
		mc = metrics.NewCollector()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{orch: orch, metrics: mc, logger: logger}
}
