// Package main provides the GraphQL server for fun-with-ml.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jocr1627/fun-with-ml-server/internal/config"
	"github.com/jocr1627/fun-with-ml-server/internal/db"
	"github.com/jocr1627/fun-with-ml-server/internal/graph"
	"github.com/jocr1627/fun-with-ml-server/internal/memstore"
	"github.com/jocr1627/fun-with-ml-server/internal/metrics"
	"github.com/jocr1627/fun-with-ml-server/internal/pgstore"
	"github.com/jocr1627/fun-with-ml-server/internal/pubsub"
	"github.com/jocr1627/fun-with-ml-server/internal/server"
	"github.com/jocr1627/fun-with-ml-server/internal/service"
	"github.com/jocr1627/fun-with-ml-server/internal/worker"
)

const version = "0.1.0"

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fwml-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	wipeDB := flag.Bool("wipe", false, "wipe all models from the SurrealDB registry on startup (testing only)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Setup logger (dual output: stderr text + file JSON)
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel())
	defer func() { _ = cleanup() }()
	slog.SetDefault(logger)

	logger.Info("fwml-server starting",
		"version", version,
		"port", cfg.Port,
		"worker", cfg.Worker.Address,
		"registry", cfg.Registry,
		"event_bus", cfg.EventBus,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, closeRegistry, err := openRegistry(ctx, cfg, *wipeDB, logger)
	if err != nil {
		return err
	}
	defer closeRegistry()

	bus, err := openEventBus(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logger.Warn("failed to close event bus", "error", err)
		}
	}()

	mc := metrics.NewCollector()
	link := worker.NewLink(worker.Config{
		Endpoint:         cfg.Worker.Address,
		HandshakeTimeout: cfg.Worker.HandshakeTimeout,
		IdleTimeout:      cfg.Worker.IdleTimeout,
		AckTimeout:       cfg.Worker.DeleteTimeout,
	}, logger)

	orch, err := service.NewOrchestrator(service.Options{
		Registry:  registry,
		Link:      link,
		Bus:       bus,
		Metrics:   mc,
		Logger:    logger,
		Retention: cfg.JobRetention,
	})
	if err != nil {
		return err
	}

	srv := server.New(graph.NewResolver(orch, mc, logger), logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, fmt.Sprintf(":%d", cfg.Port))
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down job relays")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return orch.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// openRegistry connects the configured model registry.
// The returned close func is never nil.
func openRegistry(ctx context.Context, cfg config.Config, wipe bool, logger *slog.Logger) (service.ModelRegistry, func(), error) {
	if wipe && cfg.Registry != config.RegistrySurrealDB {
		logger.Warn("-wipe only applies to the surrealdb registry", "registry", cfg.Registry)
	}

	switch cfg.Registry {
	case config.RegistrySurrealDB:
		client, err := db.NewClient(ctx, db.Config{
			URL:       cfg.SurrealDB.URL,
			Namespace: cfg.SurrealDB.Namespace,
			Database:  cfg.SurrealDB.Database,
			Username:  cfg.SurrealDB.User,
			Password:  cfg.SurrealDB.Pass,
			AuthLevel: cfg.SurrealDB.AuthLevel,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to surrealdb: %w", err)
		}
		closeFn := func() {
			logger.Info("closing database connection")
			_ = client.Close(context.Background())
		}
		if err := client.InitSchema(ctx); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("initialize surrealdb schema: %w", err)
		}
		if wipe {
			if err := client.WipeData(ctx); err != nil {
				closeFn()
				return nil, nil, fmt.Errorf("wipe surrealdb: %w", err)
			}
			logger.Warn("registry wiped")
		}
		return client, closeFn, nil

	case config.RegistryPostgres:
		store, err := pgstore.Connect(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, store.Close, nil

	case config.RegistryMemory:
		logger.Warn("using in-memory model registry, models are lost on restart")
		return memstore.New(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown registry %q", cfg.Registry)
	}
}

// openEventBus creates the broker that fans job updates out to subscribers.
func openEventBus(ctx context.Context, cfg config.Config, logger *slog.Logger) (pubsub.Broker, error) {
	switch cfg.EventBus {
	case config.EventBusRedis:
		client, err := pubsub.ConnectRedis(ctx, pubsub.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.ChannelPrefix,
		}, logger)
		if err != nil {
			return nil, err
		}
		return pubsub.NewRedisBroker(client, cfg.Redis.ChannelPrefix, logger), nil

	case config.EventBusMemory:
		return pubsub.NewMemoryBroker(), nil

	default:
		return nil, fmt.Errorf("unknown event bus %q", cfg.EventBus)
	}
}
