package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/tailored-agentic-units/workflow/config"
	"github.com/tailored-agentic-units/workflow/events"
	"github.com/tailored-agentic-units/workflow/observability"
	"github.com/tailored-agentic-units/workflow/registry"
	"github.com/tailored-agentic-units/workflow/storage"
	"github.com/tailored-agentic-units/workflow/storage/filestore"
	"github.com/tailored-agentic-units/workflow/storage/redisstore"
	"github.com/tailored-agentic-units/workflow/storage/sqlite"
	"github.com/tailored-agentic-units/workflow/workflow"
)

// Marking store tags registered by the binary.
const (
	sqliteMarkingStore = "sqlite"
	redisMarkingStore  = "redis"
)

type options struct {
	dbPath   string
	dirPath  string
	redisURL string
	natsURL  string
	metrics  prometheus.Registerer
	logger   *slog.Logger
}

type application struct {
	registry *registry.Registry
	observer observability.Observer
	store    *sqlite.Store
	files    *filestore.Store
	redis    *redis.Client
	nats     *nats.Conn
}

func setup(ctx context.Context, cfg *config.File, opts options) (*application, error) {
	app := &application{}

	observer, err := observability.GetObserver(cfg.Observer)
	if err != nil {
		return nil, err
	}
	prom, err := observability.NewPrometheusObserver(opts.metrics)
	if err != nil {
		return nil, err
	}
	app.observer = observability.NewMultiObserver(observer, prom)

	dispatcher := events.NewDispatcher()
	dispatcher.Listen(workflow.EventPrefix+".*", func(ctx context.Context, name string, event *events.Event) error {
		opts.logger.DebugContext(ctx, "workflow event",
			"name", name,
			"type", event.TypeName(),
			"workflow", event.WorkflowName(),
			"transition", event.TransitionName(),
		)
		return nil
	})
	var bus events.Bus = dispatcher

	if opts.natsURL != "" {
		conn, err := events.DialNATS(opts.natsURL, "workflow")
		if err != nil {
			return nil, err
		}
		app.nats = conn
		bus = events.NewMultiBus(dispatcher, events.NewNATSBridge(conn, "events"))
	}

	if opts.redisURL != "" {
		client, err := redisstore.Connect(ctx, opts.redisURL)
		if err != nil {
			app.close()
			return nil, err
		}
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			app.close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		app.redis = client
		workflow.RegisterMarkingStore(redisMarkingStore, redisstore.Factory(client, ""))
	}

	if opts.dbPath != "" {
		store, err := sqlite.Open(opts.dbPath)
		if err != nil {
			app.close()
			return nil, err
		}
		app.store = store
		workflow.RegisterMarkingStore(sqliteMarkingStore, store.MarkingStoreFactory())
	}

	if opts.dirPath != "" {
		app.files = filestore.New(opts.dirPath)
	}

	app.registry = registry.New(cfg.Registry,
		registry.WithBus(bus),
		registry.WithObserver(app.observer),
	)

	if err := app.registry.LoadConfigs(cfg.Workflows); err != nil {
		opts.logger.Error("failed to load configured workflows", "error", err)
	}
	if app.store != nil {
		if err := app.registry.LoadFromSource(ctx, app.store, cfg.Source); err != nil {
			opts.logger.Error("failed to load stored workflows", "error", err)
		}
	}
	if app.files != nil {
		if err := app.registry.LoadFromSource(ctx, app.files, cfg.Source); err != nil {
			opts.logger.Error("failed to load workflow files", "error", err, "dir", opts.dirPath)
		}
	}

	return app, nil
}

// target picks the store import writes to. The database wins over the
// workflow directory.
func (a *application) target() storage.WorkflowStore {
	switch {
	case a.store != nil:
		return a.store
	case a.files != nil:
		return a.files
	default:
		return nil
	}
}

func (a *application) close() {
	if a.nats != nil {
		_ = a.nats.Drain()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

// importWorkflows stores every configured workflow. Existing names are
// skipped.
func importWorkflows(ctx context.Context, store storage.WorkflowStore, set config.Set, logger *slog.Logger) error {
	var errs []error
	for _, cfg := range set {
		err := store.CreateWorkflow(ctx, registry.ToRecord(cfg))
		switch {
		case errors.Is(err, storage.ErrAlreadyExists):
			logger.Info("workflow already stored", "workflow", cfg.Name)
		case err != nil:
			errs = append(errs, fmt.Errorf("workflow %q: %w", cfg.Name, err))
		default:
			logger.Info("workflow stored", "workflow", cfg.Name)
		}
	}
	return errors.Join(errs...)
}
