// Package setup assembles the order portal from its configuration and seeds
// reference data into a fresh store.
package setup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cg-order-portal/internal/api"
	"github.com/cg-order-portal/internal/archive"
	"github.com/cg-order-portal/internal/database"
	"github.com/cg-order-portal/internal/domain"
	"github.com/cg-order-portal/internal/lock"
	"github.com/cg-order-portal/internal/logging"
	"github.com/cg-order-portal/internal/orderform"
	"github.com/cg-order-portal/internal/repository"
	"github.com/cg-order-portal/internal/service"
	"github.com/cg-order-portal/internal/telemetry"
	"github.com/cg-order-portal/pkg/lims"
)

// App holds the wired collaborators of the order portal.
type App struct {
	Config   *domain.Config
	Logger   *logrus.Logger
	Store    domain.ProjectStore
	Tags     *repository.CachedTagStore
	Lims     domain.LimsClient
	Locker   domain.Locker
	Archive  archive.Store
	Parser   *orderform.Parser
	Metrics  *telemetry.Metrics
	Pipeline *service.Pipeline

	closers []func() error
}

// Option is a functional option for Build.
type Option func(*App) error

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(a *App) error {
		a.Logger = logger
		return nil
	}
}

// WithStore replaces the configured project store. The caller keeps ownership.
func WithStore(store domain.ProjectStore) Option {
	return func(a *App) error {
		a.Store = store
		return nil
	}
}

// WithLimsClient replaces the HTTP LIMS client.
func WithLimsClient(client domain.LimsClient) Option {
	return func(a *App) error {
		a.Lims = client
		return nil
	}
}

// Build creates every collaborator named by the configuration. Close releases
// whatever Build opened, also when Build itself fails halfway.
func Build(ctx context.Context, manager domain.ConfigManager, opts ...Option) (*App, error) {
	app := &App{Config: manager.GetConfig()}
	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	if err := app.build(ctx); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	if a.Logger == nil {
		logger, closer, err := logging.New(cfg.Logging)
		if err != nil {
			return err
		}
		a.Logger = logger
		a.closers = append(a.closers, closer.Close)
	}

	shutdown, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.closers = append(a.closers, func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdown(shutdownCtx)
	})

	if a.Store == nil {
		if err := a.openStore(ctx); err != nil {
			return err
		}
	}
	a.Tags = repository.NewCachedTagStore(a.Store, cfg.Cache, a.Logger)
	a.Metrics = telemetry.NewMetrics()

	if a.Lims == nil {
		a.Lims = lims.NewResilientClient(
			lims.NewClient(cfg.Lims, a.Logger),
			cfg.Lims,
			lims.NewMetrics(a.Metrics.Registry),
			a.Logger,
		)
	}

	if cfg.Cache.RedisURL != "" {
		locker, err := lock.NewRedisLocker(ctx, cfg.Cache, a.Logger)
		if err != nil {
			return err
		}
		a.Locker = locker
		a.closers = append(a.closers, locker.Close)
	} else {
		a.Locker = lock.NewMemoryLocker()
	}

	a.Archive, err = archive.New(ctx, cfg.Archive, a.Logger)
	if err != nil {
		return err
	}

	a.Parser = orderform.NewParser(cfg.OrderForm.SheetName, a.Logger)
	a.Pipeline = service.NewPipeline(
		service.NewValidator(a.Tags, a.Lims, a.Logger),
		service.NewSubmitter(a.Lims, cfg.Lims.ResearcherID, a.Logger),
		a.Logger,
		service.WithStore(a.Store),
		service.WithLocker(a.Locker),
		service.WithMetrics(a.Metrics),
	)
	return nil
}

func (a *App) openStore(ctx context.Context) error {
	dbCfg := a.Config.Database
	switch dbCfg.Driver {
	case "postgres":
		db, err := database.NewConnection(ctx, dbCfg, a.Logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error {
			db.Close()
			return nil
		})
		a.Store = repository.NewPostgresStore(db.Pool, a.Logger)
	default:
		store, err := repository.NewSQLiteStore(dbCfg.SQLitePath, a.Logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, store.Close)
		a.Store = store
	}
	return nil
}

// ServerDeps returns the collaborators of the HTTP API.
func (a *App) ServerDeps() api.Deps {
	return api.Deps{
		Pipeline: a.Pipeline,
		Store:    a.Store,
		Archive:  a.Archive,
		Parser:   a.Parser,
		Logger:   a.Logger,
	}
}

// Import archives and parses an order form file. The project is named after
// the file unless name is set. Trio tags are upgraded when configured.
func (a *App) Import(ctx context.Context, path, name string) (*domain.ProjectRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read order form: %w", err)
	}
	key, err := archive.Save(ctx, a.Archive, filepath.Base(path), bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = orderform.ProjectName(path)
	}
	project, err := a.Parser.Parse(bytes.NewReader(data), name)
	if err != nil {
		return nil, err
	}
	fields := logrus.Fields{"project": project.Name, "archive_key": key}
	if a.Config.Submission.UpgradeTrioTags {
		if upgraded := service.UpgradeTrioTags(project); len(upgraded) > 0 {
			fields["trio_families"] = upgraded
		}
	}
	a.Logger.WithFields(fields).Info("Order form imported")
	return project, nil
}

// Close releases the resources opened by Build in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
