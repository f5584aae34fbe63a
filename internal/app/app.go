// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/pricing-research/internal/api"
	"github.com/JakeFAU/pricing-research/internal/archive"
	"github.com/JakeFAU/pricing-research/internal/archive/gcs"
	"github.com/JakeFAU/pricing-research/internal/archive/local"
	archivememory "github.com/JakeFAU/pricing-research/internal/archive/memory"
	"github.com/JakeFAU/pricing-research/internal/collector"
	"github.com/JakeFAU/pricing-research/internal/collector/fetch"
	"github.com/JakeFAU/pricing-research/internal/collector/politeness"
	"github.com/JakeFAU/pricing-research/internal/collector/webscraping"
	"github.com/JakeFAU/pricing-research/internal/config"
	"github.com/JakeFAU/pricing-research/internal/id/uuid"
	"github.com/JakeFAU/pricing-research/internal/metrics"
	"github.com/JakeFAU/pricing-research/internal/notify"
	notifymemory "github.com/JakeFAU/pricing-research/internal/notify/memory"
	"github.com/JakeFAU/pricing-research/internal/notify/pubsub"
	"github.com/JakeFAU/pricing-research/internal/research"
	"github.com/JakeFAU/pricing-research/internal/storage"
	"github.com/JakeFAU/pricing-research/internal/tasks"
	"github.com/JakeFAU/pricing-research/internal/telemetry"
)

const serviceName = "pricing-research"

// App holds the shared, long-lived services of the pricing research service.
// It is built once at startup and closed on shutdown.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	tracer     *sdktrace.TracerProvider
	storages   *storage.Selector
	collectors *collector.Selector
	renderer   fetch.Fetcher
	runner     *tasks.Runner
	archive    research.Archiver
	notifier   research.Notifier
	closers    []namedCloser
}

type namedCloser struct {
	name string
	c    io.Closer
}

// New builds every service described by cfg. It fails fast when an optional
// backend is enabled but cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	a := &App{cfg: cfg, logger: logger}

	tp, err := telemetry.InitTracerProvider(ctx, serviceName)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.tracer = tp

	a.storages = storage.NewDefaultSelector(cfg.Storage, logger)

	if err := a.initArchive(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if err := a.initNotifier(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if err := a.initCollectors(); err != nil {
		a.Close(ctx)
		return nil, err
	}

	a.runner = tasks.New(ctx, tasks.Config{Timeout: cfg.PersistTimeout()}, logger)
	logger.Info("application services initialized",
		zap.Stringer("storage_mode", cfg.StorageMode()),
		zap.String("browser_engine", cfg.Browser.Engine),
		zap.Bool("archive", cfg.Archive.Enabled),
		zap.Bool("pubsub", cfg.PubSub.Enabled),
	)
	return a, nil
}

func (a *App) initArchive(ctx context.Context) error {
	if !a.cfg.Archive.Enabled {
		return nil
	}
	var store archive.BlobStore
	switch a.cfg.Archive.Backend {
	case config.BackendGCS:
		gcsStore, err := gcs.Open(ctx, gcs.Config{
			Bucket:   a.cfg.Archive.GCSBucket,
			Metadata: map[string]string{"service": serviceName},
		}, a.logger)
		if err != nil {
			return fmt.Errorf("init gcs archive: %w", err)
		}
		a.closers = append(a.closers, namedCloser{name: "gcs archive", c: gcsStore})
		store = gcsStore
	case config.BackendLocal:
		localStore, err := local.New(local.Config{BaseDir: a.cfg.Archive.Dir})
		if err != nil {
			return fmt.Errorf("init local archive: %w", err)
		}
		store = localStore
	default:
		store = archivememory.NewBlobStore()
	}
	archiver, err := archive.New(store, a.cfg.Archive.Prefix, a.logger)
	if err != nil {
		return fmt.Errorf("init archive: %w", err)
	}
	a.archive = archiver
	return nil
}

func (a *App) initNotifier(ctx context.Context) error {
	if !a.cfg.PubSub.Enabled {
		return nil
	}
	var publisher notify.Publisher
	switch a.cfg.PubSub.Backend {
	case config.BackendMemory:
		publisher = notifymemory.New()
	default:
		p, err := pubsub.Open(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("init pubsub: %w", err)
		}
		a.closers = append(a.closers, namedCloser{name: "pubsub", c: p})
		publisher = p
	}
	notifier, err := notify.New(publisher, a.cfg.PubSub.TopicName, a.logger)
	if err != nil {
		return fmt.Errorf("init notifier: %w", err)
	}
	a.notifier = notifier
	return nil
}

func (a *App) initCollectors() error {
	agents := fetch.NewUserAgents(a.cfg.Collector.UserAgents...)
	renderer, err := fetch.NewRenderer(a.cfg.Browser.Engine, fetch.RenderConfig{
		MaxParallel:       a.cfg.Browser.MaxParallel,
		Headless:          a.cfg.Browser.Headless,
		NavigationTimeout: a.cfg.BrowserNavTimeout(),
		WaitTimeout:       a.cfg.BrowserWaitTimeout(),
	})
	if err != nil {
		return fmt.Errorf("init renderer: %w", err)
	}
	a.renderer = renderer
	if c, ok := renderer.(io.Closer); ok {
		a.closers = append(a.closers, namedCloser{name: "renderer", c: c})
	}

	a.collectors = collector.NewSelector(research.DefaultRegistry())
	kit := &webscraping.Toolkit{
		Static: fetch.NewStatic(fetch.StaticConfig{
			UserAgent:     agents.Pick(),
			RespectRobots: a.cfg.Collector.RespectRobots,
			Timeout:       a.cfg.CollectorTimeout(),
		}, a.logger),
		Renderer: renderer,
		Gate: politeness.New(politeness.Config{
			DefaultDelay:  a.cfg.DefaultCrawlDelay(),
			RespectRobots: a.cfg.Collector.RespectRobots,
		}, a.logger),
		UserAgents: agents,
		MaxSellers: a.cfg.Collector.MaxSellers,
		Logger:     a.logger,
	}
	if err := webscraping.Register(a.collectors, kit); err != nil {
		return fmt.Errorf("register collectors: %w", err)
	}
	return nil
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Runner returns the background task runner.
func (a *App) Runner() *tasks.Runner {
	return a.runner
}

// ResearchDeps returns the collaborators shared by every research service.
func (a *App) ResearchDeps() research.Dependencies {
	return research.Dependencies{
		Registry:    research.DefaultRegistry(),
		Collectors:  a.collectors,
		Storages:    a.storages,
		StorageMode: a.cfg.StorageMode(),
		UpdateDelay: a.cfg.UpdateDelay(),
		Archive:     a.archive,
		Notifier:    a.notifier,
		Clock:       research.SystemClock{},
		IDs:         uuid.New(),
		Logger:      a.logger,
	}
}

// HandlerDeps returns the collaborators of the request handlers.
func (a *App) HandlerDeps() api.HandlerDeps {
	return api.HandlerDeps{
		Research: a.ResearchDeps(),
		Tasks:    a.runner,
		Logger:   a.logger,
	}
}

// Ready resolves the configured storage backend and pings it.
func (a *App) Ready(ctx context.Context) error {
	if err := a.storages.Ping(ctx, a.cfg.StorageMode()); err != nil {
		return fmt.Errorf("storage not ready: %w", err)
	}
	return nil
}

// Close waits for background tasks and releases every service. Errors are
// logged, never returned, so shutdown always completes.
func (a *App) Close(ctx context.Context) {
	a.logger.Info("shutting down application services")
	if a.runner != nil {
		if err := a.runner.Wait(ctx); err != nil {
			a.logger.Warn("background tasks still running", zap.Error(err))
		}
	}
	var errs []error
	if a.storages != nil {
		if err := a.storages.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", a.closers[i].name, err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error closing application services", zap.Error(err))
	}
}
