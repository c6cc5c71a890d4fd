// Package application provides application-level services and dependency injection.
package application

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jbctechsolutions/projectgate/internal/adapters/remote"
	"github.com/jbctechsolutions/projectgate/internal/adapters/remote/httpremote"
	"github.com/jbctechsolutions/projectgate/internal/adapters/storage/sqlite"
	"github.com/jbctechsolutions/projectgate/internal/adapters/watch"
	"github.com/jbctechsolutions/projectgate/internal/adapters/workspace/memory"
	appcommand "github.com/jbctechsolutions/projectgate/internal/application/command"
	"github.com/jbctechsolutions/projectgate/internal/application/ports"
	"github.com/jbctechsolutions/projectgate/internal/application/project"
	domainerrors "github.com/jbctechsolutions/projectgate/internal/domain/errors"
	"github.com/jbctechsolutions/projectgate/internal/infrastructure/config"
	"github.com/jbctechsolutions/projectgate/internal/infrastructure/logging"
	"github.com/jbctechsolutions/projectgate/internal/infrastructure/metrics"
	"github.com/jbctechsolutions/projectgate/internal/infrastructure/tracing"
)

// Container holds all application dependencies and provides a central
// point for dependency injection. It manages the lifecycle of services
// and ensures proper initialization order.
type Container struct {
	// Configuration
	config  *config.Config
	verbose bool // Override log level to debug when true

	// Observability
	logger   *logging.Logger
	tracer   *tracing.Tracer
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	// Persistence and remote
	store     *sqlite.Store
	uploaders *remote.Registry
	uploader  ports.RemoteUploader

	// Application services
	factory *appcommand.Factory
	engine  *appcommand.Engine
	manager *project.Manager

	watcher *watch.Watcher
}

// NewContainer creates a new dependency injection container with all services
// initialized based on the provided configuration.
func NewContainer(cfg *config.Config, verbose bool) (*Container, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, domainerrors.NewError(domainerrors.CodeConfiguration, "invalid configuration", err)
	}

	c := &Container{
		config:  cfg,
		verbose: verbose,
	}

	if err := c.initObservability(); err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}

	if err := c.initStorage(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := c.initRemote(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize remote: %w", err)
	}

	if err := c.initServices(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return c, nil
}

// initObservability initializes logging, tracing and metrics.
func (c *Container) initObservability() error {
	ctx := context.Background()

	logLevel := logging.ParseLevel(c.config.Logging.Level)
	if c.verbose {
		logLevel = logging.LevelDebug
	}
	logFormat := logging.FormatText
	if c.config.Logging.Format == "json" {
		logFormat = logging.FormatJSON
	}
	c.logger = logging.New(logging.Config{
		Level:  logLevel,
		Format: logFormat,
		Output: os.Stderr,
	})

	tc := c.config.Observability.Tracing
	if tc.Enabled {
		tracer, err := tracing.New(ctx, tracing.Config{
			Enabled:      true,
			ExporterType: tracing.ExporterType(tc.ExporterType),
			OTLPEndpoint: tc.OTLPEndpoint,
			ServiceName:  tc.ServiceName,
			Environment:  "production",
			SampleRate:   tc.SampleRate,
			Output:       os.Stderr,
		})
		if err != nil {
			return fmt.Errorf("failed to create tracer: %w", err)
		}
		c.tracer = tracer
	} else {
		c.tracer = tracing.Default()
	}

	if c.config.Observability.Metrics.Enabled {
		c.registry = prometheus.NewRegistry()
		c.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		c.metrics = metrics.New(c.registry)
	}

	return nil
}

// initStorage opens the SQLite store.
func (c *Container) initStorage() error {
	path := c.config.Storage.Path
	if path != sqlite.InMemory {
		expanded, err := config.ExpandHome(path)
		if err != nil {
			return err
		}
		path = expanded
	}

	store, err := sqlite.Open(path, memory.Codec{})
	if err != nil {
		return err
	}
	c.store = store
	c.logger.Debug("storage opened", "path", path)
	return nil
}

// initRemote registers the available uploaders and selects the configured one.
func (c *Container) initRemote() error {
	rc := c.config.Remote
	threshold := c.config.Sync.SizeThreshold.Bytes()

	c.uploaders = remote.NewRegistry()
	if err := c.uploaders.Register(config.RemoteKindNone, remote.Nop{Threshold: threshold}); err != nil {
		return err
	}

	if rc.Endpoint != "" {
		var token string
		if rc.TokenEnv != "" {
			token = os.Getenv(rc.TokenEnv)
		}
		u, err := httpremote.New(httpremote.Config{
			Endpoint:  rc.Endpoint,
			Token:     token,
			Threshold: threshold,
			Timeout:   rc.Timeout,
			MaxTries:  rc.MaxTries,
		}, memory.Codec{}, c.logger)
		if err != nil {
			return err
		}
		if err := c.uploaders.Register(config.RemoteKindHTTP, u); err != nil {
			return err
		}
	}

	kind := rc.Kind
	if kind == "" {
		kind = config.RemoteKindNone
	}
	u, err := c.uploaders.GetRequired(kind)
	if err != nil {
		return err
	}
	c.uploader = u
	return nil
}

// initServices builds the command engine and the project manager.
func (c *Container) initServices() error {
	c.factory = appcommand.NewFactory()
	if err := memory.RegisterCommands(c.factory, c.resolveDocument); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	c.engine = appcommand.NewEngine(c.factory, appcommand.Options{
		MaxDepth: c.config.Commands.MaxUndoRedoDepth,
		Logger:   c.logger,
		Tracer:   c.tracer,
		Metrics:  c.metrics,
	})

	c.manager = project.NewManager(project.Options{
		Loader:             c.store,
		Saver:              c.store,
		Uploader:           c.uploader,
		Versions:           c.store,
		Engine:             c.engine,
		MaxFixedVersions:   c.config.Cache.MaxCachedFixedVersions,
		DebounceDelay:      c.config.Sync.DebounceDelay,
		DisposeOnThreshold: c.config.Sync.DisposeOnThreshold,
		Logger:             c.logger,
		Tracer:             c.tracer,
		Metrics:            c.metrics,
	})
	return nil
}

// resolveDocument returns the current document of an open project for the
// edit commands.
func (c *Container) resolveDocument(ctx context.Context, projectID string) (*memory.Document, error) {
	h, err := c.manager.Current(ctx, projectID)
	if err != nil {
		return nil, err
	}
	doc, ok := h.(*memory.Document)
	if !ok {
		return nil, domainerrors.NotAllowed("workspace of project %q does not support edit commands", projectID)
	}
	return doc, nil
}

// StartWatching imports project files changed in the configured watch
// directory into open projects until ctx is done. It is a no-op when no
// watch directory is configured.
func (c *Container) StartWatching(ctx context.Context) error {
	dir := c.config.Storage.WatchDir
	if dir == "" || c.watcher != nil {
		return nil
	}
	dir, err := config.ExpandHome(dir)
	if err != nil {
		return err
	}

	w, err := watch.NewWatcher(watch.DefaultConfig(), c.logger)
	if err != nil {
		return err
	}
	if err := w.Watch(dir); err != nil {
		_ = w.Close()
		return err
	}
	c.watcher = w
	go w.Run(ctx, c.manager)
	c.logger.Info("watching project files", "dir", dir)
	return nil
}

// Close releases all resources held by the container.
func (c *Container) Close() error {
	ctx := context.Background()

	if c.watcher != nil {
		_ = c.watcher.Close()
	}

	if c.manager != nil {
		if err := c.manager.Shutdown(ctx); err != nil {
			c.logger.Warn("projects closed with unsynced changes", "error", err)
		}
	}

	if c.tracer != nil {
		_ = c.tracer.Shutdown(ctx)
	}

	if c.store != nil {
		return c.store.Close()
	}
	return nil
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the application logger.
func (c *Container) Logger() *logging.Logger {
	return c.logger
}

// Tracer returns the application tracer.
func (c *Container) Tracer() *tracing.Tracer {
	return c.tracer
}

// Metrics returns the Prometheus collectors, or nil when metrics are disabled.
func (c *Container) Metrics() *metrics.Metrics {
	return c.metrics
}

// Gatherer returns the Prometheus registry, or nil when metrics are disabled.
func (c *Container) Gatherer() prometheus.Gatherer {
	if c.registry == nil {
		return nil
	}
	return c.registry
}

// Store returns the local SQLite store.
func (c *Container) Store() *sqlite.Store {
	return c.store
}

// Uploaders returns the registry of remote uploaders.
func (c *Container) Uploaders() *remote.Registry {
	return c.uploaders
}

// CommandFactory returns the registered command kinds.
func (c *Container) CommandFactory() *appcommand.Factory {
	return c.factory
}

// Engine returns the command engine.
func (c *Container) Engine() *appcommand.Engine {
	return c.engine
}

// Projects returns the project manager.
func (c *Container) Projects() *project.Manager {
	return c.manager
}
