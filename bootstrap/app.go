package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/kbukum/opkit/cache"
	"github.com/kbukum/opkit/config"
	apperrors "github.com/kbukum/opkit/errors"
	"github.com/kbukum/opkit/llm"
	"github.com/kbukum/opkit/logger"
	"github.com/kbukum/opkit/observability"
	"github.com/kbukum/opkit/op"
	"github.com/kbukum/opkit/pipeline"
	"github.com/kbukum/opkit/server"
	"github.com/kbukum/opkit/sse"
	"github.com/kbukum/opkit/version"
)

// App is an opkit process: configuration plus everything built from it.
type App struct {
	Name     string
	Version  string
	Cfg      *config.Config
	Logger   *logger.Logger
	Provider llm.Provider
	Registry *pipeline.Registry
	Builder  *pipeline.Builder
	Events   *sse.Hub
	Cache    *cache.Client

	upstream        llm.Provider
	loader          pipeline.Loader
	builderOpts     []pipeline.Option
	gracefulTimeout time.Duration
	started         bool

	onStart []Hook
	onStop  []Hook
}

// NewApp applies defaults, validates cfg and creates the logger and the
// model provider. Pipelines are built on start.
func NewApp(cfg *config.Config, opts ...Option) (*App, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	o := resolveOptions(opts)
	app := &App{
		Name:            cfg.Name,
		Version:         cfg.Version,
		Cfg:             cfg,
		Registry:        pipeline.NewRegistry(),
		loader:          o.loader,
		builderOpts:     o.builderOpts,
		gracefulTimeout: 15 * time.Second,
	}
	if app.Version == "dev" {
		app.Version = version.Short()
	}
	if o.gracefulTimeout != nil {
		app.gracefulTimeout = *o.gracefulTimeout
	}

	if o.logger != nil {
		app.Logger = o.logger
	} else {
		app.Logger = logger.New(&cfg.Logging, cfg.Name)
	}

	app.Provider = o.provider
	if app.Provider == nil {
		p, err := llm.NewProvider(cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("llm provider: %w", err)
		}
		app.Provider = p
	}
	app.upstream = app.Provider
	if cfg.Cache.Enabled {
		if err := app.enableCache(); err != nil {
			return nil, err
		}
	}
	app.Events = sse.NewHub(app.Logger)
	if app.loader == nil {
		app.loader = pipeline.NewFileLoader(cfg.PipelinesDir)
	}
	return app, nil
}

// enableCache wraps the provider with the Redis completion cache.
func (a *App) enableCache() error {
	client, err := cache.New(a.Cfg.Cache, a.Logger)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	a.Cache = client
	a.OnStop(func(context.Context) error { return client.Close() })

	store := cache.NewTypedStore[llm.CompletionResponse](client, a.Cfg.Cache.KeyPrefix)
	a.Provider = cache.Provider(a.upstream, store, a.Cfg.Cache.TTLDuration(), a.Logger)
	return nil
}

// Start installs telemetry, builds every pipeline the loader knows and runs
// the start hooks. It is idempotent.
func (a *App) Start(ctx context.Context) error {
	if a.started {
		return nil
	}
	if err := a.start(ctx); err != nil {
		_ = a.stop()
		return err
	}
	a.started = true
	return nil
}

func (a *App) start(ctx context.Context) error {
	begin := time.Now()
	a.Logger.Info("Starting application", map[string]interface{}{
		"name":    a.Name,
		"version": a.Version,
	})

	go a.Events.Run()
	a.OnStop(func(context.Context) error {
		a.Events.Stop()
		return nil
	})

	middleware, err := a.middleware(ctx)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	opts := []pipeline.Option{
		pipeline.WithRegistry(a.Registry),
		pipeline.WithLoader(a.loader),
		pipeline.WithProvider(a.Provider.Name(), a.Provider),
		pipeline.WithDefaultProvider(a.Provider),
		pipeline.WithMaxParallel(a.Cfg.Runtime.MaxParallel),
		pipeline.WithResilience(a.Cfg.Runtime.Config),
		pipeline.WithMiddleware(middleware...),
	}
	a.Builder = pipeline.NewBuilder(append(opts, a.builderOpts...)...)

	names, err := a.Builder.BuildAll()
	if err != nil {
		return err
	}
	a.Logger.Info("Pipelines built", map[string]interface{}{
		"count":     len(names),
		"pipelines": names,
	})

	if err := runHooks(ctx, a.onStart); err != nil {
		return fmt.Errorf("onStart hook failed: %w", err)
	}
	a.Logger.Info("Application started", logger.DurationFields("startup", time.Since(begin)))
	return nil
}

// middleware returns the operation middleware for the configured telemetry,
// registering exporter shutdown as stop hooks.
func (a *App) middleware(ctx context.Context) ([]op.Middleware, error) {
	mws := []op.Middleware{op.WithLogging(a.Logger), sse.Publish(a.Events)}
	if !a.Cfg.Tracing.Enabled {
		return mws, nil
	}

	shutdownTracer, err := observability.InitTracer(ctx, a.Cfg.Tracing.Config)
	if err != nil {
		return nil, err
	}
	a.OnStop(Hook(shutdownTracer))

	shutdownMeter, err := observability.InitMeter(ctx, a.Cfg.Tracing.Config)
	if err != nil {
		return nil, err
	}
	a.OnStop(Hook(shutdownMeter))

	metrics, err := observability.NewMetrics(observability.Meter(a.Name))
	if err != nil {
		return nil, err
	}
	a.Logger.Info("Telemetry enabled", map[string]interface{}{
		"endpoint":    a.Cfg.Tracing.Endpoint,
		"sample_rate": a.Cfg.Tracing.SampleRate,
	})
	return append(mws, op.WithTracing(a.Name), op.WithMetrics(metrics)), nil
}

// Invoke runs the named pipeline once.
func (a *App) Invoke(ctx context.Context, name string, input any) (any, error) {
	o, ok := a.Registry.Get(name)
	if !ok {
		return nil, apperrors.NotFound("pipeline", name)
	}
	return op.Invoke(ctx, o, input)
}

// HealthCheckers returns the components that report health: the model
// provider when it talks to a remote service, and the completion cache.
func (a *App) HealthCheckers() []observability.HealthChecker {
	var checkers []observability.HealthChecker
	if hc, ok := a.upstream.(observability.HealthChecker); ok {
		checkers = append(checkers, hc)
	}
	if a.Cache != nil {
		checkers = append(checkers, a.Cache)
	}
	return checkers
}

// NewServer creates the HTTP host serving the pipeline API, the event
// stream and health.
func (a *App) NewServer() *server.Server {
	srv := server.New(a.Cfg.Server, a.Logger)
	server.NewHandler(a.Registry, a.Cfg.Server.InvokeTimeout).Register(srv.GinEngine())
	srv.GinEngine().GET("/v1/events", sse.Stream(a.Events, a.Logger))
	srv.GinEngine().GET("/health", server.Health(a.Name, a.Version, a.HealthCheckers()...))
	srv.ApplyMiddleware()
	return srv
}

// Run starts the application, serves HTTP until a shutdown signal or ctx
// cancellation, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	srv := a.NewServer()
	if err := srv.Start(ctx); err != nil {
		_ = a.stop()
		return err
	}
	a.OnStop(srv.Stop)

	a.Logger.Info("Application ready, waiting for shutdown signal")
	a.WaitForSignal(ctx)
	return a.stop()
}

// RunTask starts the application, runs task and shuts down. SIGINT or
// SIGTERM cancels the task's context.
func (a *App) RunTask(ctx context.Context, task func(ctx context.Context) error) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	taskCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	taskErr := task(taskCtx)
	if stopErr := a.stop(); stopErr != nil && taskErr == nil {
		return stopErr
	}
	return taskErr
}

// WaitForSignal blocks until an OS interrupt/term signal or context cancellation.
func (a *App) WaitForSignal(ctx context.Context) os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		a.Logger.Info("Received shutdown signal", map[string]interface{}{
			"signal": sig.String(),
		})
		return sig
	case <-ctx.Done():
		a.Logger.Info("Context canceled, shutting down")
		return nil
	}
}

// Shutdown runs the stop hooks. Use when managing your own lifecycle.
func (a *App) Shutdown() error {
	return a.stop()
}

func (a *App) stop() error {
	a.Logger.Info("Shutting down application", map[string]interface{}{
		"timeout": a.gracefulTimeout.String(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), a.gracefulTimeout)
	defer cancel()

	hooks := slices.Clone(a.onStop)
	slices.Reverse(hooks)
	a.onStop = nil

	var shutdownErr error
	for _, h := range hooks {
		if err := h(ctx); err != nil {
			a.Logger.Error("OnStop hook error", map[string]interface{}{
				"error": err.Error(),
			})
			if shutdownErr == nil {
				shutdownErr = err
			}
		}
	}

	a.Logger.Info("Application shutdown complete")
	return shutdownErr
}
