// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bissquit/content-notifier/api/openapi"
	"github.com/bissquit/content-notifier/internal/config"
	"github.com/bissquit/content-notifier/internal/content"
	contentpostgres "github.com/bissquit/content-notifier/internal/content/postgres"
	"github.com/bissquit/content-notifier/internal/content/source"
	"github.com/bissquit/content-notifier/internal/domain"
	"github.com/bissquit/content-notifier/internal/eventlog"
	eventlogpostgres "github.com/bissquit/content-notifier/internal/eventlog/postgres"
	"github.com/bissquit/content-notifier/internal/identity/jwt"
	"github.com/bissquit/content-notifier/internal/notifications"
	notificationspostgres "github.com/bissquit/content-notifier/internal/notifications/postgres"
	"github.com/bissquit/content-notifier/internal/pkg/ctxlog"
	"github.com/bissquit/content-notifier/internal/pkg/httputil"
	"github.com/bissquit/content-notifier/internal/pkg/metrics"
	"github.com/bissquit/content-notifier/internal/pkg/postgres"
	pkgredis "github.com/bissquit/content-notifier/internal/pkg/redis"
	"github.com/bissquit/content-notifier/internal/render"
	"github.com/bissquit/content-notifier/internal/resilience"
	"github.com/bissquit/content-notifier/internal/runlock"
	"github.com/bissquit/content-notifier/internal/scheduler"
	subscriberspostgres "github.com/bissquit/content-notifier/internal/subscribers/postgres"
	"github.com/bissquit/content-notifier/internal/unsubscribe"
	unsubscribepostgres "github.com/bissquit/content-notifier/internal/unsubscribe/postgres"
	"github.com/bissquit/content-notifier/internal/version"
	"github.com/bissquit/content-notifier/migrations"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const (
	serviceName     = "content-notifier"
	collectInterval = 15 * time.Second
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	redis         *redis.Client
	server        *http.Server
	metricsServer *http.Server
	bgCtx         context.Context
	bgCancel      context.CancelFunc
	bg            sync.WaitGroup

	orchestrator *notifications.Orchestrator
	tokens       *unsubscribe.Service
	events       *eventlog.Logger
	source       *source.Directory
	scheduler    *scheduler.Scheduler
	auth         *jwt.Authenticator
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(cfg.Database.URL, migrations.FS); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())

	app := &App{
		config:   cfg,
		logger:   logger,
		db:       db,
		bgCtx:    bgCtx,
		bgCancel: bgCancel,
	}

	if cfg.Redis.URL != "" {
		app.redis, err = pkgredis.Connect(connectCtx, pkgredis.Config{
			URL:             cfg.Redis.URL,
			ConnectTimeout:  cfg.Database.ConnectTimeout,
			ConnectAttempts: cfg.Database.ConnectAttempts,
		})
		if err != nil {
			app.close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
	}

	if err := app.buildPipeline(); err != nil {
		app.close()
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	router := app.setupRouter()

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	metrics.RecordBuildInfo(version.Version, version.GitCommit)

	return app, nil
}

// buildPipeline wires repositories, delivery and the orchestrator.
func (a *App) buildPipeline() error {
	cfg := a.config

	subscribersRepo := subscriberspostgres.NewRepository(a.db)
	a.source = source.NewDirectory(cfg.Content.Dir)
	detector := content.NewDetector(a.source, contentpostgres.NewRepository(a.db))

	a.tokens = unsubscribe.NewService(unsubscribepostgres.NewRepository(a.db), subscribersRepo, unsubscribe.Config{
		BaseURL: cfg.Site.BaseURL,
		TTL:     cfg.Pipeline.TokenTTL,
	})
	a.events = eventlog.NewLogger(eventlogpostgres.NewRepository(a.db), a.logger)

	renderer, err := render.NewRenderer()
	if err != nil {
		return fmt.Errorf("create renderer: %w", err)
	}

	client, err := newDeliveryClient(a.bgCtx, cfg.Delivery, a.logger)
	if err != nil {
		return fmt.Errorf("create delivery client: %w", err)
	}

	var locker runlock.Locker = runlock.NewLocal()
	if a.redis != nil {
		locker = runlock.NewRedis(a.redis, runlock.DefaultTTL)
	}

	a.orchestrator = notifications.NewOrchestrator(notifications.Config{
		Worker: notifications.WorkerConfig{
			BatchSize:  cfg.Pipeline.BatchSize,
			Workers:    cfg.Pipeline.EffectiveWorkers(),
			BatchDelay: cfg.Pipeline.BatchDelay,
			MaxRetries: cfg.Pipeline.MaxRetries,
			SweepLimit: cfg.Pipeline.SweepLimit,
		},
		Backoff:  resilience.NewBackoff(cfg.Pipeline.BaseBackoff),
		Site:     notifications.Site{Name: cfg.Site.Name, BaseURL: cfg.Site.BaseURL},
		Provider: cfg.Delivery.Provider,
	}, notifications.Deps{
		Content:     detector,
		Subscribers: subscribersRepo,
		Records:     notificationspostgres.NewRepository(a.db),
		Tokens:      a.tokens,
		Renderer:    renderer,
		Client:      client,
		Breaker: resilience.NewBreaker(resilience.BreakerConfig{
			Threshold: cfg.Pipeline.BreakerThreshold,
			Cooldown:  cfg.Pipeline.BreakerCooldown,
		}),
		Events: a.events,
		Locker: locker,
	})

	a.auth = jwt.NewAuthenticator(jwt.Config{
		SecretKey:           cfg.Auth.JWTSecret,
		Issuer:              cfg.Auth.JWTIssuer,
		AccessTokenDuration: cfg.Auth.AdminTokenTTL,
	})

	a.scheduler = scheduler.New(a.logger)
	return a.registerJobs()
}

func (a *App) registerJobs() error {
	jobs := []scheduler.Job{
		{
			Name: "pipeline_run",
			Spec: a.config.Schedule.Run,
			Run: func(ctx context.Context) error {
				_, err := a.orchestrator.Run(ctx)
				return err
			},
		},
		{
			Name: "retry_sweep",
			Spec: a.config.Schedule.Retry,
			Run: func(ctx context.Context) error {
				_, err := a.orchestrator.RetrySweep(ctx)
				return err
			},
		},
		{
			Name:    "housekeeping",
			Spec:    a.config.Schedule.Housekeeping,
			Timeout: time.Minute,
			Run:     a.housekeeping,
		},
	}

	for _, job := range jobs {
		if err := a.scheduler.Add(job); err != nil {
			return err
		}
	}
	return nil
}

// housekeeping drops expired tokens and old pipeline events.
func (a *App) housekeeping(ctx context.Context) error {
	tokens, tokErr := a.tokens.PurgeExpired(ctx)
	events, evErr := a.events.PurgeOlderThan(ctx, a.config.Pipeline.EventRetention)
	if err := errors.Join(tokErr, evErr); err != nil {
		return fmt.Errorf("housekeeping: %w", err)
	}
	a.logger.Info("housekeeping completed", "expired_tokens", tokens, "purged_events", events)
	return nil
}

// Run starts background work and both HTTP servers. It blocks until the
// main server stops.
func (a *App) Run() error {
	a.startBackground()

	go func() {
		a.logger.Info("metrics server listening", "addr", a.metricsServer.Addr)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "error", err)
		}
	}()

	a.logger.Info("server listening",
		"addr", a.server.Addr,
		"delivery_provider", a.config.Delivery.Provider,
		"content_dir", a.config.Content.Dir,
		"scheduled_jobs", a.scheduler.Jobs(),
	)
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

func (a *App) startBackground() {
	a.goBackground(a.collectDBMetrics)
	a.goBackground(a.collectPipelineMetrics)
	a.scheduler.Start()

	if a.config.Content.Watch {
		a.goBackground(a.watchContent)
	}
}

func (a *App) goBackground(fn func(ctx context.Context)) {
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		fn(a.bgCtx)
	}()
}

// Shutdown stops the scheduler first so no run starts mid-shutdown, then
// drains both servers in parallel and releases connections.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	var errs []error
	if err := a.scheduler.Stop(ctx); err != nil {
		errs = append(errs, err)
	}

	servers := map[string]*http.Server{
		"http":    a.server,
		"metrics": a.metricsServer,
	}
	results := make(chan error, len(servers))
	for name, srv := range servers {
		go func() {
			if err := srv.Shutdown(ctx); err != nil {
				results <- fmt.Errorf("shutdown %s server: %w", name, err)
				return
			}
			results <- nil
		}()
	}
	for range servers {
		if err := <-results; err != nil {
			errs = append(errs, err)
		}
	}

	a.close()
	return errors.Join(errs...)
}

// close stops background goroutines and releases connections.
func (a *App) close() {
	a.bgCancel()
	a.bg.Wait()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis client", "error", err)
		}
	}
	a.db.Close()
}

func (a *App) collectDBMetrics(ctx context.Context) {
	// Collect immediately on start
	metrics.RecordDBPoolMetrics(a.db)
	metrics.RecordRedisPoolMetrics(a.redis)

	ticker := time.NewTicker(collectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
			metrics.RecordRedisPoolMetrics(a.redis)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) collectPipelineMetrics(ctx context.Context) {
	ticker := time.NewTicker(collectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := a.orchestrator.CollectMetrics(ctx); err != nil && ctx.Err() == nil {
				a.logger.Error("failed to collect pipeline metrics", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// watchContent triggers a run shortly after the content tree changes.
func (a *App) watchContent(ctx context.Context) {
	trigger := func() {
		if _, err := a.orchestrator.Run(ctx); err != nil {
			if errors.Is(err, runlock.ErrRunInProgress) {
				a.logger.Info("content change ignored, run in progress")
				return
			}
			a.logger.Error("watch-triggered run failed", "error", err)
		}
	}

	a.logger.Info("watching content directory", "dir", a.config.Content.Dir)
	if err := a.source.Watch(ctx, source.DefaultDebounce, trigger); err != nil && ctx.Err() == nil {
		a.logger.Error("content watcher stopped", "error", err)
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Orchestrator returns the pipeline orchestrator. Used in tests.
func (a *App) Orchestrator() *notifications.Orchestrator {
	return a.orchestrator
}

// IssueAdminToken mints a bearer token for the admin endpoints.
func (a *App) IssueAdminToken(subject string) (string, time.Time, error) {
	return a.auth.GenerateToken(subject, domain.RoleAdmin)
}

func (a *App) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		_, _ = w.Write(openapi.Spec)
	})

	unsubscribeHandler := unsubscribe.NewHandler(a.tokens)
	pipelineHandler := notifications.NewHandler(a.orchestrator)

	// Link targets from emails live at the site root.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		unsubscribeHandler.RegisterPublicRoutes(r)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			unsubscribeHandler.RegisterAPIRoutes(r)
		})

		// Runs may legitimately take minutes; the server write timeout bounds them.
		r.Group(func(r chi.Router) {
			r.Use(httputil.SharedSecretMiddleware(a.config.Auth.CronHeaderName, a.config.Auth.CronSecret))
			pipelineHandler.RegisterTriggerRoutes(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Use(httputil.AuthMiddleware(a.auth))
			r.Use(httputil.RequireRole(domain.RoleAdmin))
			pipelineHandler.RegisterAdminRoutes(r)
		})
	})

	return r
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
			httputil.Text(w, http.StatusServiceUnavailable, "Redis unavailable")
			return
		}
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, version.Get())
}

// initLogger builds the process logger. Unknown levels fall back to info;
// config validation rejects them before this runs.
func initLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler).With("service", serviceName, "version", version.Version)
}
