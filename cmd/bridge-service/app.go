package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"wabridge/internal/api"
	"wabridge/internal/callback"
	"wabridge/internal/config"
	"wabridge/internal/constants"
	"wabridge/internal/delivery"
	"wabridge/internal/filtering"
	"wabridge/internal/logger"
	"wabridge/internal/message"
	"wabridge/internal/pipeline"
	"wabridge/internal/status"
	"wabridge/pkg/bootstrap"
	"wabridge/pkg/health"
	"wabridge/pkg/logging"
	"wabridge/pkg/metrics"
	"wabridge/pkg/middleware"
	"wabridge/pkg/models"
	"wabridge/pkg/ratelimit"
	"wabridge/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	redis          *redis.Client
	store          status.Store
	debouncer      *status.Debouncer
	forwarder      *delivery.Forwarder
	dispatcher     *pipeline.Dispatcher
	limiter        *ratelimit.Store
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceName)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	metrics.Register()

	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	if a.Config.Status.Store == constants.StoreTypeRedis {
		rdb, err := a.dbConnector.InitRedis(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize redis: %w", err)
		}
		a.redis = rdb
	}

	if err := a.initPipeline(ctx); err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	a.InitSources(a.dispatcher)

	if err := a.initHTTPServer(ctx); err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	return nil
}

func (a *App) initPipeline(ctx context.Context) error {
	store, err := status.NewStore(a.Config.Status, a.redis)
	if err != nil {
		return err
	}
	a.store = store
	if fs, ok := store.(*status.FileStore); ok {
		a.Logger.InfowCtx(ctx, "Status record file", "path", fs.Path())
	}

	loc, err := time.LoadLocation(a.Config.Status.TimeZone)
	if err != nil {
		a.Logger.WarnwCtx(ctx, "Unknown time zone, falling back to UTC",
			"time_zone", a.Config.Status.TimeZone,
			"error", err,
		)
		loc = time.UTC
	}

	a.debouncer = status.NewDebouncer(store, status.Options{
		AffirmativeLabels:   a.Config.Status.AffirmativeLabels,
		NegativeLabels:      a.Config.Status.NegativeLabels,
		ConfirmThreshold:    a.Config.Status.ConfirmThreshold,
		ConfirmationCeiling: a.Config.Status.ConfirmationCeiling,
		Location:            loc,
	}, a.Logger)

	svc, err := filtering.NewService(a.Config.Filtering, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create filtering service: %w", err)
	}
	var filter pipeline.MessageFilter
	if svc.RuleCount() > 0 {
		filter = svc
	}

	var sender delivery.Sender = delivery.NewHTTPSender(a.Config.Downstream)
	if a.Config.CircuitBreaker.Enabled {
		sender = delivery.NewCircuitBreakerSender(sender, a.Config.CircuitBreaker)
	}
	a.forwarder = delivery.NewForwarder(sender, a.Config.Downstream, a.Logger)

	normalizer := message.NewNormalizer(a.Config.Downstream.SourceTag, time.Now)
	a.dispatcher = pipeline.NewDispatcher(a.Config.Pipeline.QueueSize, a.debouncer, normalizer, filter, a.forwarder, a.Logger)

	a.Logger.InfowCtx(ctx, "Pipeline initialized",
		"status_store", a.Config.Status.Store,
		"filter_rules", svc.RuleCount(),
		"circuit_breaker", a.Config.CircuitBreaker.Enabled,
	)
	return nil
}

func (a *App) initHTTPServer(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(constants.ServiceName))
	}

	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(a.Logger))

	var protect []gin.HandlerFunc
	if a.Config.RateLimit.Enabled {
		a.limiter = ratelimit.NewStore(a.Config.RateLimit)
		protect = append(protect, ratelimit.Middleware(a.limiter))
		a.Logger.InfowCtx(ctx, "Rate limiting enabled",
			"rps", a.Config.RateLimit.RPS,
			"burst", a.Config.RateLimit.Burst,
		)
	}

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewProbeChecker("downstream", false, a.forwarder.HealthProbe))
	if a.redis != nil {
		healthRegistry.Register(health.NewRedisChecker(a.redis))
	}

	handler := api.NewHandler(api.Dependencies{
		Store:     a.store,
		Session:   a.debouncer,
		SelfTest:  a.forwarder,
		Callbacks: callback.NewReceiver(a.Logger),
		Events:    a.dispatcher,
		Health:    healthRegistry,
	}, a.Logger)
	handler.RegisterRoutes(router, a.Config.Server.IngestToken, protect...)

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}

	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	// producers feed the dispatcher; it keeps draining until all of them are done.
	var producers sync.WaitGroup
	produce := func(fn func() error) {
		producers.Add(1)
		g.Go(func() error {
			defer producers.Done()
			return fn()
		})
	}

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Shutdown returns once in-flight /events requests have been queued.
	produce(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	for _, src := range a.Sources {
		produce(func() error {
			srcCtx := logging.WithServiceName(gCtx, constants.ServiceName)
			a.Logger.InfowCtx(srcCtx, "Starting ingest source", "source", src.Name())
			return src.Run(gCtx)
		})
	}

	produce(func() error {
		a.announceClientInitialized(gCtx)
		return nil
	})

	g.Go(func() error {
		return a.dispatcher.RunAfterProducers(gCtx, &producers)
	})

	if a.limiter != nil {
		g.Go(func() error {
			a.limiter.RunCleanup(gCtx)
			return nil
		})
	}

	if a.Config.Downstream.SelfTestOnStartup {
		g.Go(func() error {
			a.forwarder.StartupSelfTest(gCtx)
			return nil
		})
	}

	return g.Wait()
}

// announceClientInitialized feeds the built-in clientInitialized signal once the
// chat client has had startup_delay to settle.
func (a *App) announceClientInitialized(ctx context.Context) {
	if delay := a.Config.Downstream.StartupDelay; delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}

	env := models.EventEnvelope{
		Kind:   models.EventKindStatus,
		Source: "startup",
		Status: &models.StatusSignal{Label: status.LabelClientInitialized},
	}
	if err := a.dispatcher.Submit(ctx, env); err != nil && ctx.Err() == nil {
		a.Logger.WarnwCtx(ctx, "Failed to submit startup status", "error", err)
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, constants.ServiceName)
	a.Logger.InfowCtx(shutdownCtx, "Shutting down bridge service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.forwarder != nil {
			drainCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			if err := a.forwarder.Wait(drainCtx); err != nil {
				errs = append(errs, fmt.Errorf("in-flight deliveries not drained: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownRedis(a.redis)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
