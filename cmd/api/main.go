package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/clinic-scheduler/cmd/mainconfig"
	"github.com/wolfman30/clinic-scheduler/internal/api/router"
	"github.com/wolfman30/clinic-scheduler/internal/app/bootstrap"
	"github.com/wolfman30/clinic-scheduler/internal/bookings"
	appconfig "github.com/wolfman30/clinic-scheduler/internal/config"
	"github.com/wolfman30/clinic-scheduler/internal/conversation"
	httpmiddleware "github.com/wolfman30/clinic-scheduler/internal/http/middleware"
	"github.com/wolfman30/clinic-scheduler/internal/messaging"
	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

const (
	limiterEvictInterval = 5 * time.Minute
	limiterMaxIdle       = 15 * time.Minute
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-scheduler API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.Handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := app.Background.Wait(shutdownCtx); err != nil {
		logger.Warn("background tasks did not stop in time", "error", err)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// application is everything main needs to serve and later tear down.
type application struct {
	Handler    http.Handler
	Background *bootstrap.Supervisor
	closers    []func()
}

func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// setupMetrics registers the conversation metrics plus the Go runtime
// collectors on a fresh registry.
func setupMetrics() (http.Handler, *metrics.ConversationMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewConversationMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m
}

// loadAWSConfig only touches the SDK when a queue is configured.
func loadAWSConfig(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *aws.Config {
	if cfg.BookingEventsQueueURL == "" {
		return nil
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config; booking events go to the log", "error", err)
		return nil
	}
	return &awsCfg
}

func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*application, error) {
	app := &application{Background: bootstrap.NewSupervisor(logger)}
	metricsHandler, convMetrics := setupMetrics()
	healthChecks := map[string]router.HealthCheck{}

	pool, err := bootstrap.BuildPostgresPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		app.closers = append(app.closers, pool.Close)
		healthChecks["postgres"] = pool.Ping
	} else {
		logger.Warn("DATABASE_URL not set or memory stores forced; bookings are kept in process")
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		app.closers = append(app.closers, func() { _ = redisClient.Close() })
		healthChecks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	sched, err := bootstrap.BuildScheduling(ctx, cfg, pool, convMetrics, time.Now, logger)
	if err != nil {
		app.Close()
		return nil, err
	}

	deps := bootstrap.ConversationDeps{
		Redis:    redisClient,
		Observer: convMetrics,
		OnSweep:  convMetrics.ObserveSweep,
	}
	if transcript := bootstrap.BuildTranscriptStore(pool); transcript != nil {
		deps.Transcript = transcript
	}
	conv, err := bootstrap.BuildConversation(cfg, sched, deps, logger)
	if err != nil {
		app.Close()
		return nil, err
	}

	messenger, provider := bootstrap.BuildOutboundMessenger(cfg, logger)
	logger.Info("reply messenger configured", "provider", provider)

	publisher, publisherKind := bootstrap.BuildEventPublisher(cfg, loadAWSConfig(ctx, cfg, logger), logger)
	logger.Info("booking event publisher configured", "publisher", publisherKind)
	dispatcher := bootstrap.BuildDispatcher(cfg, sched.Outbox, publisher, logger)

	var limiter *httpmiddleware.RateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	app.Background.Go(ctx, "outbox-dispatcher", dispatcher.Start)
	app.Background.Go(ctx, "session-sweeper", conv.Sweeper)
	if limiter != nil {
		app.Background.Go(ctx, "ratelimit-eviction", func(ctx context.Context) {
			limiter.RunEviction(ctx, limiterEvictInterval, limiterMaxIdle)
		})
	}

	app.Handler = router.New(&router.Config{
		Logger:              logger,
		MessagingHandler:    messaging.NewHandler(cfg.TwilioWebhookSecret, conv.Router, messenger, bootstrap.BuildProcessedEvents(pool), logger),
		ConversationHandler: conversation.NewHandler(conv.Router, logger),
		BookingsHandler:     bookings.NewHandler(sched.Service, sched.Checker, logger),
		MetricsHandler:      metricsHandler,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		WebhookLimiter:      limiter,
		HealthChecks:        healthChecks,
	})
	return app, nil
}
