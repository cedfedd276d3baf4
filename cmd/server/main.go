// @title Retention Service API
// @version 1.0
// @description Internal API for the document processing queue and the retention lifecycle.
// @BasePath /
// @securityDefinitions.apikey InternalAPIKey
// @in header
// @name X-Internal-API-Key
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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/sync/errgroup"

	"github.com/openarchive/retention-service/config"
	_ "github.com/openarchive/retention-service/docs"
	"github.com/openarchive/retention-service/internal/app"
	"github.com/openarchive/retention-service/internal/handlers"
	"github.com/openarchive/retention-service/internal/middleware"
	"github.com/openarchive/retention-service/internal/telemetry"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg.Logging, "retention-service", os.Stdout)

	logger.Info().Msg("Starting retention service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: cfg.Telemetry.Environment,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize telemetry")
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer a.Close()

	logger.Info().Msg("Database connected")

	if err := run(ctx, a); err != nil {
		logger.Error().Err(err).Msg("Service stopped with error")
	}

	telemetryCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTelemetry(telemetryCtx); err != nil {
		logger.Warn().Err(err).Msg("Telemetry shutdown failed")
	}

	logger.Info().Msg("Server exited")
}

func run(ctx context.Context, a *app.App) error {
	cfg := a.Config
	logger := a.Logger

	// Wake-ups are an optimisation; polling still finds due tasks.
	var wake <-chan struct{}
	listener, err := a.Listen()
	if err != nil {
		logger.Warn().Err(err).Msg("Task notifications unavailable, relying on polling")
	} else {
		defer listener.Close()
		wake = listener.Wake()
	}

	worker := a.NewWorker(wake)
	sweeper := a.NewSweeper()

	limiter := middleware.NewIPRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.Burst,
	})

	h := &handlers.Handler{
		Queue:            a.Queue,
		Lifecycle:        a.Lifecycle,
		Runner:           a.Scheduler,
		DB:               a.Pool,
		CleanupAfterDays: cfg.Queue.CleanupAfterDays,
		Logger:           logger,
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      setupRouter(cfg, h, limiter, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	if listener != nil {
		g.Go(func() error {
			listener.Run(gctx)
			return nil
		})
	}

	g.Go(func() error {
		worker.Start(gctx)
		<-gctx.Done()
		worker.Stop()
		return nil
	})

	g.Go(func() error {
		sweeper.Start(gctx)
		return nil
	})

	if cfg.Lifecycle.Enabled {
		g.Go(func() error {
			a.Scheduler.Start(gctx)
			return nil
		})
	} else {
		logger.Info().Msg("Scheduled lifecycle runs disabled")
	}

	g.Go(func() error {
		limiter.RunCleanup(5*time.Minute, gctx.Done())
		return nil
	})

	g.Go(func() error {
		logger.Info().Str("addr", addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	return g.Wait()
}

func setupRouter(cfg *config.Config, h *handlers.Handler, limiter *middleware.IPRateLimiter, logger *zerolog.Logger) *gin.Engine {
	if cfg.Logging.Level == "debug" || cfg.Logging.Level == "trace" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	router.GET("/health", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	internal := router.Group("/internal")
	internal.Use(middleware.InternalAuthMiddleware(cfg.Server.InternalAPIKey))
	internal.Use(limiter.Middleware())
	h.RegisterRoutes(internal)

	return router
}

func requestLogger(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("ip", c.ClientIP()).
			Msg("HTTP request")
	}
}
