package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/djroom/engine/internal/v1/auth"
	"github.com/djroom/engine/internal/v1/catalog"
	"github.com/djroom/engine/internal/v1/config"
	"github.com/djroom/engine/internal/v1/health"
	"github.com/djroom/engine/internal/v1/logging"
	"github.com/djroom/engine/internal/v1/middleware"
	"github.com/djroom/engine/internal/v1/persistence"
	"github.com/djroom/engine/internal/v1/ratelimit"
	"github.com/djroom/engine/internal/v1/room"
	"github.com/djroom/engine/internal/v1/tracing"
	"github.com/djroom/engine/internal/v1/transport"
)

const version = "0.1.0"

func main() {
	envPaths := []string{".env", "../../../.env", "../../.env"}
	var envLoaded bool
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			slog.Info("loaded environment from", "path", path)
			envLoaded = true
			break
		}
	}
	if !envLoaded {
		slog.Warn("no .env file found in any expected location, relying on environment variables")
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		slog.Error("failed to initialize logger", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	tracingProvider, err := tracing.NewProvider(ctx, tracing.Config{
		Enabled:        cfg.GoEnv == "production",
		ServiceName:    "djroom-engine",
		ServiceVersion: version,
		Environment:    cfg.GoEnv,
		ExporterType:   "http",
		SamplingRate:   0.1,
	})
	if err != nil {
		slog.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracingProvider.Shutdown(shutdownCtx); err != nil {
			slog.Warn("tracing shutdown did not complete cleanly", "error", err)
		}
	}()

	var sink persistence.Sink
	var redisClient *redis.Client
	if cfg.RedisEnabled {
		redisSink, err := persistence.NewRedisSink(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		sink = redisSink
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	} else {
		slog.Warn("persistence disabled, running with an in-memory-only sink")
		sink = persistence.NoopSink{}
	}
	defer sink.Close()

	limiter, err := ratelimit.New(cfg, redisClient)
	if err != nil {
		slog.Error("failed to construct rate limiter", "error", err)
		os.Exit(1)
	}

	var trackCatalog *catalog.FileCatalog
	if cfg.CatalogDir != "" {
		trackCatalog, err = catalog.NewFileCatalog(cfg.CatalogDir)
		if err != nil {
			slog.Error("failed to index track catalog", "error", err)
			os.Exit(1)
		}
	}

	var validator transport.TokenValidator
	if cfg.SkipAuth {
		slog.Warn("authentication disabled for development - do not use in production")
		validator = &auth.MockValidator{}
	} else {
		if cfg.Auth0Domain == "" || cfg.Auth0Audience == "" {
			slog.Error("AUTH0_DOMAIN and AUTH0_AUDIENCE must be set when SKIP_AUTH=false")
			os.Exit(1)
		}
		realValidator, err := auth.NewValidator(ctx, cfg.Auth0Domain, cfg.Auth0Audience)
		if err != nil {
			slog.Error("failed to construct auth validator", "error", err)
			os.Exit(1)
		}
		validator = realValidator
	}

	beaconInterval := time.Duration(cfg.BeaconIntervalMs) * time.Millisecond
	gracePeriod := time.Duration(cfg.RoomGracePeriodSec) * time.Second
	cursorThrottle := time.Duration(cfg.CursorThrottleMs) * time.Millisecond
	room.SetControlOwnershipTTL(time.Duration(cfg.ControlOwnershipTtlMs) * time.Millisecond)

	var trackCatalogCollaborator room.TrackCatalog
	if trackCatalog != nil {
		trackCatalogCollaborator = trackCatalog
	}
	store := room.NewStore(nil, sink, limiter, trackCatalogCollaborator, beaconInterval, gracePeriod, cursorThrottle, 256)
	allowedOrigins := auth.GetAllowedOriginsFromEnv("ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	hub := transport.NewHub(store, validator, allowedOrigins, cfg.SkipAuth)
	store.SetTransport(hub)

	var catalogChecker health.CatalogChecker
	if trackCatalog != nil {
		catalogChecker = trackCatalog
	}
	var healthSink persistence.Sink
	if cfg.RedisEnabled {
		healthSink = sink
	}
	healthHandler := health.NewHandler(version, healthSink, catalogChecker, store.RoomCount, store.ClientCount)

	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = auth.ExpandOrigins(allowedOrigins)
	router.Use(cors.New(corsConfig))
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())

	wsGroup := router.Group("/ws")
	{
		wsGroup.GET("/room", hub.ServeWs)
	}

	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		slog.Info("djroom engine starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("exited cleanly")
}
