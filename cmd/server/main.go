package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prudhvinik1/boardsync/internal/api"
	"github.com/prudhvinik1/boardsync/internal/config"
	"github.com/prudhvinik1/boardsync/internal/database"
	"github.com/prudhvinik1/boardsync/internal/logging"
	"github.com/prudhvinik1/boardsync/internal/realtime"
	"github.com/prudhvinik1/boardsync/internal/repositories"
	"github.com/prudhvinik1/boardsync/internal/services"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)

	if err := run(ctx, cfg); err != nil {
		logging.WithError(err).Error("Server exited with error")
		os.Exit(1)
	}
	slog.Info("Server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	nodeID := uuid.NewString()
	slog.Info("Application starting", "port", cfg.ServerPort, "node_id", nodeID)

	// Initialize database connections
	postgresPool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to create postgres pool: %w", err)
	}
	defer postgresPool.Close()

	if err := database.RunMigrations(ctx, postgresPool); err != nil {
		return err
	}

	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}
	defer redisClient.Close()

	// Repositories
	presenceRepo := repositories.NewRedisPresenceRepository(redisClient, cfg.PresenceTTL)
	var activityRepo repositories.ActivityRepository
	if cfg.ActivityLogEnabled {
		activityRepo = repositories.NewPostgresActivityRepository(postgresPool)
	}

	// Realtime fan-out, local and across nodes
	registry := realtime.NewRegistry(cfg.MaxRoomMembers)
	broadcaster := realtime.NewBroadcaster(registry)
	relay := realtime.NewRelay(redisClient, nodeID, broadcaster)
	broadcaster.SetForwarder(relay)

	opts := realtime.DefaultOptions()
	opts.AllowedOrigins = cfg.Origins()
	opts.MaxConnections = cfg.MaxConnections
	opts.EventRate = cfg.EventRateLimit
	opts.EventBurst = cfg.EventRateBurst

	wsServer := realtime.NewServer(registry, broadcaster, opts)
	wsServer.SetObserver(services.NewSyncService(presenceRepo, activityRepo, nodeID))
	if cfg.JWTSecret != "" {
		wsServer.SetAuthenticator(services.NewTokenService(cfg.JWTSecret))
	} else {
		slog.Warn("JWT_SECRET not set, accepting anonymous connections")
	}

	// Initialize HTTP Server
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Handle("/ws", wsServer)
	api.NewHandler(presenceRepo, activityRepo,
		api.PingCheck("postgres", postgresPool),
		api.Check{Name: "redis", Fn: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
	).Routes(router)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Starting server", "addr", server.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return relay.Run(gctx)
	})

	// graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		// Hijacked websocket connections are not tracked by http.Server.
		if err := wsServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Websocket connections did not drain in time", "error", err)
		}
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
