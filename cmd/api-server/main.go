package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-engine/internal/api"
	"github.com/hackgods/clinic-slot-engine/internal/availability"
	"github.com/hackgods/clinic-slot-engine/internal/booking"
	"github.com/hackgods/clinic-slot-engine/internal/config"
	"github.com/hackgods/clinic-slot-engine/internal/db"
	redisclient "github.com/hackgods/clinic-slot-engine/internal/redis"
	"github.com/hackgods/clinic-slot-engine/internal/schedule"
)

const version = "0.1.0"

func main() {
	logger := newLogger("api-server")
	logger.Info().Msg("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}
	if cfg.Env == "dev" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	logger.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Int("max_per_slot", cfg.DefaultMaxPerSlot).
		Msg("configuration loaded")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	scheduleRepo := schedule.NewPgRepository(pgPool)
	scheduleSvc := schedule.NewService(scheduleRepo, logger)

	bookingRepo := booking.NewPgRepository(pgPool)
	enforcer := booking.NewEnforcer(bookingRepo, scheduleRepo)
	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	inTx := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithSerializableTx(ctx, pgPool, fn)
	}
	bookingSvc := booking.NewService(bookingRepo, enforcer, locker, inTx, cfg.DefaultMaxPerSlot, logger)

	calc := availability.NewCalculator(scheduleRepo, bookingRepo)

	router := api.NewRouter(api.RouterConfig{
		Schedules:         scheduleSvc,
		Bookings:          bookingSvc,
		Availability:      calc,
		DefaultMaxPerSlot: cfg.DefaultMaxPerSlot,
		PgPool:            pgPool,
		Redis:             rdb,
		Logger:            logger,
		Env:               cfg.Env,
		Version:           version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("http server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("api-server stopped")
}

func newLogger(service string) zerolog.Logger {
	return zerolog.New(os.Stdout).With().Timestamp().Str("service", service).Logger()
}
