package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-engine/internal/booking"
	"github.com/hackgods/clinic-slot-engine/internal/config"
	"github.com/hackgods/clinic-slot-engine/internal/db"
	redisclient "github.com/hackgods/clinic-slot-engine/internal/redis"
	"github.com/hackgods/clinic-slot-engine/internal/schedule"
)

// The completion worker sweeps scheduled bookings whose appointment date has
// passed into the completed status.
func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "completion-worker").Logger()
	logger.Info().Msg("completion-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}

	logger.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.WorkerInterval).
		Msg("running completion worker")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

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

	bookingRepo := booking.NewPgRepository(pgPool)
	scheduleRepo := schedule.NewPgRepository(pgPool)
	enforcer := booking.NewEnforcer(bookingRepo, scheduleRepo)
	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	inTx := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithSerializableTx(ctx, pgPool, fn)
	}
	svc := booking.NewService(bookingRepo, enforcer, locker, inTx, cfg.DefaultMaxPerSlot, logger)

	// Run once at startup
	runOnce(rootCtx, svc, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping completion worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *booking.Service, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := svc.CompletePastBookings(runCtx, time.Now())
	if err != nil {
		logger.Error().Err(err).Msg("completion run error")
		return
	}
	logger.Info().Int("completed", n).Dur("took", time.Since(start)).Msg("completion run finished")
}
