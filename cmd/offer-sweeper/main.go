package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jashmhta/hms-scheduling/internal/appointment"
	"github.com/jashmhta/hms-scheduling/internal/config"
	"github.com/jashmhta/hms-scheduling/internal/db"
	"github.com/jashmhta/hms-scheduling/internal/events"
	"github.com/jashmhta/hms-scheduling/internal/logging"
	"github.com/jashmhta/hms-scheduling/internal/redisclient"
	"github.com/jashmhta/hms-scheduling/internal/schedule"
	"github.com/jashmhta/hms-scheduling/internal/waitlist"
)

// The sweeper retires waitlist offers whose response deadline passed and
// cancels pending-confirmation appointments that were never confirmed,
// handing any freed capacity back to the waitlist.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Init("offer-sweeper", "dev")
		log.Fatal().Err(err).Msg("config load")
	}
	logging.Init("offer-sweeper", cfg.Env)
	log.Info().Str("env", cfg.Env).Dur("interval", cfg.SweepInterval).Msg("offer-sweeper starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	rdb, err := redisclient.New(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	apptRepo := appointment.NewPgRepository(pgPool)
	scheduleRepo := schedule.NewPgRepository(pgPool)
	waitlistRepo := waitlist.NewPgRepository(pgPool)
	locker := redisclient.NewRedisWindowLocker(rdb, cfg.LockTTL)
	emitter := events.NewSink(pgPool, rdb, cfg.EventChannel, logging.Component("events"))

	engine := appointment.NewEngine(apptRepo, scheduleRepo, locker, emitter,
		cfg.MinLeadTime, cfg.MaxAdvanceDays, logging.Component("appointment"))
	waitlistSvc := waitlist.NewService(waitlistRepo, engine, apptRepo, scheduleRepo,
		locker, emitter, cfg.MinLeadTime, cfg.OfferTTL, logging.Component("waitlist"))

	sweep := func(ctx context.Context) {
		runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
		defer cancel()

		start := time.Now()
		if err := waitlistSvc.SweepExpired(runCtx); err != nil {
			log.Error().Err(err).Msg("waitlist sweep")
		}
		if err := engine.ExpireStalePendingConfirmations(runCtx, cfg.ConfirmationTTL, func(ctx context.Context, appt appointment.Appointment) {
			if err := waitlistSvc.OnCapacityFreed(ctx, appt.ProviderID, appt.StartTime, appt.EndTime, appt.ConsultationType); err != nil {
				log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("waitlist promotion after expiry")
			}
		}); err != nil {
			log.Error().Err(err).Msg("pending confirmation expiry")
		}
		log.Info().Dur("took", time.Since(start)).Msg("sweep complete")
	}

	// Run once at startup
	sweep(rootCtx)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping offer-sweeper")
			return
		case <-ticker.C:
			sweep(rootCtx)
		}
	}
}
