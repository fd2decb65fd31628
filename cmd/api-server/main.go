package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jashmhta/hms-scheduling/internal/api"
	"github.com/jashmhta/hms-scheduling/internal/appointment"
	"github.com/jashmhta/hms-scheduling/internal/cancellation"
	"github.com/jashmhta/hms-scheduling/internal/config"
	"github.com/jashmhta/hms-scheduling/internal/db"
	"github.com/jashmhta/hms-scheduling/internal/events"
	"github.com/jashmhta/hms-scheduling/internal/logging"
	"github.com/jashmhta/hms-scheduling/internal/policy"
	"github.com/jashmhta/hms-scheduling/internal/redisclient"
	"github.com/jashmhta/hms-scheduling/internal/schedule"
	"github.com/jashmhta/hms-scheduling/internal/series"
	"github.com/jashmhta/hms-scheduling/internal/slot"
	"github.com/jashmhta/hms-scheduling/internal/waitlist"
)

const version = "1.2.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Init("api-server", "dev")
		log.Fatal().Err(err).Msg("config load")
	}
	logging.Init("api-server", cfg.Env)
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

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
	seriesRepo := series.NewPgRepository(pgPool)
	waitlistRepo := waitlist.NewPgRepository(pgPool)
	policyStore := policy.NewPgStore(pgPool)

	locker := redisclient.NewRedisWindowLocker(rdb, cfg.LockTTL)
	emitter := events.NewSink(pgPool, rdb, cfg.EventChannel, logging.Component("events"))

	engine := appointment.NewEngine(apptRepo, scheduleRepo, locker, emitter,
		cfg.MinLeadTime, cfg.MaxAdvanceDays, logging.Component("appointment"))
	slots := slot.NewGenerator(scheduleRepo, apptRepo, cfg.MinLeadTime, cfg.MaxAdvanceDays)
	seriesMgr := series.NewManager(engine, seriesRepo, scheduleRepo, series.Limits{
		MaxOccurrences: cfg.MaxOccurrences,
		MaxEndDateDays: cfg.MaxEndDateDays,
	}, logging.Component("series"))
	waitlistSvc := waitlist.NewService(waitlistRepo, engine, apptRepo, scheduleRepo,
		locker, emitter, cfg.MinLeadTime, cfg.OfferTTL, logging.Component("waitlist"))
	cancelMgr := cancellation.NewManager(apptRepo, engine, policyStore, waitlistSvc,
		emitter, cfg.MaxReschedules, cfg.MinRescheduleNotice, logging.Component("cancellation"))

	router := api.NewRouter(api.RouterConfig{
		Engine:       engine,
		Slots:        slots,
		Series:       seriesMgr,
		Cancellation: cancelMgr,
		Waitlist:     waitlistSvc,
		PgPool:       pgPool,
		Redis:        rdb,
		Env:          cfg.Env,
		Version:      version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		log.Fatal().Err(err).Msg("http server")
	case <-rootCtx.Done():
	}

	log.Info().Msg("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown")
	}
}
