package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/jashmhta/hms-scheduling/internal/appointment"
	"github.com/jashmhta/hms-scheduling/internal/cancellation"
	"github.com/jashmhta/hms-scheduling/internal/series"
	"github.com/jashmhta/hms-scheduling/internal/slot"
	"github.com/jashmhta/hms-scheduling/internal/waitlist"
)

type RouterConfig struct {
	Engine       *appointment.Engine
	Slots        *slot.Generator
	Series       *series.Manager
	Cancellation *cancellation.Manager
	Waitlist     *waitlist.Service
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Get("/availability", availabilityHandler(cfg.Slots))

	r.Post("/appointments", reserveHandler(cfg.Engine))
	r.Get("/appointments", listAppointmentsHandler(cfg.Engine))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Engine))
	r.Post("/appointments/{id}/confirm", transitionHandler(func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
		return cfg.Engine.Confirm(r.Context(), id)
	}))
	r.Post("/appointments/{id}/checkin", transitionHandler(func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
		return cfg.Engine.CheckIn(r.Context(), id)
	}))
	r.Post("/appointments/{id}/begin", transitionHandler(func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
		return cfg.Engine.Begin(r.Context(), id)
	}))
	r.Post("/appointments/{id}/complete", transitionHandler(func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
		return cfg.Engine.Complete(r.Context(), id)
	}))
	r.Post("/appointments/{id}/no-show", transitionHandler(func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
		return cfg.Engine.MarkNoShow(r.Context(), id)
	}))
	r.Post("/appointments/{id}/cancel", cancelHandler(cfg.Cancellation))
	r.Post("/appointments/{id}/reschedule", rescheduleHandler(cfg.Cancellation))

	r.Post("/series", createSeriesHandler(cfg.Series))
	r.Get("/series/{id}", listSeriesHandler(cfg.Series))

	r.Post("/waitlist", joinWaitlistHandler(cfg.Waitlist))
	r.Post("/waitlist/{id}/respond", respondToOfferHandler(cfg.Waitlist))
	r.Delete("/waitlist/{id}", cancelWaitlistHandler(cfg.Waitlist))

	return r
}
