package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-engine/internal/availability"
	"github.com/hackgods/clinic-slot-engine/internal/booking"
	"github.com/hackgods/clinic-slot-engine/internal/schedule"
)

type RouterConfig struct {
	Schedules         *schedule.Service
	Bookings          *booking.Service
	Availability      *availability.Calculator
	DefaultMaxPerSlot int
	PgPool            *pgxpool.Pool
	Redis             *redis.Client
	Logger            zerolog.Logger
	Env               string
	Version           string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Schedule registry
	r.Post("/schedules", registerScheduleHandler(cfg.Schedules))
	r.Put("/schedules/{id}", updateScheduleHandler(cfg.Schedules))
	r.Delete("/schedules/{id}", deactivateScheduleHandler(cfg.Schedules))
	r.Get("/practitioners/{id}/schedules", listSchedulesHandler(cfg.Schedules))

	// Availability
	r.Get("/availability", listAvailabilityHandler(cfg.Availability, cfg.DefaultMaxPerSlot))

	// Booking ledger
	r.Post("/bookings", createBookingHandler(cfg.Bookings))
	r.Get("/bookings/{id}", getBookingHandler(cfg.Bookings))
	r.Post("/bookings/{id}/cancel", cancelBookingHandler(cfg.Bookings))
	r.Post("/bookings/{id}/reschedule", rescheduleBookingHandler(cfg.Bookings))
	r.Get("/patients/{id}/bookings/latest", latestBookingHandler(cfg.Bookings))

	return r
}
