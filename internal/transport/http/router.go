package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	"clinicbook/backend/internal/auth"
)

type RouterConfig struct {
	Service        bookingService
	Resolver       auth.Resolver
	DB             *bun.DB
	Redis          *redis.Client
	Log            *slog.Logger
	RequestTimeout time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))
	r.Use(TimeoutMiddleware(cfg.RequestTimeout))

	health := NewHealthHandler(cfg.DB, cfg.Redis)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	h := NewBookingHandler(cfg.Service, cfg.Log)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Resolver, cfg.Log))

		r.Post("/providers/{providerID}/slots", h.PublishAvailability)
		r.Get("/providers/{providerID}/availability", h.ListAvailability)
		r.Delete("/providers/{providerID}/slots/{slotID}", h.DeleteSlot)

		r.Post("/appointments", h.Book)
		r.Post("/appointments/from-slot", h.BookFromSlot)
		r.Get("/appointments", h.ListAppointments)
		r.Get("/appointments/{appointmentID}", h.GetAppointment)
		r.Patch("/appointments/{appointmentID}/status", h.UpdateStatus)
		r.Post("/appointments/{appointmentID}/cancel", h.Cancel)
	})

	return r
}
