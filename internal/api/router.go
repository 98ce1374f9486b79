package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/appointment"
	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/template"
)

// SettlementRecorder receives payment confirmations from the payment system.
type SettlementRecorder interface {
	MarkSettled(ctx context.Context, appointmentID uuid.UUID, amountCents int64) error
}

type RouterConfig struct {
	Appointments *appointment.Service
	Templates    *template.Service
	Payments     SettlementRecorder // optional
	Postgres     Pinger             // optional
	Redis        Pinger             // optional
	Gatherer     prometheus.Gatherer
	Logger       zerolog.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	// Health endpoints
	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	h := &handlers{
		appts:     cfg.Appointments,
		templates: cfg.Templates,
		payments:  cfg.Payments,
		logger:    cfg.Logger,
	}

	r.Route("/providers/{providerID}", func(r chi.Router) {
		r.Get("/template", h.getTemplate)
		r.Put("/template", h.setSlotMinutes)
		r.Put("/template/{day}", h.setDay)
		r.Post("/template/{day}/toggle", h.toggleDay)
		r.Post("/template/{day}/ranges", h.addRange)
		r.Delete("/template/{day}/ranges/{index}", h.removeRange)

		r.Get("/availability/{date}", h.listAvailability)
		r.Post("/availability/{date}/generate", h.generateSlots)
		r.Post("/availability/{date}/copy", h.copyDay)
		r.Patch("/availability/{date}/slots/{time}", h.setSlotAvailability)
		r.Delete("/availability/{date}/slots/{time}", h.removeSlot)
	})

	// Appointment endpoints
	r.Post("/appointments", h.createAppointment)
	r.Get("/appointments", h.listAppointments)
	r.Get("/appointments/{id}", h.getAppointment)
	r.Post("/appointments/{id}/confirm", h.transition(h.appts.Confirm))
	r.Post("/appointments/{id}/complete", h.transition(h.appts.Complete))
	r.Post("/appointments/{id}/no-show", h.transition(h.appts.MarkNoShow))
	r.Post("/appointments/{id}/cancel", h.cancelAppointment)
	r.Post("/appointments/{id}/reschedule", h.rescheduleAppointment)
	r.Get("/appointments/{id}/video", h.joinVideo)
	r.Post("/appointments/{id}/payment", h.paymentSettled)

	return r
}
