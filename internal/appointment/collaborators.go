package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/template"
)

const (
	EventAppointmentBooked      = "APPOINTMENT_BOOKED"
	EventAppointmentConfirmed   = "APPOINTMENT_CONFIRMED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentNoShow      = "APPOINTMENT_NO_SHOW"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
)

// Event is handed to the Notifier after a scheduling change has been committed.
type Event struct {
	ID            uuid.UUID         `json:"event_id"`
	Type          string            `json:"event_type"`
	AppointmentID uuid.UUID         `json:"appointment_id"`
	PatientID     uuid.UUID         `json:"patient_id"`
	ProviderID    uuid.UUID         `json:"provider_id"`
	Status        AppointmentStatus `json:"status"`
	StartsAt      time.Time         `json:"starts_at"`
	Reason        string            `json:"reason,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

// Notifier delivers events to patients and providers. Errors are logged by the
// service and never undo the change that produced the event.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// PaymentGuard reports whether an appointment's fee has been captured.
type PaymentGuard interface {
	FeeSettled(ctx context.Context, appointmentID uuid.UUID) (bool, error)
}

// RoomProvider returns a joinable room reference for an online consultation.
type RoomProvider interface {
	RoomURL(ctx context.Context, a *Appointment) (string, error)
}

// TemplateSource is the read side of the weekly template store.
type TemplateSource interface {
	Get(ctx context.Context, providerID uuid.UUID) (*template.WeeklyTemplate, error)
}
