package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/slot"
)

// Repository contains all storage interactions needed by the service.
// ClaimSlot, ReleaseSlot and Reschedule are each a single atomic unit.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListAppointmentsByProvider(ctx context.Context, providerID uuid.UUID, date time.Time) ([]Appointment, error)

	// Daily availability. GetDay returns ErrDayNotFound until the date was materialized.
	GetDay(ctx context.Context, providerID uuid.UUID, date time.Time) (*DailyAvailability, error)
	// MergeSlots inserts slots whose time is not present yet and never touches existing ones.
	MergeSlots(ctx context.Context, providerID uuid.UUID, date time.Time, slots []slot.Slot) (*DailyAvailability, error)
	SetSlotAvailability(ctx context.Context, key SlotKey, available bool) error
	DeleteSlot(ctx context.Context, key SlotKey) error

	// ClaimSlot marks an open slot booked and stores appt, which receives the slot's duration.
	// A slot that is missing, unavailable or already booked yields *SlotUnavailableError.
	ClaimSlot(ctx context.Context, key SlotKey, appt *Appointment) (*Appointment, error)
	// ReleaseSlot cancels the appointment if it is still in status from and frees its slot.
	ReleaseSlot(ctx context.Context, id uuid.UUID, from AppointmentStatus, reason string) (*Appointment, error)
	// Reschedule claims next's slot, then cancels and releases the old appointment.
	// Nothing changes unless both steps succeed.
	Reschedule(ctx context.Context, oldID uuid.UUID, from AppointmentStatus, reason string, key SlotKey, next *Appointment) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
