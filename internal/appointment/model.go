package appointment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/slot"
)

const DateLayout = "2006-01-02"

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusNoShow    AppointmentStatus = "no_show"
)

// Terminal statuses accept no further transitions.
func (s AppointmentStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Active reports whether the appointment still holds its slot and can move forward.
func (s AppointmentStatus) Active() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

type AppointmentType string

const (
	TypeOnline   AppointmentType = "online"
	TypeInPerson AppointmentType = "in-person"
)

func ParseType(s string) (AppointmentType, error) {
	switch AppointmentType(strings.ToLower(strings.TrimSpace(s))) {
	case TypeOnline:
		return TypeOnline, nil
	case TypeInPerson, "in_person", "inperson":
		return TypeInPerson, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAppointmentType, s)
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Provider struct {
	ID                   uuid.UUID
	Name                 string
	Specialty            *string
	ConsultationFeeCents int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// SlotKey identifies one contended slot record.
type SlotKey struct {
	ProviderID uuid.UUID
	Date       time.Time
	Time       slot.Clock
}

func (k SlotKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.ProviderID, k.Date.Format(DateLayout), k.Time)
}

func (k SlotKey) StartsAt() time.Time {
	return k.Time.On(k.Date)
}

type Appointment struct {
	ID                 uuid.UUID
	ProviderID         uuid.UUID
	PatientID          uuid.UUID
	Date               time.Time
	Time               slot.Clock
	DurationMinutes    int
	Type               AppointmentType
	Status             AppointmentStatus
	FeeCents           int64
	Reason             string
	CancellationReason *string
	RescheduledFrom    *uuid.UUID
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (a *Appointment) Key() SlotKey {
	return SlotKey{ProviderID: a.ProviderID, Date: a.Date, Time: a.Time}
}

func (a *Appointment) StartsAt() time.Time {
	return a.Time.On(a.Date)
}

func (a *Appointment) EndsAt() time.Time {
	return a.StartsAt().Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// DailyAvailability is the materialized slot list of one provider for one date.
type DailyAvailability struct {
	ProviderID uuid.UUID
	Date       time.Time
	Slots      []slot.Slot
}

func (d *DailyAvailability) Find(t slot.Clock) (slot.Slot, bool) {
	for _, s := range d.Slots {
		if s.Time == t {
			return s, true
		}
	}
	return slot.Slot{}, false
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// ParseDate parses YYYY-MM-DD as midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return d, nil
}

func copySlots(in []slot.Slot) []slot.Slot {
	if in == nil {
		return nil
	}
	out := make([]slot.Slot, len(in))
	for i, s := range in {
		out[i] = s
		if s.AppointmentID != nil {
			id := *s.AppointmentID
			out[i].AppointmentID = &id
		}
	}
	return out
}

func (a *Appointment) clone() *Appointment {
	c := *a
	if a.CancellationReason != nil {
		r := *a.CancellationReason
		c.CancellationReason = &r
	}
	if a.RescheduledFrom != nil {
		id := *a.RescheduledFrom
		c.RescheduledFrom = &id
	}
	return &c
}
