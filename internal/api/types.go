package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/appointment"
	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/slot"
	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/template"
)

type CreateAppointmentRequest struct {
	ProviderID string `json:"provider_id"`
	PatientID  string `json:"patient_id"`
	Date       string `json:"date"`
	Time       string `json:"time"`
	Type       string `json:"type"`
	Reason     string `json:"reason"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

type RescheduleAppointmentRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type PaymentSettledRequest struct {
	AmountCents int64 `json:"amount_cents"`
}

type SetDayRequest struct {
	Enabled bool         `json:"enabled"`
	Ranges  []slot.Range `json:"ranges"`
}

type ToggleDayRequest struct {
	Enabled bool `json:"enabled"`
}

type SlotMinutesRequest struct {
	SlotMinutes int `json:"slot_minutes"`
}

type GenerateSlotsRequest struct {
	Start   string `json:"start"`
	End     string `json:"end"`
	Minutes int    `json:"minutes"`
}

type SlotAvailabilityRequest struct {
	Available bool `json:"is_available"`
}

type CopyDayRequest struct {
	To string `json:"to"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID  `json:"id"`
	ProviderID         uuid.UUID  `json:"provider_id"`
	PatientID          uuid.UUID  `json:"patient_id"`
	Date               string     `json:"date"`
	Time               slot.Clock `json:"time"`
	DurationMinutes    int        `json:"duration_minutes"`
	Type               string     `json:"type"`
	Status             string     `json:"status"`
	FeeCents           int64      `json:"fee_cents"`
	Reason             string     `json:"reason,omitempty"`
	CancellationReason *string    `json:"cancellation_reason,omitempty"`
	RescheduledFrom    *uuid.UUID `json:"rescheduled_from,omitempty"`
	CanJoinVideo       bool       `json:"can_join_video"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
}

type AvailabilityResponse struct {
	ProviderID uuid.UUID   `json:"provider_id"`
	Date       string      `json:"date"`
	Slots      []slot.Slot `json:"slots"`
}

type DayResponse struct {
	Day     string       `json:"day"`
	Enabled bool         `json:"enabled"`
	Ranges  []slot.Range `json:"ranges"`
}

type TemplateResponse struct {
	ProviderID  uuid.UUID     `json:"provider_id"`
	SlotMinutes int           `json:"slot_minutes"`
	UpdatedAt   *time.Time    `json:"updated_at,omitempty"`
	Days        []DayResponse `json:"days"`
}

type VideoJoinResponse struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	RoomURL       string    `json:"room_url"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment, canJoin bool) AppointmentResponse {
	return AppointmentResponse{
		ID:                 a.ID,
		ProviderID:         a.ProviderID,
		PatientID:          a.PatientID,
		Date:               a.Date.Format(appointment.DateLayout),
		Time:               a.Time,
		DurationMinutes:    a.DurationMinutes,
		Type:               string(a.Type),
		Status:             string(a.Status),
		FeeCents:           a.FeeCents,
		Reason:             a.Reason,
		CancellationReason: a.CancellationReason,
		RescheduledFrom:    a.RescheduledFrom,
		CanJoinVideo:       canJoin,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

func toAvailabilityResponse(d *appointment.DailyAvailability) AvailabilityResponse {
	slots := d.Slots
	if slots == nil {
		slots = []slot.Slot{}
	}
	return AvailabilityResponse{
		ProviderID: d.ProviderID,
		Date:       d.Date.Format(appointment.DateLayout),
		Slots:      slots,
	}
}

func toTemplateResponse(t *template.WeeklyTemplate) TemplateResponse {
	resp := TemplateResponse{ProviderID: t.ProviderID, SlotMinutes: t.SlotMinutes}
	if !t.UpdatedAt.IsZero() {
		updated := t.UpdatedAt
		resp.UpdatedAt = &updated
	}
	for i, d := range t.Days() {
		ranges := d.Ranges
		if ranges == nil {
			ranges = []slot.Range{}
		}
		resp.Days = append(resp.Days, DayResponse{
			Day:     time.Weekday(i).String(),
			Enabled: d.Enabled,
			Ranges:  ranges,
		})
	}
	return resp
}
