package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/appointment"
	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/slot"
	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/template"
)

type handlers struct {
	appts     *appointment.Service
	templates *template.Service
	payments  SettlementRecorder
	logger    zerolog.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func parseUUID(w http.ResponseWriter, raw, field string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+field, field+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *handlers) parseDate(w http.ResponseWriter, raw string) (time.Time, bool) {
	d, err := appointment.ParseDate(raw, h.appts.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
		return time.Time{}, false
	}
	return d, true
}

func parseClock(w http.ResponseWriter, raw string) (slot.Clock, bool) {
	c, err := slot.ParseClock(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_time", err.Error())
		return 0, false
	}
	return c, true
}

func parseDay(w http.ResponseWriter, raw string) (time.Weekday, bool) {
	d, err := template.ParseDay(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_day", err.Error())
		return 0, false
	}
	return d, true
}

// handleError maps domain errors to HTTP responses. Order matters:
// CancellationNotAllowedError wraps a terminal or guard error.
func (h *handlers) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, slot.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, "invalid_range", err.Error())
	case errors.Is(err, template.ErrInvalidDay):
		writeError(w, http.StatusBadRequest, "invalid_day", err.Error())
	case errors.Is(err, template.ErrRangeIndex):
		writeError(w, http.StatusBadRequest, "range_index_out_of_bounds", err.Error())
	case errors.Is(err, appointment.ErrInvalidAppointmentType):
		writeError(w, http.StatusBadRequest, "invalid_appointment_type", err.Error())
	case errors.Is(err, appointment.ErrMissingReason):
		writeError(w, http.StatusBadRequest, "missing_reason", err.Error())
	case errors.Is(err, template.ErrOverlappingRange):
		writeError(w, http.StatusConflict, "overlapping_range", err.Error())
	case errors.Is(err, appointment.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, appointment.ErrCancellationNotAllowed):
		writeError(w, http.StatusConflict, "cancellation_not_allowed", err.Error())
	case errors.Is(err, appointment.ErrTerminalState):
		writeError(w, http.StatusConflict, "terminal_state", err.Error())
	case errors.Is(err, appointment.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, appointment.ErrStaleAppointment):
		writeError(w, http.StatusConflict, "stale_appointment", "appointment changed concurrently, reload and retry")
	case errors.Is(err, appointment.ErrPaymentRequired):
		writeError(w, http.StatusPaymentRequired, "payment_required", err.Error())
	case errors.Is(err, appointment.ErrJoinWindowClosed):
		writeError(w, http.StatusForbidden, "join_window_closed", err.Error())
	case errors.Is(err, appointment.ErrVideoDisabled):
		writeError(w, http.StatusNotImplemented, "video_disabled", err.Error())
	default:
		h.logger.Error().Err(err).Str("request_id", GetRequestID(r.Context())).Msg("unhandled error")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func (h *handlers) respondAppointment(w http.ResponseWriter, status int, appt *appointment.Appointment) {
	writeJSON(w, status, toAppointmentResponse(appt, h.appts.CanJoin(appt)))
}

func (h *handlers) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if !decode(w, r, &req) {
		return
	}
	providerID, ok := parseUUID(w, req.ProviderID, "provider_id")
	if !ok {
		return
	}
	patientID, ok := parseUUID(w, req.PatientID, "patient_id")
	if !ok {
		return
	}
	date, ok := h.parseDate(w, req.Date)
	if !ok {
		return
	}
	at, ok := parseClock(w, req.Time)
	if !ok {
		return
	}
	typ, err := appointment.ParseType(req.Type)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	appt, err := h.appts.Book(r.Context(), appointment.BookRequest{
		ProviderID: providerID,
		PatientID:  patientID,
		Date:       date,
		Time:       at,
		Type:       typ,
		Reason:     req.Reason,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.respondAppointment(w, http.StatusCreated, appt)
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, chi.URLParam(r, "id"), "appointment_id")
	if !ok {
		return
	}
	appt, err := h.appts.Get(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.respondAppointment(w, http.StatusOK, appt)
}

// listAppointments serves either ?patient_id= (paged) or ?provider_id=&date=.
func (h *handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		appts []appointment.Appointment
		err   error
	)
	switch {
	case q.Get("patient_id") != "":
		patientID, ok := parseUUID(w, q.Get("patient_id"), "patient_id")
		if !ok {
			return
		}
		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))
		appts, err = h.appts.ListByPatient(r.Context(), patientID, limit, offset)
	case q.Get("provider_id") != "":
		providerID, ok := parseUUID(w, q.Get("provider_id"), "provider_id")
		if !ok {
			return
		}
		date, ok := h.parseDate(w, q.Get("date"))
		if !ok {
			return
		}
		appts, err = h.appts.ListByProvider(r.Context(), providerID, date)
	default:
		writeError(w, http.StatusBadRequest, "missing_filter", "patient_id or provider_id is required")
		return
	}
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	resp := AppointmentListResponse{Appointments: make([]AppointmentResponse, 0, len(appts))}
	for i := range appts {
		resp.Appointments = append(resp.Appointments, toAppointmentResponse(&appts[i], h.appts.CanJoin(&appts[i])))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) transition(fn func(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUID(w, chi.URLParam(r, "id"), "appointment_id")
		if !ok {
			return
		}
		appt, err := fn(r.Context(), id)
		if err != nil {
			h.handleError(w, r, err)
			return
		}
		h.respondAppointment(w, http.StatusOK, appt)
	}
}

func (h *handlers) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, chi.URLParam(r, "id"), "appointment_id")
	if !ok {
		return
	}
	var req CancelAppointmentRequest
	if !decode(w, r, &req) {
		return
	}
	appt, err := h.appts.Cancel(r.Context(), id, req.Reason)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.respondAppointment(w, http.StatusOK, appt)
}

func (h *handlers) rescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, chi.URLParam(r, "id"), "appointment_id")
	if !ok {
		return
	}
	var req RescheduleAppointmentRequest
	if !decode(w, r, &req) {
		return
	}
	date, ok := h.parseDate(w, req.Date)
	if !ok {
		return
	}
	at, ok := parseClock(w, req.Time)
	if !ok {
		return
	}
	appt, err := h.appts.Reschedule(r.Context(), id, date, at)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.respondAppointment(w, http.StatusCreated, appt)
}

func (h *handlers) joinVideo(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, chi.URLParam(r, "id"), "appointment_id")
	if !ok {
		return
	}
	url, err := h.appts.JoinVideo(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, VideoJoinResponse{AppointmentID: id, RoomURL: url})
}

func (h *handlers) paymentSettled(w http.ResponseWriter, r *http.Request) {
	if h.payments == nil {
		writeError(w, http.StatusNotImplemented, "payments_disabled", "no payment ledger configured")
		return
	}
	id, ok := parseUUID(w, chi.URLParam(r, "id"), "appointment_id")
	if !ok {
		return
	}
	var req PaymentSettledRequest
	if !decode(w, r, &req) {
		return
	}
	appt, err := h.appts.Get(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if appt.Status.Terminal() {
		h.handleError(w, r, &appointment.TerminalStateError{ID: appt.ID, Status: appt.Status})
		return
	}
	if req.AmountCents < appt.FeeCents {
		writeError(w, http.StatusBadRequest, "insufficient_amount",
			"amount_cents must cover the consultation fee of "+strconv.FormatInt(appt.FeeCents, 10))
		return
	}
	if err := h.payments.MarkSettled(r.Context(), id, req.AmountCents); err != nil {
		h.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) providerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	return parseUUID(w, chi.URLParam(r, "providerID"), "provider_id")
}

// templateProvider parses the provider id and rejects unknown providers so that
// template writes never create a template for a provider that does not exist.
func (h *handlers) templateProvider(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	providerID, ok := h.providerID(w, r)
	if !ok {
		return uuid.Nil, false
	}
	if err := h.appts.CheckProvider(r.Context(), providerID); err != nil {
		h.handleError(w, r, err)
		return uuid.Nil, false
	}
	return providerID, true
}

func (h *handlers) respondTemplate(w http.ResponseWriter, r *http.Request, t *template.WeeklyTemplate, err error) {
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTemplateResponse(t))
}

func (h *handlers) getTemplate(w http.ResponseWriter, r *http.Request) {
	providerID, ok := h.templateProvider(w, r)
	if !ok {
		return
	}
	t, err := h.templates.Get(r.Context(), providerID)
	h.respondTemplate(w, r, t, err)
}

func (h *handlers) setSlotMinutes(w http.ResponseWriter, r *http.Request) {
	providerID, ok := h.templateProvider(w, r)
	if !ok {
		return
	}
	var req SlotMinutesRequest
	if !decode(w, r, &req) {
		return
	}
	t, err := h.templates.SetSlotMinutes(r.Context(), providerID, req.SlotMinutes)
	h.respondTemplate(w, r, t, err)
}

func (h *handlers) setDay(w http.ResponseWriter, r *http.Request) {
	providerID, ok := h.templateProvider(w, r)
	if !ok {
		return
	}
	day, ok := parseDay(w, chi.URLParam(r, "day"))
	if !ok {
		return
	}
	var req SetDayRequest
	if !decode(w, r, &req) {
		return
	}
	t, err := h.templates.SetDay(r.Context(), providerID, day, req.Enabled, req.Ranges)
	h.respondTemplate(w, r, t, err)
}

func (h *handlers) toggleDay(w http.ResponseWriter, r *http.Request) {
	providerID, ok := h.templateProvider(w, r)
	if !ok {
		return
	}
	day, ok := parseDay(w, chi.URLParam(r, "day"))
	if !ok {
		return
	}
	var req ToggleDayRequest
	if !decode(w, r, &req) {
		return
	}
	t, err := h.templates.ToggleDay(r.Context(), providerID, day, req.Enabled)
	h.respondTemplate(w, r, t, err)
}

func (h *handlers) addRange(w http.ResponseWriter, r *http.Request) {
	providerID, ok := h.templateProvider(w, r)
	if !ok {
		return
	}
	day, ok := parseDay(w, chi.URLParam(r, "day"))
	if !ok {
		return
	}
	var req slot.Range
	if !decode(w, r, &req) {
		return
	}
	t, err := h.templates.AddRange(r.Context(), providerID, day, req)
	h.respondTemplate(w, r, t, err)
}

func (h *handlers) removeRange(w http.ResponseWriter, r *http.Request) {
	providerID, ok := h.templateProvider(w, r)
	if !ok {
		return
	}
	day, ok := parseDay(w, chi.URLParam(r, "day"))
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_index", "index must be an integer")
		return
	}
	t, err := h.templates.RemoveRange(r.Context(), providerID, day, index)
	h.respondTemplate(w, r, t, err)
}

func (h *handlers) providerDate(w http.ResponseWriter, r *http.Request) (uuid.UUID, time.Time, bool) {
	providerID, ok := h.providerID(w, r)
	if !ok {
		return uuid.Nil, time.Time{}, false
	}
	date, ok := h.parseDate(w, chi.URLParam(r, "date"))
	if !ok {
		return uuid.Nil, time.Time{}, false
	}
	return providerID, date, true
}

func (h *handlers) listAvailability(w http.ResponseWriter, r *http.Request) {
	providerID, date, ok := h.providerDate(w, r)
	if !ok {
		return
	}
	day, err := h.appts.ListAvailability(r.Context(), providerID, date)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	resp := toAvailabilityResponse(day)
	if r.URL.Query().Get("open") == "true" {
		open := make([]slot.Slot, 0, len(resp.Slots))
		for _, s := range resp.Slots {
			if s.Open() {
				open = append(open, s)
			}
		}
		resp.Slots = open
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) generateSlots(w http.ResponseWriter, r *http.Request) {
	providerID, date, ok := h.providerDate(w, r)
	if !ok {
		return
	}
	var req GenerateSlotsRequest
	if !decode(w, r, &req) {
		return
	}
	start, ok := parseClock(w, req.Start)
	if !ok {
		return
	}
	end, ok := parseClock(w, req.End)
	if !ok {
		return
	}
	day, err := h.appts.GenerateSlots(r.Context(), providerID, date, slot.Range{Start: start, End: end}, req.Minutes)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAvailabilityResponse(day))
}

func (h *handlers) copyDay(w http.ResponseWriter, r *http.Request) {
	providerID, from, ok := h.providerDate(w, r)
	if !ok {
		return
	}
	var req CopyDayRequest
	if !decode(w, r, &req) {
		return
	}
	to, ok := h.parseDate(w, req.To)
	if !ok {
		return
	}
	day, err := h.appts.CopyDay(r.Context(), providerID, from, to)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAvailabilityResponse(day))
}

func (h *handlers) setSlotAvailability(w http.ResponseWriter, r *http.Request) {
	providerID, date, ok := h.providerDate(w, r)
	if !ok {
		return
	}
	at, ok := parseClock(w, chi.URLParam(r, "time"))
	if !ok {
		return
	}
	var req SlotAvailabilityRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.appts.SetSlotAvailability(r.Context(), providerID, date, at, req.Available); err != nil {
		h.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) removeSlot(w http.ResponseWriter, r *http.Request) {
	providerID, date, ok := h.providerDate(w, r)
	if !ok {
		return
	}
	at, ok := parseClock(w, chi.URLParam(r, "time"))
	if !ok {
		return
	}
	if err := h.appts.RemoveSlot(r.Context(), providerID, date, at); err != nil {
		h.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
