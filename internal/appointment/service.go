package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/config"
	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/metrics"
	redisclient "github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/redis"
	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/slot"
)

type Service struct {
	repo      Repository
	templates TemplateSource
	locker    redisclient.Locker
	cfg       config.Config
	logger    zerolog.Logger

	notifier Notifier
	payments PaymentGuard
	rooms    RoomProvider
	metrics  *metrics.SchedulerMetrics

	loc    *time.Location
	window JoinWindow
	now    func() time.Time
}

func NewService(repo Repository, templates TemplateSource, locker redisclient.Locker, cfg config.Config, logger zerolog.Logger) *Service {
	if locker == nil {
		locker = redisclient.NewLocalSlotLocker()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	window := JoinWindow{Early: cfg.JoinEarly, Late: cfg.JoinLate}
	if window.Early <= 0 && window.Late <= 0 {
		window = DefaultJoinWindow
	}
	return &Service{
		repo:      repo,
		templates: templates,
		locker:    locker,
		cfg:       cfg,
		logger:    logger.With().Str("component", "appointment").Logger(),
		loc:       loc,
		window:    window,
		now:       time.Now,
	}
}

func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// WithPaymentGuard makes confirm and complete out of scheduled require a settled fee.
func (s *Service) WithPaymentGuard(g PaymentGuard) *Service {
	s.payments = g
	return s
}

func (s *Service) WithRoomProvider(r RoomProvider) *Service {
	s.rooms = r
	return s
}

func (s *Service) WithMetrics(m *metrics.SchedulerMetrics) *Service {
	s.metrics = m
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Location() *time.Location { return s.loc }

// dateOf keeps the calendar day of d and pins it to midnight in the service zone.
func (s *Service) dateOf(d time.Time) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, s.loc)
}

type BookRequest struct {
	ProviderID uuid.UUID
	PatientID  uuid.UUID
	Date       time.Time
	Time       slot.Clock
	Type       AppointmentType
	Reason     string
}

// Book claims the slot at (provider, date, time) for a patient. Concurrent calls for
// the same key resolve to exactly one appointment; every other caller gets
// *SlotUnavailableError and nothing is written on their behalf.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	if req.Type != TypeOnline && req.Type != TypeInPerson {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAppointmentType, req.Type)
	}

	if _, err := s.repo.GetPatientByID(ctx, req.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	provider, err := s.repo.GetProviderByID(ctx, req.ProviderID)
	if err != nil {
		if errors.Is(err, ErrProviderNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load provider: %w", err)
	}

	key := SlotKey{ProviderID: req.ProviderID, Date: s.dateOf(req.Date), Time: req.Time}
	if !key.StartsAt().After(s.now()) {
		return nil, &SlotUnavailableError{Key: key, Reason: "slot start has passed"}
	}

	if _, err := s.ensureDay(ctx, key.ProviderID, key.Date); err != nil {
		return nil, err
	}

	started := s.now()
	var created *Appointment
	err = s.withSlotLock(ctx, key, func(lockCtx context.Context) error {
		appt, err := s.repo.ClaimSlot(lockCtx, key, &Appointment{
			PatientID: req.PatientID,
			Type:      req.Type,
			Status:    StatusScheduled,
			FeeCents:  provider.ConsultationFeeCents,
			Reason:    strings.TrimSpace(req.Reason),
		})
		if err != nil {
			return err
		}
		created = appt
		return nil
	})
	if err != nil {
		s.metrics.ObserveBooking(bookingOutcome(err), time.Since(started))
		if errors.Is(err, ErrSlotUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("book slot %s: %w", key, err)
	}
	s.metrics.ObserveBooking("booked", time.Since(started))

	s.logEvent(ctx, created.ID, EventAppointmentBooked, map[string]any{
		"provider_id": created.ProviderID.String(),
		"patient_id":  created.PatientID.String(),
		"date":        created.Date.Format(DateLayout),
		"time":        created.Time.String(),
		"type":        created.Type,
	})
	s.notify(ctx, EventAppointmentBooked, created, "")

	return created, nil
}

// withSlotLock runs fn under the per-key lock. Losing the lock is reported the
// same way as losing the compare-and-swap; it is never retried.
func (s *Service) withSlotLock(ctx context.Context, key SlotKey, fn func(ctx context.Context) error) error {
	err := s.locker.WithSlotLock(ctx, key.String(), fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		s.metrics.ObserveLockContention()
		return &SlotUnavailableError{Key: key, Reason: "slot is being booked by another request"}
	}
	return err
}

func bookingOutcome(err error) string {
	if errors.Is(err, ErrSlotUnavailable) {
		return "conflict"
	}
	return "error"
}

// Cancel releases the appointment's slot and records the reason. The reason is
// checked before anything is loaded.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, &MissingReasonError{ID: id}
	}

	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err := Transition(appt, ActionCancel, s.now()); err != nil {
		return nil, &CancellationNotAllowedError{ID: id, Status: appt.Status, Err: err}
	}

	cancelled, err := s.repo.ReleaseSlot(ctx, id, appt.Status, reason)
	if err != nil {
		if errors.Is(err, ErrStaleAppointment) || errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.metrics.ObserveTransition(string(StatusCancelled))
	s.logEvent(ctx, id, EventAppointmentCancelled, map[string]any{
		"from":   appt.Status,
		"reason": reason,
	})
	s.notify(ctx, EventAppointmentCancelled, cancelled, reason)

	return cancelled, nil
}

// Reschedule books the new time first and only then cancels the original, all in
// one repository unit. If the new slot is taken the original is left as it was.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newDate time.Time, newTime slot.Clock) (*Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err := Transition(appt, ActionCancel, s.now()); err != nil {
		return nil, &CancellationNotAllowedError{ID: id, Status: appt.Status, Err: err}
	}

	key := SlotKey{ProviderID: appt.ProviderID, Date: s.dateOf(newDate), Time: newTime}
	if !key.StartsAt().After(s.now()) {
		return nil, &SlotUnavailableError{Key: key, Reason: "slot start has passed"}
	}

	if _, err := s.ensureDay(ctx, key.ProviderID, key.Date); err != nil {
		return nil, err
	}

	oldID := appt.ID
	reason := fmt.Sprintf("rescheduled to %s %s", key.Date.Format(DateLayout), key.Time)
	next := &Appointment{
		PatientID:       appt.PatientID,
		Type:            appt.Type,
		Status:          StatusScheduled,
		FeeCents:        appt.FeeCents,
		Reason:          appt.Reason,
		RescheduledFrom: &oldID,
	}

	started := s.now()
	var created *Appointment
	err = s.withSlotLock(ctx, key, func(lockCtx context.Context) error {
		c, err := s.repo.Reschedule(lockCtx, oldID, appt.Status, reason, key, next)
		if err != nil {
			return err
		}
		created = c
		return nil
	})
	if err != nil {
		s.metrics.ObserveBooking(bookingOutcome(err), time.Since(started))
		if errors.Is(err, ErrSlotUnavailable) || errors.Is(err, ErrStaleAppointment) {
			return nil, err
		}
		return nil, fmt.Errorf("reschedule appointment: %w", err)
	}
	s.metrics.ObserveBooking("rescheduled", time.Since(started))
	s.metrics.ObserveTransition(string(StatusCancelled))

	s.logEvent(ctx, oldID, EventAppointmentCancelled, map[string]any{
		"from":   appt.Status,
		"reason": reason,
	})
	s.logEvent(ctx, created.ID, EventAppointmentRescheduled, map[string]any{
		"rescheduled_from": oldID.String(),
		"date":             created.Date.Format(DateLayout),
		"time":             created.Time.String(),
	})
	s.notify(ctx, EventAppointmentRescheduled, created, reason)

	return created, nil
}

func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, ActionConfirm, EventAppointmentConfirmed)
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, ActionComplete, EventAppointmentCompleted)
}

// MarkNoShow is the explicit form of the settlement reads perform after the grace period.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, ActionNoShow, EventAppointmentNoShow)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, action Action, eventType string) (*Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	to, err := Transition(appt, action, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.checkPayment(ctx, appt, action); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, appt.Status, to)
	if err != nil {
		if errors.Is(err, ErrStaleAppointment) {
			return nil, err
		}
		return nil, fmt.Errorf("%s appointment: %w", action, err)
	}

	s.metrics.ObserveTransition(string(to))
	s.logEvent(ctx, id, eventType, map[string]any{
		"from": appt.Status,
		"to":   to,
	})
	s.notify(ctx, eventType, updated, "")

	return updated, nil
}

func (s *Service) checkPayment(ctx context.Context, appt *Appointment, action Action) error {
	if s.payments == nil || appt.Status != StatusScheduled {
		return nil
	}
	if action != ActionConfirm && action != ActionComplete {
		return nil
	}
	settled, err := s.feeSettled(ctx, appt)
	if err != nil {
		return fmt.Errorf("check payment: %w", err)
	}
	if !settled {
		return fmt.Errorf("%w: appointment %s", ErrPaymentRequired, appt.ID)
	}
	return nil
}

// maxRescheduleChain bounds the walk back through RescheduledFrom links.
const maxRescheduleChain = 16

// feeSettled reports whether the fee was paid for appt or for any appointment it
// was rescheduled from. The ledger is keyed by the id the patient paid against.
func (s *Service) feeSettled(ctx context.Context, appt *Appointment) (bool, error) {
	id, from := appt.ID, appt.RescheduledFrom
	for hops := 0; ; hops++ {
		settled, err := s.payments.FeeSettled(ctx, id)
		if err != nil || settled {
			return settled, err
		}
		if from == nil || hops >= maxRescheduleChain {
			return false, nil
		}
		prev, err := s.repo.GetAppointmentByID(ctx, *from)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return false, nil
			}
			return false, fmt.Errorf("load rescheduled-from appointment: %w", err)
		}
		id, from = prev.ID, prev.RescheduledFrom
	}
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	return appt, nil
}

// Get retrieves an appointment, settling it as no_show if it ended more than the
// grace period ago without being completed.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.settle(ctx, appt), nil
}

// ListByPatient retrieves appointments for a specific patient, newest first.
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	appointments, err := s.repo.ListAppointmentsByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return s.settleAll(ctx, appointments), nil
}

// ListByProvider retrieves a provider's appointments for one date, ordered by time.
func (s *Service) ListByProvider(ctx context.Context, providerID uuid.UUID, date time.Time) ([]Appointment, error) {
	appointments, err := s.repo.ListAppointmentsByProvider(ctx, providerID, s.dateOf(date))
	if err != nil {
		return nil, fmt.Errorf("list appointments by provider: %w", err)
	}
	return s.settleAll(ctx, appointments), nil
}

func (s *Service) settleAll(ctx context.Context, in []Appointment) []Appointment {
	for i := range in {
		in[i] = *s.settle(ctx, &in[i])
	}
	return in
}

// settle persists no_show for an active appointment whose end plus the grace
// period has passed. A failed write leaves the appointment as read.
func (s *Service) settle(ctx context.Context, appt *Appointment) *Appointment {
	if !appt.Status.Active() {
		return appt
	}
	grace := s.cfg.NoShowGrace
	if grace < 0 {
		grace = 0
	}
	if s.now().Before(appt.EndsAt().Add(grace)) {
		return appt
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, appt.Status, StatusNoShow)
	if err != nil {
		if errors.Is(err, ErrStaleAppointment) {
			if fresh, err := s.repo.GetAppointmentByID(ctx, appt.ID); err == nil {
				return fresh
			}
		}
		s.logger.Warn().Err(err).Str("appointment_id", appt.ID.String()).Msg("settle no-show")
		return appt
	}

	s.metrics.ObserveTransition(string(StatusNoShow))
	s.logEvent(ctx, appt.ID, EventAppointmentNoShow, map[string]any{
		"from":   appt.Status,
		"reason": "not completed within grace period",
	})
	return updated
}

// JoinVideo returns a room reference when the join window is open for the appointment.
func (s *Service) JoinVideo(ctx context.Context, id uuid.UUID) (string, error) {
	appt, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if !s.window.Allows(appt, s.now()) {
		return "", fmt.Errorf("%w: appointment %s (%s, %s)", ErrJoinWindowClosed, id, appt.Type, appt.Status)
	}
	if s.rooms == nil {
		return "", ErrVideoDisabled
	}
	url, err := s.rooms.RoomURL(ctx, appt)
	if err != nil {
		return "", fmt.Errorf("get video room: %w", err)
	}
	return url, nil
}

// CanJoin evaluates the configured join window without side effects.
func (s *Service) CanJoin(appt *Appointment) bool {
	return s.window.Allows(appt, s.now())
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now().UTC(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("insert event log")
	}
}

func (s *Service) notify(ctx context.Context, eventType string, appt *Appointment, reason string) {
	if s.notifier == nil {
		return
	}
	ev := Event{
		ID:            uuid.New(),
		Type:          eventType,
		AppointmentID: appt.ID,
		PatientID:     appt.PatientID,
		ProviderID:    appt.ProviderID,
		Status:        appt.Status,
		StartsAt:      appt.StartsAt(),
		Reason:        reason,
		OccurredAt:    s.now().UTC(),
	}
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.logger.Warn().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appt.ID.String()).
			Msg("notify")
	}
}
