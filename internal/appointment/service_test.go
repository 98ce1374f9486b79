package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/config"
	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/metrics"
	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/slot"
	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/template"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, ev Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, ev := range n.events {
		out = append(out, ev.Type)
	}
	return out
}

type fakeLedger struct {
	settled map[uuid.UUID]bool
}

func (l *fakeLedger) FeeSettled(_ context.Context, id uuid.UUID) (bool, error) {
	return l.settled[id], nil
}

type fakeRooms struct{}

func (fakeRooms) RoomURL(_ context.Context, a *Appointment) (string, error) {
	return "https://rooms.test/" + a.ID.String(), nil
}

type fixture struct {
	svc       *Service
	repo      *MemoryRepository
	templates *template.Service
	notifier  *recordingNotifier
	provider  uuid.UUID
	patient   uuid.UUID
	other     uuid.UUID

	mu  sync.Mutex
	now time.Time
}

// Monday 2025-03-10 08:00 UTC; the provider works Wednesdays 09:00-12:00 and 13:00-17:00.
var (
	monday    = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	tuesday   = monday.AddDate(0, 0, 1)
	wednesday = monday.AddDate(0, 0, 2)
	thursday  = monday.AddDate(0, 0, 3)
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		repo:     NewMemoryRepository(),
		notifier: &recordingNotifier{},
		provider: uuid.New(),
		patient:  uuid.New(),
		other:    uuid.New(),
		now:      monday.Add(8 * time.Hour),
	}
	f.repo.AddProvider(Provider{ID: f.provider, Name: "Dr. Perera", ConsultationFeeCents: 250000})
	f.repo.AddPatient(Patient{ID: f.patient, Name: "Nimal"})
	f.repo.AddPatient(Patient{ID: f.other, Name: "Kamala"})

	f.templates = template.NewService(template.NewMemoryRepository(), 30)
	_, err := f.templates.SetDay(ctx, f.provider, time.Wednesday, true, []slot.Range{
		{Start: slot.NewClock(9, 0), End: slot.NewClock(12, 0)},
		{Start: slot.NewClock(13, 0), End: slot.NewClock(17, 0)},
	})
	require.NoError(t, err)

	cfg := config.Config{
		Location:           time.UTC,
		DefaultSlotMinutes: 30,
		NoShowGrace:        time.Hour,
		JoinEarly:          15 * time.Minute,
		JoinLate:           30 * time.Minute,
	}
	f.svc = NewService(f.repo, f.templates, nil, cfg, zerolog.Nop()).
		WithNotifier(f.notifier).
		WithRoomProvider(fakeRooms{}).
		WithMetrics(metrics.NewSchedulerMetrics(prometheus.NewRegistry())).
		WithClock(f.clock)
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) setNow(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

func (f *fixture) book(t *testing.T, patient uuid.UUID, date time.Time, hour, minute int, typ AppointmentType) *Appointment {
	t.Helper()
	a, err := f.svc.Book(context.Background(), BookRequest{
		ProviderID: f.provider,
		PatientID:  patient,
		Date:       date,
		Time:       slot.NewClock(hour, minute),
		Type:       typ,
		Reason:     "follow-up",
	})
	require.NoError(t, err)
	return a
}

func (f *fixture) slotAt(t *testing.T, date time.Time, hour, minute int) slot.Slot {
	t.Helper()
	d, err := f.svc.ListAvailability(context.Background(), f.provider, date)
	require.NoError(t, err)
	s, ok := d.Find(slot.NewClock(hour, minute))
	require.True(t, ok, "no slot at %02d:%02d", hour, minute)
	return s
}

func TestListAvailability_MaterializesFromTemplate(t *testing.T) {
	f := newFixture(t)

	d, err := f.svc.ListAvailability(context.Background(), f.provider, wednesday)
	require.NoError(t, err)
	require.Len(t, d.Slots, 14)
	assert.Equal(t, slot.NewClock(9, 0), d.Slots[0].Time)
	assert.Equal(t, slot.NewClock(16, 30), d.Slots[len(d.Slots)-1].Time)
	for _, s := range d.Slots {
		assert.True(t, s.Open())
		assert.Equal(t, 30, s.Minutes)
	}

	off, err := f.svc.ListAvailability(context.Background(), f.provider, tuesday)
	require.NoError(t, err)
	assert.Empty(t, off.Slots)
}

func TestListAvailability_UnknownProvider(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ListAvailability(context.Background(), uuid.New(), wednesday)
	assert.ErrorIs(t, err, ErrProviderNotFound)
}

func TestBook_CreatesScheduledAppointment(t *testing.T) {
	f := newFixture(t)

	a := f.book(t, f.patient, wednesday, 10, 0, TypeInPerson)
	assert.Equal(t, StatusScheduled, a.Status)
	assert.Equal(t, int64(250000), a.FeeCents)
	assert.Equal(t, 30, a.DurationMinutes)
	assert.Equal(t, "follow-up", a.Reason)

	s := f.slotAt(t, wednesday, 10, 0)
	assert.True(t, s.Booked)
	assert.True(t, s.Available)
	require.NotNil(t, s.AppointmentID)
	assert.Equal(t, a.ID, *s.AppointmentID)

	assert.Equal(t, []string{EventAppointmentBooked}, f.notifier.types())
	events := f.repo.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventAppointmentBooked, events[0].EventType)
}

func TestBook_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := BookRequest{ProviderID: f.provider, PatientID: f.patient, Date: wednesday, Time: slot.NewClock(10, 0), Type: TypeOnline}

	bad := req
	bad.Type = "phone"
	_, err := f.svc.Book(ctx, bad)
	assert.ErrorIs(t, err, ErrInvalidAppointmentType)

	bad = req
	bad.PatientID = uuid.New()
	_, err = f.svc.Book(ctx, bad)
	assert.ErrorIs(t, err, ErrPatientNotFound)

	bad = req
	bad.ProviderID = uuid.New()
	_, err = f.svc.Book(ctx, bad)
	assert.ErrorIs(t, err, ErrProviderNotFound)

	bad = req
	bad.Time = slot.NewClock(12, 30) // lunch gap
	_, err = f.svc.Book(ctx, bad)
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	bad = req
	bad.Date = tuesday // day off
	_, err = f.svc.Book(ctx, bad)
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	f.setNow(wednesday.Add(10 * time.Hour))
	_, err = f.svc.Book(ctx, req)
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestBook_UnavailableSlotIsNeverBooked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SetSlotAvailability(ctx, f.provider, wednesday, slot.NewClock(10, 0), false))

	_, err := f.svc.Book(ctx, BookRequest{ProviderID: f.provider, PatientID: f.patient, Date: wednesday, Time: slot.NewClock(10, 0), Type: TypeOnline})
	var unavailable *SlotUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, slot.NewClock(10, 0), unavailable.Key.Time)

	s := f.slotAt(t, wednesday, 10, 0)
	assert.False(t, s.Booked)
	assert.Nil(t, s.AppointmentID)
}

func TestBook_ConcurrentSameSlot(t *testing.T) {
	f := newFixture(t)
	const n = 32

	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		results = make(chan error, n)
		winners = make(chan *Appointment, n)
	)
	for i := 0; i < n; i++ {
		patient := f.patient
		if i%2 == 1 {
			patient = f.other
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			a, err := f.svc.Book(context.Background(), BookRequest{
				ProviderID: f.provider,
				PatientID:  patient,
				Date:       wednesday,
				Time:       slot.NewClock(10, 0),
				Type:       TypeInPerson,
			})
			results <- err
			if err == nil {
				winners <- a
			}
		}()
	}
	close(start)
	wg.Wait()
	close(results)
	close(winners)

	var ok, conflicts int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrSlotUnavailable):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, conflicts)

	winner := <-winners
	s := f.slotAt(t, wednesday, 10, 0)
	assert.True(t, s.Booked)
	require.NotNil(t, s.AppointmentID)
	assert.Equal(t, winner.ID, *s.AppointmentID)

	booked, err := f.svc.ListByProvider(context.Background(), f.provider, wednesday)
	require.NoError(t, err)
	assert.Len(t, booked, 1)
}

func TestCancel_RestoresSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	before := f.slotAt(t, wednesday, 10, 0)
	a := f.book(t, f.patient, wednesday, 10, 0, TypeInPerson)
	_, err := f.svc.Confirm(ctx, a.ID)
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(ctx, a.ID, "patient request")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancellationReason)
	assert.Equal(t, "patient request", *cancelled.CancellationReason)

	assert.Equal(t, before, f.slotAt(t, wednesday, 10, 0))

	// the record is kept for audit
	stored, err := f.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, stored.Status)

	assert.Equal(t, []string{EventAppointmentBooked, EventAppointmentConfirmed, EventAppointmentCancelled}, f.notifier.types())

	// the slot is bookable again
	f.book(t, f.other, wednesday, 10, 0, TypeOnline)
}

func TestCancel_MissingReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t, f.patient, wednesday, 10, 0, TypeInPerson)

	_, err := f.svc.Cancel(ctx, a.ID, "   ")
	var missing *MissingReasonError
	require.ErrorAs(t, err, &missing)
	assert.ErrorIs(t, err, ErrMissingReason)

	stored, err := f.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, stored.Status)
	assert.True(t, f.slotAt(t, wednesday, 10, 0).Booked)
}

func TestCancel_NotAllowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t, f.patient, wednesday, 10, 0, TypeInPerson)

	f.setNow(wednesday.Add(10*time.Hour + 5*time.Minute))
	_, err := f.svc.Cancel(ctx, a.ID, "too late")
	var notAllowed *CancellationNotAllowedError
	require.ErrorAs(t, err, &notAllowed)
	assert.Equal(t, StatusScheduled, notAllowed.Status)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.True(t, f.slotAt(t, wednesday, 10, 0).Booked)

	f.setNow(wednesday.Add(10 * time.Hour))
	_, err = f.svc.Complete(ctx, a.ID)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, a.ID, "changed mind")
	assert.ErrorIs(t, err, ErrCancellationNotAllowed)
	assert.ErrorIs(t, err, ErrTerminalState)
}

func TestCancel_UnknownAppointment(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Cancel(context.Background(), uuid.New(), "reason")
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestTerminalStatesRejectEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t, f.patient, wednesday, 10, 0, TypeInPerson)
	_, err := f.svc.Cancel(ctx, a.ID, "sick")
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, a.ID)
	assert.ErrorIs(t, err, ErrTerminalState)
	_, err = f.svc.Complete(ctx, a.ID)
	assert.ErrorIs(t, err, ErrTerminalState)
	_, err = f.svc.MarkNoShow(ctx, a.ID)
	assert.ErrorIs(t, err, ErrTerminalState)
	_, err = f.svc.Reschedule(ctx, a.ID, wednesday, slot.NewClock(15, 0))
	assert.ErrorIs(t, err, ErrTerminalState)
}

func TestReschedule_MovesBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t, f.patient, wednesday, 10, 0, TypeOnline)

	moved, err := f.svc.Reschedule(ctx, a.ID, wednesday, slot.NewClock(15, 0))
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, moved.ID)
	assert.Equal(t, StatusScheduled, moved.Status)
	assert.Equal(t, slot.NewClock(15, 0), moved.Time)
	assert.Equal(t, a.PatientID, moved.PatientID)
	assert.Equal(t, a.Type, moved.Type)
	assert.Equal(t, a.FeeCents, moved.FeeCents)
	require.NotNil(t, moved.RescheduledFrom)
	assert.Equal(t, a.ID, *moved.RescheduledFrom)

	old, err := f.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, old.Status)
	require.NotNil(t, old.CancellationReason)
	assert.Equal(t, "rescheduled to 2025-03-12 15:00", *old.CancellationReason)

	assert.True(t, f.slotAt(t, wednesday, 10, 0).Open())
	s := f.slotAt(t, wednesday, 15, 0)
	require.NotNil(t, s.AppointmentID)
	assert.Equal(t, moved.ID, *s.AppointmentID)
}

func TestReschedule_TargetTakenLeavesOriginal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t, f.patient, wednesday, 10, 0, TypeOnline)
	f.book(t, f.other, wednesday, 15, 0, TypeOnline)

	_, err := f.svc.Reschedule(ctx, a.ID, wednesday, slot.NewClock(15, 0))
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	stored, err := f.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, stored.Status)
	assert.Equal(t, slot.NewClock(10, 0), stored.Time)
	s := f.slotAt(t, wednesday, 10, 0)
	require.NotNil(t, s.AppointmentID)
	assert.Equal(t, a.ID, *s.AppointmentID)
}

func TestReschedule_RacesWithBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t, f.patient, wednesday, 10, 0, TypeOnline)

	var (
		wg             sync.WaitGroup
		start          = make(chan struct{})
		rescheduleErr  error
		bookErr        error
		rescheduled    *Appointment
		competingBooks *Appointment
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		<-start
		rescheduled, rescheduleErr = f.svc.Reschedule(ctx, a.ID, thursday.AddDate(0, 0, 6), slot.NewClock(15, 0))
	}()
	go func() {
		defer wg.Done()
		<-start
		competingBooks, bookErr = f.svc.Book(ctx, BookRequest{
			ProviderID: f.provider, PatientID: f.other, Date: thursday.AddDate(0, 0, 6),
			Time: slot.NewClock(15, 0), Type: TypeOnline,
		})
	}()
	close(start)
	wg.Wait()

	// the target is the following Wednesday
	require.True(t, (rescheduleErr == nil) != (bookErr == nil), "exactly one claim wins: %v / %v", rescheduleErr, bookErr)

	stored, err := f.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	if rescheduleErr != nil {
		assert.ErrorIs(t, rescheduleErr, ErrSlotUnavailable)
		require.NotNil(t, competingBooks)
		assert.Equal(t, StatusScheduled, stored.Status)
		assert.Equal(t, slot.NewClock(10, 0), stored.Time)
		assert.True(t, f.slotAt(t, wednesday, 10, 0).Booked)
	} else {
		assert.ErrorIs(t, bookErr, ErrSlotUnavailable)
		require.NotNil(t, rescheduled)
		assert.Equal(t, StatusCancelled, stored.Status)
	}
}

func TestGenerateSlots_PreservesBookings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t, f.patient, wednesday, 10, 0, TypeInPerson)

	morning := slot.Range{Start: slot.NewClock(9, 0), End: slot.NewClock(12, 0)}
	d, err := f.svc.GenerateSlots(ctx, f.provider, wednesday, morning, 30)
	require.NoError(t, err)
	assert.Len(t, d.Slots, 14)

	s, ok := d.Find(slot.NewClock(10, 0))
	require.True(t, ok)
	assert.True(t, s.Booked)
	assert.Equal(t, a.ID, *s.AppointmentID)

	evening := slot.Range{Start: slot.NewClock(17, 0), End: slot.NewClock(18, 15)}
	d, err = f.svc.GenerateSlots(ctx, f.provider, wednesday, evening, 0)
	require.NoError(t, err)
	assert.Len(t, d.Slots, 16)

	_, err = f.svc.GenerateSlots(ctx, f.provider, wednesday, slot.Range{Start: slot.NewClock(18, 0), End: slot.NewClock(17, 0)}, 30)
	assert.ErrorIs(t, err, slot.ErrInvalidRange)
}

func TestSlotEdits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.book(t, f.patient, wednesday, 10, 0, TypeInPerson)

	err := f.svc.SetSlotAvailability(ctx, f.provider, wednesday, slot.NewClock(10, 0), false)
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	err = f.svc.RemoveSlot(ctx, f.provider, wednesday, slot.NewClock(10, 0))
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	err = f.svc.RemoveSlot(ctx, f.provider, wednesday, slot.NewClock(12, 30))
	assert.ErrorIs(t, err, ErrSlotNotFound)

	require.NoError(t, f.svc.RemoveSlot(ctx, f.provider, wednesday, slot.NewClock(9, 0)))
	d, err := f.svc.ListAvailability(ctx, f.provider, wednesday)
	require.NoError(t, err)
	assert.Len(t, d.Slots, 13)

	copied, err := f.svc.CopyDay(ctx, f.provider, wednesday, thursday)
	require.NoError(t, err)
	assert.Len(t, copied.Slots, 13)
	for _, s := range copied.Slots {
		assert.True(t, s.Open())
	}
}

func TestConfirm_PaymentGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ledger := &fakeLedger{settled: map[uuid.UUID]bool{}}
	f.svc.WithPaymentGuard(ledger)

	a := f.book(t, f.patient, wednesday, 10, 0, TypeInPerson)
	_, err := f.svc.Confirm(ctx, a.ID)
	assert.ErrorIs(t, err, ErrPaymentRequired)

	ledger.settled[a.ID] = true
	confirmed, err := f.svc.Confirm(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	_, err = f.svc.Confirm(ctx, a.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestConfirm_RescheduleKeepsSettledFee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ledger := &fakeLedger{settled: map[uuid.UUID]bool{}}
	f.svc.WithPaymentGuard(ledger)

	paid := f.book(t, f.patient, wednesday, 10, 0, TypeInPerson)
	ledger.settled[paid.ID] = true

	moved, err := f.svc.Reschedule(ctx, paid.ID, wednesday, slot.NewClock(11, 0))
	require.NoError(t, err)
	movedAgain, err := f.svc.Reschedule(ctx, moved.ID, wednesday, slot.NewClock(14, 0))
	require.NoError(t, err)

	confirmed, err := f.svc.Confirm(ctx, movedAgain.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	unpaid := f.book(t, f.other, wednesday, 9, 0, TypeInPerson)
	movedUnpaid, err := f.svc.Reschedule(ctx, unpaid.ID, wednesday, slot.NewClock(9, 30))
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, movedUnpaid.ID)
	assert.ErrorIs(t, err, ErrPaymentRequired)
}

func TestParseDate(t *testing.T) {
	colombo := time.FixedZone("Asia/Colombo", 5*3600+1800)
	d, err := ParseDate(" 2025-03-12 ", colombo)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 12, 0, 0, 0, 0, colombo), d)

	d, err = ParseDate("2025-03-12", nil)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, d.Location())

	_, err = ParseDate("12/03/2025", time.UTC)
	assert.Error(t, err)
}

func TestBook_DateTimeOfDayIgnored(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, f.patient, wednesday.Add(13*time.Hour+7*time.Minute), 10, 0, TypeInPerson)

	assert.True(t, a.Date.Equal(wednesday), a.Date.String())
	assert.True(t, f.slotAt(t, wednesday, 10, 0).Booked)
}

func TestJoinVideo_NoRoomProvider(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.WithRoomProvider(nil)

	a := f.book(t, f.patient, wednesday, 14, 0, TypeOnline)
	f.setNow(wednesday.Add(14 * time.Hour))
	_, err := f.svc.JoinVideo(ctx, a.ID)
	assert.ErrorIs(t, err, ErrVideoDisabled)
}

func TestNoShow_ExplicitAndLazy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	explicit := f.book(t, f.patient, wednesday, 10, 0, TypeInPerson)
	lazy := f.book(t, f.other, wednesday, 10, 30, TypeInPerson)

	f.setNow(wednesday.Add(10*time.Hour + 20*time.Minute))
	_, err := f.svc.MarkNoShow(ctx, explicit.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	f.setNow(wednesday.Add(10*time.Hour + 30*time.Minute))
	marked, err := f.svc.MarkNoShow(ctx, explicit.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNoShow, marked.Status)

	// ends 11:00, grace one hour
	f.setNow(wednesday.Add(11*time.Hour + 59*time.Minute))
	got, err := f.svc.Get(ctx, lazy.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, got.Status)

	f.setNow(wednesday.Add(12 * time.Hour))
	list, err := f.svc.ListByPatient(ctx, f.other, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, StatusNoShow, list[0].Status)

	stored, err := f.repo.GetAppointmentByID(ctx, lazy.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNoShow, stored.Status)
}

func TestJoinVideo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	online := f.book(t, f.patient, wednesday, 14, 0, TypeOnline)
	inPerson := f.book(t, f.other, wednesday, 14, 30, TypeInPerson)

	f.setNow(wednesday.Add(13*time.Hour + 44*time.Minute))
	_, err := f.svc.JoinVideo(ctx, online.ID)
	assert.ErrorIs(t, err, ErrJoinWindowClosed)

	f.setNow(wednesday.Add(13*time.Hour + 45*time.Minute))
	url, err := f.svc.JoinVideo(ctx, online.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://rooms.test/"+online.ID.String(), url)

	f.setNow(wednesday.Add(14*time.Hour + 30*time.Minute))
	_, err = f.svc.JoinVideo(ctx, inPerson.ID)
	assert.ErrorIs(t, err, ErrJoinWindowClosed)
}

func TestNotifierFailureKeepsBooking(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("broker down")

	a := f.book(t, f.patient, wednesday, 10, 0, TypeInPerson)

	stored, err := f.svc.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, stored.Status)
	assert.True(t, f.slotAt(t, wednesday, 10, 0).Booked)
}

func TestListByPatient_Pagination(t *testing.T) {
	f := newFixture(t)
	for _, h := range []int{9, 10, 11} {
		f.book(t, f.patient, wednesday, h, 0, TypeInPerson)
	}

	page, err := f.svc.ListByPatient(context.Background(), f.patient, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, slot.NewClock(11, 0), page[0].Time)

	rest, err := f.svc.ListByPatient(context.Background(), f.patient, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, slot.NewClock(9, 0), rest[0].Time)
}
