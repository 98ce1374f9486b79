package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/slot"
)

type dayKey struct {
	provider uuid.UUID
	date     string
}

func dayKeyOf(providerID uuid.UUID, date time.Time) dayKey {
	return dayKey{provider: providerID, date: date.Format(DateLayout)}
}

type memDay struct {
	mu    sync.Mutex
	date  time.Time
	slots []slot.Slot
}

func (d *memDay) index(t slot.Clock) int {
	for i := range d.slots {
		if d.slots[i].Time == t {
			return i
		}
	}
	return -1
}

// MemoryRepository is an in-process Repository. Each provider day has its own
// mutex; lock order is day(s) first, sorted by key, then the appointment table.
type MemoryRepository struct {
	daysMu sync.RWMutex
	days   map[dayKey]*memDay

	mu           sync.RWMutex
	patients     map[uuid.UUID]Patient
	providers    map[uuid.UUID]Provider
	appointments map[uuid.UUID]*Appointment
	events       []EventLog

	now func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		days:         make(map[dayKey]*memDay),
		patients:     make(map[uuid.UUID]Patient),
		providers:    make(map[uuid.UUID]Provider),
		appointments: make(map[uuid.UUID]*Appointment),
		now:          time.Now,
	}
}

func (r *MemoryRepository) AddPatient(p Patient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patients[p.ID] = p
}

func (r *MemoryRepository) AddProvider(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID] = p
}

// Events returns a copy of the audit log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]EventLog(nil), r.events...)
}

func (r *MemoryRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) GetProviderByID(_ context.Context, id uuid.UUID) (*Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return a.clone(), nil
}

func (r *MemoryRepository) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	r.mu.RLock()
	var result []Appointment
	for _, a := range r.appointments {
		if a.PatientID == patientID {
			result = append(result, *a.clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartsAt().After(result[j].StartsAt())
	})
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *MemoryRepository) ListAppointmentsByProvider(_ context.Context, providerID uuid.UUID, date time.Time) ([]Appointment, error) {
	r.mu.RLock()
	var result []Appointment
	want := date.Format(DateLayout)
	for _, a := range r.appointments {
		if a.ProviderID == providerID && a.Date.Format(DateLayout) == want {
			result = append(result, *a.clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].Time == result[j].Time {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].Time < result[j].Time
	})
	return result, nil
}

func (r *MemoryRepository) day(providerID uuid.UUID, date time.Time, create bool) *memDay {
	k := dayKeyOf(providerID, date)
	r.daysMu.RLock()
	d, ok := r.days[k]
	r.daysMu.RUnlock()
	if ok || !create {
		return d
	}

	r.daysMu.Lock()
	defer r.daysMu.Unlock()
	if d, ok := r.days[k]; ok {
		return d
	}
	d = &memDay{date: date}
	r.days[k] = d
	return d
}

func (r *MemoryRepository) GetDay(_ context.Context, providerID uuid.UUID, date time.Time) (*DailyAvailability, error) {
	d := r.day(providerID, date, false)
	if d == nil {
		return nil, ErrDayNotFound
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return &DailyAvailability{ProviderID: providerID, Date: date, Slots: copySlots(d.slots)}, nil
}

func (r *MemoryRepository) MergeSlots(_ context.Context, providerID uuid.UUID, date time.Time, slots []slot.Slot) (*DailyAvailability, error) {
	d := r.day(providerID, date, true)
	d.mu.Lock()
	defer d.mu.Unlock()

	fresh := make([]slot.Slot, 0, len(slots))
	for _, s := range slots {
		s.Booked = false
		s.AppointmentID = nil
		fresh = append(fresh, s)
	}
	d.slots = slot.Merge(d.slots, fresh)
	return &DailyAvailability{ProviderID: providerID, Date: date, Slots: copySlots(d.slots)}, nil
}

func (r *MemoryRepository) SetSlotAvailability(_ context.Context, key SlotKey, available bool) error {
	d := r.day(key.ProviderID, key.Date, false)
	if d == nil {
		return ErrSlotNotFound
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	i := d.index(key.Time)
	if i < 0 {
		return ErrSlotNotFound
	}
	if d.slots[i].Booked {
		if available {
			return nil
		}
		return &SlotUnavailableError{Key: key, Reason: "slot is booked"}
	}
	d.slots[i].Available = available
	return nil
}

func (r *MemoryRepository) DeleteSlot(_ context.Context, key SlotKey) error {
	d := r.day(key.ProviderID, key.Date, false)
	if d == nil {
		return ErrSlotNotFound
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	i := d.index(key.Time)
	if i < 0 {
		return ErrSlotNotFound
	}
	if d.slots[i].Booked {
		return &SlotUnavailableError{Key: key, Reason: "slot is booked"}
	}
	d.slots = append(d.slots[:i], d.slots[i+1:]...)
	return nil
}

// claimLocked requires d.mu to be held.
func claimLocked(d *memDay, key SlotKey) (int, error) {
	if d == nil {
		return -1, &SlotUnavailableError{Key: key, Reason: "slot does not exist"}
	}
	i := d.index(key.Time)
	switch {
	case i < 0:
		return -1, &SlotUnavailableError{Key: key, Reason: "slot does not exist"}
	case d.slots[i].Booked:
		return -1, &SlotUnavailableError{Key: key, Reason: "slot is already booked"}
	case !d.slots[i].Available:
		return -1, &SlotUnavailableError{Key: key, Reason: "slot is not available"}
	}
	return i, nil
}

func (r *MemoryRepository) ClaimSlot(_ context.Context, key SlotKey, appt *Appointment) (*Appointment, error) {
	d := r.day(key.ProviderID, key.Date, false)
	if d == nil {
		return nil, &SlotUnavailableError{Key: key, Reason: "slot does not exist"}
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	i, err := claimLocked(d, key)
	if err != nil {
		return nil, err
	}

	stored := r.prepare(appt, key, d.slots[i].Minutes)

	r.mu.Lock()
	r.appointments[stored.ID] = stored
	r.mu.Unlock()

	id := stored.ID
	d.slots[i].Booked = true
	d.slots[i].AppointmentID = &id
	return stored.clone(), nil
}

func (r *MemoryRepository) prepare(appt *Appointment, key SlotKey, minutes int) *Appointment {
	stored := appt.clone()
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	stored.ProviderID = key.ProviderID
	stored.Date = key.Date
	stored.Time = key.Time
	stored.DurationMinutes = minutes
	now := r.now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	return stored
}

// cancelLocked requires r.mu to be held.
func (r *MemoryRepository) cancelLocked(id uuid.UUID, from AppointmentStatus, reason string) (*Appointment, error) {
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != from {
		return nil, ErrStaleAppointment
	}
	a.Status = StatusCancelled
	a.CancellationReason = &reason
	a.UpdatedAt = r.now().UTC()
	return a, nil
}

func releaseLocked(d *memDay, key SlotKey, id uuid.UUID) {
	if d == nil {
		return
	}
	i := d.index(key.Time)
	if i < 0 || d.slots[i].AppointmentID == nil || *d.slots[i].AppointmentID != id {
		return
	}
	d.slots[i].Booked = false
	d.slots[i].Available = true
	d.slots[i].AppointmentID = nil
}

func (r *MemoryRepository) ReleaseSlot(ctx context.Context, id uuid.UUID, from AppointmentStatus, reason string) (*Appointment, error) {
	current, err := r.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	key := current.Key()

	d := r.day(key.ProviderID, key.Date, false)
	if d != nil {
		d.mu.Lock()
		defer d.mu.Unlock()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	a, err := r.cancelLocked(id, from, reason)
	if err != nil {
		return nil, err
	}
	releaseLocked(d, key, id)
	return a.clone(), nil
}

func (r *MemoryRepository) Reschedule(ctx context.Context, oldID uuid.UUID, from AppointmentStatus, reason string, key SlotKey, next *Appointment) (*Appointment, error) {
	current, err := r.GetAppointmentByID(ctx, oldID)
	if err != nil {
		return nil, err
	}
	oldKey := current.Key()

	newDay := r.day(key.ProviderID, key.Date, false)
	if newDay == nil {
		return nil, &SlotUnavailableError{Key: key, Reason: "slot does not exist"}
	}
	oldDay := r.day(oldKey.ProviderID, oldKey.Date, false)

	for _, d := range lockOrder(oldKey, oldDay, key, newDay) {
		d.mu.Lock()
		defer d.mu.Unlock()
	}

	i, err := claimLocked(newDay, key)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.appointments[oldID]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if old.Status != from {
		return nil, ErrStaleAppointment
	}

	stored := r.prepare(next, key, newDay.slots[i].Minutes)
	r.appointments[stored.ID] = stored
	newID := stored.ID
	newDay.slots[i].Booked = true
	newDay.slots[i].AppointmentID = &newID

	if _, err := r.cancelLocked(oldID, from, reason); err != nil {
		return nil, err
	}
	releaseLocked(oldDay, oldKey, oldID)
	return stored.clone(), nil
}

// lockOrder returns the distinct days sorted by key so two reschedules never deadlock.
func lockOrder(ak SlotKey, a *memDay, bk SlotKey, b *memDay) []*memDay {
	if a == nil || a == b {
		return []*memDay{b}
	}
	ka, kb := ak.ProviderID.String()+ak.Date.Format(DateLayout), bk.ProviderID.String()+bk.Date.Format(DateLayout)
	if ka < kb {
		return []*memDay{a, b}
	}
	return []*memDay{b, a}
}

func (r *MemoryRepository) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != from {
		return nil, ErrStaleAppointment
	}
	a.Status = to
	a.UpdatedAt = r.now().UTC()
	return a.clone(), nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.ID = int64(len(r.events) + 1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.now().UTC()
	}
	r.events = append(r.events, ev)
	return nil
}
