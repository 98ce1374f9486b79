package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/slot"
)

type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgxPool interface {
	queryer
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PgRepository struct {
	pool pgxPool
	loc  *time.Location
}

// NewPgRepository stores dates as DATE columns and rebuilds them as midnight in loc.
func NewPgRepository(pool *pgxpool.Pool, loc *time.Location) *PgRepository {
	return newPgRepositoryWithDB(pool, loc)
}

func newPgRepositoryWithDB(pool pgxPool, loc *time.Location) *PgRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &PgRepository{pool: pool, loc: loc}
}

func (r *PgRepository) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func dateArg(d time.Time) string {
	return d.Format(DateLayout)
}

func (r *PgRepository) localDate(d time.Time) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, r.loc)
}

// Helpers

const appointmentColumns = `id, provider_id, patient_id, appt_date, slot_minute, duration_minutes,
	type, status, fee_cents, reason, COALESCE(cancellation_reason, ''),
	COALESCE(rescheduled_from::text, ''), created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	if email != "" {
		p.Email = &email
	}
	return &p, nil
}

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	var specialty string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&specialty,
		&p.ConsultationFeeCents,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}

	if specialty != "" {
		p.Specialty = &specialty
	}
	return &p, nil
}

func (r *PgRepository) scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a               Appointment
		date            time.Time
		minute          int
		apptType        string
		status          string
		cancelReason    string
		rescheduledFrom string
	)

	err := row.Scan(
		&a.ID,
		&a.ProviderID,
		&a.PatientID,
		&date,
		&minute,
		&a.DurationMinutes,
		&apptType,
		&status,
		&a.FeeCents,
		&a.Reason,
		&cancelReason,
		&rescheduledFrom,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Date = r.localDate(date)
	a.Time = slot.Clock(minute)
	a.Type = AppointmentType(apptType)
	a.Status = AppointmentStatus(status)
	if cancelReason != "" {
		a.CancellationReason = &cancelReason
	}
	if rescheduledFrom != "" {
		id, err := uuid.Parse(rescheduledFrom)
		if err != nil {
			return nil, fmt.Errorf("parse rescheduled_from: %w", err)
		}
		a.RescheduledFrom = &id
	}
	return &a, nil
}

func (r *PgRepository) scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, COALESCE(email, ''), created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, COALESCE(specialty, ''), consultation_fee_cents, created_at, updated_at
		FROM providers
		WHERE id = $1
	`, id)
	return scanProvider(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return r.scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY appt_date DESC, slot_minute DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return r.scanAppointments(rows)
}

func (r *PgRepository) ListAppointmentsByProvider(ctx context.Context, providerID uuid.UUID, date time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1 AND appt_date = $2
		ORDER BY slot_minute, created_at
	`, providerID, dateArg(date))
	if err != nil {
		return nil, fmt.Errorf("list appointments by provider: %w", err)
	}
	return r.scanAppointments(rows)
}

func querySlots(ctx context.Context, q queryer, providerID uuid.UUID, date time.Time) ([]slot.Slot, error) {
	rows, err := q.Query(ctx, `
		SELECT slot_minute, duration_minutes, is_available, is_booked, COALESCE(appointment_id::text, '')
		FROM availability_slots
		WHERE provider_id = $1 AND slot_date = $2
		ORDER BY slot_minute
	`, providerID, dateArg(date))
	if err != nil {
		return nil, fmt.Errorf("select slots: %w", err)
	}
	defer rows.Close()

	var result []slot.Slot
	for rows.Next() {
		var (
			s      slot.Slot
			minute int
			apptID string
		)
		if err := rows.Scan(&minute, &s.Minutes, &s.Available, &s.Booked, &apptID); err != nil {
			return nil, err
		}
		s.Time = slot.Clock(minute)
		if apptID != "" {
			id, err := uuid.Parse(apptID)
			if err != nil {
				return nil, fmt.Errorf("parse slot appointment_id: %w", err)
			}
			s.AppointmentID = &id
		}
		result = append(result, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) GetDay(ctx context.Context, providerID uuid.UUID, date time.Time) (*DailyAvailability, error) {
	var one int
	err := r.pool.QueryRow(ctx, `
		SELECT 1 FROM availability_days
		WHERE provider_id = $1 AND slot_date = $2
	`, providerID, dateArg(date)).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDayNotFound
		}
		return nil, fmt.Errorf("select availability day: %w", err)
	}

	slots, err := querySlots(ctx, r.pool, providerID, date)
	if err != nil {
		return nil, err
	}
	return &DailyAvailability{ProviderID: providerID, Date: date, Slots: slots}, nil
}

func (r *PgRepository) MergeSlots(ctx context.Context, providerID uuid.UUID, date time.Time, slots []slot.Slot) (*DailyAvailability, error) {
	var merged []slot.Slot
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO availability_days (provider_id, slot_date, created_at)
			VALUES ($1, $2, now())
			ON CONFLICT (provider_id, slot_date) DO NOTHING
		`, providerID, dateArg(date))
		if err != nil {
			return fmt.Errorf("insert availability day: %w", err)
		}

		for _, s := range slots {
			_, err := tx.Exec(ctx, `
				INSERT INTO availability_slots (provider_id, slot_date, slot_minute, duration_minutes, is_available, is_booked)
				VALUES ($1, $2, $3, $4, $5, false)
				ON CONFLICT (provider_id, slot_date, slot_minute) DO NOTHING
			`, providerID, dateArg(date), int(s.Time), s.Minutes, s.Available)
			if err != nil {
				return fmt.Errorf("insert slot %s: %w", s.Time, err)
			}
		}

		merged, err = querySlots(ctx, tx, providerID, date)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &DailyAvailability{ProviderID: providerID, Date: date, Slots: merged}, nil
}

// slotConflict explains why a guarded slot update touched no rows.
func (r *PgRepository) slotConflict(ctx context.Context, key SlotKey) (booked bool, err error) {
	err = r.pool.QueryRow(ctx, `
		SELECT is_booked FROM availability_slots
		WHERE provider_id = $1 AND slot_date = $2 AND slot_minute = $3
	`, key.ProviderID, dateArg(key.Date), int(key.Time)).Scan(&booked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrSlotNotFound
		}
		return false, fmt.Errorf("select slot: %w", err)
	}
	return booked, nil
}

func (r *PgRepository) SetSlotAvailability(ctx context.Context, key SlotKey, available bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE availability_slots
		SET is_available = $4
		WHERE provider_id = $1 AND slot_date = $2 AND slot_minute = $3
		  AND NOT is_booked
	`, key.ProviderID, dateArg(key.Date), int(key.Time), available)
	if err != nil {
		return fmt.Errorf("update slot availability: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	booked, err := r.slotConflict(ctx, key)
	if err != nil {
		return err
	}
	if booked && !available {
		return &SlotUnavailableError{Key: key, Reason: "slot is booked"}
	}
	return nil
}

func (r *PgRepository) DeleteSlot(ctx context.Context, key SlotKey) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM availability_slots
		WHERE provider_id = $1 AND slot_date = $2 AND slot_minute = $3
		  AND NOT is_booked
	`, key.ProviderID, dateArg(key.Date), int(key.Time))
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	if _, err := r.slotConflict(ctx, key); err != nil {
		return err
	}
	return &SlotUnavailableError{Key: key, Reason: "slot is booked"}
}

// claim flips an open slot to booked. The WHERE clause is the compare-and-swap
// that decides a race between concurrent bookings.
func claim(ctx context.Context, tx pgx.Tx, key SlotKey, apptID uuid.UUID) (int, error) {
	var minutes int
	err := tx.QueryRow(ctx, `
		UPDATE availability_slots
		SET is_booked = true, appointment_id = $4
		WHERE provider_id = $1 AND slot_date = $2 AND slot_minute = $3
		  AND is_available AND NOT is_booked
		RETURNING duration_minutes
	`, key.ProviderID, dateArg(key.Date), int(key.Time), apptID).Scan(&minutes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, &SlotUnavailableError{Key: key, Reason: "slot is not open"}
		}
		return 0, fmt.Errorf("claim slot: %w", err)
	}
	return minutes, nil
}

func (r *PgRepository) insertAppointment(ctx context.Context, tx pgx.Tx, a *Appointment) (*Appointment, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, provider_id, patient_id, appt_date, slot_minute, duration_minutes,
			type, status, fee_cents, reason, rescheduled_from, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		RETURNING `+appointmentColumns,
		a.ID, a.ProviderID, a.PatientID, dateArg(a.Date), int(a.Time), a.DurationMinutes,
		string(a.Type), string(a.Status), a.FeeCents, a.Reason, a.RescheduledFrom)
	created, err := r.scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return created, nil
}

func (r *PgRepository) cancel(ctx context.Context, tx pgx.Tx, id uuid.UUID, from AppointmentStatus, reason string) (*Appointment, error) {
	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    cancellation_reason = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = $2
		RETURNING `+appointmentColumns, id, string(from), reason)
	a, err := r.scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrStaleAppointment
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE availability_slots
		SET is_booked = false, is_available = true, appointment_id = NULL
		WHERE appointment_id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("release slot: %w", err)
	}
	return a, nil
}

func (r *PgRepository) ClaimSlot(ctx context.Context, key SlotKey, appt *Appointment) (*Appointment, error) {
	next := appt.clone()
	if next.ID == uuid.Nil {
		next.ID = uuid.New()
	}
	next.ProviderID, next.Date, next.Time = key.ProviderID, key.Date, key.Time

	var created *Appointment
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		minutes, err := claim(ctx, tx, key, next.ID)
		if err != nil {
			return err
		}
		next.DurationMinutes = minutes
		created, err = r.insertAppointment(ctx, tx, next)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) ReleaseSlot(ctx context.Context, id uuid.UUID, from AppointmentStatus, reason string) (*Appointment, error) {
	var cancelled *Appointment
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		cancelled, err = r.cancel(ctx, tx, id, from, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

func (r *PgRepository) Reschedule(ctx context.Context, oldID uuid.UUID, from AppointmentStatus, reason string, key SlotKey, next *Appointment) (*Appointment, error) {
	n := next.clone()
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	n.ProviderID, n.Date, n.Time = key.ProviderID, key.Date, key.Time

	var created *Appointment
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		minutes, err := claim(ctx, tx, key, n.ID)
		if err != nil {
			return err
		}
		n.DurationMinutes = minutes
		if created, err = r.insertAppointment(ctx, tx, n); err != nil {
			return err
		}
		_, err = r.cancel(ctx, tx, oldID, from, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns, id, string(to), string(from))

	a, err := r.scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrStaleAppointment
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}
	return a, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
