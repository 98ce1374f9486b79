package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/slot"
)

var apptCols = []string{
	"id", "provider_id", "patient_id", "appt_date", "slot_minute", "duration_minutes",
	"type", "status", "fee_cents", "reason", "cancellation_reason",
	"rescheduled_from", "created_at", "updated_at",
}

func newMockRepo(t *testing.T) (*PgRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return newPgRepositoryWithDB(mock, time.UTC), mock
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestPgRepository_ClaimSlot(t *testing.T) {
	repo, mock := newMockRepo(t)
	providerID, patientID := uuid.New(), uuid.New()
	key := SlotKey{ProviderID: providerID, Date: apptDay, Time: slot.NewClock(10, 0)}
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE availability_slots").
		WithArgs(providerID, "2025-03-12", 600, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"duration_minutes"}).AddRow(45))
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(anyArgs(11)...).
		WillReturnRows(pgxmock.NewRows(apptCols).AddRow(
			uuid.New(), providerID, patientID, apptDay, 600, 45,
			"online", "scheduled", int64(250000), "checkup", "", "", now, now,
		))
	mock.ExpectCommit()

	got, err := repo.ClaimSlot(context.Background(), key, &Appointment{
		PatientID: patientID,
		Type:      TypeOnline,
		Status:    StatusScheduled,
		FeeCents:  250000,
		Reason:    "checkup",
	})
	require.NoError(t, err)
	assert.Equal(t, 45, got.DurationMinutes)
	assert.Equal(t, slot.NewClock(10, 0), got.Time)
	assert.Equal(t, StatusScheduled, got.Status)
	assert.Equal(t, TypeOnline, got.Type)
	assert.Nil(t, got.CancellationReason)
	assert.Nil(t, got.RescheduledFrom)
	assert.Equal(t, apptDay, got.Date)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepository_ClaimSlotLostRace(t *testing.T) {
	repo, mock := newMockRepo(t)
	key := SlotKey{ProviderID: uuid.New(), Date: apptDay, Time: slot.NewClock(10, 0)}

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE availability_slots").
		WithArgs(key.ProviderID, "2025-03-12", 600, pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.ClaimSlot(context.Background(), key, &Appointment{Status: StatusScheduled})
	var unavailable *SlotUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, key, unavailable.Key)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepository_ReleaseSlot(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id, "confirmed", "patient request").
		WillReturnRows(pgxmock.NewRows(apptCols).AddRow(
			id, uuid.New(), uuid.New(), apptDay, 600, 30,
			"in-person", "cancelled", int64(0), "", "patient request", "", now, now,
		))
	mock.ExpectExec("UPDATE availability_slots").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	got, err := repo.ReleaseSlot(context.Background(), id, StatusConfirmed, "patient request")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	require.NotNil(t, got.CancellationReason)
	assert.Equal(t, "patient request", *got.CancellationReason)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepository_ReleaseSlotStale(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id, "scheduled", "reason").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.ReleaseSlot(context.Background(), id, StatusScheduled, "reason")
	assert.ErrorIs(t, err, ErrStaleAppointment)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepository_RescheduleRollsBackWhenTargetTaken(t *testing.T) {
	repo, mock := newMockRepo(t)
	oldID := uuid.New()
	key := SlotKey{ProviderID: uuid.New(), Date: apptDay, Time: slot.NewClock(15, 0)}

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE availability_slots").
		WithArgs(key.ProviderID, "2025-03-12", 900, pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Reschedule(context.Background(), oldID, StatusScheduled, "rescheduled", key, &Appointment{Status: StatusScheduled})
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepository_Reschedule(t *testing.T) {
	repo, mock := newMockRepo(t)
	oldID, newID := uuid.New(), uuid.New()
	providerID, patientID := uuid.New(), uuid.New()
	key := SlotKey{ProviderID: providerID, Date: apptDay, Time: slot.NewClock(15, 0)}
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE availability_slots").
		WithArgs(providerID, "2025-03-12", 900, newID).
		WillReturnRows(pgxmock.NewRows([]string{"duration_minutes"}).AddRow(30))
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(anyArgs(11)...).
		WillReturnRows(pgxmock.NewRows(apptCols).AddRow(
			newID, providerID, patientID, apptDay, 900, 30,
			"online", "scheduled", int64(0), "", "", oldID.String(), now, now,
		))
	mock.ExpectQuery("UPDATE appointments").
		WithArgs(oldID, "scheduled", "rescheduled to 2025-03-12 15:00").
		WillReturnRows(pgxmock.NewRows(apptCols).AddRow(
			oldID, providerID, patientID, apptDay, 600, 30,
			"online", "cancelled", int64(0), "", "rescheduled to 2025-03-12 15:00", "", now, now,
		))
	mock.ExpectExec("UPDATE availability_slots").
		WithArgs(oldID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	got, err := repo.Reschedule(context.Background(), oldID, StatusScheduled, "rescheduled to 2025-03-12 15:00", key,
		&Appointment{ID: newID, PatientID: patientID, Type: TypeOnline, Status: StatusScheduled, RescheduledFrom: &oldID})
	require.NoError(t, err)
	assert.Equal(t, newID, got.ID)
	require.NotNil(t, got.RescheduledFrom)
	assert.Equal(t, oldID, *got.RescheduledFrom)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepository_GetDay(t *testing.T) {
	repo, mock := newMockRepo(t)
	providerID, apptID := uuid.New(), uuid.New()

	mock.ExpectQuery("FROM availability_days").
		WithArgs(providerID, "2025-03-12").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery("FROM availability_slots").
		WithArgs(providerID, "2025-03-12").
		WillReturnRows(pgxmock.NewRows([]string{"slot_minute", "duration_minutes", "is_available", "is_booked", "appointment_id"}).
			AddRow(540, 30, true, false, "").
			AddRow(570, 30, true, true, apptID.String()))

	d, err := repo.GetDay(context.Background(), providerID, apptDay)
	require.NoError(t, err)
	require.Len(t, d.Slots, 2)
	assert.True(t, d.Slots[0].Open())
	assert.Nil(t, d.Slots[0].AppointmentID)
	assert.Equal(t, slot.NewClock(9, 30), d.Slots[1].Time)
	require.NotNil(t, d.Slots[1].AppointmentID)
	assert.Equal(t, apptID, *d.Slots[1].AppointmentID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepository_MergeSlotsKeepsExisting(t *testing.T) {
	repo, mock := newMockRepo(t)
	providerID, apptID := uuid.New(), uuid.New()
	generated := []slot.Slot{
		{Time: slot.NewClock(9, 0), Minutes: 30, Available: true},
		{Time: slot.NewClock(9, 30), Minutes: 30, Available: true},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO availability_days").
		WithArgs(providerID, "2025-03-12").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec("INSERT INTO availability_slots").
		WithArgs(providerID, "2025-03-12", 540, 30, true).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec("INSERT INTO availability_slots").
		WithArgs(providerID, "2025-03-12", 570, 30, true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("FROM availability_slots").
		WithArgs(providerID, "2025-03-12").
		WillReturnRows(pgxmock.NewRows([]string{"slot_minute", "duration_minutes", "is_available", "is_booked", "appointment_id"}).
			AddRow(540, 45, true, true, apptID.String()).
			AddRow(570, 30, true, false, ""))
	mock.ExpectCommit()

	d, err := repo.MergeSlots(context.Background(), providerID, apptDay, generated)
	require.NoError(t, err)
	require.Len(t, d.Slots, 2)
	assert.True(t, d.Slots[0].Booked)
	assert.Equal(t, 45, d.Slots[0].Minutes)
	require.NotNil(t, d.Slots[0].AppointmentID)
	assert.Equal(t, apptID, *d.Slots[0].AppointmentID)
	assert.True(t, d.Slots[1].Open())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepository_MergeSlotsRollsBackOnError(t *testing.T) {
	repo, mock := newMockRepo(t)
	providerID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO availability_days").
		WithArgs(providerID, "2025-03-12").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO availability_slots").
		WithArgs(anyArgs(5)...).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := repo.MergeSlots(context.Background(), providerID, apptDay,
		[]slot.Slot{{Time: slot.NewClock(9, 0), Minutes: 30, Available: true}})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepository_GetDayNotMaterialized(t *testing.T) {
	repo, mock := newMockRepo(t)
	providerID := uuid.New()

	mock.ExpectQuery("FROM availability_days").
		WithArgs(providerID, "2025-03-12").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetDay(context.Background(), providerID, apptDay)
	assert.ErrorIs(t, err, ErrDayNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepository_SetSlotAvailabilityOnBookedSlot(t *testing.T) {
	repo, mock := newMockRepo(t)
	key := SlotKey{ProviderID: uuid.New(), Date: apptDay, Time: slot.NewClock(10, 0)}

	mock.ExpectExec("UPDATE availability_slots").
		WithArgs(key.ProviderID, "2025-03-12", 600, false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT is_booked FROM availability_slots").
		WithArgs(key.ProviderID, "2025-03-12", 600).
		WillReturnRows(pgxmock.NewRows([]string{"is_booked"}).AddRow(true))

	err := repo.SetSlotAvailability(context.Background(), key, false)
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepository_UpdateAppointmentStatusStale(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id, "confirmed", "scheduled").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.UpdateAppointmentStatus(context.Background(), id, StatusScheduled, StatusConfirmed)
	assert.True(t, errors.Is(err, ErrStaleAppointment))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepository_GetProviderByID(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery("FROM providers").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "specialty", "consultation_fee_cents", "created_at", "updated_at"}).
			AddRow(id, "Dr. Silva", "", int64(150000), now, now))

	p, err := repo.GetProviderByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(150000), p.ConsultationFeeCents)
	assert.Nil(t, p.Specialty)
	assert.NoError(t, mock.ExpectationsWereMet())
}
