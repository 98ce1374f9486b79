package template

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/slot"
)

func rng(sh, sm, eh, em int) slot.Range {
	return slot.Range{Start: slot.NewClock(sh, sm), End: slot.NewClock(eh, em)}
}

func TestAddRange_RejectsOverlap(t *testing.T) {
	tpl := New(uuid.New(), 30)

	tpl, err := tpl.AddRange(time.Monday, rng(9, 0, 12, 0))
	require.NoError(t, err)
	tpl, err = tpl.AddRange(time.Monday, rng(13, 0, 17, 0))
	require.NoError(t, err)

	_, err = tpl.AddRange(time.Monday, rng(11, 30, 13, 30))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOverlappingRange))

	var overlap *OverlappingRangeError
	require.True(t, errors.As(err, &overlap))
	assert.Equal(t, time.Monday, overlap.Day)

	// touching ranges are fine
	tpl, err = tpl.AddRange(time.Monday, rng(12, 0, 13, 0))
	require.NoError(t, err)
	assert.Len(t, tpl.Day(time.Monday).Ranges, 3)
	assert.Equal(t, slot.NewClock(12, 0), tpl.Day(time.Monday).Ranges[1].Start)
}

func TestAddRange_InvalidRange(t *testing.T) {
	_, err := New(uuid.New(), 30).AddRange(time.Tuesday, rng(10, 0, 9, 0))
	assert.True(t, errors.Is(err, slot.ErrInvalidRange))
}

func TestTemplateIsImmutable(t *testing.T) {
	base := New(uuid.New(), 30)
	edited, err := base.AddRange(time.Friday, rng(9, 0, 10, 0))
	require.NoError(t, err)
	toggled, err := edited.Toggle(time.Friday, true)
	require.NoError(t, err)

	assert.Empty(t, base.Day(time.Friday).Ranges)
	assert.False(t, edited.Day(time.Friday).Enabled)
	assert.True(t, toggled.Day(time.Friday).Enabled)

	day := toggled.Day(time.Friday)
	day.Ranges[0] = rng(1, 0, 2, 0)
	assert.Equal(t, rng(9, 0, 10, 0), toggled.Day(time.Friday).Ranges[0])
}

func TestRemoveRange(t *testing.T) {
	tpl, err := New(uuid.New(), 30).WithDay(time.Wednesday, true, []slot.Range{rng(14, 0, 16, 0), rng(8, 0, 10, 0)})
	require.NoError(t, err)

	tpl, err = tpl.RemoveRange(time.Wednesday, 0)
	require.NoError(t, err)
	assert.Equal(t, []slot.Range{rng(14, 0, 16, 0)}, tpl.Day(time.Wednesday).Ranges)

	_, err = tpl.RemoveRange(time.Wednesday, 3)
	assert.True(t, errors.Is(err, ErrRangeIndex))
}

func TestWithDay_RejectsOverlappingInput(t *testing.T) {
	_, err := New(uuid.New(), 30).WithDay(time.Thursday, true, []slot.Range{rng(9, 0, 11, 0), rng(10, 0, 12, 0)})
	assert.True(t, errors.Is(err, ErrOverlappingRange))
}

func TestRangesFor(t *testing.T) {
	tpl, err := New(uuid.New(), 30).WithDay(time.Monday, true, []slot.Range{rng(9, 0, 12, 0)})
	require.NoError(t, err)

	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	assert.Len(t, tpl.RangesFor(monday), 1)
	assert.Nil(t, tpl.RangesFor(monday.AddDate(0, 0, 1)))

	disabled, err := tpl.Toggle(time.Monday, false)
	require.NoError(t, err)
	assert.Nil(t, disabled.RangesFor(monday))
}

func TestParseDay(t *testing.T) {
	for in, want := range map[string]time.Weekday{
		"monday": time.Monday,
		"Sun":    time.Sunday,
		"6":      time.Saturday,
		" FRI ":  time.Friday,
	} {
		got, err := ParseDay(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDay("someday")
	assert.True(t, errors.Is(err, ErrInvalidDay))
}

func TestService_EditsPersist(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	svc := NewService(repo, 20)
	providerID := uuid.New()

	tpl, err := svc.Get(ctx, providerID)
	require.NoError(t, err)
	assert.Equal(t, 20, tpl.SlotMinutes)

	_, err = svc.SetDay(ctx, providerID, time.Monday, true, []slot.Range{rng(9, 0, 12, 0)})
	require.NoError(t, err)
	_, err = svc.AddRange(ctx, providerID, time.Monday, rng(13, 0, 15, 0))
	require.NoError(t, err)
	_, err = svc.AddRange(ctx, providerID, time.Monday, rng(14, 0, 16, 0))
	require.True(t, errors.Is(err, ErrOverlappingRange))

	stored, err := repo.GetTemplate(ctx, providerID)
	require.NoError(t, err)
	assert.True(t, stored.Day(time.Monday).Enabled)
	assert.Len(t, stored.Day(time.Monday).Ranges, 2)
	assert.False(t, stored.UpdatedAt.IsZero())

	_, err = svc.ToggleDay(ctx, providerID, time.Monday, false)
	require.NoError(t, err)
	_, err = svc.RemoveRange(ctx, providerID, time.Monday, 1)
	require.NoError(t, err)
	_, err = svc.SetSlotMinutes(ctx, providerID, 45)
	require.NoError(t, err)

	stored, err = repo.GetTemplate(ctx, providerID)
	require.NoError(t, err)
	assert.False(t, stored.Day(time.Monday).Enabled)
	assert.Len(t, stored.Day(time.Monday).Ranges, 1)
	assert.Equal(t, 45, stored.SlotMinutes)
}
