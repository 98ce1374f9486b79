package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/slot"
	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/template"
)

// ListAvailability returns the provider's slots for date. A date that was never
// materialized is built from the weekly template first.
func (s *Service) ListAvailability(ctx context.Context, providerID uuid.UUID, date time.Time) (*DailyAvailability, error) {
	if err := s.CheckProvider(ctx, providerID); err != nil {
		return nil, err
	}
	return s.ensureDay(ctx, providerID, s.dateOf(date))
}

// GenerateSlots merges slots for r into the day. minutes of zero uses the
// provider's template duration. Existing slots are never overwritten.
func (s *Service) GenerateSlots(ctx context.Context, providerID uuid.UUID, date time.Time, r slot.Range, minutes int) (*DailyAvailability, error) {
	if err := s.CheckProvider(ctx, providerID); err != nil {
		return nil, err
	}
	date = s.dateOf(date)

	if minutes == 0 {
		tpl, err := s.template(ctx, providerID)
		if err != nil {
			return nil, err
		}
		minutes = tpl.SlotMinutes
	}

	times, err := slot.Generate(r, minutes)
	if err != nil {
		return nil, err
	}

	if _, err := s.ensureDay(ctx, providerID, date); err != nil {
		return nil, err
	}

	generated := slot.OpenSlots(times, minutes)
	day, err := s.repo.MergeSlots(ctx, providerID, date, generated)
	if err != nil {
		return nil, fmt.Errorf("merge generated slots: %w", err)
	}
	s.metrics.ObserveSlotsGenerated(len(generated))
	return day, nil
}

func (s *Service) SetSlotAvailability(ctx context.Context, providerID uuid.UUID, date time.Time, t slot.Clock, available bool) error {
	key := SlotKey{ProviderID: providerID, Date: s.dateOf(date), Time: t}
	if _, err := s.ensureDay(ctx, providerID, key.Date); err != nil {
		return err
	}
	if err := s.repo.SetSlotAvailability(ctx, key, available); err != nil {
		if errors.Is(err, ErrSlotNotFound) || errors.Is(err, ErrSlotUnavailable) {
			return err
		}
		return fmt.Errorf("set slot availability: %w", err)
	}
	return nil
}

// RemoveSlot deletes an unbooked slot from the day.
func (s *Service) RemoveSlot(ctx context.Context, providerID uuid.UUID, date time.Time, t slot.Clock) error {
	key := SlotKey{ProviderID: providerID, Date: s.dateOf(date), Time: t}
	if _, err := s.ensureDay(ctx, providerID, key.Date); err != nil {
		return err
	}
	if err := s.repo.DeleteSlot(ctx, key); err != nil {
		if errors.Is(err, ErrSlotNotFound) || errors.Is(err, ErrSlotUnavailable) {
			return err
		}
		return fmt.Errorf("remove slot: %w", err)
	}
	return nil
}

// CopyDay merges the slot times of from into to as open slots. Bookings are not copied.
func (s *Service) CopyDay(ctx context.Context, providerID uuid.UUID, from, to time.Time) (*DailyAvailability, error) {
	if err := s.CheckProvider(ctx, providerID); err != nil {
		return nil, err
	}

	src, err := s.ensureDay(ctx, providerID, s.dateOf(from))
	if err != nil {
		return nil, err
	}
	to = s.dateOf(to)
	if _, err := s.ensureDay(ctx, providerID, to); err != nil {
		return nil, err
	}

	fresh := make([]slot.Slot, 0, len(src.Slots))
	for _, sl := range src.Slots {
		fresh = append(fresh, slot.Slot{Time: sl.Time, Minutes: sl.Minutes, Available: true})
	}
	day, err := s.repo.MergeSlots(ctx, providerID, to, fresh)
	if err != nil {
		return nil, fmt.Errorf("copy slots: %w", err)
	}
	return day, nil
}

// CheckProvider returns ErrProviderNotFound when no provider has the given id.
func (s *Service) CheckProvider(ctx context.Context, providerID uuid.UUID) error {
	if _, err := s.repo.GetProviderByID(ctx, providerID); err != nil {
		if errors.Is(err, ErrProviderNotFound) {
			return err
		}
		return fmt.Errorf("load provider: %w", err)
	}
	return nil
}

// ensureDay returns the stored day or materializes it from the template. A
// disabled weekday yields an empty, unstored day so that enabling it later still applies.
func (s *Service) ensureDay(ctx context.Context, providerID uuid.UUID, date time.Time) (*DailyAvailability, error) {
	day, err := s.repo.GetDay(ctx, providerID, date)
	if err == nil {
		return day, nil
	}
	if !errors.Is(err, ErrDayNotFound) {
		return nil, fmt.Errorf("load availability: %w", err)
	}

	tpl, err := s.template(ctx, providerID)
	if err != nil {
		return nil, err
	}

	var slots []slot.Slot
	for _, r := range tpl.RangesFor(date) {
		times, err := slot.Generate(r, tpl.SlotMinutes)
		if err != nil {
			return nil, fmt.Errorf("generate %s: %w", r, err)
		}
		slots = slot.Merge(slots, slot.OpenSlots(times, tpl.SlotMinutes))
	}
	if len(slots) == 0 {
		return &DailyAvailability{ProviderID: providerID, Date: date}, nil
	}

	day, err = s.repo.MergeSlots(ctx, providerID, date, slots)
	if err != nil {
		return nil, fmt.Errorf("materialize availability: %w", err)
	}
	s.metrics.ObserveSlotsGenerated(len(slots))
	s.logger.Debug().
		Str("provider_id", providerID.String()).
		Str("date", date.Format(DateLayout)).
		Int("slots", len(slots)).
		Msg("materialized availability from template")
	return day, nil
}

func (s *Service) template(ctx context.Context, providerID uuid.UUID) (*template.WeeklyTemplate, error) {
	if s.templates == nil {
		return template.New(providerID, s.cfg.DefaultSlotMinutes), nil
	}
	tpl, err := s.templates.Get(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("load weekly template: %w", err)
	}
	return tpl, nil
}
