package template

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/slot"
)

// Service applies the template edit operations and persists the result.
// Edits are last-writer-wins; templates are owned by a single provider.
type Service struct {
	repo           Repository
	defaultMinutes int
	now            func() time.Time
}

func NewService(repo Repository, defaultMinutes int) *Service {
	if defaultMinutes <= 0 {
		defaultMinutes = DefaultSlotMinutes
	}
	return &Service{repo: repo, defaultMinutes: defaultMinutes, now: time.Now}
}

// Get returns the provider's template, or an all-disabled one if none was saved yet.
func (s *Service) Get(ctx context.Context, providerID uuid.UUID) (*WeeklyTemplate, error) {
	t, err := s.repo.GetTemplate(ctx, providerID)
	if err != nil {
		if errors.Is(err, ErrTemplateNotFound) {
			return New(providerID, s.defaultMinutes), nil
		}
		return nil, fmt.Errorf("load weekly template: %w", err)
	}
	return t, nil
}

func (s *Service) SetDay(ctx context.Context, providerID uuid.UUID, day time.Weekday, enabled bool, ranges []slot.Range) (*WeeklyTemplate, error) {
	return s.edit(ctx, providerID, func(t *WeeklyTemplate) (*WeeklyTemplate, error) {
		return t.WithDay(day, enabled, ranges)
	})
}

func (s *Service) ToggleDay(ctx context.Context, providerID uuid.UUID, day time.Weekday, enabled bool) (*WeeklyTemplate, error) {
	return s.edit(ctx, providerID, func(t *WeeklyTemplate) (*WeeklyTemplate, error) {
		return t.Toggle(day, enabled)
	})
}

func (s *Service) AddRange(ctx context.Context, providerID uuid.UUID, day time.Weekday, r slot.Range) (*WeeklyTemplate, error) {
	return s.edit(ctx, providerID, func(t *WeeklyTemplate) (*WeeklyTemplate, error) {
		return t.AddRange(day, r)
	})
}

func (s *Service) RemoveRange(ctx context.Context, providerID uuid.UUID, day time.Weekday, index int) (*WeeklyTemplate, error) {
	return s.edit(ctx, providerID, func(t *WeeklyTemplate) (*WeeklyTemplate, error) {
		return t.RemoveRange(day, index)
	})
}

func (s *Service) SetSlotMinutes(ctx context.Context, providerID uuid.UUID, minutes int) (*WeeklyTemplate, error) {
	return s.edit(ctx, providerID, func(t *WeeklyTemplate) (*WeeklyTemplate, error) {
		return t.WithSlotMinutes(minutes)
	})
}

func (s *Service) edit(ctx context.Context, providerID uuid.UUID, fn func(*WeeklyTemplate) (*WeeklyTemplate, error)) (*WeeklyTemplate, error) {
	current, err := s.Get(ctx, providerID)
	if err != nil {
		return nil, err
	}
	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	next.UpdatedAt = s.now().UTC()
	if err := s.repo.SaveTemplate(ctx, next); err != nil {
		return nil, fmt.Errorf("save weekly template: %w", err)
	}
	return next, nil
}
