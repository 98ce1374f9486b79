// Package template holds a provider's recurring weekly availability. A template
// never books anything; it is materialized into per-date slots on demand.
package template

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/slot"
)

const DefaultSlotMinutes = 30

var (
	ErrOverlappingRange = errors.New("time range overlaps an existing range")
	ErrRangeIndex       = errors.New("range index out of bounds")
	ErrInvalidDay       = errors.New("invalid day of week")
	ErrTemplateNotFound = errors.New("weekly template not found")
)

// OverlappingRangeError is returned when a range collides with another one on the same day.
type OverlappingRangeError struct {
	Day      time.Weekday
	Range    slot.Range
	Existing slot.Range
}

func (e *OverlappingRangeError) Error() string {
	return fmt.Sprintf("%s: range %s overlaps %s", e.Day, e.Range, e.Existing)
}

func (e *OverlappingRangeError) Is(target error) bool {
	return target == ErrOverlappingRange
}

// Day is the availability specification for one weekday.
type Day struct {
	Enabled bool         `json:"enabled"`
	Ranges  []slot.Range `json:"ranges"`
}

func (d Day) clone() Day {
	out := Day{Enabled: d.Enabled}
	if len(d.Ranges) > 0 {
		out.Ranges = append([]slot.Range(nil), d.Ranges...)
	}
	return out
}

// WeeklyTemplate is immutable: every edit returns a new value.
type WeeklyTemplate struct {
	ProviderID  uuid.UUID
	SlotMinutes int
	UpdatedAt   time.Time
	days        [7]Day
}

// New returns an all-disabled template.
func New(providerID uuid.UUID, slotMinutes int) *WeeklyTemplate {
	if slotMinutes <= 0 {
		slotMinutes = DefaultSlotMinutes
	}
	return &WeeklyTemplate{ProviderID: providerID, SlotMinutes: slotMinutes}
}

// FromDays rebuilds a template from stored days, re-validating every day.
func FromDays(providerID uuid.UUID, slotMinutes int, days [7]Day, updatedAt time.Time) (*WeeklyTemplate, error) {
	t := New(providerID, slotMinutes)
	t.UpdatedAt = updatedAt
	for i, d := range days {
		norm, err := normalize(time.Weekday(i), d.Ranges)
		if err != nil {
			return nil, err
		}
		t.days[i] = Day{Enabled: d.Enabled, Ranges: norm}
	}
	return t, nil
}

func (t *WeeklyTemplate) Day(day time.Weekday) Day {
	if !validDay(day) {
		return Day{}
	}
	return t.days[day].clone()
}

func (t *WeeklyTemplate) Days() [7]Day {
	var out [7]Day
	for i := range t.days {
		out[i] = t.days[i].clone()
	}
	return out
}

// RangesFor returns the ranges that apply on date, or nil when that weekday is disabled.
func (t *WeeklyTemplate) RangesFor(date time.Time) []slot.Range {
	d := t.days[date.Weekday()]
	if !d.Enabled {
		return nil
	}
	return d.clone().Ranges
}

func (t *WeeklyTemplate) with(day time.Weekday, d Day) *WeeklyTemplate {
	next := *t
	next.days = t.Days()
	next.days[day] = d
	return &next
}

// WithDay replaces a day after validating its ranges.
func (t *WeeklyTemplate) WithDay(day time.Weekday, enabled bool, ranges []slot.Range) (*WeeklyTemplate, error) {
	if !validDay(day) {
		return nil, ErrInvalidDay
	}
	norm, err := normalize(day, ranges)
	if err != nil {
		return nil, err
	}
	return t.with(day, Day{Enabled: enabled, Ranges: norm}), nil
}

func (t *WeeklyTemplate) Toggle(day time.Weekday, enabled bool) (*WeeklyTemplate, error) {
	if !validDay(day) {
		return nil, ErrInvalidDay
	}
	d := t.days[day].clone()
	d.Enabled = enabled
	return t.with(day, d), nil
}

func (t *WeeklyTemplate) AddRange(day time.Weekday, r slot.Range) (*WeeklyTemplate, error) {
	if !validDay(day) {
		return nil, ErrInvalidDay
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	d := t.days[day].clone()
	for _, existing := range d.Ranges {
		if existing.Overlaps(r) {
			return nil, &OverlappingRangeError{Day: day, Range: r, Existing: existing}
		}
	}
	d.Ranges = append(d.Ranges, r)
	sortRanges(d.Ranges)
	return t.with(day, d), nil
}

func (t *WeeklyTemplate) RemoveRange(day time.Weekday, index int) (*WeeklyTemplate, error) {
	if !validDay(day) {
		return nil, ErrInvalidDay
	}
	d := t.days[day].clone()
	if index < 0 || index >= len(d.Ranges) {
		return nil, fmt.Errorf("%w: %s has %d ranges, got index %d", ErrRangeIndex, day, len(d.Ranges), index)
	}
	d.Ranges = append(d.Ranges[:index], d.Ranges[index+1:]...)
	return t.with(day, d), nil
}

func (t *WeeklyTemplate) WithSlotMinutes(minutes int) (*WeeklyTemplate, error) {
	if minutes <= 0 {
		return nil, &slot.InvalidRangeError{Minutes: minutes, Reason: "duration must be positive"}
	}
	next := *t
	next.days = t.Days()
	next.SlotMinutes = minutes
	return &next, nil
}

func normalize(day time.Weekday, ranges []slot.Range) ([]slot.Range, error) {
	if len(ranges) == 0 {
		return nil, nil
	}
	out := append([]slot.Range(nil), ranges...)
	for _, r := range out {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	sortRanges(out)
	for i := 1; i < len(out); i++ {
		if out[i-1].Overlaps(out[i]) {
			return nil, &OverlappingRangeError{Day: day, Range: out[i], Existing: out[i-1]}
		}
	}
	return out, nil
}

func sortRanges(rs []slot.Range) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].Start < rs[j].Start })
}

func validDay(day time.Weekday) bool {
	return day >= time.Sunday && day <= time.Saturday
}

// ParseDay accepts a weekday name ("monday", "Mon") or its number (0 = Sunday).
func ParseDay(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) == 1 && s[0] >= '0' && s[0] <= '6' {
		return time.Weekday(s[0] - '0'), nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || (len(s) == 3 && strings.HasPrefix(name, s)) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidDay, s)
}
