package slot

import (
	"errors"
	"fmt"
	"iter"
	"sort"

	"github.com/google/uuid"
)

var ErrInvalidRange = errors.New("invalid time range")

// InvalidRangeError reports a range or duration that cannot produce slots.
type InvalidRangeError struct {
	Range   Range
	Minutes int
	Reason  string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid time range %s (%d min): %s", e.Range, e.Minutes, e.Reason)
}

func (e *InvalidRangeError) Is(target error) bool {
	return target == ErrInvalidRange
}

// Range is a [Start, End) interval within one day.
type Range struct {
	Start Clock `json:"start"`
	End   Clock `json:"end"`
}

func (r Range) String() string {
	return r.Start.String() + "-" + r.End.String()
}

func (r Range) Validate() error {
	if r.Start < 0 || r.End > EndOfDay {
		return &InvalidRangeError{Range: r, Reason: "outside the day"}
	}
	if r.Start >= r.End {
		return &InvalidRangeError{Range: r, Reason: "start must be before end"}
	}
	return nil
}

// Overlaps treats ranges as half-open, so 09:00-10:00 and 10:00-11:00 do not overlap.
func (r Range) Overlaps(o Range) bool {
	return r.Start < o.End && o.Start < r.End
}

// Generate returns the slot start times in r stepping by minutes. A trailing
// interval shorter than minutes is dropped. The sequence can be ranged over
// any number of times.
func Generate(r Range, minutes int) (iter.Seq[Clock], error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if minutes <= 0 {
		return nil, &InvalidRangeError{Range: r, Minutes: minutes, Reason: "duration must be positive"}
	}

	return func(yield func(Clock) bool) {
		for cur := r.Start; cur.Add(minutes) <= r.End; cur = cur.Add(minutes) {
			if !yield(cur) {
				return
			}
		}
	}, nil
}

// Slot is one bookable unit of a provider's day.
type Slot struct {
	Time          Clock      `json:"time"`
	Minutes       int        `json:"minutes"`
	Available     bool       `json:"is_available"`
	Booked        bool       `json:"is_booked"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
}

func (s Slot) Open() bool {
	return s.Available && !s.Booked
}

// OpenSlots materializes a generated sequence into open, unbooked slots.
func OpenSlots(times iter.Seq[Clock], minutes int) []Slot {
	var out []Slot
	for t := range times {
		out = append(out, Slot{Time: t, Minutes: minutes, Available: true})
	}
	return out
}

// Merge adds generated slots to existing by time key. When a time already
// exists the existing slot wins unchanged, so a booking is never overwritten.
// The result is sorted by time; inputs are not modified.
func Merge(existing, generated []Slot) []Slot {
	seen := make(map[Clock]struct{}, len(existing))
	out := make([]Slot, 0, len(existing)+len(generated))
	for _, s := range existing {
		seen[s.Time] = struct{}{}
		out = append(out, s)
	}
	for _, s := range generated {
		if _, ok := seen[s.Time]; ok {
			continue
		}
		seen[s.Time] = struct{}{}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}
