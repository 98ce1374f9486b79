package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Action string

const (
	ActionConfirm  Action = "confirm"
	ActionComplete Action = "complete"
	ActionCancel   Action = "cancel"
	ActionNoShow   Action = "mark no-show"
)

// Transition is the appointment state machine. It only decides the next status;
// callers persist it with a compare-and-swap on the observed status.
//
//	scheduled           --confirm-->  confirmed
//	scheduled|confirmed --complete--> completed   (start <= now)
//	scheduled|confirmed --cancel-->   cancelled   (start > now)
//	scheduled|confirmed --no-show-->  no_show     (end <= now)
func Transition(a *Appointment, action Action, now time.Time) (AppointmentStatus, error) {
	from := a.Status
	if from.Terminal() {
		return "", &TerminalStateError{ID: a.ID, Status: from}
	}
	if !from.Active() {
		return "", guard(a.ID, action, from, "unknown status")
	}

	switch action {
	case ActionConfirm:
		if from != StatusScheduled {
			return "", guard(a.ID, action, from, "only scheduled appointments can be confirmed")
		}
		return StatusConfirmed, nil

	case ActionComplete:
		if now.Before(a.StartsAt()) {
			return "", guard(a.ID, action, from, "appointment has not started")
		}
		return StatusCompleted, nil

	case ActionCancel:
		if !now.Before(a.StartsAt()) {
			return "", guard(a.ID, action, from, "appointment time has passed")
		}
		return StatusCancelled, nil

	case ActionNoShow:
		if now.Before(a.EndsAt()) {
			return "", guard(a.ID, action, from, "appointment time has not fully elapsed")
		}
		return StatusNoShow, nil
	}

	return "", guard(a.ID, action, from, "unknown action")
}

func guard(id uuid.UUID, action Action, status AppointmentStatus, reason string) error {
	return &GuardError{ID: id, Action: action, Status: status, Reason: reason}
}

// JoinWindow bounds when an online consultation may be joined, relative to its start.
type JoinWindow struct {
	Early time.Duration
	Late  time.Duration
}

var DefaultJoinWindow = JoinWindow{Early: 15 * time.Minute, Late: 30 * time.Minute}

// Allows is true for an active online appointment when start-Early <= now <= start+Late.
func (w JoinWindow) Allows(a *Appointment, now time.Time) bool {
	if a == nil || a.Type != TypeOnline || !a.Status.Active() {
		return false
	}
	start := a.StartsAt()
	opens := start.Add(-w.Early)
	closes := start.Add(w.Late)
	return !now.Before(opens) && !now.After(closes)
}

// CanJoinVideo applies the default 15 minutes early / 30 minutes late window.
func CanJoinVideo(a *Appointment, now time.Time) bool {
	return DefaultJoinWindow.Allows(a, now)
}
