package appointment

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrProviderNotFound    = errors.New("provider not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrDayNotFound         = errors.New("availability not materialized for date")

	ErrSlotUnavailable        = errors.New("slot unavailable")
	ErrTerminalState          = errors.New("appointment is in a terminal state")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrCancellationNotAllowed = errors.New("cancellation not allowed")
	ErrMissingReason          = errors.New("cancellation reason is required")
	ErrStaleAppointment       = errors.New("appointment was modified concurrently")
	ErrPaymentRequired        = errors.New("fee must be settled before this transition")
	ErrJoinWindowClosed       = errors.New("video consultation is not joinable now")
	ErrVideoDisabled          = errors.New("no video room provider configured")
	ErrInvalidAppointmentType = errors.New("invalid appointment type")
)

// SlotUnavailableError is returned when a claim loses a race or the slot is not open.
type SlotUnavailableError struct {
	Key    SlotKey
	Reason string
}

func (e *SlotUnavailableError) Error() string {
	return fmt.Sprintf("slot %s unavailable: %s", e.Key, e.Reason)
}

func (e *SlotUnavailableError) Is(target error) bool {
	return target == ErrSlotUnavailable
}

type TerminalStateError struct {
	ID     uuid.UUID
	Status AppointmentStatus
}

func (e *TerminalStateError) Error() string {
	return fmt.Sprintf("appointment %s is %s and cannot change", e.ID, e.Status)
}

func (e *TerminalStateError) Is(target error) bool {
	return target == ErrTerminalState
}

// GuardError is a lifecycle transition whose time or payment guard is not met.
type GuardError struct {
	ID     uuid.UUID
	Action Action
	Status AppointmentStatus
	Reason string
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("cannot %s appointment %s (%s): %s", e.Action, e.ID, e.Status, e.Reason)
}

func (e *GuardError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// CancellationNotAllowedError wraps the lifecycle failure that blocked a cancellation.
type CancellationNotAllowedError struct {
	ID     uuid.UUID
	Status AppointmentStatus
	Err    error
}

func (e *CancellationNotAllowedError) Error() string {
	return fmt.Sprintf("cannot cancel appointment %s (%s): %v", e.ID, e.Status, e.Err)
}

func (e *CancellationNotAllowedError) Is(target error) bool {
	return target == ErrCancellationNotAllowed
}

func (e *CancellationNotAllowedError) Unwrap() error {
	return e.Err
}

type MissingReasonError struct {
	ID uuid.UUID
}

func (e *MissingReasonError) Error() string {
	return fmt.Sprintf("cancel appointment %s: %s", e.ID, ErrMissingReason)
}

func (e *MissingReasonError) Is(target error) bool {
	return target == ErrMissingReason
}
