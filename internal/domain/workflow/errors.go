package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when a state transition is not allowed
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned when a state identifier is not valid
	ErrInvalidState = errors.New("invalid state")

	// ErrGuardFailed is returned when a guard condition fails
	ErrGuardFailed = errors.New("guard condition failed")

	// ErrDuplicateState is returned when a state is defined twice
	ErrDuplicateState = errors.New("duplicate state")

	// ErrUnknownState is returned when a state is not in the registry
	ErrUnknownState = errors.New("unknown state")

	// ErrDuplicateTransition is returned when a (state, trigger) pair is configured twice
	ErrDuplicateTransition = errors.New("duplicate transition")
)

// InvalidTransitionError reports a trigger that could not be fired from the current state.
// The machine state is unchanged when this error is returned.
type InvalidTransitionError struct {
	State   StateID
	Trigger Trigger
	Reason  error
}

func (e *InvalidTransitionError) Error() string {
	if e.Reason != nil && !errors.Is(e.Reason, ErrInvalidTransition) {
		return fmt.Sprintf("%s: trigger %s from state %s: %v", ErrInvalidTransition, e.Trigger, e.State, e.Reason)
	}
	return fmt.Sprintf("%s: cannot fire trigger %s from state %s", ErrInvalidTransition, e.Trigger, e.State)
}

// Unwrap exposes both the ErrInvalidTransition sentinel and the specific reason
func (e *InvalidTransitionError) Unwrap() []error {
	if e.Reason == nil {
		return []error{ErrInvalidTransition}
	}
	return []error{ErrInvalidTransition, e.Reason}
}
