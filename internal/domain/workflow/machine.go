package workflow

import (
	"context"
	"sort"
)

// StateQuery is the read-only view of a machine handed to entry and exit actions
type StateQuery interface {
	// State returns the current state
	State() StateID

	// CanFire returns true if the trigger is permitted in the current state
	CanFire(trigger Trigger) bool

	// PermittedTriggers returns all triggers configured for the current state
	PermittedTriggers() []Trigger
}

// StateMachine tracks the current state and executes validated transitions.
// It is not safe for concurrent use: callers must serialize Fire.
type StateMachine interface {
	StateQuery

	// Start runs the entry action of the initial state. Subsequent calls are no-ops.
	Start(ctx context.Context)

	// Fire attempts to execute the trigger, transitioning to the new state if allowed
	Fire(ctx context.Context, trigger Trigger) (StateID, error)

	// IsTerminal returns true if the current state has no outgoing transitions
	IsTerminal() bool

	// Release cancels work acquired by the current state's entry action
	// without running its exit action
	Release()
}

// Observer is notified after every completed transition
type Observer func(t Transition)

// MachineOption configures a state machine at build time
type MachineOption func(*stateMachine)

// WithObserver registers a transition observer
func WithObserver(fn Observer) MachineOption {
	return func(m *stateMachine) {
		if fn != nil {
			m.observers = append(m.observers, fn)
		}
	}
}

// stateMachine implements StateMachine
type stateMachine struct {
	currentState StateID
	states       map[StateID]State
	edges        map[StateID]map[Trigger]edge
	observers    []Observer

	started bool
	release Release
}

// State returns the current state
func (m *stateMachine) State() StateID {
	return m.currentState
}

// CanFire returns true if the trigger is configured for the current state.
// Guards are not evaluated.
func (m *stateMachine) CanFire(trigger Trigger) bool {
	_, exists := m.edges[m.currentState][trigger]
	return exists
}

// PermittedTriggers returns all triggers configured for the current state, sorted
func (m *stateMachine) PermittedTriggers() []Trigger {
	triggers := make([]Trigger, 0, len(m.edges[m.currentState]))
	for trigger := range m.edges[m.currentState] {
		triggers = append(triggers, trigger)
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })
	return triggers
}

// IsTerminal returns true if the current state has no outgoing transitions
func (m *stateMachine) IsTerminal() bool {
	return len(m.edges[m.currentState]) == 0
}

// Start runs the entry action of the initial state once
func (m *stateMachine) Start(ctx context.Context) {
	if m.started {
		return
	}
	m.started = true

	t := Transition{Destination: m.currentState}
	m.release = m.states[m.currentState].enter(ctx, m, t)
}

// Fire attempts to execute the trigger. On failure the current state is unchanged
// and the error is an *InvalidTransitionError.
func (m *stateMachine) Fire(ctx context.Context, trigger Trigger) (StateID, error) {
	e, exists := m.edges[m.currentState][trigger]
	if !exists {
		return m.currentState, &InvalidTransitionError{State: m.currentState, Trigger: trigger}
	}

	if e.guard != nil && !e.guard(ctx) {
		return m.currentState, &InvalidTransitionError{State: m.currentState, Trigger: trigger, Reason: ErrGuardFailed}
	}

	// Fire counts as starting the machine; the initial entry is not replayed later
	m.started = true

	t := Transition{
		Source:      m.currentState,
		Trigger:     trigger,
		Destination: e.toState,
	}

	m.exit(ctx, t)
	m.currentState = t.Destination
	m.release = m.states[t.Destination].enter(ctx, m, t)

	for _, observer := range m.observers {
		observer(t)
	}

	return m.currentState, nil
}

// Release cancels work acquired by the current state's entry action
func (m *stateMachine) Release() {
	if release := m.release; release != nil {
		m.release = nil
		release()
	}
}

// exit runs the exit action of the current state. The entry release handle is
// deferred so it runs even when the exit action panics.
func (m *stateMachine) exit(ctx context.Context, t Transition) {
	defer m.Release()
	m.states[m.currentState].exit(ctx, m, t)
}
