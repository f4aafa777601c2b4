package workflow

import (
	"context"
	"errors"
	"fmt"
)

// GuardFunc is a function that evaluates whether a transition should be allowed
type GuardFunc func(ctx context.Context) bool

// StateMachineBuilder builds a configured state machine
type StateMachineBuilder interface {
	// Configure returns a fluent configuration for the given state.
	// Errors are recorded and reported by Build.
	Configure(state StateID) StateConfiguration

	// Permit registers a transition edge
	Permit(from StateID, trigger Trigger, to StateID) error

	// PermitIf registers a transition edge that is only taken when the guard passes
	PermitIf(from StateID, trigger Trigger, to StateID, guard GuardFunc) error

	// Build creates a new state machine instance with the given initial state
	Build(initialState StateID, opts ...MachineOption) (StateMachine, error)
}

// StateConfiguration configures transitions for a specific state
type StateConfiguration interface {
	// Permit allows a trigger to transition to the target state
	Permit(trigger Trigger, toState StateID) StateConfiguration

	// PermitIf allows a trigger to transition to the target state if the guard condition passes
	PermitIf(trigger Trigger, toState StateID, guard GuardFunc) StateConfiguration
}

// edge is a configured transition with optional guard
type edge struct {
	toState StateID
	guard   GuardFunc
}

// stateConfig implements StateConfiguration
type stateConfig struct {
	builder   *stateMachineBuilder
	fromState StateID
}

// stateMachineBuilder implements StateMachineBuilder
type stateMachineBuilder struct {
	registry *Registry
	edges    map[StateID]map[Trigger]edge
	errs     []error
}

// NewBuilder creates a new state machine builder over the given registry
func NewBuilder(registry *Registry) StateMachineBuilder {
	return &stateMachineBuilder{
		registry: registry,
		edges:    make(map[StateID]map[Trigger]edge),
	}
}

// Configure returns a state configuration for the given state
func (b *stateMachineBuilder) Configure(state StateID) StateConfiguration {
	if !b.registry.Has(state) {
		b.errs = append(b.errs, fmt.Errorf("configure %s: %w", state, ErrUnknownState))
	}
	return &stateConfig{
		builder:   b,
		fromState: state,
	}
}

// Permit registers a transition edge
func (b *stateMachineBuilder) Permit(from StateID, trigger Trigger, to StateID) error {
	return b.PermitIf(from, trigger, to, nil)
}

// PermitIf registers a guarded transition edge. A (state, trigger) pair may only
// be configured once; the existing destination is kept on conflict.
func (b *stateMachineBuilder) PermitIf(from StateID, trigger Trigger, to StateID, guard GuardFunc) error {
	if !b.registry.Has(from) {
		return fmt.Errorf("permit %s from %s: %w: %s", trigger, from, ErrUnknownState, from)
	}
	if !b.registry.Has(to) {
		return fmt.Errorf("permit %s from %s: %w: %s", trigger, from, ErrUnknownState, to)
	}
	if trigger == "" {
		return fmt.Errorf("permit from %s: empty trigger: %w", from, ErrInvalidTransition)
	}

	triggers, exists := b.edges[from]
	if !exists {
		triggers = make(map[Trigger]edge)
		b.edges[from] = triggers
	}

	if existing, exists := triggers[trigger]; exists {
		return fmt.Errorf("%w: trigger %s from state %s already leads to %s",
			ErrDuplicateTransition, trigger, from, existing.toState)
	}

	triggers[trigger] = edge{
		toState: to,
		guard:   guard,
	}

	return nil
}

// Build creates a new state machine instance with the given initial state
func (b *stateMachineBuilder) Build(initialState StateID, opts ...MachineOption) (StateMachine, error) {
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(b.errs...))
	}
	if !b.registry.Has(initialState) {
		return nil, fmt.Errorf("invalid initial state: %w: %s", ErrUnknownState, initialState)
	}

	// Copy states and edges so later builder changes do not leak into the machine
	states := make(map[StateID]State, b.registry.Len())
	for _, id := range b.registry.States() {
		state, _ := b.registry.Lookup(id)
		states[id] = state
	}

	edges := make(map[StateID]map[Trigger]edge, len(b.edges))
	for state, triggers := range b.edges {
		copied := make(map[Trigger]edge, len(triggers))
		for trigger, e := range triggers {
			copied[trigger] = e
		}
		edges[state] = copied
	}

	m := &stateMachine{
		currentState: initialState,
		states:       states,
		edges:        edges,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// Permit allows a trigger to transition to the target state
func (c *stateConfig) Permit(trigger Trigger, toState StateID) StateConfiguration {
	return c.PermitIf(trigger, toState, nil)
}

// PermitIf allows a trigger to transition to the target state if the guard condition passes
func (c *stateConfig) PermitIf(trigger Trigger, toState StateID, guard GuardFunc) StateConfiguration {
	if err := c.builder.PermitIf(c.fromState, trigger, toState, guard); err != nil {
		c.builder.errs = append(c.builder.errs, err)
	}
	return c
}
