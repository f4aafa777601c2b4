package workflow

import "fmt"

// Registry owns the set of named states and their lifecycle hooks
type Registry struct {
	states map[StateID]State
	order  []StateID
}

// NewRegistry creates an empty state registry
func NewRegistry() *Registry {
	return &Registry{
		states: make(map[StateID]State),
	}
}

// Define registers a new state. Nil actions are treated as no-ops.
func (r *Registry) Define(id StateID, onEntry EntryAction, onExit ExitAction) (StateID, error) {
	if id == "" {
		return "", fmt.Errorf("%w: empty state id", ErrInvalidState)
	}
	if _, exists := r.states[id]; exists {
		return "", fmt.Errorf("%w: %s", ErrDuplicateState, id)
	}

	r.states[id] = State{
		id:      id,
		onEntry: onEntry,
		onExit:  onExit,
	}
	r.order = append(r.order, id)

	return id, nil
}

// Lookup returns the state registered under id
func (r *Registry) Lookup(id StateID) (State, error) {
	state, exists := r.states[id]
	if !exists {
		return State{}, fmt.Errorf("%w: %s", ErrUnknownState, id)
	}
	return state, nil
}

// Has returns true if the state is registered
func (r *Registry) Has(id StateID) bool {
	_, exists := r.states[id]
	return exists
}

// States returns the registered state ids in definition order
func (r *Registry) States() []StateID {
	return append([]StateID(nil), r.order...)
}

// Len returns the number of registered states
func (r *Registry) Len() int {
	return len(r.order)
}
