package workflow

import "context"

// StateID is the unique name of a workflow state
type StateID string

// String returns the string representation of the state
func (s StateID) String() string {
	return string(s)
}

// Release cancels work started by an entry action. It must be safe to call once.
type Release func()

// EntryAction runs when a state becomes current. The returned Release, if any,
// is invoked when the state is exited.
type EntryAction func(ctx context.Context, m StateQuery, t Transition) Release

// ExitAction runs when a state stops being current
type ExitAction func(ctx context.Context, m StateQuery, t Transition)

// State is a registered workflow state with its lifecycle hooks
type State struct {
	id      StateID
	onEntry EntryAction
	onExit  ExitAction
}

// ID returns the state identifier
func (s State) ID() StateID {
	return s.id
}

// HasEntryAction reports whether the state defines an entry action
func (s State) HasEntryAction() bool {
	return s.onEntry != nil
}

// HasExitAction reports whether the state defines an exit action
func (s State) HasExitAction() bool {
	return s.onExit != nil
}

// enter invokes the entry action, returning its release handle (may be nil)
func (s State) enter(ctx context.Context, m StateQuery, t Transition) Release {
	if s.onEntry == nil {
		return nil
	}
	return s.onEntry(ctx, m, t)
}

func (s State) exit(ctx context.Context, m StateQuery, t Transition) {
	if s.onExit != nil {
		s.onExit(ctx, m, t)
	}
}
