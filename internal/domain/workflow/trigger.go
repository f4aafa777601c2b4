package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}

// Transition describes one edge taken by the machine
type Transition struct {
	Source      StateID
	Trigger     Trigger
	Destination StateID
}

// IsReentry returns true when the transition leaves and re-enters the same state
func (t Transition) IsReentry() bool {
	return t.Source == t.Destination
}
