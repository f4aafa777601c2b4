package event

// Type identifies the type of workflow event
type Type string

const (
	TypeStateEntered       Type = "state.entered"
	TypeStateExited        Type = "state.exited"
	TypeStateChanged       Type = "state.changed"
	TypeTransitionRejected Type = "transition.rejected"
	TypeReminderDue        Type = "reminder.due"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeStateEntered,
		TypeStateExited,
		TypeStateChanged,
		TypeTransitionRejected,
		TypeReminderDue:
		return true
	default:
		return false
	}
}
