package entity

import "time"

// TransitionRecord is one row of the append-only transition journal
type TransitionRecord struct {
	ID            int64     `json:"id"`
	Workflow      string    `json:"workflow"`
	Trigger       string    `json:"trigger"`
	PreviousState string    `json:"previous_state"`
	NewState      string    `json:"new_state"`
	Source        string    `json:"source"`
	CorrelationID string    `json:"correlation_id"`
	FiredAt       time.Time `json:"fired_at"`
}
