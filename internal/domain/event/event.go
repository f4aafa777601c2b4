package event

import (
	"time"

	"github.com/google/uuid"
)

// Payload keys shared by workflow events
const (
	KeyState         = "state"
	KeyPreviousState = "previous_state"
	KeyNewState      = "new_state"
	KeyTrigger       = "trigger"
	KeySource        = "source"
	KeyError         = "error"
	KeyMessage       = "message"
	KeyTick          = "tick"
)

// Event represents a workflow event
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	Workflow      string                 `json:"workflow"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates a new workflow event with auto-generated ID and timestamp
func NewEvent(eventType Type, workflow string, payload map[string]interface{}) *Event {
	return NewEventWithCorrelation(eventType, workflow, payload, uuid.NewString())
}

// NewEventWithCorrelation creates an event linked to a correlation chain,
// e.g. the exit, entry and change events of a single fire
func NewEventWithCorrelation(eventType Type, workflow string, payload map[string]interface{}, correlationID string) *Event {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		Workflow:      workflow,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: correlationID,
	}
}

// WithPayload returns a new Event with an added payload key-value pair (immutable operation)
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	return &Event{
		ID:            e.ID,
		Type:          e.Type,
		Workflow:      e.Workflow,
		Payload:       newPayload,
		Timestamp:     e.Timestamp,
		CorrelationID: e.CorrelationID,
	}
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case string:
			return v
		case interface{ String() string }:
			return v.String()
		}
	}
	return ""
}

// GetPayloadInt retrieves an int64 value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}
