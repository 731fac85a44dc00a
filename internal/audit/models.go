package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventTypeRegister EventType = "register"
	EventTypeLogin    EventType = "login"
	EventTypeRefresh  EventType = "refresh"
	EventTypeLogout   EventType = "logout"
	EventTypeRevoke   EventType = "revoke"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event is one entry of the authentication audit trail. It never carries
// token material.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       EventType `json:"type"`
	UserID     string    `json:"user_id,omitempty"`
	Outcome    Outcome   `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewEvent(eventType EventType, userID string, outcome Outcome, reason string) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		UserID:     userID,
		Outcome:    outcome,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
}

func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// PartitionKey keeps every event of one user on the same partition.
func (e Event) PartitionKey() string {
	if e.UserID == "" {
		return "anonymous"
	}
	return e.UserID
}
