package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Actions carried by a record event.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// RecordEvent describes one mutation of an expense record. It carries the
// fields the audit trail needs so the worker does not have to read the
// database back.
type RecordEvent struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Owner     string    `json:"owner"`
	Name      string    `json:"name"`
	Price     string    `json:"price"`
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"`
}

func NewRecordEvent(action, id, owner, name, price, category string) *RecordEvent {
	return &RecordEvent{
		ID:        id,
		Action:    action,
		Owner:     owner,
		Name:      name,
		Price:     price,
		Category:  category,
		Timestamp: time.Now(),
	}
}

func (e *RecordEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func RecordEventFromJSON(data []byte) (*RecordEvent, error) {
	var e RecordEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	switch e.Action {
	case ActionCreated, ActionUpdated, ActionDeleted:
	default:
		return nil, fmt.Errorf("unknown action %q", e.Action)
	}
	return &e, nil
}
