package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Action is the outcome of a gate decision.
type Action string

const (
	ActionAllow Action = "ALLOW"
	ActionBlock Action = "BLOCK"
)

// UnmarshalJSON implements json.Unmarshaler to normalize action to uppercase.
func (a *Action) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	normalized := Action(strings.ToUpper(s))
	switch normalized {
	case ActionAllow, ActionBlock:
		*a = normalized
		return nil
	default:
		return fmt.Errorf("invalid action: %s (must be ALLOW or BLOCK)", s)
	}
}

// MarshalJSON implements json.Marshaler to ensure uppercase output.
func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(a))
}

// DecisionRecord is one gate decision.
type DecisionRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	State     string    `json:"state"`
	Action    Action    `json:"action"`
	Schedule  string    `json:"schedule,omitempty"`
	Trigger   string    `json:"trigger,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}
