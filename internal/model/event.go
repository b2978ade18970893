package model

import (
	"encoding/json"
	"time"
)

// Event is one entry of a charter's activity log. It is written after an
// update or creation commits and carries the same JSON body that went out
// on Topic, so GET /v1/charters/{id}/events can replay what subscribers saw.
// ID orders entries; it is not a charter version number.
type Event struct {
	ID        int64           `json:"id"`
	Topic     string          `json:"topic"`
	CharterID string          `json:"charter_id"`
	Actor     string          `json:"actor,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
