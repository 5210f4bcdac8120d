package bridge

import (
	"encoding/json"
	"time"
)

// Device connectivity payloads on stripgate/status/{id}.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// CommandMessage is the payload accepted on stripgate/command/{id}.
type CommandMessage struct {
	// ID is an optional correlation id echoed in the ack.
	ID       string          `json:"id,omitempty"`
	Instance string          `json:"instance"`
	Value    json.RawMessage `json:"value"`
}

// AckMessage is published on stripgate/ack/{id} after each command.
type AckMessage struct {
	ID        string    `json:"id,omitempty"`
	Instance  string    `json:"instance"`
	Status    string    `json:"status"`
	ErrorCode string    `json:"error_code,omitempty"`
	Delivered bool      `json:"delivered"`
	Timestamp time.Time `json:"timestamp"`
}
