package client

import "encoding/json"

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Event types carried by SubscriptionEvent.
const (
	EventFull = "full"
	EventDiff = "diff"
)

// SubscriptionEvent is the wrapper object received from the server. Payload
// is a snapshot for EventFull and a snapshot diff for EventDiff.
type SubscriptionEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  int64           `json:"sentAt"`
}
