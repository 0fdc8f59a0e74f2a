package models

import "time"

// MessageType classifies a bus message.
type MessageType string

const (
	// MessageData is a plain payload between agents.
	MessageData MessageType = "data"
	// MessageSignal is a control signal broadcast on a channel.
	MessageSignal MessageType = "signal"
	// MessageContext is a shared key/value context entry.
	MessageContext MessageType = "context"
	// MessageError reports a failure to other agents.
	MessageError MessageType = "error"
)

// Valid returns true if the type is a known value.
func (t MessageType) Valid() bool {
	switch t {
	case MessageData, MessageSignal, MessageContext, MessageError:
		return true
	default:
		return false
	}
}

// Message is one persisted bus entry. Messages are append-only until expired.
type Message struct {
	// ID is the monotonic insertion order (storage rowid).
	ID int64 `json:"id"`
	// Channel is an opaque name; direct messages use "dm:<sorted pair>".
	Channel string `json:"channel"`
	// Sender is the posting agent.
	Sender string `json:"sender"`
	// Recipient is empty for broadcast messages.
	Recipient string `json:"recipient,omitempty"`
	// Type classifies the message.
	Type MessageType `json:"type"`
	// Payload is the message body; non-string values are serialized.
	Payload string `json:"payload"`
	// CreatedAt is the insertion time.
	CreatedAt time.Time `json:"created_at"`
	// ExpiresAt is nil for messages that never expire.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}
