// Package protocol defines the WebSocket message types and structures used
// for communication between the client and the realtime gateway. All
// messages are serialized as JSON and follow a consistent envelope format
// with a type discriminator. Outbound push events (NEW_MESSAGE, NEW_MATCH)
// are built by the event package; this package covers the inbound command
// set and the gateway's direct responses.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Client -> Server message types.
const (
	TypeSwipe   = "swipe"
	TypeMessage = "message"
	TypePing    = "ping"
)

// Server -> Client message types (non-push frames).
const (
	TypeConnected   = "connected"
	TypeSwipeResult = "swipe_result"
	TypeMessageSent = "message_sent"
	TypeRateLimited = "rate_limited"
	TypeError       = "error"
	TypePong        = "pong"
)

// Swipe result status values.
const (
	SwipeStatusRecorded = "recorded"
	SwipeStatusMatch    = "match"
)

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// SwipeMsg records a swipe on another user. Kind is one of "like",
// "dislike", or "super-like".
type SwipeMsg struct {
	Type     string `json:"type"`
	TargetID int64  `json:"target_id"`
	Kind     string `json:"swipe_type"`
}

// ChatSendMsg relays a chat message to another user. The recipient is
// addressed directly in the envelope so delivery does not need a room
// membership lookup. Text and MediaURL are each optional but at least one
// must be present.
type ChatSendMsg struct {
	Type        string `json:"type"`
	RoomID      int64  `json:"room_id"`
	RecipientID int64  `json:"recipient_id"`
	Text        string `json:"text,omitempty"`
	MediaURL    string `json:"media_url,omitempty"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// ConnectedMsg is sent once after a successful upgrade and authentication.
type ConnectedMsg struct {
	Type   string `json:"type"`
	UserID int64  `json:"user_id"`
}

// SwipeResultMsg acknowledges a recorded swipe. Status is "recorded" or
// "match"; it only reflects durable state, never whether the other party
// was online to receive a push.
type SwipeResultMsg struct {
	Type     string `json:"type"`
	Status   string `json:"status"`
	TargetID int64  `json:"target_id"`
}

// MessageSentMsg acknowledges a persisted chat message.
type MessageSentMsg struct {
	Type      string `json:"type"`
	MessageID int64  `json:"message_id"`
	RoomID    int64  `json:"room_id"`
}

// RateLimitedMsg is sent when the client exceeded a rate limit.
type RateLimitedMsg struct {
	Type       string `json:"type"`
	RetryAfter int    `json:"retry_after"`
}

// ErrorMsg is sent by the server to communicate an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeSwipe:
		var m SwipeMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMessage:
		var m ChatSendMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The payload
// should be one of the *Msg structs; this function marshals it to JSON,
// injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
