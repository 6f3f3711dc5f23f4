// Package event defines the outbound realtime event schema pushed to
// connected clients. Every event is a tagged payload serialized as
// {"type": "...", "data": {...}}; the set of types is closed and each
// type carries a strongly-typed data struct.
package event

import (
	"encoding/json"
	"fmt"
)

// Event type discriminators.
const (
	TypeNewMessage = "NEW_MESSAGE"
	TypeNewMatch   = "NEW_MATCH"
)

// Event is an immutable tagged payload. Construct one with NewMessage,
// NewMatch, or Custom; the zero value is not a valid event.
type Event struct {
	Type string
	Data any
}

// MessageData is the payload of a NEW_MESSAGE event. Field names mirror the
// persisted message row so clients can append it to a conversation directly.
type MessageData struct {
	ID        int64  `json:"id"`
	RoomID    int64  `json:"room_id"`
	SenderID  int64  `json:"sender_id"`
	Text      string `json:"text,omitempty"`
	MediaURL  string `json:"media_url,omitempty"`
	CreatedAt string `json:"created_at"`
}

// MatchData is the payload of a NEW_MATCH event. PartnerID is the other
// party of the match from the recipient's point of view, RoomID is the chat
// room created for the pair.
type MatchData struct {
	MatchID   int64  `json:"match_id"`
	RoomID    int64  `json:"room_id"`
	PartnerID int64  `json:"partner_id"`
	Message   string `json:"message"`
}

// NewMessage builds a NEW_MESSAGE event.
func NewMessage(data MessageData) Event {
	return Event{Type: TypeNewMessage, Data: data}
}

// NewMatch builds a NEW_MATCH event.
func NewMatch(data MatchData) Event {
	return Event{Type: TypeNewMatch, Data: data}
}

// Custom builds an event with a caller-defined type. It exists for callers
// outside the dispatch core that push their own payloads (e.g. follow or
// comment notifications); the core itself only emits the closed set above.
func Custom(eventType string, data any) Event {
	return Event{Type: eventType, Data: data}
}

// Marshal serializes the event into its wire envelope.
func (e Event) Marshal() ([]byte, error) {
	if e.Type == "" {
		return nil, fmt.Errorf("event: missing type")
	}
	envelope := struct {
		Type string `json:"type"`
		Data any    `json:"data"`
	}{Type: e.Type, Data: e.Data}

	out, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("event: marshal %s: %w", e.Type, err)
	}
	return out, nil
}
