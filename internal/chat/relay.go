// Package chat implements the message relay: an inbound message from one
// party's connection is validated, persisted, and forwarded to the addressed
// recipient as a NEW_MESSAGE push. The recipient comes from the inbound
// envelope, not from a room membership lookup, so the hot path is one insert
// and one registry lookup.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meixup/realtime/internal/event"
	"github.com/meixup/realtime/internal/messaging"
	"github.com/meixup/realtime/internal/metrics"
	"github.com/meixup/realtime/internal/protocol"
)

// Relay errors. ErrBadEnvelope marks a protocol violation — the connection
// that produced it cannot be trusted for routing and should be terminated.
// ErrInvalidMessage marks rejected content on an otherwise well-formed
// envelope.
var (
	ErrBadEnvelope    = errors.New("chat: malformed message envelope")
	ErrInvalidMessage = errors.New("chat: invalid message")
)

// Message is a persisted chat message.
type Message struct {
	ID          int64
	RoomID      int64
	SenderID    int64
	RecipientID int64
	Text        string
	MediaURL    string
	Read        bool
	CreatedAt   time.Time
}

// MessageStore is the persistence contract for the relay.
type MessageStore interface {
	CreateMessage(ctx context.Context, roomID, senderID, recipientID int64, text, mediaURL string) (Message, error)
}

// EventSink receives best-effort realtime pushes. Satisfied by
// dispatch.Dispatcher.
type EventSink interface {
	SendTo(userID int64, ev event.Event)
}

// MessageFeed receives durable message facts for downstream services. May be
// nil when the gateway runs without NATS.
type MessageFeed interface {
	PublishMessageCreated(ev messaging.MessageCreatedEvent)
}

// Relay persists and forwards chat messages.
type Relay struct {
	store MessageStore
	sink  EventSink
	feed  MessageFeed
}

// NewRelay creates a Relay. feed may be nil.
func NewRelay(store MessageStore, sink EventSink, feed MessageFeed) *Relay {
	return &Relay{store: store, sink: sink, feed: feed}
}

// Relay handles one inbound message from senderID's connection. The returned
// Message reflects the durable row; the recipient push and feed publish are
// best-effort and never surface to the sender. Persistence failures abort
// the operation with no partial state.
func (r *Relay) Relay(ctx context.Context, senderID int64, msg protocol.ChatSendMsg) (Message, error) {
	if msg.RoomID <= 0 || msg.RecipientID <= 0 {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		return Message{}, fmt.Errorf("%w: missing room or recipient", ErrBadEnvelope)
	}
	if msg.RecipientID == senderID {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		return Message{}, fmt.Errorf("%w: recipient is the sender", ErrBadEnvelope)
	}
	if err := ValidateContent(msg.Text, msg.MediaURL); err != nil {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		return Message{}, err
	}

	saved, err := r.store.CreateMessage(ctx, msg.RoomID, senderID, msg.RecipientID, msg.Text, msg.MediaURL)
	if err != nil {
		return Message{}, err
	}
	metrics.MessagesTotal.WithLabelValues("persisted").Inc()

	r.sink.SendTo(saved.RecipientID, event.NewMessage(event.MessageData{
		ID:        saved.ID,
		RoomID:    saved.RoomID,
		SenderID:  saved.SenderID,
		Text:      saved.Text,
		MediaURL:  saved.MediaURL,
		CreatedAt: saved.CreatedAt.UTC().Format(time.RFC3339Nano),
	}))

	if r.feed != nil {
		r.feed.PublishMessageCreated(messaging.MessageCreatedEvent{
			MessageID:   saved.ID,
			RoomID:      saved.RoomID,
			SenderID:    saved.SenderID,
			RecipientID: saved.RecipientID,
			HasMedia:    saved.MediaURL != "",
			Ts:          saved.CreatedAt.Unix(),
		})
	}

	return saved, nil
}
