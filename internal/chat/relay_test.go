package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/meixup/realtime/internal/event"
	"github.com/meixup/realtime/internal/messaging"
	"github.com/meixup/realtime/internal/protocol"
)

// fakeMessageStore assigns sequential ids and records created rows.
type fakeMessageStore struct {
	err     error
	nextID  int64
	created []Message
}

func (s *fakeMessageStore) CreateMessage(ctx context.Context, roomID, senderID, recipientID int64, text, mediaURL string) (Message, error) {
	if s.err != nil {
		return Message{}, s.err
	}
	s.nextID++
	m := Message{
		ID:          s.nextID,
		RoomID:      roomID,
		SenderID:    senderID,
		RecipientID: recipientID,
		Text:        text,
		MediaURL:    mediaURL,
		CreatedAt:   time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC),
	}
	s.created = append(s.created, m)
	return m, nil
}

type fakeSink struct {
	sent map[int64][]event.Event
}

func newFakeSink() *fakeSink {
	return &fakeSink{sent: make(map[int64][]event.Event)}
}

func (s *fakeSink) SendTo(userID int64, ev event.Event) {
	s.sent[userID] = append(s.sent[userID], ev)
}

type fakeFeed struct {
	published []messaging.MessageCreatedEvent
}

func (f *fakeFeed) PublishMessageCreated(ev messaging.MessageCreatedEvent) {
	f.published = append(f.published, ev)
}

func TestRelayPersistsAndForwards(t *testing.T) {
	store := &fakeMessageStore{}
	sink := newFakeSink()
	feed := &fakeFeed{}
	r := NewRelay(store, sink, feed)

	saved, err := r.Relay(context.Background(), 1, protocol.ChatSendMsg{
		RoomID:      7,
		RecipientID: 2,
		Text:        "hi",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.created) != 1 {
		t.Fatalf("expected 1 persisted row, got %d", len(store.created))
	}
	row := store.created[0]
	if row.RoomID != 7 || row.SenderID != 1 || row.RecipientID != 2 || row.Text != "hi" {
		t.Errorf("unexpected persisted row: %+v", row)
	}

	events := sink.sent[2]
	if len(events) != 1 {
		t.Fatalf("recipient should receive exactly 1 event, got %d", len(events))
	}
	if events[0].Type != event.TypeNewMessage {
		t.Errorf("expected NEW_MESSAGE, got %q", events[0].Type)
	}
	data := events[0].Data.(event.MessageData)
	if data.ID != saved.ID || data.RoomID != 7 || data.SenderID != 1 || data.Text != "hi" {
		t.Errorf("unexpected event payload: %+v", data)
	}
	if data.CreatedAt == "" {
		t.Error("event payload should carry the creation time")
	}

	if len(sink.sent[1]) != 0 {
		t.Error("sender must not receive an echo push")
	}
	if len(feed.published) != 1 {
		t.Errorf("expected 1 fact on the feed, got %d", len(feed.published))
	}
}

func TestRelayOfflineRecipientStillPersists(t *testing.T) {
	// The sink is a no-op registry stand-in; an offline recipient changes
	// nothing about the durable outcome.
	store := &fakeMessageStore{}
	r := NewRelay(store, newFakeSink(), nil)

	saved, err := r.Relay(context.Background(), 1, protocol.ChatSendMsg{
		RoomID:      3,
		RecipientID: 9,
		Text:        "anyone there?",
	})
	if err != nil {
		t.Fatalf("sender must not see delivery state, got error: %v", err)
	}
	if saved.ID == 0 {
		t.Error("message should be persisted regardless of recipient presence")
	}
}

func TestRelayMediaOnlyMessage(t *testing.T) {
	store := &fakeMessageStore{}
	sink := newFakeSink()
	r := NewRelay(store, sink, nil)

	_, err := r.Relay(context.Background(), 1, protocol.ChatSendMsg{
		RoomID:      3,
		RecipientID: 2,
		MediaURL:    "https://cdn.example/pic.jpg",
	})
	if err != nil {
		t.Fatalf("media-only message should be accepted: %v", err)
	}

	data := sink.sent[2][0].Data.(event.MessageData)
	if data.MediaURL == "" {
		t.Error("event should carry the media url")
	}
}

func TestRelayRejectsMissingRouting(t *testing.T) {
	store := &fakeMessageStore{}
	r := NewRelay(store, newFakeSink(), nil)

	cases := []protocol.ChatSendMsg{
		{RecipientID: 2, Text: "no room"},
		{RoomID: 3, Text: "no recipient"},
		{RoomID: 3, RecipientID: 1, Text: "self"}, // sender is 1 below
	}
	for _, msg := range cases {
		if _, err := r.Relay(context.Background(), 1, msg); !errors.Is(err, ErrBadEnvelope) {
			t.Errorf("%+v: expected ErrBadEnvelope, got %v", msg, err)
		}
	}
	if len(store.created) != 0 {
		t.Error("malformed envelopes must not be persisted")
	}
}

func TestRelayRejectsEmptyContent(t *testing.T) {
	store := &fakeMessageStore{}
	r := NewRelay(store, newFakeSink(), nil)

	_, err := r.Relay(context.Background(), 1, protocol.ChatSendMsg{RoomID: 3, RecipientID: 2})
	if !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("expected ErrInvalidMessage, got %v", err)
	}
	if len(store.created) != 0 {
		t.Error("empty messages must not be persisted")
	}
}

func TestRelayStoreFailureAborts(t *testing.T) {
	store := &fakeMessageStore{err: errors.New("store down")}
	sink := newFakeSink()
	feed := &fakeFeed{}
	r := NewRelay(store, sink, feed)

	_, err := r.Relay(context.Background(), 1, protocol.ChatSendMsg{
		RoomID:      3,
		RecipientID: 2,
		Text:        "hi",
	})
	if err == nil {
		t.Fatal("expected persistence error to propagate")
	}
	if len(sink.sent) != 0 {
		t.Error("no push may be sent when persistence fails")
	}
	if len(feed.published) != 0 {
		t.Error("no fact may be published when persistence fails")
	}
}

func TestValidateContent(t *testing.T) {
	longText := make([]byte, MaxTextBytes+1)
	for i := range longText {
		longText[i] = 'a'
	}

	cases := []struct {
		name     string
		text     string
		mediaURL string
		wantErr  bool
	}{
		{"text only", "hello", "", false},
		{"media only", "", "https://cdn.example/x.jpg", false},
		{"both", "look", "https://cdn.example/x.jpg", false},
		{"empty", "", "", true},
		{"oversized text", string(longText), "", true},
		{"invalid utf8", string([]byte{0xff, 0xfe}), "", true},
	}
	for _, tc := range cases {
		err := ValidateContent(tc.text, tc.mediaURL)
		if tc.wantErr && err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("%s: unexpected error: %v", tc.name, err)
		}
	}
}
