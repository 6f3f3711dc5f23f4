package protocol

import (
	"encoding/json"
	"testing"
)

func TestParseSwipeMessage(t *testing.T) {
	data := []byte(`{"type":"swipe","target_id":42,"swipe_type":"like"}`)

	msgType, msg, err := ParseClientMessage(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeSwipe {
		t.Errorf("expected type %q, got %q", TypeSwipe, msgType)
	}

	swipe, ok := msg.(SwipeMsg)
	if !ok {
		t.Fatalf("expected SwipeMsg, got %T", msg)
	}
	if swipe.TargetID != 42 {
		t.Errorf("expected target_id=42, got %d", swipe.TargetID)
	}
	if swipe.Kind != "like" {
		t.Errorf("expected swipe_type=like, got %q", swipe.Kind)
	}
}

func TestParseChatMessage(t *testing.T) {
	data := []byte(`{"type":"message","room_id":7,"recipient_id":9,"text":"hi","media_url":"https://cdn.example/x.jpg"}`)

	msgType, msg, err := ParseClientMessage(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeMessage {
		t.Errorf("expected type %q, got %q", TypeMessage, msgType)
	}

	chat, ok := msg.(ChatSendMsg)
	if !ok {
		t.Fatalf("expected ChatSendMsg, got %T", msg)
	}
	if chat.RoomID != 7 || chat.RecipientID != 9 {
		t.Errorf("unexpected routing fields: %+v", chat)
	}
	if chat.Text != "hi" {
		t.Errorf("expected text=hi, got %q", chat.Text)
	}
	if chat.MediaURL == "" {
		t.Error("expected media_url to be populated")
	}
}

func TestParsePing(t *testing.T) {
	msgType, msg, err := ParseClientMessage([]byte(`{"type":"ping"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypePing {
		t.Errorf("expected ping, got %q", msgType)
	}
	if _, ok := msg.(PingMsg); !ok {
		t.Errorf("expected PingMsg, got %T", msg)
	}
}

func TestParseRejectsInvalidJSON(t *testing.T) {
	if _, _, err := ParseClientMessage([]byte(`{not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestParseRejectsMissingType(t *testing.T) {
	if _, _, err := ParseClientMessage([]byte(`{"target_id":1}`)); err == nil {
		t.Error("expected error for missing type field")
	}
}

func TestParseRejectsUnknownType(t *testing.T) {
	msgType, _, err := ParseClientMessage([]byte(`{"type":"teleport"}`))
	if err == nil {
		t.Error("expected error for unknown type")
	}
	if msgType != "teleport" {
		t.Errorf("expected the offending type to be returned, got %q", msgType)
	}
}

func TestParseRejectsMismatchedPayload(t *testing.T) {
	// target_id must be a number.
	if _, _, err := ParseClientMessage([]byte(`{"type":"swipe","target_id":"forty-two"}`)); err == nil {
		t.Error("expected error for payload type mismatch")
	}
}

func TestNewServerMessageInjectsType(t *testing.T) {
	out, err := NewServerMessage(TypeSwipeResult, SwipeResultMsg{
		Status:   SwipeStatusMatch,
		TargetID: 12,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if decoded["type"] != TypeSwipeResult {
		t.Errorf("expected injected type %q, got %v", TypeSwipeResult, decoded["type"])
	}
	if decoded["status"] != SwipeStatusMatch {
		t.Errorf("expected status=match, got %v", decoded["status"])
	}
	if decoded["target_id"] != float64(12) {
		t.Errorf("expected target_id=12, got %v", decoded["target_id"])
	}
}
