package chat

import (
	"context"
	"database/sql"
	"fmt"
)

// Store persists chat messages in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a message store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateMessage implements MessageStore. The row is created unread; the
// read flag is flipped later by the read-receipt flow, not by the relay.
func (s *Store) CreateMessage(ctx context.Context, roomID, senderID, recipientID int64, text, mediaURL string) (Message, error) {
	const query = `
		INSERT INTO messages (room_id, sender_id, recipient_id, message_text, media_url)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))
		RETURNING id, created_at`

	msg := Message{
		RoomID:      roomID,
		SenderID:    senderID,
		RecipientID: recipientID,
		Text:        text,
		MediaURL:    mediaURL,
	}

	err := s.db.QueryRowContext(ctx, query, roomID, senderID, recipientID, text, mediaURL).
		Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("chat: insert message: %w", err)
	}
	return msg, nil
}

// History returns the most recent messages of a room, newest first. It backs
// the conversation view the HTTP layer serves; the relay itself never reads
// history.
func (s *Store) History(ctx context.Context, roomID int64, limit int) ([]Message, error) {
	const query = `
		SELECT id, room_id, sender_id, recipient_id,
		       COALESCE(message_text, ''), COALESCE(media_url, ''), is_read, created_at
		FROM messages
		WHERE room_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("chat: query history: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.RecipientID,
			&m.Text, &m.MediaURL, &m.Read, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("chat: scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chat: iterate history: %w", err)
	}
	return out, nil
}
