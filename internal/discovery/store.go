package discovery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Store persists swipes, matches, chat rooms, and match notifications in
// PostgreSQL. All writes that belong to one swipe happen in one transaction:
// a crash can never leave a match without its notifications or chat room.
type Store struct {
	db *sql.DB
}

// NewStore creates a swipe store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// RecordSwipe implements SwipeStore. The swipe row is always inserted; for
// positive kinds the reverse direction is checked inside the same
// transaction and, when present, the match + chat room + two notification
// rows are created. Match creation is insert-or-ignore on the unordered user
// pair, so a duplicate completing swipe (or a concurrent race between both
// directions) yields exactly one match and reports Matched=false to the
// loser.
func (s *Store) RecordSwipe(ctx context.Context, swiperID, targetID int64, kind Kind) (Result, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, fmt.Errorf("discovery: begin: %w", err)
	}
	defer tx.Rollback()

	const insertSwipe = `
		INSERT INTO swipes (swiper_id, target_id, swipe_type)
		VALUES ($1, $2, $3)`
	if _, err := tx.ExecContext(ctx, insertSwipe, swiperID, targetID, string(kind)); err != nil {
		return Result{}, fmt.Errorf("discovery: insert swipe: %w", err)
	}

	res := Result{}
	if kind.Positive() {
		reciprocated, err := s.hasPositiveReverse(ctx, tx, swiperID, targetID)
		if err != nil {
			return Result{}, err
		}
		if reciprocated {
			res, err = s.createMatch(ctx, tx, swiperID, targetID)
			if err != nil {
				return Result{}, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("discovery: commit: %w", err)
	}
	return res, nil
}

// hasPositiveReverse reports whether target has already swiped positively on
// swiper.
func (s *Store) hasPositiveReverse(ctx context.Context, tx *sql.Tx, swiperID, targetID int64) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM swipes
			WHERE swiper_id = $1
			  AND target_id = $2
			  AND swipe_type IN ('like', 'super-like')
		)`

	var exists bool
	if err := tx.QueryRowContext(ctx, query, targetID, swiperID).Scan(&exists); err != nil {
		return false, fmt.Errorf("discovery: reverse swipe lookup: %w", err)
	}
	return exists, nil
}

// createMatch inserts the match, its chat room, and one notification per
// party. The unique index on the unordered pair makes the insert a no-op
// when the match already exists; in that case nothing else is written and
// Matched stays false.
func (s *Store) createMatch(ctx context.Context, tx *sql.Tx, swiperID, targetID int64) (Result, error) {
	const insertMatch = `
		INSERT INTO matches (user_one, user_two)
		VALUES ($1, $2)
		ON CONFLICT ((least(user_one, user_two)), (greatest(user_one, user_two))) DO NOTHING
		RETURNING id`

	var matchID int64
	err := tx.QueryRowContext(ctx, insertMatch, swiperID, targetID).Scan(&matchID)
	if errors.Is(err, sql.ErrNoRows) {
		// Pair already matched — duplicate completing swipe.
		return Result{}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("discovery: insert match: %w", err)
	}

	const insertRoom = `
		INSERT INTO chat_rooms (match_id)
		VALUES ($1)
		RETURNING id`

	var roomID int64
	if err := tx.QueryRowContext(ctx, insertRoom, matchID).Scan(&roomID); err != nil {
		return Result{}, fmt.Errorf("discovery: insert chat room: %w", err)
	}

	const insertNotification = `
		INSERT INTO notifications (recipient_id, sender_id, notification_type, content)
		VALUES ($1, $2, 'match', $3)`

	if _, err := tx.ExecContext(ctx, insertNotification, swiperID, targetID, matchMessage); err != nil {
		return Result{}, fmt.Errorf("discovery: insert swiper notification: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insertNotification, targetID, swiperID, matchMessage); err != nil {
		return Result{}, fmt.Errorf("discovery: insert target notification: %w", err)
	}

	return Result{Matched: true, MatchID: matchID, RoomID: roomID}, nil
}
