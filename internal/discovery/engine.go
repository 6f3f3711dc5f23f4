// Package discovery implements the swipe/match pipeline: every swipe is
// persisted, and a positive swipe whose reverse direction is already
// positive creates the match, its chat room, and both notification rows in a
// single transaction. Realtime NEW_MATCH pushes ride on top and are
// best-effort.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meixup/realtime/internal/event"
	"github.com/meixup/realtime/internal/messaging"
	"github.com/meixup/realtime/internal/metrics"
)

// Kind classifies a swipe action.
type Kind string

const (
	KindLike      Kind = "like"
	KindDislike   Kind = "dislike"
	KindSuperLike Kind = "super-like"
)

// Positive reports whether the kind counts toward a mutual match.
func (k Kind) Positive() bool {
	return k == KindLike || k == KindSuperLike
}

// ParseKind validates a client-supplied swipe kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindLike, KindDislike, KindSuperLike:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: unknown swipe kind %q", ErrInvalidSwipe, s)
	}
}

// ErrInvalidSwipe covers swipes rejected before any persistence: self-swipes
// and unknown kinds.
var ErrInvalidSwipe = errors.New("discovery: invalid swipe")

// matchMessage is the human-readable line attached to NEW_MATCH pushes and
// notification rows.
const matchMessage = "It's a match!"

// Result describes the durable outcome of a swipe.
type Result struct {
	Matched bool  // true if this swipe completed a mutual match
	MatchID int64 // set when Matched
	RoomID  int64 // chat room created for the pair, set when Matched
}

// SwipeStore is the transactional persistence contract the engine depends
// on. RecordSwipe must persist the swipe and, when it completes a mutual
// match, create the match row, the pair's chat room, and both notification
// rows atomically. A duplicate completing swipe must return Matched=false
// rather than a second match.
type SwipeStore interface {
	RecordSwipe(ctx context.Context, swiperID, targetID int64, kind Kind) (Result, error)
}

// EventSink receives best-effort realtime pushes. Satisfied by
// dispatch.Dispatcher.
type EventSink interface {
	SendTo(userID int64, ev event.Event)
}

// MatchFeed receives durable match facts for downstream services. Satisfied
// by messaging.Client; may be nil when the gateway runs without NATS.
type MatchFeed interface {
	PublishMatchCreated(ev messaging.MatchCreatedEvent)
}

// Engine runs the swipe/match state machine.
type Engine struct {
	store SwipeStore
	sink  EventSink
	feed  MatchFeed
}

// NewEngine creates an Engine. feed may be nil.
func NewEngine(store SwipeStore, sink EventSink, feed MatchFeed) *Engine {
	return &Engine{store: store, sink: sink, feed: feed}
}

// Swipe records a swipe by swiperID on targetID and runs match detection.
// Persistence failures abort the whole operation and are returned to the
// caller; push delivery failures are absorbed by the dispatcher and never
// affect the returned result.
func (e *Engine) Swipe(ctx context.Context, swiperID, targetID int64, kind Kind) (Result, error) {
	if swiperID == targetID {
		return Result{}, fmt.Errorf("%w: cannot swipe on yourself", ErrInvalidSwipe)
	}
	if _, err := ParseKind(string(kind)); err != nil {
		return Result{}, err
	}

	res, err := e.store.RecordSwipe(ctx, swiperID, targetID, kind)
	if err != nil {
		return Result{}, err
	}

	metrics.SwipesTotal.WithLabelValues(string(kind)).Inc()

	if !res.Matched {
		return res, nil
	}

	metrics.MatchesTotal.Inc()

	// The match is durable at this point. Everything below is best-effort
	// and must not turn a committed match into a caller-visible error.
	e.sink.SendTo(swiperID, event.NewMatch(event.MatchData{
		MatchID:   res.MatchID,
		RoomID:    res.RoomID,
		PartnerID: targetID,
		Message:   matchMessage,
	}))
	e.sink.SendTo(targetID, event.NewMatch(event.MatchData{
		MatchID:   res.MatchID,
		RoomID:    res.RoomID,
		PartnerID: swiperID,
		Message:   matchMessage,
	}))

	if e.feed != nil {
		e.feed.PublishMatchCreated(messaging.MatchCreatedEvent{
			MatchID: res.MatchID,
			RoomID:  res.RoomID,
			UserOne: swiperID,
			UserTwo: targetID,
			Ts:      time.Now().Unix(),
		})
	}

	return res, nil
}
