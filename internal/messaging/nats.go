// Package messaging provides a NATS client wrapper for the gateway's
// outbound domain-event feed. Match and message creation facts are published
// for downstream services (notifier, moderation, analytics); publishing is
// fire-and-forget and never participates in realtime dispatch, which stays a
// single-process concern.
package messaging

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subjects published by the realtime gateway.
const (
	SubjectMatchCreated   = "match.created"
	SubjectMessageCreated = "chat.message.created"
)

// MatchCreatedEvent is published when a completing swipe creates a match.
type MatchCreatedEvent struct {
	MatchID int64 `json:"match_id"`
	RoomID  int64 `json:"room_id"`
	UserOne int64 `json:"user_one"`
	UserTwo int64 `json:"user_two"`
	Ts      int64 `json:"ts"`
}

// MessageCreatedEvent is published when a chat message is persisted.
type MessageCreatedEvent struct {
	MessageID   int64 `json:"message_id"`
	RoomID      int64 `json:"room_id"`
	SenderID    int64 `json:"sender_id"`
	RecipientID int64 `json:"recipient_id"`
	HasMedia    bool  `json:"has_media"`
	Ts          int64 `json:"ts"`
}

// Client wraps the NATS connection with helper methods for the gateway's
// subjects.
type Client struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// Config holds NATS connection settings.
type Config struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		Name:          "meixup-gateway",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// NewClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewClient(config Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &Client{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// PublishMatchCreated publishes a match-created fact. Marshal or publish
// failures are logged and swallowed: the feed is best-effort and must not
// affect the swipe transaction that already committed.
func (c *Client) PublishMatchCreated(ev MatchCreatedEvent) {
	c.publishJSON(SubjectMatchCreated, ev)
}

// PublishMessageCreated publishes a message-created fact.
func (c *Client) PublishMessageCreated(ev MessageCreatedEvent) {
	c.publishJSON(SubjectMessageCreated, ev)
}

func (c *Client) publishJSON(subject string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[nats] marshal %s: %v", subject, err)
		return
	}
	if err := c.conn.Publish(subject, data); err != nil {
		log.Printf("[nats] publish %s: %v", subject, err)
	}
}

// SubscribeMatchCreated registers a handler for match-created events.
func (c *Client) SubscribeMatchCreated(handler func(ev MatchCreatedEvent)) error {
	return c.subscribe(SubjectMatchCreated, func(msg *nats.Msg) {
		var ev MatchCreatedEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			log.Printf("[nats] unmarshal %s: %v", SubjectMatchCreated, err)
			return
		}
		handler(ev)
	})
}

// SubscribeMessageCreated registers a handler for message-created events.
func (c *Client) SubscribeMessageCreated(handler func(ev MessageCreatedEvent)) error {
	return c.subscribe(SubjectMessageCreated, func(msg *nats.Msg) {
		var ev MessageCreatedEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			log.Printf("[nats] unmarshal %s: %v", SubjectMessageCreated, err)
			return
		}
		handler(ev)
	})
}

func (c *Client) subscribe(subject string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()
	return nil
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", subject, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}
