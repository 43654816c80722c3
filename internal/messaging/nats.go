// Package messaging provides a NATS client wrapper for pub/sub messaging
// between the FeastFriends gateway and matcher. It handles connection
// lifecycle, subject-based subscriptions, and convenience methods for the
// matchmaking request and per-user event channels.
package messaging

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subject patterns used across FeastFriends services.
const (
	SubjectJoin      = "match.join"   // gateway -> matcher: join matchmaking
	SubjectLeave     = "match.leave"  // gateway -> matcher: leave waiting room
	SubjectUserEvent = "user.events"  // + .<user_id>: realtime events fanned out per user
)

// Client wraps the NATS connection with helper methods for pub/sub.
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
		Name:          "feastfriends",
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

// Publish sends data to the given NATS subject.
func (c *Client) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *Client) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()

	return nil
}

// PublishJoin publishes a matchmaking join request.
func (c *Client) PublishJoin(data []byte) error {
	return c.Publish(SubjectJoin, data)
}

// SubscribeJoin subscribes to matchmaking join requests from gateways.
func (c *Client) SubscribeJoin(handler func(data []byte)) error {
	return c.Subscribe(SubjectJoin, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// PublishLeave publishes a waiting-room leave request.
func (c *Client) PublishLeave(data []byte) error {
	return c.Publish(SubjectLeave, data)
}

// SubscribeLeave subscribes to waiting-room leave requests from gateways.
func (c *Client) SubscribeLeave(handler func(data []byte)) error {
	return c.Subscribe(SubjectLeave, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// PublishUserEvent publishes a realtime event to a single user's subject.
func (c *Client) PublishUserEvent(userID string, data []byte) error {
	return c.Publish(SubjectUserEvent+"."+userID, data)
}

// SubscribeUserEvents subscribes to a user's realtime event subject. The
// subscription is keyed by user ID so the gateway can drop it on
// disconnect.
func (c *Client) SubscribeUserEvents(userID string, handler func(data []byte)) error {
	subject := SubjectUserEvent + "." + userID
	return c.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// UnsubscribeUserEvents drops a user's realtime event subscription.
func (c *Client) UnsubscribeUserEvents(userID string) error {
	return c.unsubscribe(SubjectUserEvent + "." + userID)
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

// unsubscribe removes and unsubscribes from a specific subject.
func (c *Client) unsubscribe(subject string) error {
	c.mu.Lock()
	sub, ok := c.subs[subject]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("nats: no subscription for subject %s", subject)
	}
	delete(c.subs, subject)
	c.mu.Unlock()

	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe %s: %w", subject, err)
	}
	return nil
}
