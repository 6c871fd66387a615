// Package messaging provides a NATS client wrapper for pub/sub messaging
// around the Guard analysis service. It handles connection lifecycle,
// subject-based subscriptions, and convenience methods for the analysis
// request/result/alert channels.
package messaging

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subject patterns used by the Guard service.
const (
	SubjectAnalyze = "guard.analyze"
	SubjectResult  = "guard.result" // + .<user_id>
	SubjectAlert   = "guard.alert.high_risk"
)

// AnalyzeRequest is the payload publishers send on guard.analyze.
type AnalyzeRequest struct {
	Text     string         `json:"text"`
	UserID   string         `json:"user_id"`
	Platform string         `json:"platform"`
	Context  map[string]any `json:"context,omitempty"`
}

// Rejection is published on guard.result.<user_id> when a message is
// refused at ingress rather than analyzed.
type Rejection struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "guard",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
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

	return &NATSClient{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *NATSClient) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()

	return nil
}

// SubscribeAnalyze subscribes to analysis requests from producers.
func (c *NATSClient) SubscribeAnalyze(handler func(data []byte)) error {
	return c.Subscribe(SubjectAnalyze, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// PublishAnalyze publishes an analysis request.
func (c *NATSClient) PublishAnalyze(data []byte) error {
	return c.Publish(SubjectAnalyze, data)
}

// PublishResult publishes an analysis result to the guard.result.<userID>
// subject.
func (c *NATSClient) PublishResult(userID string, data []byte) error {
	return c.Publish(SubjectResult+"."+userID, data)
}

// SubscribeResult subscribes to analysis results for a specific user.
func (c *NATSClient) SubscribeResult(userID string, handler func(data []byte)) error {
	subject := SubjectResult + "." + userID
	return c.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// UnsubscribeResult unsubscribes from a user's result subject.
func (c *NATSClient) UnsubscribeResult(userID string) error {
	return c.unsubscribe(SubjectResult + "." + userID)
}

// PublishAlert publishes a high-risk alert.
func (c *NATSClient) PublishAlert(data []byte) error {
	return c.Publish(SubjectAlert, data)
}

// SubscribeAlerts subscribes to high-risk alerts.
func (c *NATSClient) SubscribeAlerts(handler func(data []byte)) error {
	return c.Subscribe(SubjectAlert, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
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
func (c *NATSClient) unsubscribe(subject string) error {
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
