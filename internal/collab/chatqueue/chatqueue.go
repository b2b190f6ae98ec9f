// Package chatqueue is a Redis Streams-backed ChatConnector: it publishes
// connection lifecycle markers onto a stream so external chat-relay
// workers can observe when the engine considers chat "live" for a group.
package chatqueue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config configures a Connector. Zero values take the defaults noted per
// field.
type Config struct {
	Addr         string // required
	Password     string
	Stream       string        // default "spiritstream:chat"
	DialTimeout  time.Duration // default 5s
	WriteTimeout time.Duration // default 5s
}

// Connector is a Redis-backed ChatConnector (internal/collab.ChatConnector).
type Connector struct {
	client *redis.Client
	stream string
	connID string
}

// New validates cfg and builds a Connector. The Redis client is
// constructed eagerly but no connection is attempted until Connect.
func New(cfg Config, connID string) (*Connector, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("chatqueue: redis addr is required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		stream = "spiritstream:chat"
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DialTimeout:  dialTimeout,
		WriteTimeout: writeTimeout,
	})

	return &Connector{client: client, stream: stream, connID: connID}, nil
}

// NewWithClient builds a Connector around an already-constructed client —
// used in tests against testsupport/redisstub.
func NewWithClient(client *redis.Client, stream, connID string) *Connector {
	if stream == "" {
		stream = "spiritstream:chat"
	}
	return &Connector{client: client, stream: stream, connID: connID}
}

// Connect publishes a "connected" marker onto the stream.
func (c *Connector) Connect(ctx context.Context) error {
	return c.publish(ctx, "connected")
}

// Close publishes a "disconnected" marker and closes the underlying Redis
// client.
func (c *Connector) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.publish(ctx, "disconnected"); err != nil {
		_ = c.client.Close()
		return err
	}
	return c.client.Close()
}

func (c *Connector) publish(ctx context.Context, status string) error {
	err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.stream,
		Values: map[string]any{
			"conn_id": c.connID,
			"status":  status,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("chatqueue: publish %s: %w", status, err)
	}
	return nil
}
