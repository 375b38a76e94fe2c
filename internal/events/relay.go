package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"coursehub/internal/domain"
	"coursehub/internal/logging"
	"coursehub/internal/repo"
)

const (
	defaultRelayInterval = 2 * time.Second
	defaultRelayBatch    = 100
)

// Message is the JSON published for every event.
type Message struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

// Relay tails the event log and publishes new events to a Redis channel. The
// last published id is kept in Redis so a restarted relay resumes where it
// stopped.
type Relay struct {
	Repo     repo.Repo
	Client   *redis.Client
	Channel  string
	Interval time.Duration
	Batch    int
	Log      *logging.Logger
}

// NewRedisClient parses a redis:// URL and checks the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func (r *Relay) cursorKey() string {
	return r.Channel + ":cursor"
}

func (r *Relay) logger() *logging.Logger {
	if r.Log != nil {
		return r.Log
	}
	return logging.Nop()
}

// Cursor returns the id of the last published event.
func (r *Relay) Cursor(ctx context.Context) (int64, error) {
	raw, err := r.Client.Get(ctx, r.cursorKey()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

// Run flushes on every tick until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = defaultRelayInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
			r.logger().Warn("event relay flush failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Flush publishes one batch of events after the stored cursor and returns how
// many were published.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	cursor, err := r.Cursor(ctx)
	if err != nil {
		return 0, fmt.Errorf("read relay cursor: %w", err)
	}
	batch := r.Batch
	if batch <= 0 {
		batch = defaultRelayBatch
	}
	items, err := r.Repo.EventsAfter(ctx, nil, batch, cursor)
	if err != nil {
		return 0, fmt.Errorf("fetch events: %w", err)
	}
	published := 0
	for _, evt := range items {
		data, err := json.Marshal(toMessage(evt))
		if err != nil {
			return published, err
		}
		if err := r.Client.Publish(ctx, r.Channel, data).Err(); err != nil {
			return published, fmt.Errorf("publish event %d: %w", evt.ID, err)
		}
		if err := r.Client.Set(ctx, r.cursorKey(), evt.ID, 0).Err(); err != nil {
			return published, fmt.Errorf("store relay cursor: %w", err)
		}
		published++
	}
	return published, nil
}

func toMessage(evt domain.Event) Message {
	payload := json.RawMessage("{}")
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	return Message{
		ID:         evt.ID,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    payload,
	}
}
