package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"coursehub/internal/db"
	"coursehub/internal/migrate"
	"coursehub/internal/repo"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func setupRelay(t *testing.T) (*Relay, *redis.Client, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), "redis://"+s.Addr())
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	relay := &Relay{
		Repo:    repo.Repo{DB: newTestDB(t)},
		Client:  client,
		Channel: "coursehub.events",
		Batch:   2,
	}
	return relay, client, s
}

func TestAppendDefaultsToSystemActor(t *testing.T) {
	ctx := context.Background()
	conn := newTestDB(t)
	w := Writer{Now: func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }}
	if err := w.Append(ctx, conn, CertificateIssued, "certificate", "cert1", "", nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	items, err := repo.Repo{DB: conn}.LatestEvents(ctx, nil, 1, repo.EventFilter{})
	if err != nil || len(items) != 1 {
		t.Fatalf("expected one event, got %v (%v)", items, err)
	}
	evt := items[0]
	if evt.ActorID != "system" || evt.TS != "2024-01-01T12:00:00Z" || evt.Payload != "{}" {
		t.Fatalf("unexpected event: %+v", evt)
	}
}

func TestRelayPublishesInBatchesAndResumes(t *testing.T) {
	ctx := context.Background()
	relay, client, s := setupRelay(t)
	w := Writer{}
	for _, id := range []string{"c1", "c2", "c3"} {
		if err := w.Append(ctx, relay.Repo.DB, CourseCreated, "course", id, "ines", EventPayload{"title": id}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	sub := client.Subscribe(ctx, relay.Channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	msgs := sub.Channel()

	n, err := relay.Flush(ctx)
	if err != nil || n != 2 {
		t.Fatalf("expected a batch of 2, got %d (%v)", n, err)
	}
	cursor, err := relay.Cursor(ctx)
	if err != nil || cursor != 2 {
		t.Fatalf("expected cursor 2, got %d (%v)", cursor, err)
	}
	if got, _ := s.Get(relay.Channel + ":cursor"); got != "2" {
		t.Fatalf("cursor must be stored in redis, got %q", got)
	}

	// A fresh relay picks up after the stored cursor.
	next := &Relay{Repo: relay.Repo, Client: client, Channel: relay.Channel}
	n, err = next.Flush(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected the remaining event, got %d (%v)", n, err)
	}
	n, err = next.Flush(ctx)
	if err != nil || n != 0 {
		t.Fatalf("expected nothing left, got %d (%v)", n, err)
	}

	var got []Message
	timeout := time.After(2 * time.Second)
	for len(got) < 3 {
		select {
		case m := <-msgs:
			var msg Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				t.Fatalf("decode message: %v", err)
			}
			got = append(got, msg)
		case <-timeout:
			t.Fatalf("received %d of 3 messages", len(got))
		}
	}
	for i, msg := range got {
		if msg.ID != int64(i+1) || msg.Type != CourseCreated || msg.ActorID != "ines" {
			t.Fatalf("unexpected message %d: %+v", i, msg)
		}
	}
	var payload map[string]string
	if err := json.Unmarshal(got[2].Payload, &payload); err != nil || payload["title"] != "c3" {
		t.Fatalf("payload must pass through, got %s", got[2].Payload)
	}
}

func TestRelayRunStopsWithContext(t *testing.T) {
	relay, _, s := setupRelay(t)
	relay.Interval = 10 * time.Millisecond
	if err := (Writer{}).Append(context.Background(), relay.Repo.DB, ReviewSubmitted, "review", "r1", "sam", nil); err != nil {
		t.Fatalf("append: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if v, _ := s.Get(relay.Channel + ":cursor"); v == "1" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("relay did not stop")
	}
	if v, _ := s.Get(relay.Channel + ":cursor"); v != "1" {
		t.Fatalf("expected the event to be relayed, cursor=%q", v)
	}
}

func TestNewRedisClientRejectsBadURL(t *testing.T) {
	if _, err := NewRedisClient(context.Background(), "://nope"); err == nil {
		t.Fatalf("expected parse error")
	}
}
