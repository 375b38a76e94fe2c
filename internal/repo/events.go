package repo

import (
	"context"
	"strings"

	"coursehub/internal/domain"
)

const eventColumns = `id,ts,type,entity_kind,COALESCE(entity_id,'') AS entity_id,actor_id,payload_json`

// EventFilter narrows event log queries. Empty fields match everything.
type EventFilter struct {
	Type       string
	EntityKind string
	EntityID   string
}

func (f EventFilter) where() (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Type != "" {
		conds = append(conds, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityKind != "" {
		conds = append(conds, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		conds = append(conds, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(conds, " AND "), args
}

// LatestEvents returns the newest n events, newest first.
func (r Repo) LatestEvents(ctx context.Context, q Querier, n int, f EventFilter) ([]domain.Event, error) {
	if n <= 0 {
		n = 20
	}
	cond, args := f.where()
	args = append(args, n)
	res := []domain.Event{}
	err := selectAll(ctx, r.q(q), &res, `SELECT `+eventColumns+` FROM events WHERE 1=1`+cond+` ORDER BY id DESC LIMIT ?`, args...)
	return res, err
}

// EventsAfter returns up to limit events with id greater than cursor, oldest first.
func (r Repo) EventsAfter(ctx context.Context, q Querier, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	res := []domain.Event{}
	err := selectAll(ctx, r.q(q), &res, `SELECT `+eventColumns+` FROM events WHERE id>? ORDER BY id LIMIT ?`, cursor, limit)
	return res, err
}

func (r Repo) LatestEventID(ctx context.Context, q Querier) (int64, error) {
	var id int64
	err := get(ctx, r.q(q), &id, `SELECT COALESCE(MAX(id), 0) FROM events`)
	return id, err
}
