package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"coursehub/internal/config"
	"coursehub/internal/domain"
	"coursehub/internal/engine/auth"
	"coursehub/internal/events"
	"coursehub/internal/logging"
	"coursehub/internal/repo"
)

// Engine is the query/command surface of the marketplace core. Every call
// takes the acting identity explicitly and is authorized before it touches
// anything.
type Engine struct {
	DB       *sqlx.DB
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	Policy   auth.Policy
	Resolver auth.Resolver
	Log      *logging.Logger
	Now      func() time.Time
}

func New(db *sqlx.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	r := repo.Repo{DB: db}
	return Engine{
		DB:       db,
		Repo:     r,
		Events:   events.Writer{},
		Config:   cfg,
		Policy:   auth.DefaultPolicy,
		Resolver: auth.Resolver{Repo: r},
		Log:      logging.Nop(),
		Now:      time.Now,
	}
}

var tracer = otel.Tracer("coursehub/engine")

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logger() *logging.Logger {
	if e.Log != nil {
		return e.Log
	}
	return logging.Nop()
}

func (e Engine) policy() auth.Policy {
	if e.Policy != nil {
		return e.Policy
	}
	return auth.DefaultPolicy
}

func (e Engine) enforce(actor domain.Actor, entity auth.Entity, op auth.Op, t auth.Target) error {
	return e.policy().Enforce(actor, entity, op, t)
}

func (e Engine) emit(ctx context.Context, tx *sqlx.Tx, evtType, entityKind, entityID, actorID string, payload events.EventPayload) error {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w.Append(ctx, tx, evtType, entityKind, entityID, actorID, payload)
}

func (e Engine) storageTimeout() time.Duration {
	if e.Config != nil && e.Config.Database.Timeout > 0 {
		return e.Config.Database.Timeout
	}
	return 0
}

// withTx runs fn in a transaction bounded by the storage timeout and traced as
// engine.<op>. Every repo call inside fn must go through tx.
func (e Engine) withTx(ctx context.Context, op string, actor domain.Actor, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	ctx, span := tracer.Start(ctx, "engine."+op, trace.WithAttributes(attribute.String("actor.id", actor.ID)))
	defer span.End()
	if d := e.storageTimeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	err := func() error {
		tx, err := e.DB.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return tx.Commit()
	}()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = with(ErrTimeout, nil, err)
		}
		err = normalize(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
		return err
	}
	return nil
}

func newID() string {
	return uuid.NewString()
}

// certificateNumber builds a human readable, unique certificate number.
func (e Engine) certificateNumber() string {
	prefix := "CH"
	if e.Config != nil && strings.TrimSpace(e.Config.Certificates.NumberPrefix) != "" {
		prefix = strings.TrimSpace(e.Config.Certificates.NumberPrefix)
	}
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
	return fmt.Sprintf("%s-%s-%s", prefix, e.now().UTC().Format("20060102"), suffix)
}

// percentage is round(100 * completed / total), 0 for an empty course.
func percentage(completed, total int) int {
	if total <= 0 {
		return 0
	}
	if completed > total {
		completed = total
	}
	return (200*completed + total) / (2 * total)
}

func (e Engine) completionPolicy() string {
	if e.Config != nil && e.Config.Progress.CompletionPolicy != "" {
		return e.Config.Progress.CompletionPolicy
	}
	return config.CompletionOneWay
}

func (e Engine) autoIssue() bool {
	return e.Config == nil || e.Config.Certificates.AutoIssue
}

// requireProfile loads the actor's profile; the profile's role is the
// authoritative one.
func (e Engine) requireProfile(ctx context.Context, tx *sqlx.Tx, actor domain.Actor) (domain.Actor, error) {
	if !actor.Authenticated() {
		return actor, ErrUnauthorized
	}
	p, err := e.Repo.GetProfile(ctx, tx, actor.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return actor, ErrProfileRequired
	}
	if err != nil {
		return actor, err
	}
	actor.Role = p.Role
	return actor, nil
}
