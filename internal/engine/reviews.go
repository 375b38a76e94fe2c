package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	"coursehub/internal/domain"
	"coursehub/internal/engine/auth"
	"coursehub/internal/events"
	"coursehub/internal/repo"
)

type SubmitReviewInput struct {
	// StudentID defaults to the actor and must equal it when set.
	StudentID string  `json:"student_id,omitempty"`
	Rating    int     `json:"rating"`
	Comment   *string `json:"comment" validate:"omitempty,max=5000"`
}

// SubmitReview creates or replaces the actor's review of a course.
func (e Engine) SubmitReview(ctx context.Context, actor domain.Actor, courseID string, in SubmitReviewInput) (domain.Review, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return domain.Review{}, with(ErrInvalidRating, map[string]any{"rating": in.Rating}, nil)
	}
	if err := validateInput(in); err != nil {
		return domain.Review{}, err
	}
	if in.Comment != nil {
		c := strings.TrimSpace(*in.Comment)
		in.Comment = &c
	}
	var rv domain.Review
	err := e.withTx(ctx, "SubmitReview", actor, func(ctx context.Context, tx *sqlx.Tx) error {
		if !actor.Authenticated() || (in.StudentID != "" && in.StudentID != actor.ID) {
			return ErrUnauthorized
		}
		t, err := e.Resolver.Course(ctx, tx, actor, courseID)
		if err != nil {
			return err
		}
		if !t.ActorEnrolled {
			return with(ErrNotEnrolled, map[string]any{"course_id": courseID}, nil)
		}
		t.StudentID = actor.ID
		op := auth.OpCreate
		existing, err := e.Repo.FindReview(ctx, tx, courseID, actor.ID)
		switch {
		case err == nil:
			op = auth.OpUpdate
			t.Review = &existing
		case !errors.Is(err, repo.ErrNotFound):
			return err
		}
		if err := e.enforce(actor, auth.EntityReview, op, t); err != nil {
			return err
		}
		now := e.stamp()
		rv, err = e.Repo.UpsertReview(ctx, tx, domain.Review{
			ID:        newID(),
			CourseID:  courseID,
			StudentID: actor.ID,
			Rating:    in.Rating,
			Comment:   in.Comment,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}
		return e.emit(ctx, tx, events.ReviewSubmitted, "review", rv.ID, actor.ID, events.EventPayload{
			"course_id": courseID,
			"rating":    rv.Rating,
			"replaced":  op == auth.OpUpdate,
		})
	})
	return rv, err
}

func (e Engine) ListReviews(ctx context.Context, actor domain.Actor, courseID string, limit, offset int) ([]domain.Review, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var out []domain.Review
	err := e.withTx(ctx, "ListReviews", actor, func(ctx context.Context, tx *sqlx.Tx) error {
		t, err := e.Resolver.Course(ctx, tx, actor, courseID)
		if err != nil {
			return err
		}
		if err := e.enforce(actor, auth.EntityReview, auth.OpRead, t); err != nil {
			return err
		}
		out, err = e.Repo.ListCourseReviews(ctx, tx, courseID, limit, offset)
		return err
	})
	return out, err
}

func (e Engine) DeleteReview(ctx context.Context, actor domain.Actor, reviewID string) error {
	return e.withTx(ctx, "DeleteReview", actor, func(ctx context.Context, tx *sqlx.Tx) error {
		t, err := e.Resolver.Review(ctx, tx, actor, reviewID)
		if err != nil {
			return err
		}
		if err := e.enforce(actor, auth.EntityReview, auth.OpDelete, t); err != nil {
			return err
		}
		if err := e.Repo.DeleteReview(ctx, tx, reviewID); err != nil {
			return err
		}
		return e.emit(ctx, tx, events.ReviewDeleted, "review", reviewID, actor.ID, events.EventPayload{"course_id": t.Course.ID})
	})
}

// CourseStats aggregates ratings and enrollments on read. Nothing here is
// ever stored.
func (e Engine) CourseStats(ctx context.Context, actor domain.Actor, courseID string) (domain.CourseStats, error) {
	var stats domain.CourseStats
	err := e.withTx(ctx, "CourseStats", actor, func(ctx context.Context, tx *sqlx.Tx) error {
		t, err := e.Resolver.Course(ctx, tx, actor, courseID)
		if err != nil {
			return err
		}
		if err := e.enforce(actor, auth.EntityCourse, auth.OpRead, t); err != nil {
			return err
		}
		if stats, err = e.Repo.ReviewStats(ctx, tx, courseID); err != nil {
			return err
		}
		stats.Enrollments, err = e.Repo.CountCourseEnrollments(ctx, tx, courseID)
		return err
	})
	return stats, err
}
