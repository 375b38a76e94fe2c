package engine

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"coursehub/internal/config"
	"coursehub/internal/domain"
	"coursehub/internal/engine/auth"
	"coursehub/internal/events"
	"coursehub/internal/repo"
)

type RecordProgressInput struct {
	EnrollmentID   string `json:"enrollment_id" validate:"required"`
	LessonID       string `json:"lesson_id" validate:"required"`
	WatchedSeconds int    `json:"watched_seconds" validate:"gte=0"`
	Completed      bool   `json:"completed"`
}

// ProgressResult is what RecordProgress hands back: the stored row, the
// enrollment after recomputation and whether this call completed the course.
type ProgressResult struct {
	Progress       domain.LessonProgress `json:"progress"`
	Enrollment     domain.Enrollment     `json:"enrollment"`
	NewlyCompleted bool                  `json:"newly_completed"`
	Revoked        bool                  `json:"revoked,omitempty"`
	Certificate    *domain.Certificate   `json:"certificate,omitempty"`
}

// Enroll registers the actor in a course. Drafts are only open to their own
// instructor.
func (e Engine) Enroll(ctx context.Context, actor domain.Actor, courseID string) (domain.Enrollment, error) {
	var en domain.Enrollment
	err := e.withTx(ctx, "Enroll", actor, func(ctx context.Context, tx *sqlx.Tx) error {
		t, err := e.Resolver.Course(ctx, tx, actor, courseID)
		if errors.Is(err, auth.ErrUnresolved) {
			return with(ErrCourseUnavailable, map[string]any{"course_id": courseID}, err)
		}
		if err != nil {
			return err
		}
		t.StudentID = actor.ID
		if err := e.enforce(actor, auth.EntityEnrollment, auth.OpCreate, t); err != nil {
			return err
		}
		if _, err := e.requireProfile(ctx, tx, actor); err != nil {
			return err
		}
		if t.ActorEnrolled {
			return with(ErrAlreadyEnrolled, map[string]any{"course_id": courseID}, nil)
		}
		if !t.Course.IsPublished && t.Course.InstructorID != actor.ID {
			return with(ErrCourseUnavailable, map[string]any{"course_id": courseID}, nil)
		}
		en = domain.Enrollment{
			ID:         newID(),
			StudentID:  actor.ID,
			CourseID:   courseID,
			EnrolledAt: e.stamp(),
		}
		if err := e.Repo.InsertEnrollment(ctx, tx, en); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return with(ErrAlreadyEnrolled, map[string]any{"course_id": courseID}, err)
			}
			return err
		}
		return e.emit(ctx, tx, events.EnrollmentCreated, "enrollment", en.ID, actor.ID, events.EventPayload{
			"course_id":  courseID,
			"student_id": actor.ID,
		})
	})
	return en, err
}

// GetEnrollment looks up the (student, course) enrollment. A missing
// enrollment is NotFound only for callers entitled to see it.
func (e Engine) GetEnrollment(ctx context.Context, actor domain.Actor, studentID, courseID string) (domain.Enrollment, error) {
	var en domain.Enrollment
	err := e.withTx(ctx, "GetEnrollment", actor, func(ctx context.Context, tx *sqlx.Tx) error {
		if !actor.Authenticated() {
			return ErrUnauthorized
		}
		found, err := e.Repo.FindEnrollment(ctx, tx, studentID, courseID)
		if errors.Is(err, repo.ErrNotFound) {
			if actor.ID == studentID {
				return with(ErrNotFound, map[string]any{"course_id": courseID}, err)
			}
			t, rerr := e.Resolver.Course(ctx, tx, actor, courseID)
			if rerr != nil {
				return rerr
			}
			if t.Course.InstructorID == actor.ID {
				return with(ErrNotFound, map[string]any{"course_id": courseID, "student_id": studentID}, err)
			}
			return ErrUnauthorized
		}
		if err != nil {
			return err
		}
		t, err := e.Resolver.Enrollment(ctx, tx, actor, found.ID)
		if err != nil {
			return err
		}
		if err := e.enforce(actor, auth.EntityEnrollment, auth.OpRead, t); err != nil {
			return err
		}
		en, err = e.refreshed(ctx, tx, *t.Enrollment)
		return err
	})
	return en, err
}

func (e Engine) GetEnrollmentByID(ctx context.Context, actor domain.Actor, enrollmentID string) (domain.Enrollment, error) {
	var en domain.Enrollment
	err := e.withTx(ctx, "GetEnrollmentByID", actor, func(ctx context.Context, tx *sqlx.Tx) error {
		t, err := e.Resolver.Enrollment(ctx, tx, actor, enrollmentID)
		if err != nil {
			return err
		}
		if err := e.enforce(actor, auth.EntityEnrollment, auth.OpRead, t); err != nil {
			return err
		}
		en, err = e.refreshed(ctx, tx, *t.Enrollment)
		return err
	})
	return en, err
}

func (e Engine) ListMyEnrollments(ctx context.Context, actor domain.Actor) ([]domain.Enrollment, error) {
	var out []domain.Enrollment
	err := e.withTx(ctx, "ListMyEnrollments", actor, func(ctx context.Context, tx *sqlx.Tx) error {
		if !actor.Authenticated() {
			return ErrUnauthorized
		}
		list, err := e.Repo.ListStudentEnrollments(ctx, tx, actor.ID)
		if err != nil {
			return err
		}
		out = make([]domain.Enrollment, 0, len(list))
		for _, en := range list {
			en, err = e.refreshed(ctx, tx, en)
			if err != nil {
				return err
			}
			out = append(out, en)
		}
		return nil
	})
	return out, err
}

// ListCourseEnrollments is the instructor's roster for a course.
func (e Engine) ListCourseEnrollments(ctx context.Context, actor domain.Actor, courseID string) ([]domain.Enrollment, error) {
	var out []domain.Enrollment
	err := e.withTx(ctx, "ListCourseEnrollments", actor, func(ctx context.Context, tx *sqlx.Tx) error {
		t, err := e.Resolver.Course(ctx, tx, actor, courseID)
		if err != nil {
			return err
		}
		t.Enrollment = &domain.Enrollment{CourseID: courseID}
		if err := e.enforce(actor, auth.EntityEnrollment, auth.OpRead, t); err != nil {
			return err
		}
		list, err := e.Repo.ListCourseEnrollments(ctx, tx, courseID)
		if err != nil {
			return err
		}
		total, err := e.Repo.CountCourseLessons(ctx, tx, courseID)
		if err != nil {
			return err
		}
		out = make([]domain.Enrollment, 0, len(list))
		for _, en := range list {
			done, err := e.Repo.CountCompletedLessons(ctx, tx, en.ID, courseID)
			if err != nil {
				return err
			}
			en.ProgressPercentage = percentage(done, total)
			out = append(out, en)
		}
		return nil
	})
	return out, err
}

// GetProgress reports the enrollment's percentage together with one row per
// lesson of the course. Only the enrolled student may read the rows; the
// instructor sees percentages through the enrollment views.
func (e Engine) GetProgress(ctx context.Context, actor domain.Actor, enrollmentID string) (domain.ProgressReport, error) {
	var rep domain.ProgressReport
	err := e.withTx(ctx, "GetProgress", actor, func(ctx context.Context, tx *sqlx.Tx) error {
		t, err := e.Resolver.Enrollment(ctx, tx, actor, enrollmentID)
		if err != nil {
			return err
		}
		if err := e.enforce(actor, auth.EntityProgress, auth.OpRead, t); err != nil {
			return err
		}
		rows, err := e.Repo.ListProgressRows(ctx, tx, enrollmentID, t.Enrollment.CourseID)
		if err != nil {
			return err
		}
		done := 0
		for _, r := range rows {
			if r.IsCompleted {
				done++
			}
		}
		en := *t.Enrollment
		en.ProgressPercentage = percentage(done, len(rows))
		rep = domain.ProgressReport{
			Enrollment:       en,
			TotalLessons:     len(rows),
			CompletedLessons: done,
			Lessons:          rows,
		}
		return nil
	})
	return rep, err
}

// refreshed recomputes the percentage against the course's current lessons
// without writing it back.
func (e Engine) refreshed(ctx context.Context, tx *sqlx.Tx, en domain.Enrollment) (domain.Enrollment, error) {
	total, err := e.Repo.CountCourseLessons(ctx, tx, en.CourseID)
	if err != nil {
		return en, err
	}
	done, err := e.Repo.CountCompletedLessons(ctx, tx, en.ID, en.CourseID)
	if err != nil {
		return en, err
	}
	en.ProgressPercentage = percentage(done, total)
	return en, nil
}

// RecordProgress upserts the (enrollment, lesson) progress row, recomputes the
// course percentage and stamps completion the first time it reaches 100. With
// auto-issue on, a newly completed enrollment gets its certificate right after
// the progress commit.
func (e Engine) RecordProgress(ctx context.Context, actor domain.Actor, in RecordProgressInput) (ProgressResult, error) {
	if err := validateInput(in); err != nil {
		return ProgressResult{}, err
	}
	var res ProgressResult
	err := e.withTx(ctx, "RecordProgress", actor, func(ctx context.Context, tx *sqlx.Tx) error {
		t, err := e.Resolver.Enrollment(ctx, tx, actor, in.EnrollmentID)
		if err != nil {
			return err
		}
		if err := e.enforce(actor, auth.EntityProgress, auth.OpUpdate, t); err != nil {
			return err
		}
		// Concurrent completions of the last lessons must see each other's rows.
		locked, err := e.Repo.LockEnrollment(ctx, tx, in.EnrollmentID)
		if err != nil {
			return err
		}
		t.Enrollment = &locked
		lessonCourse, err := e.Repo.LessonCourseID(ctx, tx, in.LessonID)
		if errors.Is(err, repo.ErrNotFound) || (err == nil && lessonCourse != t.Enrollment.CourseID) {
			return with(ErrLessonNotInCourse, map[string]any{"lesson_id": in.LessonID}, nil)
		}
		if err != nil {
			return err
		}
		now := e.stamp()
		res.Progress, err = e.Repo.UpsertLessonProgress(ctx, tx, domain.LessonProgress{
			ID:             newID(),
			EnrollmentID:   in.EnrollmentID,
			LessonID:       in.LessonID,
			WatchedSeconds: in.WatchedSeconds,
			IsCompleted:    in.Completed,
			LastWatchedAt:  now,
		})
		if err != nil {
			return err
		}
		en := *t.Enrollment
		total, err := e.Repo.CountCourseLessons(ctx, tx, en.CourseID)
		if err != nil {
			return err
		}
		done, err := e.Repo.CountCompletedLessons(ctx, tx, en.ID, en.CourseID)
		if err != nil {
			return err
		}
		pct := percentage(done, total)
		switch {
		case pct == 100 && !en.Completed():
			res.NewlyCompleted, err = e.Repo.MarkEnrollmentCompleted(ctx, tx, en.ID, now)
			if err != nil {
				return err
			}
		case pct < 100 && en.Completed() && e.completionPolicy() == config.CompletionRevocable:
			res.Revoked, err = e.Repo.ClearEnrollmentCompletion(ctx, tx, en.ID, pct)
			if err != nil {
				return err
			}
		}
		if !res.NewlyCompleted && !res.Revoked {
			if err := e.Repo.SetEnrollmentPercentage(ctx, tx, en.ID, pct); err != nil {
				return err
			}
		}
		if res.Enrollment, err = e.Repo.GetEnrollment(ctx, tx, en.ID); err != nil {
			return err
		}
		if err := e.emit(ctx, tx, events.ProgressRecorded, "enrollment", en.ID, actor.ID, events.EventPayload{
			"lesson_id":       in.LessonID,
			"watched_seconds": res.Progress.WatchedSeconds,
			"is_completed":    res.Progress.IsCompleted,
			"percentage":      pct,
		}); err != nil {
			return err
		}
		if res.NewlyCompleted {
			return e.emit(ctx, tx, events.CourseCompleted, "enrollment", en.ID, actor.ID, events.EventPayload{
				"course_id":  en.CourseID,
				"student_id": en.StudentID,
			})
		}
		if res.Revoked {
			return e.emit(ctx, tx, events.CourseCompletionRevoked, "enrollment", en.ID, actor.ID, events.EventPayload{
				"course_id":  en.CourseID,
				"percentage": pct,
			})
		}
		return nil
	})
	if err != nil {
		return ProgressResult{}, err
	}
	if res.NewlyCompleted {
		e.logger().Info("course completed", "enrollment_id", res.Enrollment.ID, "course_id", res.Enrollment.CourseID)
		if e.autoIssue() {
			cert, err := e.IssueCertificate(ctx, actor, res.Enrollment.ID)
			if err != nil {
				e.logger().Warn("certificate auto-issue failed", "enrollment_id", res.Enrollment.ID, "error", err)
			} else {
				res.Certificate = &cert
			}
		}
	}
	return res, nil
}
