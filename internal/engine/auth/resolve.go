package auth

import (
	"context"
	"errors"
	"fmt"

	"coursehub/internal/domain"
	"coursehub/internal/repo"
)

// ErrUnresolved means some link of the ownership chain could not be loaded.
// Callers must treat it as a deny.
var ErrUnresolved = errors.New("ownership chain unresolved")

// Resolver loads the ownership chain for a target record.
type Resolver struct {
	Repo repo.Repo
}

func unresolved(kind, id string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("%w: %s %s", ErrUnresolved, kind, id)
	}
	return err
}

func (r Resolver) enrolled(ctx context.Context, q repo.Querier, actor domain.Actor, t *Target) error {
	if !actor.Authenticated() || t.Course == nil {
		return nil
	}
	ok, err := r.Repo.IsEnrolled(ctx, q, actor.ID, t.Course.ID)
	if err != nil {
		return err
	}
	t.ActorEnrolled = ok
	return nil
}

func (r Resolver) Profile(ctx context.Context, q repo.Querier, id string) (Target, error) {
	p, err := r.Repo.GetProfile(ctx, q, id)
	if err != nil {
		return Target{}, unresolved("profile", id, err)
	}
	return Target{Profile: &p}, nil
}

func (r Resolver) Course(ctx context.Context, q repo.Querier, actor domain.Actor, courseID string) (Target, error) {
	c, err := r.Repo.GetCourse(ctx, q, courseID)
	if err != nil {
		return Target{}, unresolved("course", courseID, err)
	}
	t := Target{Course: &c}
	if err := r.enrolled(ctx, q, actor, &t); err != nil {
		return Target{}, err
	}
	return t, nil
}

func (r Resolver) Section(ctx context.Context, q repo.Querier, actor domain.Actor, sectionID string) (Target, error) {
	s, err := r.Repo.GetSection(ctx, q, sectionID)
	if err != nil {
		return Target{}, unresolved("section", sectionID, err)
	}
	t, err := r.Course(ctx, q, actor, s.CourseID)
	if err != nil {
		return Target{}, err
	}
	t.Section = &s
	return t, nil
}

func (r Resolver) Lesson(ctx context.Context, q repo.Querier, actor domain.Actor, lessonID string) (Target, error) {
	l, err := r.Repo.GetLesson(ctx, q, lessonID)
	if err != nil {
		return Target{}, unresolved("lesson", lessonID, err)
	}
	t, err := r.Section(ctx, q, actor, l.SectionID)
	if err != nil {
		return Target{}, err
	}
	t.Lesson = &l
	return t, nil
}

func (r Resolver) Enrollment(ctx context.Context, q repo.Querier, actor domain.Actor, enrollmentID string) (Target, error) {
	e, err := r.Repo.GetEnrollment(ctx, q, enrollmentID)
	if err != nil {
		return Target{}, unresolved("enrollment", enrollmentID, err)
	}
	t, err := r.Course(ctx, q, actor, e.CourseID)
	if err != nil {
		return Target{}, err
	}
	t.Enrollment = &e
	return t, nil
}

func (r Resolver) Certificate(ctx context.Context, q repo.Querier, actor domain.Actor, certificateID string) (Target, error) {
	c, err := r.Repo.GetCertificate(ctx, q, certificateID)
	if err != nil {
		return Target{}, unresolved("certificate", certificateID, err)
	}
	t, err := r.Enrollment(ctx, q, actor, c.EnrollmentID)
	if err != nil {
		return Target{}, err
	}
	t.Certificate = &c
	return t, nil
}

func (r Resolver) Review(ctx context.Context, q repo.Querier, actor domain.Actor, reviewID string) (Target, error) {
	rv, err := r.Repo.GetReview(ctx, q, reviewID)
	if err != nil {
		return Target{}, unresolved("review", reviewID, err)
	}
	t, err := r.Course(ctx, q, actor, rv.CourseID)
	if err != nil {
		return Target{}, err
	}
	t.Review = &rv
	return t, nil
}
