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

type CreateCourseInput struct {
	Title       string  `json:"title" validate:"required,max=200"`
	Description string  `json:"description" validate:"max=10000"`
	Thumbnail   *string `json:"thumbnail" validate:"omitempty,max=2048"`
	Price       float64 `json:"price" validate:"gte=0"`
	Level       string  `json:"level" validate:"required,oneof=Beginner Intermediate Advanced"`
	Category    string  `json:"category" validate:"max=100"`
}

type UpdateCourseInput struct {
	Title       *string  `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string  `json:"description" validate:"omitempty,max=10000"`
	Thumbnail   *string  `json:"thumbnail" validate:"omitempty,max=2048"`
	Price       *float64 `json:"price" validate:"omitempty,gte=0"`
	Level       *string  `json:"level" validate:"omitempty,oneof=Beginner Intermediate Advanced"`
	Category    *string  `json:"category" validate:"omitempty,max=100"`
}

type CreateSectionInput struct {
	Title      string `json:"title" validate:"required,max=200"`
	OrderIndex *int   `json:"order_index" validate:"omitempty,gte=0"`
}

type UpdateSectionInput struct {
	Title string `json:"title" validate:"required,max=200"`
}

type CreateLessonInput struct {
	Title           string  `json:"title" validate:"required,max=200"`
	Description     *string `json:"description" validate:"omitempty,max=10000"`
	VideoRef        string  `json:"video_ref" validate:"max=2048"`
	DurationSeconds int     `json:"duration_seconds" validate:"gte=0"`
	OrderIndex      *int    `json:"order_index" validate:"omitempty,gte=0"`
	IsPreview       bool    `json:"is_preview"`
}

type UpdateLessonInput struct {
	Title           *string `json:"title" validate:"omitempty,min=1,max=200"`
	Description     *string `json:"description" validate:"omitempty,max=10000"`
	VideoRef        *string `json:"video_ref" validate:"omitempty,max=2048"`
	DurationSeconds *int    `json:"duration_seconds" validate:"omitempty,gte=0"`
	IsPreview       *bool   `json:"is_preview"`
}

func (e Engine) CreateCourse(ctx context.Context, actor domain.Actor, in CreateCourseInput) (domain.Course, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := validateInput(in); err != nil {
		return domain.Course{}, err
	}
	var c domain.Course
	err := e.withTx(ctx, "CreateCourse", actor, func(ctx context.Context, tx *sqlx.Tx) error {
		who, err := e.requireProfile(ctx, tx, actor)
		if err != nil {
			return err
		}
		now := e.stamp()
		c = domain.Course{
			ID:           newID(),
			InstructorID: who.ID,
			Title:        in.Title,
			Description:  in.Description,
			Thumbnail:    in.Thumbnail,
			Price:        in.Price,
			Level:        in.Level,
			Category:     strings.TrimSpace(in.Category),
			IsPublished:  false,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := e.enforce(who, auth.EntityCourse, auth.OpCreate, auth.Target{Course: &c}); err != nil {
			return err
		}
		if err := e.Repo.InsertCourse(ctx, tx, c); err != nil {
			return err
		}
		return e.emit(ctx, tx, events.CourseCreated, "course", c.ID, actor.ID, events.EventPayload{"title": c.Title})
	})
	return c, err
}

func (e Engine) UpdateCourse(ctx context.Context, actor domain.Actor, courseID string, in UpdateCourseInput) (domain.Course, error) {
	if err := validateInput(in); err != nil {
		return domain.Course{}, err
	}
	var c domain.Course
	err := e.withTx(ctx, "UpdateCourse", actor, func(ctx context.Context, tx *sqlx.Tx) error {
		t, err := e.Resolver.Course(ctx, tx, actor, courseID)
		if err != nil {
			return err
		}
		if err := e.enforce(actor, auth.EntityCourse, auth.OpUpdate, t); err != nil {
			return err
		}
		c = *t.Course
		if in.Title != nil {
			c.Title = strings.TrimSpace(*in.Title)
		}
		if in.Description != nil {
			c.Description = *in.Description
		}
		if in.Thumbnail != nil {
			c.Thumbnail = in.Thumbnail
		}
		if in.Price != nil {
			c.Price = *in.Price
		}
		if in.Level != nil {
			c.Level = *in.Level
		}
		if in.Category != nil {
			c.Category = strings.TrimSpace(*in.Category)
		}
		c.UpdatedAt = e.stamp()
		if err := e.Repo.UpdateCourse(ctx, tx, c); err != nil {
			return err
		}
		return e.emit(ctx, tx, events.CourseUpdated, "course", c.ID, actor.ID, nil)
	})
	return c, err
}

func (e Engine) PublishCourse(ctx context.Context, actor domain.Actor, courseID string) (domain.Course, error) {
	return e.setPublished(ctx, actor, courseID, true)
}

func (e Engine) UnpublishCourse(ctx context.Context, actor domain.Actor, courseID string) (domain.Course, error) {
	return e.setPublished(ctx, actor, courseID, false)
}

func (e Engine) setPublished(ctx context.Context, actor domain.Actor, courseID string, published bool) (domain.Course, error) {
	op, evt := "PublishCourse", events.CoursePublished
	if !published {
		op, evt = "UnpublishCourse", events.CourseUnpublished
	}
	var c domain.Course
	err := e.withTx(ctx, op, actor, func(ctx context.Context, tx *sqlx.Tx) error {
		t, err := e.Resolver.Course(ctx, tx, actor, courseID)
		if err != nil {
			return err
		}
		if err := e.enforce(actor, auth.EntityCourse, auth.OpUpdate, t); err != nil {
			return err
		}
		c = *t.Course
		if c.IsPublished == published {
			return nil
		}
		c.IsPublished = published
		c.UpdatedAt = e.stamp()
		if err := e.Repo.SetCoursePublished(ctx, tx, c.ID, published, c.UpdatedAt); err != nil {
			return err
		}
		return e.emit(ctx, tx, evt, "course", c.ID, actor.ID, nil)
	})
	return c, err
}

// DeleteCourse removes the course and every dependent record in one
// transaction. It is irreversible.
func (e Engine) DeleteCourse(ctx context.Context, actor domain.Actor, courseID string) (repo.CascadeResult, error) {
	var res repo.CascadeResult
	err := e.withTx(ctx, "DeleteCourse", actor, func(ctx context.Context, tx *sqlx.Tx) error {
		t, err := e.Resolver.Course(ctx, tx, actor, courseID)
		if err != nil {
			return err
		}
		if err := e.enforce(actor, auth.EntityCourse, auth.OpDelete, t); err != nil {
			return err
		}
		res, err = e.Repo.DeleteCourseCascade(ctx, tx, courseID)
		if err != nil {
			return err
		}
		return e.emit(ctx, tx, events.CourseDeleted, "course", courseID, actor.ID, res.Payload())
	})
	if err == nil {
		e.logger().Info("course deleted", "course_id", courseID, "actor_id", actor.ID, "enrollments", res.Enrollments, "certificates", res.Certificates)
	}
	return res, err
}

// --- sections ---

func (e Engine) CreateSection(ctx context.Context, actor domain.Actor, courseID string, in CreateSectionInput) (domain.Section, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := validateInput(in); err != nil {
		return domain.Section{}, err
	}
	var s domain.Section
	err := e.withTx(ctx, "CreateSection", actor, func(ctx context.Context, tx *sqlx.Tx) error {
		t, err := e.Resolver.Course(ctx, tx, actor, courseID)
		if err != nil {
			return err
		}
		if err := e.enforce(actor, auth.EntitySection, auth.OpCreate, t); err != nil {
			return err
		}
		s = domain.Section{ID: newID(), CourseID: courseID, Title: in.Title}
		if in.OrderIndex != nil {
			s.OrderIndex = *in.OrderIndex
		} else if s.OrderIndex, err = e.Repo.NextSectionOrder(ctx, tx, courseID); err != nil {
			return err
		}
		if err := e.Repo.InsertSection(ctx, tx, s); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return with(ErrOrderConflict, map[string]any{"order_index": s.OrderIndex}, err)
			}
			return err
		}
		return e.emit(ctx, tx, events.SectionCreated, "section", s.ID, actor.ID, events.EventPayload{"course_id": courseID, "order_index": s.OrderIndex})
	})
	return s, err
}

func (e Engine) UpdateSection(ctx context.Context, actor domain.Actor, sectionID string, in UpdateSectionInput) (domain.Section, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := validateInput(in); err != nil {
		return domain.Section{}, err
	}
	var s domain.Section
	err := e.withTx(ctx, "UpdateSection", actor, func(ctx context.Context, tx *sqlx.Tx) error {
		t, err := e.Resolver.Section(ctx, tx, actor, sectionID)
		if err != nil {
			return err
		}
		if err := e.enforce(actor, auth.EntitySection, auth.OpUpdate, t); err != nil {
			return err
		}
		s = *t.Section
		s.Title = in.Title
		if err := e.Repo.UpdateSection(ctx, tx, s); err != nil {
			return err
		}
		return e.emit(ctx, tx, events.SectionUpdated, "section", s.ID, actor.ID, nil)
	})
	return s, err
}

func (e Engine) DeleteSection(ctx context.Context, actor domain.Actor, sectionID string) (repo.CascadeResult, error) {
	var res repo.CascadeResult
	err := e.withTx(ctx, "DeleteSection", actor, func(ctx context.Context, tx *sqlx.Tx) error {
		t, err := e.Resolver.Section(ctx, tx, actor, sectionID)
		if err != nil {
			return err
		}
		if err := e.enforce(actor, auth.EntitySection, auth.OpDelete, t); err != nil {
			return err
		}
		res, err = e.Repo.DeleteSectionCascade(ctx, tx, sectionID)
		if err != nil {
			return err
		}
		payload := res.Payload()
		payload["course_id"] = t.Course.ID
		return e.emit(ctx, tx, events.SectionDeleted, "section", sectionID, actor.ID, payload)
	})
	return res, err
}

// ReorderSections sets each section's order_index to its position in ids. ids
// must be a permutation of the course's sections.
func (e Engine) ReorderSections(ctx context.Context, actor domain.Actor, courseID string, ids []string) ([]domain.Section, error) {
	var out []domain.Section
	err := e.withTx(ctx, "ReorderSections", actor, func(ctx context.Context, tx *sqlx.Tx) error {
		t, err := e.Resolver.Course(ctx, tx, actor, courseID)
		if err != nil {
			return err
		}
		if err := e.enforce(actor, auth.EntitySection, auth.OpUpdate, t); err != nil {
			return err
		}
		current, err := e.Repo.ListSections(ctx, tx, courseID)
		if err != nil {
			return err
		}
		existing := make([]string, 0, len(current))
		for _, s := range current {
			existing = append(existing, s.ID)
		}
		if err := checkPermutation(existing, ids); err != nil {
			return err
		}
		if err := e.Repo.ReorderSections(ctx, tx, courseID, ids); err != nil {
			return err
		}
		if out, err = e.Repo.ListSections(ctx, tx, courseID); err != nil {
			return err
		}
		return e.emit(ctx, tx, events.SectionsReordered, "course", courseID, actor.ID, events.EventPayload{"order": ids})
	})
	return out, err
}

// --- lessons ---

func (e Engine) CreateLesson(ctx context.Context, actor domain.Actor, sectionID string, in CreateLessonInput) (domain.Lesson, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := validateInput(in); err != nil {
		return domain.Lesson{}, err
	}
	var l domain.Lesson
	err := e.withTx(ctx, "CreateLesson", actor, func(ctx context.Context, tx *sqlx.Tx) error {
		t, err := e.Resolver.Section(ctx, tx, actor, sectionID)
		if err != nil {
			return err
		}
		if err := e.enforce(actor, auth.EntityLesson, auth.OpCreate, t); err != nil {
			return err
		}
		l = domain.Lesson{
			ID:              newID(),
			SectionID:       sectionID,
			Title:           in.Title,
			Description:     in.Description,
			VideoRef:        strings.TrimSpace(in.VideoRef),
			DurationSeconds: in.DurationSeconds,
			IsPreview:       in.IsPreview,
		}
		if in.OrderIndex != nil {
			l.OrderIndex = *in.OrderIndex
		} else if l.OrderIndex, err = e.Repo.NextLessonOrder(ctx, tx, sectionID); err != nil {
			return err
		}
		if err := e.Repo.InsertLesson(ctx, tx, l); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return with(ErrOrderConflict, map[string]any{"order_index": l.OrderIndex}, err)
			}
			return err
		}
		return e.emit(ctx, tx, events.LessonCreated, "lesson", l.ID, actor.ID, events.EventPayload{
			"course_id":  t.Course.ID,
			"section_id": sectionID,
			"is_preview": l.IsPreview,
		})
	})
	return l, err
}

func (e Engine) UpdateLesson(ctx context.Context, actor domain.Actor, lessonID string, in UpdateLessonInput) (domain.Lesson, error) {
	if err := validateInput(in); err != nil {
		return domain.Lesson{}, err
	}
	var l domain.Lesson
	err := e.withTx(ctx, "UpdateLesson", actor, func(ctx context.Context, tx *sqlx.Tx) error {
		t, err := e.Resolver.Lesson(ctx, tx, actor, lessonID)
		if err != nil {
			return err
		}
		if err := e.enforce(actor, auth.EntityLesson, auth.OpUpdate, t); err != nil {
			return err
		}
		l = *t.Lesson
		if in.Title != nil {
			l.Title = strings.TrimSpace(*in.Title)
		}
		if in.Description != nil {
			l.Description = in.Description
		}
		if in.VideoRef != nil {
			l.VideoRef = strings.TrimSpace(*in.VideoRef)
		}
		if in.DurationSeconds != nil {
			l.DurationSeconds = *in.DurationSeconds
		}
		if in.IsPreview != nil {
			l.IsPreview = *in.IsPreview
		}
		if err := e.Repo.UpdateLesson(ctx, tx, l); err != nil {
			return err
		}
		return e.emit(ctx, tx, events.LessonUpdated, "lesson", l.ID, actor.ID, events.EventPayload{"course_id": t.Course.ID})
	})
	return l, err
}

func (e Engine) DeleteLesson(ctx context.Context, actor domain.Actor, lessonID string) (repo.CascadeResult, error) {
	var res repo.CascadeResult
	err := e.withTx(ctx, "DeleteLesson", actor, func(ctx context.Context, tx *sqlx.Tx) error {
		t, err := e.Resolver.Lesson(ctx, tx, actor, lessonID)
		if err != nil {
			return err
		}
		if err := e.enforce(actor, auth.EntityLesson, auth.OpDelete, t); err != nil {
			return err
		}
		res, err = e.Repo.DeleteLessonCascade(ctx, tx, lessonID)
		if err != nil {
			return err
		}
		payload := res.Payload()
		payload["course_id"] = t.Course.ID
		return e.emit(ctx, tx, events.LessonDeleted, "lesson", lessonID, actor.ID, payload)
	})
	return res, err
}

func (e Engine) ReorderLessons(ctx context.Context, actor domain.Actor, sectionID string, ids []string) ([]domain.Lesson, error) {
	var out []domain.Lesson
	err := e.withTx(ctx, "ReorderLessons", actor, func(ctx context.Context, tx *sqlx.Tx) error {
		t, err := e.Resolver.Section(ctx, tx, actor, sectionID)
		if err != nil {
			return err
		}
		if err := e.enforce(actor, auth.EntityLesson, auth.OpUpdate, t); err != nil {
			return err
		}
		current, err := e.Repo.ListSectionLessons(ctx, tx, sectionID)
		if err != nil {
			return err
		}
		existing := make([]string, 0, len(current))
		for _, l := range current {
			existing = append(existing, l.ID)
		}
		if err := checkPermutation(existing, ids); err != nil {
			return err
		}
		if err := e.Repo.ReorderLessons(ctx, tx, sectionID, ids); err != nil {
			return err
		}
		if out, err = e.Repo.ListSectionLessons(ctx, tx, sectionID); err != nil {
			return err
		}
		return e.emit(ctx, tx, events.LessonsReordered, "section", sectionID, actor.ID, events.EventPayload{"order": ids})
	})
	return out, err
}

// checkPermutation requires ids to list every id in existing exactly once.
func checkPermutation(existing, ids []string) error {
	if len(ids) != len(existing) {
		return with(ErrMalformedOrdering, map[string]any{"expected": len(existing), "got": len(ids)}, nil)
	}
	want := make(map[string]bool, len(existing))
	for _, id := range existing {
		want[id] = true
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !want[id] {
			return with(ErrMalformedOrdering, map[string]any{"unknown": id}, nil)
		}
		if seen[id] {
			return with(ErrMalformedOrdering, map[string]any{"duplicate": id}, nil)
		}
		seen[id] = true
	}
	return nil
}
