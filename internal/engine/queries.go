package engine

import (
	"context"

	"github.com/jmoiron/sqlx"

	"coursehub/internal/domain"
	"coursehub/internal/engine/auth"
)

const maxPageSize = 200

func (e Engine) GetCourse(ctx context.Context, actor domain.Actor, courseID string) (domain.Course, error) {
	var c domain.Course
	err := e.withTx(ctx, "GetCourse", actor, func(ctx context.Context, tx *sqlx.Tx) error {
		t, err := e.Resolver.Course(ctx, tx, actor, courseID)
		if err != nil {
			return err
		}
		if err := e.enforce(actor, auth.EntityCourse, auth.OpRead, t); err != nil {
			return err
		}
		c = *t.Course
		return nil
	})
	return c, err
}

// ListPublishedCourses is the public catalog. It never returns drafts, even to
// their instructor.
func (e Engine) ListPublishedCourses(ctx context.Context, actor domain.Actor, f domain.CourseFilters) ([]domain.Course, error) {
	if f.Limit <= 0 || f.Limit > maxPageSize {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Level != "" {
		switch f.Level {
		case domain.LevelBeginner, domain.LevelIntermediate, domain.LevelAdvanced:
		default:
			return nil, invalid("invalid level", map[string]any{"fields": map[string]any{"level": "oneof=Beginner Intermediate Advanced"}})
		}
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		return nil, invalid("min_price exceeds max_price", nil)
	}
	var out []domain.Course
	err := e.withTx(ctx, "ListPublishedCourses", actor, func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		out, err = e.Repo.ListPublishedCourses(ctx, tx, f)
		return err
	})
	return out, err
}

// ListInstructorCourses returns every course of the instructor to the
// instructor and only the published ones to anybody else.
func (e Engine) ListInstructorCourses(ctx context.Context, actor domain.Actor, instructorID string) ([]domain.Course, error) {
	var out []domain.Course
	err := e.withTx(ctx, "ListInstructorCourses", actor, func(ctx context.Context, tx *sqlx.Tx) error {
		all, err := e.Repo.ListInstructorCourses(ctx, tx, instructorID)
		if err != nil {
			return err
		}
		out = make([]domain.Course, 0, len(all))
		for i := range all {
			if e.policy().Authorize(actor, auth.EntityCourse, auth.OpRead, auth.Target{Course: &all[i]}).Allow {
				out = append(out, all[i])
			}
		}
		return nil
	})
	return out, err
}

// GetCourseContent returns the section/lesson tree of a course. Lessons the
// actor may not read stay in the outline but are locked and stripped of their
// video reference and description.
func (e Engine) GetCourseContent(ctx context.Context, actor domain.Actor, courseID string) (domain.CourseContent, error) {
	var out domain.CourseContent
	err := e.withTx(ctx, "GetCourseContent", actor, func(ctx context.Context, tx *sqlx.Tx) error {
		t, err := e.Resolver.Course(ctx, tx, actor, courseID)
		if err != nil {
			return err
		}
		if err := e.enforce(actor, auth.EntitySection, auth.OpRead, t); err != nil {
			return err
		}
		sections, err := e.Repo.ListSections(ctx, tx, courseID)
		if err != nil {
			return err
		}
		lessons, err := e.Repo.ListCourseLessons(ctx, tx, courseID)
		if err != nil {
			return err
		}
		bySection := make(map[string][]domain.Lesson, len(sections))
		for _, l := range lessons {
			bySection[l.SectionID] = append(bySection[l.SectionID], l)
		}
		out = domain.CourseContent{Course: *t.Course, Sections: make([]domain.SectionView, 0, len(sections))}
		for i := range sections {
			sv := domain.SectionView{Section: sections[i], Lessons: []domain.LessonView{}}
			for _, l := range bySection[sections[i].ID] {
				lt := t
				lt.Section = &sections[i]
				lt.Lesson = &l
				sv.Lessons = append(sv.Lessons, e.lessonView(actor, lt))
			}
			out.Sections = append(out.Sections, sv)
		}
		return nil
	})
	return out, err
}

func (e Engine) lessonView(actor domain.Actor, t auth.Target) domain.LessonView {
	v := domain.LessonView{Lesson: *t.Lesson}
	if e.policy().Authorize(actor, auth.EntityLesson, auth.OpRead, t).Allow {
		return v
	}
	v.Locked = true
	v.VideoRef = ""
	v.Description = nil
	return v
}

// GetLesson returns a single lesson in full. Preview lessons are readable by
// anyone, including anonymous callers.
func (e Engine) GetLesson(ctx context.Context, actor domain.Actor, lessonID string) (domain.Lesson, error) {
	var l domain.Lesson
	err := e.withTx(ctx, "GetLesson", actor, func(ctx context.Context, tx *sqlx.Tx) error {
		t, err := e.Resolver.Lesson(ctx, tx, actor, lessonID)
		if err != nil {
			return err
		}
		if err := e.enforce(actor, auth.EntityLesson, auth.OpRead, t); err != nil {
			return err
		}
		l = *t.Lesson
		return nil
	})
	return l, err
}
