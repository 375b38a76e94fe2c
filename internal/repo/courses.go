package repo

import (
	"context"
	"strings"

	"coursehub/internal/domain"
)

const courseColumns = `id,instructor_id,title,description,thumbnail,price,level,category,is_published,created_at,updated_at`

func (r Repo) InsertCourse(ctx context.Context, q Querier, c domain.Course) error {
	_, err := exec(ctx, r.q(q), `INSERT INTO courses(`+courseColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.InstructorID, c.Title, c.Description, nullablePtr(c.Thumbnail), c.Price, c.Level, c.Category, c.IsPublished, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r Repo) GetCourse(ctx context.Context, q Querier, id string) (domain.Course, error) {
	var c domain.Course
	err := get(ctx, r.q(q), &c, `SELECT `+courseColumns+` FROM courses WHERE id=?`, id)
	return c, err
}

func (r Repo) UpdateCourse(ctx context.Context, q Querier, c domain.Course) error {
	return execOne(ctx, r.q(q), `UPDATE courses SET title=?, description=?, thumbnail=?, price=?, level=?, category=?, updated_at=? WHERE id=?`,
		c.Title, c.Description, nullablePtr(c.Thumbnail), c.Price, c.Level, c.Category, c.UpdatedAt, c.ID)
}

func (r Repo) SetCoursePublished(ctx context.Context, q Querier, id string, published bool, updatedAt string) error {
	return execOne(ctx, r.q(q), `UPDATE courses SET is_published=?, updated_at=? WHERE id=?`, published, updatedAt, id)
}

// ListPublishedCourses returns published courses matching the filters, newest first.
func (r Repo) ListPublishedCourses(ctx context.Context, q Querier, f domain.CourseFilters) ([]domain.Course, error) {
	where := []string{"is_published=?"}
	args := []any{true}
	if f.Category != "" {
		where = append(where, "category=?")
		args = append(args, f.Category)
	}
	if f.Level != "" {
		where = append(where, "level=?")
		args = append(args, f.Level)
	}
	if f.InstructorID != "" {
		where = append(where, "instructor_id=?")
		args = append(args, f.InstructorID)
	}
	if s := strings.TrimSpace(f.Query); s != "" {
		where = append(where, "(LOWER(title) LIKE ? OR LOWER(description) LIKE ?)")
		like := "%" + strings.ToLower(s) + "%"
		args = append(args, like, like)
	}
	if f.MinPrice != nil {
		where = append(where, "price>=?")
		args = append(args, *f.MinPrice)
	}
	if f.MaxPrice != nil {
		where = append(where, "price<=?")
		args = append(args, *f.MaxPrice)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, f.Offset)
	query := `SELECT ` + courseColumns + ` FROM courses WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	res := []domain.Course{}
	err := selectAll(ctx, r.q(q), &res, query, args...)
	return res, err
}

func (r Repo) ListInstructorCourses(ctx context.Context, q Querier, instructorID string) ([]domain.Course, error) {
	res := []domain.Course{}
	err := selectAll(ctx, r.q(q), &res, `SELECT `+courseColumns+` FROM courses WHERE instructor_id=? ORDER BY created_at DESC, id`, instructorID)
	return res, err
}

// CascadeResult counts rows removed by a cascading delete.
type CascadeResult struct {
	Certificates   int64 `json:"certificates"`
	LessonProgress int64 `json:"lesson_progress"`
	Enrollments    int64 `json:"enrollments"`
	Reviews        int64 `json:"reviews"`
	Lessons        int64 `json:"lessons"`
	Sections       int64 `json:"sections"`
}

func (c CascadeResult) Payload() map[string]any {
	return map[string]any{
		"certificates":    c.Certificates,
		"lesson_progress": c.LessonProgress,
		"enrollments":     c.Enrollments,
		"reviews":         c.Reviews,
		"lessons":         c.Lessons,
		"sections":        c.Sections,
	}
}

// DeleteCourseCascade removes a course and every dependent row, leaves first.
// It must run inside the caller's transaction.
func (r Repo) DeleteCourseCascade(ctx context.Context, q Querier, courseID string) (CascadeResult, error) {
	q = r.q(q)
	var res CascadeResult
	steps := []struct {
		count *int64
		query string
	}{
		{&res.Certificates, `DELETE FROM certificates WHERE enrollment_id IN (SELECT id FROM enrollments WHERE course_id=?)`},
		{&res.LessonProgress, `DELETE FROM lesson_progress WHERE enrollment_id IN (SELECT id FROM enrollments WHERE course_id=?)`},
		{&res.Enrollments, `DELETE FROM enrollments WHERE course_id=?`},
		{&res.Reviews, `DELETE FROM reviews WHERE course_id=?`},
		{&res.Lessons, `DELETE FROM lessons WHERE section_id IN (SELECT id FROM sections WHERE course_id=?)`},
		{&res.Sections, `DELETE FROM sections WHERE course_id=?`},
	}
	for _, step := range steps {
		out, err := exec(ctx, q, step.query, courseID)
		if err != nil {
			return res, err
		}
		*step.count, _ = out.RowsAffected()
	}
	if err := execOne(ctx, q, `DELETE FROM courses WHERE id=?`, courseID); err != nil {
		return res, err
	}
	return res, nil
}

// --- sections ---

func (r Repo) InsertSection(ctx context.Context, q Querier, s domain.Section) error {
	_, err := exec(ctx, r.q(q), `INSERT INTO sections(id,course_id,title,order_index) VALUES (?,?,?,?)`,
		s.ID, s.CourseID, s.Title, s.OrderIndex)
	return err
}

func (r Repo) GetSection(ctx context.Context, q Querier, id string) (domain.Section, error) {
	var s domain.Section
	err := get(ctx, r.q(q), &s, `SELECT id,course_id,title,order_index FROM sections WHERE id=?`, id)
	return s, err
}

func (r Repo) UpdateSection(ctx context.Context, q Querier, s domain.Section) error {
	return execOne(ctx, r.q(q), `UPDATE sections SET title=? WHERE id=?`, s.Title, s.ID)
}

func (r Repo) ListSections(ctx context.Context, q Querier, courseID string) ([]domain.Section, error) {
	res := []domain.Section{}
	err := selectAll(ctx, r.q(q), &res, `SELECT id,course_id,title,order_index FROM sections WHERE course_id=? ORDER BY order_index`, courseID)
	return res, err
}

func (r Repo) NextSectionOrder(ctx context.Context, q Querier, courseID string) (int, error) {
	var next int
	err := get(ctx, r.q(q), &next, `SELECT COALESCE(MAX(order_index)+1, 0) FROM sections WHERE course_id=?`, courseID)
	return next, err
}

// DeleteSectionCascade removes a section, its lessons and their progress rows.
func (r Repo) DeleteSectionCascade(ctx context.Context, q Querier, sectionID string) (CascadeResult, error) {
	q = r.q(q)
	var res CascadeResult
	out, err := exec(ctx, q, `DELETE FROM lesson_progress WHERE lesson_id IN (SELECT id FROM lessons WHERE section_id=?)`, sectionID)
	if err != nil {
		return res, err
	}
	res.LessonProgress, _ = out.RowsAffected()
	out, err = exec(ctx, q, `DELETE FROM lessons WHERE section_id=?`, sectionID)
	if err != nil {
		return res, err
	}
	res.Lessons, _ = out.RowsAffected()
	if err := execOne(ctx, q, `DELETE FROM sections WHERE id=?`, sectionID); err != nil {
		return res, err
	}
	res.Sections = 1
	return res, nil
}

// ReorderSections assigns order_index by position in ids. Indexes are first
// moved to negatives so the unique (course_id, order_index) constraint holds
// between statements.
func (r Repo) ReorderSections(ctx context.Context, q Querier, courseID string, ids []string) error {
	q = r.q(q)
	if _, err := exec(ctx, q, `UPDATE sections SET order_index = -order_index - 1 WHERE course_id=?`, courseID); err != nil {
		return err
	}
	for i, id := range ids {
		if err := execOne(ctx, q, `UPDATE sections SET order_index=? WHERE id=? AND course_id=?`, i, id, courseID); err != nil {
			return err
		}
	}
	return nil
}

// --- lessons ---

const lessonColumns = `id,section_id,title,description,video_ref,duration_seconds,order_index,is_preview`

func (r Repo) InsertLesson(ctx context.Context, q Querier, l domain.Lesson) error {
	_, err := exec(ctx, r.q(q), `INSERT INTO lessons(`+lessonColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		l.ID, l.SectionID, l.Title, nullablePtr(l.Description), l.VideoRef, l.DurationSeconds, l.OrderIndex, l.IsPreview)
	return err
}

func (r Repo) GetLesson(ctx context.Context, q Querier, id string) (domain.Lesson, error) {
	var l domain.Lesson
	err := get(ctx, r.q(q), &l, `SELECT `+lessonColumns+` FROM lessons WHERE id=?`, id)
	return l, err
}

func (r Repo) UpdateLesson(ctx context.Context, q Querier, l domain.Lesson) error {
	return execOne(ctx, r.q(q), `UPDATE lessons SET title=?, description=?, video_ref=?, duration_seconds=?, is_preview=? WHERE id=?`,
		l.Title, nullablePtr(l.Description), l.VideoRef, l.DurationSeconds, l.IsPreview, l.ID)
}

func (r Repo) ListSectionLessons(ctx context.Context, q Querier, sectionID string) ([]domain.Lesson, error) {
	res := []domain.Lesson{}
	err := selectAll(ctx, r.q(q), &res, `SELECT `+lessonColumns+` FROM lessons WHERE section_id=? ORDER BY order_index`, sectionID)
	return res, err
}

// ListCourseLessons returns every lesson reachable through the course's
// sections, in section then lesson order.
func (r Repo) ListCourseLessons(ctx context.Context, q Querier, courseID string) ([]domain.Lesson, error) {
	res := []domain.Lesson{}
	err := selectAll(ctx, r.q(q), &res, `
SELECT l.id,l.section_id,l.title,l.description,l.video_ref,l.duration_seconds,l.order_index,l.is_preview
FROM lessons l
JOIN sections s ON s.id=l.section_id
WHERE s.course_id=?
ORDER BY s.order_index, l.order_index`, courseID)
	return res, err
}

func (r Repo) CountCourseLessons(ctx context.Context, q Querier, courseID string) (int, error) {
	var n int
	err := get(ctx, r.q(q), &n, `SELECT COUNT(1) FROM lessons l JOIN sections s ON s.id=l.section_id WHERE s.course_id=?`, courseID)
	return n, err
}

// LessonCourseID resolves the course that owns a lesson.
func (r Repo) LessonCourseID(ctx context.Context, q Querier, lessonID string) (string, error) {
	var courseID string
	err := get(ctx, r.q(q), &courseID, `SELECT s.course_id FROM lessons l JOIN sections s ON s.id=l.section_id WHERE l.id=?`, lessonID)
	return courseID, err
}

func (r Repo) NextLessonOrder(ctx context.Context, q Querier, sectionID string) (int, error) {
	var next int
	err := get(ctx, r.q(q), &next, `SELECT COALESCE(MAX(order_index)+1, 0) FROM lessons WHERE section_id=?`, sectionID)
	return next, err
}

func (r Repo) DeleteLessonCascade(ctx context.Context, q Querier, lessonID string) (CascadeResult, error) {
	q = r.q(q)
	var res CascadeResult
	out, err := exec(ctx, q, `DELETE FROM lesson_progress WHERE lesson_id=?`, lessonID)
	if err != nil {
		return res, err
	}
	res.LessonProgress, _ = out.RowsAffected()
	if err := execOne(ctx, q, `DELETE FROM lessons WHERE id=?`, lessonID); err != nil {
		return res, err
	}
	res.Lessons = 1
	return res, nil
}

func (r Repo) ReorderLessons(ctx context.Context, q Querier, sectionID string, ids []string) error {
	q = r.q(q)
	if _, err := exec(ctx, q, `UPDATE lessons SET order_index = -order_index - 1 WHERE section_id=?`, sectionID); err != nil {
		return err
	}
	for i, id := range ids {
		if err := execOne(ctx, q, `UPDATE lessons SET order_index=? WHERE id=? AND section_id=?`, i, id, sectionID); err != nil {
			return err
		}
	}
	return nil
}
