package repo

import (
	"context"

	"coursehub/internal/domain"
)

const progressColumns = `id,enrollment_id,lesson_id,watched_seconds,is_completed,last_watched_at`

// UpsertLessonProgress writes a watch event in one statement. watched_seconds
// is replaced; is_completed can only move from false to true.
func (r Repo) UpsertLessonProgress(ctx context.Context, q Querier, p domain.LessonProgress) (domain.LessonProgress, error) {
	q = r.q(q)
	_, err := exec(ctx, q, `
INSERT INTO lesson_progress(`+progressColumns+`) VALUES (?,?,?,?,?,?)
ON CONFLICT(enrollment_id, lesson_id) DO UPDATE SET
  watched_seconds=excluded.watched_seconds,
  is_completed=(lesson_progress.is_completed OR excluded.is_completed),
  last_watched_at=excluded.last_watched_at`,
		p.ID, p.EnrollmentID, p.LessonID, p.WatchedSeconds, p.IsCompleted, p.LastWatchedAt)
	if err != nil {
		return domain.LessonProgress{}, err
	}
	return r.GetLessonProgress(ctx, q, p.EnrollmentID, p.LessonID)
}

func (r Repo) GetLessonProgress(ctx context.Context, q Querier, enrollmentID, lessonID string) (domain.LessonProgress, error) {
	var p domain.LessonProgress
	err := get(ctx, r.q(q), &p, `SELECT `+progressColumns+` FROM lesson_progress WHERE enrollment_id=? AND lesson_id=?`, enrollmentID, lessonID)
	return p, err
}

// CountCompletedLessons counts completed progress rows whose lesson still
// belongs to the course.
func (r Repo) CountCompletedLessons(ctx context.Context, q Querier, enrollmentID, courseID string) (int, error) {
	var n int
	err := get(ctx, r.q(q), &n, `
SELECT COUNT(1)
FROM lesson_progress p
JOIN lessons l ON l.id=p.lesson_id
JOIN sections s ON s.id=l.section_id
WHERE p.enrollment_id=? AND s.course_id=? AND p.is_completed=?`, enrollmentID, courseID, true)
	return n, err
}

// ListProgressRows returns one row per course lesson with the enrollment's
// progress folded in.
func (r Repo) ListProgressRows(ctx context.Context, q Querier, enrollmentID, courseID string) ([]domain.LessonProgressRow, error) {
	res := []domain.LessonProgressRow{}
	err := selectAll(ctx, r.q(q), &res, `
SELECT l.id AS lesson_id, l.section_id, l.title,
  COALESCE(p.watched_seconds, 0) AS watched_seconds,
  COALESCE(p.is_completed, FALSE) AS is_completed,
  p.last_watched_at
FROM lessons l
JOIN sections s ON s.id=l.section_id
LEFT JOIN lesson_progress p ON p.lesson_id=l.id AND p.enrollment_id=?
WHERE s.course_id=?
ORDER BY s.order_index, l.order_index`, enrollmentID, courseID)
	return res, err
}
