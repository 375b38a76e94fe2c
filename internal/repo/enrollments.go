package repo

import (
	"context"

	"coursehub/internal/domain"
)

const enrollmentColumns = `id,student_id,course_id,enrolled_at,completed_at,progress_percentage`

// InsertEnrollment returns ErrDuplicate when (student, course) already exists.
func (r Repo) InsertEnrollment(ctx context.Context, q Querier, e domain.Enrollment) error {
	_, err := exec(ctx, r.q(q), `INSERT INTO enrollments(`+enrollmentColumns+`) VALUES (?,?,?,?,?,?)`,
		e.ID, e.StudentID, e.CourseID, e.EnrolledAt, nullablePtr(e.CompletedAt), e.ProgressPercentage)
	return err
}

func (r Repo) GetEnrollment(ctx context.Context, q Querier, id string) (domain.Enrollment, error) {
	var e domain.Enrollment
	err := get(ctx, r.q(q), &e, `SELECT `+enrollmentColumns+` FROM enrollments WHERE id=?`, id)
	return e, err
}

// LockEnrollment reads the enrollment and, on Postgres, holds its row lock
// until the transaction ends. SQLite runs on a single connection, so every
// transaction there is already serialized.
func (r Repo) LockEnrollment(ctx context.Context, q Querier, id string) (domain.Enrollment, error) {
	q = r.q(q)
	var e domain.Enrollment
	err := get(ctx, q, &e, `SELECT `+enrollmentColumns+` FROM enrollments WHERE id=?`+rowLock(q.DriverName()), id)
	return e, err
}

func rowLock(driverName string) string {
	switch driverName {
	case "pgx", "postgres":
		return ` FOR UPDATE`
	}
	return ""
}

func (r Repo) FindEnrollment(ctx context.Context, q Querier, studentID, courseID string) (domain.Enrollment, error) {
	var e domain.Enrollment
	err := get(ctx, r.q(q), &e, `SELECT `+enrollmentColumns+` FROM enrollments WHERE student_id=? AND course_id=?`, studentID, courseID)
	return e, err
}

func (r Repo) IsEnrolled(ctx context.Context, q Querier, studentID, courseID string) (bool, error) {
	var n int
	err := get(ctx, r.q(q), &n, `SELECT COUNT(1) FROM enrollments WHERE student_id=? AND course_id=?`, studentID, courseID)
	return n > 0, err
}

func (r Repo) ListStudentEnrollments(ctx context.Context, q Querier, studentID string) ([]domain.Enrollment, error) {
	res := []domain.Enrollment{}
	err := selectAll(ctx, r.q(q), &res, `SELECT `+enrollmentColumns+` FROM enrollments WHERE student_id=? ORDER BY enrolled_at DESC, id`, studentID)
	return res, err
}

func (r Repo) ListCourseEnrollments(ctx context.Context, q Querier, courseID string) ([]domain.Enrollment, error) {
	res := []domain.Enrollment{}
	err := selectAll(ctx, r.q(q), &res, `SELECT `+enrollmentColumns+` FROM enrollments WHERE course_id=? ORDER BY enrolled_at, id`, courseID)
	return res, err
}

func (r Repo) CountCourseEnrollments(ctx context.Context, q Querier, courseID string) (int, error) {
	var n int
	err := get(ctx, r.q(q), &n, `SELECT COUNT(1) FROM enrollments WHERE course_id=?`, courseID)
	return n, err
}

// SetEnrollmentPercentage stores the cached percentage.
func (r Repo) SetEnrollmentPercentage(ctx context.Context, q Querier, id string, percentage int) error {
	return execOne(ctx, r.q(q), `UPDATE enrollments SET progress_percentage=? WHERE id=?`, percentage, id)
}

// MarkEnrollmentCompleted stamps completed_at only if it is still null and
// reports whether this call set it.
func (r Repo) MarkEnrollmentCompleted(ctx context.Context, q Querier, id, completedAt string) (bool, error) {
	res, err := exec(ctx, r.q(q), `UPDATE enrollments SET completed_at=?, progress_percentage=100 WHERE id=? AND completed_at IS NULL`, completedAt, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// ClearEnrollmentCompletion resets completed_at unless a certificate has been
// issued for the enrollment, and reports whether it cleared anything.
func (r Repo) ClearEnrollmentCompletion(ctx context.Context, q Querier, id string, percentage int) (bool, error) {
	res, err := exec(ctx, r.q(q), `
UPDATE enrollments SET completed_at=NULL, progress_percentage=?
WHERE id=? AND completed_at IS NOT NULL
  AND NOT EXISTS (SELECT 1 FROM certificates c WHERE c.enrollment_id=enrollments.id)`, percentage, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// ListCompletedWithoutCertificate finds completed enrollments lacking a certificate.
func (r Repo) ListCompletedWithoutCertificate(ctx context.Context, q Querier, limit int) ([]domain.Enrollment, error) {
	if limit <= 0 {
		limit = 100
	}
	res := []domain.Enrollment{}
	err := selectAll(ctx, r.q(q), &res, `
SELECT e.id,e.student_id,e.course_id,e.enrolled_at,e.completed_at,e.progress_percentage
FROM enrollments e
LEFT JOIN certificates c ON c.enrollment_id=e.id
WHERE e.completed_at IS NOT NULL AND c.id IS NULL
ORDER BY e.completed_at, e.id
LIMIT ?`, limit)
	return res, err
}
