package repo

import (
	"context"
	"database/sql"
	"strconv"

	"coursehub/internal/domain"
)

const reviewColumns = `id,course_id,student_id,rating,comment,created_at,updated_at`

// UpsertReview writes the author's single review for a course. created_at is
// kept from the first submission.
func (r Repo) UpsertReview(ctx context.Context, q Querier, rv domain.Review) (domain.Review, error) {
	q = r.q(q)
	_, err := exec(ctx, q, `
INSERT INTO reviews(`+reviewColumns+`) VALUES (?,?,?,?,?,?,?)
ON CONFLICT(course_id, student_id) DO UPDATE SET
  rating=excluded.rating,
  comment=excluded.comment,
  updated_at=excluded.updated_at`,
		rv.ID, rv.CourseID, rv.StudentID, rv.Rating, nullablePtr(rv.Comment), rv.CreatedAt, rv.UpdatedAt)
	if err != nil {
		return domain.Review{}, err
	}
	return r.FindReview(ctx, q, rv.CourseID, rv.StudentID)
}

func (r Repo) GetReview(ctx context.Context, q Querier, id string) (domain.Review, error) {
	var rv domain.Review
	err := get(ctx, r.q(q), &rv, `SELECT `+reviewColumns+` FROM reviews WHERE id=?`, id)
	return rv, err
}

func (r Repo) FindReview(ctx context.Context, q Querier, courseID, studentID string) (domain.Review, error) {
	var rv domain.Review
	err := get(ctx, r.q(q), &rv, `SELECT `+reviewColumns+` FROM reviews WHERE course_id=? AND student_id=?`, courseID, studentID)
	return rv, err
}

func (r Repo) ListCourseReviews(ctx context.Context, q Querier, courseID string, limit, offset int) ([]domain.Review, error) {
	if limit <= 0 {
		limit = 50
	}
	res := []domain.Review{}
	err := selectAll(ctx, r.q(q), &res, `SELECT `+reviewColumns+` FROM reviews WHERE course_id=? ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		courseID, limit, offset)
	return res, err
}

func (r Repo) DeleteReview(ctx context.Context, q Querier, id string) error {
	return execOne(ctx, r.q(q), `DELETE FROM reviews WHERE id=?`, id)
}

// ReviewStats aggregates ratings for a course on read.
func (r Repo) ReviewStats(ctx context.Context, q Querier, courseID string) (domain.CourseStats, error) {
	q = r.q(q)
	stats := domain.CourseStats{CourseID: courseID, Histogram: map[string]int{}}
	for i := 1; i <= 5; i++ {
		stats.Histogram[strconv.Itoa(i)] = 0
	}
	var agg struct {
		Count int             `db:"n"`
		Avg   sql.NullFloat64 `db:"avg_rating"`
	}
	if err := get(ctx, q, &agg, `SELECT COUNT(1) AS n, AVG(CAST(rating AS DOUBLE PRECISION)) AS avg_rating FROM reviews WHERE course_id=?`, courseID); err != nil {
		return stats, err
	}
	stats.ReviewCount = agg.Count
	if agg.Avg.Valid {
		stats.AverageRating = agg.Avg.Float64
	}
	var buckets []struct {
		Rating int `db:"rating"`
		Count  int `db:"n"`
	}
	if err := selectAll(ctx, q, &buckets, `SELECT rating, COUNT(1) AS n FROM reviews WHERE course_id=? GROUP BY rating`, courseID); err != nil {
		return stats, err
	}
	for _, b := range buckets {
		stats.Histogram[strconv.Itoa(b.Rating)] = b.Count
	}
	return stats, nil
}
