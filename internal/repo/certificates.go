package repo

import (
	"context"
	"errors"

	"coursehub/internal/domain"
)

const certificateColumns = `id,enrollment_id,certificate_number,certificate_artifact,issued_at`

// InsertCertificateIfAbsent creates the enrollment's certificate unless one
// exists. It returns the stored row and whether this call created it.
func (r Repo) InsertCertificateIfAbsent(ctx context.Context, q Querier, c domain.Certificate) (domain.Certificate, bool, error) {
	q = r.q(q)
	res, err := exec(ctx, q, `INSERT INTO certificates(`+certificateColumns+`) VALUES (?,?,?,?,?) ON CONFLICT(enrollment_id) DO NOTHING`,
		c.ID, c.EnrollmentID, c.CertificateNumber, nullablePtr(c.CertificateArtifact), c.IssuedAt)
	created := false
	switch {
	case err == nil:
		n, _ := res.RowsAffected()
		created = n == 1
	case errors.Is(err, ErrDuplicate):
		// lost the race on a driver that reports the conflict instead of skipping
	default:
		return domain.Certificate{}, false, err
	}
	stored, err := r.GetCertificateByEnrollment(ctx, q, c.EnrollmentID)
	if err != nil {
		return domain.Certificate{}, false, err
	}
	return stored, created, nil
}

func (r Repo) GetCertificate(ctx context.Context, q Querier, id string) (domain.Certificate, error) {
	var c domain.Certificate
	err := get(ctx, r.q(q), &c, `SELECT `+certificateColumns+` FROM certificates WHERE id=?`, id)
	return c, err
}

func (r Repo) GetCertificateByEnrollment(ctx context.Context, q Querier, enrollmentID string) (domain.Certificate, error) {
	var c domain.Certificate
	err := get(ctx, r.q(q), &c, `SELECT `+certificateColumns+` FROM certificates WHERE enrollment_id=?`, enrollmentID)
	return c, err
}

func (r Repo) CountCertificates(ctx context.Context, q Querier, enrollmentID string) (int, error) {
	var n int
	err := get(ctx, r.q(q), &n, `SELECT COUNT(1) FROM certificates WHERE enrollment_id=?`, enrollmentID)
	return n, err
}

func (r Repo) ListStudentCertificates(ctx context.Context, q Querier, studentID string) ([]domain.Certificate, error) {
	res := []domain.Certificate{}
	err := selectAll(ctx, r.q(q), &res, `
SELECT c.id,c.enrollment_id,c.certificate_number,c.certificate_artifact,c.issued_at
FROM certificates c
JOIN enrollments e ON e.id=c.enrollment_id
WHERE e.student_id=?
ORDER BY c.issued_at DESC, c.id`, studentID)
	return res, err
}

func (r Repo) SetCertificateArtifact(ctx context.Context, q Querier, id string, artifact *string) error {
	return execOne(ctx, r.q(q), `UPDATE certificates SET certificate_artifact=? WHERE id=?`, nullablePtr(artifact), id)
}
