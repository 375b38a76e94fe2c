package engine

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"coursehub/internal/domain"
	"coursehub/internal/engine/auth"
	"coursehub/internal/events"
	"coursehub/internal/repo"
)

// IssueCertificate creates the certificate of a completed enrollment. It is
// idempotent: when one already exists, that record is returned unchanged.
func (e Engine) IssueCertificate(ctx context.Context, actor domain.Actor, enrollmentID string) (domain.Certificate, error) {
	var cert domain.Certificate
	err := e.withTx(ctx, "IssueCertificate", actor, func(ctx context.Context, tx *sqlx.Tx) error {
		t, err := e.Resolver.Enrollment(ctx, tx, actor, enrollmentID)
		if err != nil {
			return err
		}
		if err := e.enforce(actor, auth.EntityCertificate, auth.OpRead, t); err != nil {
			return err
		}
		if !t.Enrollment.Completed() {
			return with(ErrEnrollmentNotCompleted, map[string]any{"enrollment_id": enrollmentID}, nil)
		}
		if err := e.enforce(actor, auth.EntityCertificate, auth.OpCreate, t); err != nil {
			return err
		}
		var created bool
		cert, created, err = e.issue(ctx, tx, *t.Enrollment, actor.ID)
		if err == nil && created {
			e.logger().Info("certificate issued", "enrollment_id", enrollmentID, "certificate_number", cert.CertificateNumber)
		}
		return err
	})
	return cert, err
}

func (e Engine) issue(ctx context.Context, tx *sqlx.Tx, en domain.Enrollment, actorID string) (domain.Certificate, bool, error) {
	cert, created, err := e.Repo.InsertCertificateIfAbsent(ctx, tx, domain.Certificate{
		ID:                newID(),
		EnrollmentID:      en.ID,
		CertificateNumber: e.certificateNumber(),
		IssuedAt:          e.stamp(),
	})
	if err != nil {
		return cert, false, err
	}
	if !created {
		return cert, false, nil
	}
	err = e.emit(ctx, tx, events.CertificateIssued, "certificate", cert.ID, actorID, events.EventPayload{
		"enrollment_id":      en.ID,
		"course_id":          en.CourseID,
		"student_id":         en.StudentID,
		"certificate_number": cert.CertificateNumber,
	})
	return cert, true, err
}

func (e Engine) GetCertificate(ctx context.Context, actor domain.Actor, certificateID string) (domain.Certificate, error) {
	var cert domain.Certificate
	err := e.withTx(ctx, "GetCertificate", actor, func(ctx context.Context, tx *sqlx.Tx) error {
		t, err := e.Resolver.Certificate(ctx, tx, actor, certificateID)
		if err != nil {
			return err
		}
		if err := e.enforce(actor, auth.EntityCertificate, auth.OpRead, t); err != nil {
			return err
		}
		cert = *t.Certificate
		return nil
	})
	return cert, err
}

// GetEnrollmentCertificate returns the certificate issued for an enrollment,
// NotFound when none was issued yet.
func (e Engine) GetEnrollmentCertificate(ctx context.Context, actor domain.Actor, enrollmentID string) (domain.Certificate, error) {
	var cert domain.Certificate
	err := e.withTx(ctx, "GetEnrollmentCertificate", actor, func(ctx context.Context, tx *sqlx.Tx) error {
		t, err := e.Resolver.Enrollment(ctx, tx, actor, enrollmentID)
		if err != nil {
			return err
		}
		if err := e.enforce(actor, auth.EntityCertificate, auth.OpRead, t); err != nil {
			return err
		}
		cert, err = e.Repo.GetCertificateByEnrollment(ctx, tx, enrollmentID)
		if errors.Is(err, repo.ErrNotFound) {
			return with(ErrNotFound, map[string]any{"enrollment_id": enrollmentID}, err)
		}
		return err
	})
	return cert, err
}

func (e Engine) ListMyCertificates(ctx context.Context, actor domain.Actor) ([]domain.Certificate, error) {
	var out []domain.Certificate
	err := e.withTx(ctx, "ListMyCertificates", actor, func(ctx context.Context, tx *sqlx.Tx) error {
		if !actor.Authenticated() {
			return ErrUnauthorized
		}
		var err error
		out, err = e.Repo.ListStudentCertificates(ctx, tx, actor.ID)
		return err
	})
	return out, err
}

type SetArtifactInput struct {
	Artifact *string `json:"certificate_artifact" validate:"omitempty,max=2048"`
}

// SetCertificateArtifact records where the rendered certificate lives. A nil
// artifact marks the certificate as not rendered.
func (e Engine) SetCertificateArtifact(ctx context.Context, actor domain.Actor, certificateID string, in SetArtifactInput) (domain.Certificate, error) {
	if err := validateInput(in); err != nil {
		return domain.Certificate{}, err
	}
	var cert domain.Certificate
	err := e.withTx(ctx, "SetCertificateArtifact", actor, func(ctx context.Context, tx *sqlx.Tx) error {
		t, err := e.Resolver.Certificate(ctx, tx, actor, certificateID)
		if err != nil {
			return err
		}
		if err := e.enforce(actor, auth.EntityCertificate, auth.OpUpdate, t); err != nil {
			return err
		}
		if err := e.Repo.SetCertificateArtifact(ctx, tx, certificateID, in.Artifact); err != nil {
			return err
		}
		cert = *t.Certificate
		cert.CertificateArtifact = in.Artifact
		return e.emit(ctx, tx, events.CertificateArtifactSet, "certificate", certificateID, actor.ID, events.EventPayload{
			"rendered": in.Artifact != nil,
		})
	})
	return cert, err
}

// ReconcileCertificates issues certificates for completed enrollments that
// have none, for example when auto-issue failed after the completion commit.
// It runs as the system under the policy's scheduled-issue rule and returns
// how many certificates it created.
func (e Engine) ReconcileCertificates(ctx context.Context, limit int) (int, error) {
	system := domain.Actor{}
	var pending []domain.Enrollment
	err := e.withTx(ctx, "ReconcileCertificates", system, func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		pending, err = e.Repo.ListCompletedWithoutCertificate(ctx, tx, limit)
		return err
	})
	if err != nil {
		return 0, err
	}
	issued := 0
	for _, en := range pending {
		var created bool
		err := e.withTx(ctx, "ReconcileCertificate", system, func(ctx context.Context, tx *sqlx.Tx) error {
			t, err := e.Resolver.Enrollment(ctx, tx, system, en.ID)
			if errors.Is(err, auth.ErrUnresolved) {
				return nil
			}
			if err != nil {
				return err
			}
			if !t.Enrollment.Completed() {
				return nil
			}
			t.Scheduled = true
			if err := e.enforce(system, auth.EntityCertificate, auth.OpCreate, t); err != nil {
				return err
			}
			_, created, err = e.issue(ctx, tx, *t.Enrollment, "")
			return err
		})
		if err != nil {
			e.logger().Error("certificate reconcile failed", "enrollment_id", en.ID, "error", err)
			continue
		}
		if created {
			issued++
		}
	}
	if issued > 0 {
		e.logger().Info("certificates reconciled", "issued", issued)
	}
	return issued, nil
}
