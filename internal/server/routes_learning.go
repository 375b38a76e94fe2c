package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"coursehub/internal/domain"
	"coursehub/internal/engine"
)

func registerEnrollments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "enroll",
		Method:        http.MethodPost,
		Path:          "/courses/{course_id}/enrollments",
		Summary:       "Enroll the caller in a course",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		CourseID string `path:"course_id"`
	}) (*output[domain.Enrollment], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		en, err := e.Enroll(ctx, actor, input.CourseID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(en), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-course-enrollments",
		Method:      http.MethodGet,
		Path:        "/courses/{course_id}/enrollments",
		Summary:     "Course roster (instructor only)",
		Errors:      append([]int{http.StatusUnauthorized}, readErrors...),
	}, func(ctx context.Context, input *struct {
		CourseID string `path:"course_id"`
	}) (*output[[]domain.Enrollment], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListCourseEnrollments(ctx, actor, input.CourseID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-enrollment",
		Method:      http.MethodGet,
		Path:        "/courses/{course_id}/enrollments/{student_id}",
		Summary:     "Enrollment of a student in a course",
		Errors:      append([]int{http.StatusUnauthorized}, readErrors...),
	}, func(ctx context.Context, input *struct {
		CourseID  string `path:"course_id"`
		StudentID string `path:"student_id"`
	}) (*output[domain.Enrollment], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		en, err := e.GetEnrollment(ctx, actor, input.StudentID, input.CourseID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(en), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-my-enrollments",
		Method:      http.MethodGet,
		Path:        "/me/enrollments",
		Summary:     "Enrollments of the caller",
		Errors:      []int{http.StatusUnauthorized, http.StatusServiceUnavailable},
	}, func(ctx context.Context, _ *struct{}) (*output[[]domain.Enrollment], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListMyEnrollments(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-enrollment-by-id",
		Method:      http.MethodGet,
		Path:        "/enrollments/{enrollment_id}",
		Summary:     "Get enrollment",
		Errors:      append([]int{http.StatusUnauthorized}, readErrors...),
	}, func(ctx context.Context, input *struct {
		EnrollmentID string `path:"enrollment_id"`
	}) (*output[domain.Enrollment], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		en, err := e.GetEnrollmentByID(ctx, actor, input.EnrollmentID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(en), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-progress",
		Method:      http.MethodGet,
		Path:        "/enrollments/{enrollment_id}/progress",
		Summary:     "Progress report for an enrollment",
		Errors:      append([]int{http.StatusUnauthorized}, readErrors...),
	}, func(ctx context.Context, input *struct {
		EnrollmentID string `path:"enrollment_id"`
	}) (*output[domain.ProgressReport], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rep, err := e.GetProgress(ctx, actor, input.EnrollmentID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(rep), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-progress",
		Method:      http.MethodPut,
		Path:        "/enrollments/{enrollment_id}/lessons/{lesson_id}/progress",
		Summary:     "Record watch progress for a lesson",
		Description: "Idempotent per (enrollment, lesson). watched_seconds is replaced; a completed lesson stays completed.",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		EnrollmentID string                `path:"enrollment_id"`
		LessonID     string                `path:"lesson_id"`
		Body         RecordProgressRequest `json:"body"`
	}) (*output[engine.ProgressResult], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.RecordProgress(ctx, actor, engine.RecordProgressInput{
			EnrollmentID:   input.EnrollmentID,
			LessonID:       input.LessonID,
			WatchedSeconds: input.Body.WatchedSeconds,
			Completed:      input.Body.Completed,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(res), nil
	})
}

func registerCertificates(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "issue-certificate",
		Method:      http.MethodPost,
		Path:        "/enrollments/{enrollment_id}/certificate",
		Summary:     "Issue the certificate of a completed enrollment",
		Description: "Idempotent: returns the existing certificate when one was already issued.",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		EnrollmentID string `path:"enrollment_id"`
	}) (*output[domain.Certificate], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cert, err := e.IssueCertificate(ctx, actor, input.EnrollmentID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(cert), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-enrollment-certificate",
		Method:      http.MethodGet,
		Path:        "/enrollments/{enrollment_id}/certificate",
		Summary:     "Certificate of an enrollment",
		Errors:      append([]int{http.StatusUnauthorized}, readErrors...),
	}, func(ctx context.Context, input *struct {
		EnrollmentID string `path:"enrollment_id"`
	}) (*output[domain.Certificate], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cert, err := e.GetEnrollmentCertificate(ctx, actor, input.EnrollmentID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(cert), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-certificate",
		Method:      http.MethodGet,
		Path:        "/certificates/{certificate_id}",
		Summary:     "Get certificate",
		Errors:      append([]int{http.StatusUnauthorized}, readErrors...),
	}, func(ctx context.Context, input *struct {
		CertificateID string `path:"certificate_id"`
	}) (*output[domain.Certificate], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cert, err := e.GetCertificate(ctx, actor, input.CertificateID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(cert), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-certificate-artifact",
		Method:      http.MethodPut,
		Path:        "/certificates/{certificate_id}/artifact",
		Summary:     "Record or clear the rendered artifact",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		CertificateID string             `path:"certificate_id"`
		Body          SetArtifactRequest `json:"body"`
	}) (*output[domain.Certificate], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cert, err := e.SetCertificateArtifact(ctx, actor, input.CertificateID, engine.SetArtifactInput{
			Artifact: input.Body.CertificateArtifact,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(cert), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-my-certificates",
		Method:      http.MethodGet,
		Path:        "/me/certificates",
		Summary:     "Certificates of the caller",
		Errors:      []int{http.StatusUnauthorized, http.StatusServiceUnavailable},
	}, func(ctx context.Context, _ *struct{}) (*output[[]domain.Certificate], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListMyCertificates(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(nonNilSlice(items)), nil
	})
}

func registerReviews(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "submit-review",
		Method:      http.MethodPut,
		Path:        "/courses/{course_id}/reviews",
		Summary:     "Create or replace the caller's review",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		CourseID string              `path:"course_id"`
		Body     SubmitReviewRequest `json:"body"`
	}) (*output[domain.Review], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rv, err := e.SubmitReview(ctx, actor, input.CourseID, engine.SubmitReviewInput{
			Rating:  input.Body.Rating,
			Comment: input.Body.Comment,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(rv), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-reviews",
		Method:      http.MethodGet,
		Path:        "/courses/{course_id}/reviews",
		Summary:     "Reviews of a course",
		Errors:      append([]int{http.StatusUnauthorized}, readErrors...),
	}, func(ctx context.Context, input *struct {
		CourseID string `path:"course_id"`
		Limit    int    `query:"limit" default:"50"`
		Offset   int    `query:"offset"`
	}) (*output[ReviewListResponse], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		items, err := e.ListReviews(ctx, actor, input.CourseID, limit, input.Offset)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(ReviewListResponse{Items: nonNilSlice(items), Limit: limit, Offset: input.Offset}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-review",
		Method:      http.MethodDelete,
		Path:        "/reviews/{review_id}",
		Summary:     "Delete own review",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ReviewID string `path:"review_id"`
	}) (*struct{}, error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteReview(ctx, actor, input.ReviewID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "course-stats",
		Method:      http.MethodGet,
		Path:        "/courses/{course_id}/stats",
		Summary:     "Rating and enrollment statistics, computed on read",
		Errors:      readErrors,
	}, func(ctx context.Context, input *struct {
		CourseID string `path:"course_id"`
	}) (*output[domain.CourseStats], error) {
		stats, err := e.CourseStats(ctx, actorFromContext(ctx), input.CourseID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(stats), nil
	})
}
