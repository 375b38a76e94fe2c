package engine

import (
	"context"
	"errors"
	"fmt"

	"coursehub/internal/engine/auth"
	"coursehub/internal/repo"
)

// Kind classifies every failure the engine returns.
type Kind string

const (
	KindUnauthorized       Kind = "unauthorized"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindInvalidInput       Kind = "invalid_input"
	KindPreconditionFailed Kind = "precondition_failed"
	KindUnavailable        Kind = "unavailable"
	KindInternal           Kind = "internal"
)

// Error is a typed engine failure. Code identifies the specific condition and
// is what errors.Is compares.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrUnauthorized           = newError(KindUnauthorized, "unauthorized", "not authorized")
	ErrNotFound               = newError(KindNotFound, "not_found", "not found")
	ErrAlreadyEnrolled        = newError(KindConflict, "already_enrolled", "student already enrolled in course")
	ErrDuplicateReview        = newError(KindConflict, "duplicate_review", "review already exists")
	ErrDuplicateCertificate   = newError(KindConflict, "duplicate_certificate", "certificate already issued")
	ErrDuplicateProfile       = newError(KindConflict, "duplicate_profile", "profile already exists")
	ErrOrderConflict          = newError(KindConflict, "order_conflict", "order_index already used")
	ErrCourseUnavailable      = newError(KindPreconditionFailed, "course_unavailable", "course is not available for enrollment")
	ErrEnrollmentNotCompleted = newError(KindPreconditionFailed, "enrollment_not_completed", "enrollment is not completed")
	ErrNotEnrolled            = newError(KindPreconditionFailed, "not_enrolled", "student is not enrolled in course")
	ErrProfileRequired        = newError(KindPreconditionFailed, "profile_required", "actor has no profile")
	ErrLessonNotInCourse      = newError(KindInvalidInput, "lesson_not_in_course", "lesson does not belong to the enrollment's course")
	ErrInvalidRating          = newError(KindInvalidInput, "invalid_rating", "rating must be an integer between 1 and 5")
	ErrMalformedOrdering      = newError(KindInvalidInput, "malformed_ordering", "ordering must list every item exactly once")
	ErrInvalidInput           = newError(KindInvalidInput, "invalid_input", "invalid input")
	ErrTimeout                = newError(KindUnavailable, "storage_timeout", "storage did not answer in time; retry")
)

// with returns a copy of base carrying details and a cause.
func with(base *Error, details map[string]any, cause error) *Error {
	cp := *base
	cp.Details = details
	cp.Err = cause
	return &cp
}

func invalid(msg string, details map[string]any) *Error {
	cp := *ErrInvalidInput
	cp.Message = msg
	cp.Details = details
	return &cp
}

// KindOf reports the kind of err. Policy denials and unresolved ownership
// chains are both Unauthorized so callers cannot probe for existence.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) || errors.Is(err, auth.ErrUnresolved) {
		return KindUnauthorized
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindUnavailable
	}
	if errors.Is(err, repo.ErrNotFound) {
		return KindNotFound
	}
	if errors.Is(err, repo.ErrDuplicate) {
		return KindConflict
	}
	return KindInternal
}

// normalize maps lower-level failures onto typed engine errors.
func normalize(err error) error {
	if err == nil {
		return nil
	}
	var ee *Error
	if errors.As(err, &ee) {
		return err
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return with(ErrUnauthorized, map[string]any{"permission": fe.Permission}, err)
	}
	if errors.Is(err, auth.ErrUnresolved) {
		return with(ErrUnauthorized, nil, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return with(ErrTimeout, nil, err)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return with(ErrNotFound, nil, err)
	}
	return err
}
