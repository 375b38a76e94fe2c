package auth

import (
	"fmt"

	"coursehub/internal/domain"
)

type Entity string

const (
	EntityProfile     Entity = "profile"
	EntityCourse      Entity = "course"
	EntitySection     Entity = "section"
	EntityLesson      Entity = "lesson"
	EntityEnrollment  Entity = "enrollment"
	EntityProgress    Entity = "lesson_progress"
	EntityCertificate Entity = "certificate"
	EntityReview      Entity = "review"
)

type Op string

const (
	OpRead   Op = "read"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Target is the record an operation touches together with its resolved
// ownership chain. Fields a rule needs but the resolver could not fill stay
// zero, and every rule treats a zero value as "not satisfied".
type Target struct {
	Profile     *domain.Profile
	Course      *domain.Course
	Section     *domain.Section
	Lesson      *domain.Lesson
	Enrollment  *domain.Enrollment
	Certificate *domain.Certificate
	Review      *domain.Review

	// ProfileID is the id of a profile being created.
	ProfileID string
	// StudentID is the student_id of a record being created.
	StudentID string
	// ActorEnrolled reports whether the actor holds an enrollment in Course.
	ActorEnrolled bool
	// Scheduled marks work started by the engine's own jobs rather than a
	// caller. Only the engine sets it.
	Scheduled bool
}

// ForbiddenError indicates the policy denied an operation.
type ForbiddenError struct {
	Permission string
	Rule       string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s denied", e.Permission)
}

// Permission names an (entity, op) pair the way it appears in errors and logs.
func Permission(entity Entity, op Op) string {
	return string(entity) + "." + string(op)
}

type Effect bool

const (
	Allow Effect = true
	Deny  Effect = false
)

// Rule matches an entity, a set of operations and a condition over the actor
// and target. The first matching rule decides.
type Rule struct {
	Name   string
	Entity Entity
	Ops    []Op
	When   func(a domain.Actor, t Target) bool
	Effect Effect
}

func (r Rule) applies(entity Entity, op Op) bool {
	if r.Entity != entity {
		return false
	}
	for _, o := range r.Ops {
		if o == op {
			return true
		}
	}
	return false
}

type Policy []Rule

type Decision struct {
	Allow bool   `json:"allow"`
	Rule  string `json:"rule"`
}

const defaultDenyRule = "default-deny"

// Authorize evaluates the policy. It has no side effects and returns the same
// decision for the same inputs.
func (p Policy) Authorize(actor domain.Actor, entity Entity, op Op, t Target) Decision {
	for _, r := range p {
		if !r.applies(entity, op) {
			continue
		}
		if r.When != nil && !r.When(actor, t) {
			continue
		}
		return Decision{Allow: bool(r.Effect), Rule: r.Name}
	}
	return Decision{Allow: false, Rule: defaultDenyRule}
}

// Enforce turns a deny into a ForbiddenError.
func (p Policy) Enforce(actor domain.Actor, entity Entity, op Op, t Target) error {
	d := p.Authorize(actor, entity, op, t)
	if d.Allow {
		return nil
	}
	return ForbiddenError{Permission: Permission(entity, op), Rule: d.Rule}
}

// Authorize evaluates the default policy.
func Authorize(actor domain.Actor, entity Entity, op Op, t Target) Decision {
	return DefaultPolicy.Authorize(actor, entity, op, t)
}

func authenticated(a domain.Actor, _ Target) bool { return a.Authenticated() }

func same(a domain.Actor, id string) bool { return a.Authenticated() && id != "" && a.ID == id }

func courseInstructor(a domain.Actor, t Target) bool {
	return t.Course != nil && same(a, t.Course.InstructorID)
}

func coursePublished(_ domain.Actor, t Target) bool {
	return t.Course != nil && t.Course.IsPublished
}

func actorEnrolled(a domain.Actor, t Target) bool {
	return a.Authenticated() && t.Course != nil && t.ActorEnrolled
}

func enrollmentStudent(a domain.Actor, t Target) bool {
	return t.Enrollment != nil && same(a, t.Enrollment.StudentID)
}

func anyOf(conds ...func(domain.Actor, Target) bool) func(domain.Actor, Target) bool {
	return func(a domain.Actor, t Target) bool {
		for _, c := range conds {
			if c(a, t) {
				return true
			}
		}
		return false
	}
}

func allOf(conds ...func(domain.Actor, Target) bool) func(domain.Actor, Target) bool {
	return func(a domain.Actor, t Target) bool {
		for _, c := range conds {
			if !c(a, t) {
				return false
			}
		}
		return true
	}
}

// DefaultPolicy is the marketplace access table. Order matters.
var DefaultPolicy = Policy{
	{Name: "profile-read-authenticated", Entity: EntityProfile, Ops: []Op{OpRead}, When: authenticated, Effect: Allow},
	{Name: "profile-create-self", Entity: EntityProfile, Ops: []Op{OpCreate}, When: func(a domain.Actor, t Target) bool {
		return same(a, t.ProfileID)
	}, Effect: Allow},
	{Name: "profile-write-self", Entity: EntityProfile, Ops: []Op{OpUpdate, OpDelete}, When: func(a domain.Actor, t Target) bool {
		return t.Profile != nil && same(a, t.Profile.ID)
	}, Effect: Allow},

	{Name: "course-read-published-or-owner", Entity: EntityCourse, Ops: []Op{OpRead}, When: anyOf(coursePublished, courseInstructor), Effect: Allow},
	{Name: "course-create-instructor", Entity: EntityCourse, Ops: []Op{OpCreate}, When: func(a domain.Actor, t Target) bool {
		return courseInstructor(a, t) && a.Role == domain.RoleInstructor
	}, Effect: Allow},
	{Name: "course-write-owner", Entity: EntityCourse, Ops: []Op{OpUpdate, OpDelete}, When: courseInstructor, Effect: Allow},

	{Name: "section-read", Entity: EntitySection, Ops: []Op{OpRead}, When: anyOf(coursePublished, courseInstructor, actorEnrolled), Effect: Allow},
	{Name: "section-write-owner", Entity: EntitySection, Ops: []Op{OpCreate, OpUpdate, OpDelete}, When: courseInstructor, Effect: Allow},

	{Name: "lesson-read-preview", Entity: EntityLesson, Ops: []Op{OpRead}, When: func(_ domain.Actor, t Target) bool {
		return t.Lesson != nil && t.Lesson.IsPreview && t.Course != nil
	}, Effect: Allow},
	{Name: "lesson-read-owner", Entity: EntityLesson, Ops: []Op{OpRead}, When: courseInstructor, Effect: Allow},
	{Name: "lesson-read-enrolled", Entity: EntityLesson, Ops: []Op{OpRead}, When: actorEnrolled, Effect: Allow},
	{Name: "lesson-read-locked", Entity: EntityLesson, Ops: []Op{OpRead}, Effect: Deny},
	{Name: "lesson-write-owner", Entity: EntityLesson, Ops: []Op{OpCreate, OpUpdate, OpDelete}, When: courseInstructor, Effect: Allow},

	{Name: "enrollment-read-student-or-instructor", Entity: EntityEnrollment, Ops: []Op{OpRead}, When: anyOf(enrollmentStudent, allOf(
		func(_ domain.Actor, t Target) bool { return t.Enrollment != nil },
		courseInstructor,
	)), Effect: Allow},
	{Name: "enrollment-create-self", Entity: EntityEnrollment, Ops: []Op{OpCreate}, When: func(a domain.Actor, t Target) bool {
		return same(a, t.StudentID)
	}, Effect: Allow},
	{Name: "enrollment-update-student", Entity: EntityEnrollment, Ops: []Op{OpUpdate}, When: enrollmentStudent, Effect: Allow},

	{Name: "progress-student", Entity: EntityProgress, Ops: []Op{OpRead, OpCreate, OpUpdate}, When: enrollmentStudent, Effect: Allow},

	{Name: "certificate-read-student", Entity: EntityCertificate, Ops: []Op{OpRead}, When: enrollmentStudent, Effect: Allow},
	{Name: "certificate-create-completed", Entity: EntityCertificate, Ops: []Op{OpCreate}, When: func(a domain.Actor, t Target) bool {
		return enrollmentStudent(a, t) && t.Enrollment.Completed()
	}, Effect: Allow},
	{Name: "certificate-create-scheduled", Entity: EntityCertificate, Ops: []Op{OpCreate}, When: func(a domain.Actor, t Target) bool {
		return t.Scheduled && !a.Authenticated() && t.Enrollment != nil && t.Enrollment.Completed()
	}, Effect: Allow},
	{Name: "certificate-artifact-student", Entity: EntityCertificate, Ops: []Op{OpUpdate}, When: func(a domain.Actor, t Target) bool {
		return t.Certificate != nil && enrollmentStudent(a, t) && t.Certificate.EnrollmentID == t.Enrollment.ID
	}, Effect: Allow},

	{Name: "review-read-authenticated", Entity: EntityReview, Ops: []Op{OpRead}, When: authenticated, Effect: Allow},
	{Name: "review-create-enrolled-self", Entity: EntityReview, Ops: []Op{OpCreate}, When: func(a domain.Actor, t Target) bool {
		return same(a, t.StudentID) && actorEnrolled(a, t)
	}, Effect: Allow},
	{Name: "review-write-author", Entity: EntityReview, Ops: []Op{OpUpdate, OpDelete}, When: func(a domain.Actor, t Target) bool {
		return t.Review != nil && same(a, t.Review.StudentID)
	}, Effect: Allow},
}
