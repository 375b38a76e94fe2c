package auth

import (
	"errors"
	"testing"

	"coursehub/internal/domain"
)

func completedAt() *string {
	s := "2024-01-01T00:00:00Z"
	return &s
}

func TestDefaultPolicy(t *testing.T) {
	instructor := domain.Actor{ID: "ines", Role: domain.RoleInstructor}
	student := domain.Actor{ID: "sam", Role: domain.RoleStudent}
	other := domain.Actor{ID: "eve", Role: domain.RoleStudent}
	anon := domain.Actor{}

	draft := &domain.Course{ID: "c1", InstructorID: "ines"}
	published := &domain.Course{ID: "c2", InstructorID: "ines", IsPublished: true}
	preview := &domain.Lesson{ID: "l1", IsPreview: true}
	locked := &domain.Lesson{ID: "l2"}
	enrollment := &domain.Enrollment{ID: "e1", StudentID: "sam", CourseID: "c2"}
	done := &domain.Enrollment{ID: "e2", StudentID: "sam", CourseID: "c2", CompletedAt: completedAt()}
	cert := &domain.Certificate{ID: "cert", EnrollmentID: "e2"}
	review := &domain.Review{ID: "r1", CourseID: "c2", StudentID: "sam"}

	cases := []struct {
		name   string
		actor  domain.Actor
		entity Entity
		op     Op
		target Target
		allow  bool
	}{
		{"anonymous reads published course", anon, EntityCourse, OpRead, Target{Course: published}, true},
		{"anonymous cannot read draft", anon, EntityCourse, OpRead, Target{Course: draft}, false},
		{"owner reads draft", instructor, EntityCourse, OpRead, Target{Course: draft}, true},
		{"unresolved course denied", instructor, EntityCourse, OpRead, Target{}, false},
		{"instructor creates own course", instructor, EntityCourse, OpCreate, Target{Course: draft}, true},
		{"student cannot create course", student, EntityCourse, OpCreate, Target{Course: &domain.Course{InstructorID: "sam"}}, false},
		{"non-owner cannot update course", other, EntityCourse, OpUpdate, Target{Course: published}, false},
		{"owner deletes course", instructor, EntityCourse, OpDelete, Target{Course: published}, true},

		{"enrolled reads draft sections", student, EntitySection, OpRead, Target{Course: draft, ActorEnrolled: true}, true},
		{"stranger cannot read draft sections", other, EntitySection, OpRead, Target{Course: draft}, false},
		{"owner writes section", instructor, EntitySection, OpCreate, Target{Course: draft}, true},

		{"anonymous reads preview", anon, EntityLesson, OpRead, Target{Course: published, Lesson: preview}, true},
		{"anonymous cannot read locked", anon, EntityLesson, OpRead, Target{Course: published, Lesson: locked}, false},
		{"enrolled reads locked", student, EntityLesson, OpRead, Target{Course: published, Lesson: locked, ActorEnrolled: true}, true},
		{"anonymous flag spoof ignored", anon, EntityLesson, OpRead, Target{Course: published, Lesson: locked, ActorEnrolled: true}, false},
		{"owner reads locked", instructor, EntityLesson, OpRead, Target{Course: draft, Lesson: locked}, true},
		{"student cannot write lesson", student, EntityLesson, OpUpdate, Target{Course: published, Lesson: locked}, false},

		{"student enrolls self", student, EntityEnrollment, OpCreate, Target{Course: published, StudentID: "sam"}, true},
		{"cannot enroll someone else", other, EntityEnrollment, OpCreate, Target{Course: published, StudentID: "sam"}, false},
		{"student reads own enrollment", student, EntityEnrollment, OpRead, Target{Course: published, Enrollment: enrollment}, true},
		{"instructor reads enrollment", instructor, EntityEnrollment, OpRead, Target{Course: published, Enrollment: enrollment}, true},
		{"stranger cannot read enrollment", other, EntityEnrollment, OpRead, Target{Course: published, Enrollment: enrollment}, false},

		{"student records progress", student, EntityProgress, OpUpdate, Target{Course: published, Enrollment: enrollment}, true},
		{"student reads own progress", student, EntityProgress, OpRead, Target{Course: published, Enrollment: enrollment}, true},
		{"instructor cannot read progress rows", instructor, EntityProgress, OpRead, Target{Course: published, Enrollment: enrollment}, false},
		{"instructor cannot record progress", instructor, EntityProgress, OpUpdate, Target{Course: published, Enrollment: enrollment}, false},

		{"certificate needs completion", student, EntityCertificate, OpCreate, Target{Enrollment: enrollment}, false},
		{"completed student issues certificate", student, EntityCertificate, OpCreate, Target{Enrollment: done}, true},
		{"scheduled job issues completed certificate", anon, EntityCertificate, OpCreate, Target{Enrollment: done, Scheduled: true}, true},
		{"scheduled job needs completion", anon, EntityCertificate, OpCreate, Target{Enrollment: enrollment, Scheduled: true}, false},
		{"callers cannot act as the scheduler", other, EntityCertificate, OpCreate, Target{Enrollment: done, Scheduled: true}, false},
		{"student sets own artifact", student, EntityCertificate, OpUpdate, Target{Enrollment: done, Certificate: cert}, true},
		{"artifact of foreign certificate denied", student, EntityCertificate, OpUpdate, Target{Enrollment: enrollment, Certificate: cert}, false},

		{"enrolled student reviews", student, EntityReview, OpCreate, Target{Course: published, StudentID: "sam", ActorEnrolled: true}, true},
		{"unenrolled student cannot review", other, EntityReview, OpCreate, Target{Course: published, StudentID: "eve"}, false},
		{"author edits review", student, EntityReview, OpUpdate, Target{Course: published, Review: review}, true},
		{"others cannot delete review", other, EntityReview, OpDelete, Target{Course: published, Review: review}, false},
		{"anonymous cannot list reviews", anon, EntityReview, OpRead, Target{Course: published}, false},

		{"profile created for self only", student, EntityProfile, OpCreate, Target{ProfileID: "eve"}, false},
		{"profile updated by owner", student, EntityProfile, OpUpdate, Target{Profile: &domain.Profile{ID: "sam"}}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Authorize(tc.actor, tc.entity, tc.op, tc.target)
			if d.Allow != tc.allow {
				t.Fatalf("expected allow=%v, got %+v", tc.allow, d)
			}
			if d.Rule == "" {
				t.Fatalf("decision must name the rule")
			}
			if again := Authorize(tc.actor, tc.entity, tc.op, tc.target); again != d {
				t.Fatalf("decision changed between calls: %+v vs %+v", d, again)
			}
		})
	}
}

func TestDefaultDenyAndEnforce(t *testing.T) {
	d := Policy{}.Authorize(domain.Actor{ID: "x"}, EntityCourse, OpRead, Target{})
	if d.Allow || d.Rule != defaultDenyRule {
		t.Fatalf("empty policy must deny by default, got %+v", d)
	}

	p := Policy{
		{Name: "deny-all-reads", Entity: EntityCourse, Ops: []Op{OpRead}, Effect: Deny},
		{Name: "allow-all-reads", Entity: EntityCourse, Ops: []Op{OpRead}, Effect: Allow},
	}
	err := p.Enforce(domain.Actor{ID: "x"}, EntityCourse, OpRead, Target{})
	var fe ForbiddenError
	if !errors.As(err, &fe) || fe.Rule != "deny-all-reads" || fe.Permission != "course.read" {
		t.Fatalf("first matching rule must win, got %v", err)
	}
}
