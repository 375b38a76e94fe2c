package engine_test

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"coursehub/internal/config"
	"coursehub/internal/db"
	"coursehub/internal/domain"
	"coursehub/internal/engine"
	"coursehub/internal/events"
	"coursehub/internal/migrate"
	"coursehub/internal/repo"
)

var (
	instructor = domain.Actor{ID: "ines"}
	student    = domain.Actor{ID: "sam"}
	stranger   = domain.Actor{ID: "eve"}
	anonymous  = domain.Actor{}
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	signUp(t, eng, instructor, domain.RoleInstructor)
	signUp(t, eng, student, domain.RoleStudent)
	signUp(t, eng, stranger, domain.RoleStudent)
	return testEnv{Engine: eng, Ctx: ctx}
}

func signUp(t *testing.T, e engine.Engine, actor domain.Actor, role string) {
	t.Helper()
	_, err := e.CreateProfile(context.Background(), actor, engine.CreateProfileInput{
		Email:    actor.ID + "@example.com",
		FullName: actor.ID,
		Role:     role,
	})
	if err != nil {
		t.Fatalf("create profile %s: %v", actor.ID, err)
	}
}

type courseFixture struct {
	Course  domain.Course
	Section domain.Section
	Lessons []domain.Lesson
}

// newCourse builds a course with one section of n lessons; the first lesson is
// a preview. The course is published when publish is set.
func newCourse(t *testing.T, env testEnv, n int, publish bool) courseFixture {
	t.Helper()
	e := env.Engine
	course, err := e.CreateCourse(env.Ctx, instructor, engine.CreateCourseInput{Title: "Go", Level: domain.LevelBeginner, Price: 10})
	if err != nil {
		t.Fatalf("create course: %v", err)
	}
	section, err := e.CreateSection(env.Ctx, instructor, course.ID, engine.CreateSectionInput{Title: "Part 1"})
	if err != nil {
		t.Fatalf("create section: %v", err)
	}
	fx := courseFixture{Course: course, Section: section}
	for i := 0; i < n; i++ {
		fx.Lessons = append(fx.Lessons, addLesson(t, env, section.ID, fmt.Sprintf("Lesson %d", i+1), i == 0))
	}
	if publish {
		if fx.Course, err = e.PublishCourse(env.Ctx, instructor, course.ID); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	return fx
}

func addLesson(t *testing.T, env testEnv, sectionID, title string, preview bool) domain.Lesson {
	t.Helper()
	l, err := env.Engine.CreateLesson(env.Ctx, instructor, sectionID, engine.CreateLessonInput{
		Title:           title,
		VideoRef:        "vid-" + title,
		DurationSeconds: 300,
		IsPreview:       preview,
	})
	if err != nil {
		t.Fatalf("create lesson %s: %v", title, err)
	}
	return l
}

func enroll(t *testing.T, env testEnv, courseID string) domain.Enrollment {
	t.Helper()
	en, err := env.Engine.Enroll(env.Ctx, student, courseID)
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	return en
}

func complete(t *testing.T, env testEnv, enrollmentID, lessonID string) engine.ProgressResult {
	t.Helper()
	res, err := env.Engine.RecordProgress(env.Ctx, student, engine.RecordProgressInput{
		EnrollmentID:   enrollmentID,
		LessonID:       lessonID,
		WatchedSeconds: 300,
		Completed:      true,
	})
	if err != nil {
		t.Fatalf("record progress %s: %v", lessonID, err)
	}
	return res
}

func expectErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestCreateCourseRequiresInstructorProfile(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.Engine.CreateCourse(env.Ctx, student, engine.CreateCourseInput{Title: "Mine", Level: domain.LevelBeginner})
	if engine.KindOf(err) != engine.KindUnauthorized {
		t.Fatalf("students cannot create courses, got %v", err)
	}
	_, err = env.Engine.CreateCourse(env.Ctx, domain.Actor{ID: "ghost"}, engine.CreateCourseInput{Title: "Mine", Level: domain.LevelBeginner})
	expectErr(t, err, engine.ErrProfileRequired)

	_, err = env.Engine.CreateCourse(env.Ctx, instructor, engine.CreateCourseInput{Title: "", Level: "Expert", Price: -1})
	var ee *engine.Error
	if !errors.As(err, &ee) || ee.Kind != engine.KindInvalidInput {
		t.Fatalf("expected invalid input, got %v", err)
	}
	fields, _ := ee.Details["fields"].(map[string]any)
	for _, f := range []string{"title", "level", "price"} {
		if _, ok := fields[f]; !ok {
			t.Fatalf("expected field %s in details, got %v", f, ee.Details)
		}
	}
}

func TestDraftCourseHiddenFromOthers(t *testing.T) {
	env := newTestEnv(t, nil)
	fx := newCourse(t, env, 1, false)

	if _, err := env.Engine.GetCourse(env.Ctx, instructor, fx.Course.ID); err != nil {
		t.Fatalf("owner must read draft: %v", err)
	}
	_, hidden := env.Engine.GetCourse(env.Ctx, stranger, fx.Course.ID)
	_, missing := env.Engine.GetCourse(env.Ctx, stranger, "nope")
	if engine.KindOf(hidden) != engine.KindUnauthorized || engine.KindOf(missing) != engine.KindUnauthorized {
		t.Fatalf("draft and missing course must both be unauthorized, got %v / %v", hidden, missing)
	}
	items, err := env.Engine.ListPublishedCourses(env.Ctx, anonymous, domain.CourseFilters{})
	if err != nil || len(items) != 0 {
		t.Fatalf("draft must not be listed: %v %v", items, err)
	}
	mine, err := env.Engine.ListInstructorCourses(env.Ctx, instructor, instructor.ID)
	if err != nil || len(mine) != 1 {
		t.Fatalf("owner listing should include draft: %v %v", mine, err)
	}
	theirs, err := env.Engine.ListInstructorCourses(env.Ctx, stranger, instructor.ID)
	if err != nil || len(theirs) != 0 {
		t.Fatalf("others must not see drafts: %v %v", theirs, err)
	}
}

func TestCatalogFilters(t *testing.T) {
	env := newTestEnv(t, nil)
	e := env.Engine
	for i, spec := range []struct {
		title, level, category string
		price                  float64
	}{
		{"Intro to Go", domain.LevelBeginner, "programming", 0},
		{"Advanced Go", domain.LevelAdvanced, "programming", 50},
		{"Watercolor", domain.LevelBeginner, "art", 20},
	} {
		c, err := e.CreateCourse(env.Ctx, instructor, engine.CreateCourseInput{Title: spec.title, Level: spec.level, Category: spec.category, Price: spec.price})
		if err != nil {
			t.Fatalf("course %d: %v", i, err)
		}
		if _, err := e.PublishCourse(env.Ctx, instructor, c.ID); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	lo, hi := 10.0, 60.0
	cases := []struct {
		name string
		f    domain.CourseFilters
		want int
	}{
		{"all", domain.CourseFilters{}, 3},
		{"category", domain.CourseFilters{Category: "programming"}, 2},
		{"level", domain.CourseFilters{Level: domain.LevelBeginner}, 2},
		{"price range", domain.CourseFilters{MinPrice: &lo, MaxPrice: &hi}, 2},
		{"query", domain.CourseFilters{Query: "go"}, 2},
		{"page", domain.CourseFilters{Limit: 1, Offset: 2}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			items, err := e.ListPublishedCourses(env.Ctx, anonymous, tc.f)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(items) != tc.want {
				t.Fatalf("expected %d courses, got %d", tc.want, len(items))
			}
		})
	}
	_, err := e.ListPublishedCourses(env.Ctx, anonymous, domain.CourseFilters{MinPrice: &hi, MaxPrice: &lo})
	if engine.KindOf(err) != engine.KindInvalidInput {
		t.Fatalf("expected invalid input for inverted price range, got %v", err)
	}
}

func TestLessonAccess(t *testing.T) {
	env := newTestEnv(t, nil)
	fx := newCourse(t, env, 2, true)
	preview, locked := fx.Lessons[0], fx.Lessons[1]

	if _, err := env.Engine.GetLesson(env.Ctx, anonymous, preview.ID); err != nil {
		t.Fatalf("preview must be readable anonymously: %v", err)
	}
	_, err := env.Engine.GetLesson(env.Ctx, student, locked.ID)
	expectErr(t, err, engine.ErrUnauthorized)
	if _, err := env.Engine.GetLesson(env.Ctx, instructor, locked.ID); err != nil {
		t.Fatalf("owner must read every lesson: %v", err)
	}

	content, err := env.Engine.GetCourseContent(env.Ctx, student, fx.Course.ID)
	if err != nil {
		t.Fatalf("content: %v", err)
	}
	view := content.Sections[0].Lessons[1]
	if !view.Locked || view.VideoRef != "" {
		t.Fatalf("expected redacted lesson, got %+v", view)
	}

	enroll(t, env, fx.Course.ID)
	if _, err := env.Engine.GetLesson(env.Ctx, student, locked.ID); err != nil {
		t.Fatalf("enrolled student must read lesson: %v", err)
	}
	content, err = env.Engine.GetCourseContent(env.Ctx, student, fx.Course.ID)
	if err != nil {
		t.Fatalf("content: %v", err)
	}
	if l := content.Sections[0].Lessons[1]; l.Locked || l.VideoRef == "" {
		t.Fatalf("expected unlocked lesson for enrolled student, got %+v", l)
	}
}

func TestEnrollTwiceConflicts(t *testing.T) {
	env := newTestEnv(t, nil)
	fx := newCourse(t, env, 1, true)
	enroll(t, env, fx.Course.ID)

	_, err := env.Engine.Enroll(env.Ctx, student, fx.Course.ID)
	expectErr(t, err, engine.ErrAlreadyEnrolled)
	n, err := env.Engine.Repo.CountCourseEnrollments(env.Ctx, nil, fx.Course.ID)
	if err != nil || n != 1 {
		t.Fatalf("expected exactly one enrollment, got %d (%v)", n, err)
	}
}

func TestConcurrentEnrollCreatesOneRow(t *testing.T) {
	env := newTestEnv(t, nil)
	fx := newCourse(t, env, 1, true)

	var ok, conflicts atomic.Int32
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := env.Engine.Enroll(env.Ctx, student, fx.Course.ID)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, engine.ErrAlreadyEnrolled):
				conflicts.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if ok.Load() != 1 || conflicts.Load() != 7 {
		t.Fatalf("expected 1 success and 7 conflicts, got %d/%d", ok.Load(), conflicts.Load())
	}
}

func TestEnrollUnavailableCourse(t *testing.T) {
	env := newTestEnv(t, nil)
	fx := newCourse(t, env, 1, false)
	_, err := env.Engine.Enroll(env.Ctx, student, fx.Course.ID)
	expectErr(t, err, engine.ErrCourseUnavailable)
	_, err = env.Engine.Enroll(env.Ctx, student, "missing")
	expectErr(t, err, engine.ErrCourseUnavailable)
	_, err = env.Engine.Enroll(env.Ctx, anonymous, fx.Course.ID)
	if err == nil {
		t.Fatalf("anonymous enroll must fail")
	}
}

func TestProgressPercentageAndOneWayCompletion(t *testing.T) {
	env := newTestEnv(t, nil)
	fx := newCourse(t, env, 4, true)
	en := enroll(t, env, fx.Course.ID)

	complete(t, env, en.ID, fx.Lessons[0].ID)
	res := complete(t, env, en.ID, fx.Lessons[1].ID)
	if res.Enrollment.ProgressPercentage != 50 || res.Enrollment.CompletedAt != nil {
		t.Fatalf("expected 50%% incomplete, got %+v", res.Enrollment)
	}
	complete(t, env, en.ID, fx.Lessons[2].ID)
	res = complete(t, env, en.ID, fx.Lessons[3].ID)
	if !res.NewlyCompleted || res.Enrollment.ProgressPercentage != 100 || res.Enrollment.CompletedAt == nil {
		t.Fatalf("expected completion, got %+v", res)
	}
	completedAt := *res.Enrollment.CompletedAt

	addLesson(t, env, fx.Section.ID, "Bonus", false)
	got, err := env.Engine.GetEnrollmentByID(env.Ctx, student, en.ID)
	if err != nil {
		t.Fatalf("get enrollment: %v", err)
	}
	if got.ProgressPercentage != 80 {
		t.Fatalf("expected 80%% after a lesson was added, got %d", got.ProgressPercentage)
	}
	res = complete(t, env, en.ID, fx.Lessons[0].ID)
	if res.Revoked || res.NewlyCompleted || res.Enrollment.CompletedAt == nil || *res.Enrollment.CompletedAt != completedAt {
		t.Fatalf("one_way policy must keep completed_at, got %+v", res)
	}
	if res.Enrollment.ProgressPercentage != 80 {
		t.Fatalf("expected stored percentage 80, got %d", res.Enrollment.ProgressPercentage)
	}
}

func TestPercentageDropsWhenLessonAdded(t *testing.T) {
	env := newTestEnv(t, nil)
	fx := newCourse(t, env, 4, true)
	en := enroll(t, env, fx.Course.ID)

	complete(t, env, en.ID, fx.Lessons[0].ID)
	res := complete(t, env, en.ID, fx.Lessons[1].ID)
	if res.Enrollment.ProgressPercentage != 50 {
		t.Fatalf("expected 50%% with 2 of 4 lessons, got %d", res.Enrollment.ProgressPercentage)
	}

	addLesson(t, env, fx.Section.ID, "Fifth", false)
	got, err := env.Engine.GetEnrollmentByID(env.Ctx, student, en.ID)
	if err != nil {
		t.Fatalf("get enrollment: %v", err)
	}
	if got.ProgressPercentage != 40 {
		t.Fatalf("expected 40%% with 2 of 5 lessons, got %d", got.ProgressPercentage)
	}
	report, err := env.Engine.GetProgress(env.Ctx, student, en.ID)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if report.Enrollment.ProgressPercentage != 40 || report.TotalLessons != 5 || report.CompletedLessons != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestConcurrentFinalLessonsComplete(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Certificates.AutoIssue = false })
	fx := newCourse(t, env, 4, true)
	en := enroll(t, env, fx.Course.ID)
	complete(t, env, en.ID, fx.Lessons[0].ID)
	complete(t, env, en.ID, fx.Lessons[1].ID)

	var newly atomic.Int32
	var g errgroup.Group
	for _, l := range fx.Lessons[2:] {
		lessonID := l.ID
		g.Go(func() error {
			res, err := env.Engine.RecordProgress(env.Ctx, student, engine.RecordProgressInput{
				EnrollmentID: en.ID, LessonID: lessonID, WatchedSeconds: 300, Completed: true,
			})
			if res.NewlyCompleted {
				newly.Add(1)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("record progress: %v", err)
	}
	if newly.Load() != 1 {
		t.Fatalf("exactly one call must complete the course, got %d", newly.Load())
	}
	got, err := env.Engine.GetEnrollmentByID(env.Ctx, student, en.ID)
	if err != nil || !got.Completed() || got.ProgressPercentage != 100 {
		t.Fatalf("expected a completed enrollment, got %+v (%v)", got, err)
	}
	completed, err := env.Engine.Repo.LatestEvents(env.Ctx, nil, 10, repo.EventFilter{Type: events.CourseCompleted})
	if err != nil || len(completed) != 1 {
		t.Fatalf("expected one completion event, got %d (%v)", len(completed), err)
	}
}

func TestRevocableCompletion(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Progress.CompletionPolicy = config.CompletionRevocable
		c.Certificates.AutoIssue = false
	})
	fx := newCourse(t, env, 2, true)
	en := enroll(t, env, fx.Course.ID)
	complete(t, env, en.ID, fx.Lessons[0].ID)
	if res := complete(t, env, en.ID, fx.Lessons[1].ID); !res.NewlyCompleted || res.Certificate != nil {
		t.Fatalf("expected completion without auto-issue, got %+v", res)
	}

	addLesson(t, env, fx.Section.ID, "Bonus", false)
	res := complete(t, env, en.ID, fx.Lessons[0].ID)
	if !res.Revoked || res.Enrollment.CompletedAt != nil || res.Enrollment.ProgressPercentage != 67 {
		t.Fatalf("expected revoked completion at 67%%, got %+v", res)
	}
}

func TestRevocableKeepsCompletionOnceCertified(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Progress.CompletionPolicy = config.CompletionRevocable
	})
	fx := newCourse(t, env, 1, true)
	en := enroll(t, env, fx.Course.ID)
	if res := complete(t, env, en.ID, fx.Lessons[0].ID); res.Certificate == nil {
		t.Fatalf("expected auto-issued certificate, got %+v", res)
	}
	addLesson(t, env, fx.Section.ID, "Bonus", false)
	res := complete(t, env, en.ID, fx.Lessons[0].ID)
	if res.Revoked || res.Enrollment.CompletedAt == nil {
		t.Fatalf("certified enrollment must stay completed, got %+v", res)
	}
}

func TestLessonCompletionIsMonotonic(t *testing.T) {
	env := newTestEnv(t, nil)
	fx := newCourse(t, env, 2, true)
	en := enroll(t, env, fx.Course.ID)
	complete(t, env, en.ID, fx.Lessons[0].ID)

	res, err := env.Engine.RecordProgress(env.Ctx, student, engine.RecordProgressInput{
		EnrollmentID: en.ID, LessonID: fx.Lessons[0].ID, WatchedSeconds: 10, Completed: false,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !res.Progress.IsCompleted || res.Progress.WatchedSeconds != 10 {
		t.Fatalf("expected completion kept and watched replaced, got %+v", res.Progress)
	}
	if res.Enrollment.ProgressPercentage != 50 {
		t.Fatalf("expected 50%%, got %d", res.Enrollment.ProgressPercentage)
	}
}

func TestRecordProgressGuards(t *testing.T) {
	env := newTestEnv(t, nil)
	fx := newCourse(t, env, 1, true)
	other := newCourse(t, env, 1, true)
	en := enroll(t, env, fx.Course.ID)

	_, err := env.Engine.RecordProgress(env.Ctx, student, engine.RecordProgressInput{EnrollmentID: en.ID, LessonID: other.Lessons[0].ID})
	expectErr(t, err, engine.ErrLessonNotInCourse)
	_, err = env.Engine.RecordProgress(env.Ctx, student, engine.RecordProgressInput{EnrollmentID: en.ID, LessonID: "missing"})
	expectErr(t, err, engine.ErrLessonNotInCourse)
	_, err = env.Engine.RecordProgress(env.Ctx, stranger, engine.RecordProgressInput{EnrollmentID: en.ID, LessonID: fx.Lessons[0].ID})
	expectErr(t, err, engine.ErrUnauthorized)
	_, err = env.Engine.RecordProgress(env.Ctx, student, engine.RecordProgressInput{EnrollmentID: en.ID, LessonID: fx.Lessons[0].ID, WatchedSeconds: -1})
	if engine.KindOf(err) != engine.KindInvalidInput {
		t.Fatalf("expected invalid input for negative seconds, got %v", err)
	}
}

func TestEnrollmentVisibility(t *testing.T) {
	env := newTestEnv(t, nil)
	fx := newCourse(t, env, 1, true)
	en := enroll(t, env, fx.Course.ID)

	if _, err := env.Engine.GetEnrollment(env.Ctx, instructor, student.ID, fx.Course.ID); err != nil {
		t.Fatalf("instructor must see enrollment: %v", err)
	}
	_, err := env.Engine.GetEnrollmentByID(env.Ctx, stranger, en.ID)
	expectErr(t, err, engine.ErrUnauthorized)
	_, err = env.Engine.GetEnrollment(env.Ctx, stranger, stranger.ID, fx.Course.ID)
	expectErr(t, err, engine.ErrNotFound)
	_, err = env.Engine.ListCourseEnrollments(env.Ctx, stranger, fx.Course.ID)
	expectErr(t, err, engine.ErrUnauthorized)
	roster, err := env.Engine.ListCourseEnrollments(env.Ctx, instructor, fx.Course.ID)
	if err != nil || len(roster) != 1 {
		t.Fatalf("roster: %v %v", roster, err)
	}
	report, err := env.Engine.GetProgress(env.Ctx, student, en.ID)
	if err != nil || report.TotalLessons != 1 || len(report.Lessons) != 1 {
		t.Fatalf("progress report: %+v %v", report, err)
	}
	_, err = env.Engine.GetProgress(env.Ctx, instructor, en.ID)
	expectErr(t, err, engine.ErrUnauthorized)
	_, err = env.Engine.GetProgress(env.Ctx, stranger, en.ID)
	expectErr(t, err, engine.ErrUnauthorized)
}

func TestCertificateIssueIsIdempotent(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Certificates.AutoIssue = false })
	fx := newCourse(t, env, 1, true)
	en := enroll(t, env, fx.Course.ID)

	_, err := env.Engine.IssueCertificate(env.Ctx, student, en.ID)
	expectErr(t, err, engine.ErrEnrollmentNotCompleted)
	complete(t, env, en.ID, fx.Lessons[0].ID)

	certs := make([]domain.Certificate, 6)
	var g errgroup.Group
	for i := range certs {
		g.Go(func() error {
			c, err := env.Engine.IssueCertificate(env.Ctx, student, en.ID)
			certs[i] = c
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("issue: %v", err)
	}
	for _, c := range certs[1:] {
		if c.ID != certs[0].ID || c.CertificateNumber != certs[0].CertificateNumber {
			t.Fatalf("expected one certificate, got %s and %s", certs[0].ID, c.ID)
		}
	}
	if !regexp.MustCompile(`^CH-20240101-[0-9A-F]{10}$`).MatchString(certs[0].CertificateNumber) {
		t.Fatalf("unexpected certificate number %q", certs[0].CertificateNumber)
	}
	n, err := env.Engine.Repo.CountCertificates(env.Ctx, nil, en.ID)
	if err != nil || n != 1 {
		t.Fatalf("expected one stored certificate, got %d (%v)", n, err)
	}
	issued, err := env.Engine.Repo.LatestEvents(env.Ctx, nil, 10, repo.EventFilter{Type: events.CertificateIssued})
	if err != nil || len(issued) != 1 {
		t.Fatalf("expected one issue event, got %d (%v)", len(issued), err)
	}

	_, err = env.Engine.IssueCertificate(env.Ctx, stranger, en.ID)
	expectErr(t, err, engine.ErrUnauthorized)
}

func TestCertificateArtifact(t *testing.T) {
	env := newTestEnv(t, nil)
	fx := newCourse(t, env, 1, true)
	en := enroll(t, env, fx.Course.ID)
	cert := complete(t, env, en.ID, fx.Lessons[0].ID).Certificate
	if cert == nil {
		t.Fatalf("expected auto-issued certificate")
	}
	ref := "s3://certs/" + cert.CertificateNumber + ".pdf"
	got, err := env.Engine.SetCertificateArtifact(env.Ctx, student, cert.ID, engine.SetArtifactInput{Artifact: &ref})
	if err != nil || got.CertificateArtifact == nil || *got.CertificateArtifact != ref {
		t.Fatalf("set artifact: %+v %v", got, err)
	}
	_, err = env.Engine.SetCertificateArtifact(env.Ctx, stranger, cert.ID, engine.SetArtifactInput{Artifact: &ref})
	expectErr(t, err, engine.ErrUnauthorized)
	mine, err := env.Engine.ListMyCertificates(env.Ctx, student)
	if err != nil || len(mine) != 1 {
		t.Fatalf("list certificates: %v %v", mine, err)
	}
}

func TestReconcileIssuesMissingCertificates(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Certificates.AutoIssue = false })
	fx := newCourse(t, env, 1, true)
	en := enroll(t, env, fx.Course.ID)
	complete(t, env, en.ID, fx.Lessons[0].ID)

	n, err := env.Engine.ReconcileCertificates(env.Ctx, 10)
	if err != nil || n != 1 {
		t.Fatalf("expected one reconciled certificate, got %d (%v)", n, err)
	}
	n, err = env.Engine.ReconcileCertificates(env.Ctx, 10)
	if err != nil || n != 0 {
		t.Fatalf("second run must be a no-op, got %d (%v)", n, err)
	}
	if _, err := env.Engine.GetEnrollmentCertificate(env.Ctx, student, en.ID); err != nil {
		t.Fatalf("certificate missing after reconcile: %v", err)
	}	issued, err := env.Engine.Repo.LatestEvents(env.Ctx, nil, 10, repo.EventFilter{Type: events.CertificateIssued})
	if err != nil || len(issued) != 1 || issued[0].ActorID != "system" {
		t.Fatalf("expected one issue event by the system, got %v (%v)", issued, err)
	}
}

func TestReviewUpsertAndStats(t *testing.T) {
	env := newTestEnv(t, nil)
	fx := newCourse(t, env, 1, true)

	_, err := env.Engine.SubmitReview(env.Ctx, student, fx.Course.ID, engine.SubmitReviewInput{Rating: 4})
	expectErr(t, err, engine.ErrNotEnrolled)
	enroll(t, env, fx.Course.ID)

	first, err := env.Engine.SubmitReview(env.Ctx, student, fx.Course.ID, engine.SubmitReviewInput{Rating: 4})
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	comment := "even better on a second pass"
	second, err := env.Engine.SubmitReview(env.Ctx, student, fx.Course.ID, engine.SubmitReviewInput{Rating: 5, Comment: &comment})
	if err != nil {
		t.Fatalf("replace review: %v", err)
	}
	if second.ID != first.ID || second.Rating != 5 {
		t.Fatalf("expected the same review replaced, got %+v", second)
	}
	for _, bad := range []int{0, 6} {
		_, err := env.Engine.SubmitReview(env.Ctx, student, fx.Course.ID, engine.SubmitReviewInput{Rating: bad})
		expectErr(t, err, engine.ErrInvalidRating)
	}
	_, err = env.Engine.SubmitReview(env.Ctx, student, fx.Course.ID, engine.SubmitReviewInput{StudentID: stranger.ID, Rating: 3})
	if err == nil {
		t.Fatalf("reviewing on behalf of someone else must fail")
	}

	stats, err := env.Engine.CourseStats(env.Ctx, anonymous, fx.Course.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.ReviewCount != 1 || stats.AverageRating != 5 || stats.Histogram["5"] != 1 || stats.Histogram["4"] != 0 || stats.Enrollments != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	_, err = env.Engine.ListReviews(env.Ctx, anonymous, fx.Course.ID, 10, 0)
	expectErr(t, err, engine.ErrUnauthorized)
	reviews, err := env.Engine.ListReviews(env.Ctx, stranger, fx.Course.ID, 10, 0)
	if err != nil || len(reviews) != 1 {
		t.Fatalf("list reviews: %v %v", reviews, err)
	}
	expectErr(t, env.Engine.DeleteReview(env.Ctx, stranger, first.ID), engine.ErrUnauthorized)
	if err := env.Engine.DeleteReview(env.Ctx, student, first.ID); err != nil {
		t.Fatalf("delete review: %v", err)
	}
	stats, _ = env.Engine.CourseStats(env.Ctx, anonymous, fx.Course.ID)
	if stats.ReviewCount != 0 || stats.AverageRating != 0 {
		t.Fatalf("expected empty stats, got %+v", stats)
	}
}

func TestReorderLessons(t *testing.T) {
	env := newTestEnv(t, nil)
	fx := newCourse(t, env, 3, false)
	a, b, c := fx.Lessons[0].ID, fx.Lessons[1].ID, fx.Lessons[2].ID

	for _, ids := range [][]string{{a, b}, {a, b, b}, {a, b, c, "x"}, {a, b, "x"}} {
		_, err := env.Engine.ReorderLessons(env.Ctx, instructor, fx.Section.ID, ids)
		expectErr(t, err, engine.ErrMalformedOrdering)
	}
	got, err := env.Engine.ReorderLessons(env.Ctx, instructor, fx.Section.ID, []string{c, a, b})
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	for i, want := range []string{c, a, b} {
		if got[i].ID != want || got[i].OrderIndex != i {
			t.Fatalf("position %d: expected %s, got %+v", i, want, got[i])
		}
	}
	_, err = env.Engine.ReorderLessons(env.Ctx, stranger, fx.Section.ID, []string{a, b, c})
	expectErr(t, err, engine.ErrUnauthorized)

	dup := 0
	_, err = env.Engine.CreateSection(env.Ctx, instructor, fx.Course.ID, engine.CreateSectionInput{Title: "Clash", OrderIndex: &dup})
	expectErr(t, err, engine.ErrOrderConflict)
}

func TestDeleteCourseCascades(t *testing.T) {
	env := newTestEnv(t, nil)
	fx := newCourse(t, env, 2, true)
	en := enroll(t, env, fx.Course.ID)
	complete(t, env, en.ID, fx.Lessons[0].ID)
	complete(t, env, en.ID, fx.Lessons[1].ID)
	if _, err := env.Engine.SubmitReview(env.Ctx, student, fx.Course.ID, engine.SubmitReviewInput{Rating: 5}); err != nil {
		t.Fatalf("review: %v", err)
	}

	_, err := env.Engine.DeleteCourse(env.Ctx, stranger, fx.Course.ID)
	expectErr(t, err, engine.ErrUnauthorized)
	res, err := env.Engine.DeleteCourse(env.Ctx, instructor, fx.Course.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if res.Sections != 1 || res.Lessons != 2 || res.Enrollments != 1 || res.LessonProgress != 2 || res.Certificates != 1 || res.Reviews != 1 {
		t.Fatalf("unexpected cascade counts: %+v", res)
	}

	r := env.Engine.Repo
	if _, err := r.GetLesson(env.Ctx, nil, fx.Lessons[0].ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("lesson survived: %v", err)
	}
	if _, err := r.GetEnrollment(env.Ctx, nil, en.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("enrollment survived: %v", err)
	}
	if n, _ := r.CountCertificates(env.Ctx, nil, en.ID); n != 0 {
		t.Fatalf("certificate survived")
	}
	deleted, err := r.LatestEvents(env.Ctx, nil, 1, repo.EventFilter{Type: events.CourseDeleted})
	if err != nil || len(deleted) != 1 || deleted[0].EntityID != fx.Course.ID {
		t.Fatalf("expected course deleted event, got %+v (%v)", deleted, err)
	}
}

func TestDeleteLessonRecomputesOnRead(t *testing.T) {
	env := newTestEnv(t, nil)
	fx := newCourse(t, env, 2, true)
	en := enroll(t, env, fx.Course.ID)
	complete(t, env, en.ID, fx.Lessons[0].ID)

	if _, err := env.Engine.DeleteLesson(env.Ctx, instructor, fx.Lessons[1].ID); err != nil {
		t.Fatalf("delete lesson: %v", err)
	}
	got, err := env.Engine.GetEnrollmentByID(env.Ctx, student, en.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ProgressPercentage != 100 {
		t.Fatalf("expected 100%% once the unfinished lesson is gone, got %d", got.ProgressPercentage)
	}
}

func TestProfiles(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.Engine.CreateProfile(env.Ctx, student, engine.CreateProfileInput{Email: "again@example.com", FullName: "Sam", Role: domain.RoleStudent})
	expectErr(t, err, engine.ErrDuplicateProfile)

	bio := "Teaches Go"
	p, err := env.Engine.UpdateProfile(env.Ctx, instructor, instructor.ID, engine.UpdateProfileInput{Bio: &bio})
	if err != nil || p.Bio == nil || *p.Bio != bio {
		t.Fatalf("update profile: %+v %v", p, err)
	}
	_, err = env.Engine.UpdateProfile(env.Ctx, stranger, instructor.ID, engine.UpdateProfileInput{Bio: &bio})
	expectErr(t, err, engine.ErrUnauthorized)
	if _, err := env.Engine.GetProfile(env.Ctx, stranger, instructor.ID); err != nil {
		t.Fatalf("authenticated users can read profiles: %v", err)
	}
	_, err = env.Engine.GetProfile(env.Ctx, anonymous, instructor.ID)
	expectErr(t, err, engine.ErrUnauthorized)
}

func TestStorageTimeoutIsUnavailable(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithDeadline(env.Ctx, time.Now().Add(-time.Second))
	defer cancel()
	_, err := env.Engine.GetCourse(ctx, instructor, "any")
	if engine.KindOf(err) != engine.KindUnavailable {
		t.Fatalf("expected unavailable, got %v", err)
	}
}
