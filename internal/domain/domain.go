package domain

// Roles an actor may sign up with.
const (
	RoleStudent    = "student"
	RoleInstructor = "instructor"
)

// Course levels.
const (
	LevelBeginner     = "Beginner"
	LevelIntermediate = "Intermediate"
	LevelAdvanced     = "Advanced"
)

// Actor is the identity every query and command runs as. An empty ID is an
// unauthenticated caller.
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role,omitempty"`
}

func (a Actor) Authenticated() bool { return a.ID != "" }

type Profile struct {
	ID        string  `json:"id" db:"id"`
	Email     string  `json:"email" db:"email"`
	FullName  string  `json:"full_name" db:"full_name"`
	Role      string  `json:"role" db:"role" enum:"student,instructor"`
	Bio       *string `json:"bio,omitempty" db:"bio"`
	Avatar    *string `json:"avatar,omitempty" db:"avatar"`
	CreatedAt string  `json:"created_at" db:"created_at" format:"date-time"`
	UpdatedAt string  `json:"updated_at" db:"updated_at" format:"date-time"`
}

type Course struct {
	ID           string  `json:"id" db:"id"`
	InstructorID string  `json:"instructor_id" db:"instructor_id"`
	Title        string  `json:"title" db:"title"`
	Description  string  `json:"description" db:"description"`
	Thumbnail    *string `json:"thumbnail,omitempty" db:"thumbnail"`
	Price        float64 `json:"price" db:"price"`
	Level        string  `json:"level" db:"level" enum:"Beginner,Intermediate,Advanced"`
	Category     string  `json:"category" db:"category"`
	IsPublished  bool    `json:"is_published" db:"is_published"`
	CreatedAt    string  `json:"created_at" db:"created_at" format:"date-time"`
	UpdatedAt    string  `json:"updated_at" db:"updated_at" format:"date-time"`
}

type Section struct {
	ID         string `json:"id" db:"id"`
	CourseID   string `json:"course_id" db:"course_id"`
	Title      string `json:"title" db:"title"`
	OrderIndex int    `json:"order_index" db:"order_index"`
}

type Lesson struct {
	ID              string  `json:"id" db:"id"`
	SectionID       string  `json:"section_id" db:"section_id"`
	Title           string  `json:"title" db:"title"`
	Description     *string `json:"description,omitempty" db:"description"`
	VideoRef        string  `json:"video_ref" db:"video_ref"`
	DurationSeconds int     `json:"duration_seconds" db:"duration_seconds"`
	OrderIndex      int     `json:"order_index" db:"order_index"`
	IsPreview       bool    `json:"is_preview" db:"is_preview"`
}

type Enrollment struct {
	ID                 string  `json:"id" db:"id"`
	StudentID          string  `json:"student_id" db:"student_id"`
	CourseID           string  `json:"course_id" db:"course_id"`
	EnrolledAt         string  `json:"enrolled_at" db:"enrolled_at" format:"date-time"`
	CompletedAt        *string `json:"completed_at,omitempty" db:"completed_at" format:"date-time"`
	ProgressPercentage int     `json:"progress_percentage" db:"progress_percentage"`
}

func (e Enrollment) Completed() bool { return e.CompletedAt != nil && *e.CompletedAt != "" }

type LessonProgress struct {
	ID             string `json:"id" db:"id"`
	EnrollmentID   string `json:"enrollment_id" db:"enrollment_id"`
	LessonID       string `json:"lesson_id" db:"lesson_id"`
	WatchedSeconds int    `json:"watched_seconds" db:"watched_seconds"`
	IsCompleted    bool   `json:"is_completed" db:"is_completed"`
	LastWatchedAt  string `json:"last_watched_at" db:"last_watched_at" format:"date-time"`
}

type Certificate struct {
	ID                  string  `json:"id" db:"id"`
	EnrollmentID        string  `json:"enrollment_id" db:"enrollment_id"`
	CertificateNumber   string  `json:"certificate_number" db:"certificate_number"`
	CertificateArtifact *string `json:"certificate_artifact,omitempty" db:"certificate_artifact"`
	IssuedAt            string  `json:"issued_at" db:"issued_at" format:"date-time"`
}

type Review struct {
	ID        string  `json:"id" db:"id"`
	CourseID  string  `json:"course_id" db:"course_id"`
	StudentID string  `json:"student_id" db:"student_id"`
	Rating    int     `json:"rating" db:"rating"`
	Comment   *string `json:"comment,omitempty" db:"comment"`
	CreatedAt string  `json:"created_at" db:"created_at" format:"date-time"`
	UpdatedAt string  `json:"updated_at" db:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id" db:"id"`
	TS         string `json:"ts" db:"ts"`
	Type       string `json:"type" db:"type"`
	EntityKind string `json:"entity_kind" db:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty" db:"entity_id"`
	ActorID    string `json:"actor_id" db:"actor_id"`
	Payload    string `json:"payload" db:"payload_json"`
}

// APIKey represents a hashed API key bound to an actor.
type APIKey struct {
	ID        string `json:"id" db:"id"`
	ActorID   string `json:"actor_id" db:"actor_id"`
	Role      string `json:"role,omitempty" db:"role"`
	Name      string `json:"name,omitempty" db:"name"`
	KeyHash   string `json:"-" db:"key_hash"`
	CreatedAt string `json:"created_at" db:"created_at"`
}

// CourseFilters narrows listPublishedCourses.
type CourseFilters struct {
	Category     string
	Level        string
	InstructorID string
	Query        string
	MinPrice     *float64
	MaxPrice     *float64
	Limit        int
	Offset       int
}

// LessonView is a lesson as returned to a specific actor. Locked lessons carry
// only their outline fields.
type LessonView struct {
	Lesson
	Locked bool `json:"locked"`
}

type SectionView struct {
	Section
	Lessons []LessonView `json:"lessons"`
}

type CourseContent struct {
	Course   Course        `json:"course"`
	Sections []SectionView `json:"sections"`
}

type LessonProgressRow struct {
	LessonID       string  `json:"lesson_id" db:"lesson_id"`
	SectionID      string  `json:"section_id" db:"section_id"`
	Title          string  `json:"title" db:"title"`
	WatchedSeconds int     `json:"watched_seconds" db:"watched_seconds"`
	IsCompleted    bool    `json:"is_completed" db:"is_completed"`
	LastWatchedAt  *string `json:"last_watched_at,omitempty" db:"last_watched_at"`
}

type ProgressReport struct {
	Enrollment       Enrollment          `json:"enrollment"`
	TotalLessons     int                 `json:"total_lessons"`
	CompletedLessons int                 `json:"completed_lessons"`
	Lessons          []LessonProgressRow `json:"lessons"`
}

type CourseStats struct {
	CourseID      string         `json:"course_id"`
	AverageRating float64        `json:"average_rating"`
	ReviewCount   int            `json:"review_count"`
	Histogram     map[string]int `json:"histogram"`
	Enrollments   int            `json:"enrollments"`
}
