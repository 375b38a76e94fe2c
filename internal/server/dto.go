package server

import (
	"coursehub/internal/domain"
	"coursehub/internal/engine"
)

// Request payloads

type CreateProfileRequest struct {
	Email    string  `json:"email"`
	FullName string  `json:"full_name"`
	Role     string  `json:"role" enum:"student,instructor"`
	Bio      *string `json:"bio,omitempty"`
	Avatar   *string `json:"avatar,omitempty"`
}

func (r CreateProfileRequest) input() engine.CreateProfileInput {
	return engine.CreateProfileInput{Email: r.Email, FullName: r.FullName, Role: r.Role, Bio: r.Bio, Avatar: r.Avatar}
}

type UpdateProfileRequest struct {
	FullName *string `json:"full_name,omitempty"`
	Bio      *string `json:"bio,omitempty"`
	Avatar   *string `json:"avatar,omitempty"`
}

func (r UpdateProfileRequest) input() engine.UpdateProfileInput {
	return engine.UpdateProfileInput{FullName: r.FullName, Bio: r.Bio, Avatar: r.Avatar}
}

type CreateCourseRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Thumbnail   *string `json:"thumbnail,omitempty"`
	Price       float64 `json:"price,omitempty"`
	Level       string  `json:"level" enum:"Beginner,Intermediate,Advanced"`
	Category    string  `json:"category,omitempty"`
}

func (r CreateCourseRequest) input() engine.CreateCourseInput {
	return engine.CreateCourseInput{
		Title:       r.Title,
		Description: r.Description,
		Thumbnail:   r.Thumbnail,
		Price:       r.Price,
		Level:       r.Level,
		Category:    r.Category,
	}
}

type UpdateCourseRequest struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Thumbnail   *string  `json:"thumbnail,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	Level       *string  `json:"level,omitempty" enum:"Beginner,Intermediate,Advanced"`
	Category    *string  `json:"category,omitempty"`
}

func (r UpdateCourseRequest) input() engine.UpdateCourseInput {
	return engine.UpdateCourseInput{
		Title:       r.Title,
		Description: r.Description,
		Thumbnail:   r.Thumbnail,
		Price:       r.Price,
		Level:       r.Level,
		Category:    r.Category,
	}
}

type CreateSectionRequest struct {
	Title      string `json:"title"`
	OrderIndex *int   `json:"order_index,omitempty"`
}

type UpdateSectionRequest struct {
	Title string `json:"title"`
}

// ReorderRequest lists every child id in its new order.
type ReorderRequest struct {
	IDs []string `json:"ids"`
}

type CreateLessonRequest struct {
	Title           string  `json:"title"`
	Description     *string `json:"description,omitempty"`
	VideoRef        string  `json:"video_ref,omitempty"`
	DurationSeconds int     `json:"duration_seconds,omitempty"`
	OrderIndex      *int    `json:"order_index,omitempty"`
	IsPreview       bool    `json:"is_preview,omitempty"`
}

func (r CreateLessonRequest) input() engine.CreateLessonInput {
	return engine.CreateLessonInput{
		Title:           r.Title,
		Description:     r.Description,
		VideoRef:        r.VideoRef,
		DurationSeconds: r.DurationSeconds,
		OrderIndex:      r.OrderIndex,
		IsPreview:       r.IsPreview,
	}
}

type UpdateLessonRequest struct {
	Title           *string `json:"title,omitempty"`
	Description     *string `json:"description,omitempty"`
	VideoRef        *string `json:"video_ref,omitempty"`
	DurationSeconds *int    `json:"duration_seconds,omitempty"`
	IsPreview       *bool   `json:"is_preview,omitempty"`
}

func (r UpdateLessonRequest) input() engine.UpdateLessonInput {
	return engine.UpdateLessonInput{
		Title:           r.Title,
		Description:     r.Description,
		VideoRef:        r.VideoRef,
		DurationSeconds: r.DurationSeconds,
		IsPreview:       r.IsPreview,
	}
}

type RecordProgressRequest struct {
	WatchedSeconds int  `json:"watched_seconds"`
	Completed      bool `json:"completed,omitempty"`
}

type SetArtifactRequest struct {
	CertificateArtifact *string `json:"certificate_artifact,omitempty"`
}

type SubmitReviewRequest struct {
	Rating  int     `json:"rating"`
	Comment *string `json:"comment,omitempty"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role,omitempty" enum:"student,instructor"`
}

// Response payloads

type DevLoginResponse struct {
	Token string `json:"token"`
}

type MeResponse struct {
	ActorID string          `json:"actor_id"`
	Role    string          `json:"role,omitempty"`
	Source  string          `json:"source"`
	Profile *domain.Profile `json:"profile,omitempty"`
}

type CourseListResponse struct {
	Items  []domain.Course `json:"items"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

type ReviewListResponse struct {
	Items  []domain.Review `json:"items"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}
