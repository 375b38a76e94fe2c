package coursehubsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client is a minimal coursehub HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	Timeout     time.Duration

	rc *resty.Client
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

type Profile struct {
	ID       string  `json:"id"`
	Email    string  `json:"email"`
	FullName string  `json:"full_name"`
	Role     string  `json:"role"`
	Bio      *string `json:"bio,omitempty"`
	Avatar   *string `json:"avatar,omitempty"`
}

type Course struct {
	ID           string  `json:"id"`
	InstructorID string  `json:"instructor_id"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	Price        float64 `json:"price"`
	Level        string  `json:"level"`
	Category     string  `json:"category"`
	IsPublished  bool    `json:"is_published"`
}

type Section struct {
	ID         string `json:"id"`
	CourseID   string `json:"course_id"`
	Title      string `json:"title"`
	OrderIndex int    `json:"order_index"`
}

type Lesson struct {
	ID              string `json:"id"`
	SectionID       string `json:"section_id"`
	Title           string `json:"title"`
	VideoRef        string `json:"video_ref"`
	DurationSeconds int    `json:"duration_seconds"`
	OrderIndex      int    `json:"order_index"`
	IsPreview       bool   `json:"is_preview"`
	Locked          bool   `json:"locked,omitempty"`
}

// CourseContent is the outline of a course as the caller may see it.
type CourseContent struct {
	Course   Course `json:"course"`
	Sections []struct {
		Section
		Lessons []Lesson `json:"lessons"`
	} `json:"sections"`
}

type Enrollment struct {
	ID                 string  `json:"id"`
	StudentID          string  `json:"student_id"`
	CourseID           string  `json:"course_id"`
	EnrolledAt         string  `json:"enrolled_at"`
	CompletedAt        *string `json:"completed_at,omitempty"`
	ProgressPercentage int     `json:"progress_percentage"`
}

type Certificate struct {
	ID                  string  `json:"id"`
	EnrollmentID        string  `json:"enrollment_id"`
	CertificateNumber   string  `json:"certificate_number"`
	CertificateArtifact *string `json:"certificate_artifact,omitempty"`
	IssuedAt            string  `json:"issued_at"`
}

// ProgressResult is returned after recording lesson progress.
type ProgressResult struct {
	Enrollment     Enrollment   `json:"enrollment"`
	NewlyCompleted bool         `json:"newly_completed"`
	Revoked        bool         `json:"revoked"`
	Certificate    *Certificate `json:"certificate,omitempty"`
}

type Review struct {
	ID        string  `json:"id"`
	CourseID  string  `json:"course_id"`
	StudentID string  `json:"student_id"`
	Rating    int     `json:"rating"`
	Comment   *string `json:"comment,omitempty"`
}

type CourseStats struct {
	CourseID      string         `json:"course_id"`
	AverageRating float64        `json:"average_rating"`
	ReviewCount   int            `json:"review_count"`
	Histogram     map[string]int `json:"histogram"`
	Enrollments   int            `json:"enrollments"`
}

// CourseFilter narrows ListCourses. Zero fields are not sent.
type CourseFilter struct {
	Category     string
	Level        string
	InstructorID string
	Query        string
	MinPrice     *float64
	MaxPrice     *float64
	Limit        int
	Offset       int
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// DevLogin mints a development token and stores it on the client.
func (c *Client) DevLogin(ctx context.Context, actorID, role string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, "POST", "auth/dev/login", nil, map[string]any{"actor_id": actorID, "role": role}, &resp)
	if err == nil {
		c.BearerToken = resp.Token
	}
	return resp.Token, err
}

func (c *Client) CreateProfile(ctx context.Context, email, fullName, role string) (Profile, error) {
	var resp Profile
	err := c.do(ctx, "POST", "profiles", nil, map[string]any{"email": email, "full_name": fullName, "role": role}, &resp)
	return resp, err
}

func (c *Client) CreateCourse(ctx context.Context, title, level string, price float64, category string) (Course, error) {
	body := map[string]any{"title": title, "level": level, "price": price, "category": category}
	var resp Course
	err := c.do(ctx, "POST", "courses", nil, body, &resp)
	return resp, err
}

func (c *Client) PublishCourse(ctx context.Context, courseID string) (Course, error) {
	var resp Course
	err := c.do(ctx, "POST", fmt.Sprintf("courses/%s/publish", url.PathEscape(courseID)), nil, nil, &resp)
	return resp, err
}

// ListCourses returns one page of the published catalog.
func (c *Client) ListCourses(ctx context.Context, f CourseFilter) ([]Course, error) {
	q := url.Values{}
	setIf := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	setIf("category", f.Category)
	setIf("level", f.Level)
	setIf("instructor_id", f.InstructorID)
	setIf("q", f.Query)
	if f.MinPrice != nil {
		q.Set("min_price", strconv.FormatFloat(*f.MinPrice, 'f', -1, 64))
	}
	if f.MaxPrice != nil {
		q.Set("max_price", strconv.FormatFloat(*f.MaxPrice, 'f', -1, 64))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	var resp struct {
		Items []Course `json:"items"`
	}
	err := c.do(ctx, "GET", "courses", q, nil, &resp)
	return resp.Items, err
}

func (c *Client) CourseContent(ctx context.Context, courseID string) (CourseContent, error) {
	var resp CourseContent
	err := c.do(ctx, "GET", fmt.Sprintf("courses/%s/content", url.PathEscape(courseID)), nil, nil, &resp)
	return resp, err
}

func (c *Client) CreateSection(ctx context.Context, courseID, title string) (Section, error) {
	var resp Section
	err := c.do(ctx, "POST", fmt.Sprintf("courses/%s/sections", url.PathEscape(courseID)), nil, map[string]any{"title": title}, &resp)
	return resp, err
}

func (c *Client) CreateLesson(ctx context.Context, sectionID, title, videoRef string, durationSeconds int, preview bool) (Lesson, error) {
	body := map[string]any{
		"title":            title,
		"video_ref":        videoRef,
		"duration_seconds": durationSeconds,
		"is_preview":       preview,
	}
	var resp Lesson
	err := c.do(ctx, "POST", fmt.Sprintf("sections/%s/lessons", url.PathEscape(sectionID)), nil, body, &resp)
	return resp, err
}

func (c *Client) Enroll(ctx context.Context, courseID string) (Enrollment, error) {
	var resp Enrollment
	err := c.do(ctx, "POST", fmt.Sprintf("courses/%s/enrollments", url.PathEscape(courseID)), nil, nil, &resp)
	return resp, err
}

func (c *Client) RecordProgress(ctx context.Context, enrollmentID, lessonID string, watchedSeconds int, completed bool) (ProgressResult, error) {
	body := map[string]any{"watched_seconds": watchedSeconds, "completed": completed}
	var resp ProgressResult
	endpoint := fmt.Sprintf("enrollments/%s/lessons/%s/progress", url.PathEscape(enrollmentID), url.PathEscape(lessonID))
	err := c.do(ctx, "PUT", endpoint, nil, body, &resp)
	return resp, err
}

// IssueCertificate returns the enrollment's certificate, issuing it if needed.
func (c *Client) IssueCertificate(ctx context.Context, enrollmentID string) (Certificate, error) {
	var resp Certificate
	err := c.do(ctx, "POST", fmt.Sprintf("enrollments/%s/certificate", url.PathEscape(enrollmentID)), nil, nil, &resp)
	return resp, err
}

// SubmitReview creates or replaces the caller's review of a course.
func (c *Client) SubmitReview(ctx context.Context, courseID string, rating int, comment string) (Review, error) {
	body := map[string]any{"rating": rating}
	if comment != "" {
		body["comment"] = comment
	}
	var resp Review
	err := c.do(ctx, "PUT", fmt.Sprintf("courses/%s/reviews", url.PathEscape(courseID)), nil, body, &resp)
	return resp, err
}

func (c *Client) CourseStats(ctx context.Context, courseID string) (CourseStats, error) {
	var resp CourseStats
	err := c.do(ctx, "GET", fmt.Sprintf("courses/%s/stats", url.PathEscape(courseID)), nil, nil, &resp)
	return resp, err
}

func (c *Client) client() *resty.Client {
	if c.rc == nil {
		c.rc = resty.New().
			SetTimeout(c.Timeout).
			SetHeader("Content-Type", "application/json")
	}
	return c.rc
}

func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body, out any) error {
	req := c.client().R().SetContext(ctx)
	switch {
	case c.BearerToken != "":
		req.SetAuthToken(c.BearerToken)
	case c.APIKey != "":
		req.SetHeader("X-Api-Key", c.APIKey)
	}
	if query != nil {
		req.SetQueryParamsFromValues(query)
	}
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, c.url(endpoint))
	if err != nil {
		return err
	}
	if resp.StatusCode() >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode(), Body: resp.String()}
		var envelope struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(resp.Body(), &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
			apiErr.Details = envelope.Error.Details
		}
		return apiErr
	}
	if out != nil && len(resp.Body()) > 0 {
		return json.Unmarshal(resp.Body(), out)
	}
	return nil
}

func (c *Client) url(endpoint string) string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base + "/" + strings.TrimLeft(endpoint, "/")
}
