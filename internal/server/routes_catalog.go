package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"coursehub/internal/domain"
	"coursehub/internal/engine"
	"coursehub/internal/repo"
)

type output[T any] struct {
	Body T `json:"body"`
}

func respond[T any](v T) *output[T] {
	return &output[T]{Body: v}
}

var writeErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusPreconditionFailed,
	http.StatusServiceUnavailable,
}

var readErrors = []int{
	http.StatusBadRequest,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusServiceUnavailable,
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal and profile",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*output[MeResponse], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, _ := principalFromContext(ctx)
		resp := MeResponse{ActorID: actor.ID, Role: actor.Role, Source: p.Source}
		profile, err := e.GetProfile(ctx, actor, actor.ID)
		switch {
		case err == nil:
			resp.Profile = &profile
			resp.Role = profile.Role
		case engine.KindOf(err) != engine.KindNotFound:
			return nil, handleError(err)
		}
		return respond(resp), nil
	})
}

func registerProfiles(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-profile",
		Method:        http.MethodPost,
		Path:          "/profiles",
		Summary:       "Sign up the calling actor",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateProfileRequest `json:"body"`
	}) (*output[domain.Profile], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProfile(ctx, actor, input.Body.input())
		if err != nil {
			return nil, handleError(err)
		}
		return respond(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-profile",
		Method:      http.MethodGet,
		Path:        "/profiles/{profile_id}",
		Summary:     "Get profile",
		Errors:      append([]int{http.StatusUnauthorized}, readErrors...),
	}, func(ctx context.Context, input *struct {
		ProfileID string `path:"profile_id"`
	}) (*output[domain.Profile], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.GetProfile(ctx, actor, input.ProfileID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-profile",
		Method:      http.MethodPatch,
		Path:        "/profiles/{profile_id}",
		Summary:     "Update own profile",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ProfileID string               `path:"profile_id"`
		Body      UpdateProfileRequest `json:"body"`
	}) (*output[domain.Profile], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdateProfile(ctx, actor, input.ProfileID, input.Body.input())
		if err != nil {
			return nil, handleError(err)
		}
		return respond(p), nil
	})
}

func parsePrice(raw, name string) (*float64, huma.StatusError) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return nil, newAPIError(http.StatusBadRequest, "invalid_input", "invalid "+name, map[string]any{name: raw})
	}
	return &v, nil
}

func registerCourses(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-courses",
		Method:      http.MethodGet,
		Path:        "/courses",
		Summary:     "List published courses",
		Errors:      []int{http.StatusBadRequest, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Category     string `query:"category"`
		Level        string `query:"level"`
		InstructorID string `query:"instructor_id"`
		Query        string `query:"q"`
		MinPrice     string `query:"min_price"`
		MaxPrice     string `query:"max_price"`
		Limit        int    `query:"limit" default:"50"`
		Offset       int    `query:"offset"`
	}) (*output[CourseListResponse], error) {
		minPrice, perr := parsePrice(input.MinPrice, "min_price")
		if perr != nil {
			return nil, perr
		}
		maxPrice, perr := parsePrice(input.MaxPrice, "max_price")
		if perr != nil {
			return nil, perr
		}
		f := domain.CourseFilters{
			Category:     input.Category,
			Level:        input.Level,
			InstructorID: input.InstructorID,
			Query:        input.Query,
			MinPrice:     minPrice,
			MaxPrice:     maxPrice,
			Limit:        normalizeLimit(input.Limit),
			Offset:       input.Offset,
		}
		items, err := e.ListPublishedCourses(ctx, actorFromContext(ctx), f)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(CourseListResponse{Items: nonNilSlice(items), Limit: f.Limit, Offset: f.Offset}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-course",
		Method:        http.MethodPost,
		Path:          "/courses",
		Summary:       "Create a draft course",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateCourseRequest `json:"body"`
	}) (*output[domain.Course], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateCourse(ctx, actor, input.Body.input())
		if err != nil {
			return nil, handleError(err)
		}
		return respond(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-course",
		Method:      http.MethodGet,
		Path:        "/courses/{course_id}",
		Summary:     "Get course",
		Errors:      readErrors,
	}, func(ctx context.Context, input *struct {
		CourseID string `path:"course_id"`
	}) (*output[domain.Course], error) {
		c, err := e.GetCourse(ctx, actorFromContext(ctx), input.CourseID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-course",
		Method:      http.MethodPatch,
		Path:        "/courses/{course_id}",
		Summary:     "Update course",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		CourseID string              `path:"course_id"`
		Body     UpdateCourseRequest `json:"body"`
	}) (*output[domain.Course], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.UpdateCourse(ctx, actor, input.CourseID, input.Body.input())
		if err != nil {
			return nil, handleError(err)
		}
		return respond(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-course",
		Method:      http.MethodDelete,
		Path:        "/courses/{course_id}",
		Summary:     "Delete course and everything tied to it",
		Description: "Irreversible. Removes sections, lessons, enrollments, progress, certificates and reviews of the course.",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		CourseID string `path:"course_id"`
	}) (*output[repo.CascadeResult], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.DeleteCourse(ctx, actor, input.CourseID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(res), nil
	})

	for _, toggle := range []struct {
		id, path, summary string
		fn                func(context.Context, domain.Actor, string) (domain.Course, error)
	}{
		{"publish-course", "/courses/{course_id}/publish", "Publish course", e.PublishCourse},
		{"unpublish-course", "/courses/{course_id}/unpublish", "Unpublish course", e.UnpublishCourse},
	} {
		fn := toggle.fn
		huma.Register(api, huma.Operation{
			OperationID: toggle.id,
			Method:      http.MethodPost,
			Path:        toggle.path,
			Summary:     toggle.summary,
			Errors:      writeErrors,
		}, func(ctx context.Context, input *struct {
			CourseID string `path:"course_id"`
		}) (*output[domain.Course], error) {
			actor, authErr := requireActor(ctx)
			if authErr != nil {
				return nil, authErr
			}
			c, err := fn(ctx, actor, input.CourseID)
			if err != nil {
				return nil, handleError(err)
			}
			return respond(c), nil
		})
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-course-content",
		Method:      http.MethodGet,
		Path:        "/courses/{course_id}/content",
		Summary:     "Course outline with lessons filtered for the caller",
		Errors:      readErrors,
	}, func(ctx context.Context, input *struct {
		CourseID string `path:"course_id"`
	}) (*output[domain.CourseContent], error) {
		content, err := e.GetCourseContent(ctx, actorFromContext(ctx), input.CourseID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(content), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-instructor-courses",
		Method:      http.MethodGet,
		Path:        "/instructors/{instructor_id}/courses",
		Summary:     "Courses of an instructor",
		Errors:      readErrors,
	}, func(ctx context.Context, input *struct {
		InstructorID string `path:"instructor_id"`
	}) (*output[[]domain.Course], error) {
		items, err := e.ListInstructorCourses(ctx, actorFromContext(ctx), input.InstructorID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(nonNilSlice(items)), nil
	})
}

func registerSections(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-section",
		Method:        http.MethodPost,
		Path:          "/courses/{course_id}/sections",
		Summary:       "Add a section",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		CourseID string               `path:"course_id"`
		Body     CreateSectionRequest `json:"body"`
	}) (*output[domain.Section], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.CreateSection(ctx, actor, input.CourseID, engine.CreateSectionInput{
			Title:      input.Body.Title,
			OrderIndex: input.Body.OrderIndex,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reorder-sections",
		Method:      http.MethodPut,
		Path:        "/courses/{course_id}/sections/order",
		Summary:     "Reorder sections",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		CourseID string         `path:"course_id"`
		Body     ReorderRequest `json:"body"`
	}) (*output[[]domain.Section], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ReorderSections(ctx, actor, input.CourseID, input.Body.IDs)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-section",
		Method:      http.MethodPatch,
		Path:        "/sections/{section_id}",
		Summary:     "Rename section",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		SectionID string               `path:"section_id"`
		Body      UpdateSectionRequest `json:"body"`
	}) (*output[domain.Section], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.UpdateSection(ctx, actor, input.SectionID, engine.UpdateSectionInput{Title: input.Body.Title})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-section",
		Method:      http.MethodDelete,
		Path:        "/sections/{section_id}",
		Summary:     "Delete section with its lessons",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		SectionID string `path:"section_id"`
	}) (*output[repo.CascadeResult], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.DeleteSection(ctx, actor, input.SectionID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(res), nil
	})
}

func registerLessons(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-lesson",
		Method:        http.MethodPost,
		Path:          "/sections/{section_id}/lessons",
		Summary:       "Add a lesson",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		SectionID string              `path:"section_id"`
		Body      CreateLessonRequest `json:"body"`
	}) (*output[domain.Lesson], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		l, err := e.CreateLesson(ctx, actor, input.SectionID, input.Body.input())
		if err != nil {
			return nil, handleError(err)
		}
		return respond(l), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reorder-lessons",
		Method:      http.MethodPut,
		Path:        "/sections/{section_id}/lessons/order",
		Summary:     "Reorder lessons",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		SectionID string         `path:"section_id"`
		Body      ReorderRequest `json:"body"`
	}) (*output[[]domain.Lesson], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ReorderLessons(ctx, actor, input.SectionID, input.Body.IDs)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-lesson",
		Method:      http.MethodGet,
		Path:        "/lessons/{lesson_id}",
		Summary:     "Get lesson",
		Errors:      readErrors,
	}, func(ctx context.Context, input *struct {
		LessonID string `path:"lesson_id"`
	}) (*output[domain.Lesson], error) {
		l, err := e.GetLesson(ctx, actorFromContext(ctx), input.LessonID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(l), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-lesson",
		Method:      http.MethodPatch,
		Path:        "/lessons/{lesson_id}",
		Summary:     "Update lesson",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		LessonID string              `path:"lesson_id"`
		Body     UpdateLessonRequest `json:"body"`
	}) (*output[domain.Lesson], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		l, err := e.UpdateLesson(ctx, actor, input.LessonID, input.Body.input())
		if err != nil {
			return nil, handleError(err)
		}
		return respond(l), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-lesson",
		Method:      http.MethodDelete,
		Path:        "/lessons/{lesson_id}",
		Summary:     "Delete lesson",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		LessonID string `path:"lesson_id"`
	}) (*output[repo.CascadeResult], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.DeleteLesson(ctx, actor, input.LessonID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(res), nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*output[DevLoginResponse], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, actor, input.Body.Role, authCfg.TokenTTL)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return respond(DevLoginResponse{Token: token}), nil
	})
}
