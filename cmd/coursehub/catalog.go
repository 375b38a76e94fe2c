package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"coursehub/internal/domain"
	"coursehub/internal/engine"
)

func profileCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "profile", Short: "Manage profiles"}
	cmd.AddCommand(profileCreateCmd())
	cmd.AddCommand(profileShowCmd())
	cmd.AddCommand(profileUpdateCmd())
	return cmd
}

func profileCreateCmd() *cobra.Command {
	var email, name, role, bio, avatar string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create the profile of --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				p, err := e.CreateProfile(ctx, actor, engine.CreateProfileInput{
					Email:    email,
					FullName: name,
					Role:     role,
					Bio:      optionalString(cmd, "bio", bio),
					Avatar:   optionalString(cmd, "avatar", avatar),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().StringVar(&role, "role", domain.RoleStudent, "role (student, instructor)")
	cmd.Flags().StringVar(&bio, "bio", "", "bio")
	cmd.Flags().StringVar(&avatar, "avatar", "", "avatar reference")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func profileShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Show a profile (defaults to --actor-id)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				id := actor.ID
				if len(args) == 1 {
					id = args[0]
				}
				p, err := e.GetProfile(ctx, actor, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func profileUpdateCmd() *cobra.Command {
	var name, bio, avatar string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update the profile of --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				p, err := e.UpdateProfile(ctx, actor, actor.ID, engine.UpdateProfileInput{
					FullName: optionalString(cmd, "name", name),
					Bio:      optionalString(cmd, "bio", bio),
					Avatar:   optionalString(cmd, "avatar", avatar),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().StringVar(&bio, "bio", "", "bio")
	cmd.Flags().StringVar(&avatar, "avatar", "", "avatar reference")
	return cmd
}

func courseCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "course", Short: "Manage courses"}
	cmd.AddCommand(courseCreateCmd())
	cmd.AddCommand(courseListCmd())
	cmd.AddCommand(courseMineCmd())
	cmd.AddCommand(courseShowCmd())
	cmd.AddCommand(courseContentCmd())
	cmd.AddCommand(courseUpdateCmd())
	cmd.AddCommand(coursePublishCmd(true))
	cmd.AddCommand(coursePublishCmd(false))
	cmd.AddCommand(courseDeleteCmd())
	return cmd
}

func courseCreateCmd() *cobra.Command {
	var title, desc, thumbnail, level, category string
	var price float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a draft course owned by --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				c, err := e.CreateCourse(ctx, actor, engine.CreateCourseInput{
					Title:       title,
					Description: desc,
					Thumbnail:   optionalString(cmd, "thumbnail", thumbnail),
					Price:       price,
					Level:       level,
					Category:    category,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&thumbnail, "thumbnail", "", "thumbnail reference")
	cmd.Flags().Float64Var(&price, "price", 0, "price")
	cmd.Flags().StringVar(&level, "level", domain.LevelBeginner, "level (Beginner, Intermediate, Advanced)")
	cmd.Flags().StringVar(&category, "category", "", "category")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func courseListCmd() *cobra.Command {
	var category, level, instructor, query string
	var minPrice, maxPrice float64
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List published courses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				items, err := e.ListPublishedCourses(ctx, actor, domain.CourseFilters{
					Category:     category,
					Level:        level,
					InstructorID: instructor,
					Query:        query,
					MinPrice:     optionalFloat(cmd, "min-price", minPrice),
					MaxPrice:     optionalFloat(cmd, "max-price", maxPrice),
					Limit:        limit,
					Offset:       offset,
				})
				if err != nil {
					return err
				}
				return printCourses(items)
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "category filter")
	cmd.Flags().StringVar(&level, "level", "", "level filter")
	cmd.Flags().StringVar(&instructor, "instructor", "", "instructor filter")
	cmd.Flags().StringVar(&query, "q", "", "title/description search")
	cmd.Flags().Float64Var(&minPrice, "min-price", 0, "minimum price")
	cmd.Flags().Float64Var(&maxPrice, "max-price", 0, "maximum price")
	cmd.Flags().IntVar(&limit, "limit", 50, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")
	return cmd
}

func courseMineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mine [instructor-id]",
		Short: "List an instructor's courses, drafts included for the owner",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				id := actor.ID
				if len(args) == 1 {
					id = args[0]
				}
				items, err := e.ListInstructorCourses(ctx, actor, id)
				if err != nil {
					return err
				}
				return printCourses(items)
			})
		},
	}
}

func courseShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <course-id>",
		Short: "Show a course",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				c, err := e.GetCourse(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
}

func courseContentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "content <course-id>",
		Short: "Show the course outline as --actor-id sees it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				content, err := e.GetCourseContent(ctx, actor, args[0])
				if err != nil {
					return err
				}
				var rows []table.Row
				for _, s := range content.Sections {
					for _, l := range s.Lessons {
						rows = append(rows, table.Row{s.OrderIndex, s.Title, l.OrderIndex, l.ID, l.Title, l.IsPreview, l.Locked})
					}
				}
				return printRows(content, table.Row{"Sec", "Section", "Pos", "Lesson ID", "Lesson", "Preview", "Locked"}, rows)
			})
		},
	}
}

func courseUpdateCmd() *cobra.Command {
	var title, desc, thumbnail, level, category string
	var price float64
	cmd := &cobra.Command{
		Use:   "update <course-id>",
		Short: "Update a course",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				c, err := e.UpdateCourse(ctx, actor, args[0], engine.UpdateCourseInput{
					Title:       optionalString(cmd, "title", title),
					Description: optionalString(cmd, "description", desc),
					Thumbnail:   optionalString(cmd, "thumbnail", thumbnail),
					Price:       optionalFloat(cmd, "price", price),
					Level:       optionalString(cmd, "level", level),
					Category:    optionalString(cmd, "category", category),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&thumbnail, "thumbnail", "", "thumbnail reference")
	cmd.Flags().Float64Var(&price, "price", 0, "price")
	cmd.Flags().StringVar(&level, "level", "", "level")
	cmd.Flags().StringVar(&category, "category", "", "category")
	return cmd
}

func coursePublishCmd(publish bool) *cobra.Command {
	use, short := "publish", "Publish a course"
	if !publish {
		use, short = "unpublish", "Return a course to draft"
	}
	return &cobra.Command{
		Use:   use + " <course-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				var (
					c   domain.Course
					err error
				)
				if publish {
					c, err = e.PublishCourse(ctx, actor, args[0])
				} else {
					c, err = e.UnpublishCourse(ctx, actor, args[0])
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
}

func courseDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <course-id>",
		Short: "Delete a course and everything under it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				res, err := e.DeleteCourse(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
}

func sectionCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "section", Short: "Manage course sections"}

	var title string
	var order int
	create := &cobra.Command{
		Use:   "create <course-id>",
		Short: "Add a section to a course",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				s, err := e.CreateSection(ctx, actor, args[0], engine.CreateSectionInput{
					Title:      title,
					OrderIndex: optionalInt(cmd, "order", order),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	create.Flags().StringVar(&title, "title", "", "title")
	create.Flags().IntVar(&order, "order", 0, "order index (defaults to last)")
	_ = create.MarkFlagRequired("title")

	var newTitle string
	update := &cobra.Command{
		Use:   "update <section-id>",
		Short: "Rename a section",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				s, err := e.UpdateSection(ctx, actor, args[0], engine.UpdateSectionInput{Title: newTitle})
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	update.Flags().StringVar(&newTitle, "title", "", "title")
	_ = update.MarkFlagRequired("title")

	del := &cobra.Command{
		Use:   "delete <section-id>",
		Short: "Delete a section and its lessons",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				res, err := e.DeleteSection(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}

	reorder := &cobra.Command{
		Use:   "reorder <course-id> <id,id,...>",
		Short: "Reorder every section of a course",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				items, err := e.ReorderSections(ctx, actor, args[0], splitIDs(args[1]))
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, s := range items {
					rows = append(rows, table.Row{s.OrderIndex, s.ID, s.Title})
				}
				return printRows(items, table.Row{"Pos", "ID", "Title"}, rows)
			})
		},
	}

	cmd.AddCommand(create, update, del, reorder)
	return cmd
}

func lessonCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "lesson", Short: "Manage lessons"}

	var title, desc, video string
	var duration, order int
	var preview bool
	create := &cobra.Command{
		Use:   "create <section-id>",
		Short: "Add a lesson to a section",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				l, err := e.CreateLesson(ctx, actor, args[0], engine.CreateLessonInput{
					Title:           title,
					Description:     optionalString(cmd, "description", desc),
					VideoRef:        video,
					DurationSeconds: duration,
					OrderIndex:      optionalInt(cmd, "order", order),
					IsPreview:       preview,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	}
	create.Flags().StringVar(&title, "title", "", "title")
	create.Flags().StringVar(&desc, "description", "", "description")
	create.Flags().StringVar(&video, "video", "", "video reference")
	create.Flags().IntVar(&duration, "duration", 0, "duration in seconds")
	create.Flags().IntVar(&order, "order", 0, "order index (defaults to last)")
	create.Flags().BoolVar(&preview, "preview", false, "free preview lesson")
	_ = create.MarkFlagRequired("title")

	show := &cobra.Command{
		Use:   "show <lesson-id>",
		Short: "Show a lesson",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				l, err := e.GetLesson(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	}

	var uTitle, uDesc, uVideo string
	var uDuration int
	var uPreview bool
	update := &cobra.Command{
		Use:   "update <lesson-id>",
		Short: "Update a lesson",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				l, err := e.UpdateLesson(ctx, actor, args[0], engine.UpdateLessonInput{
					Title:           optionalString(cmd, "title", uTitle),
					Description:     optionalString(cmd, "description", uDesc),
					VideoRef:        optionalString(cmd, "video", uVideo),
					DurationSeconds: optionalInt(cmd, "duration", uDuration),
					IsPreview:       optionalBool(cmd, "preview", uPreview),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	}
	update.Flags().StringVar(&uTitle, "title", "", "title")
	update.Flags().StringVar(&uDesc, "description", "", "description")
	update.Flags().StringVar(&uVideo, "video", "", "video reference")
	update.Flags().IntVar(&uDuration, "duration", 0, "duration in seconds")
	update.Flags().BoolVar(&uPreview, "preview", false, "free preview lesson")

	del := &cobra.Command{
		Use:   "delete <lesson-id>",
		Short: "Delete a lesson and its progress records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				res, err := e.DeleteLesson(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}

	reorder := &cobra.Command{
		Use:   "reorder <section-id> <id,id,...>",
		Short: "Reorder every lesson of a section",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				items, err := e.ReorderLessons(ctx, actor, args[0], splitIDs(args[1]))
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, l := range items {
					rows = append(rows, table.Row{l.OrderIndex, l.ID, l.Title, fmt.Sprintf("%ds", l.DurationSeconds)})
				}
				return printRows(items, table.Row{"Pos", "ID", "Title", "Duration"}, rows)
			})
		},
	}

	cmd.AddCommand(create, show, update, del, reorder)
	return cmd
}
