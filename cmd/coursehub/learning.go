package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"coursehub/internal/domain"
	"coursehub/internal/engine"
)

func enrollmentCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "enrollment", Aliases: []string{"enroll"}, Short: "Enroll in courses and inspect enrollments"}

	create := &cobra.Command{
		Use:   "create <course-id>",
		Short: "Enroll --actor-id in a published course",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				en, err := e.Enroll(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(en)
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the enrollments of --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				items, err := e.ListMyEnrollments(ctx, actor)
				if err != nil {
					return err
				}
				return printEnrollments(items)
			})
		},
	}

	roster := &cobra.Command{
		Use:   "roster <course-id>",
		Short: "List every enrollment in a course (instructor only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				items, err := e.ListCourseEnrollments(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printEnrollments(items)
			})
		},
	}

	var student string
	show := &cobra.Command{
		Use:   "show <course-id>",
		Short: "Show the enrollment of a student in a course",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				studentID := student
				if studentID == "" {
					studentID = actor.ID
				}
				en, err := e.GetEnrollment(ctx, actor, studentID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(en)
			})
		},
	}
	show.Flags().StringVar(&student, "student", "", "student id (defaults to --actor-id)")

	cmd.AddCommand(create, list, roster, show)
	return cmd
}

func progressCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "progress", Short: "Record and inspect lesson progress"}

	var watched int
	var completed bool
	record := &cobra.Command{
		Use:   "record <enrollment-id> <lesson-id>",
		Short: "Record watch progress for a lesson",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				res, err := e.RecordProgress(ctx, actor, engine.RecordProgressInput{
					EnrollmentID:   args[0],
					LessonID:       args[1],
					WatchedSeconds: watched,
					Completed:      completed,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	record.Flags().IntVar(&watched, "watched", 0, "seconds watched")
	record.Flags().BoolVar(&completed, "completed", false, "mark the lesson completed")

	show := &cobra.Command{
		Use:   "show <enrollment-id>",
		Short: "Show per-lesson progress for an enrollment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				report, err := e.GetProgress(ctx, actor, args[0])
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(report.Lessons))
				for _, l := range report.Lessons {
					rows = append(rows, table.Row{l.LessonID, l.Title, l.WatchedSeconds, l.IsCompleted})
				}
				rows = append(rows, table.Row{"", fmt.Sprintf("%d/%d lessons", report.CompletedLessons, report.TotalLessons), "", fmt.Sprintf("%d%%", report.Enrollment.ProgressPercentage)})
				return printRows(report, table.Row{"Lesson", "Title", "Watched", "Completed"}, rows)
			})
		},
	}

	cmd.AddCommand(record, show)
	return cmd
}

func certificateCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "certificate", Short: "Issue and inspect certificates"}

	issue := &cobra.Command{
		Use:   "issue <enrollment-id>",
		Short: "Issue the certificate of a completed enrollment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				c, err := e.IssueCertificate(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}

	show := &cobra.Command{
		Use:   "show <certificate-id>",
		Short: "Show a certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				c, err := e.GetCertificate(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the certificates of --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				items, err := e.ListMyCertificates(ctx, actor)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, c := range items {
					rows = append(rows, table.Row{c.ID, c.CertificateNumber, c.EnrollmentID, c.IssuedAt})
				}
				return printRows(items, table.Row{"ID", "Number", "Enrollment", "Issued"}, rows)
			})
		},
	}

	var artifact string
	setArtifact := &cobra.Command{
		Use:   "artifact <certificate-id>",
		Short: "Attach (or with no --ref, clear) the rendered certificate reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				c, err := e.SetCertificateArtifact(ctx, actor, args[0], engine.SetArtifactInput{
					Artifact: optionalString(cmd, "ref", artifact),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	setArtifact.Flags().StringVar(&artifact, "ref", "", "artifact reference")

	var limit int
	reconcile := &cobra.Command{
		Use:   "reconcile",
		Short: "Issue missing certificates for completed enrollments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ domain.Actor) error {
				n, err := e.ReconcileCertificates(ctx, limit)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]int{"issued": n})
			})
		},
	}
	reconcile.Flags().IntVar(&limit, "limit", 100, "maximum enrollments to process")

	cmd.AddCommand(issue, show, list, setArtifact, reconcile)
	return cmd
}

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "review", Short: "Submit and read course reviews"}

	var rating int
	var comment string
	submit := &cobra.Command{
		Use:   "submit <course-id>",
		Short: "Create or replace the review of --actor-id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				r, err := e.SubmitReview(ctx, actor, args[0], engine.SubmitReviewInput{
					Rating:  rating,
					Comment: optionalString(cmd, "comment", comment),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
	submit.Flags().IntVar(&rating, "rating", 0, "rating 1-5")
	submit.Flags().StringVar(&comment, "comment", "", "comment")
	_ = submit.MarkFlagRequired("rating")

	var limit, offset int
	list := &cobra.Command{
		Use:   "list <course-id>",
		Short: "List reviews of a course, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				items, err := e.ListReviews(ctx, actor, args[0], limit, offset)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, r := range items {
					c := ""
					if r.Comment != nil {
						c = *r.Comment
					}
					rows = append(rows, table.Row{r.ID, r.StudentID, r.Rating, c, r.UpdatedAt})
				}
				return printRows(items, table.Row{"ID", "Student", "Rating", "Comment", "Updated"}, rows)
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 50, "page size")
	list.Flags().IntVar(&offset, "offset", 0, "page offset")

	del := &cobra.Command{
		Use:   "delete <review-id>",
		Short: "Delete a review written by --actor-id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				return e.DeleteReview(ctx, actor, args[0])
			})
		},
	}

	cmd.AddCommand(submit, list, del)
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <course-id>",
		Short: "Show rating and enrollment statistics for a course",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				s, err := e.CourseStats(ctx, actor, args[0])
				if err != nil {
					return err
				}
				rows := []table.Row{
					{"average_rating", fmt.Sprintf("%.2f", s.AverageRating)},
					{"review_count", s.ReviewCount},
					{"enrollments", s.Enrollments},
				}
				for star := 5; star >= 1; star-- {
					rows = append(rows, table.Row{"rating_" + strconv.Itoa(star), s.Histogram[strconv.Itoa(star)]})
				}
				return printRows(s, table.Row{"Metric", "Value"}, rows)
			})
		},
	}
}
