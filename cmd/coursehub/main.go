package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"coursehub/internal/app"
	"coursehub/internal/db"
	"coursehub/internal/domain"
	"coursehub/internal/engine"
	"coursehub/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "coursehub",
	Short: "Course marketplace core",
	Long: `coursehub runs a course marketplace: instructors publish courses made of
sections and lessons, students enroll and record progress, completed
enrollments earn certificates and enrolled students leave reviews.

Every command acts as --actor-id (or COURSEHUB_ACTOR_ID) and goes through the
same authorization policy as the HTTP API. State lives in the workspace
database; settings live in coursehub.yml next to it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		envPath := filepath.Join(workspace, ".env")
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envPath, err)
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", describeError(err))
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("COURSEHUB")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "acting profile id")
	rootCmd.PersistentFlags().String("log-mode", "", "log mode (dev, prod); overrides config")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("log-mode", rootCmd.PersistentFlags().Lookup("log-mode"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(courseCmd())
	rootCmd.AddCommand(sectionCmd())
	rootCmd.AddCommand(lessonCmd())
	rootCmd.AddCommand(enrollmentCmd())
	rootCmd.AddCommand(progressCmd())
	rootCmd.AddCommand(certificateCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func currentActor() domain.Actor {
	return domain.Actor{ID: strings.TrimSpace(viper.GetString("actor-id"))}
}

func newLogger(mode string) (*logging.Logger, error) {
	if m := viper.GetString("log-mode"); m != "" {
		mode = m
	}
	return logging.New(mode)
}

// withApp opens the workspace, runs fn and closes everything again.
func withApp(ctx context.Context, fn func(context.Context, *app.Context) error) error {
	workspace := viper.GetString("workspace")
	log, err := newLogger("prod")
	if err != nil {
		return err
	}
	defer log.Sync()
	a, err := app.Open(ctx, workspace, nil, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine, domain.Actor) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.Context) error {
		return fn(ctx, a.Engine, currentActor())
	})
}

func describeError(err error) string {
	var ee *engine.Error
	if errors.As(err, &ee) {
		if len(ee.Details) == 0 {
			return fmt.Sprintf("%s: %s", ee.Code, ee.Message)
		}
		b, _ := json.Marshal(ee.Details)
		return fmt.Sprintf("%s: %s %s", ee.Code, ee.Message, string(b))
	}
	return err.Error()
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printRows renders rows as a table, or v as JSON with --json.
func printRows(v any, header table.Row, rows []table.Row) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	tw.AppendRows(rows)
	tw.SetStyle(table.StyleLight)
	tw.Render()
	return nil
}

func printCourses(items []domain.Course) error {
	rows := make([]table.Row, 0, len(items))
	for _, c := range items {
		rows = append(rows, table.Row{c.ID, c.Title, c.Level, c.Category, fmt.Sprintf("%.2f", c.Price), c.IsPublished})
	}
	return printRows(items, table.Row{"ID", "Title", "Level", "Category", "Price", "Published"}, rows)
}

func printEnrollments(items []domain.Enrollment) error {
	rows := make([]table.Row, 0, len(items))
	for _, e := range items {
		completed := ""
		if e.CompletedAt != nil {
			completed = *e.CompletedAt
		}
		rows = append(rows, table.Row{e.ID, e.StudentID, e.CourseID, fmt.Sprintf("%d%%", e.ProgressPercentage), completed})
	}
	return printRows(items, table.Row{"ID", "Student", "Course", "Progress", "Completed"}, rows)
}

func optionalString(cmd *cobra.Command, flag, value string) *string {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &value
}

func optionalInt(cmd *cobra.Command, flag string, value int) *int {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &value
}

func optionalFloat(cmd *cobra.Command, flag string, value float64) *float64 {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &value
}

func optionalBool(cmd *cobra.Command, flag string, value bool) *bool {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &value
}

func splitIDs(raw string) []string {
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
