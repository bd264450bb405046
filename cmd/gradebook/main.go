package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/pai-courses/internal/course"
	"github.com/p-n-ai/pai-courses/internal/grades"
	"github.com/p-n-ai/pai-courses/internal/platform/config"
	"github.com/p-n-ai/pai-courses/internal/platform/database"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// gradeSource is everything the gradebook reads.
type gradeSource interface {
	course.SubmissionProvider
	course.GroupRegistry
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "gradebook",
		Short:        "Course result tables and exercise summaries",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			setupLogging(cmd)
		},
	}
	pf := root.PersistentFlags()
	pf.String("database-url", "", "PostgreSQL URL (defaults to LEARN_DATABASE_URL)")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	root.AddCommand(exportCmd(), summaryCmd())
	return root
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the result table of a course instance as XLSX",
		RunE: func(cmd *cobra.Command, _ []string) error {
			instanceID, _ := cmd.Flags().GetInt64("instance")
			output, _ := cmd.Flags().GetString("output")

			return withSource(cmd, func(ctx context.Context, src gradeSource) error {
				if output == "-" {
					return runExport(ctx, src, instanceID, cmd.OutOrStdout())
				}
				return exportFile(ctx, src, instanceID, output)
			})
		},
	}
	f := cmd.Flags()
	f.Int64("instance", 0, "Course instance id (required)")
	f.StringP("output", "o", "results.xlsx", "Output file path (- for stdout)")
	_ = cmd.MarkFlagRequired("instance")
	return cmd
}

func summaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarise one student's submissions to an exercise as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			instanceID, _ := cmd.Flags().GetInt64("instance")
			exerciseID, _ := cmd.Flags().GetInt64("exercise")
			studentID, _ := cmd.Flags().GetInt64("student")

			return withSource(cmd, func(ctx context.Context, src gradeSource) error {
				return runSummary(ctx, src, instanceID, exerciseID, studentID, cmd.OutOrStdout())
			})
		},
	}
	f := cmd.Flags()
	f.Int64("instance", 0, "Course instance id (required)")
	f.Int64("exercise", 0, "Exercise id (required)")
	f.Int64("student", 0, "Student profile id (required)")
	_ = cmd.MarkFlagRequired("instance")
	_ = cmd.MarkFlagRequired("exercise")
	_ = cmd.MarkFlagRequired("student")
	return cmd
}

// setupLogging sends logs to stderr so that stdout stays free for output.
func setupLogging(cmd *cobra.Command) {
	name, _ := cmd.Flags().GetString("log-level")
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// withSource opens the database named by the flags or the environment and
// runs fn against it.
func withSource(cmd *cobra.Command, fn func(context.Context, gradeSource) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	url, _ := cmd.Flags().GetString("database-url")
	if url == "" {
		url = cfg.Database.URL
	}

	ctx := cmd.Context()
	db, err := database.New(ctx, url, 2, 0)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := course.NewPostgresStore(db.Pool)
	if err != nil {
		return err
	}
	return fn(ctx, store)
}

func runExport(ctx context.Context, src course.SubmissionProvider, instanceID int64, w io.Writer) error {
	table, err := grades.NewResultTable(ctx, src, instanceID)
	if err != nil {
		return err
	}
	if err := table.WriteXLSX(w); err != nil {
		return err
	}
	slog.Info("result table exported",
		"instance_id", instanceID,
		"students", len(table.Students),
		"exercises", len(table.Exercises),
	)
	return nil
}

// exportFile writes the result table to path. A failed export leaves no
// file behind.
func exportFile(ctx context.Context, src course.SubmissionProvider, instanceID int64, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output: %w", cerr)
		}
		if err != nil {
			if rmErr := os.Remove(path); rmErr != nil {
				slog.Warn("partial export not removed", "path", path, "error", rmErr)
			}
		}
	}()
	return runExport(ctx, src, instanceID, f)
}

type summaryOutput struct {
	InstanceID       int64    `json:"instance_id"`
	ExerciseID       int64    `json:"exercise_id"`
	StudentID        int64    `json:"student_id"`
	SubmissionCount  int      `json:"submission_count"`
	BestSubmissionID int64    `json:"best_submission_id,omitempty"`
	Points           int      `json:"points"`
	MaxPoints        int      `json:"max_points"`
	PointsToPass     int      `json:"points_to_pass"`
	Difficulty       string   `json:"difficulty,omitempty"`
	Penalty          *float64 `json:"penalty,omitempty"`
	Passed           bool     `json:"passed"`
	FullPoints       bool     `json:"full_points"`
	Submitted        bool     `json:"submitted"`
	Graded           bool     `json:"graded"`
	GroupID          int64    `json:"group_id"`
}

func runSummary(ctx context.Context, src gradeSource, instanceID, exerciseID, studentID int64, w io.Writer) error {
	exercises, err := src.Exercises(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("list exercises: %w", err)
	}
	var ex *course.Exercise
	for i := range exercises {
		if exercises[i].ID == exerciseID {
			ex = &exercises[i]
			break
		}
	}
	if ex == nil {
		return fmt.Errorf("exercise %d in instance %d: %w", exerciseID, instanceID, course.ErrNotFound)
	}

	s, err := grades.Summarize(ctx, src, *ex, studentID)
	if err != nil {
		return err
	}

	out := summaryOutput{
		InstanceID:      instanceID,
		ExerciseID:      exerciseID,
		StudentID:       studentID,
		SubmissionCount: s.SubmissionCount,
		Points:          s.Points(),
		MaxPoints:       s.MaxPoints(),
		PointsToPass:    s.PointsToPass(),
		Difficulty:      s.Difficulty(),
		Penalty:         s.Penalty(),
		Passed:          s.Passed(),
		FullPoints:      s.FullPoints(),
		Submitted:       s.Submitted(),
		Graded:          s.Graded(),
		GroupID:         s.GroupID(),
	}
	if s.Best != nil {
		out.BestSubmissionID = s.Best.ID
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
