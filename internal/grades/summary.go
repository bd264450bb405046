package grades

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/p-n-ai/pai-courses/internal/course"
)

// SummarySource provides what a UserExerciseSummary needs.
type SummarySource interface {
	StudentSubmissions(ctx context.Context, exerciseID, studentID int64) ([]course.Submission, error)
	course.GroupRegistry
}

// UserExerciseSummary summarises one student's submissions to one exercise.
type UserExerciseSummary struct {
	Exercise  course.Exercise
	StudentID int64

	// Submissions are ordered by submission time, then id.
	Submissions []course.Submission

	// SubmissionCount excludes erroneous and rejected submissions.
	SubmissionCount int

	// Best is the highest graded ready submission; the earliest one wins
	// a tie. Nil when nothing has been graded.
	Best *course.Submission

	// Group is the group whose members exactly match the submitters of the
	// first submission, if there is one.
	Group *course.Group
}

// Summarize reads a student's submissions to an exercise and summarises them.
func Summarize(ctx context.Context, src SummarySource, exercise course.Exercise, studentID int64) (*UserExerciseSummary, error) {
	subs, err := src.StudentSubmissions(ctx, exercise.ID, studentID)
	if err != nil {
		return nil, fmt.Errorf("list submissions of student %d on exercise %d: %w", studentID, exercise.ID, err)
	}
	subs = slices.Clone(subs)
	slices.SortStableFunc(subs, func(a, b course.Submission) int {
		return cmp.Or(a.SubmittedAt.Compare(b.SubmittedAt), cmp.Compare(a.ID, b.ID))
	})

	s := &UserExerciseSummary{
		Exercise:    exercise,
		StudentID:   studentID,
		Submissions: subs,
	}
	for i := range subs {
		sub := &subs[i]
		if !sub.Status.Counted() {
			continue
		}
		s.SubmissionCount++
		if sub.Status == course.SubmissionReady && (s.Best == nil || sub.Grade > s.Best.Grade) {
			s.Best = sub
		}
	}

	if s.SubmissionCount > 0 && len(subs[0].Submitters) > 0 {
		g, ok, err := src.ExactGroup(ctx, exercise.InstanceID, subs[0].Submitters)
		if err != nil {
			return nil, fmt.Errorf("resolve group of submission %d: %w", subs[0].ID, err)
		}
		if ok {
			s.Group = g
		}
	}
	return s, nil
}

// Points returns the grade of the best submission, or zero.
func (s *UserExerciseSummary) Points() int {
	if s.Best == nil {
		return 0
	}
	return s.Best.Grade
}

// Penalty returns the late penalty applied to the best submission, if any.
func (s *UserExerciseSummary) Penalty() *float64 {
	if s.Best == nil {
		return nil
	}
	return s.Best.LatePenaltyApplied
}

func (s *UserExerciseSummary) MaxPoints() int { return s.Exercise.MaxPoints }

func (s *UserExerciseSummary) PointsToPass() int { return s.Exercise.PointsToPass }

func (s *UserExerciseSummary) Difficulty() string { return s.Exercise.Difficulty }

func (s *UserExerciseSummary) MissingPoints() bool { return s.Points() < s.Exercise.PointsToPass }

func (s *UserExerciseSummary) FullPoints() bool { return s.Points() >= s.Exercise.MaxPoints }

func (s *UserExerciseSummary) Passed() bool { return !s.MissingPoints() }

func (s *UserExerciseSummary) Submitted() bool { return s.SubmissionCount > 0 }

func (s *UserExerciseSummary) Graded() bool { return s.Best != nil }

// GroupID returns the resolved group's id, or zero.
func (s *UserExerciseSummary) GroupID() int64 {
	if s.Group == nil {
		return 0
	}
	return s.Group.ID
}
