package course

import (
	"context"
	"slices"
)

// GraphProvider returns the current module/item graph of a course instance.
// Modules are ordered; each module's items are in source order.
type GraphProvider interface {
	CourseGraph(ctx context.Context, instanceID int64) (*Instance, error)
}

// ParentResolver returns the entity ref belongs to. ok is false for a
// course instance, which has no parent.
type ParentResolver interface {
	Parent(ctx context.Context, ref Ref) (parent Ref, ok bool, err error)
}

// SubmissionProvider exposes the grading data of a course instance.
type SubmissionProvider interface {
	Exercises(ctx context.Context, instanceID int64) ([]Exercise, error)
	Categories(ctx context.Context, instanceID int64) ([]Category, error)
	Students(ctx context.Context, instanceID int64) ([]Student, error)
	BestGrades(ctx context.Context, instanceID int64) ([]BestGrade, error)
	StudentSubmissions(ctx context.Context, exerciseID, studentID int64) ([]Submission, error)
}

// GroupRegistry resolves the group whose members are exactly a set of students.
type GroupRegistry interface {
	ExactGroup(ctx context.Context, instanceID int64, members []int64) (*Group, bool, error)
}

// memberSet returns members sorted and de-duplicated.
func memberSet(members []int64) []int64 {
	set := slices.Clone(members)
	slices.Sort(set)
	return slices.Compact(set)
}
