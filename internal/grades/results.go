// Package grades builds per-student result tables and per-exercise
// submission summaries. Nothing here is cached; every call reads the current
// submission state from its provider.
package grades

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/p-n-ai/pai-courses/internal/course"
)

// ResultTable holds the best grade of every enrolled student on every
// exercise of a course instance, plus per-category point sums.
//
// Building a table queries every exercise, student and best grade of the
// course. Callers that need it repeatedly must keep their own copy.
type ResultTable struct {
	InstanceID int64
	Exercises  []course.Exercise
	Categories []course.Category
	Students   []course.Student

	// Results maps student id to exercise id to best grade; nil means the
	// student has no graded submission.
	Results map[int64]map[int64]*int

	// ResultsByCategory maps student id to category id to the sum of best
	// grades. Each best-grade row is added to its row's category without
	// de-duplication, so an exercise reported under two categories counts
	// in both.
	ResultsByCategory map[int64]map[int64]int
}

// Row is one student line of a result table, grades in exercise order.
type Row struct {
	Student course.Student
	Grades  []*int
	Total   int
}

// NewResultTable queries src and fills a result table for a course instance.
func NewResultTable(ctx context.Context, src course.SubmissionProvider, instanceID int64) (*ResultTable, error) {
	exercises, err := src.Exercises(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("list exercises: %w", err)
	}
	categories, err := src.Categories(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	students, err := src.Students(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}

	t := &ResultTable{
		InstanceID:        instanceID,
		Exercises:         sortExercises(exercises),
		Categories:        categories,
		Students:          sortStudents(students),
		Results:           make(map[int64]map[int64]*int, len(students)),
		ResultsByCategory: make(map[int64]map[int64]int, len(students)),
	}
	for _, st := range t.Students {
		row := make(map[int64]*int, len(t.Exercises))
		for _, ex := range t.Exercises {
			row[ex.ID] = nil
		}
		t.Results[st.ID] = row

		sums := make(map[int64]int, len(categories))
		for _, c := range categories {
			sums[c.ID] = 0
		}
		t.ResultsByCategory[st.ID] = sums
	}

	best, err := src.BestGrades(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("collect best grades: %w", err)
	}
	for _, g := range best {
		row, enrolled := t.Results[g.StudentID]
		if !enrolled {
			continue
		}
		grade := g.Best
		row[g.ExerciseID] = &grade
		t.ResultsByCategory[g.StudentID][g.CategoryID] += g.Best
	}
	return t, nil
}

// Rows returns one row per student in table order.
func (t *ResultTable) Rows() []Row {
	rows := make([]Row, 0, len(t.Students))
	for _, st := range t.Students {
		r := Row{Student: st, Grades: make([]*int, len(t.Exercises))}
		for i, ex := range t.Exercises {
			g := t.Results[st.ID][ex.ID]
			r.Grades[i] = g
			if g != nil {
				r.Total += *g
			}
		}
		rows = append(rows, r)
	}
	return rows
}

// MaxSum returns the total of the exercises' maximum points.
func (t *ResultTable) MaxSum() int {
	sum := 0
	for _, ex := range t.Exercises {
		sum += ex.MaxPoints
	}
	return sum
}

// sortExercises orders exercises by module deadline, then module and
// position within the module.
func sortExercises(exercises []course.Exercise) []course.Exercise {
	out := slices.Clone(exercises)
	slices.SortStableFunc(out, func(a, b course.Exercise) int {
		return cmp.Or(
			a.ClosingTime.Compare(b.ClosingTime),
			cmp.Compare(a.ModuleOrder, b.ModuleOrder),
			cmp.Compare(a.ModuleID, b.ModuleID),
			cmp.Compare(a.Order, b.Order),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return out
}

// sortStudents orders students by collated name, then id.
func sortStudents(students []course.Student) []course.Student {
	col := collate.New(language.Und, collate.IgnoreCase)
	out := slices.Clone(students)
	slices.SortStableFunc(out, func(a, b course.Student) int {
		return cmp.Or(col.CompareString(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out
}
