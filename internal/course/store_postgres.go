package course

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresStore reads course graphs and submissions from PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed course store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) CourseGraph(ctx context.Context, instanceID int64) (*Instance, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	inst := &Instance{ID: instanceID}
	err := s.pool.QueryRow(ctx,
		`SELECT slug, name FROM course_instances WHERE id = $1`,
		instanceID,
	).Scan(&inst.Slug, &inst.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("instance %d: %w", instanceID, ErrNotFound)
		}
		return nil, fmt.Errorf("get instance: %w", err)
	}

	if inst.Categories, err = s.categories(ctx, instanceID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, ord, url, name, status, opening_time, closing_time, points_to_pass
		 FROM course_modules
		 WHERE instance_id = $1
		 ORDER BY ord ASC, id ASC`,
		instanceID,
	)
	if err != nil {
		return nil, fmt.Errorf("query modules: %w", err)
	}
	defer rows.Close()

	position := make(map[int64]int)
	for rows.Next() {
		m := Module{InstanceID: instanceID}
		if err := rows.Scan(
			&m.ID,
			&m.Order,
			&m.URL,
			&m.Name,
			&m.Status,
			&m.OpeningTime,
			&m.ClosingTime,
			&m.PointsToPass,
		); err != nil {
			return nil, fmt.Errorf("scan module: %w", err)
		}
		position[m.ID] = len(inst.Modules)
		inst.Modules = append(inst.Modules, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate modules: %w", err)
	}

	items, err := s.pool.Query(ctx,
		`SELECT lo.id, lo.module_id, COALESCE(lo.parent_id, 0), lo.ord, lo.url, lo.name,
		        lo.status, lo.is_empty, lo.gradable, COALESCE(lo.category_id, 0),
		        lo.difficulty, lo.max_points, lo.points_to_pass, lo.max_submissions
		 FROM learning_objects lo
		 JOIN course_modules m ON m.id = lo.module_id
		 WHERE m.instance_id = $1
		 ORDER BY lo.ord ASC, lo.id ASC`,
		instanceID,
	)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer items.Close()

	for items.Next() {
		var it Item
		var gradable bool
		var th Thresholds
		if err := items.Scan(
			&it.ID,
			&it.ModuleID,
			&it.ParentID,
			&it.Order,
			&it.URL,
			&it.Name,
			&it.Status,
			&it.Empty,
			&gradable,
			&th.CategoryID,
			&th.Difficulty,
			&th.MaxPoints,
			&th.PointsToPass,
			&th.MaxSubmissions,
		); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if gradable {
			it.Exercise = &th
		}
		i, ok := position[it.ModuleID]
		if !ok {
			continue
		}
		inst.Modules[i].Items = append(inst.Modules[i].Items, it)
	}
	if err := items.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}

	return inst, nil
}

func (s *PostgresStore) Parent(ctx context.Context, ref Ref) (Ref, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var query string
	var parent Ref
	switch ref.Kind {
	case KindInstance:
		return Ref{}, false, nil
	case KindModule:
		query = `SELECT instance_id FROM course_modules WHERE id = $1`
		parent.Kind = KindInstance
	case KindItem:
		query = `SELECT module_id FROM learning_objects WHERE id = $1`
		parent.Kind = KindModule
	default:
		return Ref{}, false, fmt.Errorf("%s: %w", ref, ErrNotFound)
	}

	if err := s.pool.QueryRow(ctx, query, ref.ID).Scan(&parent.ID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Ref{}, false, fmt.Errorf("%s: %w", ref, ErrNotFound)
		}
		return Ref{}, false, fmt.Errorf("resolve parent of %s: %w", ref, err)
	}
	return parent, true, nil
}

func (s *PostgresStore) Exercises(ctx context.Context, instanceID int64) ([]Exercise, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT lo.id, m.id, m.ord, lo.ord, lo.name, m.closing_time, COALESCE(lo.category_id, 0),
		        lo.difficulty, lo.max_points, lo.points_to_pass, lo.max_submissions
		 FROM learning_objects lo
		 JOIN course_modules m ON m.id = lo.module_id
		 WHERE m.instance_id = $1 AND lo.gradable
		 ORDER BY lo.id ASC`,
		instanceID,
	)
	if err != nil {
		return nil, fmt.Errorf("query exercises: %w", err)
	}
	defer rows.Close()

	var exercises []Exercise
	for rows.Next() {
		e := Exercise{InstanceID: instanceID}
		if err := rows.Scan(
			&e.ID,
			&e.ModuleID,
			&e.ModuleOrder,
			&e.Order,
			&e.Name,
			&e.ClosingTime,
			&e.CategoryID,
			&e.Difficulty,
			&e.MaxPoints,
			&e.PointsToPass,
			&e.MaxSubmissions,
		); err != nil {
			return nil, fmt.Errorf("scan exercise: %w", err)
		}
		exercises = append(exercises, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exercises: %w", err)
	}
	return exercises, nil
}

func (s *PostgresStore) Categories(ctx context.Context, instanceID int64) ([]Category, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()
	return s.categories(ctx, instanceID)
}

func (s *PostgresStore) categories(ctx context.Context, instanceID int64) ([]Category, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name FROM categories WHERE instance_id = $1 ORDER BY id ASC`,
		instanceID,
	)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return categories, nil
}

func (s *PostgresStore) Students(ctx context.Context, instanceID int64) ([]Student, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT p.id, p.name, p.student_id
		 FROM enrollments e
		 JOIN user_profiles p ON p.id = e.profile_id
		 WHERE e.instance_id = $1
		 ORDER BY p.id ASC`,
		instanceID,
	)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	var students []Student
	for rows.Next() {
		var st Student
		if err := rows.Scan(&st.ID, &st.Name, &st.StudentID); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return students, nil
}

func (s *PostgresStore) BestGrades(ctx context.Context, instanceID int64) ([]BestGrade, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT ss.profile_id, s.exercise_id, COALESCE(lo.category_id, 0), MAX(s.grade)
		 FROM submissions s
		 JOIN submission_submitters ss ON ss.submission_id = s.id
		 JOIN learning_objects lo ON lo.id = s.exercise_id
		 JOIN course_modules m ON m.id = lo.module_id
		 WHERE m.instance_id = $1 AND lo.gradable
		 GROUP BY ss.profile_id, s.exercise_id, lo.category_id`,
		instanceID,
	)
	if err != nil {
		return nil, fmt.Errorf("query best grades: %w", err)
	}
	defer rows.Close()

	var grades []BestGrade
	for rows.Next() {
		var g BestGrade
		if err := rows.Scan(&g.StudentID, &g.ExerciseID, &g.CategoryID, &g.Best); err != nil {
			return nil, fmt.Errorf("scan best grade: %w", err)
		}
		grades = append(grades, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate best grades: %w", err)
	}
	return grades, nil
}

func (s *PostgresStore) StudentSubmissions(ctx context.Context, exerciseID, studentID int64) ([]Submission, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT s.id, s.status, s.grade, s.late_penalty_applied, s.submitted_at,
		        ARRAY(SELECT x.profile_id FROM submission_submitters x
		              WHERE x.submission_id = s.id ORDER BY x.profile_id)
		 FROM submissions s
		 WHERE s.exercise_id = $1
		   AND EXISTS (SELECT 1 FROM submission_submitters ss
		               WHERE ss.submission_id = s.id AND ss.profile_id = $2)
		 ORDER BY s.submitted_at ASC, s.id ASC`,
		exerciseID,
		studentID,
	)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	var subs []Submission
	for rows.Next() {
		sub := Submission{ExerciseID: exerciseID}
		if err := rows.Scan(
			&sub.ID,
			&sub.Status,
			&sub.Grade,
			&sub.LatePenaltyApplied,
			&sub.SubmittedAt,
			&sub.Submitters,
		); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return subs, nil
}

func (s *PostgresStore) ExactGroup(ctx context.Context, instanceID int64, members []int64) (*Group, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	want := memberSet(members)
	if len(want) == 0 {
		return nil, false, nil
	}

	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT g.id
		 FROM student_groups g
		 JOIN student_group_members gm ON gm.group_id = g.id
		 WHERE g.instance_id = $1
		 GROUP BY g.id
		 HAVING COUNT(*) = $3
		    AND COUNT(*) FILTER (WHERE gm.profile_id = ANY($2::bigint[])) = $3
		 ORDER BY g.id ASC
		 LIMIT 1`,
		instanceID,
		want,
		len(want),
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("find exact group: %w", err)
	}

	return &Group{ID: id, InstanceID: instanceID, Members: want}, true, nil
}
