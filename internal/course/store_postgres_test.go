package course_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/p-n-ai/pai-courses/internal/course"
	"github.com/p-n-ai/pai-courses/internal/platform/database"
)

func TestNewPostgresStore_NilPool(t *testing.T) {
	if _, err := course.NewPostgresStore(nil); err == nil {
		t.Fatal("NewPostgresStore(nil) should return error")
	}
}

func newPostgresStore(t *testing.T) (*course.PostgresStore, *database.DB) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}

	ctx := t.Context()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("courses"),
		postgres.WithUsername("pai"),
		postgres.WithPassword("pai"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("ConnectionString() error = %v", err)
	}
	db, err := database.New(ctx, url, 4, 1)
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(db.Close)

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	store, err := course.NewPostgresStore(db.Pool)
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}
	return store, db
}

func TestPostgresStore_CourseAndGrades(t *testing.T) {
	store, db := newPostgresStore(t)
	ctx := t.Context()
	open := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	seed := []struct {
		sql  string
		args []any
	}{
		{`INSERT INTO course_instances (id, slug, name) VALUES (1, 'cs101', 'Programming 1')`, nil},
		{`INSERT INTO categories (id, instance_id, name) VALUES (1, 1, 'Exercises')`, nil},
		{`INSERT INTO course_modules (id, instance_id, ord, url, name, opening_time, closing_time)
		  VALUES (10, 1, 1, 'week1', 'Week 1', $1, $2)`, []any{open, open.Add(7 * 24 * time.Hour)}},
		{`INSERT INTO learning_objects (id, module_id, ord, url, name) VALUES (100, 10, 1, 'intro', 'Intro')`, nil},
		{`INSERT INTO learning_objects (id, module_id, parent_id, ord, url, name, gradable, category_id, max_points, points_to_pass, max_submissions)
		  VALUES (101, 10, 100, 1, 'ex1', 'Exercise 1', TRUE, 1, 100, 50, 5)`, nil},
		{`INSERT INTO user_profiles (id, name) VALUES (7, 'Aina'), (8, 'Badrul')`, nil},
		{`INSERT INTO enrollments (instance_id, profile_id) VALUES (1, 7), (1, 8)`, nil},
		{`INSERT INTO submissions (id, exercise_id, status, grade, submitted_at) VALUES
		  (1, 101, 'rejected', 80, $1), (2, 101, 'ready', 60, $2)`, []any{open, open.Add(time.Hour)}},
		{`INSERT INTO submission_submitters (submission_id, profile_id) VALUES (1, 7), (2, 7), (2, 8)`, nil},
		{`INSERT INTO student_groups (id, instance_id) VALUES (3, 1)`, nil},
		{`INSERT INTO student_group_members (group_id, profile_id) VALUES (3, 7), (3, 8)`, nil},
	}
	for _, s := range seed {
		if _, err := db.Pool.Exec(ctx, s.sql, s.args...); err != nil {
			t.Fatalf("seed %q: %v", s.sql, err)
		}
	}

	inst, err := store.CourseGraph(ctx, 1)
	if err != nil {
		t.Fatalf("CourseGraph() error = %v", err)
	}
	if len(inst.Modules) != 1 || len(inst.Modules[0].Items) != 2 {
		t.Fatalf("CourseGraph() shape = %+v", inst)
	}
	if ex := inst.Modules[0].Items[1].Exercise; ex == nil || ex.MaxPoints != 100 {
		t.Errorf("item 101 exercise = %+v, want max_points 100", ex)
	}

	parent, ok, err := store.Parent(ctx, course.ItemRef(101))
	if err != nil || !ok || parent.ID != 10 {
		t.Errorf("Parent(item 101) = %s, %v, %v; want module:10", parent, ok, err)
	}

	grades, err := store.BestGrades(ctx, 1)
	if err != nil {
		t.Fatalf("BestGrades() error = %v", err)
	}
	if len(grades) != 2 {
		t.Errorf("BestGrades() = %+v, want 2 rows", grades)
	}

	subs, err := store.StudentSubmissions(ctx, 101, 7)
	if err != nil {
		t.Fatalf("StudentSubmissions() error = %v", err)
	}
	if len(subs) != 2 || subs[0].ID != 1 || len(subs[1].Submitters) != 2 {
		t.Errorf("StudentSubmissions() = %+v", subs)
	}

	g, ok, err := store.ExactGroup(ctx, 1, []int64{8, 7})
	if err != nil || !ok || g.ID != 3 {
		t.Errorf("ExactGroup() = %+v, %v, %v; want group 3", g, ok, err)
	}
	if _, ok, _ := store.ExactGroup(ctx, 1, []int64{7}); ok {
		t.Error("ExactGroup([7]) should not match a two-member group")
	}
}

func TestPostgresStore_ListenDeliversCommittedChanges(t *testing.T) {
	store, db := newPostgresStore(t)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	refs := make(chan course.Ref, 8)
	done := make(chan error, 1)
	go func() {
		done <- store.Listen(ctx, func(_ context.Context, ref course.Ref) { refs <- ref })
	}()

	// LISTEN is issued asynchronously; keep writing until the first change arrives.
	var got course.Ref
	deadline := time.After(10 * time.Second)
	for i := int64(1); got.ID == 0; i++ {
		if _, err := db.Pool.Exec(ctx,
			`INSERT INTO course_instances (id, slug, name) VALUES ($1, $2, 'Course')`, i, fmt.Sprintf("c%d", i)); err != nil {
			t.Fatalf("insert instance: %v", err)
		}
		select {
		case got = <-refs:
		case <-time.After(200 * time.Millisecond):
		case <-deadline:
			t.Fatal("no change notification received")
		}
	}
	if got.Kind != course.KindInstance {
		t.Errorf("first change = %s, want an instance", got)
	}

	open := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	if _, err := db.Pool.Exec(ctx,
		`INSERT INTO course_modules (id, instance_id, url, name, opening_time, closing_time)
		 VALUES (50, $1, 'week1', 'Week 1', $2, $3)`, got.ID, open, open.Add(time.Hour)); err != nil {
		t.Fatalf("insert module: %v", err)
	}

	timeout := time.After(5 * time.Second)
	for got.Kind != course.KindModule {
		select {
		case got = <-refs:
		case <-timeout:
			t.Fatal("no module change notification received")
		}
	}
	if got.ID != 50 || got.Parent == nil || got.Parent.Kind != course.KindInstance {
		t.Errorf("module change = %+v, want module:50 within an instance", got)
	}
	oldOwner := got.Parent.ID

	if _, err := db.Pool.Exec(ctx,
		`INSERT INTO course_instances (id, slug, name) VALUES (1000, 'moved', 'Course')`); err != nil {
		t.Fatalf("insert instance: %v", err)
	}
	if _, err := db.Pool.Exec(ctx, `UPDATE course_modules SET instance_id = 1000 WHERE id = 50`); err != nil {
		t.Fatalf("move module: %v", err)
	}

	owners := map[int64]bool{}
	timeout = time.After(5 * time.Second)
	for !owners[oldOwner] || !owners[1000] {
		select {
		case ref := <-refs:
			if ref.Kind == course.KindModule && ref.ID == 50 && ref.Parent != nil {
				owners[ref.Parent.ID] = true
			}
		case <-timeout:
			t.Fatalf("module move notified owners %v, want %d and 1000", owners, oldOwner)
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Listen() error = %v", err)
	}
}
