package course_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/p-n-ai/pai-courses/internal/course"
)

const sampleCourse = `
id: 1
slug: algebra-2026
name: "Algebra"
categories:
  - id: 1
    name: Exercises
modules:
  - id: 10
    url: week1
    name: Week 1
    opening_time: 2026-01-05T00:00:00Z
    closing_time: 2026-01-12T00:00:00Z
    items:
      - id: 100
        url: variables
        name: Variables
        children:
          - id: 101
            url: quiz
            name: Quiz
            exercise:
              category: 1
              max_points: 10
              points_to_pass: 5
              max_submissions: 3
      - id: 102
        url: draft-notes
        name: Draft notes
        status: draft
  - id: 11
    url: week2
    name: Week 2
    status: maintenance
    opening_time: 2026-01-12T00:00:00Z
    closing_time: 2026-01-19T00:00:00Z
`

func writeCourse(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoader_LoadCourse(t *testing.T) {
	dir := t.TempDir()
	writeCourse(t, dir, "algebra.course.yaml", sampleCourse)

	loader, err := course.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	inst, err := loader.CourseGraph(t.Context(), 1)
	if err != nil {
		t.Fatalf("CourseGraph() error = %v", err)
	}
	if inst.Slug != "algebra-2026" {
		t.Errorf("Slug = %q, want algebra-2026", inst.Slug)
	}
	if len(inst.Modules) != 2 {
		t.Fatalf("Modules = %d, want 2", len(inst.Modules))
	}

	items := inst.Modules[0].Items
	if len(items) != 3 {
		t.Fatalf("week1 items = %d, want 3", len(items))
	}
	if items[1].ID != 101 || items[1].ParentID != 100 {
		t.Errorf("items[1] = id %d parent %d, want id 101 parent 100", items[1].ID, items[1].ParentID)
	}
	if items[1].Exercise == nil || items[1].Exercise.MaxPoints != 10 {
		t.Errorf("items[1].Exercise = %+v, want max_points 10", items[1].Exercise)
	}
	if items[0].Status != course.StatusReady {
		t.Errorf("default status = %q, want ready", items[0].Status)
	}
	if items[2].Status != course.StatusDraft {
		t.Errorf("items[2].Status = %q, want draft", items[2].Status)
	}
	if inst.Modules[1].Status != course.StatusMaintenance {
		t.Errorf("week2 status = %q, want maintenance", inst.Modules[1].Status)
	}
}

func TestLoader_SkipsSchemaViolations(t *testing.T) {
	dir := t.TempDir()
	writeCourse(t, dir, "algebra.course.yaml", sampleCourse)
	writeCourse(t, dir, "broken.course.yaml", `
id: 2
slug: broken
name: Broken
modules:
  - id: 20
    url: week1
    name: Missing times
`)

	loader, err := course.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	if ids := loader.Instances(); len(ids) != 1 || ids[0] != 1 {
		t.Errorf("Instances() = %v, want [1]", ids)
	}
	if _, err := loader.CourseGraph(t.Context(), 2); !errors.Is(err, course.ErrNotFound) {
		t.Errorf("CourseGraph(2) error = %v, want ErrNotFound", err)
	}
}

func TestLoader_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	writeCourse(t, dir, "notes.yaml", "id: 3\nslug: notes\nname: Notes\n")

	loader, err := course.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	if ids := loader.Instances(); len(ids) != 0 {
		t.Errorf("Instances() = %v, want none", ids)
	}
}

func TestLoader_DuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	writeCourse(t, dir, "a.course.yaml", sampleCourse)
	writeCourse(t, dir, "b.course.yaml", sampleCourse)

	if _, err := course.NewLoader(dir); err == nil {
		t.Fatal("NewLoader() should fail on duplicate course ids")
	}
}

func TestLoader_ReloadReportsChanges(t *testing.T) {
	dir := t.TempDir()
	writeCourse(t, dir, "algebra.course.yaml", sampleCourse)

	loader, err := course.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	changed, err := loader.Reload()
	if err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if len(changed) != 0 {
		t.Errorf("Reload() without edits = %v, want none", changed)
	}

	writeCourse(t, dir, "algebra.course.yaml", sampleCourse+"\n# edited\n")
	writeCourse(t, dir, "geometry.course.yaml", "id: 5\nslug: geometry\nname: Geometry\n")
	changed, err = loader.Reload()
	if err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if len(changed) != 2 || changed[0] != 1 || changed[1] != 5 {
		t.Errorf("Reload() = %v, want [1 5]", changed)
	}

	os.Remove(filepath.Join(dir, "geometry.course.yaml"))
	changed, _ = loader.Reload()
	if len(changed) != 1 || changed[0] != 5 {
		t.Errorf("Reload() after removal = %v, want [5]", changed)
	}
}

func TestLoader_Parent(t *testing.T) {
	dir := t.TempDir()
	writeCourse(t, dir, "algebra.course.yaml", sampleCourse)

	loader, err := course.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	parent, ok, err := loader.Parent(t.Context(), course.ItemRef(101))
	if err != nil || !ok {
		t.Fatalf("Parent(item 101) = %v, %v", ok, err)
	}
	if parent.Kind != course.KindModule || parent.ID != 10 {
		t.Errorf("Parent(item 101) = %s, want module:10", parent)
	}
}

func TestLoader_EmptyDir(t *testing.T) {
	loader, err := course.NewLoader(t.TempDir())
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	if ids := loader.Instances(); len(ids) != 0 {
		t.Errorf("Instances() = %v, want none", ids)
	}
}

func TestLoader_MissingDir(t *testing.T) {
	if _, err := course.NewLoader(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("NewLoader() on a missing directory should return error")
	}
}

func TestLoader_ReloadUnreadableTreeKeepsCourses(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "courses")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeCourse(t, dir, "algebra.course.yaml", sampleCourse)
	loader, err := course.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		t.Fatalf("remove: %v", err)
	}
	changed, err := loader.Reload()
	if err == nil {
		t.Fatalf("Reload() changed = %v, want error", changed)
	}
	if _, err := loader.CourseGraph(t.Context(), 1); err != nil {
		t.Errorf("CourseGraph() after failed reload error = %v", err)
	}
}
