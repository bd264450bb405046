package course

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

type document struct {
	ID         int64         `yaml:"id"`
	Slug       string        `yaml:"slug"`
	Name       string        `yaml:"name"`
	Categories []docCategory `yaml:"categories"`
	Modules    []docModule   `yaml:"modules"`
}

type docCategory struct {
	ID   int64  `yaml:"id"`
	Name string `yaml:"name"`
}

type docModule struct {
	ID           int64     `yaml:"id"`
	URL          string    `yaml:"url"`
	Name         string    `yaml:"name"`
	Status       Status    `yaml:"status"`
	OpeningTime  time.Time `yaml:"opening_time"`
	ClosingTime  time.Time `yaml:"closing_time"`
	PointsToPass int       `yaml:"points_to_pass"`
	Items        []docItem `yaml:"items"`
}

type docItem struct {
	ID       int64        `yaml:"id"`
	URL      string       `yaml:"url"`
	Name     string       `yaml:"name"`
	Status   Status       `yaml:"status"`
	Empty    bool         `yaml:"empty"`
	Exercise *docExercise `yaml:"exercise"`
	Children []docItem    `yaml:"children"`
}

type docExercise struct {
	Category       int64  `yaml:"category"`
	Difficulty     string `yaml:"difficulty"`
	MaxPoints      int    `yaml:"max_points"`
	PointsToPass   int    `yaml:"points_to_pass"`
	MaxSubmissions int    `yaml:"max_submissions"`
}

type loadedCourse struct {
	instance *Instance
	source   []byte
}

// Loader loads course graphs from YAML documents (*.course.yaml) on the filesystem.
type Loader struct {
	rootDir string
	schema  *gojsonschema.Schema
	courses map[int64]loadedCourse
	mu      sync.RWMutex
}

// NewLoader creates a new course loader and loads all documents.
func NewLoader(rootDir string) (*Loader, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(documentSchema))
	if err != nil {
		return nil, fmt.Errorf("compile course schema: %w", err)
	}

	l := &Loader{
		rootDir: rootDir,
		schema:  schema,
		courses: make(map[int64]loadedCourse),
	}

	if _, err := l.Reload(); err != nil {
		return nil, fmt.Errorf("loading courses: %w", err)
	}

	slog.Info("courses loaded", "courses", len(l.courses))
	return l, nil
}

// Reload re-reads every document and returns the ids of courses that were
// added, changed or removed since the previous load. When the tree cannot be
// read the previous courses are kept.
func (l *Loader) Reload() ([]int64, error) {
	courses := make(map[int64]loadedCourse)
	err := filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("walk %s: %w", path, err)
		}
		if info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".course.yaml") && !strings.HasSuffix(path, ".course.yml") {
			return nil
		}
		c, ok, err := l.loadCourse(path)
		if err != nil || !ok {
			return err
		}
		if _, dup := courses[c.instance.ID]; dup {
			return fmt.Errorf("%s: duplicate course id %d", path, c.instance.ID)
		}
		courses[c.instance.ID] = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	var changed []int64
	for id, c := range courses {
		if prev, ok := l.courses[id]; !ok || !bytes.Equal(prev.source, c.source) {
			changed = append(changed, id)
		}
	}
	for id := range l.courses {
		if _, ok := courses[id]; !ok {
			changed = append(changed, id)
		}
	}
	l.courses = courses
	l.mu.Unlock()

	slices.Sort(changed)
	return changed, nil
}

// Instances returns the ids of all loaded courses.
func (l *Loader) Instances() []int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Sorted(maps.Keys(l.courses))
}

func (l *Loader) CourseGraph(_ context.Context, instanceID int64) (*Instance, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	c, ok := l.courses[instanceID]
	if !ok {
		return nil, fmt.Errorf("instance %d: %w", instanceID, ErrNotFound)
	}
	return cloneInstance(c.instance), nil
}

func (l *Loader) Parent(_ context.Context, ref Ref) (Ref, bool, error) {
	if ref.Kind == KindInstance {
		return Ref{}, false, nil
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, c := range l.courses {
		for _, m := range c.instance.Modules {
			if ref.Kind == KindModule && m.ID == ref.ID {
				return InstanceRef(c.instance.ID), true, nil
			}
			for _, it := range m.Items {
				if ref.Kind == KindItem && it.ID == ref.ID {
					return ModuleRef(m.ID), true, nil
				}
			}
		}
	}
	return Ref{}, false, fmt.Errorf("%s: %w", ref, ErrNotFound)
}

func (l *Loader) loadCourse(path string) (loadedCourse, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return loadedCourse{}, false, err
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		slog.Warn("skipping invalid course YAML", "path", path, "error", err)
		return loadedCourse{}, false, nil
	}

	result, err := l.schema.Validate(gojsonschema.NewGoLoader(raw))
	if err != nil {
		slog.Warn("skipping unreadable course document", "path", path, "error", err)
		return loadedCourse{}, false, nil
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		slog.Warn("skipping course document that fails schema", "path", path, "errors", msgs)
		return loadedCourse{}, false, nil
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		slog.Warn("skipping invalid course YAML", "path", path, "error", err)
		return loadedCourse{}, false, nil
	}

	return loadedCourse{instance: doc.instance(), source: data}, true, nil
}

func (d document) instance() *Instance {
	inst := &Instance{ID: d.ID, Slug: d.Slug, Name: d.Name}
	for _, c := range d.Categories {
		inst.Categories = append(inst.Categories, Category{ID: c.ID, Name: c.Name})
	}
	for i, dm := range d.Modules {
		m := Module{
			ID:           dm.ID,
			InstanceID:   d.ID,
			Order:        i,
			URL:          dm.URL,
			Name:         dm.Name,
			Status:       statusOrReady(dm.Status),
			OpeningTime:  dm.OpeningTime,
			ClosingTime:  dm.ClosingTime,
			PointsToPass: dm.PointsToPass,
		}
		m.Items = appendItems(m.Items, dm.ID, 0, dm.Items)
		inst.Modules = append(inst.Modules, m)
	}
	return inst
}

// appendItems flattens nested document items, recording parent links.
func appendItems(out []Item, moduleID, parentID int64, items []docItem) []Item {
	for i, di := range items {
		it := Item{
			ID:       di.ID,
			ModuleID: moduleID,
			ParentID: parentID,
			Order:    i,
			URL:      di.URL,
			Name:     di.Name,
			Status:   statusOrReady(di.Status),
			Empty:    di.Empty,
		}
		if di.Exercise != nil {
			it.Exercise = &Thresholds{
				CategoryID:     di.Exercise.Category,
				Difficulty:     di.Exercise.Difficulty,
				MaxPoints:      di.Exercise.MaxPoints,
				PointsToPass:   di.Exercise.PointsToPass,
				MaxSubmissions: di.Exercise.MaxSubmissions,
			}
		}
		out = append(out, it)
		out = appendItems(out, moduleID, di.ID, di.Children)
	}
	return out
}

func statusOrReady(s Status) Status {
	if s == "" {
		return StatusReady
	}
	return s
}

func cloneInstance(inst *Instance) *Instance {
	out := *inst
	out.Categories = slices.Clone(inst.Categories)
	out.Modules = make([]Module, len(inst.Modules))
	for i, m := range inst.Modules {
		m.Items = slices.Clone(m.Items)
		out.Modules[i] = m
	}
	return &out
}
