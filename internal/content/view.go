package content

import (
	"fmt"
	"slices"
	"time"

	"github.com/p-n-ai/pai-courses/internal/course"
)

// View is a read-only window over one bundle. Every call made through the same
// View sees the same hierarchy, even if the course is invalidated meanwhile.
type View struct {
	b *Bundle
}

// NewView wraps a bundle. The bundle must not be modified afterwards.
func NewView(b *Bundle) *View {
	return &View{b: b}
}

// Neighbors is the result of Find: the node and its nearest visible
// neighbours across the whole course.
type Neighbors struct {
	Previous *Node
	Current  Node
	Next     *Node
}

// Created returns when the underlying bundle was built.
func (v *View) Created() time.Time {
	return v.b.CreatedAt
}

// FullHierarchy returns every node in preorder.
func (v *View) FullHierarchy() []Node {
	return slices.Clone(v.b.Flat)
}

// position resolves an entity to its flat position.
func (v *View) position(ref course.Ref) (int, error) {
	var (
		pos int
		ok  bool
	)
	switch ref.Kind {
	case course.KindModule:
		pos, ok = v.b.ModuleIndex[ref.ID]
	case course.KindItem:
		pos, ok = v.b.ItemIndex[ref.ID]
	}
	if !ok {
		return 0, fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	return pos, nil
}

// Node returns the node of an entity.
func (v *View) Node(ref course.Ref) (Node, error) {
	pos, err := v.position(ref)
	if err != nil {
		return Node{}, err
	}
	return v.b.Flat[pos], nil
}

// ChildrenHierarchy returns all descendants of ref in preorder.
func (v *View) ChildrenHierarchy(ref course.Ref) ([]Node, error) {
	pos, err := v.position(ref)
	if err != nil {
		return nil, err
	}
	if !v.b.Flat[pos].HasChildren {
		return []Node{}, nil
	}

	var out []Node
	open := 1
	for _, n := range v.b.Flat[pos+1:] {
		out = append(out, n)
		if n.HasChildren {
			open++
		}
		open -= n.CloseLevels
		if open <= 0 {
			break
		}
	}
	return out, nil
}

// FindPath returns the id of the item at path inside a module.
func (v *View) FindPath(moduleID int64, path string) (int64, error) {
	paths, ok := v.b.Paths[moduleID]
	if !ok {
		return 0, fmt.Errorf("module %d: %w", moduleID, ErrNotFound)
	}
	id, ok := paths[path]
	if !ok {
		return 0, fmt.Errorf("module %d path %q: %w", moduleID, path, ErrNotFound)
	}
	return id, nil
}

// Find returns the node of ref with the closest visible nodes before and
// after it. Neighbours may belong to other modules.
func (v *View) Find(ref course.Ref) (Neighbors, error) {
	pos, err := v.position(ref)
	if err != nil {
		return Neighbors{}, err
	}

	res := Neighbors{Current: v.b.Flat[pos]}
	for i := pos - 1; i >= 0; i-- {
		if !v.b.Flat[i].Hidden {
			n := v.b.Flat[i]
			res.Previous = &n
			break
		}
	}
	for i := pos + 1; i < len(v.b.Flat); i++ {
		if !v.b.Flat[i].Hidden {
			n := v.b.Flat[i]
			res.Next = &n
			break
		}
	}
	return res, nil
}

// Breadcrumb returns the ancestors of ref, module first.
func (v *View) Breadcrumb(ref course.Ref) ([]Node, error) {
	pos, err := v.position(ref)
	if err != nil {
		return nil, err
	}
	crumbs := v.b.Flat[pos].Breadcrumb
	out := make([]Node, 0, len(crumbs))
	for _, p := range crumbs {
		out = append(out, v.b.Flat[p])
	}
	return out, nil
}
