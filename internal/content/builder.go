package content

import (
	"fmt"
	"slices"
	"time"

	"github.com/p-n-ai/pai-courses/internal/course"
)

// site carries the link prefix shared by every node of one module.
type site struct {
	slug   string
	module course.Module
}

func (s site) link(path string) string {
	if path == "" {
		return "/" + s.slug + "/" + s.module.URL + "/"
	}
	return "/" + s.slug + "/" + s.module.URL + "/" + path + "/"
}

// Build flattens the module/item graph of inst into a preorder bundle.
//
// Items are grouped by parent id once per module, so the walk is linear in the
// number of nodes. A parent id that does not exist in the module, an item that
// cannot be reached from the module root and two items sharing a path are all
// reported as ErrInvalidGraph; no node is ever dropped silently.
func Build(inst *course.Instance, now time.Time) (*Bundle, error) {
	if inst == nil {
		return nil, fmt.Errorf("%w: nil instance", ErrInvalidGraph)
	}

	b := &Bundle{
		CreatedAt:   now,
		ModuleIndex: make(map[int64]int, len(inst.Modules)),
		ItemIndex:   make(map[int64]int),
		Paths:       make(map[int64]map[string]int64, len(inst.Modules)),
	}

	for _, m := range inst.Modules {
		if _, dup := b.ModuleIndex[m.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate module %d", ErrInvalidGraph, m.ID)
		}

		children, err := groupByParent(m)
		if err != nil {
			return nil, err
		}

		s := site{slug: inst.Slug, module: m}
		pos := len(b.Flat)
		b.Flat = append(b.Flat, Node{
			Kind:         course.KindModule,
			ID:           m.ID,
			Name:         m.Name,
			Link:         s.link(""),
			Hidden:       !m.Status.Visible(),
			Maintenance:  m.Status == course.StatusMaintenance,
			OpeningTime:  m.OpeningTime,
			ClosingTime:  m.ClosingTime,
			PointsToPass: m.PointsToPass,
			Parent:       -1,
		})
		b.ModuleIndex[m.ID] = pos
		b.Paths[m.ID] = make(map[string]int64)

		emitted, err := emitChildren(b, s, children, 0, []int{pos}, "")
		if err != nil {
			return nil, err
		}
		if emitted != len(m.Items) {
			return nil, fmt.Errorf("%w: module %d has %d items unreachable from its root",
				ErrInvalidGraph, m.ID, len(m.Items)-emitted)
		}
	}

	augment(b, inst)
	return b, nil
}

// groupByParent indexes a module's items by parent id, keeping source order.
func groupByParent(m course.Module) (map[int64][]course.Item, error) {
	known := make(map[int64]bool, len(m.Items))
	for _, it := range m.Items {
		if known[it.ID] {
			return nil, fmt.Errorf("%w: duplicate item %d in module %d", ErrInvalidGraph, it.ID, m.ID)
		}
		known[it.ID] = true
	}

	children := make(map[int64][]course.Item)
	for _, it := range m.Items {
		if it.ParentID != 0 && !known[it.ParentID] {
			return nil, fmt.Errorf("%w: item %d in module %d has unknown parent %d",
				ErrInvalidGraph, it.ID, m.ID, it.ParentID)
		}
		children[it.ParentID] = append(children[it.ParentID], it)
	}
	return children, nil
}

// emitChildren appends the subtree below parentID in preorder and returns the
// number of items emitted. ancestors holds the flat positions from the module
// down to the parent. When the parent has children, the level it opened is
// closed on the last node emitted below it.
func emitChildren(b *Bundle, s site, children map[int64][]course.Item, parentID int64, ancestors []int, prefix string) (int, error) {
	kids := children[parentID]
	if len(kids) == 0 {
		return 0, nil
	}
	parentPos := ancestors[len(ancestors)-1]
	b.Flat[parentPos].HasChildren = true

	emitted := 0
	for _, it := range kids {
		path := it.URL
		if prefix != "" {
			path = prefix + "/" + it.URL
		}
		if _, dup := b.Paths[s.module.ID][path]; dup {
			return 0, fmt.Errorf("%w: duplicate path %q in module %d", ErrInvalidGraph, path, s.module.ID)
		}
		if _, dup := b.ItemIndex[it.ID]; dup {
			return 0, fmt.Errorf("%w: item %d appears in more than one module", ErrInvalidGraph, it.ID)
		}

		pos := len(b.Flat)
		b.Flat = append(b.Flat, Node{
			Kind:        course.KindItem,
			ID:          it.ID,
			Name:        it.Name,
			Link:        s.link(path),
			Hidden:      !it.Status.Visible(),
			Maintenance: it.Status == course.StatusMaintenance,
			OpeningTime: s.module.OpeningTime,
			ClosingTime: s.module.ClosingTime,
			IsEmpty:     it.Empty,
			Breadcrumb:  slices.Clone(ancestors),
			Parent:      parentPos,
		})
		b.ItemIndex[it.ID] = pos
		b.Paths[s.module.ID][path] = it.ID
		emitted++

		n, err := emitChildren(b, s, children, it.ID, append(slices.Clip(ancestors), pos), path)
		if err != nil {
			return 0, err
		}
		emitted += n
	}

	b.Flat[len(b.Flat)-1].CloseLevels++
	return emitted, nil
}

// augment copies grading thresholds onto the nodes of gradable items.
func augment(b *Bundle, inst *course.Instance) {
	for _, m := range inst.Modules {
		for _, it := range m.Items {
			if it.Exercise == nil {
				continue
			}
			pos, ok := b.ItemIndex[it.ID]
			if !ok {
				continue
			}
			n := &b.Flat[pos]
			n.PointsToPass = it.Exercise.PointsToPass
			n.MaxPoints = it.Exercise.MaxPoints
			n.MaxSubmissions = it.Exercise.MaxSubmissions
		}
	}
}
