package course

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
)

// CommitHook is called after a mutation of the course graph has been applied.
type CommitHook func(ctx context.Context, ref Ref)

// MemoryStore is an in-memory course graph and submission store. It
// implements every provider interface of this package and calls its commit
// hook after each graph mutation, outside of its lock.
type MemoryStore struct {
	instances   map[int64]*Instance
	modules     map[int64]*Module
	items       map[int64]*Item
	students    map[int64][]Student
	submissions []Submission
	groups      []Group
	nextID      int64
	onCommit    CommitHook
	mu          sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instances: make(map[int64]*Instance),
		modules:   make(map[int64]*Module),
		items:     make(map[int64]*Item),
		students:  make(map[int64][]Student),
	}
}

// OnCommit registers the hook called after each graph mutation.
func (s *MemoryStore) OnCommit(hook CommitHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCommit = hook
}

func (s *MemoryStore) commit(ctx context.Context, ref Ref) {
	s.mu.RLock()
	hook := s.onCommit
	s.mu.RUnlock()
	if hook != nil {
		hook(ctx, ref)
	}
}

// SaveInstance creates or updates an instance header and its categories.
// Modules are saved separately.
func (s *MemoryStore) SaveInstance(ctx context.Context, inst Instance) error {
	if inst.ID == 0 {
		return fmt.Errorf("instance id is required")
	}
	s.mu.Lock()
	inst.Modules = nil
	inst.Categories = slices.Clone(inst.Categories)
	s.instances[inst.ID] = &inst
	s.mu.Unlock()

	s.commit(ctx, InstanceRef(inst.ID))
	return nil
}

// SaveModule creates or updates a module. Items are saved separately. Moving
// a module to another instance commits the old owner first.
func (s *MemoryStore) SaveModule(ctx context.Context, m Module) error {
	s.mu.Lock()
	if _, ok := s.instances[m.InstanceID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("instance %d: %w", m.InstanceID, ErrNotFound)
	}
	var moved *Ref
	if prev, ok := s.modules[m.ID]; ok && prev.InstanceID != m.InstanceID {
		ref := ModuleRef(m.ID).Within(InstanceRef(prev.InstanceID))
		moved = &ref
	}
	m.Items = nil
	s.modules[m.ID] = &m
	s.mu.Unlock()

	if moved != nil {
		s.commit(ctx, *moved)
	}
	s.commit(ctx, ModuleRef(m.ID).Within(InstanceRef(m.InstanceID)))
	return nil
}

// SaveItem creates or updates a learning item. The parent link is not
// checked here; a dangling parent surfaces when the hierarchy is built.
// Moving an item to another module commits the old module first.
func (s *MemoryStore) SaveItem(ctx context.Context, it Item) error {
	s.mu.Lock()
	m, ok := s.modules[it.ModuleID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("module %d: %w", it.ModuleID, ErrNotFound)
	}
	instanceID := m.InstanceID
	var moved *Ref
	if prev, ok := s.items[it.ID]; ok && prev.ModuleID != it.ModuleID {
		if pm, ok := s.modules[prev.ModuleID]; ok {
			ref := ItemRef(it.ID).Within(ModuleRef(pm.ID).Within(InstanceRef(pm.InstanceID)))
			moved = &ref
		}
	}
	if it.Exercise != nil {
		ex := *it.Exercise
		it.Exercise = &ex
	}
	s.items[it.ID] = &it
	s.mu.Unlock()

	// A move also changes the hierarchy the entity leaves.
	if moved != nil {
		s.commit(ctx, *moved)
	}
	s.commit(ctx, ItemRef(it.ID).Within(ModuleRef(it.ModuleID).Within(InstanceRef(instanceID))))
	return nil
}

// DeleteModule removes a module and all of its items.
func (s *MemoryStore) DeleteModule(ctx context.Context, id int64) error {
	s.mu.Lock()
	m, ok := s.modules[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("module %d: %w", id, ErrNotFound)
	}
	delete(s.modules, id)
	for itemID, it := range s.items {
		if it.ModuleID == id {
			delete(s.items, itemID)
		}
	}
	s.mu.Unlock()

	s.commit(ctx, ModuleRef(id).Within(InstanceRef(m.InstanceID)))
	return nil
}

// DeleteItem removes an item and its descendants.
func (s *MemoryStore) DeleteItem(ctx context.Context, id int64) error {
	s.mu.Lock()
	it, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	instanceID := s.modules[it.ModuleID].InstanceID
	removed := map[int64]bool{id: true}
	for changed := true; changed; {
		changed = false
		for childID, child := range s.items {
			if !removed[childID] && removed[child.ParentID] {
				removed[childID] = true
				changed = true
			}
		}
	}
	for itemID := range removed {
		delete(s.items, itemID)
	}
	s.mu.Unlock()

	s.commit(ctx, ItemRef(id).Within(ModuleRef(it.ModuleID).Within(InstanceRef(instanceID))))
	return nil
}

// Enroll adds a student to a course instance.
func (s *MemoryStore) Enroll(instanceID int64, st Student) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.students[instanceID] = append(s.students[instanceID], st)
}

// AddSubmission records a submission and returns its id.
func (s *MemoryStore) AddSubmission(sub Submission) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.ID == 0 {
		s.nextID++
		sub.ID = s.nextID
	}
	sub.Submitters = slices.Clone(sub.Submitters)
	s.submissions = append(s.submissions, sub)
	return sub.ID
}

// AddGroup registers a student group.
func (s *MemoryStore) AddGroup(g Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g.Members = memberSet(g.Members)
	s.groups = append(s.groups, g)
}

func (s *MemoryStore) CourseGraph(_ context.Context, instanceID int64) (*Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[instanceID]
	if !ok {
		return nil, fmt.Errorf("instance %d: %w", instanceID, ErrNotFound)
	}
	out := *inst
	out.Categories = slices.Clone(inst.Categories)

	for _, m := range s.modules {
		if m.InstanceID != instanceID {
			continue
		}
		mod := *m
		for _, it := range s.items {
			if it.ModuleID == m.ID {
				mod.Items = append(mod.Items, *it)
			}
		}
		slices.SortFunc(mod.Items, func(a, b Item) int {
			return cmp.Or(cmp.Compare(a.Order, b.Order), cmp.Compare(a.ID, b.ID))
		})
		out.Modules = append(out.Modules, mod)
	}
	slices.SortFunc(out.Modules, func(a, b Module) int {
		return cmp.Or(cmp.Compare(a.Order, b.Order), cmp.Compare(a.ID, b.ID))
	})
	return &out, nil
}

func (s *MemoryStore) Parent(_ context.Context, ref Ref) (Ref, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch ref.Kind {
	case KindInstance:
		return Ref{}, false, nil
	case KindModule:
		if m, ok := s.modules[ref.ID]; ok {
			return InstanceRef(m.InstanceID), true, nil
		}
	case KindItem:
		if it, ok := s.items[ref.ID]; ok {
			return ModuleRef(it.ModuleID), true, nil
		}
	}
	return Ref{}, false, fmt.Errorf("%s: %w", ref, ErrNotFound)
}

func (s *MemoryStore) Exercises(_ context.Context, instanceID int64) ([]Exercise, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var exercises []Exercise
	for _, it := range s.items {
		m := s.modules[it.ModuleID]
		if it.Exercise == nil || m.InstanceID != instanceID {
			continue
		}
		exercises = append(exercises, exerciseOf(m, it))
	}
	slices.SortFunc(exercises, func(a, b Exercise) int { return cmp.Compare(a.ID, b.ID) })
	return exercises, nil
}

func exerciseOf(m *Module, it *Item) Exercise {
	return Exercise{
		ID:             it.ID,
		InstanceID:     m.InstanceID,
		ModuleID:       m.ID,
		ModuleOrder:    m.Order,
		Order:          it.Order,
		Name:           it.Name,
		ClosingTime:    m.ClosingTime,
		CategoryID:     it.Exercise.CategoryID,
		Difficulty:     it.Exercise.Difficulty,
		MaxPoints:      it.Exercise.MaxPoints,
		PointsToPass:   it.Exercise.PointsToPass,
		MaxSubmissions: it.Exercise.MaxSubmissions,
	}
}

func (s *MemoryStore) Categories(_ context.Context, instanceID int64) ([]Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[instanceID]
	if !ok {
		return nil, fmt.Errorf("instance %d: %w", instanceID, ErrNotFound)
	}
	return slices.Clone(inst.Categories), nil
}

func (s *MemoryStore) Students(_ context.Context, instanceID int64) ([]Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[int64]bool)
	var students []Student
	for _, st := range s.students[instanceID] {
		if seen[st.ID] {
			continue
		}
		seen[st.ID] = true
		students = append(students, st)
	}
	return students, nil
}

func (s *MemoryStore) BestGrades(_ context.Context, instanceID int64) ([]BestGrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type pair struct{ student, exercise int64 }
	best := make(map[pair]BestGrade)
	for _, sub := range s.submissions {
		it, ok := s.items[sub.ExerciseID]
		if !ok || it.Exercise == nil || s.modules[it.ModuleID].InstanceID != instanceID {
			continue
		}
		for _, studentID := range memberSet(sub.Submitters) {
			k := pair{studentID, sub.ExerciseID}
			if cur, ok := best[k]; ok && cur.Best >= sub.Grade {
				continue
			}
			best[k] = BestGrade{
				StudentID:  studentID,
				ExerciseID: sub.ExerciseID,
				CategoryID: it.Exercise.CategoryID,
				Best:       sub.Grade,
			}
		}
	}

	grades := make([]BestGrade, 0, len(best))
	for _, g := range best {
		grades = append(grades, g)
	}
	slices.SortFunc(grades, func(a, b BestGrade) int {
		return cmp.Or(cmp.Compare(a.StudentID, b.StudentID), cmp.Compare(a.ExerciseID, b.ExerciseID))
	})
	return grades, nil
}

func (s *MemoryStore) StudentSubmissions(_ context.Context, exerciseID, studentID int64) ([]Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var subs []Submission
	for _, sub := range s.submissions {
		if sub.ExerciseID == exerciseID && slices.Contains(sub.Submitters, studentID) {
			sub.Submitters = slices.Clone(sub.Submitters)
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

func (s *MemoryStore) ExactGroup(_ context.Context, instanceID int64, members []int64) (*Group, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := memberSet(members)
	for _, g := range s.groups {
		if g.InstanceID == instanceID && slices.Equal(g.Members, want) {
			found := g
			found.Members = slices.Clone(g.Members)
			return &found, true, nil
		}
	}
	return nil, false, nil
}
