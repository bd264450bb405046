// Package course holds the course graph and submission model together with
// the providers that read it from memory, PostgreSQL or YAML documents.
package course

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by providers when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Status is the publication state of a module or learning item.
type Status string

const (
	StatusDraft       Status = "draft"
	StatusReady       Status = "ready"
	StatusUnlisted    Status = "unlisted"
	StatusHidden      Status = "hidden"
	StatusMaintenance Status = "maintenance"
)

// Visible reports whether entities with this status are shown in navigation.
func (s Status) Visible() bool {
	return s == StatusReady || s == StatusMaintenance
}

// EntityKind enumerates the entities that make up a course graph.
type EntityKind uint8

const (
	KindInstance EntityKind = iota + 1
	KindModule
	KindItem
)

func (k EntityKind) String() string {
	switch k {
	case KindInstance:
		return "instance"
	case KindModule:
		return "module"
	case KindItem:
		return "item"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name.
func (k EntityKind) MarshalText() ([]byte, error) {
	if k.String() == "unknown" {
		return nil, fmt.Errorf("unknown entity kind %d", k)
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *EntityKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "instance":
		*k = KindInstance
	case "module":
		*k = KindModule
	case "item":
		*k = KindItem
	default:
		return fmt.Errorf("unknown entity kind %q", b)
	}
	return nil
}

// Ref identifies an entity. Parent, when set, is the entity it belongs to,
// which lets deleted entities still be traced to their course instance.
type Ref struct {
	Kind   EntityKind
	ID     int64
	Parent *Ref
}

func InstanceRef(id int64) Ref { return Ref{Kind: KindInstance, ID: id} }

func ModuleRef(id int64) Ref { return Ref{Kind: KindModule, ID: id} }

func ItemRef(id int64) Ref { return Ref{Kind: KindItem, ID: id} }

// Within returns a copy of r that belongs to parent.
func (r Ref) Within(parent Ref) Ref {
	r.Parent = &parent
	return r
}

func (r Ref) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// Instance is a course instance, the aggregate root of a course graph.
type Instance struct {
	ID         int64
	Slug       string
	Name       string
	Modules    []Module
	Categories []Category
}

// Module is an ordered section of a course instance.
type Module struct {
	ID           int64
	InstanceID   int64
	Order        int
	URL          string
	Name         string
	Status       Status
	OpeningTime  time.Time
	ClosingTime  time.Time
	PointsToPass int
	Items        []Item
}

// Item is a learning object inside a module. ParentID is zero for items at
// the module root; items nest to any depth.
type Item struct {
	ID       int64
	ModuleID int64
	ParentID int64
	Order    int
	URL      string
	Name     string
	Status   Status
	Empty    bool
	Exercise *Thresholds
}

// Thresholds are the grading parameters of a gradable item.
type Thresholds struct {
	CategoryID     int64
	Difficulty     string
	MaxPoints      int
	PointsToPass   int
	MaxSubmissions int
}

// Exercise is a gradable item together with the module data grading needs.
type Exercise struct {
	ID             int64
	InstanceID     int64
	ModuleID       int64
	ModuleOrder    int
	Order          int
	Name           string
	ClosingTime    time.Time
	CategoryID     int64
	Difficulty     string
	MaxPoints      int
	PointsToPass   int
	MaxSubmissions int
}

// Category groups exercises for per-category point sums.
type Category struct {
	ID   int64
	Name string
}

// Student is an enrolled user profile.
type Student struct {
	ID        int64
	Name      string
	StudentID string
}

// SubmissionStatus is the grading state of a submission.
type SubmissionStatus string

const (
	SubmissionInitialized SubmissionStatus = "initialized"
	SubmissionWaiting     SubmissionStatus = "waiting"
	SubmissionReady       SubmissionStatus = "ready"
	SubmissionError       SubmissionStatus = "error"
	SubmissionRejected    SubmissionStatus = "rejected"
)

// Counted reports whether a submission in this state counts toward the
// student's submission total.
func (s SubmissionStatus) Counted() bool {
	return s != SubmissionError && s != SubmissionRejected
}

// Submission is one attempt at an exercise by one or more students.
type Submission struct {
	ID                 int64
	ExerciseID         int64
	Status             SubmissionStatus
	Grade              int
	LatePenaltyApplied *float64
	SubmittedAt        time.Time
	Submitters         []int64
}

// BestGrade is the highest grade a student reached on an exercise.
type BestGrade struct {
	StudentID  int64
	ExerciseID int64
	CategoryID int64
	Best       int
}

// Group is a set of students working together within a course instance.
type Group struct {
	ID         int64
	InstanceID int64
	Members    []int64
}
