// Package content maintains the cached, flattened hierarchy of a course
// instance and routes entity changes to its invalidation.
package content

import (
	"errors"
	"time"

	"github.com/p-n-ai/pai-courses/internal/course"
)

var (
	// ErrNotFound means the entity or path is not part of the course's
	// current hierarchy.
	ErrNotFound = errors.New("content not found")

	// ErrInvalidGraph wraps course graph defects found while flattening.
	ErrInvalidGraph = errors.New("invalid course graph")
)

// Node is one entry of the flattened hierarchy, in preorder.
type Node struct {
	Kind           course.EntityKind `json:"kind"`
	ID             int64             `json:"id"`
	Name           string            `json:"name"`
	Link           string            `json:"link"`
	Hidden         bool              `json:"hidden"`
	Maintenance    bool              `json:"maintenance"`
	OpeningTime    time.Time         `json:"opening_time"`
	ClosingTime    time.Time         `json:"closing_time"`
	PointsToPass   int               `json:"points_to_pass"`
	MaxPoints      int               `json:"max_points"`
	MaxSubmissions int               `json:"max_submissions"`
	IsEmpty        bool              `json:"is_empty"`
	HasChildren    bool              `json:"has_children"`
	// CloseLevels counts the nesting levels that end at this position.
	CloseLevels int `json:"close_levels"`
	// Breadcrumb holds the positions of all strict ancestors, root first.
	Breadcrumb []int `json:"breadcrumb"`
	// Parent is the position of the immediate parent, -1 for modules.
	Parent int `json:"parent"`
}

// Bundle is the cached hierarchy of one course instance. It is replaced as a
// whole and never modified after it has been built.
type Bundle struct {
	CreatedAt   time.Time                  `json:"created_at"`
	ModuleIndex map[int64]int              `json:"module_index"`
	ItemIndex   map[int64]int              `json:"item_index"`
	Paths       map[int64]map[string]int64 `json:"paths"`
	Flat        []Node                     `json:"flat"`
}
