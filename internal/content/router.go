package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/p-n-ai/pai-courses/internal/course"
)

// maxOwnerDepth bounds the walk from an entity to its course instance.
const maxOwnerDepth = 16

// Invalidator drops derived state of a course instance.
type Invalidator interface {
	Invalidate(ctx context.Context, instanceID int64) error
}

// RouterConfig configures a Router.
type RouterConfig struct {
	Cache Invalidator
	// Parents resolves owners of refs that do not carry their parent chain.
	Parents course.ParentResolver
	Events  EventLogger
}

// Router maps changed entities to their course instance and invalidates the
// instance's hierarchy. It must be called after the change has been committed.
type Router struct {
	cache   Invalidator
	parents course.ParentResolver
	events  EventLogger

	mu        sync.RWMutex
	listeners []func(instanceID int64)
}

// NewRouter creates an invalidation router.
func NewRouter(cfg RouterConfig) (*Router, error) {
	if cfg.Cache == nil {
		return nil, errors.New("router: cache is required")
	}
	events := cfg.Events
	if events == nil {
		events = NopEventLogger{}
	}
	return &Router{
		cache:   cfg.Cache,
		parents: cfg.Parents,
		events:  events,
	}, nil
}

// Subscribe registers fn to be called with the id of every invalidated
// course instance. Listeners run on the caller of OnEntityChanged and must
// not block.
func (r *Router) Subscribe(fn func(instanceID int64)) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// OnEntityChanged invalidates the course instance owning ref.
func (r *Router) OnEntityChanged(ctx context.Context, ref course.Ref) error {
	instanceID, err := r.owner(ctx, ref)
	if err != nil {
		return fmt.Errorf("resolve owner of %s: %w", ref, err)
	}

	if err := r.cache.Invalidate(ctx, instanceID); err != nil {
		slog.Error("hierarchy invalidation failed",
			"instance_id", instanceID,
			"entity", ref.String(),
			"error", err,
		)
		r.logEvent(ctx, Event{
			InstanceID: instanceID,
			Entity:     ref,
			EventType:  EventInvalidationFailed,
			Data:       map[string]any{"error": err.Error()},
		})
		return err
	}

	slog.Info("hierarchy invalidated", "instance_id", instanceID, "entity", ref.String())
	r.logEvent(ctx, Event{InstanceID: instanceID, Entity: ref, EventType: EventHierarchyInvalidated})

	r.mu.RLock()
	listeners := append([]func(int64){}, r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		fn(instanceID)
	}
	return nil
}

// owner follows the parent chain of ref up to its course instance.
func (r *Router) owner(ctx context.Context, ref course.Ref) (int64, error) {
	cur := ref
	for range maxOwnerDepth {
		if cur.Kind == course.KindInstance {
			return cur.ID, nil
		}
		if cur.Parent != nil {
			cur = *cur.Parent
			continue
		}
		if r.parents == nil {
			return 0, fmt.Errorf("%s has no parent and no resolver is configured", cur)
		}
		parent, ok, err := r.parents.Parent(ctx, cur)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, fmt.Errorf("%s has no owning instance", cur)
		}
		cur = parent
	}
	return 0, fmt.Errorf("%s: owner chain deeper than %d", ref, maxOwnerDepth)
}

func (r *Router) logEvent(ctx context.Context, event Event) {
	if err := r.events.LogEvent(ctx, event); err != nil {
		slog.Warn("content event not logged", "type", event.EventType, "error", err)
	}
}
