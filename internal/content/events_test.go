package content_test

import (
	"testing"

	"github.com/p-n-ai/pai-courses/internal/content"
	"github.com/p-n-ai/pai-courses/internal/course"
)

func TestMemoryEventLogger_LogEvent(t *testing.T) {
	logger := content.NewMemoryEventLogger()

	err := logger.LogEvent(t.Context(), content.Event{
		InstanceID: 1,
		Entity:     course.ModuleRef(10),
		EventType:  content.EventHierarchyInvalidated,
	})
	if err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}

	events := logger.Events()
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0].Entity.ID != 10 {
		t.Errorf("Entity.ID = %d, want 10", events[0].Entity.ID)
	}
	if events[0].CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestMemoryEventLogger_RequiresType(t *testing.T) {
	logger := content.NewMemoryEventLogger()
	if err := logger.LogEvent(t.Context(), content.Event{InstanceID: 1}); err == nil {
		t.Fatal("expected error for missing event type")
	}
}

func TestPostgresEventLogger_LogEvent_NilPool(t *testing.T) {
	logger := content.NewPostgresEventLogger(nil)

	err := logger.LogEvent(t.Context(), content.Event{
		InstanceID: 1,
		EventType:  content.EventHierarchyInvalidated,
	})
	if err == nil {
		t.Fatal("expected error for nil pool")
	}
}
