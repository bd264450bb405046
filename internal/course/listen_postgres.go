package course

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// ChangeChannel is the notification channel the schema triggers publish
// course entity changes on.
const ChangeChannel = "course_changes"

type changePayload struct {
	Kind       EntityKind `json:"kind"`
	ID         int64      `json:"id"`
	ParentKind EntityKind `json:"parent_kind"`
	ParentID   int64      `json:"parent_id"`
}

func (p changePayload) ref() Ref {
	ref := Ref{Kind: p.Kind, ID: p.ID}
	if p.ParentID != 0 {
		ref = ref.Within(Ref{Kind: p.ParentKind, ID: p.ParentID})
	}
	return ref
}

// Listen calls hook for every committed change to an instance, module or
// item until ctx is cancelled. It holds one pool connection while running.
func (s *PostgresStore) Listen(ctx context.Context, hook CommitHook) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+ChangeChannel); err != nil {
		return fmt.Errorf("listen %s: %w", ChangeChannel, err)
	}
	slog.Info("listening for course changes", "channel", ChangeChannel)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wait for notification: %w", err)
		}

		var p changePayload
		if err := json.Unmarshal([]byte(n.Payload), &p); err != nil {
			slog.Warn("ignoring malformed course change", "payload", n.Payload, "error", err)
			continue
		}
		if p.ID == 0 {
			slog.Warn("ignoring course change without id", "payload", n.Payload)
			continue
		}
		hook(ctx, p.ref())
	}
}
