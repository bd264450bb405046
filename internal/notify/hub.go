// Package notify pushes course hierarchy invalidations to WebSocket clients.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	writeTimeout  = 5 * time.Second
	messageBuffer = 16
)

// Message is sent to subscribers when a course hierarchy was invalidated.
type Message struct {
	Type       string    `json:"type"`
	InstanceID int64     `json:"instance_id"`
	At         time.Time `json:"at"`
}

type subscriber struct {
	instanceID int64 // 0 receives every course
	msgs       chan Message
	closeSlow  func()
}

// Hub fans invalidation messages out to WebSocket subscribers. Subscribers
// that fall behind are disconnected rather than slowing down publishers.
type Hub struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*subscriber]struct{})}
}

// Publish notifies subscribers of instanceID and subscribers of all courses.
func (h *Hub) Publish(instanceID int64) {
	msg := Message{Type: "hierarchy_invalidated", InstanceID: instanceID, At: time.Now().UTC()}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		if s.instanceID != 0 && s.instanceID != instanceID {
			continue
		}
		select {
		case s.msgs <- msg:
		default:
			go s.closeSlow()
		}
	}
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ServeHTTP accepts a WebSocket connection and streams messages to it until
// the client goes away. The optional instance query parameter limits the
// stream to one course.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var instanceID int64
	if v := r.URL.Query().Get("instance"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, "invalid instance", http.StatusBadRequest)
			return
		}
		instanceID = id
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	s := &subscriber{
		instanceID: instanceID,
		msgs:       make(chan Message, messageBuffer),
		closeSlow: func() {
			conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
		},
	}
	h.add(s)
	defer h.remove(s)

	ctx := conn.CloseRead(r.Context())
	err = h.stream(ctx, conn, s)
	if err != nil && !errors.Is(err, context.Canceled) && websocket.CloseStatus(err) == -1 {
		slog.Debug("websocket subscriber closed", "error", err)
	}
}

func (h *Hub) stream(ctx context.Context, conn *websocket.Conn, s *subscriber) error {
	for {
		select {
		case msg := <-s.msgs:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, msg)
			cancel()
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	h.subs[s] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	slog.Info("invalidation subscriber connected", "instance_id", s.instanceID, "subscribers", n)
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}
