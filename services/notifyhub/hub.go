// Package notifyhub implements the best-effort real-time notification
// push (spec.md §4.7 "Notifications", SPEC_FULL.md §4.11): a small
// fan-out registry keyed by user id, at most one live connection per
// session.
package notifyhub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/pkg/logger"
)

// upgrader is permissive on Origin since cross-origin/auth policy is
// owned by whatever HTTP layer embeds this module (spec.md §1
// Non-goals: no HTTP routing/authn layer here).
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub tracks at most one *websocket.Conn per connected user and
// implements assignment.Notifier.
type Hub struct {
	mu    sync.Mutex
	conns map[string]*websocket.Conn

	log *logger.Logger
}

func New(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewDefault("notifyhub")
	}
	return &Hub{conns: map[string]*websocket.Conn{}, log: log}
}

// Upgrade promotes an incoming HTTP request to a websocket connection
// and registers it for userID, replacing any prior connection for that
// user.
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	h.register(userID, conn)
	return nil
}

func (h *Hub) register(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, ok := h.conns[userID]; ok {
		existing.Close()
	}
	h.conns[userID] = conn
}

// Disconnect drops the tracked connection for userID, if any.
func (h *Hub) Disconnect(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conn, ok := h.conns[userID]; ok {
		conn.Close()
		delete(h.conns, userID)
	}
}

// Notify is the fire-and-forget push (spec.md §4.7 "Notifications"): if
// userID has no connected session, or the write fails, it logs at debug
// and returns nil — failures here never propagate to the caller.
func (h *Hub) Notify(ctx context.Context, userID string, notification domain.UserNotification) error {
	h.mu.Lock()
	conn, ok := h.conns[userID]
	h.mu.Unlock()
	if !ok {
		h.log.WithField("user_id", userID).Debug("no connected session for notification push")
		return nil
	}

	body, err := json.Marshal(notification)
	if err != nil {
		h.log.WithField("user_id", userID).WithField("error", err).Debug("failed to marshal notification")
		return nil
	}
	if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
		h.log.WithField("user_id", userID).WithField("error", err).Debug("notification push write failed")
		h.Disconnect(userID)
	}
	return nil
}

// ConnectedUsers reports how many sessions currently have a live
// connection, for diagnostics.
func (h *Hub) ConnectedUsers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}
