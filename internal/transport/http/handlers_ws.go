package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"catcher/internal/feed"
	"catcher/internal/item"
	"catcher/internal/platform/middleware"
	"catcher/internal/registry"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10

	// Events buffered per socket before the session falls back to a full
	// snapshot.
	wsEventBuffer = 64
)

// WSHandler streams the caller's registry to their socket: a snapshot on
// connect, then one message per mutation. A client that processes these in
// order converges on the same state as any other client of the same user.
type WSHandler struct {
	sessions *registry.Manager
	hub      *feed.Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler constructs the websocket handler.
func NewWSHandler(sessions *registry.Manager, hub *feed.Hub, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		hub:      hub,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Register mounts the websocket route on an authenticated router.
func (h *WSHandler) Register(r chi.Router) {
	r.Get("/ws", h.handleConnect)
}

// wsMessage is the wire envelope sent to clients.
type wsMessage struct {
	Type  string      `json:"type"`
	Items []item.Item `json:"items,omitempty"`
	Event *feed.Event `json:"event,omitempty"`
}

// wsSession forwards feed events into the write pump without ever blocking
// the dispatching listener. An overflowing or lossy session degrades to a
// fresh snapshot rather than delivering a gapped stream.
type wsSession struct {
	events chan feed.Event
	resync chan struct{}
}

func newWSSession() *wsSession {
	return &wsSession{
		events: make(chan feed.Event, wsEventBuffer),
		resync: make(chan struct{}, 1),
	}
}

func (s *wsSession) Apply(ev feed.Event) {
	select {
	case s.events <- ev:
	default:
		s.Resync()
	}
}

func (s *wsSession) Resync() {
	select {
	case s.resync <- struct{}{}:
	default:
	}
}

func (h *WSHandler) handleConnect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	store, release, err := h.sessions.Acquire(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to open registry session",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		http.Error(w, "failed to open registry session", http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		release()
		// Upgrade has already written its own error response.
		h.logger.WarnContext(ctx, "websocket upgrade failed", "error", err)
		return
	}

	sess := newWSSession()
	unsubscribe := h.hub.Subscribe(userID, sess)

	done := make(chan struct{})
	go h.readPump(conn, done)
	h.writePump(conn, store, sess, done)

	unsubscribe()
	release()
	_ = conn.Close()
}

// readPump drains the client side of the socket. Clients send nothing
// meaningful; reading is still required to process pongs and detect close.
func (h *WSHandler) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WSHandler) writePump(conn *websocket.Conn, store *registry.Store, sess *wsSession, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	if err := h.writeSnapshot(conn, store); err != nil {
		return
	}

	for {
		select {
		case <-done:
			return
		case ev := <-sess.events:
			if err := h.writeJSON(conn, wsMessage{Type: "event", Event: &ev}); err != nil {
				return
			}
		case <-sess.resync:
			// The session store re-fetches on resync; sending its state as a
			// fresh snapshot replaces anything the client may have missed.
			if err := h.writeSnapshot(conn, store); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) writeSnapshot(conn *websocket.Conn, store *registry.Store) error {
	items := store.List()
	if items == nil {
		items = []item.Item{}
	}
	return h.writeJSON(conn, wsMessage{Type: "snapshot", Items: items})
}

func (h *WSHandler) writeJSON(conn *websocket.Conn, msg wsMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(msg)
}
