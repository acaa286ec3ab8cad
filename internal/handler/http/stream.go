package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/utafrali/storefront/internal/service"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
	streamReadLimit  = 4096
	streamBuffer     = 16
)

// streamMessage is the frame pushed to and received from storefront tabs.
type streamMessage struct {
	Type    string                `json:"type"`
	Cart    *service.CartSnapshot `json:"cart,omitempty"`
	Visible *bool                 `json:"visible,omitempty"`
}

const (
	messageCart       = "cart"
	messageVisibility = "visibility"
	messagePing       = "ping"
	messagePong       = "pong"
)

// StreamHandler pushes cart snapshots to connected storefront tabs and
// receives their visibility signals.
type StreamHandler struct {
	registry *service.SessionRegistry
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewStreamHandler creates a websocket handler. Handshakes are accepted from
// allowedOrigins; "*" accepts any origin.
func NewStreamHandler(registry *service.SessionRegistry, allowedOrigins []string, logger *slog.Logger) *StreamHandler {
	anyOrigin := slices.Contains(allowedOrigins, "*")
	return &StreamHandler{
		registry: registry,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || anyOrigin || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

// enqueueLatest queues msg without blocking. When out is full the oldest
// queued frames are dropped, so the newest state always reaches the client.
func enqueueLatest(out chan streamMessage, msg streamMessage) {
	for {
		select {
		case out <- msg:
			return
		default:
		}
		select {
		case <-out:
		default:
		}
	}
}

// Stream handles GET /api/v1/cart/stream
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	log := h.logger.With(slog.String("session_id", sess.ID))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		log.DebugContext(r.Context(), "websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	out := make(chan streamMessage, streamBuffer)
	done := make(chan struct{})

	send := func(msg streamMessage) { enqueueLatest(out, msg) }

	initial := sess.Cart.Snapshot()
	out <- streamMessage{Type: messageCart, Cart: &initial}
	unsubscribe := sess.Cart.Subscribe(func(snap service.CartSnapshot) {
		if snap.Version <= initial.Version {
			return
		}
		send(streamMessage{Type: messageCart, Cart: &snap})
	})
	defer unsubscribe()

	go h.writePump(conn, out, done, log)
	defer close(done)

	conn.SetReadLimit(streamReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		h.registry.Touch(sess.ID)
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	ctx := r.Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WarnContext(ctx, "cart stream closed", slog.String("error", err.Error()))
			}
			return
		}
		h.registry.Touch(sess.ID)

		var msg streamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.DebugContext(ctx, "ignoring malformed stream message")
			continue
		}

		switch msg.Type {
		case messageVisibility:
			if msg.Visible != nil {
				sess.Sync.VisibilityChanged(ctx, *msg.Visible)
			}
		case messagePing:
			send(streamMessage{Type: messagePong})
		}
	}
}

// writePump owns all writes to conn.
func (h *StreamHandler) writePump(conn *websocket.Conn, out <-chan streamMessage, done <-chan struct{}, log *slog.Logger) {
	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("cart stream write failed", slog.String("error", err.Error()))
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		case <-done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(streamWriteWait))
			return
		}
	}
}
