package stream

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"avatar-live/internal/platform/logger"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsMaxMessage   = 64 << 10
)

type ack struct {
	Status     string `json:"status"`
	QueueDepth int    `json:"queueDepth,omitempty"`
	Error      string `json:"error,omitempty"`
}

// TextChannel handles GET /ws/{stream_key}. Each inbound text frame is
// enqueued on the key's current session and acknowledged. The key is looked up
// per message, so a restarted stream keeps receiving on an open socket.
func (h *Handler) TextChannel(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "stream_key")
	if _, err := h.reg.Status(key); err != nil {
		h.writeError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", logger.Err(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxMessage)

	h.metrics.WebSocketOpened()
	defer h.metrics.WebSocketClosed()
	log := h.log.With(slog.String("stream_key", key))
	log.Debug("websocket connected")

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("websocket read failed", logger.Err(err))
			}
			return
		}
		if mt != websocket.TextMessage {
			if err := h.sendAck(conn, ack{Status: "error", Error: "text frames only"}); err != nil {
				return
			}
			continue
		}

		depth, err := h.reg.Enqueue(key, string(data))
		if errors.Is(err, ErrNotFound) {
			_ = h.sendAck(conn, ack{Status: "error", Error: err.Error()})
			msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "stream not found")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteTimeout))
			return
		}
		reply := ack{Status: "queued", QueueDepth: depth}
		if err != nil {
			reply = ack{Status: "error", Error: err.Error()}
		}
		if err := h.sendAck(conn, reply); err != nil {
			log.Debug("websocket write failed", logger.Err(err))
			return
		}
	}
}

func (h *Handler) sendAck(conn *websocket.Conn, a ack) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(a)
}
