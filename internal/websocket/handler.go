package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chatrelay/internal/chat"
	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

// maxFrameSize bounds inbound frames; 4000 characters of content fit easily
const maxFrameSize = 64 * 1024

// FrameHandler consumes decoded inbound frames
type FrameHandler interface {
	Handle(ctx context.Context, conn interfaces.Connection, frame types.Inbound)
	Disconnect(ctx context.Context, conn interfaces.Connection)
}

// Handler upgrades HTTP requests and runs the read pump of each connection
// ARCHITECTURAL DISCOVERY: Transport only; identity arrives in the join frame
// and every protocol decision is made by the FrameHandler
type Handler struct {
	frames   FrameHandler
	upgrader websocket.Upgrader
	opts     Options
	logger   *slog.Logger

	mu    sync.Mutex
	conns map[string]*Connection
}

func NewHandler(frames FrameHandler, opts Options, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		frames: frames,
		upgrader: websocket.Upgrader{
			// FUNCTIONAL DISCOVERY: Allow all origins; deployments front this
			// with their own origin policy
			CheckOrigin:      func(r *http.Request) bool { return true },
			HandshakeTimeout: 10 * time.Second,
		},
		opts:   opts.withDefaults(),
		logger: logger.With(slog.String("component", "websocket")),
		conns:  make(map[string]*Connection),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	c := NewConnection(conn, h.opts, h.logger)
	h.track(c)
	h.logger.Debug("connection opened", slog.String("conn_id", c.ID()), slog.String("remote", r.RemoteAddr))
	go h.readPump(c)
}

// readPump decodes frames until the peer goes away, then runs the
// disconnect path exactly once
func (h *Handler) readPump(c *Connection) {
	defer func() {
		h.frames.Disconnect(context.Background(), c)
		_ = c.Close()
		h.untrack(c)
		h.logger.Debug("connection closed", slog.String("conn_id", c.ID()))
	}()

	c.conn.SetReadLimit(maxFrameSize)
	// TECHNICAL DISCOVERY: Read deadline is pushed forward by every pong, so
	// a peer that stops answering pings times out after ReadTimeout
	if err := c.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				h.logger.Warn("websocket read failed", slog.String("conn_id", c.ID()), slog.Any("error", err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))

		var frame types.Inbound
		if err := json.Unmarshal(data, &frame); err != nil {
			h.reject(c, "malformed frame: "+err.Error())
			continue
		}
		h.frames.Handle(c.ctx, c, frame)
	}
}

func (h *Handler) reject(c *Connection, message string) {
	err := c.WriteJSON(types.Envelope{
		Type: types.EventError,
		Data: types.ErrorEvent{
			Type:    types.EventError,
			Message: message,
			Code:    chat.CodeInvalidFrame,
		},
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		h.logger.Debug("failed to send frame error", slog.String("conn_id", c.ID()), slog.Any("error", err))
	}
}

// Active reports the number of open connections
func (h *Handler) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// CloseAll closes every open connection. Upgraded connections are hijacked,
// so http.Server.Shutdown does not reach them.
func (h *Handler) CloseAll() int {
	h.mu.Lock()
	open := make([]*Connection, 0, len(h.conns))
	for _, c := range h.conns {
		open = append(open, c)
	}
	h.mu.Unlock()

	for _, c := range open {
		_ = c.Close()
	}
	return len(open)
}

func (h *Handler) track(c *Connection) {
	h.mu.Lock()
	h.conns[c.ID()] = c
	h.mu.Unlock()
}

func (h *Handler) untrack(c *Connection) {
	h.mu.Lock()
	delete(h.conns, c.ID())
	h.mu.Unlock()
}
