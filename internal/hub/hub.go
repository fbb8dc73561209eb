package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"chatrelay/internal/broadcast"
	"chatrelay/internal/chat"
	"chatrelay/internal/presence"
	"chatrelay/internal/typing"
	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

// DefaultCleanupInterval is how often stale rate limiter state is dropped
const DefaultCleanupInterval = time.Minute

// Dispatcher is the slice of the chat pipeline the hub drives
type Dispatcher interface {
	SendMessage(ctx context.Context, sessionID, userID, content string) (*types.Message, error)
	SendMessageToBot(ctx context.Context, sessionID, userID, content string, preferred *types.Provider) (*types.Message, error)
	GetLastMessage(ctx context.Context, sessionID string) (*types.Message, error)
}

// Options tune the hub; zero values select the defaults
type Options struct {
	RateLimit       int
	RateWindow      time.Duration
	CleanupInterval time.Duration
}

// Hub turns inbound frames into registry, typing and pipeline calls
// ARCHITECTURAL DISCOVERY: Connections carry no identity of their own; the
// join frame binds a connection to (session, user) in the registry and every
// later frame is interpreted through that binding
type Hub struct {
	chat        Dispatcher
	sessions    interfaces.SessionStore
	registry    *presence.Registry
	typing      *typing.Coordinator
	broadcaster *broadcast.Broadcaster
	limiter     *RateLimiter
	opts        Options

	// State
	// TECHNICAL DISCOVERY: RWMutex allows concurrent reads of running state
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	stop    chan struct{}
	loop    sync.WaitGroup
	bots    sync.WaitGroup
	mu      sync.RWMutex

	now    func() time.Time
	logger *slog.Logger
}

// NewHub wires the hub to its collaborators
func NewHub(
	dispatcher Dispatcher,
	sessions interfaces.SessionStore,
	registry *presence.Registry,
	coordinator *typing.Coordinator,
	broadcaster *broadcast.Broadcaster,
	opts Options,
	logger *slog.Logger,
) *Hub {
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		chat:        dispatcher,
		sessions:    sessions,
		registry:    registry,
		typing:      coordinator,
		broadcaster: broadcaster,
		limiter:     NewRateLimiter(opts.RateLimit, opts.RateWindow),
		opts:        opts,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger.With(slog.String("component", "hub")),
	}
}

// Start launches the cleanup loop. Bot dispatches started later run on a
// context derived from ctx, not from the connection that asked for them.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.ctx, h.cancel = context.WithCancel(ctx)
	h.stop = make(chan struct{})

	h.loop.Add(1)
	go h.cleanupLoop(h.ctx, h.stop)

	h.logger.Info("hub started",
		slog.Int("rate_limit", h.limiter.limit),
		slog.Duration("rate_window", h.limiter.window))
	return nil
}

// Stop halts the cleanup loop and waits for in-flight bot dispatches.
// If ctx expires first the remaining dispatches are cancelled.
func (h *Hub) Stop(ctx context.Context) error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.stop)
	cancel := h.cancel
	h.mu.Unlock()

	h.loop.Wait()

	done := make(chan struct{})
	go func() {
		h.bots.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		h.logger.Warn("hub stop deadline reached, cancelling bot dispatches", slog.Any("error", err))
	}
	cancel()
	<-done

	h.logger.Info("hub stopped")
	return err
}

// Running reports whether Start has been called without a matching Stop
func (h *Hub) Running() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

func (h *Hub) cleanupLoop(ctx context.Context, stop <-chan struct{}) {
	defer h.loop.Done()
	ticker := time.NewTicker(h.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := h.limiter.Cleanup(); removed > 0 {
				h.logger.Debug("rate limiter cleanup", slog.Int("removed", removed))
			}
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Handle processes one inbound frame from conn
func (h *Hub) Handle(ctx context.Context, conn interfaces.Connection, frame types.Inbound) {
	if record, ok := h.registry.Get(conn.ID()); ok {
		h.registry.Touch(record.ID)
	}

	switch frame.Type {
	case types.InboundJoin:
		h.join(ctx, conn, frame)
	case types.InboundLeave:
		h.leave(ctx, conn)
	case types.InboundSendMessage:
		h.sendMessage(ctx, conn, frame)
	case types.InboundStartTyping, types.InboundStopTyping:
		h.setTyping(conn, frame.Type == types.InboundStartTyping)
	case types.InboundPing:
		h.reply(conn, h.sessionOf(conn), types.EventPong, map[string]time.Time{"server_time": h.now()})
	case types.InboundGetOnlineUsers:
		if record, ok := h.joined(conn); ok {
			h.reply(conn, record.SessionID, types.EventOnlineUsers, h.onlineUsers(record.SessionID))
		}
	case types.InboundGetTypingUsers:
		if record, ok := h.joined(conn); ok {
			h.reply(conn, record.SessionID, types.EventTypingUsers, h.typing.ListTyping(record.SessionID))
		}
	case types.InboundGetSessionStats:
		if record, ok := h.joined(conn); ok {
			h.reply(conn, record.SessionID, types.EventSessionStats, h.Stats(ctx, record.SessionID))
		}
	default:
		h.fail(conn, "", ErrUnknownFrame, chat.CodeUnknownEvent)
	}
}

// Disconnect runs the leave path for a connection that went away
func (h *Hub) Disconnect(ctx context.Context, conn interfaces.Connection) {
	if _, ok := h.depart(ctx, conn.ID()); ok {
		h.logger.DebugContext(ctx, "connection departed", slog.String("conn_id", conn.ID()))
	}
}

// Stats summarizes live presence and the stored tail of a session
func (h *Hub) Stats(ctx context.Context, sessionID string) types.SessionStats {
	stats := types.SessionStats{
		SessionID:   sessionID,
		OnlineUsers: len(h.registry.OnlineUsers(sessionID)),
		Connections: len(h.registry.ListBySession(sessionID)),
		TypingUsers: len(h.typing.ListTyping(sessionID)),
	}

	if last, err := h.chat.GetLastMessage(ctx, sessionID); err == nil {
		stats.LastMessage = last
	} else if !errors.Is(err, types.ErrNotFound) {
		h.logger.WarnContext(ctx, "failed to load last message", slog.String("session_id", sessionID), slog.Any("error", err))
	}

	if session, err := h.sessions.GetSessionByID(ctx, sessionID); err == nil {
		stats.LastActivity = &session.LastActivity
	}
	return stats
}

func (h *Hub) join(ctx context.Context, conn interfaces.Connection, frame types.Inbound) {
	if !types.IsValidID(frame.SessionID) || !types.IsValidID(frame.UserID) {
		h.fail(conn, frame.SessionID, types.ErrInvalidID, chat.CodeInvalidID)
		return
	}

	ok, err := h.sessions.IsParticipant(ctx, frame.SessionID, frame.UserID)
	if err != nil {
		h.logger.ErrorContext(ctx, "participant check failed",
			slog.String("session_id", frame.SessionID),
			slog.String("user_id", frame.UserID),
			slog.Any("error", err))
		h.fail(conn, frame.SessionID, err, chat.CodeJoinSessionFailed)
		return
	}
	if !ok {
		h.fail(conn, frame.SessionID, ErrNotParticipant, chat.CodeAccessDenied)
		return
	}

	// FUNCTIONAL DISCOVERY: Re-joining from a bound connection leaves the
	// previous session first so presence never lists it twice
	if previous, bound := h.registry.Get(conn.ID()); bound {
		h.depart(ctx, previous.ID)
	}

	username := frame.Username
	if username == "" {
		username = h.registry.Username(frame.SessionID, frame.UserID)
	}
	_, alreadyOnline := h.registry.FindInSession(frame.SessionID, frame.UserID)
	record := h.registry.Register(conn.ID(), frame.UserID, frame.SessionID, username, conn)

	h.reply(conn, frame.SessionID, types.EventJoinedSession, record)
	h.reply(conn, frame.SessionID, types.EventTypingUsers, h.typing.ListTyping(frame.SessionID))
	if !alreadyOnline {
		h.broadcaster.Broadcast(ctx, frame.SessionID, types.EventUserJoined, types.PresenceEvent{
			UserID:   frame.UserID,
			Username: username,
			At:       h.now(),
		})
	}

	h.logger.InfoContext(ctx, "user joined session",
		slog.String("session_id", frame.SessionID),
		slog.String("user_id", frame.UserID),
		slog.String("conn_id", conn.ID()))
}

func (h *Hub) leave(ctx context.Context, conn interfaces.Connection) {
	record, ok := h.depart(ctx, conn.ID())
	if !ok {
		h.fail(conn, "", ErrNotJoined, chat.CodeNotJoined)
		return
	}
	h.reply(conn, record.SessionID, types.EventLeftSession, map[string]string{"session_id": record.SessionID})
}

// depart unregisters connID, stops typing and announces the user left
// once their last connection in the session is gone
func (h *Hub) depart(ctx context.Context, connID string) (types.Connection, bool) {
	record, ok := h.registry.Unregister(connID)
	if !ok {
		return record, false
	}
	h.typing.StopTyping(record.SessionID, record.UserID)

	if _, stillOnline := h.registry.FindInSession(record.SessionID, record.UserID); !stillOnline {
		h.broadcaster.Broadcast(ctx, record.SessionID, types.EventUserLeft, types.PresenceEvent{
			UserID:   record.UserID,
			Username: record.Username,
			At:       h.now(),
		})
	}
	return record, true
}

func (h *Hub) sendMessage(ctx context.Context, conn interfaces.Connection, frame types.Inbound) {
	record, ok := h.joined(conn)
	if !ok {
		return
	}
	if !h.limiter.Allow(record.UserID) {
		h.fail(conn, record.SessionID, ErrRateLimited, chat.CodeRateLimited)
		return
	}
	// FUNCTIONAL DISCOVERY: Typing is cleared here, before dispatch; a stop
	// from the bot goroutine could land after a fresh startTyping
	h.typing.StopTyping(record.SessionID, record.UserID)
	ctx = chat.WithTypingStopped(ctx)

	if !frame.ToBot {
		if _, err := h.chat.SendMessage(ctx, record.SessionID, record.UserID, frame.Content); err != nil {
			h.sendFailed(ctx, conn, record, err)
		}
		return
	}

	// ARCHITECTURAL DISCOVERY: Bot replies outlive the read pump iteration; the
	// dispatch runs on the hub context and Stop waits for it
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		h.fail(conn, record.SessionID, ErrHubNotRunning, chat.CodeSendMessageFailed)
		return
	}
	botCtx := chat.WithTypingStopped(h.ctx)
	h.bots.Add(1)
	h.mu.RUnlock()

	go func() {
		defer h.bots.Done()
		if _, err := h.chat.SendMessageToBot(botCtx, record.SessionID, record.UserID, frame.Content, frame.Provider); err != nil {
			h.sendFailed(botCtx, conn, record, err)
		}
	}()
}

func (h *Hub) sendFailed(ctx context.Context, conn interfaces.Connection, record types.Connection, err error) {
	h.logger.WarnContext(ctx, "send message failed",
		slog.String("session_id", record.SessionID),
		slog.String("user_id", record.UserID),
		slog.Any("error", err))
	h.fail(conn, record.SessionID, err, chat.ErrorCode(err, chat.CodeSendMessageFailed))
}

// setTyping never reports failure to the client
func (h *Hub) setTyping(conn interfaces.Connection, active bool) {
	record, ok := h.registry.Get(conn.ID())
	if !ok {
		h.logger.Debug("typing frame from unbound connection", slog.String("conn_id", conn.ID()))
		return
	}
	if active {
		h.typing.StartTyping(record.SessionID, record.UserID)
		return
	}
	h.typing.StopTyping(record.SessionID, record.UserID)
}

func (h *Hub) onlineUsers(sessionID string) []types.Connection {
	users := h.registry.OnlineUsers(sessionID)
	if users == nil {
		return []types.Connection{}
	}
	return users
}

// joined returns the binding of conn, replying NOT_JOINED when there is none
func (h *Hub) joined(conn interfaces.Connection) (types.Connection, bool) {
	record, ok := h.registry.Get(conn.ID())
	if !ok {
		h.fail(conn, "", ErrNotJoined, chat.CodeNotJoined)
	}
	return record, ok
}

func (h *Hub) sessionOf(conn interfaces.Connection) string {
	if record, ok := h.registry.Get(conn.ID()); ok {
		return record.SessionID
	}
	return ""
}

func (h *Hub) fail(conn interfaces.Connection, sessionID string, err error, code string) {
	h.reply(conn, sessionID, types.EventError, types.ErrorEvent{
		Type:    types.EventError,
		Message: err.Error(),
		Code:    code,
	})
}

func (h *Hub) reply(conn interfaces.Connection, sessionID, event string, payload interface{}) {
	if err := h.broadcaster.SendTo(conn, sessionID, event, payload); err != nil {
		h.logger.Debug("failed to reply",
			slog.String("conn_id", conn.ID()),
			slog.String("event", event),
			slog.Any("error", err))
	}
}
