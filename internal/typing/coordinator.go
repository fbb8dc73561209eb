package typing

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

// DefaultExpiry is how long a typing entry survives without a refresh
const DefaultExpiry = 5 * time.Second

// UsernameResolver maps a user to a display name for typing events
type UsernameResolver interface {
	Username(sessionID, userID string) string
}

// entry is one (session, user) typing record. The pointer identity doubles as
// the arming token checked by the expiry callback.
type entry struct {
	timer *time.Timer
}

// Coordinator tracks who is typing in each session
type Coordinator struct {
	mu          sync.Mutex
	entries     map[string]map[string]*entry // sessionID -> userID -> entry
	expiry      time.Duration
	names       UsernameResolver
	broadcaster interfaces.Broadcaster
	logger      *slog.Logger
}

// NewCoordinator creates a coordinator; expiry <= 0 selects DefaultExpiry
func NewCoordinator(names UsernameResolver, broadcaster interfaces.Broadcaster, expiry time.Duration, logger *slog.Logger) *Coordinator {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		entries:     make(map[string]map[string]*entry),
		expiry:      expiry,
		names:       names,
		broadcaster: broadcaster,
		logger:      logger.With(slog.String("component", "typing")),
	}
}

// Expiry reports the configured auto-stop interval
func (c *Coordinator) Expiry() time.Duration {
	return c.expiry
}

// StartTyping inserts or refreshes the entry and re-arms its expiry.
// A started notification is published only when the user was not already typing.
func (c *Coordinator) StartTyping(sessionID, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	users := c.entries[sessionID]
	if users == nil {
		users = make(map[string]*entry)
		c.entries[sessionID] = users
	}

	// Refresh supersedes the pending expiry: the old entry is replaced so
	// its callback fails the identity check even if it already fired
	old, wasTyping := users[userID]
	if wasTyping {
		old.timer.Stop()
	}

	e := &entry{}
	e.timer = time.AfterFunc(c.expiry, func() { c.expire(sessionID, userID, e) })
	users[userID] = e

	if !wasTyping {
		c.publish(sessionID, userID, true)
	}
}

// StopTyping removes the entry immediately. It reports whether the user was
// typing; the stopped notification fires only in that case.
func (c *Coordinator) StopTyping(sessionID, userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.entries[sessionID][userID]
	if exists {
		e.timer.Stop()
		c.remove(sessionID, userID)
		c.publish(sessionID, userID, false)
	}
	return exists
}

// ListTyping returns the user ids currently typing in a session, sorted
func (c *Coordinator) ListTyping(sessionID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	users := make([]string, 0, len(c.entries[sessionID]))
	for userID := range c.entries[sessionID] {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

// StopAll cancels every pending expiry without publishing; used at shutdown
func (c *Coordinator) StopAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for sessionID, users := range c.entries {
		for _, e := range users {
			e.timer.Stop()
		}
		delete(c.entries, sessionID)
	}
}

// expire runs on the timer goroutine
// TECHNICAL DISCOVERY: Only the entry this timer was armed for may be removed;
// a refresh or an explicit stop that won the lock leaves nothing to do
func (c *Coordinator) expire(sessionID, userID string, armed *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, exists := c.entries[sessionID][userID]
	if !exists || current != armed {
		return
	}
	c.remove(sessionID, userID)

	c.logger.Debug("typing expired",
		slog.String("session_id", sessionID),
		slog.String("user_id", userID))
	c.publish(sessionID, userID, false)
}

// remove deletes an entry; caller holds the lock
func (c *Coordinator) remove(sessionID, userID string) {
	users := c.entries[sessionID]
	delete(users, userID)
	if len(users) == 0 {
		delete(c.entries, sessionID)
	}
}

// publish runs under the lock so notifications leave in state-change order.
// The resolver and broadcaster must not call back into the coordinator.
func (c *Coordinator) publish(sessionID, userID string, isTyping bool) {
	if c.broadcaster == nil {
		return
	}
	username := userID
	if c.names != nil {
		username = c.names.Username(sessionID, userID)
	}
	c.broadcaster.Broadcast(context.Background(), sessionID, types.EventUserTyping, types.TypingEvent{
		UserID:   userID,
		Username: username,
		IsTyping: isTyping,
	})
}
