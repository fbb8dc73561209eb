package presence

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

// entry pairs the registry record with its outbound sink
type entry struct {
	record types.Connection
	sink   interfaces.Connection
}

// Registry tracks live connections by id, session and user
// ARCHITECTURAL DISCOVERY: Pure connection bookkeeping without business logic;
// the broadcaster and typing coordinator read from it, nothing writes behind it
type Registry struct {
	mu        sync.RWMutex                   // TECHNICAL DISCOVERY: RWMutex for read-heavy broadcast lookups
	conns     map[string]*entry              // connID -> entry
	bySession map[string]map[string]struct{} // sessionID -> connIDs
	byUser    map[string]map[string]struct{} // userID -> connIDs
	now       func() time.Time
	logger    *slog.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conns:     make(map[string]*entry),
		bySession: make(map[string]map[string]struct{}),
		byUser:    make(map[string]map[string]struct{}),
		now:       time.Now,
		logger:    logger.With(slog.String("component", "presence")),
	}
}

// Register records a connection, overwriting any prior entry with the same id.
// A nil sink is allowed for connections that never receive broadcasts.
func (r *Registry) Register(connID, userID, sessionID, username string, sink interfaces.Connection) types.Connection {
	now := r.now()
	record := types.Connection{
		ID:           connID,
		UserID:       userID,
		SessionID:    sessionID,
		Username:     username,
		JoinedAt:     now,
		LastActivity: now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// FUNCTIONAL DISCOVERY: Overwrite must drop the old index entries first,
	// the connection may have moved to a different session
	if old, exists := r.conns[connID]; exists {
		r.unindex(old.record)
	}

	r.conns[connID] = &entry{record: record, sink: sink}
	index(r.bySession, sessionID, connID)
	index(r.byUser, userID, connID)

	r.logger.Debug("connection registered",
		slog.String("conn_id", connID),
		slog.String("user_id", userID),
		slog.String("session_id", sessionID))
	return record
}

// Unregister removes a connection. Removing an absent id is a no-op.
func (r *Registry) Unregister(connID string) (types.Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.conns[connID]
	if !exists {
		return types.Connection{}, false
	}

	delete(r.conns, connID)
	r.unindex(e.record)
	return e.record, true
}

// ListBySession returns a snapshot of the session's connections ordered by join time
func (r *Registry) ListBySession(sessionID string) []types.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.bySession[sessionID]
	result := make([]types.Connection, 0, len(ids))
	for id := range ids {
		result = append(result, r.conns[id].record)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].JoinedAt.Before(result[j].JoinedAt)
	})
	return result
}

// FindByUser returns the user's most recently registered connection
func (r *Registry) FindByUser(userID string) (types.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		latest types.Connection
		found  bool
	)
	for id := range r.byUser[userID] {
		record := r.conns[id].record
		if !found || record.JoinedAt.After(latest.JoinedAt) {
			latest = record
			found = true
		}
	}
	return latest, found
}

// FindInSession returns the user's connection within one session
func (r *Registry) FindInSession(sessionID, userID string) (types.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id := range r.byUser[userID] {
		if record := r.conns[id].record; record.SessionID == sessionID {
			return record, true
		}
	}
	return types.Connection{}, false
}

// Get returns the record for a connection id
func (r *Registry) Get(connID string) (types.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.conns[connID]
	if !exists {
		return types.Connection{}, false
	}
	return e.record, true
}

// Touch refreshes the last-activity timestamp of a connection
func (r *Registry) Touch(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, exists := r.conns[connID]; exists {
		e.record.LastActivity = r.now()
	}
}

// Username resolves the display name of a user within a session.
// Falls back to any connection of the user, then to the user id.
func (r *Registry) Username(sessionID, userID string) string {
	if record, ok := r.FindInSession(sessionID, userID); ok && record.Username != "" {
		return record.Username
	}
	if record, ok := r.FindByUser(userID); ok && record.Username != "" {
		return record.Username
	}
	return userID
}

// Sinks returns the outbound sinks of a session keyed by connection id
func (r *Registry) Sinks(sessionID string) map[string]interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sinks := make(map[string]interfaces.Connection, len(r.bySession[sessionID]))
	for id := range r.bySession[sessionID] {
		if sink := r.conns[id].sink; sink != nil {
			sinks[id] = sink
		}
	}
	return sinks
}

// OnlineUsers returns one record per distinct user in the session
func (r *Registry) OnlineUsers(sessionID string) []types.Connection {
	seen := make(map[string]bool)
	var users []types.Connection
	for _, record := range r.ListBySession(sessionID) {
		if seen[record.UserID] {
			continue
		}
		seen[record.UserID] = true
		users = append(users, record)
	}
	return users
}

// GetStats returns registry statistics for monitoring
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"total_connections": len(r.conns),
		"active_sessions":   len(r.bySession),
		"online_users":      len(r.byUser),
	}
}

// unindex drops a record from the secondary maps; caller holds the write lock
// TECHNICAL DISCOVERY: Empty inner maps are deleted to keep stats accurate
func (r *Registry) unindex(record types.Connection) {
	unindex(r.bySession, record.SessionID, record.ID)
	unindex(r.byUser, record.UserID, record.ID)
}

func index(m map[string]map[string]struct{}, key, connID string) {
	if m[key] == nil {
		m[key] = make(map[string]struct{})
	}
	m[key][connID] = struct{}{}
}

func unindex(m map[string]map[string]struct{}, key, connID string) {
	if ids, exists := m[key]; exists {
		delete(ids, connID)
		if len(ids) == 0 {
			delete(m, key)
		}
	}
}
