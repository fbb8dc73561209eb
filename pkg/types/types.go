package types

import (
	"time"
)

// Outbound event names broadcast to session members
const (
	EventMessageReceived = "messageReceived"
	EventMessageUpdated  = "messageUpdated"
	EventMessageDeleted  = "messageDeleted"
	EventUserTyping      = "userTyping"
	EventUserJoined      = "userJoined"
	EventUserLeft        = "userLeft"
	EventError           = "error"

	// Direct replies to the requesting connection
	EventJoinedSession = "joinedSession"
	EventLeftSession   = "leftSession"
	EventPong          = "pong"
	EventOnlineUsers   = "onlineUsers"
	EventTypingUsers   = "typingUsers"
	EventSessionStats  = "sessionStats"
)

// Inbound frame types accepted on the real-time channel
const (
	InboundJoin            = "join"
	InboundLeave           = "leave"
	InboundSendMessage     = "sendMessage"
	InboundStartTyping     = "startTyping"
	InboundStopTyping      = "stopTyping"
	InboundPing            = "ping"
	InboundGetOnlineUsers  = "getOnlineUsers"
	InboundGetTypingUsers  = "getTypingUsers"
	InboundGetSessionStats = "getSessionStats"
)

// MaxMessageLength is the upper bound on message content, counted in characters
const MaxMessageLength = 4000

// Turn roles understood by every provider variant
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Connection is the registry's view of one live client connection.
// ARCHITECTURAL DISCOVERY: Transport handle stays opaque (ID only) so the
// registry never depends on the websocket package
type Connection struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	SessionID    string    `json:"session_id"`
	Username     string    `json:"username"`
	JoinedAt     time.Time `json:"joined_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Message is a persisted chat message, human or AI authored
type Message struct {
	ID              string     `json:"id"`
	SessionID       string     `json:"session_id"`
	UserID          string     `json:"user_id"`
	Username        string     `json:"username"`
	Content         string     `json:"content"`
	Timestamp       time.Time  `json:"timestamp"`
	FromAI          bool       `json:"from_ai"`
	ParentMessageID *string    `json:"parent_message_id,omitempty"`
	AIProvider      *Provider  `json:"ai_provider,omitempty"`
	AIModel         *string    `json:"ai_model,omitempty"`
	TokensUsed      *int       `json:"tokens_used,omitempty"`
	Temperature     *float64   `json:"temperature,omitempty"`
	AIContext       *string    `json:"ai_context,omitempty"`
	IsEdited        bool       `json:"is_edited"`
	EditedAt        *time.Time `json:"edited_at,omitempty"`
	IsDeleted       bool       `json:"is_deleted"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
	ContentHash     string     `json:"content_hash"`
}

// ConversationContext is the bounded, chronologically ordered message window
// fed to a provider. Rebuilt per request, never stored.
type ConversationContext struct {
	SessionID   string     `json:"session_id"`
	Messages    []*Message `json:"messages"`
	MaxMessages int        `json:"max_messages"`
}

// Turn is one role-tagged entry of a provider conversation
type Turn struct {
	Role    string `json:"role"`
	Author  string `json:"author,omitempty"`
	Content string `json:"content"`
}

// AIResponse is the transient result of one gateway call
type AIResponse struct {
	Provider     Provider  `json:"provider"`
	Model        string    `json:"model"`
	Content      string    `json:"content"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
	TokensUsed   int       `json:"tokens_used"`
	Temperature  float64   `json:"temperature"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// User is the collaborator record for a registered user
type User struct {
	ID           string           `json:"id"`
	Username     string           `json:"username"`
	DisplayName  string           `json:"display_name"`
	CreatedAt    time.Time        `json:"created_at"`
	LastActivity time.Time        `json:"last_activity"`
	Preferences  *UserPreferences `json:"preferences,omitempty"`
}

// UserPreferences holds per-user AI settings; nil fields fall back to configuration
type UserPreferences struct {
	PreferredProvider *Provider `json:"preferred_provider,omitempty"`
	PreferredModel    string    `json:"preferred_model,omitempty"`
	Temperature       *float64  `json:"temperature,omitempty"`
	MaxTokens         *int      `json:"max_tokens,omitempty"`
	SystemPrompt      string    `json:"system_prompt,omitempty"`
}

// Session is a named chat room
type Session struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	IsActive     bool      `json:"is_active"`
}

// SessionParticipant is a membership record; only IsActive and IsAdmin are read by the core
type SessionParticipant struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	JoinedAt  time.Time `json:"joined_at"`
	IsActive  bool      `json:"is_active"`
	IsAdmin   bool      `json:"is_admin"`
}

// Envelope is the outbound wire frame
type Envelope struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Inbound is the client-to-server wire frame. Fields not used by a frame type are ignored.
type Inbound struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Username  string    `json:"username,omitempty"`
	Content   string    `json:"content,omitempty"`
	Provider  *Provider `json:"provider,omitempty"`
	ToBot     bool      `json:"to_bot,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
}

// TypingEvent is the payload of userTyping
type TypingEvent struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

// PresenceEvent is the payload of userJoined and userLeft
type PresenceEvent struct {
	UserID   string    `json:"userId"`
	Username string    `json:"username"`
	At       time.Time `json:"at"`
}

// MessageDeletedEvent is the payload of messageDeleted
type MessageDeletedEvent struct {
	MessageID string `json:"messageId"`
}

// ErrorEvent is the payload of error replies
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// SessionStats summarizes live and stored state of a session
type SessionStats struct {
	SessionID    string     `json:"session_id"`
	OnlineUsers  int        `json:"online_users"`
	Connections  int        `json:"connections"`
	TypingUsers  int        `json:"typing_users"`
	LastMessage  *Message   `json:"last_message,omitempty"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
}
