package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"chatrelay/internal/chat"
	"chatrelay/pkg/types"
)

// ChatService is the slice of the dispatch pipeline exposed over HTTP
type ChatService interface {
	SendMessage(ctx context.Context, sessionID, userID, content string) (*types.Message, error)
	SendMessageToBot(ctx context.Context, sessionID, userID, content string, preferred *types.Provider) (*types.Message, error)
	EditMessage(ctx context.Context, messageID, userID, content string) (*types.Message, error)
	DeleteMessage(ctx context.Context, messageID, userID string) error
	GetMessage(ctx context.Context, messageID string) (*types.Message, error)
	GetRecentMessages(ctx context.Context, sessionID string, limit int) ([]*types.Message, error)
	GetConversationContext(ctx context.Context, sessionID string, max int) (*types.ConversationContext, error)
}

// SessionService creates sessions and manages membership
type SessionService interface {
	CreateSession(ctx context.Context, title, createdBy string) (*types.Session, error)
	AddParticipant(ctx context.Context, sessionID, userID string, isAdmin bool) (*types.SessionParticipant, error)
	GetSessionByID(ctx context.Context, sessionID string) (*types.Session, error)
}

// UserService creates and reads user records
type UserService interface {
	CreateUser(ctx context.Context, user *types.User) error
	GetUserByID(ctx context.Context, userID string) (*types.User, error)
	UpdateUserPreferences(ctx context.Context, userID string, prefs *types.UserPreferences) error
}

// Presence answers live connection queries
type Presence interface {
	OnlineUsers(sessionID string) []types.Connection
	GetStats() map[string]int
}

// TypingLister lists who is typing in a session
type TypingLister interface {
	ListTyping(sessionID string) []string
}

// StatsSource summarizes a session
type StatsSource interface {
	Stats(ctx context.Context, sessionID string) types.SessionStats
}

// ProviderCatalog reports which AI providers are usable
type ProviderCatalog interface {
	DefaultProvider() types.Provider
	AvailableProviders() []types.Provider
	HealthCheck(ctx context.Context, provider types.Provider) bool
}

// HealthChecker probes the backing store
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies are the collaborators behind the HTTP surface
type Dependencies struct {
	Chat      ChatService
	Sessions  SessionService
	Users     UserService
	Presence  Presence
	Typing    TypingLister
	Stats     StatsSource
	Providers ProviderCatalog
	Database  HealthChecker
	WebSocket http.Handler
	Tracer    trace.Tracer
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// Clean separation - no business logic, only HTTP handling and JSON serialization
type Server struct {
	deps    Dependencies
	router  *http.ServeMux
	started time.Time
	logger  *slog.Logger
}

// NewServer wires the routes over deps
func NewServer(deps Dependencies, logger *slog.Logger) *Server {
	if deps.Tracer == nil {
		deps.Tracer = tracenoop.NewTracerProvider().Tracer("chatrelay/internal/api")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		deps:    deps,
		router:  http.NewServeMux(),
		started: time.Now(),
		logger:  logger.With(slog.String("component", "api")),
	}

	s.setupRoutes()
	return s
}

// ARCHITECTURAL DISCOVERY: Route setup follows REST conventions with proper middleware
// CORS and JSON middleware applied to all routes for web client compatibility
func (s *Server) setupRoutes() {
	routes := map[string]http.HandlerFunc{
		"GET /health":                          s.healthCheck,
		"GET /api/providers":                   s.listProviders,
		"POST /api/users":                      s.createUser,
		"GET /api/users/{id}":                  s.getUser,
		"PUT /api/users/{id}/preferences":      s.updatePreferences,
		"POST /api/sessions":                   s.createSession,
		"POST /api/sessions/{id}/participants": s.addParticipant,
		"GET /api/sessions/{id}/messages":      s.listMessages,
		"POST /api/sessions/{id}/messages":     s.sendMessage,
		"GET /api/sessions/{id}/context":       s.conversationContext,
		"GET /api/sessions/{id}/online":        s.onlineUsers,
		"GET /api/sessions/{id}/typing":        s.typingUsers,
		"GET /api/sessions/{id}/stats":         s.sessionStats,
		"GET /api/messages/{id}":               s.getMessage,
		"PATCH /api/messages/{id}":             s.editMessage,
		"DELETE /api/messages/{id}":            s.deleteMessage,
		"OPTIONS /api/":                        s.preflight,
	}
	for pattern, handler := range routes {
		s.router.Handle(pattern, s.traceMiddleware(pattern, s.corsMiddleware(s.jsonMiddleware(handler))))
	}

	// The upgrade path must not pick up JSON headers
	if s.deps.WebSocket != nil {
		s.router.Handle("GET /ws", s.deps.WebSocket)
	}
}

// FUNCTIONAL DISCOVERY: Implement http.Handler interface for integration with standard HTTP server
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Request/Response types for JSON serialization
type CreateUserRequest struct {
	Username    string                 `json:"username" validate:"required,max=50"`
	DisplayName string                 `json:"display_name" validate:"max=100"`
	Preferences *types.UserPreferences `json:"preferences,omitempty"`
}

type CreateSessionRequest struct {
	Title     string `json:"title" validate:"required,max=200"`
	CreatedBy string `json:"created_by" validate:"required,uuid"`
}

type AddParticipantRequest struct {
	UserID  string `json:"user_id" validate:"required,uuid"`
	IsAdmin bool   `json:"is_admin"`
}

type SendMessageRequest struct {
	UserID   string          `json:"user_id" validate:"required,uuid"`
	Content  string          `json:"content"`
	ToBot    bool            `json:"to_bot"`
	Provider *types.Provider `json:"provider,omitempty"`
}

type EditMessageRequest struct {
	UserID  string `json:"user_id" validate:"required,uuid"`
	Content string `json:"content"`
}

type MessagesResponse struct {
	Messages []*types.Message `json:"messages"`
	Count    int              `json:"count"`
}

type ProviderInfo struct {
	Provider types.Provider `json:"provider"`
	Name     string         `json:"name"`
	Default  bool           `json:"default"`
	Healthy  *bool          `json:"healthy,omitempty"`
}

type ProvidersResponse struct {
	Default   types.Provider `json:"default"`
	Providers []ProviderInfo `json:"providers"`
}

type HealthResponse struct {
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Database    string                 `json:"database"`
	Connections map[string]int         `json:"connections"`
	System      map[string]interface{} `json:"system"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

// FUNCTIONAL DISCOVERY: GET /health - System health check with component validation
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if err := s.deps.Database.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now().UTC(),
		Database:    dbStatus,
		Connections: s.deps.Presence.GetStats(),
		System: map[string]interface{}{
			"goroutines":     runtime.NumGoroutine(),
			"uptime_seconds": int(time.Since(s.started).Seconds()),
		},
	}

	// FUNCTIONAL DISCOVERY: Return 503 if any component is unhealthy
	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, response)
}

// GET /api/providers - available providers; ?probe=true runs a health probe per provider
func (s *Server) listProviders(w http.ResponseWriter, r *http.Request) {
	probe := r.URL.Query().Get("probe") == "true"
	def := s.deps.Providers.DefaultProvider()

	response := ProvidersResponse{Default: def}
	for _, provider := range s.deps.Providers.AvailableProviders() {
		info := ProviderInfo{Provider: provider, Name: provider.BotName(), Default: provider == def}
		if probe {
			healthy := s.deps.Providers.HealthCheck(r.Context(), provider)
			info.Healthy = &healthy
		}
		response.Providers = append(response.Providers, info)
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := types.ValidateUsername(req.Username); err != nil {
		s.sendError(w, err)
		return
	}

	now := time.Now().UTC()
	user := &types.User{
		ID:           uuid.NewString(),
		Username:     strings.TrimSpace(req.Username),
		DisplayName:  strings.TrimSpace(req.DisplayName),
		CreatedAt:    now,
		LastActivity: now,
		Preferences:  req.Preferences,
	}
	if user.DisplayName == "" {
		user.DisplayName = user.Username
	}
	if err := s.deps.Users.CreateUser(r.Context(), user); err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, user)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.pathID(w, r)
	if !ok {
		return
	}
	user, err := s.deps.Users.GetUserByID(r.Context(), userID)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

func (s *Server) updatePreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var prefs types.UserPreferences
	if !s.decode(w, r, &prefs) {
		return
	}
	if err := s.deps.Users.UpdateUserPreferences(r.Context(), userID, &prefs); err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, prefs)
}

// FUNCTIONAL DISCOVERY: POST /api/sessions - the creator becomes the first admin participant
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	session, err := s.deps.Sessions.CreateSession(r.Context(), req.Title, req.CreatedBy)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, session)
}

func (s *Server) addParticipant(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req AddParticipantRequest
	if !s.decode(w, r, &req) {
		return
	}
	participant, err := s.deps.Sessions.AddParticipant(r.Context(), sessionID, req.UserID, req.IsAdmin)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, participant)
}

// GET /api/sessions/{id}/messages?limit= - newest first
func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.pathID(w, r)
	if !ok {
		return
	}
	limit, ok := s.intQuery(w, r, "limit")
	if !ok {
		return
	}
	messages, err := s.deps.Chat.GetRecentMessages(r.Context(), sessionID, limit)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, MessagesResponse{Messages: messages, Count: len(messages)})
}

// POST /api/sessions/{id}/messages - to_bot answers with the bot reply
func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req SendMessageRequest
	if !s.decode(w, r, &req) {
		return
	}

	var (
		message *types.Message
		err     error
	)
	if req.ToBot {
		message, err = s.deps.Chat.SendMessageToBot(r.Context(), sessionID, req.UserID, req.Content, req.Provider)
	} else {
		message, err = s.deps.Chat.SendMessage(r.Context(), sessionID, req.UserID, req.Content)
	}
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, message)
}

// GET /api/sessions/{id}/context?max=
func (s *Server) conversationContext(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.pathID(w, r)
	if !ok {
		return
	}
	max, ok := s.intQuery(w, r, "max")
	if !ok {
		return
	}
	conversation, err := s.deps.Chat.GetConversationContext(r.Context(), sessionID, max)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, conversation)
}

func (s *Server) onlineUsers(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.pathID(w, r)
	if !ok {
		return
	}
	users := s.deps.Presence.OnlineUsers(sessionID)
	if users == nil {
		users = []types.Connection{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"session_id": sessionID, "users": users})
}

func (s *Server) typingUsers(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.pathID(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"session_id": sessionID, "users": s.deps.Typing.ListTyping(sessionID)})
}

func (s *Server) sessionStats(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if _, err := s.deps.Sessions.GetSessionByID(r.Context(), sessionID); err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.deps.Stats.Stats(r.Context(), sessionID))
}

func (s *Server) getMessage(w http.ResponseWriter, r *http.Request) {
	message, err := s.deps.Chat.GetMessage(r.Context(), r.PathValue("id"))
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, message)
}

func (s *Server) editMessage(w http.ResponseWriter, r *http.Request) {
	var req EditMessageRequest
	if !s.decode(w, r, &req) {
		return
	}
	message, err := s.deps.Chat.EditMessage(r.Context(), r.PathValue("id"), req.UserID, req.Content)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, message)
}

// DELETE /api/messages/{id}?user_id=
func (s *Server) deleteMessage(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if !types.IsValidID(userID) {
		s.sendError(w, types.ErrInvalidID)
		return
	}
	if err := s.deps.Chat.DeleteMessage(r.Context(), r.PathValue("id"), userID); err != nil {
		s.sendError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CORS preflight handled by middleware
func (s *Server) preflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// decode reads and validates a JSON body, answering 400 on failure
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.sendError(w, fmt.Errorf("%w: invalid JSON body", types.ErrValidation))
		return false
	}
	if err := types.Validator().Struct(dst); err != nil {
		s.sendError(w, fmt.Errorf("%w: %s", types.ErrValidation, err.Error()))
		return false
	}
	return true
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if !types.IsValidID(id) {
		s.sendError(w, types.ErrInvalidID)
		return "", false
	}
	return id, true
}

// intQuery parses an optional non-negative integer parameter; absent is 0
func (s *Server) intQuery(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		s.sendError(w, fmt.Errorf("%w: %s must be a non-negative integer", types.ErrValidation, name))
		return 0, false
	}
	return n, true
}

// statusFor maps the error taxonomy onto HTTP statuses
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// FUNCTIONAL DISCOVERY: Consistent error response format; internal failures
// are logged but never echoed to the client
func (s *Server) sendError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", slog.Any("error", err))
		message = "internal error"
	}
	s.writeJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
		Reason:  chat.ErrorCode(err, ""),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", slog.Any("error", err))
	}
}

// traceMiddleware opens one span per request named after the route pattern
func (s *Server) traceMiddleware(pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := s.deps.Tracer.Start(r.Context(), "http "+pattern,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			))
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ARCHITECTURAL DISCOVERY: CORS middleware enables web client access
// Allows all origins in development - would be restricted in production
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// FUNCTIONAL DISCOVERY: JSON middleware ensures proper content-type headers
func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
