package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

// FallbackReply replaces a provider answer that failed after all retries
const FallbackReply = "Sorry, I'm currently experiencing technical difficulties. Please try again in a few moments."

// FallbackModel marks bot messages carrying FallbackReply
const FallbackModel = "fallback"

// Dependencies are the collaborators of the dispatch pipeline
type Dependencies struct {
	Users       interfaces.UserStore
	Sessions    interfaces.SessionStore
	Messages    interfaces.MessageStore
	Broadcaster interfaces.Broadcaster
	Typing      interfaces.TypingStopper
	Gateway     interfaces.AIGateway
}

type typingStoppedKey struct{}

// WithTypingStopped marks ctx for sends whose caller already cleared the
// author's typing state; the pipeline then leaves typing alone
func WithTypingStopped(ctx context.Context) context.Context {
	return context.WithValue(ctx, typingStoppedKey{}, true)
}

// TypingStopped reports whether ctx carries the WithTypingStopped mark
func TypingStopped(ctx context.Context) bool {
	stopped, _ := ctx.Value(typingStoppedKey{}).(bool)
	return stopped
}

// Options tune provider resolution and the context window
type Options struct {
	DefaultProvider    types.Provider
	MaxContextMessages int
}

// Service is the message dispatch pipeline
// ARCHITECTURAL DISCOVERY: Persist first, then broadcast; a broadcast never
// announces a message the store does not hold
type Service struct {
	deps     Dependencies
	opts     Options
	contexts *ContextBuilder
	now      func() time.Time
	newID    func() string
	logger   *slog.Logger
}

// NewService wires the pipeline
func NewService(deps Dependencies, opts Options, logger *slog.Logger) *Service {
	if opts.MaxContextMessages <= 0 {
		opts.MaxContextMessages = DefaultMaxContextMessages
	}
	if !opts.DefaultProvider.IsValid() {
		opts.DefaultProvider = types.ProviderOpenAI
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		deps:     deps,
		opts:     opts,
		contexts: NewContextBuilder(deps.Messages),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		logger:   logger.With(slog.String("component", "chat")),
	}
}

// SendMessage validates, persists and broadcasts a human message
func (s *Service) SendMessage(ctx context.Context, sessionID, userID, content string) (*types.Message, error) {
	if err := s.validateSend(ctx, sessionID, userID, content); err != nil {
		return nil, err
	}
	message, _, err := s.persistUserMessage(ctx, sessionID, userID, content)
	return message, err
}

// SendMessageToBot sends a human message and then the provider's reply.
// preferred may be nil; resolution is explicit > user preference > default.
func (s *Service) SendMessageToBot(ctx context.Context, sessionID, userID, content string, preferred *types.Provider) (*types.Message, error) {
	if err := s.validateSend(ctx, sessionID, userID, content); err != nil {
		return nil, err
	}

	userMessage, user, err := s.persistUserMessage(ctx, sessionID, userID, content)
	if err != nil {
		return nil, err
	}

	// Context includes the message just stored
	conversation, err := s.contexts.Build(ctx, sessionID, s.opts.MaxContextMessages)
	if err != nil {
		s.logger.WarnContext(ctx, "continuing without conversation context",
			slog.String("session_id", sessionID),
			slog.Any("error", err))
		conversation = &types.ConversationContext{SessionID: sessionID, MaxMessages: s.opts.MaxContextMessages}
	}
	history := lo.Filter(conversation.Messages, func(m *types.Message, _ int) bool {
		return m.ID != userMessage.ID
	})
	turns := Turns(&types.ConversationContext{Messages: history})

	provider := s.resolveProvider(preferred, user)
	response := s.deps.Gateway.Generate(ctx, provider, content, turns)
	if !response.Success {
		s.logger.WarnContext(ctx, "provider failed, using fallback reply",
			slog.String("session_id", sessionID),
			slog.String("provider", provider.String()),
			slog.String("error", response.ErrorMessage))
		response = types.AIResponse{
			Provider:    provider,
			Model:       FallbackModel,
			Content:     FallbackReply,
			Success:     true,
			GeneratedAt: s.now(),
		}
	}

	botMessage := &types.Message{
		ID:              s.newID(),
		SessionID:       sessionID,
		UserID:          userID,
		Username:        response.Provider.BotName(),
		Content:         response.Content,
		Timestamp:       s.now(),
		FromAI:          true,
		ParentMessageID: lo.ToPtr(userMessage.ID),
		AIProvider:      lo.ToPtr(response.Provider),
		AIModel:         lo.ToPtr(response.Model),
		TokensUsed:      lo.ToPtr(response.TokensUsed),
		Temperature:     lo.ToPtr(response.Temperature),
		AIContext:       lo.ToPtr(Flatten(conversation)),
	}
	botMessage.ContentHash = ContentHash(botMessage.Content, userID, sessionID)

	if err := s.store(ctx, botMessage); err != nil {
		return nil, err
	}

	s.deps.Broadcaster.Broadcast(ctx, sessionID, types.EventMessageReceived, botMessage)
	s.logger.InfoContext(ctx, "bot reply sent",
		slog.String("session_id", sessionID),
		slog.String("message_id", botMessage.ID),
		slog.String("provider", response.Provider.String()),
		slog.String("model", response.Model),
		slog.Int("tokens", response.TokensUsed))
	return botMessage, nil
}

// EditMessage rewrites the content of a human message owned by userID
func (s *Service) EditMessage(ctx context.Context, messageID, userID, content string) (*types.Message, error) {
	message, err := s.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.FromAI {
		return nil, ErrAIMessageNotEditable
	}
	if message.UserID != userID {
		return nil, ErrNotAuthor
	}
	if message.IsDeleted {
		return nil, ErrMessageDeleted
	}
	if err := types.ValidateContent(content); err != nil {
		return nil, err
	}

	editedAt := s.now()
	message.Content = content
	message.ContentHash = ContentHash(content, message.UserID, message.SessionID)
	message.IsEdited = true
	message.EditedAt = &editedAt

	if err := s.deps.Messages.UpdateMessage(ctx, message); err != nil {
		return nil, persistenceError("failed to update message", err)
	}

	s.deps.Broadcaster.Broadcast(ctx, message.SessionID, types.EventMessageUpdated, message)
	return message, nil
}

// DeleteMessage tombstones a message owned by userID. Deleting twice is a no-op.
func (s *Service) DeleteMessage(ctx context.Context, messageID, userID string) error {
	message, err := s.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if message.UserID != userID {
		return ErrNotAuthor
	}
	if message.IsDeleted {
		return nil
	}

	if err := s.deps.Messages.SoftDeleteMessage(ctx, messageID, s.now()); err != nil {
		return persistenceError("failed to delete message", err)
	}

	s.deps.Broadcaster.Broadcast(ctx, message.SessionID, types.EventMessageDeleted, types.MessageDeletedEvent{MessageID: messageID})
	return nil
}

// GetMessage returns one message, tombstoned ones included
func (s *Service) GetMessage(ctx context.Context, messageID string) (*types.Message, error) {
	if !types.IsValidID(messageID) {
		return nil, types.ErrInvalidID
	}
	message, err := s.deps.Messages.GetMessageByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, err
		}
		return nil, persistenceError("failed to load message", err)
	}
	return message, nil
}

// GetConversationContext returns the chronological window for a session
func (s *Service) GetConversationContext(ctx context.Context, sessionID string, max int) (*types.ConversationContext, error) {
	if max <= 0 {
		max = s.opts.MaxContextMessages
	}
	return s.contexts.Build(ctx, sessionID, max)
}

// GetRecentMessages returns at most limit non-deleted messages, newest first
func (s *Service) GetRecentMessages(ctx context.Context, sessionID string, limit int) ([]*types.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	messages, err := s.deps.Messages.ListRecentMessages(ctx, sessionID, limit)
	if err != nil {
		return nil, persistenceError("failed to list messages", err)
	}
	return messages, nil
}

// GetLastMessage returns the newest non-deleted message of a session
func (s *Service) GetLastMessage(ctx context.Context, sessionID string) (*types.Message, error) {
	message, err := s.deps.Messages.GetLastMessage(ctx, sessionID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, err
		}
		return nil, persistenceError("failed to load last message", err)
	}
	return message, nil
}

// validateSend runs the content rules before the access check so invalid
// input never costs a store round trip
func (s *Service) validateSend(ctx context.Context, sessionID, userID, content string) error {
	if err := types.ValidateContent(content); err != nil {
		return err
	}
	if !types.IsValidID(sessionID) || !types.IsValidID(userID) {
		return types.ErrInvalidID
	}

	ok, err := s.deps.Sessions.IsParticipant(ctx, sessionID, userID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return ErrNotParticipant
		}
		return persistenceError("failed to check participant", err)
	}
	if !ok {
		return ErrNotParticipant
	}
	return nil
}

// persistUserMessage runs steps (c) to (e) of a send: stop typing, store,
// touch activity, broadcast. It returns the author for provider resolution.
func (s *Service) persistUserMessage(ctx context.Context, sessionID, userID, content string) (*types.Message, *types.User, error) {
	user, err := s.deps.Users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, nil, err
		}
		return nil, nil, persistenceError("failed to load user", err)
	}

	now := s.now()
	message := &types.Message{
		ID:          s.newID(),
		SessionID:   sessionID,
		UserID:      userID,
		Username:    user.Username,
		Content:     content,
		Timestamp:   now,
		ContentHash: ContentHash(content, userID, sessionID),
	}
	if err := s.store(ctx, message); err != nil {
		return nil, nil, err
	}

	if err := s.deps.Sessions.UpdateSessionLastActivity(ctx, sessionID, now); err != nil {
		s.logger.WarnContext(ctx, "failed to update session activity",
			slog.String("session_id", sessionID),
			slog.Any("error", err))
	}
	if err := s.deps.Users.UpdateUserLastActivity(ctx, userID, now); err != nil {
		s.logger.WarnContext(ctx, "failed to update user activity",
			slog.String("user_id", userID),
			slog.Any("error", err))
	}

	// TECHNICAL DISCOVERY: Typing stops before the message is announced so
	// clients never see the author typing after their own message
	if s.deps.Typing != nil && !TypingStopped(ctx) {
		s.deps.Typing.StopTyping(sessionID, userID)
	}
	s.deps.Broadcaster.Broadcast(ctx, sessionID, types.EventMessageReceived, message)

	s.logger.DebugContext(ctx, "message sent",
		slog.String("session_id", sessionID),
		slog.String("message_id", message.ID),
		slog.String("user_id", userID))
	return message, user, nil
}

func (s *Service) store(ctx context.Context, message *types.Message) error {
	if err := message.Validate(); err != nil {
		return err
	}
	if err := s.deps.Messages.CreateMessage(ctx, message); err != nil {
		return persistenceError("failed to store message", err)
	}
	return nil
}

// resolveProvider picks explicit > user preference > configured default
func (s *Service) resolveProvider(preferred *types.Provider, user *types.User) types.Provider {
	if preferred != nil && preferred.IsValid() {
		return *preferred
	}
	if user != nil && user.Preferences != nil && user.Preferences.PreferredProvider != nil &&
		user.Preferences.PreferredProvider.IsValid() {
		return *user.Preferences.PreferredProvider
	}
	return s.opts.DefaultProvider
}

func persistenceError(msg string, err error) error {
	if errors.Is(err, types.ErrPersistence) {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return fmt.Errorf("%w: %s: %w", types.ErrPersistence, msg, err)
}
