package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

// DefaultMaxContextMessages bounds the window when no limit is configured
const DefaultMaxContextMessages = 10

// ContextBuilder assembles the conversation window fed to providers
type ContextBuilder struct {
	messages interfaces.MessageStore
}

func NewContextBuilder(messages interfaces.MessageStore) *ContextBuilder {
	return &ContextBuilder{messages: messages}
}

// Build returns at most max non-deleted messages of the session, oldest first
func (b *ContextBuilder) Build(ctx context.Context, sessionID string, max int) (*types.ConversationContext, error) {
	if max <= 0 {
		max = DefaultMaxContextMessages
	}

	recent, err := b.messages.ListRecentMessages(ctx, sessionID, max)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load conversation context: %w", types.ErrPersistence, err)
	}

	// Stores return newest first
	recent = lo.Reverse(lo.Filter(recent, func(m *types.Message, _ int) bool {
		return m != nil && !m.IsDeleted
	}))

	return &types.ConversationContext{
		SessionID:   sessionID,
		Messages:    recent,
		MaxMessages: max,
	}, nil
}

// Turns converts the window to role-tagged provider turns
func Turns(conversation *types.ConversationContext) []types.Turn {
	if conversation == nil {
		return nil
	}
	return lo.Map(conversation.Messages, func(m *types.Message, _ int) types.Turn {
		role := types.RoleUser
		if m.FromAI {
			role = types.RoleAssistant
		}
		return types.Turn{Role: role, Author: m.Username, Content: m.Content}
	})
}

// Flatten renders the window as "username: content" lines
func Flatten(conversation *types.ConversationContext) string {
	if conversation == nil {
		return ""
	}
	lines := lo.Map(conversation.Messages, func(m *types.Message, _ int) string {
		return m.Username + ": " + m.Content
	})
	return strings.Join(lines, "\n")
}
