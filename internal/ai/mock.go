package ai

import (
	"context"
	"fmt"
	"strings"

	"chatrelay/internal/config"
	"chatrelay/pkg/types"
)

// DefaultMockModel identifies replies produced by the local bot
const DefaultMockModel = "simple-bot-v1"

// cannedReply maps a keyword onto a fixed answer; first match wins
type cannedReply struct {
	keywords []string
	reply    string
}

var cannedReplies = []cannedReply{
	{[]string{"hello", "hi", "hey", "bonjour"}, "Hello! I'm the ChatAI assistant. How can I help you today?"},
	{[]string{"help"}, "I can answer questions and keep the conversation going. Ask me anything!"},
	{[]string{"thank"}, "You're welcome! Let me know if there's anything else."},
	{[]string{"bye", "goodbye"}, "Goodbye! Talk to you soon."},
}

// MockProvider is the deterministic local fallback bot. It never fails.
type MockProvider struct {
	model       string
	temperature float64
	inst        *Instruments
}

// NewMockProvider builds the local bot from its config block
func NewMockProvider(cfg config.ProviderConfig, inst *Instruments) *MockProvider {
	model := cfg.Model
	if model == "" {
		model = DefaultMockModel
	}
	if inst == nil {
		inst = NoopInstruments()
	}
	return &MockProvider{model: model, temperature: cfg.Temperature, inst: inst}
}

func (m *MockProvider) Type() types.Provider {
	return types.ProviderMock
}

// GenerateResponse picks a canned reply keyed on the message text
func (m *MockProvider) GenerateResponse(ctx context.Context, message string, turns []types.Turn) types.AIResponse {
	return m.inst.observe(ctx, types.ProviderMock, m.model, func(context.Context) types.AIResponse {
		reply := MockReply(message)
		return successResponse(types.ProviderMock, m.model, reply, len(strings.Fields(reply)), m.temperature)
	})
}

func (m *MockProvider) IsHealthy(context.Context) bool {
	return true
}

// MockReply is the reply the local bot gives for message
func MockReply(message string) string {
	words := strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	for _, canned := range cannedReplies {
		for _, word := range words {
			for _, keyword := range canned.keywords {
				if matchesKeyword(word, keyword) {
					return canned.reply
				}
			}
		}
	}

	trimmed := strings.TrimSpace(message)
	if strings.HasSuffix(trimmed, "?") {
		return fmt.Sprintf("That's a good question. I don't have a definitive answer to %q yet, but I'm happy to think it through with you.", trimmed)
	}
	return fmt.Sprintf("I received your message: %q. Tell me more!", trimmed)
}

// matchesKeyword is exact for short keywords and a prefix match otherwise,
// so "thanks" hits "thank" but "history" never hits "hi"
func matchesKeyword(word, keyword string) bool {
	if len(keyword) <= 3 {
		return word == keyword
	}
	return strings.HasPrefix(word, keyword)
}
