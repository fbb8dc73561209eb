package types

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func TestValidateContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"simple text", "Hello", nil},
		{"empty", "", ErrEmptyContent},
		{"whitespace only", "  \n\t ", ErrEmptyContent},
		{"exactly at limit", strings.Repeat("a", MaxMessageLength), nil},
		{"one over limit", strings.Repeat("a", MaxMessageLength+1), ErrContentTooLong},
		// 4000 multi-byte characters are still 4000 characters
		{"multibyte at limit", strings.Repeat("é", MaxMessageLength), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateContent(tt.content)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestIsValidID(t *testing.T) {
	require.True(t, IsValidID(uuid.NewString()))
	require.False(t, IsValidID(""))
	require.False(t, IsValidID("not-a-uuid"))
	require.False(t, IsValidID("12345"))
}

func TestMessage_Validate(t *testing.T) {
	human := func() *Message {
		return &Message{
			ID:        uuid.NewString(),
			SessionID: uuid.NewString(),
			UserID:    uuid.NewString(),
			Content:   "Hello",
		}
	}

	tests := []struct {
		name    string
		mutate  func(m *Message)
		wantErr error
	}{
		{"valid human message", func(m *Message) {}, nil},
		{"valid AI message", func(m *Message) {
			m.FromAI = true
			m.AIProvider = lo.ToPtr(ProviderOpenAI)
			m.AIModel = lo.ToPtr("gpt-3.5-turbo")
		}, nil},
		{"AI message without model", func(m *Message) {
			m.FromAI = true
			m.AIProvider = lo.ToPtr(ProviderOpenAI)
		}, ErrAIFieldsMismatch},
		{"human message carrying provider", func(m *Message) {
			m.AIProvider = lo.ToPtr(ProviderAnthropic)
		}, ErrAIFieldsMismatch},
		{"AI reply longer than human limit", func(m *Message) {
			m.FromAI = true
			m.AIProvider = lo.ToPtr(ProviderMock)
			m.AIModel = lo.ToPtr("simple-bot-v1")
			m.Content = strings.Repeat("b", MaxMessageLength*2)
		}, nil},
		{"bad session id", func(m *Message) { m.SessionID = "x" }, ErrInvalidID},
		{"empty content", func(m *Message) { m.Content = " " }, ErrEmptyContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := human()
			tt.mutate(m)
			err := m.Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)
			} else {
				require.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			}
		})
	}
}

func TestProvider_TextRoundTrip(t *testing.T) {
	for _, p := range AllProviders {
		text, err := p.MarshalText()
		require.NoError(t, err)

		var parsed Provider
		require.NoError(t, parsed.UnmarshalText(text))
		require.Equal(t, p, parsed)
	}

	_, err := Provider(42).MarshalText()
	require.ErrorIs(t, err, ErrValidation)
}

func TestParseProvider_Aliases(t *testing.T) {
	p, err := ParseProvider("Claude")
	require.NoError(t, err)
	require.Equal(t, ProviderAnthropic, p)

	p, err = ParseProvider("azure")
	require.NoError(t, err)
	require.Equal(t, ProviderAzureOpenAI, p)

	_, err = ParseProvider("gemini")
	require.ErrorIs(t, err, ErrValidation)
}

func TestInbound_DecodesProviderByName(t *testing.T) {
	raw := `{"type":"sendMessage","session_id":"s","content":"hi","provider":"anthropic","to_bot":true}`

	var in Inbound
	require.NoError(t, json.Unmarshal([]byte(raw), &in))
	require.Equal(t, InboundSendMessage, in.Type)
	require.True(t, in.ToBot)
	require.NotNil(t, in.Provider)
	require.Equal(t, ProviderAnthropic, *in.Provider)
}

func TestProvider_BotNames(t *testing.T) {
	require.Equal(t, "🤖 ChatGPT", ProviderOpenAI.BotName())
	require.Equal(t, "🤖 Azure AI", ProviderAzureOpenAI.BotName())
	require.Equal(t, "🤖 Claude", ProviderAnthropic.BotName())
	require.Equal(t, "🤖 ChatAI Bot", ProviderMock.BotName())
}
