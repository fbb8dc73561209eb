package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/config"
	"chatrelay/pkg/types"
)

func testAIConfig() *config.AIConfig {
	cfg := config.DefaultConfig().AI
	cfg.RetryDelay = time.Millisecond
	return cfg
}

func history(n int) []types.Turn {
	turns := make([]types.Turn, 0, n)
	for i := 0; i < n; i++ {
		role := types.RoleUser
		if i%2 == 1 {
			role = types.RoleAssistant
		}
		turns = append(turns, types.Turn{Role: role, Author: "someone", Content: string(rune('a' + i))})
	}
	return turns
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func completion(content string, tokens int) map[string]interface{} {
	return map[string]interface{}{
		"id":    "cmpl-1",
		"model": "gpt-3.5-turbo",
		"choices": []map[string]interface{}{
			{"index": 0, "message": map[string]string{"role": "assistant", "content": content}},
		},
		"usage": map[string]int{"total_tokens": tokens},
	}
}

func TestOpenAI_GenerateResponseSuccess(t *testing.T) {
	var got chatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, completion("  Hi there!  ", 42))
	}))
	defer server.Close()

	ai := testAIConfig()
	ai.OpenAI.APIKey = "sk-test"
	ai.OpenAI.BaseURL = server.URL + "/v1/"
	provider, err := NewOpenAIProvider(ai.OpenAI, ai, server.Client(), nil, nil)
	require.NoError(t, err)

	resp := provider.GenerateResponse(context.Background(), "What's up?", history(7))

	require.True(t, resp.Success, resp.ErrorMessage)
	assert.Equal(t, types.ProviderOpenAI, resp.Provider)
	assert.Equal(t, "gpt-3.5-turbo", resp.Model)
	assert.Equal(t, "Hi there!", resp.Content)
	assert.Equal(t, 42, resp.TokensUsed)
	assert.InDelta(t, 0.7, resp.Temperature, 1e-9)
	assert.False(t, resp.GeneratedAt.IsZero())

	// system + last five turns + the new message
	require.Len(t, got.Messages, 7)
	assert.Equal(t, chatMessage{Role: types.RoleSystem, Content: "You are a helpful AI assistant."}, got.Messages[0])
	assert.Equal(t, "c", got.Messages[1].Content)
	assert.Equal(t, types.RoleUser, got.Messages[1].Role)
	assert.Equal(t, types.RoleAssistant, got.Messages[2].Role)
	assert.Equal(t, chatMessage{Role: types.RoleUser, Content: "What's up?"}, got.Messages[6])
	assert.Equal(t, 1000, got.MaxTokens)
}

func TestOpenAI_ExhaustsRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	ai := testAIConfig()
	ai.OpenAI.APIKey = "sk-test"
	ai.OpenAI.BaseURL = server.URL
	provider, err := NewOpenAIProvider(ai.OpenAI, ai, server.Client(), nil, nil)
	require.NoError(t, err)

	resp := provider.GenerateResponse(context.Background(), "hello", nil)

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.False(t, resp.Success)
	assert.Equal(t, types.ProviderOpenAI, resp.Provider)
	assert.Equal(t, "gpt-3.5-turbo", resp.Model)
	assert.Contains(t, resp.ErrorMessage, "500")
	assert.Empty(t, resp.Content)
}

func TestOpenAI_EmptyChoicesIsRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			writeJSON(w, map[string]interface{}{"choices": []interface{}{}})
			return
		}
		writeJSON(w, completion("second time lucky", 3))
	}))
	defer server.Close()

	ai := testAIConfig()
	ai.OpenAI.APIKey = "sk-test"
	ai.OpenAI.BaseURL = server.URL
	provider, err := NewOpenAIProvider(ai.OpenAI, ai, server.Client(), nil, nil)
	require.NoError(t, err)

	resp := provider.GenerateResponse(context.Background(), "hello", nil)
	require.True(t, resp.Success)
	assert.Equal(t, "second time lucky", resp.Content)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestOpenAI_HonoursRetryAfter(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(w, completion("ok", 1))
	}))
	defer server.Close()

	ai := testAIConfig()
	ai.OpenAI.APIKey = "sk-test"
	ai.OpenAI.BaseURL = server.URL
	provider, err := NewOpenAIProvider(ai.OpenAI, ai, server.Client(), nil, nil)
	require.NoError(t, err)

	start := time.Now()
	resp := provider.GenerateResponse(context.Background(), "hello", nil)

	require.True(t, resp.Success)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
}

func TestOpenAI_CancelledContextStopsRetrying(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	ai := testAIConfig()
	ai.RetryDelay = time.Minute
	ai.OpenAI.APIKey = "sk-test"
	ai.OpenAI.BaseURL = server.URL
	provider, err := NewOpenAIProvider(ai.OpenAI, ai, server.Client(), nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	resp := provider.GenerateResponse(ctx, "hello", nil)
	assert.False(t, resp.Success)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestOpenAI_AttemptTimeoutIsRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	ai := testAIConfig()
	ai.OpenAI.APIKey = "sk-test"
	ai.OpenAI.BaseURL = server.URL
	ai.OpenAI.Timeout = 50 * time.Millisecond
	provider, err := NewOpenAIProvider(ai.OpenAI, ai, server.Client(), nil, nil)
	require.NoError(t, err)

	start := time.Now()
	resp := provider.GenerateResponse(context.Background(), "hello", nil)

	assert.False(t, resp.Success)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestOpenAI_ConfigurationErrors(t *testing.T) {
	ai := testAIConfig()

	_, err := NewOpenAIProvider(ai.OpenAI, ai, nil, nil, nil)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	assert.ErrorIs(t, err, types.ErrProviderConfiguration)

	disabled := ai.OpenAI
	disabled.Enabled = false
	disabled.APIKey = "sk"
	_, err = NewOpenAIProvider(disabled, ai, nil, nil, nil)
	assert.ErrorIs(t, err, ErrProviderDisabled)
}

func TestAzure_URLAndHeaderShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/deployments/gpt4-prod/chat/completions", r.URL.Path)
		assert.Equal(t, "2024-02-01", r.URL.Query().Get("api-version"))
		assert.Equal(t, "azure-key", r.Header.Get("api-key"))
		assert.Empty(t, r.Header.Get("Authorization"))
		writeJSON(w, completion("from azure", 9))
	}))
	defer server.Close()

	ai := testAIConfig()
	ai.AzureOpenAI.APIKey = "azure-key"
	ai.AzureOpenAI.BaseURL = server.URL + "/"
	ai.AzureOpenAI.Deployment = "gpt4-prod"
	provider, err := NewAzureOpenAIProvider(ai.AzureOpenAI, ai, server.Client(), nil, nil)
	require.NoError(t, err)

	resp := provider.GenerateResponse(context.Background(), "hello", nil)
	require.True(t, resp.Success, resp.ErrorMessage)
	assert.Equal(t, types.ProviderAzureOpenAI, resp.Provider)
	assert.Equal(t, types.ProviderAzureOpenAI, provider.Type())
	assert.Equal(t, "from azure", resp.Content)
}

func TestAzure_ConfigurationErrors(t *testing.T) {
	ai := testAIConfig()
	block := ai.AzureOpenAI
	block.APIKey = "k"

	_, err := NewAzureOpenAIProvider(block, ai, nil, nil, nil)
	assert.ErrorIs(t, err, ErrMissingEndpoint)

	block.BaseURL = "https://example.openai.azure.com"
	_, err = NewAzureOpenAIProvider(block, ai, nil, nil, nil)
	assert.ErrorIs(t, err, ErrMissingDeployment)
}

func TestAnthropic_RequestShape(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "claude-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, map[string]interface{}{
			"id":      "msg_1",
			"type":    "message",
			"role":    "assistant",
			"content": []map[string]string{{"type": "text", "text": "Bonjour "}, {"type": "text", "text": "à tous"}},
			"usage":   map[string]int{"input_tokens": 10, "output_tokens": 5},
		})
	}))
	defer server.Close()

	ai := testAIConfig()
	ai.Anthropic.APIKey = "claude-key"
	ai.Anthropic.BaseURL = server.URL + "/v1"
	ai.Anthropic.SystemPrompt = "Be brief."
	provider, err := NewAnthropicProvider(ai.Anthropic, ai, server.Client(), nil, nil)
	require.NoError(t, err)

	resp := provider.GenerateResponse(context.Background(), "Salut", history(2))

	require.True(t, resp.Success, resp.ErrorMessage)
	assert.Equal(t, types.ProviderAnthropic, resp.Provider)
	assert.Equal(t, "Bonjour à tous", resp.Content)
	assert.Equal(t, 15, resp.TokensUsed)

	assert.Equal(t, "Be brief.", got["system"])
	assert.Equal(t, "claude-3-sonnet-20240229", got["model"])
	assert.EqualValues(t, 4000, got["max_tokens"])
	messages := got["messages"].([]interface{})
	require.Len(t, messages, 3)
	for _, m := range messages {
		assert.NotEqual(t, types.RoleSystem, m.(map[string]interface{})["role"])
	}
	assert.Equal(t, "Salut", messages[2].(map[string]interface{})["content"])
}

func TestAnthropic_DropsLeadingAssistantTurns(t *testing.T) {
	var got struct {
		Messages []chatMessage `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, map[string]interface{}{"content": []map[string]string{{"type": "text", "text": "ok"}}})
	}))
	defer server.Close()

	ai := testAIConfig()
	ai.Anthropic.APIKey = "k"
	ai.Anthropic.BaseURL = server.URL
	provider, err := NewAnthropicProvider(ai.Anthropic, ai, server.Client(), nil, nil)
	require.NoError(t, err)

	// The last five of six alternating turns open with an assistant reply
	require.True(t, provider.GenerateResponse(context.Background(), "next", history(6)).Success)

	require.Len(t, got.Messages, 5)
	assert.Equal(t, types.RoleUser, got.Messages[0].Role)
	assert.Equal(t, "next", got.Messages[4].Content)
}

func TestAnthropic_OmitsEmptySystem(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, map[string]interface{}{"content": []map[string]string{{"type": "text", "text": "ok"}}})
	}))
	defer server.Close()

	ai := testAIConfig()
	ai.Anthropic.APIKey = "k"
	ai.Anthropic.BaseURL = server.URL
	provider, err := NewAnthropicProvider(ai.Anthropic, ai, server.Client(), nil, nil)
	require.NoError(t, err)

	require.True(t, provider.GenerateResponse(context.Background(), "x", nil).Success)
	_, hasSystem := got["system"]
	assert.False(t, hasSystem)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

	assert.Equal(t, 3*time.Second, ParseRetryAfter("3", now))
	assert.Equal(t, 10*time.Second, ParseRetryAfter(now.Add(10*time.Second).Format(http.TimeFormat), now))
	assert.Zero(t, ParseRetryAfter("", now))
	assert.Zero(t, ParseRetryAfter("-4", now))
	assert.Zero(t, ParseRetryAfter("soon", now))
	assert.Zero(t, ParseRetryAfter(now.Add(-time.Minute).Format(http.TimeFormat), now))
}

func TestRetryPolicy_Backoff(t *testing.T) {
	policy := newRetryPolicy(3, 100*time.Millisecond, nil)

	assert.Equal(t, 100*time.Millisecond, policy.backoff(1, errors.New("network")))
	assert.Equal(t, 200*time.Millisecond, policy.backoff(2, &TransientError{StatusCode: 500}))
	assert.Equal(t, 5*time.Second, policy.backoff(1, &TransientError{StatusCode: 429, RetryAfter: 5 * time.Second}))
	assert.Equal(t, 200*time.Millisecond, policy.backoff(2, &TransientError{StatusCode: 429}))
}

func TestTransientError_Taxonomy(t *testing.T) {
	cause := errors.New("connection reset")
	err := error(&TransientError{StatusCode: 429, Err: cause})

	assert.ErrorIs(t, err, types.ErrProviderTransient)
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsRateLimited(err))
	assert.False(t, IsRateLimited(cause))
}
