package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/samber/lo"

	"chatrelay/pkg/types"
)

// MaxContextTurns is how many history turns a request carries
const MaxContextTurns = 5

// maxErrorBody caps how much of a failed response ends up in error messages
const maxErrorBody = 512

// Provider is one AI backend. GenerateResponse never returns an error:
// failures come back with Success=false and ErrorMessage set.
type Provider interface {
	GenerateResponse(ctx context.Context, message string, turns []types.Turn) types.AIResponse
	IsHealthy(ctx context.Context) bool
	Type() types.Provider
}

// chatMessage is the role/content pair shared by every wire format
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// buildMessages keeps the last MaxContextTurns turns and appends the new
// message as the final user turn. A non-empty system prompt is prepended.
func buildMessages(systemPrompt, message string, turns []types.Turn) []chatMessage {
	if len(turns) > MaxContextTurns {
		turns = turns[len(turns)-MaxContextTurns:]
	}

	messages := make([]chatMessage, 0, len(turns)+2)
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: types.RoleSystem, Content: systemPrompt})
	}
	messages = append(messages, lo.Map(turns, func(t types.Turn, _ int) chatMessage {
		role := t.Role
		if role != types.RoleAssistant {
			role = types.RoleUser
		}
		return chatMessage{Role: role, Content: t.Content}
	})...)
	return append(messages, chatMessage{Role: types.RoleUser, Content: message})
}

// postJSON sends one request and decodes a 2xx body into out. Every failure
// is a *TransientError so the retry policy can inspect it.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return &TransientError{Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransientError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return &TransientError{
			StatusCode: resp.StatusCode,
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			Err:        fmt.Errorf("API error: %s - %s", resp.Status, string(data)),
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &TransientError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}
	return nil
}

func successResponse(provider types.Provider, model, content string, tokens int, temperature float64) types.AIResponse {
	return types.AIResponse{
		Provider:    provider,
		Model:       model,
		Content:     content,
		Success:     true,
		TokensUsed:  tokens,
		Temperature: temperature,
		GeneratedAt: time.Now().UTC(),
	}
}

func failureResponse(provider types.Provider, model string, err error) types.AIResponse {
	return types.AIResponse{
		Provider:     provider,
		Model:        model,
		Success:      false,
		ErrorMessage: err.Error(),
		GeneratedAt:  time.Now().UTC(),
	}
}

// healthProbe is the message used by IsHealthy on remote providers
const healthProbe = "Hello"
