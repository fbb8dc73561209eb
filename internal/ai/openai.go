package ai

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"chatrelay/internal/config"
	"chatrelay/pkg/types"
)

// DefaultOpenAITimeout bounds a single chat-completions attempt
const DefaultOpenAITimeout = 60 * time.Second

type chatCompletionRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// OpenAIProvider speaks the chat-completions wire format. The same client
// serves OpenAI proper and Azure deployments; only the URL and auth differ.
type OpenAIProvider struct {
	kind    types.Provider
	cfg     config.ProviderConfig
	url     string
	headers map[string]string
	timeout time.Duration
	client  *http.Client
	retry   retryPolicy
	inst    *Instruments
	logger  *slog.Logger
}

// NewOpenAIProvider validates the block and builds an OpenAI client
func NewOpenAIProvider(cfg config.ProviderConfig, ai *config.AIConfig, client *http.Client, inst *Instruments, logger *slog.Logger) (*OpenAIProvider, error) {
	if !cfg.Enabled {
		return nil, ErrProviderDisabled
	}
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		return nil, ErrMissingModel
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}

	return newChatCompletions(types.ProviderOpenAI, cfg, ai,
		base+"/chat/completions",
		map[string]string{"Authorization": "Bearer " + cfg.APIKey},
		client, inst, logger), nil
}

func newChatCompletions(kind types.Provider, cfg config.ProviderConfig, ai *config.AIConfig, url string, headers map[string]string, client *http.Client, inst *Instruments, logger *slog.Logger) *OpenAIProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultOpenAITimeout
	}
	if client == nil {
		client = http.DefaultClient
	}
	if inst == nil {
		inst = NoopInstruments()
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("provider", kind.String()))

	return &OpenAIProvider{
		kind:    kind,
		cfg:     cfg,
		url:     url,
		headers: headers,
		timeout: timeout,
		client:  client,
		retry:   newRetryPolicy(ai.RetryAttempts, ai.RetryDelay, logger),
		inst:    inst,
		logger:  logger,
	}
}

func (p *OpenAIProvider) Type() types.Provider {
	return p.kind
}

// GenerateResponse sends the system prompt, the trailing history and the message
func (p *OpenAIProvider) GenerateResponse(ctx context.Context, message string, turns []types.Turn) types.AIResponse {
	return p.inst.observe(ctx, p.kind, p.cfg.Model, func(ctx context.Context) types.AIResponse {
		req := chatCompletionRequest{
			Model:       p.cfg.Model,
			Messages:    buildMessages(p.cfg.SystemPrompt, message, turns),
			MaxTokens:   p.cfg.MaxTokens,
			Temperature: p.cfg.Temperature,
		}

		var resp chatCompletionResponse
		attempts, err := p.retry.run(ctx, p.timeout, func(ctx context.Context) error {
			resp = chatCompletionResponse{}
			if err := postJSON(ctx, p.client, p.url, p.headers, req, &resp); err != nil {
				return err
			}
			if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
				return &TransientError{Err: ErrEmptyResponse}
			}
			return nil
		})
		if err != nil {
			p.logger.ErrorContext(ctx, "provider call failed",
				slog.Int("attempts", attempts),
				slog.Any("error", err))
			return failureResponse(p.kind, p.cfg.Model, err)
		}

		p.logger.DebugContext(ctx, "provider call succeeded",
			slog.Int("attempts", attempts),
			slog.Int("tokens", resp.Usage.TotalTokens))
		return successResponse(p.kind, p.cfg.Model,
			strings.TrimSpace(resp.Choices[0].Message.Content),
			resp.Usage.TotalTokens, p.cfg.Temperature)
	})
}

// IsHealthy issues a short probe request
func (p *OpenAIProvider) IsHealthy(ctx context.Context) bool {
	return p.GenerateResponse(ctx, healthProbe, nil).Success
}
