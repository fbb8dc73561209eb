package ai

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/samber/lo"

	"chatrelay/internal/config"
	"chatrelay/pkg/types"
)

const (
	// DefaultAnthropicTimeout bounds a single messages attempt
	DefaultAnthropicTimeout = 30 * time.Second

	anthropicVersion = "2023-06-01"
)

type anthropicRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Role       string             `json:"role"`
	Model      string             `json:"model"`
	StopReason string             `json:"stop_reason"`
	Content    []anthropicContent `json:"content"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// AnthropicProvider speaks the messages API. The system prompt travels in the
// top-level system field, never as a turn.
type AnthropicProvider struct {
	cfg     config.ProviderConfig
	url     string
	timeout time.Duration
	client  *http.Client
	retry   retryPolicy
	inst    *Instruments
	logger  *slog.Logger
}

// NewAnthropicProvider validates the block and builds the client
func NewAnthropicProvider(cfg config.ProviderConfig, ai *config.AIConfig, client *http.Client, inst *Instruments, logger *slog.Logger) (*AnthropicProvider, error) {
	if !cfg.Enabled {
		return nil, ErrProviderDisabled
	}
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, ErrMissingEndpoint
	}
	if cfg.Model == "" {
		return nil, ErrMissingModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4000
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultAnthropicTimeout
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
	logger = logger.With(slog.String("provider", types.ProviderAnthropic.String()))

	return &AnthropicProvider{
		cfg:     cfg,
		url:     base + "/messages",
		timeout: timeout,
		client:  client,
		retry:   newRetryPolicy(ai.RetryAttempts, ai.RetryDelay, logger),
		inst:    inst,
		logger:  logger,
	}, nil
}

// anthropicMessages drops assistant turns left leading by the context
// window; the Messages API requires the first turn to be the user's
func anthropicMessages(message string, turns []types.Turn) []chatMessage {
	return lo.DropWhile(buildMessages("", message, turns), func(m chatMessage) bool {
		return m.Role == types.RoleAssistant
	})
}

func (p *AnthropicProvider) Type() types.Provider {
	return types.ProviderAnthropic
}

func (p *AnthropicProvider) GenerateResponse(ctx context.Context, message string, turns []types.Turn) types.AIResponse {
	return p.inst.observe(ctx, types.ProviderAnthropic, p.cfg.Model, func(ctx context.Context) types.AIResponse {
		req := anthropicRequest{
			Model:       p.cfg.Model,
			MaxTokens:   p.cfg.MaxTokens,
			Temperature: p.cfg.Temperature,
			System:      p.cfg.SystemPrompt,
			Messages:    anthropicMessages(message, turns),
		}
		headers := map[string]string{
			"x-api-key":         p.cfg.APIKey,
			"anthropic-version": anthropicVersion,
		}

		var resp anthropicResponse
		attempts, err := p.retry.run(ctx, p.timeout, func(ctx context.Context) error {
			resp = anthropicResponse{}
			if err := postJSON(ctx, p.client, p.url, headers, req, &resp); err != nil {
				return err
			}
			if strings.TrimSpace(p.text(resp)) == "" {
				return &TransientError{Err: ErrEmptyResponse}
			}
			return nil
		})
		if err != nil {
			p.logger.ErrorContext(ctx, "provider call failed",
				slog.Int("attempts", attempts),
				slog.Any("error", err))
			return failureResponse(types.ProviderAnthropic, p.cfg.Model, err)
		}

		tokens := resp.Usage.InputTokens + resp.Usage.OutputTokens
		return successResponse(types.ProviderAnthropic, p.cfg.Model,
			strings.TrimSpace(p.text(resp)), tokens, p.cfg.Temperature)
	})
}

// text joins the text blocks of a response
func (p *AnthropicProvider) text(resp anthropicResponse) string {
	blocks := lo.FilterMap(resp.Content, func(c anthropicContent, _ int) (string, bool) {
		return c.Text, c.Type == "text" || c.Type == ""
	})
	return strings.Join(blocks, "")
}

func (p *AnthropicProvider) IsHealthy(ctx context.Context) bool {
	return p.GenerateResponse(ctx, healthProbe, nil).Success
}
