package ai

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"chatrelay/internal/config"
	"chatrelay/pkg/types"
)

// DefaultAzureAPIVersion is used when the block leaves api_version empty
const DefaultAzureAPIVersion = "2024-02-01"

// NewAzureOpenAIProvider builds a chat-completions client against an Azure
// deployment: {endpoint}/openai/deployments/{deployment}/chat/completions
func NewAzureOpenAIProvider(cfg config.ProviderConfig, ai *config.AIConfig, client *http.Client, inst *Instruments, logger *slog.Logger) (*OpenAIProvider, error) {
	if !cfg.Enabled {
		return nil, ErrProviderDisabled
	}
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	endpoint := strings.TrimRight(cfg.BaseURL, "/")
	if endpoint == "" {
		return nil, ErrMissingEndpoint
	}
	if cfg.Deployment == "" {
		return nil, ErrMissingDeployment
	}
	version := cfg.APIVersion
	if version == "" {
		version = DefaultAzureAPIVersion
	}

	target := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		endpoint, url.PathEscape(cfg.Deployment), url.QueryEscape(version))

	return newChatCompletions(types.ProviderAzureOpenAI, cfg, ai, target,
		map[string]string{"api-key": cfg.APIKey},
		client, inst, logger), nil
}
