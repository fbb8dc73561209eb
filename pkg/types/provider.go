package types

import (
	"fmt"
	"strings"
)

// Provider identifies one AI backend variant
type Provider int

const (
	ProviderMock Provider = iota
	ProviderOpenAI
	ProviderAzureOpenAI
	ProviderAnthropic
)

// AllProviders lists every known variant in enum order
var AllProviders = []Provider{ProviderMock, ProviderOpenAI, ProviderAzureOpenAI, ProviderAnthropic}

func (p Provider) String() string {
	switch p {
	case ProviderMock:
		return "mock"
	case ProviderOpenAI:
		return "openai"
	case ProviderAzureOpenAI:
		return "azure_openai"
	case ProviderAnthropic:
		return "anthropic"
	default:
		return fmt.Sprintf("provider(%d)", int(p))
	}
}

// BotName is the display name attached to messages generated by the provider
func (p Provider) BotName() string {
	switch p {
	case ProviderOpenAI:
		return "🤖 ChatGPT"
	case ProviderAzureOpenAI:
		return "🤖 Azure AI"
	case ProviderAnthropic:
		return "🤖 Claude"
	case ProviderMock:
		return "🤖 ChatAI Bot"
	default:
		return "🤖 AI Assistant"
	}
}

// IsValid reports whether p is a known variant
func (p Provider) IsValid() bool {
	return p >= ProviderMock && p <= ProviderAnthropic
}

// ParseProvider accepts the text form or a few common aliases
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mock", "simple":
		return ProviderMock, nil
	case "openai", "chatgpt":
		return ProviderOpenAI, nil
	case "azure_openai", "azureopenai", "azure":
		return ProviderAzureOpenAI, nil
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	default:
		return ProviderMock, fmt.Errorf("%w: unknown provider %q", ErrValidation, s)
	}
}

// MarshalText encodes the provider by name so JSON payloads stay readable
func (p Provider) MarshalText() ([]byte, error) {
	if !p.IsValid() {
		return nil, fmt.Errorf("%w: unknown provider %d", ErrValidation, int(p))
	}
	return []byte(p.String()), nil
}

func (p *Provider) UnmarshalText(text []byte) error {
	parsed, err := ParseProvider(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
