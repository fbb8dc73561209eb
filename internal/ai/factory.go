package ai

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"chatrelay/internal/config"
	"chatrelay/pkg/types"
)

// Factory creates and caches one client per provider variant
// ARCHITECTURAL DISCOVERY: Creation happens under the mutex so concurrent
// first calls for the same provider agree on a single instance
type Factory struct {
	mu     sync.Mutex
	cache  map[types.Provider]Provider
	cfg    *config.AIConfig
	client *http.Client
	inst   *Instruments
	logger *slog.Logger
}

// NewFactory builds a factory; client and inst may be nil
func NewFactory(cfg *config.AIConfig, client *http.Client, inst *Instruments, logger *slog.Logger) *Factory {
	if cfg == nil {
		cfg = config.DefaultConfig().AI
	}
	if client == nil {
		// Per-attempt timeouts come from the retry policy's contexts
		client = &http.Client{}
	}
	if inst == nil {
		inst = NoopInstruments()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		cache:  make(map[types.Provider]Provider),
		cfg:    cfg,
		client: client,
		inst:   inst,
		logger: logger.With(slog.String("component", "ai")),
	}
}

// DefaultProvider is the configured fallback provider choice
func (f *Factory) DefaultProvider() types.Provider {
	return f.cfg.DefaultProvider
}

// Get returns the cached client for provider, creating it on first use.
// A configuration error is logged and the mock bot is cached in its place.
func (f *Factory) Get(provider types.Provider) Provider {
	f.mu.Lock()
	defer f.mu.Unlock()

	if cached, ok := f.cache[provider]; ok {
		return cached
	}

	created, err := f.create(provider)
	if err != nil {
		f.logger.Error("failed to create provider, falling back to mock",
			slog.String("provider", provider.String()),
			slog.Any("error", err))
		created = NewMockProvider(f.cfg.Mock, f.inst)
	}
	f.cache[provider] = created
	return created
}

func (f *Factory) create(provider types.Provider) (Provider, error) {
	switch provider {
	case types.ProviderOpenAI:
		return NewOpenAIProvider(f.cfg.OpenAI, f.cfg, f.client, f.inst, f.logger)
	case types.ProviderAzureOpenAI:
		return NewAzureOpenAIProvider(f.cfg.AzureOpenAI, f.cfg, f.client, f.inst, f.logger)
	case types.ProviderAnthropic:
		return NewAnthropicProvider(f.cfg.Anthropic, f.cfg, f.client, f.inst, f.logger)
	case types.ProviderMock:
		return NewMockProvider(f.cfg.Mock, f.inst), nil
	default:
		return nil, ErrUnknownProvider
	}
}

// Configured reports whether the provider's block passes construction checks
func (f *Factory) Configured(provider types.Provider) bool {
	_, err := f.create(provider)
	return err == nil
}

// AvailableProviders lists the providers usable right now; mock is always first
func (f *Factory) AvailableProviders() []types.Provider {
	available := []types.Provider{types.ProviderMock}
	for _, provider := range types.AllProviders {
		if provider != types.ProviderMock && f.Configured(provider) {
			available = append(available, provider)
		}
	}
	return available
}

// HealthCheck probes a provider. Unconfigured providers are unhealthy even
// though Get would hand out the mock for them.
func (f *Factory) HealthCheck(ctx context.Context, provider types.Provider) bool {
	if !f.Configured(provider) {
		return false
	}
	return f.Get(provider).IsHealthy(ctx)
}

// Generate is the gateway entry used by the dispatch pipeline
func (f *Factory) Generate(ctx context.Context, provider types.Provider, message string, turns []types.Turn) types.AIResponse {
	return f.Get(provider).GenerateResponse(ctx, message, turns)
}
