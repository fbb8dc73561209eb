package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"chatrelay/pkg/types"
)

func TestFactory_FallsBackToMockWhenUnconfigured(t *testing.T) {
	factory := NewFactory(testAIConfig(), nil, nil, nil)

	for _, provider := range []types.Provider{types.ProviderOpenAI, types.ProviderAzureOpenAI, types.ProviderAnthropic} {
		client := factory.Get(provider)
		assert.Equal(t, types.ProviderMock, client.Type(), "provider %s", provider)
	}

	resp := factory.Generate(context.Background(), types.ProviderOpenAI, "hello", nil)
	require.True(t, resp.Success)
	assert.Equal(t, types.ProviderMock, resp.Provider)
	assert.Equal(t, DefaultMockModel, resp.Model)
}

func TestFactory_UnknownProviderFallsBack(t *testing.T) {
	factory := NewFactory(testAIConfig(), nil, nil, nil)
	assert.Equal(t, types.ProviderMock, factory.Get(types.Provider(99)).Type())
}

func TestFactory_ConcurrentGetReturnsSameInstance(t *testing.T) {
	cfg := testAIConfig()
	cfg.OpenAI.APIKey = "sk-test"
	factory := NewFactory(cfg, nil, nil, nil)

	const workers = 32
	results := make([]Provider, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = factory.Get(types.ProviderOpenAI)
		}(i)
	}
	wg.Wait()

	first := results[0]
	assert.Equal(t, types.ProviderOpenAI, first.Type())
	for _, p := range results[1:] {
		assert.Same(t, first, p)
	}
}

func TestFactory_AvailableProviders(t *testing.T) {
	cfg := testAIConfig()
	assert.Equal(t, []types.Provider{types.ProviderMock}, NewFactory(cfg, nil, nil, nil).AvailableProviders())

	cfg.OpenAI.APIKey = "sk"
	cfg.Anthropic.APIKey = "ck"
	cfg.AzureOpenAI.APIKey = "ak"
	cfg.AzureOpenAI.BaseURL = "https://example.openai.azure.com"
	// Azure still lacks a deployment
	assert.Equal(t,
		[]types.Provider{types.ProviderMock, types.ProviderOpenAI, types.ProviderAnthropic},
		NewFactory(cfg, nil, nil, nil).AvailableProviders())
}

func TestFactory_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, completion("pong", 1))
	}))
	defer server.Close()

	cfg := testAIConfig()
	cfg.OpenAI.APIKey = "sk"
	cfg.OpenAI.BaseURL = server.URL
	factory := NewFactory(cfg, server.Client(), nil, nil)

	ctx := context.Background()
	assert.True(t, factory.HealthCheck(ctx, types.ProviderMock))
	assert.True(t, factory.HealthCheck(ctx, types.ProviderOpenAI))
	assert.False(t, factory.HealthCheck(ctx, types.ProviderAnthropic))
	assert.Equal(t, types.ProviderOpenAI, factory.DefaultProvider())
}

func TestInstruments_RecordSpanAndMetrics(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	inst, err := NewInstruments(tp.Tracer("test"), mp.Meter("test"))
	require.NoError(t, err)

	mock := NewMockProvider(testAIConfig().Mock, inst)
	resp := mock.GenerateResponse(context.Background(), "hello", nil)
	require.True(t, resp.Success)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "ai.mock.generate", spans[0].Name())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	assert.True(t, names["ai.request.duration"])
	assert.True(t, names["ai.tokens.used"])
	assert.False(t, names["ai.request.failures"], "no failure recorded yet")
}

func TestInstruments_CountFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	inst, err := NewInstruments(nil, mp.Meter("test"))
	require.NoError(t, err)

	cfg := testAIConfig()
	cfg.OpenAI.APIKey = "sk"
	cfg.OpenAI.BaseURL = server.URL
	provider, err := NewOpenAIProvider(cfg.OpenAI, cfg, server.Client(), inst, nil)
	require.NoError(t, err)
	require.False(t, provider.GenerateResponse(context.Background(), "hello", nil).Success)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var failures int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "ai.request.failures" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				failures += dp.Value
			}
		}
	}
	assert.Equal(t, int64(1), failures)
}

func TestMockReply_Deterministic(t *testing.T) {
	assert.Equal(t, MockReply("Hello everyone"), MockReply("Hello everyone"))
	assert.Contains(t, MockReply("hi"), "Hello!")
	assert.NotContains(t, MockReply("history lesson"), "Hello!")
	assert.Contains(t, MockReply("thanks a lot"), "welcome")
	assert.Contains(t, MockReply("What time is it?"), "good question")
	assert.Contains(t, MockReply("pizza"), `"pizza"`)

	mock := NewMockProvider(testAIConfig().Mock, nil)
	assert.True(t, mock.IsHealthy(context.Background()))
	assert.Equal(t, types.ProviderMock, mock.Type())
}
