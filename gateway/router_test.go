package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/arclight/llmgateway/llm"
	"github.com/arclight/llmgateway/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider is a minimal llm.Provider stand-in that lets tests script
// exactly what Completion/Stream return without any network traffic.
type fakeProvider struct {
	name         string
	completionFn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
	streamFn     func(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error)
	calls        int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Capabilities() llm.Capabilities {
	return llm.Capabilities{SupportsTools: true, SupportsStreaming: true}
}

func (f *fakeProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	f.calls++
	return f.completionFn(ctx, req)
}

func (f *fakeProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	return f.streamFn(ctx, req)
}

func (f *fakeProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func okResponse(text string) func(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
	return func(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		return &llm.ChatResponse{
			OutputText:   text,
			FinishReason: "stop",
			Usage:        llm.ChatUsage{InputTokens: 10, OutputTokens: 10, TotalTokens: 20},
		}, nil
	}
}

func baseSettings() *Settings {
	s := NewSettings()
	s.EnabledProviders = []string{"openai", "anthropic"}
	s.DefaultProvider = "openai"
	return s
}

func baseRequest() *LLMRequest {
	return &LLMRequest{
		RequestID: "r1",
		Model:     "gpt-4o",
		Messages:  []types.Message{types.NewUserMessage("hi")},
	}
}

func TestRouter_Generate_HappyPath(t *testing.T) {
	t.Parallel()

	openai := &fakeProvider{name: "openai", completionFn: okResponse("hello")}
	router := NewRouter(baseSettings(), map[string]llm.Provider{"openai": openai}, nil, nil)

	resp, err := router.Generate(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.OutputText)
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, 1, openai.calls)
}

func TestRouter_Generate_FallsBackOnRetryableError(t *testing.T) {
	t.Parallel()

	openai := &fakeProvider{name: "openai", completionFn: func(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
		return nil, types.NewError(types.ErrCodeRateLimit, "slow down")
	}}
	anthropic := &fakeProvider{name: "anthropic", completionFn: okResponse("from anthropic")}

	router := NewRouter(baseSettings(), map[string]llm.Provider{"openai": openai, "anthropic": anthropic}, nil, nil)

	resp, err := router.Generate(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, "anthropic", resp.Provider)
	assert.Equal(t, 1, openai.calls)
	assert.Equal(t, 1, anthropic.calls)
}

func TestRouter_Generate_NonRetryableStopsImmediately(t *testing.T) {
	t.Parallel()

	openai := &fakeProvider{name: "openai", completionFn: func(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
		return nil, types.NewError(types.ErrCodeAuth, "bad key")
	}}
	anthropic := &fakeProvider{name: "anthropic", completionFn: okResponse("never reached")}

	router := NewRouter(baseSettings(), map[string]llm.Provider{"openai": openai, "anthropic": anthropic}, nil, nil)

	_, err := router.Generate(context.Background(), baseRequest())
	require.Error(t, err)
	typed, ok := err.(*types.Error)
	require.True(t, ok)
	assert.Equal(t, types.ErrCodeAuth, typed.Code)
	assert.Equal(t, 0, anthropic.calls)
}

func TestRouter_Generate_PreBudgetRejectsOversizedMaxTokens(t *testing.T) {
	t.Parallel()

	settings := baseSettings()
	settings.MaxTokensPerRequest = 100
	openai := &fakeProvider{name: "openai", completionFn: okResponse("x")}
	router := NewRouter(settings, map[string]llm.Provider{"openai": openai}, nil, nil)

	req := baseRequest()
	req.MaxOutputTokens = 1000

	_, err := router.Generate(context.Background(), req)
	require.Error(t, err)
	typed := err.(*types.Error)
	assert.Equal(t, types.ErrCodeBudgetExceeded, typed.Code)
	assert.Equal(t, 0, openai.calls)
}

func TestRouter_Generate_PostBudgetDiscardsOverCostResponse(t *testing.T) {
	t.Parallel()

	settings := baseSettings()
	settings.MaxCostUSDPerRequest = 0.00001

	openai := &fakeProvider{name: "openai", completionFn: func(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
		return &llm.ChatResponse{
			OutputText: "expensive",
			Usage:      llm.ChatUsage{InputTokens: 100000, OutputTokens: 100000, TotalTokens: 200000},
		}, nil
	}}
	router := NewRouter(settings, map[string]llm.Provider{"openai": openai}, nil, nil)
	router.settings.MaxTokensPerRequest = 1_000_000

	_, err := router.Generate(context.Background(), baseRequest())
	require.Error(t, err)
	typed := err.(*types.Error)
	assert.Equal(t, types.ErrCodeBudgetExceeded, typed.Code)
}

func TestRouter_Generate_CacheHitSkipsProviderCall(t *testing.T) {
	t.Parallel()

	openai := &fakeProvider{name: "openai", completionFn: okResponse("cached result")}
	router := NewRouter(baseSettings(), map[string]llm.Provider{"openai": openai}, nil, nil)

	req := baseRequest()
	req.Metadata.Cacheable = true

	first, err := router.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "cached result", first.OutputText)
	assert.Equal(t, 1, openai.calls)

	second, err := router.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "cached result", second.OutputText)
	assert.Equal(t, 1, openai.calls, "second call should be served from cache, not the provider")
}

func TestRouter_Generate_LatencyCircuitBreakSkipsSlowProvider(t *testing.T) {
	t.Parallel()

	settings := baseSettings()
	settings.RequestTimeoutMS = 100 // 80% threshold = 80ms

	openai := &fakeProvider{name: "openai", completionFn: okResponse("fast")}
	anthropic := &fakeProvider{name: "anthropic", completionFn: okResponse("slow")}

	router := NewRouter(settings, map[string]llm.Provider{"openai": openai, "anthropic": anthropic}, nil, nil)
	router.latency.record("anthropic", 95*time.Millisecond)
	settings.DefaultProvider = "anthropic"
	settings.EnabledProviders = []string{"anthropic", "openai"}

	resp, err := router.Generate(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, "openai", resp.Provider, "expected anthropic skipped by the latency circuit-break")
}

func TestRouter_Generate_NoProvidersEnabled(t *testing.T) {
	t.Parallel()

	settings := NewSettings()
	router := NewRouter(settings, map[string]llm.Provider{}, nil, nil)

	_, err := router.Generate(context.Background(), baseRequest())
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeProviderUnavailable, err.(*types.Error).Code)
}

func TestRouter_Generate_ConcurrentCacheableCallsCollapseViaSingleflight(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	openai := &fakeProvider{name: "openai", completionFn: func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return &llm.ChatResponse{OutputText: "once", Usage: llm.ChatUsage{InputTokens: 1, OutputTokens: 1, TotalTokens: 2}}, nil
	}}
	router := NewRouter(baseSettings(), map[string]llm.Provider{"openai": openai}, nil, nil)

	req := baseRequest()
	req.Metadata.Cacheable = true

	results := make(chan *LLMResponse, 2)
	for i := 0; i < 2; i++ {
		go func() {
			resp, err := router.Generate(context.Background(), req)
			require.NoError(t, err)
			results <- resp
		}()
	}

	<-started
	close(release)

	first := <-results
	second := <-results
	assert.Equal(t, "once", first.OutputText)
	assert.Equal(t, "once", second.OutputText)
	assert.Equal(t, 1, openai.calls, "concurrent identical cacheable calls must collapse into one upstream call")
}
