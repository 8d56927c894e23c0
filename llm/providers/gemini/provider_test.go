package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	llmpkg "github.com/arclight/llmgateway/llm"
	"github.com/arclight/llmgateway/llm/providers"
	"github.com/arclight/llmgateway/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_Defaults(t *testing.T) {
	p := New(providers.GeminiConfig{}, zap.NewNop())
	assert.Equal(t, "gemini", p.Name())
	assert.True(t, p.Capabilities().SupportsTools)
	assert.True(t, p.Capabilities().SupportsStreaming)
	assert.Equal(t, "https://generativelanguage.googleapis.com", p.cfg.BaseURL)
	assert.Equal(t, "gemini-3-pro", p.cfg.Model)
}

func TestToolCallID_Deterministic(t *testing.T) {
	args := map[string]any{"city": "Tokyo", "unit": "celsius"}
	id1 := toolCallID("get_weather", args)
	id2 := toolCallID("get_weather", args)
	assert.Equal(t, id1, id2, "same (name, arguments) must produce the same id")
}

func TestToolCallID_DiffersByArgs(t *testing.T) {
	id1 := toolCallID("get_weather", map[string]any{"city": "Tokyo"})
	id2 := toolCallID("get_weather", map[string]any{"city": "Osaka"})
	assert.NotEqual(t, id1, id2)
}

func TestConvertContents_SystemMessageExtracted(t *testing.T) {
	msgs := []llmpkg.Message{
		{Role: llmpkg.RoleSystem, Content: "be terse"},
		{Role: llmpkg.RoleUser, Content: "hi"},
	}
	system, contents := convertContents(msgs)
	require.NotNil(t, system)
	assert.Equal(t, "be terse", system.Parts[0].Text)
	require.Len(t, contents, 1)
	assert.Equal(t, "user", contents[0].Role)
}

func TestConvertContents_AssistantRenamedToModel(t *testing.T) {
	msgs := []llmpkg.Message{{Role: llmpkg.RoleAssistant, Content: "hello"}}
	_, contents := convertContents(msgs)
	require.Len(t, contents, 1)
	assert.Equal(t, "model", contents[0].Role)
}

func TestProvider_Completion_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(geminiResponse{
			ResponseID: "resp-1",
			Candidates: []geminiCandidate{
				{FinishReason: "STOP", Content: geminiContent{Role: "model", Parts: []geminiPart{{Text: "hi there"}}}},
			},
			UsageMetadata: &geminiUsageMetadata{PromptTokenCount: 3, CandidatesTokenCount: 2, TotalTokenCount: 5},
		})
	}))
	t.Cleanup(server.Close)

	p := New(providers.GeminiConfig{BaseProviderConfig: providers.BaseProviderConfig{APIKey: "test-key", BaseURL: server.URL}}, zap.NewNop())
	resp, err := p.Completion(context.Background(), &llmpkg.ChatRequest{
		Messages: []llmpkg.Message{{Role: llmpkg.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.OutputText)
	assert.Equal(t, 5, resp.Usage.TotalTokens)
}

func TestProvider_Completion_ToolCallGetsDeterministicID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(geminiResponse{
			Candidates: []geminiCandidate{
				{FinishReason: "STOP", Content: geminiContent{Role: "model", Parts: []geminiPart{
					{FunctionCall: &geminiFunctionCall{Name: "get_weather", Args: map[string]any{"city": "Tokyo"}}},
				}}},
			},
		})
	}))
	t.Cleanup(server.Close)

	p := New(providers.GeminiConfig{BaseProviderConfig: providers.BaseProviderConfig{APIKey: "k", BaseURL: server.URL}}, zap.NewNop())
	resp, err := p.Completion(context.Background(), &llmpkg.ChatRequest{
		Messages: []llmpkg.Message{{Role: llmpkg.RoleUser, Content: "weather?"}},
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, toolCallID("get_weather", map[string]any{"city": "Tokyo"}), resp.ToolCalls[0].ID)
}

func TestProvider_Completion_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limit exceeded"}}`)
	}))
	t.Cleanup(server.Close)

	p := New(providers.GeminiConfig{BaseProviderConfig: providers.BaseProviderConfig{APIKey: "k", BaseURL: server.URL}}, zap.NewNop())
	_, err := p.Completion(context.Background(), &llmpkg.ChatRequest{
		Messages: []llmpkg.Message{{Role: llmpkg.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	var typed *types.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, types.ErrCodeRateLimit, typed.Code)
}

func TestProvider_HealthCheck_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"models":[]}`)
	}))
	t.Cleanup(server.Close)

	p := New(providers.GeminiConfig{BaseProviderConfig: providers.BaseProviderConfig{APIKey: "k", BaseURL: server.URL}}, zap.NewNop())
	status, err := p.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)
}
