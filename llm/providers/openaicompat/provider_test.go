package openaicompat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	llmpkg "github.com/arclight/llmgateway/llm"
	"github.com/arclight/llmgateway/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_Defaults(t *testing.T) {
	p := New(Config{ProviderName: "test"}, nil)
	require.NotNil(t, p)
	assert.Equal(t, "/v1/chat/completions", p.Cfg.EndpointPath)
	assert.Equal(t, "/v1/models", p.Cfg.ModelsEndpoint)
	assert.Equal(t, "test", p.Name())
	assert.True(t, p.Capabilities().SupportsTools)
	assert.True(t, p.Capabilities().SupportsStreaming)
	assert.NotNil(t, p.Client)
	assert.NotNil(t, p.Logger)
	assert.NotNil(t, p.RewriterChain)
}

func TestNew_CustomEndpoints(t *testing.T) {
	p := New(Config{
		ProviderName:   "custom",
		EndpointPath:   "/api/chat",
		ModelsEndpoint: "/api/models",
	}, zap.NewNop())
	assert.Equal(t, "/api/chat", p.Cfg.EndpointPath)
	assert.Equal(t, "/api/models", p.Cfg.ModelsEndpoint)
}

func TestNew_TimeoutDefault(t *testing.T) {
	p := New(Config{ProviderName: "t"}, nil)
	assert.Equal(t, 30*time.Second, p.Client.Timeout)
}

func TestNew_TimeoutCustom(t *testing.T) {
	p := New(Config{ProviderName: "t", Timeout: 10 * time.Second}, nil)
	assert.Equal(t, 10*time.Second, p.Client.Timeout)
}

func TestSetBuildHeaders(t *testing.T) {
	p := New(Config{ProviderName: "test", APIKey: "key"}, nil)

	called := false
	p.SetBuildHeaders(func(r *http.Request, apiKey string) {
		called = true
		r.Header.Set("X-Custom", "yes")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	p.buildHeaders(req, "key")
	assert.True(t, called)
	assert.Equal(t, "yes", req.Header.Get("X-Custom"))
}

func TestProvider_Completion_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.Header.Get("Authorization"), "Bearer test-key")

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse{
			ID:    "resp-1",
			Model: "gpt-test",
			Choices: []chatChoice{
				{Index: 0, FinishReason: "stop", Message: &chatMessage{Role: "assistant", Content: "Hello!"}},
			},
			Usage: &chatUsage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7},
		})
	}))
	t.Cleanup(server.Close)

	p := New(Config{ProviderName: "test", APIKey: "test-key", BaseURL: server.URL}, zap.NewNop())

	resp, err := p.Completion(context.Background(), &llmpkg.ChatRequest{
		Messages: []llmpkg.Message{{Role: llmpkg.RoleUser, Content: "Hi"}},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "resp-1", resp.ID)
	assert.Equal(t, "test", resp.Provider)
	assert.Equal(t, "Hello!", resp.OutputText)
	assert.Equal(t, 7, resp.Usage.TotalTokens)
}

func TestProvider_Completion_UsageBackfilledWhenMissingTotal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse{
			ID: "r1",
			Choices: []chatChoice{
				{Index: 0, FinishReason: "stop", Message: &chatMessage{Role: "assistant", Content: "ok"}},
			},
			Usage: &chatUsage{PromptTokens: 3, CompletionTokens: 4},
		})
	}))
	t.Cleanup(server.Close)

	p := New(Config{ProviderName: "test", APIKey: "key", BaseURL: server.URL}, zap.NewNop())
	resp, err := p.Completion(context.Background(), &llmpkg.ChatRequest{
		Messages: []llmpkg.Message{{Role: llmpkg.RoleUser, Content: "Hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 7, resp.Usage.TotalTokens)
}

func TestProvider_Completion_HTTPError(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantCode   types.ErrorCode
	}{
		{name: "401 unauthorized", statusCode: http.StatusUnauthorized, body: `{"error":{"message":"invalid api key"}}`, wantCode: types.ErrCodeAuth},
		{name: "429 rate limited", statusCode: http.StatusTooManyRequests, body: `{"error":{"message":"slow down"}}`, wantCode: types.ErrCodeRateLimit},
		{name: "500 server error", statusCode: http.StatusInternalServerError, body: `{"error":{"message":"oops"}}`, wantCode: types.ErrCodeProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				fmt.Fprint(w, tt.body)
			}))
			t.Cleanup(server.Close)

			p := New(Config{ProviderName: "test", APIKey: "key", BaseURL: server.URL}, zap.NewNop())

			_, err := p.Completion(context.Background(), &llmpkg.ChatRequest{
				Messages: []llmpkg.Message{{Role: llmpkg.RoleUser, Content: "Hi"}},
			})
			require.Error(t, err)
			var typed *types.Error
			require.ErrorAs(t, err, &typed)
			assert.Equal(t, tt.wantCode, typed.Code)
		})
	}
}

func TestProvider_Completion_ToolCallArgumentParseFailureWrapsRaw(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"r1","choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","tool_calls":[{"id":"call_1","type":"function","function":{"name":"lookup","arguments":"not json"}}]}}]}`)
	}))
	t.Cleanup(server.Close)

	p := New(Config{ProviderName: "test", APIKey: "key", BaseURL: server.URL}, zap.NewNop())
	resp, err := p.Completion(context.Background(), &llmpkg.ChatRequest{
		Messages: []llmpkg.Message{{Role: llmpkg.RoleUser, Content: "Hi"}},
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	var wrapped map[string]string
	require.NoError(t, json.Unmarshal(resp.ToolCalls[0].Arguments, &wrapped))
	assert.Equal(t, "not json", wrapped["raw"])
}

func TestProvider_Stream_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)

		chunks := []chatResponse{
			{ID: "s1", Choices: []chatChoice{{Index: 0, Delta: &chatMessage{Role: "assistant", Content: "Hel"}}}},
			{ID: "s1", Choices: []chatChoice{{Index: 0, Delta: &chatMessage{Content: "lo"}}}},
			{ID: "s1", Choices: []chatChoice{{Index: 0, FinishReason: "stop", Delta: &chatMessage{}}}},
		}
		for _, c := range chunks {
			data, _ := json.Marshal(c)
			fmt.Fprintf(w, "data: %s\n\n", data)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(server.Close)

	p := New(Config{ProviderName: "test", APIKey: "key", BaseURL: server.URL}, zap.NewNop())

	ch, err := p.Stream(context.Background(), &llmpkg.ChatRequest{
		Messages: []llmpkg.Message{{Role: llmpkg.RoleUser, Content: "Hi"}},
	})
	require.NoError(t, err)

	var content string
	for chunk := range ch {
		require.Nil(t, chunk.Err)
		content += chunk.DeltaText
	}
	assert.Equal(t, "Hello", content)
}

func TestProvider_Stream_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limited"}}`)
	}))
	t.Cleanup(server.Close)

	p := New(Config{ProviderName: "test", APIKey: "key", BaseURL: server.URL}, zap.NewNop())

	_, err := p.Stream(context.Background(), &llmpkg.ChatRequest{
		Messages: []llmpkg.Message{{Role: llmpkg.RoleUser, Content: "Hi"}},
	})
	require.Error(t, err)
	var typed *types.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, types.ErrCodeRateLimit, typed.Code)
}

func TestProvider_Stream_ToolCallDelta(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunk := chatResponse{
			ID: "s1",
			Choices: []chatChoice{
				{Index: 0, Delta: &chatMessage{ToolCalls: []chatToolCall{
					{ID: "tc1", Type: "function", Function: chatFunction{Name: "calc", Arguments: json.RawMessage(`{"x":1}`)}},
				}}},
			},
		}
		data, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\ndata: [DONE]\n\n", data)
	}))
	t.Cleanup(server.Close)

	p := New(Config{ProviderName: "test", APIKey: "key", BaseURL: server.URL}, zap.NewNop())
	ch, err := p.Stream(context.Background(), &llmpkg.ChatRequest{
		Messages: []llmpkg.Message{{Role: llmpkg.RoleUser, Content: "Hi"}},
	})
	require.NoError(t, err)

	var toolCalls []llmpkg.ToolCall
	for chunk := range ch {
		require.Nil(t, chunk.Err)
		toolCalls = append(toolCalls, chunk.DeltaToolCalls...)
	}
	require.Len(t, toolCalls, 1)
	assert.Equal(t, "calc", toolCalls[0].Name)
	assert.Equal(t, "tc1", toolCalls[0].ID)
}

func TestProvider_HealthCheck_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[]}`)
	}))
	t.Cleanup(server.Close)

	p := New(Config{ProviderName: "test", APIKey: "key", BaseURL: server.URL}, zap.NewNop())
	status, err := p.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)
	assert.True(t, status.Latency >= 0)
}

func TestProvider_HealthCheck_Failure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key"}}`)
	}))
	t.Cleanup(server.Close)

	p := New(Config{ProviderName: "test", APIKey: "key", BaseURL: server.URL}, zap.NewNop())
	status, err := p.HealthCheck(context.Background())
	require.Error(t, err)
	assert.False(t, status.Healthy)
}
