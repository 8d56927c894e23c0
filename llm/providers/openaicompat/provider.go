// Package openaicompat implements Provider A: the OpenAI Chat
// Completions wire format (/v1/chat/completions), used as the base any
// OpenAI-wire-compatible vendor embeds.
package openaicompat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/arclight/llmgateway/internal/tlsutil"
	llmpkg "github.com/arclight/llmgateway/llm"
	"github.com/arclight/llmgateway/llm/middleware"
	"github.com/arclight/llmgateway/llm/providers"
	"github.com/arclight/llmgateway/types"
	"go.uber.org/zap"
)

// Config configures a Provider instance.
type Config struct {
	ProviderName   string
	APIKey         string
	BaseURL        string
	DefaultModel   string
	Timeout        time.Duration
	EndpointPath   string // default "/v1/chat/completions"
	ModelsEndpoint string // default "/v1/models"
	BuildHeaders   func(req *http.Request, apiKey string)
}

// Provider implements llmpkg.Provider against the OpenAI Chat
// Completions wire format.
type Provider struct {
	Cfg           Config
	Client        *http.Client
	Logger        *zap.Logger
	RewriterChain *middleware.RewriterChain
}

// New constructs a Provider, filling in OpenAI's well-known defaults.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/v1/chat/completions"
	}
	if cfg.ModelsEndpoint == "" {
		cfg.ModelsEndpoint = "/v1/models"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		Cfg:    cfg,
		Client: tlsutil.SecureHTTPClient(cfg.Timeout),
		Logger: logger,
		RewriterChain: middleware.NewRewriterChain(
			middleware.NewEmptyToolsCleaner(),
		),
	}
}

func (p *Provider) Name() string { return p.Cfg.ProviderName }

func (p *Provider) Capabilities() llmpkg.Capabilities {
	return llmpkg.Capabilities{SupportsTools: true, SupportsStreaming: true}
}

// SetBuildHeaders lets a vendor-specific wrapper (e.g. openai.Provider,
// which adds an Organization header) override header construction.
func (p *Provider) SetBuildHeaders(fn func(*http.Request, string)) {
	p.Cfg.BuildHeaders = fn
}

func (p *Provider) buildHeaders(req *http.Request, apiKey string) {
	if p.Cfg.BuildHeaders != nil {
		p.Cfg.BuildHeaders(req, apiKey)
		return
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
}

func (p *Provider) endpoint(path string) string {
	return fmt.Sprintf("%s%s", strings.TrimRight(p.Cfg.BaseURL, "/"), path)
}

// HealthCheck probes the models endpoint.
func (p *Provider) HealthCheck(ctx context.Context) (*llmpkg.HealthStatus, error) {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint(p.Cfg.ModelsEndpoint), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq, p.Cfg.APIKey)

	resp, err := p.Client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &llmpkg.HealthStatus{Healthy: false, Latency: latency}, err
	}
	defer providers.SafeCloseBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		msg := providers.ReadErrorMessage(resp.Body)
		return &llmpkg.HealthStatus{Healthy: false, Latency: latency},
			fmt.Errorf("%s health check failed: status=%d msg=%s", p.Cfg.ProviderName, resp.StatusCode, msg)
	}
	return &llmpkg.HealthStatus{Healthy: true, Latency: latency}, nil
}

// --- wire shapes ---

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	Name       string         `json:"name,omitempty"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type chatToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatToolDecl `json:"function"`
}

type chatToolDecl struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []chatTool    `json:"tools,omitempty"`
	ToolChoice  any           `json:"tool_choice,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	TopP        float32       `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatChoice struct {
	Index        int          `json:"index"`
	FinishReason string       `json:"finish_reason"`
	Message      *chatMessage `json:"message,omitempty"`
	Delta        *chatMessage `json:"delta,omitempty"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage,omitempty"`
}

func toWireMessages(msgs []llmpkg.Message) []chatMessage {
	out := make([]chatMessage, 0, len(msgs))
	for _, m := range msgs {
		wm := chatMessage{
			Role:       string(m.Role),
			Content:    m.TextContent(),
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		if len(m.ToolCalls) > 0 {
			wm.ToolCalls = make([]chatToolCall, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				encoded, _ := json.Marshal(string(tc.Arguments))
				wm.ToolCalls = append(wm.ToolCalls, chatToolCall{
					ID: tc.ID, Type: "function",
					Function: chatFunction{Name: tc.Name, Arguments: encoded},
				})
			}
		}
		out = append(out, wm)
	}
	return out
}

func toWireTools(tools []llmpkg.ToolSpec) []chatTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]chatTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, chatTool{
			Type: "function",
			Function: chatToolDecl{
				Name: t.Name, Description: t.Description, Parameters: t.JSONSchema,
			},
		})
	}
	return out
}

// toolCallsFromWire implements the spec's Provider A rule: Arguments
// arrives as a JSON-encoded string, which is unquoted and parsed as JSON;
// on parse failure, wrap the raw string as {"raw": ...} rather than
// failing the whole response.
func toolCallsFromWire(wire []chatToolCall) []llmpkg.ToolCall {
	if len(wire) == 0 {
		return nil
	}
	out := make([]llmpkg.ToolCall, 0, len(wire))
	for _, tc := range wire {
		args := tc.Function.Arguments
		var encoded string
		if err := json.Unmarshal(args, &encoded); err == nil {
			args = json.RawMessage(encoded)
		}
		if len(args) == 0 || !json.Valid(args) {
			raw, _ := json.Marshal(map[string]string{"raw": string(args)})
			args = raw
		}
		out = append(out, llmpkg.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}
	return out
}

func buildChatRequest(model string, req *llmpkg.ChatRequest) chatRequest {
	body := chatRequest{
		Model:       model,
		Messages:    toWireMessages(req.Messages),
		Tools:       toWireTools(req.Tools),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
	}
	if req.ToolChoice != "" {
		body.ToolChoice = req.ToolChoice
	}
	return body
}

// Completion performs a non-streaming chat completion.
func (p *Provider) Completion(ctx context.Context, req *llmpkg.ChatRequest) (*llmpkg.ChatResponse, error) {
	rewritten, err := p.RewriterChain.Execute(ctx, req)
	if err != nil {
		return nil, types.NewError(types.ErrCodeBadRequest, fmt.Sprintf("request rewrite failed: %v", err)).WithProvider(p.Name())
	}
	req = rewritten

	model := providers.ChooseModel(req, p.Cfg.DefaultModel)
	body := buildChatRequest(model, req)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(p.Cfg.EndpointPath), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq, p.Cfg.APIKey)

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return nil, types.ClassifyProviderError(p.Name(), 0, err.Error())
	}
	defer providers.SafeCloseBody(resp.Body)

	if resp.StatusCode >= 400 {
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, types.ClassifyProviderError(p.Name(), resp.StatusCode, msg)
	}

	var wire chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, types.ClassifyProviderError(p.Name(), 0, err.Error())
	}

	return toChatResponse(wire, p.Name(), model), nil
}

func toChatResponse(wire chatResponse, provider, model string) *llmpkg.ChatResponse {
	resp := &llmpkg.ChatResponse{ID: wire.ID, Provider: provider, ProviderModel: model}
	if len(wire.Choices) > 0 {
		c := wire.Choices[0]
		resp.FinishReason = c.FinishReason
		if c.Message != nil {
			resp.OutputText = c.Message.Content
			resp.ToolCalls = toolCallsFromWire(c.Message.ToolCalls)
		}
	}
	if wire.Usage != nil {
		resp.Usage = llmpkg.ChatUsage{
			InputTokens: wire.Usage.PromptTokens, OutputTokens: wire.Usage.CompletionTokens,
			TotalTokens: wire.Usage.TotalTokens,
		}
		if resp.Usage.TotalTokens == 0 {
			resp.Usage.TotalTokens = resp.Usage.InputTokens + resp.Usage.OutputTokens
		}
	}
	return resp
}

// Stream performs a streaming chat completion via SSE.
func (p *Provider) Stream(ctx context.Context, req *llmpkg.ChatRequest) (<-chan llmpkg.StreamChunk, error) {
	rewritten, err := p.RewriterChain.Execute(ctx, req)
	if err != nil {
		return nil, types.NewError(types.ErrCodeBadRequest, fmt.Sprintf("request rewrite failed: %v", err)).WithProvider(p.Name())
	}
	req = rewritten

	model := providers.ChooseModel(req, p.Cfg.DefaultModel)
	body := buildChatRequest(model, req)
	body.Stream = true

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(p.Cfg.EndpointPath), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq, p.Cfg.APIKey)

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return nil, types.ClassifyProviderError(p.Name(), 0, err.Error())
	}
	if resp.StatusCode >= 400 {
		defer providers.SafeCloseBody(resp.Body)
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, types.ClassifyProviderError(p.Name(), resp.StatusCode, msg)
	}

	return StreamSSE(ctx, resp.Body, p.Name()), nil
}

// StreamSSE parses an OpenAI-style SSE body into a StreamChunk channel.
// Exported so vendor wrappers embedding Provider can reuse it directly.
func StreamSSE(ctx context.Context, body io.ReadCloser, providerName string) <-chan llmpkg.StreamChunk {
	ch := make(chan llmpkg.StreamChunk)
	go func() {
		defer providers.SafeCloseBody(body)
		defer close(ch)
		reader := bufio.NewReader(body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					send(ctx, ch, llmpkg.StreamChunk{Err: types.ClassifyProviderError(providerName, 0, err.Error())})
				}
				return
			}
			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				send(ctx, ch, llmpkg.StreamChunk{IsFinal: true})
				return
			}

			var wire chatResponse
			if err := json.Unmarshal([]byte(data), &wire); err != nil {
				send(ctx, ch, llmpkg.StreamChunk{Err: types.ClassifyProviderError(providerName, 0, err.Error())})
				return
			}

			for _, choice := range wire.Choices {
				chunk := llmpkg.StreamChunk{}
				if choice.Delta != nil {
					chunk.DeltaText = choice.Delta.Content
					chunk.DeltaToolCalls = toolCallsFromWire(choice.Delta.ToolCalls)
				}
				if wire.Usage != nil {
					u := llmpkg.ChatUsage{
						InputTokens: wire.Usage.PromptTokens, OutputTokens: wire.Usage.CompletionTokens,
						TotalTokens: wire.Usage.TotalTokens,
					}
					chunk.Usage = &u
				}
				if !send(ctx, ch, chunk) {
					return
				}
			}
		}
	}()
	return ch
}

func send(ctx context.Context, ch chan<- llmpkg.StreamChunk, chunk llmpkg.StreamChunk) bool {
	select {
	case <-ctx.Done():
		return false
	case ch <- chunk:
		return true
	}
}
