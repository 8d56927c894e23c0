// Package claude implements Provider B (spec §4.4): the Anthropic
// Messages API (/v1/messages). There is no shared base to embed here:
// Claude authenticates with x-api-key rather than Bearer, carries
// system as a top-level field instead of a message role, and encodes
// content as an array of typed blocks (text / tool_use / tool_result)
// rather than a flat string — distinct enough from both openaicompat
// and gemini to warrant its own direct implementation.
package claude

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
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

const defaultAnthropicVersion = "2023-06-01"

// Provider implements Provider B against the Anthropic Messages API.
type Provider struct {
	cfg           providers.ClaudeConfig
	client        *http.Client
	logger        *zap.Logger
	rewriterChain *middleware.RewriterChain
}

// New creates a Provider B instance.
func New(cfg providers.ClaudeConfig, logger *zap.Logger) *Provider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-6"
	}
	if cfg.AnthropicVersion == "" {
		cfg.AnthropicVersion = defaultAnthropicVersion
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		logger: logger,
		rewriterChain: middleware.NewRewriterChain(
			middleware.NewEmptyToolsCleaner(),
		),
	}
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) Capabilities() llmpkg.Capabilities {
	return llmpkg.Capabilities{SupportsTools: true, SupportsStreaming: true}
}

func (p *Provider) buildHeaders(req *http.Request) {
	req.Header.Set("x-api-key", p.cfg.APIKey)
	req.Header.Set("anthropic-version", p.cfg.AnthropicVersion)
	req.Header.Set("Content-Type", "application/json")
}

func (p *Provider) endpoint(path string) string {
	return fmt.Sprintf("%s%s", strings.TrimRight(p.cfg.BaseURL, "/"), path)
}

// HealthCheck probes the models-list endpoint.
func (p *Provider) HealthCheck(ctx context.Context) (*llmpkg.HealthStatus, error) {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint("/v1/models"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &llmpkg.HealthStatus{Healthy: false, Latency: latency}, err
	}
	defer providers.SafeCloseBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		msg := providers.ReadErrorMessage(resp.Body)
		return &llmpkg.HealthStatus{Healthy: false, Latency: latency},
			fmt.Errorf("anthropic health check failed: status=%d msg=%s", resp.StatusCode, msg)
	}
	return &llmpkg.HealthStatus{Healthy: true, Latency: latency}, nil
}

// --- wire shapes ---

type contentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type wireMessage struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type toolDecl struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

type messagesRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []wireMessage `json:"messages"`
	Tools       []toolDecl    `json:"tools,omitempty"`
	ToolChoice  any           `json:"tool_choice,omitempty"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float32       `json:"temperature,omitempty"`
	TopP        float32       `json:"top_p,omitempty"`
	StopSeqs    []string      `json:"stop_sequences,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type messagesResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Role       string         `json:"role"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      usage          `json:"usage"`
}

// toWireMessages translates messages into Claude's content-block array
// shape, pulling system messages out into a separate string per §4.4's
// Provider B rule (system is never part of the messages array).
func toWireMessages(msgs []llmpkg.Message) (system string, out []wireMessage) {
	var systemParts []string
	for _, m := range msgs {
		if m.Role == llmpkg.RoleSystem {
			systemParts = append(systemParts, m.TextContent())
			continue
		}

		if m.Role == llmpkg.RoleTool {
			out = append(out, wireMessage{
				Role: "user",
				Content: []contentBlock{{
					Type: "tool_result", ToolUseID: m.ToolCallID, Content: m.Content,
				}},
			})
			continue
		}

		var blocks []contentBlock
		if text := m.TextContent(); text != "" {
			blocks = append(blocks, contentBlock{Type: "text", Text: text})
		}
		for _, tc := range m.ToolCalls {
			blocks = append(blocks, contentBlock{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: tc.Arguments})
		}
		if len(blocks) == 0 {
			continue
		}
		out = append(out, wireMessage{Role: string(m.Role), Content: blocks})
	}
	return strings.Join(systemParts, "\n\n"), out
}

func toWireTools(tools []llmpkg.ToolSpec) []toolDecl {
	if len(tools) == 0 {
		return nil
	}
	out := make([]toolDecl, 0, len(tools))
	for _, t := range tools {
		out = append(out, toolDecl{Name: t.Name, Description: t.Description, InputSchema: t.JSONSchema})
	}
	return out
}

// toolCallsFromBlocks implements §4.4's Provider B rule: tool_use blocks
// carry {id, name, input}; input is used directly as Arguments since it
// is already a decoded JSON object, and id is passed through verbatim.
func toolCallsFromBlocks(blocks []contentBlock) []llmpkg.ToolCall {
	var out []llmpkg.ToolCall
	for _, b := range blocks {
		if b.Type != "tool_use" {
			continue
		}
		out = append(out, llmpkg.ToolCall{ID: b.ID, Name: b.Name, Arguments: b.Input})
	}
	return out
}

func buildRequest(model string, req *llmpkg.ChatRequest) messagesRequest {
	system, messages := toWireMessages(req.Messages)
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	body := messagesRequest{
		Model: model, System: system, Messages: messages, Tools: toWireTools(req.Tools),
		MaxTokens: maxTokens, Temperature: req.Temperature, TopP: req.TopP, StopSeqs: req.Stop,
	}
	if req.ToolChoice != "" {
		body.ToolChoice = map[string]string{"type": req.ToolChoice}
	}
	return body
}

func toChatResponse(wire messagesResponse) *llmpkg.ChatResponse {
	resp := &llmpkg.ChatResponse{
		ID: wire.ID, Provider: "anthropic", ProviderModel: wire.Model,
		FinishReason: wire.StopReason,
		ToolCalls:    toolCallsFromBlocks(wire.Content),
		Usage: llmpkg.ChatUsage{
			InputTokens: wire.Usage.InputTokens, OutputTokens: wire.Usage.OutputTokens,
			TotalTokens: wire.Usage.InputTokens + wire.Usage.OutputTokens,
		},
	}
	for _, b := range wire.Content {
		if b.Type == "text" {
			resp.OutputText += b.Text
		}
	}
	return resp
}

// Completion performs a non-streaming call to /v1/messages.
func (p *Provider) Completion(ctx context.Context, req *llmpkg.ChatRequest) (*llmpkg.ChatResponse, error) {
	rewritten, err := p.rewriterChain.Execute(ctx, req)
	if err != nil {
		return nil, types.NewError(types.ErrCodeBadRequest, fmt.Sprintf("request rewrite failed: %v", err)).WithProvider(p.Name())
	}
	req = rewritten

	model := providers.ChooseModel(req, p.cfg.Model)
	body := buildRequest(model, req)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint("/v1/messages"), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, types.ClassifyProviderError(p.Name(), 0, err.Error())
	}
	defer providers.SafeCloseBody(resp.Body)

	if resp.StatusCode >= 400 {
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, types.ClassifyProviderError(p.Name(), resp.StatusCode, msg)
	}

	var wire messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, types.ClassifyProviderError(p.Name(), 0, err.Error())
	}

	return toChatResponse(wire), nil
}

// --- streaming event shapes ---

type sseEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`
	ContentBlock *contentBlock `json:"content_block"`
	Usage        *usage        `json:"usage"`
}

// Stream performs a streaming call to /v1/messages, accumulating
// tool_use input across content_block_delta input_json_delta events
// (Claude streams tool arguments as a JSON string split across deltas).
func (p *Provider) Stream(ctx context.Context, req *llmpkg.ChatRequest) (<-chan llmpkg.StreamChunk, error) {
	rewritten, err := p.rewriterChain.Execute(ctx, req)
	if err != nil {
		return nil, types.NewError(types.ErrCodeBadRequest, fmt.Sprintf("request rewrite failed: %v", err)).WithProvider(p.Name())
	}
	req = rewritten

	model := providers.ChooseModel(req, p.cfg.Model)
	body := buildRequest(model, req)
	body.Stream = true

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint("/v1/messages"), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, types.ClassifyProviderError(p.Name(), 0, err.Error())
	}
	if resp.StatusCode >= 400 {
		defer providers.SafeCloseBody(resp.Body)
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, types.ClassifyProviderError(p.Name(), resp.StatusCode, msg)
	}

	ch := make(chan llmpkg.StreamChunk)
	go func() {
		defer providers.SafeCloseBody(resp.Body)
		defer close(ch)

		reader := bufio.NewReader(resp.Body)
		pendingToolUse := map[int]*contentBlock{}
		pendingArgs := map[int]*strings.Builder{}

		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

			var ev sseEvent
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				select {
				case <-ctx.Done():
				case ch <- llmpkg.StreamChunk{Err: types.ClassifyProviderError(p.Name(), 0, err.Error())}:
				}
				return
			}

			switch ev.Type {
			case "content_block_start":
				if ev.ContentBlock != nil && ev.ContentBlock.Type == "tool_use" {
					block := *ev.ContentBlock
					pendingToolUse[ev.Index] = &block
					pendingArgs[ev.Index] = &strings.Builder{}
				}
			case "content_block_delta":
				switch ev.Delta.Type {
				case "text_delta":
					if !send(ctx, ch, llmpkg.StreamChunk{DeltaText: ev.Delta.Text}) {
						return
					}
				case "input_json_delta":
					if b, ok := pendingArgs[ev.Index]; ok {
						b.WriteString(ev.Delta.PartialJSON)
					}
				}
			case "content_block_stop":
				if block, ok := pendingToolUse[ev.Index]; ok {
					args := json.RawMessage(pendingArgs[ev.Index].String())
					if !json.Valid(args) {
						args, _ = json.Marshal(map[string]string{"raw": string(args)})
					}
					tc := llmpkg.ToolCall{ID: block.ID, Name: block.Name, Arguments: args}
					delete(pendingToolUse, ev.Index)
					delete(pendingArgs, ev.Index)
					if !send(ctx, ch, llmpkg.StreamChunk{DeltaToolCalls: []llmpkg.ToolCall{tc}}) {
						return
					}
				}
			case "message_delta":
				chunk := llmpkg.StreamChunk{}
				if ev.Usage != nil {
					u := llmpkg.ChatUsage{OutputTokens: ev.Usage.OutputTokens, TotalTokens: ev.Usage.OutputTokens}
					chunk.Usage = &u
				}
				if !send(ctx, ch, chunk) {
					return
				}
			case "message_stop":
				send(ctx, ch, llmpkg.StreamChunk{IsFinal: true})
				return
			}
		}
	}()
	return ch, nil
}

func send(ctx context.Context, ch chan<- llmpkg.StreamChunk, chunk llmpkg.StreamChunk) bool {
	select {
	case <-ctx.Done():
		return false
	case ch <- chunk:
		return true
	}
}
