// Package gemini implements Provider C (spec §4.4): Google's
// generateContent wire format. It talks directly to
// generativelanguage.googleapis.com rather than embedding openaicompat,
// since Gemini's request/response shape (contents/parts, x-goog-api-key
// auth, no tool-call id on the wire) diverges too far to share that base.
package gemini

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
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

// Provider implements Provider C against Gemini's generateContent API.
type Provider struct {
	cfg           providers.GeminiConfig
	client        *http.Client
	logger        *zap.Logger
	rewriterChain *middleware.RewriterChain
}

// New creates a Provider C instance.
func New(cfg providers.GeminiConfig, logger *zap.Logger) *Provider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-3-pro"
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

func (p *Provider) Name() string { return "gemini" }

func (p *Provider) Capabilities() llmpkg.Capabilities {
	return llmpkg.Capabilities{SupportsTools: true, SupportsStreaming: true}
}

func (p *Provider) buildHeaders(req *http.Request) {
	req.Header.Set("x-goog-api-key", p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
}

func (p *Provider) endpoint(model, action string) string {
	return fmt.Sprintf("%s/v1beta/models/%s:%s", strings.TrimRight(p.cfg.BaseURL, "/"), model, action)
}

// HealthCheck probes the models-list endpoint.
func (p *Provider) HealthCheck(ctx context.Context) (*llmpkg.HealthStatus, error) {
	start := time.Now()
	url := fmt.Sprintf("%s/v1beta/models", strings.TrimRight(p.cfg.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
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
			fmt.Errorf("gemini health check failed: status=%d msg=%s", resp.StatusCode, msg)
	}
	return &llmpkg.HealthStatus{Healthy: true, Latency: latency}, nil
}

// --- wire shapes ---

type geminiPart struct {
	Text             string                  `json:"text,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type geminiFunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiFunctionDeclaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDeclaration `json:"functionDeclarations"`
}

type geminiGenerationConfig struct {
	Temperature     float32  `json:"temperature,omitempty"`
	TopP            float32  `json:"topP,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	Tools             []geminiTool            `json:"tools,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
	Index        int           `json:"index"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate    `json:"candidates"`
	UsageMetadata *geminiUsageMetadata `json:"usageMetadata,omitempty"`
	ModelVersion  string               `json:"modelVersion,omitempty"`
	ResponseID    string               `json:"responseId,omitempty"`
}

// toolCallID synthesizes a deterministic tool-call id for Gemini's
// functionCall parts, which carry no id on the wire. Same (name,
// arguments) always produces the same id, so callers correlating a
// later tool-result message see a stable identifier across runs.
func toolCallID(name string, args map[string]any) string {
	canon, _ := json.Marshal(struct {
		Name string         `json:"name"`
		Args map[string]any `json:"args"`
	}{Name: name, Args: args})
	sum := sha256.Sum256(canon)
	return "gem_" + hex.EncodeToString(sum[:])[:16]
}

func convertContents(msgs []llmpkg.Message) (system *geminiContent, contents []geminiContent) {
	for _, m := range msgs {
		if m.Role == llmpkg.RoleSystem {
			text := m.TextContent()
			if system == nil {
				system = &geminiContent{Parts: []geminiPart{{Text: text}}}
			} else {
				system.Parts = append(system.Parts, geminiPart{Text: text})
			}
			continue
		}

		role := string(m.Role)
		if role == "assistant" {
			role = "model"
		}

		var parts []geminiPart
		if text := m.TextContent(); text != "" {
			parts = append(parts, geminiPart{Text: text})
		}
		for _, tc := range m.ToolCalls {
			var args map[string]any
			if err := json.Unmarshal(tc.Arguments, &args); err != nil {
				continue
			}
			parts = append(parts, geminiPart{FunctionCall: &geminiFunctionCall{Name: tc.Name, Args: args}})
		}
		if m.Role == llmpkg.RoleTool {
			var response map[string]any
			if err := json.Unmarshal([]byte(m.Content), &response); err != nil {
				response = map[string]any{"result": m.Content}
			}
			parts = append(parts, geminiPart{FunctionResponse: &geminiFunctionResponse{Name: m.Name, Response: response}})
			role = "user"
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, geminiContent{Role: role, Parts: parts})
	}
	return system, contents
}

func convertTools(tools []llmpkg.ToolSpec) []geminiTool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]geminiFunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, geminiFunctionDeclaration{Name: t.Name, Description: t.Description, Parameters: t.JSONSchema})
	}
	return []geminiTool{{FunctionDeclarations: decls}}
}

func buildRequest(req *llmpkg.ChatRequest) geminiRequest {
	system, contents := convertContents(req.Messages)
	body := geminiRequest{
		Contents:          contents,
		Tools:             convertTools(req.Tools),
		SystemInstruction: system,
	}
	if req.MaxTokens > 0 || req.Temperature > 0 || req.TopP > 0 || len(req.Stop) > 0 {
		body.GenerationConfig = &geminiGenerationConfig{
			Temperature: req.Temperature, TopP: req.TopP,
			MaxOutputTokens: req.MaxTokens, StopSequences: req.Stop,
		}
	}
	return body
}

func toChatResponse(wire geminiResponse, model string) *llmpkg.ChatResponse {
	resp := &llmpkg.ChatResponse{ID: wire.ResponseID, Provider: "gemini", ProviderModel: model}
	if len(wire.Candidates) > 0 {
		c := wire.Candidates[0]
		resp.FinishReason = c.FinishReason
		for _, part := range c.Content.Parts {
			if part.Text != "" {
				resp.OutputText += part.Text
			}
			if part.FunctionCall != nil {
				args, _ := json.Marshal(part.FunctionCall.Args)
				resp.ToolCalls = append(resp.ToolCalls, llmpkg.ToolCall{
					ID: toolCallID(part.FunctionCall.Name, part.FunctionCall.Args), Name: part.FunctionCall.Name, Arguments: args,
				})
			}
		}
	}
	if wire.UsageMetadata != nil {
		resp.Usage = llmpkg.ChatUsage{
			InputTokens: wire.UsageMetadata.PromptTokenCount, OutputTokens: wire.UsageMetadata.CandidatesTokenCount,
			TotalTokens: wire.UsageMetadata.TotalTokenCount,
		}
		if resp.Usage.TotalTokens == 0 {
			resp.Usage.TotalTokens = resp.Usage.InputTokens + resp.Usage.OutputTokens
		}
	}
	return resp
}

// Completion performs a non-streaming generateContent call.
func (p *Provider) Completion(ctx context.Context, req *llmpkg.ChatRequest) (*llmpkg.ChatResponse, error) {
	rewritten, err := p.rewriterChain.Execute(ctx, req)
	if err != nil {
		return nil, types.NewError(types.ErrCodeBadRequest, fmt.Sprintf("request rewrite failed: %v", err)).WithProvider(p.Name())
	}
	req = rewritten

	model := providers.ChooseModel(req, p.cfg.Model)
	body := buildRequest(req)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(model, "generateContent"), bytes.NewReader(payload))
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

	var wire geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, types.ClassifyProviderError(p.Name(), 0, err.Error())
	}

	return toChatResponse(wire, model), nil
}

// Stream performs a streaming generateContent call over SSE (?alt=sse).
func (p *Provider) Stream(ctx context.Context, req *llmpkg.ChatRequest) (<-chan llmpkg.StreamChunk, error) {
	rewritten, err := p.rewriterChain.Execute(ctx, req)
	if err != nil {
		return nil, types.NewError(types.ErrCodeBadRequest, fmt.Sprintf("request rewrite failed: %v", err)).WithProvider(p.Name())
	}
	req = rewritten

	model := providers.ChooseModel(req, p.cfg.Model)
	body := buildRequest(req)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := p.endpoint(model, "streamGenerateContent") + "?alt=sse"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
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

			var wire geminiResponse
			if err := json.Unmarshal([]byte(data), &wire); err != nil {
				select {
				case <-ctx.Done():
				case ch <- llmpkg.StreamChunk{Err: types.ClassifyProviderError(p.Name(), 0, err.Error())}:
				}
				return
			}

			chunk := llmpkg.StreamChunk{}
			if len(wire.Candidates) > 0 {
				c := wire.Candidates[0]
				chunk.IsFinal = c.FinishReason != ""
				for _, part := range c.Content.Parts {
					if part.Text != "" {
						chunk.DeltaText += part.Text
					}
					if part.FunctionCall != nil {
						args, _ := json.Marshal(part.FunctionCall.Args)
						chunk.DeltaToolCalls = append(chunk.DeltaToolCalls, llmpkg.ToolCall{
							ID: toolCallID(part.FunctionCall.Name, part.FunctionCall.Args), Name: part.FunctionCall.Name, Arguments: args,
						})
					}
				}
			}
			if wire.UsageMetadata != nil {
				u := llmpkg.ChatUsage{
					InputTokens: wire.UsageMetadata.PromptTokenCount, OutputTokens: wire.UsageMetadata.CandidatesTokenCount,
					TotalTokens: wire.UsageMetadata.TotalTokenCount,
				}
				chunk.Usage = &u
			}
			select {
			case <-ctx.Done():
				return
			case ch <- chunk:
			}
		}
	}()
	return ch, nil
}
