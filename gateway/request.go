package gateway

import (
	"fmt"

	"github.com/arclight/llmgateway/types"
)

// LLMRequest is the gateway's caller-facing request shape. Extra fields
// are forbidden at the JSON boundary: the cmd/gateway HTTP handler
// decodes it with a DisallowUnknownFields decoder.
type LLMRequest struct {
	RequestID      string            `json:"request_id"`
	ConversationID string            `json:"conversation_id,omitempty"`
	Messages       []types.Message   `json:"messages"`
	Model          string            `json:"model"`
	MaxOutputTokens int              `json:"max_output_tokens,omitempty"`
	Temperature    float32           `json:"temperature,omitempty"`
	TopP           float32           `json:"top_p,omitempty"`
	Tools          []types.ToolSpec  `json:"tools,omitempty"`
	ToolChoice     string            `json:"tool_choice,omitempty"`
	Stream         bool              `json:"stream,omitempty"`
	Metadata       RequestMetadata   `json:"metadata,omitempty"`
}

// RequestMetadata carries the cross-cutting flags §3/§4 reference:
// Cacheable gates the cache (§4.2), Scenario selects a tool allowlist
// (§4.3).
type RequestMetadata struct {
	Cacheable bool   `json:"cacheable,omitempty"`
	Scenario  string `json:"scenario,omitempty"`
}

// Validate enforces the Data Model invariant that every request carries
// at least one message and a model string.
func (r *LLMRequest) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("messages must be non-empty")
	}
	if r.Model == "" {
		return fmt.Errorf("model is required")
	}
	return nil
}

// LLMResponse is the gateway's caller-facing response shape.
type LLMResponse struct {
	RequestID     string          `json:"request_id"`
	Provider      string          `json:"provider"`
	ProviderModel string          `json:"provider_model"`
	OutputText    string          `json:"output_text"`
	ToolCalls     []types.ToolCall `json:"tool_calls,omitempty"`
	Usage         Usage           `json:"usage"`
	FinishReason  string          `json:"finish_reason"`
	Raw           map[string]any  `json:"raw,omitempty"`
}

// Usage is the canonical usage shape with the spec's back-fill invariant
// enforced by NewUsage: TotalTokens >= InputTokens + OutputTokens.
type Usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	LatencyMS    int64   `json:"latency_ms"`
}

// NewUsage builds a Usage, back-filling TotalTokens when the adapter
// reported 0 or an implausibly small total, per §4.4's usage
// normalization rule.
func NewUsage(input, output, total int) Usage {
	if total < input+output {
		total = input + output
	}
	return Usage{InputTokens: input, OutputTokens: output, TotalTokens: total}
}

// LLMResponseChunk is one increment of a streamed LLMResponse.
type LLMResponseChunk struct {
	DeltaText      string           `json:"delta_text,omitempty"`
	DeltaToolCalls []types.ToolCall `json:"delta_tool_calls,omitempty"`
	IsFinal        bool             `json:"is_final"`
	UsagePartial   *Usage           `json:"usage_partial,omitempty"`
}
