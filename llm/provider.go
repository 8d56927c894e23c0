package llm

import (
	"context"
	"time"

	"github.com/arclight/llmgateway/types"
)

// Re-exported so adapters and the router share one vocabulary without an
// import cycle back through types.
type (
	Message    = types.Message
	Role       = types.Role
	ToolCall   = types.ToolCall
	ToolSpec   = types.ToolSpec
	Error      = types.Error
	ErrorCode  = types.ErrorCode
)

const (
	RoleSystem    = types.RoleSystem
	RoleUser      = types.RoleUser
	RoleAssistant = types.RoleAssistant
	RoleTool      = types.RoleTool
)

const (
	ErrCodeAuth                = types.ErrCodeAuth
	ErrCodeRateLimit           = types.ErrCodeRateLimit
	ErrCodeTimeout             = types.ErrCodeTimeout
	ErrCodeBadRequest          = types.ErrCodeBadRequest
	ErrCodeProviderUnavailable = types.ErrCodeProviderUnavailable
	ErrCodeBudgetExceeded      = types.ErrCodeBudgetExceeded
)

// Provider is the unified LLM adapter interface. The router holds a
// mapping from provider name to Provider; adding a provider is purely
// additive.
type Provider interface {
	// Name returns the provider's unique identifier (e.g. "openai").
	Name() string

	// Capabilities declares what this adapter supports.
	Capabilities() Capabilities

	// Completion sends a synchronous chat request.
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Stream sends a streaming chat request.
	Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)

	// HealthCheck performs a lightweight reachability probe.
	HealthCheck(ctx context.Context) (*HealthStatus, error)
}

// Capabilities describes what an adapter can do, per spec §4.4.
type Capabilities struct {
	SupportsTools      bool
	SupportsStreaming  bool
	SupportsVision     bool
}

// HealthStatus is the result of a provider health probe.
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
}

// ChatRequest is the canonical request an adapter receives. The router
// has already resolved the logical model tier into Model; when no mapping
// entry exists, Model holds the caller's string unchanged. RequestID is
// propagated for telemetry.
type ChatRequest struct {
	RequestID   string
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float32
	TopP        float32
	Stop        []string
	Tools       []ToolSpec
	ToolChoice  string
}

// ChatResponse is the canonical response an adapter produces.
type ChatResponse struct {
	ID            string
	Provider      string
	ProviderModel string
	OutputText    string
	ToolCalls     []ToolCall
	FinishReason  string
	Usage         ChatUsage
	Raw           map[string]any
}

// ChatUsage is the canonical usage shape every adapter must back-fill
// per spec §4.4 ("If the provider does not report total, compute as
// input + output").
type ChatUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// StreamChunk is one increment of a streaming response.
type StreamChunk struct {
	DeltaText      string
	DeltaToolCalls []ToolCall
	IsFinal        bool
	Usage          *ChatUsage
	Err            *Error
}
