/*
Package llm defines the adapter contract every provider implementation
satisfies: Provider, ChatRequest/ChatResponse, StreamChunk, Capabilities,
and HealthStatus. It re-exports the wire-agnostic types from package
types (Message, Role, ToolCall, ToolSpec, Error, ErrorCode) as local
aliases so adapters and the gateway package share one vocabulary.

Routing, caching, cost estimation, and policy enforcement live one layer
up in package gateway, which consumes Provider implementations from
llm/providers/* — this package itself holds no routing logic.

# Provider interface

	type Provider interface {
	    Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	    Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)
	    HealthCheck(ctx context.Context) (*HealthStatus, error)
	    Name() string
	    Capabilities() Capabilities
	}

# Provider adapters

	llm/providers/openaicompat — shared OpenAI Chat Completions wire base
	llm/providers/openai       — Provider A, embeds openaicompat
	llm/providers/anthropic    — Provider B, Anthropic Messages API
	llm/providers/gemini       — Provider C, Google generateContent API

# Middleware

	llm/middleware — RequestRewriter / RewriterChain, applied by each
	adapter before it builds a wire request (e.g. clearing ToolChoice
	when no tools are present)
*/
package llm
