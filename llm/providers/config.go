package providers

import "time"

// BaseProviderConfig holds the fields every adapter config shares.
// Embedding it gives each provider's Config APIKey/BaseURL/Model/Timeout
// for free.
type BaseProviderConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAIConfig configures Provider A (OpenAI-style, Chat Completions wire format).
type OpenAIConfig struct {
	BaseProviderConfig
	Organization string
}

// ClaudeConfig configures Provider B (Anthropic Messages API).
type ClaudeConfig struct {
	BaseProviderConfig
	AnthropicVersion string // default "2023-06-01"
}

// GeminiConfig configures Provider C (Google generateContent API).
type GeminiConfig struct {
	BaseProviderConfig
}
