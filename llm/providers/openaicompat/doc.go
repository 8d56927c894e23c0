// Package openaicompat implements Provider A: the OpenAI Chat
// Completions wire format (/v1/chat/completions, /v1/models).
//
// openai.Provider embeds this base and only overrides header
// construction (to add an Organization header); any future
// OpenAI-wire-compatible vendor would do the same.
//
// Usage:
//
//	p := openaicompat.New(openaicompat.Config{
//	    ProviderName: "openai",
//	    APIKey:       cfg.APIKey,
//	    BaseURL:      "https://api.openai.com",
//	    DefaultModel: "gpt-5.2",
//	}, logger)
package openaicompat
