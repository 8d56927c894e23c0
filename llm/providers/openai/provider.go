// Package openai implements Provider A (spec §4.4): the OpenAI Chat
// Completions wire format. It embeds openaicompat.Provider for the
// wire handling and only adds the Organization header.
package openai

import (
	"net/http"

	"github.com/arclight/llmgateway/llm/providers"
	"github.com/arclight/llmgateway/llm/providers/openaicompat"
	"go.uber.org/zap"
)

// Provider implements Provider A.
type Provider struct {
	*openaicompat.Provider
	cfg providers.OpenAIConfig
}

// New creates a Provider A instance.
func New(cfg providers.OpenAIConfig, logger *zap.Logger) *Provider {
	p := &Provider{
		Provider: openaicompat.New(openaicompat.Config{
			ProviderName: "openai",
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			Timeout:      cfg.Timeout,
		}, logger),
		cfg: cfg,
	}
	if p.cfg.BaseURL == "" {
		p.Provider.Cfg.BaseURL = "https://api.openai.com"
	}
	if p.cfg.Model == "" {
		p.Provider.Cfg.DefaultModel = "gpt-5.2"
	}

	p.SetBuildHeaders(func(req *http.Request, apiKey string) {
		req.Header.Set("Authorization", "Bearer "+apiKey)
		if cfg.Organization != "" {
			req.Header.Set("OpenAI-Organization", cfg.Organization)
		}
		req.Header.Set("Content-Type", "application/json")
	})

	return p
}
