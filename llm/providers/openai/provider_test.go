package openai

import (
	"testing"

	"github.com/arclight/llmgateway/llm/providers"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestProvider_Name(t *testing.T) {
	p := New(providers.OpenAIConfig{}, zap.NewNop())
	assert.Equal(t, "openai", p.Name())
}

func TestProvider_Capabilities(t *testing.T) {
	p := New(providers.OpenAIConfig{}, zap.NewNop())
	assert.True(t, p.Capabilities().SupportsTools)
	assert.True(t, p.Capabilities().SupportsStreaming)
}

func TestProvider_DefaultBaseURLAndModel(t *testing.T) {
	p := New(providers.OpenAIConfig{
		BaseProviderConfig: providers.BaseProviderConfig{APIKey: "test-key"},
	}, zap.NewNop())
	assert.Equal(t, "https://api.openai.com", p.Provider.Cfg.BaseURL)
	assert.Equal(t, "gpt-5.2", p.Provider.Cfg.DefaultModel)
}

func TestProvider_CustomModelPreserved(t *testing.T) {
	p := New(providers.OpenAIConfig{
		BaseProviderConfig: providers.BaseProviderConfig{APIKey: "test-key", Model: "gpt-4o-mini"},
	}, zap.NewNop())
	assert.Equal(t, "gpt-4o-mini", p.Provider.Cfg.DefaultModel)
}
