package gateway

import (
	"testing"
)

func TestLoadSettingsFromEnv_Defaults(t *testing.T) {
	clearGatewayEnv(t)

	s, err := LoadSettingsFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.RequestTimeoutMS != 30000 || s.MaxRetries != 2 {
		t.Fatalf("unexpected defaults: %+v", s)
	}
	if s.MaxCostUSDPerRequest != 1.0 || s.MaxTokensPerRequest != 32000 {
		t.Fatalf("unexpected default ceilings: %+v", s)
	}
}

func TestLoadSettingsFromEnv_Overrides(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("LLMGATEWAY_ENABLED_PROVIDERS", "openai,anthropic,gemini")
	t.Setenv("LLMGATEWAY_DEFAULT_PROVIDER", "anthropic")
	t.Setenv("LLMGATEWAY_OPENAI_API_KEY", "sk-test")
	t.Setenv("LLMGATEWAY_REQUEST_TIMEOUT_MS", "5000")
	t.Setenv("LLMGATEWAY_MAX_COST_USD_PER_REQUEST", "2.5")

	s, err := LoadSettingsFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.EnabledProviders[0] != "anthropic" {
		t.Fatalf("expected default provider prepended, got %v", s.EnabledProviders)
	}
	if s.Credentials["openai"] != "sk-test" {
		t.Fatalf("expected credential to be loaded")
	}
	if s.RequestTimeoutMS != 5000 || s.MaxCostUSDPerRequest != 2.5 {
		t.Fatalf("unexpected overrides: %+v", s)
	}
}

func TestSettings_ResolveModel(t *testing.T) {
	t.Parallel()

	s := NewSettings()
	s.ModelMapping["openai"] = map[ModelTier]string{TierFast: "gpt-4o-mini"}

	if got := s.ResolveModel("openai", "fast"); got != "gpt-4o-mini" {
		t.Fatalf("expected mapped model, got %q", got)
	}
	if got := s.ResolveModel("openai", "gpt-4o"); got != "gpt-4o" {
		t.Fatalf("expected pass-through for unmapped string, got %q", got)
	}
	if got := s.ResolveModel("unknown-provider", "fast"); got != "fast" {
		t.Fatalf("expected pass-through when provider has no mapping, got %q", got)
	}
}

func clearGatewayEnv(t *testing.T) {
	t.Helper()
	vars := []string{
		"LLMGATEWAY_ENABLED_PROVIDERS", "LLMGATEWAY_DEFAULT_PROVIDER",
		"LLMGATEWAY_OPENAI_API_KEY", "LLMGATEWAY_ANTHROPIC_API_KEY", "LLMGATEWAY_GEMINI_API_KEY",
		"LLMGATEWAY_REQUEST_TIMEOUT_MS", "LLMGATEWAY_MAX_RETRIES",
		"LLMGATEWAY_MAX_COST_USD_PER_REQUEST", "LLMGATEWAY_MAX_TOKENS_PER_REQUEST",
		"LLMGATEWAY_DEBUG_RAW", "LLMGATEWAY_MODEL_MAPPING_JSON", "LLMGATEWAY_PRICING_OVERRIDE_JSON",
	}
	for _, v := range vars {
		t.Setenv(v, "")
	}
}
