package gateway

import (
	"os"
	"path/filepath"
	"testing"
)

const testYAMLConfig = `
enabled_providers: [openai, anthropic]
default_provider: anthropic
credentials:
  openai: sk-from-yaml
request_timeout_ms: 15000
max_cost_usd_per_request: 3.5
model_mapping:
  openai:
    fast: gpt-4o-mini
pricing_override:
  openai:
    gpt-4o-mini:
      input_per_k: 0.00015
      output_per_k: 0.0006
`

func writeTestYAMLConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing test config: %v", err)
	}
	return path
}

func TestLoadSettings_YAMLFile(t *testing.T) {
	clearGatewayEnv(t)
	path := writeTestYAMLConfig(t, testYAMLConfig)

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.EnabledProviders[0] != "anthropic" {
		t.Fatalf("expected default provider prepended, got %v", s.EnabledProviders)
	}
	if s.Credentials["openai"] != "sk-from-yaml" {
		t.Fatalf("expected credential from YAML, got %+v", s.Credentials)
	}
	if s.RequestTimeoutMS != 15000 || s.MaxCostUSDPerRequest != 3.5 {
		t.Fatalf("unexpected values from YAML: %+v", s)
	}
	if got := s.ResolveModel("openai", "fast"); got != "gpt-4o-mini" {
		t.Fatalf("expected model mapping from YAML, got %q", got)
	}
	if s.PricingOverride["openai"]["gpt-4o-mini"].InputPerK != 0.00015 {
		t.Fatalf("expected pricing override from YAML, got %+v", s.PricingOverride)
	}
}

func TestLoadSettings_EnvOverridesYAML(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("LLMGATEWAY_MAX_COST_USD_PER_REQUEST", "9.0")
	t.Setenv("LLMGATEWAY_OPENAI_API_KEY", "sk-from-env")
	path := writeTestYAMLConfig(t, testYAMLConfig)

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.MaxCostUSDPerRequest != 9.0 {
		t.Fatalf("expected env to win over YAML, got %v", s.MaxCostUSDPerRequest)
	}
	if s.Credentials["openai"] != "sk-from-env" {
		t.Fatalf("expected env credential to win over YAML, got %+v", s.Credentials)
	}
}

func TestLoadSettings_MissingFile(t *testing.T) {
	clearGatewayEnv(t)
	if _, err := LoadSettings(filepath.Join(t.TempDir(), "does-not-exist.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
