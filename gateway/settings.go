// Package gateway is the caller-facing surface of the LLM gateway: the
// Router, its Settings, and the supporting cost/cache/policy/telemetry
// components. The llm package underneath defines the adapter contract;
// gateway translates between the two.
package gateway

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ModelTier is a logical model class a caller requests instead of a
// concrete provider model id.
type ModelTier string

const (
	TierFast      ModelTier = "fast"
	TierBalanced  ModelTier = "balanced"
	TierReasoning ModelTier = "reasoning"
)

// ModelPrice is USD per 1,000 tokens for one (provider, model) pair.
type ModelPrice struct {
	InputPerK  float64 `yaml:"input_per_k"`
	OutputPerK float64 `yaml:"output_per_k"`
}

// Settings is the gateway's process-wide configuration. It is built once
// at startup by LoadSettings, LoadSettingsFromEnv or NewSettings and is
// treated as immutable
// afterward: every field is read concurrently by the Router without
// synchronization.
type Settings struct {
	// EnabledProviders is the ordered set of provider names the router
	// will try. DefaultProvider, if present, is moved to the front.
	EnabledProviders []string `yaml:"enabled_providers"`
	DefaultProvider  string   `yaml:"default_provider"`

	// Credentials holds one API key per provider name. Provider C's entry
	// is sent as its API key; a project:location pair is not supported.
	Credentials map[string]string `yaml:"credentials"`

	RequestTimeoutMS int `yaml:"request_timeout_ms"`
	MaxRetries       int `yaml:"max_retries"`

	MaxCostUSDPerRequest float64 `yaml:"max_cost_usd_per_request"`
	MaxTokensPerRequest  int     `yaml:"max_tokens_per_request"`

	// ModelMapping resolves a (provider, logical tier) pair to a concrete
	// model id. A missing entry means the caller's model string passes
	// through unchanged.
	ModelMapping map[string]map[ModelTier]string `yaml:"model_mapping"`

	// PricingOverride replaces or adds entries in the cost estimator's
	// built-in table; override wins per (provider, model) key.
	PricingOverride map[string]map[string]ModelPrice `yaml:"pricing_override"`

	DebugRaw bool `yaml:"debug_raw"`
}

// NewSettings returns Settings populated with the gateway's defaults:
// a 30s request timeout, 2 retries, a $1.00 per-request cost ceiling and
// a 32,000 token ceiling, matching the external interface defaults.
func NewSettings() *Settings {
	return &Settings{
		EnabledProviders:     nil,
		Credentials:          make(map[string]string),
		RequestTimeoutMS:     30000,
		MaxRetries:           2,
		MaxCostUSDPerRequest: 1.0,
		MaxTokensPerRequest:  32000,
		ModelMapping:         make(map[string]map[ModelTier]string),
		PricingOverride:      make(map[string]map[string]ModelPrice),
	}
}

// LoadSettingsFromEnv builds Settings from defaults overridden by
// environment variables, matching the external-interface table: enabled
// providers (comma list), default provider, one credential per provider,
// timeouts/retries/ceilings, and JSON overrides for model mapping and
// pricing.
func LoadSettingsFromEnv() (*Settings, error) {
	s := NewSettings()
	if err := applyEnvOverrides(s); err != nil {
		return nil, err
	}
	return s, nil
}

// applyEnvOverrides mutates s in place with every LLMGATEWAY_* override
// present in the environment. Shared by LoadSettingsFromEnv (defaults +
// env) and LoadSettings (YAML file + env, env taking precedence so a
// deployment's env still wins over a checked-in config file).
func applyEnvOverrides(s *Settings) error {
	if v := os.Getenv("LLMGATEWAY_ENABLED_PROVIDERS"); v != "" {
		for _, p := range strings.Split(v, ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				s.EnabledProviders = append(s.EnabledProviders, p)
			}
		}
	}
	if v := os.Getenv("LLMGATEWAY_DEFAULT_PROVIDER"); v != "" {
		s.DefaultProvider = v
	}

	for _, provider := range []string{"openai", "anthropic", "gemini"} {
		key := "LLMGATEWAY_" + strings.ToUpper(provider) + "_API_KEY"
		if v := os.Getenv(key); v != "" {
			s.Credentials[provider] = v
		}
	}

	if v := os.Getenv("LLMGATEWAY_REQUEST_TIMEOUT_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LLMGATEWAY_REQUEST_TIMEOUT_MS: %w", err)
		}
		s.RequestTimeoutMS = n
	}
	if v := os.Getenv("LLMGATEWAY_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LLMGATEWAY_MAX_RETRIES: %w", err)
		}
		s.MaxRetries = n
	}
	if v := os.Getenv("LLMGATEWAY_MAX_COST_USD_PER_REQUEST"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("LLMGATEWAY_MAX_COST_USD_PER_REQUEST: %w", err)
		}
		s.MaxCostUSDPerRequest = f
	}
	if v := os.Getenv("LLMGATEWAY_MAX_TOKENS_PER_REQUEST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LLMGATEWAY_MAX_TOKENS_PER_REQUEST: %w", err)
		}
		s.MaxTokensPerRequest = n
	}
	if v := os.Getenv("LLMGATEWAY_DEBUG_RAW"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LLMGATEWAY_DEBUG_RAW: %w", err)
		}
		s.DebugRaw = b
	}

	if v := os.Getenv("LLMGATEWAY_MODEL_MAPPING_JSON"); v != "" {
		mapping, err := parseModelMappingJSON(v)
		if err != nil {
			return fmt.Errorf("LLMGATEWAY_MODEL_MAPPING_JSON: %w", err)
		}
		s.ModelMapping = mapping
	}
	if v := os.Getenv("LLMGATEWAY_PRICING_OVERRIDE_JSON"); v != "" {
		pricing, err := parsePricingOverrideJSON(v)
		if err != nil {
			return fmt.Errorf("LLMGATEWAY_PRICING_OVERRIDE_JSON: %w", err)
		}
		s.PricingOverride = pricing
	}

	if s.DefaultProvider != "" {
		s.EnabledProviders = moveToFront(s.EnabledProviders, s.DefaultProvider)
	}

	return nil
}

// moveToFront returns providers with name moved to index 0, inserting it
// if absent. Order of the remaining entries is preserved.
func moveToFront(providers []string, name string) []string {
	out := make([]string, 0, len(providers)+1)
	out = append(out, name)
	for _, p := range providers {
		if p != name {
			out = append(out, p)
		}
	}
	return out
}

// ResolveModel resolves a logical tier to a concrete model id for the
// given provider. If the mapping has no entry, requested is returned
// unchanged, per §4.4's pass-through rule.
func (s *Settings) ResolveModel(provider, requested string) string {
	tiers, ok := s.ModelMapping[provider]
	if !ok {
		return requested
	}
	if concrete, ok := tiers[ModelTier(requested)]; ok {
		return concrete
	}
	return requested
}
