package gateway

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadSettings builds Settings from a YAML config file at path, then
// layers any LLMGATEWAY_* environment variables on top via
// applyEnvOverrides — the same env-var table LoadSettingsFromEnv
// reads, so a deployment can ship a checked-in base config and still
// override individual fields (a rotated key, a raised cost ceiling)
// per environment without editing the file.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings file %s: %w", path, err)
	}

	s := NewSettings()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing settings file %s: %w", path, err)
	}
	if s.Credentials == nil {
		s.Credentials = make(map[string]string)
	}
	if s.ModelMapping == nil {
		s.ModelMapping = make(map[string]map[ModelTier]string)
	}
	if s.PricingOverride == nil {
		s.PricingOverride = make(map[string]map[string]ModelPrice)
	}

	if err := applyEnvOverrides(s); err != nil {
		return nil, err
	}
	return s, nil
}
