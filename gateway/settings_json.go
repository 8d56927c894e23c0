package gateway

import "encoding/json"

// parseModelMappingJSON decodes the JSON string form of ModelMapping:
// {"openai": {"fast": "gpt-4o-mini", "reasoning": "o1"}, ...}
func parseModelMappingJSON(raw string) (map[string]map[ModelTier]string, error) {
	var wire map[string]map[string]string
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, err
	}
	out := make(map[string]map[ModelTier]string, len(wire))
	for provider, tiers := range wire {
		m := make(map[ModelTier]string, len(tiers))
		for tier, model := range tiers {
			m[ModelTier(tier)] = model
		}
		out[provider] = m
	}
	return out, nil
}

// parsePricingOverrideJSON decodes the JSON string form of
// PricingOverride: {"openai": {"gpt-4o": {"input_per_k": 0.005,
// "output_per_k": 0.015}}}
func parsePricingOverrideJSON(raw string) (map[string]map[string]ModelPrice, error) {
	var wire map[string]map[string]struct {
		InputPerK  float64 `json:"input_per_k"`
		OutputPerK float64 `json:"output_per_k"`
	}
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, err
	}
	out := make(map[string]map[string]ModelPrice, len(wire))
	for provider, models := range wire {
		m := make(map[string]ModelPrice, len(models))
		for model, price := range models {
			m[model] = ModelPrice{InputPerK: price.InputPerK, OutputPerK: price.OutputPerK}
		}
		out[provider] = m
	}
	return out, nil
}
