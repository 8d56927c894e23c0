package gateway

import (
	"math"
	"sync"
)

// CostEstimator holds a two-level provider -> model -> price table and
// never fails: an absent (provider, model) pair estimates to 0, since
// budget enforcement is a separate concern (§4.1).
type CostEstimator struct {
	mu     sync.RWMutex
	prices map[string]map[string]ModelPrice
}

// NewCostEstimator builds an estimator from the built-in default table,
// merged with override (override wins per (provider, model) key).
func NewCostEstimator(override map[string]map[string]ModelPrice) *CostEstimator {
	e := &CostEstimator{prices: defaultModelPrices()}
	for provider, models := range override {
		if _, ok := e.prices[provider]; !ok {
			e.prices[provider] = make(map[string]ModelPrice)
		}
		for model, price := range models {
			e.prices[provider][model] = price
		}
	}
	return e
}

// Estimate returns (in/1000)*input_price + (out/1000)*output_price
// rounded to 8 decimals, or 0 when the pair is unknown.
func (e *CostEstimator) Estimate(provider, model string, inputTokens, outputTokens int) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	models, ok := e.prices[provider]
	if !ok {
		return 0
	}
	price, ok := models[model]
	if !ok {
		return 0
	}
	cost := float64(inputTokens)/1000*price.InputPerK + float64(outputTokens)/1000*price.OutputPerK
	return roundToDecimals(cost, 8)
}

// SetPrice overrides or adds a single (provider, model) entry at
// runtime.
func (e *CostEstimator) SetPrice(provider, model string, price ModelPrice) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.prices[provider]; !ok {
		e.prices[provider] = make(map[string]ModelPrice)
	}
	e.prices[provider][model] = price
}

func roundToDecimals(v float64, decimals int) float64 {
	scale := math.Pow10(decimals)
	return math.Round(v*scale) / scale
}

// defaultModelPrices is the built-in USD-per-1000-token table, carried
// over from the teacher's CostCalculator defaults and extended with the
// third adapter's models.
func defaultModelPrices() map[string]map[string]ModelPrice {
	return map[string]map[string]ModelPrice{
		"openai": {
			"gpt-4o":        {InputPerK: 0.005, OutputPerK: 0.015},
			"gpt-4o-mini":   {InputPerK: 0.00015, OutputPerK: 0.0006},
			"gpt-4-turbo":   {InputPerK: 0.01, OutputPerK: 0.03},
			"gpt-3.5-turbo": {InputPerK: 0.0005, OutputPerK: 0.0015},
		},
		"anthropic": {
			"claude-3-5-sonnet-20241022": {InputPerK: 0.003, OutputPerK: 0.015},
			"claude-3-opus-20240229":     {InputPerK: 0.015, OutputPerK: 0.075},
			"claude-3-haiku-20240307":    {InputPerK: 0.00025, OutputPerK: 0.00125},
		},
		"gemini": {
			"gemini-2.5-flash": {InputPerK: 0.000075, OutputPerK: 0.0003},
			"gemini-1.5-pro":   {InputPerK: 0.00125, OutputPerK: 0.005},
			"gemini-1.5-flash": {InputPerK: 0.000075, OutputPerK: 0.0003},
		},
	}
}
