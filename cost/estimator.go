// Package cost computes USD cost for a model call from a static price
// table, keyed by provider and model.
package cost

import "sync"

// ModelPrice is the per-1K-token price for one provider/model pair.
type ModelPrice struct {
	Provider    string
	Model       string
	PriceInput  float64 // USD per 1K prompt tokens
	PriceOutput float64 // USD per 1K completion tokens
}

// Estimator computes cost(model, tokens_in, tokens_out) -> USD over a
// static, mutable-at-runtime price table.
type Estimator struct {
	mu     sync.RWMutex
	prices map[string]ModelPrice // key: provider:model
}

// NewEstimator creates an Estimator seeded with the default price table.
func NewEstimator() *Estimator {
	e := &Estimator{prices: make(map[string]ModelPrice)}
	e.loadDefaultPrices()
	return e
}

func (e *Estimator) loadDefaultPrices() {
	defaults := []ModelPrice{
		{Provider: "openai", Model: "gpt-4o", PriceInput: 0.005, PriceOutput: 0.015},
		{Provider: "openai", Model: "gpt-4o-mini", PriceInput: 0.00015, PriceOutput: 0.0006},
		{Provider: "openai", Model: "gpt-4-turbo", PriceInput: 0.01, PriceOutput: 0.03},
		{Provider: "openai", Model: "gpt-3.5-turbo", PriceInput: 0.0005, PriceOutput: 0.0015},
		{Provider: "anthropic", Model: "claude-3-5-sonnet-20241022", PriceInput: 0.003, PriceOutput: 0.015},
		{Provider: "anthropic", Model: "claude-3-opus-20240229", PriceInput: 0.015, PriceOutput: 0.075},
		{Provider: "anthropic", Model: "claude-3-haiku-20240307", PriceInput: 0.00025, PriceOutput: 0.00125},
		{Provider: "groq", Model: "llama-3.1-70b-versatile", PriceInput: 0.00059, PriceOutput: 0.00079},
		{Provider: "groq", Model: "llama-3.1-8b-instant", PriceInput: 0.00005, PriceOutput: 0.00008},
		{Provider: "openrouter", Model: "mistralai/mistral-7b-instruct:free", PriceInput: 0, PriceOutput: 0},
	}
	for _, p := range defaults {
		e.SetPrice(p.Provider, p.Model, p.PriceInput, p.PriceOutput)
	}
}

// SetPrice sets (or overrides) the price for one provider/model pair.
func (e *Estimator) SetPrice(provider, model string, priceInput, priceOutput float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prices[priceKey(provider, model)] = ModelPrice{
		Provider: provider, Model: model,
		PriceInput: priceInput, PriceOutput: priceOutput,
	}
}

// GetPrice returns the price for provider/model, and whether it is known.
func (e *Estimator) GetPrice(provider, model string) (ModelPrice, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.prices[priceKey(provider, model)]
	return p, ok
}

// Calculate returns the USD cost of tokensIn/tokensOut for provider/model.
// Unknown model/provider pairs return (0, false); callers tag the event
// unknown_model_pricing on false per spec §4.2.
func (e *Estimator) Calculate(provider, model string, tokensIn, tokensOut int) (float64, bool) {
	price, ok := e.GetPrice(provider, model)
	if !ok {
		return 0, false
	}
	in := float64(tokensIn) / 1000 * price.PriceInput
	out := float64(tokensOut) / 1000 * price.PriceOutput
	return in + out, true
}

func priceKey(provider, model string) string {
	return provider + ":" + model
}
