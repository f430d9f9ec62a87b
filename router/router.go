// Package router implements the Upstream Router (C7): given a normalized
// chat request it selects the provider for a model, and exposes a single
// Provider interface that the proxy pipeline calls without needing to
// know which upstream wire format is behind it.
package router

import (
	"context"
	"strings"

	"github.com/gatewayflow/gatewayflow/types"
)

// Provider is implemented once per upstream wire format (openaicompat
// covers OpenAI/Groq/OpenRouter, anthropic is separate).
type Provider interface {
	Name() types.Provider
	Complete(ctx context.Context, secret string, req *types.ChatRequest) (*types.ChatResponse, *types.Error)
	// Stream returns a *types.Error with code types.ErrValidation for
	// providers that do not support streaming (the anthropic provider
	// does this).
	Stream(ctx context.Context, secret string, req *types.ChatRequest) (<-chan types.StreamChunk, *types.Error)
}

// PrefixRule matches model IDs by prefix, longest-prefix-first. Grounded
// on llm/router/prefix_router.go's PrefixRouter.
type PrefixRule struct {
	Prefix   string
	Provider types.Provider
}

// Router selects a Provider implementation for a model ID. Rules are
// explicit-map first, then longest-prefix-match, then (for slash-
// containing model IDs, e.g. "mistralai/mistral-7b-instruct:free") the
// configured aggregator provider — matching spec §4.7.
type Router struct {
	providers  map[types.Provider]Provider
	exact      map[string]types.Provider
	prefixes   []PrefixRule
	aggregator types.Provider
}

// Config configures a Router.
type Config struct {
	Exact      map[string]types.Provider
	Prefixes   []PrefixRule
	Aggregator types.Provider // provider used for slash-containing model IDs
}

// New creates a Router. providers must contain an entry for every
// types.Provider referenced by cfg.
func New(cfg Config, providers map[types.Provider]Provider) *Router {
	sorted := make([]PrefixRule, len(cfg.Prefixes))
	copy(sorted, cfg.Prefixes)
	for i := 0; i < len(sorted)-1; i++ {
		for j := 0; j < len(sorted)-i-1; j++ {
			if len(sorted[j].Prefix) < len(sorted[j+1].Prefix) {
				sorted[j], sorted[j+1] = sorted[j+1], sorted[j]
			}
		}
	}
	return &Router{
		providers:  providers,
		exact:      cfg.Exact,
		prefixes:   sorted,
		aggregator: cfg.Aggregator,
	}
}

// Resolve returns the Provider responsible for model.
func (r *Router) Resolve(model string) (Provider, *types.Error) {
	name, ok := r.providerFor(model)
	if !ok {
		return nil, types.NewError(types.ErrValidation, "no provider configured for model \""+model+"\"")
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, types.NewError(types.ErrInternalError, "provider \""+string(name)+"\" has no implementation registered")
	}
	return p, nil
}

func (r *Router) providerFor(model string) (types.Provider, bool) {
	if name, ok := r.exact[model]; ok {
		return name, true
	}
	for _, rule := range r.prefixes {
		if strings.HasPrefix(model, rule.Prefix) {
			return rule.Provider, true
		}
	}
	if strings.Contains(model, "/") && r.aggregator != "" {
		return r.aggregator, true
	}
	return "", false
}
