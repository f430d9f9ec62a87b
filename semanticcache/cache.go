// Package semanticcache implements the Semantic Cache (C5): an exact-key
// Redis lookup backed by vectorstore.VectorStore for similarity search,
// grounded on llm/cache/prompt_cache.go's MultiLevelCache/KeyStrategy
// split.
package semanticcache

import (
	"context"

	"go.uber.org/zap"

	"github.com/gatewayflow/gatewayflow/sanitize"
	"github.com/gatewayflow/gatewayflow/types"
	"github.com/gatewayflow/gatewayflow/vectorstore"
)

// Decision is the outcome of a Lookup call.
type Decision struct {
	Hit        bool
	Kind       types.CacheDecision // exact | semantic (zero value when Hit is false)
	Payload    string
	TokensIn   int
	TokensOut  int
	Similarity float64
}

// Cache implements the Semantic Cache.
type Cache struct {
	exact     *ExactKeyStore
	vectors   vectorstore.VectorStore
	embedder  Embedder
	sanitizer *sanitize.Sanitizer
	logger    *zap.Logger
}

// New creates a Cache. truncationLength bounds the prompt length embedded,
// per the sanitizer's raw-payload truncation policy (spec §4.5 edge case).
func New(exact *ExactKeyStore, vectors vectorstore.VectorStore, embedder Embedder, truncationLength int, logger *zap.Logger) *Cache {
	return &Cache{
		exact:     exact,
		vectors:   vectors,
		embedder:  embedder,
		sanitizer: sanitize.New(truncationLength),
		logger:    logger.With(zap.String("component", "semantic_cache")),
	}
}

// Lookup implements spec §4.5's algorithm: exact key first, then
// similarity search clamped to the project's threshold.
func (c *Cache) Lookup(ctx context.Context, project, model, prompt string, cacheThreshold float64) Decision {
	normalized := NormalizePrompt(prompt)
	if normalized == "" {
		return Decision{}
	}

	key := Key(project, model, normalized)
	if payload, tokensIn, tokensOut, err := c.exact.Get(ctx, key); err == nil {
		return Decision{Hit: true, Kind: types.CacheExact, Payload: payload, TokensIn: tokensIn, TokensOut: tokensOut, Similarity: 1}
	} else if err != ErrExactMiss {
		c.logger.Warn("exact cache lookup failed", zap.Error(err))
	}

	embedInput, _ := c.sanitizer.TruncateRaw(normalized)
	embedding, err := c.embedder.Embed(ctx, embedInput)
	if err != nil {
		c.logger.Debug("embedding failed, treating as cache miss", zap.Error(err))
		return Decision{}
	}

	threshold := types.ClampCacheThreshold(cacheThreshold)
	hits, err := c.vectors.Query(ctx, project, string(types.KindChat), embedding, threshold, 1)
	if err != nil {
		c.logger.Warn("vector store query failed", zap.Error(err))
		return Decision{}
	}
	if len(hits) == 0 {
		return Decision{}
	}

	hit := hits[0]
	return Decision{
		Hit:        true,
		Kind:       types.CacheSemantic,
		Payload:    hit.Entry.Payload,
		TokensIn:   hit.Entry.TokensIn,
		TokensOut:  hit.Entry.TokensOut,
		Similarity: hit.Similarity,
	}
}

// Store upserts both the exact-key entry and the embedding entry for a
// freshly-fetched upstream response. Best-effort: embedding failures are
// logged and do not fail the store of the exact-key entry.
func (c *Cache) Store(ctx context.Context, project, model, prompt, response string, tokensIn, tokensOut int) error {
	normalized := NormalizePrompt(prompt)
	if normalized == "" {
		return nil
	}

	key := Key(project, model, normalized)
	if err := c.exact.Set(ctx, key, response, tokensIn, tokensOut); err != nil {
		c.logger.Warn("exact cache store failed", zap.Error(err))
	}

	embedInput, _ := c.sanitizer.TruncateRaw(normalized)
	embedding, err := c.embedder.Embed(ctx, embedInput)
	if err != nil {
		c.logger.Debug("embedding failed, exact entry stored without vector entry", zap.Error(err))
		return nil
	}

	return c.vectors.Upsert(ctx, vectorstore.Entry{
		Project:   project,
		Kind:      string(types.KindChat),
		Embedding: embedding,
		Payload:   response,
		Model:     model,
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
	})
}
