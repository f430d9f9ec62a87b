package semanticcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/gatewayflow/gatewayflow/internal/cache"
)

// ErrExactMiss is returned by ExactKeyStore.Get on a miss, mirroring the
// teacher's llm/cache/prompt_cache.go ErrCacheMiss sentinel.
var ErrExactMiss = errors.New("semanticcache: exact key miss")

// exactRecord is the JSON payload stored under an exact key.
type exactRecord struct {
	Payload   string `json:"payload"`
	TokensIn  int    `json:"tokens_in"`
	TokensOut int    `json:"tokens_out"`
}

// ExactKeyStore is a Redis-backed exact-match lookup, grounded on
// llm/cache/prompt_cache.go's MultiLevelCache Redis path (same
// idempotent-SET/JSON-marshal pattern, narrowed to exact-key only — the
// vector-store handles the semantic path instead of the teacher's local
// LRU tier). It delegates the actual Redis traffic to internal/cache.Manager
// so connection pooling, background health-checking, and the cache-miss
// sentinel are shared with every other Redis consumer in the gateway rather
// than reimplemented here.
type ExactKeyStore struct {
	mgr *cache.Manager
	ttl time.Duration
}

// NewExactKeyStore creates an ExactKeyStore backed by mgr.
func NewExactKeyStore(mgr *cache.Manager, ttl time.Duration) *ExactKeyStore {
	if ttl == 0 {
		ttl = time.Hour
	}
	return &ExactKeyStore{mgr: mgr, ttl: ttl}
}

// Key computes exact_key = hash(project, model, normalized_prompt) per
// spec §4.5 step 1.
func Key(project, model, normalizedPrompt string) string {
	h := sha256.New()
	h.Write([]byte(project))
	h.Write([]byte{0})
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(normalizedPrompt))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the stored record for key, or ErrExactMiss.
func (s *ExactKeyStore) Get(ctx context.Context, key string) (payload string, tokensIn, tokensOut int, err error) {
	var rec exactRecord
	if err := s.mgr.GetJSON(ctx, s.redisKey(key), &rec); err != nil {
		if cache.IsCacheMiss(err) {
			return "", 0, 0, ErrExactMiss
		}
		return "", 0, 0, err
	}
	return rec.Payload, rec.TokensIn, rec.TokensOut, nil
}

// Set stores payload under key. Repeated Set calls for the same key are
// idempotent (last-writer-wins), matching spec §8's concurrent-store
// requirement.
func (s *ExactKeyStore) Set(ctx context.Context, key, payload string, tokensIn, tokensOut int) error {
	rec := exactRecord{Payload: payload, TokensIn: tokensIn, TokensOut: tokensOut}
	return s.mgr.SetJSON(ctx, s.redisKey(key), rec, s.ttl)
}

func (s *ExactKeyStore) redisKey(key string) string {
	return "gatewayflow:cache:" + key
}

// NormalizePrompt trims and canonicalizes internal whitespace so that
// cosmetically different prompts hash to the same exact key (spec §4.5
// step 1).
func NormalizePrompt(prompt string) string {
	fields := strings.Fields(prompt)
	return strings.Join(fields, " ")
}
