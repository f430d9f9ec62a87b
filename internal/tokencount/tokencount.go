// Package tokencount estimates token counts for chat requests that
// don't carry a provider-reported usage figure. Grounded on
// llm/tokenizer/tiktoken.go's model-to-encoding table, narrowed to the
// one operation the gateway needs: a fast local count to validate
// max_tokens and to backfill tokens_in/tokens_out when an upstream
// response omits usage.
package tokencount

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/gatewayflow/gatewayflow/types"
)

// encodingFor returns the tiktoken encoding name for model, defaulting
// to cl100k_base for unrecognized families (matches the behavior of
// most current OpenAI-compatible model IDs).
func encodingFor(model string) string {
	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"):
		return "o200k_base"
	default:
		return "cl100k_base"
	}
}

var (
	encMu    sync.Mutex
	encCache = map[string]*tiktoken.Tiktoken{}
)

func encodingForCached(name string) (*tiktoken.Tiktoken, error) {
	encMu.Lock()
	defer encMu.Unlock()
	if enc, ok := encCache[name]; ok {
		return enc, nil
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, err
	}
	encCache[name] = enc
	return enc, nil
}

// Count estimates the number of tokens text encodes to under model's
// family encoding. Returns 0 on encoding-load failure rather than
// erroring: callers use this as a best-effort fallback, never a
// correctness-critical path (spec §7: local recovery must never abort a
// response to the client).
func Count(model, text string) int {
	enc, err := encodingForCached(encodingFor(model))
	if err != nil {
		return 0
	}
	return len(enc.Encode(text, nil, nil))
}

// CountMessages estimates the prompt token count of messages, including
// the small per-message role/delimiter overhead OpenAI's own counting
// guidance documents.
func CountMessages(model string, messages []types.Message) int {
	enc, err := encodingForCached(encodingFor(model))
	if err != nil {
		return 0
	}
	total := 3 // conversation-level overhead
	for _, m := range messages {
		total += 4 + len(enc.Encode(m.Content, nil, nil)) + len(enc.Encode(string(m.Role), nil, nil))
	}
	return total
}
