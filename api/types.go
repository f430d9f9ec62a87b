// Package api holds the gateway's HTTP wire types. Grounded on
// BaSui01-agentflow's api/types.go, but narrowed: gatewayflow's chat
// request/response are already JSON-tagged domain types
// (types.ChatRequest/types.ChatResponse), so there is no separate
// api.ChatRequest/convertToLLMRequest translation layer here — only the
// few shapes with no existing domain type (errors, legacy completions,
// embeddings, agent-run ingestion results) get one.
package api

import (
	"encoding/json"

	"github.com/gatewayflow/gatewayflow/types"
)

// ErrorResponse is the single error envelope every endpoint returns on
// failure (spec §6/§7: "clients see ... a single JSON error envelope").
// Deliberately flat — `{"error": "..."}` — rather than a nested
// success/data/error envelope, matching the exact shape spec.md's
// worked scenarios assert against.
type ErrorResponse struct {
	Error string `json:"error"`
}

// CompletionRequest is the legacy single-prompt text-completions request
// (spec §6: "legacy text completions, OpenAI-style only").
type CompletionRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	Temperature float32  `json:"temperature,omitempty"`
	TopP        float32  `json:"top_p,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// CompletionChoice is one choice in a CompletionResponse.
type CompletionChoice struct {
	Index        int    `json:"index"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"`
}

// CompletionResponse is the legacy text-completions response, translated
// from a types.ChatResponse with a single assistant message per choice.
type CompletionResponse struct {
	ID        string             `json:"id"`
	Provider  types.Provider     `json:"provider"`
	Model     string             `json:"model"`
	Choices   []CompletionChoice `json:"choices"`
	Usage     types.ChatUsage    `json:"usage"`
	CreatedAt string             `json:"created_at"`
}

// EmbeddingsInput accepts either a single string or an array of strings,
// matching spec §6's "input string or array of strings". UnmarshalJSON
// normalizes both shapes to a []string.
type EmbeddingsInput []string

// UnmarshalJSON implements json.Unmarshaler, accepting a bare string or a
// JSON array of strings.
func (e *EmbeddingsInput) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*e = EmbeddingsInput{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*e = many
	return nil
}

// EmbeddingsRequest is the request body for POST /v1/embeddings.
type EmbeddingsRequest struct {
	Model string          `json:"model"`
	Input EmbeddingsInput `json:"input"`
}

// EmbeddingData is one vector in an EmbeddingsResponse, OpenAI-shaped.
type EmbeddingData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
	Object    string    `json:"object"`
}

// EmbeddingsUsage reports token accounting for an embeddings call.
// Upstream embeddings endpoints report no completion tokens.
type EmbeddingsUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// EmbeddingsResponse is the response body for POST /v1/embeddings,
// OpenAI-compatible.
type EmbeddingsResponse struct {
	Model  string          `json:"model"`
	Data   []EmbeddingData `json:"data"`
	Usage  EmbeddingsUsage `json:"usage"`
	Object string          `json:"object"`
}

// AgentRunResponse is the response body for POST /v1/agent-runs (spec
// §6: "Response: {success, run_id, flags[]} or {error}").
type AgentRunResponse struct {
	Success bool         `json:"success"`
	RunID   string       `json:"run_id"`
	Flags   []types.Flag `json:"flags"`
}

// FlagIncorrectResponse reports the outcome of a flag_incorrect call.
type FlagIncorrectResponse struct {
	Flagged bool `json:"flagged"`
}
