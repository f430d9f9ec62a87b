package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/gatewayflow/gatewayflow/api"
	"github.com/gatewayflow/gatewayflow/credential"
	"github.com/gatewayflow/gatewayflow/internal/tokencount"
	"github.com/gatewayflow/gatewayflow/semanticcache"
	"github.com/gatewayflow/gatewayflow/types"
)

// EmbeddingsHandler serves POST /v1/embeddings. It reuses
// semanticcache.Embedder — the same HTTP client the semantic cache (C5)
// uses internally to vectorize prompts — as the upstream-calling
// primitive, rather than standing up a second embeddings client: the
// gateway has exactly one configured embedding provider (config's
// EmbeddingConfig), and the public endpoint is a thin multi-input
// wrapper around the same single-string Embed call C5 already makes.
type EmbeddingsHandler struct {
	embedder semanticcache.Embedder
	apiKeys  credential.APIKeyStore
	logger   *zap.Logger
}

// NewEmbeddingsHandler creates an EmbeddingsHandler.
func NewEmbeddingsHandler(embedder semanticcache.Embedder, apiKeys credential.APIKeyStore, logger *zap.Logger) *EmbeddingsHandler {
	return &EmbeddingsHandler{embedder: embedder, apiKeys: apiKeys, logger: logger.With(zap.String("component", "embeddings_handler"))}
}

// HandleEmbeddings handles POST /v1/embeddings.
func (h *EmbeddingsHandler) HandleEmbeddings(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.EmbeddingsRequest
	if DecodeJSONBody(w, r, &req, h.logger) != nil {
		return
	}
	if len(req.Input) == 0 {
		WriteError(w, types.NewError(types.ErrValidation, "input is required"), h.logger)
		return
	}

	apiKey := BearerToken(r)
	if apiKey == "" {
		WriteError(w, types.NewError(types.ErrUnauthorized, "missing bearer token"), h.logger)
		return
	}
	if project, err := h.apiKeys.ResolveProjectID(r.Context(), apiKey); err != nil || project == "" {
		WriteError(w, types.NewError(types.ErrUnauthorized, "invalid API key"), h.logger)
		return
	}

	data := make([]api.EmbeddingData, len(req.Input))
	promptTokens := 0
	for i, text := range req.Input {
		vec, err := h.embedder.Embed(r.Context(), text)
		if err != nil {
			WriteError(w, types.NewError(types.ErrUpstreamError, "embedding upstream call failed").WithCause(err), h.logger)
			return
		}
		data[i] = api.EmbeddingData{Index: i, Embedding: vec, Object: "embedding"}
		promptTokens += tokencount.Count(req.Model, text)
	}

	WriteSuccess(w, api.EmbeddingsResponse{
		Model:  req.Model,
		Data:   data,
		Usage:  api.EmbeddingsUsage{PromptTokens: promptTokens, TotalTokens: promptTokens},
		Object: "list",
	})
}
