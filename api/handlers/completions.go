package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/gatewayflow/gatewayflow/api"
	"github.com/gatewayflow/gatewayflow/pipeline"
	"github.com/gatewayflow/gatewayflow/types"
)

// CompletionsHandler serves POST /v1/completions, the legacy
// single-prompt text-completions endpoint (spec §6: "OpenAI-style
// only"). It translates to/from a one-message types.ChatRequest and
// reuses the full chat pipeline rather than duplicating C1-C9, since the
// legacy endpoint is just a different wire shape over the same
// normalized request/response.
type CompletionsHandler struct {
	pipeline *pipeline.Pipeline
	logger   *zap.Logger
}

// NewCompletionsHandler creates a CompletionsHandler.
func NewCompletionsHandler(p *pipeline.Pipeline, logger *zap.Logger) *CompletionsHandler {
	return &CompletionsHandler{pipeline: p, logger: logger.With(zap.String("component", "completions_handler"))}
}

// HandleCompletion handles POST /v1/completions.
func (h *CompletionsHandler) HandleCompletion(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var legacy api.CompletionRequest
	if DecodeJSONBody(w, r, &legacy, h.logger) != nil {
		return
	}
	if legacy.Model == "" {
		WriteError(w, types.NewError(types.ErrValidation, "model is required"), h.logger)
		return
	}
	if legacy.Prompt == "" {
		WriteError(w, types.NewError(types.ErrValidation, "prompt is required"), h.logger)
		return
	}

	apiKey := BearerToken(r)
	if apiKey == "" {
		WriteError(w, types.NewError(types.ErrUnauthorized, "missing bearer token"), h.logger)
		return
	}

	req := &types.ChatRequest{
		Model:       legacy.Model,
		Messages:    []types.Message{types.NewUserMessage(legacy.Prompt)},
		Temperature: legacy.Temperature,
		TopP:        legacy.TopP,
		MaxTokens:   legacy.MaxTokens,
		Stop:        legacy.Stop,
	}

	resp, apiErr := h.pipeline.Complete(r.Context(), apiKey, req)
	if apiErr != nil {
		WriteError(w, apiErr, h.logger)
		return
	}

	WriteSuccess(w, toLegacyResponse(resp))
}

func toLegacyResponse(resp *types.ChatResponse) api.CompletionResponse {
	choices := make([]api.CompletionChoice, len(resp.Choices))
	for i, c := range resp.Choices {
		choices[i] = api.CompletionChoice{
			Index:        c.Index,
			Text:         c.Message.Content,
			FinishReason: c.FinishReason,
		}
	}
	return api.CompletionResponse{
		ID:        resp.ID,
		Provider:  resp.Provider,
		Model:     resp.Model,
		Choices:   choices,
		Usage:     resp.Usage,
		CreatedAt: resp.CreatedAt.Format(time.RFC3339),
	}
}
