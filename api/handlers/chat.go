package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gatewayflow/gatewayflow/cost"
	"github.com/gatewayflow/gatewayflow/credential"
	"github.com/gatewayflow/gatewayflow/events"
	"github.com/gatewayflow/gatewayflow/internal/tokencount"
	"github.com/gatewayflow/gatewayflow/pipeline"
	"github.com/gatewayflow/gatewayflow/router"
	"github.com/gatewayflow/gatewayflow/types"
)

// ChatHandler serves POST /v1/chat/completions. Non-streaming requests
// go through the full pipeline (coalesce/cache/route/cost/emit);
// streaming requests bypass it — coalescing and caching a live SSE
// stream make no sense, matching spec §4.9's implicit scope (the
// pipeline's named states are all synchronous-response states) — and
// call the router/credential resolver/emitter directly, the same
// collaborators pipeline.Pipeline wraps.
type ChatHandler struct {
	pipeline    *pipeline.Pipeline
	router      *router.Router
	credentials *credential.Resolver
	emitter     *events.Emitter
	costs       *cost.Estimator
	logger      *zap.Logger
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(p *pipeline.Pipeline, r *router.Router, credentials *credential.Resolver, emitter *events.Emitter, costs *cost.Estimator, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		pipeline:    p,
		router:      r,
		credentials: credentials,
		emitter:     emitter,
		costs:       costs,
		logger:      logger.With(zap.String("component", "chat_handler")),
	}
}

// HandleCompletion handles POST /v1/chat/completions.
func (h *ChatHandler) HandleCompletion(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req types.ChatRequest
	if DecodeJSONBody(w, r, &req, h.logger) != nil {
		return
	}

	if apiErr := validateChatRequest(&req); apiErr != nil {
		WriteError(w, apiErr, h.logger)
		return
	}

	apiKey := BearerToken(r)
	if apiKey == "" {
		WriteError(w, types.NewError(types.ErrUnauthorized, "missing bearer token"), h.logger)
		return
	}

	if req.Stream {
		h.handleStream(w, r, apiKey, &req)
		return
	}

	resp, apiErr := h.pipeline.Complete(r.Context(), apiKey, &req)
	if apiErr != nil {
		WriteError(w, apiErr, h.logger)
		return
	}
	WriteSuccess(w, resp)
}

// handleStream resolves the route and credential exactly as
// pipeline.Complete does, then forwards the upstream's SSE stream
// chunk-for-chunk and emits one aggregated event once the stream ends.
func (h *ChatHandler) handleStream(w http.ResponseWriter, r *http.Request, apiKey string, req *types.ChatRequest) {
	ctx := r.Context()
	start := time.Now()
	eventID := uuid.NewString()

	upstream, routeErr := h.router.Resolve(req.Model)
	if routeErr != nil {
		WriteError(w, routeErr, h.logger)
		return
	}

	cred, project, authErr := h.credentials.Resolve(ctx, apiKey, string(upstream.Name()), req.Model)
	if authErr != nil {
		h.emitError(ctx, eventID, project, req.Model, authErr, start)
		WriteError(w, authErr, h.logger)
		return
	}
	req.Project = project

	chunks, streamErr := upstream.Stream(ctx, cred.Secret, req)
	if streamErr != nil {
		h.emitError(ctx, eventID, project, req.Model, streamErr, start)
		WriteError(w, streamErr, h.logger)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, types.NewError(types.ErrInternalError, "streaming unsupported by response writer"), h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	var responseText string
	var usage types.ChatUsage
	var sawErr *types.Error

	for chunk := range chunks {
		if chunk.Err != nil {
			sawErr = chunk.Err
			break
		}
		responseText += chunk.Delta.Content
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
		payload, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}
	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()

	if sawErr != nil {
		h.emitError(ctx, eventID, project, req.Model, sawErr, start)
		return
	}

	if usage.PromptTokens == 0 && usage.CompletionTokens == 0 {
		usage.PromptTokens = tokencount.CountMessages(req.Model, req.Messages)
		usage.CompletionTokens = tokencount.Count(req.Model, responseText)
	}

	potentialCost, _ := h.costs.Calculate(string(upstream.Name()), req.Model, usage.PromptTokens, usage.CompletionTokens)
	h.emitter.Emit(ctx, types.NormalizedEvent{
		EventID:          eventID,
		Project:          project,
		Timestamp:        time.Now(),
		EventType:        types.EventPromptCall,
		Model:            req.Model,
		Response:         responseText,
		TokensIn:         usage.PromptTokens,
		TokensOut:        usage.CompletionTokens,
		CostUSD:          potentialCost,
		PotentialCostUSD: potentialCost,
		LatencyMS:        time.Since(start).Milliseconds(),
		CacheDecision:    types.CacheMiss,
		Status:           types.StatusOK,
		Tags:             []string{string(cred.Source)},
	})
}

func (h *ChatHandler) emitError(ctx context.Context, eventID, project, model string, err *types.Error, start time.Time) {
	status := types.StatusError
	if err.Code == types.ErrTimeout {
		status = types.StatusTimeout
	}
	h.emitter.Emit(ctx, types.NormalizedEvent{
		EventID:       eventID,
		Project:       project,
		Timestamp:     time.Now(),
		EventType:     types.EventError,
		Model:         model,
		LatencyMS:     time.Since(start).Milliseconds(),
		CacheDecision: types.CacheMiss,
		Status:        status,
		ErrorMessage:  err.Message,
	})
}

// validateChatRequest enforces spec §6's request shape before any
// collaborator runs, so a bad request never reaches the router, the
// credential resolver, or an upstream call.
func validateChatRequest(req *types.ChatRequest) *types.Error {
	if req.Model == "" {
		return types.NewError(types.ErrValidation, "model is required")
	}
	if len(req.Messages) == 0 {
		return types.NewError(types.ErrValidation, "messages must not be empty")
	}
	if req.Temperature < 0 || req.Temperature > 2 {
		return types.NewError(types.ErrValidation, "temperature must be between 0 and 2")
	}
	if req.TopP < 0 || req.TopP > 1 {
		return types.NewError(types.ErrValidation, "top_p must be between 0 and 1")
	}
	return nil
}
