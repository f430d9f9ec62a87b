package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/gatewayflow/gatewayflow/api"
	"github.com/gatewayflow/gatewayflow/ingest"
	"github.com/gatewayflow/gatewayflow/types"
)

// AgentRunsHandler serves POST /v1/agent-runs, wrapping the Agent-Run
// Ingestor (C10) directly — types.AgentRun is already the wire type, so
// there is nothing to translate.
type AgentRunsHandler struct {
	ingestor *ingest.Ingestor
	logger   *zap.Logger
}

// NewAgentRunsHandler creates an AgentRunsHandler.
func NewAgentRunsHandler(ingestor *ingest.Ingestor, logger *zap.Logger) *AgentRunsHandler {
	return &AgentRunsHandler{ingestor: ingestor, logger: logger.With(zap.String("component", "agent_runs_handler"))}
}

// HandleIngest handles POST /v1/agent-runs.
func (h *AgentRunsHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var run types.AgentRun
	if DecodeJSONBody(w, r, &run, h.logger) != nil {
		return
	}
	if run.AgentName == "" {
		WriteError(w, types.NewError(types.ErrValidation, "agent_name is required"), h.logger)
		return
	}
	if len(run.Steps) == 0 {
		WriteError(w, types.NewError(types.ErrValidation, "steps must not be empty"), h.logger)
		return
	}

	apiKey := BearerToken(r)
	if apiKey == "" {
		WriteError(w, types.NewError(types.ErrUnauthorized, "missing bearer token"), h.logger)
		return
	}

	result, apiErr := h.ingestor.Ingest(r.Context(), apiKey, run)
	if apiErr != nil {
		WriteError(w, apiErr, h.logger)
		return
	}

	WriteSuccess(w, api.AgentRunResponse{Success: true, RunID: result.RunID, Flags: result.Flags})
}
