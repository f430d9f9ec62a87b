package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/gatewayflow/gatewayflow/credential"
	"github.com/gatewayflow/gatewayflow/ingest"
	"github.com/gatewayflow/gatewayflow/types"
)

// writeTimeout bounds how long a single step write may block before the
// connection is considered dead.
const writeTimeout = 5 * time.Second

// AgentRunStreamHandler serves GET /v1/agent-runs/stream, live-tailing
// every AgentStep ingested for the caller's project as it arrives at
// POST /v1/agent-runs.
type AgentRunStreamHandler struct {
	apiKeys     credential.APIKeyStore
	broadcaster *ingest.Broadcaster
	logger      *zap.Logger
}

// NewAgentRunStreamHandler creates an AgentRunStreamHandler.
func NewAgentRunStreamHandler(apiKeys credential.APIKeyStore, broadcaster *ingest.Broadcaster, logger *zap.Logger) *AgentRunStreamHandler {
	return &AgentRunStreamHandler{
		apiKeys:     apiKeys,
		broadcaster: broadcaster,
		logger:      logger.With(zap.String("component", "agent_run_stream_handler")),
	}
}

// HandleStream upgrades the request to a WebSocket and relays every
// ingest.StepEvent published for the authenticated project until the
// client disconnects. Origin validation is left to the CORS middleware
// in front of the mux; this handler accepts any origin it's reached
// through.
func (h *AgentRunStreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	apiKey := BearerToken(r)
	if apiKey == "" {
		WriteError(w, types.NewError(types.ErrUnauthorized, "missing bearer token"), h.logger)
		return
	}

	project, err := h.apiKeys.ResolveProjectID(r.Context(), apiKey)
	if err != nil || project == "" {
		WriteError(w, types.NewError(types.ErrUnauthorized, "invalid API key"), h.logger)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	events, unsubscribe := h.broadcaster.Subscribe(project)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case event, ok := <-events:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := h.writeEvent(ctx, conn, event); err != nil {
				h.logger.Debug("websocket write failed, closing", zap.Error(err))
				return
			}
		}
	}
}

func (h *AgentRunStreamHandler) writeEvent(ctx context.Context, conn *websocket.Conn, event ingest.StepEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
