package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gatewayflow/gatewayflow/api"
	"github.com/gatewayflow/gatewayflow/events"
	"github.com/gatewayflow/gatewayflow/ingest"
	"github.com/gatewayflow/gatewayflow/internal/channel"
	"github.com/gatewayflow/gatewayflow/sanitize"
	"github.com/gatewayflow/gatewayflow/types"
)

type fakeRunStore struct{ saved bool }

func (f *fakeRunStore) SaveRun(_ context.Context, _ types.AgentRun, _ []types.Flag, _ types.CostSummary, _ []types.CachingOpportunity) error {
	f.saved = true
	return nil
}

func newAgentRunsHandler(t *testing.T, apiKeys *fakeAPIKeyStore) (*AgentRunsHandler, *fakeRunStore) {
	t.Helper()

	store := &fakeRunStore{}
	sink := &fakeSink{}
	collector := newTestCollector()
	emitter := events.New(channel.DefaultTunableConfig(), sink, collector, zap.NewNop())
	ingestor := ingest.New(apiKeys, sanitize.New(4096), store, emitter, collector, ingest.DefaultFlagDetectionConfig(), nil, nil, zap.NewNop())

	return NewAgentRunsHandler(ingestor, zap.NewNop()), store
}

func TestAgentRunsHandler_HandleIngest_Success(t *testing.T) {
	apiKeys := &fakeAPIKeyStore{projects: map[string]string{"valid-key": "proj-1"}}
	h, store := newAgentRunsHandler(t, apiKeys)

	run := types.AgentRun{
		AgentName: "researcher",
		StartedAt: time.Now(),
		Steps: []types.AgentStep{
			{Type: types.StepToolCall, Summary: "searched the web", Timestamp: time.Now()},
		},
	}
	body, err := json.Marshal(run)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/v1/agent-runs", strings.NewReader(string(body)))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Authorization", "Bearer valid-key")
	w := httptest.NewRecorder()

	h.HandleIngest(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var resp api.AgentRunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.RunID)
	assert.True(t, store.saved)
}

func TestAgentRunsHandler_HandleIngest_MissingAgentNameIsValidationError(t *testing.T) {
	apiKeys := &fakeAPIKeyStore{projects: map[string]string{"valid-key": "proj-1"}}
	h, _ := newAgentRunsHandler(t, apiKeys)

	body := `{"steps":[{"type":"tool_call"}]}`
	r := httptest.NewRequest(http.MethodPost, "/v1/agent-runs", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Authorization", "Bearer valid-key")
	w := httptest.NewRecorder()

	h.HandleIngest(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAgentRunsHandler_HandleIngest_EmptyStepsIsValidationError(t *testing.T) {
	apiKeys := &fakeAPIKeyStore{projects: map[string]string{"valid-key": "proj-1"}}
	h, _ := newAgentRunsHandler(t, apiKeys)

	body := `{"agent_name":"researcher","steps":[]}`
	r := httptest.NewRequest(http.MethodPost, "/v1/agent-runs", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Authorization", "Bearer valid-key")
	w := httptest.NewRecorder()

	h.HandleIngest(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAgentRunsHandler_HandleIngest_InvalidAPIKeyIsUnauthorized(t *testing.T) {
	apiKeys := &fakeAPIKeyStore{projects: map[string]string{}}
	h, _ := newAgentRunsHandler(t, apiKeys)

	body := `{"agent_name":"researcher","steps":[{"type":"tool_call"}]}`
	r := httptest.NewRequest(http.MethodPost, "/v1/agent-runs", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Authorization", "Bearer unknown-key")
	w := httptest.NewRecorder()

	h.HandleIngest(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
