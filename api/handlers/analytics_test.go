package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gatewayflow/gatewayflow/api"
	"github.com/gatewayflow/gatewayflow/tuner"
)

type fakeLogSource struct {
	similarity *float64
	flagged    []string
}

func (f *fakeLogSource) CacheSimilarity(_ context.Context, _, _ string) (*float64, error) {
	return f.similarity, nil
}

func (f *fakeLogSource) MarkFlagged(_ context.Context, _, logID string) error {
	f.flagged = append(f.flagged, logID)
	return nil
}

type fakeThresholdStore struct {
	thresholds map[string]float64
}

func (f *fakeThresholdStore) CacheThreshold(_ context.Context, project string) (float64, error) {
	return f.thresholds[project], nil
}

func (f *fakeThresholdStore) UpdateCacheThreshold(_ context.Context, project string, threshold float64) error {
	f.thresholds[project] = threshold
	return nil
}

func newAnalyticsHandler(t *testing.T, sinkHandler http.Handler, jwtSecret []byte) (*AnalyticsHandler, *fakeAPIKeyStore) {
	t.Helper()

	sink := httptest.NewServer(sinkHandler)
	t.Cleanup(sink.Close)

	apiKeys := &fakeAPIKeyStore{projects: map[string]string{"valid-key": "proj-1"}}
	similarity := 0.9
	tun := tuner.New(&fakeLogSource{similarity: &similarity}, &fakeThresholdStore{thresholds: map[string]float64{"proj-1": 0.85}}, newTestCollector(), zap.NewNop())

	return NewAnalyticsHandler(sink.URL, "sink-secret", apiKeys, jwtSecret, tun, 2*time.Second, zap.NewNop()), apiKeys
}

func TestAnalyticsHandler_HandleStats_ProxiesToSink(t *testing.T) {
	sinkHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sink-secret", r.Header.Get("Authorization"))
		assert.Equal(t, "/stats", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"requests":42}`))
	})
	h, _ := newAnalyticsHandler(t, sinkHandler, nil)

	r := httptest.NewRequest(http.MethodGet, "/v1/analytics/stats", nil)
	r.Header.Set("Authorization", "Bearer valid-key")
	w := httptest.NewRecorder()

	h.HandleStats(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"requests":42}`, w.Body.String())
}

func TestAnalyticsHandler_HandleEvent_UsesPathValueInSinkPath(t *testing.T) {
	sinkHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events/evt-123", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})
	h, _ := newAnalyticsHandler(t, sinkHandler, nil)

	r := httptest.NewRequest(http.MethodGet, "/v1/analytics/event/evt-123", nil)
	r.SetPathValue("id", "evt-123")
	r.Header.Set("Authorization", "Bearer valid-key")
	w := httptest.NewRecorder()

	h.HandleEvent(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAnalyticsHandler_ProxyGET_MismatchedProjectIDIsForbidden(t *testing.T) {
	sinkHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("sink should not be called when project_id mismatches")
	})
	h, _ := newAnalyticsHandler(t, sinkHandler, nil)

	r := httptest.NewRequest(http.MethodGet, "/v1/analytics/stats?project_id=other-project", nil)
	r.Header.Set("Authorization", "Bearer valid-key")
	w := httptest.NewRecorder()

	h.HandleStats(w, r)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAnalyticsHandler_Authenticate_MissingTokenIsUnauthorized(t *testing.T) {
	sinkHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("sink should not be called without a bearer token")
	})
	h, _ := newAnalyticsHandler(t, sinkHandler, nil)

	r := httptest.NewRequest(http.MethodGet, "/v1/analytics/stats", nil)
	w := httptest.NewRecorder()

	h.HandleStats(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAnalyticsHandler_Authenticate_ValidJWTResolvesProject(t *testing.T) {
	secret := []byte("test-signing-secret")
	sinkHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h, _ := newAnalyticsHandler(t, sinkHandler, secret)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"project_id": "proj-1"})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/v1/analytics/stats", nil)
	r.Header.Set("Authorization", "Bearer "+signed)
	w := httptest.NewRecorder()

	h.HandleStats(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAnalyticsHandler_HandleFlagIncorrect_Success(t *testing.T) {
	h, _ := newAnalyticsHandler(t, http.NotFoundHandler(), nil)

	r := httptest.NewRequest(http.MethodPost, "/v1/analytics/event/evt-123/flag", nil)
	r.SetPathValue("id", "evt-123")
	r.Header.Set("Authorization", "Bearer valid-key")
	w := httptest.NewRecorder()

	h.HandleFlagIncorrect(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var resp api.FlagIncorrectResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Flagged)
}

func TestAnalyticsHandler_HandleFlagIncorrect_MissingIDIsValidationError(t *testing.T) {
	h, _ := newAnalyticsHandler(t, http.NotFoundHandler(), nil)

	r := httptest.NewRequest(http.MethodPost, "/v1/analytics/event//flag", nil)
	r.Header.Set("Authorization", "Bearer valid-key")
	w := httptest.NewRecorder()

	h.HandleFlagIncorrect(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
