package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gatewayflow/gatewayflow/api"
)

func TestEmbeddingsHandler_HandleEmbeddings_SingleString(t *testing.T) {
	apiKeys := &fakeAPIKeyStore{projects: map[string]string{"valid-key": "proj-1"}}
	h := NewEmbeddingsHandler(&fakeEmbedder{}, apiKeys, zap.NewNop())

	body := `{"model":"text-embedding-3-small","input":"hello world"}`
	r := httptest.NewRequest(http.MethodPost, "/v1/embeddings", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Authorization", "Bearer valid-key")
	w := httptest.NewRecorder()

	h.HandleEmbeddings(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var resp api.EmbeddingsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 1)
	assert.Positive(t, resp.Usage.PromptTokens)
}

func TestEmbeddingsHandler_HandleEmbeddings_ArrayInput(t *testing.T) {
	apiKeys := &fakeAPIKeyStore{projects: map[string]string{"valid-key": "proj-1"}}
	h := NewEmbeddingsHandler(&fakeEmbedder{}, apiKeys, zap.NewNop())

	body := `{"model":"text-embedding-3-small","input":["first","second","third"]}`
	r := httptest.NewRequest(http.MethodPost, "/v1/embeddings", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Authorization", "Bearer valid-key")
	w := httptest.NewRecorder()

	h.HandleEmbeddings(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var resp api.EmbeddingsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 3)
	assert.Equal(t, 0, resp.Data[0].Index)
	assert.Equal(t, 2, resp.Data[2].Index)
}

func TestEmbeddingsHandler_HandleEmbeddings_EmptyInputIsValidationError(t *testing.T) {
	apiKeys := &fakeAPIKeyStore{projects: map[string]string{"valid-key": "proj-1"}}
	h := NewEmbeddingsHandler(&fakeEmbedder{}, apiKeys, zap.NewNop())

	body := `{"model":"text-embedding-3-small","input":[]}`
	r := httptest.NewRequest(http.MethodPost, "/v1/embeddings", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Authorization", "Bearer valid-key")
	w := httptest.NewRecorder()

	h.HandleEmbeddings(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEmbeddingsHandler_HandleEmbeddings_MissingBearerTokenIsUnauthorized(t *testing.T) {
	apiKeys := &fakeAPIKeyStore{projects: map[string]string{"valid-key": "proj-1"}}
	h := NewEmbeddingsHandler(&fakeEmbedder{}, apiKeys, zap.NewNop())

	body := `{"model":"text-embedding-3-small","input":"hello"}`
	r := httptest.NewRequest(http.MethodPost, "/v1/embeddings", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.HandleEmbeddings(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
