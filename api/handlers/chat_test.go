package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gatewayflow/gatewayflow/coalesce"
	"github.com/gatewayflow/gatewayflow/cost"
	"github.com/gatewayflow/gatewayflow/credential"
	"github.com/gatewayflow/gatewayflow/events"
	"github.com/gatewayflow/gatewayflow/internal/cache"
	"github.com/gatewayflow/gatewayflow/internal/channel"
	"github.com/gatewayflow/gatewayflow/internal/metrics"
	"github.com/gatewayflow/gatewayflow/pipeline"
	"github.com/gatewayflow/gatewayflow/router"
	"github.com/gatewayflow/gatewayflow/semanticcache"
	"github.com/gatewayflow/gatewayflow/types"
	"github.com/gatewayflow/gatewayflow/vectorstore"
)

var testNamespaceSeq uint64

func newTestCollector() *metrics.Collector {
	seq := atomic.AddUint64(&testNamespaceSeq, 1)
	return metrics.NewCollector(fmt.Sprintf("handlers_test_%d", seq), zap.NewNop())
}

type fakeAPIKeyStore struct {
	projects map[string]string
}

func (f *fakeAPIKeyStore) ResolveProjectID(_ context.Context, apiKey string) (string, error) {
	return f.projects[apiKey], nil
}

type fakeCredentialStore struct{}

func (f *fakeCredentialStore) ActiveCredential(_ context.Context, _ string, _ types.Provider) (*types.ProviderCredential, error) {
	return nil, nil
}

func (f *fakeCredentialStore) TouchLastUsed(_ context.Context, _ uint) error { return nil }

type fakeProjectStore struct{ threshold float64 }

func (f *fakeProjectStore) CacheThreshold(_ context.Context, _ string) (float64, error) {
	return f.threshold, nil
}

type fakeEmbedder struct{}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 0, 0}, nil
}

type stubProvider struct {
	name     types.Provider
	response *types.ChatResponse
	err      *types.Error
	chunks   []types.StreamChunk
}

func (s *stubProvider) Name() types.Provider { return s.name }

func (s *stubProvider) Complete(_ context.Context, _ string, _ *types.ChatRequest) (*types.ChatResponse, *types.Error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.response, nil
}

func (s *stubProvider) Stream(_ context.Context, _ string, _ *types.ChatRequest) (<-chan types.StreamChunk, *types.Error) {
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan types.StreamChunk, len(s.chunks))
	for _, c := range s.chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

type chatHarness struct {
	handler  *ChatHandler
	provider *stubProvider
	sink     *fakeSink
	mr       *miniredis.Miniredis
}

type fakeSink struct{ writes []types.NormalizedEvent }

func (f *fakeSink) Write(_ context.Context, event types.NormalizedEvent) error {
	f.writes = append(f.writes, event)
	return nil
}

func newChatHarness(t *testing.T, provider *stubProvider) *chatHarness {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	cacheCfg := cache.DefaultConfig()
	cacheCfg.Addr = mr.Addr()
	mgr, err := cache.NewManager(cacheCfg, zap.NewNop())
	require.NoError(t, err)
	exact := semanticcache.NewExactKeyStore(mgr, time.Minute)
	vs := vectorstore.NewInMemoryVectorStore()
	cache := semanticcache.New(exact, vs, &fakeEmbedder{}, 4096, zap.NewNop())

	apiKeys := &fakeAPIKeyStore{projects: map[string]string{"valid-key": "proj-1"}}
	creds := credential.NewResolver(apiKeys, &fakeCredentialStore{}, credential.Config{
		PoolKeys:   map[types.Provider]string{provider.name: "pool-secret"},
		FreeModels: []string{"gpt-4o"},
	}, zap.NewNop())

	collector := newTestCollector()
	coalescer := coalesce.New(collector)

	r := router.New(router.Config{
		Exact: map[string]types.Provider{"gpt-4o": provider.name},
	}, map[types.Provider]router.Provider{provider.name: provider})

	sink := &fakeSink{}
	emitter := events.New(channel.DefaultTunableConfig(), sink, collector, zap.NewNop())
	costs := cost.NewEstimator()

	p := pipeline.New(pipeline.Config{Deadline: time.Second}, creds, coalescer, cache, r, costs, emitter, &fakeProjectStore{threshold: types.DefaultCacheThreshold}, zap.NewNop())

	return &chatHarness{
		handler:  NewChatHandler(p, r, creds, emitter, costs, zap.NewNop()),
		provider: provider,
		sink:     sink,
		mr:       mr,
	}
}

func chatResponse(content string) *types.ChatResponse {
	return &types.ChatResponse{
		ID:      "resp-1",
		Model:   "gpt-4o",
		Choices: []types.ChatChoice{{Index: 0, Message: types.NewAssistantMessage(content)}},
		Usage:   types.ChatUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

func TestChatHandler_HandleCompletion_Success(t *testing.T) {
	h := newChatHarness(t, &stubProvider{name: types.ProviderOpenAI, response: chatResponse("hi there")})
	defer h.mr.Close()

	body := `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`
	r := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Authorization", "Bearer valid-key")
	w := httptest.NewRecorder()

	h.handler.HandleCompletion(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var resp types.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "hi there", resp.Choices[0].Message.Content)
}

func TestChatHandler_HandleCompletion_MissingModelIsValidationError(t *testing.T) {
	h := newChatHarness(t, &stubProvider{name: types.ProviderOpenAI})
	defer h.mr.Close()

	body := `{"messages":[{"role":"user","content":"hi"}]}`
	r := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Authorization", "Bearer valid-key")
	w := httptest.NewRecorder()

	h.handler.HandleCompletion(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatHandler_HandleCompletion_MissingBearerTokenIsUnauthorized(t *testing.T) {
	h := newChatHarness(t, &stubProvider{name: types.ProviderOpenAI})
	defer h.mr.Close()

	body := `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`
	r := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.handler.HandleCompletion(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestChatHandler_HandleCompletion_WrongContentTypeRejected(t *testing.T) {
	h := newChatHarness(t, &stubProvider{name: types.ProviderOpenAI})
	defer h.mr.Close()

	r := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader("{}"))
	r.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()

	h.handler.HandleCompletion(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatHandler_HandleCompletion_Streaming_ForwardsSSEChunks(t *testing.T) {
	chunks := []types.StreamChunk{
		{ID: "1", Index: 0, Delta: types.Message{Content: "he"}},
		{ID: "1", Index: 0, Delta: types.Message{Content: "llo"}, FinishReason: "stop", Usage: &types.ChatUsage{PromptTokens: 3, CompletionTokens: 2}},
	}
	h := newChatHarness(t, &stubProvider{name: types.ProviderOpenAI, chunks: chunks})
	defer h.mr.Close()

	body := `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}],"stream":true}`
	r := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Authorization", "Bearer valid-key")
	w := httptest.NewRecorder()

	h.handler.HandleCompletion(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	out := w.Body.String()
	assert.Contains(t, out, "\"delta\"")
	assert.Contains(t, out, "[DONE]")
}
