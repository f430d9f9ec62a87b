package router

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewayflow/gatewayflow/types"
)

type stubProvider struct {
	name types.Provider
}

func (s stubProvider) Name() types.Provider { return s.name }
func (s stubProvider) Complete(ctx context.Context, secret string, req *types.ChatRequest) (*types.ChatResponse, *types.Error) {
	return &types.ChatResponse{Provider: s.name}, nil
}
func (s stubProvider) Stream(ctx context.Context, secret string, req *types.ChatRequest) (<-chan types.StreamChunk, *types.Error) {
	return nil, nil
}

func newTestRouter() *Router {
	providers := map[types.Provider]Provider{
		types.ProviderOpenAI:     stubProvider{types.ProviderOpenAI},
		types.ProviderAnthropic:  stubProvider{types.ProviderAnthropic},
		types.ProviderGroq:       stubProvider{types.ProviderGroq},
		types.ProviderOpenRouter: stubProvider{types.ProviderOpenRouter},
	}
	return New(Config{
		Exact: map[string]types.Provider{
			"gpt-4o":            types.ProviderOpenAI,
			"claude-3-5-sonnet": types.ProviderAnthropic,
		},
		Prefixes: []PrefixRule{
			{Prefix: "gpt-", Provider: types.ProviderOpenAI},
			{Prefix: "claude-", Provider: types.ProviderAnthropic},
			{Prefix: "llama-3.1-70b", Provider: types.ProviderGroq},
			{Prefix: "llama", Provider: types.ProviderGroq},
		},
		Aggregator: types.ProviderOpenRouter,
	}, providers)
}

func TestRouter_Resolve_ExactMatch(t *testing.T) {
	r := newTestRouter()
	p, err := r.Resolve("gpt-4o")
	require.Nil(t, err)
	assert.Equal(t, types.ProviderOpenAI, p.Name())
}

func TestRouter_Resolve_PrefixMatch(t *testing.T) {
	r := newTestRouter()
	p, err := r.Resolve("gpt-4o-mini")
	require.Nil(t, err)
	assert.Equal(t, types.ProviderOpenAI, p.Name())
}

func TestRouter_Resolve_LongestPrefixWins(t *testing.T) {
	r := newTestRouter()
	p, err := r.Resolve("llama-3.1-70b-versatile")
	require.Nil(t, err)
	assert.Equal(t, types.ProviderGroq, p.Name())
}

func TestRouter_Resolve_SlashFallsBackToAggregator(t *testing.T) {
	r := newTestRouter()
	p, err := r.Resolve("mistralai/mistral-7b-instruct:free")
	require.Nil(t, err)
	assert.Equal(t, types.ProviderOpenRouter, p.Name())
}

func TestRouter_Resolve_UnknownModelReturnsValidationError(t *testing.T) {
	r := newTestRouter()
	_, err := r.Resolve("some-unregistered-model")
	require.NotNil(t, err)
	assert.Equal(t, types.ErrValidation, err.Code)
}

func TestRouter_Resolve_NoImplementationRegisteredReturnsInternalError(t *testing.T) {
	r := New(Config{Exact: map[string]types.Provider{"model-x": types.ProviderOpenAI}}, map[types.Provider]Provider{})
	_, err := r.Resolve("model-x")
	require.NotNil(t, err)
	assert.Equal(t, types.ErrInternalError, err.Code)
}

func TestReadErrorBody_TruncatesToMax(t *testing.T) {
	big := make([]byte, maxErrorBodyBytes*2)
	for i := range big {
		big[i] = 'x'
	}
	got := ReadErrorBody(bytes.NewReader(big))
	assert.Len(t, got, maxErrorBodyBytes)
}

func TestMapHTTPError_StatusCodes(t *testing.T) {
	cases := []struct {
		status int
		code   types.ErrorCode
	}{
		{401, types.ErrUnauthorized},
		{403, types.ErrForbidden},
		{429, types.ErrRateLimited},
		{400, types.ErrValidation},
		{500, types.ErrUpstreamError},
	}
	for _, c := range cases {
		err := MapHTTPError(c.status, "body", types.ProviderOpenAI)
		assert.Equal(t, c.code, err.Code)
	}
	assert.True(t, MapHTTPError(429, "", types.ProviderOpenAI).Retryable)
	assert.True(t, MapHTTPError(503, "", types.ProviderOpenAI).Retryable)
	assert.False(t, MapHTTPError(400, "", types.ProviderOpenAI).Retryable)
}
