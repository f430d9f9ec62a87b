package tuner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gatewayflow/gatewayflow/internal/metrics"
	"github.com/gatewayflow/gatewayflow/types"
)

var testNamespaceSeq uint64

func newTestCollector() *metrics.Collector {
	seq := atomic.AddUint64(&testNamespaceSeq, 1)
	return metrics.NewCollector(fmt.Sprintf("tuner_test_%d", seq), zap.NewNop())
}

type fakeLogSource struct {
	mu        sync.Mutex
	similarity *float64
	err        error
	flagged    []string
}

func (f *fakeLogSource) CacheSimilarity(_ context.Context, _, _ string) (*float64, error) {
	return f.similarity, f.err
}

func (f *fakeLogSource) MarkFlagged(_ context.Context, _, logID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flagged = append(f.flagged, logID)
	return nil
}

type fakeThresholdStore struct {
	current float64
	updated float64
	updates int
}

func (f *fakeThresholdStore) CacheThreshold(_ context.Context, _ string) (float64, error) {
	return f.current, nil
}

func (f *fakeThresholdStore) UpdateCacheThreshold(_ context.Context, _ string, threshold float64) error {
	f.updated = threshold
	f.updates++
	f.current = threshold
	return nil
}

func ptr(f float64) *float64 { return &f }

func TestTuner_FlagIncorrect_RaisesThresholdWhenSuggestedIsHigher(t *testing.T) {
	logs := &fakeLogSource{similarity: ptr(0.90)}
	thresholds := &fakeThresholdStore{current: 0.85}
	tuner := New(logs, thresholds, newTestCollector(), zap.NewNop())

	apiErr, err := tuner.FlagIncorrect(context.Background(), "proj-1", "log-1")
	require.NoError(t, err)
	require.Nil(t, apiErr)
	assert.Equal(t, 1, thresholds.updates)
	assert.InDelta(t, 0.92, thresholds.updated, 1e-9)
	assert.Equal(t, []string{"log-1"}, logs.flagged)
}

func TestTuner_FlagIncorrect_ClampsAtMax(t *testing.T) {
	logs := &fakeLogSource{similarity: ptr(0.995)}
	thresholds := &fakeThresholdStore{current: 0.97}
	tuner := New(logs, thresholds, newTestCollector(), zap.NewNop())

	_, err := tuner.FlagIncorrect(context.Background(), "proj-1", "log-1")
	require.NoError(t, err)
	assert.InDelta(t, types.MaxCacheThreshold, thresholds.updated, 1e-9)
}

func TestTuner_FlagIncorrect_NoopWhenSuggestedNotHigher(t *testing.T) {
	logs := &fakeLogSource{similarity: ptr(0.80)}
	thresholds := &fakeThresholdStore{current: 0.95}
	tuner := New(logs, thresholds, newTestCollector(), zap.NewNop())

	_, err := tuner.FlagIncorrect(context.Background(), "proj-1", "log-1")
	require.NoError(t, err)
	assert.Equal(t, 0, thresholds.updates)
	assert.Equal(t, []string{"log-1"}, logs.flagged, "log is marked flagged even when tuning is a no-op")
}

func TestTuner_FlagIncorrect_IdempotentOnSecondFlag(t *testing.T) {
	logs := &fakeLogSource{similarity: ptr(0.90)}
	thresholds := &fakeThresholdStore{current: 0.85}
	tuner := New(logs, thresholds, newTestCollector(), zap.NewNop())

	_, err := tuner.FlagIncorrect(context.Background(), "proj-1", "log-1")
	require.NoError(t, err)
	firstUpdate := thresholds.updated

	_, err = tuner.FlagIncorrect(context.Background(), "proj-1", "log-1")
	require.NoError(t, err)
	assert.Equal(t, 1, thresholds.updates, "second flag on the same log must not raise the threshold again")
	assert.Equal(t, firstUpdate, thresholds.updated)
}

func TestTuner_FlagIncorrect_ReturnsValidationErrorForNonSemanticDecision(t *testing.T) {
	logs := &fakeLogSource{similarity: nil}
	thresholds := &fakeThresholdStore{current: 0.95}
	tuner := New(logs, thresholds, newTestCollector(), zap.NewNop())

	apiErr, err := tuner.FlagIncorrect(context.Background(), "proj-1", "log-1")
	require.NoError(t, err)
	require.NotNil(t, apiErr)
	assert.Equal(t, types.ErrValidation, apiErr.Code)
	assert.Equal(t, 0, thresholds.updates)
}
