// Package tuner implements the Threshold Tuner (C11): adjusting a
// project's semantic cache similarity threshold upward when a user
// flags a cached response as incorrect, per spec §4.11's monotonic-max
// rule. Grounded on credential.Resolver's small-struct-plus-Config
// shape — C11 is the simplest of the eleven components, so it gets the
// simplest collaborator wiring in the codebase.
package tuner

import (
	"context"

	"go.uber.org/zap"

	"github.com/gatewayflow/gatewayflow/internal/metrics"
	"github.com/gatewayflow/gatewayflow/types"
)

// similarityMargin is added to the flagged similarity before clamping,
// per spec §4.11: "similarity + 0.02".
const similarityMargin = 0.02

// LogSource loads a flagged log's recorded cache similarity and records
// that the log was flagged, scoped to the authenticated project. It is
// backed by the external analytics sink (spec §6: analytics reads are
// "handled by the analytics sink"), not the gateway's own relational
// store — the gateway never persists prompt/response logs itself.
type LogSource interface {
	// CacheSimilarity returns the log's recorded similarity, or nil if
	// the log's cache decision was not "semantic" (spec §4.11: "only
	// meaningful for decision=semantic").
	CacheSimilarity(ctx context.Context, project, logID string) (*float64, error)
	// MarkFlagged records that a user flagged logID as incorrect,
	// independent of whether tuning the threshold actually changes it.
	MarkFlagged(ctx context.Context, project, logID string) error
}

// ThresholdStore reads and updates a project's cache similarity
// threshold.
type ThresholdStore interface {
	CacheThreshold(ctx context.Context, project string) (float64, error)
	UpdateCacheThreshold(ctx context.Context, project string, threshold float64) error
}

// Tuner implements C11's single operation.
type Tuner struct {
	logs       LogSource
	thresholds ThresholdStore
	metrics    *metrics.Collector
	logger     *zap.Logger
}

// New creates a Tuner.
func New(logs LogSource, thresholds ThresholdStore, collector *metrics.Collector, logger *zap.Logger) *Tuner {
	return &Tuner{logs: logs, thresholds: thresholds, metrics: collector, logger: logger.With(zap.String("component", "threshold_tuner"))}
}

// FlagIncorrect implements spec §4.11. It always marks the log as
// flagged; it updates the project's threshold only when doing so
// strictly increases it, which makes the operation idempotent per log
// without needing to track "already flagged" state: a second flag on
// the same log recomputes the same suggested value against an already
// -updated current threshold and finds nothing to raise.
func (t *Tuner) FlagIncorrect(ctx context.Context, project, logID string) (*types.Error, error) {
	if err := t.logs.MarkFlagged(ctx, project, logID); err != nil {
		return nil, err
	}

	similarity, err := t.logs.CacheSimilarity(ctx, project, logID)
	if err != nil {
		return nil, err
	}
	if similarity == nil {
		t.metrics.RecordThresholdTune("invalid")
		return types.NewError(types.ErrValidation, "log was not a semantic cache hit; nothing to tune"), nil
	}

	current, err := t.thresholds.CacheThreshold(ctx, project)
	if err != nil {
		return nil, err
	}

	suggested := types.ClampCacheThreshold(maxFloat(current, *similarity+similarityMargin))
	if suggested <= current {
		t.metrics.RecordThresholdTune("noop")
		return nil, nil
	}

	if err := t.thresholds.UpdateCacheThreshold(ctx, project, suggested); err != nil {
		return nil, err
	}
	t.metrics.RecordThresholdTune("updated")
	t.logger.Info("raised project cache threshold",
		zap.String("project", project), zap.String("log_id", logID),
		zap.Float64("previous", current), zap.Float64("new", suggested))
	return nil, nil
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
