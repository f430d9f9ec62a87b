package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewayflow/gatewayflow/types"
)

func TestComputeCostSummary_TotalAndWastedSpend(t *testing.T) {
	steps := []types.AgentStep{
		{Type: types.StepToolCall, Tool: "search", ToolArgs: "q=weather", ToolOutputSummary: "sunny", APICostUSD: 0.01},
		{Type: types.StepToolCall, Tool: "search", ToolArgs: "q=weather", ToolOutputSummary: "sunny", APICostUSD: 0.01},
		{Type: types.StepRetry, APICostUSD: 0.02},
		{Type: types.StepModelResponse, APICostUSD: 0.03, CacheHit: true},
	}
	summary := ComputeCostSummary(steps)

	assert.InDelta(t, 0.07, summary.TotalCostUSD, 1e-9)
	assert.InDelta(t, 0.03, summary.WastedSpendUSD, 1e-9) // retry (0.02) + repeat identical tool call (0.01)
	assert.InDelta(t, 0.03, summary.AmountSavedUSD, 1e-9)
}

func TestComputeCostSummary_CacheHitRateOverCacheableTypesOnly(t *testing.T) {
	steps := []types.AgentStep{
		{Type: types.StepDecision, CacheHit: true},
		{Type: types.StepDecision, CacheHit: false},
		{Type: types.StepUserInput, CacheHit: true}, // not cacheable, excluded from denominator
	}
	summary := ComputeCostSummary(steps)
	assert.InDelta(t, 0.5, summary.CacheHitRate, 1e-9)
}

func TestComputeCostSummary_NoCacheableStepsYieldsZeroRate(t *testing.T) {
	steps := []types.AgentStep{{Type: types.StepUserInput}}
	summary := ComputeCostSummary(steps)
	assert.Zero(t, summary.CacheHitRate)
}

func TestComputeCachingOpportunities_FindsNearDuplicateToolCall(t *testing.T) {
	steps := []types.AgentStep{
		{StepIndex: 0, Type: types.StepToolCall, Tool: "search", ToolArgs: "query the weather in paris today", APICostUSD: 0.02},
		{StepIndex: 1, Type: types.StepToolCall, Tool: "search", ToolArgs: "query the weather in paris today", APICostUSD: 0.02},
	}
	opportunities := ComputeCachingOpportunities(steps)
	require.Len(t, opportunities, 1)
	assert.Equal(t, 1, opportunities[0].StepIndex)
	assert.Equal(t, 0, opportunities[0].ReferenceStepIndex)
	assert.InDelta(t, 0.02, opportunities[0].SavedCost, 1e-9)
}

func TestComputeCachingOpportunities_IgnoresCacheHitSteps(t *testing.T) {
	steps := []types.AgentStep{
		{StepIndex: 0, Type: types.StepToolCall, Tool: "search", ToolArgs: "same args"},
		{StepIndex: 1, Type: types.StepToolCall, Tool: "search", ToolArgs: "same args", CacheHit: true},
	}
	assert.Empty(t, ComputeCachingOpportunities(steps))
}

func TestComputeCachingOpportunities_EachStepContributesAtMostOne(t *testing.T) {
	steps := []types.AgentStep{
		{StepIndex: 0, Type: types.StepModelResponse, Raw: "the capital of france is paris"},
		{StepIndex: 1, Type: types.StepModelResponse, Raw: "the capital of france is paris"},
		{StepIndex: 2, Type: types.StepModelResponse, Raw: "the capital of france is paris"},
	}
	opportunities := ComputeCachingOpportunities(steps)
	require.Len(t, opportunities, 2)
	assert.Equal(t, 0, opportunities[0].ReferenceStepIndex)
	assert.Equal(t, 0, opportunities[1].ReferenceStepIndex)
}
