package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewayflow/gatewayflow/types"
)

func ts(offsetSeconds float64) time.Time {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return base.Add(durationSeconds(offsetSeconds))
}

func TestDetectFlags_LoopDetected(t *testing.T) {
	steps := []types.AgentStep{
		{StepIndex: 0, Type: types.StepDecision, Timestamp: ts(0)},
		{StepIndex: 1, Type: types.StepDecision, Timestamp: ts(5)},
		{StepIndex: 2, Type: types.StepDecision, Timestamp: ts(10)},
	}
	flags := DetectFlags(steps, DefaultFlagDetectionConfig())
	require.Len(t, findFlags(flags, types.FlagLoopDetected), 1)
}

func TestDetectFlags_LoopNotDetectedOutsideWindow(t *testing.T) {
	steps := []types.AgentStep{
		{StepIndex: 0, Type: types.StepDecision, Timestamp: ts(0)},
		{StepIndex: 1, Type: types.StepDecision, Timestamp: ts(40)},
		{StepIndex: 2, Type: types.StepDecision, Timestamp: ts(80)},
	}
	flags := DetectFlags(steps, DefaultFlagDetectionConfig())
	assert.Empty(t, findFlags(flags, types.FlagLoopDetected))
}

func TestDetectFlags_HighCostStep(t *testing.T) {
	steps := []types.AgentStep{
		{StepIndex: 0, Type: types.StepModelResponse, APICostUSD: 0.10, Timestamp: ts(0)},
	}
	flags := DetectFlags(steps, DefaultFlagDetectionConfig())
	require.Len(t, findFlags(flags, types.FlagHighCostStep), 1)
	assert.Equal(t, types.SeverityWarning, flags[0].Severity)
}

func TestDetectFlags_RepeatedTool(t *testing.T) {
	steps := []types.AgentStep{
		{StepIndex: 0, Type: types.StepToolCall, Tool: "search", Timestamp: ts(0)},
		{StepIndex: 1, Type: types.StepToolCall, Tool: "search", Timestamp: ts(1)},
		{StepIndex: 2, Type: types.StepToolCall, Tool: "search", Timestamp: ts(2)},
	}
	flags := DetectFlags(steps, DefaultFlagDetectionConfig())
	require.Len(t, findFlags(flags, types.FlagRepeatedTool), 1)
}

func TestDetectFlags_EmptyToolOutput(t *testing.T) {
	steps := []types.AgentStep{
		{StepIndex: 0, Type: types.StepToolResult, ToolOutputSummary: "", Timestamp: ts(0)},
	}
	flags := DetectFlags(steps, DefaultFlagDetectionConfig())
	require.Len(t, findFlags(flags, types.FlagEmptyToolOutput), 1)
}

func TestDetectFlags_ErrorFallback(t *testing.T) {
	steps := []types.AgentStep{
		{StepIndex: 0, Type: types.StepError, Timestamp: ts(0)},
		{StepIndex: 1, Type: types.StepRetry, CacheHit: true, Timestamp: ts(1)},
	}
	flags := DetectFlags(steps, DefaultFlagDetectionConfig())
	require.Len(t, findFlags(flags, types.FlagErrorFallback), 1)
}

func TestDetectFlags_CacheMissRetry(t *testing.T) {
	steps := []types.AgentStep{
		{StepIndex: 0, Type: types.StepRetry, CacheHit: false, Timestamp: ts(0)},
	}
	flags := DetectFlags(steps, DefaultFlagDetectionConfig())
	require.Len(t, findFlags(flags, types.FlagCacheMissRetry), 1)
	assert.Equal(t, types.SeverityInfo, flags[0].Severity)
}

func TestDetectFlags_PromptMutation(t *testing.T) {
	steps := []types.AgentStep{
		{StepIndex: 0, Type: types.StepDecision, Raw: "fetch the weather for new york today", Timestamp: ts(0)},
		{StepIndex: 1, Type: types.StepDecision, Raw: "fetch the weather for new york tomorrow please", Timestamp: ts(1)},
	}
	flags := DetectFlags(steps, DefaultFlagDetectionConfig())
	require.Len(t, findFlags(flags, types.FlagPromptMutation), 1)
}

func TestDetectFlags_PromptMutationSkipsNearIdenticalDecisions(t *testing.T) {
	steps := []types.AgentStep{
		{StepIndex: 0, Type: types.StepDecision, Raw: "fetch the weather for new york today", Timestamp: ts(0)},
		{StepIndex: 1, Type: types.StepDecision, Raw: "fetch the weather for new york today", Timestamp: ts(1)},
	}
	flags := DetectFlags(steps, DefaultFlagDetectionConfig())
	assert.Empty(t, findFlags(flags, types.FlagPromptMutation))
}

func findFlags(flags []types.Flag, flagType types.FlagType) []types.Flag {
	var out []types.Flag
	for _, f := range flags {
		if f.Type == flagType {
			out = append(out, f)
		}
	}
	return out
}
