package ingest

import (
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/gatewayflow/gatewayflow/types"
)

// stepTypes lists the AgentStep.Type values ComputeCachingOpportunities
// and DetectFlags branch on; generating only these keeps generated runs
// representative instead of mostly hitting the default no-op case.
var stepTypes = []types.StepType{
	types.StepToolCall, types.StepModelResponse, types.StepDecision,
	types.StepRetry, types.StepError,
}

func genSteps(t *rapid.T) []types.AgentStep {
	n := rapid.IntRange(0, 20).Draw(t, "n")
	steps := make([]types.AgentStep, n)
	now := time.Unix(1700000000, 0)
	for i := 0; i < n; i++ {
		steps[i] = types.AgentStep{
			StepIndex:  i, // contiguous, zero-based, matching slice order
			Timestamp:  now.Add(time.Duration(i) * time.Second),
			Type:       stepTypes[rapid.IntRange(0, len(stepTypes)-1).Draw(t, "type")],
			Tool:       rapid.SampledFrom([]string{"search", "write_file", "exec"}).Draw(t, "tool"),
			ToolArgs:   rapid.SampledFrom([]string{"a", "b"}).Draw(t, "args"),
			APICostUSD: rapid.Float64Range(0, 1).Draw(t, "cost"),
			CacheHit:   rapid.Bool().Draw(t, "cache_hit"),
		}
	}
	return steps
}

// TestComputeCachingOpportunities_ReferencesStayWithinContiguousRange
// checks spec.md's step-index contiguity invariant end to end: for any
// run whose steps carry zero-based, slice-order-matching indices, every
// derived CachingOpportunity's StepIndex/ReferenceStepIndex stays inside
// [0, len(steps)) and a reference always points strictly backward.
func TestComputeCachingOpportunities_ReferencesStayWithinContiguousRange(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		steps := genSteps(rt)

		for _, opp := range ComputeCachingOpportunities(steps) {
			if opp.StepIndex < 0 || opp.StepIndex >= len(steps) {
				rt.Fatalf("opportunity StepIndex %d out of range [0,%d)", opp.StepIndex, len(steps))
			}
			if opp.ReferenceStepIndex < 0 || opp.ReferenceStepIndex >= len(steps) {
				rt.Fatalf("opportunity ReferenceStepIndex %d out of range [0,%d)", opp.ReferenceStepIndex, len(steps))
			}
			if opp.ReferenceStepIndex >= opp.StepIndex {
				rt.Fatalf("opportunity must reference a strictly earlier step: ref=%d step=%d", opp.ReferenceStepIndex, opp.StepIndex)
			}
		}
	})
}

// TestDetectFlags_StepIndicesStayWithinContiguousRange checks the same
// invariant for flags.go's StepIndex-carrying flags.
func TestDetectFlags_StepIndicesStayWithinContiguousRange(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		steps := genSteps(rt)

		for _, flag := range DetectFlags(steps, DefaultFlagDetectionConfig()) {
			if flag.StepIndex == nil {
				continue
			}
			if *flag.StepIndex < 0 || *flag.StepIndex >= len(steps) {
				rt.Fatalf("flag StepIndex %d out of range [0,%d)", *flag.StepIndex, len(steps))
			}
		}
	})
}
