package ingest

import (
	"github.com/gatewayflow/gatewayflow/internal/pool"
	"github.com/gatewayflow/gatewayflow/types"
)

var cacheableStepTypes = map[types.StepType]bool{
	types.StepToolCall:      true,
	types.StepDecision:      true,
	types.StepModelResponse: true,
}

// seenToolCallPool reuses ComputeCostSummary's per-call "tool calls seen
// so far" accumulator across ingest requests instead of allocating a
// fresh slice every time.
var seenToolCallPool = pool.NewSlicePool[types.AgentStep](16)

// ComputeCostSummary implements spec §4.10.2's cost-attribution formulas.
func ComputeCostSummary(steps []types.AgentStep) types.CostSummary {
	var summary types.CostSummary

	var cacheableSteps, cacheHits int
	seenToolCalls := seenToolCallPool.Get()
	defer func() { seenToolCallPool.Put(seenToolCalls) }()

	for _, s := range steps {
		summary.TotalCostUSD += s.APICostUSD

		if s.Type == types.StepRetry {
			summary.WastedSpendUSD += s.APICostUSD
		}
		if s.Type == types.StepToolCall {
			if isRepeatIdenticalToolCall(s, seenToolCalls) {
				summary.WastedSpendUSD += s.APICostUSD
			}
			seenToolCalls = append(seenToolCalls, s)
		}

		if s.CacheHit {
			summary.AmountSavedUSD += s.APICostUSD
		}

		if cacheableStepTypes[s.Type] {
			cacheableSteps++
			if s.CacheHit {
				cacheHits++
			}
		}
	}

	if cacheableSteps > 0 {
		summary.CacheHitRate = float64(cacheHits) / float64(cacheableSteps)
	}
	return summary
}

// isRepeatIdenticalToolCall reports whether step matches an earlier
// tool_call step's (tool, args, output summary) triple exactly.
func isRepeatIdenticalToolCall(step types.AgentStep, earlier []types.AgentStep) bool {
	for _, prior := range earlier {
		if prior.Tool == step.Tool && prior.ToolArgs == step.ToolArgs && prior.ToolOutputSummary == step.ToolOutputSummary {
			return true
		}
	}
	return false
}

// CachingOpportunityThreshold is the minimum Jaccard similarity (spec
// §4.10.2) for a non-cached step to be reported as a missed caching
// opportunity.
const CachingOpportunityThreshold = 0.90

// ComputeCachingOpportunities finds, for every non-cache-hit tool_call or
// model_response step, the first earlier step of the same sub-class whose
// canonical payload is ≥ CachingOpportunityThreshold similar. Each step
// contributes at most one opportunity.
func ComputeCachingOpportunities(steps []types.AgentStep) []types.CachingOpportunity {
	var opportunities []types.CachingOpportunity
	var priorToolCalls, priorModelResponses []types.AgentStep

	for _, s := range steps {
		switch s.Type {
		case types.StepToolCall:
			if !s.CacheHit {
				if opp, ok := findOpportunity(s, sameTool(priorToolCalls, s.Tool)); ok {
					opportunities = append(opportunities, opp)
				}
			}
			priorToolCalls = append(priorToolCalls, s)
		case types.StepModelResponse:
			if !s.CacheHit {
				if opp, ok := findOpportunity(s, priorModelResponses); ok {
					opportunities = append(opportunities, opp)
				}
			}
			priorModelResponses = append(priorModelResponses, s)
		}
	}
	return opportunities
}

func sameTool(calls []types.AgentStep, tool string) []types.AgentStep {
	var out []types.AgentStep
	for _, c := range calls {
		if c.Tool == tool {
			out = append(out, c)
		}
	}
	return out
}

func findOpportunity(step types.AgentStep, candidates []types.AgentStep) (types.CachingOpportunity, bool) {
	for _, prior := range candidates {
		similarity := jaccardWordSimilarity(canonicalPayload(prior), canonicalPayload(step))
		if similarity >= CachingOpportunityThreshold {
			return types.CachingOpportunity{
				StepIndex:          step.StepIndex,
				ReferenceStepIndex: prior.StepIndex,
				Similarity:         similarity,
				SavedCost:          step.APICostUSD,
				Message:            "near-duplicate of an earlier step's result",
			}, true
		}
	}
	return types.CachingOpportunity{}, false
}

func canonicalPayload(step types.AgentStep) string {
	if step.Type == types.StepToolCall {
		return step.Tool + " " + step.ToolArgs
	}
	return step.Raw
}
