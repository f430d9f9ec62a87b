// Package ingest implements the Agent-Run Ingestor (C10): validating,
// sanitizing, flag-detecting, cost-attributing and persisting an
// AgentRun trace. Grounded on api/handlers/agent.go's handler shape
// (request validation, then a sequence of pure transforms, then
// persistence) generalized from the teacher's live-agent-execution
// vocabulary to an already-completed trace's ingestion vocabulary.
package ingest

import (
	"github.com/gatewayflow/gatewayflow/internal/pool"
	"github.com/gatewayflow/gatewayflow/types"
)

// FlagDetectionConfig tunes the deterministic rule thresholds (spec
// §4.10.1's defaults).
type FlagDetectionConfig struct {
	LoopWindowSeconds  float64 // default 30
	LoopThreshold      int     // default 3
	HighCostThreshold  float64 // default 0.05 USD
	RepeatedToolCount  int     // default 3
	MutationSimilarityLow  float64 // default 0.30 (inclusive)
	MutationSimilarityHigh float64 // default 0.95 (exclusive)
}

// DefaultFlagDetectionConfig returns spec §4.10.1's documented defaults.
func DefaultFlagDetectionConfig() FlagDetectionConfig {
	return FlagDetectionConfig{
		LoopWindowSeconds:      30,
		LoopThreshold:          3,
		HighCostThreshold:      0.05,
		RepeatedToolCount:      3,
		MutationSimilarityLow:  0.30,
		MutationSimilarityHigh: 0.95,
	}
}

// DetectFlags runs every deterministic rule over steps and returns the
// union, in an order-independent result (callers must not depend on
// slice order). steps must already be sorted by StepIndex.
func DetectFlags(steps []types.AgentStep, cfg FlagDetectionConfig) []types.Flag {
	var flags []types.Flag
	flags = append(flags, detectLoop(steps, cfg)...)
	flags = append(flags, detectHighCostStep(steps, cfg)...)
	flags = append(flags, detectRepeatedTool(steps, cfg)...)
	flags = append(flags, detectEmptyToolOutput(steps)...)
	flags = append(flags, detectErrorFallback(steps)...)
	flags = append(flags, detectCacheMissRetry(steps)...)
	flags = append(flags, detectPromptMutation(steps, cfg)...)
	return flags
}

// detectLoop flags when any step type recurs LoopThreshold-or-more times
// within a LoopWindowSeconds sliding window.
func detectLoop(steps []types.AgentStep, cfg FlagDetectionConfig) []types.Flag {
	var flags []types.Flag
	seen := make(map[types.StepType]bool)

	byType := make(map[types.StepType][]types.AgentStep)
	for _, s := range steps {
		byType[s.Type] = append(byType[s.Type], s)
	}

	for stepType, occurrences := range byType {
		if seen[stepType] {
			continue
		}
		for i := 0; i < len(occurrences); i++ {
			count := 1
			windowEnd := occurrences[i].Timestamp.Add(durationSeconds(cfg.LoopWindowSeconds))
			for j := i + 1; j < len(occurrences) && !occurrences[j].Timestamp.After(windowEnd); j++ {
				count++
			}
			if count >= cfg.LoopThreshold {
				idx := occurrences[i].StepIndex
				flags = append(flags, types.Flag{
					Type:       types.FlagLoopDetected,
					Severity:   types.SeverityError,
					Message:    "step type \"" + string(stepType) + "\" repeated " + itoa(count) + " times within the loop-detection window",
					StepIndex:  &idx,
					Confidence: 1,
					Source:     types.SourceDeterministic,
				})
				seen[stepType] = true
				break
			}
		}
	}
	return flags
}

func detectHighCostStep(steps []types.AgentStep, cfg FlagDetectionConfig) []types.Flag {
	var flags []types.Flag
	for _, s := range steps {
		if s.APICostUSD > cfg.HighCostThreshold {
			idx := s.StepIndex
			flags = append(flags, types.Flag{
				Type:       types.FlagHighCostStep,
				Severity:   types.SeverityWarning,
				Message:    "step cost exceeds the high-cost threshold",
				StepIndex:  &idx,
				Confidence: 1,
				Source:     types.SourceDeterministic,
			})
		}
	}
	return flags
}

// toolCountPool and toolFirstIndexPool reuse detectRepeatedTool's
// per-call accumulators across ingest requests instead of allocating
// two fresh maps every time.
var (
	toolCountPool      = pool.NewMapPool[string, int](8)
	toolFirstIndexPool = pool.NewMapPool[string, int](8)
)

func detectRepeatedTool(steps []types.AgentStep, cfg FlagDetectionConfig) []types.Flag {
	counts := toolCountPool.Get()
	defer toolCountPool.Put(counts)
	firstIndex := toolFirstIndexPool.Get()
	defer toolFirstIndexPool.Put(firstIndex)
	for _, s := range steps {
		if s.Type != types.StepToolCall || s.Tool == "" {
			continue
		}
		if counts[s.Tool] == 0 {
			firstIndex[s.Tool] = s.StepIndex
		}
		counts[s.Tool]++
	}

	var flags []types.Flag
	for tool, count := range counts {
		if count >= cfg.RepeatedToolCount {
			idx := firstIndex[tool]
			flags = append(flags, types.Flag{
				Type:       types.FlagRepeatedTool,
				Severity:   types.SeverityWarning,
				Message:    "tool \"" + tool + "\" called " + itoa(count) + " times in this run",
				StepIndex:  &idx,
				Confidence: 1,
				Source:     types.SourceDeterministic,
			})
		}
	}
	return flags
}

func detectEmptyToolOutput(steps []types.AgentStep) []types.Flag {
	var flags []types.Flag
	for _, s := range steps {
		if (s.Type == types.StepToolCall || s.Type == types.StepToolResult) && s.ToolOutputSummary == "" {
			idx := s.StepIndex
			flags = append(flags, types.Flag{
				Type:       types.FlagEmptyToolOutput,
				Severity:   types.SeverityWarning,
				Message:    "tool step produced no output summary",
				StepIndex:  &idx,
				Confidence: 1,
				Source:     types.SourceDeterministic,
			})
		}
	}
	return flags
}

func detectErrorFallback(steps []types.AgentStep) []types.Flag {
	hasError, hasRetry := false, false
	for _, s := range steps {
		if s.Type == types.StepError {
			hasError = true
		}
		if s.Type == types.StepRetry {
			hasRetry = true
		}
	}
	if hasError && hasRetry {
		return []types.Flag{{
			Type:       types.FlagErrorFallback,
			Severity:   types.SeverityError,
			Message:    "run contains both an error step and a retry step",
			Confidence: 1,
			Source:     types.SourceDeterministic,
		}}
	}
	return nil
}

func detectCacheMissRetry(steps []types.AgentStep) []types.Flag {
	var flags []types.Flag
	for _, s := range steps {
		if s.Type == types.StepRetry && !s.CacheHit {
			idx := s.StepIndex
			flags = append(flags, types.Flag{
				Type:       types.FlagCacheMissRetry,
				Severity:   types.SeverityInfo,
				Message:    "retry was not served from cache",
				StepIndex:  &idx,
				Confidence: 1,
				Source:     types.SourceDeterministic,
			})
		}
	}
	return flags
}

func detectPromptMutation(steps []types.AgentStep, cfg FlagDetectionConfig) []types.Flag {
	var decisions []types.AgentStep
	for _, s := range steps {
		if s.Type == types.StepDecision {
			decisions = append(decisions, s)
		}
	}

	var flags []types.Flag
	for i := 1; i < len(decisions); i++ {
		similarity := jaccardWordSimilarity(decisions[i-1].Raw, decisions[i].Raw)
		if similarity >= cfg.MutationSimilarityLow && similarity < cfg.MutationSimilarityHigh {
			idx := decisions[i].StepIndex
			flags = append(flags, types.Flag{
				Type:       types.FlagPromptMutation,
				Severity:   types.SeverityInfo,
				Message:    "consecutive decision steps diverged in wording",
				StepIndex:  &idx,
				Confidence: 1,
				Source:     types.SourceDeterministic,
			})
		}
	}
	return flags
}
