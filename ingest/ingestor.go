package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gatewayflow/gatewayflow/credential"
	"github.com/gatewayflow/gatewayflow/events"
	"github.com/gatewayflow/gatewayflow/internal/metrics"
	"github.com/gatewayflow/gatewayflow/sanitize"
	"github.com/gatewayflow/gatewayflow/types"
)

// Result is the outcome of a successful Ingest call.
type Result struct {
	RunID string
	Flags []types.Flag
}

// Ingestor implements the Agent-Run Ingestor (C10): spec §4.10's five
// steps (authenticate, sanitize, detect flags, attribute cost, persist),
// plus emitting one agent_step event per step to the observability queue.
type Ingestor struct {
	apiKeys     credential.APIKeyStore
	sanitizer   *sanitize.Sanitizer
	store       Store
	emitter     *events.Emitter
	metrics     *metrics.Collector
	flagCfg     FlagDetectionConfig
	broadcaster *Broadcaster // nil disables live-tail publishing
	archiver    RawArchiver  // nil disables raw-payload archiving
	logger      *zap.Logger
}

// New creates an Ingestor. broadcaster and archiver may both be nil, in
// which case /v1/agent-runs/stream has nothing to subscribe to and
// truncated raw payloads are simply dropped, exactly as before either
// was wired in.
func New(apiKeys credential.APIKeyStore, sanitizer *sanitize.Sanitizer, store Store, emitter *events.Emitter, collector *metrics.Collector, flagCfg FlagDetectionConfig, broadcaster *Broadcaster, archiver RawArchiver, logger *zap.Logger) *Ingestor {
	return &Ingestor{
		apiKeys:     apiKeys,
		sanitizer:   sanitizer,
		store:       store,
		emitter:     emitter,
		metrics:     collector,
		flagCfg:     flagCfg,
		broadcaster: broadcaster,
		archiver:    archiver,
		logger:      logger.With(zap.String("component", "agent_run_ingestor")),
	}
}

// Ingest implements spec §4.10. run.Project is auto-corrected to the
// authenticated project when it disagrees — never the reverse, so a
// caller can never attribute a run to a project it does not own.
func (ing *Ingestor) Ingest(ctx context.Context, apiKey string, run types.AgentRun) (*Result, *types.Error) {
	project, err := ing.apiKeys.ResolveProjectID(ctx, apiKey)
	if err != nil || project == "" {
		return nil, types.NewError(types.ErrUnauthorized, "invalid API key")
	}
	run.Project = project

	if run.RunID == "" {
		run.RunID = uuid.NewString()
	}

	ing.sanitizeSteps(ctx, run.Project, run.RunID, run.Steps)

	flags := DetectFlags(run.Steps, ing.flagCfg)
	summary := ComputeCostSummary(run.Steps)
	opportunities := ComputeCachingOpportunities(run.Steps)

	if err := ing.store.SaveRun(ctx, run, flags, summary, opportunities); err != nil {
		ing.metrics.RecordAgentRunIngested("error")
		return nil, types.NewError(types.ErrInternalError, "failed to persist agent run").WithCause(err)
	}

	ing.metrics.RecordAgentRunIngested("ok")
	ing.metrics.RecordCostAttributed(project, summary.TotalCostUSD)
	for _, flag := range flags {
		ing.metrics.RecordAgentRunFlag(string(flag.Type))
	}

	ing.emitStepEvents(ctx, run)

	return &Result{RunID: run.RunID, Flags: flags}, nil
}

// sanitizeSteps redacts free-text fields in place (C3) and truncates
// oversized raw payloads, matching the proxy pipeline's treatment of
// prompts before they reach the cache or the observability queue. When
// an archiver is configured, the untruncated original is archived
// out-of-band before truncation so the relational store still only ever
// holds the truncated form.
func (ing *Ingestor) sanitizeSteps(ctx context.Context, project, runID string, steps []types.AgentStep) {
	for i := range steps {
		steps[i].Summary = ing.sanitizer.SanitizeText(steps[i].Summary)
		steps[i].Decision = ing.sanitizer.SanitizeText(steps[i].Decision)
		steps[i].ToolArgs = ing.sanitizer.SanitizeText(steps[i].ToolArgs)
		steps[i].ToolOutputSummary = ing.sanitizer.SanitizeText(steps[i].ToolOutputSummary)

		raw, truncated := ing.sanitizer.TruncateRaw(steps[i].Raw)
		if truncated && ing.archiver != nil {
			if archiveErr := ing.archiver.Archive(ctx, project, runID, steps[i].StepIndex, steps[i].Raw); archiveErr != nil {
				ing.logger.Warn("raw payload archive failed", zap.String("project", project), zap.String("run_id", runID), zap.Int("step_index", steps[i].StepIndex), zap.Error(archiveErr))
			}
		}
		steps[i].Raw = ing.sanitizer.SanitizeText(raw)
		steps[i].RawTruncated = steps[i].RawTruncated || truncated
	}
}

// emitStepEvents pushes one agent_step NormalizedEvent per step onto the
// observability queue (spec §4.10 step 5: "additionally emit one
// agent_step event per step"). Best-effort via Emitter's own
// queue/sink/drop degradation — ingestion has already succeeded by this
// point, so an event-emission failure here never fails the request.
func (ing *Ingestor) emitStepEvents(ctx context.Context, run types.AgentRun) {
	for _, step := range run.Steps {
		status := types.StatusOK
		if step.Type == types.StepError {
			status = types.StatusError
		}
		ing.emitter.Emit(ctx, types.NormalizedEvent{
			EventID:   uuid.NewString(),
			Project:   run.Project,
			RunID:     run.RunID,
			Timestamp: stepTimestamp(step),
			EventType: types.EventAgentStep,
			TokensOut: step.TokenCost,
			CostUSD:   step.APICostUSD,
			Status:    status,
			Tags:      []string{string(step.Type)},
		})

		if ing.broadcaster != nil {
			ing.broadcaster.Publish(StepEvent{Project: run.Project, RunID: run.RunID, Step: step})
		}
	}
}

func stepTimestamp(step types.AgentStep) time.Time {
	if step.Timestamp.IsZero() {
		return time.Now()
	}
	return step.Timestamp
}
