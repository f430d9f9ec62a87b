package ingest

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/gatewayflow/gatewayflow/internal/database"
	"github.com/gatewayflow/gatewayflow/types"
)

// saveRunMaxRetries bounds the retries WithTransactionRetry attempts for
// a GormStore constructed with a PoolManager, for the same transient
// failures (deadlocks, dropped connections) database.PoolManager already
// classifies as retryable.
const saveRunMaxRetries = 3

// Store persists an ingested run, its steps, and their derived flags.
// Backed by GORM against the relational store's agent_debug_* tables
// (spec §6). The row types below are the persisted shape of a run/step;
// types.AgentRun/AgentStep remain the pure in-memory trace.
type Store interface {
	SaveRun(ctx context.Context, run types.AgentRun, flags []types.Flag, summary types.CostSummary, opportunities []types.CachingOpportunity) error
}

type agentRunRow struct {
	RunID          string     `gorm:"primaryKey;column:run_id"`
	Project        string     `gorm:"column:project;index"`
	AgentName      string     `gorm:"column:agent_name"`
	StartedAt      time.Time  `gorm:"column:started_at"`
	EndedAt        *time.Time `gorm:"column:ended_at"`
	Status         string     `gorm:"column:status"`
	TotalCostUSD   float64    `gorm:"column:total_cost_usd"`
	WastedSpendUSD float64    `gorm:"column:wasted_spend_usd"`
	AmountSavedUSD float64    `gorm:"column:amount_saved_usd"`
	CacheHitRate   float64    `gorm:"column:cache_hit_rate"`
	// CachingOpportunitiesJSON is a JSON-marshaled []types.CachingOpportunity,
	// stored as text rather than a normalized table: it is write-once,
	// read-whole (the analytics surface returns it verbatim per run) and
	// never filtered or joined on by a query.
	CachingOpportunitiesJSON string `gorm:"column:caching_opportunities_json"`
}

func (agentRunRow) TableName() string { return "agent_debug_logs" }

type agentStepRow struct {
	ID                uint      `gorm:"primaryKey;autoIncrement"`
	RunID             string    `gorm:"column:run_id;index"`
	StepIndex         int       `gorm:"column:step_index"`
	Timestamp         time.Time `gorm:"column:timestamp"`
	Type              string    `gorm:"column:type"`
	Summary           string    `gorm:"column:summary"`
	Decision          string    `gorm:"column:decision"`
	Tool              string    `gorm:"column:tool"`
	ToolArgs          string    `gorm:"column:tool_args"`
	ToolOutputSummary string    `gorm:"column:tool_output_summary"`
	Raw               string    `gorm:"column:raw"`
	RawTruncated      bool      `gorm:"column:raw_truncated"`
	TokenCost         int       `gorm:"column:token_cost"`
	APICostUSD        float64   `gorm:"column:api_cost_usd"`
	CacheHit          bool      `gorm:"column:cache_hit"`
}

func (agentStepRow) TableName() string { return "agent_debug_steps" }

type agentExplanationRow struct {
	ID         uint    `gorm:"primaryKey;autoIncrement"`
	RunID      string  `gorm:"column:run_id;index"`
	StepIndex  *int    `gorm:"column:step_index"`
	FlagType   string  `gorm:"column:flag_type"`
	Severity   string  `gorm:"column:severity"`
	Message    string  `gorm:"column:message"`
	Confidence float64 `gorm:"column:confidence"`
	Source     string  `gorm:"column:source"`
}

func (agentExplanationRow) TableName() string { return "agent_debug_explanations" }

// GormStore is a Store backed by GORM.
type GormStore struct {
	db   *gorm.DB
	pool *database.PoolManager
}

// NewGormStore creates a GormStore that writes in a plain transaction,
// with no retry on transient failures.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// NewGormStoreWithPool creates a GormStore whose writes retry transient
// transaction failures (deadlocks, dropped connections) through pool's
// WithTransactionRetry, instead of failing an ingest request on the
// first serialization hiccup.
func NewGormStoreWithPool(pool *database.PoolManager) *GormStore {
	return &GormStore{db: pool.DB(), pool: pool}
}

// AutoMigrate creates or updates the agent_debug_* tables backing Store.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&agentRunRow{}, &agentStepRow{}, &agentExplanationRow{})
}

// SaveRun writes the run, its steps, and its flags/explanations inside a
// single transaction — a partially-persisted run would leave analytics
// queries over- or under-counting cost attribution.
func (s *GormStore) SaveRun(ctx context.Context, run types.AgentRun, flags []types.Flag, summary types.CostSummary, opportunities []types.CachingOpportunity) error {
	opportunitiesJSON, err := json.Marshal(opportunities)
	if err != nil {
		return err
	}

	runRow := agentRunRow{
		RunID:                    run.RunID,
		Project:                  run.Project,
		AgentName:                run.AgentName,
		StartedAt:                run.StartedAt,
		EndedAt:                  run.EndedAt,
		Status:                   string(run.Status),
		TotalCostUSD:             summary.TotalCostUSD,
		WastedSpendUSD:           summary.WastedSpendUSD,
		AmountSavedUSD:           summary.AmountSavedUSD,
		CacheHitRate:             summary.CacheHitRate,
		CachingOpportunitiesJSON: string(opportunitiesJSON),
	}

	stepRows := make([]agentStepRow, len(run.Steps))
	for i, step := range run.Steps {
		stepRows[i] = agentStepRow{
			RunID:             run.RunID,
			StepIndex:         step.StepIndex,
			Timestamp:         step.Timestamp,
			Type:              string(step.Type),
			Summary:           step.Summary,
			Decision:          step.Decision,
			Tool:              step.Tool,
			ToolArgs:          step.ToolArgs,
			ToolOutputSummary: step.ToolOutputSummary,
			Raw:               step.Raw,
			RawTruncated:      step.RawTruncated,
			TokenCost:         step.TokenCost,
			APICostUSD:        step.APICostUSD,
			CacheHit:          step.CacheHit,
		}
	}

	explanationRows := make([]agentExplanationRow, len(flags))
	for i, flag := range flags {
		explanationRows[i] = agentExplanationRow{
			RunID:      run.RunID,
			StepIndex:  flag.StepIndex,
			FlagType:   string(flag.Type),
			Severity:   string(flag.Severity),
			Message:    flag.Message,
			Confidence: flag.Confidence,
			Source:     string(flag.Source),
		}
	}

	txFn := func(tx *gorm.DB) error {
		if err := tx.Create(&runRow).Error; err != nil {
			return err
		}
		if len(stepRows) > 0 {
			if err := tx.Create(&stepRows).Error; err != nil {
				return err
			}
		}
		if len(explanationRows) > 0 {
			if err := tx.Create(&explanationRows).Error; err != nil {
				return err
			}
		}
		return nil
	}

	if s.pool != nil {
		return s.pool.WithTransactionRetry(ctx, saveRunMaxRetries, txFn)
	}
	return s.db.WithContext(ctx).Transaction(txFn)
}
