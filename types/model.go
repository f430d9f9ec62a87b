package types

import "time"

// Provider identifies an upstream model provider.
type Provider string

const (
	ProviderOpenAI     Provider = "openai"
	ProviderAnthropic  Provider = "anthropic"
	ProviderGroq       Provider = "groq"
	ProviderOpenRouter Provider = "openrouter"
)

// CredentialSource records whether a request used a project's own
// credential or the shared free-tier pool.
type CredentialSource string

const (
	SourceBYOK CredentialSource = "byok"
	SourcePool CredentialSource = "pool"
)

// Project owns provider credentials, a cache similarity threshold and
// retention settings. It is otherwise opaque metadata held by the external
// relational store; gatewayflow only needs the fields below.
type Project struct {
	ID              string        `gorm:"primaryKey;column:id" json:"id"`
	CacheThreshold  float64       `gorm:"column:cache_threshold" json:"cache_threshold"`
	RetentionDays   int           `gorm:"column:retention_days" json:"retention_days"`
	CreatedAt       time.Time     `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time     `gorm:"column:updated_at" json:"updated_at"`
}

// TableName satisfies gorm.Tabler.
func (Project) TableName() string { return "projects" }

// MinCacheThreshold and MaxCacheThreshold bound a project's semantic cache
// similarity threshold (spec §3).
const (
	MinCacheThreshold     = 0.80
	MaxCacheThreshold     = 0.99
	DefaultCacheThreshold = 0.95
)

// ClampCacheThreshold clamps t to [MinCacheThreshold, MaxCacheThreshold].
func ClampCacheThreshold(t float64) float64 {
	if t < MinCacheThreshold {
		return MinCacheThreshold
	}
	if t > MaxCacheThreshold {
		return MaxCacheThreshold
	}
	return t
}

// ProviderCredential is a project's BYOK credential for one provider,
// ordered by Priority (1 is tried first). The plaintext Secret is never
// populated outside the credential resolver.
type ProviderCredential struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Project         string    `gorm:"column:project;index:idx_cred_lookup" json:"project"`
	Provider        Provider  `gorm:"column:provider;index:idx_cred_lookup" json:"provider"`
	Priority        int       `gorm:"column:priority" json:"priority"`
	EncryptedSecret []byte    `gorm:"column:encrypted_secret" json:"-"`
	IV              []byte    `gorm:"column:iv" json:"-"`
	Active          bool      `gorm:"column:active;index:idx_cred_lookup" json:"active"`
	LastUsedAt      time.Time `gorm:"column:last_used_at" json:"last_used_at"`
	CreatedAt       time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName satisfies gorm.Tabler.
func (ProviderCredential) TableName() string { return "provider_keys" }

// CacheDecision records how a cache lookup was satisfied.
type CacheDecision string

const (
	CacheMiss     CacheDecision = "miss"
	CacheExact    CacheDecision = "exact"
	CacheSemantic CacheDecision = "semantic"
)

// CacheKind partitions the semantic cache (e.g. "chat", "completion").
type CacheKind string

const (
	KindChat       CacheKind = "chat"
	KindCompletion CacheKind = "completion"
)

// CacheEntry is one immutable semantic-cache record. The vector store and
// the exact-key store keep their own record types (vectorstore.Entry and
// semanticcache's exactRecord) rather than CacheEntry.
type CacheEntry struct {
	Project     string    `json:"project"`
	Kind        CacheKind `json:"kind"`
	Embedding   []float32 `json:"-"`
	Payload     string    `json:"payload"`
	Model       string    `json:"model"`
	TokensIn    int       `json:"tokens_in"`
	TokensOut   int       `json:"tokens_out"`
	CreatedAt   time.Time `json:"created_at"`
}

// EventType enumerates the NormalizedEvent vocabulary.
type EventType string

const (
	EventPromptCall EventType = "prompt_call"
	EventAgentStep  EventType = "agent_step"
	EventError      EventType = "error"
)

// EventStatus records the outcome of the operation an event describes.
type EventStatus string

const (
	StatusOK      EventStatus = "ok"
	StatusError   EventStatus = "error"
	StatusTimeout EventStatus = "timeout"
)

// NormalizedEvent is the single observability record emitted by both the
// proxy pipeline and the agent-run ingestor. Immutable after emission.
type NormalizedEvent struct {
	EventID           string            `json:"event_id"`
	Project           string            `json:"project"`
	RunID             string            `json:"run_id,omitempty"`
	Timestamp         time.Time         `json:"timestamp"`
	EventType         EventType         `json:"event_type"`
	Model             string            `json:"model"`
	Prompt            string            `json:"prompt,omitempty"`
	Response          string            `json:"response,omitempty"`
	TokensIn          int               `json:"tokens_in"`
	TokensOut         int               `json:"tokens_out"`
	CostUSD           float64           `json:"cost_usd"`
	PotentialCostUSD  float64           `json:"potential_cost_usd"`
	LatencyMS         int64             `json:"latency_ms"`
	CacheDecision     CacheDecision     `json:"cache_decision"`
	CacheSimilarity   *float64          `json:"cache_similarity,omitempty"`
	Status            EventStatus       `json:"status"`
	Tags              []string          `json:"tags,omitempty"`
	UserID            string            `json:"user_id,omitempty"`
	ErrorMessage      string            `json:"error_message,omitempty"`
}

// RunStatus enumerates AgentRun lifecycle states.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// AgentRun is an ordered sequence of steps produced by an agent framework.
// It owns its Steps; a run's steps are never mutated once ingested.
type AgentRun struct {
	RunID     string      `json:"run_id"`
	Project   string      `json:"project"`
	AgentName string      `json:"agent_name"`
	StartedAt time.Time   `json:"started_at"`
	EndedAt   *time.Time  `json:"ended_at,omitempty"`
	Status    RunStatus   `json:"status"`
	Steps     []AgentStep `json:"steps"`
}

// StepType enumerates the closed vocabulary of AgentStep.Type.
type StepType string

const (
	StepUserInput     StepType = "user_input"
	StepDecision      StepType = "decision"
	StepToolCall      StepType = "tool_call"
	StepToolResult    StepType = "tool_result"
	StepModelResponse StepType = "model_response"
	StepError         StepType = "error"
	StepRetry         StepType = "retry"
)

// AgentStep is one entry in an AgentRun's ordered trace.
type AgentStep struct {
	StepIndex         int       `json:"step_index"`
	Timestamp         time.Time `json:"timestamp"`
	Type              StepType  `json:"type"`
	Summary           string    `json:"summary,omitempty"`
	Decision          string    `json:"decision,omitempty"`
	Tool              string    `json:"tool,omitempty"`
	ToolArgs          string    `json:"tool_args,omitempty"`
	ToolOutputSummary string    `json:"tool_output_summary,omitempty"`
	Raw               string    `json:"raw,omitempty"`
	RawTruncated      bool      `json:"raw_truncated,omitempty"`
	TokenCost         int       `json:"token_cost,omitempty"`
	APICostUSD        float64   `json:"api_cost_usd,omitempty"`
	CacheHit          bool      `json:"cache_hit,omitempty"`
}

// FlagSeverity enumerates Flag.Severity.
type FlagSeverity string

const (
	SeverityInfo    FlagSeverity = "info"
	SeverityWarning FlagSeverity = "warning"
	SeverityError   FlagSeverity = "error"
)

// FlagType enumerates the closed vocabulary of detectable anomalies
// (spec §4.10.1).
type FlagType string

const (
	FlagLoopDetected    FlagType = "loop_detected"
	FlagHighCostStep    FlagType = "high_cost_step"
	FlagRepeatedTool    FlagType = "repeated_tool"
	FlagEmptyToolOutput FlagType = "empty_tool_output"
	FlagErrorFallback   FlagType = "error_fallback"
	FlagCacheMissRetry  FlagType = "cache_miss_retry"
	FlagPromptMutation  FlagType = "prompt_mutation"
)

// ExplanationSource records whether a flag's explanation came from the
// deterministic rule set or an LLM fallback (spec §4.10.1).
type ExplanationSource string

const (
	SourceDeterministic ExplanationSource = "deterministic"
	SourceLLM           ExplanationSource = "llm"
)

// Flag is a derived anomaly attached to a run or a specific step. Never
// user-supplied.
type Flag struct {
	Type       FlagType     `json:"type"`
	Severity   FlagSeverity `json:"severity"`
	Message    string       `json:"message"`
	StepIndex  *int         `json:"step_index,omitempty"`
	Confidence float64      `json:"confidence,omitempty"`
	Source     ExplanationSource `json:"source,omitempty"`
}

// CachingOpportunity is a derived, non-cached step that could have been
// served from an earlier step's result.
type CachingOpportunity struct {
	StepIndex          int     `json:"step_index"`
	ReferenceStepIndex int     `json:"reference_step_index"`
	Similarity         float64 `json:"similarity"`
	SavedCost          float64 `json:"saved_cost"`
	Message            string  `json:"message"`
}

// CostSummary is the attribution computed over an AgentRun (spec §4.10.2).
type CostSummary struct {
	TotalCostUSD    float64 `json:"total_cost_usd"`
	WastedSpendUSD  float64 `json:"wasted_spend_usd"`
	AmountSavedUSD  float64 `json:"amount_saved_usd"`
	CacheHitRate    float64 `json:"cache_hit_rate"`
}
