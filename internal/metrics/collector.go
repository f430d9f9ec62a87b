// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// LLM 指标
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec
	llmCost            *prometheus.CounterVec

	// 请求合并指标
	coalescedRequestsTotal *prometheus.CounterVec
	concurrentWaiters      *prometheus.GaugeVec
	peakConcurrentWaiters  *prometheus.GaugeVec

	// 语义缓存决策指标
	cacheDecisionsTotal *prometheus.CounterVec

	// Agent Run 摄取指标
	agentRunFlagsTotal     *prometheus.CounterVec
	agentRunsIngestedTotal *prometheus.CounterVec
	costAttributedTotal    *prometheus.CounterVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
	dbQueryDuration   *prometheus.HistogramVec

	// 事件发射器指标
	eventsEmittedTotal *prometheus.CounterVec

	// 阈值调整指标
	thresholdTunesTotal *prometheus.CounterVec

	logger      *zap.Logger
	mu          sync.RWMutex
	waiterPeaks map[string]int
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger:      logger.With(zap.String("component", "metrics")),
		waiterPeaks: make(map[string]int),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// LLM 指标
	c.llmRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests",
		},
		[]string{"provider", "model", "status"},
	)

	c.llmRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	c.llmTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"provider", "model", "type"}, // type: prompt, completion
	)

	c.llmCost = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_cost_total",
			Help:      "Total LLM cost in USD",
		},
		[]string{"provider", "model"},
	)

	// 请求合并指标
	c.coalescedRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coalesced_requests_total",
			Help:      "Total number of requests served by joining an in-flight upstream call instead of issuing a new one",
		},
		[]string{"provider", "model"},
	)

	c.concurrentWaiters = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "concurrent_waiters",
			Help:      "Current number of requests waiting on a shared in-flight upstream call",
		},
		[]string{"provider", "model"},
	)

	c.peakConcurrentWaiters = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peak_concurrent_waiters",
			Help:      "High-water mark of concurrent_waiters observed since process start",
		},
		[]string{"provider", "model"},
	)

	// 语义缓存决策指标
	c.cacheDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "semantic_cache_decisions_total",
			Help:      "Total number of semantic cache lookups by decision",
		},
		[]string{"decision"}, // exact_hit, semantic_hit, miss, bypass
	)

	// Agent Run 摄取指标
	c.agentRunFlagsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_run_flags_total",
			Help:      "Total number of anomaly flags raised during agent run ingestion, by flag type",
		},
		[]string{"flag_type"},
	)

	c.agentRunsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_runs_ingested_total",
			Help:      "Total number of agent runs ingested, by outcome",
		},
		[]string{"status"},
	)

	c.costAttributedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cost_attributed_usd_total",
			Help:      "Total cost in USD attributed to a project during agent run ingestion",
		},
		[]string{"project_id"},
	)

	// 阈值调整指标
	c.thresholdTunesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "threshold_tunes_total",
			Help:      "Total number of cache threshold tuning operations, by outcome",
		},
		[]string{"outcome"}, // updated, noop, invalid
	)

	// 缓存指标
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// 数据库指标
	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"database", "operation"},
	)

	// 事件发射器指标
	c.eventsEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_emitted_total",
			Help:      "Total number of normalized events emitted, by outcome",
		},
		[]string{"outcome"}, // queued, sink_fallback, dropped
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🤖 LLM 指标记录
// =============================================================================

// RecordLLMRequest 记录 LLM 请求
func (c *Collector) RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int, cost float64) {
	c.llmRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.llmTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.llmTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	c.llmCost.WithLabelValues(provider, model).Add(cost)
}

// =============================================================================
// 🔀 请求合并指标记录
// =============================================================================

// RecordCoalescedRequest 记录一次被合并到现有上游调用的请求。
func (c *Collector) RecordCoalescedRequest(provider, model string) {
	c.coalescedRequestsTotal.WithLabelValues(provider, model).Inc()
}

// SetConcurrentWaiters 更新当前等待共享上游调用的请求数，并维护历史峰值。
func (c *Collector) SetConcurrentWaiters(provider, model string, n int) {
	c.concurrentWaiters.WithLabelValues(provider, model).Set(float64(n))

	c.mu.Lock()
	defer c.mu.Unlock()

	g := c.peakConcurrentWaiters.WithLabelValues(provider, model)
	key := provider + "/" + model
	if n > c.waiterPeaks[key] {
		c.waiterPeaks[key] = n
		g.Set(float64(n))
	}
}

// =============================================================================
// 🧠 语义缓存指标记录
// =============================================================================

// RecordCacheDecision 记录一次语义缓存查找的最终决策。
func (c *Collector) RecordCacheDecision(decision string) {
	c.cacheDecisionsTotal.WithLabelValues(decision).Inc()
}

// =============================================================================
// 📥 Agent Run 摄取指标记录
// =============================================================================

// RecordAgentRunFlag 记录一次异常标记的触发。
func (c *Collector) RecordAgentRunFlag(flagType string) {
	c.agentRunFlagsTotal.WithLabelValues(flagType).Inc()
}

// RecordAgentRunIngested 记录一次 agent run 摄取完成。
func (c *Collector) RecordAgentRunIngested(status string) {
	c.agentRunsIngestedTotal.WithLabelValues(status).Inc()
}

// RecordCostAttributed 记录归因到某个项目的花费。
func (c *Collector) RecordCostAttributed(projectID string, usd float64) {
	c.costAttributedTotal.WithLabelValues(projectID).Add(usd)
}

// RecordEventEmitted 记录一次事件发射的结果（queued / sink_fallback / dropped）。
func (c *Collector) RecordEventEmitted(outcome string) {
	c.eventsEmittedTotal.WithLabelValues(outcome).Inc()
}

// RecordThresholdTune 记录一次缓存阈值调整操作的结果（updated / noop / invalid）。
func (c *Collector) RecordThresholdTune(outcome string) {
	c.thresholdTunesTotal.WithLabelValues(outcome).Inc()
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// RecordDBQuery 记录数据库查询
func (c *Collector) RecordDBQuery(database, operation string, duration time.Duration) {
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
