// Package pipeline implements the Proxy Pipeline (C9): orchestrates
// C1 (auth) -> C6 (coalesce) -> C5 (cache) -> C7 (upstream) -> C2 (cost)
// -> C5 (populate) -> C8 (event) for every incoming chat request.
//
// Grounded on internal/server/manager.go's lifecycle-manager style (one
// struct holding every collaborator, explicit Config) and
// api/handlers/chat.go's handler shape: the per-request state machine is
// a straight-line function with named error returns, not a separate FSM
// type — matching the teacher's preference for a function over an
// abstraction where a function suffices.
package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gatewayflow/gatewayflow/coalesce"
	"github.com/gatewayflow/gatewayflow/cost"
	"github.com/gatewayflow/gatewayflow/credential"
	"github.com/gatewayflow/gatewayflow/events"
	"github.com/gatewayflow/gatewayflow/ratelimit"
	"github.com/gatewayflow/gatewayflow/router"
	"github.com/gatewayflow/gatewayflow/semanticcache"
	"github.com/gatewayflow/gatewayflow/types"
)

// DefaultDeadline is the overall pipeline deadline (spec §4.9: "default
// 60s").
const DefaultDeadline = 60 * time.Second

// Pipeline holds every collaborator a request passes through.
type Pipeline struct {
	credentials *credential.Resolver
	coalescer   *coalesce.Coalescer
	cache       *semanticcache.Cache
	router      *router.Router
	costs       *cost.Estimator
	emitter     *events.Emitter
	projects    ProjectStore
	deadline    time.Duration
	limiter     *ratelimit.Limiter // nil disables rate limiting
	logger      *zap.Logger
}

// Config configures a Pipeline.
type Config struct {
	Deadline time.Duration // 0 defaults to DefaultDeadline

	// RateLimiter, when set, enforces a per-project token-bucket limit
	// in front of coalescing (spec.md §5: over-limit requests fail fast
	// with ErrRateLimited rather than queueing). Nil disables limiting.
	RateLimiter *ratelimit.Limiter
}

// New creates a Pipeline.
func New(cfg Config, credentials *credential.Resolver, coalescer *coalesce.Coalescer, cache *semanticcache.Cache, r *router.Router, costs *cost.Estimator, emitter *events.Emitter, projects ProjectStore, logger *zap.Logger) *Pipeline {
	deadline := cfg.Deadline
	if deadline == 0 {
		deadline = DefaultDeadline
	}
	return &Pipeline{
		credentials: credentials,
		coalescer:   coalescer,
		cache:       cache,
		router:      r,
		costs:       costs,
		emitter:     emitter,
		projects:    projects,
		deadline:    deadline,
		limiter:     cfg.RateLimiter,
		logger:      logger.With(zap.String("component", "pipeline")),
	}
}

// outcome is the internal result of a single (possibly coalesced)
// upstream round trip, carried through singleflight.Group.Do as an `any`.
type outcome struct {
	response   *types.ChatResponse
	decision   types.CacheDecision
	similarity float64
	fromCache  bool
	provider   types.Provider
}

// Complete runs the full pipeline for a non-streaming chat request:
// Received -> Authenticated -> Coalesced -> (CacheHit | CacheMiss) ->
// [UpstreamDispatched -> CachePopulated] -> EventEmitted -> Responded.
func (p *Pipeline) Complete(ctx context.Context, apiKey string, req *types.ChatRequest) (resp *types.ChatResponse, apiErr *types.Error) {
	ctx, cancel := context.WithTimeout(ctx, p.deadline)
	defer cancel()

	start := time.Now()
	eventID := uuid.NewString()

	// Authenticated: router selection is pure and needs no I/O, so it
	// runs first to supply C1 with the provider name it authenticates
	// against.
	upstream, routeErr := p.router.Resolve(req.Model)
	if routeErr != nil {
		return nil, routeErr
	}

	cred, project, authErr := p.credentials.Resolve(ctx, apiKey, string(upstream.Name()), req.Model)
	if authErr != nil {
		p.emitError(ctx, eventID, project, req.Model, authErr, start)
		return nil, authErr
	}
	req.Project = project

	if p.limiter != nil && !p.limiter.Allow(project) {
		limitErr := types.NewError(types.ErrRateLimited, "project rate limit exceeded").WithRetryable(false)
		p.emitError(ctx, eventID, project, req.Model, limitErr, start)
		return nil, limitErr
	}

	// Coalesced: fingerprint disjoint by streaming flag even though
	// Complete always passes streaming=false.
	body := canonicalize(req)
	fingerprint := coalesce.Fingerprint(project, string(upstream.Name()), req.Model, body, false)

	raw, err := p.coalescer.Do(fingerprint, string(upstream.Name()), req.Model, func() (any, error) {
		return p.resolveOnce(ctx, project, cred, upstream, req)
	})
	if err != nil {
		gwErr := asGatewayError(err)
		p.emitError(ctx, eventID, project, req.Model, gwErr, start)
		return nil, gwErr
	}

	result := raw.(outcome)
	p.emitSuccess(ctx, eventID, project, req, cred, result, start)
	return result.response, nil
}

// resolveOnce performs the cache-lookup-then-upstream-dispatch sequence
// exactly once per fingerprint; singleflight.Group.Do fans its result out
// to every coalesced waiter.
func (p *Pipeline) resolveOnce(ctx context.Context, project string, cred *credential.Result, upstream router.Provider, req *types.ChatRequest) (outcome, error) {
	threshold, err := p.projects.CacheThreshold(ctx, project)
	if err != nil {
		p.logger.Warn("project threshold lookup failed, using default", zap.String("project", project), zap.Error(err))
		threshold = types.DefaultCacheThreshold
	}

	prompt := flattenMessages(req.Messages)
	decision := p.cache.Lookup(ctx, project, req.Model, prompt, threshold)
	if decision.Hit {
		var cached types.ChatResponse
		if unmarshalErr := json.Unmarshal([]byte(decision.Payload), &cached); unmarshalErr == nil {
			return outcome{response: &cached, decision: decision.Kind, similarity: decision.Similarity, fromCache: true, provider: upstream.Name()}, nil
		}
		p.logger.Warn("cache payload unmarshal failed, treating as miss", zap.String("project", project))
	}

	resp, upstreamErr := upstream.Complete(ctx, cred.Secret, req)
	if upstreamErr != nil {
		return outcome{}, upstreamErr
	}

	payload, marshalErr := json.Marshal(resp)
	if marshalErr == nil {
		if storeErr := p.cache.Store(ctx, project, req.Model, prompt, string(payload), resp.Usage.PromptTokens, resp.Usage.CompletionTokens); storeErr != nil {
			p.logger.Warn("cache populate failed", zap.String("project", project), zap.Error(storeErr))
		}
	}

	return outcome{response: resp, decision: types.CacheMiss, fromCache: false, provider: upstream.Name()}, nil
}

func (p *Pipeline) emitSuccess(ctx context.Context, eventID, project string, req *types.ChatRequest, cred *credential.Result, result outcome, start time.Time) {
	potentialCost, _ := p.costs.Calculate(string(result.provider), req.Model, result.response.Usage.PromptTokens, result.response.Usage.CompletionTokens)
	costUSD := potentialCost
	if result.fromCache {
		costUSD = 0
	}

	var similarity *float64
	if result.decision == types.CacheSemantic {
		s := result.similarity
		similarity = &s
	}

	tags := []string{string(cred.Source)}
	if modelFamily := familyTag(req.Model); modelFamily != "" {
		tags = append(tags, modelFamily)
	}

	var responseText string
	if len(result.response.Choices) > 0 {
		responseText = result.response.Choices[0].Message.Content
	}

	p.emitter.Emit(ctx, types.NormalizedEvent{
		EventID:          eventID,
		Project:          project,
		Timestamp:        time.Now(),
		EventType:        types.EventPromptCall,
		Model:            req.Model,
		Response:         responseText,
		TokensIn:         result.response.Usage.PromptTokens,
		TokensOut:        result.response.Usage.CompletionTokens,
		CostUSD:          costUSD,
		PotentialCostUSD: potentialCost,
		LatencyMS:        time.Since(start).Milliseconds(),
		CacheDecision:    cacheDecisionOrMiss(result.decision),
		CacheSimilarity:  similarity,
		Status:           types.StatusOK,
		Tags:             tags,
	})
}

func (p *Pipeline) emitError(ctx context.Context, eventID, project, model string, err *types.Error, start time.Time) {
	status := types.StatusError
	if err.Code == types.ErrTimeout {
		status = types.StatusTimeout
	}
	p.emitter.Emit(ctx, types.NormalizedEvent{
		EventID:       eventID,
		Project:       project,
		Timestamp:     time.Now(),
		EventType:     types.EventError,
		Model:         model,
		LatencyMS:     time.Since(start).Milliseconds(),
		CacheDecision: types.CacheMiss,
		Status:        status,
		ErrorMessage:  err.Message,
	})
}

func cacheDecisionOrMiss(d types.CacheDecision) types.CacheDecision {
	if d == "" {
		return types.CacheMiss
	}
	return d
}

// canonicalize produces a stable serialization of the parts of req that
// determine whether two requests are "identical" for coalescing
// purposes.
func canonicalize(req *types.ChatRequest) string {
	type canonicalRequest struct {
		Model       string            `json:"model"`
		Messages    []types.Message   `json:"messages"`
		Temperature float32           `json:"temperature"`
		TopP        float32           `json:"top_p"`
		MaxTokens   int               `json:"max_tokens"`
		Stop        []string          `json:"stop"`
		Tools       []types.ToolSchema `json:"tools"`
		ToolChoice  string            `json:"tool_choice"`
	}
	payload, _ := json.Marshal(canonicalRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
		Tools:       req.Tools,
		ToolChoice:  req.ToolChoice,
	})
	return string(payload)
}

func flattenMessages(messages []types.Message) string {
	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString(string(m.Role))
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

func familyTag(model string) string {
	switch {
	case strings.HasPrefix(model, "gpt-"):
		return "gpt"
	case strings.HasPrefix(model, "claude-"):
		return "claude"
	case strings.HasPrefix(model, "llama"):
		return "llama"
	default:
		return ""
	}
}

// asGatewayError normalizes a singleflight-propagated error (always
// either a *types.Error from upstream.Complete or a context deadline
// error) into *types.Error.
func asGatewayError(err error) *types.Error {
	if gwErr, ok := err.(*types.Error); ok {
		return gwErr
	}
	if err == context.DeadlineExceeded {
		return types.NewError(types.ErrTimeout, "pipeline deadline exceeded").WithRetryable(true)
	}
	return types.NewError(types.ErrInternalError, "unexpected pipeline error").WithCause(err)
}
