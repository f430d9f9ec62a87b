package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gatewayflow/gatewayflow/api/handlers"
	"github.com/gatewayflow/gatewayflow/coalesce"
	"github.com/gatewayflow/gatewayflow/config"
	"github.com/gatewayflow/gatewayflow/cost"
	"github.com/gatewayflow/gatewayflow/credential"
	"github.com/gatewayflow/gatewayflow/events"
	"github.com/gatewayflow/gatewayflow/ingest"
	"github.com/gatewayflow/gatewayflow/internal/cache"
	"github.com/gatewayflow/gatewayflow/internal/channel"
	"github.com/gatewayflow/gatewayflow/internal/database"
	"github.com/gatewayflow/gatewayflow/internal/metrics"
	"github.com/gatewayflow/gatewayflow/internal/server"
	"github.com/gatewayflow/gatewayflow/internal/telemetry"
	"github.com/gatewayflow/gatewayflow/pipeline"
	"github.com/gatewayflow/gatewayflow/ratelimit"
	"github.com/gatewayflow/gatewayflow/router"
	"github.com/gatewayflow/gatewayflow/router/anthropic"
	"github.com/gatewayflow/gatewayflow/router/openaicompat"
	"github.com/gatewayflow/gatewayflow/sanitize"
	"github.com/gatewayflow/gatewayflow/semanticcache"
	"github.com/gatewayflow/gatewayflow/tuner"
	"github.com/gatewayflow/gatewayflow/types"
	"github.com/gatewayflow/gatewayflow/vectorstore"
)

// Server is gatewayflow's main process: it owns every C1-C11 gateway
// component, the HTTP handlers wrapping them, and the HTTP/metrics
// listeners.
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	otel       *telemetry.Providers
	dbPool     *database.PoolManager
	db         *gorm.DB
	cacheMgr   *cache.Manager
	mongo      *mongo.Client // nil unless cfg.Archive.Enabled

	httpManager    *server.Manager
	metricsManager *server.Manager

	chatHandler       *handlers.ChatHandler
	completionsHandler *handlers.CompletionsHandler
	embeddingsHandler *handlers.EmbeddingsHandler
	agentRunsHandler  *handlers.AgentRunsHandler
	agentRunStreamHandler *handlers.AgentRunStreamHandler
	analyticsHandler  *handlers.AnalyticsHandler
	healthHandler     *handlers.HealthHandler

	metricsCollector *metrics.Collector

	hotReloadManager *config.HotReloadManager
	configAPIHandler *config.ConfigAPIHandler

	emitter    *events.Emitter
	runCancel  context.CancelFunc
	wg         sync.WaitGroup
}

// NewServer creates a Server. dbPool and otelProviders are opened/
// initialized by main() ahead of time so a database outage fails fast
// at startup rather than surfacing as 500s on the first request.
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger, otelProviders *telemetry.Providers, dbPool *database.PoolManager) *Server {
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		otel:       otelProviders,
		dbPool:     dbPool,
		db:         dbPool.DB(),
	}
}

// Start wires every gateway component and brings up the HTTP and
// metrics listeners. Non-blocking: returns once both servers have
// started accepting connections.
func (s *Server) Start() error {
	s.metricsCollector = metrics.NewCollector("gatewayflow", s.logger)

	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.runCancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.emitter.Run(runCtx)
	}()

	if err := s.initHotReloadManager(); err != nil {
		return fmt.Errorf("failed to init hot reload manager: %w", err)
	}

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("hot_reload_enabled", s.configPath != ""),
	)

	return nil
}

// =============================================================================
// Component wiring
// =============================================================================

// initHandlers constructs every C1-C11 collaborator from s.cfg and s.db,
// then the HTTP handlers that wrap them.
func (s *Server) initHandlers() error {
	cfg := s.cfg

	cacheCfg := cache.DefaultConfig()
	cacheCfg.Addr = cfg.Redis.Addr
	cacheCfg.Password = cfg.Redis.Password
	cacheCfg.DB = cfg.Redis.DB
	cacheCfg.PoolSize = cfg.Redis.PoolSize
	cacheCfg.MinIdleConns = cfg.Redis.MinIdleConns
	cacheMgr, err := cache.NewManager(cacheCfg, s.logger)
	if err != nil {
		return fmt.Errorf("connect redis cache manager: %w", err)
	}
	s.cacheMgr = cacheMgr

	apiKeys := credential.NewGormAPIKeyStore(s.db)
	creds := credential.NewGormCredentialStore(s.db)
	resolver := credential.NewResolver(apiKeys, creds, credential.Config{
		MasterSecret: cfg.Crypto.MasterSecret,
		PoolKeys: map[types.Provider]string{
			types.ProviderOpenAI:     cfg.Pool.OpenAIKey,
			types.ProviderAnthropic:  cfg.Pool.AnthropicKey,
			types.ProviderGroq:       cfg.Pool.GroqKey,
			types.ProviderOpenRouter: cfg.Pool.OpenRouterKey,
		},
		FreeModels: cfg.Pool.FreeModels,
	}, s.logger)

	var vs vectorstore.VectorStore
	if cfg.VectorDB.Enabled {
		vs = vectorstore.NewPgVectorStore(s.db)
	} else {
		vs = vectorstore.NewInMemoryVectorStore()
	}

	embedder := semanticcache.NewHTTPEmbedder(cfg.Embedding.URL, cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Timeout)
	exact := semanticcache.NewExactKeyStore(s.cacheMgr, 0)
	cache := semanticcache.New(exact, vs, embedder, cfg.Flags.TruncationLength, s.logger)

	coalescer := coalesce.New(s.metricsCollector)

	providers := map[types.Provider]router.Provider{
		types.ProviderOpenAI: openaicompat.New(openaicompat.Config{
			Name:    types.ProviderOpenAI,
			BaseURL: cfg.Providers.OpenAIBaseURL,
		}),
		types.ProviderGroq: openaicompat.New(openaicompat.Config{
			Name:    types.ProviderGroq,
			BaseURL: cfg.Providers.GroqBaseURL,
		}),
		types.ProviderOpenRouter: openaicompat.New(openaicompat.Config{
			Name:    types.ProviderOpenRouter,
			BaseURL: cfg.Providers.OpenRouterBaseURL,
		}),
		types.ProviderAnthropic: anthropic.New(anthropic.Config{
			BaseURL: cfg.Providers.AnthropicBaseURL,
		}),
	}
	rtr := router.New(router.Config{
		Prefixes: []router.PrefixRule{
			{Prefix: "gpt-", Provider: types.ProviderOpenAI},
			{Prefix: "o1", Provider: types.ProviderOpenAI},
			{Prefix: "o3", Provider: types.ProviderOpenAI},
			{Prefix: "text-embedding-", Provider: types.ProviderOpenAI},
			{Prefix: "claude-", Provider: types.ProviderAnthropic},
			{Prefix: "llama", Provider: types.ProviderGroq},
			{Prefix: "mixtral", Provider: types.ProviderGroq},
		},
		Aggregator: types.ProviderOpenRouter,
	}, providers)

	sink := events.NewHTTPSink(cfg.Analytics.URL, cfg.Analytics.ServiceKey, 10*time.Second)
	emitter := events.New(channel.DefaultTunableConfig(), sink, s.metricsCollector, s.logger)
	s.emitter = emitter

	costs := cost.NewEstimator()
	projects := pipeline.NewGormProjectStore(s.db)
	projectLimiter := ratelimit.New(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	pipelineCfg := pipeline.Config{Deadline: cfg.Server.PipelineDeadline, RateLimiter: projectLimiter}
	p := pipeline.New(pipelineCfg, resolver, coalescer, cache, rtr, costs, emitter, projects, s.logger)

	sanitizer := sanitize.New(cfg.Flags.TruncationLength)
	runStore := ingest.NewGormStoreWithPool(s.dbPool)
	flagCfg := ingest.DefaultFlagDetectionConfig()
	if cfg.Flags.LoopThreshold > 0 {
		flagCfg.LoopThreshold = cfg.Flags.LoopThreshold
	}
	if cfg.Flags.LoopWindow > 0 {
		flagCfg.LoopWindowSeconds = cfg.Flags.LoopWindow.Seconds()
	}
	if cfg.Flags.HighCostThreshold > 0 {
		flagCfg.HighCostThreshold = cfg.Flags.HighCostThreshold
	}
	if cfg.Flags.RepeatedToolThreshold > 0 {
		flagCfg.RepeatedToolCount = cfg.Flags.RepeatedToolThreshold
	}
	runBroadcaster := ingest.NewBroadcaster()

	var archiver ingest.RawArchiver
	if cfg.Archive.Enabled {
		mongoClient, err := ingest.ConnectMongo(context.Background(), cfg.Archive.MongoURI)
		if err != nil {
			return fmt.Errorf("connect archive mongo: %w", err)
		}
		s.mongo = mongoClient
		archiver = ingest.NewMongoRawArchiver(mongoClient, cfg.Archive.Database, cfg.Archive.Collection)
	}

	ingestor := ingest.New(apiKeys, sanitizer, runStore, emitter, s.metricsCollector, flagCfg, runBroadcaster, archiver, s.logger)

	logSource := tuner.NewHTTPLogSource(cfg.Analytics.URL, cfg.Analytics.ServiceKey, 10*time.Second)
	thresholds := tuner.NewGormThresholdStore(s.db)
	tun := tuner.New(logSource, thresholds, s.metricsCollector, s.logger)

	s.chatHandler = handlers.NewChatHandler(p, rtr, resolver, emitter, costs, s.logger)
	s.completionsHandler = handlers.NewCompletionsHandler(p, s.logger)
	s.embeddingsHandler = handlers.NewEmbeddingsHandler(embedder, apiKeys, s.logger)
	s.agentRunsHandler = handlers.NewAgentRunsHandler(ingestor, s.logger)
	s.agentRunStreamHandler = handlers.NewAgentRunStreamHandler(apiKeys, runBroadcaster, s.logger)
	s.analyticsHandler = handlers.NewAnalyticsHandler(
		cfg.Analytics.URL, cfg.Analytics.ServiceKey, apiKeys,
		[]byte(cfg.Analytics.JWTSecret), tun, 10*time.Second, s.logger,
	)

	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewDatabaseHealthCheck("database", s.dbPool.Ping))
	s.healthHandler.RegisterCheck(handlers.NewRedisHealthCheck("redis", s.cacheMgr.Ping))

	s.logger.Info("handlers initialized")
	return nil
}

// initHotReloadManager wires the config hot-reload watcher and the
// /api/v1/config management API — unchanged in shape from the teacher,
// since neither has any agent-framework-specific coupling to replace.
func (s *Server) initHotReloadManager() error {
	opts := []config.HotReloadOption{
		config.WithHotReloadLogger(s.logger),
	}

	if s.configPath != "" {
		opts = append(opts, config.WithConfigPath(s.configPath))
	}

	s.hotReloadManager = config.NewHotReloadManager(s.cfg, opts...)

	s.hotReloadManager.OnChange(func(change config.ConfigChange) {
		s.logger.Info("configuration changed",
			zap.String("path", change.Path),
			zap.String("source", change.Source),
			zap.Bool("requires_restart", change.RequiresRestart),
		)
	})

	s.hotReloadManager.OnReload(func(oldConfig, newConfig *config.Config) {
		s.logger.Info("configuration reloaded")
		s.cfg = newConfig
	})

	ctx := context.Background()
	if err := s.hotReloadManager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hot reload manager: %w", err)
	}

	s.configAPIHandler = config.NewConfigAPIHandler(s.hotReloadManager)

	return nil
}

// =============================================================================
// HTTP server
// =============================================================================

func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	mux.HandleFunc("POST /v1/chat/completions", s.chatHandler.HandleCompletion)
	mux.HandleFunc("POST /v1/completions", s.completionsHandler.HandleCompletion)
	mux.HandleFunc("POST /v1/embeddings", s.embeddingsHandler.HandleEmbeddings)
	mux.HandleFunc("POST /v1/agent-runs", s.agentRunsHandler.HandleIngest)
	mux.HandleFunc("GET /v1/agent-runs/stream", s.agentRunStreamHandler.HandleStream)

	mux.HandleFunc("GET /v1/analytics/stats", s.analyticsHandler.HandleStats)
	mux.HandleFunc("GET /v1/analytics/logs", s.analyticsHandler.HandleLogs)
	mux.HandleFunc("GET /v1/analytics/timeseries", s.analyticsHandler.HandleTimeseries)
	mux.HandleFunc("GET /v1/analytics/event/{id}", s.analyticsHandler.HandleEvent)
	mux.HandleFunc("POST /v1/analytics/event/{id}/flag", s.analyticsHandler.HandleFlagIncorrect)
	mux.HandleFunc("GET /v1/analytics/agents", s.analyticsHandler.HandleAgents)
	mux.HandleFunc("GET /v1/analytics/agents/{name}", s.analyticsHandler.HandleAgent)
	mux.HandleFunc("GET /v1/analytics/agents/{name}/timeseries", s.analyticsHandler.HandleAgentTimeseries)
	mux.HandleFunc("GET /v1/analytics/roi-report", s.analyticsHandler.HandleROIReport)
	mux.HandleFunc("GET /v1/analytics/coalescing", s.analyticsHandler.HandleCoalescing)
	mux.HandleFunc("GET /v1/analytics/streaming", s.analyticsHandler.HandleStreaming)

	if s.configAPIHandler != nil {
		s.configAPIHandler.RegisterRoutes(mux)
		s.logger.Info("configuration API registered")
	}

	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		OTelTracing(),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(context.Background(), s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     120 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// Metrics server
// =============================================================================

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// Shutdown
// =============================================================================

// WaitForShutdown blocks until SIGINT/SIGTERM, then runs Shutdown.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}

	s.Shutdown()
}

// Shutdown gracefully tears down every subsystem in dependency order.
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown...")

	ctx := context.Background()

	if s.hotReloadManager != nil {
		if err := s.hotReloadManager.Stop(); err != nil {
			s.logger.Error("hot reload manager shutdown error", zap.Error(err))
		}
	}

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	if s.runCancel != nil {
		s.runCancel()
	}

	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}

	if s.otel != nil {
		if err := s.otel.Shutdown(ctx); err != nil {
			s.logger.Error("telemetry shutdown error", zap.Error(err))
		}
	}

	if s.cacheMgr != nil {
		if err := s.cacheMgr.Close(); err != nil {
			s.logger.Error("redis cache manager close error", zap.Error(err))
		}
	}

	if s.dbPool != nil {
		if err := s.dbPool.Close(); err != nil {
			s.logger.Error("database close error", zap.Error(err))
		}
	}

	if s.mongo != nil {
		if err := s.mongo.Disconnect(ctx); err != nil {
			s.logger.Error("archive mongo disconnect error", zap.Error(err))
		}
	}

	s.wg.Wait()

	s.logger.Info("graceful shutdown completed")
}
