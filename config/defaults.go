// =============================================================================
// 📦 Gatewayflow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Database:  DefaultDatabaseConfig(),
		Redis:     DefaultRedisConfig(),
		VectorDB:  DefaultVectorDBConfig(),
		Crypto:    CryptoConfig{},
		Embedding: DefaultEmbeddingConfig(),
		Analytics: DefaultAnalyticsConfig(),
		Providers: DefaultProvidersConfig(),
		Pool:      PoolConfig{},
		Flags:     DefaultFlagsConfig(),
		Archive:   DefaultArchiveConfig(),
		Features:  DefaultFeaturesConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:         8080,
		MetricsPort:      9091,
		ReadTimeout:      30 * time.Second,
		WriteTimeout:     30 * time.Second,
		ShutdownTimeout:  15 * time.Second,
		PipelineDeadline:   60 * time.Second,
		MaxBodyBytes:       8 << 20,
		CORSAllowedOrigins: nil,
		RateLimitRPS:       50,
		RateLimitBurst:     100,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "gatewayflow",
		Password:        "",
		Name:            "gatewayflow",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultVectorDBConfig 返回默认向量库配置
func DefaultVectorDBConfig() VectorDBConfig {
	return VectorDBConfig{
		Enabled:    true,
		Dimensions: 1536,
		Table:      "cache_embeddings",
	}
}

// DefaultEmbeddingConfig 返回默认 Embedding 服务配置
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		URL:     "",
		Model:   "text-embedding-3-small",
		Timeout: 10 * time.Second,
	}
}

// DefaultAnalyticsConfig 返回默认分析上报配置
func DefaultAnalyticsConfig() AnalyticsConfig {
	return AnalyticsConfig{
		URL:           "",
		QueueCapacity: 1000,
	}
}

// DefaultProvidersConfig 返回默认上游 Provider 基地址
func DefaultProvidersConfig() ProvidersConfig {
	return ProvidersConfig{
		OpenAIBaseURL:     "https://api.openai.com/v1",
		AnthropicBaseURL:  "https://api.anthropic.com/v1",
		GroqBaseURL:       "https://api.groq.com/openai/v1",
		OpenRouterBaseURL: "https://openrouter.ai/api/v1",
	}
}

// DefaultFlagsConfig 返回默认异常检测阈值
func DefaultFlagsConfig() FlagsConfig {
	return FlagsConfig{
		LoopThreshold:         3,
		LoopWindow:            30 * time.Second,
		HighCostThreshold:     0.05,
		RepeatedToolThreshold: 3,
		TruncationLength:      4096,
		ExplanationConfidence: 0.70,
	}
}

// DefaultArchiveConfig 返回默认原始负载归档配置（默认关闭）
func DefaultArchiveConfig() ArchiveConfig {
	return ArchiveConfig{
		Enabled:    false,
		Database:   "gatewayflow",
		Collection: "agent_step_archive",
	}
}

// DefaultFeaturesConfig 返回默认特性开关
func DefaultFeaturesConfig() FeaturesConfig {
	return FeaturesConfig{
		AgentDebuggerEnabled: true,
		LLMExplainerEnabled:  false,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4318",
		ServiceName:  "gatewayflow",
		SampleRate:   0.1,
	}
}
