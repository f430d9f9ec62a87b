// =============================================================================
// Gatewayflow configuration loader
// =============================================================================
// Unified config loading: YAML file + environment variable overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("GATEWAYFLOW").
//	    Load()
//
// Precedence: defaults -> YAML file -> environment variables.
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is gatewayflow's complete configuration structure.
type Config struct {
	Server     ServerConfig     `yaml:"server" env:"SERVER"`
	Database   DatabaseConfig   `yaml:"database" env:"DATABASE"`
	Redis      RedisConfig      `yaml:"redis" env:"REDIS"`
	VectorDB   VectorDBConfig   `yaml:"vector_db" env:"VECTOR_DB"`
	Crypto     CryptoConfig     `yaml:"crypto" env:"CRYPTO"`
	Embedding  EmbeddingConfig  `yaml:"embedding" env:"EMBEDDING"`
	Analytics  AnalyticsConfig  `yaml:"analytics" env:"ANALYTICS"`
	Providers  ProvidersConfig  `yaml:"providers" env:"PROVIDERS"`
	Pool       PoolConfig       `yaml:"pool" env:"POOL"`
	Flags      FlagsConfig      `yaml:"flags" env:"FLAGS"`
	Archive    ArchiveConfig    `yaml:"archive" env:"ARCHIVE"`
	Features   FeaturesConfig   `yaml:"features" env:"FEATURES"`
	Log        LogConfig        `yaml:"log" env:"LOG"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig controls the HTTP listener and request deadlines.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// PipelineDeadline bounds a single proxied request end to end (spec §4.9).
	PipelineDeadline   time.Duration `yaml:"pipeline_deadline" env:"PIPELINE_DEADLINE"`
	MaxBodyBytes       int64         `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
	CORSAllowedOrigins []string      `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	RateLimitRPS       float64       `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst     int           `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// DatabaseConfig is the relational store (projects/api_keys/provider_keys/
// agent_debug_*) connection.
type DatabaseConfig struct {
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Name            string        `yaml:"name" env:"NAME"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// DSN returns the libpq connection string for this database.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// RedisConfig backs the exact-key cache store and the gateway's Redis
// readiness check.
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// VectorDBConfig configures the pgvector-backed semantic cache store.
type VectorDBConfig struct {
	Enabled    bool   `yaml:"enabled" env:"ENABLED"`
	Dimensions int    `yaml:"dimensions" env:"DIMENSIONS"`
	Table      string `yaml:"table" env:"TABLE"`
}

// CryptoConfig holds the process-level master secret used to decrypt
// ProviderCredential.EncryptedSecret (spec §4.1).
type CryptoConfig struct {
	MasterSecret string `yaml:"-" env:"MASTER_SECRET"`
}

// EmbeddingConfig points at the external embedding service (spec §3/§4.5).
type EmbeddingConfig struct {
	URL     string        `yaml:"url" env:"URL"`
	APIKey  string        `yaml:"-" env:"API_KEY"`
	Model   string        `yaml:"model" env:"MODEL"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// AnalyticsConfig points at the columnar analytics sink used as the
// observability queue's fallback write target.
type AnalyticsConfig struct {
	URL           string `yaml:"url" env:"URL"`
	ServiceKey    string `yaml:"-" env:"SERVICE_KEY"`
	QueueCapacity int    `yaml:"queue_capacity" env:"QUEUE_CAPACITY"`
	// JWTSecret verifies dashboard-issued session tokens presented to the
	// analytics proxy as an alternative to a project API key.
	JWTSecret string `yaml:"-" env:"JWT_SECRET"`
}

// ProvidersConfig holds per-provider base URLs (credentials are resolved
// per-project by the Credential Resolver, never configured globally).
type ProvidersConfig struct {
	OpenAIBaseURL     string `yaml:"openai_base_url" env:"OPENAI_BASE_URL"`
	AnthropicBaseURL  string `yaml:"anthropic_base_url" env:"ANTHROPIC_BASE_URL"`
	GroqBaseURL       string `yaml:"groq_base_url" env:"GROQ_BASE_URL"`
	OpenRouterBaseURL string `yaml:"openrouter_base_url" env:"OPENROUTER_BASE_URL"`
}

// PoolConfig holds the shared free-tier credential used when a project has
// no BYOK credential (spec §4.1).
type PoolConfig struct {
	OpenAIKey     string   `yaml:"-" env:"OPENAI_KEY"`
	AnthropicKey  string   `yaml:"-" env:"ANTHROPIC_KEY"`
	GroqKey       string   `yaml:"-" env:"GROQ_KEY"`
	OpenRouterKey string   `yaml:"-" env:"OPENROUTER_KEY"`
	FreeModels    []string `yaml:"free_models" env:"FREE_MODELS"`
}

// ArchiveConfig controls the optional out-of-band archive of
// AgentStep.raw payloads the sanitizer truncates before they reach the
// relational store. Disabled by default; truncated payloads are simply
// dropped unless Enabled is set, in which case MongoURI is dialed at
// startup.
type ArchiveConfig struct {
	Enabled    bool   `yaml:"enabled" env:"ENABLED"`
	MongoURI   string `yaml:"-" env:"MONGO_URI"`
	Database   string `yaml:"database" env:"DATABASE"`
	Collection string `yaml:"collection" env:"COLLECTION"`
}

// FlagsConfig holds the agent-run flag detection thresholds (spec §4.10.1).
type FlagsConfig struct {
	LoopThreshold       int           `yaml:"loop_threshold" env:"LOOP_THRESHOLD"`
	LoopWindow          time.Duration `yaml:"loop_window" env:"LOOP_WINDOW"`
	HighCostThreshold   float64       `yaml:"high_cost_threshold" env:"HIGH_COST_THRESHOLD"`
	RepeatedToolThreshold int         `yaml:"repeated_tool_threshold" env:"REPEATED_TOOL_THRESHOLD"`
	TruncationLength    int           `yaml:"truncation_length" env:"TRUNCATION_LENGTH"`
	ExplanationConfidence float64     `yaml:"explanation_confidence" env:"EXPLANATION_CONFIDENCE"`
}

// FeaturesConfig toggles optional subsystems (spec §6).
type FeaturesConfig struct {
	AgentDebuggerEnabled bool `yaml:"agent_debugger_enabled" env:"AGENT_DEBUGGER_ENABLED"`
	LLMExplainerEnabled  bool `yaml:"llm_explainer_enabled" env:"LLM_EXPLAINER_ENABLED"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures the OpenTelemetry tracer provider.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// Loader
// =============================================================================

// Loader loads configuration using the builder pattern.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "GATEWAYFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a config validator run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load loads configuration: defaults -> YAML file -> environment variables.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads configuration, panicking on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads configuration from defaults and environment variables
// only, with no YAML file.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate checks required invariants on a loaded Config.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Crypto.MasterSecret == "" {
		errs = append(errs, "crypto master secret is required")
	}
	if c.Flags.LoopThreshold <= 0 {
		errs = append(errs, "flags.loop_threshold must be positive")
	}
	if c.Archive.Enabled && c.Archive.MongoURI == "" {
		errs = append(errs, "archive.mongo_uri is required when archive.enabled is true")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
