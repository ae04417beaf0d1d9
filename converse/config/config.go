package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/converse-harness/converse"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Converse ConverseConfig `mapstructure:"converse"`
	Provider ProviderConfig `mapstructure:"provider"`
	Harness  HarnessConfig  `mapstructure:"harness"`
}

// DatabaseConfig stores database connection details.
type DatabaseConfig struct {
	DSN  string `mapstructure:"dsn"`
	Type string `mapstructure:"type"`
	// Embedded-only configuration
	LibSQLDataDir string `mapstructure:"libsql_data_dir"` // Directory for database files
}

// ConverseConfig stores application-wide settings.
type ConverseConfig struct {
	DataDir  string         `mapstructure:"dataDir"`
	Database DatabaseConfig `mapstructure:"database"`
}

// ProviderConfig selects and configures the model backend.
type ProviderConfig struct {
	Backend   string          `mapstructure:"backend"`  // "bedrock", "anthropic", "local"
	ModelID   string          `mapstructure:"model_id"` // Provider-specific model identifier
	Bedrock   BedrockConfig   `mapstructure:"bedrock"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Local     LocalConfig     `mapstructure:"local"`
}

// BedrockConfig stores Amazon Bedrock connection details.
type BedrockConfig struct {
	Region          string `mapstructure:"region"`            // AWS region, e.g. "us-east-1"
	AccessKeyID     string `mapstructure:"access_key_id"`     // Static credentials (optional; default chain otherwise)
	SecretAccessKey string `mapstructure:"secret_access_key"` // Static credentials (optional)
}

// AnthropicConfig stores Anthropic API connection details.
type AnthropicConfig struct {
	APIKey  string `mapstructure:"api_key"`  // Defaults to ANTHROPIC_API_KEY
	BaseURL string `mapstructure:"base_url"` // Override for proxies/gateways
}

// LocalConfig stores local GGUF model configurations.
type LocalConfig struct {
	ModelPath   string `mapstructure:"model_path"`   // Path to a .gguf file
	ContextSize int    `mapstructure:"context_size"` // Context window in tokens
	GPULayers   int    `mapstructure:"gpu_layers"`   // Layers to offload to GPU
}

// HarnessConfig stores conversation driver configurations.
type HarnessConfig struct {
	// Cache settings
	CacheEnabled    bool `mapstructure:"cache_enabled"`     // Enable tool-result caching
	CacheCapacity   int  `mapstructure:"cache_capacity"`    // LRU cache capacity
	CacheTTLSeconds int  `mapstructure:"cache_ttl_seconds"` // Cache entry TTL

	// Rate limiting
	RateLimitEnabled    bool          `mapstructure:"rate_limit_enabled"`     // Enable rate limiting
	RateLimitCapacity   int           `mapstructure:"rate_limit_capacity"`    // Token bucket capacity
	RateLimitRefillRate time.Duration `mapstructure:"rate_limit_refill_rate"` // Refill rate

	// Policies
	MaxIterations       int           `mapstructure:"max_iterations"`          // Maximum tool round-trips per turn
	MaxToolCallsPerTurn int           `mapstructure:"max_tool_calls_per_turn"` // Maximum tool calls per assistant turn
	ToolTimeout         time.Duration `mapstructure:"tool_timeout"`            // Per-tool execution timeout
	MaxOutputSize       int           `mapstructure:"max_output_size"`         // Maximum output size in bytes
	ParseTextToolCalls  bool          `mapstructure:"parse_text_tool_calls"`   // Recover tool calls embedded in plain text

	// Safety and validation
	EnableGuardrails bool     `mapstructure:"enable_guardrails"` // Enable safety checks
	BlockedWords     []string `mapstructure:"blocked_words"`     // Words to block in output
	AllowedTools     []string `mapstructure:"allowed_tools"`     // Whitelist of allowed tool names

	// Persistence
	PersistConversations bool `mapstructure:"persist_conversations"` // Save turns to the database

	// Telemetry
	EnableTracing bool `mapstructure:"enable_tracing"` // Enable structured logging/tracing
}

var AppConfig Config

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("..")
		viper.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		viper.AddConfigPath(internal.DefaultConfigPath)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// Set default values
	viper.SetDefault("converse.dataDir", internal.DefaultDataDir)
	viper.SetDefault("converse.database.dsn", internal.DefaultDatabaseDSN)
	viper.SetDefault("converse.database.type", internal.DefaultDatabaseType)
	viper.SetDefault("converse.database.libsql_data_dir", internal.DefaultDataDir)

	// Provider defaults
	viper.SetDefault("provider.backend", "bedrock")
	viper.SetDefault("provider.model_id", "anthropic.claude-3-haiku-20240307-v1:0")
	viper.SetDefault("provider.bedrock.region", "us-east-1")
	viper.SetDefault("provider.anthropic.api_key", "")
	viper.SetDefault("provider.anthropic.base_url", "")
	viper.SetDefault("provider.local.model_path", "")
	viper.SetDefault("provider.local.context_size", 4096)
	viper.SetDefault("provider.local.gpu_layers", 0)

	// Harness defaults (production-optimized)
	viper.SetDefault("harness.cache_enabled", false)
	viper.SetDefault("harness.cache_capacity", 1000)
	viper.SetDefault("harness.cache_ttl_seconds", 300)
	viper.SetDefault("harness.rate_limit_enabled", true)
	viper.SetDefault("harness.rate_limit_capacity", 10)
	viper.SetDefault("harness.rate_limit_refill_rate", "1s")
	viper.SetDefault("harness.max_iterations", 8)
	viper.SetDefault("harness.max_tool_calls_per_turn", 16)
	viper.SetDefault("harness.tool_timeout", "30s")
	viper.SetDefault("harness.max_output_size", 1<<20)
	viper.SetDefault("harness.parse_text_tool_calls", false)
	viper.SetDefault("harness.enable_guardrails", true)
	viper.SetDefault("harness.blocked_words", []string{"password", "secret", "credential"})
	viper.SetDefault("harness.allowed_tools", []string{}) // Empty means allow all by default
	viper.SetDefault("harness.persist_conversations", false)
	viper.SetDefault("harness.enable_tracing", true)

	viper.AutomaticEnv()
	viper.SetEnvPrefix(strings.ToUpper(internal.DefaultAppName))
	// Replace dots with underscores in env var names e.g. provider.model_id becomes CONVERSE_PROVIDER_MODEL_ID
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; defaults and environment variables apply.
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	err := viper.Unmarshal(&AppConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &AppConfig, nil
}

// Watch re-reads configuration whenever the loaded file changes on disk and
// hands the fresh snapshot to onChange. Callers decide what is safe to apply
// mid-flight; the driver only picks up new policy values on the next turn.
func Watch(onChange func(*Config)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		var fresh Config
		if err := viper.Unmarshal(&fresh); err != nil {
			return
		}
		AppConfig = fresh
		if onChange != nil {
			onChange(&fresh)
		}
	})
	viper.WatchConfig()
}
