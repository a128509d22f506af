// Package config loads and validates service configuration. Values come from
// a YAML file, CLAIMFLOW_* environment variables, and defaults, in that
// order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Reasoner ReasonerConfig `mapstructure:"reasoner"`
	Embedder EmbedderConfig `mapstructure:"embedder"`
	OCR      OCRConfig      `mapstructure:"ocr"`
	Engine   EngineConfig   `mapstructure:"engine"`
}

// ServerConfig holds the HTTP and MCP listen addresses.
type ServerConfig struct {
	Addr    string `mapstructure:"addr"`
	MCPAddr string `mapstructure:"mcp_addr"`
}

// StorageConfig selects the claim store and vector store backend.
type StorageConfig struct {
	// Backend is "memory" or "postgres".
	Backend  string `mapstructure:"backend"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig configures the distributed claim lock. When disabled, an
// in-process lock is used instead.
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

// ReasonerConfig selects and configures the reasoning provider.
type ReasonerConfig struct {
	// Provider is "openai" or "claude".
	Provider    string  `mapstructure:"provider"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int64   `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// EmbedderConfig configures the embeddings endpoint.
type EmbedderConfig struct {
	APIKey            string  `mapstructure:"api_key"`
	BaseURL           string  `mapstructure:"base_url"`
	Model             string  `mapstructure:"model"`
	Dimension         int     `mapstructure:"dimension"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// OCRConfig configures the document extraction service.
type OCRConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// EngineConfig bounds the orchestration loop.
type EngineConfig struct {
	MaxIterations     int           `mapstructure:"max_iterations"`
	ToolTimeout       time.Duration `mapstructure:"tool_timeout"`
	LLMTimeout        time.Duration `mapstructure:"llm_timeout"`
	DecisionThreshold float64       `mapstructure:"decision_confidence_threshold"`
}

// Load reads configuration from the given file (may be empty) and the
// environment, applies defaults, and validates the result.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CLAIMFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mcp_addr", ":8081")

	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.host", "localhost")
	v.SetDefault("storage.port", 5432)
	v.SetDefault("storage.user", "claimflow")
	v.SetDefault("storage.dbname", "claimflow")
	v.SetDefault("storage.sslmode", "disable")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", 10*time.Minute)

	v.SetDefault("reasoner.provider", "openai")
	v.SetDefault("reasoner.model", "gpt-4o-mini")
	v.SetDefault("reasoner.max_tokens", 2000)
	v.SetDefault("reasoner.temperature", 0.2)

	v.SetDefault("embedder.model", "text-embedding-3-small")
	v.SetDefault("embedder.dimension", 1536)

	v.SetDefault("ocr.timeout", 30*time.Second)

	v.SetDefault("engine.max_iterations", 10)
	v.SetDefault("engine.tool_timeout", 60*time.Second)
	v.SetDefault("engine.llm_timeout", 90*time.Second)
	v.SetDefault("engine.decision_confidence_threshold", 0.7)
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	v := NewValidator().
		RequireNonEmpty("server.addr", c.Server.Addr).
		ValidateOneOf("storage.backend", c.Storage.Backend, "memory", "postgres").
		ValidateOneOf("reasoner.provider", c.Reasoner.Provider, "openai", "claude").
		RequireNonEmpty("reasoner.model", c.Reasoner.Model).
		ValidateFloatRange("reasoner.temperature", c.Reasoner.Temperature, 0, 2).
		ValidateRange("engine.max_iterations", c.Engine.MaxIterations, 1, 50).
		RequirePositiveDuration("engine.tool_timeout", c.Engine.ToolTimeout).
		RequirePositiveDuration("engine.llm_timeout", c.Engine.LLMTimeout).
		ValidateFloatRange("engine.decision_confidence_threshold", c.Engine.DecisionThreshold, 0, 1)

	if c.Storage.Backend == "postgres" {
		v.RequireNonEmpty("storage.host", c.Storage.Host).
			ValidatePort("storage.port", c.Storage.Port).
			RequireNonEmpty("storage.user", c.Storage.User).
			RequireNonEmpty("storage.dbname", c.Storage.DBName)
	}
	if c.Redis.Enabled {
		v.RequireNonEmpty("redis.addr", c.Redis.Addr).
			ValidateDBNumber("redis.db", c.Redis.DB).
			RequirePositiveDuration("redis.lock_ttl", c.Redis.LockTTL)
	}
	return v.Error()
}
