package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the advisory service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address        string        `mapstructure:"address"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	StreamEnabled  bool          `mapstructure:"stream_enabled"`
}

// LLMConfig contains LLM provider configuration
type LLMConfig struct {
	Provider string              `mapstructure:"provider"` // openai only for now
	APIKey   string              `mapstructure:"api_key"`
	BaseURL  string              `mapstructure:"base_url"`
	Timeout  time.Duration       `mapstructure:"timeout"`
	Models   map[string]LLMModel `mapstructure:"models"`
	Routing  LLMRoutingConfig    `mapstructure:"routing"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name            string  `mapstructure:"name"`
	APIName         string  `mapstructure:"api_name"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	CostPer1KInput  float64 `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64 `mapstructure:"cost_per_1k_output"`
}

// LLMRoutingConfig defines which model to use for each workflow role
type LLMRoutingConfig struct {
	Routing   string `mapstructure:"routing"`   // supervisor decisions
	Workers   string `mapstructure:"workers"`   // specialist agents
	Synthesis string `mapstructure:"synthesis"` // final answer
	Fallback  string `mapstructure:"fallback"`
}

// WorkflowConfig bounds a single advisory run
type WorkflowConfig struct {
	MaxAgentCalls int           `mapstructure:"max_agent_calls"`
	HistoryLimit  int           `mapstructure:"history_limit"`
	WorkerTimeout time.Duration `mapstructure:"worker_timeout"`
}

// ToolsConfig contains the external tool backend settings
type ToolsConfig struct {
	MarketData MarketDataConfig `mapstructure:"market_data"`
	Sentiment  SentimentConfig  `mapstructure:"sentiment"`
	Search     SearchConfig     `mapstructure:"search"`
	Retry      RetryConfig      `mapstructure:"retry"`
	QuoteTTL   time.Duration    `mapstructure:"quote_ttl"`
	ListingTTL time.Duration    `mapstructure:"listing_ttl"`
}

// MarketDataConfig points at the quote/indicator provider
type MarketDataConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// SentimentConfig points at the sentiment/news provider
type SentimentConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// SearchConfig contains web search provider keys
type SearchConfig struct {
	BraveAPIKey  string `mapstructure:"brave_api_key"`
	SerperAPIKey string `mapstructure:"serper_api_key"`
	MaxResults   int    `mapstructure:"max_results"`
}

// RetryConfig is the single retry policy shared by every tool call
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
}

// CacheConfig selects and configures the tool result cache
type CacheConfig struct {
	Backend string      `mapstructure:"backend"` // memory or redis
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig contains redis connection settings
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StorageConfig contains run history persistence settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig contains postgres connection settings
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// TelemetryConfig contains monitoring settings
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DSN builds a postgres connection string from the configured parts.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	if p.Host == "" || p.DBName == "" {
		return ""
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// Validate ensures the loaded configuration is usable.
func (c *Config) Validate() error {
	if c.Workflow.MaxAgentCalls <= 0 {
		return fmt.Errorf("workflow.max_agent_calls must be > 0")
	}
	if c.Workflow.HistoryLimit <= 0 {
		return fmt.Errorf("workflow.history_limit must be > 0")
	}
	if c.Tools.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("tools.retry.max_attempts must be > 0")
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache.backend must be memory or redis, got %q", c.Cache.Backend)
	}
	if c.LLM.Routing.Fallback == "" {
		return fmt.Errorf("llm.routing.fallback must name a configured model")
	}
	if _, ok := c.LLM.Models[c.LLM.Routing.Fallback]; !ok {
		return fmt.Errorf("llm.routing.fallback %q not present in llm.models", c.LLM.Routing.Fallback)
	}
	return nil
}

// ModelFor resolves a routing slot to a configured model key, falling back
// to the configured fallback model when the slot is empty.
func (c *Config) ModelFor(slot string) string {
	r := c.LLM.Routing
	var m string
	switch slot {
	case "routing":
		m = r.Routing
	case "workers":
		m = r.Workers
	case "synthesis":
		m = r.Synthesis
	}
	if m == "" {
		m = r.Fallback
	}
	return m
}

// LoadConfig reads configuration from an optional file plus STOCKPILOT_*
// environment overrides, applying defaults for anything unset.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("STOCKPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
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
	v.SetDefault("general.debug", false)
	v.SetDefault("general.log_level", "info")

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.request_timeout", time.Minute)
	v.SetDefault("server.stream_enabled", true)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.timeout", 45*time.Second)
	v.SetDefault("llm.models", map[string]interface{}{
		"gpt-4o-mini": map[string]interface{}{
			"name":               "gpt-4o-mini",
			"api_name":           "gpt-4o-mini",
			"max_tokens":         2048,
			"temperature":        0.2,
			"cost_per_1k_input":  0.00015,
			"cost_per_1k_output": 0.0006,
		},
	})
	v.SetDefault("llm.routing.fallback", "gpt-4o-mini")

	v.SetDefault("workflow.max_agent_calls", 3)
	v.SetDefault("workflow.history_limit", 6)
	v.SetDefault("workflow.worker_timeout", 30*time.Second)

	v.SetDefault("tools.retry.max_attempts", 3)
	v.SetDefault("tools.retry.backoff", 2*time.Second)
	v.SetDefault("tools.quote_ttl", 5*time.Minute)
	v.SetDefault("tools.listing_ttl", 24*time.Hour)
	v.SetDefault("tools.search.max_results", 10)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis.host", "")
	v.SetDefault("cache.redis.port", "6379")
	v.SetDefault("cache.redis.db", 0)

	v.SetDefault("telemetry.enabled", true)
}
