package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// Server
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
	APIPrefix   string `mapstructure:"api_prefix"`
	LogLevel    string `mapstructure:"log_level"`

	// CORS
	CORSOrigins []string `mapstructure:"cors_origins"`

	// Auth
	APIKeyHeader string   `mapstructure:"api_key_header"`
	APIKeys      []string `mapstructure:"api_keys"`
	EnableAuth   bool     `mapstructure:"enable_auth"`

	// Rate Limiting
	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute"`

	// Relational store
	StoreDriver    string `mapstructure:"store_driver"` // "postgres" | "bigquery"
	DatabaseURL    string `mapstructure:"database_url"`
	DBMaxConns     int    `mapstructure:"db_max_conns"`
	DBMinConns     int    `mapstructure:"db_min_conns"`
	QueryTimeoutMs int    `mapstructure:"query_timeout_ms"`
	SlowQueryMs    int    `mapstructure:"slow_query_ms"`

	// BigQuery
	GCPProjectID                 string `mapstructure:"gcp_project_id"`
	GoogleApplicationCredentials string `mapstructure:"google_application_credentials"`
	BigQueryDataset              string `mapstructure:"bigquery_dataset"`
	BigQueryLocation             string `mapstructure:"bigquery_location"`

	// AI / LLM
	LLMProvider       string `mapstructure:"llm_provider"` // "anthropic" | "openai" | "ollama" | ""
	LLMModel          string `mapstructure:"llm_model"`
	LLMTimeoutSeconds int    `mapstructure:"llm_timeout_seconds"`
	AnthropicAPIKey   string `mapstructure:"anthropic_api_key"`
	AnthropicBaseURL  string `mapstructure:"anthropic_base_url"`
	OpenAIAPIKey      string `mapstructure:"openai_api_key"`
	OpenAIBaseURL     string `mapstructure:"openai_base_url"`
	OllamaURL         string `mapstructure:"ollama_url"`

	// Answer cache
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds"`
	CacheCapacity   int `mapstructure:"cache_capacity"`

	// Routing
	DefaultDataSource string `mapstructure:"default_data_source"`

	// Resilience
	BreakerMaxFailures     int `mapstructure:"breaker_max_failures"`
	BreakerCooldownSeconds int `mapstructure:"breaker_cooldown_seconds"`

	// Data providers
	LiveDataURL            string `mapstructure:"live_data_url"`
	LiveDataAPIKey         string `mapstructure:"live_data_api_key"`
	HistoricalDataURL      string `mapstructure:"historical_data_url"`
	ProviderTimeoutSeconds int    `mapstructure:"provider_timeout_seconds"`

	// Question history (Elasticsearch)
	ElasticsearchEnabled  bool   `mapstructure:"elasticsearch_enabled"`
	ElasticsearchURL      string `mapstructure:"elasticsearch_url"`
	ElasticsearchUser     string `mapstructure:"elasticsearch_user"`
	ElasticsearchPassword string `mapstructure:"elasticsearch_password"`
	ElasticsearchIndex    string `mapstructure:"elasticsearch_index"`

	// Security
	EnableAuditLogging bool `mapstructure:"enable_audit_logging"`
}

// Load reads defaults, then the optional file named by ASKTENNIS_CONFIG,
// then environment overrides.
func Load() (*Config, error) {
	v := newViper()

	if path := os.Getenv(ConfigEnvVar); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Vendor variables people already have exported.
	bind := func(key string, envs ...string) {
		_ = v.BindEnv(append([]string{key, EnvPrefix + "_" + strings.ToUpper(key)}, envs...)...)
	}
	bind("port", "PORT")
	bind("environment", "ASKTENNIS_ENV")
	bind("database_url", "DATABASE_URL")
	bind("gcp_project_id", "GCP_PROJECT_ID")
	bind("google_application_credentials", "GOOGLE_APPLICATION_CREDENTIALS")
	bind("anthropic_api_key", "ANTHROPIC_API_KEY")
	bind("anthropic_base_url", "ANTHROPIC_BASE_URL")
	bind("openai_api_key", "OPENAI_API_KEY")
	bind("openai_base_url", "OPENAI_BASE_URL")
	bind("ollama_url", "OLLAMA_HOST")
	bind("live_data_api_key", "SPORTRADAR_API_KEY")
	bind("elasticsearch_url", "ELASTICSEARCH_URL")
	bind("elasticsearch_user", "ELASTICSEARCH_USER")
	bind("elasticsearch_password", "ELASTICSEARCH_PASSWORD")
	bind("rate_limit_per_minute", "RATE_LIMIT_PER_MINUTE")

	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", DefaultHost)
	v.SetDefault("port", DefaultPort)
	v.SetDefault("environment", DefaultEnvironment)
	v.SetDefault("api_prefix", DefaultAPIPrefix)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("cors_origins", DefaultCORSOrigins)
	v.SetDefault("api_key_header", "X-API-Key")
	v.SetDefault("api_keys", []string{})
	v.SetDefault("enable_auth", true)
	v.SetDefault("rate_limit_per_minute", DefaultRateLimitPerMinute)

	v.SetDefault("store_driver", DefaultStoreDriver)
	v.SetDefault("database_url", "")
	v.SetDefault("db_max_conns", DefaultDBMaxConns)
	v.SetDefault("db_min_conns", DefaultDBMinConns)
	v.SetDefault("query_timeout_ms", DefaultQueryTimeoutMs)
	v.SetDefault("slow_query_ms", DefaultSlowQueryMs)

	v.SetDefault("gcp_project_id", "")
	v.SetDefault("google_application_credentials", "")
	v.SetDefault("bigquery_dataset", DefaultBigQueryDataset)
	v.SetDefault("bigquery_location", DefaultBigQueryLocation)

	v.SetDefault("llm_provider", "")
	v.SetDefault("llm_model", "")
	v.SetDefault("llm_timeout_seconds", DefaultLLMTimeoutSeconds)
	v.SetDefault("anthropic_api_key", "")
	v.SetDefault("anthropic_base_url", "")
	v.SetDefault("openai_api_key", "")
	v.SetDefault("openai_base_url", "")
	v.SetDefault("ollama_url", "")

	v.SetDefault("cache_ttl_seconds", DefaultCacheTTLSeconds)
	v.SetDefault("cache_capacity", DefaultCacheCapacity)

	v.SetDefault("default_data_source", DefaultDataSource)

	v.SetDefault("breaker_max_failures", DefaultBreakerMaxFailures)
	v.SetDefault("breaker_cooldown_seconds", DefaultBreakerCooldownSeconds)

	v.SetDefault("live_data_url", DefaultLiveDataURL)
	v.SetDefault("live_data_api_key", "")
	v.SetDefault("historical_data_url", DefaultHistoricalDataURL)
	v.SetDefault("provider_timeout_seconds", DefaultProviderTimeoutSeconds)

	v.SetDefault("elasticsearch_enabled", false)
	v.SetDefault("elasticsearch_url", DefaultElasticsearchURL)
	v.SetDefault("elasticsearch_user", "")
	v.SetDefault("elasticsearch_password", "")
	v.SetDefault("elasticsearch_index", DefaultElasticsearchIndex)

	v.SetDefault("enable_audit_logging", true)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	c.LLMProvider = strings.ToLower(strings.TrimSpace(c.LLMProvider))
	c.DefaultDataSource = strings.ToLower(strings.TrimSpace(c.DefaultDataSource))
	c.APIKeys = compact(c.APIKeys)
	c.CORSOrigins = compact(c.CORSOrigins)

	// Infer the provider from whichever key is present.
	if c.LLMProvider == "" {
		switch {
		case c.AnthropicAPIKey != "":
			c.LLMProvider = "anthropic"
		case c.OpenAIAPIKey != "":
			c.LLMProvider = "openai"
		}
	}
}

// Validate rejects values the server cannot start with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "postgres", "bigquery":
	default:
		return fmt.Errorf("invalid store_driver %q (want postgres or bigquery)", c.StoreDriver)
	}
	switch c.DefaultDataSource {
	case "live", "historical":
	default:
		return fmt.Errorf("invalid default_data_source %q (want live or historical)", c.DefaultDataSource)
	}
	switch c.LLMProvider {
	case "", "anthropic", "openai", "ollama":
	default:
		return fmt.Errorf("invalid llm_provider %q", c.LLMProvider)
	}
	if c.CacheCapacity < 1 {
		return fmt.Errorf("cache_capacity must be positive, got %d", c.CacheCapacity)
	}
	if c.CacheTTLSeconds < 1 {
		return fmt.Errorf("cache_ttl_seconds must be positive, got %d", c.CacheTTLSeconds)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutMs) * time.Millisecond
}

func (c *Config) SlowQueryThreshold() time.Duration {
	return time.Duration(c.SlowQueryMs) * time.Millisecond
}

func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSeconds) * time.Second
}

func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutSeconds) * time.Second
}

func (c *Config) BreakerCooldown() time.Duration {
	return time.Duration(c.BreakerCooldownSeconds) * time.Second
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
