package config

import "time"

const (
	ConfigEnvVar = "ASKTENNIS_CONFIG"
	EnvPrefix    = "ASKTENNIS"

	DefaultHost        = "0.0.0.0"
	DefaultPort        = 8000
	DefaultEnvironment = "development"
	DefaultAPIPrefix   = "/api"
	DefaultLogLevel    = "info"

	DefaultRateLimitPerMinute = 60

	DefaultStoreDriver      = "postgres"
	DefaultDBMaxConns       = 10
	DefaultDBMinConns       = 1
	DefaultQueryTimeoutMs   = 15000
	DefaultSlowQueryMs      = 1000
	DefaultBigQueryLocation = "US"
	DefaultBigQueryDataset  = "tennis"

	DefaultLLMTimeoutSeconds = 10

	DefaultCacheTTLSeconds = 300
	DefaultCacheCapacity   = 100

	// Unmatched questions go to the historical corpus. Product has not
	// confirmed this, so it stays configurable.
	DefaultDataSource = "historical"

	DefaultBreakerMaxFailures     = 5
	DefaultBreakerCooldownSeconds = 30

	DefaultLiveDataURL            = "https://api.sportradar.com/tennis/trial/v3/en"
	DefaultHistoricalDataURL      = "https://raw.githubusercontent.com/JeffSackmann/tennis_atp/master"
	DefaultProviderTimeoutSeconds = 10

	DefaultElasticsearchURL   = "http://localhost:9200"
	DefaultElasticsearchIndex = "asktennis-questions"

	DefaultShutdownTimeout = 10 * time.Second
)

var DefaultCORSOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
}
