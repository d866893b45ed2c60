package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	DatabaseURL   string
	Port          string
	IsProduction  bool
	EnableDBCheck bool

	// Redis cache for the rates adapter. Empty address disables caching.
	RedisAddr     string
	RedisPassword string

	// External services.
	PriceOracleURL string
	ConnectorURL   string
	ExecutorURL    string
	RatesCacheTTL  time.Duration

	// Lifecycle worker tuning.
	WorkerCount        int
	WorkerPollInterval time.Duration
	QuoteLifespan      time.Duration
	SlippageBPS        int

	// Expired withdrawal reaper.
	ReapInterval  time.Duration
	ReapBatchSize int

	// Rate limiter period, in ulule/limiter notation (e.g. "100-M").
	RateLimit string
}

// LoadConfig loads configuration from environment variables and .env file if present.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file, ignore error if it doesn't exist
	_ = godotenv.Load()

	viper.SetDefault("PGSQL_URL", "")
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("IS_PRODUCTION", false)
	viper.SetDefault("ENABLE_DB_CHECK", false)
	viper.SetDefault("REDIS_ADDR", "")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("PRICE_ORACLE_URL", "http://localhost:3100/prices")
	viper.SetDefault("CONNECTOR_URL", "http://localhost:3200/ilp")
	viper.SetDefault("EXECUTOR_URL", "http://localhost:3300")
	viper.SetDefault("RATES_CACHE_TTL", "15s")
	viper.SetDefault("WORKER_COUNT", 4)
	viper.SetDefault("WORKER_POLL_INTERVAL", "1s")
	viper.SetDefault("QUOTE_LIFESPAN", "5m")
	viper.SetDefault("SLIPPAGE_BPS", 100)
	viper.SetDefault("REAP_INTERVAL", "1m")
	viper.SetDefault("REAP_BATCH_SIZE", 100)
	viper.SetDefault("RATE_LIMIT", "100-M")

	viper.AutomaticEnv()

	cfg := &Config{}

	cfg.DatabaseURL = viper.GetString("PGSQL_URL")
	if cfg.DatabaseURL == "" {
		log.Println("Warning: PGSQL_URL environment variable not set.")
		// Consider returning an error depending on requirements
	}

	cfg.Port = viper.GetString("PORT")
	cfg.IsProduction = viper.GetBool("IS_PRODUCTION")
	cfg.EnableDBCheck = viper.GetBool("ENABLE_DB_CHECK")

	cfg.RedisAddr = viper.GetString("REDIS_ADDR")
	cfg.RedisPassword = viper.GetString("REDIS_PASSWORD")
	if cfg.RedisAddr == "" {
		log.Println("Warning: REDIS_ADDR not set. Price caching is disabled.")
	}

	cfg.PriceOracleURL = viper.GetString("PRICE_ORACLE_URL")
	cfg.ConnectorURL = viper.GetString("CONNECTOR_URL")
	cfg.ExecutorURL = viper.GetString("EXECUTOR_URL")
	cfg.RatesCacheTTL = durationOrDefault("RATES_CACHE_TTL", 15*time.Second)

	cfg.WorkerCount = viper.GetInt("WORKER_COUNT")
	if cfg.WorkerCount < 1 {
		log.Printf("Warning: Invalid WORKER_COUNT (%d). Defaulting to 4.\n", cfg.WorkerCount)
		cfg.WorkerCount = 4
	}
	cfg.WorkerPollInterval = durationOrDefault("WORKER_POLL_INTERVAL", time.Second)
	cfg.QuoteLifespan = durationOrDefault("QUOTE_LIFESPAN", 5*time.Minute)

	cfg.SlippageBPS = viper.GetInt("SLIPPAGE_BPS")
	if cfg.SlippageBPS < 0 || cfg.SlippageBPS > 10000 {
		log.Printf("Warning: Invalid SLIPPAGE_BPS (%d). Defaulting to 100.\n", cfg.SlippageBPS)
		cfg.SlippageBPS = 100
	}

	cfg.ReapInterval = durationOrDefault("REAP_INTERVAL", time.Minute)
	cfg.ReapBatchSize = viper.GetInt("REAP_BATCH_SIZE")
	if cfg.ReapBatchSize < 1 {
		cfg.ReapBatchSize = 100
	}

	cfg.RateLimit = viper.GetString("RATE_LIMIT")

	return cfg, nil
}

func durationOrDefault(key string, fallback time.Duration) time.Duration {
	raw := viper.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		if raw != "" {
			log.Printf("Warning: Invalid value for %s ('%s'). Defaulting to %s.\n", key, raw, fallback.String())
		}
		return fallback
	}
	return d
}
