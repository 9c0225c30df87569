package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/carmandale/AIMS-sub000/internal/models"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database" validate:"required"`
	Cache     CacheConfig     `json:"cache"`
	RabbitMQ  RabbitMQConfig  `json:"rabbitmq"`
	Benchmark BenchmarkConfig `json:"benchmark" validate:"required"`
	Scheduler SchedulerConfig `json:"scheduler"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Logger    LoggerConfig    `json:"logger"`
	Analytics AnalyticsConfig `json:"analytics"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Port           int    `json:"port" validate:"min=1,max=65535"`
	Host           string `json:"host"`
	Environment    string `json:"environment"`
	ReadTimeout    int    `json:"read_timeout"`
	WriteTimeout   int    `json:"write_timeout"`
	MaxHeaderBytes int    `json:"max_header_bytes"`
}

// DatabaseConfig represents MongoDB configuration
type DatabaseConfig struct {
	URI            string `json:"uri" validate:"required"`
	Database       string `json:"database" validate:"required"`
	MaxPoolSize    int    `json:"max_pool_size"`
	MinPoolSize    int    `json:"min_pool_size"`
	ConnectTimeout int    `json:"connect_timeout"`
	SocketTimeout  int    `json:"socket_timeout"`
}

// CacheConfig represents Redis cache configuration
type CacheConfig struct {
	Host               string        `json:"host"`
	Port               int           `json:"port"`
	Password           string        `json:"password"`
	DB                 int           `json:"db"`
	MaxRetries         int           `json:"max_retries"`
	PoolSize           int           `json:"pool_size"`
	MinIdleConnections int           `json:"min_idle_connections"`
	DialTimeout        time.Duration `json:"dial_timeout"`
	ReadTimeout        time.Duration `json:"read_timeout"`
	WriteTimeout       time.Duration `json:"write_timeout"`

	// ResultTTL bounds how long computed analytics stay valid.
	ResultTTL time.Duration `json:"result_ttl"`
}

// RabbitMQConfig represents RabbitMQ configuration
type RabbitMQConfig struct {
	Enabled  bool   `json:"enabled"`
	URL      string `json:"url"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	VHost    string `json:"vhost"`

	// Snapshot ingestion events invalidate cached analytics.
	SnapshotExchange   string `json:"snapshot_exchange"`
	SnapshotQueue      string `json:"snapshot_queue"`
	SnapshotRoutingKey string `json:"snapshot_routing_key"`

	// Triggered emergency alerts are published here.
	AlertExchange   string `json:"alert_exchange"`
	AlertRoutingKey string `json:"alert_routing_key"`
}

// AMQPURL assembles the connection URL when one is not given explicitly.
func (c RabbitMQConfig) AMQPURL() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%d%s", c.Username, c.Password, c.Host, c.Port, c.VHost)
}

// BenchmarkConfig represents the market data API used as the benchmark source
type BenchmarkConfig struct {
	BaseURL string        `json:"base_url" validate:"required"`
	APIKey  string        `json:"api_key"`
	Timeout time.Duration `json:"timeout"`
}

// SchedulerConfig represents the alert sweep scheduling configuration
type SchedulerConfig struct {
	Enabled           bool   `json:"enabled"`
	SweepInterval     string `json:"sweep_interval"` // Cron expression
	SweepLookbackDays int    `json:"sweep_lookback_days"`
	TimeZone          string `json:"timezone"`
}

// RateLimitConfig represents rate limiting configuration
type RateLimitConfig struct {
	Enabled        bool          `json:"enabled"`
	RequestsPerMin int           `json:"requests_per_minute"`
	BurstSize      int           `json:"burst_size"`
	ClientTTL      time.Duration `json:"client_ttl"`
}

// LoggerConfig represents logging configuration
type LoggerConfig struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	Output     string `json:"output"`
	Filename   string `json:"filename"`
	MaxSize    int    `json:"max_size"`
	MaxAge     int    `json:"max_age"`
	MaxBackups int    `json:"max_backups"`
	Compress   bool   `json:"compress"`
}

// AnalyticsConfig represents computation defaults
type AnalyticsConfig struct {
	DefaultPeriod        string  `json:"default_period" validate:"required"`
	DefaultFrequency     string  `json:"default_frequency" validate:"required"`
	RiskFreeRate         float64 `json:"risk_free_rate"`
	MaterialityThreshold float64 `json:"materiality_threshold_percent" validate:"min=0"`
	AlertThresholds      string  `json:"alert_thresholds" validate:"required"`
}

// Load loads configuration from environment variables
func Load() *Config {
	// Load .env file if exists
	godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:           getEnvInt("SERVER_PORT", 8084),
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Environment:    getEnv("ENVIRONMENT", "development"),
			ReadTimeout:    getEnvInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout:   getEnvInt("SERVER_WRITE_TIMEOUT", 30),
			MaxHeaderBytes: getEnvInt("SERVER_MAX_HEADER_BYTES", 1048576),
		},

		Database: DatabaseConfig{
			URI:            getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:       getEnv("MONGODB_DATABASE", "aims_analytics"),
			MaxPoolSize:    getEnvInt("MONGODB_MAX_POOL_SIZE", 100),
			MinPoolSize:    getEnvInt("MONGODB_MIN_POOL_SIZE", 5),
			ConnectTimeout: getEnvInt("MONGODB_CONNECT_TIMEOUT", 10),
			SocketTimeout:  getEnvInt("MONGODB_SOCKET_TIMEOUT", 30),
		},

		Cache: CacheConfig{
			Host:               getEnv("REDIS_HOST", "localhost"),
			Port:               getEnvInt("REDIS_PORT", 6379),
			Password:           getEnv("REDIS_PASSWORD", ""),
			DB:                 getEnvInt("REDIS_DB", 0),
			MaxRetries:         getEnvInt("REDIS_MAX_RETRIES", 3),
			PoolSize:           getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConnections: getEnvInt("REDIS_MIN_IDLE_CONNECTIONS", 5),
			DialTimeout:        getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:        getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:       getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			ResultTTL:          getEnvDuration("CACHE_RESULT_TTL", 5*time.Minute),
		},

		RabbitMQ: RabbitMQConfig{
			Enabled:            getEnvBool("RABBITMQ_ENABLED", true),
			URL:                getEnv("RABBITMQ_URL", ""),
			Host:               getEnv("RABBITMQ_HOST", "localhost"),
			Port:               getEnvInt("RABBITMQ_PORT", 5672),
			Username:           getEnv("RABBITMQ_USERNAME", "guest"),
			Password:           getEnv("RABBITMQ_PASSWORD", "guest"),
			VHost:              getEnv("RABBITMQ_VHOST", "/"),
			SnapshotExchange:   getEnv("RABBITMQ_SNAPSHOT_EXCHANGE", "snapshots"),
			SnapshotQueue:      getEnv("RABBITMQ_SNAPSHOT_QUEUE", "analytics.snapshots"),
			SnapshotRoutingKey: getEnv("RABBITMQ_SNAPSHOT_ROUTING_KEY", "snapshot.ingested"),
			AlertExchange:      getEnv("RABBITMQ_ALERT_EXCHANGE", "alerts"),
			AlertRoutingKey:    getEnv("RABBITMQ_ALERT_ROUTING_KEY", "drawdown.alert"),
		},

		Benchmark: BenchmarkConfig{
			BaseURL: getEnv("MARKET_DATA_API_URL", "http://localhost:8082"),
			APIKey:  getEnv("MARKET_DATA_API_KEY", ""),
			Timeout: getEnvDuration("MARKET_DATA_API_TIMEOUT", 30*time.Second),
		},

		Scheduler: SchedulerConfig{
			Enabled:           getEnvBool("SCHEDULER_ENABLED", true),
			SweepInterval:     getEnv("SCHEDULER_SWEEP_INTERVAL", "*/15 * * * *"), // Every 15 minutes
			SweepLookbackDays: getEnvInt("SCHEDULER_SWEEP_LOOKBACK_DAYS", 7),
			TimeZone:          getEnv("SCHEDULER_TIMEZONE", "UTC"),
		},

		RateLimit: RateLimitConfig{
			Enabled:        getEnvBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMin: getEnvInt("RATE_LIMIT_REQUESTS_PER_MINUTE", 100),
			BurstSize:      getEnvInt("RATE_LIMIT_BURST_SIZE", 10),
			ClientTTL:      getEnvDuration("RATE_LIMIT_CLIENT_TTL", 10*time.Minute),
		},

		Logger: LoggerConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			Output:     getEnv("LOG_OUTPUT", "stdout"),
			Filename:   getEnv("LOG_FILENAME", ""),
			MaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
			MaxAge:     getEnvInt("LOG_MAX_AGE", 28),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
			Compress:   getEnvBool("LOG_COMPRESS", true),
		},

		Analytics: AnalyticsConfig{
			DefaultPeriod:        getEnv("ANALYTICS_DEFAULT_PERIOD", "30d"),
			DefaultFrequency:     getEnv("ANALYTICS_DEFAULT_FREQUENCY", "daily"),
			RiskFreeRate:         getEnvFloat("ANALYTICS_RISK_FREE_RATE", 0.02),
			MaterialityThreshold: getEnvFloat("ANALYTICS_MATERIALITY_THRESHOLD", 5.0),
			AlertThresholds:      getEnv("ANALYTICS_ALERT_THRESHOLDS", "warning:15,critical:20,emergency:25"),
		},
	}
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the configuration. Malformed alert thresholds are a
// startup failure, not something discovered on the first request.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", models.ErrConfiguration, err)
	}

	if _, err := models.ParseFrequency(c.Analytics.DefaultFrequency); err != nil {
		return fmt.Errorf("%w: default frequency: %v", models.ErrConfiguration, err)
	}

	if _, err := models.ParsePeriod(c.Analytics.DefaultPeriod, time.Now()); err != nil {
		return fmt.Errorf("%w: default period: %v", models.ErrConfiguration, err)
	}

	if _, err := models.ParseAlertThresholds(c.Analytics.AlertThresholds); err != nil {
		return err
	}

	return nil
}

// AlertThresholdConfig parses the configured threshold ladder. Call Validate
// first; this panics on malformed configuration.
func (c *Config) AlertThresholdConfig() models.AlertThresholdConfig {
	thresholds, err := models.ParseAlertThresholds(c.Analytics.AlertThresholds)
	if err != nil {
		panic(err)
	}
	return thresholds
}
