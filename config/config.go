package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"github.com/contentplane/index-reconciler/domain/entity"
)

// Config holds all configuration for the index reconciler service
type Config struct {
	Service       ServiceConfig       `mapstructure:"service"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline"`
	Audit         AuditConfig         `mapstructure:"audit"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
}

// ServiceConfig contains general service configuration
type ServiceConfig struct {
	Name            string        `mapstructure:"name"`
	Version         string        `mapstructure:"version"`
	Environment     string        `mapstructure:"environment"`
	Debug           bool          `mapstructure:"debug"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// DefaultTenant is the tenant the service starts scoped to.
	DefaultTenant string `mapstructure:"default_tenant"`
}

// HTTPConfig contains HTTP server configuration
type HTTPConfig struct {
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig contains PostgreSQL configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ElasticsearchConfig contains search index configuration
type ElasticsearchConfig struct {
	Addresses   []string      `mapstructure:"addresses"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	IndexPrefix string        `mapstructure:"index_prefix"`
	MaxRetries  int           `mapstructure:"max_retries"`
	Timeout     time.Duration `mapstructure:"timeout"`

	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// CircuitBreakerConfig contains circuit breaker configuration
type CircuitBreakerConfig struct {
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
}

// CacheConfig contains Redis configuration
type CacheConfig struct {
	Host       string        `mapstructure:"host"`
	Port       string        `mapstructure:"port"`
	Password   string        `mapstructure:"password"`
	Database   int           `mapstructure:"database"`
	PoolSize   int           `mapstructure:"pool_size"`
	SummaryTTL time.Duration `mapstructure:"summary_ttl"`
}

// PipelineConfig contains the outbound reindex queue configuration
type PipelineConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`

	// Ambient replication pacing
	BatchWait     time.Duration `mapstructure:"batch_wait"`
	QueueCap      int           `mapstructure:"queue_cap"`
	BatchSize     int           `mapstructure:"batch_size"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
}

// AuditConfig contains audit-specific configuration
type AuditConfig struct {
	BatchSize       int      `mapstructure:"batch_size"`
	PublicPostTypes []string `mapstructure:"public_post_types"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig contains metrics configuration
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// LoadConfig loads configuration from file and environment
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/index-reconciler")

	viper.SetEnvPrefix("INDEX_RECONCILER")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; defaults and environment apply.
	}

	overrideWithEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("service.name", "index-reconciler")
	viper.SetDefault("service.version", "1.0.0")
	viper.SetDefault("service.environment", "development")
	viper.SetDefault("service.debug", false)
	viper.SetDefault("service.shutdown_timeout", "30s")
	viper.SetDefault("service.default_tenant", "default")

	viper.SetDefault("http.host", "0.0.0.0")
	viper.SetDefault("http.port", "8080")
	viper.SetDefault("http.read_timeout", "30s")
	viper.SetDefault("http.write_timeout", "30s")
	viper.SetDefault("http.idle_timeout", "120s")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "content")
	viper.SetDefault("database.username", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("database.conn_max_lifetime", "1h")

	viper.SetDefault("elasticsearch.addresses", []string{"http://localhost:9200"})
	viper.SetDefault("elasticsearch.index_prefix", "content")
	viper.SetDefault("elasticsearch.max_retries", 3)
	viper.SetDefault("elasticsearch.timeout", "30s")
	viper.SetDefault("elasticsearch.circuit_breaker.max_requests", 3)
	viper.SetDefault("elasticsearch.circuit_breaker.interval", "60s")
	viper.SetDefault("elasticsearch.circuit_breaker.timeout", "30s")
	viper.SetDefault("elasticsearch.circuit_breaker.failure_threshold", 5)

	viper.SetDefault("cache.host", "localhost")
	viper.SetDefault("cache.port", "6379")
	viper.SetDefault("cache.database", 0)
	viper.SetDefault("cache.pool_size", 10)
	viper.SetDefault("cache.summary_ttl", "5m")

	viper.SetDefault("pipeline.brokers", []string{"localhost:9092"})
	viper.SetDefault("pipeline.topic", "content.reindex")
	viper.SetDefault("pipeline.batch_wait", "2s")
	viper.SetDefault("pipeline.queue_cap", 5000)
	viper.SetDefault("pipeline.batch_size", 250)
	viper.SetDefault("pipeline.rate_per_second", 500)

	viper.SetDefault("audit.batch_size", 100)
	viper.SetDefault("audit.public_post_types", []string{"post", "page"})

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.namespace", "index_reconciler")
}

// overrideWithEnv overrides sensitive values with environment variables
func overrideWithEnv() {
	if val := os.Getenv("POSTGRES_PASSWORD"); val != "" {
		viper.Set("database.password", val)
	}
	if val := os.Getenv("ELASTICSEARCH_PASSWORD"); val != "" {
		viper.Set("elasticsearch.password", val)
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		viper.Set("cache.password", val)
	}
	if val := os.Getenv("SERVICE_PORT"); val != "" {
		viper.Set("http.port", val)
	}
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if config.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if _, err := strconv.Atoi(config.HTTP.Port); err != nil {
		return fmt.Errorf("invalid HTTP port: %s", config.HTTP.Port)
	}
	if config.Database.Host == "" {
		return fmt.Errorf("PostgreSQL host is required")
	}
	if len(config.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("at least one Elasticsearch address is required")
	}
	if config.Audit.BatchSize <= 0 {
		return fmt.Errorf("audit batch_size must be greater than 0")
	}
	return nil
}

// GetDSN returns the PostgreSQL DSN string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.Database, c.SSLMode)
}

// GetRedisAddr returns the Redis address string
func (c *CacheConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// PostTypes converts the configured public post types to entity values
func (c *AuditConfig) PostTypes() []entity.PostType {
	types := make([]entity.PostType, 0, len(c.PublicPostTypes))
	for _, t := range c.PublicPostTypes {
		types = append(types, entity.PostType(t))
	}
	return types
}
