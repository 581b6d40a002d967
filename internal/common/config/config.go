// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App         AppConfig               `mapstructure:"app"`
	Bus         BusConfig               `mapstructure:"bus"`
	Database    DatabaseConfig          `mapstructure:"database"`
	Workers     map[string]WorkerConfig `mapstructure:"workers"`
	Registry    RegistryConfig          `mapstructure:"registry"`
	Correlation CorrelationConfig       `mapstructure:"correlation"`
	Expiry      ExpiryConfig            `mapstructure:"expiry"`
	Server      ServerConfig            `mapstructure:"server"`
	Logging     LoggingConfig           `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// BusConfig configures the Redis Streams transport and the outbound publisher.
type BusConfig struct {
	InboundStream    string `mapstructure:"inbound_stream"`
	OutboundStream   string `mapstructure:"outbound_stream"`
	DeadLetterStream string `mapstructure:"dead_letter_stream"`
	Group            string `mapstructure:"group"`
	Consumer         string `mapstructure:"consumer"`
	Workers          int    `mapstructure:"workers"`
	BlockMs          int    `mapstructure:"block_ms"`
	ClaimMinIdleMs   int    `mapstructure:"claim_min_idle_ms"`
	MaxDeliveries    int64  `mapstructure:"max_deliveries"`
	MaxLen           int64  `mapstructure:"max_len"`

	// Publisher selects the outbound transport: "redis" or "sns".
	Publisher string `mapstructure:"publisher"`
	SNS       struct {
		Region   string `mapstructure:"region"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// ElasticsearchConfig is optional; an empty address list disables the
// correlation investigation index.
type ElasticsearchConfig struct {
	Addresses          []string `mapstructure:"addresses"`
	Username           string   `mapstructure:"username"`
	Password           string   `mapstructure:"password"`
	InvestigationIndex string   `mapstructure:"investigation_index"`
}

func (e ElasticsearchConfig) Enabled() bool {
	return len(e.Addresses) > 0
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the settings applicable to every handler.
type WorkerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Timeout int  `mapstructure:"timeout"` // milliseconds
}

// RegistryConfig points at the external decision registry.
type RegistryConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	Timeout    int    `mapstructure:"timeout"`      // milliseconds
	CacheTTLMs int    `mapstructure:"cache_ttl_ms"` // positive verifications only
	MaxRetries int    `mapstructure:"max_retries"`
}

type CorrelationConfig struct {
	DenyList               []string `mapstructure:"deny_list"`
	DebounceHours          int      `mapstructure:"debounce_hours"`
	SubcomponentCategories []string `mapstructure:"subcomponent_categories"`
}

type ExpiryConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	RunAt         string `mapstructure:"run_at"` // HH:MM
	Timezone      string `mapstructure:"timezone"`
	ThresholdDays int    `mapstructure:"threshold_days"`
}

// Threshold returns the configured age after which pending applications expire.
func (e ExpiryConfig) Threshold() time.Duration {
	return time.Duration(e.ThresholdDays) * 24 * time.Hour
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
