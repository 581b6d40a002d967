// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var runAtPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml on top,
// applies environment overrides and defaults, and validates the result.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // environment file is optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// loadEnvFile loads the first .env found walking up from the working directory.
func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env", "../../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnvVars replaces ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills secrets that are conventionally provided as plain env vars.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Database.Postgres.User == "" {
		cfg.Database.Postgres.User = os.Getenv("DB_USER")
	}
	if cfg.Database.Postgres.Password == "" {
		cfg.Database.Postgres.Password = os.Getenv("DB_PASSWORD")
	}
	if cfg.Database.Redis.Password == "" {
		cfg.Database.Redis.Password = os.Getenv("REDIS_PASSWORD")
	}
	if cfg.Registry.BaseURL == "" {
		cfg.Registry.BaseURL = os.Getenv("DECISION_REGISTRY_URL")
	}
	if cfg.Bus.SNS.TopicARN == "" {
		cfg.Bus.SNS.TopicARN = os.Getenv("SNS_TOPIC_ARN")
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "soknad-workers"
	}

	if cfg.Bus.InboundStream == "" {
		cfg.Bus.InboundStream = "hm-soknadsbehandling-v1"
	}
	if cfg.Bus.OutboundStream == "" {
		cfg.Bus.OutboundStream = cfg.Bus.InboundStream
	}
	if cfg.Bus.DeadLetterStream == "" {
		cfg.Bus.DeadLetterStream = cfg.Bus.InboundStream + "-dlq"
	}
	if cfg.Bus.Group == "" {
		cfg.Bus.Group = cfg.App.Name
	}
	if cfg.Bus.Consumer == "" {
		host, _ := os.Hostname()
		cfg.Bus.Consumer = host
	}
	if cfg.Bus.Workers == 0 {
		cfg.Bus.Workers = 1
	}
	if cfg.Bus.BlockMs == 0 {
		cfg.Bus.BlockMs = 5000
	}
	if cfg.Bus.ClaimMinIdleMs == 0 {
		cfg.Bus.ClaimMinIdleMs = 60000
	}
	if cfg.Bus.MaxDeliveries == 0 {
		cfg.Bus.MaxDeliveries = 10
	}
	if cfg.Bus.MaxLen == 0 {
		cfg.Bus.MaxLen = 100000
	}
	if cfg.Bus.Publisher == "" {
		cfg.Bus.Publisher = "redis"
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.InvestigationIndex == "" {
		cfg.Database.Elasticsearch.InvestigationIndex = "soknad-correlation-misses"
	}

	if cfg.Registry.Timeout == 0 {
		cfg.Registry.Timeout = 5000
	}
	if cfg.Registry.CacheTTLMs == 0 {
		cfg.Registry.CacheTTLMs = int((6 * time.Hour).Milliseconds())
	}
	if cfg.Registry.MaxRetries == 0 {
		cfg.Registry.MaxRetries = 2
	}

	if cfg.Correlation.DebounceHours == 0 {
		cfg.Correlation.DebounceHours = 24
	}
	if len(cfg.Correlation.SubcomponentCategories) == 0 {
		cfg.Correlation.SubcomponentCategories = []string{"Del"}
	}

	if cfg.Expiry.RunAt == "" {
		cfg.Expiry.RunAt = "02:00"
	}
	if cfg.Expiry.Timezone == "" {
		cfg.Expiry.Timezone = "Europe/Oslo"
	}
	if cfg.Expiry.ThresholdDays == 0 {
		cfg.Expiry.ThresholdDays = 28
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	for key, worker := range cfg.Workers {
		if worker.Timeout == 0 {
			worker.Timeout = 10000
		}
		cfg.Workers[key] = worker
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}
	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}
	if cfg.Registry.BaseURL == "" {
		return fmt.Errorf("registry.base_url is required")
	}

	switch cfg.Bus.Publisher {
	case "redis":
	case "sns":
		if cfg.Bus.SNS.TopicARN == "" {
			return fmt.Errorf("bus.sns.topic_arn is required when bus.publisher is sns")
		}
	default:
		return fmt.Errorf("bus.publisher must be redis or sns, got %q", cfg.Bus.Publisher)
	}

	if !runAtPattern.MatchString(cfg.Expiry.RunAt) {
		return fmt.Errorf("expiry.run_at must be HH:MM, got %q", cfg.Expiry.RunAt)
	}
	if _, err := time.LoadLocation(cfg.Expiry.Timezone); err != nil {
		return fmt.Errorf("expiry.timezone: %w", err)
	}
	if cfg.Expiry.ThresholdDays < 0 {
		return fmt.Errorf("expiry.threshold_days must not be negative")
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves handler configuration with fallback to defaults.
func GetWorkerConfig(cfg *Config, taskType string) WorkerConfig {
	if worker, exists := cfg.Workers[taskType]; exists {
		return worker
	}
	return WorkerConfig{Enabled: true, Timeout: 10000}
}

// IsWorkerEnabled reports whether a handler is enabled. Handlers absent from
// the workers map are enabled.
func IsWorkerEnabled(cfg *Config, taskType string) bool {
	if worker, exists := cfg.Workers[taskType]; exists {
		return worker.Enabled
	}
	return true
}
