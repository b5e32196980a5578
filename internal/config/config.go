package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Remote    RemoteConfig    `mapstructure:"remote"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type RemoteConfig struct {
	BaseURL           string `mapstructure:"base_url"`
	Timeout           string `mapstructure:"timeout"`
	CorrelationHeader string `mapstructure:"correlation_header"`
}

func (r RemoteConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(r.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

type SyncConfig struct {
	BatchSize               int     `mapstructure:"batch_size"`
	MaxConcurrentOperations int     `mapstructure:"max_concurrent_operations"`
	MaxRetries              int     `mapstructure:"max_retries"`
	RetryBaseDelay          string  `mapstructure:"retry_base_delay"`
	RetryMaxDelay           string  `mapstructure:"retry_max_delay"`
	RetryMultiplier         float64 `mapstructure:"retry_multiplier"`
	ConflictStrategy        string  `mapstructure:"conflict_strategy"`
}

func (s SyncConfig) GetRetryBaseDelay() time.Duration {
	d, err := time.ParseDuration(s.RetryBaseDelay)
	if err != nil {
		return time.Second
	}
	return d
}

func (s SyncConfig) GetRetryMaxDelay() time.Duration {
	d, err := time.ParseDuration(s.RetryMaxDelay)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

type CacheConfig struct {
	Path          string `mapstructure:"path"`
	KeyPath       string `mapstructure:"key_path"`
	KeyPassphrase string `mapstructure:"key_passphrase"`
}

type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Interval string `mapstructure:"interval"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("remote.timeout", "30s")
	v.SetDefault("remote.correlation_header", "X-Sync-Operation-ID")
	v.SetDefault("sync.batch_size", 10)
	v.SetDefault("sync.max_concurrent_operations", 3)
	v.SetDefault("sync.max_retries", 3)
	v.SetDefault("sync.retry_base_delay", "1s")
	v.SetDefault("sync.retry_max_delay", "5m")
	v.SetDefault("sync.retry_multiplier", 2.0)
	v.SetDefault("sync.conflict_strategy", "auto")
	v.SetDefault("cache.path", "practice-sync.db")
	v.SetDefault("cache.key_path", "practice-sync.key")
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.interval", "@every 5m")
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8090)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
