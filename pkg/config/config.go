// Package config loads the YAML-based configuration for the fabric
// gateway. The indexer is configured separately, straight from the
// environment (cmd/indexer/main.go).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config represents the fabric-gateway configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	LB         LBConfig         `yaml:"lb"`
	Cache      CacheConfig      `yaml:"cache"`
	Logging    LoggingConfig    `yaml:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// ServerConfig represents the HTTP server configuration.
type ServerConfig struct {
	Port           int           `yaml:"port"`
	Host           string        `yaml:"host"`
	Environment    string        `yaml:"environment"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
}

// DatabaseConfig represents the Postgres connection configuration. No
// entrypoint reads it: cmd/migrate and cmd/indexer take their DSN from the
// environment, and the gateway itself holds no SQL state.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig represents the Redis configuration backing the optional
// distributed session store (LBConfig.SessionBackend: "redis").
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// RateLimitConfig represents the gateway's inbound rate limiting.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// LBConfig represents the load balancer's recognized options.
type LBConfig struct {
	Algorithm               string          `yaml:"algorithm"`
	SessionTTLSecs          int             `yaml:"session_ttl_secs"`
	HealthCheckIntervalSecs int             `yaml:"health_check_interval_secs"`
	UnhealthyThreshold      int             `yaml:"unhealthy_threshold"`
	SessionBackend          string          `yaml:"session_backend"` // "memory" | "redis"
	RateLimit               RateLimitConfig `yaml:"rate_limit"`
}

// CacheConfig represents the cache's recognized options.
type CacheConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Policy      string        `yaml:"policy"` // "lru" | "lfu"
	GlobalTTL   time.Duration `yaml:"global_ttl"`
	MaxCapacity int           `yaml:"max_capacity"`
	Shards      int           `yaml:"shards"`
}

// LoggingConfig represents the logging configuration.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePath   string `yaml:"file_path"`
	MaxSize    int    `yaml:"max_size"`
	MaxAge     int    `yaml:"max_age"`
	MaxBackups int    `yaml:"max_backups"`
	Compress   bool   `yaml:"compress"`
}

// MonitoringConfig represents the monitoring configuration.
type MonitoringConfig struct {
	Prometheus  PrometheusConfig  `yaml:"prometheus"`
	HealthCheck HealthCheckConfig `yaml:"health_check"`
}

// PrometheusConfig represents the Prometheus configuration.
type PrometheusConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// HealthCheckConfig represents the health check configuration.
type HealthCheckConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Default returns the configuration the gateway runs with when no file is
// supplied (development defaults).
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080, Host: "0.0.0.0", Environment: "development",
			ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, IdleTimeout: 60 * time.Second,
		},
		LB: LBConfig{
			Algorithm:               "round_robin",
			SessionTTLSecs:          300,
			HealthCheckIntervalSecs: 10,
			UnhealthyThreshold:      3,
			SessionBackend:          "memory",
			RateLimit:               RateLimitConfig{Enabled: false, RequestsPerMinute: 600, Burst: 50},
		},
		Cache: CacheConfig{
			Enabled: true, Policy: "lru", GlobalTTL: 60 * time.Second, MaxCapacity: 10_000, Shards: 32,
		},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

// LoadConfig loads the configuration from a YAML file over Default(), so
// any field the file does not set keeps its default value. A missing or
// unreadable file is returned as an error.
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Load loads the configuration from a file (alias for LoadConfig).
func Load(configPath string) (*Config, error) {
	return LoadConfig(configPath)
}
