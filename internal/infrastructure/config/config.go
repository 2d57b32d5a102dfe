// Package config provides centralized configuration management
// using Viper for configuration loading and validation
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Redis      RedisConfig      `mapstructure:"redis"`
	BruteForce BruteForceConfig `mapstructure:"brute_force"`
	Audit      AuditConfig      `mapstructure:"audit"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
}

// RedisConfig contains Redis configuration
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	Database     int           `mapstructure:"database"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
}

// BruteForceConfig contains credential-guessing defense configuration.
// All values are fixed for the process lifetime once loaded.
type BruteForceConfig struct {
	MaxAttempts      int           `mapstructure:"max_attempts"`
	LockoutDuration  time.Duration `mapstructure:"lockout_duration"`
	BaseDelay        time.Duration `mapstructure:"base_delay"`
	MaxDelay         time.Duration `mapstructure:"max_delay"`
	ResetWindow      time.Duration `mapstructure:"reset_window"`
	ProgressiveDelay bool          `mapstructure:"progressive_delay"`
	CleanupInterval  time.Duration `mapstructure:"cleanup_interval"`
}

// AuditConfig contains audit trail configuration
type AuditConfig struct {
	Retention     time.Duration `mapstructure:"retention"`
	DefaultLimit  int           `mapstructure:"default_limit"`
	OverviewLimit int           `mapstructure:"overview_limit"`
	StoreTimeout  time.Duration `mapstructure:"store_timeout"`
}

// MonitoringConfig contains security monitoring configuration
type MonitoringConfig struct {
	AlertWindow       time.Duration `mapstructure:"alert_window"`
	CriticalThreshold int           `mapstructure:"critical_threshold"`
	HighThreshold     int           `mapstructure:"high_threshold"`
	MediumThreshold   int           `mapstructure:"medium_threshold"`
	LowThreshold      int           `mapstructure:"low_threshold"`
	EnableMetrics     bool          `mapstructure:"enable_metrics"`
	MetricsPort       int           `mapstructure:"metrics_port"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/sentinel")
	}

	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// It's okay if config file doesn't exist, we have defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "Sentinel")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.database", 0)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")
	v.SetDefault("redis.pool_size", 10)

	// Brute force defaults
	v.SetDefault("brute_force.max_attempts", 5)
	v.SetDefault("brute_force.lockout_duration", "15m")
	v.SetDefault("brute_force.base_delay", "1s")
	v.SetDefault("brute_force.max_delay", "30s")
	v.SetDefault("brute_force.reset_window", "1h")
	v.SetDefault("brute_force.progressive_delay", true)
	v.SetDefault("brute_force.cleanup_interval", "5m")

	// Audit defaults
	v.SetDefault("audit.retention", "2160h") // 90 days
	v.SetDefault("audit.default_limit", 100)
	v.SetDefault("audit.overview_limit", 1000)
	v.SetDefault("audit.store_timeout", "2s")

	// Monitoring defaults
	v.SetDefault("monitoring.alert_window", "5m")
	v.SetDefault("monitoring.critical_threshold", 1)
	v.SetDefault("monitoring.high_threshold", 5)
	v.SetDefault("monitoring.medium_threshold", 10)
	v.SetDefault("monitoring.low_threshold", 50)
	v.SetDefault("monitoring.enable_metrics", true)
	v.SetDefault("monitoring.metrics_port", 9090)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}

	if c.BruteForce.MaxAttempts <= 0 {
		return fmt.Errorf("brute_force.max_attempts must be positive")
	}

	if c.BruteForce.LockoutDuration <= 0 {
		return fmt.Errorf("brute_force.lockout_duration must be positive")
	}

	if c.BruteForce.MaxDelay < c.BruteForce.BaseDelay {
		return fmt.Errorf("brute_force.max_delay must be >= brute_force.base_delay")
	}

	if c.BruteForce.ResetWindow < c.BruteForce.LockoutDuration {
		return fmt.Errorf("brute_force.reset_window must cover the lockout duration")
	}

	if c.Audit.DefaultLimit <= 0 || c.Audit.OverviewLimit <= 0 {
		return fmt.Errorf("audit limits must be positive")
	}

	if c.Monitoring.AlertWindow <= 0 {
		return fmt.Errorf("monitoring.alert_window must be positive")
	}

	for name, threshold := range map[string]int{
		"critical_threshold": c.Monitoring.CriticalThreshold,
		"high_threshold":     c.Monitoring.HighThreshold,
		"medium_threshold":   c.Monitoring.MediumThreshold,
		"low_threshold":      c.Monitoring.LowThreshold,
	} {
		if threshold <= 0 {
			return fmt.Errorf("monitoring.%s must be positive", name)
		}
	}

	return nil
}

// IsProduction returns true if running in production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}
