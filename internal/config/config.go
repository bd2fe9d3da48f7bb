package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Report       ReportConfig       `mapstructure:"report"`
	Webhook      WebhookConfig      `mapstructure:"webhook"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Usage        UsageConfig        `mapstructure:"usage_tracking"`
	Applications ApplicationsConfig `mapstructure:"applications"`
}

// ServerConfig defines the control API and metrics listeners
type ServerConfig struct {
	BindAddress string `mapstructure:"bind_address"`
	APIPort     int    `mapstructure:"api_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type  string      `mapstructure:"type"` // "bolt" or "redis"
	Path  string      `mapstructure:"path"` // bolt database file
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ReportConfig defines how the daily message is built
type ReportConfig struct {
	TopN            int    `mapstructure:"top_n"`
	TargetMinutes   int    `mapstructure:"target_minutes"`
	Timezone        string `mapstructure:"timezone"`          // IANA name, empty = system local
	DefaultSendTime string `mapstructure:"default_send_time"` // HH:MM used until settings are saved
}

// WebhookConfig defines delivery settings
type WebhookConfig struct {
	Timeout string `mapstructure:"timeout"`
}

// SchedulerConfig defines job runner settings
type SchedulerConfig struct {
	PollInterval        string `mapstructure:"poll_interval"`
	NetworkCheckAddr    string `mapstructure:"network_check_addr"`
	NetworkCheckTimeout string `mapstructure:"network_check_timeout"`
}

// UsageConfig defines usage tracking settings
type UsageConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	InactivityTimeout  string `mapstructure:"inactivity_timeout"`
	MinSessionDuration string `mapstructure:"min_session_duration"`
	RetentionDays      int    `mapstructure:"retention_days"`
}

// ApplicationsConfig defines the application inventory
type ApplicationsConfig struct {
	InventoryPath string `mapstructure:"inventory_path"`
	CacheSize     int    `mapstructure:"cache_size"`
	Watch         bool   `mapstructure:"watch"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Configure viper
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("USAGEREPORTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// SetDefaults sets default configuration values
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.bind_address", "127.0.0.1")
	v.SetDefault("server.api_port", 8470)
	v.SetDefault("server.metrics_port", 9470)

	// Storage defaults
	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.path", "/var/lib/usagereporter/usagereporter.bolt")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Report defaults
	v.SetDefault("report.top_n", 5)
	v.SetDefault("report.target_minutes", 30)
	v.SetDefault("report.timezone", "")
	v.SetDefault("report.default_send_time", "21:00")

	// Webhook defaults
	v.SetDefault("webhook.timeout", "10s")

	// Scheduler defaults
	v.SetDefault("scheduler.poll_interval", "30s")
	v.SetDefault("scheduler.network_check_addr", "hooks.slack.com:443")
	v.SetDefault("scheduler.network_check_timeout", "3s")

	// Usage tracking defaults
	v.SetDefault("usage_tracking.enabled", true)
	v.SetDefault("usage_tracking.inactivity_timeout", "2m")
	v.SetDefault("usage_tracking.min_session_duration", "10s")
	v.SetDefault("usage_tracking.retention_days", 90)

	// Application inventory defaults
	v.SetDefault("applications.inventory_path", "/etc/usagereporter/applications.yaml")
	v.SetDefault("applications.cache_size", 512)
	v.SetDefault("applications.watch", true)
}

// Location resolves the configured report timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Report.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Report.Timezone)
}

// DefaultSendTime returns the hour and minute of report.default_send_time.
func (c *Config) DefaultSendTime() (int, int, error) {
	t, err := time.Parse("15:04", c.Report.DefaultSendTime)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid default_send_time %q: %w", c.Report.DefaultSendTime, err)
	}
	return t.Hour(), t.Minute(), nil
}

// Duration parses a duration field that validate has already accepted. An
// empty value yields zero.
func Duration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.APIPort <= 0 || cfg.Server.APIPort > 65535 {
		return fmt.Errorf("invalid API port: %d", cfg.Server.APIPort)
	}
	if cfg.Server.MetricsPort <= 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	if cfg.Report.TopN <= 0 {
		return fmt.Errorf("report.top_n must be positive, got %d", cfg.Report.TopN)
	}
	if cfg.Report.TargetMinutes < 0 {
		return fmt.Errorf("report.target_minutes must not be negative, got %d", cfg.Report.TargetMinutes)
	}
	if _, err := cfg.Location(); err != nil {
		return fmt.Errorf("invalid report.timezone: %w", err)
	}
	if _, _, err := cfg.DefaultSendTime(); err != nil {
		return err
	}

	for name, value := range map[string]string{
		"webhook.timeout":                      cfg.Webhook.Timeout,
		"scheduler.poll_interval":              cfg.Scheduler.PollInterval,
		"scheduler.network_check_timeout":      cfg.Scheduler.NetworkCheckTimeout,
		"usage_tracking.inactivity_timeout":    cfg.Usage.InactivityTimeout,
		"usage_tracking.min_session_duration": cfg.Usage.MinSessionDuration,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	switch cfg.Storage.Type {
	case "":
		cfg.Storage.Type = "bolt"
		fallthrough
	case "bolt":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required")
		}
		// Ensure storage directory exists
		storageDir := filepath.Dir(cfg.Storage.Path)
		if err := os.MkdirAll(storageDir, 0755); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("storage.redis.host is required")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s (must be bolt or redis)", cfg.Storage.Type)
	}

	return nil
}
