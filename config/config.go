package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Payroll   PayrollConfig   `mapstructure:"payroll"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// DatabaseConfig selects and configures the store.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite, postgres or memory
	Path   string `mapstructure:"path"`   // sqlite file, ":memory:" allowed
	URL    string `mapstructure:"url"`    // postgres connection string
}

// PayrollConfig holds engine defaults
type PayrollConfig struct {
	DefaultWorkingDays int `mapstructure:"default_working_days"`
	MinYear            int `mapstructure:"min_year"`
	MaxYear            int `mapstructure:"max_year"`
	Workers            int `mapstructure:"workers"`
}

// SchedulerConfig holds monthly auto-generation settings
type SchedulerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	RunDay   int           `mapstructure:"run_day"`
	Interval time.Duration `mapstructure:"interval"`
	Actor    string        `mapstructure:"actor"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Load reads configuration from an optional YAML file and PAYROLL_* environment
// variables. An empty configPath uses defaults and environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PAYROLL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values. Every key needs a default
// so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "payroll.db")
	v.SetDefault("database.url", "")

	// Payroll defaults
	v.SetDefault("payroll.default_working_days", 22)
	v.SetDefault("payroll.min_year", 2020)
	v.SetDefault("payroll.max_year", 2050)
	v.SetDefault("payroll.workers", 4)

	// Scheduler defaults
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.run_day", 25)
	v.SetDefault("scheduler.interval", time.Hour)
	v.SetDefault("scheduler.actor", "system")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("database.driver must be sqlite, postgres or memory, got %q", c.Database.Driver)
	}

	if c.Payroll.DefaultWorkingDays < 1 || c.Payroll.DefaultWorkingDays > 31 {
		return fmt.Errorf("payroll.default_working_days must be between 1 and 31")
	}
	if c.Payroll.MinYear > c.Payroll.MaxYear {
		return fmt.Errorf("payroll.min_year must not exceed payroll.max_year")
	}
	if c.Payroll.Workers < 1 {
		return fmt.Errorf("payroll.workers must be at least 1")
	}

	if c.Scheduler.Enabled {
		if c.Scheduler.RunDay < 1 || c.Scheduler.RunDay > 28 {
			return fmt.Errorf("scheduler.run_day must be between 1 and 28")
		}
		if c.Scheduler.Interval <= 0 {
			return fmt.Errorf("scheduler.interval must be positive")
		}
	}

	switch c.Logger.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logger.format must be json or console")
	}

	return nil
}
