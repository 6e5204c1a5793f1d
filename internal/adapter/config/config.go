// Package config provides configuration management for the VSD monitor.
// It supports environment variables, config files (YAML/JSON), and defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the VSD monitor.
type Config struct {
	// Environment is the deployment environment (development, staging, production)
	Environment string `mapstructure:"environment"`

	// FleetConfigPath is the path to the drive fleet definition file
	FleetConfigPath string `mapstructure:"fleet_config_path"`

	// Fieldbus holds the Modbus TCP connection settings
	Fieldbus FieldbusConfig `mapstructure:"fieldbus"`

	// Polling configuration
	Polling PollingConfig `mapstructure:"polling"`

	// Storage configuration
	Storage StorageConfig `mapstructure:"storage"`

	// HTTP server configuration (health and metrics endpoints)
	HTTP HTTPConfig `mapstructure:"http"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// FieldbusConfig holds Modbus TCP client configuration.
type FieldbusConfig struct {
	// Address is the gateway endpoint in host:port form
	Address string `mapstructure:"address"`

	// Timeout bounds a single register read. Zero selects a timeout
	// derived from the polling interval and fleet size.
	Timeout time.Duration `mapstructure:"timeout"`

	// IdleTimeout closes the TCP session after inactivity
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// Circuit breaker configuration
	CBInterval         time.Duration `mapstructure:"cb_interval"`
	CBTimeout          time.Duration `mapstructure:"cb_timeout"`
	CBFailureThreshold uint32        `mapstructure:"cb_failure_threshold"`
}

// PollingConfig holds cycle runner configuration.
type PollingConfig struct {
	// Interval is the pause between the end of one cycle and the start
	// of the next
	Interval time.Duration `mapstructure:"interval"`

	// ShutdownTimeout bounds the graceful stop of an in-flight cycle
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig selects and configures the time-series database.
type StorageConfig struct {
	// Driver is "sqlite" or "postgres"
	Driver string `mapstructure:"driver"`

	// Path is the database file for the sqlite driver
	Path string `mapstructure:"path"`

	// DSN is the connection string for the postgres driver
	DSN string `mapstructure:"dsn"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json or console
	Output     string `mapstructure:"output"` // stdout, stderr, or file path
	TimeFormat string `mapstructure:"time_format"`
}

// Load loads configuration from files and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Config file search paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/vsd-monitor")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, will use defaults and env vars
	}

	// Environment variable binding
	v.SetEnvPrefix("VSDMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Environment
	v.SetDefault("environment", "development")
	v.SetDefault("fleet_config_path", "./config/fleet.yaml")

	// Fieldbus
	v.SetDefault("fieldbus.address", "127.0.0.1:502")
	v.SetDefault("fieldbus.timeout", 0)
	v.SetDefault("fieldbus.idle_timeout", 5*time.Minute)
	v.SetDefault("fieldbus.cb_interval", 30*time.Second)
	v.SetDefault("fieldbus.cb_timeout", 30*time.Second)
	v.SetDefault("fieldbus.cb_failure_threshold", 3)

	// Polling
	v.SetDefault("polling.interval", 60*time.Second)
	v.SetDefault("polling.shutdown_timeout", 30*time.Second)

	// Storage
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", "./vsd.db")
	v.SetDefault("storage.dsn", "")

	// HTTP
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.time_format", time.RFC3339)
}

// bindEnvVars binds environment variables to config keys.
func bindEnvVars(v *viper.Viper) {
	// General environment variables
	_ = v.BindEnv("environment", "ENVIRONMENT")
	_ = v.BindEnv("fleet_config_path", "FLEET_CONFIG_PATH")

	// Fieldbus
	_ = v.BindEnv("fieldbus.address", "FIELDBUS_ADDRESS")
	_ = v.BindEnv("fieldbus.timeout", "FIELDBUS_TIMEOUT")

	// Polling
	_ = v.BindEnv("polling.interval", "POLLING_INTERVAL")

	// Storage
	_ = v.BindEnv("storage.driver", "STORAGE_DRIVER")
	_ = v.BindEnv("storage.path", "STORAGE_PATH")
	_ = v.BindEnv("storage.dsn", "STORAGE_DSN")

	// HTTP
	_ = v.BindEnv("http.port", "HTTP_PORT")

	// Logging
	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("logging.format", "LOG_FORMAT")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Fieldbus.Address == "" {
		return fmt.Errorf("fieldbus address is required")
	}
	if c.Polling.Interval <= 0 {
		return fmt.Errorf("polling interval must be positive")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage path is required for the sqlite driver")
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver: %q", c.Storage.Driver)
	}
	return nil
}

// ReadTimeout returns the per-read deadline: the configured value when
// set, otherwise the polling interval divided by the fleet size,
// clamped to [1s, 5s].
func (c *Config) ReadTimeout(fleetSize int) time.Duration {
	if c.Fieldbus.Timeout > 0 {
		return c.Fieldbus.Timeout
	}
	if fleetSize < 1 {
		fleetSize = 1
	}
	d := c.Polling.Interval / time.Duration(fleetSize)
	if d < time.Second {
		d = time.Second
	}
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
