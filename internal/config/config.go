package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// EnvPrefix prefixes every environment override, e.g. ISSUEFLOW_SERVER_PORT
const EnvPrefix = "ISSUEFLOW"

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	TriggerRate        float64       `mapstructure:"trigger_rate"`
	TriggerBurst       int           `mapstructure:"trigger_burst"`
	TriggerWaitTimeout time.Duration `mapstructure:"trigger_wait_timeout"`
}

// DatabaseConfig holds transition journal configuration
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"` // empty uses the embedded migrations
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// WorkflowConfig controls the issue workflow and its demo scenario
type WorkflowConfig struct {
	Name                string        `mapstructure:"name"`
	DefinitionPath      string        `mapstructure:"definition_path"` // empty uses the built-in definition
	QueueSize           int           `mapstructure:"queue_size"`
	ReminderInterval    time.Duration `mapstructure:"reminder_interval"`
	Autoplay            bool          `mapstructure:"autoplay"`
	DevelopmentDuration time.Duration `mapstructure:"development_duration"`
	SimulateTestPassing bool          `mapstructure:"simulate_test_passing"`
}

// Load loads configuration from an optional YAML file, an optional .env file
// and ISSUEFLOW_* environment variables, in increasing precedence.
// An empty configPath skips the file.
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
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

// loadDotEnv exports variables from a .env file without overriding the
// real environment. A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.trigger_rate", 10.0)
	v.SetDefault("server.trigger_burst", 20)
	v.SetDefault("server.trigger_wait_timeout", 5*time.Second)

	// Database defaults
	v.SetDefault("database.enabled", true)
	v.SetDefault("database.path", "data/issueflow.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.migrations_dir", "")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "console")

	// Workflow defaults
	v.SetDefault("workflow.name", "issue")
	v.SetDefault("workflow.definition_path", "")
	v.SetDefault("workflow.queue_size", 64)
	v.SetDefault("workflow.reminder_interval", time.Second)
	v.SetDefault("workflow.autoplay", true)
	v.SetDefault("workflow.development_duration", 5*time.Second)
	v.SetDefault("workflow.simulate_test_passing", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535"))
	}
	if c.Server.TriggerRate < 0 {
		errs = append(errs, fmt.Errorf("server.trigger_rate must not be negative"))
	}
	if c.Server.Enabled && c.Server.TriggerWaitTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.trigger_wait_timeout must be positive"))
	}
	if c.Server.TriggerRate > 0 && c.Server.TriggerBurst < 1 {
		errs = append(errs, fmt.Errorf("server.trigger_burst must be at least 1 when rate limiting"))
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, fmt.Errorf("database.path is required"))
	}

	switch c.Logger.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logger.format must be json or console"))
	}

	if c.Workflow.Name == "" {
		errs = append(errs, fmt.Errorf("workflow.name is required"))
	}
	if c.Workflow.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("workflow.queue_size must be positive"))
	}
	if c.Workflow.ReminderInterval <= 0 {
		errs = append(errs, fmt.Errorf("workflow.reminder_interval must be positive"))
	}
	if c.Workflow.Autoplay && c.Workflow.DevelopmentDuration < 0 {
		errs = append(errs, fmt.Errorf("workflow.development_duration must not be negative"))
	}

	return errors.Join(errs...)
}
