// Package container provides dependency injection and lifecycle management
// for the issue workflow service.
package container

import (
	"errors"
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration for the transition journal
	Database DatabaseConfig

	// Server configuration
	Server ServerConfig

	// Workflow configuration
	Workflow WorkflowConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Enabled turns the transition journal on
	Enabled bool

	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration

	// MigrationsDir overrides the embedded migrations when set
	MigrationsDir string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Enabled turns the HTTP surface on
	Enabled bool

	// Host to bind to
	Host string

	// Port to listen on
	Port int

	// ReadTimeout for HTTP server
	ReadTimeout time.Duration

	// WriteTimeout for HTTP server
	WriteTimeout time.Duration

	// TriggerRate limits POSTed triggers per second; zero disables the limit
	TriggerRate float64

	// TriggerBurst is the token bucket size for TriggerRate
	TriggerBurst int

	// TriggerWaitTimeout bounds ?wait=true trigger requests
	TriggerWaitTimeout time.Duration
}

// WorkflowConfig holds workflow and scenario settings.
type WorkflowConfig struct {
	// Name identifies the workflow in events and the journal
	Name string

	// DefinitionPath points at a YAML definition; empty uses the built-in one
	DefinitionPath string

	// QueueSize is the trigger queue capacity
	QueueSize int

	// ReminderInterval is the StyleCop reminder period
	ReminderInterval time.Duration

	// Autoplay drives the issue through its lifecycle on a timer
	Autoplay bool

	// DevelopmentDuration is how long autoplay stays in development
	DevelopmentDuration time.Duration

	// SimulateTestPassing picks TestPassed over TestFailed in autoplay
	SimulateTestPassing bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Enabled:         true,
			Path:            "data/issueflow.db",
			MaxOpenConns:    1,
			MaxIdleConns:    1,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Server: ServerConfig{
			Enabled:            true,
			Host:               "0.0.0.0",
			Port:               8080,
			ReadTimeout:        30 * time.Second,
			WriteTimeout:       30 * time.Second,
			TriggerRate:        10,
			TriggerBurst:       20,
			TriggerWaitTimeout: 5 * time.Second,
		},
		Workflow: WorkflowConfig{
			Name:                "issue",
			QueueSize:           64,
			ReminderInterval:    time.Second,
			Autoplay:            true,
			DevelopmentDuration: 5 * time.Second,
			SimulateTestPassing: false,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, fmt.Errorf("database.path is required"))
	}
	if c.Server.Enabled && (c.Server.Port < 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Errorf("server.port is out of range"))
	}
	if c.Workflow.Name == "" {
		errs = append(errs, fmt.Errorf("workflow.name is required"))
	}
	if c.Workflow.ReminderInterval <= 0 {
		errs = append(errs, fmt.Errorf("workflow.reminder_interval must be positive"))
	}

	return errors.Join(errs...)
}
