package config

import (
	"github.com/garyjia/issueflow/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Enabled:         c.Database.Enabled,
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			MigrationsDir:   c.Database.MigrationsDir,
		},
		Server: container.ServerConfig{
			Enabled:            c.Server.Enabled,
			Host:               c.Server.Host,
			Port:               c.Server.Port,
			ReadTimeout:        c.Server.ReadTimeout,
			WriteTimeout:       c.Server.WriteTimeout,
			TriggerRate:        c.Server.TriggerRate,
			TriggerBurst:       c.Server.TriggerBurst,
			TriggerWaitTimeout: c.Server.TriggerWaitTimeout,
		},
		Workflow: container.WorkflowConfig{
			Name:                c.Workflow.Name,
			DefinitionPath:      c.Workflow.DefinitionPath,
			QueueSize:           c.Workflow.QueueSize,
			ReminderInterval:    c.Workflow.ReminderInterval,
			Autoplay:            c.Workflow.Autoplay,
			DevelopmentDuration: c.Workflow.DevelopmentDuration,
			SimulateTestPassing: c.Workflow.SimulateTestPassing,
		},
	}
}
