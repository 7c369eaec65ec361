package config

import (
	"fmt"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Postgres audit trail and Redis configuration
//   - services.go: Service mode, worker, module, reaper and audit configuration
//   - observability.go: Metrics and logging configuration
type AppConfig struct {
	// Backend selects where records and the queue live: redis or memory.
	Backend Backend `env:"BACKEND" envDefault:"redis"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"worker,reaper,metrics"`

	Worker  WorkerConfig
	Modules ModulesConfig
	Reaper  ReaperConfig
	Audit   AuditConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Backend = Backend(strings.ToLower(strings.TrimSpace(string(c.Backend))))
	if c.Backend == "" {
		c.Backend = BackendRedis
	}

	c.Redis.Sanitize()
	c.Worker.Sanitize()
	c.Modules.Sanitize()
	c.Reaper.Sanitize()
	c.Audit.Sanitize()
	c.Observability.Sanitize()
}

// Validate reports configuration that cannot be started.
func (c *AppConfig) Validate() error {
	switch c.Backend {
	case BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("invalid BACKEND %q (valid options: redis, memory)", c.Backend)
	}
	_, err := c.GetEnabledServices()
	return err
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsWorkerEnabled returns true if the worker pool service is enabled.
func (c *AppConfig) IsWorkerEnabled() bool {
	return c.serviceEnabled(ServiceModeWorker)
}

// IsReaperEnabled returns true if the reaper service is enabled.
func (c *AppConfig) IsReaperEnabled() bool {
	return c.serviceEnabled(ServiceModeReaper)
}

// IsMetricsEnabled returns true if the metrics listener is enabled.
func (c *AppConfig) IsMetricsEnabled() bool {
	return c.serviceEnabled(ServiceModeMetrics) && c.Observability.Metrics.IsEnabled() &&
		c.Observability.Metrics.Addr != ""
}

func (c *AppConfig) serviceEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}
