package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeWorker runs the worker pool that executes recon jobs.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeReaper runs retention and stalled-lease cleanup.
	ServiceModeReaper ServiceMode = "reaper"
	// ServiceModeMetrics serves Prometheus metrics on METRICS_ADDR.
	ServiceModeMetrics ServiceMode = "metrics"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeWorker,
		ServiceModeReaper,
		ServiceModeMetrics,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for part := range strings.SplitSeq(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeWorker, ServiceModeReaper, ServiceModeMetrics:
			services[mode] = true
		default:
			return nil, fmt.Errorf("invalid service name: %q (valid options: worker, reaper, metrics)", serviceName)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// Backend selects the record store and queue implementation.
type Backend string

const (
	// BackendRedis keeps records and the queue in Redis so several processes can share them.
	BackendRedis Backend = "redis"
	// BackendMemory keeps everything in-process. Records are lost on exit.
	BackendMemory Backend = "memory"
)

// WorkerConfig contains worker pool configuration.
type WorkerConfig struct {
	// Concurrency is the number of jobs processed in parallel.
	Concurrency int `env:"WORKER_CONCURRENCY" envDefault:"2"`

	// JobTimeoutSeconds bounds one attempt of a job, across all of its modules.
	JobTimeoutSeconds int `env:"JOB_TIMEOUT_SECONDS" envDefault:"1800"`

	// ModuleTimeoutSeconds caps a single module run.
	ModuleTimeoutSeconds int `env:"MODULE_TIMEOUT_SECONDS" envDefault:"300"`

	// MaxAttempts caps deliveries per job, counting the first.
	MaxAttempts int `env:"MAX_ATTEMPTS" envDefault:"3"`

	// RetentionSeconds is how long records stay readable.
	RetentionSeconds int `env:"RETENTION_SECONDS" envDefault:"86400"`

	// LeaseTTLSeconds is the queue visibility timeout; workers renew at a third of it.
	LeaseTTLSeconds int `env:"LEASE_TTL_SECONDS" envDefault:"30"`

	RetryBackoffBaseMs int `env:"RETRY_BACKOFF_BASE_MS" envDefault:"2000"`
	RetryBackoffMaxMs  int `env:"RETRY_BACKOFF_MAX_MS"  envDefault:"60000"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.Concurrency < 1 {
		w.Concurrency = 1
	}
	if w.JobTimeoutSeconds < 1 {
		w.JobTimeoutSeconds = 1800
	}
	if w.ModuleTimeoutSeconds < 1 {
		w.ModuleTimeoutSeconds = 300
	}
	if w.MaxAttempts < 1 {
		w.MaxAttempts = 1
	}
	if w.RetentionSeconds < 60 {
		w.RetentionSeconds = 60
	}
	if w.LeaseTTLSeconds < 5 {
		w.LeaseTTLSeconds = 5
	}
	if w.RetryBackoffBaseMs < 1 {
		w.RetryBackoffBaseMs = 2000
	}
	if w.RetryBackoffMaxMs < w.RetryBackoffBaseMs {
		w.RetryBackoffMaxMs = w.RetryBackoffBaseMs
	}
}

// JobTimeout returns the per-attempt job budget.
func (w WorkerConfig) JobTimeout() time.Duration {
	return time.Duration(w.JobTimeoutSeconds) * time.Second
}

// ModuleTimeout returns the per-module ceiling.
func (w WorkerConfig) ModuleTimeout() time.Duration {
	return time.Duration(w.ModuleTimeoutSeconds) * time.Second
}

// Retention returns the record retention window.
func (w WorkerConfig) Retention() time.Duration {
	return time.Duration(w.RetentionSeconds) * time.Second
}

// LeaseTTL returns the queue lease duration.
func (w WorkerConfig) LeaseTTL() time.Duration {
	return time.Duration(w.LeaseTTLSeconds) * time.Second
}

// RetryBackoff returns the base and cap of the crash retry backoff.
func (w WorkerConfig) RetryBackoff() (base, maxDelay time.Duration) {
	return time.Duration(w.RetryBackoffBaseMs) * time.Millisecond,
		time.Duration(w.RetryBackoffMaxMs) * time.Millisecond
}

// ModulesConfig selects and configures the module plugins.
type ModulesConfig struct {
	// DemoMode runs every module as a simulation with canned findings.
	DemoMode bool `env:"DEMO_MODE" envDefault:"true"`

	// DemoModuleDelayMs is the unit pause of simulated modules.
	DemoModuleDelayMs int `env:"DEMO_MODULE_DELAY_MS" envDefault:"1000"`

	TavilyAPIKey  string `env:"TAVILY_API_KEY"`
	TavilyBaseURL string `env:"TAVILY_BASE_URL" envDefault:"https://api.tavily.com"`
}

// Sanitize applies guardrails to module configuration values.
func (m *ModulesConfig) Sanitize() {
	if m.DemoModuleDelayMs < 0 {
		m.DemoModuleDelayMs = 0
	}
	m.TavilyAPIKey = strings.TrimSpace(m.TavilyAPIKey)
	m.TavilyBaseURL = strings.TrimRight(strings.TrimSpace(m.TavilyBaseURL), "/")
}

// DemoDelay returns the simulated module unit pause.
func (m ModulesConfig) DemoDelay() time.Duration {
	return time.Duration(m.DemoModuleDelayMs) * time.Millisecond
}

// ReaperConfig contains reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"1m"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Sweeps faster than the shortest lease only burn Redis round trips.
	if r.Interval < 5*time.Second {
		r.Interval = 5 * time.Second
	}
}

// AuditConfig controls the Postgres scan audit trail.
type AuditConfig struct {
	Enabled       bool `env:"AUDIT_ENABLED"        envDefault:"false"`
	RetentionDays int  `env:"AUDIT_RETENTION_DAYS" envDefault:"30"`
}

// Sanitize applies guardrails to audit configuration values.
func (a *AuditConfig) Sanitize() {
	if a.RetentionDays < 1 {
		a.RetentionDays = 1
	}
}

// Retention returns how long audit rows are kept.
func (a AuditConfig) Retention() time.Duration {
	return time.Duration(a.RetentionDays) * 24 * time.Hour
}
