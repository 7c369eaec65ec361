package config

import (
	"log/slog"
	"strings"
	"time"
)

const defaultObservabilityName = "osint_recon"

// ObservabilityConfig groups configuration that controls metrics and logging.
type ObservabilityConfig struct {
	Metrics       ObservabilityMetricsConfig
	Logging       LoggingConfig
	Notifications ObservabilityNotificationsConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Logging.Sanitize()
	c.Notifications.Sanitize()
}

// ObservabilityMetricsConfig controls the Prometheus listener and the optional StatsD sink.
type ObservabilityMetricsConfig struct {
	Enabled       bool   `env:"METRICS_ENABLED"     envDefault:"true"`
	Addr          string `env:"METRICS_ADDR"        envDefault:":9090"`
	StatsdAddress string `env:"METRICS_STATSD_ADDR" envDefault:""`
	Prefix        string `env:"METRICS_PREFIX"      envDefault:"osint_recon"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.Addr = strings.TrimSpace(c.Addr)
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	c.Prefix = strings.Trim(strings.TrimSpace(c.Prefix), ".")
	if c.Prefix == "" {
		c.Prefix = defaultObservabilityName
	}
	if c.Addr == "" && c.StatsdAddress == "" {
		c.Enabled = false
	}
}

// IsEnabled returns true when metrics emission is active after sanitisation.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled
}

// StatsdEnabled reports whether metrics are also pushed to StatsD.
func (c *ObservabilityMetricsConfig) StatsdEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL"  envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// Sanitize lowercases values and falls back to info/json on unknown input.
func (c *LoggingConfig) Sanitize() {
	c.Level = strings.ToLower(strings.TrimSpace(c.Level))
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		c.Level = "info"
	}
	c.Format = strings.ToLower(strings.TrimSpace(c.Format))
	if c.Format != "text" {
		c.Format = "json"
	}
}

// SlogLevel maps Level onto slog.
func (c LoggingConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ObservabilityNotificationsConfig controls alerts for jobs that end in failure.
type ObservabilityNotificationsConfig struct {
	Enabled    bool          `env:"NOTIFY_ENABLED"      envDefault:"false"`
	Timeout    time.Duration `env:"NOTIFY_TIMEOUT"      envDefault:"5s"`
	RetryLimit int           `env:"NOTIFY_RETRY_LIMIT"  envDefault:"3"`
	// MinAttempts suppresses alerts for jobs that failed before this many attempts.
	MinAttempts int                         `env:"NOTIFY_MIN_ATTEMPTS" envDefault:"0"`
	Slack       SlackNotificationConfig     `envPrefix:"NOTIFY_SLACK_"`
	PagerDuty   PagerDutyNotificationConfig `envPrefix:"NOTIFY_PAGERDUTY_"`
}

// Sanitize normalises notification configuration values.
func (c *ObservabilityNotificationsConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}
	if c.MinAttempts < 0 {
		c.MinAttempts = 0
	}

	c.Slack.sanitize()
	c.PagerDuty.sanitize()

	if !c.Enabled {
		c.Slack.Enabled = false
		c.PagerDuty.Enabled = false
		return
	}
	if c.Slack.Enabled && c.Slack.WebhookURL == "" {
		c.Slack.Enabled = false
	}
	if c.PagerDuty.Enabled && c.PagerDuty.RoutingKey == "" {
		c.PagerDuty.Enabled = false
	}
}

// SlackNotificationConfig controls Slack webhook delivery.
type SlackNotificationConfig struct {
	Enabled    bool   `env:"ENABLED"  envDefault:"false"`
	WebhookURL string `env:"WEBHOOK_URL"`
	Channel    string `env:"CHANNEL"`
	Username   string `env:"USERNAME" envDefault:"osint_recon"`
}

func (c *SlackNotificationConfig) sanitize() {
	c.WebhookURL = strings.TrimSpace(c.WebhookURL)
	c.Channel = strings.TrimSpace(c.Channel)
	if c.Username = strings.TrimSpace(c.Username); c.Username == "" {
		c.Username = defaultObservabilityName
	}
}

// PagerDutyNotificationConfig controls PagerDuty Events API v2 delivery.
type PagerDutyNotificationConfig struct {
	Enabled    bool   `env:"ENABLED"     envDefault:"false"`
	RoutingKey string `env:"ROUTING_KEY"`
	Source     string `env:"SOURCE"      envDefault:"osint_recon"`
	Endpoint   string `env:"ENDPOINT"`
}

func (c *PagerDutyNotificationConfig) sanitize() {
	c.RoutingKey = strings.TrimSpace(c.RoutingKey)
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	if c.Source = strings.TrimSpace(c.Source); c.Source == "" {
		c.Source = defaultObservabilityName
	}
}
