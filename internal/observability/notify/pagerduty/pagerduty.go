// Package pagerduty raises job failure alerts through the PagerDuty Events API v2.
package pagerduty

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Abhracodec/osint-recon/internal/observability/notify"
)

// APIEndpoint is the PagerDuty Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

// Config captures runtime configuration for the PagerDuty sink.
type Config struct {
	RoutingKey string
	Source     string
	// Endpoint overrides APIEndpoint.
	Endpoint   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
}

// Client publishes events via PagerDuty's Events API v2.
type Client struct {
	routingKey string
	source     string
	endpoint   string
	poster     notify.Poster
}

// NewClient constructs a PagerDuty events client. A routing key is required.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}
	return &Client{
		routingKey: key,
		source:     notify.Fallback(strings.TrimSpace(cfg.Source), "osint_recon"),
		endpoint:   notify.Fallback(strings.TrimSpace(cfg.Endpoint), APIEndpoint),
		poster:     notify.NewPoster("pagerduty api", cfg.Client, cfg.Timeout, cfg.RetryLimit),
	}, nil
}

// SendJobFailure submits a trigger event to PagerDuty.
func (c *Client) SendJobFailure(ctx context.Context, payload notify.JobFailurePayload) error {
	return c.poster.PostJSON(ctx, c.endpoint, c.buildEvent(payload))
}

func (c *Client) buildEvent(payload notify.JobFailurePayload) map[string]any {
	occurredAt := payload.OccurredAt.UTC()
	if payload.OccurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	custom := map[string]any{
		"job_id":      payload.JobID,
		"target":      payload.Target,
		"target_type": payload.TargetType,
		"module":      payload.Module,
		"error_kind":  payload.ErrorKind,
		"error":       payload.Error,
		"attempts":    payload.Attempts,
	}
	for k, v := range payload.Metadata {
		if _, exists := custom[k]; !exists {
			custom[k] = v
		}
	}

	return map[string]any{
		"routing_key":  c.routingKey,
		"event_action": "trigger",
		"dedup_key":    "osint-recon:" + notify.Fallback(payload.JobID, "unknown"),
		"payload": map[string]any{
			"summary": fmt.Sprintf("Recon job %s against %s failed: %s",
				notify.Fallback(payload.JobID, "unknown"),
				notify.Fallback(payload.Target, "unknown target"),
				notify.Fallback(payload.ErrorKind, "error")),
			"severity":       notify.Fallback(strings.ToLower(payload.Severity), notify.SeverityCritical),
			"source":         c.source,
			"component":      notify.Fallback(payload.Module, "worker"),
			"timestamp":      occurredAt.Format(time.RFC3339),
			"custom_details": custom,
		},
	}
}
