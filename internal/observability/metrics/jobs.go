package metrics

import (
	"time"

	"github.com/Abhracodec/osint-recon/internal/domain/model"
	obserrors "github.com/Abhracodec/osint-recon/internal/observability/errors"
	"github.com/Abhracodec/osint-recon/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess   = "success"
	ResultError     = "error"
	ResultCancelled = "cancelled"
	ResultRetry     = "retry"
	ResultNoop      = "noop"
)

// Metric names shared by the statsd and Prometheus sinks.
const (
	NameJobTransition  = "job.transition"
	NameJobDuration    = "job.duration"
	NameModuleRun      = "module.run"
	NameModuleDuration = "module.duration"
	NameQueueDepth     = "queue.depth"
	NameReaperSweep    = "reaper.sweep"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	Transition string
	Result     string
	Kind       model.ErrorKind
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits standardised job lifecycle metrics.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"transition": in.Transition,
		"result":     in.Result,
	}
	if in.Kind != "" {
		tags["error_kind"] = string(in.Kind)
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count(NameJobTransition, 1, tags)

	if in.Duration > 0 {
		sink.Timing(NameJobDuration, in.Duration, CloneTags(tags))
	}
}

// ModuleMetric describes one module invocation.
type ModuleMetric struct {
	Module   string
	Result   string
	Kind     string
	Duration time.Duration
}

// EmitModuleRun records a module invocation outcome and its latency.
func EmitModuleRun(sink statsd.Sink, in ModuleMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{"module": in.Module, "result": in.Result}
	if in.Kind != "" {
		tags["error_kind"] = in.Kind
	}
	sink.Count(NameModuleRun, 1, tags)
	if in.Duration > 0 {
		sink.Timing(NameModuleDuration, in.Duration, map[string]string{"module": in.Module})
	}
}

// EmitQueueDepth publishes queue depth gauges.
func EmitQueueDepth(sink statsd.Sink, stats model.QueueStats) {
	if sink == nil {
		return
	}
	sink.Gauge(NameQueueDepth, float64(stats.Pending), map[string]string{"state": "pending"})
	sink.Gauge(NameQueueDepth, float64(stats.Delayed), map[string]string{"state": "delayed"})
	sink.Gauge(NameQueueDepth, float64(stats.Leased), map[string]string{"state": "leased"})
}

// EmitReaperSweep counts records touched by one reaper pass, by action.
func EmitReaperSweep(sink statsd.Sink, action string, n int) {
	if sink == nil || n <= 0 {
		return
	}
	sink.Count(NameReaperSweep, int64(n), map[string]string{"action": action})
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
