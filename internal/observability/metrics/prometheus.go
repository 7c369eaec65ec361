package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Abhracodec/osint-recon/internal/observability/statsd"
)

var durationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300, 900, 1800}

// PromSink exposes the statsd-style metrics as Prometheus collectors on a
// private registry. Tags outside a metric's label set are dropped; missing
// labels are reported empty.
type PromSink struct {
	registry *prometheus.Registry

	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
	labels     map[string][]string
}

// NewPromSink registers the job, module, queue and reaper collectors under namespace.
func NewPromSink(namespace string) *PromSink {
	ns := strings.ReplaceAll(strings.Trim(strings.TrimSpace(namespace), "."), ".", "_")
	s := &PromSink{
		registry:   prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		labels:     make(map[string][]string),
	}

	s.counter(ns, NameJobTransition, "job_transitions_total",
		"Job state transitions by outcome.", "transition", "result", "error_kind", "error_class")
	s.histogram(ns, NameJobDuration, "job_duration_seconds",
		"Wall time from claim to outcome.", "transition", "result")
	s.counter(ns, NameModuleRun, "module_runs_total",
		"Module invocations by result.", "module", "result", "error_kind")
	s.histogram(ns, NameModuleDuration, "module_duration_seconds",
		"Module execution latency.", "module")
	s.gauge(ns, NameQueueDepth, "queue_depth",
		"Queue entries by state.", "state")
	s.counter(ns, NameReaperSweep, "reaper_actions_total",
		"Records touched by the reaper.", "action")

	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return s
}

func (s *PromSink) counter(ns, key, name, help string, labels ...string) {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: name, Help: help}, labels)
	s.registry.MustRegister(c)
	s.counters[key] = c
	s.labels[key] = labels
}

func (s *PromSink) histogram(ns, key, name, help string, labels ...string) {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Name: name, Help: help, Buckets: durationBuckets,
	}, labels)
	s.registry.MustRegister(h)
	s.histograms[key] = h
	s.labels[key] = labels
}

func (s *PromSink) gauge(ns, key, name, help string, labels ...string) {
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Name: name, Help: help}, labels)
	s.registry.MustRegister(g)
	s.gauges[key] = g
	s.labels[key] = labels
}

func (s *PromSink) values(key string, tags map[string]string) []string {
	names := s.labels[key]
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = tags[n]
	}
	return out
}

// Count implements statsd.Sink.
func (s *PromSink) Count(name string, value int64, tags map[string]string) {
	if c, ok := s.counters[name]; ok && value > 0 {
		c.WithLabelValues(s.values(name, tags)...).Add(float64(value))
	}
}

// Gauge implements statsd.Sink.
func (s *PromSink) Gauge(name string, value float64, tags map[string]string) {
	if g, ok := s.gauges[name]; ok {
		g.WithLabelValues(s.values(name, tags)...).Set(value)
	}
}

// Timing implements statsd.Sink.
func (s *PromSink) Timing(name string, value time.Duration, tags map[string]string) {
	if h, ok := s.histograms[name]; ok {
		h.WithLabelValues(s.values(name, tags)...).Observe(value.Seconds())
	}
}

// Registry exposes the underlying registry for tests and extra collectors.
func (s *PromSink) Registry() *prometheus.Registry { return s.registry }

// Handler serves the registry in the Prometheus exposition format.
func (s *PromSink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

var _ statsd.Sink = (*PromSink)(nil)
