package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Abhracodec/osint-recon/config"
	"github.com/Abhracodec/osint-recon/internal/adapters/modules"
	"github.com/Abhracodec/osint-recon/internal/core"
	"github.com/Abhracodec/osint-recon/internal/data"
	"github.com/Abhracodec/osint-recon/internal/observability/metrics"
	"github.com/Abhracodec/osint-recon/internal/observability/notify/pagerduty"
	"github.com/Abhracodec/osint-recon/internal/observability/notify/slack"
	"github.com/Abhracodec/osint-recon/internal/observability/statsd"
	"github.com/Abhracodec/osint-recon/internal/service"
	"github.com/Abhracodec/osint-recon/internal/service/failurenotifier"
)

// ServiceContainer holds the wired engine: backends, module runner and the
// orchestrator API.
type ServiceContainer struct {
	Store        core.JobRecordStore
	Queue        core.JobQueue
	Modules      *modules.Runner
	Registry     *modules.Registry
	Orchestrator *service.Orchestrator
	Projector    *service.ResultProjector
	Audit        core.ScanAuditRepository
	Notifier     *failurenotifier.Service

	Observability ObservabilityContainer

	closeQueue func()
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	// Sink fans out to every configured backend; nil when metrics are off.
	Sink          statsd.Sink
	Prom          *metrics.PromSink
	Statsd        *statsd.Client
	MetricsConfig config.ObservabilityMetricsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB               // optional; enables the audit trail
	RedisClient redis.UniversalClient // required for the redis backend
	Logger      *slog.Logger
}

// buildObservability configures the Prometheus registry and the optional StatsD client.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityMetricsConfig) ObservabilityContainer {
	out := ObservabilityContainer{MetricsConfig: cfg}
	if !cfg.IsEnabled() {
		return out
	}

	out.Prom = metrics.NewPromSink(cfg.Prefix)
	if cfg.StatsdEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.StatsdAddress,
			Prefix:  cfg.Prefix,
			Logger:  logger,
		})
		if err != nil {
			logger.Error("failed to initialise statsd client", "error", err)
		} else {
			out.Statsd = client
		}
	}

	var statsdSink statsd.Sink
	if out.Statsd != nil {
		statsdSink = out.Statsd
	}
	out.Sink = metrics.Fanout(out.Prom, statsdSink)
	return out
}

// buildBackends creates the record store and queue for the configured backend.
//
//nolint:ireturn // callers only see the ports; the concrete backend is a config choice.
func buildBackends(deps *ServiceDeps) (core.JobRecordStore, core.JobQueue, func(), error) {
	cfg := deps.Config
	lease, err := leasePolicy(cfg.Worker, deps.Logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("lease policy: %w", err)
	}
	storeOpts := data.JobStoreOptions{Retention: cfg.Worker.Retention()}
	queueOpts := data.QueueOptions{Lease: lease, MaxAttempts: cfg.Worker.MaxAttempts}

	switch cfg.Backend {
	case config.BackendMemory:
		queue, qerr := data.NewMemoryJobQueue(queueOpts)
		if qerr != nil {
			return nil, nil, nil, qerr
		}
		return data.NewMemoryJobStore(storeOpts), queue, queue.Close, nil

	case config.BackendRedis:
		if deps.RedisClient == nil {
			return nil, nil, nil, errors.New("redis backend requires a redis client")
		}
		store, serr := data.NewRedisJobStore(data.RedisJobStoreOptions{
			Client:          deps.RedisClient,
			JobStoreOptions: storeOpts,
		})
		if serr != nil {
			return nil, nil, nil, serr
		}
		queue, qerr := data.NewRedisJobQueue(data.RedisJobQueueOptions{
			Client:       deps.RedisClient,
			QueueOptions: queueOpts,
		})
		if qerr != nil {
			return nil, nil, nil, qerr
		}
		return store, queue, queue.Close, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// BuildModuleRegistry returns the demo or live module set selected by cfg.
func BuildModuleRegistry(cfg *config.AppConfig) (*modules.Registry, error) {
	registry, err := modules.NewDefaultRegistry(modules.DefaultRegistryOptions{
		Demo:         cfg.Modules.DemoMode,
		DemoDelay:    cfg.Modules.DemoDelay(),
		TavilyAPIKey: cfg.Modules.TavilyAPIKey,
		TavilyURL:    cfg.Modules.TavilyBaseURL,
		HTTPClient:   &http.Client{Timeout: cfg.Worker.ModuleTimeout()},
	})
	if err != nil {
		return nil, fmt.Errorf("module registry: %w", err)
	}
	return registry, nil
}

func buildModules(cfg *config.AppConfig, logger *slog.Logger, sink statsd.Sink) (*modules.Registry, *modules.Runner, error) {
	registry, err := BuildModuleRegistry(cfg)
	if err != nil {
		return nil, nil, err
	}
	runner, err := modules.NewRunner(modules.RunnerOptions{
		Registry:       registry,
		Logger:         logger,
		DefaultTimeout: cfg.Worker.ModuleTimeout(),
		Metrics:        sink,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("module runner: %w", err)
	}
	return registry, runner, nil
}

// buildFailureNotifier registers the enabled alert sinks. The returned service
// is never nil; with no sinks it drops every notification.
func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	opts := failurenotifier.Options{
		Logger:      logger.With("component", "failure_notifier"),
		MinAttempts: cfg.MinAttempts,
	}
	if !cfg.Enabled {
		return failurenotifier.NewService(opts)
	}

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.Slack.WebhookURL,
			Channel:    cfg.Slack.Channel,
			Username:   cfg.Slack.Username,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("failed to initialise slack notifier", "error", err)
		} else {
			opts.Sinks = append(opts.Sinks, failurenotifier.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Endpoint:   cfg.PagerDuty.Endpoint,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			opts.Sinks = append(opts.Sinks, failurenotifier.SinkRegistration{Name: "pagerduty", Sink: client})
		}
	}

	return failurenotifier.NewService(opts)
}

// NewServices wires the engine from configuration.
func NewServices(deps *ServiceDeps) (*ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return nil, errors.New("service deps with config are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	observability := buildObservability(logger, deps.Config.Observability.Metrics)

	store, queue, closeQueue, err := buildBackends(deps)
	if err != nil {
		return nil, err
	}

	registry, runner, err := buildModules(deps.Config, logger, observability.Sink)
	if err != nil {
		closeQueue()
		return nil, err
	}

	var audit core.ScanAuditRepository
	if deps.Config.Audit.Enabled {
		if deps.DB == nil {
			logger.Warn("audit trail enabled without a database; audit disabled")
		} else {
			audit = data.NewScanAuditRepo(deps.DB)
		}
	}

	orchestrator, err := service.NewOrchestrator(service.OrchestratorOptions{
		Store:   store,
		Queue:   queue,
		Logger:  logger,
		Audit:   audit,
		Metrics: observability.Sink,
	})
	if err != nil {
		closeQueue()
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	return &ServiceContainer{
		Store:         store,
		Queue:         queue,
		Modules:       runner,
		Registry:      registry,
		Orchestrator:  orchestrator,
		Projector:     service.NewResultProjector(nil),
		Audit:         audit,
		Notifier:      buildFailureNotifier(logger, deps.Config.Observability.Notifications),
		Observability: observability,
		closeQueue:    closeQueue,
	}, nil
}

// Close releases queue subscriptions and the StatsD socket.
func (c *ServiceContainer) Close() error {
	if c == nil {
		return nil
	}
	if c.closeQueue != nil {
		c.closeQueue()
	}
	if c.Observability.Statsd != nil {
		return c.Observability.Statsd.Close()
	}
	return nil
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services *ServiceContainer
	Logger   *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startMetricsServerIfEnabled starts the Prometheus listener if enabled.
func startMetricsServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeMetrics] {
		return nil
	}
	if deps.cfg.Config == nil || !deps.cfg.Config.IsMetricsEnabled() {
		deps.logger.Warn("metrics service requested but metrics listener is disabled")
		return nil
	}
	return StartMetricsServer(&MetricsServerConfig{
		Addr:   deps.cfg.Config.Observability.Metrics.Addr,
		Prom:   deps.cfg.Services.Observability.Prom,
		Logger: deps.logger,
		Ready:  storeReadiness(deps.cfg.Services.Store),
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error",
					"service", descriptor.name, "error", errMsg)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newWorkerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeWorker,
		name: "worker pool",
		start: func(ctx context.Context) error {
			svc := deps.cfg.Services
			return RunWorker(ctx, WorkerConfig{
				Store:    svc.Store,
				Queue:    svc.Queue,
				Modules:  svc.Modules,
				Config:   deps.cfg.Config.Worker,
				Logger:   deps.logger,
				Audit:    svc.Audit,
				Metrics:  svc.Observability.Sink,
				Notifier: svc.Notifier,
			})
		},
	}
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			svc := deps.cfg.Services
			return RunReaper(ctx, ReaperConfig{
				Store:       svc.Store,
				Queue:       svc.Queue,
				Config:      deps.cfg.Config.Reaper,
				AuditConfig: deps.cfg.Config.Audit,
				Audit:       svc.Audit,
				Logger:      deps.logger,
				Metrics:     svc.Observability.Sink,
				Notifier:    svc.Notifier,
			})
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newWorkerBackgroundService(deps),
		newReaperBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	MetricsServer *http.Server
	Background    []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		MetricsServer: startMetricsServerIfEnabled(deps),
		Background:    startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// It blocks until a shutdown signal arrives, ctx is cancelled, or a service fails.
func RunServicesWithShutdown(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil || cfg.Services == nil {
		return errors.New("service orchestration config missing AppConfig or services")
	}
	serviceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	return waitForShutdown(shutdownConfig{
		ctx:           serviceCtx,
		cancel:        cancel,
		errCh:         errCh,
		metricsServer: result.MetricsServer,
		logger:        logger,
		backgrounds:   result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	return errorChannelCapacity(enabled) + 1
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx           context.Context
	cancel        context.CancelFunc
	errCh         <-chan error
	metricsServer *http.Server
	logger        *slog.Logger
	backgrounds   []backgroundServiceHandle
}

// waitForShutdown waits for a shutdown signal, context cancellation or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		return gracefulStop(cfg)
	case <-cfg.ctx.Done():
		cfg.logger.Info("shutting down services...", "reason", cfg.ctx.Err())
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services. Workers stop claiming
// at once; in-flight jobs are left running for the reaper to redeliver.
func gracefulStop(cfg shutdownConfig) error {
	var stopErr error
	if cfg.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(cfg.ctx), shutdownWaitTimeout)
		defer cancel()
		stopErr = ShutdownMetricsServer(shutdownCtx, cfg.metricsServer, cfg.logger)
	}

	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	return stopErr
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
