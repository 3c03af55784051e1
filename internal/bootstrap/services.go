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

	"github.com/kmn/visitor-kiosk/config"
	redisstore "github.com/kmn/visitor-kiosk/internal/adapters/redis"
	"github.com/kmn/visitor-kiosk/internal/data"
	"github.com/kmn/visitor-kiosk/internal/facilitytime"
	"github.com/kmn/visitor-kiosk/internal/observability/notify/slack"
	"github.com/kmn/visitor-kiosk/internal/observability/statsd"
	"github.com/kmn/visitor-kiosk/internal/ports"
	"github.com/kmn/visitor-kiosk/internal/service"
	"github.com/kmn/visitor-kiosk/internal/service/failurenotifier"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Sessions      *service.SessionManager
	Pins          *service.PinAuthService
	AutoExit      *service.AutoExitTrigger
	Sweeps        *service.AutoExitSweepService
	Audit         *service.AuditDispatcher
	Employees     *data.EmployeeRepo
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink     *statsd.Client
	FailureNotifier *failurenotifier.Service
}

// Sink returns the metrics sink as an interface, nil when metrics are disabled.
//
//nolint:ireturn // callers take statsd.Sink and must see a true nil when disabled.
func (o ObservabilityContainer) Sink() statsd.Sink {
	if o.MetricsSink == nil {
		return nil
	}
	return o.MetricsSink
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	Visits    *data.VisitRepo
	Employees *data.EmployeeRepo
	EventLogs *data.EventLogRepo
	Slots     *redisstore.SessionSlotStore
	Remote    ports.RemoteCredentials
}

func buildObservability(logger *slog.Logger, cfg *config.AppConfig) ObservabilityContainer {
	var metricsSink *statsd.Client
	if cfg.Observability.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled:    true,
			Address:    cfg.Observability.Metrics.StatsdAddress,
			Prefix:     "kiosk",
			Logger:     logger,
			GlobalTags: map[string]string{"facility_tz": cfg.Facility.Timezone},
		})
		if err != nil {
			logger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:     metricsSink,
		FailureNotifier: buildFailureNotifier(logger, cfg),
	}
}

func buildFailureNotifier(logger *slog.Logger, cfg *config.AppConfig) *failurenotifier.Service {
	notifyLogger := logger.With("component", "failure_notifier")
	ncfg := cfg.Observability.Notifications
	if !ncfg.Enabled || !ncfg.Slack.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{Logger: notifyLogger})
	}

	var sinks []failurenotifier.SinkRegistration
	client, err := slack.NewClient(slack.Config{
		WebhookURL: ncfg.Slack.WebhookURL,
		Channel:    ncfg.Slack.Channel,
		Username:   ncfg.Slack.Username,
		Facility:   cfg.Facility.Timezone,
		Timeout:    ncfg.Timeout,
		RetryLimit: ncfg.RetryLimit,
	})
	if err != nil {
		logger.Error("failed to initialise slack notifier", "error", err)
	} else {
		sinks = append(sinks, failurenotifier.SinkRegistration{Name: "slack", Sink: client})
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger:   notifyLogger,
		Sinks:    sinks,
		Cooldown: ncfg.Cooldown,
	})
}

// buildRepositories builds the adapters backing service ports; no business rules here.
func buildRepositories(deps *ServiceDeps) *serviceRepositories {
	cfg := deps.Config
	repos := &serviceRepositories{
		Visits:    data.NewVisitRepo(deps.DB),
		Employees: data.NewEmployeeRepo(deps.DB),
		EventLogs: data.NewEventLogRepo(deps.DB),
		Slots: redisstore.NewSessionSlotStore(redisstore.SessionSlotStoreOptions{
			Client: deps.RedisClient,
			Prefix: cfg.Session.KeyPrefix,
			Logger: deps.Logger,
		}),
	}
	if cfg.Auth.RemoteCredentialEnabled {
		repos.Remote = redisstore.NewCredentialStore(deps.RedisClient, cfg.Session.CredentialPrefix)
	}
	return repos
}

func buildAuditDispatcher(
	repos *serviceRepositories,
	cfg config.AuditConfig,
	obs ObservabilityContainer,
	logger *slog.Logger,
) *service.AuditDispatcher {
	sinks := []ports.AuditSink{repos.EventLogs}
	if cfg.ForwardEnabled() {
		forwarder, err := service.NewHTTPAuditSink(service.HTTPAuditSinkOptions{
			URL:     cfg.ForwardURL,
			Body:    cfg.ForwardBody,
			Token:   cfg.ForwardToken,
			Timeout: cfg.Timeout,
		})
		if err != nil {
			logger.Error("audit forwarding disabled", "error", err)
		} else {
			sinks = append(sinks, forwarder)
		}
	}

	return service.NewAuditDispatcher(service.AuditDispatcherOptions{
		Sinks:     sinks,
		Logins:    repos.EventLogs,
		QueueSize: cfg.QueueSize,
		Workers:   cfg.Workers,
		Timeout:   cfg.Timeout,
		Logger:    logger,
		Metrics:   obs.Sink(),
	})
}

// NewServices wires repositories, adapters and services from configuration.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	if deps.DB == nil || deps.RedisClient == nil {
		return ServiceContainer{}, errors.New("database and redis are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
		deps.Logger = logger
	}
	cfg := deps.Config

	facilityZone, err := facilitytime.Load(cfg.Facility.Timezone)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("facility timezone: %w", err)
	}
	sweepZone, err := facilitytime.Load(cfg.AutoExit.SweepTimezone)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("sweep timezone: %w", err)
	}

	obs := buildObservability(logger, cfg)
	repos := buildRepositories(deps)
	audit := buildAuditDispatcher(repos, cfg.Audit, obs, logger)

	pins, err := service.NewPinAuthService(service.PinAuthServiceOptions{
		Lookup:            repos.Employees,
		Audit:             audit,
		Logger:            logger,
		Metric:            obs.Sink(),
		MinFailureLatency: cfg.Auth.MinFailureLatency,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("pin auth: %w", err)
	}

	sessions, err := service.NewSessionManager(service.SessionManagerOptions{
		Store:  repos.Slots,
		Remote: repos.Remote,
		Audit:  audit,
		Logger: logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("session manager: %w", err)
	}

	trigger, err := service.NewAutoExitTrigger(service.AutoExitTriggerOptions{
		Visits:     repos.Visits,
		Zone:       facilityZone,
		CutoffHour: cfg.Facility.CutoffHour,
		Logger:     logger,
		Metric:     obs.Sink(),
		Audit:      audit,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("auto-exit trigger: %w", err)
	}

	sweeps, err := service.NewAutoExitSweepService(service.AutoExitSweepServiceOptions{
		Visits:     repos.Visits,
		Zone:       sweepZone,
		CutoffHour: cfg.Facility.CutoffHour,
		Config:     cfg.AutoExit,
		Logger:     logger,
		Metrics:    obs.Sink(),
		Notifier:   obs.FailureNotifier,
		Audit:      audit,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("auto-exit sweep: %w", err)
	}

	return ServiceContainer{
		Sessions:      sessions,
		Pins:          pins,
		AutoExit:      trigger,
		Sweeps:        sweeps,
		Audit:         audit,
		Employees:     repos.Employees,
		Observability: obs,
	}, nil
}

// Close releases in-process services: engines first, then the audit queue
// they may still write to, then the metrics socket.
func (c ServiceContainer) Close(ctx context.Context) error {
	if c.Sessions != nil {
		c.Sessions.Close()
	}
	var errs []error
	if c.Audit != nil {
		if err := c.Audit.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain audit queue: %w", err))
		}
	}
	if err := c.Observability.MetricsSink.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close statsd: %w", err))
	}
	return errors.Join(errs...)
}

// ServiceOrchestrationConfig groups dependencies for RunServicesWithShutdown.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
const shutdownWaitTimeout = 15 * time.Second

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	name string
	done <-chan struct{}
}

func launchBackground(
	ctx context.Context,
	svc backgroundService,
	errCh chan<- error,
	logger *slog.Logger,
) backgroundServiceHandle {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := svc.start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errMsg := fmt.Errorf("%s failed: %w", svc.name, err)
			select {
			case errCh <- errMsg:
			default:
				logger.WarnContext(ctx, "dropping background service error", "service", svc.name, "error", errMsg)
			}
		}
	}()
	logger.InfoContext(ctx, "background service started", "service", svc.name, "mode", svc.mode)
	return backgroundServiceHandle{name: svc.name, done: done}
}

func buildBackgroundServices(services ServiceContainer) []backgroundService {
	return []backgroundService{
		{
			mode:  config.ServiceModeAutoExit,
			name:  "auto-exit sweeper",
			start: services.Sweeps.Run,
		},
	}
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

// RunServicesWithShutdown starts all enabled services and blocks until a
// shutdown signal arrives or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil {
		return errors.New("service orchestration config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, errorChannelBufferSize(enabled))

	var server *http.Server
	if enabled[config.ServiceModeHTTP] {
		server = StartHTTPServer(&HTTPServerConfig{
			Config:      cfg.Config,
			Services:    cfg.Services,
			DB:          cfg.DB,
			RedisClient: cfg.RedisClient,
			Logger:      logger,
			ErrCh:       errCh,
		})
	}

	var handles []backgroundServiceHandle
	for _, svc := range buildBackgroundServices(cfg.Services) {
		if !enabled[svc.mode] {
			continue
		}
		handles = append(handles, launchBackground(serviceCtx, svc, errCh, logger))
	}

	return waitForShutdown(shutdownConfig{
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  server,
		services:    cfg.Services,
		logger:      logger,
		backgrounds: handles,
	})
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	services    ServiceContainer
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
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

// gracefulStop stops the HTTP server, waits for background loops and then
// closes the in-process services.
func gracefulStop(cfg shutdownConfig) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownWaitTimeout)
	defer cancel()

	var errs []error
	if cfg.httpServer != nil {
		if err := ShutdownHTTPServer(ctx, cfg.httpServer, cfg.logger); err != nil {
			errs = append(errs, err)
		}
	}

	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	if err := cfg.services.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

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
