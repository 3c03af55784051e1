package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kmn/visitor-kiosk/config"
	httpx "github.com/kmn/visitor-kiosk/internal/http"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB               // Optional: enables the postgres readiness check
	RedisClient redis.UniversalClient // Optional: enables the redis readiness check
	Logger      *slog.Logger
	ErrCh       chan<- error // Optional: receives listener failures
}

// StartHTTPServer creates and starts the HTTP server.
// Returns the server instance for graceful shutdown.
func StartHTTPServer(cfg *HTTPServerConfig) *http.Server {
	if cfg == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	handler := httpx.NewRouter(routerServices(cfg, appCfg, logger))
	return startServer(logger, handler, appCfg.HTTP.Addr, cfg.ErrCh)
}

func routerServices(cfg *HTTPServerConfig, appCfg *config.AppConfig, logger *slog.Logger) httpx.RouterServices {
	services := httpx.RouterServices{
		Sessions: cfg.Services.Sessions,
		Pins:     cfg.Services.Pins,
		Health:   dependencyHealth(cfg.DB, cfg.RedisClient, logger),
		Context: httpx.KioskContextConfig{
			CookieName:        appCfg.Session.ContextCookie,
			CookieDomain:      appCfg.HTTP.CookieDomain,
			MaxAge:            appCfg.Session.ContextMaxAge,
			ConsolePathPrefix: appCfg.Session.ConsolePathPrefix,
		},
		CookieDomain: appCfg.HTTP.CookieDomain,
		CSRFEnabled:  appCfg.HTTP.CSRFEnabled,
		SSEHeartbeat: time.Duration(appCfg.HTTP.SSEHeartbeatSeconds) * time.Second,
		Logger:       logger,
	}
	// Interface fields stay nil rather than holding typed-nil pointers.
	if cfg.Services.AutoExit != nil {
		services.AutoExit = cfg.Services.AutoExit
	}
	if cfg.Services.Sweeps != nil {
		services.Sweeps = cfg.Services.Sweeps
	}
	if cfg.Services.Audit != nil {
		services.Audit = cfg.Services.Audit
	}
	return services
}

func dependencyHealth(db *sql.DB, client redis.UniversalClient, logger *slog.Logger) *httpx.DependencyHealth {
	checks := map[string]httpx.PingFunc{}
	if db != nil {
		checks["postgres"] = db.PingContext
	}
	if client != nil {
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	if len(checks) == 0 {
		return nil
	}
	return &httpx.DependencyHealth{Checks: checks, Timeout: 2 * time.Second, Logger: logger}
}

func startServer(logger *slog.Logger, handler http.Handler, addr string, errCh chan<- error) *http.Server {
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}

	baseCtx, cancelBase := context.WithCancel(context.Background())
	server := &http.Server{
		Addr:              addr,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No write deadline: /auth/events holds the response open for the life of a session.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}
	// Shutdown does not cancel in-flight requests; event streams watch this context.
	server.RegisterOnShutdown(cancelBase)

	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			if errCh != nil {
				select {
				case errCh <- fmt.Errorf("http server: %w", err):
				default:
				}
			}
		}
	}()

	return server
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	if server == nil {
		return nil
	}
	if logger != nil {
		logger.Info("shutting down HTTP server")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if logger != nil {
		logger.Info("HTTP server stopped")
	}
	return nil
}
