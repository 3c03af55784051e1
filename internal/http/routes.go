package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/kmn/visitor-kiosk/internal/ports"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Sessions SessionEngines
	Pins     PinVerifier
	AutoExit AutoExitRunner
	Sweeps   SweepService
	Audit    ports.AuditEmitter
	Health   *DependencyHealth // optional; /healthz/deps is not served without it

	Context      KioskContextConfig
	CookieDomain string
	CSRFEnabled  bool
	SSEHeartbeat time.Duration
	Logger       *slog.Logger
}

// NewRouter creates and configures the HTTP router with its middleware chain.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	csrf := func(h http.Handler) http.Handler { return h }
	if services.CSRFEnabled {
		csrf = CSRFProtection(CSRFConfig{CookieDomain: services.CookieDomain})
	}

	authHandlers := &AuthHandlers{
		Sessions: services.Sessions,
		Pins:     services.Pins,
		AutoExit: services.AutoExit,
		Logger:   logger.With("component", "http_auth"),
	}
	registerAuthRoutes(mux, authHandlers, csrf)
	mux.Handle("GET /auth/events", &SessionEventStream{
		Sessions:  services.Sessions,
		Heartbeat: services.SSEHeartbeat,
		Logger:    logger,
	})

	visitHandlers := &VisitHandlers{
		AutoExit: services.AutoExit,
		Sweeps:   services.Sweeps,
		Logger:   logger.With("component", "http_visits"),
	}
	registerVisitRoutes(mux, visitHandlers, visitRouteConfig{Sessions: services.Sessions, CSRF: csrf})

	mux.Handle("POST /api/logs", http.HandlerFunc((&LogHandlers{Audit: services.Audit}).Ingest))

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	if services.Health != nil {
		mux.Handle("GET /healthz/deps", services.Health)
	}

	ctxCfg := services.Context
	if ctxCfg.CookieDomain == "" {
		ctxCfg.CookieDomain = services.CookieDomain
	}

	var handler http.Handler = mux
	handler = KioskContextMiddleware(ctxCfg)(handler)
	handler = Logging(logger)(handler)
	handler = Correlation()(handler)
	handler = Recover(logger)(handler)
	return handler
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers, csrf func(http.Handler) http.Handler) {
	mux.Handle("POST /auth/mount", csrf(http.HandlerFunc(h.Mount)))
	mux.Handle("POST /auth/pin", csrf(http.HandlerFunc(h.Pin)))
	mux.Handle("GET /auth/session", csrf(http.HandlerFunc(h.Session)))
	mux.Handle("POST /auth/extend", csrf(http.HandlerFunc(h.Extend)))
	mux.Handle("POST /auth/activity", csrf(http.HandlerFunc(h.Activity)))
	mux.Handle("POST /auth/logout", csrf(http.HandlerFunc(h.Logout)))
}

// visitRouteConfig holds middleware for visit route registration.
type visitRouteConfig struct {
	Sessions SessionEngines
	CSRF     func(http.Handler) http.Handler
}

func registerVisitRoutes(mux *http.ServeMux, h *VisitHandlers, cfg visitRouteConfig) {
	if h.AutoExit != nil {
		signedIn := RequireSession(cfg.Sessions)
		mux.Handle("POST /api/visits/auto-exit/today", cfg.CSRF(signedIn(http.HandlerFunc(h.AutoExitToday))))
	}
	if h.Sweeps != nil {
		// Bearer-gated for external schedulers; no cookies involved.
		mux.HandleFunc("GET /api/cron/auto-exit", h.Cron)
		mux.HandleFunc("POST /api/cron/auto-exit", h.Cron)
		mux.Handle("GET /api/visits/system-exits", RequireAdminLike(cfg.Sessions)(http.HandlerFunc(h.SystemExits)))
	}
}
