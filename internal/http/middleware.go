package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	domainauth "github.com/kmn/visitor-kiosk/internal/domain/auth"
	"github.com/kmn/visitor-kiosk/internal/service"
)

// CorrelationHeader carries the request correlation id in both directions.
const CorrelationHeader = "X-Correlation-Id"

// SessionEngines resolves the session engine of a browser context.
type SessionEngines interface {
	Engine(ctx context.Context, contextID string, consoleContext bool) (*service.SessionEngine, error)
}

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &respWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
				slog.String("correlation_id", GetCorrelationID(r.Context())),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController reach Flush on the underlying writer.
func (w *respWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.ErrorContext(r.Context(), "panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Correlation propagates X-Correlation-Id, generating one when absent.
func Correlation() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(CorrelationHeader))
			if id == "" || len(id) > 128 {
				id = uuid.NewString()
			}
			w.Header().Set(CorrelationHeader, id)
			next.ServeHTTP(w, r.WithContext(SetCorrelationID(r.Context(), id)))
		})
	}
}

// KioskContextConfig configures the browser-context cookie.
type KioskContextConfig struct {
	CookieName        string
	CookieDomain      string
	MaxAge            time.Duration
	ConsolePathPrefix string
}

// KioskContextMiddleware assigns every browser a stable context id kept in a
// cookie. Requests from the admin console, by path or referrer, are marked
// so their sessions are not renewed by activity.
func KioskContextMiddleware(cfg KioskContextConfig) func(http.Handler) http.Handler {
	if cfg.CookieName == "" {
		cfg.CookieName = "kiosk_ctx"
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 365 * 24 * time.Hour
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""
			if c, err := r.Cookie(cfg.CookieName); err == nil {
				if parsed, perr := uuid.Parse(c.Value); perr == nil {
					id = parsed.String()
				}
			}
			if id == "" {
				id = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     cfg.CookieName,
					Value:    id,
					Path:     "/",
					Domain:   cfg.CookieDomain,
					HttpOnly: true,
					Secure:   r.TLS != nil || isForwardedHTTPS(r),
					SameSite: http.SameSiteLaxMode,
					MaxAge:   int(cfg.MaxAge / time.Second),
				})
			}

			kc := KioskContext{ID: id, Console: isConsoleRequest(r, cfg.ConsolePathPrefix)}
			next.ServeHTTP(w, r.WithContext(SetKioskContext(r.Context(), kc)))
		})
	}
}

func isConsoleRequest(r *http.Request, prefix string) bool {
	if prefix == "" {
		return false
	}
	if strings.HasPrefix(r.URL.Path, prefix) {
		return true
	}
	ref := r.Header.Get("Referer")
	if ref == "" {
		return false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return strings.HasPrefix(u.Path, prefix)
}

// RequireSession returns a middleware that requires a live session in the
// caller's browser context. The identity is added to the request context.
func RequireSession(engines SessionEngines) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := identityForRequest(w, r, engines)
			if !ok {
				return
			}
			next.ServeHTTP(w, r.WithContext(SetIdentityInContext(r.Context(), id)))
		})
	}
}

// RequireAdminLike returns a middleware that admits only admin and department_admin sessions.
func RequireAdminLike(engines SessionEngines) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := identityForRequest(w, r, engines)
			if !ok {
				return
			}
			if !id.Role.IsAdminLike() {
				WriteError(w, ErrorParams{
					Code:    http.StatusForbidden,
					ErrCode: "insufficient_permissions",
					Err:     errors.New("insufficient permissions"),
				})
				return
			}
			next.ServeHTTP(w, r.WithContext(SetIdentityInContext(r.Context(), id)))
		})
	}
}

// identityForRequest writes a 401 and returns false when the context has no live session.
func identityForRequest(w http.ResponseWriter, r *http.Request, engines SessionEngines) (*domainauth.Identity, bool) {
	kc, ok := GetKioskContext(r.Context())
	if ok {
		e, err := engines.Engine(r.Context(), kc.ID, kc.Console)
		if err == nil {
			if snap := e.Snapshot(); snap.State.HasSession() && snap.Identity != nil {
				return snap.Identity, true
			}
		}
	}
	WriteError(w, ErrorParams{
		Code:    http.StatusUnauthorized,
		ErrCode: "authentication_required",
		Err:     errors.New("authentication required"),
	})
	return nil, false
}
