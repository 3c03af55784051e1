package httpx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const healthResponse = `{"status":"ok"}`

// healthHandler returns a simple 200 OK status for liveness checks.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, healthResponse); err != nil {
		// Nothing more to do if the client connection is gone.
		return
	}
}

// PingFunc checks one dependency.
type PingFunc func(ctx context.Context) error

// DependencyHealth reports readiness of Postgres, Redis and anything else registered.
type DependencyHealth struct {
	Checks  map[string]PingFunc
	Timeout time.Duration
	Logger  *slog.Logger
}

// ServeHTTP pings every dependency in parallel and answers 503 if any fails.
func (h *DependencyHealth) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		results = make(map[string]string, len(h.Checks))
	)
	// Each check gets the full timeout; one failure does not cancel the rest.
	var g errgroup.Group
	for name, ping := range h.Checks {
		g.Go(func() error {
			err := ping(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				results[name] = "error"
				if h.Logger != nil {
					h.Logger.WarnContext(ctx, "dependency unhealthy", "dependency", name, "error", err)
				}
				return err
			}
			results[name] = "ok"
			return nil
		})
	}

	status, code := "ok", http.StatusOK
	if err := g.Wait(); err != nil {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	WriteJSON(w, code, map[string]any{"status": status, "checks": results})
}
