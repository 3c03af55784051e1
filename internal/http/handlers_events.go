package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	domainauth "github.com/kmn/visitor-kiosk/internal/domain/auth"
	"github.com/kmn/visitor-kiosk/internal/service"
)

// eventBuffer holds events for a slow reader; countdown ticks beyond it are dropped.
const eventBuffer = 16

// SessionEventStream serves state changes and countdown ticks of the caller's
// session as server-sent events. The stream ends after an expiry so the
// client reconnects to a fresh engine.
type SessionEventStream struct {
	Sessions  SessionEngines
	Heartbeat time.Duration
	Logger    *slog.Logger
}

// ServeHTTP handles GET /auth/events.
func (h *SessionEventStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	kc, ok := GetKioskContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "missing_context", Err: errMissingContext})
		return
	}
	e, err := h.Sessions.Engine(r.Context(), kc.ID, kc.Console)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusServiceUnavailable, ErrCode: "session_unavailable", Err: err})
		return
	}

	events := make(chan service.SessionEvent, eventBuffer)
	unsubscribe := e.Subscribe(func(ev service.SessionEvent) {
		select {
		case events <- ev:
		default:
		}
	})
	defer unsubscribe()

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	snap := e.Snapshot()
	if err := h.send(w, rc, service.SessionEvent{
		State:            snap.State,
		Identity:         snap.Identity,
		ExpiresAt:        snap.ExpiresAt,
		RemainingSeconds: snap.RemainingSeconds,
	}); err != nil {
		return
	}

	heartbeat := h.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			if err := h.send(w, rc, ev); err != nil {
				h.logger().DebugContext(r.Context(), "session stream closed", "error", err)
				return
			}
			if ev.State == domainauth.StateExpired {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func (h *SessionEventStream) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *SessionEventStream) send(w http.ResponseWriter, rc *http.ResponseController, ev service.SessionEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	buf.WriteString("event: session\ndata: ")
	buf.Write(data)
	buf.WriteString("\n\n")
	if _, err := buf.WriteTo(w); err != nil {
		return err
	}
	if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}
