package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kmn/visitor-kiosk/internal/domain/model"
	apperrors "github.com/kmn/visitor-kiosk/internal/errors"
	"github.com/kmn/visitor-kiosk/internal/service"
)

// SweepService is the server-side auto-exit surface used by the handlers.
type SweepService interface {
	Authorize(header string) error
	Sweep(ctx context.Context, trigger string) (model.SweepResult, error)
	SystemExits(ctx context.Context, opts model.SystemExitListOptions) ([]model.Visit, error)
}

// VisitHandlers exposes the auto-exit operations.
type VisitHandlers struct {
	AutoExit AutoExitRunner
	Sweeps   SweepService
	Logger   *slog.Logger
}

func (h *VisitHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// AutoExitToday closes today's open visits if the facility cutoff has passed.
// POST /api/visits/auto-exit/today.
func (h *VisitHandlers) AutoExitToday(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.AutoExit.Run(r.Context())
	if err != nil {
		h.logger().ErrorContext(r.Context(), "auto-exit today failed", "error", err)
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, outcome)
}

// Cron runs the sweep for an external scheduler. When a cron secret is
// configured the caller must send it as a bearer token.
// GET|POST /api/cron/auto-exit.
func (h *VisitHandlers) Cron(w http.ResponseWriter, r *http.Request) {
	if err := h.Sweeps.Authorize(r.Header.Get("Authorization")); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "unauthorized", Err: errors.New("unauthorized")})
		return
	}

	res, err := h.Sweeps.Sweep(r.Context(), service.TriggerCron)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "cron auto-exit failed", "error", err)
		WriteJSON(w, StatusForError(err), map[string]any{
			"success":   false,
			"error":     res.Message,
			"timestamp": res.Timestamp,
		})
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

// SystemExits lists visits closed by the system.
// GET /api/visits/system-exits?from=RFC3339&to=RFC3339&limit=N.
func (h *VisitHandlers) SystemExits(w http.ResponseWriter, r *http.Request) {
	opts, err := parseSystemExitQuery(r)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	visits, err := h.Sweeps.SystemExits(r.Context(), opts)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	if visits == nil {
		visits = []model.Visit{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"visits": visits, "count": len(visits)})
}

func parseSystemExitQuery(r *http.Request) (model.SystemExitListOptions, error) {
	q := r.URL.Query()
	var opts model.SystemExitListOptions

	for _, p := range []struct {
		key string
		dst *time.Time
	}{{"from", &opts.From}, {"to", &opts.To}} {
		raw := q.Get(p.key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return opts, apperrors.ValidationField(p.key, p.key+" must be an RFC3339 timestamp")
		}
		*p.dst = t
	}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return opts, apperrors.ValidationField("limit", "limit must be a positive integer")
		}
		opts.Limit = n
	}
	return opts, nil
}
