package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kmn/visitor-kiosk/internal/clock"
	"github.com/kmn/visitor-kiosk/internal/domain/model"
	apperrors "github.com/kmn/visitor-kiosk/internal/errors"
	"github.com/kmn/visitor-kiosk/internal/facilitytime"
	"github.com/kmn/visitor-kiosk/internal/observability/metrics"
	"github.com/kmn/visitor-kiosk/internal/observability/statsd"
	"github.com/kmn/visitor-kiosk/internal/ports"
)

// SkippedBeforeCutoff is reported when the trigger runs before the cutoff hour.
const SkippedBeforeCutoff = "before_cutoff"

// AutoExitTriggerOptions groups dependencies for AutoExitTrigger.
type AutoExitTriggerOptions struct {
	Visits     ports.VisitRepository // Required
	Zone       *facilitytime.Zone    // Required: facility time zone
	CutoffHour int                   // 0-23
	Clock      clock.Clock           // Optional
	Logger     *slog.Logger          // Optional
	Metric     statsd.Sink           // Optional
	Audit      ports.AuditEmitter    // Optional
}

// AutoExitTrigger closes today's open visits at the facility cutoff. It is
// invoked once per authenticated mount.
type AutoExitTrigger struct {
	visits     ports.VisitRepository
	zone       *facilitytime.Zone
	cutoffHour int
	clock      clock.Clock
	logger     *slog.Logger
	metric     statsd.Sink
	audit      ports.AuditEmitter
}

// NewAutoExitTrigger constructs an AutoExitTrigger.
func NewAutoExitTrigger(opts AutoExitTriggerOptions) (*AutoExitTrigger, error) {
	if opts.Visits == nil {
		return nil, errors.New("VisitRepository is required")
	}
	if opts.Zone == nil {
		return nil, errors.New("facility zone is required")
	}
	if opts.CutoffHour < 0 || opts.CutoffHour > 23 {
		return nil, apperrors.Validationf("cutoff hour %d out of range", opts.CutoffHour)
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AutoExitTrigger{
		visits:     opts.Visits,
		zone:       opts.Zone,
		cutoffHour: opts.CutoffHour,
		clock:      opts.Clock,
		logger:     logger.With("component", "auto_exit_trigger", "zone", opts.Zone.Name()),
		metric:     opts.Metric,
		audit:      opts.Audit,
	}, nil
}

// Run closes open visits that entered today (facility time) with exit time at
// today's cutoff. Before the cutoff hour it does nothing. Re-running is
// harmless: already closed visits no longer match.
func (t *AutoExitTrigger) Run(ctx context.Context) (model.AutoExitOutcome, error) {
	started := t.clock.Now()
	now := started

	if !t.zone.AtOrPastCutoff(now, t.cutoffHour) {
		metrics.EmitAutoExit(t.metric, metrics.SweepMetric{Trigger: "mount", Result: metrics.ResultNoop})
		return model.AutoExitOutcome{Skipped: SkippedBeforeCutoff}, nil
	}

	start, end := t.zone.DayBounds(now)
	cutoff := t.zone.CutoffOn(now, t.cutoffHour)
	window := model.VisitWindow{Start: start, End: end}
	out := model.AutoExitOutcome{Ran: true, Cutoff: cutoff, Window: window}

	closed, err := t.visits.CloseOpenInWindow(ctx, model.CloseOpenVisitsRequest{Window: window, ExitTime: cutoff})
	if err != nil {
		wrapped := apperrors.AutoExitUpdateFailure(err)
		t.logger.ErrorContext(ctx, "auto-exit update failed",
			"window_start", start, "window_end", end, "error", err)
		metrics.EmitAutoExit(t.metric, metrics.SweepMetric{
			Trigger: "mount", Result: metrics.ResultError, Err: err, Duration: t.clock.Now().Sub(started),
		})
		return out, wrapped
	}

	out.Closed = closed
	result := metrics.ResultNoop
	if closed > 0 {
		result = metrics.ResultSuccess
		t.logger.InfoContext(ctx, "auto-exited visits", "count", closed, "cutoff", cutoff)
		t.emitAudit(closed, cutoff)
	}
	metrics.EmitAutoExit(t.metric, metrics.SweepMetric{
		Trigger: "mount", Result: result, Closed: closed, Duration: t.clock.Now().Sub(started),
	})
	return out, nil
}

func (t *AutoExitTrigger) emitAudit(closed int64, cutoff time.Time) {
	if t.audit == nil {
		return
	}
	t.audit.Emit(model.EventLog{
		EventType: "visit.auto_exit",
		Level:     model.EventLevelAudit,
		Action:    model.StrPtr("auto_exit"),
		Actor:     model.EventActor{Type: model.StrPtr("system")},
		Resource:  model.EventResource{Type: model.StrPtr("visit")},
		Source:    model.EventSourceTrigger,
		Context:   auditContext(map[string]any{"count": closed, "cutoff": cutoff}),
	})
}
