package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kmn/visitor-kiosk/config"
	"github.com/kmn/visitor-kiosk/internal/clock"
	"github.com/kmn/visitor-kiosk/internal/domain/model"
	apperrors "github.com/kmn/visitor-kiosk/internal/errors"
	"github.com/kmn/visitor-kiosk/internal/facilitytime"
	obserrors "github.com/kmn/visitor-kiosk/internal/observability/errors"
	"github.com/kmn/visitor-kiosk/internal/observability/metrics"
	"github.com/kmn/visitor-kiosk/internal/observability/notify"
	"github.com/kmn/visitor-kiosk/internal/observability/statsd"
	"github.com/kmn/visitor-kiosk/internal/ports"
)

// Sweep triggers, used for metrics and notifications.
const (
	TriggerSchedule = "schedule"
	TriggerCron     = "cron"
	TriggerCLI      = "cli"
)

const (
	sweepTask             = "auto_exit_sweep"
	defaultSystemExitSpan = 24 * time.Hour
	defaultSystemExitRows = 100
	maxSystemExitRows     = 1000
)

// FailureNotifier receives sweep failures. *failurenotifier.Service satisfies it.
type FailureNotifier interface {
	NotifyFailure(ctx context.Context, payload notify.FailurePayload)
}

// AutoExitSweepServiceOptions groups dependencies for AutoExitSweepService.
type AutoExitSweepServiceOptions struct {
	Visits     ports.VisitRepository // Required: visit store
	Zone       *facilitytime.Zone    // Required: zone in which entry dates are evaluated
	CutoffHour int                   // Required: 0-23
	Config     config.AutoExitConfig // Required: interval, timeout, batch size, cron secret
	Clock      clock.Clock           // Optional
	Logger     *slog.Logger          // Optional: structured logger
	Metrics    statsd.Sink           // Optional: metrics sink (StatsD-compatible)
	Notifier   FailureNotifier       // Optional: failure fan-out
	Audit      ports.AuditEmitter    // Optional
}

// AutoExitSweepService closes every visit left open past its entry day's
// cutoff. It runs on a schedule, from the cron endpoint and from the CLI.
type AutoExitSweepService struct {
	visits     ports.VisitRepository
	zone       *facilitytime.Zone
	cutoffHour int
	config     config.AutoExitConfig
	clock      clock.Clock
	logger     *slog.Logger
	metrics    statsd.Sink
	notifier   FailureNotifier
	audit      ports.AuditEmitter

	group singleflight.Group
}

// NewAutoExitSweepService constructs a new AutoExitSweepService.
func NewAutoExitSweepService(opts AutoExitSweepServiceOptions) (*AutoExitSweepService, error) {
	if opts.Visits == nil {
		return nil, errors.New("VisitRepository is required")
	}
	if opts.Zone == nil {
		return nil, errors.New("sweep zone is required")
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
	if opts.Config.BatchSize <= 0 {
		opts.Config.BatchSize = 500
	}
	if opts.Config.Interval <= 0 {
		opts.Config.Interval = 15 * time.Minute
	}

	logger = logger.With("component", "auto_exit_sweep")
	logger.Debug("AutoExitSweepService initialized",
		"interval", opts.Config.Interval,
		"zone", opts.Zone.Name(),
		"cutoff_hour", opts.CutoffHour,
		"batch_size", opts.Config.BatchSize,
		"cron_secret", opts.Config.CronSecretEnabled(),
	)

	return &AutoExitSweepService{
		visits:     opts.Visits,
		zone:       opts.Zone,
		cutoffHour: opts.CutoffHour,
		config:     opts.Config,
		clock:      opts.Clock,
		logger:     logger,
		metrics:    opts.Metrics,
		notifier:   opts.Notifier,
		audit:      opts.Audit,
	}, nil
}

// Authorize checks an Authorization header against the configured cron
// secret. Without a secret every caller is allowed.
func (s *AutoExitSweepService) Authorize(header string) error {
	if !s.config.CronSecretEnabled() {
		return nil
	}
	token, ok := strings.CutPrefix(strings.TrimSpace(header), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(s.config.CronSecret)) != 1 {
		return apperrors.Unauthorized("invalid cron secret")
	}
	return nil
}

// Sweep closes open visits whose system exit time has passed. Concurrent
// calls share one run.
func (s *AutoExitSweepService) Sweep(ctx context.Context, trigger string) (model.SweepResult, error) {
	v, err, _ := s.group.Do(sweepTask, func() (any, error) {
		return s.sweep(ctx, trigger)
	})
	if err != nil {
		failed := model.SweepResult{Success: false, Message: "Failed to auto-exit visits.", Timestamp: s.clock.Now()}
		if isContextCancellation(err) {
			return failed, err
		}
		return failed, apperrors.AutoExitUpdateFailure(err)
	}
	res, _ := v.(model.SweepResult)
	return res, nil
}

func (s *AutoExitSweepService) sweep(ctx context.Context, trigger string) (model.SweepResult, error) {
	start := s.clock.Now()
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	open, err := s.visits.ListOpen(ctx)
	if err != nil {
		return s.fail(ctx, trigger, start, 0, fmt.Errorf("list open visits: %w", err))
	}

	// Visits whose exit time is still ahead are in progress and stay open.
	now := s.clock.Now()
	closed := make([]model.Visit, 0, len(open))
	for _, v := range open {
		if !v.IsOpen() {
			continue
		}
		exit := s.ExitTimeFor(v.EntryTime)
		if exit.After(now) {
			continue
		}
		closed = append(closed, v.CloseBySystem(exit))
	}
	if len(closed) == 0 {
		s.emitMetrics(trigger, metrics.ResultNoop, 0, start, nil)
		return model.SweepResult{Success: true, Message: "No active visits to exit.", Timestamp: s.clock.Now()}, nil
	}

	var written int64
	for lo := 0; lo < len(closed); lo += s.config.BatchSize {
		hi := min(lo+s.config.BatchSize, len(closed))
		n, upsertErr := s.visits.UpsertClosed(ctx, closed[lo:hi])
		written += n
		if upsertErr != nil {
			return s.fail(ctx, trigger, start, len(closed), fmt.Errorf("upsert visits: %w", upsertErr))
		}
		if ctx.Err() != nil {
			return s.fail(ctx, trigger, start, len(closed), ctx.Err())
		}
	}

	s.logger.InfoContext(ctx, "auto-exit sweep finished",
		"trigger", trigger,
		"candidates", len(closed),
		"closed", written,
	)
	s.emitMetrics(trigger, metrics.ResultSuccess, written, start, nil)
	s.emitAudit(trigger, written)

	return model.SweepResult{
		Success:   true,
		Message:   fmt.Sprintf("Auto-exited %d visits.", written),
		Count:     int(written),
		Timestamp: s.clock.Now(),
	}, nil
}

// ExitTimeFor returns the system exit time for a visit that entered at entry:
// the cutoff hour on the entry date, or 23:59:59 of that date when the visit
// entered after the cutoff. It never precedes entry.
func (s *AutoExitSweepService) ExitTimeFor(entry time.Time) time.Time {
	target := s.zone.CutoffOn(entry, s.cutoffHour)
	if target.Before(entry) {
		target = s.zone.EndOfDay(entry)
	}
	if target.Before(entry) {
		target = entry
	}
	return target
}

// SystemExits lists visits closed by the system. A zero range defaults to
// the last 24 hours.
func (s *AutoExitSweepService) SystemExits(ctx context.Context, opts model.SystemExitListOptions) ([]model.Visit, error) {
	if opts.To.IsZero() {
		opts.To = s.clock.Now()
	}
	if opts.From.IsZero() {
		opts.From = opts.To.Add(-defaultSystemExitSpan)
	}
	if !opts.From.Before(opts.To) {
		return nil, apperrors.ValidationField("from", "from must be before to")
	}
	switch {
	case opts.Limit <= 0:
		opts.Limit = defaultSystemExitRows
	case opts.Limit > maxSystemExitRows:
		opts.Limit = maxSystemExitRows
	}
	return s.visits.ListSystemExits(ctx, opts)
}

// Run starts the sweep loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *AutoExitSweepService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting auto-exit sweep service", "interval", s.config.Interval)

	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if _, err := s.Sweep(ctx, TriggerSchedule); err != nil {
		s.logSweepError(ctx, err, "initial sweep")
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "auto-exit sweep service stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sweep(ctx, TriggerSchedule); err != nil {
				s.logSweepError(ctx, err, "sweep")
			}
		}
	}
}

// waitWithJitter adds a random delay up to 10% of the interval so replicas started together spread out.
func (s *AutoExitSweepService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	t := time.NewTimer(jitter)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (s *AutoExitSweepService) fail(
	ctx context.Context,
	trigger string,
	start time.Time,
	candidates int,
	err error,
) (model.SweepResult, error) {
	s.emitMetrics(trigger, metrics.ResultError, 0, start, err)
	if !isContextCancellation(err) && s.notifier != nil {
		// The run context may be the one that failed; delivery gets its own budget.
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		s.notifier.NotifyFailure(nctx, notify.FailurePayload{
			Task:       sweepTask,
			Trigger:    trigger,
			Error:      err.Error(),
			ErrorClass: obserrors.Classify(err),
			OccurredAt: s.clock.Now(),
			Metadata: map[string]string{
				"candidates": strconv.Itoa(candidates),
				"zone":       s.zone.Name(),
			},
		})
	}
	return model.SweepResult{}, err
}

func (s *AutoExitSweepService) emitMetrics(trigger, result string, closed int64, start time.Time, err error) {
	metrics.EmitAutoExit(s.metrics, metrics.SweepMetric{
		Trigger:  trigger,
		Result:   result,
		Closed:   closed,
		Duration: s.clock.Now().Sub(start),
		Err:      err,
	})
	if s.metrics != nil && err == nil {
		s.metrics.Gauge("auto_exit.last_success_epoch", float64(s.clock.Now().Unix()), nil)
	}
}

func (s *AutoExitSweepService) emitAudit(trigger string, closed int64) {
	if s.audit == nil || closed == 0 {
		return
	}
	s.audit.Emit(model.EventLog{
		EventType: "visit.auto_exit",
		Level:     model.EventLevelAudit,
		Action:    model.StrPtr("auto_exit"),
		Actor:     model.EventActor{Type: model.StrPtr("system")},
		Resource:  model.EventResource{Type: model.StrPtr("visit")},
		Source:    model.EventSourceServer,
		Context:   auditContext(map[string]any{"count": closed, "trigger": trigger}),
	})
}

func (s *AutoExitSweepService) logSweepError(ctx context.Context, err error, label string) {
	if isContextCancellation(err) {
		s.logger.DebugContext(ctx, label+" cancelled by context", "error", err)
		return
	}
	s.logger.ErrorContext(ctx, label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func auditContext(fields map[string]any) json.RawMessage {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil
	}
	return raw
}
