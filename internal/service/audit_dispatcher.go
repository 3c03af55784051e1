package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kmn/visitor-kiosk/internal/domain/model"
	apperrors "github.com/kmn/visitor-kiosk/internal/errors"
	"github.com/kmn/visitor-kiosk/internal/observability/metrics"
	"github.com/kmn/visitor-kiosk/internal/observability/statsd"
	"github.com/kmn/visitor-kiosk/internal/ports"
)

var _ ports.AuditEmitter = (*AuditDispatcher)(nil)

// AuditDispatcherOptions configures the audit dispatcher.
type AuditDispatcherOptions struct {
	Sinks     []ports.AuditSink   // Event destinations; nil entries are skipped
	Logins    ports.LoginRecorder // Optional: user_logs writer
	QueueSize int                 // Defaults to 256
	Workers   int                 // Defaults to 2
	Timeout   time.Duration       // Per-delivery timeout, defaults to 5s
	Logger    *slog.Logger
	Metrics   statsd.Sink
	Now       func() time.Time
}

type auditItem struct {
	event *model.EventLog
	login *model.LoginRecord
}

// AuditDispatcher delivers audit events in the background. Emit never blocks:
// when the queue is full the event is dropped and logged.
type AuditDispatcher struct {
	sinks   []ports.AuditSink
	logins  ports.LoginRecorder
	timeout time.Duration
	logger  *slog.Logger
	metrics statsd.Sink
	now     func() time.Time

	mu     sync.RWMutex
	queue  chan auditItem
	closed bool
	wg     sync.WaitGroup
}

// NewAuditDispatcher constructs a dispatcher and starts its workers.
func NewAuditDispatcher(opts AuditDispatcherOptions) *AuditDispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	var sinks []ports.AuditSink
	for _, s := range opts.Sinks {
		if s != nil {
			sinks = append(sinks, s)
		}
	}

	d := &AuditDispatcher{
		sinks:   sinks,
		logins:  opts.Logins,
		timeout: opts.Timeout,
		logger:  logger.With("component", "audit_dispatcher"),
		metrics: opts.Metrics,
		now:     opts.Now,
		queue:   make(chan auditItem, opts.QueueSize),
	}
	for range opts.Workers {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Emit queues ev for delivery. It fills in the correlation id and timestamp
// and normalizes level and source.
func (d *AuditDispatcher) Emit(ev model.EventLog) {
	ev.Normalize()
	if ev.CorrelationID == "" {
		ev.CorrelationID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = d.now()
	}
	d.enqueue(auditItem{event: &ev}, "event")
}

// EmitLogin queues a login record for the user_logs table.
func (d *AuditDispatcher) EmitLogin(rec model.LoginRecord) {
	if d.logins == nil {
		return
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = d.now()
	}
	d.enqueue(auditItem{login: &rec}, "login")
}

func (d *AuditDispatcher) enqueue(item auditItem, kind string) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Debug("audit dispatcher closed, dropping", "kind", kind)
		return
	}
	select {
	case d.queue <- item:
	default:
		metrics.EmitAuditDrop(d.metrics, kind)
		d.logger.Warn("audit queue full, dropping",
			"kind", kind,
			"error", apperrors.AuditLogFailure(errors.New("queue full")),
		)
	}
}

func (d *AuditDispatcher) worker() {
	defer d.wg.Done()
	for item := range d.queue {
		d.deliver(item)
	}
}

func (d *AuditDispatcher) deliver(item auditItem) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if item.login != nil {
		if err := d.logins.RecordLogin(ctx, *item.login); err != nil {
			d.logger.DebugContext(ctx, "record login", "error", apperrors.AuditLogFailure(err))
		}
		return
	}
	for _, s := range d.sinks {
		if err := s.WriteEvent(ctx, *item.event); err != nil {
			d.logger.DebugContext(ctx, "write audit event",
				"event_type", item.event.EventType,
				"error", apperrors.AuditLogFailure(err),
			)
		}
	}
}

// Close stops accepting events and waits for queued ones to drain, or for ctx.
func (d *AuditDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
