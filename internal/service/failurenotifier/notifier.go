// Package failurenotifier fans background-task failures out to chat sinks,
// suppressing repeats of the same failure inside a cooldown window.
package failurenotifier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kmn/visitor-kiosk/internal/clock"
	"github.com/kmn/visitor-kiosk/internal/observability/notify"
)

// SinkRegistration names a sink for logs.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures Service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// Cooldown suppresses a failure with the same task and error class until it
	// elapses. Zero delivers every failure.
	Cooldown time.Duration
	Clock    clock.Clock // Optional
}

// Service delivers failure payloads to every registered sink.
type Service struct {
	logger   *slog.Logger
	sinks    []SinkRegistration
	cooldown time.Duration
	clock    clock.Clock

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewService drops nil sinks. A Service with no sinks is valid and silent.
func NewService(opts Options) *Service {
	s := &Service{
		logger:   opts.Logger,
		cooldown: opts.Cooldown,
		clock:    opts.Clock,
		lastSent: make(map[string]time.Time),
	}
	if s.logger == nil {
		s.logger = slog.Default().With("component", "failure_notifier")
	}
	if s.clock == nil {
		s.clock = clock.Real{}
	}
	for _, reg := range opts.Sinks {
		if reg.Sink == nil {
			continue
		}
		if reg.Name == "" {
			reg.Name = "sink"
		}
		s.sinks = append(s.sinks, reg)
	}
	return s
}

// Enabled reports whether any sink is registered.
func (s *Service) Enabled() bool {
	return s != nil && len(s.sinks) > 0
}

// NotifyFailure delivers payload to all sinks concurrently and returns once
// each has finished. Delivery errors are logged, never returned.
func (s *Service) NotifyFailure(ctx context.Context, payload notify.FailurePayload) {
	if !s.Enabled() {
		return
	}
	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}
	if payload.OccurredAt.IsZero() {
		payload.OccurredAt = s.clock.Now()
	}
	if s.suppressed(payload) {
		s.logger.DebugContext(ctx, "failure notification suppressed",
			"task", payload.Task, "error_class", payload.ErrorClass)
		return
	}

	var g errgroup.Group
	for _, reg := range s.sinks {
		g.Go(func() error {
			if err := reg.Sink.SendFailure(ctx, payload); err != nil {
				s.logger.ErrorContext(ctx, "failure notification not delivered",
					"sink", reg.Name,
					"task", payload.Task,
					"error", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// suppressed records the send time and reports whether an identical failure
// went out within the cooldown.
func (s *Service) suppressed(p notify.FailurePayload) bool {
	if s.cooldown <= 0 {
		return false
	}
	key := p.Task + "|" + p.ErrorClass
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastSent[key]; ok && now.Sub(last) < s.cooldown {
		return true
	}
	s.lastSent[key] = now
	return false
}
