package service

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"time"

	domainauth "github.com/kmn/visitor-kiosk/internal/domain/auth"
	"github.com/kmn/visitor-kiosk/internal/domain/model"
	apperrors "github.com/kmn/visitor-kiosk/internal/errors"
	"github.com/kmn/visitor-kiosk/internal/observability/metrics"
	"github.com/kmn/visitor-kiosk/internal/observability/statsd"
	"github.com/kmn/visitor-kiosk/internal/ports"
)

var pinPattern = regexp.MustCompile(`^[0-9]{4}$`)

// PinAuthServiceOptions groups dependencies for PinAuthService.
type PinAuthServiceOptions struct {
	Lookup ports.CredentialLookup // Required
	Audit  ports.AuditEmitter     // Optional
	Logger *slog.Logger           // Optional
	Metric statsd.Sink            // Optional

	// MinFailureLatency is the floor every failed verification waits for, measured from the call start.
	MinFailureLatency time.Duration
	// Now and Sleep are injectable for tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration)
}

// PinAuthService verifies 4-digit PINs against the credential store.
type PinAuthService struct {
	lookup     ports.CredentialLookup
	audit      ports.AuditEmitter
	logger     *slog.Logger
	metric     statsd.Sink
	minLatency time.Duration
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration)
}

// NewPinAuthService constructs a PinAuthService.
func NewPinAuthService(opts PinAuthServiceOptions) (*PinAuthService, error) {
	if opts.Lookup == nil {
		return nil, errors.New("CredentialLookup is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	return &PinAuthService{
		lookup:     opts.Lookup,
		audit:      opts.Audit,
		logger:     logger.With("component", "pin_auth"),
		metric:     opts.Metric,
		minLatency: max(opts.MinFailureLatency, 0),
		now:        opts.Now,
		sleep:      opts.Sleep,
	}, nil
}

// VerifyPin returns the identity for pin. Malformed input, no match, a
// disabled record and lookup failures all return the same InvalidCredential.
func (s *PinAuthService) VerifyPin(ctx context.Context, pin string) (domainauth.Identity, error) {
	start := s.now()

	if !pinPattern.MatchString(pin) {
		return domainauth.Identity{}, s.fail(ctx, start, "malformed", nil)
	}

	match, found, err := s.lookup.LookupPIN(ctx, pin)
	if err != nil {
		return domainauth.Identity{}, s.fail(ctx, start, "lookup_error", err)
	}
	if !found || !match.Identity.Role.Valid() || match.Identity.ID == "" {
		return domainauth.Identity{}, s.fail(ctx, start, "no_match", nil)
	}

	id := match.Identity
	metrics.EmitPinAttempt(s.metric, metrics.ResultSuccess, s.now().Sub(start))
	s.logger.InfoContext(ctx, "pin login", "user_id", id.ID, "role", id.Role)
	s.emitLogin(match)
	return id, nil
}

func (s *PinAuthService) fail(ctx context.Context, start time.Time, reason string, cause error) error {
	if cause != nil {
		s.logger.ErrorContext(ctx, "credential lookup failed", "error", cause)
	} else {
		s.logger.DebugContext(ctx, "pin rejected", "reason", reason)
	}

	if wait := s.minLatency - s.now().Sub(start); wait > 0 {
		s.sleep(ctx, wait)
	}
	metrics.EmitPinAttempt(s.metric, metrics.ResultDenied, s.now().Sub(start))
	return apperrors.InvalidCredential()
}

func (s *PinAuthService) emitLogin(match ports.CredentialMatch) {
	if s.audit == nil {
		return
	}
	id := match.Identity
	userType := match.UserType
	if userType == "" {
		userType = model.LoginUserEmployee
	}

	s.audit.EmitLogin(model.LoginRecord{
		UserName:       id.Name,
		UserType:       userType,
		DepartmentName: id.Department,
	})
	s.audit.Emit(model.EventLog{
		EventType: "auth.login",
		Level:     model.EventLevelAudit,
		Action:    model.StrPtr("login"),
		Actor: model.EventActor{
			Type:           model.StrPtr(string(userType)),
			ID:             model.StrPtr(id.ID),
			Name:           model.StrPtr(id.Name),
			DepartmentName: id.Department,
		},
		Source: model.EventSourceServer,
	})
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
