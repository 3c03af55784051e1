package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/kmn/visitor-kiosk/internal/clock"
	domainauth "github.com/kmn/visitor-kiosk/internal/domain/auth"
	"github.com/kmn/visitor-kiosk/internal/domain/model"
	apperrors "github.com/kmn/visitor-kiosk/internal/errors"
	"github.com/kmn/visitor-kiosk/internal/ports"
)

var (
	// ErrNoSession is returned by operations that need a live session.
	ErrNoSession = errors.New("no active session")
	// ErrEngineDisposed is returned once an engine has been disposed.
	ErrEngineDisposed = errors.New("session engine disposed")
)

// timerOpTimeout bounds store and remote calls made from timer callbacks.
const timerOpTimeout = 5 * time.Second

type timerKind int

const (
	timerLogout timerKind = iota
	timerWarning
	timerTick
	timerKindCount
)

// SessionEvent is published to subscribers on every state change and countdown tick.
type SessionEvent struct {
	State            domainauth.State     `json:"state"`
	Identity         *domainauth.Identity `json:"identity"`
	ExpiresAt        *time.Time           `json:"expires_at,omitempty"`
	RemainingSeconds int                  `json:"remaining_seconds,omitempty"`
}

// SessionSnapshot is a point-in-time view of an engine.
type SessionSnapshot struct {
	State            domainauth.State     `json:"state"`
	Identity         *domainauth.Identity `json:"identity"`
	ExpiresAt        *time.Time           `json:"expires_at,omitempty"`
	RemainingSeconds int                  `json:"remaining_seconds,omitempty"`
	IdleRenewal      bool                 `json:"idle_renewal"`
}

// SessionListener receives engine events. It runs on the goroutine that
// caused the event and must not block.
type SessionListener func(SessionEvent)

// SessionEngineOptions groups dependencies for SessionEngine.
type SessionEngineOptions struct {
	Slot   string                  // Required: browser context id
	Store  ports.SessionSlotStore  // Required: durable session slot
	Remote ports.RemoteCredentials // Optional: server-side credential
	Audit  ports.AuditEmitter      // Optional: fire-and-forget audit
	Clock  clock.Clock             // Optional: defaults to the system clock
	Logger *slog.Logger            // Optional: structured logger

	// IdleRenewal enables activity-driven expiry renewal. It is off for admin console contexts.
	IdleRenewal bool
}

// SessionEngine owns the session of one browser context and the three timers
// derived from it: logout at expiry, the warning lead for admin-like roles,
// and the one-second countdown tick once the warning fired.
//
// Every re-arm cancels the previous handle of the same kind and schedules the
// new one under a single lock. Each scheduled callback carries the generation
// it was armed with, so a callback that lost the race with a cancel is dropped.
type SessionEngine struct {
	slot        string
	store       ports.SessionSlotStore
	remote      ports.RemoteCredentials
	audit       ports.AuditEmitter
	clock       clock.Clock
	logger      *slog.Logger
	idleRenewal bool

	mu        sync.Mutex
	state     domainauth.State
	session   *domainauth.Session
	remaining int
	timers    [timerKindCount]clock.Timer
	gens      [timerKindCount]uint64
	listeners map[uint64]SessionListener
	nextSub   uint64
	disposed  bool
}

// NewSessionEngine constructs an engine in the NoSession state. Call Start to
// restore a persisted session.
func NewSessionEngine(opts SessionEngineOptions) (*SessionEngine, error) {
	if opts.Store == nil {
		return nil, errors.New("SessionSlotStore is required")
	}
	if opts.Slot == "" {
		return nil, errors.New("slot is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &SessionEngine{
		slot:        opts.Slot,
		store:       opts.Store,
		remote:      opts.Remote,
		audit:       opts.Audit,
		clock:       opts.Clock,
		logger:      opts.Logger.With("component", "session_engine", "slot", opts.Slot),
		idleRenewal: opts.IdleRenewal,
		state:       domainauth.StateNoSession,
		listeners:   make(map[uint64]SessionListener),
	}, nil
}

// Start restores the persisted session, if any, and arms its timers.
// It may be called again after Stop.
func (e *SessionEngine) Start(ctx context.Context) (SessionSnapshot, error) {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return SessionSnapshot{}, ErrEngineDisposed
	}

	sess, err := e.store.Load(ctx, e.slot)
	if err != nil {
		e.mu.Unlock()
		return SessionSnapshot{}, err
	}

	e.cancelAllLocked()
	if sess == nil || !sess.ValidAt(e.clock.Now()) {
		e.session = nil
		e.state = domainauth.StateNoSession
	} else {
		e.session = sess
		e.state = domainauth.StateActive
		e.armLocked(true)
	}
	ev, snap := e.eventLocked(), e.snapshotLocked()
	e.mu.Unlock()

	e.publish(ev)
	return snap, nil
}

// Login persists a fresh session for identity and arms its timers,
// replacing whatever session the context had.
func (e *SessionEngine) Login(ctx context.Context, identity domainauth.Identity) (SessionSnapshot, error) {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return SessionSnapshot{}, ErrEngineDisposed
	}

	sess := domainauth.Session{
		Identity:  identity,
		ExpiresAt: e.clock.Now().Add(domainauth.DurationFor(identity.Role)),
	}
	if err := e.store.Save(ctx, e.slot, sess); err != nil {
		e.mu.Unlock()
		return SessionSnapshot{}, err
	}

	e.cancelAllLocked()
	e.session = &sess
	e.state = domainauth.StateActive
	e.armLocked(true)
	e.issueRemoteLocked(ctx, sess)
	ev, snap := e.eventLocked(), e.snapshotLocked()
	e.mu.Unlock()

	e.publish(ev)
	return snap, nil
}

// Extend pushes expiry to now plus the role's full session duration,
// cancels a running countdown and re-arms both timers.
func (e *SessionEngine) Extend(ctx context.Context) (SessionSnapshot, error) {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return SessionSnapshot{}, ErrEngineDisposed
	}
	if e.session == nil {
		e.mu.Unlock()
		return SessionSnapshot{}, ErrNoSession
	}

	role := e.session.Identity.Role
	if err := e.renewLocked(ctx, domainauth.DurationFor(role)); err != nil {
		e.mu.Unlock()
		return SessionSnapshot{}, err
	}
	e.cancelAllLocked()
	e.state = domainauth.StateActive
	e.armLocked(true)
	ev, snap := e.eventLocked(), e.snapshotLocked()
	e.mu.Unlock()

	e.publish(ev)
	e.emitAudit("session.extend", *snap.Identity)
	return snap, nil
}

// Activity applies idle-timeout renewal for a user-interaction signal. It
// reports whether the session was renewed; ignored signals, disabled renewal
// and missing sessions are not errors.
func (e *SessionEngine) Activity(ctx context.Context, signal domainauth.ActivitySignal) (bool, error) {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return false, ErrEngineDisposed
	}
	if !e.idleRenewal || !signal.IsRenewing() || e.session == nil {
		e.mu.Unlock()
		return false, nil
	}

	if err := e.renewLocked(ctx, domainauth.IdleTimeout); err != nil {
		e.mu.Unlock()
		return false, err
	}
	// Idle sessions never show a warning; drop any pending one with the countdown.
	e.cancelAllLocked()
	e.state = domainauth.StateActive
	e.armLocked(false)
	ev := e.eventLocked()
	e.mu.Unlock()

	e.publish(ev)
	return true, nil
}

// Logout ends the session regardless of state. Local state is always cleared;
// a failing remote sign-out is logged and otherwise ignored. A failing slot
// clear is returned after local state has been reset.
func (e *SessionEngine) Logout(ctx context.Context) error {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return ErrEngineDisposed
	}

	var who *domainauth.Identity
	if e.session != nil {
		id := e.session.Identity
		who = &id
	}
	clearErr := e.endLocked(ctx, domainauth.StateNoSession)
	ev := e.eventLocked()
	e.mu.Unlock()

	e.publish(ev)
	if who != nil {
		e.emitAudit("auth.logout", *who)
	}
	return clearErr
}

// Stop cancels all timers but keeps the session in memory and in the store.
func (e *SessionEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelAllLocked()
}

// Dispose stops the engine and drops all listeners. Later calls are no-ops
// and other operations return ErrEngineDisposed.
func (e *SessionEngine) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return
	}
	e.cancelAllLocked()
	e.listeners = make(map[uint64]SessionListener)
	e.disposed = true
}

// Snapshot returns the current state.
func (e *SessionEngine) Snapshot() SessionSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Subscribe registers fn for future events and returns a function that removes it.
func (e *SessionEngine) Subscribe(fn SessionListener) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return func() {}
	}
	e.nextSub++
	id := e.nextSub
	e.listeners[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.listeners, id)
	}
}

// IdleRenewal reports whether activity renews this engine's session.
func (e *SessionEngine) IdleRenewal() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.idleRenewal
}

// SetIdleRenewal switches activity renewal on or off. A browser context moves
// between console and kiosk pages, so the policy follows its latest request.
func (e *SessionEngine) SetIdleRenewal(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.idleRenewal = enabled
}

// renewLocked persists a new expiry of now+d. On failure nothing changes.
func (e *SessionEngine) renewLocked(ctx context.Context, d time.Duration) error {
	next := *e.session
	next.ExpiresAt = e.clock.Now().Add(d)
	if err := e.store.Save(ctx, e.slot, next); err != nil {
		return err
	}
	e.session = &next
	return nil
}

// armLocked schedules the logout timer and, when withWarning is set and the
// role warns, the warning timer. Callers cancel existing timers first.
func (e *SessionEngine) armLocked(withWarning bool) {
	now := e.clock.Now()
	exp := e.session.ExpiresAt

	e.scheduleLocked(timerLogout, exp.Sub(now), e.onLogoutLocked)

	if withWarning && domainauth.WarnsBeforeExpiry(e.session.Identity.Role) {
		lead := exp.Add(-domainauth.WarningLead).Sub(now)
		if lead < 0 {
			lead = 0
		}
		e.scheduleLocked(timerWarning, lead, e.onWarningLocked)
	}
}

// timerFire runs with e.mu held once the generation check passed. The
// returned func, if any, runs after the lock is released.
type timerFire func() (after func())

// scheduleLocked replaces the timer of kind with a new one firing after d.
// The generation check and fire share one critical section, so a re-arm can
// never slip in between them.
func (e *SessionEngine) scheduleLocked(kind timerKind, d time.Duration, fire timerFire) {
	e.cancelLocked(kind)
	gen := e.gens[kind]
	e.timers[kind] = e.clock.AfterFunc(d, func() {
		e.mu.Lock()
		if e.disposed || e.gens[kind] != gen {
			e.mu.Unlock()
			return
		}
		e.timers[kind] = nil
		after := fire()
		e.mu.Unlock()
		if after != nil {
			after()
		}
	})
}

func (e *SessionEngine) cancelLocked(kind timerKind) {
	if t := e.timers[kind]; t != nil {
		t.Stop()
		e.timers[kind] = nil
	}
	e.gens[kind]++
}

func (e *SessionEngine) cancelAllLocked() {
	for k := timerKind(0); k < timerKindCount; k++ {
		e.cancelLocked(k)
	}
	e.remaining = 0
}

func (e *SessionEngine) onLogoutLocked() func() {
	if e.session == nil {
		return nil
	}
	who := e.session.Identity

	ctx, cancel := context.WithTimeout(context.Background(), timerOpTimeout)
	defer cancel()
	if err := e.endLocked(ctx, domainauth.StateExpired); err != nil {
		e.logger.WarnContext(ctx, "clear expired session", "error", err)
	}
	ev := e.eventLocked()

	return func() {
		e.logger.Info("session expired", "user_id", who.ID, "role", who.Role)
		e.publish(ev)
		e.emitAudit("session.expired", who)
	}
}

func (e *SessionEngine) onWarningLocked() func() {
	if e.session == nil {
		return nil
	}
	e.state = domainauth.StateWarningPending
	e.remaining = e.remainingSecondsLocked()
	e.scheduleLocked(timerTick, e.nextTickDelayLocked(), e.onTickLocked)
	ev := e.eventLocked()
	return func() { e.publish(ev) }
}

// onTickLocked publishes the countdown. It never logs out; the logout timer owns that.
func (e *SessionEngine) onTickLocked() func() {
	if e.session == nil || e.state != domainauth.StateWarningPending {
		return nil
	}
	e.remaining = e.remainingSecondsLocked()
	if e.remaining > 0 {
		e.scheduleLocked(timerTick, e.nextTickDelayLocked(), e.onTickLocked)
	}
	ev := e.eventLocked()
	return func() { e.publish(ev) }
}

// nextTickDelayLocked aligns ticks to whole seconds before expiry so the
// published value steps down by one each tick.
func (e *SessionEngine) nextTickDelayLocked() time.Duration {
	left := e.session.ExpiresAt.Sub(e.clock.Now())
	if left <= 0 {
		return 0
	}
	if frac := left % domainauth.CountdownTick; frac > 0 {
		return frac
	}
	return domainauth.CountdownTick
}

func (e *SessionEngine) remainingSecondsLocked() int {
	left := e.session.Remaining(e.clock.Now())
	return int(math.Ceil(left.Seconds()))
}

// endLocked cancels timers, clears the slot, revokes the remote credential
// and moves to state. In-memory state is reset even if the store fails.
func (e *SessionEngine) endLocked(ctx context.Context, state domainauth.State) error {
	e.cancelAllLocked()
	e.session = nil
	e.state = state

	clearErr := e.store.Clear(ctx, e.slot)
	if e.remote != nil {
		if err := e.remote.Revoke(ctx, e.slot); err != nil {
			e.logger.WarnContext(ctx, "remote sign-out", "error", apperrors.RemoteSignOutFailure(err))
		}
	}
	return clearErr
}

func (e *SessionEngine) issueRemoteLocked(ctx context.Context, sess domainauth.Session) {
	if e.remote == nil {
		return
	}
	if _, err := e.remote.Issue(ctx, e.slot, sess); err != nil {
		e.logger.WarnContext(ctx, "issue remote credential", "error", err)
	}
}

func (e *SessionEngine) eventLocked() SessionEvent {
	snap := e.snapshotLocked()
	return SessionEvent{
		State:            snap.State,
		Identity:         snap.Identity,
		ExpiresAt:        snap.ExpiresAt,
		RemainingSeconds: snap.RemainingSeconds,
	}
}

func (e *SessionEngine) snapshotLocked() SessionSnapshot {
	snap := SessionSnapshot{State: e.state, IdleRenewal: e.idleRenewal}
	if e.session != nil {
		id := e.session.Identity
		exp := e.session.ExpiresAt
		snap.Identity = &id
		snap.ExpiresAt = &exp
	}
	if e.state == domainauth.StateWarningPending {
		snap.RemainingSeconds = e.remaining
	}
	return snap
}

func (e *SessionEngine) publish(ev SessionEvent) {
	e.mu.Lock()
	listeners := make([]SessionListener, 0, len(e.listeners))
	for _, l := range e.listeners {
		listeners = append(listeners, l)
	}
	e.mu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
}

func (e *SessionEngine) emitAudit(eventType string, who domainauth.Identity) {
	if e.audit == nil {
		return
	}
	e.audit.Emit(model.EventLog{
		EventType: eventType,
		Level:     model.EventLevelAudit,
		Actor: model.EventActor{
			Type:           model.StrPtr("employee"),
			ID:             model.StrPtr(who.ID),
			Name:           model.StrPtr(who.Name),
			DepartmentName: who.Department,
		},
		Resource: model.EventResource{Type: model.StrPtr("session"), ID: model.StrPtr(e.slot)},
		Source:   model.EventSourceServer,
	})
}
