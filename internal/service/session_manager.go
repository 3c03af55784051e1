package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/kmn/visitor-kiosk/internal/clock"
	domainauth "github.com/kmn/visitor-kiosk/internal/domain/auth"
	"github.com/kmn/visitor-kiosk/internal/ports"
)

// SessionManagerOptions groups dependencies for SessionManager.
type SessionManagerOptions struct {
	Store  ports.SessionSlotStore  // Required
	Remote ports.RemoteCredentials // Optional
	Audit  ports.AuditEmitter      // Optional
	Clock  clock.Clock             // Optional
	Logger *slog.Logger            // Optional
}

// SessionManager owns one SessionEngine per browser context.
type SessionManager struct {
	store  ports.SessionSlotStore
	remote ports.RemoteCredentials
	audit  ports.AuditEmitter
	clock  clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	engines map[string]*SessionEngine
	closed  bool
}

// ErrManagerClosed is returned by Engine after Close.
var ErrManagerClosed = errors.New("session manager closed")

// NewSessionManager constructs a SessionManager.
func NewSessionManager(opts SessionManagerOptions) (*SessionManager, error) {
	if opts.Store == nil {
		return nil, errors.New("SessionSlotStore is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &SessionManager{
		store:   opts.Store,
		remote:  opts.Remote,
		audit:   opts.Audit,
		clock:   opts.Clock,
		logger:  opts.Logger,
		engines: make(map[string]*SessionEngine),
	}, nil
}

// Engine returns the engine for contextID, creating and starting it on first
// use. consoleContext reflects the current request and sets whether activity
// renews the session from now on.
func (m *SessionManager) Engine(ctx context.Context, contextID string, consoleContext bool) (*SessionEngine, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	if e, ok := m.engines[contextID]; ok {
		m.mu.Unlock()
		e.SetIdleRenewal(!consoleContext)
		return e, nil
	}

	e, err := NewSessionEngine(SessionEngineOptions{
		Slot:        contextID,
		Store:       m.store,
		Remote:      m.remote,
		Audit:       m.audit,
		Clock:       m.clock,
		Logger:      m.logger,
		IdleRenewal: !consoleContext,
	})
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.engines[contextID] = e
	m.mu.Unlock()

	e.Subscribe(func(ev SessionEvent) {
		if ev.State == domainauth.StateExpired {
			m.evict(contextID, e)
		}
	})

	if _, err := e.Start(ctx); err != nil {
		m.evict(contextID, e)
		return nil, err
	}
	return e, nil
}

// Lookup returns the engine for contextID without creating one.
func (m *SessionManager) Lookup(contextID string) (*SessionEngine, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.engines[contextID]
	return e, ok
}

// Len returns the number of live engines.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.engines)
}

// evict disposes e and removes it if it is still the registered engine.
// Listeners already collected for the current event still receive it.
func (m *SessionManager) evict(contextID string, e *SessionEngine) {
	m.mu.Lock()
	if cur, ok := m.engines[contextID]; ok && cur == e {
		delete(m.engines, contextID)
	}
	m.mu.Unlock()
	e.Dispose()
}

// Close disposes every engine. Persisted sessions stay in the store.
func (m *SessionManager) Close() {
	m.mu.Lock()
	engines := m.engines
	m.engines = make(map[string]*SessionEngine)
	m.closed = true
	m.mu.Unlock()

	for _, e := range engines {
		e.Dispose()
	}
	m.logger.Info("session manager closed", "engines", len(engines))
}
