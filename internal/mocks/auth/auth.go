package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"sync"
	"time"

	domainauth "github.com/kmn/visitor-kiosk/internal/domain/auth"
	"github.com/kmn/visitor-kiosk/internal/domain/model"
	"github.com/kmn/visitor-kiosk/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.CredentialLookup  = (*StaticCredentialLookup)(nil)
	_ ports.SessionSlotStore  = (*MemorySlotStore)(nil)
	_ ports.RemoteCredentials = (*MockRemoteCredentials)(nil)
	_ ports.AuditEmitter      = (*RecordingAuditEmitter)(nil)
)

// StaticCredentialLookup resolves PINs from a fixed table.
type StaticCredentialLookup struct {
	LookupFunc func(ctx context.Context, pin string) (ports.CredentialMatch, bool, error)
	Matches    map[string]ports.CredentialMatch

	mu    sync.Mutex
	calls int
}

// NewStaticCredentialLookup creates a lookup answering the given PINs.
func NewStaticCredentialLookup(matches map[string]ports.CredentialMatch) *StaticCredentialLookup {
	return &StaticCredentialLookup{Matches: matches}
}

func (s *StaticCredentialLookup) LookupPIN(ctx context.Context, pin string) (ports.CredentialMatch, bool, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.LookupFunc != nil {
		return s.LookupFunc(ctx, pin)
	}
	m, ok := s.Matches[pin]
	return m, ok, nil
}

// Calls returns how many lookups were made.
func (s *StaticCredentialLookup) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// MemorySlotStore is an in-memory session slot store for unit tests.
// It follows the same Load contract as the Redis store.
type MemorySlotStore struct {
	Now     func() time.Time
	SaveErr error

	mu    sync.Mutex
	slots map[string]domainauth.Session
	saves int
}

// NewMemorySlotStore creates an empty store using time.Now.
func NewMemorySlotStore() *MemorySlotStore {
	return &MemorySlotStore{Now: time.Now, slots: make(map[string]domainauth.Session)}
}

func (m *MemorySlotStore) Load(_ context.Context, slot string) (*domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.slots[slot]
	if !ok {
		return nil, nil
	}
	if !sess.ValidAt(m.Now()) {
		delete(m.slots, slot)
		return nil, nil
	}
	return &sess, nil
}

func (m *MemorySlotStore) Save(_ context.Context, slot string, sess domainauth.Session) error {
	if slot == "" {
		return errors.New("slot cannot be empty")
	}
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[slot] = sess
	m.saves++
	return nil
}

func (m *MemorySlotStore) Clear(_ context.Context, slot string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, slot)
	return nil
}

// Peek returns the raw stored record without applying expiry rules.
func (m *MemorySlotStore) Peek(slot string) (domainauth.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[slot]
	return s, ok
}

// Saves returns the number of successful Save calls.
func (m *MemorySlotStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// MockRemoteCredentials records issue/revoke calls.
type MockRemoteCredentials struct {
	IssueFunc  func(ctx context.Context, slot string, sess domainauth.Session) (string, error)
	RevokeFunc func(ctx context.Context, slot string) error

	mu      sync.Mutex
	issued  []string
	revoked []string
}

func (m *MockRemoteCredentials) Issue(ctx context.Context, slot string, sess domainauth.Session) (string, error) {
	m.mu.Lock()
	m.issued = append(m.issued, slot)
	m.mu.Unlock()
	if m.IssueFunc != nil {
		return m.IssueFunc(ctx, slot, sess)
	}
	return "cred-" + slot, nil
}

func (m *MockRemoteCredentials) Revoke(ctx context.Context, slot string) error {
	m.mu.Lock()
	m.revoked = append(m.revoked, slot)
	m.mu.Unlock()
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, slot)
	}
	return nil
}

// Revoked returns the slots revoked so far.
func (m *MockRemoteCredentials) Revoked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.revoked...)
}

// Issued returns the slots issued so far.
func (m *MockRemoteCredentials) Issued() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.issued...)
}

// RecordingAuditEmitter keeps emitted events in memory.
type RecordingAuditEmitter struct {
	mu     sync.Mutex
	events []model.EventLog
	logins []model.LoginRecord
}

func (r *RecordingAuditEmitter) Emit(ev model.EventLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *RecordingAuditEmitter) EmitLogin(rec model.LoginRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logins = append(r.logins, rec)
}

// Events returns a copy of the emitted events.
func (r *RecordingAuditEmitter) Events() []model.EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.EventLog(nil), r.events...)
}

// Logins returns a copy of the emitted login records.
func (r *RecordingAuditEmitter) Logins() []model.LoginRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.LoginRecord(nil), r.logins...)
}
