package ports

// Package ports defines interfaces (hexagonal ports) for the kiosk core.
// Implementations live in internal/adapters and internal/data; orchestration in internal/service.

import (
	"context"

	domainauth "github.com/kmn/visitor-kiosk/internal/domain/auth"
	"github.com/kmn/visitor-kiosk/internal/domain/model"
)

// CredentialMatch is the result of a trusted PIN lookup. Stored secrets never leave the store.
type CredentialMatch struct {
	Identity domainauth.Identity
	UserType model.LoginUserType
}

// CredentialLookup exchanges a PIN for the matching enabled identity.
// It returns found=false when nothing enabled matches.
type CredentialLookup interface {
	LookupPIN(ctx context.Context, pin string) (match CredentialMatch, found bool, err error)
}

// SessionSlotStore persists one session record per browser context.
//
// Load never fails on a corrupt or expired record; it clears the slot and
// reports no session. Save replaces the record atomically.
type SessionSlotStore interface {
	Load(ctx context.Context, slot string) (*domainauth.Session, error)
	Save(ctx context.Context, slot string, sess domainauth.Session) error
	Clear(ctx context.Context, slot string) error
}

// RemoteCredentials is the optional server-side credential kept alongside a session.
// It is advisory; the slot record stays authoritative.
type RemoteCredentials interface {
	Issue(ctx context.Context, slot string, sess domainauth.Session) (string, error)
	Revoke(ctx context.Context, slot string) error
}
