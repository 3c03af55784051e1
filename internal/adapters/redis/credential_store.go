package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	domainauth "github.com/kmn/visitor-kiosk/internal/domain/auth"
)

const defaultCredentialPrefix = "kiosk:credential:"

// CredentialStore holds the optional server-side credential for a browser
// context. It lives next to the session slot but is written separately, so
// the two can briefly disagree.
type CredentialStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewCredentialStore creates a credential store; an empty prefix uses the default.
func NewCredentialStore(client redis.UniversalClient, prefix string) *CredentialStore {
	if prefix == "" {
		prefix = defaultCredentialPrefix
	}
	return &CredentialStore{client: client, prefix: prefix, now: time.Now}
}

// Issue stores a fresh opaque credential expiring with the session.
func (c *CredentialStore) Issue(ctx context.Context, slot string, sess domainauth.Session) (string, error) {
	if slot == "" {
		return "", errors.New("slot cannot be empty")
	}
	ttl := sess.ExpiresAt.Sub(c.now())
	if ttl <= 0 {
		return "", errors.New("session is expired")
	}
	token := uuid.NewString()
	if err := c.client.Set(ctx, c.prefix+slot, token, ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Verify reports whether token is the live credential for slot.
func (c *CredentialStore) Verify(ctx context.Context, slot, token string) (bool, error) {
	if slot == "" || token == "" {
		return false, nil
	}
	got, err := c.client.Get(ctx, c.prefix+slot).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return got == token, nil
}

// Revoke deletes the credential for slot.
func (c *CredentialStore) Revoke(ctx context.Context, slot string) error {
	if slot == "" {
		return nil
	}
	return c.client.Del(ctx, c.prefix+slot).Err()
}
