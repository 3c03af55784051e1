package redis

// Package redis provides Redis-based adapters for kiosk sessions.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	domainauth "github.com/kmn/visitor-kiosk/internal/domain/auth"
	apperrors "github.com/kmn/visitor-kiosk/internal/errors"
)

const defaultSlotPrefix = "kiosk:session:"

// SessionSlotStore keeps one session record per browser context in Redis.
// Keys expire with the session so stale records disappear on their own.
type SessionSlotStore struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// SessionSlotStoreOptions configures a SessionSlotStore.
type SessionSlotStoreOptions struct {
	Client redis.UniversalClient // required
	Prefix string
	Logger *slog.Logger
	Now    func() time.Time
}

// NewSessionSlotStore creates a Redis-backed slot store.
func NewSessionSlotStore(opts SessionSlotStoreOptions) *SessionSlotStore {
	s := &SessionSlotStore{
		client: opts.Client,
		prefix: opts.Prefix,
		logger: opts.Logger,
		now:    opts.Now,
	}
	if s.prefix == "" {
		s.prefix = defaultSlotPrefix
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "session_slot_store")
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *SessionSlotStore) key(slot string) string { return s.prefix + slot }

// Load returns the session stored for slot, or nil when there is none. A
// corrupt or expired record is removed and reported as no session.
func (s *SessionSlotStore) Load(ctx context.Context, slot string) (*domainauth.Session, error) {
	if slot == "" {
		return nil, nil
	}

	data, err := s.client.Get(ctx, s.key(slot)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	sess, decodeErr := decodeSession(data)
	if decodeErr != nil {
		s.logger.WarnContext(ctx, "discarding session record",
			"slot", slot, "error", apperrors.StorageCorrupt(decodeErr, slot))
		s.discard(ctx, slot)
		return nil, nil
	}

	if !s.now().Before(sess.ExpiresAt) {
		s.discard(ctx, slot)
		return nil, nil
	}
	return &sess, nil
}

// discard removes an unusable record. A failed delete is only logged; the
// record is ignored either way and its TTL still bounds its life.
func (s *SessionSlotStore) discard(ctx context.Context, slot string) {
	if err := s.Clear(ctx, slot); err != nil {
		s.logger.WarnContext(ctx, "clear discarded session record", "slot", slot, "error", err)
	}
}

// Save overwrites the slot with a single SET so readers see either the old
// record or the new one.
func (s *SessionSlotStore) Save(ctx context.Context, slot string, sess domainauth.Session) error {
	if slot == "" {
		return errors.New("slot cannot be empty")
	}

	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return errors.New("session is expired")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return s.client.Set(ctx, s.key(slot), data, ttl).Err()
}

// Clear removes the slot.
func (s *SessionSlotStore) Clear(ctx context.Context, slot string) error {
	if slot == "" {
		return nil
	}
	return s.client.Del(ctx, s.key(slot)).Err()
}

var (
	errMissingIdentity = errors.New("missing identity")
	errUnknownRole     = errors.New("unknown role")
	errMissingExpiry   = errors.New("missing expires_at")
)

func decodeSession(data []byte) (domainauth.Session, error) {
	var sess domainauth.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return domainauth.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	switch {
	case sess.Identity.ID == "":
		return domainauth.Session{}, errMissingIdentity
	case !sess.Identity.Role.Valid():
		return domainauth.Session{}, errUnknownRole
	case sess.ExpiresAt.IsZero():
		return domainauth.Session{}, errMissingExpiry
	}
	return sess, nil
}
