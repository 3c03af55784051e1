package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/kmn/visitor-kiosk/internal/domain/auth"
	"github.com/kmn/visitor-kiosk/internal/testutil"
)

// setupTestRedis creates a Redis client for testing.
// Tests will be skipped if Redis is not available.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	return testutil.SetupTestRedis(t)
}

func newTestSession(expiresIn time.Duration) domainauth.Session {
	dept := "Logistics"
	return domainauth.Session{
		Identity: domainauth.Identity{
			ID:         "42",
			Name:       "Marta",
			Role:       domainauth.RoleDepartmentAdmin,
			Department: &dept,
		},
		ExpiresAt: time.Now().Add(expiresIn).UTC().Truncate(time.Second),
	}
}

func TestSessionSlotStore_SaveAndLoad(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewSessionSlotStore(SessionSlotStoreOptions{Client: client})
	ctx := context.Background()
	sess := newTestSession(30 * time.Minute)

	require.NoError(t, store.Save(ctx, "ctx-1", sess))

	got, err := store.Load(ctx, "ctx-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sess.Identity, got.Identity)
	assert.True(t, sess.ExpiresAt.Equal(got.ExpiresAt))

	ttl := client.TTL(ctx, "kiosk:session:ctx-1").Val()
	assert.Greater(t, ttl, 29*time.Minute)
	assert.LessOrEqual(t, ttl, 30*time.Minute)
}

func TestSessionSlotStore_LoadMissing(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewSessionSlotStore(SessionSlotStoreOptions{Client: client})

	got, err := store.Load(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSessionSlotStore_CorruptPayloadIsCleared(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewSessionSlotStore(SessionSlotStoreOptions{Client: client})
	ctx := context.Background()

	payloads := map[string]string{
		"garbage":       "{{{not json",
		"no identity":   `{"expires_at":"2999-01-01T00:00:00Z"}`,
		"unknown role":  `{"identity":{"id":"1","name":"x","role":"guest"},"expires_at":"2999-01-01T00:00:00Z"}`,
		"no expiry":     `{"identity":{"id":"1","name":"x","role":"user"}}`,
		"wrong type":    `{"identity":"oops","expires_at":5}`,
		"empty payload": ``,
	}

	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, client.Set(ctx, "kiosk:session:bad", payload, time.Hour).Err())

			got, err := store.Load(ctx, "bad")
			require.NoError(t, err)
			assert.Nil(t, got)

			exists, err := client.Exists(ctx, "kiosk:session:bad").Result()
			require.NoError(t, err)
			assert.Zero(t, exists, "corrupt record should be removed")
		})
	}
}

func TestSessionSlotStore_ExpiredPayloadIsCleared(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	now := time.Now()
	store := NewSessionSlotStore(SessionSlotStoreOptions{Client: client})
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "ctx-2", newTestSession(time.Minute)))

	// Move the store's clock past expiry while Redis still holds the key.
	store.now = func() time.Time { return now.Add(2 * time.Minute) }

	got, err := store.Load(ctx, "ctx-2")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Zero(t, client.Exists(ctx, "kiosk:session:ctx-2").Val())
}

// failDel rejects DEL so the discard path sees a storage error.
type failDel struct{}

func (failDel) DialHook(next redis.DialHook) redis.DialHook { return next }

func (failDel) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if cmd.Name() == "del" {
			err := errors.New("del refused")
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (failDel) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestSessionSlotStore_LoadSwallowsClearFailure(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	ctx := context.Background()

	now := time.Now()
	store := NewSessionSlotStore(SessionSlotStoreOptions{Client: client})
	require.NoError(t, store.Save(ctx, "ctx-3", newTestSession(time.Minute)))
	require.NoError(t, client.Set(ctx, "kiosk:session:bad", "{{{not json", time.Hour).Err())
	client.AddHook(failDel{})

	got, err := store.Load(ctx, "bad")
	require.NoError(t, err)
	assert.Nil(t, got)

	store.now = func() time.Time { return now.Add(2 * time.Minute) }
	got, err = store.Load(ctx, "ctx-3")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSessionSlotStore_SaveRejectsExpired(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewSessionSlotStore(SessionSlotStoreOptions{Client: client})
	err := store.Save(context.Background(), "ctx-3", newTestSession(-time.Minute))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestSessionSlotStore_Clear(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewSessionSlotStore(SessionSlotStoreOptions{Client: client, Prefix: "test:slot:"})
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "ctx-4", newTestSession(time.Hour)))
	require.NoError(t, store.Clear(ctx, "ctx-4"))

	got, err := store.Load(ctx, "ctx-4")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Clearing an empty slot is a no-op.
	require.NoError(t, store.Clear(ctx, ""))
}

func TestDecodeSession(t *testing.T) {
	_, err := decodeSession([]byte(`{"identity":{"id":"1","name":"a","role":"admin"},"expires_at":"2030-01-01T00:00:00Z"}`))
	require.NoError(t, err)

	_, err = decodeSession([]byte(`null`))
	require.ErrorIs(t, err, errMissingIdentity)
}
