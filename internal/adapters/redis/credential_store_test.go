package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialStore_IssueVerifyRevoke(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewCredentialStore(client, "")
	ctx := context.Background()

	token, err := store.Issue(ctx, "ctx-1", newTestSession(time.Hour))
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	ok, err := store.Verify(ctx, "ctx-1", token)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Verify(ctx, "ctx-1", "other")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Revoke(ctx, "ctx-1"))
	ok, err = store.Verify(ctx, "ctx-1", token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCredentialStore_IssueExpired(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	_, err := NewCredentialStore(client, "").Issue(context.Background(), "ctx", newTestSession(-time.Second))
	require.Error(t, err)
}
