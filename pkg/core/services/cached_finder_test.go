package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wadjakorntonsri/nfc-links/pkg/core/domain"
	"go.uber.org/zap"
)

func TestCachedFinder_ReadThrough(t *testing.T) {
	tag := newTag("ABCD1234", "BZXXXX", uuid.New())
	store := newMemStore(tag)
	cache := newMemCache()
	finder := NewCachedFinder(store, cache, zap.NewNop())

	got, err := finder.FindByIdentifier(context.Background(), "ABCD1234")
	require.NoError(t, err)
	assert.Equal(t, tag.ID, got.ID)
	assert.Eventually(t, func() bool { return cache.has("ABCD1234") }, time.Second, 5*time.Millisecond)

	_, err = finder.FindByIdentifier(context.Background(), "ABCD1234")
	require.NoError(t, err)
	assert.Equal(t, 1, store.lookups, "second lookup served from cache")
}

func TestCachedFinder_TenantCheckOnHit(t *testing.T) {
	tenantA := uuid.New()
	tag := newTag("ABCD1234", "BZXXXX", tenantA)
	cache := newMemCache()
	require.NoError(t, cache.Set(context.Background(), tag))
	finder := NewCachedFinder(newMemStore(tag), cache, zap.NewNop())

	_, err := finder.FindByIdentifierInTenant(context.Background(), "ABCD1234", uuid.New())
	assert.ErrorIs(t, err, domain.ErrTagNotFound)

	got, err := finder.FindByIdentifierInTenant(context.Background(), "ABCD1234", tenantA)
	require.NoError(t, err)
	assert.Equal(t, tag.ID, got.ID)
}

func TestCachedFinder_CacheDownFallsThrough(t *testing.T) {
	tag := newTag("ABCD1234", "BZXXXX", uuid.Nil)
	cache := newMemCache()
	cache.err = errors.New("redis: connection refused")
	finder := NewCachedFinder(newMemStore(tag), cache, zap.NewNop())

	got, err := finder.FindByIdentifier(context.Background(), "ABCD1234")
	require.NoError(t, err)
	assert.Equal(t, tag.ID, got.ID)
}

func TestCachedFinder_NotFoundNotCached(t *testing.T) {
	cache := newMemCache()
	finder := NewCachedFinder(newMemStore(), cache, zap.NewNop())

	_, err := finder.FindByIdentifier(context.Background(), "NOPE0000")
	assert.ErrorIs(t, err, domain.ErrTagNotFound)
	assert.False(t, cache.has("NOPE0000"))
}
