package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/wadjakorntonsri/nfc-links/pkg/core/domain"
	"github.com/wadjakorntonsri/nfc-links/pkg/ports"
	"go.uber.org/zap"
)

// CachedFinder puts a TagCache in front of a store. Cache failures fall
// through to the store; only resolvable tags are ever cached.
type CachedFinder struct {
	store  ports.TenantTagFinder
	cache  ports.TagCache
	logger *zap.Logger
}

func NewCachedFinder(store ports.TenantTagFinder, cache ports.TagCache, logger *zap.Logger) *CachedFinder {
	return &CachedFinder{store: store, cache: cache, logger: logger}
}

func (f *CachedFinder) FindByIdentifier(ctx context.Context, uid string) (*domain.Tag, error) {
	if tag := f.fromCache(ctx, uid); tag != nil {
		return tag, nil
	}
	tag, err := f.store.FindByIdentifier(ctx, uid)
	if err != nil {
		return nil, err
	}
	f.fill(tag)
	return tag, nil
}

func (f *CachedFinder) FindByIdentifierInTenant(ctx context.Context, uid string, tenantID uuid.UUID) (*domain.Tag, error) {
	if tag := f.fromCache(ctx, uid); tag != nil {
		if !tag.BelongsTo(tenantID) {
			return nil, domain.ErrTagNotFound
		}
		return tag, nil
	}
	tag, err := f.store.FindByIdentifierInTenant(ctx, uid, tenantID)
	if err != nil {
		return nil, err
	}
	f.fill(tag)
	return tag, nil
}

func (f *CachedFinder) fromCache(ctx context.Context, uid string) *domain.Tag {
	tag, err := f.cache.Get(ctx, uid)
	if err != nil {
		f.logger.Warn("tag cache read failed", zap.String("uid", uid), zap.Error(err))
		return nil
	}
	if tag == nil || !tag.Resolvable() {
		return nil
	}
	return tag
}

// fill writes the cache off the request path.
func (f *CachedFinder) fill(tag *domain.Tag) {
	if !tag.Resolvable() {
		return
	}
	cp := *tag
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		if err := f.cache.Set(ctx, &cp); err != nil {
			f.logger.Warn("tag cache write failed", zap.String("uid", cp.UID), zap.Error(err))
		}
	}()
}
