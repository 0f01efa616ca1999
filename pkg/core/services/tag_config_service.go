package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/wadjakorntonsri/nfc-links/pkg/core/domain"
	"github.com/wadjakorntonsri/nfc-links/pkg/core/tenancy"
	"github.com/wadjakorntonsri/nfc-links/pkg/ports"
	"go.uber.org/zap"
)

// TagConfigService applies tenant-guarded changes to a tag's redirect.
type TagConfigService struct {
	repo     ports.TagRepository
	guard    *tenancy.Guard
	resolver ports.Resolver
	cache    ports.TagCache
	isSelf   func(string) bool
	logger   *zap.Logger
}

// NewTagConfigService wires the configuration path. cache may be nil.
func NewTagConfigService(repo ports.TagRepository, guard *tenancy.Guard, resolver ports.Resolver, cache ports.TagCache, isSelf func(string) bool, logger *zap.Logger) *TagConfigService {
	if isSelf == nil {
		isSelf = func(string) bool { return false }
	}
	return &TagConfigService{
		repo:     repo,
		guard:    guard,
		resolver: resolver,
		cache:    cache,
		isSelf:   isSelf,
		logger:   logger,
	}
}

func (s *TagConfigService) GetTag(ctx context.Context, identity *domain.Identity, bizcode string) (*domain.Tag, error) {
	if err := tenancy.Authenticated(identity); err != nil {
		return nil, err
	}
	tag, err := s.repo.FindByBizcode(ctx, bizcode)
	if err != nil {
		if errors.Is(err, domain.ErrTagNotFound) {
			return nil, domain.ErrTagNotFound
		}
		return nil, fmt.Errorf("%w: find %s: %w", domain.ErrStoreUnavailable, bizcode, err)
	}
	if err := s.guard.Authorize(ctx, identity, tag); err != nil {
		return nil, err
	}
	return tag, nil
}

func (s *TagConfigService) SetRedirect(ctx context.Context, identity *domain.Identity, bizcode, targetURL string, details domain.TagDetails) (*domain.Tag, error) {
	target, err := s.validateTarget(targetURL)
	if err != nil {
		return nil, err
	}
	tag, err := s.GetTag(ctx, identity, bizcode)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateRedirect(ctx, tag.ID, &target, details); err != nil {
		return nil, fmt.Errorf("%w: update %s: %w", domain.ErrStoreUnavailable, bizcode, err)
	}
	s.invalidate(ctx, tag.UID)

	tag.CustomTarget = &target
	if details.Title != nil {
		tag.Title = *details.Title
	}
	if details.Description != nil {
		tag.Description = *details.Description
	}
	s.logger.Info("tag redirect updated",
		zap.String("bizcode", bizcode),
		zap.String("user_id", identity.UserID.String()),
		zap.String("target", target),
	)
	return tag, nil
}

// ResetRedirect clears the custom target so scans fall back to the default.
func (s *TagConfigService) ResetRedirect(ctx context.Context, identity *domain.Identity, bizcode string) (*domain.Tag, error) {
	tag, err := s.GetTag(ctx, identity, bizcode)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateRedirect(ctx, tag.ID, nil, domain.TagDetails{}); err != nil {
		return nil, fmt.Errorf("%w: reset %s: %w", domain.ErrStoreUnavailable, bizcode, err)
	}
	s.invalidate(ctx, tag.UID)

	tag.CustomTarget = nil
	s.logger.Info("tag redirect reset to default",
		zap.String("bizcode", bizcode),
		zap.String("user_id", identity.UserID.String()),
	)
	return tag, nil
}

// Preview resolves uid inside tenantID without recording a click.
func (s *TagConfigService) Preview(ctx context.Context, identity *domain.Identity, tenantID uuid.UUID, uid string, rawQuery string) (*domain.ResolvedRedirect, error) {
	if err := s.guard.AuthorizeTenant(ctx, identity, tenantID); err != nil {
		return nil, err
	}
	return s.resolver.Resolve(ctx, tenancy.ForTenant(tenantID).Finder(s.repo), uid, rawQuery)
}

func (s *TagConfigService) validateTarget(raw string) (string, error) {
	target := strings.TrimSpace(raw)
	if target == "" {
		return "", fmt.Errorf("%w: target is empty", domain.ErrInvalidTarget)
	}
	if !isWebURL(target) {
		return "", fmt.Errorf("%w: %q is not an absolute http(s) URL", domain.ErrInvalidTarget, target)
	}
	if s.isSelf(target) {
		return "", fmt.Errorf("%w: %q points back at the scan endpoint", domain.ErrInvalidTarget, target)
	}
	return target, nil
}

func (s *TagConfigService) invalidate(ctx context.Context, uid string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, uid); err != nil {
		s.logger.Warn("tag cache invalidation failed", zap.String("uid", uid), zap.Error(err))
	}
}
