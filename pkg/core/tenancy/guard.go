package tenancy

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/wadjakorntonsri/nfc-links/pkg/core/domain"
	"github.com/wadjakorntonsri/nfc-links/pkg/ports"
	"go.uber.org/zap"
)

// Guard authorizes configuration requests against tenant membership.
//
//	Unauthenticated -> ErrUnauthenticated
//	Authenticated, not a member of the tag's tenant -> ErrForbidden
//	Authenticated, member -> nil (the caller may apply the change)
type Guard struct {
	members ports.MembershipRepository
	logger  *zap.Logger
}

func NewGuard(members ports.MembershipRepository, logger *zap.Logger) *Guard {
	return &Guard{members: members, logger: logger}
}

// Authenticated fails for a missing identity or a nil user id.
func Authenticated(identity *domain.Identity) error {
	if identity == nil || identity.UserID == uuid.Nil {
		return domain.ErrUnauthenticated
	}
	return nil
}

// Authorize checks that identity may configure tag. Tags not yet linked to a
// tenant can only be changed through the privileged linking tooling.
func (g *Guard) Authorize(ctx context.Context, identity *domain.Identity, tag *domain.Tag) error {
	if err := Authenticated(identity); err != nil {
		return err
	}
	if !tag.TenantID.Valid {
		g.logger.Info("configuration denied for unlinked tag",
			zap.String("user_id", identity.UserID.String()),
			zap.String("bizcode", tag.Bizcode),
		)
		return domain.ErrForbidden
	}
	return g.AuthorizeTenant(ctx, identity, tag.TenantID.UUID)
}

// AuthorizeTenant checks that identity is an active member of tenantID.
func (g *Guard) AuthorizeTenant(ctx context.Context, identity *domain.Identity, tenantID uuid.UUID) error {
	if err := Authenticated(identity); err != nil {
		return err
	}
	ok, err := g.members.IsMember(ctx, identity.UserID, tenantID)
	if err != nil {
		return fmt.Errorf("%w: membership lookup: %w", domain.ErrStoreUnavailable, err)
	}
	if !ok {
		g.logger.Info("cross-tenant access denied",
			zap.String("user_id", identity.UserID.String()),
			zap.String("tenant_id", tenantID.String()),
		)
		return domain.ErrForbidden
	}
	return nil
}
