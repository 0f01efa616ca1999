package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/wadjakorntonsri/nfc-links/pkg/core/domain"
)

// TagFinder looks up a resolvable tag by its scanned identifier.
// Soft-deleted and inactive tags yield domain.ErrTagNotFound.
type TagFinder interface {
	FindByIdentifier(ctx context.Context, uid string) (*domain.Tag, error)
}

// TenantTagFinder adds a tenant predicate to the identifier lookup.
type TenantTagFinder interface {
	TagFinder
	FindByIdentifierInTenant(ctx context.Context, uid string, tenantID uuid.UUID) (*domain.Tag, error)
}

// ClickStore holds the write side used by the click recorder
type ClickStore interface {
	IncrementClicks(ctx context.Context, tagID uuid.UUID, at time.Time) error
	RecordScan(ctx context.Context, event *domain.ScanEvent) error
}

// TagRepository defines storage operations for tags and scan events
type TagRepository interface {
	TenantTagFinder
	ClickStore

	FindByBizcode(ctx context.Context, bizcode string) (*domain.Tag, error)
	// UpdateRedirect always writes target (nil clears it back to the default
	// destination). Details fields are only written when non-nil.
	UpdateRedirect(ctx context.Context, tagID uuid.UUID, target *string, details domain.TagDetails) error
	AssignTenant(ctx context.Context, bizcode string, tenantID uuid.UUID, force bool) error
	ListScans(ctx context.Context, tagID uuid.UUID, since time.Time) ([]domain.ScanEvent, error)
	Dump(ctx context.Context) ([]domain.Tag, error) // For export
	Ping(ctx context.Context) error
}

// TagProvisioner is the external provisioning collaborator used by the CLI
// and test fixtures. The redirect service itself never creates tags.
type TagProvisioner interface {
	CreateTenant(ctx context.Context, tenant *domain.Tenant) error
	AddMember(ctx context.Context, tenantID, userID uuid.UUID, role string) error
	CreateTag(ctx context.Context, tag *domain.Tag) error
}

// MembershipRepository answers "does user U belong to tenant T".
type MembershipRepository interface {
	IsMember(ctx context.Context, userID, tenantID uuid.UUID) (bool, error)
}

// TagCache is a read-through cache in front of the public lookup
type TagCache interface {
	Get(ctx context.Context, uid string) (*domain.Tag, error)
	Set(ctx context.Context, tag *domain.Tag) error
	Invalidate(ctx context.Context, uid string) error
}

// AnalyticsSink receives fire-and-forget scan events.
type AnalyticsSink interface {
	Publish(ctx context.Context, event domain.AnalyticsEvent) error
}

// Resolver maps a scanned identifier to its outbound URL
type Resolver interface {
	Resolve(ctx context.Context, finder TagFinder, uid string, rawQuery string) (*domain.ResolvedRedirect, error)
}

// ClickRecorder dispatches the click side effects of a resolved scan
type ClickRecorder interface {
	Record(tag *domain.Tag, resolved *domain.ResolvedRedirect, clientAddr, userAgent string)
}

// TagConfigService defines the tenant-guarded configuration operations
type TagConfigService interface {
	GetTag(ctx context.Context, identity *domain.Identity, bizcode string) (*domain.Tag, error)
	SetRedirect(ctx context.Context, identity *domain.Identity, bizcode, targetURL string, details domain.TagDetails) (*domain.Tag, error)
	ResetRedirect(ctx context.Context, identity *domain.Identity, bizcode string) (*domain.Tag, error)
	Preview(ctx context.Context, identity *domain.Identity, tenantID uuid.UUID, uid string, rawQuery string) (*domain.ResolvedRedirect, error)
}
