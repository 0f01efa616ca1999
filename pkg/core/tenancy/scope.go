// Package tenancy enforces the tenant boundary around tag access.
//
// The public scan path uses Public(): identifiers are globally unique, so a
// scan carries no tenant predicate. Every other tag read goes through
// ForTenant, which pushes the tenant predicate into the store query, and every
// configuration mutation must pass Guard.Authorize first.
package tenancy

import (
	"context"

	"github.com/google/uuid"
	"github.com/wadjakorntonsri/nfc-links/pkg/core/domain"
	"github.com/wadjakorntonsri/nfc-links/pkg/ports"
)

// Scope is the tenant context attached to a tag lookup.
type Scope struct {
	tenantID uuid.UUID
	scoped   bool
}

// Public is the anonymous scope of the redirect endpoint.
func Public() Scope {
	return Scope{}
}

// ForTenant restricts lookups to tags owned by tenantID.
func ForTenant(tenantID uuid.UUID) Scope {
	return Scope{tenantID: tenantID, scoped: true}
}

func (s Scope) TenantID() (uuid.UUID, bool) {
	return s.tenantID, s.scoped
}

// Finder applies the scope to a store.
func (s Scope) Finder(store ports.TenantTagFinder) ports.TagFinder {
	if !s.scoped {
		return store
	}
	return &scopedFinder{store: store, tenantID: s.tenantID}
}

type scopedFinder struct {
	store    ports.TenantTagFinder
	tenantID uuid.UUID
}

// FindByIdentifier never distinguishes "owned by another tenant" from
// "does not exist".
func (f *scopedFinder) FindByIdentifier(ctx context.Context, uid string) (*domain.Tag, error) {
	if f.tenantID == uuid.Nil {
		return nil, domain.ErrTagNotFound
	}
	tag, err := f.store.FindByIdentifierInTenant(ctx, uid, f.tenantID)
	if err != nil {
		return nil, err
	}
	if !tag.BelongsTo(f.tenantID) {
		return nil, domain.ErrTagNotFound
	}
	return tag, nil
}
