package domain

import "errors"

// Resolution errors
var (
	ErrTagNotFound      = errors.New("tag not found")
	ErrStoreUnavailable = errors.New("tag store unavailable")
)

// Tenancy errors
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("not permitted for this tenant")
	ErrTenantNotFound  = errors.New("tenant not found")
)

// Analytics and configuration errors
var (
	ErrAnalyticsUnavailable = errors.New("analytics unavailable")
	ErrInvalidTarget        = errors.New("invalid redirect target")
	ErrTenantAlreadyLinked  = errors.New("tag already linked to a tenant")
)

// Provisioning errors
var ErrDuplicateTag = errors.New("tag with this uid or bizcode already exists")
