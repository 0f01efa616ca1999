package domain

import (
	"time"

	"github.com/google/uuid"
)

// Tenant represents an organization owning tags and members.
type Tenant struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// Identity is the authenticated caller of a configuration request.
type Identity struct {
	UserID uuid.UUID
}
