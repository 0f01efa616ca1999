package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidIdentifier reports whether s can be a tag uid or bizcode.
func ValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// Tag represents a provisioned NFC tag mapped to a redirect target
type Tag struct {
	ID           uuid.UUID     `json:"id"`
	UID          string        `json:"uid"`
	Bizcode      string        `json:"bizcode"`
	TenantID     uuid.NullUUID `json:"organization_id"`
	OwnerUserID  uuid.NullUUID `json:"user_id"`
	CustomTarget *string       `json:"active_target_url,omitempty"`
	SourceTarget *string       `json:"source_target_url,omitempty"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	IsActive     bool          `json:"is_active"`
	ClickCount   int64         `json:"click_count"`
	LastClicked  *time.Time    `json:"last_clicked,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	DeletedAt    *time.Time    `json:"deleted_at,omitempty"`
}

// Resolvable reports whether a scan of this tag may be redirected.
func (t *Tag) Resolvable() bool {
	return t.IsActive && t.DeletedAt == nil
}

// HasCustomTarget is false for nil, empty and whitespace-only targets.
func (t *Tag) HasCustomTarget() bool {
	return t.CustomTarget != nil && strings.TrimSpace(*t.CustomTarget) != ""
}

// BelongsTo reports whether the tag is owned by the given tenant.
func (t *Tag) BelongsTo(tenantID uuid.UUID) bool {
	return t.TenantID.Valid && t.TenantID.UUID == tenantID
}

// TagDetails carries optional display fields for a configuration update.
// A nil field leaves the stored value unchanged.
type TagDetails struct {
	Title       *string
	Description *string
}

// RedirectKind tells which branch of the redirect policy produced a URL
type RedirectKind string

const (
	RedirectCustom  RedirectKind = "custom"
	RedirectDefault RedirectKind = "default"
)

// ResolvedRedirect is the outcome of a successful resolution.
type ResolvedRedirect struct {
	URL     string       `json:"url"`
	BaseURL string       `json:"base_url"`
	Kind    RedirectKind `json:"kind"`
	Tag     *Tag         `json:"-"`
}
