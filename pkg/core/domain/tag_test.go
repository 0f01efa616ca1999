package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestTag_Resolvable(t *testing.T) {
	now := time.Now()
	assert.True(t, (&Tag{IsActive: true}).Resolvable())
	assert.False(t, (&Tag{IsActive: false}).Resolvable())
	assert.False(t, (&Tag{IsActive: true, DeletedAt: &now}).Resolvable())
}

func TestTag_HasCustomTarget(t *testing.T) {
	str := func(s string) *string { return &s }

	tests := []struct {
		name   string
		target *string
		want   bool
	}{
		{"nil", nil, false},
		{"empty", str(""), false},
		{"whitespace", str("  \t"), false},
		{"set", str("https://example.com/offer"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, (&Tag{CustomTarget: tt.target}).HasCustomTarget())
		})
	}
}

func TestTag_BelongsTo(t *testing.T) {
	tenant := uuid.New()
	assert.True(t, (&Tag{TenantID: uuid.NullUUID{UUID: tenant, Valid: true}}).BelongsTo(tenant))
	assert.False(t, (&Tag{TenantID: uuid.NullUUID{UUID: tenant, Valid: true}}).BelongsTo(uuid.New()))
	assert.False(t, (&Tag{}).BelongsTo(uuid.Nil))
}

func TestValidIdentifier(t *testing.T) {
	assert.True(t, ValidIdentifier("ABCD1234"))
	assert.True(t, ValidIdentifier("biz_code-01"))
	assert.False(t, ValidIdentifier(""))
	assert.False(t, ValidIdentifier("favicon.ico"))
	assert.False(t, ValidIdentifier("a/b"))
	assert.False(t, ValidIdentifier(strings.Repeat("A", 65)))
}
