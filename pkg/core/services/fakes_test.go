package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wadjakorntonsri/nfc-links/pkg/core/domain"
)

// memStore is an in-memory TagRepository used by the service tests.
type memStore struct {
	mu        sync.Mutex
	tags      map[string]*domain.Tag // by uid
	scans     []domain.ScanEvent
	lookupErr error
	clickErr  error
	clickCall int
	lookups   int
}

func newMemStore(tags ...*domain.Tag) *memStore {
	s := &memStore{tags: make(map[string]*domain.Tag)}
	for _, t := range tags {
		s.tags[t.UID] = t
	}
	return s
}

func (s *memStore) FindByIdentifier(ctx context.Context, uid string) (*domain.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	tag, ok := s.tags[uid]
	if !ok || !tag.Resolvable() {
		return nil, domain.ErrTagNotFound
	}
	cp := *tag
	return &cp, nil
}

func (s *memStore) FindByIdentifierInTenant(ctx context.Context, uid string, tenantID uuid.UUID) (*domain.Tag, error) {
	tag, err := s.FindByIdentifier(ctx, uid)
	if err != nil {
		return nil, err
	}
	if !tag.BelongsTo(tenantID) {
		return nil, domain.ErrTagNotFound
	}
	return tag, nil
}

func (s *memStore) FindByBizcode(_ context.Context, bizcode string) (*domain.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tags {
		if t.Bizcode == bizcode && t.DeletedAt == nil {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrTagNotFound
}

func (s *memStore) IncrementClicks(_ context.Context, tagID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clickCall++
	if s.clickErr != nil {
		return s.clickErr
	}
	for _, t := range s.tags {
		if t.ID == tagID {
			t.ClickCount++
			t.LastClicked = &at
			return nil
		}
	}
	return domain.ErrTagNotFound
}

func (s *memStore) RecordScan(_ context.Context, event *domain.ScanEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scans = append(s.scans, *event)
	return nil
}

func (s *memStore) UpdateRedirect(_ context.Context, tagID uuid.UUID, target *string, details domain.TagDetails) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tags {
		if t.ID == tagID {
			t.CustomTarget = target
			if details.Title != nil {
				t.Title = *details.Title
			}
			if details.Description != nil {
				t.Description = *details.Description
			}
			return nil
		}
	}
	return domain.ErrTagNotFound
}

func (s *memStore) AssignTenant(_ context.Context, bizcode string, tenantID uuid.UUID, force bool) error {
	return nil
}

func (s *memStore) ListScans(_ context.Context, tagID uuid.UUID, since time.Time) ([]domain.ScanEvent, error) {
	return nil, nil
}

func (s *memStore) Dump(_ context.Context) ([]domain.Tag, error) { return nil, nil }

func (s *memStore) Ping(_ context.Context) error { return nil }

func (s *memStore) clicks(uid string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tags[uid].ClickCount
}

func (s *memStore) scanCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scans)
}

type memMembers map[[2]uuid.UUID]bool

func (m memMembers) IsMember(_ context.Context, userID, tenantID uuid.UUID) (bool, error) {
	return m[[2]uuid.UUID{userID, tenantID}], nil
}

type memCache struct {
	mu          sync.Mutex
	tags        map[string]*domain.Tag
	invalidated []string
	err         error
}

func newMemCache() *memCache {
	return &memCache{tags: make(map[string]*domain.Tag)}
}

func (c *memCache) Get(_ context.Context, uid string) (*domain.Tag, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	tag, ok := c.tags[uid]
	if !ok {
		return nil, nil
	}
	cp := *tag
	return &cp, nil
}

func (c *memCache) Set(_ context.Context, tag *domain.Tag) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	cp := *tag
	c.tags[tag.UID] = &cp
	return nil
}

func (c *memCache) Invalidate(_ context.Context, uid string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tags, uid)
	c.invalidated = append(c.invalidated, uid)
	return nil
}

func (c *memCache) has(uid string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.tags[uid]
	return ok
}

func strPtr(s string) *string { return &s }

func newTag(uid, bizcode string, tenantID uuid.UUID) *domain.Tag {
	return &domain.Tag{
		ID:       uuid.New(),
		UID:      uid,
		Bizcode:  bizcode,
		TenantID: uuid.NullUUID{UUID: tenantID, Valid: tenantID != uuid.Nil},
		IsActive: true,
	}
}
