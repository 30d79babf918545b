package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"docgate/internal/model"
)

// MemoryStore is a process-local registry for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	tenants map[uuid.UUID]*model.Tenant
	byKey   map[string]uuid.UUID
	byEmail map[string]uuid.UUID
	events  map[uuid.UUID][]model.UsageEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants: make(map[uuid.UUID]*model.Tenant),
		byKey:   make(map[string]uuid.UUID),
		byEmail: make(map[string]uuid.UUID),
		events:  make(map[uuid.UUID][]model.UsageEvent),
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) CreateTenant(_ context.Context, t *model.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[t.Email]; ok {
		return ErrEmailTaken
	}
	if _, ok := s.byKey[t.APIKey]; ok {
		return ErrEmailTaken
	}
	cp := *t
	s.tenants[t.ID] = &cp
	s.byKey[t.APIKey] = t.ID
	s.byEmail[t.Email] = t.ID
	return nil
}

func (s *MemoryStore) GetTenant(_ context.Context, id uuid.UUID) (*model.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, ErrTenantNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) GetTenantByAPIKey(ctx context.Context, apiKey string) (*model.Tenant, error) {
	s.mu.RLock()
	id, ok := s.byKey[apiKey]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrTenantNotFound
	}
	return s.GetTenant(ctx, id)
}

func (s *MemoryStore) IncrementDBCount(_ context.Context, id uuid.UUID, limit int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok || t.IsPaid || t.DBCount >= limit {
		return false, nil
	}
	t.DBCount++
	t.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *MemoryStore) UpdateTenantFlags(_ context.Context, id uuid.UUID, flags model.TenantFlags) (*model.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, ErrTenantNotFound
	}
	flags.Apply(t)
	t.UpdatedAt = time.Now().UTC()
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) ListTenants(context.Context) ([]model.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) EnsurePartition(context.Context, uuid.UUID) error { return nil }

func (s *MemoryStore) InsertUsageEvent(_ context.Context, ev *model.UsageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events[ev.TenantID] {
		if e.ID == ev.ID {
			return nil
		}
	}
	s.events[ev.TenantID] = append(s.events[ev.TenantID], *ev)
	return nil
}

func (s *MemoryStore) ListUsageEventsPaginated(_ context.Context, tenantID uuid.UUID, cursor string, limit int) ([]model.UsageEvent, string, error) {
	s.mu.RLock()
	all := append([]model.UsageEvent(nil), s.events[tenantID]...)
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID.String() < all[j].ID.String() })

	var events []model.UsageEvent
	for _, ev := range all {
		if cursor != "" && ev.ID.String() <= cursor {
			continue
		}
		events = append(events, ev)
		if len(events) == limit {
			break
		}
	}

	nextCursor := ""
	if len(events) == limit {
		nextCursor = events[len(events)-1].ID.String()
	}
	return events, nextCursor, nil
}
