package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Store for tests and single-instance demos.
type Memory struct {
	mu        sync.Mutex
	bySlug    map[string]*Campaign
	byID      map[string]*Campaign
	downloads map[string]int64
	now       func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		bySlug:    make(map[string]*Campaign),
		byID:      make(map[string]*Campaign),
		downloads: make(map[string]int64),
		now:       time.Now,
	}
}

// Close implements Store.
func (m *Memory) Close() error { return nil }

// CampaignBySlug implements Store. It returns a copy.
func (m *Memory) CampaignBySlug(_ context.Context, slug string) (*Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.bySlug[strings.ToLower(slug)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// CreateCampaign implements Store.
func (m *Memory) CreateCampaign(_ context.Context, n NewCampaign) (*Campaign, error) {
	c, err := n.build(m.now())
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bySlug[c.Slug]; ok {
		return nil, fmt.Errorf("%w: %s", ErrSlugTaken, c.Slug)
	}
	m.bySlug[c.Slug] = c
	m.byID[c.ID] = c
	cp := *c
	return &cp, nil
}

// IncrementSupporters implements Counters.
func (m *Memory) IncrementSupporters(_ context.Context, campaignID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[campaignID]
	if !ok {
		return ErrNotFound
	}
	c.SupportersCount++
	return nil
}

// IncrementDownloads implements Counters.
func (m *Memory) IncrementDownloads(_ context.Context, campaignID string, day time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloads[campaignID+"/"+dayKey(day)]++
	return nil
}

// DownloadsOn implements Counters.
func (m *Memory) DownloadsOn(_ context.Context, campaignID string, day time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.downloads[campaignID+"/"+dayKey(day)], nil
}

// ExpireCampaigns implements Store.
func (m *Memory) ExpireCampaigns(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.byID {
		if c.Status == StatusActive && c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
			c.Status = StatusInactive
			n++
		}
	}
	return n, nil
}
