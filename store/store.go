package store

import (
	"context"
	"time"
)

// Counters increments and reads campaign usage counters. It satisfies
// phrames.Counters.
type Counters interface {
	IncrementSupporters(ctx context.Context, campaignID string) error
	IncrementDownloads(ctx context.Context, campaignID string, day time.Time) error
	DownloadsOn(ctx context.Context, campaignID string, day time.Time) (int64, error)
}

// Store is the campaign datastore.
type Store interface {
	Counters

	CampaignBySlug(ctx context.Context, slug string) (*Campaign, error)
	CreateCampaign(ctx context.Context, n NewCampaign) (*Campaign, error)

	// ExpireCampaigns marks active campaigns whose expiry is at or before
	// now as inactive and returns how many changed.
	ExpireCampaigns(ctx context.Context, now time.Time) (int, error)

	Close() error
}
