// Package store persists campaigns and their supporter and download
// counters. The SQLite implementation is the default; counters can be moved
// to Redis for deployments with several service instances.
package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/saadchadu/phrames"
)

// Campaign statuses.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Campaign lookup and validation errors.
var (
	// ErrNotFound is returned when no campaign matches the slug or ID.
	ErrNotFound = errors.New("store: campaign not found")

	// ErrInactive is returned by Available for campaigns not in StatusActive.
	ErrInactive = errors.New("store: campaign is inactive")

	// ErrExpired is returned by Available once a campaign's ExpiresAt has passed.
	ErrExpired = errors.New("store: campaign has expired")

	// ErrSlugTaken is returned when a new campaign reuses an existing slug.
	ErrSlugTaken = errors.New("store: slug already in use")

	// ErrInvalid wraps validation failures of a campaign's fields.
	ErrInvalid = errors.New("store: invalid campaign")
)

// Campaign is a frame campaign visitors composite their photos into.
type Campaign struct {
	ID              string     `json:"id"`
	Slug            string     `json:"slug"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	FrameURL        string     `json:"frameURL"`
	CreatorID       string     `json:"creatorId"`
	CreatorName     string     `json:"creatorName"`
	Status          string     `json:"status"`
	SupportersCount int64      `json:"supportersCount"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Ref returns the part of the campaign the engine needs. baseURL is the
// public origin used to build the campaign page link.
func (c *Campaign) Ref(baseURL string) phrames.CampaignRef {
	return phrames.CampaignRef{
		ID:       c.ID,
		Slug:     c.Slug,
		Name:     c.Name,
		FrameURL: c.FrameURL,
		PageURL:  strings.TrimRight(baseURL, "/") + "/campaign/" + c.Slug,
	}
}

// Available reports whether visitors may use the campaign at now.
func (c *Campaign) Available(now time.Time) error {
	if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return ErrExpired
	}
	if c.Status != StatusActive {
		return ErrInactive
	}
	return nil
}

// NewCampaign holds the creator-supplied fields of a campaign.
type NewCampaign struct {
	Slug        string     `yaml:"slug"`
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	FrameURL    string     `yaml:"frameURL"`
	CreatorID   string     `yaml:"creatorId"`
	CreatorName string     `yaml:"creatorName"`
	Status      string     `yaml:"status"`
	ExpiresAt   *time.Time `yaml:"expiresAt"`
}

var descriptionPolicy = bluemonday.StrictPolicy()

// build validates n and turns it into a Campaign with a fresh ID.
func (n NewCampaign) build(now time.Time) (*Campaign, error) {
	slug := strings.ToLower(strings.TrimSpace(n.Slug))
	if !validSlug(slug) {
		return nil, fmt.Errorf("%w: slug %q", ErrInvalid, n.Slug)
	}
	name := strings.TrimSpace(n.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalid)
	}
	if strings.TrimSpace(n.FrameURL) == "" {
		return nil, fmt.Errorf("%w: empty frame URL", ErrInvalid)
	}

	status := n.Status
	switch status {
	case "":
		status = StatusActive
	case StatusActive, StatusInactive:
	default:
		return nil, fmt.Errorf("%w: status %q", ErrInvalid, n.Status)
	}

	return &Campaign{
		ID:          uuid.NewString(),
		Slug:        slug,
		Name:        name,
		Description: strings.TrimSpace(descriptionPolicy.Sanitize(n.Description)),
		FrameURL:    strings.TrimSpace(n.FrameURL),
		CreatorID:   n.CreatorID,
		CreatorName: strings.TrimSpace(descriptionPolicy.Sanitize(n.CreatorName)),
		Status:      status,
		ExpiresAt:   n.ExpiresAt,
		CreatedAt:   now.UTC(),
	}, nil
}

func validSlug(s string) bool {
	if s == "" || len(s) > 100 || s[0] == '-' || s[len(s)-1] == '-' {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
			return false
		}
	}
	return true
}

// dayKey is the per-day download bucket for t.
func dayKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
