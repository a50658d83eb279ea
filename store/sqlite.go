package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const schema = `
CREATE TABLE IF NOT EXISTS campaigns (
	id               TEXT PRIMARY KEY,
	slug             TEXT NOT NULL UNIQUE,
	name             TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	frame_url        TEXT NOT NULL,
	creator_id       TEXT NOT NULL DEFAULT '',
	creator_name     TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'active',
	supporters_count INTEGER NOT NULL DEFAULT 0,
	expires_at       INTEGER,
	created_at       INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS campaigns_status_expiry ON campaigns (status, expires_at);

CREATE TABLE IF NOT EXISTS campaign_downloads (
	campaign_id TEXT NOT NULL,
	day         TEXT NOT NULL,
	count       INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (campaign_id, day)
);
`

// campaignRow is the database shape of a Campaign. Times are stored as
// Unix milliseconds.
type campaignRow struct {
	ID              string        `db:"id"`
	Slug            string        `db:"slug"`
	Name            string        `db:"name"`
	Description     string        `db:"description"`
	FrameURL        string        `db:"frame_url"`
	CreatorID       string        `db:"creator_id"`
	CreatorName     string        `db:"creator_name"`
	Status          string        `db:"status"`
	SupportersCount int64         `db:"supporters_count"`
	ExpiresAt       sql.NullInt64 `db:"expires_at"`
	CreatedAt       int64         `db:"created_at"`
}

func (r *campaignRow) campaign() *Campaign {
	c := &Campaign{
		ID:              r.ID,
		Slug:            r.Slug,
		Name:            r.Name,
		Description:     r.Description,
		FrameURL:        r.FrameURL,
		CreatorID:       r.CreatorID,
		CreatorName:     r.CreatorName,
		Status:          r.Status,
		SupportersCount: r.SupportersCount,
		CreatedAt:       time.UnixMilli(r.CreatedAt).UTC(),
	}
	if r.ExpiresAt.Valid {
		t := time.UnixMilli(r.ExpiresAt.Int64).UTC()
		c.ExpiresAt = &t
	}
	return c
}

func rowFor(c *Campaign) campaignRow {
	r := campaignRow{
		ID:              c.ID,
		Slug:            c.Slug,
		Name:            c.Name,
		Description:     c.Description,
		FrameURL:        c.FrameURL,
		CreatorID:       c.CreatorID,
		CreatorName:     c.CreatorName,
		Status:          c.Status,
		SupportersCount: c.SupportersCount,
		CreatedAt:       c.CreatedAt.UnixMilli(),
	}
	if c.ExpiresAt != nil {
		r.ExpiresAt = sql.NullInt64{Int64: c.ExpiresAt.UnixMilli(), Valid: true}
	}
	return r
}

// SQLite is a Store backed by an SQLite database.
type SQLite struct {
	db  *sqlx.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema. ":memory:" opens a private in-memory database.
func OpenSQLite(path string) (*SQLite, error) {
	memory := path == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if memory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &SQLite{db: db, now: time.Now}, nil
}

func dsn(path string) string {
	pragmas := "_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)"
	if path == ":memory:" {
		return "file::memory:?" + pragmas
	}
	return "file:" + path + "?" + pragmas + "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CampaignBySlug implements Store.
func (s *SQLite) CampaignBySlug(ctx context.Context, slug string) (*Campaign, error) {
	var row campaignRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM campaigns WHERE slug = ?`, strings.ToLower(slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: campaign %q: %w", slug, err)
	}
	return row.campaign(), nil
}

// CreateCampaign implements Store.
func (s *SQLite) CreateCampaign(ctx context.Context, n NewCampaign) (*Campaign, error) {
	c, err := n.build(s.now())
	if err != nil {
		return nil, err
	}

	var exists int
	if err := s.db.GetContext(ctx, &exists, `SELECT COUNT(*) FROM campaigns WHERE slug = ?`, c.Slug); err != nil {
		return nil, fmt.Errorf("store: check slug: %w", err)
	}
	if exists > 0 {
		return nil, fmt.Errorf("%w: %s", ErrSlugTaken, c.Slug)
	}

	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO campaigns (id, slug, name, description, frame_url, creator_id, creator_name,
			status, supporters_count, expires_at, created_at)
		VALUES (:id, :slug, :name, :description, :frame_url, :creator_id, :creator_name,
			:status, :supporters_count, :expires_at, :created_at)`, rowFor(c))
	if err != nil {
		return nil, fmt.Errorf("store: insert campaign: %w", err)
	}
	return c, nil
}

// IncrementSupporters implements Counters.
func (s *SQLite) IncrementSupporters(ctx context.Context, campaignID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET supporters_count = supporters_count + 1 WHERE id = ?`, campaignID)
	if err != nil {
		return fmt.Errorf("store: increment supporters: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementDownloads implements Counters.
func (s *SQLite) IncrementDownloads(ctx context.Context, campaignID string, day time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO campaign_downloads (campaign_id, day, count) VALUES (?, ?, 1)
		ON CONFLICT (campaign_id, day) DO UPDATE SET count = count + 1`,
		campaignID, dayKey(day))
	if err != nil {
		return fmt.Errorf("store: increment downloads: %w", err)
	}
	return nil
}

// DownloadsOn implements Counters.
func (s *SQLite) DownloadsOn(ctx context.Context, campaignID string, day time.Time) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n,
		`SELECT count FROM campaign_downloads WHERE campaign_id = ? AND day = ?`, campaignID, dayKey(day))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: downloads: %w", err)
	}
	return n, nil
}

// ExpireCampaigns implements Store.
func (s *SQLite) ExpireCampaigns(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE campaigns SET status = ?
		WHERE status = ? AND expires_at IS NOT NULL AND expires_at <= ?`,
		StatusInactive, StatusActive, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("store: expire campaigns: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: expire campaigns: %w", err)
	}
	return int(n), nil
}
