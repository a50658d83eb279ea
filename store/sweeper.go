package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/saadchadu/phrames/internal/metrics"
)

// DefaultSweepSchedule runs the expiry sweep at the top of every hour.
const DefaultSweepSchedule = "@hourly"

// Expirer is the part of Store the sweeper needs.
type Expirer interface {
	ExpireCampaigns(ctx context.Context, now time.Time) (int, error)
}

// Sweeper deactivates expired campaigns on a cron schedule.
type Sweeper struct {
	store   Expirer
	cron    *cron.Cron
	logger  *slog.Logger
	now     func() time.Time
	timeout time.Duration
}

// NewSweeper schedules st's expiry sweep. An empty schedule uses
// DefaultSweepSchedule.
func NewSweeper(st Expirer, schedule string, logger *slog.Logger) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Sweeper{
		store:   st,
		cron:    cron.New(),
		logger:  logger,
		now:     time.Now,
		timeout: time.Minute,
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("store: sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start runs the schedule in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep, or ctx.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Sweep expires campaigns once, now.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	n, err := s.store.ExpireCampaigns(ctx, s.now())
	if err != nil {
		return 0, err
	}
	metrics.RecordSweep(n)
	if n > 0 {
		s.logger.Info("expired campaigns", "count", n)
	}
	return n, nil
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error("campaign expiry sweep failed", "err", err)
	}
}
