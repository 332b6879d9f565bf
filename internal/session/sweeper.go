package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper deletes expired sessions on a fixed schedule, decoupled from
// request serving. Deletions go through the store's own transactional
// delete, never past it.
type Sweeper struct {
	store    Store
	interval time.Duration
	logger   *slog.Logger
	onSweep  func(deleted int)
	cron     *cron.Cron
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepCallback registers a hook called after each sweep with the
// number of sessions deleted.
func WithSweepCallback(fn func(deleted int)) SweeperOption {
	return func(s *Sweeper) { s.onSweep = fn }
}

// WithSweeperLogger sets the sweeper's logger.
func WithSweeperLogger(l *slog.Logger) SweeperOption {
	return func(s *Sweeper) { s.logger = l }
}

// NewSweeper creates a sweeper over the store.
func NewSweeper(store Store, interval time.Duration, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		store:    store,
		interval: interval,
		logger:   slog.Default(),
		cron:     cron.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start schedules the sweep and runs one immediately, so a restart clears
// sessions that expired while the process was down.
func (s *Sweeper) Start() error {
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.cron.Start()
	s.run()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Sweep runs one sweep and returns how many sessions it deleted.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	deleted, err := s.store.SweepExpired(ctx)
	if err != nil {
		return 0, err
	}
	if s.onSweep != nil {
		s.onSweep(deleted)
	}
	return deleted, nil
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	deleted, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Error("session sweep failed", "error", err)
		return
	}
	if deleted > 0 {
		s.logger.Info("swept expired sessions", "deleted", deleted)
	}
}
