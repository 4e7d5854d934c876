// Package housekeeping runs the periodic cleanup jobs: expired session
// removal and abandoned draft deletion.
package housekeeping

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/depotkit/concierge/pkg/session"
	"github.com/depotkit/concierge/pkg/store"
)

// Sweeper deletes expired sessions and abandoned drafts on a cron schedule.
type Sweeper struct {
	store       store.Store
	sessions    session.Store
	draftMaxAge time.Duration
	cron        *cron.Cron
	logger      *slog.Logger
}

func New(st store.Store, sessions session.Store, draftMaxAge time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:       st,
		sessions:    sessions,
		draftMaxAge: draftMaxAge,
		cron:        cron.New(),
		logger:      logger.With("component", "housekeeping"),
	}
}

// Start registers the sweep on the given cron schedule and begins running
// it in the background.
func (s *Sweeper) Start(schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.Sweep(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("sweeper started", "schedule", schedule)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep runs one cleanup pass. Failures are logged rather than returned
// because the job reruns on the next tick.
func (s *Sweeper) Sweep(ctx context.Context) {
	sessions, err := s.sessions.DeleteExpired(ctx)
	if err != nil {
		s.logger.Error("session sweep failed", "error", err)
	}
	drafts, err := s.store.DeleteAbandonedDrafts(ctx, s.draftMaxAge)
	if err != nil {
		s.logger.Error("draft sweep failed", "error", err)
	}
	if sessions > 0 || drafts > 0 {
		s.logger.Info("sweep complete", "expired_sessions", sessions, "abandoned_drafts", drafts)
	}
}
