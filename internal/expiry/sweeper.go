package expiry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ticket-inventory/internal/audit"
	"ticket-inventory/internal/engine"
	"ticket-inventory/internal/inventory/db"
	"ticket-inventory/internal/logger"
	"ticket-inventory/internal/models"
)

const sweepBatchSize = 500

// Sweeper flips VALID and CANCELLED tickets of fully elapsed events to
// EXPIRED. This is a reporting transition only: no-show capacity stays
// committed unless an admin explicitly cancels, so the ledger is never touched
// here.
type Sweeper struct {
	Bun      *bun.DB
	Logger   *logger.Logger
	Interval time.Duration
	Now      func() time.Time
}

func NewSweeper(bunDB *bun.DB, log *logger.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{
		Bun:      bunDB,
		Logger:   log,
		Interval: interval,
		Now:      time.Now,
	}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := s.SweepOnce(ctx)
			if err != nil {
				if s.Logger != nil {
					s.Logger.Error("SWEEP", fmt.Sprintf("expiry sweep failed: %v", err))
				}
				continue
			}
			if expired > 0 && s.Logger != nil {
				s.Logger.LogSweep(fmt.Sprintf("expired %d tickets", expired))
			}
		}
	}
}

// SweepOnce expires one batch of candidates and returns how many moved.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.Now()
	expired := 0

	err := s.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		tickets := db.New(tx)
		trail := audit.New(tx)

		candidates, err := tickets.ExpireCandidates(ctx, now, sweepBatchSize)
		if err != nil {
			return err
		}
		for _, t := range candidates {
			ok, err := tickets.TransitionState(ctx, t.ID, t.State, engine.StateExpired)
			if err != nil {
				return err
			}
			if !ok {
				// Moved concurrently (admitted or deleted); skip.
				continue
			}
			if err := trail.Append(ctx, &models.AuditEntry{
				TicketID:  t.ID,
				EventID:   t.EventID,
				Actor:     "system",
				ActorRole: "sweeper",
				FromState: string(t.State),
				ToState:   string(engine.StateExpired),
				Outcome:   "OK",
				Detail:    "event window elapsed without admission",
			}); err != nil {
				return err
			}
			expired++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return expired, nil
}
