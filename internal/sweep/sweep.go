// Package sweep closes events whose admission period is over.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — when is an event "over"?
// ────────────────────────────────────────────────────────────────────
// An event stops admitting people at its last admission moment
// (checkin.LastAdmission). Every active mandatory rule must hold, so the
// earliest mandatory close ends admission. Without mandatory rules the
// latest optional close does. An event with no active rule gets the
// maximum offset, a full day. Once that moment has passed, desk check-ins can no
// longer succeed, so the sweep marks the event closed and records it on
// the dashboard feed.
//
// The job runs on a robfig/cron schedule. Schedules use the standard
// five-field syntax or descriptors such as "@every 5m" and "@hourly".
package sweep

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/eventdesk/checkpoint/internal/checkin"
	"github.com/eventdesk/checkpoint/internal/db"
	"github.com/eventdesk/checkpoint/internal/models"
	"github.com/robfig/cron/v3"
)

// Recorder stores an activity and publishes it. *handlers.Server
// implements it.
type Recorder interface {
	Record(ctx context.Context, a models.Activity) error
}

// Sweeper runs the auto-close job.
type Sweeper struct {
	db       *sql.DB
	recorder Recorder
	logger   *slog.Logger
	cron     *cron.Cron

	// Now is the clock. Nil means time.Now.
	Now func() time.Time
}

// New creates a sweeper. recorder may be nil.
func New(database *sql.DB, recorder Recorder, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		db:       database,
		recorder: recorder,
		logger:   logger,
		cron:     cron.New(),
	}
}

// Start schedules the job and starts the cron runner.
func (s *Sweeper) Start(schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		n, err := s.CloseFinished(ctx)
		if err != nil {
			s.logger.Error("auto-close sweep", "error", err)
			return
		}
		if n > 0 {
			s.logger.Info("auto-close sweep", "closed", n)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", schedule, err)
	}
	s.cron.Start()
	s.logger.Info("auto-close sweep scheduled", "schedule", schedule)
	return nil
}

// Stop stops the runner and waits for a running job to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

type candidate struct {
	id, name string
	startsAt time.Time
}

// CloseFinished closes every active event whose last admission moment is
// in the past and returns how many it closed.
func (s *Sweeper) CloseFinished(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}

	// Collect first: SQLite should not be written to while a read cursor
	// on the same table is still open.
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, starts_at FROM events WHERE status = 'active'`)
	if err != nil {
		return 0, fmt.Errorf("list active events: %w", err)
	}
	var active []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.name, &c.startsAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan event: %w", err)
		}
		active = append(active, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("list active events: %w", err)
	}

	closed := 0
	for _, c := range active {
		rules, err := db.LoadRules(ctx, s.db, c.id)
		if err != nil {
			return closed, fmt.Errorf("load rules for %s: %w", c.id, err)
		}
		last := checkin.LastAdmission(rules, c.startsAt)
		if !now.After(last) {
			continue
		}

		res, err := s.db.ExecContext(ctx,
			`UPDATE events SET status = 'closed', updated_at = ? WHERE id = ? AND status = 'active'`,
			now, c.id)
		if err != nil {
			return closed, fmt.Errorf("close %s: %w", c.id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue // closed by someone else meanwhile
		}
		closed++
		s.logger.Debug("event auto-closed", "event_id", c.id, "last_admission", last)

		if s.recorder != nil {
			a := models.Activity{
				Kind:    models.ActivityEventClosed,
				Event:   c.name,
				EventID: c.id,
				Detail:  "admission period ended",
				At:      now,
			}
			if err := s.recorder.Record(ctx, a); err != nil {
				s.logger.Warn("record auto-close", "event_id", c.id, "error", err)
			}
		}
	}
	return closed, nil
}
