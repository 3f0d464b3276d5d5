// Package schedule runs plans on recurring cron schedules.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// RunFunc executes one scheduled run of a plan.
type RunFunc func(ctx context.Context, planID string, runData map[string]any) error

// Entry is one cron-bound plan.
type Entry struct {
	ID       string
	PlanID   string
	CronExpr string
	Enabled  bool
}

// Validate checks the entry is runnable.
func (e *Entry) Validate() error {
	if e.ID == "" {
		return errors.New("schedule entry ID is required")
	}

	if e.PlanID == "" {
		return errors.New("schedule entry plan ID is required")
	}

	if e.CronExpr == "" {
		return errors.New("schedule entry cron expression is required")
	}

	if _, err := cron.ParseStandard(e.CronExpr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	return nil
}

// Scheduler owns a single cron runner and the entries registered on it.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	run     RunFunc
	logger  *slog.Logger
	entries map[string]cron.EntryID
	started bool
}

// NewScheduler creates a scheduler that executes plans through run.
func NewScheduler(logger *slog.Logger, run RunFunc) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DefaultLogger),
			cron.Recover(cron.DefaultLogger),
		)),
		run:     run,
		logger:  logger.With("module", "schedule"),
		entries: make(map[string]cron.EntryID),
	}
}

// Add registers an entry. Adding an entry with an existing ID replaces it.
func (s *Scheduler) Add(entry Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[entry.ID]; ok {
		s.cron.Remove(existing)
		delete(s.entries, entry.ID)
	}

	if !entry.Enabled {
		s.logger.Info("Schedule entry is disabled", "id", entry.ID, "plan_id", entry.PlanID)

		return nil
	}

	logger := s.logger.With("id", entry.ID, "cron", entry.CronExpr, "plan_id", entry.PlanID)

	cronID, err := s.cron.AddFunc(entry.CronExpr, func() {
		logger.Info("Cron job triggered")

		runData := map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}

		if err := s.run(context.Background(), entry.PlanID, runData); err != nil {
			logger.Error("Error executing scheduled plan", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job for entry %s: %w", entry.ID, err)
	}

	s.entries[entry.ID] = cronID

	logger.Info("Added cron job for schedule entry")

	return nil
}

// Remove unregisters an entry. Removing an unknown ID is a no-op.
func (s *Scheduler) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cronID, ok := s.entries[id]; ok {
		s.cron.Remove(cronID)
		delete(s.entries, id)
	}
}

// Start begins firing registered entries.
func (s *Scheduler) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info("Starting scheduler")
	s.cron.Start()
	s.started = true

	return nil
}

// Stop halts the cron runner and waits for in-flight jobs to finish or the
// context to expire, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.Info("Stopping scheduler")

	done := s.cron.Stop().Done()
	s.started = false

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
