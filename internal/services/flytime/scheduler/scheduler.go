// Package scheduler runs the daily ledger maintenance loop.
//
// Maintenance guarantees every registered drone has a ledger row for the
// current day even when no telemetry arrives: once at process start, then at
// fixed local-time boundaries. Failures are logged and the loop keeps going;
// only context cancellation stops it.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"
)

// triggerHours are the local wall-clock boundaries a maintenance tick fires at.
var triggerHours = [...]int{0, 6, 12, 18}

// maxSleepSlice bounds a single uninterruptible wait so shutdown stays
// responsive even when the next boundary is hours away.
const maxSleepSlice = 5 * time.Second

// Store is the maintenance surface the scheduler depends on.
type Store interface {
	EnsureTodayForAll(ctx context.Context, now time.Time) (int, error)
}

// Scheduler drives ledger maintenance on a fixed daily boundary set.
type Scheduler struct {
	store Store
	now   func() time.Time
}

// New builds a scheduler around a ledger store. A nil clock defaults to
// time.Now.
func New(store Store, clock func() time.Time) *Scheduler {
	if clock == nil {
		clock = time.Now
	}
	return &Scheduler{store: store, now: clock}
}

// NextRunAfter returns the nearest maintenance boundary strictly after now,
// in now's location: one of 00:00, 06:00, 12:00, 18:00 today, else 00:00
// tomorrow.
func NextRunAfter(now time.Time) time.Time {
	for _, hour := range triggerHours {
		trigger := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
		if trigger.After(now) {
			return trigger
		}
	}
	tomorrow := now.AddDate(0, 0, 1)
	return time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 0, 0, 0, 0, now.Location())
}

// Run executes maintenance once immediately, then at every boundary until
// ctx is cancelled. Cancellation exits cleanly from any point.
func (s *Scheduler) Run(ctx context.Context) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("scheduler store is required")
	}

	s.ensure(ctx)

	for {
		trigger := NextRunAfter(s.now())
		if err := s.sleepUntil(ctx, trigger); err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		s.ensure(ctx)
	}
}

func (s *Scheduler) ensure(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	created, err := s.store.EnsureTodayForAll(ctx, s.now())
	if err != nil {
		log.Printf("ensure today ledger rows: %v", err)
		return
	}
	log.Printf("ensure today ledger rows created=%d", created)
}

// sleepUntil waits for the trigger instant in bounded slices, re-reading the
// clock between slices, and returns early when ctx ends.
func (s *Scheduler) sleepUntil(ctx context.Context, trigger time.Time) error {
	for {
		remaining := trigger.Sub(s.now())
		if remaining <= 0 {
			return nil
		}
		slice := remaining
		if slice > maxSleepSlice {
			slice = maxSleepSlice
		}
		timer := time.NewTimer(slice)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
