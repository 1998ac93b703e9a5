package spool

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// PruneFunc removes runs started before the cutoff and returns the
// artifact directories that backed them.
type PruneFunc func(cutoff time.Time) ([]string, error)

// Janitor deletes old run artifacts on a cron schedule.
type Janitor struct {
	schedule cron.Schedule
	keep     time.Duration
	prune    PruneFunc

	lastRun time.Time
	mu      sync.Mutex
}

// NewJanitor creates a janitor that fires per the cron expression and
// prunes runs older than keepDays.
func NewJanitor(cronExpr string, keepDays int, prune PruneFunc) (*Janitor, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, err
	}

	return &Janitor{
		schedule: schedule,
		keep:     time.Duration(keepDays) * 24 * time.Hour,
		prune:    prune,
	}, nil
}

// ShouldRun returns true if the schedule has elapsed since the last sweep.
func (j *Janitor) ShouldRun(now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	last := j.lastRun
	if last.IsZero() {
		last = now.Add(-24 * time.Hour)
	}
	return now.After(j.schedule.Next(last))
}

// Sweep prunes expired runs and removes their artifact directories.
func (j *Janitor) Sweep(now time.Time) {
	j.mu.Lock()
	j.lastRun = now
	j.mu.Unlock()

	dirs, err := j.prune(now.Add(-j.keep))
	if err != nil {
		log.Printf("retention prune failed: %v", err)
		return
	}
	for _, dir := range dirs {
		if err := os.RemoveAll(dir); err != nil {
			log.Printf("removing artifacts %s: %v", dir, err)
		}
	}
	if len(dirs) > 0 {
		log.Printf("retention sweep removed %d expired run(s)", len(dirs))
	}
}

// Start runs the janitor loop until the context is canceled.
func (j *Janitor) Start(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if j.ShouldRun(time.Now()) {
				j.Sweep(time.Now())
			}
		}
	}
}
