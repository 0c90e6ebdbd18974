package server

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Janitor periodically prunes staged files older than the retention period.
type Janitor struct {
	cron      *cron.Cron
	store     FileStore
	retention time.Duration
	now       func() time.Time
}

// NewJanitor schedules pruning of store on a cron schedule such as "@every 1h"
// or "0 3 * * *". Call Start to begin running.
func NewJanitor(store FileStore, schedule string, retention time.Duration) (*Janitor, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %v", retention)
	}

	j := &Janitor{
		cron:      cron.New(),
		store:     store,
		retention: retention,
		now:       time.Now,
	}

	_, err := j.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()

		if _, err := j.Sweep(ctx); err != nil {
			JanitorLogger.Error("Staging cleanup failed", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("error scheduling cleanup %q: %w", schedule, err)
	}

	return j, nil
}

// Sweep prunes once and returns the number of files removed.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	cutoff := j.now().Add(-j.retention)
	n, err := j.store.Prune(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		JanitorLogger.Info("Pruned staged files", map[string]interface{}{
			"removed": n,
			"cutoff":  cutoff,
		})
	}
	return n, nil
}

func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}
