package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"pinetree/internal/services"
)

const trashSweepLock = "pinetree:lock:trash_sweep"

// TrashPurger permanently removes trees trashed before a cutoff
type TrashPurger interface {
	PurgeTrash(ctx context.Context, cutoff time.Time) (int, error)
}

// TrashSweepJob purges trees that have sat in the trash longer than the
// retention period
type TrashSweepJob struct {
	purger    TrashPurger
	redis     *services.RedisService
	retention time.Duration
	schedule  string
	now       func() time.Time
}

// NewTrashSweepJob creates a new trash sweep job. redis may be nil, in which
// case the sweep runs without a cross-instance lock.
func NewTrashSweepJob(purger TrashPurger, redis *services.RedisService, retention time.Duration, schedule string) *TrashSweepJob {
	return &TrashSweepJob{
		purger:    purger,
		redis:     redis,
		retention: retention,
		schedule:  schedule,
		now:       time.Now,
	}
}

// Schedule returns the cron expression
func (j *TrashSweepJob) Schedule() string { return j.schedule }

// Run purges every tree trashed before now minus retention
func (j *TrashSweepJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)

	ran, err := j.redis.RunExclusive(ctx, trashSweepLock, 30*time.Minute, func(ctx context.Context) error {
		purged, err := j.purger.PurgeTrash(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("failed to purge trash: %w", err)
		}
		log.Printf("🧹 [TRASH-SWEEP] Purged %d trees trashed before %s", purged, cutoff.Format(time.RFC3339))
		return nil
	})
	if err != nil {
		return err
	}
	if !ran {
		log.Println("⏭️  [TRASH-SWEEP] Another instance holds the sweep lock, skipping")
	}
	return nil
}
