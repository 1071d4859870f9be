package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"pinetree/internal/services"
)

const imageSweepLock = "pinetree:lock:image_sweep"

// OrphanPurger removes stored images whose node is gone
type OrphanPurger interface {
	PurgeOrphans(ctx context.Context) (int, error)
}

// OrphanImageSweepJob deletes images left behind by deleted or purged nodes
type OrphanImageSweepJob struct {
	purger   OrphanPurger
	redis    *services.RedisService
	schedule string
}

// NewOrphanImageSweepJob creates a new orphan image sweep job
func NewOrphanImageSweepJob(purger OrphanPurger, redis *services.RedisService, schedule string) *OrphanImageSweepJob {
	return &OrphanImageSweepJob{
		purger:   purger,
		redis:    redis,
		schedule: schedule,
	}
}

// Schedule returns the cron expression
func (j *OrphanImageSweepJob) Schedule() string { return j.schedule }

// Run purges orphaned images
func (j *OrphanImageSweepJob) Run(ctx context.Context) error {
	ran, err := j.redis.RunExclusive(ctx, imageSweepLock, 30*time.Minute, func(ctx context.Context) error {
		purged, err := j.purger.PurgeOrphans(ctx)
		if err != nil {
			return fmt.Errorf("failed to purge orphaned images: %w", err)
		}
		if purged > 0 {
			log.Printf("🧹 [IMAGE-SWEEP] Removed %d orphaned images", purged)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !ran {
		log.Println("⏭️  [IMAGE-SWEEP] Another instance holds the sweep lock, skipping")
	}
	return nil
}
