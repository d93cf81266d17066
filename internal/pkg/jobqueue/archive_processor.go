package jobqueue

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/loadway/Loadway/app/models"
	"github.com/loadway/Loadway/internal/pkg/database"
	"github.com/loadway/Loadway/internal/pkg/eventarchive"
)

const archiveBatchSize = 100

// processEventArchiveJob drains unarchived payment events to S3. The job is
// enqueued periodically by the manager; when archival is disabled it is a
// no-op so the ticker stays harmless in dev setups. Queries go straight
// through GORM here; the checkout repository lives in a package that imports
// this one.
func (q *Queue) processEventArchiveJob(ctx context.Context, job *Job) error {
	cfg := eventarchive.NewConfigFromEnv()
	if !cfg.IsEnabled() {
		log.Debugf("[JobQueue] Event archival disabled, skipping job %s", job.ID)
		return nil
	}

	archiver, err := eventarchive.NewArchiver(cfg)
	if err != nil {
		return err
	}

	db := database.GetDB()
	var events []models.PaymentEvent
	if err := db.Where("archived_at IS NULL").Order("id ASC").Limit(archiveBatchSize).Find(&events).Error; err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	archived := 0
	for _, event := range events {
		uploadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := archiver.ArchiveEvent(uploadCtx, event)
		cancel()
		if err != nil {
			log.Errorf("[JobQueue] Failed to archive event %d: %v", event.ID, err)
			continue
		}

		now := time.Now()
		if err := db.Model(&models.PaymentEvent{}).Where("id = ?", event.ID).
			Update("archived_at", &now).Error; err != nil {
			log.Errorf("[JobQueue] Failed to mark event %d archived: %v", event.ID, err)
			continue
		}
		archived++
	}

	log.Infof("[JobQueue] Archived %d/%d payment events", archived, len(events))
	return nil
}
