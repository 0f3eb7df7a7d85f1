package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/finitixhub/finitix_be/internal/models"
	"github.com/finitixhub/finitix_be/internal/realtime"
)

type Scheduler struct {
	db   *gorm.DB
	feed realtime.Publisher
	cron *cron.Cron
	now  func() time.Time
}

func New(db *gorm.DB, feed realtime.Publisher) *Scheduler {
	return &Scheduler{db: db, feed: feed, cron: cron.New(), now: time.Now}
}

// Start registers the job expiry sweep under spec (a cron expression or
// "@every <duration>") and starts the cron runner.
func (s *Scheduler) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		n, err := s.CloseExpiredJobs(context.Background())
		if err != nil {
			log.Printf("[Scheduler] closing expired jobs failed: %v", err)
			return
		}
		if n > 0 {
			log.Printf("[Scheduler] closed %d expired job(s)", n)
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("[Scheduler] job expiry scheduled: %s", spec)
	return nil
}

// Stop waits for a running sweep to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// CloseExpiredJobs closes open postings whose deadline has passed and
// publishes an update for each closed row.
func (s *Scheduler) CloseExpiredJobs(ctx context.Context) (int, error) {
	now := s.now()

	var jobs []models.JobPosting
	if err := s.db.WithContext(ctx).
		Where("status = ? AND deadline IS NOT NULL AND deadline < ?", models.JobStatusOpen, now).
		Find(&jobs).Error; err != nil {
		return 0, err
	}

	closed := 0
	for i := range jobs {
		job := &jobs[i]
		res := s.db.WithContext(ctx).Model(&models.JobPosting{}).
			Where("id = ? AND status = ?", job.ID, models.JobStatusOpen).
			Update("status", models.JobStatusClosed)
		if res.Error != nil {
			return closed, res.Error
		}
		if res.RowsAffected == 0 {
			// closed by its owner in the meantime
			continue
		}
		job.Status = models.JobStatusClosed
		closed++
		realtime.Emit(ctx, s.feed, "job_postings", realtime.ChangeUpdate, job.ID.String(), job)
	}
	return closed, nil
}
