// Package services hosts long-running background services that sit beside
// the HTTP API.
package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"ingestloom-backend/internal/indexer"
	"ingestloom-backend/internal/logger"
	"ingestloom-backend/internal/storage"
)

// ReindexSweeper periodically walks every user directory and re-runs the
// indexer. The manifest diff makes each pass cheap: users with no changed
// files are a stat-walk and nothing else. This picks up files dropped into
// the upload tree outside the API.
type ReindexSweeper struct {
	scheduler *gocron.Scheduler
	storage   storage.Store
	indexer   *indexer.Indexer
	interval  time.Duration
}

func NewReindexSweeper(st storage.Store, ix *indexer.Indexer, interval time.Duration) *ReindexSweeper {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	return &ReindexSweeper{
		scheduler: s,
		storage:   st,
		indexer:   ix,
		interval:  interval,
	}
}

// Start schedules the sweep and returns immediately. A zero or negative
// interval disables the sweeper.
func (s *ReindexSweeper) Start() error {
	if s.interval <= 0 {
		return nil
	}
	_, err := s.scheduler.Every(s.interval).Tag("reindex-sweep").Do(s.sweep)
	if err != nil {
		return err
	}
	s.scheduler.StartAsync()
	logger.Info("re-index sweep scheduled", "interval", s.interval.String())
	return nil
}

func (s *ReindexSweeper) Stop() {
	s.scheduler.Stop()
}

func (s *ReindexSweeper) sweep() {
	users, err := s.storage.Users()
	if err != nil {
		logger.Error("re-index sweep failed to list users", "error", err)
		return
	}

	for _, userID := range users {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		result, err := s.indexer.IndexUserUploads(ctx, userID)
		cancel()
		if err != nil {
			logger.Error("re-index sweep failed for user", "user_id", userID, "error", err)
			continue
		}
		if result.Indexed {
			logger.Info("re-index sweep indexed changes", "user_id", userID, "count", result.Count)
		}
	}
}
