package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"conferencebot/internal/catalog"
	"conferencebot/internal/filter"
	"conferencebot/internal/models"
	"conferencebot/internal/storage"
)

// DefaultSchedule is used when no cron spec is configured
const DefaultSchedule = "@every 12h"

// Fetcher returns freshly discovered conferences
type Fetcher interface {
	Fetch(ctx context.Context) ([]models.Conference, error)
}

// Messenger delivers a list of conferences to a chat
type Messenger interface {
	NotifyConferences(chatID int64, conferences []models.Conference) error
}

// Job discovers new conferences and tells subscribed users about the
// ones matching their filters.
type Job struct {
	catalog   *catalog.Catalog
	fetcher   Fetcher
	db        storage.Storage
	messenger Messenger
	logger    *zap.Logger

	// Serializes runs: cron may fire while a slow run is still going.
	mu sync.Mutex
}

// NewJob creates a notification job
func NewJob(cat *catalog.Catalog, fetcher Fetcher, db storage.Storage, messenger Messenger, logger *zap.Logger) *Job {
	return &Job{
		catalog:   cat,
		fetcher:   fetcher,
		db:        db,
		messenger: messenger,
		logger:    logger,
	}
}

// Result summarizes one run
type Result struct {
	Added    int
	Notified int
	Failed   int
}

// Run executes one discovery and notification round
func (j *Job) Run(ctx context.Context) (Result, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var res Result

	found, err := j.fetcher.Fetch(ctx)
	if err != nil {
		return res, fmt.Errorf("discovering conferences: %w", err)
	}

	// Subscribers are listed before the merge: once merged, a conference is
	// never reported as new again.
	users, err := j.db.ListSubscribed(ctx)
	if err != nil {
		return res, fmt.Errorf("listing subscribers: %w", err)
	}

	added := j.catalog.Merge(found)
	res.Added = len(added)
	if len(added) == 0 {
		j.logger.Info("No new conferences discovered", zap.Int("fetched", len(found)))
		return res, nil
	}

	if err := j.catalog.Save(); err != nil {
		j.logger.Error("Failed to save catalog", zap.Error(err))
	}

	for _, prefs := range users {
		matches := filter.Filter(prefs, added)
		if len(matches) == 0 {
			continue
		}
		if err := j.messenger.NotifyConferences(prefs.UserID, matches); err != nil {
			res.Failed++
			j.logger.Warn("Failed to notify user",
				zap.Int64("user_id", prefs.UserID),
				zap.Error(err),
			)
			continue
		}
		res.Notified++
	}

	j.logger.Info("Notification round finished",
		zap.Int("added", res.Added),
		zap.Int("subscribers", len(users)),
		zap.Int("notified", res.Notified),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

// Scheduler runs a Job on a cron schedule
type Scheduler struct {
	cron   *cron.Cron
	job    *Job
	logger *zap.Logger
}

// NewScheduler registers job under spec. An empty spec uses DefaultSchedule.
func NewScheduler(spec string, job *Job, logger *zap.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}

	s := &Scheduler{
		cron:   cron.New(),
		job:    job,
		logger: logger,
	}

	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("failed to add cron spec %s: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) run() {
	if _, err := s.job.Run(context.Background()); err != nil {
		s.logger.Error("Notification job failed", zap.Error(err))
	}
}

// Start begins running the job in the background
func (s *Scheduler) Start() {
	s.logger.Info("Starting notification scheduler")
	s.cron.Start()
}

// Stop stops the scheduler and waits for a running job to finish or ctx to expire
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("Notification job still running at shutdown")
	}
}
