package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Walkover-Web-Solution/hippocampus/internal/messaging"
	"github.com/Walkover-Web-Solution/hippocampus/internal/models"
)

// RefreshableLister finds URL-backed resources due for a re-load.
type RefreshableLister interface {
	ListRefreshableResources(ctx context.Context, refreshedBefore time.Time) ([]models.Resource, error)
}

// SyncJob periodically enqueues load events for stale URL resources. The
// load stage's content-hash check makes unchanged sources cheap: they jump
// straight back to chunked without re-indexing.
type SyncJob struct {
	resources   RefreshableLister
	broker      messaging.Broker
	ingestQueue string
	interval    time.Duration
	maxAge      time.Duration
	logger      *logrus.Logger
}

// NewSyncJob wires the cron worker. interval defaults to 1h, maxAge to 24h.
func NewSyncJob(resources RefreshableLister, broker messaging.Broker, ingestQueue string, interval, maxAge time.Duration, logger *logrus.Logger) *SyncJob {
	if interval <= 0 {
		interval = time.Hour
	}
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &SyncJob{
		resources:   resources,
		broker:      broker,
		ingestQueue: ingestQueue,
		interval:    interval,
		maxAge:      maxAge,
		logger:      logger,
	}
}

// Run ticks until ctx ends.
func (j *SyncJob) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			j.Tick(ctx)
		}
	}
}

// Tick enqueues one load event per stale resource.
func (j *SyncJob) Tick(ctx context.Context) {
	cutoff := time.Now().Add(-j.maxAge)
	stale, err := j.resources.ListRefreshableResources(ctx, cutoff)
	if err != nil {
		j.logger.WithError(err).Warn("Sync job could not list resources")
		return
	}

	for _, r := range stale {
		event := models.IngestEvent{
			Version: models.EventVersion,
			Event:   models.EventLoad,
			Data: models.IngestEventData{
				ResourceID:   r.ID,
				CollectionID: r.CollectionID,
				OwnerID:      r.OwnerID,
				URL:          r.URL,
			},
		}
		if err := j.broker.Publish(ctx, j.ingestQueue, event); err != nil {
			j.logger.WithError(err).WithField("resource", r.ID).Warn("Sync job failed to enqueue load")
		}
	}

	if len(stale) > 0 {
		j.logger.WithField("resources", len(stale)).Info("Sync job enqueued re-loads")
	}
}
