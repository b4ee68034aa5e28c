package usecase

import (
	"context"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	"MarketPulse/pkg/logger"
	"MarketPulse/pkg/queue"

	"github.com/google/uuid"
)

type NewsFeedOptions struct {
	// AutoAnalyze queues every new print that has actual and forecast.
	AutoAnalyze bool
}

// NewsFeed runs one news cycle: scrape, normalize, dedup, then fan out
// the newly critical headlines and new prints.
type NewsFeed struct {
	source     domrepo.NewsSource
	normalizer *Normalizer
	classifier *NewsClassifier
	publisher  domrepo.EventPublisher
	queue      queue.Publisher
	opts       NewsFeedOptions
	log        *logger.Logger
}

func NewNewsFeed(
	source domrepo.NewsSource,
	normalizer *Normalizer,
	classifier *NewsClassifier,
	publisher domrepo.EventPublisher,
	q queue.Publisher,
	opts NewsFeedOptions,
	log *logger.Logger,
) *NewsFeed {
	return &NewsFeed{
		source:     source,
		normalizer: normalizer,
		classifier: classifier,
		publisher:  publisher,
		queue:      q,
		opts:       opts,
		log:        log.Component("news-feed"),
	}
}

func (f *NewsFeed) Refresh(ctx context.Context, _ *models.NewsSnapshot) (*models.NewsSnapshot, error) {
	raw, err := f.source.FetchNews(ctx)
	if err != nil {
		return nil, err
	}

	items, dropped := f.normalizer.News(raw)
	obs := f.classifier.Observe(items)

	for _, it := range obs.NewlyCritical {
		f.log.Info("critical headline", logger.String("headline", it.Headline), logger.Strings("tags", it.Tags))
		if f.publisher == nil {
			continue
		}
		ev := models.SignalEvent{
			ID:         uuid.NewString(),
			Type:       models.SignalNewsCritical,
			Family:     "news",
			OccurredAt: time.Now().UTC(),
			Payload:    it,
		}
		if err := f.publisher.Publish(ctx, ev); err != nil {
			f.log.Warn("critical headline not published", logger.Error(err))
		}
	}

	ready := append(obs.New, obs.Completed...)
	if f.opts.AutoAnalyze && f.queue != nil && len(ready) > 0 {
		if n := EnqueueAnalyses(ctx, f.queue, ready, f.log); n > 0 {
			f.log.Debug("prints queued for analysis", logger.Int("count", n))
		}
	}

	return &models.NewsSnapshot{Items: obs.Active, Dropped: dropped}, nil
}
