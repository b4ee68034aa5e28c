package usecase

import (
	"context"

	"MarketPulse/internal/domain/models"
	"MarketPulse/pkg/logger"
	"MarketPulse/pkg/queue"
)

// AnalysisJobType is the queue message type of auto-analysis requests.
const AnalysisJobType = "surprise.analyze"

// AnalysisJob analyzes newly seen economic prints off the request path.
// A queue retry of a failed message is an explicit Retry.
type AnalysisJob struct {
	orchestrator *SurpriseOrchestrator
	log          *logger.Logger
}

func NewAnalysisJob(o *SurpriseOrchestrator, log *logger.Logger) *AnalysisJob {
	return &AnalysisJob{orchestrator: o, log: log.Component("analysis-job")}
}

func (j *AnalysisJob) Name() string { return "surprise-analysis" }

func (j *AnalysisJob) Type() string { return AnalysisJobType }

func (j *AnalysisJob) Handle(ctx context.Context, msg queue.Message) error {
	item, err := queue.ParsePayload[models.NewsItem](msg)
	if err != nil {
		// A payload that does not decode will never succeed.
		j.log.Error("bad analysis payload", logger.String("id", msg.ID), logger.Error(err))
		return nil
	}

	a, err := j.orchestrator.Analyze(ctx, *item, msg.Attempts > 0)
	if err != nil {
		if models.KindOf(err) == models.KindMissingData {
			return nil
		}
		return err
	}
	j.log.Debug("print analyzed",
		logger.String("headline", item.Headline),
		logger.String("verdict", string(a.Verdict)),
		logger.Bool("cached", a.Cached))
	return nil
}

// EnqueueAnalyses queues every item that carries actual and forecast.
func EnqueueAnalyses(ctx context.Context, pub queue.Publisher, items []models.NewsItem, log *logger.Logger) int {
	n := 0
	for _, it := range items {
		if !it.EconomicData.HasSurpriseInputs() {
			continue
		}
		if err := pub.Enqueue(ctx, AnalysisJobType, it); err != nil {
			log.Warn("analysis not queued", logger.String("headline", it.Headline), logger.Error(err))
			continue
		}
		n++
	}
	return n
}
