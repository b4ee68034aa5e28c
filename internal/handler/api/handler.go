package api

import (
	"context"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/scheduler"
	"MarketPulse/internal/service/ratelimit"
	"MarketPulse/internal/usecase"
	xlogger "MarketPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Refresher is the part of the scheduler the API drives.
type Refresher interface {
	Trigger(ctx context.Context, family string) bool
	Status() []scheduler.Status
}

// Analyzer runs surprise analyses.
type Analyzer interface {
	Analyze(ctx context.Context, item models.NewsItem, retry bool) (*models.SurpriseAnalysis, error)
	State(id models.NewsIdentity) models.AnalysisState
}

type RateHistory interface {
	History(ctx context.Context, bank string, days int) ([]models.RateSnapshotRef, error)
}

// Snapshots bundles the published family stores.
type Snapshots struct {
	News     *scheduler.SnapshotStore[models.NewsSnapshot]
	Currency *scheduler.SnapshotStore[models.CurrencyStrengthSnapshot]
	Rates    *scheduler.SnapshotStore[models.RatesSnapshot]
	Calendar *scheduler.SnapshotStore[models.CalendarSnapshot]
}

type Options struct {
	// RatesInterval and StaleGrace decide isStale on served banks.
	RatesInterval time.Duration
	StaleGrace    time.Duration
	// AnalyzeTimeout bounds how long a request waits for a verdict. The
	// analysis itself keeps running after the wait is abandoned.
	AnalyzeTimeout time.Duration
	// AnalyzeLimiter throttles the analysis endpoints per client IP; nil
	// disables it.
	AnalyzeLimiter *ratelimit.Limiter
}

// SignalsHandler serves the dashboard API.
type SignalsHandler struct {
	logger     *xlogger.Logger
	snaps      Snapshots
	refresher  Refresher
	analyzer   Analyzer
	normalizer *usecase.Normalizer
	history    RateHistory
	opts       Options
	now        func() time.Time
}

func NewSignalsHandler(
	logger *xlogger.Logger,
	snaps Snapshots,
	refresher Refresher,
	analyzer Analyzer,
	normalizer *usecase.Normalizer,
	history RateHistory,
	opts Options,
) *SignalsHandler {
	if opts.RatesInterval <= 0 {
		opts.RatesInterval = 4 * time.Hour
	}
	if opts.StaleGrace <= 0 {
		opts.StaleGrace = 10 * time.Minute
	}
	if opts.AnalyzeTimeout <= 0 {
		opts.AnalyzeTimeout = 30 * time.Second
	}
	return &SignalsHandler{
		logger:     logger.Component("api"),
		snaps:      snaps,
		refresher:  refresher,
		analyzer:   analyzer,
		normalizer: normalizer,
		history:    history,
		opts:       opts,
		now:        time.Now,
	}
}

func (h *SignalsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")

	g.GET("/currency", h.Currency)
	g.GET("/currency-strength", h.CurrencyStrength)

	g.GET("/events", h.Events)
	g.GET("/events/next", h.NextEvent)
	g.GET("/calendar/weekly", h.WeeklyCalendar)

	g.GET("/financial-news", h.News)
	g.POST("/financial-news/refresh", h.RefreshNews)
	g.POST("/financial-news/analyze", h.Analyze)
	g.POST("/analyze-market-surprise", h.Analyze)

	g.GET("/interest-rates/probabilities", h.RateProbabilities)
	g.GET("/interest-rates/history", h.RateHistory)

	g.GET("/health", h.Health)
}
