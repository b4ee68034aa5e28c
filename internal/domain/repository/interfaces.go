package repository

import (
	"context"
	"time"

	"MarketPulse/internal/domain/models"
)

type NewsSource interface {
	FetchNews(ctx context.Context) ([]models.RawNewsItem, error)
}

type QuoteSource interface {
	FetchQuotes(ctx context.Context, pairs []models.Pair) ([]models.RawQuote, error)
}

type RateSource interface {
	FetchRates(ctx context.Context) (*models.RawRateFeed, error)
}

type CalendarSource interface {
	FetchEvents(ctx context.Context) ([]models.RawEvent, error)
}

// HistoryStore keeps time series of derived snapshots.
type HistoryStore interface {
	Init(ctx context.Context) error
	SaveRateSnapshots(ctx context.Context, refs []models.RateSnapshotRef) error
	// RateSnapshotAt returns the latest point recorded at or before at,
	// or nil when there is none.
	RateSnapshotAt(ctx context.Context, bank string, at time.Time) (*models.RateSnapshotRef, error)
	RateHistory(ctx context.Context, bank string, since time.Time) ([]models.RateSnapshotRef, error)
	SaveStrength(ctx context.Context, entries []models.CurrencyStrengthEntry, at time.Time) error
	Close() error
}

// EventPublisher ships signal events downstream.
type EventPublisher interface {
	Publish(ctx context.Context, ev models.SignalEvent) error
	Close() error
}

// AnalysisStore persists completed surprise analyses. Get returns
// (nil, nil) on a miss.
type AnalysisStore interface {
	Get(ctx context.Context, id models.NewsIdentity) (*models.SurpriseAnalysis, error)
	Put(ctx context.Context, id models.NewsIdentity, a models.SurpriseAnalysis) error
}

type Metrics interface {
	RecordRefresh(family, outcome string, seconds float64)
	RecordRefreshSkipped(family string)
	RecordSnapshotSwap(family string, at time.Time)
	RecordDropped(source, reason string)
	RecordSourceError(source string, kind models.ErrorKind)
	RecordAnalysis(outcome string, seconds float64)
	RecordAnalysisTransition(from, to models.AnalysisState)
}
