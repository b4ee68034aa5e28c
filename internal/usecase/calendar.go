package usecase

import (
	"context"
	"sort"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	"MarketPulse/pkg/logger"
	"MarketPulse/pkg/util"
)

// Calendar keeps the high-impact economic calendar.
type Calendar struct {
	source     domrepo.CalendarSource
	normalizer *Normalizer
	minImpact  models.Impact
	log        *logger.Logger
}

func NewCalendar(source domrepo.CalendarSource, normalizer *Normalizer, minImpact models.Impact, log *logger.Logger) *Calendar {
	return &Calendar{source: source, normalizer: normalizer, minImpact: minImpact, log: log.Component("calendar")}
}

func (c *Calendar) Refresh(ctx context.Context, _ *models.CalendarSnapshot) (*models.CalendarSnapshot, error) {
	raw, err := c.source.FetchEvents(ctx)
	if err != nil {
		return nil, err
	}
	events, dropped := c.normalizer.Events(raw)

	kept := events[:0]
	for _, e := range events {
		if e.Impact.Rank() >= c.minImpact.Rank() {
			kept = append(kept, e)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Date.Before(kept[j].Date) })

	if dropped > 0 {
		c.log.Debug("calendar records dropped", logger.Int("count", dropped))
	}
	return &models.CalendarSnapshot{Events: kept}, nil
}

// EventsInWeek returns the events of now's ISO week (Monday to Sunday, UTC).
func EventsInWeek(events []models.Event, now time.Time) []models.Event {
	start, end := util.ISOWeekBounds(now.UTC())
	out := make([]models.Event, 0)
	for _, e := range events {
		if !e.Date.Before(start) && e.Date.Before(end) {
			out = append(out, e)
		}
	}
	return out
}

// NextEvent returns the first event at or after now. events must be
// sorted by date.
func NextEvent(events []models.Event, now time.Time) *models.Event {
	for i := range events {
		if !events[i].Date.Before(now) {
			e := events[i]
			return &e
		}
	}
	return nil
}
