package usecase

import (
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newsAt(headline string, ts *time.Time, critical bool, tags ...string) models.NewsItem {
	return models.NewsItem{Headline: headline, Timestamp: ts, IsCritical: critical, Tags: tags}
}

func tsp(t time.Time) *time.Time { return &t }

func TestObserveDedupsAndKeepsFirstSeen(t *testing.T) {
	t0 := time.Date(2025, 3, 7, 12, 0, 0, 0, time.UTC)
	c := NewNewsClassifier(24*time.Hour, logger.Nop())
	c.now = fixedClock(t0)

	ts := tsp(t0.Add(-time.Hour))
	obs := c.Observe([]models.NewsItem{newsAt("CPI beats", ts, false, "USD")})
	require.Len(t, obs.New, 1)
	assert.Equal(t, t0, obs.Active[0].FirstSeenAt)

	c.now = fixedClock(t0.Add(2 * time.Minute))
	obs = c.Observe([]models.NewsItem{newsAt("CPI beats", ts, false, "Breaking", "USD")})
	assert.Empty(t, obs.New)
	require.Len(t, obs.Active, 1)
	assert.Equal(t, t0, obs.Active[0].FirstSeenAt, "firstSeenAt is fixed at creation")
	assert.Equal(t, []string{"USD", "Breaking"}, obs.Active[0].Tags)
	assert.Equal(t, 1, c.Len())
}

func TestObserveCriticalityIsMonotonic(t *testing.T) {
	c := NewNewsClassifier(time.Hour, logger.Nop())
	ts := tsp(time.Date(2025, 3, 7, 8, 0, 0, 0, time.UTC))

	obs := c.Observe([]models.NewsItem{newsAt("ECB holds", ts, false)})
	assert.Empty(t, obs.NewlyCritical)

	obs = c.Observe([]models.NewsItem{newsAt("ECB holds", ts, true)})
	require.Len(t, obs.NewlyCritical, 1)

	obs = c.Observe([]models.NewsItem{newsAt("ECB holds", ts, false)})
	assert.Empty(t, obs.NewlyCritical)
	assert.True(t, obs.Active[0].IsCritical, "criticality never reverts")
}

func TestObserveDistinctTimestampsAreDistinct(t *testing.T) {
	c := NewNewsClassifier(time.Hour, logger.Nop())
	a := tsp(time.Date(2025, 3, 7, 8, 0, 0, 0, time.UTC))
	b := tsp(time.Date(2025, 3, 7, 8, 1, 0, 0, time.UTC))
	obs := c.Observe([]models.NewsItem{newsAt("Gold rallies", a, false), newsAt("Gold rallies", b, false)})
	assert.Len(t, obs.Active, 2)
	assert.Len(t, obs.New, 2)
}

func TestObserveFillsEconomicData(t *testing.T) {
	c := NewNewsClassifier(time.Hour, logger.Nop())
	ts := tsp(time.Date(2025, 3, 7, 13, 30, 0, 0, time.UTC))
	c.Observe([]models.NewsItem{newsAt("NFP", ts, false)})

	withData := newsAt("NFP", ts, false)
	withData.EconomicData = &models.EconomicData{Actual: ptr(275000), Forecast: ptr(200000)}
	obs := c.Observe([]models.NewsItem{withData})
	require.NotNil(t, obs.Active[0].EconomicData)

	got, ok := c.Get(withData.Identity())
	require.True(t, ok)
	assert.True(t, got.EconomicData.HasSurpriseInputs())
	require.Len(t, obs.Completed, 1)
	assert.Empty(t, obs.New)
}

func TestObserveCompletesPartialPrint(t *testing.T) {
	c := NewNewsClassifier(time.Hour, logger.Nop())
	ts := tsp(time.Date(2025, 3, 12, 12, 30, 0, 0, time.UTC))

	pending := newsAt("CPI y/y", ts, false)
	pending.EconomicData = &models.EconomicData{Forecast: ptr(2.9), Previous: ptr(3.0)}
	obs := c.Observe([]models.NewsItem{pending})
	assert.Empty(t, obs.Completed)

	released := newsAt("CPI y/y", ts, false)
	released.EconomicData = &models.EconomicData{Actual: ptr(2.8), Forecast: ptr(3.1)}
	obs = c.Observe([]models.NewsItem{released})
	require.Len(t, obs.Completed, 1)
	ed := obs.Completed[0].EconomicData
	assert.Equal(t, 2.8, *ed.Actual)
	assert.Equal(t, 2.9, *ed.Forecast, "known values are kept")
	assert.Equal(t, 3.0, *ed.Previous)

	obs = c.Observe([]models.NewsItem{released})
	assert.Empty(t, obs.Completed)
}

func TestObserveOrderAndPrune(t *testing.T) {
	t0 := time.Date(2025, 3, 7, 12, 0, 0, 0, time.UTC)
	c := NewNewsClassifier(time.Hour, logger.Nop())
	c.now = fixedClock(t0)

	early := tsp(t0.Add(-2 * time.Hour))
	late := tsp(t0.Add(-time.Hour))
	obs := c.Observe([]models.NewsItem{
		newsAt("no time A", nil, false),
		newsAt("early", early, false),
		newsAt("no time B", nil, false),
		newsAt("late", late, false),
	})
	headlines := make([]string, 0, 4)
	for _, it := range obs.Active {
		headlines = append(headlines, it.Headline)
	}
	assert.Equal(t, []string{"late", "early", "no time A", "no time B"}, headlines)

	c.now = fixedClock(t0.Add(2 * time.Hour))
	obs = c.Observe([]models.NewsItem{newsAt("late", late, false)})
	assert.Len(t, obs.Active, 1)
	assert.Equal(t, 1, c.Len(), "identities unseen past retention are pruned")
}
