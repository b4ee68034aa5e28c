package usecase

import (
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultCritical = []string{"high impact", "breaking", "bullish", "bearish"}

func newTestNormalizer() *Normalizer {
	return NewNormalizer(defaultCritical, logger.Nop(), nil)
}

func TestParseNumeric(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		unit string
		ok   bool
	}{
		{"1.2%", 1.2, "%", true},
		{"250K", 250000, "K", true},
		{"-0.3", -0.3, "", true},
		{" 1,234.5 ", 1234.5, "", true},
		{"2.1b", 2.1e9, "B", true},
		{"", 0, "", false},
		{"n/a", 0, "", false},
		{"NaN", 0, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, unit, ok := ParseNumeric(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, v, 1e-6)
				assert.Equal(t, tt.unit, unit)
			}
		})
	}
}

func TestNormalizeNews(t *testing.T) {
	n := newTestNormalizer()
	items, dropped := n.News([]models.RawNewsItem{
		{Headline: "  ", Time: "2025-03-07T13:30:00Z"},
		{Headline: "US NFP  beats", Time: "2025-03-07T13:30:00Z", Actual: "275K", Forecast: "200K", Tags: []string{"USD", "usd", "High Impact"}},
		{Headline: "Oil steadies", Time: "garbage", Actual: "n/a"},
	})

	assert.Equal(t, 1, dropped)
	require.Len(t, items, 2)

	nfp := items[0]
	assert.Equal(t, "US NFP beats", nfp.Headline)
	require.NotNil(t, nfp.Timestamp)
	assert.True(t, nfp.Timestamp.Equal(time.Date(2025, 3, 7, 13, 30, 0, 0, time.UTC)))
	require.NotNil(t, nfp.EconomicData)
	assert.Equal(t, 275000.0, *nfp.EconomicData.Actual)
	assert.Nil(t, nfp.EconomicData.Previous)
	assert.Equal(t, []string{"USD", "High Impact"}, nfp.Tags)
	assert.True(t, nfp.IsCritical)

	oil := items[1]
	assert.Nil(t, oil.Timestamp, "unparsable timestamp is kept as null")
	require.NotNil(t, oil.EconomicData)
	assert.Nil(t, oil.EconomicData.Actual)
	assert.False(t, oil.IsCritical)
}

func TestIsCritical(t *testing.T) {
	n := newTestNormalizer()
	assert.True(t, n.IsCritical(models.ImpactHigh, nil))
	assert.True(t, n.IsCritical("", []string{"BREAKING"}))
	assert.False(t, n.IsCritical(models.ImpactMedium, []string{"EUR"}))
}

func TestNormalizeQuotesDropsUnknownAndInverted(t *testing.T) {
	n := newTestNormalizer()
	fetched := time.Date(2025, 3, 7, 12, 0, 0, 0, time.UTC)
	n.now = fixedClock(fetched)

	quotes, dropped := n.Quotes([]models.RawQuote{
		{Symbol: "EURUSD", ChangePercent: "0.4", Timestamp: "2025-03-07T11:00:00Z"},
		{Symbol: "USD/JPY", ChangePercent: "-0.2"},
		{Symbol: "USDEUR", ChangePercent: "0.1"},
		{Symbol: "EURSEK", ChangePercent: "0.1"},
		{Symbol: "GBPUSD", ChangePercent: "abc"},
	})

	assert.Equal(t, 3, dropped)
	require.Len(t, quotes, 2)
	assert.Equal(t, models.Pair{Base: models.EUR, Quote: models.USD}, quotes[0].Pair)
	assert.Equal(t, fetched, quotes[1].Timestamp, "missing timestamp falls back to fetch time")
}

func TestNormalizeEvents(t *testing.T) {
	n := newTestNormalizer()
	events, dropped := n.Events([]models.RawEvent{
		{Title: "FOMC Statement", Date: "2025-03-19T18:00:00Z", Impact: "High", Country: "us"},
		{Title: "FOMC Statement", Date: "2025-03-19T18:00:00Z"},
		{ID: "cpi", Title: "CPI", Date: ""},
	})
	assert.Equal(t, 1, dropped)
	require.Len(t, events, 2)
	assert.NotEmpty(t, events[0].ID)
	assert.Equal(t, events[0].ID, events[1].ID, "derived ids are stable for title and date")
	assert.Equal(t, "US", events[0].Country)
	assert.Equal(t, models.ImpactHigh, events[0].Impact)
}

func TestNormalizeAnalyzeRequest(t *testing.T) {
	n := newTestNormalizer()
	item, err := n.AnalyzeRequest(&models.AnalyzeRequest{
		Headline:     "CPI y/y",
		Timestamp:    "2025-03-12T12:30:00Z",
		EconomicData: &models.RawEconomicData{Actual: 3.1, Forecast: "2.9%"},
	})
	require.NoError(t, err)
	require.True(t, item.EconomicData.HasSurpriseInputs())
	assert.Equal(t, 3.1, *item.EconomicData.Actual)
	assert.Equal(t, 2.9, *item.EconomicData.Forecast)

	_, err = n.AnalyzeRequest(&models.AnalyzeRequest{Headline: "x", Timestamp: "yesterday-ish"})
	assert.Error(t, err)
}
