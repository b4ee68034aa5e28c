package usecase

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/pkg/cache"
	"MarketPulse/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allPairs(change map[string]float64, ts time.Time) []models.RawQuote {
	raw := make([]models.RawQuote, 0, 28)
	for _, p := range models.TrackedPairs() {
		v := "0"
		if c, ok := change[p.String()]; ok {
			v = formatFloat(c)
		}
		raw = append(raw, models.RawQuote{Symbol: p.String(), ChangePercent: jsonNumber(v), Timestamp: ts.Format(time.RFC3339)})
	}
	return raw
}

func TestComputeStrengthRanking(t *testing.T) {
	quotes := make(map[models.Pair]models.Quote)
	for _, p := range models.TrackedPairs() {
		quotes[p] = models.Quote{Pair: p}
	}
	eurusd := models.Pair{Base: models.EUR, Quote: models.USD}
	quotes[eurusd] = models.Quote{Pair: eurusd, PercentChange: 1.0}

	entries := ComputeStrength(quotes)
	require.Len(t, entries, 8)

	codes := make([]models.Currency, 0, 8)
	for _, e := range entries {
		codes = append(codes, e.CurrencyCode)
	}
	assert.Equal(t, []models.Currency{
		models.EUR, models.GBP, models.JPY, models.CHF, models.CAD, models.AUD, models.NZD, models.USD,
	}, codes, "ties keep canonical order")

	assert.Equal(t, 0.14, entries[0].StrengthValue)
	assert.Equal(t, 100.0, entries[0].Momentum)
	assert.Equal(t, models.TrendBullish, entries[0].Trend)
	assert.Equal(t, "Euro", entries[0].DisplayName)

	last := entries[7]
	assert.Equal(t, -0.14, last.StrengthValue)
	assert.Equal(t, 100.0, last.Momentum)
	assert.Equal(t, models.TrendBearish, last.Trend)

	assert.Equal(t, 0.0, entries[1].Momentum)
	assert.Equal(t, models.TrendBullish, entries[1].Trend, "zero strength counts as bullish")
}

func TestComputeStrengthAllZero(t *testing.T) {
	quotes := make(map[models.Pair]models.Quote)
	for _, p := range models.TrackedPairs() {
		quotes[p] = models.Quote{Pair: p}
	}
	for _, e := range ComputeStrength(quotes) {
		assert.Zero(t, e.Momentum)
	}
}

func TestComputeStrengthIsDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for set := 0; set < 300; set++ {
		quotes := make(map[models.Pair]models.Quote)
		for _, p := range models.TrackedPairs() {
			quotes[p] = models.Quote{Pair: p, PercentChange: float64(rng.Intn(2000)-1000) / 1000}
		}

		want := ComputeStrength(quotes)
		for i := 0; i < 20; i++ {
			require.Equal(t, want, ComputeStrength(quotes), "set %d call %d", set, i)
		}
	}
}

func newCurrency(src *fakeQuotes, now time.Time) (*CurrencyStrength, *memHistory) {
	n := newTestNormalizer()
	n.now = fixedClock(now)
	h := &memHistory{}
	mem := cache.NewMemoryCache()
	cs := NewCurrencyStrength(src, n, mem, h, CurrencyStrengthOptions{SourceTTL: time.Hour, MaxPairAge: 8 * time.Hour}, logger.Nop())
	cs.now = fixedClock(now)
	return cs, h
}

func TestCurrencyRefreshReusesSourceTier(t *testing.T) {
	now := time.Date(2025, 3, 7, 12, 0, 0, 0, time.UTC)
	src := &fakeQuotes{raw: allPairs(map[string]float64{"GBPUSD": 0.7}, now)}
	cs, h := newCurrency(src, now)

	snap, err := cs.Refresh(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, models.GBP, snap.Entries[0].CurrencyCode)
	assert.Equal(t, now, snap.SourceUpdatedAt)

	_, err = cs.Refresh(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls, "second cycle within SourceTTL must not refetch")
	assert.Equal(t, 2, h.strength)
}

func TestCurrencyFillsMissingPairFromLastGood(t *testing.T) {
	now := time.Date(2025, 3, 7, 12, 0, 0, 0, time.UTC)
	src := &fakeQuotes{raw: allPairs(map[string]float64{"AUDNZD": 0.3}, now)}
	cs, _ := newCurrency(src, now)
	_, err := cs.Refresh(context.Background(), nil)
	require.NoError(t, err)

	later := now.Add(2 * time.Hour)
	cs.now = fixedClock(later)
	cs.normalizer.now = fixedClock(later)
	src.raw = src.raw[1:]

	snap, err := cs.Refresh(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, snap.FilledPairs, 1)
	assert.Len(t, snap.Entries, 8)
}

func TestCurrencyFailsClosedWhenPairTooOld(t *testing.T) {
	now := time.Date(2025, 3, 7, 12, 0, 0, 0, time.UTC)
	src := &fakeQuotes{raw: allPairs(nil, now)}
	cs, _ := newCurrency(src, now)
	_, err := cs.Refresh(context.Background(), nil)
	require.NoError(t, err)

	later := now.Add(9 * time.Hour)
	cs.now = fixedClock(later)
	cs.normalizer.now = fixedClock(later)
	src.raw = allPairs(nil, later)[1:]

	_, err = cs.Refresh(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, models.KindUnavailable, models.KindOf(err))
}

func TestCurrencyPropagatesSourceError(t *testing.T) {
	src := &fakeQuotes{err: models.NewSourceError(models.KindTimeout, "quotes", "", nil)}
	cs, _ := newCurrency(src, time.Now())
	_, err := cs.Refresh(context.Background(), nil)
	assert.Equal(t, models.KindTimeout, models.KindOf(err))
}
