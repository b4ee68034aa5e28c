package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	"MarketPulse/pkg/cache"
	"MarketPulse/pkg/logger"
	"MarketPulse/pkg/util"
)

const (
	quotesSourceKey   = "quotes:source"
	quotesLastGoodKey = "quotes:last_good"
	lastGoodTTL       = 7 * 24 * time.Hour
)

type quoteSet struct {
	FetchedAt time.Time      `json:"fetchedAt"`
	Quotes    []models.Quote `json:"quotes"`
}

// CurrencyStrengthOptions tune the currency family.
type CurrencyStrengthOptions struct {
	// SourceTTL is how long a fetched quote set is reused before the
	// upstream API is queried again.
	SourceTTL time.Duration
	// MaxPairAge bounds how old a last-known-good quote may be to fill a
	// pair missing from the latest fetch.
	MaxPairAge time.Duration
}

// CurrencyStrength ranks the eight majors by mean sign-adjusted percent
// change over their seven pairs.
type CurrencyStrength struct {
	quotes     domrepo.QuoteSource
	normalizer *Normalizer
	cache      cache.Service
	history    domrepo.HistoryStore
	opts       CurrencyStrengthOptions
	log        *logger.Logger
	now        func() time.Time

	mu       sync.Mutex
	source   *quoteSet
	lastGood map[models.Pair]models.Quote
}

func NewCurrencyStrength(
	quotes domrepo.QuoteSource,
	normalizer *Normalizer,
	c cache.Service,
	history domrepo.HistoryStore,
	opts CurrencyStrengthOptions,
	log *logger.Logger,
) *CurrencyStrength {
	if opts.SourceTTL <= 0 {
		opts.SourceTTL = 4 * time.Hour
	}
	if opts.MaxPairAge <= 0 {
		opts.MaxPairAge = 8 * time.Hour
	}
	return &CurrencyStrength{
		quotes:     quotes,
		normalizer: normalizer,
		cache:      c,
		history:    history,
		opts:       opts,
		log:        log.Component("currency"),
		now:        time.Now,
		lastGood:   make(map[models.Pair]models.Quote),
	}
}

// Refresh produces a new snapshot. It queries upstream only when the
// source-tier quote set is older than SourceTTL.
func (cs *CurrencyStrength) Refresh(ctx context.Context, _ *models.CurrencyStrengthSnapshot) (*models.CurrencyStrengthSnapshot, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	set, err := cs.sourceTier(ctx)
	if err != nil {
		return nil, err
	}

	now := cs.now()
	byPair := make(map[models.Pair]models.Quote, 28)
	for _, q := range set.Quotes {
		byPair[q.Pair] = q
	}

	var filled []string
	for _, p := range models.TrackedPairs() {
		if _, ok := byPair[p]; ok {
			continue
		}
		q, ok := cs.lastGood[p]
		if !ok || now.Sub(q.Timestamp) > cs.opts.MaxPairAge {
			return nil, models.NewSourceError(models.KindUnavailable, "currency",
				fmt.Sprintf("pair %s missing and no quote newer than %s", p, cs.opts.MaxPairAge), nil)
		}
		byPair[p] = q
		filled = append(filled, p.String())
	}
	if len(filled) > 0 {
		cs.log.Warn("pairs filled from last known good", logger.Strings("pairs", filled))
	}

	entries := ComputeStrength(byPair)
	if cs.history != nil {
		if err := cs.history.SaveStrength(ctx, entries, now); err != nil {
			cs.log.Warn("strength history not saved", logger.Error(err))
		}
	}

	return &models.CurrencyStrengthSnapshot{
		Entries:         entries,
		SourceUpdatedAt: set.FetchedAt,
		FilledPairs:     filled,
	}, nil
}

func (cs *CurrencyStrength) sourceTier(ctx context.Context) (*quoteSet, error) {
	now := cs.now()
	if cs.source != nil && now.Sub(cs.source.FetchedAt) < cs.opts.SourceTTL {
		return cs.source, nil
	}

	// Another instance may have fetched recently.
	if cs.cache != nil {
		var shared quoteSet
		if err := cs.cache.Get(ctx, quotesSourceKey, &shared); err == nil && now.Sub(shared.FetchedAt) < cs.opts.SourceTTL {
			cs.remember(ctx, shared.Quotes, false)
			cs.source = &shared
			return cs.source, nil
		} else if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			cs.log.Warn("quote cache read failed", logger.Error(err))
		}
		if len(cs.lastGood) == 0 {
			var lkg []models.Quote
			if err := cs.cache.Get(ctx, quotesLastGoodKey, &lkg); err == nil {
				cs.remember(ctx, lkg, false)
			}
		}
	}

	raw, err := cs.quotes.FetchQuotes(ctx, models.TrackedPairs())
	if err != nil {
		return nil, err
	}
	quotes, _ := cs.normalizer.Quotes(raw)
	if len(quotes) == 0 {
		return nil, models.NewSourceError(models.KindParseError, "quotes", "no usable quotes in response", nil)
	}

	set := &quoteSet{FetchedAt: now.UTC(), Quotes: quotes}
	cs.source = set
	cs.remember(ctx, quotes, true)
	if cs.cache != nil {
		if err := cs.cache.Set(ctx, quotesSourceKey, set, cs.opts.SourceTTL); err != nil {
			cs.log.Warn("quote cache write failed", logger.Error(err))
		}
	}
	return set, nil
}

func (cs *CurrencyStrength) remember(ctx context.Context, quotes []models.Quote, persist bool) {
	for _, q := range quotes {
		if prev, ok := cs.lastGood[q.Pair]; !ok || !q.Timestamp.Before(prev.Timestamp) {
			cs.lastGood[q.Pair] = q
		}
	}
	if !persist || cs.cache == nil {
		return
	}
	all := make([]models.Quote, 0, len(cs.lastGood))
	for _, p := range models.TrackedPairs() {
		if q, ok := cs.lastGood[p]; ok {
			all = append(all, q)
		}
	}
	if err := cs.cache.Set(ctx, quotesLastGoodKey, all, lastGoodTTL); err != nil {
		cs.log.Warn("last known good quotes not saved", logger.Error(err))
	}
}

// ComputeStrength ranks the tracked currencies. quotes must hold all 28
// tracked pairs; a currency with fewer pairs is averaged over what exists.
func ComputeStrength(quotes map[models.Pair]models.Quote) []models.CurrencyStrengthEntry {
	sums := make(map[models.Currency]float64, len(models.TrackedCurrencies))
	counts := make(map[models.Currency]int, len(models.TrackedCurrencies))
	// Fixed pair order keeps the float sums identical across calls.
	for _, p := range models.TrackedPairs() {
		q, ok := quotes[p]
		if !ok {
			continue
		}
		sums[p.Base] += q.PercentChange
		counts[p.Base]++
		sums[p.Quote] -= q.PercentChange
		counts[p.Quote]++
	}

	entries := make([]models.CurrencyStrengthEntry, 0, len(models.TrackedCurrencies))
	maxAbs := 0.0
	for _, c := range models.TrackedCurrencies {
		s := 0.0
		if counts[c] > 0 {
			s = util.Round(sums[c]/float64(counts[c]), 2)
		}
		if s == 0 {
			s = 0 // normalize -0
		}
		maxAbs = math.Max(maxAbs, math.Abs(s))
		entries = append(entries, models.CurrencyStrengthEntry{
			CurrencyCode:  c,
			DisplayName:   c.DisplayName(),
			StrengthValue: s,
		})
	}

	for i := range entries {
		e := &entries[i]
		if maxAbs > 0 {
			e.Momentum = math.Min(100, math.Max(0, util.Round(math.Abs(e.StrengthValue)/maxAbs*100, 2)))
		}
		if e.StrengthValue >= 0 {
			e.Trend = models.TrendBullish
		} else {
			e.Trend = models.TrendBearish
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].StrengthValue > entries[j].StrengthValue
	})
	return entries
}
