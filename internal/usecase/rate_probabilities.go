package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	"MarketPulse/pkg/logger"
	"MarketPulse/pkg/util"
)

const (
	defaultStepBps        = 25
	defaultTimelineLength = 8
	weekAgo               = 7 * 24 * time.Hour
)

// bankCurrency is used when the feed omits or garbles a bank's currency.
var bankCurrency = map[string]models.Currency{
	"FED":  models.USD,
	"ECB":  models.EUR,
	"BOE":  models.GBP,
	"BOJ":  models.JPY,
	"SNB":  models.CHF,
	"BOC":  models.CAD,
	"RBA":  models.AUD,
	"RBNZ": models.NZD,
}

type RateProbabilitiesOptions struct {
	TimelineMeetings int
}

// RateProbabilities turns the market-implied meeting odds feed into one
// snapshot per central bank.
type RateProbabilities struct {
	source  domrepo.RateSource
	history domrepo.HistoryStore
	opts    RateProbabilitiesOptions
	log     *logger.Logger
	now     func() time.Time
}

func NewRateProbabilities(source domrepo.RateSource, history domrepo.HistoryStore, opts RateProbabilitiesOptions, log *logger.Logger) *RateProbabilities {
	if opts.TimelineMeetings <= 0 {
		opts.TimelineMeetings = defaultTimelineLength
	}
	return &RateProbabilities{
		source:  source,
		history: history,
		opts:    opts,
		log:     log.Component("rates"),
		now:     time.Now,
	}
}

// Refresh fetches the feed and builds the next snapshot. Banks present in
// prev but absent (or unusable) in this cycle are carried forward with
// IsAvailable=false.
func (rp *RateProbabilities) Refresh(ctx context.Context, prev *models.RatesSnapshot) (*models.RatesSnapshot, error) {
	feed, err := rp.source.FetchRates(ctx)
	if err != nil {
		return nil, err
	}

	now := rp.now().UTC()
	next := &models.RatesSnapshot{Banks: make(map[string]models.RateProbabilitySnapshot, len(feed.Banks))}
	refs := make([]models.RateSnapshotRef, 0, len(feed.Banks))

	for _, raw := range feed.Banks {
		snap, err := BuildRateSnapshot(raw, now, rp.opts.TimelineMeetings)
		if err != nil {
			rp.log.Warn("bank skipped", logger.String("bank", raw.Bank), logger.Error(err))
			continue
		}
		// First usable row of a bank wins.
		if _, dup := next.Banks[snap.BankCode]; dup {
			rp.log.Warn("duplicate bank row ignored", logger.String("bank", snap.BankCode))
			continue
		}
		if rp.history != nil {
			ref, err := rp.history.RateSnapshotAt(ctx, snap.BankCode, now.Add(-weekAgo))
			if err != nil {
				rp.log.Warn("week-ago lookup failed", logger.String("bank", snap.BankCode), logger.Error(err))
			}
			snap.WeekAgoSnapshot = ref
		}
		next.Banks[snap.BankCode] = snap
		refs = append(refs, snap.Ref())
	}

	if prev != nil {
		for code, old := range prev.Banks {
			if _, ok := next.Banks[code]; ok {
				continue
			}
			old.IsAvailable = false
			old.IsStale = false
			next.Banks[code] = old
			rp.log.Warn("bank missing from feed, carried forward", logger.String("bank", code))
		}
	}

	if len(next.Banks) == 0 {
		return nil, models.NewSourceError(models.KindParseError, "rates", "no usable bank in feed", nil)
	}

	if rp.history != nil && len(refs) > 0 {
		if err := rp.history.SaveRateSnapshots(ctx, refs); err != nil {
			rp.log.Warn("rate history not saved", logger.Error(err))
		}
	}
	return next, nil
}

// History returns the recorded points for bank over the last days.
func (rp *RateProbabilities) History(ctx context.Context, bank string, days int) ([]models.RateSnapshotRef, error) {
	if rp.history == nil {
		return []models.RateSnapshotRef{}, nil
	}
	since := rp.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	return rp.history.RateHistory(ctx, strings.ToUpper(bank), since)
}

// BuildRateSnapshot derives one bank's snapshot from its feed row. The
// next meeting is the first meeting on or after today's date (UTC).
func BuildRateSnapshot(raw models.RawBank, now time.Time, timelineMax int) (models.RateProbabilitySnapshot, error) {
	code := strings.ToUpper(strings.TrimSpace(raw.Bank))
	if code == "" {
		return models.RateProbabilitySnapshot{}, fmt.Errorf("bank code is empty")
	}
	step := raw.StepBps
	if step <= 0 {
		step = defaultStepBps
	}
	if timelineMax <= 0 {
		timelineMax = defaultTimelineLength
	}

	type meeting struct {
		date  time.Time
		probs models.Probabilities
		rate  *float64
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	upcoming := make([]meeting, 0, len(raw.Meetings))
	for _, m := range raw.Meetings {
		d, ok := util.ParseTime(m.Date)
		if !ok || d.UTC().Before(today) {
			continue
		}
		probs, ok := NormalizeProbabilities(models.Probabilities{Hike: m.Hike, Hold: m.Hold, Cut: m.Cut})
		if !ok {
			continue
		}
		upcoming = append(upcoming, meeting{date: d.UTC(), probs: probs, rate: m.ImpliedRate})
	}
	if len(upcoming) == 0 {
		return models.RateProbabilitySnapshot{}, fmt.Errorf("no upcoming meeting with probabilities")
	}
	sort.SliceStable(upcoming, func(i, j int) bool { return upcoming[i].date.Before(upcoming[j].date) })

	first := upcoming[0]
	move := ArgmaxMove(first.probs)
	nextDate := first.date

	if len(upcoming) > timelineMax {
		upcoming = upcoming[:timelineMax]
	}
	timeline := make([]models.TimelinePoint, 0, len(upcoming))
	rate := raw.CurrentRate
	for _, m := range upcoming {
		if m.rate != nil {
			rate = *m.rate
		} else {
			rate += (m.probs.Hike - m.probs.Cut) / 100 * float64(step) / 100
		}
		rate = util.Round(rate, 4)
		timeline = append(timeline, models.TimelinePoint{Date: m.date, ExpectedRate: rate})
	}

	return models.RateProbabilitySnapshot{
		BankCode:         code,
		CurrencyCode:     currencyFor(code, raw.Currency),
		CurrentRate:      raw.CurrentRate,
		Probabilities:    first.probs,
		NextExpectedMove: move,
		ExpectedChange:   expectedChange(move, step),
		NextMeetingDate:  &nextDate,
		Timeline:         timeline,
		LastUpdated:      now,
		IsAvailable:      true,
	}, nil
}

func currencyFor(bank, raw string) models.Currency {
	c := models.Currency(strings.ToUpper(strings.TrimSpace(raw)))
	if c.IsTracked() {
		return c
	}
	return bankCurrency[bank]
}

func expectedChange(move models.RateMove, step int) int {
	switch move {
	case models.MoveHike:
		return step
	case models.MoveCut:
		return -step
	}
	return 0
}

// NormalizeProbabilities rescales p to sum to 100 with one decimal. The
// rounding residual goes to the largest bucket. Negative inputs count as
// zero; ok is false when nothing is left.
func NormalizeProbabilities(p models.Probabilities) (models.Probabilities, bool) {
	p.Hike = math.Max(0, p.Hike)
	p.Hold = math.Max(0, p.Hold)
	p.Cut = math.Max(0, p.Cut)
	sum := p.Sum()
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return models.Probabilities{}, false
	}

	out := models.Probabilities{
		Hike: util.Round(p.Hike/sum*100, 1),
		Hold: util.Round(p.Hold/sum*100, 1),
		Cut:  util.Round(p.Cut/sum*100, 1),
	}
	residual := util.Round(100-out.Sum(), 1)
	if residual != 0 {
		switch ArgmaxMove(out) {
		case models.MoveHold:
			out.Hold = util.Round(out.Hold+residual, 1)
		case models.MoveCut:
			out.Cut = util.Round(out.Cut+residual, 1)
		default:
			out.Hike = util.Round(out.Hike+residual, 1)
		}
	}
	return out, true
}

// ArgmaxMove picks the most likely move. Ties resolve hold, then cut,
// then hike.
func ArgmaxMove(p models.Probabilities) models.RateMove {
	switch {
	case p.Hold >= p.Cut && p.Hold >= p.Hike:
		return models.MoveHold
	case p.Cut >= p.Hike:
		return models.MoveCut
	}
	return models.MoveHike
}

// WithStaleness returns a copy of s with IsStale set for serving. A bank
// is stale when it was last updated more than interval+grace ago.
func WithStaleness(s *models.RatesSnapshot, now time.Time, interval, grace time.Duration) *models.RatesSnapshot {
	if s == nil {
		return nil
	}
	out := &models.RatesSnapshot{Banks: make(map[string]models.RateProbabilitySnapshot, len(s.Banks))}
	for code, b := range s.Banks {
		b.IsStale = IsStale(b.LastUpdated, now, interval, grace)
		out.Banks[code] = b
	}
	return out
}

// IsStale reports whether now is past updated+interval+grace.
func IsStale(updated, now time.Time, interval, grace time.Duration) bool {
	if updated.IsZero() {
		return true
	}
	return now.Sub(updated) > interval+grace
}
