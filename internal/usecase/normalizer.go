package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	"MarketPulse/pkg/logger"
	"MarketPulse/pkg/util"
)

// Drop reasons reported in logs and metrics.
const (
	dropEmptyHeadline = "empty_headline"
	dropUnknownPair   = "unknown_pair"
	dropBadNumber     = "bad_number"
	dropMissingDate   = "missing_date"
	dropEmptyTitle    = "empty_title"
)

// Normalizer maps raw connector payloads into canonical records. A bad
// record is dropped and counted; it never fails the batch.
type Normalizer struct {
	criticalTags map[string]struct{}
	log          *logger.Logger
	metrics      domrepo.Metrics
	now          func() time.Time
}

func NewNormalizer(criticalTags []string, log *logger.Logger, metrics domrepo.Metrics) *Normalizer {
	set := make(map[string]struct{}, len(criticalTags))
	for _, t := range criticalTags {
		set[strings.ToLower(util.CollapseSpace(t))] = struct{}{}
	}
	return &Normalizer{
		criticalTags: set,
		log:          log.Component("normalizer"),
		metrics:      metrics,
		now:          time.Now,
	}
}

func (n *Normalizer) drop(source, reason, detail string) {
	n.log.Warn("record dropped",
		logger.String("source", source),
		logger.String("reason", reason),
		logger.String("detail", detail),
	)
	if n.metrics != nil {
		n.metrics.RecordDropped(source, reason)
	}
}

// News normalizes scraped news. The returned items have no FirstSeenAt;
// the news classifier assigns it.
func (n *Normalizer) News(raw []models.RawNewsItem) ([]models.NewsItem, int) {
	items := make([]models.NewsItem, 0, len(raw))
	dropped := 0

	for _, r := range raw {
		headline := util.CollapseSpace(r.Headline)
		if headline == "" {
			n.drop("news", dropEmptyHeadline, r.Time)
			dropped++
			continue
		}

		item := models.NewsItem{
			Headline: headline,
			Tags:     uniqueTags(r.Tags),
			Impact:   models.ParseImpact(strings.TrimSpace(r.Impact)),
			Source:   r.Source,
		}
		if ts, ok := util.ParseTime(r.Time); ok {
			ts = ts.UTC()
			item.Timestamp = &ts
		}
		item.EconomicData = economicData(r.Actual, r.Forecast, r.Previous)
		item.IsCritical = n.IsCritical(item.Impact, item.Tags)

		items = append(items, item)
	}

	return items, dropped
}

// IsCritical applies the criticality rule: high impact or a critical tag.
func (n *Normalizer) IsCritical(impact models.Impact, tags []string) bool {
	if impact == models.ImpactHigh {
		return true
	}
	for _, t := range tags {
		if _, ok := n.criticalTags[strings.ToLower(t)]; ok {
			return true
		}
	}
	return false
}

// Quotes normalizes pair quotes. Only the 28 tracked pairs in their
// conventional orientation survive.
func (n *Normalizer) Quotes(raw []models.RawQuote) ([]models.Quote, int) {
	quotes := make([]models.Quote, 0, len(raw))
	dropped := 0
	fetchedAt := n.now().UTC()

	for _, r := range raw {
		pair, ok := parsePair(r)
		if !ok || !models.IsTrackedPair(pair) {
			n.drop("quotes", dropUnknownPair, r.Symbol)
			dropped++
			continue
		}

		pct, err := strconv.ParseFloat(string(r.ChangePercent), 64)
		if err != nil || math.IsNaN(pct) || math.IsInf(pct, 0) {
			n.drop("quotes", dropBadNumber, r.Symbol)
			dropped++
			continue
		}

		ts, ok := util.ParseTime(r.Timestamp)
		if !ok {
			ts = fetchedAt
		}
		quotes = append(quotes, models.Quote{Pair: pair, Timestamp: ts.UTC(), PercentChange: pct})
	}

	return quotes, dropped
}

func parsePair(r models.RawQuote) (models.Pair, bool) {
	if r.Base != "" && r.Quote != "" {
		return models.Pair{
			Base:  models.Currency(strings.ToUpper(strings.TrimSpace(r.Base))),
			Quote: models.Currency(strings.ToUpper(strings.TrimSpace(r.Quote))),
		}, true
	}
	sym := strings.ToUpper(strings.NewReplacer("/", "", "_", "", "-", "", " ", "").Replace(r.Symbol))
	if len(sym) != 6 {
		return models.Pair{}, false
	}
	return models.Pair{Base: models.Currency(sym[:3]), Quote: models.Currency(sym[3:])}, true
}

// Events normalizes calendar entries. A missing id is derived from the
// title and date.
func (n *Normalizer) Events(raw []models.RawEvent) ([]models.Event, int) {
	events := make([]models.Event, 0, len(raw))
	dropped := 0

	for _, r := range raw {
		title := util.CollapseSpace(r.Title)
		if title == "" {
			n.drop("calendar", dropEmptyTitle, r.ID)
			dropped++
			continue
		}
		date, ok := util.ParseTime(r.Date)
		if !ok {
			n.drop("calendar", dropMissingDate, title)
			dropped++
			continue
		}

		id := strings.TrimSpace(r.ID)
		if id == "" {
			sum := sha256.Sum256([]byte(title + "|" + date.UTC().Format(time.RFC3339)))
			id = hex.EncodeToString(sum[:8])
		}

		events = append(events, models.Event{
			ID:      id,
			Title:   title,
			Country: strings.ToUpper(strings.TrimSpace(r.Country)),
			Impact:  models.ParseImpact(strings.TrimSpace(r.Impact)),
			Date:    date.UTC(),
			Source:  r.Source,
		})
	}

	return events, dropped
}

// AnalyzeRequest turns an API request into a news item.
func (n *Normalizer) AnalyzeRequest(req *models.AnalyzeRequest) (models.NewsItem, error) {
	headline := util.CollapseSpace(req.Headline)
	if headline == "" {
		return models.NewsItem{}, fmt.Errorf("headline is required")
	}

	item := models.NewsItem{Headline: headline, Tags: uniqueTags(req.Tags)}
	if req.Timestamp != "" {
		ts, ok := util.ParseTime(req.Timestamp)
		if !ok {
			return models.NewsItem{}, fmt.Errorf("timestamp %q is not a recognised time", req.Timestamp)
		}
		ts = ts.UTC()
		item.Timestamp = &ts
	}
	if ed := req.EconomicData; ed != nil {
		item.EconomicData = economicData(rawString(ed.Actual), rawString(ed.Forecast), rawString(ed.Previous))
	}
	item.IsCritical = n.IsCritical("", item.Tags)
	return item, nil
}

func rawString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func economicData(actual, forecast, previous string) *models.EconomicData {
	if actual == "" && forecast == "" && previous == "" {
		return nil
	}
	ed := &models.EconomicData{}
	var units []string
	ed.Actual, units = appendUnit(actual, units)
	ed.Forecast, units = appendUnit(forecast, units)
	ed.Previous, units = appendUnit(previous, units)
	if len(units) > 0 {
		ed.Unit = units[0]
	}
	return ed
}

func appendUnit(s string, units []string) (*float64, []string) {
	v, unit, ok := ParseNumeric(s)
	if !ok {
		return nil, units
	}
	if unit != "" {
		units = append(units, unit)
	}
	return &v, units
}

// ParseNumeric reads values such as "1.2%", "250K", "-0.3", "$1,234.5B".
// K/M/B/T suffixes are scaled; "%" is stripped and reported as the unit.
func ParseNumeric(s string) (float64, string, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "$€£¥")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, "", false
	}

	unit := ""
	last := strings.ToUpper(s[len(s)-1:])
	switch last {
	case "%":
		unit = "%"
	case "K", "M", "B", "T":
		unit = last
	}
	if unit != "" {
		s = strings.TrimSpace(s[:len(s)-1])
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, "", false
	}
	return v * models.UnitScale(unit), unit, true
}

func uniqueTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = util.CollapseSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}
