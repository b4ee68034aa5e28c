package usecase

import (
	"sort"
	"strings"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/pkg/logger"
)

// Observation is the result of feeding one poll to the classifier.
type Observation struct {
	// Active holds the items of this poll, merged with what was known
	// about them, newest first.
	Active []models.NewsItem
	// New holds identities seen for the first time.
	New []models.NewsItem
	// NewlyCritical holds identities that became critical in this poll.
	NewlyCritical []models.NewsItem
	// Completed holds known identities whose actual and forecast were
	// both present for the first time in this poll.
	Completed []models.NewsItem
}

type newsEntry struct {
	item     models.NewsItem
	lastSeen time.Time
}

// NewsClassifier deduplicates polled news by identity and keeps the
// per-session criticality and tag state.
type NewsClassifier struct {
	mu        sync.Mutex
	entries   map[models.NewsIdentity]*newsEntry
	retention time.Duration
	log       *logger.Logger
	now       func() time.Time
}

func NewNewsClassifier(retention time.Duration, log *logger.Logger) *NewsClassifier {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &NewsClassifier{
		entries:   make(map[models.NewsIdentity]*newsEntry),
		retention: retention,
		log:       log.Component("news"),
		now:       time.Now,
	}
}

// Observe merges one poll. An identity keeps its first FirstSeenAt, its
// criticality only ever goes from false to true, tags are merged as an
// ordered union and missing economic data is filled in.
func (c *NewsClassifier) Observe(items []models.NewsItem) Observation {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UTC()
	var obs Observation
	order := make([]models.NewsIdentity, 0, len(items))
	inPoll := make(map[models.NewsIdentity]struct{}, len(items))

	for i := range items {
		in := items[i]
		id := in.Identity()

		e, known := c.entries[id]
		if !known {
			in = in.Clone()
			in.FirstSeenAt = now
			e = &newsEntry{item: in, lastSeen: now}
			c.entries[id] = e
			obs.New = append(obs.New, in.Clone())
			if in.IsCritical {
				obs.NewlyCritical = append(obs.NewlyCritical, in.Clone())
			}
		} else {
			wasCritical := e.item.IsCritical
			wasComplete := e.item.EconomicData.HasSurpriseInputs()
			mergeNews(&e.item, &in)
			e.lastSeen = now
			if !wasCritical && e.item.IsCritical {
				obs.NewlyCritical = append(obs.NewlyCritical, e.item.Clone())
			}
			if !wasComplete && e.item.EconomicData.HasSurpriseInputs() {
				obs.Completed = append(obs.Completed, e.item.Clone())
			}
		}

		if _, dup := inPoll[id]; !dup {
			inPoll[id] = struct{}{}
			order = append(order, id)
		}
	}

	obs.Active = make([]models.NewsItem, 0, len(order))
	for _, id := range order {
		obs.Active = append(obs.Active, c.entries[id].item.Clone())
	}
	SortNews(obs.Active)

	if n := c.pruneLocked(now); n > 0 {
		c.log.Debug("pruned news identities", logger.Int("count", n))
	}
	return obs
}

func mergeNews(dst, src *models.NewsItem) {
	dst.IsCritical = dst.IsCritical || src.IsCritical
	dst.Tags = mergeTags(dst.Tags, src.Tags)
	dst.EconomicData = mergeEconomicData(dst.EconomicData, src.EconomicData)
	if src.Impact.Rank() > dst.Impact.Rank() {
		dst.Impact = src.Impact
	}
	if dst.Source == "" {
		dst.Source = src.Source
	}
}

// mergeEconomicData fills fields still missing in dst; known values stay.
func mergeEconomicData(dst, src *models.EconomicData) *models.EconomicData {
	if src == nil {
		return dst
	}
	if dst == nil {
		ed := *src
		return &ed
	}
	if dst.Actual == nil && src.Actual != nil {
		v := *src.Actual
		dst.Actual = &v
	}
	if dst.Forecast == nil && src.Forecast != nil {
		v := *src.Forecast
		dst.Forecast = &v
	}
	if dst.Previous == nil && src.Previous != nil {
		v := *src.Previous
		dst.Previous = &v
	}
	if dst.Unit == "" {
		dst.Unit = src.Unit
	}
	return dst
}

func mergeTags(a, b []string) []string {
	out := append([]string(nil), a...)
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, t := range a {
		seen[strings.ToLower(t)] = struct{}{}
	}
	for _, t := range b {
		if _, ok := seen[strings.ToLower(t)]; ok {
			continue
		}
		seen[strings.ToLower(t)] = struct{}{}
		out = append(out, t)
	}
	return out
}

func (c *NewsClassifier) pruneLocked(now time.Time) int {
	n := 0
	for id, e := range c.entries {
		if now.Sub(e.lastSeen) > c.retention {
			delete(c.entries, id)
			n++
		}
	}
	return n
}

// Get returns the merged item for id.
func (c *NewsClassifier) Get(id models.NewsIdentity) (models.NewsItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return models.NewsItem{}, false
	}
	return e.item.Clone(), true
}

// Len is the number of remembered identities.
func (c *NewsClassifier) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// SortNews orders items newest first. Items without a timestamp go last;
// equal keys keep their input order.
func SortNews(items []models.NewsItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].Timestamp, items[j].Timestamp
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.After(*b)
	})
}
