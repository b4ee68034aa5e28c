package usecase

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
)

type fakeQuotes struct {
	mu    sync.Mutex
	calls int
	raw   []models.RawQuote
	err   error
}

func (f *fakeQuotes) FetchQuotes(_ context.Context, _ []models.Pair) ([]models.RawQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.raw, f.err
}

type fakeRates struct {
	feed *models.RawRateFeed
	err  error
}

func (f *fakeRates) FetchRates(context.Context) (*models.RawRateFeed, error) {
	return f.feed, f.err
}

type fakeNews struct {
	raw []models.RawNewsItem
	err error
}

func (f *fakeNews) FetchNews(context.Context) ([]models.RawNewsItem, error) {
	return f.raw, f.err
}

type fakeCalendar struct {
	raw []models.RawEvent
}

func (f *fakeCalendar) FetchEvents(context.Context) ([]models.RawEvent, error) {
	return f.raw, nil
}

type memHistory struct {
	mu       sync.Mutex
	refs     []models.RateSnapshotRef
	strength int
}

func (h *memHistory) Init(context.Context) error { return nil }

func (h *memHistory) SaveRateSnapshots(_ context.Context, refs []models.RateSnapshotRef) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refs = append(h.refs, refs...)
	return nil
}

func (h *memHistory) RateSnapshotAt(_ context.Context, bank string, at time.Time) (*models.RateSnapshotRef, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var best *models.RateSnapshotRef
	for i := range h.refs {
		r := h.refs[i]
		if r.BankCode == bank && !r.RecordedAt.After(at) && (best == nil || r.RecordedAt.After(best.RecordedAt)) {
			best = &r
		}
	}
	return best, nil
}

func (h *memHistory) RateHistory(_ context.Context, bank string, since time.Time) ([]models.RateSnapshotRef, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []models.RateSnapshotRef
	for _, r := range h.refs {
		if r.BankCode == bank && !r.RecordedAt.Before(since) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	return out, nil
}

func (h *memHistory) SaveStrength(context.Context, []models.CurrencyStrengthEntry, time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.strength++
	return nil
}

func (h *memHistory) Close() error { return nil }

type fakePublisher struct {
	mu     sync.Mutex
	events []models.SignalEvent
}

func (p *fakePublisher) Publish(_ context.Context, ev models.SignalEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type enqueued struct {
	msgType string
	payload interface{}
}

type fakeQueue struct {
	mu   sync.Mutex
	msgs []enqueued
}

func (q *fakeQueue) Enqueue(_ context.Context, msgType string, payload interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, enqueued{msgType, payload})
	return nil
}

// fakeClassifier blocks on gate (when set) and counts calls.
type fakeClassifier struct {
	mu     sync.Mutex
	calls  int
	gate   chan struct{}
	result models.SurpriseAnalysis
	err    error
}

func (c *fakeClassifier) Name() string { return "fake" }

func (c *fakeClassifier) Classify(ctx context.Context, _ models.NewsItem) (models.SurpriseAnalysis, error) {
	c.mu.Lock()
	c.calls++
	gate, res, err := c.gate, c.result, c.err
	c.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return models.SurpriseAnalysis{}, ctx.Err()
		}
	}
	return res, err
}

func (c *fakeClassifier) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type memAnalysisStore struct {
	mu   sync.Mutex
	data map[models.NewsIdentity]models.SurpriseAnalysis
	puts int
}

func newMemAnalysisStore() *memAnalysisStore {
	return &memAnalysisStore{data: make(map[models.NewsIdentity]models.SurpriseAnalysis)}
}

func (s *memAnalysisStore) Get(_ context.Context, id models.NewsIdentity) (*models.SurpriseAnalysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.data[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *memAnalysisStore) Put(_ context.Context, id models.NewsIdentity, a models.SurpriseAnalysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = a
	s.puts++
	return nil
}

func ptr(v float64) *float64 { return &v }

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func jsonNumber(s string) json.Number { return json.Number(s) }
