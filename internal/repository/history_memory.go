package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
)

// MemoryHistoryStore keeps history in process when ClickHouse is disabled.
// Points older than retention are dropped on write.
type MemoryHistoryStore struct {
	mu        sync.RWMutex
	rates     map[string][]models.RateSnapshotRef
	strength  []strengthPoint
	retention time.Duration
	now       func() time.Time
}

type strengthPoint struct {
	at      time.Time
	entries []models.CurrencyStrengthEntry
}

func NewMemoryHistoryStore(retention time.Duration) domrepo.HistoryStore {
	return newMemoryHistoryStore(retention)
}

func newMemoryHistoryStore(retention time.Duration) *MemoryHistoryStore {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &MemoryHistoryStore{
		rates:     make(map[string][]models.RateSnapshotRef),
		retention: retention,
		now:       time.Now,
	}
}

func (m *MemoryHistoryStore) Init(context.Context) error { return nil }

func (m *MemoryHistoryStore) SaveRateSnapshots(_ context.Context, refs []models.RateSnapshotRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.retention)
	for _, r := range refs {
		series := append(m.rates[r.BankCode], r)
		sort.SliceStable(series, func(i, j int) bool { return series[i].RecordedAt.Before(series[j].RecordedAt) })
		i := sort.Search(len(series), func(i int) bool { return !series[i].RecordedAt.Before(cutoff) })
		m.rates[r.BankCode] = series[i:]
	}
	return nil
}

func (m *MemoryHistoryStore) RateSnapshotAt(_ context.Context, bank string, at time.Time) (*models.RateSnapshotRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	series := m.rates[bank]
	i := sort.Search(len(series), func(i int) bool { return series[i].RecordedAt.After(at) })
	if i == 0 {
		return nil, nil
	}
	r := series[i-1]
	return &r, nil
}

func (m *MemoryHistoryStore) RateHistory(_ context.Context, bank string, since time.Time) ([]models.RateSnapshotRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	series := m.rates[bank]
	i := sort.Search(len(series), func(i int) bool { return !series[i].RecordedAt.Before(since) })
	return append([]models.RateSnapshotRef{}, series[i:]...), nil
}

func (m *MemoryHistoryStore) SaveStrength(_ context.Context, entries []models.CurrencyStrengthEntry, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.strength = append(m.strength, strengthPoint{at: at, entries: append([]models.CurrencyStrengthEntry(nil), entries...)})
	cutoff := m.now().Add(-m.retention)
	i := 0
	for i < len(m.strength) && m.strength[i].at.Before(cutoff) {
		i++
	}
	m.strength = m.strength[i:]
	return nil
}

func (m *MemoryHistoryStore) Close() error { return nil }
