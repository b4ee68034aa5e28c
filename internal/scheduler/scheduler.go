package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	"MarketPulse/pkg/cache"
	"MarketPulse/pkg/logger"

	"github.com/google/uuid"
)

// Signal families.
const (
	FamilyNews     = "news"
	FamilyCurrency = "currency"
	FamilyRates    = "rates"
	FamilyCalendar = "calendar"
)

// RefreshFunc computes the next value from the previous one (nil on the
// first cycle).
type RefreshFunc[T any] func(ctx context.Context, prev *T) (*T, error)

// FamilyConfig tunes one family loop.
type FamilyConfig struct {
	Name     string
	Interval time.Duration
	// Timeout bounds one cycle.
	Timeout time.Duration
	// SnapshotTTL is how long the L2 copy outlives its cycle.
	SnapshotTTL time.Duration
}

// SwapEvent is broadcast after every published snapshot.
type SwapEvent struct {
	Family      string    `json:"family"`
	CycleID     string    `json:"cycleId"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Status is the health view of one family.
type Status struct {
	Family      string    `json:"family"`
	LastUpdated time.Time `json:"lastUpdated"`
	CycleID     string    `json:"cycleId,omitempty"`
	LastError   *Failure  `json:"lastError,omitempty"`
	Stale       bool      `json:"stale"`
	InFlight    bool      `json:"inFlight"`
	Skipped     int64     `json:"skipped"`
}

type runner interface {
	name() string
	interval() time.Duration
	begin() bool
	run(ctx context.Context)
	restore(ctx context.Context)
	status(now time.Time, grace time.Duration) Status
}

type Options struct {
	// StaleGrace is added to a family interval before it counts as stale.
	StaleGrace time.Duration
}

// Scheduler runs one refresh loop per family. Loops never wait on each
// other; a family's cycles are serialized against themselves.
type Scheduler struct {
	cache   cache.Service
	metrics domrepo.Metrics
	log     *logger.Logger
	opts    Options
	now     func() time.Time

	mu      sync.RWMutex
	runners map[string]runner
	onSwap  []func(SwapEvent)

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds a scheduler. c may be nil to run without the L2 tier and
// distributed locks.
func New(c cache.Service, metrics domrepo.Metrics, opts Options, log *logger.Logger) *Scheduler {
	if opts.StaleGrace <= 0 {
		opts.StaleGrace = 10 * time.Minute
	}
	return &Scheduler{
		cache:   c,
		metrics: metrics,
		log:     log.Component("scheduler"),
		opts:    opts,
		now:     time.Now,
		runners: make(map[string]runner),
	}
}

// Register adds a family and returns its snapshot store.
func Register[T any](s *Scheduler, cfg FamilyConfig, refresh RefreshFunc[T]) *SnapshotStore[T] {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = 7 * 24 * time.Hour
	}
	f := &family[T]{
		s:       s,
		cfg:     cfg,
		store:   NewSnapshotStore[T](cfg.Name),
		refresh: refresh,
		log:     s.log.With(logger.String("family", cfg.Name)),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runners[cfg.Name] = f
	return f.store
}

// OnSwap subscribes to snapshot swaps. Handlers must not block.
func (s *Scheduler) OnSwap(fn func(SwapEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSwap = append(s.onSwap, fn)
}

func (s *Scheduler) emit(ev SwapEvent) {
	s.mu.RLock()
	subs := s.onSwap
	s.mu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// Start restores every family from L2, then launches the loops. Each loop
// runs a first cycle immediately.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.mu.RLock()
	runners := make([]runner, 0, len(s.runners))
	for _, r := range s.runners {
		runners = append(runners, r)
	}
	s.mu.RUnlock()

	for _, r := range runners {
		r.restore(ctx)
		s.wg.Add(1)
		go s.loop(ctx, r)
	}
	s.log.Info("scheduler started", logger.Int("families", len(runners)))
}

func (s *Scheduler) loop(ctx context.Context, r runner) {
	defer s.wg.Done()

	s.tick(ctx, r)
	ticker := time.NewTicker(r.interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, r)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, r runner) {
	if !r.begin() {
		s.log.Debug("cycle skipped, previous still running", logger.String("family", r.name()))
		return
	}
	r.run(ctx)
}

// Trigger runs an out-of-band cycle for family. It returns false when the
// family is unknown or a cycle is already in flight.
func (s *Scheduler) Trigger(ctx context.Context, family string) bool {
	s.mu.RLock()
	r, ok := s.runners[family]
	s.mu.RUnlock()
	if !ok || !r.begin() {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		r.run(context.WithoutCancel(ctx))
	}()
	return true
}

// RunOnce runs one synchronous cycle of family. Used at startup and in
// tests.
func (s *Scheduler) RunOnce(ctx context.Context, family string) bool {
	s.mu.RLock()
	r, ok := s.runners[family]
	s.mu.RUnlock()
	if !ok || !r.begin() {
		return false
	}
	r.run(ctx)
	return true
}

// Status reports every family, sorted by name.
func (s *Scheduler) Status() []Status {
	now := s.now()
	s.mu.RLock()
	out := make([]Status, 0, len(s.runners))
	for _, r := range s.runners {
		out = append(out, r.status(now, s.opts.StaleGrace))
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Family < out[j].Family })
	return out
}

// Stop cancels the loops and waits for running cycles.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type family[T any] struct {
	s       *Scheduler
	cfg     FamilyConfig
	store   *SnapshotStore[T]
	refresh RefreshFunc[T]
	log     *logger.Logger

	inFlight atomic.Bool
	skipped  atomic.Int64
}

func (f *family[T]) name() string            { return f.cfg.Name }
func (f *family[T]) interval() time.Duration { return f.cfg.Interval }

func (f *family[T]) snapshotKey() string { return "snapshot:" + f.cfg.Name }
func (f *family[T]) lockKey() string     { return "lock:refresh:" + f.cfg.Name }

func (f *family[T]) begin() bool {
	if f.inFlight.CompareAndSwap(false, true) {
		return true
	}
	f.skipped.Add(1)
	if f.s.metrics != nil {
		f.s.metrics.RecordRefreshSkipped(f.cfg.Name)
	}
	return false
}

func (f *family[T]) run(parent context.Context) {
	defer f.inFlight.Store(false)

	ctx, cancel := context.WithTimeout(parent, f.cfg.Timeout)
	defer cancel()
	start := f.s.now()

	if c := f.s.cache; c != nil {
		locked, err := c.TryLock(ctx, f.lockKey(), f.cfg.Timeout)
		switch {
		case err != nil:
			f.log.Warn("refresh lock unavailable, refreshing locally", logger.Error(err))
		case !locked:
			// Another instance owns this cycle; pick up its result.
			f.reload(ctx)
			f.record("follower", start)
			return
		default:
			defer func() {
				uctx, ucancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer ucancel()
				if err := c.Unlock(uctx, f.lockKey()); err != nil {
					f.log.Warn("refresh lock not released", logger.Error(err))
				}
			}()
		}
	}

	cycleID := uuid.NewString()
	next, err := f.refresh(ctx, f.store.Value())
	if err == nil && next == nil {
		err = models.NewSourceError(models.KindUnavailable, f.cfg.Name, "refresh produced no value", nil)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && models.KindOf(err) == models.KindUnknown {
			err = models.NewSourceError(models.KindTimeout, f.cfg.Name, "cycle timed out", err)
		}
		f.store.Fail(err, f.s.now())
		if f.s.metrics != nil {
			f.s.metrics.RecordSourceError(f.cfg.Name, models.KindOf(err))
		}
		f.log.Warn("refresh failed, keeping previous snapshot",
			logger.String("cycle_id", cycleID),
			logger.String("kind", string(models.KindOf(err))),
			logger.Error(err))
		f.record("error", start)
		return
	}

	snap := f.store.Swap(next, f.s.now(), cycleID)
	if c := f.s.cache; c != nil {
		if err := c.Set(ctx, f.snapshotKey(), snap, f.cfg.SnapshotTTL); err != nil {
			f.log.Warn("snapshot not written to L2", logger.Error(err))
		}
	}
	f.record("ok", start)
	f.published(snap)
	f.log.Debug("snapshot swapped",
		logger.String("cycle_id", cycleID),
		logger.Duration("took_ms", f.s.now().Sub(start)))
}

func (f *family[T]) published(snap *Snapshot[T]) {
	if f.s.metrics != nil {
		f.s.metrics.RecordSnapshotSwap(f.cfg.Name, snap.UpdatedAt)
	}
	f.s.emit(SwapEvent{Family: f.cfg.Name, CycleID: snap.CycleID, LastUpdated: snap.UpdatedAt})
}

func (f *family[T]) record(outcome string, start time.Time) {
	if f.s.metrics != nil {
		f.s.metrics.RecordRefresh(f.cfg.Name, outcome, f.s.now().Sub(start).Seconds())
	}
}

// reload installs the L2 snapshot when it is newer than the local one.
func (f *family[T]) reload(ctx context.Context) bool {
	if f.s.cache == nil {
		return false
	}
	var stored Snapshot[T]
	if err := f.s.cache.Get(ctx, f.snapshotKey(), &stored); err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			f.log.Warn("L2 snapshot read failed", logger.Error(err))
		}
		return false
	}
	if stored.Value == nil {
		return false
	}
	snap := &stored
	if !f.store.restore(snap) {
		return false
	}
	f.published(snap)
	return true
}

func (f *family[T]) restore(ctx context.Context) {
	if f.reload(ctx) {
		f.log.Info("snapshot restored from L2", logger.Time("updated_at", f.store.Load().UpdatedAt))
	}
}

func (f *family[T]) status(now time.Time, grace time.Duration) Status {
	st := Status{
		Family:    f.cfg.Name,
		LastError: f.store.LastFailure(),
		InFlight:  f.inFlight.Load(),
		Skipped:   f.skipped.Load(),
		Stale:     true,
	}
	if snap := f.store.Load(); snap != nil {
		st.LastUpdated = snap.UpdatedAt
		st.CycleID = snap.CycleID
		st.Stale = now.Sub(snap.UpdatedAt) > f.cfg.Interval+grace
	}
	return st
}
