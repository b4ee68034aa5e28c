package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/pkg/cache"
	"MarketPulse/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type value struct {
	N int `json:"n"`
}

func counter(errAfter int) (RefreshFunc[value], *atomic.Int32) {
	var calls atomic.Int32
	return func(_ context.Context, prev *value) (*value, error) {
		n := int(calls.Add(1))
		if errAfter > 0 && n > errAfter {
			return nil, models.NewSourceError(models.KindUpstreamUnavailable, "test", "down", nil)
		}
		next := &value{N: 1}
		if prev != nil {
			next.N = prev.N + 1
		}
		return next, nil
	}, &calls
}

func TestFailedCycleKeepsPreviousSnapshot(t *testing.T) {
	s := New(nil, nil, Options{}, logger.Nop())
	refresh, _ := counter(1)
	store := Register(s, FamilyConfig{Name: FamilyNews, Interval: time.Minute}, refresh)

	var swaps []SwapEvent
	s.OnSwap(func(ev SwapEvent) { swaps = append(swaps, ev) })

	require.True(t, s.RunOnce(context.Background(), FamilyNews))
	first := store.Load()
	require.NotNil(t, first)
	assert.Equal(t, 1, first.Value.N)
	assert.Nil(t, store.LastFailure())

	require.True(t, s.RunOnce(context.Background(), FamilyNews))
	assert.Same(t, first, store.Load(), "readers keep the last good snapshot")
	require.NotNil(t, store.LastFailure())
	assert.Equal(t, models.KindUpstreamUnavailable, store.LastFailure().Kind)

	require.Len(t, swaps, 1)
	assert.Equal(t, first.CycleID, swaps[0].CycleID)
	assert.Equal(t, FamilyNews, swaps[0].Family)
}

func TestTickWhileInFlightIsSkipped(t *testing.T) {
	s := New(nil, nil, Options{}, logger.Nop())
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	store := Register(s, FamilyConfig{Name: FamilyRates, Interval: time.Hour}, func(ctx context.Context, _ *value) (*value, error) {
		once.Do(func() { close(started) })
		<-release
		return &value{N: 7}, nil
	})

	require.True(t, s.Trigger(context.Background(), FamilyRates))
	<-started
	assert.False(t, s.Trigger(context.Background(), FamilyRates))
	assert.False(t, s.RunOnce(context.Background(), FamilyRates))
	assert.False(t, s.Trigger(context.Background(), "unknown"))

	st := s.Status()
	require.Len(t, st, 1)
	assert.True(t, st[0].InFlight)
	assert.EqualValues(t, 2, st[0].Skipped)

	close(release)
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, 7, store.Value().N)
}

func TestFamiliesDoNotBlockEachOther(t *testing.T) {
	s := New(nil, nil, Options{}, logger.Nop())
	block := make(chan struct{})
	Register(s, FamilyConfig{Name: FamilyRates, Interval: time.Hour}, func(ctx context.Context, _ *value) (*value, error) {
		<-block
		return &value{}, nil
	})
	refresh, _ := counter(0)
	news := Register(s, FamilyConfig{Name: FamilyNews, Interval: time.Hour}, refresh)

	require.True(t, s.Trigger(context.Background(), FamilyRates))
	require.True(t, s.RunOnce(context.Background(), FamilyNews))
	assert.NotNil(t, news.Load())

	close(block)
	require.NoError(t, s.Stop(context.Background()))
}

func TestStatusStaleness(t *testing.T) {
	s := New(nil, nil, Options{StaleGrace: time.Minute}, logger.Nop())
	refresh, _ := counter(0)
	store := Register(s, FamilyConfig{Name: FamilyCalendar, Interval: 30 * time.Minute}, refresh)

	assert.True(t, s.Status()[0].Stale, "no snapshot yet")

	at := time.Date(2025, 3, 7, 12, 0, 0, 0, time.UTC)
	store.Swap(&value{N: 1}, at, "c1")
	s.now = func() time.Time { return at.Add(30 * time.Minute) }
	assert.False(t, s.Status()[0].Stale)
	s.now = func() time.Time { return at.Add(32 * time.Minute) }
	assert.True(t, s.Status()[0].Stale)
}

func redisPair(t *testing.T) (*miniredis.Miniredis, cache.Service, cache.Service) {
	t.Helper()
	mr := miniredis.RunT(t)
	a := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return mr, cache.NewRedisCacheFromClient(a, "mp"), cache.NewRedisCacheFromClient(b, "mp")
}

func TestRestartServesL2Snapshot(t *testing.T) {
	_, ca, cb := redisPair(t)

	a := New(ca, nil, Options{}, logger.Nop())
	refresh, _ := counter(0)
	Register(a, FamilyConfig{Name: FamilyCurrency, Interval: time.Hour}, refresh)
	require.True(t, a.RunOnce(context.Background(), FamilyCurrency))

	b := New(cb, nil, Options{}, logger.Nop())
	failing := func(context.Context, *value) (*value, error) { return nil, errors.New("upstream down") }
	store := Register(b, FamilyConfig{Name: FamilyCurrency, Interval: time.Hour}, failing)

	b.Start(context.Background())
	defer b.Stop(context.Background())

	snap := store.Load()
	require.NotNil(t, snap, "restored before the first cycle runs")
	assert.Equal(t, 1, snap.Value.N)
}

func TestFollowerReloadsInsteadOfRefreshing(t *testing.T) {
	_, ca, cb := redisPair(t)
	ctx := context.Background()

	leader := New(ca, nil, Options{}, logger.Nop())
	refresh, _ := counter(0)
	Register(leader, FamilyConfig{Name: FamilyNews, Interval: time.Hour}, refresh)
	require.True(t, leader.RunOnce(ctx, FamilyNews))

	// Leader is mid-cycle on another instance.
	ok, err := ca.TryLock(ctx, "lock:refresh:"+FamilyNews, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	follower := New(cb, nil, Options{}, logger.Nop())
	followerRefresh, calls := counter(0)
	store := Register(follower, FamilyConfig{Name: FamilyNews, Interval: time.Hour}, followerRefresh)

	require.True(t, follower.RunOnce(ctx, FamilyNews))
	assert.Zero(t, calls.Load(), "follower must not hit upstream")
	require.NotNil(t, store.Load())
	assert.Equal(t, 1, store.Value().N)

	require.NoError(t, ca.Unlock(ctx, "lock:refresh:"+FamilyNews))
	require.True(t, follower.RunOnce(ctx, FamilyNews))
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, 2, store.Value().N, "refresh builds on the restored value")
}
