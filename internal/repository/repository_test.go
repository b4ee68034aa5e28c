package repository

import (
	"context"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/pkg/cache"
	pkgkafka "MarketPulse/pkg/kafka"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryHistoryLookups(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	h := newMemoryHistoryStore(30 * 24 * time.Hour)
	h.now = func() time.Time { return t0.Add(10 * 24 * time.Hour) }

	require.NoError(t, h.SaveRateSnapshots(ctx, []models.RateSnapshotRef{
		{BankCode: "FED", CurrentRate: 4.5, RecordedAt: t0.Add(48 * time.Hour)},
		{BankCode: "FED", CurrentRate: 4.5, RecordedAt: t0},
		{BankCode: "ECB", CurrentRate: 2.5, RecordedAt: t0},
	}))

	ref, err := h.RateSnapshotAt(ctx, "FED", t0.Add(24*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, t0, ref.RecordedAt)

	ref, err = h.RateSnapshotAt(ctx, "FED", t0.Add(-time.Hour))
	require.NoError(t, err)
	assert.Nil(t, ref)

	hist, err := h.RateHistory(ctx, "FED", t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, t0.Add(48*time.Hour), hist[0].RecordedAt)
}

func TestMemoryHistoryRetention(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	h := newMemoryHistoryStore(24 * time.Hour)
	h.now = func() time.Time { return now }

	require.NoError(t, h.SaveRateSnapshots(ctx, []models.RateSnapshotRef{
		{BankCode: "BOE", RecordedAt: now.Add(-48 * time.Hour)},
		{BankCode: "BOE", RecordedAt: now},
	}))
	hist, err := h.RateHistory(ctx, "BOE", time.Time{})
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestRateInsertBuildsMultiRowValues(t *testing.T) {
	q, args := rateInsert("mp.rate_snapshots", []models.RateSnapshotRef{
		{BankCode: "FED", NextExpectedMove: models.MoveHold},
		{BankCode: "ECB", NextExpectedMove: models.MoveCut},
	})
	assert.Contains(t, q, "INSERT INTO mp.rate_snapshots")
	assert.Contains(t, q, "(?, ?, ?, ?, ?, ?, ?),(?, ?, ?, ?, ?, ?, ?)")
	assert.Len(t, args, 14)
	assert.Equal(t, "cut", args[13])
}

func TestSchemaTargetsDatabase(t *testing.T) {
	stmts := Schema("marketpulse")
	require.Len(t, stmts, 3)
	assert.Contains(t, stmts[1], "marketpulse.rate_snapshots")
	assert.Contains(t, stmts[2], "marketpulse.currency_strength")
}

type captureProducer struct {
	topic string
	msgs  []pkgkafka.Message
}

func (p *captureProducer) PublishBatch(_ context.Context, topic string, msgs []pkgkafka.Message) error {
	p.topic = topic
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func (p *captureProducer) Close() error { return nil }

func TestKafkaPublisherKeysByFamily(t *testing.T) {
	prod := &captureProducer{}
	pub := &KafkaPublisher{producer: prod, topic: "signals"}

	require.NoError(t, pub.Publish(context.Background(), models.SignalEvent{Type: models.SignalSnapshotSwapped, Family: "rates"}))
	require.NoError(t, pub.Publish(context.Background(), models.SignalEvent{Type: models.SignalSurpriseScored}))

	assert.Equal(t, "signals", prod.topic)
	require.Len(t, prod.msgs, 2)
	assert.Equal(t, []byte("rates"), prod.msgs[0].Key)
	assert.Equal(t, []byte(models.SignalSurpriseScored), prod.msgs[1].Key)
	assert.Equal(t, models.SignalSnapshotSwapped, prod.msgs[0].Headers["type"])
}

func TestCacheAnalysisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := NewCacheAnalysisStore(cache.NewRedisCacheFromClient(client, "mp"), time.Hour)
	ctx := context.Background()

	ts := time.Date(2025, 3, 7, 13, 30, 0, 0, time.UTC)
	id := models.NewsIdentity{Headline: "US NFP", Timestamp: ts}

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.Put(ctx, id, models.SurpriseAnalysis{Verdict: models.VerdictNeutral, Cached: true}))
	got, err = store.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.VerdictNeutral, got.Verdict)
	assert.False(t, got.Cached)

	other, err := store.Get(ctx, models.NewsIdentity{Headline: "US NFP"})
	require.NoError(t, err)
	assert.Nil(t, other, "identity includes the timestamp")

	mr.FastForward(2 * time.Hour)
	got, err = store.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got)
}
