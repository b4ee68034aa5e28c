package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"MarketPulse/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Headline string `json:"headline"`
}

type recordingJob struct {
	mu       sync.Mutex
	failures int
	seen     []Message
	done     chan struct{}
}

func (j *recordingJob) Name() string { return "recording" }
func (j *recordingJob) Type() string { return "test.item" }

func (j *recordingJob) Handle(_ context.Context, msg Message) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.seen = append(j.seen, msg)
	if len(j.seen) <= j.failures {
		return errors.New("transient")
	}
	close(j.done)
	return nil
}

func newQueue(t *testing.T, cfg *QueueConfig) (*miniredis.Miniredis, *RedisQueue) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisQueue(logger.Nop(), cfg, client, WithKeyPrefix("t"))
}

func TestEnqueueRequiresRegisteredJob(t *testing.T) {
	_, q := newQueue(t, nil)
	err := q.Enqueue(context.Background(), "unknown", payload{})
	assert.Error(t, err)
}

func TestQueueDeliversAndRetries(t *testing.T) {
	_, q := newQueue(t, &QueueConfig{Workers: 1, RetryLimit: 3, RetryDelay: time.Millisecond, PollInterval: 20 * time.Millisecond})
	job := &recordingJob{failures: 1, done: make(chan struct{})}
	q.RegisterJob(job)
	require.NoError(t, q.Start())
	defer q.Stop(context.Background())

	require.NoError(t, q.Enqueue(context.Background(), "test.item", payload{Headline: "CPI"}))

	select {
	case <-job.done:
	case <-time.After(5 * time.Second):
		t.Fatal("job never succeeded")
	}

	job.mu.Lock()
	defer job.mu.Unlock()
	require.Len(t, job.seen, 2)
	assert.Equal(t, 0, job.seen[0].Attempts)
	assert.Equal(t, 1, job.seen[1].Attempts)
	assert.Equal(t, job.seen[0].ID, job.seen[1].ID)

	p, err := ParsePayload[payload](job.seen[1])
	require.NoError(t, err)
	assert.Equal(t, "CPI", p.Headline)
}

func TestQueueDeadLettersAfterRetryLimit(t *testing.T) {
	_, q := newQueue(t, &QueueConfig{Workers: 1, RetryLimit: 0})
	job := &recordingJob{failures: 100, done: make(chan struct{})}
	q.RegisterJob(job)

	msg := Message{ID: "m1", Type: "test.item", Payload: []byte(`{}`)}
	q.process(msg)

	_, delayed, dead, err := q.Depth(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 0, delayed)
	assert.EqualValues(t, 1, dead)
}
