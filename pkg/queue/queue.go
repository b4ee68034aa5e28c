package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Publisher enqueues messages for asynchronous processing.
type Publisher interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) error
}

// QueueConfig contains the configuration for the queue.
type QueueConfig struct {
	Workers      int           // number of workers
	RetryLimit   int           // maximum retries before the dead letter list
	RetryDelay   time.Duration // delay before a failed message is retried
	PollInterval time.Duration // how often due retries are moved back
}

// Message is the envelope stored in Redis.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
}

// ParsePayload decodes the message payload into T.
func ParsePayload[T any](msg Message) (*T, error) {
	var result T
	if err := json.Unmarshal(msg.Payload, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s payload: %w", msg.Type, err)
	}
	return &result, nil
}
