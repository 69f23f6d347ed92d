package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Publisher enqueues a typed payload for asynchronous handling.
type Publisher interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) error
}

type QueueConfig struct {
	Workers    int           // number of workers
	RetryLimit int           // retries before a message goes to the DLQ
	RetryDelay time.Duration // first retry delay, doubled per attempt
	MaxDelay   time.Duration
	PollEvery  time.Duration // retry set scan interval
}

func (c *QueueConfig) withDefaults() *QueueConfig {
	out := QueueConfig{}
	if c != nil {
		out = *c
	}
	if out.Workers <= 0 {
		out.Workers = 1
	}
	if out.RetryDelay <= 0 {
		out.RetryDelay = 10 * time.Second
	}
	if out.MaxDelay < out.RetryDelay {
		out.MaxDelay = 10 * out.RetryDelay
	}
	if out.PollEvery <= 0 {
		out.PollEvery = 5 * time.Second
	}
	return &out
}

// Message is the envelope stored in Redis.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
	LastError string          `json:"last_error,omitempty"`
}

func NewMessage(msgType string, payload interface{}) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal payload: %w", err)
	}
	return Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Decode unmarshals a job payload into T.
func Decode[T any](payload json.RawMessage) (*T, error) {
	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &out, nil
}

// retryDelay is the wait before the given attempt (1-based).
func (c *QueueConfig) retryDelay(attempt int) time.Duration {
	d := c.RetryDelay
	for i := 1; i < attempt && d < c.MaxDelay; i++ {
		d *= 2
	}
	if d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}
