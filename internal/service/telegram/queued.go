package telegram

import (
	"context"
	"encoding/json"
	"fmt"

	"SMCScan/internal/domain/models"
	"SMCScan/internal/domain/service"
	"SMCScan/pkg/queue"
)

// AlertJobType is the queue message type for setup alerts.
const AlertJobType = "setup_alert"

type alertPayload struct {
	Setup models.Setup `json:"setup"`
	Score float64      `json:"score"`
}

// QueuedNotifier hands alerts to the job queue so delivery is retried
// outside the scan path.
type QueuedNotifier struct {
	pub queue.Publisher
}

func NewQueuedNotifier(pub queue.Publisher) *QueuedNotifier {
	return &QueuedNotifier{pub: pub}
}

func (q *QueuedNotifier) Notify(ctx context.Context, setup models.Setup, score float64) error {
	if err := q.pub.PublishMessage(ctx, AlertJobType, alertPayload{Setup: setup, Score: score}); err != nil {
		return fmt.Errorf("enqueue alert: %w", err)
	}
	return nil
}

// AlertJob delivers queued alerts with the wrapped notifier.
type AlertJob struct {
	notifier service.Notifier
}

func NewAlertJob(n service.Notifier) *AlertJob {
	return &AlertJob{notifier: n}
}

func (j *AlertJob) Name() string { return "telegram-alert" }
func (j *AlertJob) Type() string { return AlertJobType }

func (j *AlertJob) Handle(ctx context.Context, payload json.RawMessage) error {
	p, err := queue.Decode[alertPayload](payload)
	if err != nil {
		return err
	}
	return j.notifier.Notify(ctx, p.Setup, p.Score)
}

var (
	_ service.Notifier = (*QueuedNotifier)(nil)
	_ queue.Job        = (*AlertJob)(nil)
)
