package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type alert struct {
	Symbol string  `json:"symbol"`
	Score  float64 `json:"score"`
}

func TestMessageEnvelopeRoundTrip(t *testing.T) {
	msg, err := NewMessage("setup_alert", alert{Symbol: "BTCUSDT", Score: 7.5})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "setup_alert", msg.Type)

	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var back Message
	require.NoError(t, json.Unmarshal(raw, &back))
	got, err := Decode[alert](back.Payload)
	require.NoError(t, err)
	assert.Equal(t, alert{Symbol: "BTCUSDT", Score: 7.5}, *got)
}

func TestDecodeRejectsMismatchedPayload(t *testing.T) {
	_, err := Decode[alert](json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}

func TestRetryDelayDoublesUpToMax(t *testing.T) {
	cfg := (&QueueConfig{RetryDelay: time.Second, MaxDelay: 5 * time.Second}).withDefaults()
	assert.Equal(t, time.Second, cfg.retryDelay(1))
	assert.Equal(t, 2*time.Second, cfg.retryDelay(2))
	assert.Equal(t, 4*time.Second, cfg.retryDelay(3))
	assert.Equal(t, 5*time.Second, cfg.retryDelay(4))
	assert.Equal(t, 5*time.Second, cfg.retryDelay(10))
}

func TestConfigDefaults(t *testing.T) {
	var nilCfg *QueueConfig
	cfg := nilCfg.withDefaults()
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, 10*time.Second, cfg.RetryDelay)
	assert.Equal(t, 100*time.Second, cfg.MaxDelay)
}
