package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SMCScan/internal/domain/models"
	mid "SMCScan/internal/middleware"
	"SMCScan/pkg/metrics"
)

func closedBar(symbol string, ts time.Time, close float64) *models.Bar {
	return &models.Bar{Symbol: symbol, Timestamp: ts, Open: close, High: close + 1, Low: close - 1, Close: close, Volume: 2}
}

func TestBarProcessorRoutesByBackend(t *testing.T) {
	ctx := context.Background()
	pub, store := &fakePublisher{}, &fakeStore{}
	b := closedBar("BTCUSDT", noon, 100)

	require.NoError(t, NewBarProcessor(pub, store, metrics.Nop{}, BackendKafka).Process(ctx, b))
	assert.Len(t, pub.published, 1)
	assert.Zero(t, store.count())

	require.NoError(t, NewBarProcessor(pub, store, metrics.Nop{}, BackendClickHouse).Process(ctx, b))
	assert.Equal(t, 1, store.count())

	err := NewBarProcessor(nil, nil, metrics.Nop{}, BackendKafka).Process(ctx, b)
	assert.Error(t, err)
	assert.Error(t, NewBarProcessor(pub, store, metrics.Nop{}, BackendKafka).Process(ctx, nil))
}

func TestBarProcessorBatch(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	p := NewBarProcessor(nil, store, metrics.Nop{}, BackendClickHouse)

	require.NoError(t, p.ProcessBatch(ctx, nil))
	require.NoError(t, p.ProcessBatch(ctx, []*models.Bar{
		closedBar("BTCUSDT", noon, 100),
		closedBar("ETHUSDT", noon, 10),
	}))
	assert.Equal(t, 2, store.count())

	store.err = errBoom
	assert.ErrorIs(t, p.ProcessBatch(ctx, []*models.Bar{closedBar("BTCUSDT", noon, 1)}), errBoom)

	p.Close()
	assert.True(t, store.closed)
}

func TestKafkaBarsHandlerStoresDecodedBar(t *testing.T) {
	store := &fakeStore{}
	h := NewKafkaBarsHandler("bars", store, metrics.Nop{})
	assert.Equal(t, "bars", h.Topic())

	payload, err := json.Marshal(closedBar("BTCUSDT", noon, 100))
	require.NoError(t, err)
	require.NoError(t, h.Handle(context.Background(), payload))
	require.Equal(t, 1, store.count())
	assert.Equal(t, noon, store.stored[0].Timestamp.UTC())
	assert.Equal(t, 100.0, store.stored[0].Close)

	assert.Error(t, h.Handle(context.Background(), []byte("{not json")))
	assert.Error(t, h.Handle(context.Background(), []byte(`{"close":1}`)))
}

type chanStream struct {
	bars chan *models.Bar
	errs chan error

	mu         sync.Mutex
	connected  bool
	reconnects int
}

func newChanStream() *chanStream {
	return &chanStream{bars: make(chan *models.Bar, 8), errs: make(chan error, 1)}
}

func (s *chanStream) Connect(context.Context) error {
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	return nil
}

func (s *chanStream) Subscribe(context.Context) error { return nil }

func (s *chanStream) Read(context.Context) (<-chan *models.Bar, <-chan error) {
	return s.bars, s.errs
}

func (s *chanStream) Reconnect(context.Context) error {
	s.mu.Lock()
	s.reconnects++
	s.mu.Unlock()
	return nil
}

func (s *chanStream) Close() error {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	return nil
}

func (s *chanStream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *chanStream) reconnectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnects
}

func TestBarCollectorFeedsPipelineAndDropsReplays(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, store := newChanStream(), &fakeStore{}
	proc := NewBarProcessor(nil, store, metrics.Nop{}, BackendClickHouse)
	pipe := mid.NewBarPipeline(proc, metrics.Nop{})
	c := NewBarCollector(stream, proc, metrics.Nop{}, pipe, nil)

	require.NoError(t, c.Start(ctx))
	assert.True(t, c.IsConnected())
	assert.Same(t, proc, c.Processor())

	stream.bars <- closedBar("BTCUSDT", noon, 100)
	stream.bars <- closedBar("BTCUSDT", noon, 101)
	stream.bars <- closedBar("BTCUSDT", noon.Add(5*time.Minute), 102)
	require.Eventually(t, func() bool { return store.count() == 2 }, time.Second, 5*time.Millisecond)

	stream.errs <- errBoom
	require.Eventually(t, func() bool { return stream.reconnectCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Shutdown(ctx))
	assert.False(t, c.IsConnected())
}
