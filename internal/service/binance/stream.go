package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"SMCScan/internal/domain/models"
	drepo "SMCScan/internal/domain/repository"
	"SMCScan/pkg/logger"
)

// Stream implements BarStream over the spot kline websocket. Only closed
// klines are emitted.
type Stream struct {
	websocketURL   string
	symbols        []string
	interval       drepo.Timeframe
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *logger.Logger

	mu        sync.Mutex
	writeMu   sync.Mutex
	conn      *websocket.Conn
	connected bool
	nextID    int
}

func NewStream(websocketURL string, symbols []string, interval drepo.Timeframe, reconnectDelay, pingInterval time.Duration, log *logger.Logger) *Stream {
	if log == nil {
		log = logger.Nop()
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Stream{
		websocketURL:   websocketURL,
		symbols:        symbols,
		interval:       interval,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            log.With("binance-stream"),
	}
}

// Connect establishes the WebSocket connection.
func (s *Stream) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.websocketURL, nil)
	if err != nil {
		return fmt.Errorf("binance connect: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()
	s.log.Info("connected", logger.String("url", s.websocketURL))
	return nil
}

type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

// Subscribe requests the kline stream for every configured symbol.
func (s *Stream) Subscribe(ctx context.Context) error {
	conn := s.current()
	if conn == nil {
		return fmt.Errorf("binance not connected")
	}
	params := make([]string, 0, len(s.symbols))
	for _, sym := range s.symbols {
		params = append(params, strings.ToLower(sym)+"@kline_"+string(s.interval))
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.mu.Unlock()

	if err := s.writeJSON(conn, subscribeRequest{Method: "SUBSCRIBE", Params: params, ID: id}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	s.log.Info("subscribed", logger.Strings("streams", params))
	return nil
}

type klineEvent struct {
	Event  string `json:"e"`
	Symbol string `json:"s"`
	Kline  struct {
		Start  int64  `json:"t"`
		Open   string `json:"o"`
		High   string `json:"h"`
		Low    string `json:"l"`
		Close  string `json:"c"`
		Volume string `json:"v"`
		Closed bool   `json:"x"`
	} `json:"k"`
}

// Read streams closed bars and errors. Both channels close when the read
// loop exits.
func (s *Stream) Read(ctx context.Context) (<-chan *models.Bar, <-chan error) {
	bars := make(chan *models.Bar, 256)
	errs := make(chan error, 1)
	conn := s.current()

	go s.pingLoop(ctx, conn)

	go func() {
		defer close(bars)
		defer close(errs)
		if conn == nil {
			errs <- fmt.Errorf("binance conn nil")
			return
		}
		for {
			if ctx.Err() != nil {
				return
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("binance read: %w", err)
				}
				return
			}
			bar, ok := decodeKline(b)
			if !ok {
				continue
			}
			select {
			case bars <- bar:
			case <-ctx.Done():
				return
			}
		}
	}()

	return bars, errs
}

// decodeKline returns a bar for closed kline frames and false for anything
// else, including subscription acks and still-forming klines.
func decodeKline(b []byte) (*models.Bar, bool) {
	var ev klineEvent
	if err := json.Unmarshal(b, &ev); err != nil || ev.Event != "kline" || !ev.Kline.Closed {
		return nil, false
	}
	vals := make([]float64, 5)
	for i, raw := range []string{ev.Kline.Open, ev.Kline.High, ev.Kline.Low, ev.Kline.Close, ev.Kline.Volume} {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, false
		}
		vals[i] = v
	}
	return &models.Bar{
		Symbol:    ev.Symbol,
		Timestamp: time.UnixMilli(ev.Kline.Start).UTC(),
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}, true
}

func (s *Stream) pingLoop(ctx context.Context, conn *websocket.Conn) {
	if conn == nil {
		return
	}
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Reconnect closes, waits reconnectDelay, then connects and resubscribes.
func (s *Stream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	select {
	case <-time.After(s.reconnectDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Subscribe(ctx)
}

// Close closes the WS connection.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// IsConnected indicates status.
func (s *Stream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Stream) current() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *Stream) writeJSON(conn *websocket.Conn, v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(v)
}

var _ drepo.BarStream = (*Stream)(nil)
