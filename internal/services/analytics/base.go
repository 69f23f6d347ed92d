package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"SMCScan/internal/service/metrics"
	xhttp "SMCScan/pkg/http"
	"SMCScan/pkg/logger"
)

// ErrUnconfigured is returned by clients whose base URL is empty.
var ErrUnconfigured = errors.New("service url not configured")

// BaseConfig configures the resilience wrapper shared by outbound clients.
type BaseConfig struct {
	Name        string
	BaseURL     string
	Timeout     time.Duration
	RateLimit   float64 // requests per second, 0 disables
	Burst       int
	Attempts    int
	BreakerTrip uint32 // consecutive failures that open the breaker
	OpenFor     time.Duration
}

func (c BaseConfig) withDefaults() BaseConfig {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.Attempts <= 0 {
		c.Attempts = 2
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.BreakerTrip == 0 {
		c.BreakerTrip = 5
	}
	if c.OpenFor <= 0 {
		c.OpenFor = 30 * time.Second
	}
	return c
}

// HTTPServiceBase centralizes JSON calls to one upstream. Every call goes
// through a rate limiter and a circuit breaker; transient failures are
// retried with a linear backoff.
type HTTPServiceBase struct {
	name     string
	baseURL  string
	attempts int
	client   *xhttp.Client
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	log      *logger.Logger
}

func NewHTTPServiceBase(cfg BaseConfig, log *logger.Logger) *HTTPServiceBase {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logger.Nop()
	}
	b := &HTTPServiceBase{
		name:     cfg.Name,
		baseURL:  cfg.BaseURL,
		attempts: cfg.Attempts,
		client:   xhttp.NewClient(xhttp.WithTimeout(cfg.Timeout), xhttp.WithUserAgent("smcscan/1.0")),
		log:      log.With(cfg.Name),
	}
	if cfg.RateLimit > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst)
	}
	b.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.OpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.BreakerTrip
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !xhttp.IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			b.log.Warn("circuit breaker state change",
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		},
	})
	return b
}

// Configured reports whether a base URL is set.
func (b *HTTPServiceBase) Configured() bool { return b.baseURL != "" }

func (b *HTTPServiceBase) GetJSON(ctx context.Context, path string, query map[string][]string, dest interface{}) error {
	return b.do(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         b.baseURL + path,
		QueryParams: query,
	}, dest)
}

func (b *HTTPServiceBase) PostJSON(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	return b.do(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     b.baseURL + path,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    payload,
	}, dest)
}

func (b *HTTPServiceBase) do(ctx context.Context, opts *xhttp.RequestOptions, dest interface{}) error {
	if !b.Configured() {
		return ErrUnconfigured
	}
	start := time.Now()
	defer func() {
		metrics.UpstreamLatency.WithLabelValues(b.name).Observe(time.Since(start).Seconds())
	}()

	var err error
	for attempt := 1; attempt <= b.attempts; attempt++ {
		if b.limiter != nil {
			if werr := b.limiter.Wait(ctx); werr != nil {
				return fmt.Errorf("%s: rate limit wait: %w", b.name, werr)
			}
		}
		_, err = b.breaker.Execute(func() (interface{}, error) {
			return nil, b.client.SendAndParse(ctx, opts, dest)
		})
		if err == nil {
			return nil
		}
		if !xhttp.IsRetryable(err) || errors.Is(err, gobreaker.ErrOpenState) || attempt == b.attempts {
			break
		}
		select {
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	metrics.UpstreamErrors.WithLabelValues(b.name, errorReason(err)).Inc()
	return fmt.Errorf("%s %s: %w", b.name, opts.URL, err)
}

func errorReason(err error) string {
	var se *xhttp.StatusError
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "breaker_open"
	case errors.As(err, &se):
		return fmt.Sprintf("status_%d", se.Code)
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "transport"
	}
}
