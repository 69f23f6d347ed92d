package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"SMCScan/internal/domain/models"
	domrepo "SMCScan/internal/domain/repository"
	"SMCScan/internal/service/metrics"
	"SMCScan/internal/service/ratelimit"
	"SMCScan/internal/usecase"
	xhttp "SMCScan/pkg/http"
	xlogger "SMCScan/pkg/logger"
)

type BarsReader interface {
	GetBars(ctx context.Context, p usecase.GetBarsParams) (*usecase.GetBarsResult, error)
}

type Backtester interface {
	Run(ctx context.Context, symbol string, from, to time.Time, workers int, persist bool) (*usecase.BacktestReport, error)
	Replay(setup models.Setup, future []models.Bar, maxLookahead int) (models.ReplayResult, error)
}

// DefaultMaxBacktestWindow bounds to-from on /api/backtest.
const DefaultMaxBacktestWindow = 90 * 24 * time.Hour

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// ScannerEchoHandler serves bars, on-demand scans, replays and backtests.
type ScannerEchoHandler struct {
	logger    *xlogger.Logger
	bars      BarsReader
	scan      usecase.SymbolScanner
	backtest  Backtester
	rl        *ratelimit.Limiter
	checks    map[string]HealthCheck
	maxWindow time.Duration
}

func NewScannerEchoHandler(logger *xlogger.Logger, bars BarsReader, scan usecase.SymbolScanner, backtest Backtester, rl *ratelimit.Limiter) *ScannerEchoHandler {
	metrics.Register()
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &ScannerEchoHandler{
		logger:    logger.With("api"),
		bars:      bars,
		scan:      scan,
		backtest:  backtest,
		rl:        rl,
		checks:    map[string]HealthCheck{},
		maxWindow: DefaultMaxBacktestWindow,
	}
}

// SetMaxBacktestWindow changes the longest accepted backtest range. Zero or
// less removes the limit.
func (h *ScannerEchoHandler) SetMaxBacktestWindow(d time.Duration) {
	h.maxWindow = d
}

// AddHealthCheck registers a named dependency probe for /healthz.
func (h *ScannerEchoHandler) AddHealthCheck(name string, check HealthCheck) {
	h.checks[name] = check
}

func (h *ScannerEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api", h.observe, h.limit)
	g.GET("/bars", h.Bars)
	g.POST("/scan", h.Scan)
	g.POST("/replay", h.Replay)
	g.POST("/backtest", h.Backtest)
}

// observe records latency and error counts per endpoint.
func (h *ScannerEchoHandler) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		endpoint := c.Path()
		err := next(c)
		metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		if err != nil || c.Response().Status >= http.StatusBadRequest {
			metrics.APIErrors.WithLabelValues(endpoint).Inc()
		}
		return err
	}
}

func (h *ScannerEchoHandler) limit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.rl != nil && !h.rl.Allow(c.RealIP()) {
			h.logger.Warn("rate limited", xlogger.String("remote", c.RealIP()), xlogger.String("path", c.Path()))
			return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limit exceeded"))
		}
		return next(c)
	}
}

func (h *ScannerEchoHandler) Bars(c echo.Context) error {
	req := &models.BarsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.bars.GetBars(c.Request().Context(), usecase.GetBarsParams{
		Symbol:    req.Symbol,
		Timeframe: domrepo.NormalizeTimeframe(req.TF),
		N:         req.N,
	})
	if err != nil {
		h.logger.Error("bars usecase error", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

func (h *ScannerEchoHandler) Scan(c echo.Context) error {
	req := &models.ScanRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	out, err := h.scan.ScanSymbol(c.Request().Context(), req.Symbol, req.Persist)
	if err != nil {
		h.logger.Error("scan usecase error", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, out)
}

func (h *ScannerEchoHandler) Replay(c echo.Context) error {
	req := &models.ReplayRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.backtest.Replay(req.Setup, req.Bars, req.MaxLookahead)
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ScannerEchoHandler) Backtest(c echo.Context) error {
	req := &models.BacktestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.maxWindow > 0 && req.To.Sub(req.From) > h.maxWindow {
		msg := fmt.Sprintf("backtest window exceeds %d days", int(h.maxWindow/(24*time.Hour)))
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_WINDOW_TOO_LARGE", "to", msg, http.StatusBadRequest))
	}

	rep, err := h.backtest.Run(c.Request().Context(), req.Symbol, req.From, req.To, req.Workers, req.Persist)
	if err != nil {
		h.logger.Error("backtest usecase error", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, rep)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h *ScannerEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	res := healthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	status := http.StatusOK
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			res.Checks[name] = err.Error()
			res.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		res.Checks[name] = "ok"
	}
	return c.JSON(status, res)
}

func toAppError(err error) error {
	var appErr *xhttp.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, domrepo.ErrBarsUnavailable):
		return xhttp.UpstreamError("bar source unavailable").WithError(err)
	case errors.Is(err, usecase.ErrScanInProgress):
		return xhttp.NewAppError("ERR_CONFLICT", "symbol", "scan already in progress", http.StatusConflict).WithError(err)
	case errors.Is(err, models.ErrInvalidSetup):
		return xhttp.UnprocessableError("setup", err.Error()).WithError(err)
	case errors.Is(err, context.DeadlineExceeded):
		return xhttp.NewAppError("ERR_TIMEOUT", "", "request timed out", http.StatusGatewayTimeout).WithError(err)
	default:
		return xhttp.InternalError("internal error").WithError(err)
	}
}
