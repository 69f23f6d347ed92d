package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"SMCScan/internal/usecase"
	"SMCScan/pkg/config"
	xhttp "SMCScan/pkg/http"
	pkgkafka "SMCScan/pkg/kafka"
	applogger "SMCScan/pkg/logger"
	"SMCScan/pkg/queue"
)

type closer struct {
	name  string
	close func() error
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	httpServer *xhttp.Server
	scheduler  *usecase.ScanScheduler
	scan       *usecase.ScanUseCase
	collector  *usecase.BarCollector
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	alerts     *queue.RedisQueue
	closers    []closer
}

// New creates the app around the HTTP handler and the scan loop. Ingest,
// the bars consumer and the alert queue are attached separately.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	handler xhttp.Handler,
	scheduler *usecase.ScanScheduler,
	scan *usecase.ScanUseCase,
) *App {
	if l == nil {
		l = applogger.Nop()
	}
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return &App{
		cfg: cfg,
		log: l.With("app"),
		httpServer: xhttp.NewServer(handler,
			xhttp.WithHost(cfg.Server.Host),
			xhttp.WithPort(cfg.Server.Port),
			xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
			xhttp.WithCORS(cfg.Server.CORS),
			xhttp.WithMetricsPath(metricsPath),
			xhttp.WithLogger(l),
		),
		scheduler: scheduler,
		scan:      scan,
	}
}

func (a *App) WithIngest(c *usecase.BarCollector) { a.collector = c }

func (a *App) WithConsumer(c *pkgkafka.Consumer, kh pkgkafka.MessageHandler) {
	a.consumer = c
	a.kh = kh
}

func (a *App) WithAlertQueue(q *queue.RedisQueue) { a.alerts = q }

// AddCloser registers a resource released after everything else has stopped.
func (a *App) AddCloser(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, close: fn})
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		_ = a.Shutdown(context.Background())
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	cancel()
	return a.Shutdown(context.Background())
}

// Start launches every configured component without blocking.
func (a *App) Start(ctx context.Context) error {
	if a.alerts != nil {
		if err := a.alerts.Start(); err != nil {
			return err
		}
		a.log.Info("alert queue started")
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			return err
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if a.collector != nil {
		if err := a.collector.Start(ctx); err != nil {
			return err
		}
		a.log.Info("bar collector started", applogger.Strings("symbols", a.cfg.Scanner.Symbols))
	}

	a.scheduler.Start(ctx)
	return a.httpServer.Start()
}

// Shutdown stops components in reverse start order and then releases the
// shared clients.
func (a *App) Shutdown(ctx context.Context) error {
	a.log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}
	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		a.log.Warn("scan loop stop error", applogger.Error(err))
	}
	a.scan.Wait()

	if a.collector != nil {
		if err := a.collector.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("collector stop error", applogger.Error(err))
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.alerts != nil {
		if err := a.alerts.Stop(shutdownCtx); err != nil {
			a.log.Warn("alert queue stop error", applogger.Error(err))
		}
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.log.Warn("close error", applogger.String("resource", c.name), applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
