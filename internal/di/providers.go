package di

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"SMCScan/internal/domain/repository"
	"SMCScan/internal/domain/service"
	"SMCScan/internal/handler/api"
	mid "SMCScan/internal/middleware"
	internalrepo "SMCScan/internal/repository"
	"SMCScan/internal/service/binance"
	icache "SMCScan/internal/service/cache"
	"SMCScan/internal/service/ratelimit"
	"SMCScan/internal/service/telegram"
	"SMCScan/internal/services/analytics"
	"SMCScan/internal/services/risk"
	"SMCScan/internal/usecase"
	pcache "SMCScan/pkg/cache"
	pkgch "SMCScan/pkg/clickhouse"
	"SMCScan/pkg/config"
	xhttp "SMCScan/pkg/http"
	pkgkafka "SMCScan/pkg/kafka"
	"SMCScan/pkg/logger"
	"SMCScan/pkg/metrics"
	"SMCScan/pkg/queue"
	"SMCScan/pkg/server"
)

const initTimeout = 10 * time.Second

// ProvideLogger builds the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer creates the bars consumer. It only runs when bars are
// published to Kafka and ClickHouse is there to receive them.
func ProvideKafkaConsumer(cfg *config.Config, m repository.Metrics, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || !cfg.ClickHouse.Enabled || cfg.Ingest.Backend != usecase.BackendKafka {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.SetHook(pkgkafka.NewHookChain(
		pkgkafka.RejectEmptyHook(),
		pkgkafka.TraceHook(),
		pkgkafka.ErrorCountHook(func(topic string) { m.RecordError("consume_" + topic) }),
	))
	return consumer, nil
}

// ProvideRedisCache connects to Redis, or returns nil when disabled.
func ProvideRedisCache(cfg *config.Config) (*pcache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := pcache.NewRedisCache(
		pcache.WithRedisAddr(cfg.Redis.Addr),
		pcache.WithRedisPassword(cfg.Redis.Password),
		pcache.WithRedisDB(cfg.Redis.DB),
		pcache.WithRedisPool(cfg.Redis.PoolSize, 2, 30*time.Second),
		pcache.WithRedisPrefix("smcscan:"),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideCache layers an in-process L1 over Redis, or falls back to memory
// only. Counters and locks are then per process.
func ProvideCache(rc *pcache.RedisCache) pcache.Service {
	if rc == nil {
		return pcache.NewMemoryCache(pcache.WithMemoryMaxSize(10000), pcache.WithMemoryCleanup(time.Minute))
	}
	return pcache.NewLayeredCache(rc, pcache.WithLayeredMemorySize(1000), pcache.WithLayeredL1TTL(15*time.Second))
}

// ProvidePostgres opens the Postgres journal, or returns nil when disabled.
func ProvidePostgres(cfg *config.Config) (*sqlx.DB, error) {
	if !cfg.Postgres.Enabled {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	return internalrepo.OpenPostgres(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxOpenConns)
}

// ProvideBarStore creates the ClickHouse bar store and its schema.
func ProvideBarStore(ch *pkgch.Client, l *logger.Logger) (*internalrepo.CHBarStore, error) {
	if ch == nil {
		return nil, nil
	}
	store := internalrepo.NewCHBarStore(ch)
	store.SetLogger(l)

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("bar store: %w", err)
	}
	return store, nil
}

// ProvideSetupStore creates the ClickHouse scan journal and outcome tables.
func ProvideSetupStore(ch *pkgch.Client) (*internalrepo.CHSetupStore, error) {
	if ch == nil {
		return nil, nil
	}
	store := internalrepo.NewCHSetupStore(ch)
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("setup store: %w", err)
	}
	return store, nil
}

func ProvideBinanceClient(cfg *config.Config, l *logger.Logger) *binance.Client {
	return binance.NewClient(analytics.NewHTTPServiceBase(analytics.BaseConfig{
		Name:      "binance",
		BaseURL:   cfg.Binance.RESTURL,
		Timeout:   cfg.Binance.Timeout,
		RateLimit: cfg.Binance.RateLimit,
		Burst:     cfg.Binance.RateBurst,
		Attempts:  3,
	}, l))
}

// ProvideBarSource selects where scans read history from.
func ProvideBarSource(cfg *config.Config, store *internalrepo.CHBarStore, client *binance.Client) repository.BarSource {
	if cfg.Bars.Source == "clickhouse" && store != nil {
		return store
	}
	return client
}

// ProvideContextSource returns the cached Yahoo context source, or nil when
// intermarket data is disabled.
func ProvideContextSource(cfg *config.Config, c pcache.Service, l *logger.Logger) service.ContextSource {
	if !cfg.Intermarket.Enabled {
		return nil
	}
	yahoo := analytics.NewYahooContextSource(analytics.NewHTTPServiceBase(analytics.BaseConfig{
		Name:      "yahoo",
		BaseURL:   cfg.Intermarket.URL,
		Timeout:   cfg.Intermarket.Timeout,
		RateLimit: cfg.Intermarket.RateLimit,
		Burst:     4,
	}, l), l)
	return icache.NewContextCache(yahoo, c, cfg.Intermarket.CacheTTL, l)
}

func ProvideDepthSource(cfg *config.Config, l *logger.Logger) service.DepthSource {
	if !cfg.Scanner.Depth.Enabled {
		return nil
	}
	return analytics.NewBinanceDepthSource(analytics.NewHTTPServiceBase(analytics.BaseConfig{
		Name:      "binance-depth",
		BaseURL:   cfg.Binance.RESTURL,
		Timeout:   cfg.Scanner.Depth.Timeout,
		RateLimit: cfg.Binance.RateLimit,
		Burst:     cfg.Binance.RateBurst,
		Attempts:  1,
	}, l))
}

// ProvideScorer posts to the remote scorer; without a URL it scores locally.
func ProvideScorer(cfg *config.Config, l *logger.Logger) service.Scorer {
	return analytics.NewHTTPScorer(analytics.NewHTTPServiceBase(analytics.BaseConfig{
		Name:    "scorer",
		BaseURL: cfg.Scorer.URL,
		Timeout: cfg.Scorer.Timeout,
	}, l), l)
}

// ProvideSetupSink journals to Postgres when enabled, else ClickHouse, and
// fans setups out to Kafka when a producer exists.
func ProvideSetupSink(cfg *config.Config, pg *sqlx.DB, chStore *internalrepo.CHSetupStore, producer *pkgkafka.Producer, l *logger.Logger) (repository.SetupSink, error) {
	var journal repository.SetupSink = internalrepo.NopSink{}
	switch {
	case pg != nil:
		store := internalrepo.NewPGSetupStore(pg, 5*time.Second)
		ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
		defer cancel()
		if err := store.Init(ctx); err != nil {
			return nil, fmt.Errorf("postgres journal: %w", err)
		}
		journal = store
	case chStore != nil:
		journal = chStore
	}

	var pubs []internalrepo.SetupPublisher
	if producer != nil {
		pubs = append(pubs, internalrepo.NewKafkaSetupPublisher(producer, cfg.Kafka.Topics.Setups))
	}
	return internalrepo.NewMultiSink(journal, l, pubs...), nil
}

// ProvideOutcomeStore journals backtest outcomes in ClickHouse when available.
func ProvideOutcomeStore(chStore *internalrepo.CHSetupStore) repository.OutcomeStore {
	if chStore == nil {
		return nil
	}
	return chStore
}

func ProvideSizer(cfg *config.Config, l *logger.Logger) *risk.Sizer {
	return risk.NewSizer(risk.Config{
		RiskPerTrade:   cfg.Risk.RiskPerTrade,
		FallbackEquity: cfg.Risk.FallbackEquity,
		LotStep:        cfg.Risk.LotStep,
	}, nil, l)
}

// ProvideAlertQueue creates the Redis-backed alert queue used when
// telegram.queued is set.
func ProvideAlertQueue(cfg *config.Config, rc *pcache.RedisCache, l *logger.Logger) *queue.RedisQueue {
	if !cfg.Telegram.Enabled || !cfg.Telegram.Queued || rc == nil {
		return nil
	}
	return queue.NewRedisQueue(l, &queue.QueueConfig{
		Workers:    2,
		RetryLimit: cfg.Telegram.MaxRetries,
		RetryDelay: 5 * time.Second,
	}, rc.Client(), queue.WithKeyPrefix("smcscan:"+cfg.Telegram.QueueName))
}

// ProvideNotifier sends alerts directly, or through the alert queue when one
// is configured.
func ProvideNotifier(cfg *config.Config, sizer *risk.Sizer, q *queue.RedisQueue, l *logger.Logger) service.Notifier {
	if !cfg.Telegram.Enabled {
		return nil
	}
	base := analytics.NewHTTPServiceBase(analytics.BaseConfig{
		Name:     "telegram",
		BaseURL:  fmt.Sprintf("%s/bot%s", cfg.Telegram.APIURL, cfg.Telegram.BotToken),
		Timeout:  cfg.Telegram.Timeout,
		Attempts: 2,
	}, l)
	direct := telegram.NewNotifier(telegram.Config{BotToken: cfg.Telegram.BotToken, ChatID: cfg.Telegram.ChatID}, base, sizer, l)
	if q == nil {
		return direct
	}
	q.RegisterJob(telegram.NewAlertJob(direct))
	return telegram.NewQueuedNotifier(q)
}

// ProvideScanUseCase wires the live scan path.
func ProvideScanUseCase(
	cfg *config.Config,
	bars repository.BarSource,
	mctx service.ContextSource,
	depth service.DepthSource,
	scorer service.Scorer,
	sink repository.SetupSink,
	notifier service.Notifier,
	c pcache.Service,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.ScanUseCase {
	sc := BuildScanner(cfg, GatingConfig(cfg), depth, m, l)
	return usecase.NewScanUseCase(usecase.ScanConfig{
		Timeframe:       repository.NormalizeTimeframe(cfg.Scanner.Timeframe),
		HistoryBars:     cfg.Scanner.HistoryBars,
		AlertThreshold:  cfg.Scanner.AlertThreshold,
		DailyAlertLimit: cfg.Scanner.DailyAlertLimit,
		LockTTL:         cfg.Scanner.LockTTL,
	}, bars, mctx, sc, scorer, sink, notifier, c, m, l)
}

func ProvideScanScheduler(cfg *config.Config, uc *usecase.ScanUseCase, l *logger.Logger) *usecase.ScanScheduler {
	return usecase.NewScanScheduler(uc, cfg.Scanner.Symbols, cfg.Scanner.Interval, l)
}

func ProvideBacktestUseCase(cfg *config.Config, bars repository.BarSource, outcomes repository.OutcomeStore, m repository.Metrics, l *logger.Logger) *usecase.BacktestUseCase {
	return BuildBacktester(cfg, bars, outcomes, m, l)
}

func ProvideBarsUseCase(bars repository.BarSource) *usecase.BarsUseCase {
	return usecase.NewBarsUseCase(bars)
}

// ProvideBarProcessor routes ingested bars to Kafka or ClickHouse.
func ProvideBarProcessor(cfg *config.Config, producer *pkgkafka.Producer, store *internalrepo.CHBarStore, m repository.Metrics) *usecase.BarProcessor {
	var pub repository.BarPublisher
	if producer != nil {
		pub = internalrepo.NewKafkaBarPublisher(producer, cfg.Kafka.Topics.Bars)
	}
	var st repository.BarStore
	if store != nil {
		st = store
	}
	return usecase.NewBarProcessor(pub, st, m, cfg.Ingest.Backend)
}

// ProvideBarCollector wires the live kline stream into the ingest pipeline,
// or returns nil when ingest is disabled.
func ProvideBarCollector(cfg *config.Config, proc *usecase.BarProcessor, m repository.Metrics, l *logger.Logger) *usecase.BarCollector {
	if !cfg.Ingest.Enabled {
		return nil
	}
	stream := binance.NewStream(
		cfg.Binance.WebSocketURL,
		cfg.Scanner.Symbols,
		repository.NormalizeTimeframe(cfg.Scanner.Timeframe),
		cfg.Binance.ReconnectDelay,
		cfg.Binance.PingInterval,
		l,
	)
	pipe := mid.NewBarPipeline(proc, m,
		mid.WithBufferSize(cfg.Ingest.BatchSize*20),
		mid.WithLogger(l),
	)
	return usecase.NewBarCollector(stream, proc, m, pipe, l)
}

func ProvideKafkaBarsHandler(cfg *config.Config, store *internalrepo.CHBarStore, m repository.Metrics) *usecase.KafkaBarsHandler {
	if store == nil {
		return nil
	}
	return usecase.NewKafkaBarsHandler(cfg.Kafka.Topics.Bars, store, m)
}

// ProvideHTTPHandler builds the API handler and its dependency probes.
func ProvideHTTPHandler(
	cfg *config.Config,
	bars *usecase.BarsUseCase,
	scan *usecase.ScanUseCase,
	backtest *usecase.BacktestUseCase,
	ch *pkgch.Client,
	c pcache.Service,
	l *logger.Logger,
) xhttp.Handler {
	rl := ratelimit.New(cfg.Server.RateLimit, cfg.Server.RateBurst, 10*time.Minute)
	h := api.NewScannerEchoHandler(l, bars, scan, backtest, rl)
	h.SetMaxBacktestWindow(time.Duration(cfg.Backtest.MaxDays) * 24 * time.Hour)
	if ch != nil {
		h.AddHealthCheck("clickhouse", ch.Health)
	}
	h.AddHealthCheck("cache", func(ctx context.Context) error {
		key := pcache.Key("health", "ping")
		if err := c.Set(ctx, key, "ok", time.Minute); err != nil {
			return err
		}
		var v string
		return c.Get(ctx, key, &v)
	})
	return h
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	handler xhttp.Handler,
	scheduler *usecase.ScanScheduler,
	scan *usecase.ScanUseCase,
	collector *usecase.BarCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaBarsHandler,
	alerts *queue.RedisQueue,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	pg *sqlx.DB,
	c pcache.Service,
) *server.App {
	if cfg.Log.Collector.Enabled && producer != nil {
		l.AddCollector(&logger.CollectionConfig{
			TimeInterval:   cfg.Log.Collector.Interval,
			CountThreshold: cfg.Log.Collector.Threshold,
			Topic:          cfg.Log.Collector.Topic,
			Publisher:      producer,
		})
	}

	app := server.New(cfg, l, handler, scheduler, scan)
	if collector != nil {
		app.WithIngest(collector)
	}
	if consumer != nil && kh != nil {
		app.WithConsumer(consumer, kh)
	}
	if alerts != nil {
		app.WithAlertQueue(alerts)
	}

	app.AddCloser("cache", c.Close)
	if producer != nil {
		app.AddCloser("kafka producer", producer.Close)
	}
	if ch != nil {
		app.AddCloser("clickhouse", ch.Close)
	}
	if pg != nil {
		app.AddCloser("postgres", pg.Close)
	}
	if cfg.Log.Collector.Enabled && producer != nil {
		app.AddCloser("log collector", func() error {
			l.RemoveCollector()
			return nil
		})
	}
	return app
}
