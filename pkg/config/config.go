package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"SMCScan/pkg/util"
)

type Band struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

type TargetLevel struct {
	RMultiple float64 `yaml:"r_multiple"`
	Fraction  float64 `yaml:"fraction"`
}

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		SlowThreshold   time.Duration `yaml:"slow_threshold" default:"2s"`
		RateLimit       float64       `yaml:"rate_limit" default:"5"`
		RateBurst       int           `yaml:"rate_burst" default:"10"`
		CORS            bool          `yaml:"cors" default:"true"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Log struct {
		Level     string `yaml:"level" default:"info"`
		Format    string `yaml:"format" default:"json"`
		Output    string `yaml:"output" default:"stdout"`
		Collector struct {
			Enabled   bool          `yaml:"enabled"`
			Topic     string        `yaml:"topic" default:"scanner.logs"`
			Interval  time.Duration `yaml:"interval" default:"30s"`
			Threshold int           `yaml:"threshold" default:"100"`
		} `yaml:"collector"`
	} `yaml:"log"`
	Scanner struct {
		Symbols     []string      `yaml:"symbols"`
		Timeframe   string        `yaml:"timeframe" default:"5m"`
		Interval    time.Duration `yaml:"interval" default:"5m"`
		HistoryBars int           `yaml:"history_bars" default:"6500"`
		Timezone    string        `yaml:"timezone" default:"UTC"`
		Killzone    struct {
			StartHour int `yaml:"start_hour" default:"12"`
			EndHour   int `yaml:"end_hour" default:"20"`
		} `yaml:"killzone"`
		BullishBand          Band    `yaml:"bullish_band"`
		BearishBand          Band    `yaml:"bearish_band"`
		DivergenceInstrument string  `yaml:"divergence_instrument" default:"DXY"`
		DivergenceScale      float64 `yaml:"divergence_scale" default:"0.1"`
		MinDivergence        float64 `yaml:"min_divergence_strength" default:"0.3"`
		SweepLookback        int     `yaml:"sweep_lookback" default:"287"`
		RangeLookback        int     `yaml:"range_lookback" default:"288"`
		Depth                struct {
			Enabled   bool          `yaml:"enabled" default:"true"`
			BandPct   float64       `yaml:"band_pct" default:"0.005"`
			MinVolume float64       `yaml:"min_volume" default:"1"`
			Timeout   time.Duration `yaml:"timeout" default:"3s"`
		} `yaml:"depth"`
		Bias struct {
			Lookback   int `yaml:"lookback" default:"6000"`
			MinHistory int `yaml:"min_history" default:"2500"`
			Factor     int `yaml:"factor" default:"48"`
			ShortSpan  int `yaml:"short_span" default:"20"`
			LongSpan   int `yaml:"long_span" default:"50"`
		} `yaml:"bias"`
		ATRPeriod         int           `yaml:"atr_period" default:"14"`
		StopATRMultiplier float64       `yaml:"stop_atr_multiplier" default:"2"`
		Targets           []TargetLevel `yaml:"targets"`
		MaxLookahead      int           `yaml:"max_lookahead" default:"288"`
		AlertThreshold    float64       `yaml:"alert_threshold" default:"6"`
		DailyAlertLimit   int           `yaml:"daily_alert_limit" default:"2"`
		LockTTL           time.Duration `yaml:"lock_ttl" default:"2m"`
	} `yaml:"scanner"`
	Ingest struct {
		Enabled      bool          `yaml:"enabled"`
		Backend      string        `yaml:"backend" default:"clickhouse"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"2s"`
	} `yaml:"ingest"`
	Bars struct {
		Source string `yaml:"source" default:"binance"`
	} `yaml:"bars"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Topics       struct {
			Bars   string `yaml:"bars" default:"bars"`
			Setups string `yaml:"setups" default:"setups"`
		} `yaml:"topics"`
		Producer struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"10"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"smcscan-bars"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"1000"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"bars.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"smcscan"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"10s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"10"`
	} `yaml:"redis"`
	Postgres struct {
		Enabled      bool   `yaml:"enabled"`
		DSN          string `yaml:"dsn"`
		MaxOpenConns int    `yaml:"max_open_conns" default:"10"`
	} `yaml:"postgres"`
	Binance struct {
		RESTURL        string        `yaml:"rest_url" default:"https://api.binance.com"`
		WebSocketURL   string        `yaml:"websocket_url" default:"wss://stream.binance.com:9443/ws"`
		Timeout        time.Duration `yaml:"timeout" default:"10s"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
		RateLimit      float64       `yaml:"rate_limit" default:"10"`
		RateBurst      int           `yaml:"rate_burst" default:"20"`
	} `yaml:"binance"`
	Intermarket struct {
		Enabled   bool          `yaml:"enabled" default:"true"`
		URL       string        `yaml:"url" default:"https://query1.finance.yahoo.com"`
		Timeout   time.Duration `yaml:"timeout" default:"10s"`
		CacheTTL  time.Duration `yaml:"cache_ttl" default:"60s"`
		RateLimit float64       `yaml:"rate_limit" default:"2"`
	} `yaml:"intermarket"`
	Scorer struct {
		URL     string        `yaml:"url"`
		Timeout time.Duration `yaml:"timeout" default:"5s"`
	} `yaml:"scorer"`
	Telegram struct {
		Enabled    bool          `yaml:"enabled"`
		BotToken   string        `yaml:"bot_token"`
		ChatID     string        `yaml:"chat_id"`
		APIURL     string        `yaml:"api_url" default:"https://api.telegram.org"`
		Timeout    time.Duration `yaml:"timeout" default:"10s"`
		Queued     bool          `yaml:"queued"`
		QueueName  string        `yaml:"queue_name" default:"alerts"`
		MaxRetries int           `yaml:"max_retries" default:"3"`
	} `yaml:"telegram"`
	Risk struct {
		RiskPerTrade   float64 `yaml:"risk_per_trade" default:"0.0065"`
		FallbackEquity float64 `yaml:"fallback_equity" default:"100000"`
		LotStep        float64 `yaml:"lot_step" default:"0.001"`
	} `yaml:"risk"`
	Backtest struct {
		Workers       int     `yaml:"workers" default:"4"`
		MinDivergence float64 `yaml:"min_divergence_strength"`
		CooldownBars  int     `yaml:"cooldown_bars" default:"12"`
		Warmup        int     `yaml:"warmup" default:"2600"`
		MaxDays       int     `yaml:"max_days" default:"90"`
		Persist       bool    `yaml:"persist"`
	} `yaml:"backtest"`
}

// Defaults returns a configuration with every field at its default value.
func Defaults() *Config {
	var c Config
	applyDefaults(&c)
	return &c
}

func applyDefaults(c *Config) {
	_ = defaults.Set(c)
	fillLists(c)
}

// fillLists covers the list and band defaults that struct tags cannot express.
// It runs again after parsing because YAML replaces lists wholesale.
func fillLists(c *Config) {
	if len(c.Scanner.Symbols) == 0 {
		c.Scanner.Symbols = []string{"BTCUSDT"}
	}
	if c.Scanner.BullishBand == (Band{}) {
		c.Scanner.BullishBand = Band{Min: 0, Max: 0.55}
	}
	if c.Scanner.BearishBand == (Band{}) {
		c.Scanner.BearishBand = Band{Min: 0.45, Max: 1}
	}
	if len(c.Scanner.Targets) == 0 {
		c.Scanner.Targets = []TargetLevel{
			{RMultiple: 1.5, Fraction: 0.5},
			{RMultiple: 3, Fraction: 0.5},
		}
	}
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
}

// Load reads and parses a YAML configuration file. Keys missing from the
// file keep their defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	c := Defaults()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	fillLists(c)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Scanner.Symbols = util.SplitCSV(v)
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitCSV(v)
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("SCORER_URL"); v != "" {
		c.Scorer.URL = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = util.ParseIntDefault(v, c.Server.Port)
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	s := &c.Scanner
	if len(s.Symbols) == 0 {
		return fmt.Errorf("scanner.symbols cannot be empty")
	}
	switch s.Timeframe {
	case "1m", "5m", "15m", "1h":
	default:
		return fmt.Errorf("scanner.timeframe must be one of 1m, 5m, 15m, 1h, got '%s'", s.Timeframe)
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("scanner.timezone: %w", err)
	}
	if s.Killzone.StartHour < 0 || s.Killzone.StartHour > 23 || s.Killzone.EndHour < 0 || s.Killzone.EndHour > 24 {
		return fmt.Errorf("scanner.killzone hours out of range")
	}
	for name, b := range map[string]Band{"bullish_band": s.BullishBand, "bearish_band": s.BearishBand} {
		if b.Min < 0 || b.Max > 1 || b.Min > b.Max {
			return fmt.Errorf("scanner.%s must satisfy 0 <= min <= max <= 1", name)
		}
	}
	if s.StopATRMultiplier <= 0 {
		return fmt.Errorf("scanner.stop_atr_multiplier must be positive")
	}
	if err := validateTargets(s.Targets); err != nil {
		return err
	}
	if s.MaxLookahead < 1 {
		return fmt.Errorf("scanner.max_lookahead must be at least 1")
	}
	if s.DailyAlertLimit < 0 {
		return fmt.Errorf("scanner.daily_alert_limit cannot be negative")
	}

	switch c.Ingest.Backend {
	case "kafka", "clickhouse", "none":
	default:
		return fmt.Errorf("ingest.backend must be 'kafka', 'clickhouse' or 'none', got '%s'", c.Ingest.Backend)
	}
	switch c.Bars.Source {
	case "clickhouse", "binance":
	default:
		return fmt.Errorf("bars.source must be 'clickhouse' or 'binance', got '%s'", c.Bars.Source)
	}
	if c.Bars.Source == "clickhouse" && !c.ClickHouse.Enabled {
		return fmt.Errorf("bars.source 'clickhouse' requires clickhouse.enabled")
	}
	if c.Ingest.Enabled && c.Ingest.Backend == "kafka" && !c.Kafka.Enabled {
		return fmt.Errorf("ingest.backend 'kafka' requires kafka.enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Ingest.Enabled && c.Ingest.Backend == "clickhouse" && !c.ClickHouse.Enabled {
		return fmt.Errorf("ingest.backend 'clickhouse' requires clickhouse.enabled")
	}
	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id are required when telegram is enabled")
	}
	if c.Telegram.Enabled && c.Telegram.Queued && !c.Redis.Enabled {
		return fmt.Errorf("telegram.queued requires redis.enabled")
	}
	if c.Postgres.Enabled && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required when postgres is enabled")
	}
	if c.Risk.RiskPerTrade <= 0 || c.Risk.RiskPerTrade >= 1 {
		return fmt.Errorf("risk.risk_per_trade must be in (0, 1)")
	}
	if c.Backtest.Workers < 1 {
		return fmt.Errorf("backtest.workers must be at least 1")
	}
	if c.Backtest.MaxDays < 1 {
		return fmt.Errorf("backtest.max_days must be at least 1")
	}
	return nil
}

func validateTargets(targets []TargetLevel) error {
	if len(targets) == 0 {
		return fmt.Errorf("scanner.targets cannot be empty")
	}
	sum, prev := 0.0, 0.0
	for i, t := range targets {
		if t.RMultiple <= prev {
			return fmt.Errorf("scanner.targets[%d].r_multiple must be positive and increasing", i)
		}
		if t.Fraction <= 0 || t.Fraction > 1 {
			return fmt.Errorf("scanner.targets[%d].fraction must be in (0, 1]", i)
		}
		prev = t.RMultiple
		sum += t.Fraction
	}
	if math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("scanner.targets fractions must sum to 1, got %.4f", sum)
	}
	return nil
}

// Location resolves scanner.timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scanner.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
