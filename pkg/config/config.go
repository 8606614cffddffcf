package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string   `yaml:"environment"`
	Tickers     []string `yaml:"tickers"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		PredictRPS      float64       `yaml:"predict_rps"`
		PredictBurst    int           `yaml:"predict_burst"`
	} `yaml:"server"`
	Log struct {
		Level          string `yaml:"level"`
		Format         string `yaml:"format"`
		Output         string `yaml:"output"`
		MaxSizeMB      int    `yaml:"max_size_mb"`
		MaxAgeDays     int    `yaml:"max_age_days"`
		CollectorTopic string `yaml:"collector_topic"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Market struct {
		Location string `yaml:"location"`
	} `yaml:"market"`
	Fetcher struct {
		MaxAttempts    int           `yaml:"max_attempts"`
		BackoffBase    float64       `yaml:"backoff_base"`
		BackoffUnit    time.Duration `yaml:"backoff_unit"`
		BackoffMax     time.Duration `yaml:"backoff_max"`
		CallTimeout    time.Duration `yaml:"call_timeout"`
		LookbackFactor int           `yaml:"lookback_factor"`
		DefaultSuffix  string        `yaml:"default_suffix"`
	} `yaml:"fetcher"`
	Sources struct {
		Yahoo struct {
			Enabled           bool    `yaml:"enabled"`
			BaseURL           string  `yaml:"base_url"`
			UserAgent         string  `yaml:"user_agent"`
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
		} `yaml:"yahoo"`
		Finnhub struct {
			Enabled           bool    `yaml:"enabled"`
			BaseURL           string  `yaml:"base_url"`
			APIKey            string  `yaml:"api_key"`
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
		} `yaml:"finnhub"`
		Static struct {
			Dir string `yaml:"dir"`
		} `yaml:"static"`
	} `yaml:"sources"`
	Database struct {
		Postgres struct {
			Enabled         bool          `yaml:"enabled"`
			DSN             string        `yaml:"dsn"`
			MaxOpenConns    int           `yaml:"max_open_conns"`
			MaxIdleConns    int           `yaml:"max_idle_conns"`
			ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
		SQLite struct {
			Path string `yaml:"path"`
		} `yaml:"sqlite"`
	} `yaml:"database"`
	Ledger struct {
		ProbeInterval   time.Duration `yaml:"probe_interval"`
		MirrorTimeout   time.Duration `yaml:"mirror_timeout"`
		BackfillTimeout time.Duration `yaml:"backfill_timeout"`
		RetentionDays   int           `yaml:"retention_days"`
	} `yaml:"ledger"`
	Drift struct {
		CurrentWindow   int     `yaml:"current_window"`
		ReferenceWindow int     `yaml:"reference_window"`
		MeanThreshold   float64 `yaml:"mean_threshold"`
		StdThreshold    float64 `yaml:"std_threshold"`
		KSAlpha         float64 `yaml:"ks_alpha"`
		KSMinCurrent    int     `yaml:"ks_min_current"`
		KSMinReference  int     `yaml:"ks_min_reference"`
		CorroborateMean float64 `yaml:"corroborate_mean"`
		CorroborateStd  float64 `yaml:"corroborate_std"`
		HighMean        float64 `yaml:"high_mean"`
		HighStd         float64 `yaml:"high_std"`
		HistoryLimit    int     `yaml:"history_limit"`
	} `yaml:"drift"`
	Validator struct {
		SearchDays int `yaml:"search_days"`
		DaysBack   int `yaml:"days_back"`
		WindowN    int `yaml:"window_n"`
		TrendDays  int `yaml:"trend_days"`
	} `yaml:"validator"`
	Alerts struct {
		MAEThreshold  float64       `yaml:"mae_threshold"`
		MAPEThreshold float64       `yaml:"mape_threshold"`
		HistoryLimit  int           `yaml:"history_limit"`
		SinkTimeout   time.Duration `yaml:"sink_timeout"`
		WebhookURL    string        `yaml:"webhook_url"`
		KafkaTopic    string        `yaml:"kafka_topic"`
	} `yaml:"alerts"`
	Jobs struct {
		Enabled      bool          `yaml:"enabled"`
		Validation   string        `yaml:"validation"`
		DriftCheck   string        `yaml:"drift_check"`
		CacheRefresh string        `yaml:"cache_refresh"`
		Retention    string        `yaml:"retention"`
		LeaseTTL     time.Duration `yaml:"lease_ttl"`
		SummaryLimit int           `yaml:"summary_limit"`
	} `yaml:"jobs"`
	Predictor struct {
		URL     string        `yaml:"url"`
		Timeout time.Duration `yaml:"timeout"`
		Days    int           `yaml:"days"`
	} `yaml:"predictor"`
	Kafka struct {
		Enabled          bool     `yaml:"enabled"`
		Brokers          []string `yaml:"brokers"`
		RequiredAcks     int      `yaml:"required_acks"`
		Compression      string   `yaml:"compression"`
		PredictionsTopic string   `yaml:"predictions_topic"`
		Producer         struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			BatchSize    int           `yaml:"batch_size"`
			BatchTimeout time.Duration `yaml:"batch_timeout"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, fills defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads .env (when present), the YAML file, and then applies
// environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

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
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.Postgres.DSN = v
		c.Database.Postgres.Enabled = true
	}
	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		c.Sources.Finnhub.APIKey = v
	}
	if v := os.Getenv("TICKERS"); v != "" {
		c.Tickers = splitList(v)
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("ALERT_WEBHOOK_URL"); v != "" {
		c.Alerts.WebhookURL = v
	}
	if v := os.Getenv("PREDICTOR_URL"); v != "" {
		c.Predictor.URL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.Server.PredictBurst == 0 {
		c.Server.PredictBurst = 10
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Market.Location == "" {
		c.Market.Location = "UTC"
	}

	f := &c.Fetcher
	if f.MaxAttempts == 0 {
		f.MaxAttempts = 3
	}
	if f.BackoffBase == 0 {
		f.BackoffBase = 2
	}
	if f.BackoffUnit == 0 {
		f.BackoffUnit = time.Second
	}
	if f.BackoffMax == 0 {
		f.BackoffMax = 30 * time.Second
	}
	if f.CallTimeout == 0 {
		f.CallTimeout = 15 * time.Second
	}
	if f.LookbackFactor == 0 {
		f.LookbackFactor = 2
	}

	if c.Sources.Yahoo.BaseURL == "" {
		c.Sources.Yahoo.BaseURL = "https://query1.finance.yahoo.com"
	}
	if c.Sources.Yahoo.RequestsPerSecond == 0 {
		c.Sources.Yahoo.RequestsPerSecond = 2
	}
	if c.Sources.Finnhub.BaseURL == "" {
		c.Sources.Finnhub.BaseURL = "https://finnhub.io/api/v1"
	}
	if c.Sources.Finnhub.RequestsPerSecond == 0 {
		c.Sources.Finnhub.RequestsPerSecond = 1
	}
	if c.Sources.Static.Dir == "" {
		c.Sources.Static.Dir = "data/static"
	}

	if c.Database.SQLite.Path == "" {
		c.Database.SQLite.Path = "data/finguard.db"
	}
	if c.Database.Postgres.MaxOpenConns == 0 {
		c.Database.Postgres.MaxOpenConns = 10
	}
	if c.Database.Postgres.MaxIdleConns == 0 {
		c.Database.Postgres.MaxIdleConns = 5
	}
	if c.Database.Postgres.ConnMaxLifetime == 0 {
		c.Database.Postgres.ConnMaxLifetime = 30 * time.Minute
	}

	if c.Ledger.ProbeInterval == 0 {
		c.Ledger.ProbeInterval = 30 * time.Second
	}
	if c.Ledger.MirrorTimeout == 0 {
		c.Ledger.MirrorTimeout = 5 * time.Second
	}
	if c.Ledger.BackfillTimeout == 0 {
		c.Ledger.BackfillTimeout = time.Minute
	}

	d := &c.Drift
	if d.CurrentWindow == 0 {
		d.CurrentWindow = 7
	}
	if d.ReferenceWindow == 0 {
		d.ReferenceWindow = 30
	}
	if d.MeanThreshold == 0 {
		d.MeanThreshold = 5
	}
	if d.StdThreshold == 0 {
		d.StdThreshold = 50
	}
	if d.KSAlpha == 0 {
		d.KSAlpha = 0.05
	}
	if d.KSMinCurrent == 0 {
		d.KSMinCurrent = 5
	}
	if d.KSMinReference == 0 {
		d.KSMinReference = 20
	}
	if d.CorroborateMean == 0 {
		d.CorroborateMean = 3
	}
	if d.CorroborateStd == 0 {
		d.CorroborateStd = 30
	}
	if d.HighMean == 0 {
		d.HighMean = 10
	}
	if d.HighStd == 0 {
		d.HighStd = 100
	}
	if d.HistoryLimit == 0 {
		d.HistoryLimit = 100
	}

	v := &c.Validator
	if v.SearchDays == 0 {
		v.SearchDays = 5
	}
	if v.DaysBack == 0 {
		v.DaysBack = 7
	}
	if v.WindowN == 0 {
		v.WindowN = 7
	}
	if v.TrendDays == 0 {
		v.TrendDays = 30
	}

	a := &c.Alerts
	if a.MAEThreshold == 0 {
		a.MAEThreshold = 2.0
	}
	if a.MAPEThreshold == 0 {
		a.MAPEThreshold = 5.0
	}
	if a.HistoryLimit == 0 {
		a.HistoryLimit = 1000
	}
	if a.SinkTimeout == 0 {
		a.SinkTimeout = 10 * time.Second
	}
	if a.KafkaTopic == "" {
		a.KafkaTopic = "finguard.alerts"
	}

	j := &c.Jobs
	if j.Validation == "" {
		j.Validation = "0 0 18 * * *"
	}
	if j.DriftCheck == "" {
		j.DriftCheck = "0 15 18 * * *"
	}
	if j.CacheRefresh == "" {
		j.CacheRefresh = "0 30 17 * * *"
	}
	if j.Retention == "" {
		j.Retention = "0 0 3 * * 0"
	}
	if j.LeaseTTL == 0 {
		j.LeaseTTL = 30 * time.Minute
	}
	if j.SummaryLimit == 0 {
		j.SummaryLimit = 30
	}

	if c.Predictor.Timeout == 0 {
		c.Predictor.Timeout = 10 * time.Second
	}
	if c.Predictor.Days == 0 {
		c.Predictor.Days = 60
	}

	if c.Kafka.PredictionsTopic == "" {
		c.Kafka.PredictionsTopic = "finguard.predictions"
	}
	if c.Kafka.Consumer.GroupID == "" {
		c.Kafka.Consumer.GroupID = "finguard"
	}
	if c.ClickHouse.Port == 0 {
		c.ClickHouse.Port = 9000
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "finguard"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Tickers) == 0 {
		return fmt.Errorf("tickers cannot be empty")
	}
	if _, err := time.LoadLocation(c.Market.Location); err != nil {
		return fmt.Errorf("market.location %q: %w", c.Market.Location, err)
	}
	if c.Fetcher.MaxAttempts < 1 {
		return fmt.Errorf("fetcher.max_attempts must be >= 1")
	}
	if c.Fetcher.BackoffBase < 1 {
		return fmt.Errorf("fetcher.backoff_base must be >= 1")
	}
	if c.Database.Postgres.Enabled && c.Database.Postgres.DSN == "" {
		return fmt.Errorf("database.postgres.dsn is required when postgres is enabled")
	}
	if c.Sources.Finnhub.Enabled && c.Sources.Finnhub.APIKey == "" {
		return fmt.Errorf("sources.finnhub.api_key is required when finnhub is enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when clickhouse is enabled")
	}
	if c.Drift.CurrentWindow < 1 || c.Drift.ReferenceWindow < 1 {
		return fmt.Errorf("drift windows must be positive")
	}
	if c.Validator.SearchDays < 1 {
		return fmt.Errorf("validator.search_days must be >= 1")
	}
	return nil
}
