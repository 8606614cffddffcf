package di

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"FinGuard/internal/domain/repository"
	"FinGuard/internal/domain/service"
	"FinGuard/internal/handler/api"
	internalrepo "FinGuard/internal/repository"
	"FinGuard/internal/scheduler"
	"FinGuard/internal/service/alerting"
	"FinGuard/internal/service/finnhub"
	"FinGuard/internal/service/marketdata"
	"FinGuard/internal/service/ratelimit"
	"FinGuard/internal/service/yahoo"
	"FinGuard/internal/services/predictor"
	"FinGuard/internal/usecase"
	"FinGuard/pkg/cache"
	pkgch "FinGuard/pkg/clickhouse"
	"FinGuard/pkg/config"
	xhttp "FinGuard/pkg/http"
	pkgkafka "FinGuard/pkg/kafka"
	applogger "FinGuard/pkg/logger"
	"FinGuard/pkg/metrics"
	"FinGuard/pkg/postgres"
	"FinGuard/pkg/server"
	"FinGuard/pkg/sqlite"
	"FinGuard/pkg/util"
)

const initTimeout = 10 * time.Second

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is off.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchTimeout),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithKeyedBalance(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideLogger builds the application logger. Repeated error lines are
// shipped to the collector topic when Kafka is on.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, func(), error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	if producer != nil && cfg.Log.CollectorTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   time.Minute,
			CountThreshold: 50,
			Topic:          cfg.Log.CollectorTopic,
			Publisher:      producer,
			Service:        "finguard",
		})
	}
	return l, l.RemoveCollector, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(cfg *config.Config) repository.Metrics {
	if !cfg.Metrics.Enabled {
		return metrics.Noop{}
	}
	return metrics.New()
}

func ProvideMarketLocation(cfg *config.Config) (*time.Location, error) {
	loc, err := time.LoadLocation(cfg.Market.Location)
	if err != nil {
		return nil, fmt.Errorf("market location: %w", err)
	}
	return loc, nil
}

// ProvideCache returns the shared cache used for leases and reference
// statistics: Redis behind a small local layer, or process memory.
func ProvideCache(cfg *config.Config, l *applogger.Logger) (cache.Service, func(), error) {
	if !cfg.Redis.Enabled {
		mc := cache.NewMemoryCache()
		return mc, func() { _ = mc.Close() }, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	l.Info("redis cache connected", applogger.String("addr", cfg.Redis.Addr))
	lc := cache.NewLayeredCache(rc, cache.WithLayeredLocalTTL(time.Minute))
	return lc, func() { _ = lc.Close() }, nil
}

func ProvideSQLite(cfg *config.Config) (*sqlite.Client, func(), error) {
	if dir := filepath.Dir(cfg.Database.SQLite.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("sqlite dir: %w", err)
		}
	}
	client, err := sqlite.Open(cfg.Database.SQLite.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvidePostgres opens the networked ledger pool, or nil when disabled.
// The pool is closed by the ledger.
func ProvidePostgres(cfg *config.Config) (*postgres.Client, error) {
	pg := cfg.Database.Postgres
	if !pg.Enabled {
		return nil, nil
	}
	client, err := postgres.NewClient(
		postgres.WithDSN(pg.DSN),
		postgres.WithPool(pg.MaxOpenConns, pg.MaxIdleConns, pg.ConnMaxLifetime),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return client, nil
}

// ProvideClickHouseClient connects to ClickHouse when enabled. An
// unreachable server is logged and the journal falls back to SQLite.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, func(), error) {
	ch := cfg.ClickHouse
	if !ch.Enabled {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddr(ch.Host, ch.Port),
		pkgch.WithDatabase(ch.Database),
		pkgch.WithCredentials(ch.User, ch.Password),
		pkgch.WithHTTP(ch.UseHTTP),
		pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout),
		pkgch.WithMaxExecutionTime(ch.MaxExecutionTime),
	)
	if err != nil {
		l.Warn("clickhouse unavailable, journal uses sqlite", applogger.Error(err))
		return nil, func() {}, nil
	}
	return client, func() { _ = client.Close() }, nil
}

func ProvideJournal(ch *pkgch.Client, lite *sqlite.Client, l *applogger.Logger) (repository.Journal, error) {
	j := internalrepo.NewSQLiteJournal(lite)
	if ch != nil {
		j = internalrepo.NewClickHouseJournal(ch)
	}
	j.SetLogger(l)

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := j.Init(ctx); err != nil {
		return nil, err
	}
	l.Info("monitoring journal ready", applogger.String("backend", j.Backend()))
	return j, nil
}

func ProvideLedger(
	cfg *config.Config,
	pg *postgres.Client,
	lite *sqlite.Client,
	m repository.Metrics,
	l *applogger.Logger,
) (*usecase.Ledger, func(), error) {
	var primary repository.PredictionStore
	if pg != nil {
		primary = internalrepo.NewPostgresPredictionStore(pg)
	}
	ledger := usecase.NewLedger(primary, internalrepo.NewSQLitePredictionStore(lite), usecase.LedgerConfig{
		ProbeInterval:   cfg.Ledger.ProbeInterval,
		MirrorTimeout:   cfg.Ledger.MirrorTimeout,
		BackfillTimeout: cfg.Ledger.BackfillTimeout,
	}, m, l)

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := ledger.Init(ctx); err != nil {
		return nil, nil, err
	}
	return ledger, func() {
		if err := ledger.Close(); err != nil {
			l.Warn("ledger close", applogger.Error(err))
		}
	}, nil
}

func ProvideCandleStore(lite *sqlite.Client) (repository.CandleStore, error) {
	store := internalrepo.NewSQLiteCandleStore(lite)
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("candle store: %w", err)
	}
	return store, nil
}

// ProvideSources lists the market sources in fallback order.
func ProvideSources(cfg *config.Config, candles repository.CandleStore) []repository.SourceClient {
	var out []repository.SourceClient
	if y := cfg.Sources.Yahoo; y.Enabled {
		out = append(out, yahoo.New(y.BaseURL, y.UserAgent, cfg.Fetcher.CallTimeout,
			ratelimit.New(y.RequestsPerSecond, y.Burst)))
	}
	if f := cfg.Sources.Finnhub; f.Enabled {
		out = append(out, finnhub.New(f.APIKey, f.BaseURL, cfg.Fetcher.CallTimeout,
			ratelimit.New(f.RequestsPerSecond, f.Burst)))
	}
	out = append(out,
		marketdata.NewLocalSource(candles),
		marketdata.NewStaticSource(cfg.Sources.Static.Dir),
	)
	return out
}

func ProvideFetcher(cfg *config.Config, sources []repository.SourceClient, m repository.Metrics, l *applogger.Logger) usecase.MarketFetcher {
	return usecase.NewCascadingFetcher(sources, usecase.FetcherConfig{
		MaxAttempts: cfg.Fetcher.MaxAttempts,
		Backoff: usecase.BackoffPolicy{
			Base: cfg.Fetcher.BackoffBase,
			Unit: cfg.Fetcher.BackoffUnit,
			Max:  cfg.Fetcher.BackoffMax,
		},
		CallTimeout:    cfg.Fetcher.CallTimeout,
		LookbackFactor: cfg.Fetcher.LookbackFactor,
	}, m, l)
}

func ProvideValidator(
	cfg *config.Config,
	ledger *usecase.Ledger,
	fetcher usecase.MarketFetcher,
	journal repository.Journal,
	m repository.Metrics,
	loc *time.Location,
	l *applogger.Logger,
) *usecase.PerformanceValidator {
	v := usecase.NewPerformanceValidator(ledger, fetcher, journal, m, usecase.ValidatorConfig{
		SearchDays: cfg.Validator.SearchDays,
		WindowN:    cfg.Validator.WindowN,
		Location:   loc,
	}, l)
	restore(l, "performance snapshots", v.Restore)
	return v
}

func ProvideDriftDetector(
	cfg *config.Config,
	c cache.Service,
	journal repository.Journal,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.DriftDetector {
	d := cfg.Drift
	det := usecase.NewDriftDetector(usecase.DriftConfig{
		CurrentWindow:   d.CurrentWindow,
		ReferenceWindow: d.ReferenceWindow,
		MeanThreshold:   d.MeanThreshold,
		StdThreshold:    d.StdThreshold,
		KSAlpha:         d.KSAlpha,
		KSMinCurrent:    d.KSMinCurrent,
		KSMinReference:  d.KSMinReference,
		CorroborateMean: d.CorroborateMean,
		CorroborateStd:  d.CorroborateStd,
		HighMean:        d.HighMean,
		HighStd:         d.HighStd,
		HistoryLimit:    d.HistoryLimit,
	}, internalrepo.NewCacheReferenceStore(c), journal, m, l)
	restore(l, "drift reports", det.Restore)
	return det
}

func ProvideAlertHub(l *applogger.Logger) *alerting.Hub {
	return alerting.NewHub(l)
}

// ProvideAlertDispatcher wires every configured sink.
func ProvideAlertDispatcher(
	cfg *config.Config,
	hub *alerting.Hub,
	producer *pkgkafka.Producer,
	journal repository.Journal,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.AlertDispatcher {
	sinks := []repository.AlertSink{hub}
	if cfg.Alerts.WebhookURL != "" {
		sinks = append(sinks, alerting.NewWebhookSink(cfg.Alerts.WebhookURL, cfg.Alerts.SinkTimeout))
	}
	if producer != nil {
		sinks = append(sinks, internalrepo.NewKafkaAlertSink(producer, cfg.Alerts.KafkaTopic))
	}
	a := usecase.NewAlertDispatcher(usecase.AlertConfig{
		MAEThreshold:  cfg.Alerts.MAEThreshold,
		MAPEThreshold: cfg.Alerts.MAPEThreshold,
		HistoryLimit:  cfg.Alerts.HistoryLimit,
		SinkTimeout:   cfg.Alerts.SinkTimeout,
	}, sinks, journal, m, l)
	restore(l, "alert history", a.Restore)
	return a
}

func ProvidePredictor(cfg *config.Config) service.Predictor {
	return predictor.NewClient(cfg.Predictor.URL, cfg.Predictor.Timeout, 3)
}

func ProvidePredictionService(
	cfg *config.Config,
	fetcher usecase.MarketFetcher,
	p service.Predictor,
	validator *usecase.PerformanceValidator,
	l *applogger.Logger,
) *usecase.PredictionService {
	return usecase.NewPredictionService(fetcher, p, validator, cfg.Fetcher.DefaultSuffix, cfg.Predictor.Days, l)
}

func ProvideHistoryService(cfg *config.Config, candles repository.CandleStore) *usecase.HistoryService {
	return usecase.NewHistoryService(candles, cfg.Fetcher.DefaultSuffix)
}

func ProvideMonitoringJobs(
	cfg *config.Config,
	locks cache.Service,
	fetcher usecase.MarketFetcher,
	candles repository.CandleStore,
	ledger *usecase.Ledger,
	validator *usecase.PerformanceValidator,
	drift *usecase.DriftDetector,
	alerts *usecase.AlertDispatcher,
	journal repository.Journal,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.MonitoringJobs {
	tickers := make([]string, 0, len(cfg.Tickers))
	for _, t := range cfg.Tickers {
		sym, err := util.NormalizeTicker(t, cfg.Fetcher.DefaultSuffix)
		if err != nil {
			l.Warn("ignoring configured ticker", applogger.String("ticker", t), applogger.Error(err))
			continue
		}
		tickers = append(tickers, sym)
	}
	return usecase.NewMonitoringJobs(usecase.JobsConfig{
		Tickers:       tickers,
		DaysBack:      cfg.Validator.DaysBack,
		WindowN:       cfg.Validator.WindowN,
		TrendDays:     cfg.Validator.TrendDays,
		CacheDays:     cfg.Predictor.Days,
		RetentionDays: cfg.Ledger.RetentionDays,
		LeaseTTL:      cfg.Jobs.LeaseTTL,
		SummaryLimit:  cfg.Jobs.SummaryLimit,
	}, locks, fetcher, candles, ledger, validator, drift, alerts, journal, m, l)
}

// ProvideScheduler registers the periodic jobs, or returns nil when jobs
// are disabled.
func ProvideScheduler(
	cfg *config.Config,
	jobs *usecase.MonitoringJobs,
	loc *time.Location,
	l *applogger.Logger,
) (*scheduler.Runner, error) {
	if !cfg.Jobs.Enabled {
		return nil, nil
	}
	r := scheduler.New(context.Background(), loc, l)
	err := scheduler.RegisterMonitoring(r, jobs, scheduler.Specs{
		Validation:   cfg.Jobs.Validation,
		DriftCheck:   cfg.Jobs.DriftCheck,
		CacheRefresh: cfg.Jobs.CacheRefresh,
		Retention:    cfg.Jobs.Retention,
	}, cfg.Validator.DaysBack)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func ProvidePredictionIngest(
	cfg *config.Config,
	validator *usecase.PerformanceValidator,
	l *applogger.Logger,
) server.IngestHandler {
	return usecase.NewPredictionIngestHandler(cfg.Kafka.PredictionsTopic, validator, cfg.Fetcher.DefaultSuffix, l)
}

// ProvideKafkaConsumer creates the prediction consumer, or nil when Kafka
// is off.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	c := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(c.GroupID),
		pkgkafka.WithConsumerWorkers(c.Workers),
		pkgkafka.WithConsumerBufferSize(c.BufferSize),
		pkgkafka.WithConsumerRetry(c.RetryMax, c.BackoffMin, c.BackoffMax),
		pkgkafka.WithConsumerDLQ(c.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideHealthChecks lists the backends reported by /api/health.
func ProvideHealthChecks(lite *sqlite.Client, pg *postgres.Client, ch *pkgch.Client, c cache.Service) []api.HealthCheck {
	checks := []api.HealthCheck{{Name: "sqlite", Check: lite.Health}}
	if pg != nil {
		checks = append(checks, api.HealthCheck{Name: "postgres", Check: pg.Health})
	}
	if ch != nil {
		checks = append(checks, api.HealthCheck{Name: "clickhouse", Check: ch.Health})
	}
	checks = append(checks, api.HealthCheck{Name: "cache", Check: func(ctx context.Context) error {
		_, err := c.Exists(ctx, "health")
		return err
	}})
	return checks
}

func ProvideHTTPHandlers(
	cfg *config.Config,
	l *applogger.Logger,
	fetcher usecase.MarketFetcher,
	predictions *usecase.PredictionService,
	history *usecase.HistoryService,
	ledger *usecase.Ledger,
	validator *usecase.PerformanceValidator,
	jobs *usecase.MonitoringJobs,
	drift *usecase.DriftDetector,
	alerts *usecase.AlertDispatcher,
	hub *alerting.Hub,
	checks []api.HealthCheck,
) []xhttp.Handler {
	suffix := cfg.Fetcher.DefaultSuffix
	limiter := ratelimit.New(cfg.Server.PredictRPS, cfg.Server.PredictBurst)
	return []xhttp.Handler{
		api.NewMarketHandler(l, fetcher, predictions, history, limiter, suffix),
		api.NewPredictionsHandler(l, ledger, validator, suffix),
		api.NewMonitoringHandler(l, jobs, validator, drift, alerts, ledger, hub, checks, suffix),
	}
}

func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, handlers []xhttp.Handler) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetricsPath(cfg.Metrics.Path))
	}
	return xhttp.NewServer(l, handlers, opts...)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	runner *scheduler.Runner,
	consumer *pkgkafka.Consumer,
	ingest server.IngestHandler,
	alerts *usecase.AlertDispatcher,
	hub *alerting.Hub,
	ledger *usecase.Ledger,
) *server.App {
	return server.New(cfg, l, httpServer, runner, consumer, ingest, alerts, hub, ledger)
}

func restore(l *applogger.Logger, what string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		l.Warn("restore from journal failed", applogger.String("what", what), applogger.Error(err))
	}
}
