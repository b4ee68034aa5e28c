package di

import (
	"context"
	"fmt"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	domsvc "MarketPulse/internal/domain/service"
	"MarketPulse/internal/handler/api"
	"MarketPulse/internal/handler/stream"
	internalrepo "MarketPulse/internal/repository"
	"MarketPulse/internal/scheduler"
	"MarketPulse/internal/service/classifier"
	smetrics "MarketPulse/internal/service/metrics"
	"MarketPulse/internal/service/ratelimit"
	"MarketPulse/internal/service/source"
	"MarketPulse/internal/usecase"
	"MarketPulse/pkg/cache"
	pkgch "MarketPulse/pkg/clickhouse"
	"MarketPulse/pkg/config"
	xhttp "MarketPulse/pkg/http"
	pkgkafka "MarketPulse/pkg/kafka"
	applogger "MarketPulse/pkg/logger"
	"MarketPulse/pkg/metrics"
	"MarketPulse/pkg/queue"
	"MarketPulse/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
)

// ProvideLogger builds the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	smetrics.Register()
	return metrics.New(prometheus.DefaultRegisterer)
}

// ProvideRedisCache connects to Redis, or returns nil when Redis is
// disabled.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, func(), error) {
	if !cfg.Redis.Enabled {
		return nil, func() {}, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.RedisAddr()),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(20, 2, 30*time.Second),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr(), err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

// ProvideCache layers an in-process LRU over Redis, or uses the LRU alone.
func ProvideCache(rc *cache.RedisCache) cache.Service {
	if rc == nil {
		return cache.NewMemoryCache(
			cache.WithMemoryMaxSize(4096),
			cache.WithMemoryCleanup(time.Minute),
		)
	}
	return cache.NewLayeredCache(
		rc,
		cache.WithLayeredMemorySize(1024),
		cache.WithLayeredMemoryTTL(30*time.Second),
	)
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when
// history is kept in memory.
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
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideHistoryStore picks ClickHouse when configured and creates its
// schema.
func ProvideHistoryStore(ch *pkgch.Client, cfg *config.Config, l *applogger.Logger) (domrepo.HistoryStore, error) {
	if ch == nil {
		return internalrepo.NewMemoryHistoryStore(cfg.Analysis.Retention), nil
	}
	store := internalrepo.NewCHHistoryStore(ch, l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is off.
// Error logs are aggregated and shipped through it; loggers derived from l
// afterwards share the collector.
func ProvideKafkaProducer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithAutoCreateTopic(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	l.AddCollector(&applogger.CollectionConfig{
		TimeInterval:   30 * time.Second,
		CountThreshold: 100,
		Topic:          cfg.Kafka.LogTopic,
		Publisher:      producer,
	})
	return producer, nil
}

// ProvideEventPublisher creates the signal event publisher.
func ProvideEventPublisher(producer *pkgkafka.Producer, cfg *config.Config) domrepo.EventPublisher {
	if producer == nil {
		return internalrepo.NopPublisher{}
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic)
}

func ProvideAnalysisStore(c cache.Service, cfg *config.Config) domrepo.AnalysisStore {
	return internalrepo.NewCacheAnalysisStore(c, cfg.Analysis.Retention)
}

// ProvideClassifier builds the configured AI classifier.
func ProvideClassifier(cfg *config.Config, l *applogger.Logger) (domsvc.SurpriseClassifier, error) {
	switch cfg.AI.Provider {
	case "http":
		return classifier.NewHTTPClassifier(cfg.AI.ServiceURL, cfg.AI.Timeout, l), nil
	default:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		g, err := classifier.NewGemini(ctx, cfg.AI.APIKey, l,
			classifier.WithModel(cfg.AI.Model),
			classifier.WithTimeout(cfg.AI.Timeout),
			classifier.WithMaxTokens(cfg.AI.MaxTokens),
		)
		if err != nil {
			return nil, fmt.Errorf("gemini classifier: %w", err)
		}
		return g, nil
	}
}

func ProvideNormalizer(cfg *config.Config, l *applogger.Logger, m domrepo.Metrics) *usecase.Normalizer {
	return usecase.NewNormalizer(cfg.Sources.News.CriticalTags, l, m)
}

func ProvideOrchestrator(
	c domsvc.SurpriseClassifier,
	store domrepo.AnalysisStore,
	m domrepo.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.SurpriseOrchestrator {
	// The orchestrator also covers the store round trips.
	return usecase.NewSurpriseOrchestrator(c, store, m, usecase.OrchestratorOptions{
		Timeout: cfg.AI.Timeout + 5*time.Second,
	}, l)
}

// ProvideQueue creates the auto-analysis job queue, or nil when
// auto-analysis is off.
func ProvideQueue(cfg *config.Config, rc *cache.RedisCache, l *applogger.Logger) *queue.RedisQueue {
	if !cfg.Analysis.AutoAnalyze || rc == nil {
		return nil
	}
	return queue.NewRedisQueue(l, &queue.QueueConfig{
		Workers:    cfg.Analysis.Workers,
		RetryLimit: cfg.Analysis.RetryLimit,
		RetryDelay: cfg.Analysis.RetryDelay,
	}, rc.Client(), queue.WithKeyPrefix(rc.Prefix()+":queue"))
}

func ProvideNewsFeed(
	cfg *config.Config,
	n *usecase.Normalizer,
	pub domrepo.EventPublisher,
	q *queue.RedisQueue,
	l *applogger.Logger,
) *usecase.NewsFeed {
	sel := cfg.Sources.News.Selectors
	scraper := source.NewNewsScraper(source.NewsOptions{
		URL:       cfg.Sources.News.URL,
		Timeout:   cfg.Sources.News.Timeout,
		RateLimit: cfg.Sources.News.RateLimit,
		UserAgent: cfg.Sources.News.UserAgent,
		Selectors: source.NewsSelectors{
			Item:     sel.Item,
			Headline: sel.Headline,
			Time:     sel.Time,
			Actual:   sel.Actual,
			Forecast: sel.Forecast,
			Previous: sel.Previous,
			Tag:      sel.Tag,
			Impact:   sel.Impact,
		},
	}, l)

	// A nil *RedisQueue must not become a non-nil interface.
	var qp queue.Publisher
	if q != nil {
		qp = q
	}
	return usecase.NewNewsFeed(scraper, n, usecase.NewNewsClassifier(cfg.Refresh.NewsRetention, l), pub, qp,
		usecase.NewsFeedOptions{AutoAnalyze: cfg.Analysis.AutoAnalyze}, l)
}

func ProvideCurrencyStrength(
	cfg *config.Config,
	n *usecase.Normalizer,
	c cache.Service,
	history domrepo.HistoryStore,
	l *applogger.Logger,
) *usecase.CurrencyStrength {
	quotes := source.NewQuotesClient(source.QuotesOptions{
		URL:       cfg.Sources.Quotes.URL,
		APIKey:    cfg.Sources.Quotes.APIKey,
		Timeout:   cfg.Sources.Quotes.Timeout,
		RateLimit: cfg.Sources.Quotes.RateLimit,
		Window:    cfg.Sources.Quotes.Window,
	}, l)
	return usecase.NewCurrencyStrength(quotes, n, c, history, usecase.CurrencyStrengthOptions{
		SourceTTL:  cfg.Refresh.CurrencySource,
		MaxPairAge: cfg.Refresh.MaxPairAge,
	}, l)
}

func ProvideRateProbabilities(cfg *config.Config, history domrepo.HistoryStore, l *applogger.Logger) *usecase.RateProbabilities {
	rates := source.NewRatesClient(source.RatesOptions{
		URL:       cfg.Sources.Rates.URL,
		APIKey:    cfg.Sources.Rates.APIKey,
		Timeout:   cfg.Sources.Rates.Timeout,
		RateLimit: cfg.Sources.Rates.RateLimit,
	}, l)
	return usecase.NewRateProbabilities(rates, history, usecase.RateProbabilitiesOptions{
		TimelineMeetings: cfg.Refresh.Timeline,
	}, l)
}

func ProvideCalendar(cfg *config.Config, n *usecase.Normalizer, l *applogger.Logger) *usecase.Calendar {
	client := source.NewCalendarClient(source.CalendarOptions{
		URL:       cfg.Sources.Calendar.URL,
		Timeout:   cfg.Sources.Calendar.Timeout,
		RateLimit: cfg.Sources.Calendar.RateLimit,
	}, l)
	return usecase.NewCalendar(client, n, models.ParseImpact(cfg.Sources.Calendar.MinImpact), l)
}

func ProvideScheduler(c cache.Service, m domrepo.Metrics, cfg *config.Config, l *applogger.Logger) *scheduler.Scheduler {
	return scheduler.New(c, m, scheduler.Options{StaleGrace: cfg.Refresh.StaleGrace}, l)
}

// ProvideSnapshots registers the four signal families on the scheduler.
func ProvideSnapshots(
	s *scheduler.Scheduler,
	cfg *config.Config,
	news *usecase.NewsFeed,
	currency *usecase.CurrencyStrength,
	rates *usecase.RateProbabilities,
	calendar *usecase.Calendar,
) api.Snapshots {
	family := func(name string, every time.Duration) scheduler.FamilyConfig {
		return scheduler.FamilyConfig{Name: name, Interval: every, Timeout: cfg.Refresh.CycleTimeout}
	}
	return api.Snapshots{
		News:     scheduler.Register(s, family(scheduler.FamilyNews, cfg.Refresh.News), news.Refresh),
		Currency: scheduler.Register(s, family(scheduler.FamilyCurrency, cfg.Refresh.Currency), currency.Refresh),
		Rates:    scheduler.Register(s, family(scheduler.FamilyRates, cfg.Refresh.Rates), rates.Refresh),
		Calendar: scheduler.Register(s, family(scheduler.FamilyCalendar, cfg.Refresh.Calendar), calendar.Refresh),
	}
}

func ProvideSignalsHandler(
	cfg *config.Config,
	l *applogger.Logger,
	snaps api.Snapshots,
	s *scheduler.Scheduler,
	o *usecase.SurpriseOrchestrator,
	n *usecase.Normalizer,
	rates *usecase.RateProbabilities,
) *api.SignalsHandler {
	return api.NewSignalsHandler(l, snaps, s, o, n, rates, api.Options{
		RatesInterval:  cfg.Refresh.Rates,
		StaleGrace:     cfg.Refresh.StaleGrace,
		AnalyzeTimeout: cfg.AI.Timeout + 5*time.Second,
		AnalyzeLimiter: ratelimit.PerMinute(cfg.Analysis.RatePerMin, 3),
	})
}

func ProvideStreamHub(l *applogger.Logger) *stream.Hub {
	return stream.NewHub(l, 30*time.Second)
}

// ProvideHTTPServer builds the echo server with every route group.
func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, h *api.SignalsHandler, hub *stream.Hub) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(l, []xhttp.Handler{h, hub},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithCORS(cfg.Server.CORSOrigins...),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	s *scheduler.Scheduler,
	_ api.Snapshots,
	o *usecase.SurpriseOrchestrator,
	q *queue.RedisQueue,
	pub domrepo.EventPublisher,
	producer *pkgkafka.Producer,
	history domrepo.HistoryStore,
	ch *pkgch.Client,
	c cache.Service,
	hub *stream.Hub,
	httpServer *xhttp.Server,
) *server.App {
	return server.New(cfg, l, server.Components{
		Scheduler:    s,
		Orchestrator: o,
		Queue:        q,
		Publisher:    pub,
		Producer:     producer,
		History:      history,
		ClickHouse:   ch,
		Cache:        c,
		Hub:          hub,
		HTTP:         httpServer,
	})
}
