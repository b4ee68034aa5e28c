package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"MarketPulse/pkg/util"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lt=65536"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"35s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		SlowThreshold   time.Duration `yaml:"slow_threshold" default:"2s"`
		CORSOrigins     []string      `yaml:"cors_origins"`
	} `yaml:"server"`
	Log struct {
		Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format     string `yaml:"format" default:"console" validate:"oneof=json console"`
		Output     string `yaml:"output" default:"stdout"`
		MaxSizeMB  int    `yaml:"max_size_mb" default:"100"`
		MaxAgeDays int    `yaml:"max_age_days" default:"7"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"marketpulse"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"marketpulse.signals"`
		LogTopic     string   `yaml:"log_topic" default:"marketpulse.logs"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"1s"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"marketpulse"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Sources struct {
		News struct {
			URL          string        `yaml:"url"`
			Timeout      time.Duration `yaml:"timeout" default:"8s"`
			RateLimit    float64       `yaml:"rate_limit" default:"1"`
			UserAgent    string        `yaml:"user_agent" default:"Mozilla/5.0 (compatible; MarketPulse/1.0)"`
			CriticalTags []string      `yaml:"critical_tags"`
			Selectors    struct {
				Item     string `yaml:"item" default:"article.news-item"`
				Headline string `yaml:"headline" default:".news-headline"`
				Time     string `yaml:"time" default:"time"`
				Actual   string `yaml:"actual" default:".eco-actual"`
				Forecast string `yaml:"forecast" default:".eco-forecast"`
				Previous string `yaml:"previous" default:".eco-previous"`
				Tag      string `yaml:"tag" default:".news-tag"`
				Impact   string `yaml:"impact" default:"data-impact"`
			} `yaml:"selectors"`
		} `yaml:"news"`
		Quotes struct {
			URL       string        `yaml:"url"`
			APIKey    string        `yaml:"api_key"`
			Timeout   time.Duration `yaml:"timeout" default:"15s"`
			RateLimit float64       `yaml:"rate_limit" default:"1"`
			Window    string        `yaml:"window" default:"1D" validate:"oneof=1D 1W"`
		} `yaml:"quotes"`
		Rates struct {
			URL       string        `yaml:"url"`
			APIKey    string        `yaml:"api_key"`
			Timeout   time.Duration `yaml:"timeout" default:"25s"`
			RateLimit float64       `yaml:"rate_limit" default:"0.5"`
		} `yaml:"rates"`
		Calendar struct {
			URL       string        `yaml:"url"`
			Timeout   time.Duration `yaml:"timeout" default:"8s"`
			RateLimit float64       `yaml:"rate_limit" default:"1"`
			MinImpact string        `yaml:"min_impact" default:"high" validate:"oneof=low medium high"`
		} `yaml:"calendar"`
	} `yaml:"sources"`
	AI struct {
		Provider   string        `yaml:"provider" default:"gemini" validate:"oneof=gemini http"`
		APIKey     string        `yaml:"api_key"`
		Model      string        `yaml:"model" default:"gemini-2.5-flash"`
		ServiceURL string        `yaml:"service_url"`
		Timeout    time.Duration `yaml:"timeout" default:"25s"`
		MaxTokens  int           `yaml:"max_tokens" default:"1024"`
	} `yaml:"ai"`
	Refresh struct {
		News           time.Duration `yaml:"news" default:"2m"`
		Currency       time.Duration `yaml:"currency" default:"5m"`
		CurrencySource time.Duration `yaml:"currency_source" default:"4h"`
		Rates          time.Duration `yaml:"rates" default:"4h"`
		Calendar       time.Duration `yaml:"calendar" default:"30m"`
		StaleGrace     time.Duration `yaml:"stale_grace" default:"10m"`
		CycleTimeout   time.Duration `yaml:"cycle_timeout" default:"60s"`
		MaxPairAge     time.Duration `yaml:"max_pair_age" default:"8h"`
		NewsRetention  time.Duration `yaml:"news_retention" default:"24h"`
		Timeline       int           `yaml:"timeline_meetings" default:"8" validate:"gte=1,lte=24"`
	} `yaml:"refresh"`
	Analysis struct {
		AutoAnalyze bool          `yaml:"auto_analyze"`
		Workers     int           `yaml:"workers" default:"2" validate:"gte=1,lte=32"`
		RetryLimit  int           `yaml:"retry_limit" default:"2"`
		RetryDelay  time.Duration `yaml:"retry_delay" default:"30s"`
		Retention   time.Duration `yaml:"retention" default:"720h"`
		RatePerMin  float64       `yaml:"rate_per_min" default:"10"`
	} `yaml:"analysis"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if c.Server.CORSOrigins == nil {
		c.Server.CORSOrigins = []string{"*"}
	}
	if len(c.Sources.News.CriticalTags) == 0 {
		c.Sources.News.CriticalTags = []string{"high impact", "breaking", "bullish", "bearish"}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// A .env file in the working directory is loaded first when present.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.ApplyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides secrets and endpoints from the process environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("APP_ENV"); v != "" {
		c.Environment = v
	}
	c.Server.Port = util.ParseIntDefault(os.Getenv("PORT"), c.Server.Port)
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("AI_API_KEY"); v != "" {
		c.AI.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && c.AI.APIKey == "" {
		c.AI.APIKey = v
	}
	if v := os.Getenv("NEWS_URL"); v != "" {
		c.Sources.News.URL = v
	}
	if v := os.Getenv("QUOTES_URL"); v != "" {
		c.Sources.Quotes.URL = v
	}
	if v := os.Getenv("QUOTES_API_KEY"); v != "" {
		c.Sources.Quotes.APIKey = v
	}
	if v := os.Getenv("RATES_URL"); v != "" {
		c.Sources.Rates.URL = v
	}
	if v := os.Getenv("RATES_API_KEY"); v != "" {
		c.Sources.Rates.APIKey = v
	}
	if v := os.Getenv("CALENDAR_URL"); v != "" {
		c.Sources.Calendar.URL = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
		c.Redis.Enabled = true
	}
	c.Redis.Port = util.ParseIntDefault(os.Getenv("REDIS_PORT"), c.Redis.Port)
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
	c.ClickHouse.Port = util.ParseIntDefault(os.Getenv("CLICKHOUSE_PORT"), c.ClickHouse.Port)
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.AI.Provider == "http" && c.AI.ServiceURL == "" {
		return fmt.Errorf("ai.service_url is required for provider 'http'")
	}
	if c.Analysis.AutoAnalyze && !c.Redis.Enabled {
		return fmt.Errorf("analysis.auto_analyze requires redis")
	}
	for name, d := range map[string]time.Duration{
		"refresh.news":     c.Refresh.News,
		"refresh.currency": c.Refresh.Currency,
		"refresh.rates":    c.Refresh.Rates,
		"refresh.calendar": c.Refresh.Calendar,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	return nil
}

// RedisAddr returns host:port of the configured Redis server.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
