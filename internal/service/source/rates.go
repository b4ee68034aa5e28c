package source

import (
	"context"
	"time"

	"MarketPulse/internal/domain/models"
	xhttp "MarketPulse/pkg/http"
	"MarketPulse/pkg/logger"
)

type RatesOptions struct {
	URL       string
	APIKey    string
	Timeout   time.Duration
	RateLimit float64
}

// RatesClient reads the market-implied rate probability feed.
type RatesClient struct {
	base
	apiKey string
}

func NewRatesClient(opts RatesOptions, log *logger.Logger) *RatesClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 25 * time.Second
	}
	return &RatesClient{
		base:   newBase("rates", opts.URL, opts.Timeout, opts.RateLimit, "", log),
		apiKey: opts.APIKey,
	}
}

func (c *RatesClient) FetchRates(ctx context.Context) (*models.RawRateFeed, error) {
	headers := map[string]string{"Accept": "application/json"}
	if c.apiKey != "" {
		headers["X-API-Key"] = c.apiKey
	}

	var feed models.RawRateFeed
	if err := c.fetch(ctx, &xhttp.RequestOptions{Method: xhttp.MethodGet, Headers: headers}, &feed); err != nil {
		return nil, err
	}
	if len(feed.Banks) == 0 {
		return nil, models.NewSourceError(models.KindParseError, c.name, "feed lists no banks", nil)
	}
	return &feed, nil
}
