package source

import (
	"context"
	"strings"
	"time"

	"MarketPulse/internal/domain/models"
	xhttp "MarketPulse/pkg/http"
	"MarketPulse/pkg/logger"
)

const pairsQuery = `query Pairs($symbols: [String!]!, $window: String!) {
  pairs(symbols: $symbols, window: $window) {
    symbol
    base
    quote
    timestamp
    changePercent
  }
}`

type QuotesOptions struct {
	URL       string
	APIKey    string
	Timeout   time.Duration
	RateLimit float64
	Window    string
}

// QuotesClient queries percent changes for currency pairs from a GraphQL API.
type QuotesClient struct {
	base
	apiKey string
	window string
}

func NewQuotesClient(opts QuotesOptions, log *logger.Logger) *QuotesClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Window == "" {
		opts.Window = "1D"
	}
	return &QuotesClient{
		base:   newBase("quotes", opts.URL, opts.Timeout, opts.RateLimit, "", log),
		apiKey: opts.APIKey,
		window: opts.Window,
	}
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type pairsResponse struct {
	Data *struct {
		Pairs []models.RawQuote `json:"pairs"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

func (c *QuotesClient) FetchQuotes(ctx context.Context, pairs []models.Pair) ([]models.RawQuote, error) {
	symbols := make([]string, len(pairs))
	for i, p := range pairs {
		symbols[i] = p.String()
	}

	headers := map[string]string{"Content-Type": "application/json"}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	var resp pairsResponse
	if err := c.fetch(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		Headers: headers,
		Body: graphQLRequest{
			Query:     pairsQuery,
			Variables: map[string]interface{}{"symbols": symbols, "window": c.window},
		},
	}, &resp); err != nil {
		return nil, err
	}

	if len(resp.Errors) > 0 {
		msgs := make([]string, len(resp.Errors))
		for i, e := range resp.Errors {
			msgs[i] = e.Message
		}
		return nil, models.NewSourceError(models.KindUpstreamUnavailable, c.name, strings.Join(msgs, "; "), nil)
	}
	if resp.Data == nil {
		return nil, models.NewSourceError(models.KindParseError, c.name, "response has no data", nil)
	}
	return resp.Data.Pairs, nil
}
