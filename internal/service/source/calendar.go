package source

import (
	"context"
	"time"

	"MarketPulse/internal/domain/models"
	xhttp "MarketPulse/pkg/http"
	"MarketPulse/pkg/logger"
)

type CalendarOptions struct {
	URL       string
	Timeout   time.Duration
	RateLimit float64
}

// CalendarClient reads the economic calendar feed.
type CalendarClient struct {
	base
}

func NewCalendarClient(opts CalendarOptions, log *logger.Logger) *CalendarClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	return &CalendarClient{base: newBase("calendar", opts.URL, opts.Timeout, opts.RateLimit, "", log)}
}

func (c *CalendarClient) FetchEvents(ctx context.Context) ([]models.RawEvent, error) {
	var resp struct {
		Events []models.RawEvent `json:"events"`
	}
	if err := c.fetch(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		Headers: map[string]string{"Accept": "application/json"},
	}, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}
