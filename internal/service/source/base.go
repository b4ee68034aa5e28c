package source

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"MarketPulse/internal/domain/models"
	smetrics "MarketPulse/internal/service/metrics"
	xhttp "MarketPulse/pkg/http"
	"MarketPulse/pkg/logger"

	"golang.org/x/time/rate"
)

// base carries what every connector shares: a bounded HTTP client, a rate
// limiter and error classification.
type base struct {
	name    string
	url     string
	timeout time.Duration
	client  *xhttp.Client
	limiter *rate.Limiter
	log     *logger.Logger
}

func newBase(name, url string, timeout time.Duration, perSecond float64, userAgent string, log *logger.Logger) base {
	if perSecond <= 0 {
		perSecond = 1
	}
	return base{
		name:    name,
		url:     url,
		timeout: timeout,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout), xhttp.WithUserAgent(userAgent)),
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		log:     log.Component("source." + name),
	}
}

// Name returns the connector name used in logs and metrics.
func (b *base) Name() string {
	return b.name
}

// fetch performs one bounded request. The deadline covers waiting for the
// limiter and reading the body.
func (b *base) fetch(ctx context.Context, opts *xhttp.RequestOptions, dest interface{}) (err error) {
	if b.url == "" {
		return models.NewSourceError(models.KindUpstreamUnavailable, b.name, "no url configured", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		smetrics.ConnectorLatency.WithLabelValues(b.name).Observe(time.Since(start).Seconds())
	}()

	if err := b.limiter.Wait(ctx); err != nil {
		return b.classify(ctx, err)
	}

	if opts.URL == "" {
		opts.URL = b.url
	}
	if err := b.client.SendAndParse(ctx, opts, dest); err != nil {
		return b.classify(ctx, err)
	}
	return nil
}

// guard converts a panic in parsing code into a ParseError.
func (b *base) guard(err *error) {
	if r := recover(); r != nil {
		b.log.Error("connector panic", logger.Any("panic", r))
		*err = models.NewSourceError(models.KindParseError, b.name, fmt.Sprintf("panic: %v", r), nil)
	}
}

func (b *base) classify(ctx context.Context, err error) error {
	var se *models.SourceError
	if errors.As(err, &se) {
		return err
	}

	var netErr net.Error
	var statusErr *xhttp.StatusError
	var decodeErr *xhttp.DecodeError
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(ctx.Err(), context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return models.NewSourceError(models.KindTimeout, b.name, fmt.Sprintf("no response within %s", b.timeout), err)
	case errors.As(err, &statusErr):
		return models.NewSourceError(models.KindUpstreamUnavailable, b.name, fmt.Sprintf("status %d", statusErr.StatusCode), err)
	case errors.As(err, &decodeErr):
		return models.NewSourceError(models.KindParseError, b.name, "malformed response", err)
	default:
		return models.NewSourceError(models.KindUpstreamUnavailable, b.name, "", err)
	}
}
