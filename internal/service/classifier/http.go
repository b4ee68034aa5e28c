package classifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MarketPulse/internal/domain/models"
	smetrics "MarketPulse/internal/service/metrics"
	xhttp "MarketPulse/pkg/http"
	"MarketPulse/pkg/logger"
)

// HTTPServiceBase holds the client and base URL of a JSON classification
// service.
type HTTPServiceBase struct {
	baseURL string
	client  *xhttp.Client
}

func NewHTTPServiceBase(baseURL string, timeout time.Duration) *HTTPServiceBase {
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	return &HTTPServiceBase{
		baseURL: baseURL,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

// PostJSON posts payload to path under baseURL and decodes JSON into dest.
func (b *HTTPServiceBase) PostJSON(ctx context.Context, path string, payload, dest interface{}) error {
	if b.baseURL == "" {
		return fmt.Errorf("classifier service url not configured")
	}
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     b.baseURL + path,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

// PostJSONWithRetry retries transport errors and 5xx answers with a
// linear backoff. 4xx answers are not retried.
func (b *HTTPServiceBase) PostJSONWithRetry(ctx context.Context, path string, payload, dest interface{}, attempts int) error {
	if attempts < 1 {
		attempts = 1
	}
	for i := 1; ; i++ {
		err := b.PostJSON(ctx, path, payload, dest)
		if err == nil || !retryable(err) || i >= attempts {
			return err
		}
		select {
		case <-time.After(time.Duration(i) * 200 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func retryable(err error) bool {
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	return true
}

type httpAnalyzeRequest struct {
	Headline     string               `json:"headline"`
	Timestamp    string               `json:"timestamp,omitempty"`
	EconomicData *models.EconomicData `json:"economicData"`
	Tags         []string             `json:"tags"`
	Prompt       string               `json:"prompt"`
}

// HTTPClassifier delegates classification to an external service that
// answers with the verdict JSON.
type HTTPClassifier struct {
	*HTTPServiceBase
	timeout  time.Duration
	attempts int
	log      *logger.Logger
	now      func() time.Time
}

func NewHTTPClassifier(baseURL string, timeout time.Duration, log *logger.Logger) *HTTPClassifier {
	return &HTTPClassifier{
		HTTPServiceBase: NewHTTPServiceBase(baseURL, timeout),
		timeout:         timeout,
		attempts:        2,
		log:             log.Component("classifier.http"),
		now:             time.Now,
	}
}

func (c *HTTPClassifier) Name() string {
	return "http"
}

func (c *HTTPClassifier) Classify(ctx context.Context, item models.NewsItem) (models.SurpriseAnalysis, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := httpAnalyzeRequest{
		Headline:     item.Headline,
		EconomicData: item.EconomicData,
		Tags:         item.Tags,
		Prompt:       BuildPrompt(item),
	}
	if item.Timestamp != nil {
		req.Timestamp = item.Timestamp.UTC().Format(time.RFC3339)
	}

	start := time.Now()
	var raw []byte
	err := c.PostJSONWithRetry(ctx, "/analyze", req, &raw, c.attempts)
	smetrics.ClassifierLatency.WithLabelValues(c.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		return models.SurpriseAnalysis{}, classifyErr(ctx, c.Name(), c.timeout, err)
	}

	analysis, err := ParseVerdict(string(raw))
	if err != nil {
		c.log.Warn("malformed classifier answer", logger.Error(err))
		smetrics.ClassifierErrors.WithLabelValues(c.Name()).Inc()
		return models.SurpriseAnalysis{}, models.NewSourceError(models.KindAIServiceError, c.Name(), "malformed AI response", err)
	}
	analysis.AnalyzedAt = c.now().UTC()
	return analysis, nil
}
