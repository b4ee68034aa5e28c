package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func payrolls() models.NewsItem {
	ts := time.Date(2025, 3, 7, 13, 30, 0, 0, time.UTC)
	return models.NewsItem{
		Headline:  "US Nonfarm Payrolls",
		Timestamp: &ts,
		EconomicData: &models.EconomicData{
			Actual:   ptr(275000),
			Forecast: ptr(200000),
			Unit:     "K",
		},
		Tags: []string{"USD"},
	}
}

type stubGenerator struct {
	text  string
	err   error
	delay time.Duration
}

func (s stubGenerator) Generate(ctx context.Context, _, _ string) (string, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.text, s.err
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(payrolls())
	assert.Contains(t, p, "Headline: US Nonfarm Payrolls")
	assert.Contains(t, p, "Actual: 275K")
	assert.Contains(t, p, "Forecast: 200K")
	assert.Contains(t, p, "Previous: n/a")
	assert.Contains(t, p, "Released: 2025-03-07T13:30:00Z")
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    models.Verdict
		conf    models.Confidence
		wantErr bool
	}{
		{
			name: "plain json",
			in:   `{"verdict":"BullishSurprise","confidence":"High","reasoning":"Beat.","keyFactors":["jobs"]}`,
			want: models.VerdictBullishSurprise, conf: models.ConfidenceHigh,
		},
		{
			name: "fenced json",
			in:   "```json\n{\"verdict\":\"Neutral\",\"confidence\":\"Medium\",\"reasoning\":\"In line.\"}\n```",
			want: models.VerdictNeutral, conf: models.ConfidenceMedium,
		},
		{
			name: "unknown confidence degrades",
			in:   `{"verdict":"BearishSurprise","confidence":"very"}`,
			want: models.VerdictBearishSurprise, conf: models.ConfidenceLow,
		},
		{name: "unknown verdict", in: `{"verdict":"Maybe"}`, wantErr: true},
		{name: "error verdict is not accepted from the model", in: `{"verdict":"Error"}`, wantErr: true},
		{name: "prose", in: "I think it is bullish", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVerdict(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Verdict)
			assert.Equal(t, tt.conf, got.Confidence)
			assert.NotNil(t, got.KeyFactors)
		})
	}
}

func TestGeminiClassify(t *testing.T) {
	g, err := NewGemini(context.Background(), "", logger.Nop(), WithGenerator(stubGenerator{
		text: `{"verdict":"BullishSurprise","confidence":"High","reasoning":"Strong beat.","keyFactors":["payrolls +75K vs forecast"]}`,
	}))
	require.NoError(t, err)

	a, err := g.Classify(context.Background(), payrolls())
	require.NoError(t, err)
	assert.Equal(t, models.VerdictBullishSurprise, a.Verdict)
	assert.Equal(t, []string{"payrolls +75K vs forecast"}, a.KeyFactors)
	assert.False(t, a.AnalyzedAt.IsZero())
	assert.False(t, a.Cached)
}

func TestGeminiErrors(t *testing.T) {
	tests := []struct {
		name string
		gen  stubGenerator
		want models.ErrorKind
	}{
		{"upstream error", stubGenerator{err: errors.New("503 overloaded")}, models.KindAIServiceError},
		{"malformed", stubGenerator{text: "sorry"}, models.KindAIServiceError},
		{"timeout", stubGenerator{delay: time.Second}, models.KindTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGemini(context.Background(), "", logger.Nop(), WithGenerator(tt.gen), WithTimeout(20*time.Millisecond))
			require.NoError(t, err)
			_, err = g.Classify(context.Background(), payrolls())
			require.Error(t, err)
			assert.Equal(t, tt.want, models.KindOf(err))
		})
	}
}

func TestNewGeminiRequiresKey(t *testing.T) {
	_, err := NewGemini(context.Background(), "", logger.Nop())
	assert.Error(t, err)
}

func TestHTTPClassifier(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		assert.Equal(t, "/analyze", r.URL.Path)

		var req httpAnalyzeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "US Nonfarm Payrolls", req.Headline)
		assert.Equal(t, "2025-03-07T13:30:00Z", req.Timestamp)

		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"verdict":"BullishSurprise","confidence":"Medium","reasoning":"ok","keyFactors":[]}`)
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, 2*time.Second, logger.Nop())
	a, err := c.Classify(context.Background(), payrolls())
	require.NoError(t, err)
	assert.Equal(t, models.VerdictBullishSurprise, a.Verdict)
	assert.EqualValues(t, 2, calls.Load(), "5xx is retried once")
}

func TestHTTPClassifierDoesNotRetry4xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, 2*time.Second, logger.Nop())
	_, err := c.Classify(context.Background(), payrolls())
	require.Error(t, err)
	assert.Equal(t, models.KindAIServiceError, models.KindOf(err))
	assert.EqualValues(t, 1, calls.Load())
}
