package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/scheduler"
	"MarketPulse/internal/service/ratelimit"
	"MarketPulse/internal/usecase"
	xhttp "MarketPulse/pkg/http"
	"MarketPulse/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC) // Wednesday

type fakeRefresher struct {
	mu        sync.Mutex
	triggered []string
	statuses  []scheduler.Status
}

func (f *fakeRefresher) Trigger(_ context.Context, family string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggered = append(f.triggered, family)
	return true
}

func (f *fakeRefresher) Status() []scheduler.Status { return f.statuses }

type fakeAnalyzer struct {
	mu     sync.Mutex
	result *models.SurpriseAnalysis
	err    error
	state  models.AnalysisState
	items  []models.NewsItem
	retry  []bool
}

func (f *fakeAnalyzer) Analyze(_ context.Context, item models.NewsItem, retry bool) (*models.SurpriseAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, item)
	f.retry = append(f.retry, retry)
	return f.result, f.err
}

func (f *fakeAnalyzer) State(models.NewsIdentity) models.AnalysisState { return f.state }

type fakeHistory struct {
	bank string
	days int
	refs []models.RateSnapshotRef
	err  error
}

func (f *fakeHistory) History(_ context.Context, bank string, days int) ([]models.RateSnapshotRef, error) {
	f.bank, f.days = bank, days
	return f.refs, f.err
}

type fixture struct {
	e        *echo.Echo
	h        *SignalsHandler
	snaps    Snapshots
	refresh  *fakeRefresher
	analyzer *fakeAnalyzer
	history  *fakeHistory
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		snaps: Snapshots{
			News:     scheduler.NewSnapshotStore[models.NewsSnapshot](scheduler.FamilyNews),
			Currency: scheduler.NewSnapshotStore[models.CurrencyStrengthSnapshot](scheduler.FamilyCurrency),
			Rates:    scheduler.NewSnapshotStore[models.RatesSnapshot](scheduler.FamilyRates),
			Calendar: scheduler.NewSnapshotStore[models.CalendarSnapshot](scheduler.FamilyCalendar),
		},
		refresh:  &fakeRefresher{},
		analyzer: &fakeAnalyzer{state: models.StateUnanalyzed},
		history:  &fakeHistory{},
	}
	normalizer := usecase.NewNormalizer([]string{"High Impact"}, logger.Nop(), nil)
	f.h = NewSignalsHandler(logger.Nop(), f.snaps, f.refresh, f.analyzer, normalizer, f.history, opts)
	f.h.now = func() time.Time { return testNow }

	f.e = echo.New()
	f.e.HTTPErrorHandler = xhttp.HTTPErrorHandler
	f.h.RegisterRoutes(f.e)
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)

	var out map[string]interface{}
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func strength() *models.CurrencyStrengthSnapshot {
	return &models.CurrencyStrengthSnapshot{
		Entries: []models.CurrencyStrengthEntry{
			{CurrencyCode: models.USD, DisplayName: "US Dollar", StrengthValue: 0.42, Momentum: 100, Trend: models.TrendBullish},
			{CurrencyCode: models.JPY, DisplayName: "Japanese Yen", StrengthValue: -0.2, Momentum: 47.62, Trend: models.TrendBearish},
		},
		SourceUpdatedAt: testNow.Add(-time.Hour),
	}
}

func TestCurrencyReturnsBareArray(t *testing.T) {
	f := newFixture(t, Options{})
	f.snaps.Currency.Swap(strength(), testNow, "c1")

	rec, _ := f.do(t, http.MethodGet, "/api/currency", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []models.CurrencyStrengthEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, models.USD, entries[0].CurrencyCode)
}

func TestCurrencyWithoutSnapshotIsEnveloped(t *testing.T) {
	f := newFixture(t, Options{})
	f.snaps.Currency.Fail(models.NewSourceError(models.KindUnavailable, "currency", "", nil), testNow)

	rec, body := f.do(t, http.MethodGet, "/api/currency", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "ERR_UNAVAILABLE", body["code"])
}

func TestCurrencyStrengthEnvelope(t *testing.T) {
	f := newFixture(t, Options{})
	f.snaps.Currency.Swap(strength(), testNow, "c1")

	rec, body := f.do(t, http.MethodGet, "/api/currency-strength", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "2025-03-05T11:00:00Z", body["lastUpdated"])
	assert.Len(t, body["data"], 2)
}

func TestNewsReportsFailedSourceWithLastGoodData(t *testing.T) {
	f := newFixture(t, Options{})
	f.snaps.News.Swap(&models.NewsSnapshot{Items: []models.NewsItem{{Headline: "CPI beats"}}}, testNow, "n1")

	_, body := f.do(t, http.MethodGet, "/api/financial-news", "")
	assert.Equal(t, "live", body["source"])

	f.snaps.News.Fail(models.NewSourceError(models.KindParseError, "news", "layout changed", nil), testNow)
	rec, body := f.do(t, http.MethodGet, "/api/financial-news", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "failed", body["source"])
	assert.Equal(t, "News source temporarily unavailable", body["error"])
	assert.Len(t, body["data"], 1)
}

func TestNewsBeforeFirstCycle(t *testing.T) {
	f := newFixture(t, Options{})
	rec, body := f.do(t, http.MethodGet, "/api/financial-news", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "pending", body["source"])
	assert.Empty(t, body["data"])
}

func TestRefreshNewsTriggersCycle(t *testing.T) {
	f := newFixture(t, Options{})
	rec, body := f.do(t, http.MethodPost, "/api/financial-news/refresh", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, true, body["triggered"])
	assert.Equal(t, []string{scheduler.FamilyNews}, f.refresh.triggered)
}

func TestCalendarEndpoints(t *testing.T) {
	f := newFixture(t, Options{})
	f.snaps.Calendar.Swap(&models.CalendarSnapshot{Events: []models.Event{
		{ID: "a", Title: "Last week", Date: testNow.AddDate(0, 0, -7)},
		{ID: "b", Title: "Earlier today", Date: testNow.Add(-2 * time.Hour)},
		{ID: "c", Title: "FOMC", Date: testNow.Add(90 * time.Minute)},
		{ID: "d", Title: "Next week", Date: testNow.AddDate(0, 0, 7)},
	}}, testNow, "e1")

	_, body := f.do(t, http.MethodGet, "/api/events", "")
	assert.Len(t, body["data"], 4)

	_, body = f.do(t, http.MethodGet, "/api/calendar/weekly", "")
	weekly := body["data"].([]interface{})
	require.Len(t, weekly, 2)
	assert.Equal(t, "b", weekly[0].(map[string]interface{})["id"])

	_, body = f.do(t, http.MethodGet, "/api/events/next", "")
	assert.Equal(t, "c", body["data"].(map[string]interface{})["id"])
	assert.EqualValues(t, 5400, body["countdownSeconds"])
}

func TestAnalyzeReturnsVerdict(t *testing.T) {
	f := newFixture(t, Options{})
	f.analyzer.result = &models.SurpriseAnalysis{Verdict: models.VerdictBullishSurprise, Confidence: models.ConfidenceHigh}
	f.analyzer.state = models.StateAnalyzed

	rec, body := f.do(t, http.MethodPost, "/api/analyze-market-surprise",
		`{"headline":" US  CPI ","economicData":{"actual":"3.2%","forecast":3.0},"timestamp":"2025-03-05T13:30:00Z","retry":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "analyzed", body["state"])
	assert.Equal(t, "BullishSurprise", body["analysis"].(map[string]interface{})["verdict"])

	require.Len(t, f.analyzer.items, 1)
	item := f.analyzer.items[0]
	assert.Equal(t, "US CPI", item.Headline)
	assert.InDelta(t, 3.2, *item.EconomicData.Actual, 1e-9)
	assert.True(t, f.analyzer.retry[0])
}

func TestAnalyzeErrorsCarryState(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		state  models.AnalysisState
		status int
		code   string
	}{
		{
			name:   "missing data",
			err:    models.NewSourceError(models.KindMissingData, "analysis", "", usecase.ErrMissingData),
			state:  models.StateUnanalyzed,
			status: http.StatusUnprocessableEntity,
			code:   "ERR_MISSING_DATA",
		},
		{
			name:   "ai failure",
			err:    models.NewSourceError(models.KindAIServiceError, "analysis", "AI service timed out", nil),
			state:  models.StateFailed,
			status: http.StatusBadGateway,
			code:   "ERR_AI_SERVICE",
		},
		{
			name:   "wait abandoned",
			err:    context.DeadlineExceeded,
			state:  models.StateAnalyzing,
			status: http.StatusGatewayTimeout,
			code:   "ERR_TIMEOUT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{})
			f.analyzer.err = tt.err
			f.analyzer.state = tt.state

			rec, body := f.do(t, http.MethodPost, "/api/financial-news/analyze", `{"headline":"NFP"}`)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, string(tt.state), body["state"])
			assert.Equal(t, tt.code, body["code"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestAnalyzeValidatesBody(t *testing.T) {
	f := newFixture(t, Options{})
	rec, body := f.do(t, http.MethodPost, "/api/analyze-market-surprise", `{"headline":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ERR_VALIDATION", body["code"])

	rec, _ = f.do(t, http.MethodPost, "/api/analyze-market-surprise", `{"headline":"x","timestamp":"yesterday-ish"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.analyzer.items)
}

func TestAnalyzeIsRateLimitedPerClient(t *testing.T) {
	f := newFixture(t, Options{AnalyzeLimiter: ratelimit.New(0.001, 1)})
	f.analyzer.result = &models.SurpriseAnalysis{Verdict: models.VerdictNeutral}

	rec, _ := f.do(t, http.MethodPost, "/api/analyze-market-surprise", `{"headline":"x"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body := f.do(t, http.MethodPost, "/api/analyze-market-surprise", `{"headline":"x"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "ERR_RATE_LIMITED", body["code"])
}

func TestRateProbabilitiesMarksStaleBanks(t *testing.T) {
	f := newFixture(t, Options{RatesInterval: 4 * time.Hour, StaleGrace: 10 * time.Minute})
	f.snaps.Rates.Swap(&models.RatesSnapshot{Banks: map[string]models.RateProbabilitySnapshot{
		"FED": {BankCode: "FED", IsAvailable: true, LastUpdated: testNow.Add(-time.Hour)},
		"BOJ": {BankCode: "BOJ", IsAvailable: false, LastUpdated: testNow.Add(-5 * time.Hour)},
	}}, testNow, "r1")

	rec, body := f.do(t, http.MethodGet, "/api/interest-rates/probabilities", "")
	require.Equal(t, http.StatusOK, rec.Code)
	banks := body["data"].(map[string]interface{})
	assert.Equal(t, false, banks["FED"].(map[string]interface{})["isStale"])
	assert.Equal(t, true, banks["BOJ"].(map[string]interface{})["isStale"])

	// The published snapshot itself is untouched.
	assert.False(t, f.snaps.Rates.Value().Banks["BOJ"].IsStale)
}

func TestRateHistory(t *testing.T) {
	f := newFixture(t, Options{})
	f.history.refs = []models.RateSnapshotRef{{BankCode: "FED", CurrentRate: 4.5}}

	rec, body := f.do(t, http.MethodGet, "/api/interest-rates/history?bank=fed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["data"], 1)
	assert.Equal(t, "FED", f.history.bank)
	assert.Equal(t, 30, f.history.days)

	rec, _ = f.do(t, http.MethodGet, "/api/interest-rates/history?bank=FED&days=900", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.history.err = models.NewSourceError(models.KindUpstreamUnavailable, "clickhouse", "", errors.New("down"))
	rec, _ = f.do(t, http.MethodGet, "/api/interest-rates/history?bank=FED", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHealthFlagsDegradedFamilies(t *testing.T) {
	f := newFixture(t, Options{})
	f.refresh.statuses = []scheduler.Status{
		{Family: scheduler.FamilyCurrency, LastUpdated: testNow},
		{Family: scheduler.FamilyNews, LastUpdated: testNow, LastError: &scheduler.Failure{Kind: models.KindTimeout}},
	}

	_, body := f.do(t, http.MethodGet, "/api/health", "")
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "degraded", data["status"])
	families := data["families"].([]interface{})
	require.Len(t, families, 2)
	assert.Nil(t, families[0].(map[string]interface{})["message"])
	assert.Equal(t, "News source temporarily unavailable", families[1].(map[string]interface{})["message"])
}

func TestToAppErrorMapping(t *testing.T) {
	tests := map[models.ErrorKind]int{
		models.KindTimeout:             http.StatusGatewayTimeout,
		models.KindUpstreamUnavailable: http.StatusBadGateway,
		models.KindParseError:          http.StatusBadGateway,
		models.KindMissingData:         http.StatusUnprocessableEntity,
		models.KindAIServiceError:      http.StatusBadGateway,
		models.KindUnavailable:         http.StatusServiceUnavailable,
	}
	for kind, status := range tests {
		appErr := toAppError(models.NewSourceError(kind, "x", "reason", nil))
		assert.Equal(t, status, appErr.Status, kind)
		assert.Equal(t, "reason", appErr.Message)
	}
	assert.Equal(t, http.StatusInternalServerError, toAppError(errors.New("boom")).Status)
}
