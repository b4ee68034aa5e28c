package api

import (
	"net/http"
	"strings"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/scheduler"
	"MarketPulse/internal/usecase"
	xhttp "MarketPulse/pkg/http"
	xlogger "MarketPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

type currencyStrengthResponse struct {
	Success     bool                           `json:"success"`
	Data        []models.CurrencyStrengthEntry `json:"data"`
	LastUpdated time.Time                      `json:"lastUpdated"`
	FilledPairs []string                       `json:"filledPairs,omitempty"`
}

type newsResponse struct {
	Success     bool              `json:"success"`
	Data        []models.NewsItem `json:"data"`
	LastUpdated *time.Time        `json:"lastUpdated"`
	Source      string            `json:"source"`
	Error       string            `json:"error,omitempty"`
}

type nextEventResponse struct {
	Success          bool          `json:"success"`
	Data             *models.Event `json:"data"`
	CountdownSeconds int64         `json:"countdownSeconds"`
}

type familyHealth struct {
	scheduler.Status
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status   string         `json:"status"`
	Families []familyHealth `json:"families"`
}

// Currency answers with the bare strength array. Older dashboard builds
// read the array directly, so only the no-data case is enveloped.
func (h *SignalsHandler) Currency(c echo.Context) error {
	v := h.snaps.Currency.Value()
	if v == nil {
		return h.unavailable(c, h.snaps.Currency.LastFailure(), "Currency strength is not available yet")
	}
	return xhttp.JSONResponse(c, http.StatusOK, v.Entries)
}

func (h *SignalsHandler) CurrencyStrength(c echo.Context) error {
	v := h.snaps.Currency.Value()
	if v == nil {
		return h.unavailable(c, h.snaps.Currency.LastFailure(), "Currency strength is not available yet")
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=30")
	return xhttp.JSONResponse(c, http.StatusOK, currencyStrengthResponse{
		Success:     true,
		Data:        v.Entries,
		LastUpdated: v.SourceUpdatedAt,
		FilledPairs: v.FilledPairs,
	})
}

func (h *SignalsHandler) calendarEvents() []models.Event {
	if v := h.snaps.Calendar.Value(); v != nil {
		return v.Events
	}
	return nil
}

func (h *SignalsHandler) Events(c echo.Context) error {
	if h.snaps.Calendar.Load() == nil {
		return h.unavailable(c, h.snaps.Calendar.LastFailure(), "Economic calendar is not available yet")
	}
	events := h.calendarEvents()
	if events == nil {
		events = []models.Event{}
	}
	return xhttp.SuccessResponse(c, events)
}

func (h *SignalsHandler) WeeklyCalendar(c echo.Context) error {
	if h.snaps.Calendar.Load() == nil {
		return h.unavailable(c, h.snaps.Calendar.LastFailure(), "Economic calendar is not available yet")
	}
	return xhttp.SuccessResponse(c, usecase.EventsInWeek(h.calendarEvents(), h.now()))
}

func (h *SignalsHandler) NextEvent(c echo.Context) error {
	now := h.now()
	ev := usecase.NextEvent(h.calendarEvents(), now)
	resp := nextEventResponse{Success: true, Data: ev}
	if ev != nil {
		resp.CountdownSeconds = int64(ev.Date.Sub(now).Seconds())
	}
	return xhttp.JSONResponse(c, http.StatusOK, resp)
}

func (h *SignalsHandler) News(c echo.Context) error {
	snap := h.snaps.News.Load()
	failure := h.snaps.News.LastFailure()

	resp := newsResponse{Success: true, Data: []models.NewsItem{}, Source: "live"}
	if failure != nil {
		resp.Source = "failed"
		resp.Error = models.UserMessage(scheduler.FamilyNews, failure.Kind)
	}
	if snap == nil {
		resp.Success = false
		if failure == nil {
			resp.Source = "pending"
			resp.Error = "News feed is warming up"
		}
		return xhttp.JSONResponse(c, http.StatusServiceUnavailable, resp)
	}

	updated := snap.UpdatedAt
	resp.LastUpdated = &updated
	if snap.Value != nil && snap.Value.Items != nil {
		resp.Data = snap.Value.Items
	}
	return xhttp.JSONResponse(c, http.StatusOK, resp)
}

func (h *SignalsHandler) RefreshNews(c echo.Context) error {
	triggered := h.refresher.Trigger(c.Request().Context(), scheduler.FamilyNews)
	h.logger.Info("news refresh requested", xlogger.Bool("triggered", triggered), xlogger.String("ip", c.RealIP()))
	return xhttp.JSONResponse(c, http.StatusAccepted, map[string]interface{}{
		"success":   true,
		"triggered": triggered,
	})
}

func (h *SignalsHandler) RateProbabilities(c echo.Context) error {
	v := h.snaps.Rates.Value()
	if v == nil {
		return h.unavailable(c, h.snaps.Rates.LastFailure(), "Rate probabilities are not available yet")
	}
	served := usecase.WithStaleness(v, h.now(), h.opts.RatesInterval, h.opts.StaleGrace)
	return xhttp.SuccessResponse(c, served.Banks)
}

func (h *SignalsHandler) RateHistory(c echo.Context) error {
	req := &models.RateHistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.ValidationErrorResponse(c, verr)
	}

	refs, err := h.history.History(c.Request().Context(), strings.ToUpper(req.Bank), req.Days)
	if err != nil {
		h.logger.Error("rate history failed", xlogger.String("bank", req.Bank), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	if refs == nil {
		refs = []models.RateSnapshotRef{}
	}
	return xhttp.SuccessResponse(c, refs)
}

func (h *SignalsHandler) Health(c echo.Context) error {
	statuses := h.refresher.Status()
	resp := healthResponse{Status: "ok", Families: make([]familyHealth, 0, len(statuses))}
	for _, st := range statuses {
		fh := familyHealth{Status: st}
		if st.LastError != nil {
			fh.Message = models.UserMessage(st.Family, st.LastError.Kind)
			resp.Status = "degraded"
		} else if st.Stale {
			fh.Message = models.UserMessage(st.Family, models.KindUnavailable)
			resp.Status = "degraded"
		}
		resp.Families = append(resp.Families, fh)
	}
	return xhttp.SuccessResponse(c, resp)
}

// unavailable answers 503 for a family with nothing published yet.
func (h *SignalsHandler) unavailable(c echo.Context, failure *scheduler.Failure, msg string) error {
	if failure != nil {
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("ERR_"+strings.ToUpper(string(failure.Kind)), msg))
	}
	return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("ERR_WARMING_UP", msg))
}
