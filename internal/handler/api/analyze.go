package api

import (
	"context"
	"errors"
	"net/http"

	"MarketPulse/internal/domain/models"
	smetrics "MarketPulse/internal/service/metrics"
	xhttp "MarketPulse/pkg/http"
	xlogger "MarketPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

type analyzeResponse struct {
	Success  bool                     `json:"success"`
	Analysis *models.SurpriseAnalysis `json:"analysis,omitempty"`
	Error    string                   `json:"error,omitempty"`
	Code     string                   `json:"code,omitempty"`
	State    models.AnalysisState     `json:"state"`
}

// Analyze classifies one economic print. Concurrent requests for the same
// print share one upstream call.
func (h *SignalsHandler) Analyze(c echo.Context) error {
	if lim := h.opts.AnalyzeLimiter; lim != nil && !lim.Allow(c.RealIP()) {
		smetrics.RateLimited.WithLabelValues("analyze").Inc()
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("Too many analysis requests, slow down"))
	}

	req := &models.AnalyzeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.ValidationErrorResponse(c, verr)
	}

	item, err := h.normalizer.AnalyzeRequest(req)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.opts.AnalyzeTimeout)
	defer cancel()

	analysis, err := h.analyzer.Analyze(ctx, item, req.Retry)
	state := h.analyzer.State(item.Identity())
	if err != nil {
		appErr := toAppError(err)
		if errors.Is(err, context.DeadlineExceeded) {
			appErr = xhttp.GatewayTimeoutError("ERR_TIMEOUT", "Analysis is still running, try again shortly")
		}
		if appErr.Status >= http.StatusInternalServerError && appErr.Status != http.StatusServiceUnavailable {
			h.logger.Warn("surprise analysis failed",
				xlogger.String("id", item.Identity().String()),
				xlogger.String("state", string(state)),
				xlogger.Error(err),
			)
		}
		return xhttp.JSONResponse(c, appErr.Status, analyzeResponse{
			Success: false,
			Error:   appErr.Message,
			Code:    appErr.Code,
			State:   state,
		})
	}

	return xhttp.JSONResponse(c, http.StatusOK, analyzeResponse{
		Success:  true,
		Analysis: analysis,
		State:    state,
	})
}
