package api

import (
	"context"
	"errors"

	"MarketPulse/internal/domain/models"
	xhttp "MarketPulse/pkg/http"
)

// toAppError maps the domain error taxonomy onto HTTP statuses.
func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return xhttp.GatewayTimeoutError("ERR_TIMEOUT", "request timed out").WithError(err)
	}

	kind := models.KindOf(err)
	msg := reasonOf(err)
	switch kind {
	case models.KindTimeout:
		return xhttp.GatewayTimeoutError("ERR_TIMEOUT", msg).WithError(err)
	case models.KindUpstreamUnavailable:
		return xhttp.BadGatewayError("ERR_UPSTREAM", msg).WithError(err)
	case models.KindParseError:
		return xhttp.BadGatewayError("ERR_PARSE", msg).WithError(err)
	case models.KindMissingData:
		return xhttp.UnprocessableError("ERR_MISSING_DATA", msg).WithError(err)
	case models.KindAIServiceError:
		return xhttp.BadGatewayError("ERR_AI_SERVICE", msg).WithError(err)
	case models.KindUnavailable:
		return xhttp.ServiceUnavailableError("ERR_UNAVAILABLE", msg).WithError(err)
	}
	return xhttp.InternalError("Something went wrong").WithError(err)
}

func reasonOf(err error) string {
	var se *models.SourceError
	if errors.As(err, &se) {
		switch {
		case se.Reason != "":
			return se.Reason
		case se.Err != nil:
			return se.Err.Error()
		}
		return string(se.Kind)
	}
	return err.Error()
}
