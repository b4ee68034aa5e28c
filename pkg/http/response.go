package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// SuccessResponse writes {success:true, data}.
func SuccessResponse(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

// JSONResponse writes an arbitrary body. Callers are responsible for the
// success flag when they need extra top-level fields.
func JSONResponse(c echo.Context, status int, body interface{}) error {
	return c.JSON(status, body)
}

// ErrorResponse writes {success:false, error, code}.
func ErrorResponse(c echo.Context, status int, code, message string) error {
	return c.JSON(status, APIResponse{Success: false, Error: message, Code: code})
}

// ValidationErrorResponse writes a 400 with field-level details.
func ValidationErrorResponse(c echo.Context, errs []ValidationError) error {
	return c.JSON(http.StatusBadRequest, APIResponse{
		Success: false,
		Error:   "invalid request",
		Code:    "ERR_VALIDATION",
		Errors:  errs,
	})
}

// InternalServerErrorResponse writes a generic 500.
func InternalServerErrorResponse(c echo.Context) error {
	return ErrorResponse(c, http.StatusInternalServerError, "ERR_INTERNAL", "Something went wrong")
}

// AppErrorResponse writes application error response.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return ErrorResponse(c, appErr.Status, appErr.Code, appErr.Message)
	}
	return InternalServerErrorResponse(c)
}

// HTTPErrorHandler renders errors escaping handlers (including echo's own
// 404/405) in the response envelope.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		_ = ErrorResponse(c, he.Code, "ERR_HTTP", msg)
		return
	}
	_ = AppErrorResponse(c, err)
}
