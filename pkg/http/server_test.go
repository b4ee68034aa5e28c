package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"MarketPulse/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

type pingHandler struct{}

func (pingHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })
}

func preflight(s *Server, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set(echo.HeaderOrigin, origin)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func TestCORSAllowsConfiguredOrigins(t *testing.T) {
	s := NewServer(logger.Nop(), []Handler{pingHandler{}}, WithCORS("http://localhost:3000"), WithMetricsPath(""))

	rec := preflight(s, "http://localhost:3000")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))

	rec = preflight(s, "http://evil.example")
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestCORSDisabledWithoutOrigins(t *testing.T) {
	s := NewServer(logger.Nop(), []Handler{pingHandler{}}, WithCORS(), WithMetricsPath(""))

	rec := preflight(s, "http://localhost:3000")
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}
