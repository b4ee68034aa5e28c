package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"MarketPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Recover turns a handler panic into a 500 envelope and logs the stack.
func Recover(l *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				perr, ok := r.(error)
				if !ok {
					perr = fmt.Errorf("%v", r)
				}
				l.Error("handler panic",
					logger.Error(perr),
					logger.String("path", c.Path()),
					logger.String("stack", string(debug.Stack())),
				)
				if !c.Response().Committed {
					err = c.JSON(http.StatusInternalServerError, map[string]interface{}{
						"success": false,
						"error":   "Internal Server Error",
						"code":    "ERR_INTERNAL",
					})
				}
			}()
			return next(c)
		}
	}
}
