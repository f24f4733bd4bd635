package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"scalar-proxy-go/internal/model"
)

var errRateLimited = model.NewError(model.CodeRateLimited, http.StatusTooManyRequests, "Too many requests")

// RateLimiter limits each client IP to rps requests per second and answers
// rejected requests with the proxy's JSON error body.
func RateLimiter(rps float64) echo.MiddlewareFunc {
	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Store: echomw.NewRateLimiterMemoryStore(rate.Limit(rps)),
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return c.JSON(errRateLimited.Status, errRateLimited)
		},
		ErrorHandler: func(c echo.Context, _ error) error {
			return c.JSON(http.StatusForbidden, model.NewError(model.CodeInvalidRequest, http.StatusForbidden, "Client identity unavailable"))
		},
	})
}
