package middleware

import (
	"github.com/labstack/echo/v4"
	"golang.org/x/net/http/httpguts"
)

// hopByHopHeaders apply to a single connection and are never forwarded.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// SecurityHeaders returns an Echo middleware that strips hop-by-hop headers
// from the inbound request and adds security headers to the response.
// The docs page may be framed by its own origin only.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Request().Header

			// Headers named in Connection are hop-by-hop too.
			if conn := h["Connection"]; len(conn) > 0 {
				for name := range h {
					if httpguts.HeaderValuesContainsToken(conn, name) {
						h.Del(name)
					}
				}
			}
			for _, name := range hopByHopHeaders {
				h.Del(name)
			}

			res := c.Response().Header()
			res.Set("X-Content-Type-Options", "nosniff")
			res.Set("X-Frame-Options", "SAMEORIGIN")
			res.Set("Referrer-Policy", "no-referrer")

			return next(c)
		}
	}
}
