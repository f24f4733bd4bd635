package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"scalar-proxy-go/internal/config"
	"scalar-proxy-go/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, proxy *ProxyHandler, docs *DocsHandler, health *HealthHandler, m *metrics.Metrics) {
	e.GET(config.HealthPath, health.Healthz)
	e.GET(config.StatusPath, health.Status)

	e.GET(cfg.Scalar.DocPath, docs.Serve)

	e.Any(cfg.Scalar.ProxyPath, proxy.Handle)
	e.Any(cfg.Scalar.ProxyPath+"/*", proxy.Handle)

	if cfg.Metrics.Enabled {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}
}
