package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"

	"scalar-proxy-go/internal/client"
	"scalar-proxy-go/internal/config"
	"scalar-proxy-go/internal/docs"
	"scalar-proxy-go/internal/handler"
	"scalar-proxy-go/internal/metrics"
	"scalar-proxy-go/internal/middleware"
	"scalar-proxy-go/internal/model"
	"scalar-proxy-go/internal/service"
	"scalar-proxy-go/internal/tracing"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("scalar-proxy"),
		kong.Description("Serves Scalar API docs and a same-origin request proxy for them."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	fx.New(
		fx.Provide(
			func() *config.CLI { return &cli },
			func() handler.Version { return handler.Version(version) },
			func() tracing.Version { return tracing.Version(version) },
			config.Load,
			newLogger,
			newMetrics,
			newEcho,
			newProxyConfig,
			newProxyService,
			newRenderer,
			client.NewUpstreamClient,
			tracing.NewProvider,
			handler.NewProxyHandler,
			handler.NewDocsHandler,
			handler.NewHealthHandler,
		),
		fx.Invoke(handler.RegisterRoutes, warnConfigPermissions, startTracing, startServer),
	).Run()
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if cfg.Log.Debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(h)
}

func newMetrics(cfg *config.Config) *metrics.Metrics {
	return metrics.New(
		cfg.Scalar.ProxyPath,
		cfg.Scalar.DocPath,
		config.HealthPath,
		config.StatusPath,
		cfg.Metrics.Path,
	)
}

func newEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Server.ReadTimeout = 30 * time.Second
	// Upstream calls are bounded by the client timeout; the write side is not.
	e.Server.WriteTimeout = 0
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second

	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLogger(logger))
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyLimitBytes())))
	e.Use(middleware.SecurityHeaders())

	if cfg.Server.RateLimit.Enabled {
		e.Use(middleware.RateLimiter(cfg.Server.RateLimit.RequestsPerSecond))
		logger.Info("rate limiter enabled", "rps", cfg.Server.RateLimit.RequestsPerSecond)
	}

	if cfg.Metrics.Enabled {
		e.Use(middleware.MetricsMiddleware(m))
	}

	return e
}

func newProxyConfig(cfg *config.Config) (*model.ProxyConfig, error) {
	return cfg.ProxyConfig()
}

func newProxyService(pc *model.ProxyConfig, c *client.UpstreamClient, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *service.ProxyService {
	return service.NewProxyService(pc, c, service.Options{ForwardPreflight: cfg.Scalar.ForwardPreflight}, logger, m)
}

func newRenderer(cfg *config.Config) *docs.Renderer {
	return &docs.Renderer{
		ProxyURL:       cfg.Scalar.ProxyURL(),
		APISpecURL:     cfg.Scalar.SpecURL(),
		CustomHTMLPath: cfg.Scalar.CustomHTMLPath,
	}
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}

func startTracing(lc fx.Lifecycle, p *tracing.Provider) {
	lc.Append(fx.Hook{
		OnStart: p.Start,
		OnStop:  p.Stop,
	})
}

func startServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Server.Addr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			logger.Info("starting server",
				"addr", addr,
				"docs", cfg.Scalar.DocURL(),
				"proxy", cfg.Scalar.ProxyURL(),
				"api_spec", cfg.Scalar.SpecURL(),
				"body_limit", humanize.Bytes(cfg.Server.BodyLimitBytes()),
			)
			go func() {
				if err := e.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down server")
			return e.Shutdown(ctx)
		},
	})
}
