// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	toml "github.com/pelletier/go-toml/v2"
	"go.uber.org/multierr"

	"scalar-proxy-go/internal/model"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/scalar-proxy/config.toml",
	"configs/config.toml",
}

// pathPattern restricts route and spec paths to unreserved URL characters.
var pathPattern = regexp.MustCompile(`^/[A-Za-z0-9._~\-/]*$`)

// Reserved routes served by the proxy itself.
const (
	HealthPath = "/healthz"
	StatusPath = "/scalar/status"
)

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config   string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host     string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port     int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	BaseURL  string `kong:"help='Base URL of the documented API (overrides config).',env='SCALAR_BASE_URL'"`
	LogLevel string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	Debug    string `kong:"help='Enable verbose tracing when set to true or 1.',env='DEBUG'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Scalar   ScalarConfig   `toml:"scalar"`
	Upstream UpstreamConfig `toml:"upstream"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Tracing  TracingConfig  `toml:"tracing"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host      string          `toml:"host"`
	Port      int             `toml:"port"` // 0 means "use default" (8000); TOML cannot distinguish 0 from unset
	BodyLimit string          `toml:"body_limit"`
	RateLimit RateLimitConfig `toml:"rate_limit"`

	bodyLimitBytes uint64
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// ScalarConfig describes where the docs and the proxy are mounted and what they point at.
type ScalarConfig struct {
	BaseURL          string `toml:"base_url"`
	APISpecURL       string `toml:"api_spec_url"`
	ProxyPath        string `toml:"proxy_path"`
	DocPath          string `toml:"doc_path"`
	APISpecPath      string `toml:"api_spec_path"`
	CustomHTMLPath   string `toml:"custom_html_path"`
	ForwardPreflight bool   `toml:"forward_preflight"`
}

// UpstreamConfig holds upstream connection settings.
type UpstreamConfig struct {
	TimeoutSeconds  int `toml:"timeout_seconds"`
	IdleConnections int `toml:"idle_connections"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Debug  bool   `toml:"debug"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// TracingConfig holds OpenTelemetry export settings.
type TracingConfig struct {
	Enabled    bool    `toml:"enabled"`
	Endpoint   string  `toml:"endpoint"`
	Insecure   bool    `toml:"insecure"`
	// SampleRate is nil when unset; an explicit 0 disables sampling.
	SampleRate *float64 `toml:"sample_rate"`
}

// Rate returns the configured sample rate, 1 when unset.
func (c TracingConfig) Rate() float64 {
	if c.SampleRate == nil {
		return 1
	}
	return *c.SampleRate
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/scalar-proxy/config.toml then configs/config.toml.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path == "" {
		return nil, fmt.Errorf("config: no config file found (searched %v)", configSearchPaths)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.filePath = path
	cfg.applyCLI(cli)
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.BaseURL != "" {
		c.Scalar.BaseURL = cli.BaseURL
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
	if DebugEnabled(cli.Debug) {
		c.Log.Debug = true
	}
}

// DebugEnabled reports whether a debug toggle value switches tracing on.
func DebugEnabled(v string) bool {
	return v == "true" || v == "1"
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, TimeoutSeconds, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.BodyLimit == "" {
		c.Server.BodyLimit = "10MB"
	}
	if c.Scalar.BaseURL != "" && !strings.Contains(c.Scalar.BaseURL, "://") {
		c.Scalar.BaseURL = "http://" + c.Scalar.BaseURL
	}
	if c.Scalar.ProxyPath == "" {
		c.Scalar.ProxyPath = "/scalar/proxy"
	}
	if c.Scalar.DocPath == "" {
		c.Scalar.DocPath = "/docs"
	}
	if c.Scalar.APISpecPath == "" {
		c.Scalar.APISpecPath = "/openapi.json"
	}
	if c.Upstream.TimeoutSeconds == 0 {
		c.Upstream.TimeoutSeconds = 30
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Tracing.Endpoint == "" {
		c.Tracing.Endpoint = "localhost:4317"
	}
	if c.Tracing.SampleRate == nil {
		rate := 1.0
		c.Tracing.SampleRate = &rate
	}
}

// validate reports every configuration problem at once.
func (c *Config) validate() error {
	var errs error

	if c.Scalar.BaseURL == "" {
		errs = multierr.Append(errs, &model.Error{
			Code:    model.CodeMissingRequiredConfig,
			Message: "scalar.base_url is required",
		})
	} else if _, ok := model.ParseAbsoluteURL(c.Scalar.BaseURL); !ok {
		errs = multierr.Append(errs, &model.Error{
			Code:    model.CodeInvalidURL,
			Message: fmt.Sprintf("scalar.base_url is not a valid absolute URL; got %q", c.Scalar.BaseURL),
		})
	}
	if c.Scalar.APISpecURL != "" {
		if _, ok := model.ParseAbsoluteURL(c.Scalar.APISpecURL); !ok {
			errs = multierr.Append(errs, &model.Error{
				Code:    model.CodeInvalidURL,
				Message: fmt.Sprintf("scalar.api_spec_url is not a valid absolute URL; got %q", c.Scalar.APISpecURL),
			})
		}
	}

	paths := map[string]string{
		"scalar.proxy_path":    c.Scalar.ProxyPath,
		"scalar.doc_path":      c.Scalar.DocPath,
		"scalar.api_spec_path": c.Scalar.APISpecPath,
	}
	for name, p := range paths {
		if !pathPattern.MatchString(p) {
			errs = multierr.Append(errs, fmt.Errorf("%s must start with '/' and contain only [A-Za-z0-9._~-/]; got %q", name, p))
		}
	}
	errs = multierr.Append(errs, c.validateRoutes())

	if c.Scalar.CustomHTMLPath != "" {
		if info, err := os.Stat(c.Scalar.CustomHTMLPath); err == nil && info.IsDir() {
			errs = multierr.Append(errs, fmt.Errorf("scalar.custom_html_path must be a file; %q is a directory", c.Scalar.CustomHTMLPath))
		}
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = multierr.Append(errs, fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port))
	}
	if n, err := humanize.ParseBytes(c.Server.BodyLimit); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("server.body_limit is not a size: %w", err))
	} else {
		c.Server.bodyLimitBytes = n
	}
	if c.Upstream.TimeoutSeconds < 0 {
		errs = multierr.Append(errs, fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds))
	}
	if c.Upstream.IdleConnections < 0 {
		errs = multierr.Append(errs, fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections))
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond))
	}
	if r := c.Tracing.Rate(); r < 0 || r > 1 {
		errs = multierr.Append(errs, fmt.Errorf("tracing.sample_rate must be within 0–1; got %v", r))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = multierr.Append(errs, fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = multierr.Append(errs, fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format))
	}

	return errs
}

// validateRoutes rejects duplicate mount points and routes hidden under the
// proxy's wildcard.
func (c *Config) validateRoutes() error {
	routes := []struct{ name, path string }{
		{"scalar.doc_path", c.Scalar.DocPath},
		{"healthz", HealthPath},
		{"status", StatusPath},
	}
	if c.Metrics.Enabled {
		if c.Metrics.Path == "" || c.Metrics.Path[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", c.Metrics.Path)
		}
		routes = append(routes, struct{ name, path string }{"metrics.path", c.Metrics.Path})
	}

	var errs error
	proxy := strings.TrimRight(c.Scalar.ProxyPath, "/")
	for i, r := range routes {
		p := strings.TrimRight(r.path, "/")
		if p == proxy || strings.HasPrefix(p, proxy+"/") {
			errs = multierr.Append(errs, fmt.Errorf("%s %q conflicts with scalar.proxy_path %q", r.name, r.path, c.Scalar.ProxyPath))
		}
		for _, o := range routes[i+1:] {
			if p == strings.TrimRight(o.path, "/") {
				errs = multierr.Append(errs, fmt.Errorf("%s %q conflicts with %s %q", r.name, r.path, o.name, o.path))
			}
		}
	}
	return errs
}

// BodyLimitBytes returns the parsed server.body_limit.
func (c *ServerConfig) BodyLimitBytes() uint64 {
	return c.bodyLimitBytes
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SpecURL returns the absolute API spec URL: api_spec_url when set,
// otherwise base_url joined with api_spec_path.
func (c *ScalarConfig) SpecURL() string {
	if c.APISpecURL != "" {
		return c.APISpecURL
	}
	return joinURL(c.BaseURL, c.APISpecPath)
}

// ProxyURL returns the absolute URL the proxy is reachable at.
func (c *ScalarConfig) ProxyURL() string {
	return joinURL(c.BaseURL, c.ProxyPath)
}

// DocURL returns the absolute URL of the docs page.
func (c *ScalarConfig) DocURL() string {
	return joinURL(c.BaseURL, c.DocPath)
}

// ProxyConfig builds the immutable proxy configuration.
func (c *Config) ProxyConfig() (*model.ProxyConfig, error) {
	return model.NewProxyConfig(c.Scalar.SpecURL(), c.Scalar.BaseURL, c.Scalar.ProxyPath)
}

func joinURL(base, path string) string {
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
