package config

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"go.uber.org/multierr"

	"scalar-proxy-go/internal/model"
)

// cliWithPath returns a CLI struct pointing at the given config file.
func cliWithPath(path string) *CLI {
	return &CLI{Config: path}
}

// writeConfig writes data to a config.toml in a fresh temp dir and returns its path.
func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "127.0.0.1"
port = 9000
body_limit = "5MB"

[scalar]
base_url = "https://api.example.com"
proxy_path = "/docs-proxy"
doc_path = "/reference"
api_spec_path = "/v1/openapi.json"

[upstream]
timeout_seconds = 60
idle_connections = 50

[log]
level = "debug"
format = "text"
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9000)
	}
	if got := cfg.Server.BodyLimitBytes(); got != 5_000_000 {
		t.Errorf("Server.BodyLimitBytes() = %d, want %d", got, 5_000_000)
	}
	if cfg.Upstream.TimeoutSeconds != 60 {
		t.Errorf("Upstream.TimeoutSeconds = %d, want %d", cfg.Upstream.TimeoutSeconds, 60)
	}
	if got := cfg.Scalar.SpecURL(); got != "https://api.example.com/v1/openapi.json" {
		t.Errorf("Scalar.SpecURL() = %q, want %q", got, "https://api.example.com/v1/openapi.json")
	}
	if got := cfg.Scalar.ProxyURL(); got != "https://api.example.com/docs-proxy" {
		t.Errorf("Scalar.ProxyURL() = %q, want %q", got, "https://api.example.com/docs-proxy")
	}
	if got := cfg.Scalar.DocURL(); got != "https://api.example.com/reference" {
		t.Errorf("Scalar.DocURL() = %q, want %q", got, "https://api.example.com/reference")
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
[scalar]
base_url = "https://api.example.com/"
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"Server.Host", cfg.Server.Host, "0.0.0.0"},
		{"Server.Port", cfg.Server.Port, 8000},
		{"Server.BodyLimitBytes", cfg.Server.BodyLimitBytes(), uint64(10_000_000)},
		{"Scalar.ProxyPath", cfg.Scalar.ProxyPath, "/scalar/proxy"},
		{"Scalar.DocPath", cfg.Scalar.DocPath, "/docs"},
		{"Scalar.APISpecPath", cfg.Scalar.APISpecPath, "/openapi.json"},
		{"Scalar.SpecURL", cfg.Scalar.SpecURL(), "https://api.example.com/openapi.json"},
		{"Upstream.TimeoutSeconds", cfg.Upstream.TimeoutSeconds, 30},
		{"Upstream.IdleConnections", cfg.Upstream.IdleConnections, 100},
		{"Log.Level", cfg.Log.Level, "info"},
		{"Log.Format", cfg.Log.Format, "json"},
		{"Metrics.Path", cfg.Metrics.Path, "/metrics"},
		{"Tracing.Rate", cfg.Tracing.Rate(), 1.0},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoad_BaseURLSchemePrefixed(t *testing.T) {
	path := writeConfig(t, `
[scalar]
base_url = "localhost:3000"
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Scalar.BaseURL != "http://localhost:3000" {
		t.Errorf("Scalar.BaseURL = %q, want %q", cfg.Scalar.BaseURL, "http://localhost:3000")
	}
	if got := cfg.Scalar.ProxyURL(); got != "http://localhost:3000/scalar/proxy" {
		t.Errorf("Scalar.ProxyURL() = %q, want %q", got, "http://localhost:3000/scalar/proxy")
	}
}

func TestLoad_MissingBaseURL(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9000
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for missing scalar.base_url, got nil")
	}

	var e *model.Error
	if !errors.As(err, &e) {
		t.Fatalf("error = %v, want *model.Error in chain", err)
	}
	if e.Code != model.CodeMissingRequiredConfig {
		t.Errorf("code = %q, want %q", e.Code, model.CodeMissingRequiredConfig)
	}
}

func TestLoad_InvalidAPISpecURL(t *testing.T) {
	path := writeConfig(t, `
[scalar]
base_url = "https://api.example.com"
api_spec_url = "/relative/openapi.json"
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for relative api_spec_url, got nil")
	}
	if !strings.Contains(err.Error(), model.CodeInvalidURL) {
		t.Errorf("error = %q, want mention of %s", err, model.CodeInvalidURL)
	}
}

func TestLoad_APISpecURLOverride(t *testing.T) {
	path := writeConfig(t, `
[scalar]
base_url = "http://localhost:3000"
api_spec_url = "https://petstore.example.com/v3/openapi.json"
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	pc, err := cfg.ProxyConfig()
	if err != nil {
		t.Fatalf("ProxyConfig() error = %v", err)
	}
	if got := pc.APISpecURL.String(); got != "https://petstore.example.com/v3/openapi.json" {
		t.Errorf("APISpecURL = %q, want override", got)
	}
	if pc.BaseURL == nil || pc.BaseURL.Host != "localhost:3000" {
		t.Errorf("BaseURL = %v, want localhost:3000", pc.BaseURL)
	}
}

func TestLoad_InvalidPaths(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"proxy path without slash", "proxy_path", "scalar/proxy"},
		{"doc path with space", "doc_path", "/my docs"},
		{"spec path with query", "api_spec_path", "/openapi.json?v=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, `
[scalar]
base_url = "https://api.example.com"
`+tt.key+` = "`+tt.val+`"
`)
			_, err := Load(cliWithPath(path))
			if err == nil {
				t.Fatalf("Load() expected error for %s=%q, got nil", tt.key, tt.val)
			}
			if !strings.Contains(err.Error(), "scalar."+tt.key) {
				t.Errorf("error = %q, want mention of scalar.%s", err, tt.key)
			}
		})
	}
}

func TestLoad_RouteConflicts(t *testing.T) {
	tests := []struct {
		name  string
		extra string
	}{
		{"doc under proxy", `doc_path = "/scalar/proxy/docs"`},
		{"doc equals healthz", `doc_path = "/healthz"`},
		{"proxy equals status", `proxy_path = "/scalar/status"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, `
[scalar]
base_url = "https://api.example.com"
`+tt.extra+`
`)
			_, err := Load(cliWithPath(path))
			if err == nil {
				t.Fatal("Load() expected route conflict error, got nil")
			}
			if !strings.Contains(err.Error(), "conflicts") {
				t.Errorf("error = %q, want mention of conflict", err)
			}
		})
	}
}

func TestLoad_CollectsAllErrors(t *testing.T) {
	path := writeConfig(t, `
[server]
port = -1
body_limit = "lots"

[log]
level = "verbose"
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error, got nil")
	}
	if n := len(multierr.Errors(errors.Unwrap(err))); n < 4 {
		t.Errorf("got %d errors, want at least 4: %v", n, err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(cliWithPath("/nonexistent/config.toml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
}

func TestLoad_CLIOverrides(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "127.0.0.1"
port = 9000

[scalar]
base_url = "https://api.example.com"

[log]
level = "info"
`)

	cli := &CLI{
		Config:   path,
		Host:     "0.0.0.0",
		Port:     8080,
		BaseURL:  "https://other.example.com",
		LogLevel: "warn",
		Debug:    "1",
	}

	cfg, err := Load(cli)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want %q (CLI override)", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want %d (CLI override)", cfg.Server.Port, 8080)
	}
	if cfg.Scalar.BaseURL != "https://other.example.com" {
		t.Errorf("Scalar.BaseURL = %q, want %q (CLI override)", cfg.Scalar.BaseURL, "https://other.example.com")
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q (CLI override)", cfg.Log.Level, "warn")
	}
	if !cfg.Log.Debug {
		t.Error("Log.Debug = false, want true (DEBUG=1)")
	}
}

func TestDebugEnabled(t *testing.T) {
	tests := []struct {
		val  string
		want bool
	}{
		{"true", true},
		{"1", true},
		{"", false},
		{"false", false},
		{"0", false},
		{"TRUE", false},
		{"yes", false},
	}

	for _, tt := range tests {
		t.Run(tt.val, func(t *testing.T) {
			if got := DebugEnabled(tt.val); got != tt.want {
				t.Errorf("DebugEnabled(%q) = %v, want %v", tt.val, got, tt.want)
			}
		})
	}
}

func TestLoad_RateLimitConfig_BadValue(t *testing.T) {
	path := writeConfig(t, `
[server.rate_limit]
enabled = true
requests_per_second = 0

[scalar]
base_url = "https://api.example.com"
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for rate_limit.enabled with rps=0, got nil")
	}
}

func TestLoad_TracingSampleRate(t *testing.T) {
	path := writeConfig(t, `
[scalar]
base_url = "https://api.example.com"

[tracing]
enabled = true
sample_rate = 1.5
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for sample_rate > 1, got nil")
	}
	if !strings.Contains(err.Error(), "tracing.sample_rate") {
		t.Errorf("error = %q, want mention of tracing.sample_rate", err)
	}
}

func TestLoad_TracingSampleRateZero(t *testing.T) {
	path := writeConfig(t, `
[scalar]
base_url = "https://api.example.com"

[tracing]
enabled = true
sample_rate = 0
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.Tracing.Rate(); got != 0 {
		t.Errorf("Tracing.Rate() = %v, want 0", got)
	}
}

func TestTracingConfig_RateUnset(t *testing.T) {
	if got := (TracingConfig{}).Rate(); got != 1 {
		t.Errorf("Rate() = %v, want 1", got)
	}
}

func TestLoad_MetricsPathConflictsWithProxy(t *testing.T) {
	path := writeConfig(t, `
[scalar]
base_url = "https://api.example.com"

[metrics]
enabled = true
path = "/scalar/proxy/metrics"
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for metrics.path under proxy_path, got nil")
	}
	if !strings.Contains(err.Error(), "metrics.path") {
		t.Errorf("error = %q, want mention of metrics.path", err)
	}
}

func TestLoad_MetricsDisabledSkipsPathValidation(t *testing.T) {
	path := writeConfig(t, `
[scalar]
base_url = "https://api.example.com"

[metrics]
enabled = false
path = "bad-no-slash"
`)

	if _, err := Load(cliWithPath(path)); err != nil {
		t.Fatalf("Load() error = %v; disabled metrics should skip path validation", err)
	}
}

func TestWarnPermissions_Loose(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file permissions not meaningful on windows")
	}
	path := writeConfig(t, "")
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{filePath: path}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if !strings.Contains(buf.String(), "readable by group/others") {
		t.Errorf("expected permission warning, got %q", buf.String())
	}
}

func TestWarnPermissions_Strict(t *testing.T) {
	path := writeConfig(t, "")

	cfg := &Config{filePath: path}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if buf.Len() != 0 {
		t.Errorf("expected no warning for 0600 file, got %q", buf.String())
	}
}

func TestFindConfigInPaths_Priority(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.toml")
	second := filepath.Join(dir, "second.toml")
	for _, p := range []string{first, second} {
		if err := os.WriteFile(p, nil, 0o600); err != nil {
			t.Fatal(err)
		}
	}

	if got := findConfigInPaths([]string{first, second}); got != first {
		t.Errorf("findConfigInPaths() = %q, want %q", got, first)
	}
	if got := findConfigInPaths([]string{filepath.Join(dir, "missing.toml")}); got != "" {
		t.Errorf("findConfigInPaths() = %q, want empty", got)
	}
}

func TestServerConfig_Addr(t *testing.T) {
	sc := &ServerConfig{Host: "127.0.0.1", Port: 3000}
	want := "127.0.0.1:3000"
	if got := sc.Addr(); got != want {
		t.Errorf("Addr() = %q, want %q", got, want)
	}
}
