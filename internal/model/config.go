package model

import (
	"net/http"
	"net/url"
	"strings"
)

// ProxyConfig is the process-wide, read-only proxy configuration.
// It is built once at startup and never mutated.
type ProxyConfig struct {
	APISpecURL *url.URL
	// BaseURL is nil when only the API spec origin may be forwarded to.
	BaseURL   *url.URL
	ProxyPath string
}

// NewProxyConfig validates and parses the proxy configuration.
func NewProxyConfig(apiSpecURL, baseURL, proxyPath string) (*ProxyConfig, error) {
	if apiSpecURL == "" {
		return nil, NewError(CodeMissingRequiredConfig, http.StatusInternalServerError, "apiSpecUrl is required")
	}
	spec, ok := ParseAbsoluteURL(apiSpecURL)
	if !ok {
		return nil, NewError(CodeInvalidURL, http.StatusInternalServerError, "apiSpecUrl must be a valid absolute URL")
	}

	pc := &ProxyConfig{
		APISpecURL: spec,
		ProxyPath:  strings.TrimRight(proxyPath, "/"),
	}

	if baseURL != "" {
		base, ok := ParseAbsoluteURL(baseURL)
		if !ok {
			return nil, NewError(CodeInvalidURL, http.StatusInternalServerError, "baseUrl must be a valid absolute URL")
		}
		pc.BaseURL = base
	}

	return pc, nil
}

// ParseAbsoluteURL parses raw and reports whether it is an absolute http(s) URL.
func ParseAbsoluteURL(raw string) (*url.URL, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, false
	}
	if u.Host == "" {
		return nil, false
	}
	return u, true
}

// Origin is the (scheme, host, port) triple of a URL.
type Origin struct {
	Scheme string
	Host   string
	Port   string
}

// OriginOf returns u's origin with scheme and host lowercased and
// the scheme's default port filled in.
func OriginOf(u *url.URL) Origin {
	scheme := strings.ToLower(u.Scheme)
	port := u.Port()
	if port == "" {
		switch scheme {
		case "http":
			port = "80"
		case "https":
			port = "443"
		}
	}
	return Origin{
		Scheme: scheme,
		Host:   strings.ToLower(u.Hostname()),
		Port:   port,
	}
}

func (o Origin) String() string {
	return o.Scheme + "://" + o.Host + ":" + o.Port
}
