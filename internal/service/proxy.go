// Package service implements the core proxy forwarding logic.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"

	"scalar-proxy-go/internal/metrics"
	"scalar-proxy-go/internal/model"
)

// Secrets in URLs embedded in error messages: userinfo passwords and
// common key/token query parameters.
var (
	userinfoPattern = regexp.MustCompile(`(://[^:/@\s"]+:)[^@/\s"]+@`)
	queryKeyPattern = regexp.MustCompile(`(?i)([?&](?:api_?key|access_token|token|key)=)[^&\s"]+`)
)

// Doer executes an outbound request and buffers the response.
type Doer interface {
	Do(req *http.Request) (*model.UpstreamResponse, error)
}

// Options tune the forwarding policy.
type Options struct {
	// ForwardPreflight sends OPTIONS requests upstream and relays the status
	// and headers. When false, preflights are answered locally.
	ForwardPreflight bool
}

// ProxyService resolves, authorizes and forwards proxied requests.
type ProxyService struct {
	cfg     *model.ProxyConfig
	guard   *OriginGuard
	client  Doer
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewProxyService creates a ProxyService. m may be nil.
func NewProxyService(pc *model.ProxyConfig, c Doer, opts Options, logger *slog.Logger, m *metrics.Metrics) *ProxyService {
	return &ProxyService{
		cfg:     pc,
		guard:   NewOriginGuard(pc),
		client:  c,
		opts:    opts,
		logger:  logger.With("component", "proxy_service"),
		metrics: m,
	}
}

// Handle runs the proxy pipeline for req. It never returns nil: every
// failure is converted into a result carrying a JSON error body.
func (s *ProxyService) Handle(req *model.InboundRequest) *model.OutboundResult {
	res, err := s.forward(req)
	if err != nil {
		return ErrorResult(err)
	}
	return res
}

func (s *ProxyService) forward(req *model.InboundRequest) (*model.OutboundResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	target, err := s.authorize(ResolveTarget(s.cfg, req.URI))
	if err != nil {
		return nil, err
	}

	s.logger.Debug("forwarding request",
		"method", req.Method,
		"uri", req.URI,
		"target", target.URL.Redacted(),
		"override", target.Override,
	)

	if req.Method == http.MethodOptions && !s.opts.ForwardPreflight {
		return &model.OutboundResult{
			StatusCode: http.StatusNoContent,
			Header:     buildResponseHeaders(nil),
		}, nil
	}

	upstreamReq, err := buildUpstreamRequest(req, target.URL)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(upstreamReq)
	if err != nil {
		level := slog.LevelError
		if errors.Is(err, context.Canceled) {
			level = slog.LevelDebug
		}
		s.logger.Log(upstreamReq.Context(), level, "upstream request failed",
			"err", redact(err.Error()),
			"method", req.Method,
			"target", target.URL.Redacted(),
		)
		return nil, upstreamError(err)
	}

	return translate(req.Method, resp), nil
}

// validate rejects requests the proxy cannot describe upstream.
func validate(req *model.InboundRequest) error {
	if req == nil || req.Method == "" || req.URI == "" {
		return model.NewError(model.CodeInvalidRequest, http.StatusBadRequest, "Request URL and method are required")
	}
	return nil
}

func (s *ProxyService) authorize(res model.TargetResolution) (model.TargetResolution, error) {
	res, err := s.guard.Authorize(res)
	if err != nil {
		if s.metrics != nil {
			s.metrics.OriginRejections.Inc()
		}
		s.logger.Warn("cross-origin target blocked", "target", redact(res.Target))
	}
	return res, err
}

// buildUpstreamRequest assembles the outbound request for an authorized target.
func buildUpstreamRequest(req *model.InboundRequest, target *url.URL) (*http.Request, error) {
	body, err := encodeBody(req.Method, req.Body)
	if err != nil {
		return nil, err
	}

	ctx := req.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	out, err := http.NewRequestWithContext(ctx, req.Method, target.String(), r)
	if err != nil {
		return nil, model.WrapError(model.CodeInvalidRequest, http.StatusBadRequest, "Invalid upstream request", err)
	}
	out.Header = buildRequestHeaders(req.Header, target.Host)
	out.Host = target.Host
	return out, nil
}

// encodeBody returns the bytes to send upstream, or nil for no body.
// GET and HEAD never carry a body. Strings and byte slices are sent as-is;
// anything else is encoded as JSON.
func encodeBody(method string, body any) ([]byte, error) {
	if method == http.MethodGet || method == http.MethodHead {
		return nil, nil
	}
	switch b := body.(type) {
	case nil:
		return nil, nil
	case string:
		if b == "" {
			return nil, nil
		}
		return []byte(b), nil
	case []byte:
		if len(b) == 0 {
			return nil, nil
		}
		return b, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, model.WrapError(model.CodeInvalidRequest, http.StatusBadRequest, "Request body is not JSON-serializable", err)
		}
		return data, nil
	}
}

// translate maps an upstream response onto the result written to the client.
func translate(method string, resp *model.UpstreamResponse) *model.OutboundResult {
	res := &model.OutboundResult{
		StatusCode: resp.StatusCode,
		Header:     buildResponseHeaders(resp.Header),
	}
	if method != http.MethodOptions {
		res.Body = resp.Body
	}
	return res
}

// upstreamError classifies a failed upstream call as a PROXY_ERROR.
func upstreamError(err error) error {
	detail := "upstream request failed"

	var dnsErr *net.DNSError
	var urlErr *url.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		detail = "upstream request timed out"
	case errors.Is(err, context.Canceled):
		detail = "client disconnected"
	case errors.As(err, &dnsErr):
		detail = "upstream host unreachable"
	case errors.As(err, &urlErr) && urlErr.Timeout():
		detail = "upstream request timed out"
	case errors.As(err, &urlErr):
		detail = "upstream connection failed"
	}

	e := model.WrapError(model.CodeProxyError, http.StatusBadGateway, "Proxy error", err)
	e.Details = fmt.Sprintf("%s: %s", detail, redact(err.Error()))
	return e
}

// redact strips credentials from URLs embedded in s.
func redact(s string) string {
	s = userinfoPattern.ReplaceAllString(s, "${1}[REDACTED]@")
	return queryKeyPattern.ReplaceAllString(s, "${1}[REDACTED]")
}

// ErrorResult renders err as a JSON error result.
func ErrorResult(err error) *model.OutboundResult {
	e := model.AsError(err)
	status := e.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	body, mErr := json.Marshal(e)
	if mErr != nil {
		body = []byte(`{"message":"Internal server error","code":"INTERNAL_SERVER_ERROR"}`)
	}

	h := buildResponseHeaders(nil)
	h.Set("Content-Type", "application/json")
	return &model.OutboundResult{
		StatusCode: status,
		Header:     h,
		Body:       body,
	}
}
