// Package model defines shared types for the proxy.
package model

import (
	"context"
	"net/http"
	"net/url"
)

// InboundRequest is the read-only view of a client request handed to the proxy.
// URI is the path and query string exactly as received, mount prefix included.
type InboundRequest struct {
	Ctx    context.Context
	Method string
	URI    string
	Header http.Header
	// Body is nil, a string, a []byte, or a structured value that is
	// forwarded as JSON.
	Body any
}

// OutboundResult is what the proxy hands back to the host for writing.
type OutboundResult struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// TargetResolution is the resolved forward target for a single request.
type TargetResolution struct {
	Target     string
	URL        *url.URL
	Override   bool
	Authorized bool
}

// UpstreamResponse is a fully buffered upstream response.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}
