package service

import (
	"net/http"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// CORS headers set on every proxied response.
var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Methods": "GET,POST,PUT,PATCH,DELETE,OPTIONS,HEAD",
	"Access-Control-Allow-Headers": "*",
}

// droppedResponseHeaders are connection-management headers and framing
// headers that no longer describe the re-buffered body.
var droppedResponseHeaders = map[string]bool{
	"Connection":        true,
	"Keep-Alive":        true,
	"Transfer-Encoding": true,
	"Te":                true,
	"Trailer":           true,
	"Upgrade":           true,
	"Host":              true,
	"Content-Encoding":  true,
	"Content-Length":    true,
}

// buildRequestHeaders copies every non-empty inbound header, joining
// multiple values with ", ", and pins Host to the target host.
func buildRequestHeaders(src http.Header, host string) http.Header {
	dst := make(http.Header, len(src)+1)
	for key, vals := range src {
		joined := strings.Join(nonEmpty(vals), ", ")
		if joined == "" {
			continue
		}
		dst.Set(key, joined)
	}
	// The transport negotiates and decodes compression itself.
	dst.Del("Accept-Encoding")
	dst.Set("Host", host)
	return dst
}

func nonEmpty(vals []string) []string {
	out := vals[:0:0]
	for _, v := range vals {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// buildResponseHeaders sets the CORS headers, then copies upstream headers
// that are neither hop-by-hop, stale framing, nor CORS.
func buildResponseHeaders(upstream http.Header) http.Header {
	dst := make(http.Header, len(corsHeaders)+len(upstream))
	for k, v := range corsHeaders {
		dst.Set(k, v)
	}

	for key, vals := range upstream {
		ck := http.CanonicalHeaderKey(key)
		if droppedResponseHeaders[ck] {
			continue
		}
		if _, ok := corsHeaders[ck]; ok {
			continue
		}
		if httpguts.HeaderValuesContainsToken(upstream["Connection"], ck) {
			continue
		}
		for _, v := range vals {
			dst.Add(ck, v)
		}
	}
	return dst
}
