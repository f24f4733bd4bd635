package service

import (
	"net/url"
	"strings"

	"scalar-proxy-go/internal/model"
)

// OverrideParam is the query parameter that replaces the default forward target.
const OverrideParam = "scalar_url"

// ResolveTarget computes the URL a request should be forwarded to.
//
// A well-formed absolute scalar_url wins. Anything else falls back to the API
// spec URL with the request path (mount prefix removed) and query appended
// verbatim. The result is not yet authorized.
func ResolveTarget(pc *model.ProxyConfig, uri string) model.TargetResolution {
	path, rawQuery, _ := strings.Cut(uri, "?")

	if rawQuery != "" {
		q, _ := url.ParseQuery(rawQuery)
		if raw := q.Get(OverrideParam); raw != "" {
			if u, ok := model.ParseAbsoluteURL(raw); ok {
				return model.TargetResolution{Target: raw, URL: u, Override: true}
			}
		}
	}

	target := strings.TrimRight(pc.APISpecURL.String(), "/") + stripMount(path, pc.ProxyPath)
	if rawQuery != "" {
		target += "?" + rawQuery
	}

	res := model.TargetResolution{Target: target}
	if u, ok := model.ParseAbsoluteURL(target); ok {
		res.URL = u
	}
	return res
}

// stripMount removes the proxy mount prefix from path.
func stripMount(path, mount string) string {
	if mount == "" {
		return path
	}
	if path == mount {
		return ""
	}
	if rest, ok := strings.CutPrefix(path, mount+"/"); ok {
		return "/" + rest
	}
	return path
}
