package service

import (
	"net/url"

	"scalar-proxy-go/internal/model"
)

// OriginGuard decides whether a forward target is allowed.
type OriginGuard struct {
	allowed []model.Origin
}

// NewOriginGuard allows the API spec origin and, when configured, the base URL origin.
func NewOriginGuard(pc *model.ProxyConfig) *OriginGuard {
	g := &OriginGuard{allowed: []model.Origin{model.OriginOf(pc.APISpecURL)}}
	if pc.BaseURL != nil {
		g.allowed = append(g.allowed, model.OriginOf(pc.BaseURL))
	}
	return g
}

// Allows reports whether u shares an origin with one of the allowed URLs.
// A nil or non-absolute URL is never allowed.
func (g *OriginGuard) Allows(u *url.URL) bool {
	if u == nil || u.Scheme == "" || u.Host == "" {
		return false
	}
	o := model.OriginOf(u)
	for _, a := range g.allowed {
		if o == a {
			return true
		}
	}
	return false
}

// Authorize marks res authorized or returns ErrCrossOriginBlocked.
func (g *OriginGuard) Authorize(res model.TargetResolution) (model.TargetResolution, error) {
	if !g.Allows(res.URL) {
		return res, model.ErrCrossOriginBlocked
	}
	res.Authorized = true
	return res, nil
}
