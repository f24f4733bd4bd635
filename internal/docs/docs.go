// Package docs renders the API reference page.
package docs

import (
	_ "embed"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"strings"

	"scalar-proxy-go/internal/model"
)

// Template placeholders substituted on every render.
const (
	ProxyURLPlaceholder   = "&{proxy_url}"
	APISpecURLPlaceholder = "&{api_spec_url}"
)

//go:embed api-docs.html
var defaultTemplate string

// Renderer produces the docs page from a template.
type Renderer struct {
	ProxyURL   string
	APISpecURL string
	// CustomHTMLPath replaces the bundled template when set. The file is
	// read on every render.
	CustomHTMLPath string
}

// Render returns the template with both placeholders replaced.
func (r *Renderer) Render() (string, error) {
	if r.ProxyURL == "" || r.APISpecURL == "" {
		return "", model.NewError(model.CodeStoreValuesMissing, http.StatusInternalServerError,
			"Proxy URL or API Spec URL not defined")
	}

	tmpl, err := r.template()
	if err != nil {
		return "", err
	}
	return Substitute(tmpl, r.ProxyURL, r.APISpecURL), nil
}

func (r *Renderer) template() (string, error) {
	if r.CustomHTMLPath == "" {
		return defaultTemplate, nil
	}

	data, err := os.ReadFile(r.CustomHTMLPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "", model.WrapError(model.CodeTemplateNotFound, http.StatusNotFound,
			"HTML template file not found at path: "+r.CustomHTMLPath, err)
	case err != nil:
		return "", model.WrapError(model.CodeInternal, http.StatusInternalServerError,
			"Internal server error occurred while serving documentation", err)
	}
	return string(data), nil
}

// Substitute replaces every occurrence of the placeholders. Values are
// inserted verbatim.
func Substitute(tmpl, proxyURL, apiSpecURL string) string {
	return strings.NewReplacer(
		ProxyURLPlaceholder, proxyURL,
		APISpecURLPlaceholder, apiSpecURL,
	).Replace(tmpl)
}
