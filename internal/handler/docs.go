package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"scalar-proxy-go/internal/docs"
	"scalar-proxy-go/internal/model"
)

// DocsHandler serves the rendered API reference page.
type DocsHandler struct {
	renderer *docs.Renderer
	logger   *slog.Logger
}

// NewDocsHandler creates a DocsHandler.
func NewDocsHandler(r *docs.Renderer, logger *slog.Logger) *DocsHandler {
	return &DocsHandler{
		renderer: r,
		logger:   logger.With("component", "docs_handler"),
	}
}

// Serve renders the docs template.
func (h *DocsHandler) Serve(c echo.Context) error {
	html, err := h.renderer.Render()
	if err != nil {
		e := model.AsError(err)
		h.logger.Error("render docs", "code", e.Code, "err", err)
		return c.JSON(e.Status, e)
	}
	return c.Blob(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}
