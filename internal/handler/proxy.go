package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"scalar-proxy-go/internal/model"
	"scalar-proxy-go/internal/service"
)

// ProxyHandler adapts echo requests to the proxy service.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle forwards the request and writes the buffered result.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		// BodyLimit reports oversized bodies as an echo error; let echo write it.
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return h.write(c, service.ErrorResult(
			model.WrapError(model.CodeInvalidRequest, http.StatusBadRequest, "Could not read request body", err)))
	}

	uri := req.RequestURI
	if uri == "" {
		uri = req.URL.RequestURI()
	}

	in := &model.InboundRequest{
		Ctx:    req.Context(),
		Method: req.Method,
		URI:    uri,
		Header: req.Header.Clone(),
	}
	if len(body) > 0 {
		in.Body = body
	}

	res := h.service.Handle(in)

	// Nothing is written once the client has gone away.
	if err := req.Context().Err(); err != nil {
		h.logger.Debug("client disconnected", "method", req.Method, "path", req.URL.Path)
		return nil
	}

	return h.write(c, res)
}

func (h *ProxyHandler) write(c echo.Context, res *model.OutboundResult) error {
	// Result headers replace any the middleware chain already set.
	header := c.Response().Header()
	for key, vals := range res.Header {
		header[key] = vals
	}
	c.Response().WriteHeader(res.StatusCode)

	if len(res.Body) == 0 {
		return nil
	}
	if _, err := c.Response().Write(res.Body); err != nil {
		h.logger.Error("writing response body",
			"err", err,
			"path", c.Request().URL.Path,
		)
	}
	return nil
}
