package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"hls-relay/internal/client"
	"hls-relay/internal/manifest"
	"hls-relay/internal/metrics"
	"hls-relay/internal/model"
	"hls-relay/internal/service"
)

// invalidatedHeaders are upstream response headers dropped before emission:
// once the body may be rewritten or re-chunked these no longer describe it.
var invalidatedHeaders = map[string]bool{
	"Transfer-Encoding": true,
	"Content-Encoding":  true,
	"Content-Length":    true,
}

// ProxyHandler relays HLS playlists and media segments: playlists are
// buffered and rewritten so their URI references route back through the
// relay, segments are streamed through verbatim.
type ProxyHandler struct {
	service *service.RelayService
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewProxyHandler creates a ProxyHandler. The metrics parameter is optional;
// pass nil to disable rewrite metrics recording.
func NewProxyHandler(svc *service.RelayService, logger *slog.Logger, m *metrics.Metrics) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
		metrics: m,
	}
}

// Handle serves GET /proxy?url=<target>&referer=<optional>.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	target := c.QueryParam("url")
	if target == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "url query parameter is required")
	}
	referer := c.QueryParam("referer")

	pr := &model.ProxyRequest{
		Ctx:       req.Context(),
		Method:    http.MethodGet,
		TargetURL: target,
		Referer:   referer,
		Header:    req.Header,
	}

	resp, err := h.service.Fetch(pr)
	if err != nil {
		return h.mapError(c, target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if manifest.IsPlaylist(resp.ContentType, target) {
		return h.respondPlaylist(c, resp, target, referer)
	}
	return h.respondSegment(c, resp, target)
}

// respondPlaylist buffers the manifest, rewrites every URI reference, and
// emits the result in one shot with the upstream status.
func (h *ProxyHandler) respondPlaylist(c echo.Context, resp *model.UpstreamResponse, target, referer string) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		h.logger.Error("reading playlist body", "err", err, "url", target)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "reading playlist body: " + err.Error(),
		})
	}

	rw := &manifest.Rewriter{
		ProxyBase: proxyBase(c),
		Referer:   referer,
	}
	rewritten, n := rw.Rewrite(string(body), baseOf(target))

	if h.metrics != nil {
		h.metrics.PlaylistsRewritten.Inc()
		h.metrics.URIsRewritten.Add(float64(n))
	}
	h.logger.Debug("playlist rewritten", "url", target, "uris", n)

	copyFilteredHeaders(c.Response().Header(), resp.Header)
	c.Response().WriteHeader(resp.StatusCode)
	_, err = c.Response().Write([]byte(rewritten))
	return err
}

// respondSegment forwards the upstream body chunk-by-chunk in arrival order,
// never buffering the full resource.
func (h *ProxyHandler) respondSegment(c echo.Context, resp *model.UpstreamResponse, target string) error {
	copyFilteredHeaders(c.Response().Header(), resp.Header)
	c.Response().WriteHeader(resp.StatusCode)

	// If the copy fails mid-stream (client disconnect, upstream drop), the
	// status has already been sent, so the client receives a truncated body.
	// The request context cancels the upstream read, so the loop terminates
	// promptly instead of draining the rest of the origin body.
	n, err := io.Copy(c.Response(), resp.Body)
	if h.metrics != nil {
		h.metrics.SegmentBytes.Add(float64(n))
	}
	if err != nil {
		h.logger.Warn("streaming segment body",
			"err", err,
			"url", target,
			"bytes_sent", n,
		)
	}
	return nil
}

// Preflight serves OPTIONS /proxy with CORS preflight headers.
func (h *ProxyHandler) Preflight(c echo.Context) error {
	hd := c.Response().Header()
	hd.Set("Access-Control-Allow-Origin", "*")
	hd.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	hd.Set("Access-Control-Allow-Headers", "*")
	hd.Set("Access-Control-Max-Age", "86400")
	return c.NoContent(http.StatusNoContent)
}

// Index serves GET / with a static usage payload.
func (h *ProxyHandler) Index(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"message":     "HLS Relay",
		"usage":       "GET /proxy?url=<HLS_URL>&referer=<REFERER>",
		"description": "Relays HLS streams with optional referer impersonation",
	})
}

func (h *ProxyHandler) mapError(c echo.Context, target string, err error) error {
	h.logger.Error("relay error",
		"err", err,
		"url", target,
	)

	var ue *client.UnreachableError
	if errors.As(err, &ue) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream unreachable: " + ue.Err.Error(),
		})
	}

	return c.JSON(http.StatusInternalServerError, map[string]string{
		"error": "relay failure: " + err.Error(),
	})
}

// copyFilteredHeaders passes upstream headers through minus the invalidated
// set and injects the CORS headers, regardless of what upstream returned.
func copyFilteredHeaders(dst, src http.Header) {
	for key, vals := range src {
		if invalidatedHeaders[http.CanonicalHeaderKey(key)] {
			continue
		}
		for _, v := range vals {
			dst.Add(key, v)
		}
	}
	dst.Set("Access-Control-Allow-Origin", "*")
	dst.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	dst.Set("Access-Control-Allow-Headers", "*")
}

// proxyBase reconstructs the relay's externally visible endpoint URL for the
// current request, query string stripped. Rewritten playlist entries point
// here.
func proxyBase(c echo.Context) string {
	return c.Scheme() + "://" + c.Request().Host + c.Request().URL.Path
}

// baseOf returns the target URL's directory: everything up to and including
// the last '/', or the whole URL when it has none.
func baseOf(target string) string {
	idx := strings.LastIndex(target, "/")
	if idx < 0 {
		return target
	}
	return target[:idx+1]
}
