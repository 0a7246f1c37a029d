// Package service implements the relay's outbound request policy: which
// inbound headers survive, which impersonation headers are overlaid, and the
// fetch itself.
package service

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"hls-relay/internal/client"
	"hls-relay/internal/config"
	"hls-relay/internal/model"
)

// transportUnsafeHeaders are inbound headers never forwarded to the origin.
// They are either connection-specific or would desynchronize the framing of
// the new outbound request.
var transportUnsafeHeaders = map[string]bool{
	"host":             true,
	"connection":       true,
	"content-length":   true,
	"content-encoding": true,
}

// RelayService builds impersonation headers and fetches origin resources.
type RelayService struct {
	client *client.StreamClient
	cfg    *config.Config
	logger *slog.Logger
}

// NewRelayService creates a RelayService.
func NewRelayService(c *client.StreamClient, cfg *config.Config, logger *slog.Logger) *RelayService {
	return &RelayService{
		client: c,
		cfg:    cfg,
		logger: logger.With("component", "relay_service"),
	}
}

// Fetch retrieves the request's target URL from the origin, impersonating the
// referring site when a referer is present. The caller is responsible for
// closing the response body. Transport failures surface as
// *client.UnreachableError; no retry is performed at this layer.
func (s *RelayService) Fetch(pr *model.ProxyRequest) (*model.UpstreamResponse, error) {
	header := s.buildHeaders(pr.Header, pr.Referer)

	s.logger.Debug("fetching origin resource",
		"url", pr.TargetURL,
		"impersonated", pr.Referer != "",
	)

	return s.client.Fetch(pr.Ctx, pr, header)
}

// buildHeaders filters the inbound client headers and overlays the
// impersonation fields. Pure transformation, no error conditions.
func (s *RelayService) buildHeaders(inbound http.Header, referer string) http.Header {
	dst := make(http.Header)
	for key, vals := range inbound {
		if transportUnsafeHeaders[strings.ToLower(key)] {
			continue
		}
		dst[http.CanonicalHeaderKey(key)] = vals
	}

	dst.Set("User-Agent", s.cfg.Upstream.UserAgent)
	dst.Set("Accept", "*/*")
	dst.Set("Accept-Language", "en-US,en;q=0.9")
	dst.Set("Connection", "keep-alive")

	if referer != "" {
		dst.Set("Referer", referer)
		// No referer means no Origin key at all, not an empty one.
		if origin := originOf(referer); origin != "" {
			dst.Set("Origin", origin)
		}
	}

	return dst
}

// originOf derives the Origin header value (scheme://host) from a referer URL.
func originOf(referer string) string {
	u, err := url.Parse(referer)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
