// Package client provides the pooled HTTP client used to fetch origin resources.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"hls-relay/internal/config"
	"hls-relay/internal/metrics"
	"hls-relay/internal/model"
)

// UnreachableError reports that the network exchange with the origin could
// not be completed (connection refused, timeout, DNS failure, TLS failure).
// It is distinct from an origin that answers with an error status: the latter
// is a valid response and is relayed as-is.
type UnreachableError struct {
	URL string
	Err error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("upstream unreachable: %s: %v", e.URL, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// StreamClient fetches origin resources over a shared connection pool.
// The pool ceilings bound total fan-out to origin servers; the client is
// safe for concurrent use.
type StreamClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewStreamClient creates a StreamClient with connection pooling, a request
// timeout, and automatic redirect following. The metrics parameter is
// optional; pass nil to disable upstream metrics recording.
func NewStreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *StreamClient {
	transport := &http.Transport{
		MaxConnsPerHost:     cfg.Upstream.MaxConnections,
		MaxIdleConns:        cfg.Upstream.MaxIdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.MaxIdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &StreamClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		},
		logger:  logger.With("component", "stream_client"),
		metrics: m,
	}
}

// Fetch executes a request against the origin and returns the raw response.
// The caller is responsible for closing the response body. The provided
// context controls the lifetime of the fetch: when it is canceled (e.g. the
// client disconnects), the origin request is also canceled.
//
// Transport-level failures are returned as *UnreachableError; no retries are
// attempted at this layer.
func (c *StreamClient) Fetch(ctx context.Context, pr *model.ProxyRequest, header http.Header) (*model.UpstreamResponse, error) {
	req, err := http.NewRequestWithContext(ctx, pr.Method, pr.TargetURL, pr.Body)
	if err != nil {
		return nil, fmt.Errorf("build origin request: %w", err)
	}
	req.Header = header
	// Let the transport negotiate compression itself so gzip playlist bodies
	// arrive decoded and rewritable.
	req.Header.Del("Accept-Encoding")

	c.logger.Debug("origin request",
		"method", req.Method,
		"host", req.URL.Host,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via UpstreamResponse
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		}
		return nil, &UnreachableError{URL: pr.TargetURL, Err: err}
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(method, status).Inc()
	}

	return &model.UpstreamResponse{
		StatusCode:  resp.StatusCode,
		Header:      resp.Header,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        resp.Body,
	}, nil
}
