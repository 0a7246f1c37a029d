// Package middleware provides Echo middleware for logging, metrics, and
// response hardening.
package middleware

import (
	"log/slog"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestLogger returns an Echo middleware that logs each request with slog.
// Relay requests additionally carry the origin host, so per-origin failures
// and slowness are visible without parsing query strings out of logs.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			attrs := []any{
				"method", req.Method,
				"path", req.URL.Path,
				"status", res.Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", res.Header().Get(echo.HeaderXRequestID),
				"remote_ip", c.RealIP(),
				"bytes_out", res.Size,
			}
			if host := originHost(c.QueryParam("url")); host != "" {
				attrs = append(attrs, "origin_host", host)
			}

			logger.Info("request", attrs...)

			return err
		}
	}
}

// originHost extracts the host of the relayed target URL, or empty string
// for requests that do not carry one.
func originHost(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
