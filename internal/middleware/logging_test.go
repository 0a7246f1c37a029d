package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRequestLogger(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := echo.New()
	e.Use(RequestLogger(logger))
	e.GET("/test", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRequestLogger_OriginHost(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	e := echo.New()
	e.Use(RequestLogger(logger))
	e.GET("/proxy", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet,
		"/proxy?url=https%3A%2F%2Fcdn.example.com%2Flive%2Fmaster.m3u8", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if !strings.Contains(buf.String(), "origin_host=cdn.example.com") {
		t.Errorf("log line missing origin host: %q", buf.String())
	}

	// Requests without a target URL carry no origin_host key.
	buf.Reset()
	req = httptest.NewRequest(http.MethodGet, "/proxy", http.NoBody)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if strings.Contains(buf.String(), "origin_host") {
		t.Errorf("unexpected origin_host for request without target: %q", buf.String())
	}
}
