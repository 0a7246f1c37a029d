package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hls-relay/internal/config"
	"hls-relay/internal/model"
)

func testConfig() *config.Config {
	return &config.Config{
		Upstream: config.UpstreamConfig{
			TimeoutSeconds:     10,
			MaxConnections:     10,
			MaxIdleConnections: 10,
		},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("#EXTM3U\n"))
	}))
	defer srv.Close()

	c := NewStreamClient(testConfig(), testLogger(), nil)

	resp, err := c.Fetch(context.Background(), &model.ProxyRequest{
		Method:    http.MethodGet,
		TargetURL: srv.URL + "/master.m3u8",
	}, http.Header{})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if resp.ContentType != "application/vnd.apple.mpegurl" {
		t.Errorf("ContentType = %q", resp.ContentType)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(body) != "#EXTM3U\n" {
		t.Errorf("body = %q", string(body))
	}
}

func TestFetch_ErrorStatusIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewStreamClient(testConfig(), testLogger(), nil)

	resp, err := c.Fetch(context.Background(), &model.ProxyRequest{
		Method:    http.MethodGet,
		TargetURL: srv.URL,
	}, http.Header{})
	if err != nil {
		t.Fatalf("Fetch() error = %v; an origin error status is a valid response", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}
}

func TestFetch_ConnectionRefused(t *testing.T) {
	// Start and immediately stop a server to get a dead address.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	dead := srv.URL
	srv.Close()

	c := NewStreamClient(testConfig(), testLogger(), nil)

	_, err := c.Fetch(context.Background(), &model.ProxyRequest{
		Method:    http.MethodGet,
		TargetURL: dead,
	}, http.Header{})
	if err == nil {
		t.Fatal("Fetch() error = nil, want *UnreachableError")
	}

	var ue *UnreachableError
	if !errors.As(err, &ue) {
		t.Fatalf("error = %v (%T), want *UnreachableError", err, err)
	}
	if ue.URL != dead {
		t.Errorf("UnreachableError.URL = %q, want %q", ue.URL, dead)
	}
	if ue.Err == nil {
		t.Error("UnreachableError.Err is nil, want underlying cause")
	}
}

func TestFetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Upstream.TimeoutSeconds = 1

	c := NewStreamClient(cfg, testLogger(), nil)

	_, err := c.Fetch(context.Background(), &model.ProxyRequest{
		Method:    http.MethodGet,
		TargetURL: srv.URL,
	}, http.Header{})

	var ue *UnreachableError
	if !errors.As(err, &ue) {
		t.Fatalf("error = %v, want *UnreachableError on timeout", err)
	}
}

func TestFetch_FollowsRedirects(t *testing.T) {
	final := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("payload"))
	}))
	defer final.Close()

	redirecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, final.URL, http.StatusFound)
	}))
	defer redirecting.Close()

	c := NewStreamClient(testConfig(), testLogger(), nil)

	resp, err := c.Fetch(context.Background(), &model.ProxyRequest{
		Method:    http.MethodGet,
		TargetURL: redirecting.URL,
	}, http.Header{})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "payload" {
		t.Errorf("body = %q, want %q", string(body), "payload")
	}
}

func TestFetch_StripsAcceptEncoding(t *testing.T) {
	var sawHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawHeader = r.Header.Get("Accept-Encoding")
	}))
	defer srv.Close()

	c := NewStreamClient(testConfig(), testLogger(), nil)

	header := http.Header{"Accept-Encoding": {"br"}}
	resp, err := c.Fetch(context.Background(), &model.ProxyRequest{
		Method:    http.MethodGet,
		TargetURL: srv.URL,
	}, header)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	_ = resp.Body.Close()

	// The transport negotiates its own encoding so it can decode transparently.
	if sawHeader == "br" {
		t.Errorf("forwarded Accept-Encoding = %q; want the client-supplied value stripped", sawHeader)
	}
}
