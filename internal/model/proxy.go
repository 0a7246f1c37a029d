// Package model defines shared types for the relay.
package model

import (
	"context"
	"io"
	"net/http"
)

// ProxyRequest represents one inbound relay request: the upstream resource to
// fetch and the optional site to impersonate while fetching it.
type ProxyRequest struct {
	Ctx       context.Context
	Method    string
	TargetURL string
	Referer   string // empty means no impersonation
	Header    http.Header
	Body      io.Reader
}

// UpstreamResponse represents the origin's response. The body is a live
// stream; ownership transfers to the caller, which must close it.
type UpstreamResponse struct {
	StatusCode  int
	Header      http.Header
	ContentType string
	Body        io.ReadCloser
}
