// Package service implements the backend relay: one inbound request, one
// backend call, one fully buffered response.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"storefront-relay/internal/config"
	"storefront-relay/internal/model"
)

// ErrTransport marks failures where the backend could not be reached or did
// not produce a complete response (DNS, refused connection, timeout, cancellation).
var ErrTransport = errors.New("backend transport failure")

// UpstreamRejectedError is returned when the backend answers with a non-2xx status.
type UpstreamRejectedError struct {
	StatusCode int
	Body       []byte
}

func (e *UpstreamRejectedError) Error() string {
	return fmt.Sprintf("backend rejected request: status %d", e.StatusCode)
}

// Text returns the backend error body as a string.
func (e *UpstreamRejectedError) Text() string {
	return string(e.Body)
}

const userAgent = "storefront-relay/1.0"

// Doer performs a single buffered backend call.
type Doer interface {
	Do(ctx context.Context, method, url string, header http.Header, body io.Reader) (*model.UpstreamResponse, error)
}

// Endpoint is a fixed backend route the relay forwards to.
type Endpoint struct {
	Method   string
	Path     string
	SendBody bool
}

// Relay forwards inbound requests to fixed backend endpoints. It keeps no
// per-request state and is safe for concurrent use.
type Relay struct {
	client  Doer
	logger  *slog.Logger
	baseURL *url.URL
}

// NewRelay creates a Relay for the configured backend base URL.
func NewRelay(c Doer, cfg *config.Config, logger *slog.Logger) (*Relay, error) {
	u, err := url.Parse(cfg.Backend.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse backend base_url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend base_url %q must be absolute", cfg.Backend.BaseURL)
	}

	return &Relay{
		client:  c,
		logger:  logger.With("component", "relay"),
		baseURL: u,
	}, nil
}

// Forward sends in to ep with exactly one backend attempt.
//
// The inbound Cookie header is copied verbatim; no other client header is
// forwarded. A non-2xx answer yields *UpstreamRejectedError and a failed call
// yields an error wrapping ErrTransport.
func (r *Relay) Forward(ctx context.Context, ep Endpoint, in *model.InboundRequest) (*model.UpstreamResponse, error) {
	if in == nil {
		in = &model.InboundRequest{}
	}

	var body io.Reader
	if ep.SendBody && len(in.Body) > 0 {
		body = bytes.NewReader(in.Body)
	}

	r.logger.Debug("relaying request",
		"inbound_method", in.Method,
		"method", ep.Method,
		"path", ep.Path,
		"has_cookie", len(in.Cookie()) > 0,
		"request_id", in.RequestID,
	)

	resp, err := r.client.Do(ctx, ep.Method, r.buildURL(ep.Path), r.forwardHeaders(in), body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	if !resp.OK() {
		return nil, &UpstreamRejectedError{StatusCode: resp.StatusCode, Body: resp.Body}
	}
	return resp, nil
}

// BaseURL returns the backend base URL the relay targets.
func (r *Relay) BaseURL() string {
	return r.baseURL.String()
}

func (r *Relay) buildURL(path string) string {
	u := *r.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

func (r *Relay) forwardHeaders(in *model.InboundRequest) http.Header {
	dst := make(http.Header)
	if cookies := in.Cookie(); len(cookies) > 0 {
		dst["Cookie"] = append([]string(nil), cookies...)
	}
	if in.RequestID != "" {
		dst.Set("X-Request-Id", in.RequestID)
	}
	dst.Set("User-Agent", userAgent)
	return dst
}
