// Package model defines the request and response types exchanged by the relay.
package model

import (
	"net/http"
)

// InboundRequest is the part of a client request the relay cares about.
type InboundRequest struct {
	Method    string
	Header    http.Header
	Body      []byte
	RequestID string
}

// Cookie returns the inbound cookie header values, or nil when none were sent.
func (r *InboundRequest) Cookie() []string {
	if r == nil || r.Header == nil {
		return nil
	}
	return r.Header.Values("Cookie")
}

// UpstreamResponse is a fully buffered backend response.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports whether the backend answered with a 2xx status.
func (r *UpstreamResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
