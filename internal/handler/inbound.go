package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"storefront-relay/internal/model"
)

// inboundRequest captures the relay-relevant parts of the echo request.
// Neither relayed route takes a body, so none is read.
func inboundRequest(c echo.Context) *model.InboundRequest {
	req := c.Request()

	rid := c.Response().Header().Get(echo.HeaderXRequestID)
	if rid == "" {
		rid = req.Header.Get(echo.HeaderXRequestID)
	}

	return &model.InboundRequest{
		Method:    req.Method,
		Header:    req.Header,
		RequestID: rid,
	}
}

// bodyAllowed reports whether a response with the given status may carry a body.
func bodyAllowed(status int) bool {
	switch {
	case status >= 100 && status <= 199:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}
