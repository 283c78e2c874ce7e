package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"storefront-relay/internal/config"
	"storefront-relay/internal/metrics"
	"storefront-relay/internal/service"
)

const (
	clearFailedMessage   = "Failed to clear wishlist"
	internalErrorMessage = "Internal server error"
)

type successResponse struct {
	Success bool `json:"success"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// WishlistHandler relays the wishlist clear action.
type WishlistHandler struct {
	relay    *service.Relay
	endpoint service.Endpoint
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewWishlistHandler creates a WishlistHandler. m may be nil.
func NewWishlistHandler(relay *service.Relay, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *WishlistHandler {
	return &WishlistHandler{
		relay:    relay,
		endpoint: service.Endpoint{Method: cfg.Wishlist.Method, Path: cfg.Wishlist.UpstreamPath},
		metrics:  m,
		logger:   logger.With("component", "wishlist_handler"),
	}
}

// Clear asks the backend to empty the caller's wishlist.
//
// Every outcome is normalized to a small JSON envelope; the backend's response
// body is never shown to the client.
func (h *WishlistHandler) Clear(c echo.Context) error {
	if _, err := h.relay.Forward(c.Request().Context(), h.endpoint, inboundRequest(c)); err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, successResponse{Success: true})
}

func (h *WishlistHandler) mapError(c echo.Context, err error) error {
	var rejected *service.UpstreamRejectedError
	if errors.As(err, &rejected) {
		h.logger.Error("backend rejected wishlist clear",
			"status", rejected.StatusCode,
			"body", rejected.Text(),
			"path", c.Request().URL.Path,
		)
		h.metrics.RecordFailure(config.WishlistRoute, metrics.FailureRejected)
		if !bodyAllowed(rejected.StatusCode) {
			return c.NoContent(rejected.StatusCode)
		}
		return c.JSON(rejected.StatusCode, errorResponse{Error: clearFailedMessage})
	}

	h.logger.Error("wishlist relay failed",
		"err", err,
		"path", c.Request().URL.Path,
	)
	h.metrics.RecordFailure(config.WishlistRoute, metrics.FailureTransport)
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: internalErrorMessage})
}
