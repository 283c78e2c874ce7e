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

const exportFailedText = "Failed to export categories"

// ExportHandler relays the categories spreadsheet export.
type ExportHandler struct {
	relay       *service.Relay
	endpoint    service.Endpoint
	disposition string
	contentType string
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewExportHandler creates an ExportHandler. m may be nil.
func NewExportHandler(relay *service.Relay, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{
		relay:       relay,
		endpoint:    service.Endpoint{Method: http.MethodGet, Path: cfg.Export.UpstreamPath},
		disposition: "attachment; filename=" + cfg.Export.Filename,
		contentType: cfg.Export.ContentType,
		metrics:     m,
		logger:      logger.With("component", "export_handler"),
	}
}

// Handle fetches the export from the backend and returns it as a download.
//
// On success the relay, not the backend, decides the content type and the
// attachment filename. Backend errors are passed through verbatim with their
// status so spreadsheet generation failures stay diagnosable.
func (h *ExportHandler) Handle(c echo.Context) error {
	resp, err := h.relay.Forward(c.Request().Context(), h.endpoint, inboundRequest(c))
	if err != nil {
		return h.mapError(c, err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, h.disposition)
	return c.Blob(http.StatusOK, h.contentType, resp.Body)
}

func (h *ExportHandler) mapError(c echo.Context, err error) error {
	var rejected *service.UpstreamRejectedError
	if errors.As(err, &rejected) {
		h.logger.Warn("backend rejected export",
			"status", rejected.StatusCode,
			"path", c.Request().URL.Path,
		)
		h.metrics.RecordFailure(config.ExportRoute, metrics.FailureRejected)
		if !bodyAllowed(rejected.StatusCode) {
			return c.NoContent(rejected.StatusCode)
		}
		return c.String(rejected.StatusCode, rejected.Text())
	}

	h.logger.Error("export relay failed",
		"err", err,
		"path", c.Request().URL.Path,
	)
	h.metrics.RecordFailure(config.ExportRoute, metrics.FailureTransport)
	return c.String(http.StatusInternalServerError, exportFailedText)
}
