package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"storefront-relay/internal/config"
	"storefront-relay/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
func RegisterRoutes(e *echo.Echo, export *ExportHandler, wishlist *WishlistHandler, health *HealthHandler) {
	e.GET(config.HealthzRoute, health.Healthz)
	e.GET(config.StatusRoute, health.Status)

	e.GET(config.ExportRoute, export.Handle)
	e.DELETE(config.WishlistRoute, wishlist.Clear)
}

// RegisterMetrics exposes the Prometheus registry when metrics are enabled.
func RegisterMetrics(e *echo.Echo, cfg *config.Config, m *metrics.Metrics) {
	if !cfg.Metrics.Enabled {
		return
	}
	e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{
		Registry: m.Registry,
	})))
}
