package handler

import (
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/labstack/echo/v4"

	"storefront-relay/internal/client"
	"storefront-relay/internal/config"
	"storefront-relay/internal/metrics"
	"storefront-relay/internal/service"
)

func newTestEcho() *echo.Echo {
	e := echo.New()
	e.JSONSerializer = JSONSerializer{}
	return e
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig returns a config pointing at backendURL with route defaults applied.
func testConfig(backendURL string) *config.Config {
	return &config.Config{
		Backend: config.BackendConfig{
			BaseURL:         backendURL,
			TimeoutSeconds:  5,
			IdleConnections: 10,
		},
		Export: config.ExportConfig{
			UpstreamPath: config.DefaultExportUpstreamPath,
			Filename:     config.DefaultExportFilename,
			ContentType:  config.DefaultExportContentType,
		},
		Wishlist: config.WishlistConfig{
			UpstreamPath: config.DefaultWishlistUpstreamPath,
			Method:       http.MethodDelete,
		},
	}
}

func newTestRelay(t *testing.T, cfg *config.Config, m *metrics.Metrics) *service.Relay {
	t.Helper()
	logger := discardLogger()
	relay, err := service.NewRelay(client.NewBackendClient(cfg, logger, m), cfg, logger)
	if err != nil {
		t.Fatalf("NewRelay: %v", err)
	}
	return relay
}

// closingBackend accepts each request and drops the connection without answering.
func closingBackend(hits *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		conn, _, err := w.(http.Hijacker).Hijack()
		if err != nil {
			return
		}
		_ = conn.Close()
	}
}
