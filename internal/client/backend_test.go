package client_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"storefront-relay/internal/client"
	"storefront-relay/internal/config"
	"storefront-relay/internal/metrics"
)

var _ = Describe("BackendClient", func() {
	var (
		cfg    *config.Config
		log    *slog.Logger
		m      *metrics.Metrics
		c      *client.BackendClient
		server *httptest.Server
	)

	BeforeEach(func() {
		cfg = &config.Config{
			Backend: config.BackendConfig{
				TimeoutSeconds:  5,
				IdleConnections: 10,
			},
		}
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
		m = metrics.New()
		c = client.NewBackendClient(cfg, log, m)
	})

	AfterEach(func() {
		if server != nil {
			server.Close()
			server = nil
		}
	})

	Describe("Do", func() {
		It("should buffer a binary body byte for byte", func() {
			payload := []byte{0x50, 0x4b, 0x03, 0x04, 0x00, 0xff, 0x0a, 0x0d}
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/octet-stream")
				_, _ = w.Write(payload)
			}))

			resp, err := c.Do(context.Background(), http.MethodGet, server.URL+"/categories/export", http.Header{}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.OK()).To(BeTrue())
			Expect(resp.Body).To(Equal(payload))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/octet-stream"))
		})

		It("should send the given method, headers and body", func() {
			var gotMethod, gotCookie, gotBody string
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotMethod = r.Method
				gotCookie = r.Header.Get("Cookie")
				b, _ := io.ReadAll(r.Body)
				gotBody = string(b)
				w.WriteHeader(http.StatusNoContent)
			}))

			header := http.Header{"Cookie": {"session=abc"}}
			resp, err := c.Do(context.Background(), http.MethodDelete, server.URL+"/api/wishlist/clear", header, bytes.NewReader([]byte("x")))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(gotMethod).To(Equal(http.MethodDelete))
			Expect(gotCookie).To(Equal("session=abc"))
			Expect(gotBody).To(Equal("x"))
		})

		It("should send a bodyless GET without a body or chunked encoding", func() {
			var gotLength int64
			var gotEncoding []string
			var gotBody []byte
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotLength = r.ContentLength
				gotEncoding = r.TransferEncoding
				gotBody, _ = io.ReadAll(r.Body)
				w.WriteHeader(http.StatusOK)
			}))

			_, err := c.Do(context.Background(), http.MethodGet, server.URL, nil, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(gotLength).To(BeZero())
			Expect(gotEncoding).To(BeEmpty())
			Expect(gotBody).To(BeEmpty())
		})

		It("should return non-2xx responses without an error", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "forbidden", http.StatusForbidden)
			}))

			resp, err := c.Do(context.Background(), http.MethodGet, server.URL, nil, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
			Expect(resp.OK()).To(BeFalse())
			Expect(strings.TrimSpace(string(resp.Body))).To(Equal("forbidden"))
		})

		It("should record upstream metrics", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			_, err := c.Do(context.Background(), http.MethodGet, server.URL, nil, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(testutil.ToFloat64(m.UpstreamResponses.WithLabelValues("GET", "200"))).To(Equal(1.0))
		})

		It("should work without metrics", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			bare := client.NewBackendClient(cfg, log, nil)
			_, err := bare.Do(context.Background(), http.MethodGet, server.URL, nil, nil)
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("transport failures", func() {
		It("should fail once for an unreachable host", func() {
			_, err := c.Do(context.Background(), http.MethodGet, "http://127.0.0.1:1/categories/export", nil, nil)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("backend request"))
		})

		It("should fail for a canceled context", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			_, err := c.Do(ctx, http.MethodGet, server.URL, nil, nil)
			Expect(err).To(MatchError(context.Canceled))
		})

		It("should give up after the configured timeout", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(5 * time.Second):
				}
			}))

			cfg.Backend.TimeoutSeconds = 1
			slow := client.NewBackendClient(cfg, log, nil)

			start := time.Now()
			_, err := slow.Do(context.Background(), http.MethodGet, server.URL, nil, nil)
			Expect(err).To(HaveOccurred())
			Expect(time.Since(start)).To(BeNumerically("<", 4*time.Second))
		})

		It("should not replay a GET when a reused connection drops", func() {
			var hits atomic.Int32
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if hits.Add(1) == 1 {
					_, _ = w.Write([]byte("ok"))
					return
				}
				conn, _, err := w.(http.Hijacker).Hijack()
				if err == nil {
					_ = conn.Close()
				}
			}))

			_, err := c.Do(context.Background(), http.MethodGet, server.URL, nil, nil)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.Do(context.Background(), http.MethodGet, server.URL, nil, nil)
			Expect(err).To(HaveOccurred())
			Expect(hits.Load()).To(Equal(int32(2)))
		})

		It("should reject a malformed URL before dialing", func() {
			_, err := c.Do(context.Background(), http.MethodGet, "http://[::1", nil, nil)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("build backend request"))
		})
	})
})
