package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/agenda/libs/httpx"
)

// route sends every path under prefix to one upstream. Public routes get the
// rate limiter; everything else is authenticated by the upstream itself.
type route struct {
	prefix   string
	upstream string
	public   bool
}

func routes(bookingURL, commissionURL string) []route {
	return []route{
		{prefix: "/api/v1/public", upstream: bookingURL, public: true},
		// Gateways reach these without a JWT; the signature is the auth.
		{prefix: "/api/v1/payments", upstream: bookingURL},
		{prefix: "/api/v1/appointments", upstream: bookingURL},
		{prefix: "/api/v1/blocks", upstream: bookingURL},
		{prefix: "/api/v1/commissions", upstream: commissionURL},
	}
}

func registerRoutes(mux *http.ServeMux, rs []route, limiter httpx.Middleware, logger *slog.Logger) error {
	transport := otelhttp.NewTransport(http.DefaultTransport)
	for _, rt := range rs {
		target, err := url.Parse(rt.upstream)
		if err != nil || target.Scheme == "" || target.Host == "" {
			return fmt.Errorf("upstream for %s: invalid url %q", rt.prefix, rt.upstream)
		}
		proxy := httputil.NewSingleHostReverseProxy(target)
		proxy.Transport = transport
		proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("upstream error",
				"request_id", httpx.RequestIDFromContext(r.Context()),
				"upstream", target.Host,
				"path", r.URL.Path,
				"err", err,
			)
			httpx.WriteError(w, http.StatusBadGateway, "upstream_unavailable", "upstream unavailable")
		}

		var h http.Handler = forwardRequestID(proxy)
		if rt.public && limiter != nil {
			h = limiter(h)
		}
		mux.Handle(rt.prefix, h)
		mux.Handle(rt.prefix+"/", h)
	}
	return nil
}

// forwardRequestID makes the upstream log the same request id as the gateway.
func forwardRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := httpx.RequestIDFromContext(r.Context()); id != "" {
			r.Header.Set(httpx.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}

// upstreamCheck probes an upstream's /healthz for /readyz.
func upstreamCheck(client *http.Client, base string) func(context.Context) error {
	target := strings.TrimRight(base, "/") + "/healthz"
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		return nil
	}
}

func newHealthClient() *http.Client {
	return &http.Client{Timeout: 2 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)}
}
