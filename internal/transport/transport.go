// Package transport provides the outbound HTTP plumbing shared by the
// connector clients and the skill channel.
package transport

import (
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewHTTPTransport creates an http.Transport tuned for short JSON calls to
// channel services and skills.
func NewHTTPTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
	}
}

// NewClient returns an http.Client whose requests are traced. A zero timeout
// leaves deadlines to the request context.
func NewClient(timeout time.Duration) *http.Client {
	return NewClientWithTransport(NewHTTPTransport(), timeout)
}

// NewClientWithTransport wraps rt with tracing.
func NewClientWithTransport(rt http.RoundTripper, timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(rt),
		Timeout:   timeout,
	}
}
