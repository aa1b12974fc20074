// Package telemetry exposes Prometheus metrics for the API and gateway.
package telemetry

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lamprey_http_requests_total",
		Help: "HTTP requests by method and status code.",
	}, []string{"method", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lamprey_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lamprey_events_published_total",
		Help: "Events published to the bus by entity kind.",
	}, []string{"kind"})

	gatewayConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lamprey_gateway_connections",
		Help: "Currently open gateway connections.",
	})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CountEvent records one published event.
func CountEvent(kind string) {
	eventsPublished.WithLabelValues(kind).Inc()
}

// ConnOpened and ConnClosed track the gateway connection gauge.
func ConnOpened() { gatewayConnections.Inc() }
func ConnClosed() { gatewayConnections.Dec() }

// statusRecorder captures the response status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade pass through the middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

// Middleware records request counts and latency.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		srw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		timer := prometheus.NewTimer(httpDuration.WithLabelValues(r.Method))
		next.ServeHTTP(srw, r)
		timer.ObserveDuration()
		httpRequests.WithLabelValues(r.Method, strconv.Itoa(srw.status)).Inc()
	})
}
