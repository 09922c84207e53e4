package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles every metric the service exports. It owns a private
// registry so tests can create as many instances as they like.
type Collector struct {
	registry *prometheus.Registry

	tokenExpiry     *prometheus.GaugeVec
	refreshTotal    *prometheus.CounterVec
	refreshDuration *prometheus.HistogramVec
	staleServed     *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
}

func New() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		tokenExpiry: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rmhtitiler_credential_expiry_timestamp_seconds",
			Help: "Unix timestamp at which the cached credential for a scope hard-expires.",
		}, []string{"scope"}),
		refreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rmhtitiler_credential_refresh_total",
			Help: "Credential acquisition attempts by scope, source and result.",
		}, []string{"scope", "source", "result"}),
		refreshDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rmhtitiler_credential_refresh_duration_seconds",
			Help:    "Wall time of credential acquisitions.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"scope"}),
		staleServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rmhtitiler_credential_stale_served_total",
			Help: "Times a still-valid cached credential was served after a failed refresh.",
		}, []string{"scope"}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rmhtitiler_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.tokenExpiry,
		c.refreshTotal,
		c.refreshDuration,
		c.staleServed,
		c.requestsTotal,
	)

	return c
}

// ObserveRefresh records one acquisition attempt. source may be empty
// when the chain failed before any source produced a token.
func (c *Collector) ObserveRefresh(scope, source string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	if source == "" {
		source = "none"
	}
	c.refreshTotal.WithLabelValues(scope, source, result).Inc()
	c.refreshDuration.WithLabelValues(scope).Observe(duration.Seconds())
}

// SetExpiry publishes the hard expiry of a scope's cached credential.
func (c *Collector) SetExpiry(scope string, expiresAt time.Time) {
	c.tokenExpiry.WithLabelValues(scope).Set(float64(expiresAt.Unix()))
}

// ServedStale counts a fallback to a still-valid cached credential.
func (c *Collector) ServedStale(scope string) {
	c.staleServed.WithLabelValues(scope).Inc()
}

// ObserveRequest counts one handled HTTP request.
func (c *Collector) ObserveRequest(route, method string, status int) {
	c.requestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
}

// Handler exposes the registry in Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
