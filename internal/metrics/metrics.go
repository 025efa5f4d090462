// Package metrics provides Prometheus metrics for the FTP client.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	ftpclient "github.com/iamlordofplatinumforest/FTP-client"
)

const namespace = "ftpclient"

var _ ftpclient.Metrics = (*Collector)(nil)

// Collector implements ftpclient.Metrics on top of a Prometheus registry.
type Collector struct {
	gatherer prometheus.Gatherer

	transfersTotal    *prometheus.CounterVec
	transferBytes     *prometheus.CounterVec
	transferDuration  *prometheus.HistogramVec
	reconnectsTotal   *prometheus.CounterVec
	cacheLookupsTotal *prometheus.CounterVec
	latency           prometheus.Gauge
	reachable         prometheus.Gauge
	connected         prometheus.Gauge
}

// New registers the client metrics with reg, which Handler then serves.
func New(reg *prometheus.Registry) *Collector {
	f := promauto.With(reg)
	return &Collector{
		gatherer: reg,

		transfersTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfers_total",
				Help:      "Total number of file transfers",
			},
			[]string{"direction", "status"},
		),
		transferBytes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfer_bytes_total",
				Help:      "Total bytes moved by file transfers",
			},
			[]string{"direction"},
		),
		transferDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transfer_duration_seconds",
				Help:      "File transfer duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"direction"},
		),
		reconnectsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconnects_total",
				Help:      "Total reconnect attempts",
			},
			[]string{"result"},
		),
		cacheLookupsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "listing_cache_lookups_total",
				Help:      "Directory listing cache lookups",
			},
			[]string{"result"},
		),
		latency: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "server_latency_seconds",
				Help:      "TCP connect latency of the last reachable probe",
			},
		),
		reachable: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "server_reachable",
				Help:      "1 if the last probe reached the server",
			},
		),
		connected: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "session_connected",
				Help:      "1 while a session is logged in",
			},
		),
	}
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// RecordTransfer records one finished transfer.
func (c *Collector) RecordTransfer(direction string, bytes int64, duration time.Duration, err error) {
	c.transfersTotal.WithLabelValues(direction, status(err == nil)).Inc()
	c.transferBytes.WithLabelValues(direction).Add(float64(bytes))
	c.transferDuration.WithLabelValues(direction).Observe(duration.Seconds())
}

// RecordReconnect records a reconnect attempt.
func (c *Collector) RecordReconnect(success bool) {
	c.reconnectsTotal.WithLabelValues(status(success)).Inc()
}

// RecordCacheLookup records a listing cache hit or miss.
func (c *Collector) RecordCacheLookup(hit bool) {
	result := "hit"
	if !hit {
		result = "miss"
	}
	c.cacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordLatency records a reachability probe.
func (c *Collector) RecordLatency(latency time.Duration, reachable bool) {
	if reachable {
		c.latency.Set(latency.Seconds())
		c.reachable.Set(1)
		return
	}
	c.reachable.Set(0)
}

// SetConnected tracks whether a session is up.
func (c *Collector) SetConnected(connected bool) {
	if connected {
		c.connected.Set(1)
	} else {
		c.connected.Set(0)
	}
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
