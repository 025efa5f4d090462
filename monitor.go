package ftpclient

import (
	"context"
	"sync"
	"time"
)

// MonitorStats is the latest reachability sample.
type MonitorStats struct {
	// Latency is the TCP connect time of the last successful probe.
	Latency   time.Duration
	Reachable bool
	LastCheck time.Time

	Samples  int
	Failures int
}

// Loss returns the fraction of failed probes so far, from 0 to 1.
func (s MonitorStats) Loss() float64 {
	if s.Samples == 0 {
		return 0
	}
	return float64(s.Failures) / float64(s.Samples)
}

// Monitor measures TCP connect latency to a server, independently of any
// session. It never speaks FTP.
type Monitor struct {
	addr     string
	interval time.Duration
	timeout  time.Duration
	metrics  Metrics

	mu    sync.Mutex
	stats MonitorStats
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// MonitorMetrics reports every sample to metrics.
func MonitorMetrics(metrics Metrics) MonitorOption {
	return func(mon *Monitor) {
		if metrics != nil {
			mon.metrics = metrics
		}
	}
}

// NewMonitor returns a monitor probing addr ("host:port") every interval,
// each probe bounded by timeout. Zero values default to 1s and 2s.
func NewMonitor(addr string, interval, timeout time.Duration, opts ...MonitorOption) *Monitor {
	if interval <= 0 {
		interval = time.Second
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	mon := &Monitor{
		addr:     addr,
		interval: interval,
		timeout:  timeout,
		metrics:  noopMetrics{},
	}
	for _, opt := range opts {
		opt(mon)
	}
	return mon
}

// Run probes until ctx is done, starting immediately. It returns ctx.Err().
func (mon *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(mon.interval)
	defer ticker.Stop()
	for {
		mon.Sample(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sample takes one probe and records it. A probe cut short by ctx is not
// recorded.
func (mon *Monitor) Sample(ctx context.Context) MonitorStats {
	latency, err := probe(ctx, mon.addr, mon.timeout)
	if err != nil && ctx.Err() != nil {
		return mon.Stats()
	}
	reachable := err == nil

	mon.mu.Lock()
	mon.stats.Samples++
	mon.stats.Reachable = reachable
	mon.stats.LastCheck = time.Now()
	if reachable {
		mon.stats.Latency = latency
	} else {
		mon.stats.Failures++
		mon.stats.Latency = 0
	}
	stats := mon.stats
	mon.mu.Unlock()

	mon.metrics.RecordLatency(latency, reachable)
	return stats
}

// Stats returns the latest sample. It is safe to call while Run is active.
func (mon *Monitor) Stats() MonitorStats {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	return mon.stats
}
