package ftpclient

import "time"

// Metrics is an optional sink for client-side measurements, e.g. a
// Prometheus collector. Methods are called inline and should not block.
type Metrics interface {
	// RecordTransfer is called once per finished file transfer.
	// direction is "upload" or "download".
	RecordTransfer(direction string, bytes int64, duration time.Duration, err error)

	// RecordReconnect is called after every reconnect attempt.
	RecordReconnect(success bool)

	// RecordCacheLookup is called by cache-aware listings.
	RecordCacheLookup(hit bool)

	// RecordLatency is called by Monitor after each sample.
	RecordLatency(latency time.Duration, reachable bool)

	// SetConnected tracks the session state.
	SetConnected(connected bool)
}

type noopMetrics struct{}

func (noopMetrics) RecordTransfer(string, int64, time.Duration, error) {}
func (noopMetrics) RecordReconnect(bool)                             {}
func (noopMetrics) RecordCacheLookup(bool)                           {}
func (noopMetrics) RecordLatency(time.Duration, bool)                {}
func (noopMetrics) SetConnected(bool)                                {}
