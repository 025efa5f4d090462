package ftpclient

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/iamlordofplatinumforest/FTP-client/internal/ratelimit"
)

// Option is a functional option for configuring a Manager.
type Option func(*Manager) error

// WithTimeout sets the timeout for each control round trip and for data
// connection inactivity.
func WithTimeout(timeout time.Duration) Option {
	return func(m *Manager) error {
		m.timeout = timeout
		return nil
	}
}

// WithProbeTimeout bounds the TCP reachability probe that precedes every
// connect. Default 3s.
func WithProbeTimeout(timeout time.Duration) Option {
	return func(m *Manager) error {
		if timeout <= 0 {
			return fmt.Errorf("probe timeout must be positive, got %v", timeout)
		}
		m.probeTimeout = timeout
		return nil
	}
}

// WithHeartbeatInterval sets how often the heartbeat sends NOOP. Default
// 30s. Keep it generous: a long transfer holds the command lock and the
// heartbeat waits behind it.
func WithHeartbeatInterval(interval time.Duration) Option {
	return func(m *Manager) error {
		if interval <= 0 {
			return fmt.Errorf("heartbeat interval must be positive, got %v", interval)
		}
		m.heartbeatInterval = interval
		return nil
	}
}

// WithAutoReconnect controls whether the heartbeat tries to reconnect
// before giving up on a dead session. Enabled by default.
func WithAutoReconnect(enabled bool) Option {
	return func(m *Manager) error {
		m.autoReconnect = enabled
		return nil
	}
}

// WithReconnectAttempts sets how many reconnects the heartbeat tries.
// Default 3.
func WithReconnectAttempts(n int) Option {
	return func(m *Manager) error {
		if n < 1 {
			return fmt.Errorf("reconnect attempts must be at least 1, got %d", n)
		}
		m.reconnectAttempts = n
		return nil
	}
}

// WithReconnectDelay sets the pause between heartbeat reconnect attempts.
// Default 2s.
func WithReconnectDelay(d time.Duration) Option {
	return func(m *Manager) error {
		m.reconnectDelay = d
		return nil
	}
}

// WithCacheTTL sets how long a directory listing is served from cache.
// Default 30s; zero or negative disables the cache.
func WithCacheTTL(ttl time.Duration) Option {
	return func(m *Manager) error {
		m.cacheTTL = ttl
		return nil
	}
}

// WithBandwidthLimit caps transfer throughput in bytes per second, shared
// by uploads and downloads. Zero means unlimited.
func WithBandwidthLimit(bytesPerSecond int64) Option {
	return func(m *Manager) error {
		if bytesPerSecond < 0 {
			return fmt.Errorf("bandwidth limit must not be negative, got %d", bytesPerSecond)
		}
		m.limiter = ratelimit.New(bytesPerSecond)
		return nil
	}
}

// WithLogger enables logging. Commands and responses go to debug level,
// session lifecycle to info, swallowed cleanup failures to warn.
//
// Example:
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	}))
//	m, _ := ftpclient.New(ftpclient.WithLogger(logger))
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) error {
		if logger == nil {
			return fmt.Errorf("logger must not be nil")
		}
		m.logger = logger
		return nil
	}
}

// WithMetrics installs a metrics sink.
func WithMetrics(metrics Metrics) Option {
	return func(m *Manager) error {
		if metrics == nil {
			metrics = noopMetrics{}
		}
		m.metrics = metrics
		return nil
	}
}

// WithDialer sets a custom net.Dialer for control and data connections.
func WithDialer(dialer *net.Dialer) Option {
	return func(m *Manager) error {
		m.dialer = dialer
		return nil
	}
}

// WithExplicitTLS upgrades the session with AUTH TLS. Certificate checks
// are whatever config asks for.
func WithExplicitTLS(config *tls.Config) Option {
	return func(m *Manager) error {
		m.tlsConfig = config
		if m.tlsConfig == nil {
			m.tlsConfig = &tls.Config{}
		}
		return nil
	}
}

// WithDisableEPSV makes data connections use PASV directly.
func WithDisableEPSV() Option {
	return func(m *Manager) error {
		m.disableEPSV = true
		return nil
	}
}

// WithTempDir sets where CopyItem stages files. Default os.TempDir().
func WithTempDir(dir string) Option {
	return func(m *Manager) error {
		m.tempDir = dir
		return nil
	}
}
