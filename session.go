package ftpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/iamlordofplatinumforest/FTP-client/internal/ftpconn"
	"github.com/iamlordofplatinumforest/FTP-client/internal/ratelimit"
)

// DefaultPort is used when Params.Port is zero.
const DefaultPort = 21

// Params are the connection parameters kept for Reconnect.
type Params struct {
	Host     string
	Port     int
	User     string
	Password string
}

// Addr returns "host:port".
func (p Params) Addr() string {
	port := p.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(p.Host, strconv.Itoa(port))
}

// State is the session lifecycle state.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Manager owns one FTP session and serializes every command on it.
//
// All operations run under a single command lock; the lock is a one-slot
// channel so that waiting for it honours context cancellation. A Manager
// is safe for concurrent use.
type Manager struct {
	lock chan struct{}

	// Guarded by lock.
	conn   *ftpconn.Conn
	params *Params

	state atomic.Int32

	hbMu   sync.Mutex
	hbStop context.CancelFunc
	hbDone chan struct{}

	reconnects singleflight.Group
	cache      *listingCache

	timeout           time.Duration
	probeTimeout      time.Duration
	heartbeatInterval time.Duration
	autoReconnect     bool
	reconnectAttempts int
	reconnectDelay    time.Duration
	cacheTTL          time.Duration
	dialer            *net.Dialer
	tlsConfig         *tls.Config
	disableEPSV       bool
	limiter           *ratelimit.Limiter
	tempDir           string
	logger            *slog.Logger
	metrics           Metrics
}

// New returns a disconnected Manager.
//
// Example:
//
//	m, err := ftpclient.New(ftpclient.WithCacheTTL(time.Minute))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := m.Connect(ctx, ftpclient.Params{Host: "ftp.example.com", User: "u", Password: "p"}); err != nil {
//	    ok, msg := ftpclient.Describe(err)
//	    ...
//	}
//	defer m.Disconnect()
func New(opts ...Option) (*Manager, error) {
	m := &Manager{
		lock:              make(chan struct{}, 1),
		timeout:           30 * time.Second,
		probeTimeout:      3 * time.Second,
		heartbeatInterval: 30 * time.Second,
		autoReconnect:     true,
		reconnectAttempts: 3,
		reconnectDelay:    2 * time.Second,
		cacheTTL:          30 * time.Second,
		logger:            slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1})),
		metrics:           noopMetrics{},
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	m.cache = newListingCache(m.cacheTTL)
	return m, nil
}

// State reports the current lifecycle state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
	m.metrics.SetConnected(s == Connected)
}

func (m *Manager) acquire(ctx context.Context) error {
	select {
	case m.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) release() {
	<-m.lock
}

// Connect tears down any existing session (and stops its heartbeat), then
// probes, dials and logs in. Failures are *ConnectError.
func (m *Manager) Connect(ctx context.Context, p Params) error {
	m.stopHeartbeat()
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()

	m.teardownLocked(true)
	m.cache.flush()
	return m.connectLocked(ctx, p)
}

// Reconnect replays Connect with the last parameters, keeping the
// heartbeat running. Concurrent calls share one attempt.
func (m *Manager) Reconnect(ctx context.Context) error {
	_, err, _ := m.reconnects.Do("reconnect", func() (any, error) {
		if err := m.acquire(ctx); err != nil {
			return nil, err
		}
		defer m.release()

		if m.params == nil {
			return nil, ErrNoPriorConnection
		}
		m.teardownLocked(false)
		err := m.connectLocked(ctx, *m.params)
		m.metrics.RecordReconnect(err == nil)
		return nil, err
	})
	return err
}

// Disconnect stops the heartbeat, says QUIT if it can and drops the
// session. It is idempotent and waits for an in-flight operation to
// finish.
func (m *Manager) Disconnect() {
	m.stopHeartbeat()
	m.lock <- struct{}{}
	defer m.release()
	m.teardownLocked(true)
}

// teardownLocked drops the connection. graceful sends QUIT first; a
// connection already known to be dead is just closed.
func (m *Manager) teardownLocked(graceful bool) {
	if m.conn == nil {
		return
	}
	var err error
	if graceful {
		err = m.conn.Quit()
	} else {
		err = m.conn.Close()
	}
	if err != nil {
		m.logger.Debug("error closing session", "error", err)
	}
	m.conn = nil
	m.setState(Disconnected)
	m.logger.Info("disconnected")
}

func (m *Manager) connectLocked(ctx context.Context, p Params) error {
	m.setState(Connecting)
	conn, err := m.dial(ctx, p)
	if err != nil {
		m.setState(Disconnected)
		return err
	}
	m.conn = conn
	params := p
	m.params = &params
	m.setState(Connected)
	m.logger.Info("connected", "addr", p.Addr(), "user", p.User)
	return nil
}

func (m *Manager) dial(ctx context.Context, p Params) (*ftpconn.Conn, error) {
	addr := p.Addr()
	if _, err := probe(ctx, addr, m.probeTimeout); err != nil {
		return nil, &ConnectError{Kind: HostUnreachable, Addr: addr, Err: err}
	}

	conn, err := ftpconn.Dial(ctx, addr, m.connOptions()...)
	if err != nil {
		return nil, connectError(addr, err, false)
	}
	if err := conn.Login(p.User, p.Password); err != nil {
		conn.Close()
		return nil, connectError(addr, err, true)
	}
	if err := conn.Type("I"); err != nil {
		conn.Close()
		return nil, connectError(addr, err, false)
	}
	return conn, nil
}

func (m *Manager) connOptions() []ftpconn.Option {
	opts := []ftpconn.Option{
		ftpconn.WithTimeout(m.timeout),
		ftpconn.WithLogger(m.logger),
	}
	if m.dialer != nil {
		d := *m.dialer
		opts = append(opts, ftpconn.WithDialer(&d))
	}
	if m.tlsConfig != nil {
		opts = append(opts, ftpconn.WithExplicitTLS(m.tlsConfig))
	}
	if m.disableEPSV {
		opts = append(opts, ftpconn.WithDisableEPSV())
	}
	return opts
}

// connectError classifies err. During login a 530 or any other permanent
// reply is a credential rejection.
func connectError(addr string, err error, login bool) *ConnectError {
	ce := &ConnectError{Kind: ProtocolFailure, Addr: addr, Err: err}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		ce.Server = pe.Response
		if login && (pe.Code == 530 || pe.Is5xx()) {
			ce.Kind = AuthRejected
		}
	}
	return ce
}

// probe opens and closes a plain TCP connection to addr.
func probe(ctx context.Context, addr string, timeout time.Duration) (time.Duration, error) {
	d := net.Dialer{Timeout: timeout}
	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return 0, err
	}
	elapsed := time.Since(start)
	conn.Close()
	return elapsed, nil
}

// WithSession runs fn with exclusive use of the session. Every command in
// fn executes atomically with respect to other callers and the heartbeat.
// It returns ErrNotConnected when there is no session.
func (m *Manager) WithSession(ctx context.Context, fn func(*Session) error) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()

	if m.conn == nil {
		return ErrNotConnected
	}
	return fn(m.session())
}

// Do is WithSession for functions that produce a value.
func Do[T any](ctx context.Context, m *Manager, fn func(*Session) (T, error)) (T, error) {
	var out T
	err := m.WithSession(ctx, func(s *Session) error {
		var err error
		out, err = fn(s)
		return err
	})
	return out, err
}

// Session is the view of a live connection handed to WithSession callbacks.
// It must not be retained after the callback returns.
type Session struct {
	conn    *ftpconn.Conn
	logger  *slog.Logger
	limiter *ratelimit.Limiter
	metrics Metrics
	tempDir string
}

func (m *Manager) session() *Session {
	return &Session{
		conn:    m.conn,
		logger:  m.logger,
		limiter: m.limiter,
		metrics: m.metrics,
		tempDir: m.tempDir,
	}
}
