// Package ftpconn speaks the RFC 959 control and data protocol for one
// FTP connection. It knows nothing about sessions, caching or recursion;
// callers serialize access themselves because a Conn is not safe for
// concurrent use.
package ftpconn

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"
)

// Conn is a logged-in (or about to be) FTP control connection.
type Conn struct {
	conn   net.Conn
	reader *bufio.Reader

	// host is used for EPSV data connections and for PASV replies that
	// advertise 0.0.0.0.
	host string

	timeout   time.Duration
	dialer    *net.Dialer
	tlsConfig *tls.Config
	logger    *slog.Logger

	disableEPSV bool
	currentType string
	lastCommand time.Time
}

// Option configures a Conn before it dials.
type Option func(*Conn)

// WithTimeout bounds every control round trip and every data read/write.
func WithTimeout(d time.Duration) Option {
	return func(c *Conn) { c.timeout = d }
}

// WithLogger routes command/response tracing to logger at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Conn) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDialer replaces the dialer used for control and data connections.
func WithDialer(d *net.Dialer) Option {
	return func(c *Conn) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithExplicitTLS upgrades the control connection with AUTH TLS and
// protects data connections with PROT P. Certificate policy is whatever
// config says.
func WithExplicitTLS(config *tls.Config) Option {
	return func(c *Conn) {
		if config == nil {
			config = &tls.Config{}
		}
		if config.ClientSessionCache == nil {
			config.ClientSessionCache = tls.NewLRUClientSessionCache(0)
		}
		c.tlsConfig = config
	}
}

// WithDisableEPSV makes passive mode go straight to PASV.
func WithDisableEPSV() Option {
	return func(c *Conn) { c.disableEPSV = true }
}

// Dial opens the control connection to addr ("host:port") and reads the
// greeting. It does not log in.
func Dial(ctx context.Context, addr string, opts ...Option) (*Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}

	c := &Conn{
		host:    host,
		timeout: 30 * time.Second,
		dialer:  &net.Dialer{},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dialer.Timeout == 0 {
		c.dialer.Timeout = c.timeout
	}

	c.logger.Debug("connecting to ftp server", "addr", addr, "tls", c.tlsConfig != nil)
	conn, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)

	greeting, err := c.read()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read greeting: %w", err)
	}
	if greeting.Code != 220 {
		conn.Close()
		return nil, newProtocolError("CONNECT", greeting)
	}

	if c.tlsConfig != nil {
		if err := c.upgradeTLS(); err != nil {
			conn.Close()
			return nil, err
		}
	}

	c.lastCommand = time.Now()
	return c, nil
}

func (c *Conn) upgradeTLS() error {
	if _, err := c.expect(234, "AUTH", "TLS"); err != nil {
		return fmt.Errorf("AUTH TLS failed: %w", err)
	}

	cfg := c.tlsConfig.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = c.host
	}
	tlsConn := tls.Client(c.conn, cfg)
	if err := c.setDeadline(); err != nil {
		return err
	}
	if err := tlsConn.Handshake(); err != nil {
		return fmt.Errorf("TLS handshake failed: %w", err)
	}
	c.logger.Debug("TLS handshake complete")

	c.conn = tlsConn
	c.reader = bufio.NewReader(tlsConn)

	if _, err := c.expect(200, "PBSZ", "0"); err != nil {
		return err
	}
	_, err := c.expect(200, "PROT", "P")
	return err
}

// Login sends USER and, when asked for it, PASS. The returned error is a
// *ProtocolError when the server refused the credentials.
func (c *Conn) Login(user, password string) error {
	resp, err := c.cmd("USER", user)
	if err != nil {
		return err
	}
	switch resp.Code {
	case 230:
		return nil
	case 331, 332:
	default:
		return newProtocolError("USER", resp)
	}
	_, err = c.expect2xx("PASS", password)
	return err
}

// Quit sends QUIT and closes the connection. The connection is closed even
// when the QUIT round trip fails.
func (c *Conn) Quit() error {
	_, qerr := c.cmd("QUIT")
	cerr := c.conn.Close()
	if qerr != nil {
		return qerr
	}
	return cerr
}

// Close drops the control connection without saying goodbye.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// LastCommand is when the last command was written.
func (c *Conn) LastCommand() time.Time {
	return c.lastCommand
}

// deadlineConn refreshes a deadline before every read and write so that a
// stalled data connection fails instead of hanging forever.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(b)
}
