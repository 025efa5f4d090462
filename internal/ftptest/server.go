// Package ftptest runs a small in-process FTP server over an afero
// filesystem for tests, in the spirit of net/http/httptest.
//
// It speaks enough RFC 959 for a passive-mode client: login, directory
// navigation, LIST/NLST, RETR/STOR, DELE/RMD/MKD, RNFR/RNTO, SIZE and
// NOOP. Hooks let tests misreport sizes, deny commands and cut
// connections.
package ftptest

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// Options configure a Server. The zero value accepts any login and
// supports every command.
type Options struct {
	// User and Password, when User is set, are the only accepted
	// credentials.
	User     string
	Password string

	// DisableEPSV makes EPSV answer 502 so clients fall back to PASV.
	DisableEPSV bool

	// DisableSize makes SIZE answer 502.
	DisableSize bool

	// BinarySize makes SIZE answer 550 unless the session is in TYPE I,
	// the way vsftpd does.
	BinarySize bool

	// SizeFunc, when set, rewrites the size SIZE reports for an absolute
	// path.
	SizeFunc func(path string, actual int64) int64

	// Deny, when it returns true, answers the command with 550 Permission
	// denied. path is absolute, or "" for commands without an argument.
	Deny func(verb, path string) bool

	Logger *slog.Logger
}

// Server is a running test server. Fs is the backing filesystem and may be
// inspected or seeded directly.
type Server struct {
	Addr string
	Fs   afero.Fs

	opts     Options
	listener net.Listener
	logger   *slog.Logger

	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	counts   map[string]int
	closed   bool
	sessions sync.WaitGroup
}

// NewServer starts a server on 127.0.0.1 with a fresh in-memory
// filesystem.
func NewServer(opts Options) (*Server, error) {
	return NewServerWithFs(afero.NewMemMapFs(), opts)
}

// NewServerWithFs starts a server backed by fs.
func NewServerWithFs(fs afero.Fs, opts Options) (*Server, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		Addr:     l.Addr().String(),
		Fs:       fs,
		opts:     opts,
		listener: l,
		logger:   logger,
		conns:    make(map[net.Conn]struct{}),
		counts:   make(map[string]int),
	}
	go s.serve()
	return s, nil
}

// Host and Port split Addr for callers that take them separately.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.Addr)
	return host
}

func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.sessions.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.sessions.Done()
			newSession(s, conn).serve()
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
		}()
	}
}

// DropConnections closes every open control connection without a reply,
// as a crashed server or a broken network would. New connections are
// still accepted.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.Close()
	}
}

// Close stops accepting connections, drops the open ones and waits for
// their sessions to end.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	err := s.listener.Close()
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.sessions.Wait()
	return err
}

// CommandCount reports how many times verb was received across all
// sessions.
func (s *Server) CommandCount(verb string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[strings.ToUpper(verb)]
}

// ResetCounts zeroes the command counters.
func (s *Server) ResetCounts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = make(map[string]int)
}

func (s *Server) count(verb string) {
	s.mu.Lock()
	s.counts[verb]++
	s.mu.Unlock()
}
