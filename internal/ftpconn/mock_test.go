package ftpconn

import (
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"testing"
)

// mockServer scripts control replies for a single client connection.
// Commands without a handler get a generic default.
type mockServer struct {
	t        *testing.T
	listener net.Listener
	addr     string
	handlers map[string]func(conn *textproto.Conn, args string)

	// dataListener is opened by the EPSV/PASV default handlers.
	dataListener net.Listener

	mu       sync.Mutex
	received []string

	done chan struct{}
}

func newMockServer(t *testing.T) *mockServer {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := &mockServer{
		t:        t,
		listener: l,
		addr:     l.Addr().String(),
		handlers: make(map[string]func(*textproto.Conn, string)),
		done:     make(chan struct{}),
	}
	t.Cleanup(s.stop)
	return s
}

func (s *mockServer) start() {
	go func() {
		defer close(s.done)
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		fmt.Fprintf(conn, "220 Service ready\r\n")
		tc := textproto.NewConn(conn)
		defer tc.Close()

		for {
			line, err := tc.ReadLine()
			if err != nil {
				return
			}
			cmd, args, _ := strings.Cut(line, " ")
			cmd = strings.ToUpper(cmd)

			s.mu.Lock()
			s.received = append(s.received, line)
			s.mu.Unlock()

			if h, ok := s.handlers[cmd]; ok {
				h(tc, args)
				continue
			}
			switch cmd {
			case "USER":
				_ = tc.PrintfLine("331 User name okay, need password.")
			case "PASS":
				_ = tc.PrintfLine("230 User logged in, proceed.")
			case "TYPE", "NOOP":
				_ = tc.PrintfLine("200 Command okay.")
			case "EPSV":
				s.openDataListener()
				_, port, _ := net.SplitHostPort(s.data().Addr().String())
				_ = tc.PrintfLine("229 Entering Extended Passive Mode (|||%s|)", port)
			case "QUIT":
				_ = tc.PrintfLine("221 Goodbye.")
				return
			default:
				_ = tc.PrintfLine("502 Command not implemented.")
			}
		}
	}()
}

func (s *mockServer) openDataListener() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dataListener != nil {
		s.dataListener.Close()
	}
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		s.t.Error(err)
		return
	}
	s.dataListener = l
}

// serveData accepts the pending data connection, hands it to fn and closes
// it, bracketed by 150 and 226 replies.
func (s *mockServer) serveData(tc *textproto.Conn, fn func(net.Conn)) {
	_ = tc.PrintfLine("150 Opening data connection.")
	dc, err := s.data().Accept()
	if err != nil {
		_ = tc.PrintfLine("425 Can't open data connection.")
		return
	}
	fn(dc)
	dc.Close()
	_ = tc.PrintfLine("226 Transfer complete.")
}

func (s *mockServer) data() net.Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dataListener
}

func (s *mockServer) commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

func (s *mockServer) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener.Close()
	if s.dataListener != nil {
		s.dataListener.Close()
	}
}

// sendLines writes lines as a LIST/NLST payload.
func sendLines(lines ...string) func(net.Conn) {
	return func(dc net.Conn) {
		for _, l := range lines {
			_, _ = io.WriteString(dc, l+"\r\n")
		}
	}
}
