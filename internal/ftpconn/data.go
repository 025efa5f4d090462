package ftpconn

import (
	"crypto/tls"
	"fmt"
	"net"
	"regexp"
	"strconv"
)

var (
	// 227 Entering Passive Mode (h1,h2,h3,h4,p1,p2)
	pasvRegex = regexp.MustCompile(`(\d+),(\d+),(\d+),(\d+),(\d+),(\d+)`)

	// 229 Entering Extended Passive Mode (|||port|)
	epsvRegex = regexp.MustCompile(`\(\|\|\|(\d+)\|\)`)
)

// parsePASV returns "h1.h2.h3.h4:port" from a PASV reply.
func parsePASV(msg string) (string, error) {
	m := pasvRegex.FindStringSubmatch(msg)
	if m == nil {
		return "", fmt.Errorf("invalid PASV reply: %s", msg)
	}
	var n [6]int
	for i := range n {
		v, err := strconv.Atoi(m[i+1])
		if err != nil || v < 0 || v > 255 {
			return "", fmt.Errorf("invalid PASV reply: %s", msg)
		}
		n[i] = v
	}
	host := fmt.Sprintf("%d.%d.%d.%d", n[0], n[1], n[2], n[3])
	return net.JoinHostPort(host, strconv.Itoa(n[4]<<8|n[5])), nil
}

// parseEPSV returns the port from an EPSV reply.
func parseEPSV(msg string) (string, error) {
	m := epsvRegex.FindStringSubmatch(msg)
	if m == nil {
		return "", fmt.Errorf("invalid EPSV reply: %s", msg)
	}
	port, err := strconv.Atoi(m[1])
	if err != nil || port <= 0 || port > 65535 {
		return "", fmt.Errorf("invalid EPSV port: %s", m[1])
	}
	return m[1], nil
}

// resolveDataAddr substitutes the control host when a server behind NAT
// advertises 0.0.0.0.
func resolveDataAddr(pasvAddr, controlHost string) string {
	host, port, err := net.SplitHostPort(pasvAddr)
	if err != nil {
		return pasvAddr
	}
	if host == "0.0.0.0" {
		return net.JoinHostPort(controlHost, port)
	}
	return pasvAddr
}

// openPassive negotiates a passive data address (EPSV first, PASV as the
// fallback) and dials it.
func (c *Conn) openPassive() (net.Conn, error) {
	var addr string

	if !c.disableEPSV {
		resp, err := c.cmd("EPSV")
		if err != nil {
			return nil, err
		}
		switch {
		case resp.Is2xx():
			if port, perr := parseEPSV(resp.Message); perr == nil {
				addr = net.JoinHostPort(c.host, port)
			}
		case resp.Code == 500 || resp.Code == 502:
			c.disableEPSV = true
		}
	}

	if addr == "" {
		resp, err := c.expect2xx("PASV")
		if err != nil {
			return nil, err
		}
		a, err := parsePASV(resp.Message)
		if err != nil {
			return nil, err
		}
		addr = resolveDataAddr(a, c.host)
	}

	dc, err := c.dialer.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to data port: %w", err)
	}
	if c.tlsConfig != nil {
		cfg := c.tlsConfig.Clone()
		if cfg.ServerName == "" {
			cfg.ServerName = c.host
		}
		tc := tls.Client(dc, cfg)
		if err := tc.Handshake(); err != nil {
			dc.Close()
			return nil, fmt.Errorf("data connection TLS handshake failed: %w", err)
		}
		dc = tc
	}
	if c.timeout > 0 {
		dc = &deadlineConn{Conn: dc, timeout: c.timeout}
	}
	return dc, nil
}

// dataTransfer is an open data connection plus whether the server already
// sent the completion reply.
type dataTransfer struct {
	net.Conn
	command  string
	complete bool
}

// openData opens a passive connection and issues a transfer command on it.
// The caller must call finish.
func (c *Conn) openData(verb string, args ...string) (*dataTransfer, error) {
	dc, err := c.openPassive()
	if err != nil {
		return nil, err
	}
	resp, err := c.cmd(verb, args...)
	if err != nil {
		dc.Close()
		return nil, err
	}
	if !resp.Is1xx() && !resp.Is2xx() {
		dc.Close()
		return nil, newProtocolError(verb, resp)
	}
	return &dataTransfer{Conn: dc, command: verb, complete: resp.Is2xx()}, nil
}

// finish closes the data connection and waits for the transfer outcome.
func (c *Conn) finish(dt *dataTransfer) error {
	if err := dt.Close(); err != nil {
		c.logger.Debug("data connection close failed", "error", err)
	}
	if dt.complete {
		return nil
	}
	resp, err := c.read()
	if err != nil {
		return fmt.Errorf("failed to read completion reply: %w", err)
	}
	if !resp.Is2xx() {
		return newProtocolError(dt.command, resp)
	}
	return nil
}
