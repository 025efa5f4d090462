package ftpconn

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Response is one complete reply on the control connection.
type Response struct {
	// Code is the three-digit reply code.
	Code int

	// Message is the reply text with the code prefixes stripped; lines of a
	// multi-line reply are joined with "\n".
	Message string

	// Lines are the raw reply lines.
	Lines []string
}

// Is1xx reports a positive preliminary reply (a data transfer is starting).
func (r *Response) Is1xx() bool { return r.Code >= 100 && r.Code < 200 }

// Is2xx reports a positive completion reply.
func (r *Response) Is2xx() bool { return r.Code >= 200 && r.Code < 300 }

// Is3xx reports a positive intermediate reply.
func (r *Response) Is3xx() bool { return r.Code >= 300 && r.Code < 400 }

// readResponse reads one reply from r. A multi-line reply starts with
// "ddd-" and ends with a line starting "ddd " carrying the same code;
// lines in between may be arbitrary text.
func readResponse(r *bufio.Reader) (*Response, error) {
	first, err := readLine(r)
	if err != nil {
		return nil, err
	}
	code, sep, err := splitCode(first)
	if err != nil {
		return nil, err
	}

	resp := &Response{Code: code, Lines: []string{first}}
	if sep == ' ' {
		if len(first) > 4 {
			resp.Message = first[4:]
		}
		return resp, nil
	}

	prefix := first[:3]
	msg := []string{first[4:]}
	for {
		line, err := readLine(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("unexpected EOF in multi-line reply %d", code)
			}
			return nil, err
		}
		resp.Lines = append(resp.Lines, line)

		if len(line) >= 4 && line[:3] == prefix && (line[3] == ' ' || line[3] == '-') {
			msg = append(msg, line[4:])
			if line[3] == ' ' {
				break
			}
			continue
		}
		// Continuation text without a code prefix.
		msg = append(msg, strings.TrimLeft(line, " "))
	}
	resp.Message = strings.Join(msg, "\n")
	return resp, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if line != "" && errors.Is(err, io.EOF) {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func splitCode(line string) (int, byte, error) {
	if len(line) < 3 {
		return 0, 0, fmt.Errorf("invalid reply line: %q", line)
	}
	code, err := strconv.Atoi(line[:3])
	if err != nil || code < 100 || code > 599 {
		return 0, 0, fmt.Errorf("invalid reply code: %q", line)
	}
	if len(line) == 3 {
		// "200" with nothing after it is accepted as a single-line reply.
		return code, ' ', nil
	}
	switch line[3] {
	case ' ', '-':
		return code, line[3], nil
	}
	return 0, 0, fmt.Errorf("invalid reply separator: %q", line)
}

// cmd sends one command line and reads the reply.
func (c *Conn) cmd(verb string, args ...string) (*Response, error) {
	line := verb
	if len(args) > 0 {
		line = verb + " " + strings.Join(args, " ")
	}
	if verb == "PASS" {
		c.logger.Debug("ftp command", "cmd", "PASS ****")
	} else {
		c.logger.Debug("ftp command", "cmd", line)
	}

	if err := c.setDeadline(); err != nil {
		return nil, err
	}
	if _, err := io.WriteString(c.conn, line+"\r\n"); err != nil {
		return nil, fmt.Errorf("send %s: %w", verb, err)
	}
	c.lastCommand = time.Now()

	resp, err := c.read()
	if err != nil {
		return nil, fmt.Errorf("read %s reply: %w", verb, err)
	}
	return resp, nil
}

// read reads the next reply, e.g. the completion reply after a transfer.
func (c *Conn) read() (*Response, error) {
	if err := c.setDeadline(); err != nil {
		return nil, err
	}
	resp, err := readResponse(c.reader)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("ftp response", "code", resp.Code, "message", resp.Message)
	return resp, nil
}

func (c *Conn) setDeadline() error {
	if c.timeout <= 0 {
		return nil
	}
	if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	return nil
}

// expect sends a command and requires the given reply code.
func (c *Conn) expect(code int, verb string, args ...string) (*Response, error) {
	resp, err := c.cmd(verb, args...)
	if err != nil {
		return nil, err
	}
	if resp.Code != code {
		return resp, newProtocolError(verb, resp)
	}
	return resp, nil
}

// expect2xx sends a command and requires a positive completion reply.
func (c *Conn) expect2xx(verb string, args ...string) (*Response, error) {
	resp, err := c.cmd(verb, args...)
	if err != nil {
		return nil, err
	}
	if !resp.Is2xx() {
		return resp, newProtocolError(verb, resp)
	}
	return resp, nil
}
