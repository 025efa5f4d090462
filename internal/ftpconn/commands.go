package ftpconn

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Noop sends NOOP. It is the liveness probe.
func (c *Conn) Noop() error {
	_, err := c.expect2xx("NOOP")
	return err
}

// Type sets the transfer type ("I" or "A"). Repeated calls with the same
// type are not sent again.
func (c *Conn) Type(t string) error {
	if c.currentType == t {
		return nil
	}
	if _, err := c.expect2xx("TYPE", t); err != nil {
		return err
	}
	c.currentType = t
	return nil
}

// ChangeDir sends CWD.
func (c *Conn) ChangeDir(path string) error {
	_, err := c.expect2xx("CWD", path)
	return err
}

// CurrentDir sends PWD and returns the quoted path from the 257 reply.
func (c *Conn) CurrentDir() (string, error) {
	resp, err := c.expect(257, "PWD")
	if err != nil {
		return "", err
	}
	return parseQuotedPath(resp.Message)
}

// parseQuotedPath extracts `"path"` from a 257 message. Doubled quotes
// inside the path stand for one quote.
func parseQuotedPath(msg string) (string, error) {
	start := strings.IndexByte(msg, '"')
	if start < 0 {
		return "", fmt.Errorf("invalid PWD reply: %s", msg)
	}
	var b strings.Builder
	for i := start + 1; i < len(msg); i++ {
		if msg[i] != '"' {
			b.WriteByte(msg[i])
			continue
		}
		if i+1 < len(msg) && msg[i+1] == '"' {
			b.WriteByte('"')
			i++
			continue
		}
		return b.String(), nil
	}
	return "", fmt.Errorf("invalid PWD reply: %s", msg)
}

// MakeDir sends MKD.
func (c *Conn) MakeDir(path string) error {
	_, err := c.expect2xx("MKD", path)
	return err
}

// RemoveDir sends RMD.
func (c *Conn) RemoveDir(path string) error {
	_, err := c.expect2xx("RMD", path)
	return err
}

// Delete sends DELE.
func (c *Conn) Delete(path string) error {
	_, err := c.expect2xx("DELE", path)
	return err
}

// Rename sends RNFR followed by RNTO.
func (c *Conn) Rename(from, to string) error {
	if _, err := c.expect(350, "RNFR", from); err != nil {
		return err
	}
	_, err := c.expect2xx("RNTO", to)
	return err
}

// Size sends SIZE in binary mode; vsftpd and ProFTPD refuse it in ASCII
// mode, which LIST leaves behind. Servers without SIZE answer 5xx, which
// comes back as a *ProtocolError.
func (c *Conn) Size(path string) (int64, error) {
	if err := c.Type("I"); err != nil {
		return 0, err
	}
	resp, err := c.expect(213, "SIZE", path)
	if err != nil {
		return 0, err
	}
	size, err := strconv.ParseInt(strings.TrimSpace(resp.Message), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid SIZE reply: %s", resp.Message)
	}
	return size, nil
}

// List returns the raw LIST lines for path (or the working directory when
// path is empty). Interpretation is left to the caller.
func (c *Conn) List(path string) ([]string, error) {
	if path == "" {
		return c.lines("LIST")
	}
	return c.lines("LIST", path)
}

// NameList returns the NLST names for path.
func (c *Conn) NameList(path string) ([]string, error) {
	if path == "" {
		return c.lines("NLST")
	}
	return c.lines("NLST", path)
}

func (c *Conn) lines(verb string, args ...string) ([]string, error) {
	if err := c.Type("A"); err != nil {
		return nil, err
	}
	dt, err := c.openData(verb, args...)
	if err != nil {
		return nil, err
	}

	var out []string
	scanner := bufio.NewScanner(dt)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line != "" {
			out = append(out, line)
		}
	}
	scanErr := scanner.Err()

	if err := c.finish(dt); err != nil {
		return nil, err
	}
	if scanErr != nil {
		return nil, fmt.Errorf("read %s data: %w", verb, scanErr)
	}
	return out, nil
}

// Retrieve streams path into w with RETR in chunks of at most bufSize bytes.
// onChunk, when non-nil, is called with the running total after each
// chunk. It returns the number of bytes written to w.
func (c *Conn) Retrieve(ctx context.Context, path string, w io.Writer, bufSize int, onChunk func(int64)) (int64, error) {
	if err := c.Type("I"); err != nil {
		return 0, err
	}
	dt, err := c.openData("RETR", path)
	if err != nil {
		return 0, err
	}

	n, copyErr := copyChunks(ctx, w, dt, bufSize, onChunk)
	if copyErr != nil {
		// Abandon the transfer; the completion reply is still drained so the
		// control connection stays in step.
		dt.Close()
		if _, err := c.read(); err != nil {
			c.logger.Debug("no completion reply after aborted RETR", "error", err)
		}
		return n, copyErr
	}
	return n, c.finish(dt)
}

// Store streams r to path with STOR in chunks of at most bufSize bytes.
func (c *Conn) Store(ctx context.Context, path string, r io.Reader, bufSize int, onChunk func(int64)) (int64, error) {
	if err := c.Type("I"); err != nil {
		return 0, err
	}
	dt, err := c.openData("STOR", path)
	if err != nil {
		return 0, err
	}

	n, copyErr := copyChunks(ctx, dt, r, bufSize, onChunk)
	finishErr := c.finish(dt)
	if copyErr != nil {
		return n, copyErr
	}
	return n, finishErr
}

// copyChunks copies src to dst one buffer at a time. It never uses
// io.ReaderFrom/WriterTo so bufSize is honoured exactly.
func copyChunks(ctx context.Context, dst io.Writer, src io.Reader, bufSize int, onChunk func(int64)) (int64, error) {
	if bufSize <= 0 {
		bufSize = 32 * 1024
	}
	buf := make([]byte, bufSize)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			total += int64(nw)
			if werr != nil {
				return total, werr
			}
			if nw != nr {
				return total, io.ErrShortWrite
			}
			if onChunk != nil {
				onChunk(total)
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return total, nil
			}
			return total, rerr
		}
	}
}
