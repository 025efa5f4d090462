package ftpconn

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePASV(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		input    string
		wantAddr string
		wantErr  bool
	}{
		{name: "standard", input: "Entering Passive Mode (192,168,1,1,195,149)", wantAddr: "192.168.1.1:50069"},
		{name: "no parentheses", input: "Entering Passive Mode 10,0,0,5,78,52", wantAddr: "10.0.0.5:20020"},
		{name: "invalid", input: "Invalid response", wantErr: true},
		{name: "octet out of range", input: "(256,1,1,1,1,1)", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parsePASV(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAddr, got)
		})
	}
}

func TestParseEPSV(t *testing.T) {
	t.Parallel()
	port, err := parseEPSV("Entering Extended Passive Mode (|||6446|)")
	require.NoError(t, err)
	assert.Equal(t, "6446", port)

	_, err = parseEPSV("Entering Extended Passive Mode")
	assert.Error(t, err)

	_, err = parseEPSV("(|||70000|)")
	assert.Error(t, err)
}

func TestResolveDataAddr(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "192.168.1.5:12345", resolveDataAddr("192.168.1.5:12345", "10.0.0.1"))
	assert.Equal(t, "10.0.0.1:12345", resolveDataAddr("0.0.0.0:12345", "10.0.0.1"))
	assert.Equal(t, "invalid", resolveDataAddr("invalid", "10.0.0.1"))
}

// chunkRecorder records the size of every Write.
type chunkRecorder struct {
	bytes.Buffer
	sizes []int
}

func (c *chunkRecorder) Write(p []byte) (int, error) {
	c.sizes = append(c.sizes, len(p))
	return c.Buffer.Write(p)
}

func TestCopyChunks(t *testing.T) {
	t.Parallel()

	payload := strings.Repeat("x", 10_000)
	var dst chunkRecorder
	var updates []int64
	n, err := copyChunks(context.Background(), &dst, strings.NewReader(payload), 4096, func(done int64) {
		updates = append(updates, done)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)
	assert.Equal(t, payload, dst.String())
	for _, s := range dst.sizes {
		assert.LessOrEqual(t, s, 4096)
	}
	assert.Equal(t, []int64{4096, 8192, 10000}, updates)
}

func TestCopyChunks_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := copyChunks(ctx, io.Discard, strings.NewReader("data"), 2, nil)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, context.Canceled)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestCopyChunks_WriteError(t *testing.T) {
	t.Parallel()
	_, err := copyChunks(context.Background(), failingWriter{}, strings.NewReader("data"), 2, nil)
	assert.EqualError(t, err, "disk full")
}
