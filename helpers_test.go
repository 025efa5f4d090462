package ftpclient_test

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	ftpclient "github.com/iamlordofplatinumforest/FTP-client"
	"github.com/iamlordofplatinumforest/FTP-client/internal/ftptest"
)

const (
	testUser     = "alice"
	testPassword = "wonderland"
)

// startServer runs an ftptest server for the duration of the test.
func startServer(t *testing.T, opts ftptest.Options) *ftptest.Server {
	t.Helper()
	if opts.User == "" {
		opts.User, opts.Password = testUser, testPassword
	}
	srv, err := ftptest.NewServer(opts)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv
}

func params(srv *ftptest.Server) ftpclient.Params {
	return ftpclient.Params{
		Host:     srv.Host(),
		Port:     srv.Port(),
		User:     testUser,
		Password: testPassword,
	}
}

// connect returns a Manager logged in to srv. It is disconnected when the
// test ends.
func connect(t *testing.T, srv *ftptest.Server, opts ...ftpclient.Option) *ftpclient.Manager {
	t.Helper()
	opts = append([]ftpclient.Option{ftpclient.WithTimeout(5 * time.Second)}, opts...)
	m, err := ftpclient.New(opts...)
	require.NoError(t, err)
	require.NoError(t, m.Connect(context.Background(), params(srv)))
	t.Cleanup(m.Disconnect)
	return m
}

// putRemote writes content at the absolute path p on the server's
// filesystem, creating parent directories.
func putRemote(t *testing.T, srv *ftptest.Server, p, content string) {
	t.Helper()
	require.NoError(t, srv.Fs.MkdirAll(path.Dir(p), 0o755))
	require.NoError(t, afero.WriteFile(srv.Fs, p, []byte(content), 0o644))
}

func readRemote(t *testing.T, srv *ftptest.Server, p string) string {
	t.Helper()
	b, err := afero.ReadFile(srv.Fs, p)
	require.NoError(t, err)
	return string(b)
}

func remoteExists(srv *ftptest.Server, p string) bool {
	ok, _ := afero.Exists(srv.Fs, p)
	return ok
}

func putLocal(t *testing.T, p, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func readLocal(t *testing.T, p string) string {
	t.Helper()
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	return string(b)
}

// recorder is a Progress and ItemObserver that keeps everything it sees.
type recorder struct {
	mu      sync.Mutex
	updates []ftpclient.TransferProgress
	items   []string
	failed  []string

	// onItem, when set, runs after each item is recorded.
	onItem func(n int)
}

func (r *recorder) Update(done, total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, ftpclient.TransferProgress{Done: done, Total: total})
}

func (r *recorder) ItemDone(p string, err error) {
	r.mu.Lock()
	r.items = append(r.items, p)
	if err != nil {
		r.failed = append(r.failed, p)
	}
	n := len(r.items)
	r.mu.Unlock()
	if r.onItem != nil {
		r.onItem(n)
	}
}

func (r *recorder) last() ftpclient.TransferProgress {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.updates) == 0 {
		return ftpclient.TransferProgress{}
	}
	return r.updates[len(r.updates)-1]
}

func (r *recorder) itemCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// fakeMetrics counts what the Manager reports.
type fakeMetrics struct {
	mu sync.Mutex
	c  metricCounts
}

type metricCounts struct {
	transfers   map[string]int
	transferErr int
	reconnects  int
	hits        int
	misses      int
	latencies   int
	connected   bool
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{c: metricCounts{transfers: make(map[string]int)}}
}

func (f *fakeMetrics) RecordTransfer(direction string, _ int64, _ time.Duration, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.transfers[direction]++
	if err != nil {
		f.c.transferErr++
	}
}

func (f *fakeMetrics) RecordReconnect(bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.reconnects++
}

func (f *fakeMetrics) RecordCacheLookup(hit bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if hit {
		f.c.hits++
	} else {
		f.c.misses++
	}
}

func (f *fakeMetrics) RecordLatency(time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.latencies++
}

func (f *fakeMetrics) SetConnected(connected bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.connected = connected
}

func (f *fakeMetrics) snapshot() metricCounts {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.c
	c.transfers = make(map[string]int, len(f.c.transfers))
	for k, v := range f.c.transfers {
		c.transfers[k] = v
	}
	return c
}
