package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamlordofplatinumforest/FTP-client/internal/ftptest"
)

func startServer(t *testing.T) *ftptest.Server {
	t.Helper()
	srv, err := ftptest.NewServer(ftptest.Options{User: "alice", Password: "wonderland"})
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv
}

// run executes the CLI against srv with an empty home directory.
func run(t *testing.T, srv *ftptest.Server, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(append([]string{
		"--host", srv.Host(),
		"--port", strconv.Itoa(srv.Port()),
		"--user", "alice",
		"--password", "wonderland",
	}, args...))
	err = cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestLs(t *testing.T) {
	srv := startServer(t)
	require.NoError(t, srv.Fs.MkdirAll("/docs", 0o755))
	require.NoError(t, afero.WriteFile(srv.Fs, "/docs/a.txt", []byte("a"), 0o644))
	require.NoError(t, afero.WriteFile(srv.Fs, "/notes.txt", make([]byte, 2048), 0o644))
	require.NoError(t, afero.WriteFile(srv.Fs, "/.hidden", []byte("x"), 0o644))

	out, _, err := run(t, srv, "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "docs/")
	assert.Contains(t, out, "1 items")
	assert.Contains(t, out, "notes.txt")
	assert.Contains(t, out, "2.0 KiB")
	assert.NotContains(t, out, ".hidden")
	assert.Less(t, bytes.Index([]byte(out), []byte("docs/")), bytes.Index([]byte(out), []byte("notes.txt")))

	out, _, err = run(t, srv, "ls", "-a")
	require.NoError(t, err)
	assert.Contains(t, out, ".hidden")

	out, _, err = run(t, srv, "ls", "docs")
	require.NoError(t, err)
	assert.Contains(t, out, "a.txt")
	assert.NotContains(t, out, "notes.txt")
}

func TestPutGet(t *testing.T) {
	srv := startServer(t)
	local := filepath.Join(t.TempDir(), "report.csv")
	require.NoError(t, os.WriteFile(local, []byte("a,b\n1,2\n"), 0o644))

	_, _, err := run(t, srv, "put", "-q", local)
	require.NoError(t, err)
	got, err := afero.ReadFile(srv.Fs, "/report.csv")
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(got))

	dst := filepath.Join(t.TempDir(), "copy.csv")
	_, stderr, err := run(t, srv, "get", "report.csv", dst)
	require.NoError(t, err)
	assert.Contains(t, stderr, "report.csv")
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))
}

func TestMkdirMvRm(t *testing.T) {
	srv := startServer(t)

	_, _, err := run(t, srv, "mkdir", "box")
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(srv.Fs, "/box/item", []byte("x"), 0o644))

	_, _, err = run(t, srv, "mv", "box", "crate")
	require.NoError(t, err)
	ok, _ := afero.DirExists(srv.Fs, "/crate")
	assert.True(t, ok)

	_, stderr, err := run(t, srv, "rm", "crate")
	require.Error(t, err)
	assert.Contains(t, stderr, "Error:")

	_, _, err = run(t, srv, "rm", "-r", "crate")
	require.NoError(t, err)
	ok, _ = afero.Exists(srv.Fs, "/crate")
	assert.False(t, ok)
}

func TestPwdWithDir(t *testing.T) {
	srv := startServer(t)
	require.NoError(t, srv.Fs.MkdirAll("/pub/data", 0o755))

	out, _, err := run(t, srv, "--dir", "/pub/data", "pwd")
	require.NoError(t, err)
	assert.Equal(t, "/pub/data\n", out)
}

func TestMissingHost(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{"pwd"})
	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, errOut.String(), "no host given")
}

func TestBadLimit(t *testing.T) {
	srv := startServer(t)
	_, stderr, err := run(t, srv, "--limit", "warp", "pwd")
	require.Error(t, err)
	assert.Contains(t, stderr, "bandwidth_limit")
}
