package ftpclient_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ftpclient "github.com/iamlordofplatinumforest/FTP-client"
	"github.com/iamlordofplatinumforest/FTP-client/internal/ftptest"
)

func TestUploadFolder(t *testing.T) {
	t.Parallel()
	srv := startServer(t, ftptest.Options{})
	m := connect(t, srv)
	ctx := context.Background()

	local := t.TempDir()
	putLocal(t, filepath.Join(local, "a.txt"), "a")
	putLocal(t, filepath.Join(local, "sub", "b.txt"), "b")
	putLocal(t, filepath.Join(local, "sub", "deeper", "c.txt"), "c")
	require.NoError(t, os.Mkdir(filepath.Join(local, "empty"), 0o755))

	rec := &recorder{}
	require.NoError(t, m.UploadFolder(ctx, local, "site", rec))

	assert.Equal(t, "a", readRemote(t, srv, "/site/a.txt"))
	assert.Equal(t, "b", readRemote(t, srv, "/site/sub/b.txt"))
	assert.Equal(t, "c", readRemote(t, srv, "/site/sub/deeper/c.txt"))
	assert.True(t, remoteExists(srv, "/site/empty"))
	assert.Equal(t, 3, rec.itemCount())
	assert.Empty(t, rec.failed)

	dir, err := m.CurrentDirectory(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/", dir)

	// A second run reuses the existing folders.
	putLocal(t, filepath.Join(local, "sub", "b.txt"), "b2")
	require.NoError(t, m.UploadFolder(ctx, local, "site", nil))
	assert.Equal(t, "b2", readRemote(t, srv, "/site/sub/b.txt"))
}

func TestDownloadFolder(t *testing.T) {
	t.Parallel()
	srv := startServer(t, ftptest.Options{})
	putRemote(t, srv, "/site/index.html", "<html>")
	putRemote(t, srv, "/site/img/logo one.png", "png")
	require.NoError(t, srv.Fs.Mkdir("/site/empty", 0o755))
	m := connect(t, srv)
	ctx := context.Background()

	local := filepath.Join(t.TempDir(), "mirror")
	require.NoError(t, m.DownloadFolder(ctx, "site", local, nil))

	assert.Equal(t, "<html>", readLocal(t, filepath.Join(local, "index.html")))
	assert.Equal(t, "png", readLocal(t, filepath.Join(local, "img", "logo one.png")))
	info, err := os.Stat(filepath.Join(local, "empty"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	dir, err := m.CurrentDirectory(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/", dir)
}

func TestDownloadFolder_ContinuesPastFailures(t *testing.T) {
	t.Parallel()
	srv := startServer(t, ftptest.Options{
		Deny: func(verb, p string) bool { return verb == "RETR" && p == "/site/b.txt" },
	})
	putRemote(t, srv, "/site/a.txt", "a")
	putRemote(t, srv, "/site/b.txt", "b")
	putRemote(t, srv, "/site/c.txt", "c")
	m := connect(t, srv)

	local := t.TempDir()
	rec := &recorder{}
	err := m.DownloadFolder(context.Background(), "site", local, rec)

	var be *ftpclient.BatchError
	require.ErrorAs(t, err, &be)
	require.Len(t, be.Items, 1)
	assert.Equal(t, filepath.Join(local, "b.txt"), be.Items[0].Path)
	var pe *ftpclient.ProtocolError
	assert.ErrorAs(t, err, &pe)

	assert.Equal(t, "a", readLocal(t, filepath.Join(local, "a.txt")))
	assert.Equal(t, "c", readLocal(t, filepath.Join(local, "c.txt")))
	assert.NoFileExists(t, filepath.Join(local, "b.txt"))
	assert.Equal(t, 3, rec.itemCount())
	assert.Equal(t, []string{filepath.Join(local, "b.txt")}, rec.failed)
}

func TestUploadFolder_CancelBetweenFiles(t *testing.T) {
	t.Parallel()
	srv := startServer(t, ftptest.Options{})
	m := connect(t, srv)

	local := t.TempDir()
	for i := range 100 {
		putLocal(t, filepath.Join(local, fmt.Sprintf("f%03d.txt", i)), "x")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{onItem: func(n int) {
		if n == 10 {
			cancel()
		}
	}}

	err := m.UploadFolder(ctx, local, "dest", rec)
	require.ErrorIs(t, err, ftpclient.ErrCanceled)
	require.ErrorIs(t, err, context.Canceled)

	assert.LessOrEqual(t, srv.CommandCount("STOR"), 11)
	assert.GreaterOrEqual(t, srv.CommandCount("STOR"), 10)

	_, msg := ftpclient.Describe(err)
	assert.Equal(t, "Operation canceled", msg)

	dir, err := m.CurrentDirectory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/", dir)
}

func TestCopyItem_File(t *testing.T) {
	t.Parallel()
	srv := startServer(t, ftptest.Options{})
	putRemote(t, srv, "/src.txt", "copy me")
	staging := t.TempDir()
	m := connect(t, srv, ftpclient.WithTempDir(staging))

	require.NoError(t, m.CopyItem(context.Background(), "src.txt", "dst.txt", nil))
	assert.Equal(t, "copy me", readRemote(t, srv, "/dst.txt"))
	assert.Equal(t, "copy me", readRemote(t, srv, "/src.txt"))

	files, err := os.ReadDir(staging)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestCopyItem_Directory(t *testing.T) {
	t.Parallel()
	srv := startServer(t, ftptest.Options{})
	putRemote(t, srv, "/proj/main.go", "package main")
	putRemote(t, srv, "/proj/pkg/util.go", "package pkg")
	staging := t.TempDir()
	m := connect(t, srv, ftpclient.WithTempDir(staging))

	require.NoError(t, m.CopyItem(context.Background(), "proj", "proj-copy", nil))
	assert.Equal(t, "package main", readRemote(t, srv, "/proj-copy/main.go"))
	assert.Equal(t, "package pkg", readRemote(t, srv, "/proj-copy/pkg/util.go"))

	files, err := os.ReadDir(staging)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestCopyItem_IntoItself(t *testing.T) {
	t.Parallel()
	srv := startServer(t, ftptest.Options{})
	putRemote(t, srv, "/a/file.txt", "x")
	putRemote(t, srv, "/work/keep.txt", "y")
	m := connect(t, srv, ftpclient.WithTempDir(t.TempDir()))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tests := []struct {
		name     string
		cwd      string
		src, dst string
	}{
		{"child", "/", "a", "a/b"},
		{"same", "/", "a", "a"},
		{"absolute child", "/work", "/a", "/a/b/c"},
		{"relative from elsewhere", "/work", "../a", "/a/copy"},
		{"root", "/", "/", "/backup"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, m.ChangeDirectory(ctx, tt.cwd))
			err := m.CopyItem(ctx, tt.src, tt.dst, nil)
			require.ErrorIs(t, err, ftpclient.ErrCopyIntoSelf)
			assert.NotErrorIs(t, err, context.DeadlineExceeded)
		})
	}
	assert.False(t, remoteExists(srv, "/a/b"))
	assert.False(t, remoteExists(srv, "/a/copy"))
	assert.False(t, remoteExists(srv, "/backup"))

	// A sibling whose name merely starts with the source is fine.
	require.NoError(t, m.ChangeDirectory(ctx, "/"))
	require.NoError(t, m.CopyItem(ctx, "a", "ab", nil))
	assert.Equal(t, "x", readRemote(t, srv, "/ab/file.txt"))
}

func TestCopyItem_FailureLeavesNoStagingFile(t *testing.T) {
	t.Parallel()
	srv := startServer(t, ftptest.Options{
		Deny: func(verb, p string) bool { return verb == "STOR" },
	})
	putRemote(t, srv, "/src.txt", "data")
	staging := t.TempDir()
	m := connect(t, srv, ftpclient.WithTempDir(staging))

	err := m.CopyItem(context.Background(), "src.txt", "dst.txt", nil)
	require.Error(t, err)

	files, err := os.ReadDir(staging)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestBatch(t *testing.T) {
	t.Parallel()
	srv := startServer(t, ftptest.Options{})
	putRemote(t, srv, "/old.txt", "old")
	m := connect(t, srv)
	dir := t.TempDir()
	putLocal(t, filepath.Join(dir, "a.txt"), "a")

	ops := []ftpclient.Op{
		ftpclient.UploadOp(filepath.Join(dir, "a.txt"), "a.txt", nil),
		ftpclient.UploadOp(filepath.Join(dir, "missing.txt"), "missing.txt", nil),
		ftpclient.DownloadOp("old.txt", filepath.Join(dir, "old.txt"), nil),
		ftpclient.DeleteOp("old.txt"),
	}
	rec := &recorder{}
	err := m.Batch(context.Background(), ops, rec)

	var be *ftpclient.BatchError
	require.ErrorAs(t, err, &be)
	require.Len(t, be.Items, 1)
	assert.Equal(t, filepath.Join(dir, "missing.txt"), be.Items[0].Path)
	assert.ErrorIs(t, err, os.ErrNotExist)

	assert.Equal(t, "a", readRemote(t, srv, "/a.txt"))
	assert.Equal(t, "old", readLocal(t, filepath.Join(dir, "old.txt")))
	assert.False(t, remoteExists(srv, "/old.txt"))
	assert.Equal(t, 4, rec.itemCount())
}

func TestBatch_Canceled(t *testing.T) {
	t.Parallel()
	srv := startServer(t, ftptest.Options{})
	m := connect(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var ops []ftpclient.Op
	for i := range 5 {
		ops = append(ops, ftpclient.Op{
			Path: fmt.Sprintf("op%d", i),
			Run: func(_ context.Context, s *ftpclient.Session) error {
				if i == 1 {
					cancel()
				}
				return s.CreateDirectory(fmt.Sprintf("d%d", i))
			},
		})
	}

	err := m.Batch(ctx, ops, nil)
	require.ErrorIs(t, err, ftpclient.ErrCanceled)
	assert.True(t, remoteExists(srv, "/d0"))
	assert.True(t, remoteExists(srv, "/d1"), "the running op finishes")
	assert.False(t, remoteExists(srv, "/d2"))
}
