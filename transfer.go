package ftpclient

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/iamlordofplatinumforest/FTP-client/internal/ratelimit"
)

const (
	// unknownSize is the progress total used when SIZE is unavailable. It
	// plays no part in verification.
	unknownSize = 1 << 20

	smallFileLimit  = 1 << 20
	mediumFileLimit = 10 << 20
)

// BufferSize is the chunk size used for a file of the given size: 8 KiB
// under 1 MiB, 32 KiB under 10 MiB, 64 KiB otherwise.
func BufferSize(size int64) int {
	switch {
	case size < smallFileLimit:
		return 8 << 10
	case size < mediumFileLimit:
		return 32 << 10
	default:
		return 64 << 10
	}
}

// Download retrieves remote into local. Data goes to a temporary file in
// local's directory that is renamed into place only after the byte count
// matches the size the server reported up front. On any failure the
// temporary file is removed and local is left untouched.
//
// ctx aborts the transfer between chunks.
func (s *Session) Download(ctx context.Context, remote, local string, p Progress) (err error) {
	start := time.Now()
	var n int64
	defer func() { s.metrics.RecordTransfer("download", n, time.Since(start), err) }()

	total, sizeErr := s.conn.Size(remote)
	reported := sizeErr == nil
	if !reported {
		s.logger.Warn("server did not report a size, download not verified", "remote", remote, "error", sizeErr)
		total = unknownSize
	}

	tmp, err := createPartFile(local)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err == nil {
			return
		}
		if rmErr := os.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			s.logger.Warn("failed to remove temporary file", "path", tmpName, "error", rmErr)
		}
	}()

	w := ratelimit.NewWriter(ctx, tmp, s.limiter)
	n, err = s.conn.Retrieve(ctx, remote, w, BufferSize(total), func(done int64) {
		update(p, done, total)
	})
	closeErr := tmp.Close()
	if err != nil {
		return fmt.Errorf("download %s: %w", remote, err)
	}
	if closeErr != nil {
		err = closeErr
		return err
	}
	if reported && n != total {
		err = &SizeMismatchError{Name: remote, Expected: total, Actual: n}
		return err
	}
	err = os.Rename(tmpName, local)
	return err
}

// createPartFile creates a hidden, uniquely named file next to local.
// Unlike os.CreateTemp it asks for mode 0666, so the downloaded file ends
// up with the permissions the umask gives any new file.
func createPartFile(local string) (*os.File, error) {
	name := filepath.Join(filepath.Dir(local), "."+filepath.Base(local)+"."+uuid.NewString()+".part")
	return os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
}

// Upload stores local as remote, then checks the remote size with SIZE.
// On a mismatch the remote file is deleted and a *SizeMismatchError is
// returned. Servers without SIZE skip the check.
func (s *Session) Upload(ctx context.Context, local, remote string, p Progress) (err error) {
	start := time.Now()
	var n int64
	defer func() { s.metrics.RecordTransfer("upload", n, time.Since(start), err) }()

	f, err := os.Open(local)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	size := info.Size()

	r := ratelimit.NewReader(ctx, f, s.limiter)
	n, err = s.conn.Store(ctx, remote, r, BufferSize(size), func(done int64) {
		update(p, done, size)
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", remote, err)
	}

	remoteSize, err := s.conn.Size(remote)
	if err != nil {
		var pe *ProtocolError
		if errors.As(err, &pe) && (pe.Code == 500 || pe.Code == 502) {
			s.logger.Warn("server has no SIZE, upload not verified", "remote", remote)
			return nil
		}
		return fmt.Errorf("verify %s: %w", remote, err)
	}
	if remoteSize != size {
		if delErr := s.conn.Delete(remote); delErr != nil {
			s.logger.Warn("failed to delete mismatched upload", "remote", remote, "error", delErr)
		}
		return &SizeMismatchError{Name: remote, Expected: size, Actual: remoteSize}
	}
	return nil
}

// DownloadFile runs Session.Download under the command lock.
func (m *Manager) DownloadFile(ctx context.Context, remote, local string, p Progress) error {
	return m.WithSession(ctx, func(s *Session) error {
		return s.Download(ctx, remote, local, p)
	})
}

// UploadFile runs Session.Upload under the command lock.
func (m *Manager) UploadFile(ctx context.Context, local, remote string, p Progress) error {
	return m.WithSession(ctx, func(s *Session) error {
		return s.Upload(ctx, local, remote, p)
	})
}
