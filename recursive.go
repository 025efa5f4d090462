package ftpclient

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Recursive operations are best effort: a failed item is recorded and its
// siblings still run. They return nil, a *BatchError listing the failed
// items, or an error for a failure that stops the whole operation.
//
// Cancellation is checked between items. A file already being transferred
// is allowed to finish; the operation then returns an error that matches
// both ErrCanceled and the context's error.

// withOp returns a copy of s whose log records carry a fresh operation id.
func (s *Session) withOp(kind string) *Session {
	c := *s
	c.logger = s.logger.With("op", uuid.NewString(), "kind", kind)
	return &c
}

func canceled(ctx context.Context, batch *BatchError) error {
	if err := ctx.Err(); err != nil {
		return &canceledError{cause: err, failed: batch}
	}
	return nil
}

// stopsBatch reports whether err must end the whole operation rather than
// being recorded against one item.
func stopsBatch(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// safeName rejects remote names that would escape the local target
// directory.
func safeName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("refusing unsafe name %q", name)
	}
	return nil
}

// UploadFolder uploads the local directory into remoteFolder (created if
// needed, an existing one is reused) and recurses into subdirectories. The
// remote working directory is unchanged afterwards.
func (s *Session) UploadFolder(ctx context.Context, local, remoteFolder string, p Progress) error {
	s = s.withOp("upload_folder")
	s.logger.Info("folder upload started", "local", local, "remote", remoteFolder)
	batch := &BatchError{}
	if err := s.uploadFolder(ctx, local, remoteFolder, p, batch); err != nil {
		return err
	}
	return batch.result()
}

func (s *Session) uploadFolder(ctx context.Context, local, remote string, p Progress, batch *BatchError) error {
	entries, err := os.ReadDir(local)
	if err != nil {
		return err
	}
	if err := s.ensureRemoteDir(remote); err != nil {
		return err
	}

	return s.inDir(remote, func() error {
		for _, e := range entries {
			if err := canceled(ctx, batch); err != nil {
				return err
			}
			lp := filepath.Join(local, e.Name())
			switch {
			case e.IsDir():
				if err := s.uploadFolder(ctx, lp, e.Name(), p, batch); err != nil {
					if stopsBatch(err) {
						return err
					}
					s.logger.Warn("folder upload failed", "local", lp, "error", err)
					batch.add(lp, err)
				}
			case e.Type().IsRegular():
				err := s.Upload(context.WithoutCancel(ctx), lp, e.Name(), p)
				notifyItem(p, lp, err)
				if err != nil {
					s.logger.Warn("file upload failed", "local", lp, "error", err)
					batch.add(lp, err)
				}
			default:
				s.logger.Debug("skipping non-regular file", "local", lp)
			}
		}
		return nil
	})
}

// ensureRemoteDir creates dir, accepting a directory that is already there.
func (s *Session) ensureRemoteDir(dir string) error {
	err := s.conn.MakeDir(dir)
	if err == nil || s.IsDirectory(dir) {
		return nil
	}
	return err
}

// DownloadFolder mirrors remoteFolder into the local directory, creating
// local directories as needed.
func (s *Session) DownloadFolder(ctx context.Context, remoteFolder, local string, p Progress) error {
	s = s.withOp("download_folder")
	s.logger.Info("folder download started", "remote", remoteFolder, "local", local)
	batch := &BatchError{}
	if err := s.downloadFolder(ctx, remoteFolder, local, p, batch); err != nil {
		return err
	}
	return batch.result()
}

func (s *Session) downloadFolder(ctx context.Context, remote, local string, p Progress, batch *BatchError) error {
	if err := os.MkdirAll(local, 0o755); err != nil {
		return err
	}
	return s.inDir(remote, func() error {
		entries, err := s.listRaw()
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := canceled(ctx, batch); err != nil {
				return err
			}
			if err := safeName(e.Name); err != nil {
				batch.add(path.Join(remote, e.Name), err)
				continue
			}
			lp := filepath.Join(local, e.Name)
			if e.IsDir() {
				if err := s.downloadFolder(ctx, e.Name, lp, p, batch); err != nil {
					if stopsBatch(err) {
						return err
					}
					s.logger.Warn("folder download failed", "remote", e.Name, "error", err)
					batch.add(lp, err)
				}
				continue
			}
			err := s.Download(context.WithoutCancel(ctx), e.Name, lp, p)
			notifyItem(p, lp, err)
			if err != nil {
				s.logger.Warn("file download failed", "remote", e.Name, "error", err)
				batch.add(lp, err)
			}
		}
		return nil
	})
}

// CopyItem copies src to dst on the server. FTP has no copy command, so
// each file is downloaded to a local staging file and uploaded again; the
// staging file is removed whatever happens. Directories are copied
// recursively.
func (s *Session) CopyItem(ctx context.Context, src, dst string, p Progress) error {
	s = s.withOp("copy")
	s.logger.Info("copy started", "src", src, "dst", dst)
	if !s.IsDirectory(src) {
		return s.copyFile(ctx, src, dst, p)
	}
	if err := s.checkCopyTarget(src, dst); err != nil {
		return err
	}
	batch := &BatchError{}
	if err := s.copyDir(ctx, src, dst, p, batch); err != nil {
		return err
	}
	return batch.result()
}

// checkCopyTarget rejects a dst at or below the directory src. Such a copy
// would keep finding its own output in the listing it copies from.
func (s *Session) checkCopyTarget(src, dst string) error {
	cwd, err := s.conn.CurrentDir()
	if err != nil {
		return err
	}
	var absSrc string
	err = s.inDir(src, func() error {
		var err error
		absSrc, err = s.conn.CurrentDir()
		return err
	})
	if err != nil {
		return err
	}
	absDst := dst
	if !path.IsAbs(absDst) {
		absDst = path.Join(cwd, dst)
	}
	absDst = path.Clean(absDst)
	if absDst == absSrc || strings.HasPrefix(absDst, strings.TrimSuffix(absSrc, "/")+"/") {
		return fmt.Errorf("%w: %s into %s", ErrCopyIntoSelf, src, dst)
	}
	return nil
}

func (s *Session) copyDir(ctx context.Context, src, dst string, p Progress, batch *BatchError) error {
	var entries []Entry
	err := s.inDir(src, func() error {
		var err error
		entries, err = s.listRaw()
		return err
	})
	if err != nil {
		return err
	}
	if err := s.ensureRemoteDir(dst); err != nil {
		return err
	}

	for _, e := range entries {
		if err := canceled(ctx, batch); err != nil {
			return err
		}
		from, to := path.Join(src, e.Name), path.Join(dst, e.Name)
		if e.IsDir() {
			if err := s.copyDir(ctx, from, to, p, batch); err != nil {
				if stopsBatch(err) {
					return err
				}
				batch.add(from, err)
			}
			continue
		}
		err := s.copyFile(context.WithoutCancel(ctx), from, to, p)
		notifyItem(p, from, err)
		if err != nil {
			s.logger.Warn("file copy failed", "src", from, "error", err)
			batch.add(from, err)
		}
	}
	return nil
}

func (s *Session) copyFile(ctx context.Context, src, dst string, p Progress) error {
	dir, err := os.MkdirTemp(s.tempDir, "ftpclient-copy-*")
	if err != nil {
		return err
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn("failed to remove staging directory", "path", dir, "error", err)
		}
	}()

	staged := filepath.Join(dir, "staged")
	if err := s.Download(ctx, src, staged, p); err != nil {
		return err
	}
	return s.Upload(ctx, staged, dst, p)
}

// UploadFolder runs Session.UploadFolder under the command lock.
func (m *Manager) UploadFolder(ctx context.Context, local, remoteFolder string, p Progress) error {
	return m.WithSession(ctx, func(s *Session) error { return s.UploadFolder(ctx, local, remoteFolder, p) })
}

// DownloadFolder runs Session.DownloadFolder under the command lock.
func (m *Manager) DownloadFolder(ctx context.Context, remoteFolder, local string, p Progress) error {
	return m.WithSession(ctx, func(s *Session) error { return s.DownloadFolder(ctx, remoteFolder, local, p) })
}

// CopyItem runs Session.CopyItem under the command lock, held for the
// whole copy.
func (m *Manager) CopyItem(ctx context.Context, src, dst string, p Progress) error {
	return m.WithSession(ctx, func(s *Session) error { return s.CopyItem(ctx, src, dst, p) })
}

// Op is one item of a Batch. Path names the item for the observer and in
// errors.
type Op struct {
	Path string
	Run  func(ctx context.Context, s *Session) error
}

// UploadOp uploads one file.
func UploadOp(local, remote string, p Progress) Op {
	return Op{Path: local, Run: func(ctx context.Context, s *Session) error {
		return s.Upload(ctx, local, remote, p)
	}}
}

// DownloadOp downloads one file.
func DownloadOp(remote, local string, p Progress) Op {
	return Op{Path: remote, Run: func(ctx context.Context, s *Session) error {
		return s.Download(ctx, remote, local, p)
	}}
}

// DeleteOp deletes a file or empty directory.
func DeleteOp(name string) Op {
	return Op{Path: name, Run: func(_ context.Context, s *Session) error {
		return s.DeleteItem(name)
	}}
}

// Batch runs ops one after another, taking the command lock separately
// for each so the heartbeat and other callers can interleave. Failures are
// collected like in recursive operations; cancellation is checked between
// ops and never interrupts one that has started.
func (m *Manager) Batch(ctx context.Context, ops []Op, obs ItemObserver) error {
	batch := &BatchError{}
	for _, op := range ops {
		if err := canceled(ctx, batch); err != nil {
			return err
		}
		err := m.WithSession(ctx, func(s *Session) error {
			return op.Run(context.WithoutCancel(ctx), s)
		})
		if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			// Canceled while waiting for the lock; the op never ran.
			return &canceledError{cause: ctx.Err(), failed: batch}
		}
		if obs != nil {
			obs.ItemDone(op.Path, err)
		}
		if err != nil {
			m.logger.Warn("batch item failed", "path", op.Path, "error", err)
			batch.add(op.Path, err)
		}
	}
	return batch.result()
}
