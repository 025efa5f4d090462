package ftpclient

import (
	"context"
	"fmt"
)

// inDir runs fn with name as the working directory and then returns to the
// directory that was current before, on every exit path including a panic
// in fn. A failed return is logged, not reported.
func (s *Session) inDir(name string, fn func() error) error {
	prev, err := s.conn.CurrentDir()
	if err != nil {
		return err
	}
	if err := s.conn.ChangeDir(name); err != nil {
		return err
	}
	defer s.restoreDir(prev)
	return fn()
}

func (s *Session) restoreDir(path string) {
	if err := s.conn.ChangeDir(path); err != nil {
		s.logger.Warn("failed to restore working directory", "path", path, "error", err)
	}
}

// IsDirectory reports whether name can be entered with CWD. FTP has no
// stat; the working directory is restored before returning.
func (s *Session) IsDirectory(name string) bool {
	return s.inDir(name, func() error { return nil }) == nil
}

// CreateDirectory creates name in the working directory. It fails with
// ErrAlreadyExists when the listing already has a directory of that name,
// since servers word that error differently.
func (s *Session) CreateDirectory(name string) error {
	entries, err := s.listRaw()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name == name && e.IsDir() {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, name)
		}
	}
	return s.conn.MakeDir(name)
}

// DeleteItem deletes a file, or an empty directory. A directory with
// contents yields ErrNotEmpty and is left alone; DeleteRecursive is the
// explicit way to remove it.
func (s *Session) DeleteItem(name string) error {
	if !s.IsDirectory(name) {
		return s.conn.Delete(name)
	}
	n, err := s.countChildren(name)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %s has %d entries", ErrNotEmpty, name, n)
	}
	return s.conn.RemoveDir(name)
}

// DeleteRecursive removes name and everything below it, depth first. It
// stops at the first failure; the working directory is restored either way.
func (s *Session) DeleteRecursive(name string) error {
	err := s.inDir(name, func() error {
		entries, err := s.listRaw()
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.IsDir() {
				err = s.DeleteRecursive(e.Name)
			} else {
				err = s.conn.Delete(e.Name)
			}
			if err != nil {
				return fmt.Errorf("delete %s: %w", e.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.conn.RemoveDir(name)
}

// Rename renames oldName to newName.
func (s *Session) Rename(oldName, newName string) error {
	return s.conn.Rename(oldName, newName)
}

// ChangeDirectory changes the working directory.
func (s *Session) ChangeDirectory(path string) error {
	return s.conn.ChangeDir(path)
}

// CurrentDirectory returns the working directory.
func (s *Session) CurrentDirectory() (string, error) {
	return s.conn.CurrentDir()
}

// CreateDirectory runs Session.CreateDirectory under the command lock.
func (m *Manager) CreateDirectory(ctx context.Context, name string) error {
	return m.WithSession(ctx, func(s *Session) error { return s.CreateDirectory(name) })
}

// IsDirectory runs Session.IsDirectory under the command lock.
func (m *Manager) IsDirectory(ctx context.Context, name string) (bool, error) {
	return Do(ctx, m, func(s *Session) (bool, error) { return s.IsDirectory(name), nil })
}

// DeleteItem runs Session.DeleteItem under the command lock.
func (m *Manager) DeleteItem(ctx context.Context, name string) error {
	return m.WithSession(ctx, func(s *Session) error { return s.DeleteItem(name) })
}

// DeleteRecursive runs Session.DeleteRecursive under the command lock.
func (m *Manager) DeleteRecursive(ctx context.Context, name string) error {
	return m.WithSession(ctx, func(s *Session) error { return s.DeleteRecursive(name) })
}

// Rename runs Session.Rename under the command lock.
func (m *Manager) Rename(ctx context.Context, oldName, newName string) error {
	return m.WithSession(ctx, func(s *Session) error { return s.Rename(oldName, newName) })
}

// ChangeDirectory runs Session.ChangeDirectory under the command lock.
func (m *Manager) ChangeDirectory(ctx context.Context, path string) error {
	return m.WithSession(ctx, func(s *Session) error { return s.ChangeDirectory(path) })
}

// CurrentDirectory returns the remote working directory.
func (m *Manager) CurrentDirectory(ctx context.Context) (string, error) {
	return Do(ctx, m, func(s *Session) (string, error) { return s.CurrentDirectory() })
}
