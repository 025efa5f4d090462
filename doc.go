// Package ftpclient manages a single authenticated FTP session and builds
// file-manager operations on top of it.
//
// # Overview
//
// FTP is flat, stateful and single-connection: one control connection, one
// working directory, one command at a time. This package provides:
//   - A Manager that owns the session, serializes every command behind one
//     context-aware lock, and reconnects or reports loss from a heartbeat
//   - A parser for Unix "ls -l" style LIST output, names with spaces included
//   - A short-lived listing cache keyed by the remote working directory
//   - Downloads through a temporary file and uploads checked with SIZE
//   - Recursive upload, download, copy and delete with best-effort semantics
//   - Optional bandwidth limiting, explicit TLS and a metrics hook
//
// Only passive mode is used: EPSV first, PASV when the server lacks EPSV.
//
// # Basic Usage
//
//	m, err := ftpclient.New(ftpclient.WithCacheTTL(30 * time.Second))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = m.Connect(ctx, ftpclient.Params{
//	    Host:     "ftp.example.com",
//	    User:     "user",
//	    Password: "secret",
//	})
//	if err != nil {
//	    _, msg := ftpclient.Describe(err)
//	    log.Fatal(msg)
//	}
//	defer m.Disconnect()
//
//	entries, err := m.ListCurrentDirectory(ctx)
//
// # Atomic Sequences
//
// Each Manager method holds the command lock for its whole duration. To run
// several commands without another caller (or the heartbeat) interleaving,
// use WithSession or Do:
//
//	err := m.WithSession(ctx, func(s *ftpclient.Session) error {
//	    if err := s.ChangeDirectory("incoming"); err != nil {
//	        return err
//	    }
//	    return s.Upload(ctx, "report.csv", "report.csv", nil)
//	})
//
// # Recursive Operations
//
// UploadFolder, DownloadFolder and CopyItem keep going when an item fails
// and return a *BatchError naming every failure. Canceling the context stops
// them between files; the file in flight completes, and the returned error
// matches both ErrCanceled and context.Canceled.
//
// # Error Handling
//
// Errors are sentinels (ErrNotConnected, ErrNotEmpty, ...) or typed errors
// that match them with errors.Is. A negative server reply is a
// *ProtocolError carrying the command, the reply code and the server text:
//
//	var pe *ftpclient.ProtocolError
//	if errors.As(err, &pe) && pe.Code == 550 {
//	    // no such file, or no permission
//	}
//
// Describe condenses any error into the (success, message) pair a user
// interface shows.
package ftpclient
