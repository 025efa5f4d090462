package ftpclient

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/iamlordofplatinumforest/FTP-client/internal/ftpconn"
)

var (
	// ErrHostUnreachable means the TCP probe to the server failed.
	ErrHostUnreachable = errors.New("ftpclient: host unreachable")

	// ErrAuthRejected means the server refused the credentials.
	ErrAuthRejected = errors.New("ftpclient: authentication rejected")

	// ErrNotConnected is returned by every operation when no session exists.
	ErrNotConnected = errors.New("ftpclient: not connected")

	// ErrSizeMismatch is matched by *SizeMismatchError.
	ErrSizeMismatch = errors.New("ftpclient: size mismatch")

	// ErrNotEmpty is returned by DeleteItem for a directory with contents.
	ErrNotEmpty = errors.New("ftpclient: directory not empty")

	// ErrAlreadyExists is returned by CreateDirectory.
	ErrAlreadyExists = errors.New("ftpclient: already exists")

	// ErrCopyIntoSelf is returned by CopyItem when the destination lies
	// inside the source directory.
	ErrCopyIntoSelf = errors.New("ftpclient: cannot copy a directory into itself")

	// ErrConnectionLost means the heartbeat gave up on the session.
	ErrConnectionLost = errors.New("ftpclient: connection lost")

	// ErrCanceled is matched by errors from batch operations stopped
	// through their context.
	ErrCanceled = errors.New("ftpclient: operation canceled")

	// ErrNoPriorConnection is returned by Reconnect before any successful
	// Connect.
	ErrNoPriorConnection = errors.New("ftpclient: no prior connection")
)

// ProtocolError is a negative server reply. Response carries the server
// text undecoded; a missing remote file surfaces this way.
type ProtocolError = ftpconn.ProtocolError

// ConnectErrorKind classifies a failed Connect.
type ConnectErrorKind int

const (
	// ProtocolFailure covers every failure after the probe that is not a
	// credential rejection.
	ProtocolFailure ConnectErrorKind = iota
	HostUnreachable
	AuthRejected
)

func (k ConnectErrorKind) String() string {
	switch k {
	case HostUnreachable:
		return "host unreachable"
	case AuthRejected:
		return "authentication rejected"
	default:
		return "protocol failure"
	}
}

// ConnectError is returned by Connect and Reconnect. Server holds the
// server's reply text, for display only.
type ConnectError struct {
	Kind   ConnectErrorKind
	Addr   string
	Server string
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("ftpclient: connect to %s: %s: %v", e.Addr, e.Kind, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrHostUnreachable and ErrAuthRejected by kind.
func (e *ConnectError) Is(target error) bool {
	switch target {
	case ErrHostUnreachable:
		return e.Kind == HostUnreachable
	case ErrAuthRejected:
		return e.Kind == AuthRejected
	}
	return false
}

// SizeMismatchError reports a failed post-transfer size check.
type SizeMismatchError struct {
	Name     string
	Expected int64
	Actual   int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("ftpclient: size mismatch for %s: expected %d bytes, got %d", e.Name, e.Expected, e.Actual)
}

func (e *SizeMismatchError) Is(target error) bool { return target == ErrSizeMismatch }

// ItemError is the failure of one item in a recursive or batch operation.
type ItemError struct {
	Path string
	Err  error
}

func (e ItemError) Error() string { return e.Path + ": " + e.Err.Error() }

func (e ItemError) Unwrap() error { return e.Err }

// BatchError collects the items that failed while their siblings went on.
type BatchError struct {
	Items []ItemError
}

func (e *BatchError) Error() string {
	if len(e.Items) == 1 {
		return "ftpclient: 1 item failed: " + e.Items[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "ftpclient: %d items failed", len(e.Items))
	for i, it := range e.Items {
		if i == 3 {
			fmt.Fprintf(&b, "; and %d more", len(e.Items)-i)
			break
		}
		b.WriteString("; ")
		b.WriteString(it.Error())
	}
	return b.String()
}

// Unwrap exposes every item error to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Items))
	for i, it := range e.Items {
		errs[i] = it
	}
	return errs
}

func (e *BatchError) add(path string, err error) {
	e.Items = append(e.Items, ItemError{Path: path, Err: err})
}

// result returns e as an error, or nil when nothing failed.
func (e *BatchError) result() error {
	if e == nil || len(e.Items) == 0 {
		return nil
	}
	return e
}

// canceledError matches ErrCanceled and the context's own error, plus
// whatever items failed before the cancellation was seen.
type canceledError struct {
	cause  error
	failed *BatchError
}

func (e *canceledError) Error() string {
	if e.failed != nil && len(e.failed.Items) > 0 {
		return fmt.Sprintf("ftpclient: operation canceled (%v) after %d failed items", e.cause, len(e.failed.Items))
	}
	return fmt.Sprintf("ftpclient: operation canceled (%v)", e.cause)
}

func (e *canceledError) Is(target error) bool { return target == ErrCanceled }

func (e *canceledError) Unwrap() []error {
	errs := []error{e.cause}
	if err := e.failed.result(); err != nil {
		errs = append(errs, err)
	}
	return errs
}

// Describe turns err into the short (success, message) pair shown to a
// user. Server text is appended when there is any.
func Describe(err error) (bool, string) {
	if err == nil {
		return true, "OK"
	}

	var (
		ce *ConnectError
		se *SizeMismatchError
		be *BatchError
		pe *ProtocolError
	)
	switch {
	case errors.As(err, &ce):
		msg := "Connection failed"
		switch ce.Kind {
		case HostUnreachable:
			msg = "Host unreachable"
		case AuthRejected:
			msg = "Authentication failed"
		}
		if ce.Server != "" {
			msg += ": " + ce.Server
		}
		return false, msg
	case errors.Is(err, ErrCanceled):
		return false, "Operation canceled"
	case errors.As(err, &se):
		return false, fmt.Sprintf("File size mismatch for %s: expected %d bytes, got %d", se.Name, se.Expected, se.Actual)
	case errors.Is(err, ErrNotConnected):
		return false, "Not connected"
	case errors.Is(err, ErrNoPriorConnection):
		return false, "No previous connection to restore"
	case errors.Is(err, ErrConnectionLost):
		return false, "Connection lost"
	case errors.As(err, &be):
		return false, fmt.Sprintf("%d item(s) failed; first: %s", len(be.Items), be.Items[0].Error())
	case errors.Is(err, ErrNotEmpty):
		return false, "Directory is not empty"
	case errors.Is(err, ErrAlreadyExists):
		return false, "Already exists"
	case errors.Is(err, ErrCopyIntoSelf):
		return false, "Cannot copy a directory into itself"
	case errors.As(err, &pe):
		return false, fmt.Sprintf("Server error: %s", pe.Response)
	case errors.Is(err, fs.ErrPermission):
		return false, "Permission denied: " + err.Error()
	}
	return false, err.Error()
}
