package ftpclient

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iamlordofplatinumforest/FTP-client/internal/ftpconn"
)

func TestConnectError_Is(t *testing.T) {
	t.Parallel()
	unreachable := &ConnectError{Kind: HostUnreachable, Addr: "h:21", Err: errors.New("refused")}
	auth := &ConnectError{Kind: AuthRejected, Addr: "h:21", Err: errors.New("530")}

	assert.ErrorIs(t, unreachable, ErrHostUnreachable)
	assert.NotErrorIs(t, unreachable, ErrAuthRejected)
	assert.ErrorIs(t, auth, ErrAuthRejected)
	assert.ErrorIs(t, fmt.Errorf("wrapped: %w", auth), ErrAuthRejected)
	assert.Contains(t, unreachable.Error(), "host unreachable")
}

func TestSizeMismatchError(t *testing.T) {
	t.Parallel()
	var err error = &SizeMismatchError{Name: "a.bin", Expected: 10, Actual: 7}
	assert.ErrorIs(t, err, ErrSizeMismatch)
	assert.EqualError(t, err, "ftpclient: size mismatch for a.bin: expected 10 bytes, got 7")
}

func TestBatchError(t *testing.T) {
	t.Parallel()
	var b *BatchError
	assert.NoError(t, b.result())

	b = &BatchError{}
	assert.NoError(t, b.result())

	b.add("one", ErrNotEmpty)
	b.add("two", &SizeMismatchError{Name: "two"})
	err := b.result()
	assert.ErrorIs(t, err, ErrNotEmpty)
	assert.ErrorIs(t, err, ErrSizeMismatch)

	var ie ItemError
	assert.ErrorAs(t, err, &ie)
	assert.Equal(t, "one", ie.Path)
	assert.Contains(t, err.Error(), "2 items failed")
}

func TestCanceledError(t *testing.T) {
	t.Parallel()
	batch := &BatchError{}
	batch.add("f", ErrNotEmpty)
	err := error(&canceledError{cause: context.Canceled, failed: batch})

	assert.ErrorIs(t, err, ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrNotEmpty)
	var be *BatchError
	assert.ErrorAs(t, err, &be)

	bare := error(&canceledError{cause: context.DeadlineExceeded})
	assert.ErrorIs(t, bare, context.DeadlineExceeded)
	assert.NotErrorIs(t, bare, context.Canceled)
}

func TestDescribe(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"success", nil, "OK"},
		{"unreachable", &ConnectError{Kind: HostUnreachable, Err: errors.New("x")}, "Host unreachable"},
		{"auth with server text", &ConnectError{Kind: AuthRejected, Server: "Login incorrect.", Err: errors.New("x")}, "Authentication failed: Login incorrect."},
		{"protocol connect", &ConnectError{Kind: ProtocolFailure, Err: errors.New("x")}, "Connection failed"},
		{"canceled", &canceledError{cause: context.Canceled}, "Operation canceled"},
		{"size mismatch", &SizeMismatchError{Name: "f", Expected: 2, Actual: 1}, "File size mismatch for f: expected 2 bytes, got 1"},
		{"not connected", ErrNotConnected, "Not connected"},
		{"not empty", fmt.Errorf("%w: dir", ErrNotEmpty), "Directory is not empty"},
		{"exists", fmt.Errorf("%w: dir", ErrAlreadyExists), "Already exists"},
		{"copy into self", fmt.Errorf("%w: a into a/b", ErrCopyIntoSelf), "Cannot copy a directory into itself"},
		{"server reply", &ftpconn.ProtocolError{Command: "RETR x", Response: "No such file.", Code: 550}, "Server error: No such file."},
		{"batch", &BatchError{Items: []ItemError{{Path: "a", Err: errors.New("boom")}}}, "1 item(s) failed; first: a: boom"},
		{"permission", &fs.PathError{Op: "open", Path: "/x", Err: fs.ErrPermission}, "Permission denied: open /x: permission denied"},
		{"other", errors.New("something"), "something"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ok, msg := Describe(tt.err)
			assert.Equal(t, tt.err == nil, ok)
			assert.Equal(t, tt.want, msg)
		})
	}
}
