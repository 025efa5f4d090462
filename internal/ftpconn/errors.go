package ftpconn

import "fmt"

// ProtocolError is a negative or unexpected server reply to a command.
// Response holds the server text verbatim so callers can show it.
type ProtocolError struct {
	// Command is the verb that was sent (e.g. "RETR").
	Command string

	// Response is the message part of the reply (e.g. "No such file").
	Response string

	// Code is the three-digit reply code (e.g. 550).
	Code int
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("ftp: %s failed: %s (code %d)", e.Command, e.Response, e.Code)
}

// Is4xx reports a transient negative completion.
func (e *ProtocolError) Is4xx() bool {
	return e.Code >= 400 && e.Code < 500
}

// Is5xx reports a permanent negative completion.
func (e *ProtocolError) Is5xx() bool {
	return e.Code >= 500 && e.Code < 600
}

// IsTemporary reports whether retrying the same command may succeed.
func (e *ProtocolError) IsTemporary() bool {
	return e.Is4xx()
}

func newProtocolError(command string, resp *Response) *ProtocolError {
	return &ProtocolError{
		Command:  command,
		Response: resp.Message,
		Code:     resp.Code,
	}
}
