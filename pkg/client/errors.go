package client

import (
	"errors"
	"fmt"

	"connectrpc.com/connect"

	"rterm/pkg/terminal"
)

// ServerError is a failed call to the terminal service.
type ServerError struct {
	Op   string
	Code connect.Code
	err  error
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.err)
}

// Unwrap exposes the connect error and, for missing or unreachable
// processes, terminal.ErrProcessUnavailable.
func (e *ServerError) Unwrap() []error {
	switch e.Code {
	case connect.CodeUnavailable, connect.CodeNotFound:
		return []error{e.err, terminal.ErrProcessUnavailable}
	default:
		return []error{e.err}
	}
}

// UserMessage is the message the server meant for the user.
func (e *ServerError) UserMessage() string {
	var ce *connect.Error
	if errors.As(e.err, &ce) && ce.Message() != "" {
		return ce.Message()
	}
	return e.err.Error()
}

func wrapError(op string, err error) error {
	return &ServerError{Op: op, Code: connect.CodeOf(err), err: err}
}
