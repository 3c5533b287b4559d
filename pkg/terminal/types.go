package terminal

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultChunkSize is the largest plaintext a 1024-bit RSA key can encrypt
// with PKCS#1 v1.5 padding.
const DefaultChunkSize = 117

// DefaultWelcome is written once to the display of a brand-new session.
const DefaultWelcome = "Welcome to " + ansiLightBlue + "rterm" + ansiDefault + " terminal."

// State is the connection state of a Session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// InteractionMode describes whether a remote process accepts interactive input.
// Only InteractionAlways is supported by terminal sessions.
type InteractionMode int

const (
	InteractionNever InteractionMode = iota
	InteractionPossible
	InteractionAlways
)

func (m InteractionMode) String() string {
	switch m {
	case InteractionNever:
		return "never"
	case InteractionPossible:
		return "possible"
	case InteractionAlways:
		return "always"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

var (
	// ErrNoProcess is reported when the factory returns neither a process nor an error.
	ErrNoProcess = errors.New("no process received from server")
	// ErrUnsupportedMode is reported when the remote process is not always-interactive.
	ErrUnsupportedMode = errors.New("unsupported process interaction mode")
	// ErrProcessUnavailable is wrapped by factories when the server cannot provide a process.
	ErrProcessUnavailable = errors.New("process unavailable")
)

// EncodeError wraps a SecureChannel failure so it can be told apart from a
// write failure.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string {
	return e.Err.Error()
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// StartRequest describes the remote process to create or locate.
// A non-empty Handle reattaches to an existing process.
type StartRequest struct {
	Cols     int
	Rows     int
	Handle   string
	Caption  string
	Title    string
	Sequence int
}

// ProcessFactory creates or locates server-side terminal processes.
type ProcessFactory interface {
	StartTerminal(ctx context.Context, req StartRequest) (Process, error)
}

// Process is the client-side handle of a server-side PTY-backed process.
// Every method blocks until the server responds.
type Process interface {
	Handle() string
	InteractionMode() InteractionMode

	Start(ctx context.Context) error
	WriteInput(ctx context.Context, input string) error
	Resize(ctx context.Context, cols, rows int) error
	Interrupt(ctx context.Context) error
	Reap(ctx context.Context) error
	TerminalBuffer(ctx context.Context) (string, error)
	EraseBuffer(ctx context.Context) error
}

// Encoder is the secure channel applied to every input chunk before it is
// written to the remote process.
type Encoder interface {
	Encode(ctx context.Context, plaintext []byte) (string, error)
}

// Display is the surface a session renders to. It gives no feedback.
type Display interface {
	Write(text string)
	WriteLine(text string)
	Clear()
}

// Options configures a Session.
type Options struct {
	// ID is the local session identifier. A random UUID is used when empty.
	ID string
	// Sequence numbers the terminal; it appears in the default caption.
	Sequence int
	// Handle and Caption are set when reattaching to an existing process.
	Handle  string
	Caption string
	Title   string
	// HasChildProcesses seeds the subprocess flag for reattached sessions.
	HasChildProcesses bool

	// Cols and Rows are the size requested when the process is created.
	Cols int
	Rows int

	// ChunkSize is the maximum plaintext handed to the Encoder at once.
	ChunkSize int

	// CallTimeout bounds each remote call. Zero means no timeout.
	CallTimeout time.Duration

	// Welcome replaces DefaultWelcome when non-empty.
	Welcome string
}

func (o *Options) setDefaults() {
	if o.Cols <= 0 {
		o.Cols = 80
	}
	if o.Rows <= 0 {
		o.Rows = 25
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Caption == "" {
		o.Caption = fmt.Sprintf("Terminal %d", o.Sequence)
	}
	if o.Welcome == "" {
		o.Welcome = DefaultWelcome
	}
}
