package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"rterm/pkg/events"
)

const (
	// escapeByte starts a console command (Ctrl+]), the same convention
	// telnet uses.
	escapeByte = 0x1D

	cmdDetach    = 'q'
	cmdTerminate = 'k'
	cmdClear     = 'l'

	clearScreen = "\x1b[2J\x1b[3J\x1b[H"

	// maxTitleTail bounds the unterminated OSC sequence carried between writes.
	maxTitleTail = 512
)

// titlePattern matches xterm OSC 0 and OSC 2 window title sequences.
var titlePattern = regexp.MustCompile(`\x1b\][02];([^\x07\x1b]*)(?:\x07|\x1b\\)`)

// Controller receives the console commands typed after Ctrl+].
type Controller interface {
	Detach()
	Terminate()
	ClearBuffer()
}

// Console binds the local terminal to a session through the event bus.
//
// It is the session's display: remote output is written to stdout as-is.
// Keystrokes read from stdin are published as input events keyed by the
// session ID, and window size changes as resize events.
//
// Escape commands, after Ctrl+]:
//   - q: detach, leaving the remote process running
//   - k: terminate the remote process
//   - l: clear the screen and the server-side buffer
//   - Ctrl+]: send a literal Ctrl+]
type Console struct {
	bus       *events.Bus
	sessionID string

	stdin  *os.File
	stdout io.Writer

	// oldState stores the original terminal state for restoration on exit
	oldState *term.State

	// mu serializes writes to stdout and guards escapePressed and titleTail
	mu            sync.Mutex
	escapePressed bool
	titleTail     string

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a console on os.Stdin and os.Stdout for the session with the
// given ID.
func New(bus *events.Bus, sessionID string) *Console {
	return &Console{
		bus:       bus,
		sessionID: sessionID,
		stdin:     os.Stdin,
		stdout:    os.Stdout,
		done:      make(chan struct{}),
	}
}

// Write renders remote output. Window title sequences are also published
// as title events.
func (c *Console) Write(text string) {
	c.write(text)

	for _, title := range c.scanTitles(text) {
		c.bus.Publish(events.TopicTitle, c.sessionID, events.Title{Title: title})
	}
}

// scanTitles returns the window titles completed by text. An OSC sequence
// cut off at the end of text is kept and matched with the next write.
func (c *Console) scanTitles(text string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	data := c.titleTail + text
	c.titleTail = ""

	var titles []string
	rest := 0
	for _, m := range titlePattern.FindAllStringSubmatchIndex(data, -1) {
		titles = append(titles, data[m[2]:m[3]])
		rest = m[1]
	}

	tail := data[rest:]
	if i := strings.LastIndex(tail, "\x1b]"); i >= 0 {
		tail = tail[i:]
		// A trailing ESC may be the first half of the ESC \ terminator.
		body := strings.TrimSuffix(tail[2:], "\x1b")
		if !strings.ContainsAny(body, "\x07\x1b") && len(tail) <= maxTitleTail {
			c.titleTail = tail
		}
	} else if strings.HasSuffix(tail, "\x1b") {
		c.titleTail = "\x1b"
	}
	return titles
}

func (c *Console) WriteLine(text string) {
	c.write(text + "\r\n")
}

func (c *Console) Clear() {
	c.write(clearScreen)
}

func (c *Console) write(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = io.WriteString(c.stdout, text)
}

// Run puts the terminal in raw mode and forwards keystrokes until the user
// detaches, the context is cancelled, or an interrupt signal arrives. The
// terminal state is restored before Run returns.
//
// Input that is not a terminal, such as a pipe, is forwarded without raw
// mode or size reporting.
func (c *Console) Run(ctx context.Context, ctrl Controller) error {
	if err := c.setRawMode(); err != nil {
		return fmt.Errorf("failed to set raw mode: %w", err)
	}
	defer c.restore()

	resizeReg := c.bus.Subscribe(events.TopicResizeRequest, c.sessionID, func(events.Event) {
		c.publishSize()
	})
	defer resizeReg.Remove()

	winch := make(chan os.Signal, 1)
	notifyResize(winch)
	defer signal.Stop(winch)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		if err := c.readInput(ctrl); err != nil && !errors.Is(err, io.EOF) {
			errCh <- fmt.Errorf("stdin read error: %w", err)
		}
	}()

	c.publishSize()

	for {
		select {
		case <-ctx.Done():
			c.Close()
			return ctx.Err()
		case <-sigCh:
			c.WriteLine("")
			c.WriteLine("Interrupted. Detaching...")
			c.Close()
			ctrl.Detach()
			return nil
		case err := <-errCh:
			c.Close()
			return err
		case <-winch:
			c.publishSize()
		case <-c.done:
			return nil
		}
	}
}

// Done is closed when the console stops.
func (c *Console) Done() <-chan struct{} {
	return c.done
}

// Close stops the console. Safe to call more than once.
func (c *Console) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Console) readInput(ctrl Controller) error {
	buf := make([]byte, 1024)

	for {
		select {
		case <-c.done:
			return io.EOF
		default:
		}

		n, err := c.stdin.Read(buf)
		if n > 0 && c.handleInput(buf[:n], ctrl) {
			c.Close()
			return io.EOF
		}
		if err != nil {
			return err
		}
	}
}

// handleInput publishes keystrokes and runs escape commands. It returns true
// once the user has asked to detach; any input after the command is dropped.
func (c *Console) handleInput(data []byte, ctrl Controller) bool {
	forward := make([]byte, 0, len(data))
	flush := func() {
		if len(forward) > 0 {
			c.bus.Publish(events.TopicInput, c.sessionID, events.Input{Data: string(forward)})
			forward = forward[:0]
		}
	}

	for _, b := range data {
		c.mu.Lock()
		escaped := c.escapePressed
		c.escapePressed = !escaped && b == escapeByte
		c.mu.Unlock()

		switch {
		case !escaped:
			if b != escapeByte {
				forward = append(forward, b)
			}
		case b == cmdDetach:
			flush()
			c.WriteLine("")
			c.WriteLine("Detached. The remote process keeps running.")
			ctrl.Detach()
			return true
		case b == cmdTerminate:
			flush()
			ctrl.Terminate()
		case b == cmdClear:
			flush()
			ctrl.ClearBuffer()
		case b == escapeByte:
			forward = append(forward, escapeByte)
		default:
			forward = append(forward, escapeByte, b)
		}
	}

	flush()
	return false
}

func (c *Console) isTerminal() bool {
	return c.stdin != nil && term.IsTerminal(int(c.stdin.Fd()))
}

func (c *Console) setRawMode() error {
	if !c.isTerminal() {
		log.Debug().Msg("stdin is not a terminal, forwarding input without raw mode")
		return nil
	}

	state, err := term.MakeRaw(int(c.stdin.Fd()))
	if err != nil {
		return err
	}
	c.oldState = state
	return nil
}

// restore is safe to call multiple times.
func (c *Console) restore() {
	if c.oldState != nil {
		_ = term.Restore(int(c.stdin.Fd()), c.oldState)
		c.oldState = nil
	}
}

// publishSize reports the window size of the controlling terminal.
func (c *Console) publishSize() {
	if !c.isTerminal() {
		return
	}
	cols, rows, err := term.GetSize(int(c.stdin.Fd()))
	if err != nil {
		log.Debug().Err(err).Msg("Failed to get terminal size")
		return
	}
	c.bus.Publish(events.TopicResize, c.sessionID, events.Resize{Cols: cols, Rows: rows})
}
