package terminal

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"rterm/internal/metrics"
	"rterm/pkg/events"
)

// Deps are the collaborators a Session is built with.
type Deps struct {
	Factory ProcessFactory
	Encoder Encoder
	Display Display
	Bus     *events.Bus
	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger
}

// Session is the client-side proxy of one terminal pane. It connects to a
// remote process, forwards keystrokes through the Encoder one chunk at a
// time, and reacts to process exit, suspend, resize, and title events.
//
// All state changes run on a private event loop. Remote calls run on their
// own goroutines and post their completions back to the loop, where they are
// dropped if the session has disconnected or been detached since the call
// was issued.
type Session struct {
	id      string
	factory ProcessFactory
	encoder Encoder
	display Display
	bus     *events.Bus
	logger  zerolog.Logger
	opts    Options

	loop    *loop
	pending atomic.Int64

	// mu guards the fields readable through accessors.
	mu            sync.RWMutex
	handle        string
	caption       string
	title         string
	hasChildProcs bool
	state         State

	// Owned by the loop goroutine.
	process    Process
	generation uint64
	newSession bool
	// replayPending defers the buffer replay of TerminalReady until the
	// process has started.
	replayPending bool
	cols, rows int
	input      *InputChunker
	sending    bool
	regs       events.Registrations
	inputReg   *events.Registration
	detached   bool
}

// NewSession creates an idle session. Call Connect or Show to attach it and
// Detach to release it.
func NewSession(deps Deps, opts Options) *Session {
	opts.setDefaults()

	logger := log.Logger
	if deps.Logger != nil {
		logger = *deps.Logger
	}

	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	s := &Session{
		id:            id,
		factory:       deps.Factory,
		encoder:       deps.Encoder,
		display:       deps.Display,
		bus:           deps.Bus,
		logger:        logger.With().Str("session_id", id).Int("sequence", opts.Sequence).Logger(),
		opts:          opts,
		loop:          newLoop(),
		handle:        opts.Handle,
		caption:       opts.Caption,
		title:         opts.Title,
		hasChildProcs: opts.HasChildProcesses,
		state:         StateIdle,
		newSession:    opts.Handle == "",
		cols:          opts.Cols,
		rows:          opts.Rows,
		input:         NewInputChunker(opts.ChunkSize),
	}
	return s
}

// ID returns the local identifier used to key display-originated events.
func (s *Session) ID() string {
	return s.id
}

// Handle returns the remote process handle, or "" if the session has never
// been attached.
func (s *Session) Handle() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handle
}

// Caption returns the user-visible name, such as "Terminal 1".
func (s *Session) Caption() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.caption
}

// SetCaption renames the session. Empty captions are ignored.
func (s *Session) SetCaption(caption string) {
	if caption == "" {
		return
	}
	s.mu.Lock()
	s.caption = caption
	s.mu.Unlock()
}

func (s *Session) Title() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.title
}

func (s *Session) SetTitle(title string) {
	s.mu.Lock()
	s.title = title
	s.mu.Unlock()
}

func (s *Session) Sequence() int {
	return s.opts.Sequence
}

// HasChildProcesses reports the last known subprocess status of the remote shell.
func (s *Session) HasChildProcesses() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasChildProcs
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) IsConnected() bool {
	return s.State() == StateConnected
}

// Connect creates or reattaches the remote process. It is a no-op while a
// connection is in progress or established.
func (s *Session) Connect() {
	s.loop.post(s.connect)
}

// Show connects if needed and asks the display to report its size, since it
// may have changed while the session was hidden.
func (s *Session) Show() {
	s.loop.post(func() {
		s.connect()
		s.requestResize()
	})
}

// Terminate interrupts the remote process and reaps it once the interrupt is
// acknowledged. The state change follows from the exit notification.
func (s *Session) Terminate() {
	s.loop.post(func() {
		p := s.process
		if p == nil {
			return
		}
		s.call("interrupt", p.Interrupt, func(err error) {
			if p != s.process {
				return
			}
			if err != nil {
				s.writeError(userMessage(err))
				return
			}
			s.call("reap", p.Reap, s.logFailure("reap"))
		})
	})
}

// ClearBuffer clears the display and, when attached, the server-side scrollback.
func (s *Session) ClearBuffer() {
	s.loop.post(func() {
		s.display.Clear()

		p := s.process
		if p == nil {
			return
		}
		s.call("erase_buffer", p.EraseBuffer, func(err error) {
			if err != nil && p == s.process {
				s.display.WriteLine(userMessage(err))
			}
		})
	})
}

// TerminalReady is called by the display once it can render. A new session
// gets the welcome banner; a reattached one replays the server's buffer,
// once attached if the attach is still in progress.
func (s *Session) TerminalReady() {
	s.loop.post(func() {
		if s.newSession {
			s.display.WriteLine(s.opts.Welcome)
			s.newSession = false
			return
		}

		s.requestResize()

		if s.state != StateConnected {
			s.replayPending = true
			return
		}
		s.replayBuffer(s.process)
	})
}

// replayBuffer writes the server-side scrollback of p to the display.
func (s *Session) replayBuffer(p Process) {
	var buffer string
	s.call("terminal_buffer", func(ctx context.Context) error {
		b, err := p.TerminalBuffer(ctx)
		buffer = b
		return err
	}, func(err error) {
		if p != s.process {
			return
		}
		if err != nil {
			s.writeError(userMessage(err))
			return
		}
		s.display.Write(buffer)
	})
}

// Detach tears the session down for good, including the keystroke listener.
// Completions of calls still in flight are discarded. Done is closed once
// teardown has finished.
func (s *Session) Detach() {
	s.loop.post(func() {
		s.disconnect(true, "detach")
		s.unregisterHandlers()
		s.detached = true
		s.logger.Debug().Msg("Session detached")
		s.loop.stop()
	})
}

// Done is closed after Detach completes.
func (s *Session) Done() <-chan struct{} {
	return s.loop.done
}

func (s *Session) connect() {
	if s.detached || s.state != StateIdle {
		return
	}

	s.registerInputHandler()

	s.generation++
	gen := s.generation
	s.setState(StateConnecting)

	handle := s.Handle()
	s.newSession = s.newSession && handle == ""
	kind := "reattach"
	if handle == "" {
		kind = "new"
	}

	req := StartRequest{
		Cols:     s.cols,
		Rows:     s.rows,
		Handle:   handle,
		Caption:  s.Caption(),
		Title:    s.Title(),
		Sequence: s.opts.Sequence,
	}

	s.logger.Debug().Str("handle", handle).Str("kind", kind).Msg("Connecting terminal")

	var proc Process
	s.call("start_terminal", func(ctx context.Context) error {
		p, err := s.factory.StartTerminal(ctx, req)
		proc = p
		return err
	}, func(err error) {
		s.onProcessCreated(gen, kind, proc, err)
	})
}

func (s *Session) onProcessCreated(gen uint64, kind string, p Process, err error) {
	if gen != s.generation {
		return
	}
	if err != nil {
		s.attachFailed(kind, err)
		return
	}
	if p == nil {
		s.attachFailed(kind, ErrNoProcess)
		return
	}

	s.process = p
	s.mu.Lock()
	s.handle = p.Handle()
	s.mu.Unlock()

	if p.InteractionMode() != InteractionAlways {
		s.attachFailed(kind, ErrUnsupportedMode)
		return
	}

	s.registerProcessHandlers(gen, p)

	s.call("start", p.Start, func(err error) {
		s.onProcessStarted(gen, kind, p, err)
	})
}

func (s *Session) onProcessStarted(gen uint64, kind string, p Process, err error) {
	if gen != s.generation || p != s.process {
		return
	}
	if err != nil {
		s.attachFailed(kind, err)
		return
	}

	s.setState(StateConnected)
	metrics.ConnectAttemptsTotal.WithLabelValues(kind, "started").Inc()
	s.logger.Debug().Str("handle", p.Handle()).Msg("Terminal session started")

	if s.replayPending {
		s.replayPending = false
		s.replayBuffer(p)
	}
	s.sendUserInput()
	s.publishSession(events.TopicSessionStarted)
}

func (s *Session) attachFailed(kind string, err error) {
	metrics.ConnectAttemptsTotal.WithLabelValues(kind, "failed").Inc()
	s.logger.Warn().Err(err).Str("kind", kind).Msg("Terminal attach failed")

	s.disconnect(true, "attach_failed")
	s.writeError(userMessage(err))
}

// disconnect drops the client-side attachment. The keystroke listener
// survives so that typing can wake the session up again.
func (s *Session) disconnect(clearInput bool, reason string) {
	if clearInput {
		s.input.Reset()
	}
	s.regs.RemoveAll()
	s.process = nil
	s.sending = false
	s.generation++

	if s.state != StateIdle {
		metrics.DisconnectsTotal.WithLabelValues(reason).Inc()
		s.logger.Debug().Str("reason", reason).Msg("Terminal disconnected")
	}
	s.setState(StateIdle)
}

// sendUserInput sends the next chunk. At most one chunk is in flight; the
// next one goes out only after the previous write is acknowledged.
func (s *Session) sendUserInput() {
	if s.sending || s.process == nil || s.state != StateConnected {
		return
	}
	chunk, ok := s.input.Next()
	if !ok {
		return
	}

	s.sending = true
	gen, p := s.generation, s.process

	s.call("write_input", func(ctx context.Context) error {
		encoded, err := s.encoder.Encode(ctx, chunk)
		if err != nil {
			return &EncodeError{Err: err}
		}
		return p.WriteInput(ctx, encoded)
	}, func(err error) {
		s.onChunkDelivered(gen, p, chunk, err)
	})
}

func (s *Session) onChunkDelivered(gen uint64, p Process, chunk []byte, err error) {
	if gen != s.generation || p != s.process {
		return
	}
	s.sending = false

	if err != nil {
		// The server may have applied the chunk before the failure surfaced,
		// so it is dropped rather than sent again. The rest of the queue waits
		// for the next keystroke.
		status := "write_failed"
		var encErr *EncodeError
		if errors.As(err, &encErr) {
			status = "encode_failed"
		}
		metrics.InputChunksTotal.WithLabelValues(status).Inc()
		s.logger.Debug().Err(err).Str("status", status).Int("queued", s.input.Len()).Msg("Input delivery halted")

		s.display.WriteLine(userMessage(err))
		return
	}

	metrics.InputChunksTotal.WithLabelValues("sent").Inc()
	metrics.InputBytesTotal.Add(float64(len(chunk)))
	s.sendUserInput()
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()

	if prev == state {
		return
	}
	if state == StateConnected {
		metrics.SessionsConnected.Inc()
	} else if prev == StateConnected {
		metrics.SessionsConnected.Dec()
	}
	s.logger.Debug().Stringer("from", prev).Stringer("to", state).Msg("Session state changed")
}

func (s *Session) requestResize() {
	s.bus.Publish(events.TopicResizeRequest, s.id, nil)
}

func (s *Session) publishSession(topic events.Topic) {
	s.bus.Publish(topic, s.id, events.SessionInfo{
		SessionID: s.id,
		Handle:    s.Handle(),
		Caption:   s.Caption(),
		Title:     s.Title(),
	})
}

func (s *Session) writeError(msg string) {
	s.display.WriteLine(FormatError(msg))
}

// call runs fn on its own goroutine and posts done back to the loop. If the
// session has been detached by then, done is discarded.
func (s *Session) call(method string, fn func(ctx context.Context) error, done func(error)) {
	s.pending.Add(1)

	go func() {
		ctx, cancel := s.callContext()
		start := time.Now()
		err := fn(ctx)
		cancel()

		metrics.RemoteCallDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		metrics.RemoteCallsTotal.WithLabelValues(method, metrics.Status(err)).Inc()

		posted := s.loop.post(func() {
			s.pending.Add(-1)
			if done != nil {
				done(err)
			}
		})
		if !posted {
			s.pending.Add(-1)
		}
	}()
}

func (s *Session) callContext() (context.Context, context.CancelFunc) {
	if s.opts.CallTimeout > 0 {
		return context.WithTimeout(context.Background(), s.opts.CallTimeout)
	}
	return context.WithCancel(context.Background())
}

// logFailure returns a completion for fire-and-forget calls whose errors are
// ignored by contract.
func (s *Session) logFailure(method string) func(error) {
	return func(err error) {
		if err != nil {
			s.logger.Debug().Err(err).Str("method", method).Msg("Ignoring remote call failure")
		}
	}
}

// userMessage prefers the server-provided message when the error carries one.
func userMessage(err error) string {
	var um interface{ UserMessage() string }
	if errors.As(err, &um) {
		return um.UserMessage()
	}
	return err.Error()
}
