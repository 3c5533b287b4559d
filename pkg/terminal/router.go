package terminal

import (
	"context"

	"rterm/pkg/events"
)

// registerProcessHandlers subscribes the session to the events of process p.
// Process-scoped events are keyed by the process handle, display-scoped
// events by the session ID. Handlers registered for generation gen go quiet
// once the session disconnects, even if an event is already queued.
func (s *Session) registerProcessHandlers(gen uint64, p Process) {
	s.regs.RemoveAll()

	handle := p.Handle()
	s.regs.Add(s.bus.Subscribe(events.TopicOutput, handle, s.dispatch(gen, s.onOutput)))
	s.regs.Add(s.bus.Subscribe(events.TopicProcessExit, handle, s.dispatch(gen, s.onProcessExit)))
	s.regs.Add(s.bus.Subscribe(events.TopicSubprocs, handle, s.dispatch(gen, s.onSubprocs)))
	s.regs.Add(s.bus.Subscribe(events.TopicResize, s.id, s.dispatch(gen, s.onResize)))
	s.regs.Add(s.bus.Subscribe(events.TopicTitle, s.id, s.dispatch(gen, s.onTitle)))
	s.regs.Add(s.bus.Subscribe(events.TopicSessionSerialization, "", s.dispatch(gen, s.onSerialization)))
}

// registerInputHandler subscribes to keystrokes once. The listener outlives
// disconnects and failed attaches so that typing reconnects.
func (s *Session) registerInputHandler() {
	if s.inputReg != nil {
		return
	}
	s.inputReg = s.bus.Subscribe(events.TopicInput, s.id, func(e events.Event) {
		s.loop.post(func() { s.onInput(e) })
	})
}

func (s *Session) unregisterHandlers() {
	s.regs.RemoveAll()
	s.inputReg.Remove()
	s.inputReg = nil
}

func (s *Session) dispatch(gen uint64, fn func(events.Event)) events.Handler {
	return func(e events.Event) {
		s.loop.post(func() {
			if gen != s.generation {
				return
			}
			fn(e)
		})
	}
}

func (s *Session) onOutput(e events.Event) {
	out, ok := e.Payload.(events.Output)
	if !ok {
		return
	}
	s.display.Write(out.Data)
}

func (s *Session) onProcessExit(e events.Event) {
	p := s.process
	if exit, ok := e.Payload.(events.ProcessExit); ok {
		s.logger.Debug().Int("exit_code", exit.ExitCode).Msg("Remote process exited")
	}

	s.disconnect(true, "exit")
	if p != nil {
		s.call("reap", p.Reap, s.logFailure("reap"))
	}
	s.publishSession(events.TopicSessionStopped)
}

func (s *Session) onSerialization(e events.Event) {
	ser, ok := e.Payload.(events.Serialization)
	if !ok || ser.Action != events.SerializationSuspend {
		return
	}
	// The server keeps the process; only the client-side attachment goes.
	s.disconnect(false, "suspend")
}

func (s *Session) onSubprocs(e events.Event) {
	sp, ok := e.Payload.(events.Subprocs)
	if !ok {
		return
	}
	s.mu.Lock()
	s.hasChildProcs = sp.HasSubprocs
	s.mu.Unlock()
}

func (s *Session) onResize(e events.Event) {
	r, ok := e.Payload.(events.Resize)
	if !ok {
		return
	}
	s.cols, s.rows = r.Cols, r.Rows

	p := s.process
	if p == nil {
		return
	}
	s.call("resize", func(ctx context.Context) error {
		return p.Resize(ctx, r.Cols, r.Rows)
	}, func(err error) {
		if err != nil && p == s.process {
			s.display.WriteLine(userMessage(err))
		}
	})
}

func (s *Session) onTitle(e events.Event) {
	t, ok := e.Payload.(events.Title)
	if !ok {
		return
	}
	s.SetTitle(t.Title)
	s.publishSession(events.TopicTitleChanged)
}

func (s *Session) onInput(e events.Event) {
	if in, ok := e.Payload.(events.Input); ok && in.Data != "" {
		s.input.Append([]byte(in.Data))
	}

	if s.state != StateConnected {
		s.connect()
		return
	}
	s.sendUserInput()
}
