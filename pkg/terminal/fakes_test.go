package terminal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rterm/pkg/events"
)

type fakeProcess struct {
	handle string
	mode   InteractionMode

	mu          sync.Mutex
	startErr    error
	writeErr    error
	bufferErr   error
	buffer      string
	writes      []string
	resizes     [][2]int
	starts      int
	interrupts  int
	reaps       int
	erases      int
	inFlight    int
	maxInFlight int
	writeDelay  time.Duration
	// applyThenHang records the write and then blocks until the call is
	// cancelled, like a server whose acknowledgement never arrives.
	applyThenHang bool
}

func newFakeProcess(handle string) *fakeProcess {
	return &fakeProcess{handle: handle, mode: InteractionAlways}
}

func (p *fakeProcess) Handle() string                   { return p.handle }
func (p *fakeProcess) InteractionMode() InteractionMode { return p.mode }

func (p *fakeProcess) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.starts++
	return p.startErr
}

func (p *fakeProcess) WriteInput(ctx context.Context, input string) error {
	p.mu.Lock()
	if p.applyThenHang {
		p.writes = append(p.writes, input)
		p.mu.Unlock()
		<-ctx.Done()
		return ctx.Err()
	}
	p.inFlight++
	p.maxInFlight = max(p.maxInFlight, p.inFlight)
	delay := p.writeDelay
	p.mu.Unlock()

	time.Sleep(delay)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight--
	if p.writeErr != nil {
		return p.writeErr
	}
	p.writes = append(p.writes, input)
	return nil
}

func (p *fakeProcess) Resize(ctx context.Context, cols, rows int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resizes = append(p.resizes, [2]int{cols, rows})
	return nil
}

func (p *fakeProcess) Interrupt(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interrupts++
	return nil
}

func (p *fakeProcess) Reap(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reaps++
	return nil
}

func (p *fakeProcess) TerminalBuffer(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer, p.bufferErr
}

func (p *fakeProcess) EraseBuffer(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.erases++
	return nil
}

func (p *fakeProcess) set(fn func(p *fakeProcess)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}

type processCalls struct {
	writes      []string
	resizes     [][2]int
	starts      int
	interrupts  int
	reaps       int
	erases      int
	maxInFlight int
}

func (p *fakeProcess) calls() processCalls {
	p.mu.Lock()
	defer p.mu.Unlock()
	return processCalls{
		writes:      append([]string(nil), p.writes...),
		resizes:     append([][2]int(nil), p.resizes...),
		starts:      p.starts,
		interrupts:  p.interrupts,
		reaps:       p.reaps,
		erases:      p.erases,
		maxInFlight: p.maxInFlight,
	}
}

type fakeFactory struct {
	mu       sync.Mutex
	requests []StartRequest
	procs    []*fakeProcess
	next     int
	err      error
	nilProc  bool
	gate     chan struct{}
}

func newFakeFactory(procs ...*fakeProcess) *fakeFactory {
	return &fakeFactory{procs: procs}
}

func (f *fakeFactory) StartTerminal(ctx context.Context, req StartRequest) (Process, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.nilProc || len(f.procs) == 0 {
		return nil, nil
	}
	p := f.procs[min(f.next, len(f.procs)-1)]
	f.next++
	return p, nil
}

func (f *fakeFactory) startRequests() []StartRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]StartRequest(nil), f.requests...)
}

type fakeEncoder struct {
	mu  sync.Mutex
	err error
}

func (e *fakeEncoder) Encode(ctx context.Context, plaintext []byte) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return "", e.err
	}
	return string(plaintext), nil
}

func (e *fakeEncoder) fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

type fakeDisplay struct {
	mu     sync.Mutex
	output []string
	clears int
}

func (d *fakeDisplay) Write(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.output = append(d.output, text)
}

func (d *fakeDisplay) WriteLine(text string) {
	d.Write(text + "\n")
}

func (d *fakeDisplay) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clears++
}

func (d *fakeDisplay) clearCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clears
}

func (d *fakeDisplay) lines() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.output...)
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func record(bus *events.Bus, topic events.Topic) *recorder {
	r := &recorder{}
	bus.Subscribe(topic, "", func(e events.Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, e)
	})
	return r
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) last() events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type harness struct {
	bus     *events.Bus
	factory *fakeFactory
	encoder *fakeEncoder
	display *fakeDisplay
	session *Session
}

func newHarness(t *testing.T, opts Options, procs ...*fakeProcess) *harness {
	t.Helper()
	h := &harness{
		bus:     events.New(),
		factory: newFakeFactory(procs...),
		encoder: &fakeEncoder{},
		display: &fakeDisplay{},
	}
	h.session = NewSession(Deps{
		Factory: h.factory,
		Encoder: h.encoder,
		Display: h.display,
		Bus:     h.bus,
	}, opts)
	t.Cleanup(func() {
		h.session.Detach()
		<-h.session.Done()
	})
	return h
}

func (h *harness) connect(t *testing.T) {
	t.Helper()
	h.session.Connect()
	settle(t, h.session)
}

func (h *harness) typeText(t *testing.T, text string) {
	t.Helper()
	h.bus.Publish(events.TopicInput, h.session.ID(), events.Input{Data: text})
	settle(t, h.session)
}

// settle waits until no remote call is in flight and the loop is drained.
func settle(t *testing.T, s *Session) {
	t.Helper()
	require.Eventually(t, func() bool {
		if s.pending.Load() != 0 {
			return false
		}
		barrier := make(chan struct{})
		if !s.loop.post(func() { close(barrier) }) {
			return true
		}
		select {
		case <-barrier:
			return s.pending.Load() == 0
		case <-time.After(time.Second):
			return false
		}
	}, 5*time.Second, time.Millisecond)
}

// queued reads the pending input length on the loop.
func queued(t *testing.T, s *Session) int {
	t.Helper()
	n := make(chan int, 1)
	require.True(t, s.loop.post(func() { n <- s.input.Len() }))
	return <-n
}

var errBoom = errors.New("boom")
