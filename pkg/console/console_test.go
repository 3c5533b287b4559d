package console

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rterm/pkg/events"
)

type fakeController struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeController) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeController) Detach()      { f.record("detach") }
func (f *fakeController) Terminate()   { f.record("terminate") }
func (f *fakeController) ClearBuffer() { f.record("clear") }

func (f *fakeController) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type inputRecorder struct {
	mu     sync.Mutex
	inputs []string
}

func recordInput(bus *events.Bus, sessionID string) *inputRecorder {
	r := &inputRecorder{}
	bus.Subscribe(events.TopicInput, sessionID, func(e events.Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.inputs = append(r.inputs, e.Payload.(events.Input).Data)
	})
	return r
}

func (r *inputRecorder) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.inputs...)
}

func newTestConsole() (*Console, *events.Bus, *bytes.Buffer) {
	bus := events.New()
	out := &bytes.Buffer{}
	c := New(bus, "s1")
	c.stdout = out
	return c, bus, out
}

// TestHandleInput verifies escape command detection.
//
// Tests various input scenarios including:
//   - Plain text forwarding
//   - Each escape command
//   - Literal and unknown escapes
//   - Input after a detach command
func TestHandleInput(t *testing.T) {
	tests := []struct {
		name       string
		input      []byte
		wantInput  []string
		wantCalls  []string
		wantDetach bool
	}{
		{
			name:      "normal text",
			input:     []byte("ls -la\r"),
			wantInput: []string{"ls -la\r"},
		},
		{
			name:       "detach sequence ctrl+] then q",
			input:      []byte{escapeByte, 'q'},
			wantCalls:  []string{"detach"},
			wantDetach: true,
		},
		{
			name:       "text before detach is sent, text after is dropped",
			input:      []byte("abc\x1dqdef"),
			wantInput:  []string{"abc"},
			wantCalls:  []string{"detach"},
			wantDetach: true,
		},
		{
			name:      "terminate",
			input:     []byte("x\x1dky"),
			wantInput: []string{"x", "y"},
			wantCalls: []string{"terminate"},
		},
		{
			name:      "clear",
			input:     []byte{escapeByte, 'l'},
			wantCalls: []string{"clear"},
		},
		{
			name:      "literal ctrl+]",
			input:     []byte{escapeByte, escapeByte, 'a'},
			wantInput: []string{"\x1da"},
		},
		{
			name:      "unknown escape is forwarded",
			input:     []byte{escapeByte, 'x'},
			wantInput: []string{"\x1dx"},
		},
		{
			name:      "ctrl+] at end waits for next byte",
			input:     []byte("test\x1d"),
			wantInput: []string{"test"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, bus, _ := newTestConsole()
			inputs := recordInput(bus, "s1")
			ctrl := &fakeController{}

			detached := c.handleInput(tt.input, ctrl)

			assert.Equal(t, tt.wantDetach, detached)
			assert.Equal(t, tt.wantInput, inputs.recorded())
			assert.Equal(t, tt.wantCalls, ctrl.recorded())
		})
	}
}

// TestHandleInputSplitAcrossCalls verifies state preservation across reads.
func TestHandleInputSplitAcrossCalls(t *testing.T) {
	c, bus, _ := newTestConsole()
	inputs := recordInput(bus, "s1")
	ctrl := &fakeController{}

	assert.False(t, c.handleInput([]byte{escapeByte}, ctrl))
	assert.True(t, c.handleInput([]byte{'q'}, ctrl))

	assert.Empty(t, inputs.recorded())
	assert.Equal(t, []string{"detach"}, ctrl.recorded())
}

func TestConsole_Display(t *testing.T) {
	c, bus, out := newTestConsole()
	var titles []string
	bus.Subscribe(events.TopicTitle, "s1", func(e events.Event) {
		titles = append(titles, e.Payload.(events.Title).Title)
	})

	c.Write("hello")
	c.WriteLine(" world")
	c.Write("\x1b]0;vim main.go\x07$ ")
	c.Write("\x1b]2;htop\x1b\\")
	c.Clear()

	assert.Equal(t, "hello world\r\n\x1b]0;vim main.go\x07$ \x1b]2;htop\x1b\\"+clearScreen, out.String())
	assert.Equal(t, []string{"vim main.go", "htop"}, titles)
}

func TestConsole_TitleSplitAcrossWrites(t *testing.T) {
	tests := []struct {
		name     string
		writes   []string
		expected []string
	}{
		{name: "split inside title", writes: []string{"$ \x1b]0;my ti", "tle\x07ok"}, expected: []string{"my title"}},
		{name: "split after escape", writes: []string{"out\x1b", "]2;top\x1b\\"}, expected: []string{"top"}},
		{name: "split before string terminator", writes: []string{"\x1b]0;vim\x1b", "\\"}, expected: []string{"vim"}},
		{name: "three writes", writes: []string{"\x1b]", "0;a", "b\x07"}, expected: []string{"ab"}},
		{name: "other osc is not carried", writes: []string{"\x1b]8;;http://x\x07link", "\x07"}, expected: nil},
		{name: "complete then partial", writes: []string{"\x1b]0;one\x07\x1b]0;tw", "o\x07"}, expected: []string{"one", "two"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, bus, out := newTestConsole()
			var titles []string
			bus.Subscribe(events.TopicTitle, "s1", func(e events.Event) {
				titles = append(titles, e.Payload.(events.Title).Title)
			})

			for _, w := range tt.writes {
				c.Write(w)
			}

			assert.Equal(t, tt.expected, titles)
			assert.Equal(t, strings.Join(tt.writes, ""), out.String())
		})
	}
}

func TestConsole_RunWithPipedInput(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	c, bus, out := newTestConsole()
	c.stdin = r
	inputs := recordInput(bus, "s1")
	ctrl := &fakeController{}

	// Piped input has no size to report
	resizes := 0
	bus.Subscribe(events.TopicResize, "s1", func(events.Event) { resizes++ })

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background(), ctrl) }()

	_, err = w.Write([]byte("echo hi\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(inputs.recorded()) == 1
	}, time.Second, time.Millisecond)

	_, err = w.Write([]byte{escapeByte, 'q'})
	require.NoError(t, err)
	w.Close()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after detach")
	}

	assert.Equal(t, []string{"echo hi\n"}, inputs.recorded())
	assert.Equal(t, []string{"detach"}, ctrl.recorded())
	assert.Contains(t, out.String(), "Detached.")
	assert.Zero(t, resizes)
	assert.Zero(t, bus.Count(events.TopicResizeRequest))
}

func TestConsole_RunStopsOnCancel(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	c, _, _ := newTestConsole()
	c.stdin = r

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, &fakeController{}) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	c.Close()
	<-c.Done()
}
