package terminal

import "sync"

// loop runs posted functions one at a time on a single goroutine. Every
// mutation of session state happens on the loop, so session handlers never
// race with each other. The queue is unbounded so post never blocks, even
// when called from a function already running on the loop.
type loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	stopped bool
	done    chan struct{}
}

func newLoop() *loop {
	l := &loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

// post schedules fn. It reports false once the loop has been stopped.
func (l *loop) post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// stop discards queued work and ends the loop after the running function
// returns. Must be called from the loop goroutine.
func (l *loop) stop() {
	l.mu.Lock()
	l.stopped = true
	l.queue = nil
	l.mu.Unlock()
}

func (l *loop) run() {
	defer close(l.done)

	for {
		l.mu.Lock()
		if l.stopped {
			l.mu.Unlock()
			return
		}
		if len(l.queue) == 0 {
			l.mu.Unlock()
			<-l.wake
			continue
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		fn()
	}
}
