// SPDX-License-Identifier: EPL-2.0

package stream

import (
	"sync"
	"sync/atomic"
)

// stopper runs stop sequences requested from the real-time goroutine on a
// goroutine of its own. It holds at most one outstanding task.
type stopper struct {
	task    func()
	slot    chan struct{}
	pending atomic.Bool
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newStopper(task func()) *stopper {
	s := &stopper{
		task: task,
		slot: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.loop()
	return s
}

// schedule queues the task unless one is already queued or running.
// It never blocks and never allocates.
func (s *stopper) schedule() bool {
	if !s.pending.CompareAndSwap(false, true) {
		return false
	}
	select {
	case s.slot <- struct{}{}:
		return true
	default:
		s.pending.Store(false)
		return false
	}
}

func (s *stopper) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		case <-s.slot:
			s.task()
			s.pending.Store(false)
		}
	}
}

// close stops the goroutine after any running task finishes. A queued task
// that has not started is dropped.
func (s *stopper) close() {
	s.once.Do(func() { close(s.quit) })
	<-s.done
}

// signal is a one-shot broadcast.
type signal struct {
	ch    chan struct{}
	fired atomic.Bool
}

func newSignal() *signal {
	return &signal{ch: make(chan struct{})}
}

func (s *signal) fire() {
	if s.fired.CompareAndSwap(false, true) {
		close(s.ch)
	}
}

func (s *signal) done() <-chan struct{} {
	return s.ch
}
