// SPDX-License-Identifier: EPL-2.0

package stream

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kelindar/event"

	"github.com/ik5/audstream/driver"
	"github.com/ik5/audstream/internal/audiotest"
)

func TestDrain_CompleteStopsAfterThreshold(t *testing.T) {
	t.Parallel()

	drv := audiotest.NewDriver()

	calls := 0
	cb := func(out, _ []byte, _ int, _ float64, _ Status, _ any) Result {
		calls++
		fillF32(out, 0.25)
		return Complete
	}

	s := open(t, drv, Options{OutputChannels: 2}, cb)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// The completing period is still played.
	drv.Fire(0)
	if allZero(drv.Output(0)) {
		t.Fatal("completing period was not played")
	}
	if got := s.drainCounter.Load(); got != 2 {
		t.Fatalf("drain counter = %d, want 2", got)
	}

	drv.Fire(1)
	if !allZero(drv.Output(1)) {
		t.Error("first drain period is not silent")
	}
	drv.Fire(0)
	if !allZero(drv.Output(0)) {
		t.Error("second drain period is not silent")
	}
	if got := s.drainCounter.Load(); got != DrainThreshold+1 {
		t.Fatalf("drain counter = %d, want %d", got, DrainThreshold+1)
	}
	if s.State() != Running {
		t.Fatalf("State() = %v before the threshold period", s.State())
	}

	drv.Fire(1)
	waitStopped(t, s)

	if s.State() != Stopped {
		t.Errorf("State() = %v, want stopped", s.State())
	}
	if calls != 1 {
		t.Errorf("callback ran %d times, want 1", calls)
	}
	if n := drv.Calls("Stop"); n != 1 {
		t.Errorf("driver Stop called %d times, want 1", n)
	}
	if st := s.Stats(); st.Drains != 1 || st.StopTasks != 1 {
		t.Errorf("Stats() = %+v, want one drain and one stop task", st)
	}
}

func TestDrain_SilenceWhileCounterAboveOne(t *testing.T) {
	t.Parallel()

	drv := audiotest.NewDriver()
	cb := func(out, _ []byte, _ int, _ float64, _ Status, _ any) Result {
		fillF32(out, 0.5)
		return Continue
	}

	s := open(t, drv, Options{OutputChannels: 2}, cb)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	s.drainCounter.Store(drainStopping)
	fillBytes(drv.Output(0), 0x7F)
	drv.Fire(0)

	if !allZero(drv.Output(0)) {
		t.Error("output is not silent while draining")
	}
	if got := s.drainCounter.Load(); got != 3 {
		t.Errorf("drain counter = %d, want 3", got)
	}
	if s.Stats().Callbacks != 0 {
		t.Error("callback ran while draining")
	}
}

func TestAbort_ResultSchedulesOneStop(t *testing.T) {
	t.Parallel()

	drv := audiotest.NewDriver()
	cb := func(out, _ []byte, _ int, _ float64, _ Status, _ any) Result {
		fillF32(out, 0.5)
		return Abort
	}

	s := open(t, drv, Options{OutputChannels: 2}, cb)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Holding the control lock keeps the stop task from finishing.
	s.mu.Lock()
	fillBytes(drv.Output(0), 0x7F)
	drv.Fire(0)

	if s.State() != Stopping {
		t.Errorf("State() = %v, want stopping", s.State())
	}
	if got := s.drainCounter.Load(); got != drainStopping {
		t.Errorf("drain counter = %d, want 2", got)
	}
	if !allZero(drv.Output(0)) {
		t.Error("aborted period is not silent")
	}

	drv.Fire(1)
	drv.Fire(0)
	s.mu.Unlock()

	waitStopped(t, s)

	if got := s.Stats().StopTasks; got != 1 {
		t.Errorf("Stats().StopTasks = %d, want 1", got)
	}
	if got := s.Stats().Callbacks; got != 1 {
		t.Errorf("Stats().Callbacks = %d, want 1", got)
	}
	if n := drv.Calls("Stop"); n != 1 {
		t.Errorf("driver Stop called %d times, want 1", n)
	}
}

func TestStop_DrainsBeforeStopping(t *testing.T) {
	t.Parallel()

	drv := audiotest.NewDriver()
	cb := func(out, _ []byte, _ int, _ float64, _ Status, _ any) Result {
		fillF32(out, 0.5)
		return Continue
	}

	s := open(t, drv, Options{OutputChannels: 2}, cb)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Stop() }()

	deadline := time.After(2 * time.Second)
	for slot := 0; ; slot++ {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("Stop() error = %v", err)
			}
			if s.State() != Stopped {
				t.Errorf("State() = %v, want stopped", s.State())
			}
			if n := drv.Calls("Stop"); n != 1 {
				t.Errorf("driver Stop called %d times, want 1", n)
			}
			if s.Stats().StopTasks != 0 {
				t.Error("a control-goroutine stop should not use the stopper")
			}
			return
		case <-deadline:
			t.Fatal("Stop() did not return")
		default:
		}

		drv.Fire(slot)
		time.Sleep(time.Millisecond)
	}
}

func TestStopContext_Timeout(t *testing.T) {
	t.Parallel()

	drv := audiotest.NewDriver()
	s := open(t, drv, Options{OutputChannels: 2}, silent)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.StopContext(ctx)
	if !errors.Is(err, ErrDrainTimeout) {
		t.Errorf("StopContext() error = %v, want ErrDrainTimeout", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("StopContext() error = %v, want DeadlineExceeded", err)
	}
	if s.State() != Stopped {
		t.Errorf("State() = %v, want stopped", s.State())
	}
	if n := drv.Calls("Stop"); n != 1 {
		t.Errorf("driver Stop called %d times, want 1", n)
	}
}

func TestStop_ConcurrentIsProtocolViolation(t *testing.T) {
	t.Parallel()

	drv := audiotest.NewDriver()
	s := open(t, drv, Options{OutputChannels: 2}, silent)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	first := make(chan error, 1)
	go func() { first <- s.Stop() }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		s.mu.Lock()
		waiting := s.waiting
		s.mu.Unlock()
		if waiting {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first Stop never started waiting")
		}
		time.Sleep(time.Millisecond)
	}

	if err := s.Stop(); !errors.Is(err, ErrProtocolViolation) {
		t.Errorf("second Stop() error = %v, want ErrProtocolViolation", err)
	}

	if err := s.Abort(); err != nil {
		t.Fatalf("Abort() error = %v", err)
	}
	if err := <-first; err != nil {
		t.Errorf("first Stop() error = %v", err)
	}
	if n := drv.Calls("Stop"); n != 1 {
		t.Errorf("driver Stop called %d times, want 1", n)
	}
}

func TestStop_FromInsideCallback(t *testing.T) {
	t.Parallel()

	drv := audiotest.NewDriver()

	var s *Stream
	var stopErr atomic.Value
	cb := func(out, _ []byte, _ int, _ float64, _ Status, _ any) Result {
		fillF32(out, 0.5)
		if err := s.Stop(); err != nil {
			stopErr.Store(err)
		}
		return Continue
	}

	s = open(t, drv, Options{OutputChannels: 2}, cb)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	drv.Fire(0)
	waitStopped(t, s)

	if v := stopErr.Load(); v != nil {
		t.Errorf("Stop() inside callback error = %v", v)
	}
	if !allZero(drv.Output(0)) {
		t.Error("period that requested the stop is not silent")
	}
	if s.State() != Stopped {
		t.Errorf("State() = %v, want stopped", s.State())
	}
	if got := s.Stats().StopTasks; got != 1 {
		t.Errorf("Stats().StopTasks = %d, want 1", got)
	}
}

func TestAbort_FromControlGoroutine(t *testing.T) {
	t.Parallel()

	drv := audiotest.NewDriver()
	s := open(t, drv, Options{OutputChannels: 2}, silent)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := s.Abort(); err != nil {
		t.Fatalf("Abort() error = %v", err)
	}
	if s.State() != Stopped {
		t.Errorf("State() = %v, want stopped", s.State())
	}

	// Stopped streams restart with a fresh drain state.
	if err := s.Start(); err != nil {
		t.Fatalf("restart error = %v", err)
	}
	if s.drainCounter.Load() != drainNone {
		t.Error("drain counter not reset on Start")
	}
	drv.Fire(0)
	if s.Stats().Callbacks != 1 {
		t.Errorf("Stats().Callbacks = %d after restart, want 1", s.Stats().Callbacks)
	}
}

func TestLifecycle_StateErrors(t *testing.T) {
	t.Parallel()

	drv := audiotest.NewDriver()
	s := open(t, drv, Options{OutputChannels: 2}, silent)

	if err := s.Stop(); err != nil {
		t.Errorf("Stop() on stopped stream = %v, want nil", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(); err != nil {
		t.Errorf("second Start() = %v, want nil", err)
	}
	if n := drv.Calls("Start"); n != 1 {
		t.Errorf("driver Start called %d times, want 1", n)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if s.State() != Closed {
		t.Errorf("State() = %v, want closed", s.State())
	}
	if n := drv.Calls("Stop"); n != 1 {
		t.Errorf("Close did not stop the running driver")
	}
	if n := drv.Calls("DisposeBuffers"); n != 1 {
		t.Errorf("DisposeBuffers called %d times, want 1", n)
	}
	if n := drv.Calls("Shutdown"); n != 1 {
		t.Errorf("Shutdown called %d times, want 1", n)
	}

	if err := s.Start(); !errors.Is(err, ErrClosed) {
		t.Errorf("Start() after Close = %v, want ErrClosed", err)
	}
	if err := s.Stop(); !errors.Is(err, ErrClosed) {
		t.Errorf("Stop() after Close = %v, want ErrClosed", err)
	}
	if err := s.Abort(); !errors.Is(err, ErrClosed) {
		t.Errorf("Abort() after Close = %v, want ErrClosed", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() = %v, want nil", err)
	}
	if n := drv.Calls("DisposeBuffers"); n != 1 {
		t.Errorf("second Close disposed again")
	}
}

func TestStart_DriverFailure(t *testing.T) {
	t.Parallel()

	drv := audiotest.NewDriver()
	drv.Fail = map[string]error{"Start": driver.NewError("Start", driver.NoClock, nil)}

	s := open(t, drv, Options{OutputChannels: 2}, silent)

	err := s.Start()
	if !errors.Is(err, ErrDriver) {
		t.Errorf("Start() error = %v, want ErrDriver", err)
	}
	if driver.CodeOf(err) != driver.NoClock {
		t.Errorf("CodeOf() = %v, want NoClock", driver.CodeOf(err))
	}
	if s.State() != Stopped {
		t.Errorf("State() = %v, want stopped", s.State())
	}
}

func TestStopping_StartReportsNotStopped(t *testing.T) {
	t.Parallel()

	drv := audiotest.NewDriver()
	s := open(t, drv, Options{OutputChannels: 2}, silent)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Stopping with no stop task queued.
	s.enterStopping()

	if err := s.Start(); !errors.Is(err, ErrNotStopped) {
		t.Errorf("Start() while stopping = %v, want ErrNotStopped", err)
	}

	if err := s.Abort(); err != nil {
		t.Fatalf("Abort() error = %v", err)
	}
	if err := s.Start(); err != nil {
		t.Errorf("Start() after Abort = %v", err)
	}
}

func TestFault_ClosesStream(t *testing.T) {
	t.Parallel()

	drv := audiotest.NewDriver()
	s := open(t, drv, Options{OutputChannels: 2}, silent)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	gone := driver.NewError("BufferSwitch", driver.NotPresent, io.ErrClosedPipe)
	h := drv.Handler()
	drv.FireFault(gone)

	if s.State() != Closed {
		t.Errorf("State() = %v, want closed", s.State())
	}
	if err := s.WaitStopped(context.Background()); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("WaitStopped() = %v, want the fault", err)
	}
	if err := s.Start(); !errors.Is(err, ErrClosed) {
		t.Errorf("Start() after fault = %v, want ErrClosed", err)
	}

	h.BufferSwitch(0)
	if got := s.Stats().ProtocolViolations; got != 1 {
		t.Errorf("Stats().ProtocolViolations = %d, want 1", got)
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if n := drv.Calls("DisposeBuffers"); n != 1 {
		t.Errorf("DisposeBuffers called %d times after fault, want 1", n)
	}
}

func TestClosed_CallbackIsProtocolViolation(t *testing.T) {
	t.Parallel()

	drv := audiotest.NewDriver()
	calls := 0
	cb := func(out, _ []byte, _ int, _ float64, _ Status, _ any) Result {
		calls++
		return Continue
	}

	s := open(t, drv, Options{OutputChannels: 2}, cb)
	h := drv.Handler()

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	h.BufferSwitch(0)
	h.BufferSwitch(1)

	if calls != 0 {
		t.Errorf("callback ran %d times after Close", calls)
	}
	if got := s.Stats().ProtocolViolations; got != 2 {
		t.Errorf("Stats().ProtocolViolations = %d, want 2", got)
	}
}

func TestEvents_StateChanges(t *testing.T) {
	t.Parallel()

	d := event.NewDispatcher()

	received := make(chan StateChangedEvent, 8)
	unsub := OnStateChange(d, func(e StateChangedEvent) { received <- e })
	defer unsub()

	drv := audiotest.NewDriver()
	s := open(t, drv, Options{Name: "events", OutputChannels: 2, Events: d}, silent)

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Abort(); err != nil {
		t.Fatalf("Abort() error = %v", err)
	}

	want := []struct{ from, to State }{
		{Stopped, Running},
		{Running, Stopped},
	}
	for _, w := range want {
		select {
		case e := <-received:
			if e.StreamID != s.ID() || e.Name != "events" {
				t.Errorf("event for %q/%q, want %q/events", e.StreamID, e.Name, s.ID())
			}
			if e.From != w.from || e.To != w.to {
				t.Errorf("event %v -> %v, want %v -> %v", e.From, e.To, w.from, w.to)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("no event for %v -> %v", w.from, w.to)
		}
	}
}
