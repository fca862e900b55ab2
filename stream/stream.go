// SPDX-License-Identifier: EPL-2.0

package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/kelindar/event"

	"github.com/ik5/audstream/convert"
	"github.com/ik5/audstream/device"
	"github.com/ik5/audstream/driver"
	"github.com/ik5/audstream/format"
	"github.com/ik5/audstream/internal/logging"
	"github.com/ik5/audstream/internal/metrics"
)

// direction holds the negotiated parameters of one side of the stream.
type direction struct {
	channels       int
	first          int
	deviceChannels int
	deviceFormat   format.SampleFormat
	deviceBytes    int
	convert        bool
	swap           bool
	buf            []byte
	info           convert.Info
}

func newDirection(dir convert.Direction, channels, first, frames int, opts *Options, native driver.SampleType) direction {
	d := direction{channels: channels, first: first, deviceFormat: native.Format}
	if channels == 0 {
		return d
	}

	d.deviceChannels = first + channels
	d.deviceBytes = native.Format.BufferSize(frames, d.deviceChannels)

	user := convert.Layout{Format: opts.Format, Channels: channels, Interleaved: !opts.NonInterleaved}
	dev := convert.Layout{Format: native.Format, Channels: d.deviceChannels, Interleaved: native.Interleaved}

	d.convert = convert.Needed(user, dev)
	d.swap = native.LittleEndian != format.NativeLittleEndian
	if d.convert {
		d.info = convert.NewInfo(dir, user, dev, frames, first)
	}
	return d
}

// Stream is a negotiated audio session on one driver.
type Stream struct {
	id       string
	name     string
	drv      driver.Driver
	dev      device.Info
	cb       Callback
	userData any
	logger   *slog.Logger
	events   *event.Dispatcher
	metrics  *metrics.Stream

	rate       uint
	frames     int
	period     float64
	userFormat format.SampleFormat
	rec        direction
	play       direction
	staging    []byte
	needsAck   bool
	inLatency  int
	outLatency int

	stopper *stopper

	// mu serializes control operations. The real-time path never takes it.
	mu       sync.Mutex
	waiting  bool
	released bool

	state         atomic.Int32
	drainCounter  atomic.Int32
	internalDrain atomic.Bool
	xrun          atomic.Bool
	inCallback    atomic.Bool
	clock         atomic.Uint64
	drained       atomic.Pointer[signal]
	halted        atomic.Pointer[signal]
	fault         atomic.Pointer[error]

	stats struct {
		callbacks        atomic.Uint64
		xruns            atomic.Uint64
		drains           atomic.Uint64
		violations       atomic.Uint64
		panics           atomic.Uint64
		conversionErrors atomic.Uint64
		stopTasks        atomic.Uint64
	}
}

// Open negotiates a stream on drv, whose capabilities were probed into dev,
// and registers cb for every period. The stream starts Stopped.
// On error nothing stays allocated and no *Stream is returned.
func Open(drv driver.Driver, dev device.Info, opts Options, cb Callback) (*Stream, error) {
	if drv == nil {
		return nil, fmt.Errorf("%w: nil driver", ErrConfig)
	}
	if cb == nil {
		return nil, fmt.Errorf("%w: nil callback", ErrConfig)
	}
	if opts.Format == 0 {
		opts.Format = format.Float32
	}
	if err := opts.validate(&dev); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	name := opts.Name
	if name == "" {
		name = id
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("stream")
	}
	logger = logger.With("stream", name)

	s := &Stream{
		id:         id,
		name:       name,
		drv:        drv,
		dev:        dev,
		cb:         cb,
		userData:   opts.UserData,
		logger:     logger,
		events:     opts.Events,
		userFormat: opts.Format,
	}

	s.rate = negotiateRate(opts.SampleRate, &dev)
	if s.rate == 0 {
		return nil, fmt.Errorf("%w: device %q has no preferred sample rate", ErrConfig, dev.Name)
	}
	if opts.SampleRate != 0 && opts.SampleRate != s.rate {
		logger.Info("requested sample rate unsupported, using device preference",
			"requested", opts.SampleRate, "rate", s.rate)
	}
	if current, err := drv.SampleRate(); err != nil || current != s.rate {
		if err := drv.SetSampleRate(s.rate); err != nil {
			return nil, fmt.Errorf("set sample rate %d: %w", s.rate, err)
		}
	}

	s.frames = negotiateFrames(opts.BufferFrames, dev.BufferSizes)
	s.period = float64(s.frames) / float64(s.rate)

	native := driver.SampleType{Format: dev.NativeFormat, LittleEndian: dev.LittleEndian, Interleaved: dev.Interleaved}
	s.rec = newDirection(convert.Record, opts.InputChannels, opts.FirstInputChannel, s.frames, &opts, native)
	s.play = newDirection(convert.Play, opts.OutputChannels, opts.FirstOutputChannel, s.frames, &opts, native)

	if err := s.allocate(); err != nil {
		return nil, err
	}

	s.metrics = metrics.ForStream(id)
	s.drained.Store(newSignal())
	s.halted.Store(newSignal())
	s.halted.Load().fire()
	s.stopper = newStopper(s.runStopTask)

	if err := drv.CreateBuffers(s.rec.deviceChannels, s.play.deviceChannels, s.frames, handler{s}); err != nil {
		s.stopper.close()
		s.metrics.Delete()
		return nil, fmt.Errorf("create buffers: %w", err)
	}

	in, out, err := drv.Latencies()
	if err != nil {
		logger.Warn("latency unavailable", "error", err)
	} else {
		s.inLatency, s.outLatency = in, out
	}
	s.needsAck = drv.NeedsOutputReady()
	s.metrics.State.Set(float64(Stopped))

	logger.Info("stream opened",
		"driver", drv.Name(),
		"rate", s.rate,
		"frames", s.frames,
		"format", opts.Format,
		"inputs", s.rec.channels,
		"outputs", s.play.channels,
		"convert_in", s.rec.convert,
		"convert_out", s.play.convert,
		"swap", s.rec.swap || s.play.swap)

	return s, nil
}

func (s *Stream) allocate() error {
	var err error

	if s.rec.channels > 0 {
		if s.rec.buf, err = allocate("input buffer", s.userFormat.BufferSize(s.frames, s.rec.channels)); err != nil {
			return err
		}
	}
	if s.play.channels > 0 {
		if s.play.buf, err = allocate("output buffer", s.userFormat.BufferSize(s.frames, s.play.channels)); err != nil {
			s.rec.buf = nil
			return err
		}
	}

	staging := 0
	if s.rec.convert {
		staging = s.rec.deviceBytes
	}
	if s.play.convert {
		staging = max(staging, s.play.deviceBytes)
	}
	if staging > 0 {
		if s.staging, err = allocate("device staging buffer", staging); err != nil {
			s.rec.buf, s.play.buf = nil, nil
			return err
		}
	}
	return nil
}

// Start begins delivering periods to the callback.
func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch st := s.State(); st {
	case Running:
		s.logger.Warn("start requested while already running")
		return nil
	case Stopping:
		return ErrNotStopped
	case Closed:
		return ErrClosed
	}

	s.drainCounter.Store(drainNone)
	s.internalDrain.Store(false)
	s.xrun.Store(false)
	s.drained.Store(newSignal())
	s.halted.Store(newSignal())

	// The driver may deliver the first period before Start returns.
	s.transition(Stopped, Running, nil)

	if err := s.drv.Start(); err != nil {
		s.transition(Running, Stopped, err)
		s.halted.Load().fire()
		return fmt.Errorf("start %s: %w", s.drv.Name(), err)
	}
	return nil
}

// Stop drains the stream and stops the driver. Output is silenced for a few
// periods before the driver stops, so buffered audio is not cut off.
//
// Stop waits for the driver to deliver the draining periods. If the driver
// never delivers another period the wait does not end; use StopContext to
// bound it.
//
// Called from inside the callback, Stop moves the stream to Stopping and
// returns at once; the driver is stopped on another goroutine. Stop behaves
// the same way when another goroutine calls it while a period is being
// processed; WaitStopped observes the end of the stop in both cases.
func (s *Stream) Stop() error {
	return s.StopContext(context.Background())
}

// StopContext is Stop with a bounded wait. When ctx ends before the stream
// has drained, the driver is stopped anyway and the returned error wraps
// both ErrDrainTimeout and ctx.Err().
func (s *Stream) StopContext(ctx context.Context) error {
	if s.inCallback.Load() {
		return s.stopFromCallback()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.State() {
	case Closed:
		return ErrClosed
	case Stopped:
		s.logger.Warn("stop requested while already stopped")
		return nil
	}
	if s.waiting {
		return fmt.Errorf("%w: stop already in progress", ErrProtocolViolation)
	}

	var timeout error
	if s.drainCounter.Load() == drainNone {
		s.drainCounter.Store(drainStopping)
		s.waiting = true
		drained, halted := s.drained.Load(), s.halted.Load()

		s.mu.Unlock()
		select {
		case <-drained.done():
		case <-halted.done():
		case <-ctx.Done():
			timeout = fmt.Errorf("%w: %w", ErrDrainTimeout, ctx.Err())
		}
		s.mu.Lock()
		s.waiting = false
	}

	if s.State() == Closed {
		return ErrClosed
	}
	if err := s.haltLocked(); err != nil {
		return errors.Join(timeout, err)
	}
	if timeout != nil {
		s.logger.Warn("drain did not finish, driver stopped", "error", timeout)
	}
	return timeout
}

// Abort stops the driver without draining.
func (s *Stream) Abort() error {
	if s.inCallback.Load() {
		return s.stopFromCallback()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.State() {
	case Closed:
		return ErrClosed
	case Stopped:
		s.logger.Warn("abort requested while already stopped")
		return nil
	}

	s.drainCounter.Store(drainStopping)
	return s.haltLocked()
}

// Close stops the stream if needed and releases the driver buffers. The
// stream cannot be used afterwards. Close is idempotent.
func (s *Stream) Close() error {
	s.mu.Lock()

	if s.released {
		s.mu.Unlock()
		return nil
	}

	var errs []error
	from := s.State()
	if from == Running || from == Stopping {
		s.drainCounter.Store(drainStopping)
		if err := s.haltLocked(); err != nil {
			errs = append(errs, err)
		}
		from = Stopped
	}

	if err := s.drv.DisposeBuffers(); err != nil {
		errs = append(errs, fmt.Errorf("dispose buffers: %w", err))
	}
	s.drv.Shutdown()

	s.transition(from, Closed, s.Err())
	s.halted.Load().fire()
	s.drained.Load().fire()

	s.rec.buf, s.play.buf, s.staging = nil, nil, nil
	s.released = true
	s.metrics.Delete()
	s.mu.Unlock()

	s.stopper.close()
	return errors.Join(errs...)
}

// WaitStopped blocks until the stream is no longer running or ctx ends.
// It returns the driver fault, if one closed the stream.
func (s *Stream) WaitStopped(ctx context.Context) error {
	select {
	case <-s.halted.Load().done():
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stopFromCallback runs on the real-time goroutine and must not block.
func (s *Stream) stopFromCallback() error {
	if State(s.state.Load()) == Closed {
		return ErrClosed
	}
	if s.state.CompareAndSwap(int32(Running), int32(Stopping)) {
		s.metrics.State.Set(float64(Stopping))
		s.drainCounter.Store(drainStopping)
		s.requestStop()
	}
	return nil
}

// requestStop hands the stop sequence to the stopper goroutine.
func (s *Stream) requestStop() {
	if s.stopper.schedule() {
		s.stats.stopTasks.Add(1)
		s.metrics.StopTasks.Inc()
	}
}

// runStopTask is the stopper task.
func (s *Stream) runStopTask() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != Stopping {
		return
	}
	if err := s.haltLocked(); err != nil {
		s.logger.Error("stop after drain failed", "error", err)
	}
}

// haltLocked stops the driver and moves the stream to Stopped.
// Callers hold mu.
func (s *Stream) haltLocked() error {
	from := s.State()
	if from == Stopped || from == Closed {
		return nil
	}

	err := s.drv.Stop()
	s.transition(from, Stopped, err)
	s.halted.Load().fire()
	s.drained.Load().fire()

	if err != nil {
		return fmt.Errorf("stop %s: %w", s.drv.Name(), err)
	}
	return nil
}

// transition records a state change made on a control goroutine.
func (s *Stream) transition(from, to State, err error) {
	s.state.Store(int32(to))
	s.metrics.State.Set(float64(to))

	if err != nil {
		s.logger.Warn("stream state changed", "from", from, "to", to, "error", err)
	} else {
		s.logger.Debug("stream state changed", "from", from, "to", to)
	}

	if s.events != nil {
		event.Publish(s.events, StateChangedEvent{StreamID: s.id, Name: s.name, From: from, To: to, Err: err})
	}
}

// fail records a fatal driver error and closes the stream for use.
func (s *Stream) fail(err error) {
	if err == nil {
		err = driver.NewError("Fault", driver.Unknown, nil)
	}
	s.fault.Store(&err)
	s.state.Store(int32(Closed))
	s.metrics.State.Set(float64(Closed))
	s.halted.Load().fire()
	s.drained.Load().fire()
}

// Err returns the driver fault that closed the stream, if any.
func (s *Stream) Err() error {
	if p := s.fault.Load(); p != nil {
		return *p
	}
	return nil
}

// State returns the current state.
func (s *Stream) State() State {
	return State(s.state.Load())
}

// StreamTime returns the seconds of audio processed since the stream was
// opened or the time was last set.
func (s *Stream) StreamTime() float64 {
	return math.Float64frombits(s.clock.Load())
}

// SetStreamTime moves the stream clock to t seconds.
func (s *Stream) SetStreamTime(t float64) {
	if t < 0 {
		t = 0
	}
	s.clock.Store(math.Float64bits(t))
}

func (s *Stream) advanceClock() {
	for {
		old := s.clock.Load()
		next := math.Float64bits(math.Float64frombits(old) + s.period)
		if s.clock.CompareAndSwap(old, next) {
			return
		}
	}
}

// Latency returns the input and output latency in frames reported by the
// driver after the buffers were created.
func (s *Stream) Latency() (in, out int) {
	return s.inLatency, s.outLatency
}

// Stats returns a snapshot of the diagnostic counters.
func (s *Stream) Stats() Stats {
	return Stats{
		Callbacks:          s.stats.callbacks.Load(),
		XRuns:              s.stats.xruns.Load(),
		Drains:             s.stats.drains.Load(),
		ProtocolViolations: s.stats.violations.Load(),
		CallbackPanics:     s.stats.panics.Load(),
		ConversionErrors:   s.stats.conversionErrors.Load(),
		StopTasks:          s.stats.stopTasks.Load(),
	}
}

func (s *Stream) ID() string                  { return s.id }
func (s *Stream) Name() string                { return s.name }
func (s *Stream) SampleRate() uint            { return s.rate }
func (s *Stream) BufferFrames() int           { return s.frames }
func (s *Stream) Format() format.SampleFormat { return s.userFormat }
func (s *Stream) Device() device.Info         { return s.dev }
func (s *Stream) InputChannels() int          { return s.rec.channels }
func (s *Stream) OutputChannels() int         { return s.play.channels }
