// SPDX-License-Identifier: EPL-2.0

package stream

import (
	"github.com/ik5/audstream/convert"
	"github.com/ik5/audstream/format"
)

// handler is what the driver sees of a stream.
type handler struct {
	s *Stream
}

func (h handler) BufferSwitch(slot int) {
	h.s.inCallback.Store(true)
	h.s.bufferSwitch(slot)
	h.s.inCallback.Store(false)
}

func (h handler) XRun() {
	h.s.xrun.Store(true)
	h.s.stats.xruns.Add(1)
	h.s.metrics.XRuns.Inc()
}

func (h handler) Fault(err error) {
	h.s.fail(err)
}

// bufferSwitch processes one period. It runs on the driver's real-time
// goroutine: no locks, no allocation, no logging.
func (s *Stream) bufferSwitch(slot int) {
	switch State(s.state.Load()) {
	case Stopped, Stopping:
		return
	case Closed:
		s.stats.violations.Add(1)
		s.metrics.ProtocolViolations.Inc()
		return
	}

	if s.drainCounter.Load() > DrainThreshold {
		s.enterStopping()
		s.stats.drains.Add(1)
		s.metrics.Drains.Inc()
		if s.internalDrain.Load() {
			s.requestStop()
		} else {
			s.drained.Load().fire()
		}
		return
	}

	devIn, devOut := s.drv.Buffers(slot)

	if s.rec.channels > 0 {
		s.record(devIn)
	}

	if s.drainCounter.Load() == drainNone {
		status := Good
		if s.xrun.Swap(false) {
			if s.rec.channels > 0 {
				status |= InputOverflow
			}
			if s.play.channels > 0 {
				status |= OutputUnderflow
			}
		}

		s.stats.callbacks.Add(1)
		s.metrics.Callbacks.Inc()

		switch s.invoke(status) {
		case Abort:
			clear(devOut)
			s.enterStopping()
			s.drainCounter.Store(drainStopping)
			s.requestStop()
			return
		case Complete:
			s.drainCounter.Store(drainInternal)
			s.internalDrain.Store(true)
		}
	}

	if s.play.channels > 0 {
		if s.drainCounter.Load() > drainInternal {
			clear(devOut)
		} else {
			s.playback(devOut)
		}
	}

	if s.drainCounter.Load() != drainNone {
		s.drainCounter.Add(1)
	}

	if s.needsAck {
		_ = s.drv.OutputReady()
	}
	s.advanceClock()
}

func (s *Stream) enterStopping() {
	if s.state.CompareAndSwap(int32(Running), int32(Stopping)) {
		s.metrics.State.Set(float64(Stopping))
	}
}

// invoke runs the user callback. A panic is contained: the period's output
// becomes silence and the stream keeps running.
func (s *Stream) invoke(status Status) (r Result) {
	defer func() {
		if p := recover(); p != nil {
			clear(s.play.buf)
			s.stats.panics.Add(1)
			s.metrics.CallbackPanics.Inc()
			r = Continue
		}
	}()
	return s.cb(s.play.buf, s.rec.buf, s.frames, s.StreamTime(), status, s.userData)
}

// record moves the device input of one period into the user input buffer.
func (s *Stream) record(devIn []byte) {
	d := &s.rec

	if !d.convert {
		n := copy(d.buf, devIn)
		if d.swap {
			format.SwapBytes(d.buf[:n], d.deviceFormat)
		}
		return
	}

	stage := s.staging[:d.deviceBytes]
	n := copy(stage, devIn)
	if n < len(stage) {
		clear(stage[n:])
	}
	if d.swap {
		format.SwapBytes(stage, d.deviceFormat)
	}
	if err := convert.Convert(d.buf, stage, s.frames, &d.info); err != nil {
		clear(d.buf)
		s.conversionFailed()
	}
}

// playback moves the user output of one period into the device buffer.
func (s *Stream) playback(devOut []byte) {
	d := &s.play

	if !d.convert {
		n := copy(devOut, d.buf)
		if d.swap {
			format.SwapBytes(devOut[:n], d.deviceFormat)
		}
		return
	}

	stage := s.staging[:d.deviceBytes]
	if d.first > 0 {
		clear(stage)
	}
	if err := convert.Convert(stage, d.buf, s.frames, &d.info); err != nil {
		clear(devOut)
		s.conversionFailed()
		return
	}
	if d.swap {
		format.SwapBytes(stage, d.deviceFormat)
	}
	copy(devOut, stage)
}

func (s *Stream) conversionFailed() {
	s.stats.conversionErrors.Add(1)
	s.metrics.ConversionErrors.Inc()
}
