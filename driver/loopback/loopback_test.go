// SPDX-License-Identifier: EPL-2.0

package loopback

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/ik5/audstream/device"
	"github.com/ik5/audstream/driver"
	"github.com/ik5/audstream/format"
	"github.com/ik5/audstream/stream"
)

// recorder fills each output period with its sequence number and keeps a
// copy of every input period.
type recorder struct {
	d      *Driver
	n      int16
	inputs [][]byte
	faults []error
}

func (r *recorder) BufferSwitch(slot int) {
	in, out := r.d.Buffers(slot)
	r.inputs = append(r.inputs, bytes.Clone(in))
	r.n++
	for i := 0; i+2 <= len(out); i += 2 {
		binary.NativeEndian.PutUint16(out[i:], uint16(r.n*100+int16(i/2)))
	}
}

func (r *recorder) XRun()           {}
func (r *recorder) Fault(err error) { r.faults = append(r.faults, err) }

func int16s(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.NativeEndian.Uint16(b[i*2:]))
	}
	return out
}

func manual(in, out int) Config {
	cfg := DefaultConfig()
	cfg.Format = format.Int16
	cfg.Inputs, cfg.Outputs = in, out
	cfg.Manual = true
	return cfg
}

func started(t *testing.T, cfg Config, frames int) (*Driver, *recorder) {
	t.Helper()

	d := New(cfg)
	if err := d.Initialize(false); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	r := &recorder{d: d}
	if err := d.CreateBuffers(cfg.Inputs, cfg.Outputs, frames, r); err != nil {
		t.Fatalf("CreateBuffers() error = %v", err)
	}
	if err := d.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(d.Shutdown)
	return d, r
}

func TestDriver_InputIsPreviousOutput(t *testing.T) {
	t.Parallel()

	d, r := started(t, manual(2, 2), 2)
	if err := d.Step(3); err != nil {
		t.Fatalf("Step() error = %v", err)
	}

	want := [][]int16{
		{0, 0, 0, 0},
		{100, 101, 102, 103},
		{200, 201, 202, 203},
	}
	for i, w := range want {
		if got := int16s(r.inputs[i]); !equal(got, w) {
			t.Errorf("period %d input = %v, want %v", i, got, w)
		}
	}
	if d.Periods() != 3 {
		t.Errorf("Periods() = %d, want 3", d.Periods())
	}
}

func TestDriver_ChannelMismatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		in, out     int
		planar      bool
		secondInput []int16
	}{
		// Output frames are [100 101] [102 103] [104 105].
		{"interleaved fewer inputs", 1, 2, false, []int16{100, 102, 104}},
		{"interleaved more inputs", 3, 2, false, []int16{100, 101, 0, 102, 103, 0, 104, 105, 0}},
		// Planar output is [100 101 102 | 103 104 105].
		{"planar fewer outputs", 2, 1, true, []int16{100, 101, 102, 0, 0, 0}},
		{"planar fewer inputs", 1, 2, true, []int16{100, 101, 102}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := manual(tt.in, tt.out)
			cfg.NonInterleaved = tt.planar
			d, r := started(t, cfg, 3)
			if err := d.Step(2); err != nil {
				t.Fatalf("Step() error = %v", err)
			}
			if got := int16s(r.inputs[1]); !equal(got, tt.secondInput) {
				t.Errorf("second input = %v, want %v", got, tt.secondInput)
			}
		})
	}
}

func TestDriver_Capture(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cfg := manual(0, 1)
	cfg.Capture = &buf
	d, _ := started(t, cfg, 2)

	if err := d.Step(2); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if got, want := int16s(buf.Bytes()), []int16{100, 101, 200, 201}; !equal(got, want) {
		t.Errorf("captured %v, want %v", got, want)
	}
	if rate, outputs := d.Layout(); rate != 48000 || outputs != 1 {
		t.Errorf("Layout() = %d, %d; want 48000, 1", rate, outputs)
	}
}

type failingWriter struct{ calls int }

func (w *failingWriter) Write([]byte) (int, error) {
	w.calls++
	return 0, io.ErrShortWrite
}

func TestDriver_CaptureErrorStopsCapture(t *testing.T) {
	t.Parallel()

	w := &failingWriter{}
	cfg := manual(0, 1)
	cfg.Capture = w
	d, _ := started(t, cfg, 2)

	if err := d.Step(3); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if w.calls != 1 {
		t.Errorf("capture written %d times, want 1", w.calls)
	}
	if !errors.Is(d.CaptureErr(), io.ErrShortWrite) {
		t.Errorf("CaptureErr() = %v, want ErrShortWrite", d.CaptureErr())
	}
}

func TestDriver_Errors(t *testing.T) {
	t.Parallel()

	d := New(manual(1, 1))
	h := &recorder{d: d}

	err := d.CreateBuffers(1, 1, 64, h)
	if !errors.Is(err, driver.ErrNotInitialized) || driver.CodeOf(err) != driver.NotPresent {
		t.Errorf("CreateBuffers() before Initialize = %v, want NotPresent/ErrNotInitialized", err)
	}

	if err := d.Initialize(false); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := d.Start(); !errors.Is(err, driver.ErrNoBuffers) {
		t.Errorf("Start() without buffers = %v, want ErrNoBuffers", err)
	}
	if err := d.SetSampleRate(12345); driver.CodeOf(err) != driver.InvalidParameter {
		t.Errorf("SetSampleRate(12345) = %v, want InvalidParameter", err)
	}
	if err := d.CreateBuffers(2, 1, 64, h); driver.CodeOf(err) != driver.InvalidParameter {
		t.Errorf("CreateBuffers(too many inputs) = %v, want InvalidParameter", err)
	}
	if err := d.CreateBuffers(1, 1, 64, h); err != nil {
		t.Fatalf("CreateBuffers() error = %v", err)
	}
	if err := d.Step(1); driver.CodeOf(err) != driver.InvalidMode {
		t.Errorf("Step() while stopped = %v, want InvalidMode", err)
	}

	bad := New(Config{Format: format.SampleFormat(42)})
	if err := bad.Initialize(false); driver.CodeOf(err) != driver.InvalidMode {
		t.Errorf("Initialize(bad format) = %v, want InvalidMode", err)
	}
}

func TestDriver_Unplug(t *testing.T) {
	t.Parallel()

	d, r := started(t, manual(1, 1), 8)
	boom := errors.New("usb disconnect")
	d.Unplug(boom)

	if len(r.faults) != 1 || !errors.Is(r.faults[0], boom) || driver.CodeOf(r.faults[0]) != driver.NotPresent {
		t.Fatalf("faults = %v, want one NotPresent wrapping the cause", r.faults)
	}
	if err := d.Step(1); err == nil {
		t.Error("Step() after Unplug succeeded")
	}
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func openStream(t *testing.T, d *Driver, opts stream.Options, cb stream.Callback) *stream.Stream {
	t.Helper()

	info, err := device.Probe(d, false)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	opts.Logger = quiet
	s, err := stream.Open(d, info, opts, cb)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStream_RoundTripThroughConversion(t *testing.T) {
	t.Parallel()

	cfg := manual(1, 1)
	cfg.AckOutput = true
	d := New(cfg)

	var got []float32
	period := 0
	cb := func(out, in []byte, frames int, _ float64, _ stream.Status, _ any) stream.Result {
		for i := range frames {
			got = append(got, math.Float32frombits(binary.NativeEndian.Uint32(in[i*4:])))
			binary.NativeEndian.PutUint32(out[i*4:], math.Float32bits(float32(period)*0.25))
		}
		period++
		return stream.Continue
	}

	s := openStream(t, d, stream.Options{InputChannels: 1, OutputChannels: 1, BufferFrames: 32}, cb)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := d.Step(3); err != nil {
		t.Fatalf("Step() error = %v", err)
	}

	// Period 2 hears what period 1 played, quantized to 16 bits.
	frames := s.BufferFrames()
	if len(got) != 3*frames {
		t.Fatalf("captured %d input samples, want %d", len(got), 3*frames)
	}
	if v := got[2*frames]; math.Abs(float64(v)-0.25) > 1.0/32767 {
		t.Errorf("looped sample = %v, want about 0.25", v)
	}
	if d.Acks() != 3 {
		t.Errorf("Acks() = %d, want 3", d.Acks())
	}
}

func TestStream_ClockedDrain(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Inputs = 0
	d := New(cfg)

	periods := 0
	cb := func(out, _ []byte, _ int, _ float64, _ stream.Status, _ any) stream.Result {
		clear(out)
		periods++
		if periods == 4 {
			return stream.Complete
		}
		return stream.Continue
	}

	s := openStream(t, d, stream.Options{OutputChannels: 2, BufferFrames: 64}, cb)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.WaitStopped(ctx); err != nil {
		t.Fatalf("WaitStopped() error = %v", err)
	}
	if s.State() != stream.Stopped {
		t.Errorf("State() = %v, want Stopped", s.State())
	}
	if got := s.Stats().Drains; got != 1 {
		t.Errorf("Drains = %d, want 1", got)
	}
}

func TestStream_UnplugClosesStream(t *testing.T) {
	t.Parallel()

	d := New(manual(0, 2))
	s := openStream(t, d, stream.Options{OutputChannels: 2}, func(out, _ []byte, _ int, _ float64, _ stream.Status, _ any) stream.Result {
		clear(out)
		return stream.Continue
	})
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	d.Unplug(errors.New("cable pulled"))
	if s.State() != stream.Closed {
		t.Errorf("State() = %v, want Closed", s.State())
	}
	if !errors.Is(s.Err(), driver.ErrDriver) {
		t.Errorf("Err() = %v, want ErrDriver", s.Err())
	}
}

func equal(a, b []int16) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
