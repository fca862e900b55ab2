// SPDX-License-Identifier: EPL-2.0

package loopback

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ik5/audstream/driver"
	"github.com/ik5/audstream/format"
	"github.com/ik5/audstream/internal/logging"
)

// Config describes the device the loopback driver pretends to be.
type Config struct {
	Name    string
	Inputs  int
	Outputs int
	Rates   []uint
	// Rate is the initial sample rate. Defaults to the first of Rates.
	Rate uint

	Format         format.SampleFormat
	BigEndian      bool
	NonInterleaved bool
	Sizes          driver.BufferSizes

	// Latency is added to the one-period loop delay reported by Latencies.
	Latency int
	// AckOutput makes the driver ask for OutputReady after every period.
	AckOutput bool

	// Manual disables the software clock. Periods are delivered by Step.
	Manual bool

	// Capture receives every output period as raw bytes in the device's
	// sample type, after the handler has filled it.
	Capture io.Writer
}

// DefaultConfig is a stereo duplex Float32 device at 44.1 or 48 kHz.
func DefaultConfig() Config {
	return Config{
		Name:    "loopback",
		Inputs:  2,
		Outputs: 2,
		Rates:   []uint{22050, 44100, 48000, 96000},
		Rate:    48000,
		Format:  format.Float32,
		Sizes: driver.BufferSizes{
			Min:         32,
			Max:         4096,
			Preferred:   512,
			Granularity: driver.GranularityPowerOfTwo,
		},
	}
}

// Driver is a software driver.Driver. Each period's input carries the output
// written in the previous period, channel for channel.
type Driver struct {
	cfg    Config
	logger *slog.Logger

	mu          sync.Mutex
	initialized bool
	rate        uint
	frames      int
	inChans     int
	outChans    int
	in          [2][]byte
	out         [2][]byte
	handler     driver.Handler
	running     bool
	stop        chan struct{}
	done        chan struct{}
	slot        int

	periods    atomic.Uint64
	acks       atomic.Uint64
	captureErr atomic.Pointer[error]
}

// New returns a loopback driver for cfg.
func New(cfg Config) *Driver {
	if cfg.Name == "" {
		cfg.Name = "loopback"
	}
	if cfg.Format == 0 {
		cfg.Format = format.Float32
	}
	if cfg.Rate == 0 && len(cfg.Rates) > 0 {
		cfg.Rate = cfg.Rates[0]
	}
	return &Driver{
		cfg:    cfg,
		rate:   cfg.Rate,
		logger: logging.GetLogger("loopback").With("driver", cfg.Name),
	}
}

func (d *Driver) Name() string { return d.cfg.Name }

func (d *Driver) Initialize(verbose bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.cfg.Format.Valid() {
		return driver.NewError("Initialize", driver.InvalidMode, format.ErrUnknownFormat)
	}
	if d.cfg.Inputs < 0 || d.cfg.Outputs < 0 {
		return driver.NewError("Initialize", driver.InvalidParameter, nil)
	}
	d.initialized = true
	if verbose {
		d.logger.Info("loopback device ready",
			"inputs", d.cfg.Inputs,
			"outputs", d.cfg.Outputs,
			"format", d.cfg.Format,
			"manual", d.cfg.Manual)
	}
	return nil
}

func (d *Driver) ready(op string) error {
	if !d.initialized {
		return driver.NewError(op, driver.NotPresent, driver.ErrNotInitialized)
	}
	return nil
}

func (d *Driver) ChannelCounts() (int, int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ready("ChannelCounts"); err != nil {
		return 0, 0, err
	}
	return d.cfg.Inputs, d.cfg.Outputs, nil
}

func (d *Driver) BufferSizeRange() (driver.BufferSizes, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.Sizes, d.ready("BufferSizeRange")
}

func (d *Driver) SampleRate() (uint, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ready("SampleRate"); err != nil {
		return 0, err
	}
	if d.rate == 0 {
		return 0, driver.NewError("SampleRate", driver.NoClock, nil)
	}
	return d.rate, nil
}

func (d *Driver) SetSampleRate(rate uint) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ready("SetSampleRate"); err != nil {
		return err
	}
	if !slices.Contains(d.cfg.Rates, rate) {
		return driver.NewError("SetSampleRate", driver.InvalidParameter, fmt.Errorf("%d Hz", rate))
	}
	if d.running {
		return driver.NewError("SetSampleRate", driver.InvalidMode, errors.New("running"))
	}
	d.rate = rate
	return nil
}

func (d *Driver) CanSampleRate(rate uint) bool {
	return slices.Contains(d.cfg.Rates, rate)
}

func (d *Driver) SampleType() (driver.SampleType, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	little := format.NativeLittleEndian
	if d.cfg.BigEndian {
		little = false
	}
	return driver.SampleType{
		Format:       d.cfg.Format,
		LittleEndian: little,
		Interleaved:  !d.cfg.NonInterleaved,
	}, d.ready("SampleType")
}

func (d *Driver) CreateBuffers(in, out, frames int, h driver.Handler) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ready("CreateBuffers"); err != nil {
		return err
	}
	if d.running {
		return driver.NewError("CreateBuffers", driver.InvalidMode, errors.New("running"))
	}
	if in < 0 || out < 0 || in > d.cfg.Inputs || out > d.cfg.Outputs || frames <= 0 || h == nil {
		return driver.NewError("CreateBuffers", driver.InvalidParameter,
			fmt.Errorf("%d in, %d out, %d frames", in, out, frames))
	}

	for slot := range 2 {
		d.in[slot], d.out[slot] = nil, nil
		if in > 0 {
			d.in[slot] = make([]byte, d.cfg.Format.BufferSize(frames, in))
		}
		if out > 0 {
			d.out[slot] = make([]byte, d.cfg.Format.BufferSize(frames, out))
		}
	}
	d.inChans, d.outChans = in, out
	d.frames = frames
	d.handler = h
	d.slot = 0
	return nil
}

// Buffers is called from BufferSwitch and does not lock. Buffers only
// change while the clock is stopped.
func (d *Driver) Buffers(slot int) ([]byte, []byte) {
	return d.in[slot&1], d.out[slot&1]
}

func (d *Driver) Latencies() (int, int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handler == nil {
		return 0, 0, driver.NewError("Latencies", driver.InvalidMode, driver.ErrNoBuffers)
	}
	return d.frames + d.cfg.Latency, d.frames + d.cfg.Latency, nil
}

func (d *Driver) NeedsOutputReady() bool { return d.cfg.AckOutput }

func (d *Driver) OutputReady() error {
	d.acks.Add(1)
	return nil
}

func (d *Driver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handler == nil {
		return driver.NewError("Start", driver.InvalidMode, driver.ErrNoBuffers)
	}
	if d.running {
		return nil
	}
	if d.rate == 0 {
		return driver.NewError("Start", driver.NoClock, nil)
	}

	d.running = true
	if d.cfg.Manual {
		return nil
	}

	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.clock(d.handler, time.Duration(float64(d.frames)/float64(d.rate)*float64(time.Second)), d.stop, d.done)
	return nil
}

// Stop halts the clock and waits for the period in flight to finish. It must
// not be called from inside BufferSwitch.
func (d *Driver) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	stop, done := d.stop, d.done
	d.stop, d.done = nil, nil
	d.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	return nil
}

func (d *Driver) DisposeBuffers() error {
	if err := d.Stop(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.in, d.out = [2][]byte{}, [2][]byte{}
	d.handler = nil
	d.frames = 0
	return nil
}

func (d *Driver) Shutdown() {
	_ = d.DisposeBuffers()

	d.mu.Lock()
	d.initialized = false
	d.mu.Unlock()
}

// Step delivers n periods on the calling goroutine. It is meant for Manual
// drivers; on a clocked driver the periods interleave with the clock's.
func (d *Driver) Step(n int) error {
	for range n {
		d.mu.Lock()
		h, running := d.handler, d.running
		d.mu.Unlock()

		if !running {
			return driver.NewError("Step", driver.InvalidMode, errors.New("not running"))
		}
		d.period(h)
	}
	return nil
}

// Unplug simulates the device disappearing: the clock stops and the handler
// receives err as a fault.
func (d *Driver) Unplug(err error) {
	d.mu.Lock()
	h := d.handler
	d.mu.Unlock()

	_ = d.Stop()
	if h != nil {
		h.Fault(driver.NewError("Unplug", driver.NotPresent, err))
	}
}

// Layout returns the current sample rate and the output channel count of
// the created buffers, which is what Capture receives.
func (d *Driver) Layout() (rate uint, outputs int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rate, d.outChans
}

// Periods returns how many periods were delivered.
func (d *Driver) Periods() uint64 { return d.periods.Load() }

// Acks returns how many OutputReady calls were received.
func (d *Driver) Acks() uint64 { return d.acks.Load() }

// CaptureErr returns the error that ended capturing, if any.
func (d *Driver) CaptureErr() error {
	if p := d.captureErr.Load(); p != nil {
		return *p
	}
	return nil
}

func (d *Driver) clock(h driver.Handler, period time.Duration, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			// The ticker drops ticks when a period overruns.
			if now.Sub(last) > 2*period {
				h.XRun()
			}
			last = now
			d.period(h)
		}
	}
}

// period runs one buffer switch: loop the previous output back into the
// input of this slot, hand the slot to h, then capture its output.
func (d *Driver) period(h driver.Handler) {
	slot := d.slot
	d.slot ^= 1

	if in := d.in[slot]; in != nil {
		d.loop(in, d.out[slot^1])
	}

	h.BufferSwitch(slot)
	d.periods.Add(1)

	if out := d.out[slot]; out != nil && d.cfg.Capture != nil && d.captureErr.Load() == nil {
		if _, err := d.cfg.Capture.Write(out); err != nil {
			d.captureErr.Store(&err)
			d.logger.Error("capture stopped", "error", err)
		}
	}
}

// loop copies the channels input and output have in common from src into
// dst and silences the rest of dst.
func (d *Driver) loop(dst, src []byte) {
	if src == nil {
		clear(dst)
		return
	}
	if d.inChans == d.outChans {
		copy(dst, src)
		return
	}

	w := d.cfg.Format.Width()
	shared := min(d.inChans, d.outChans)
	clear(dst)

	if d.cfg.NonInterleaved {
		block := d.frames * w
		copy(dst[:shared*block], src[:shared*block])
		return
	}

	for f := range d.frames {
		copy(dst[f*d.inChans*w:(f*d.inChans+shared)*w], src[f*d.outChans*w:])
	}
}
