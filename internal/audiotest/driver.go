// SPDX-License-Identifier: EPL-2.0

package audiotest

import (
	"sync"
	"sync/atomic"

	"github.com/ik5/audstream/driver"
	"github.com/ik5/audstream/format"
)

// Driver is a scripted driver.Driver. Periods are delivered only when a test
// calls Fire, so every callback runs on the test goroutine.
type Driver struct {
	DriverName    string
	Inputs        int
	Outputs       int
	Rates         []uint
	Rate          uint
	Type          driver.SampleType
	Sizes         driver.BufferSizes
	InputLatency  int
	OutputLatency int
	AckOutput     bool

	// Fail maps an operation name ("Initialize", "SetSampleRate",
	// "CreateBuffers", "Start", "Stop", ...) to the error it returns.
	Fail map[string]error

	mu          sync.Mutex
	handler     driver.Handler
	frames      int
	in          [2][]byte
	out         [2][]byte
	calls       map[string]int
	stops       chan struct{}
	outputReady atomic.Int64
}

// NewDriver returns a duplex Int32 little-endian interleaved driver with
// two inputs, two outputs, rates 44100 and 48000 and 64..1024 frame periods.
func NewDriver() *Driver {
	return &Driver{
		DriverName: "scripted",
		Inputs:     2,
		Outputs:    2,
		Rates:      []uint{44100, 48000},
		Rate:       48000,
		Type:       driver.SampleType{Format: format.Int32, LittleEndian: true, Interleaved: true},
		Sizes:      driver.BufferSizes{Min: 64, Max: 1024, Preferred: 256, Granularity: driver.GranularityPowerOfTwo},
		calls:      make(map[string]int),
		stops:      make(chan struct{}, 64),
	}
}

func (d *Driver) record(op string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls[op]++
	return d.Fail[op]
}

// Calls returns how many times op was invoked.
func (d *Driver) Calls(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[op]
}

// Stopped receives one value per Stop call.
func (d *Driver) Stopped() <-chan struct{} {
	return d.stops
}

// OutputReadyCalls returns how many periods were acknowledged.
func (d *Driver) OutputReadyCalls() int64 {
	return d.outputReady.Load()
}

func (d *Driver) Name() string { return d.DriverName }

func (d *Driver) Initialize(bool) error {
	return d.record("Initialize")
}

func (d *Driver) ChannelCounts() (int, int, error) {
	return d.Inputs, d.Outputs, d.record("ChannelCounts")
}

func (d *Driver) BufferSizeRange() (driver.BufferSizes, error) {
	return d.Sizes, d.record("BufferSizeRange")
}

func (d *Driver) SampleRate() (uint, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Rate, nil
}

func (d *Driver) SetSampleRate(rate uint) error {
	if err := d.record("SetSampleRate"); err != nil {
		return err
	}
	if !d.CanSampleRate(rate) {
		return driver.NewError("SetSampleRate", driver.InvalidParameter, nil)
	}
	d.mu.Lock()
	d.Rate = rate
	d.mu.Unlock()
	return nil
}

func (d *Driver) CanSampleRate(rate uint) bool {
	for _, r := range d.Rates {
		if r == rate {
			return true
		}
	}
	return false
}

func (d *Driver) SampleType() (driver.SampleType, error) {
	return d.Type, d.record("SampleType")
}

func (d *Driver) CreateBuffers(in, out, frames int, h driver.Handler) error {
	if err := d.record("CreateBuffers"); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	w := d.Type.Format.Width()
	for slot := range 2 {
		d.in[slot] = nil
		d.out[slot] = nil
		if in > 0 {
			d.in[slot] = make([]byte, in*frames*w)
		}
		if out > 0 {
			d.out[slot] = make([]byte, out*frames*w)
		}
	}
	d.frames = frames
	d.handler = h
	return nil
}

// Buffers does not lock: buffers only change in CreateBuffers and
// DisposeBuffers, which never overlap a period.
func (d *Driver) Buffers(slot int) ([]byte, []byte) {
	return d.in[slot&1], d.out[slot&1]
}

func (d *Driver) Latencies() (int, int, error) {
	return d.InputLatency, d.OutputLatency, d.record("Latencies")
}

func (d *Driver) NeedsOutputReady() bool { return d.AckOutput }

func (d *Driver) OutputReady() error {
	d.outputReady.Add(1)
	return nil
}

func (d *Driver) Start() error {
	return d.record("Start")
}

func (d *Driver) Stop() error {
	err := d.record("Stop")
	select {
	case d.stops <- struct{}{}:
	default:
	}
	return err
}

func (d *Driver) DisposeBuffers() error {
	err := d.record("DisposeBuffers")
	d.mu.Lock()
	d.in, d.out = [2][]byte{}, [2][]byte{}
	d.handler = nil
	d.mu.Unlock()
	return err
}

func (d *Driver) Shutdown() {
	_ = d.record("Shutdown")
}

// Handler returns the handler registered by CreateBuffers.
func (d *Driver) Handler() driver.Handler {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handler
}

// Fire delivers one period for slot.
func (d *Driver) Fire(slot int) {
	if h := d.Handler(); h != nil {
		h.BufferSwitch(slot)
	}
}

// FireXRun reports an overrun or underrun.
func (d *Driver) FireXRun() {
	if h := d.Handler(); h != nil {
		h.XRun()
	}
}

// FireFault reports a fatal driver error.
func (d *Driver) FireFault(err error) {
	if h := d.Handler(); h != nil {
		h.Fault(err)
	}
}

// Input returns the device input buffer of slot for tests to fill.
func (d *Driver) Input(slot int) []byte { return d.in[slot&1] }

// Output returns the device output buffer of slot for tests to inspect.
func (d *Driver) Output(slot int) []byte { return d.out[slot&1] }

// Frames returns the period size passed to CreateBuffers.
func (d *Driver) Frames() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames
}
