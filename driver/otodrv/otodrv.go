// SPDX-License-Identifier: EPL-2.0

package otodrv

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/ik5/audstream/driver"
	"github.com/ik5/audstream/format"
	"github.com/ik5/audstream/internal/logging"
)

// player is the part of *oto.Player the driver uses.
type player interface {
	Play()
	Pause()
	Err() error
	Close() error
}

// backend creates players pulling from a reader.
type backend interface {
	NewPlayer(r io.Reader) player
}

type otoBackend struct{ ctx *oto.Context }

func (b otoBackend) NewPlayer(r io.Reader) player { return b.ctx.NewPlayer(r) }

// oto allows one context per process, fixed to the rate and channel count
// it was created with.
var shared struct {
	sync.Mutex
	ctx      *oto.Context
	rate     int
	channels int
}

func openOto(rate, channels int, buffer time.Duration) (backend, error) {
	shared.Lock()
	defer shared.Unlock()

	if shared.ctx != nil {
		if shared.rate != rate || shared.channels != channels {
			return nil, fmt.Errorf("oto context already running at %d Hz x %d", shared.rate, shared.channels)
		}
		if err := shared.ctx.Resume(); err != nil {
			return nil, err
		}
		return otoBackend{shared.ctx}, nil
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   rate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   buffer,
	})
	if err != nil {
		return nil, err
	}
	<-ready

	shared.ctx, shared.rate, shared.channels = ctx, rate, channels
	return otoBackend{ctx}, nil
}

// Config describes the playback device.
type Config struct {
	Name string
	// Channels is 1 or 2.
	Channels int
	Rates    []uint
	Rate     uint
	// Buffer is the device buffer oto keeps ahead of playback.
	Buffer time.Duration
	Sizes  driver.BufferSizes
}

// DefaultConfig is stereo at 44.1 or 48 kHz with a 50ms device buffer.
func DefaultConfig() Config {
	return Config{
		Name:     "oto",
		Channels: 2,
		Rates:    []uint{22050, 44100, 48000},
		Rate:     48000,
		Buffer:   50 * time.Millisecond,
		Sizes: driver.BufferSizes{
			Min:         64,
			Max:         8192,
			Preferred:   1024,
			Granularity: driver.GranularityPowerOfTwo,
		},
	}
}

// Driver is a playback-only driver.Driver on top of oto. oto pulls audio
// from a reader on its own goroutine; each time the current period has been
// consumed the driver runs BufferSwitch for the next slot on that goroutine.
type Driver struct {
	cfg    Config
	open   func(rate, channels int, buffer time.Duration) (backend, error)
	logger *slog.Logger

	mu          sync.Mutex
	initialized bool
	rate        uint
	frames      int
	out         [2][]byte
	handler     driver.Handler
	player      player

	// period is held while a period is produced, so Stop can wait for the
	// one in flight.
	period  sync.Mutex
	running atomic.Bool
	slot    int
	pos     int
}

// New returns an oto driver for cfg.
func New(cfg Config) *Driver {
	if cfg.Name == "" {
		cfg.Name = "oto"
	}
	if cfg.Channels == 0 {
		cfg.Channels = 2
	}
	if cfg.Rate == 0 && len(cfg.Rates) > 0 {
		cfg.Rate = cfg.Rates[0]
	}
	return &Driver{
		cfg:    cfg,
		open:   openOto,
		rate:   cfg.Rate,
		logger: logging.GetLogger("otodrv").With("driver", cfg.Name),
	}
}

func (d *Driver) Name() string { return d.cfg.Name }

func (d *Driver) Initialize(verbose bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cfg.Channels < 1 || d.cfg.Channels > 2 {
		return driver.NewError("Initialize", driver.InvalidParameter,
			fmt.Errorf("oto plays 1 or 2 channels, not %d", d.cfg.Channels))
	}
	d.initialized = true
	if verbose {
		d.logger.Info("oto device ready", "channels", d.cfg.Channels, "rates", d.cfg.Rates)
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
	return 0, d.cfg.Channels, d.ready("ChannelCounts")
}

func (d *Driver) BufferSizeRange() (driver.BufferSizes, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.Sizes, d.ready("BufferSizeRange")
}

func (d *Driver) SampleRate() (uint, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rate, d.ready("SampleRate")
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
	if d.player != nil && rate != d.rate {
		return driver.NewError("SetSampleRate", driver.InvalidMode, errors.New("buffers already created"))
	}
	d.rate = rate
	return nil
}

func (d *Driver) CanSampleRate(rate uint) bool {
	return slices.Contains(d.cfg.Rates, rate)
}

// SampleType is always interleaved little-endian Float32, the format oto
// mixes in.
func (d *Driver) SampleType() (driver.SampleType, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return driver.SampleType{Format: format.Float32, LittleEndian: true, Interleaved: true}, d.ready("SampleType")
}

func (d *Driver) CreateBuffers(in, out, frames int, h driver.Handler) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ready("CreateBuffers"); err != nil {
		return err
	}
	if in != 0 || out < 1 || out > d.cfg.Channels || frames <= 0 || h == nil {
		return driver.NewError("CreateBuffers", driver.InvalidParameter,
			fmt.Errorf("%d in, %d out, %d frames", in, out, frames))
	}
	if d.player != nil {
		return driver.NewError("CreateBuffers", driver.InvalidMode, errors.New("buffers already created"))
	}

	b, err := d.open(int(d.rate), out, d.cfg.Buffer)
	if err != nil {
		return driver.NewError("CreateBuffers", driver.HardwareMalfunction, err)
	}

	d.period.Lock()
	for slot := range 2 {
		d.out[slot] = make([]byte, format.Float32.BufferSize(frames, out))
	}
	d.slot, d.pos = 1, len(d.out[1])
	d.period.Unlock()
	d.frames = frames
	d.handler = h
	d.player = b.NewPlayer(periodReader{d})
	return nil
}

func (d *Driver) Buffers(slot int) ([]byte, []byte) {
	return nil, d.out[slot&1]
}

// Latencies reports the two periods in flight plus the device buffer.
func (d *Driver) Latencies() (int, int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player == nil {
		return 0, 0, driver.NewError("Latencies", driver.InvalidMode, driver.ErrNoBuffers)
	}
	device := int(d.cfg.Buffer.Seconds() * float64(d.rate))
	return 0, 2*d.frames + device, nil
}

func (d *Driver) NeedsOutputReady() bool { return false }
func (d *Driver) OutputReady() error     { return nil }

func (d *Driver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.player == nil {
		return driver.NewError("Start", driver.InvalidMode, driver.ErrNoBuffers)
	}
	if err := d.player.Err(); err != nil {
		return driver.NewError("Start", driver.HardwareMalfunction, err)
	}
	d.running.Store(true)
	d.player.Play()
	return nil
}

// Stop pauses the player and waits for a period being produced to finish.
func (d *Driver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running.Swap(false) || d.player == nil {
		return nil
	}
	d.player.Pause()

	// Let a period in flight finish.
	d.period.Lock()
	d.period.Unlock()
	return nil
}

func (d *Driver) DisposeBuffers() error {
	if err := d.Stop(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	if d.player != nil {
		if cerr := d.player.Close(); cerr != nil {
			err = driver.NewError("DisposeBuffers", driver.HardwareMalfunction, cerr)
		}
		d.player = nil
	}

	d.period.Lock()
	d.out = [2][]byte{}
	d.handler = nil
	d.period.Unlock()
	return err
}

func (d *Driver) Shutdown() {
	if err := d.DisposeBuffers(); err != nil {
		d.logger.Warn("dispose on shutdown", "error", err)
	}
	d.mu.Lock()
	d.initialized = false
	d.mu.Unlock()
}

// periodReader feeds oto from the driver's output slots.
type periodReader struct{ d *Driver }

func (r periodReader) Read(p []byte) (int, error) {
	d := r.d
	d.period.Lock()
	defer d.period.Unlock()

	n := 0
	for n < len(p) {
		if d.pos == len(d.out[d.slot]) {
			if !d.running.Load() {
				// Paused between periods: keep oto fed with silence.
				clear(p[n:])
				return len(p), nil
			}
			d.slot ^= 1
			d.pos = 0
			d.handler.BufferSwitch(d.slot)
		}
		m := copy(p[n:], d.out[d.slot][d.pos:])
		d.pos += m
		n += m
	}
	return n, nil
}
