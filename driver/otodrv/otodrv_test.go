// SPDX-License-Identifier: EPL-2.0

package otodrv

import (
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/ik5/audstream/device"
	"github.com/ik5/audstream/driver"
	"github.com/ik5/audstream/stream"
)

type fakePlayer struct {
	r       io.Reader
	playing bool
	closed  bool
	err     error
}

func (p *fakePlayer) Play()        { p.playing = true }
func (p *fakePlayer) Pause()       { p.playing = false }
func (p *fakePlayer) Err() error   { return p.err }
func (p *fakePlayer) Close() error { p.closed = true; return nil }

type fakeBackend struct {
	rate, channels int
	player         *fakePlayer
}

func (b *fakeBackend) NewPlayer(r io.Reader) player {
	b.player = &fakePlayer{r: r}
	return b.player
}

// fake returns a driver whose device is a fakeBackend.
func fake(cfg Config) (*Driver, *fakeBackend) {
	d := New(cfg)
	b := &fakeBackend{}
	d.open = func(rate, channels int, _ time.Duration) (backend, error) {
		b.rate, b.channels = rate, channels
		return b, nil
	}
	return d, b
}

type counter struct {
	d        *Driver
	switches []int
}

func (c *counter) BufferSwitch(slot int) {
	c.switches = append(c.switches, slot)
	_, out := c.d.Buffers(slot)
	for i := 0; i+4 <= len(out); i += 4 {
		binary.LittleEndian.PutUint32(out[i:], math.Float32bits(float32(len(c.switches))))
	}
}

func (c *counter) XRun()       {}
func (c *counter) Fault(error) {}

func floats(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

func TestDriver_PullsPeriods(t *testing.T) {
	t.Parallel()

	d, b := fake(DefaultConfig())
	if err := d.Initialize(false); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	c := &counter{d: d}
	if err := d.CreateBuffers(0, 2, 4, c); err != nil {
		t.Fatalf("CreateBuffers() error = %v", err)
	}
	if b.rate != 48000 || b.channels != 2 {
		t.Errorf("device opened at %d Hz x %d, want 48000 Hz x 2", b.rate, b.channels)
	}
	if err := d.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !b.player.playing {
		t.Error("player not playing after Start")
	}

	// One period is 4 frames x 2 channels x 4 bytes. Reading 1.5 periods
	// produces two.
	p := make([]byte, 48)
	if n, err := b.player.r.Read(p); n != 48 || err != nil {
		t.Fatalf("Read() = %d, %v; want 48, nil", n, err)
	}
	got := floats(p)
	if got[0] != 1 || got[7] != 1 || got[8] != 2 || got[11] != 2 {
		t.Errorf("samples = %v, want 8 x 1 then 2s", got)
	}
	if len(c.switches) != 2 || c.switches[0] != 0 || c.switches[1] != 1 {
		t.Errorf("switches = %v, want [0 1]", c.switches)
	}

	// The rest of period 2 is served before period 3 is requested.
	if _, err := b.player.r.Read(p[:16]); err != nil {
		t.Fatal(err)
	}
	if len(c.switches) != 2 {
		t.Errorf("switches = %v, want no new period", c.switches)
	}
}

func TestDriver_StoppedReadsSilence(t *testing.T) {
	t.Parallel()

	d, b := fake(DefaultConfig())
	_ = d.Initialize(false)
	c := &counter{d: d}
	if err := d.CreateBuffers(0, 1, 8, c); err != nil {
		t.Fatalf("CreateBuffers() error = %v", err)
	}
	if err := d.Start(); err != nil {
		t.Fatal(err)
	}
	if _, err := b.player.r.Read(make([]byte, 32)); err != nil {
		t.Fatal(err)
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if b.player.playing {
		t.Error("player still playing after Stop")
	}

	p := make([]byte, 64)
	for i := range p {
		p[i] = 0xff
	}
	if n, err := b.player.r.Read(p); n != len(p) || err != nil {
		t.Fatalf("Read() = %d, %v", n, err)
	}
	for i, v := range p {
		if v != 0 {
			t.Fatalf("byte %d = %#x, want silence", i, v)
		}
	}
	if len(c.switches) != 1 {
		t.Errorf("switches = %v, want none while stopped", c.switches)
	}
}

func TestDriver_Errors(t *testing.T) {
	t.Parallel()

	d, _ := fake(DefaultConfig())
	c := &counter{d: d}

	if err := d.CreateBuffers(0, 2, 64, c); !errors.Is(err, driver.ErrNotInitialized) {
		t.Errorf("CreateBuffers() before Initialize = %v, want ErrNotInitialized", err)
	}
	_ = d.Initialize(false)

	if err := d.CreateBuffers(1, 2, 64, c); driver.CodeOf(err) != driver.InvalidParameter {
		t.Errorf("CreateBuffers(with input) = %v, want InvalidParameter", err)
	}
	if err := d.CreateBuffers(0, 3, 64, c); driver.CodeOf(err) != driver.InvalidParameter {
		t.Errorf("CreateBuffers(3 outputs) = %v, want InvalidParameter", err)
	}
	if err := d.Start(); !errors.Is(err, driver.ErrNoBuffers) {
		t.Errorf("Start() without buffers = %v, want ErrNoBuffers", err)
	}

	bad := New(Config{Channels: 6})
	if err := bad.Initialize(false); driver.CodeOf(err) != driver.InvalidParameter {
		t.Errorf("Initialize(6 channels) = %v, want InvalidParameter", err)
	}

	broken := New(DefaultConfig())
	broken.open = func(int, int, time.Duration) (backend, error) {
		return nil, errors.New("no audio device")
	}
	_ = broken.Initialize(false)
	if err := broken.CreateBuffers(0, 2, 64, c); driver.CodeOf(err) != driver.HardwareMalfunction {
		t.Errorf("CreateBuffers(no device) = %v, want HardwareMalfunction", err)
	}
}

func TestDriver_DisposeClosesPlayer(t *testing.T) {
	t.Parallel()

	d, b := fake(DefaultConfig())
	_ = d.Initialize(false)
	if err := d.CreateBuffers(0, 2, 64, &counter{d: d}); err != nil {
		t.Fatal(err)
	}
	if _, out, err := d.Latencies(); err != nil || out != 2*64+2400 {
		t.Errorf("Latencies() = %d, %v; want %d", out, err, 2*64+2400)
	}

	d.Shutdown()
	if !b.player.closed {
		t.Error("player not closed by Shutdown")
	}
	if _, err := d.ChannelCounts(); err == nil {
		t.Error("ChannelCounts() after Shutdown succeeded")
	}
}

func TestStream_PlaysThroughDriver(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Channels = 1
	d, b := fake(cfg)

	info, err := device.Probe(d, false)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if info.InputChannels != 0 || info.OutputChannels != 1 {
		t.Fatalf("probed %d in / %d out, want 0 / 1", info.InputChannels, info.OutputChannels)
	}

	periods := 0
	cb := func(out, _ []byte, frames int, _ float64, _ stream.Status, _ any) stream.Result {
		periods++
		for i := range frames {
			binary.NativeEndian.PutUint32(out[i*4:], math.Float32bits(0.5))
		}
		if periods == 2 {
			return stream.Complete
		}
		return stream.Continue
	}

	s, err := stream.Open(d, info, stream.Options{
		OutputChannels: 1,
		SampleRate:     44100,
		BufferFrames:   64,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, cb)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	if b.rate != 44100 {
		t.Errorf("device opened at %d Hz, want 44100", b.rate)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Pull periods the way oto's goroutine would until the stream drains.
	p := make([]byte, 64*4)
	for range 10 {
		if s.State() != stream.Running {
			break
		}
		if _, err := b.player.r.Read(p); err != nil {
			t.Fatal(err)
		}
	}

	if periods != 2 {
		t.Errorf("callback ran %d times, want 2", periods)
	}
	if got := s.Stats().Drains; got != 1 {
		t.Errorf("Drains = %d, want 1", got)
	}
}
