// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/ik5/audstream/convert"
	"github.com/ik5/audstream/format"
	"github.com/ik5/audstream/stream"
)

const (
	// DefaultRingFrames is the feeder ring size used when none is given.
	DefaultRingFrames = 8192

	feedBlockFrames = 512
	feedPoll        = time.Millisecond
)

// Feeder moves a Source into a stream. Run decodes on its own goroutine into
// a ring buffer; Callback drains the ring on the real-time goroutine without
// blocking, pads shortfalls with silence, and completes the stream once the
// source is exhausted and the ring is empty.
type Feeder struct {
	src        Source
	format     format.SampleFormat
	channels   int
	frameBytes int

	ring    *ringbuffer.RingBuffer
	samples []float32
	raw     []byte
	enc     []byte
	info    convert.Info

	eof        atomic.Bool
	played     atomic.Uint64
	underflows atomic.Uint64
	ready      chan struct{}
	readyOnce  sync.Once
}

// NewFeeder prepares a feeder that delivers src in sample format f. The ring
// holds ringFrames frames; zero selects DefaultRingFrames.
func NewFeeder(src Source, f format.SampleFormat, ringFrames int) (*Feeder, error) {
	ch := src.Channels()
	if ch <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrChannels, ch)
	}
	if !f.Valid() {
		return nil, fmt.Errorf("feeder: %w", format.ErrUnknownFormat)
	}
	if ringFrames <= 0 {
		ringFrames = DefaultRingFrames
	}
	block := min(feedBlockFrames, ringFrames)

	fd := &Feeder{
		src:        src,
		format:     f,
		channels:   ch,
		frameBytes: f.BufferSize(1, ch),
		ring:       ringbuffer.New(f.BufferSize(ringFrames, ch)),
		samples:    make([]float32, block*ch),
		raw:        make([]byte, format.Float32.BufferSize(block, ch)),
		ready:      make(chan struct{}),
	}
	if f != format.Float32 {
		fd.enc = make([]byte, f.BufferSize(block, ch))
		fd.info = convert.NewInfo(convert.Play,
			convert.Layout{Format: format.Float32, Channels: ch, Interleaved: true},
			convert.Layout{Format: f, Channels: ch, Interleaved: true},
			block, 0)
	}
	return fd, nil
}

// Run fills the ring until the source ends or ctx is done. It returns nil
// at the end of the source.
func (f *Feeder) Run(ctx context.Context) error {
	defer f.finish()

	tick := time.NewTicker(feedPoll)
	defer tick.Stop()

	blockBytes := f.format.BufferSize(len(f.samples)/f.channels, f.channels)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.ring.Free() < blockBytes {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick.C:
			}
			continue
		}

		n, err := f.src.ReadSamples(f.samples)
		if frames := n / f.channels; frames > 0 {
			if werr := f.write(ctx, frames); werr != nil {
				return werr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read source: %w", err)
		}
	}
}

func (f *Feeder) write(ctx context.Context, frames int) error {
	raw := f.raw[:format.Float32.BufferSize(frames, f.channels)]
	for i, v := range f.samples[:frames*f.channels] {
		binary.NativeEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}

	out := raw
	if f.enc != nil {
		out = f.enc[:f.format.BufferSize(frames, f.channels)]
		if err := convert.Convert(out, raw, frames, &f.info); err != nil {
			return fmt.Errorf("encode %s: %w", f.format, err)
		}
	}

	for written := 0; written < len(out); {
		w, _ := f.ring.Write(out[written:])
		written += w
		if written < len(out) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(feedPoll):
			}
		}
	}
	f.readyOnce.Do(func() { close(f.ready) })
	return nil
}

func (f *Feeder) finish() {
	f.eof.Store(true)
	f.readyOnce.Do(func() { close(f.ready) })
}

// Ready is closed once the first block is buffered or Run has returned.
func (f *Feeder) Ready() <-chan struct{} {
	return f.ready
}

// Callback is a stream.Callback playing the buffered source.
func (f *Feeder) Callback(out, _ []byte, _ int, _ float64, _ stream.Status, _ any) stream.Result {
	n, _ := f.ring.TryRead(out)
	f.played.Add(uint64(n / f.frameBytes))

	if n < len(out) {
		clear(out[n:])
		if f.eof.Load() && f.ring.Length() == 0 {
			return stream.Complete
		}
		f.underflows.Add(1)
	}
	return stream.Continue
}

// Played returns the frames handed to the stream so far.
func (f *Feeder) Played() uint64 { return f.played.Load() }

// Underflows counts periods padded with silence before the source ended.
func (f *Feeder) Underflows() uint64 { return f.underflows.Load() }

// Format is the sample format written into the stream buffers.
func (f *Feeder) Format() format.SampleFormat { return f.format }
