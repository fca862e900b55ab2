// SPDX-License-Identifier: EPL-2.0

package audiotest

import (
	"io"
	"math"
)

// Wave returns the value of channel ch at frame i.
type Wave func(i, ch int) float32

// Source generates a fixed number of interleaved float32 frames. It
// satisfies audio.Source.
type Source struct {
	Rate   int
	Chans  int
	Frames int
	Wave   Wave

	// Err, when set, is returned once Fail frames have been produced.
	Err  error
	Fail int

	pos    int
	closed bool
}

// NewSource returns a source of frames frames drawn from wave.
func NewSource(rate, channels, frames int, wave Wave) *Source {
	return &Source{Rate: rate, Chans: channels, Frames: frames, Wave: wave}
}

// Silence is all zeros.
func Silence(rate, channels, frames int) *Source {
	return NewSource(rate, channels, frames, func(int, int) float32 { return 0 })
}

// Constant holds every sample at v.
func Constant(rate, channels, frames int, v float32) *Source {
	return NewSource(rate, channels, frames, func(int, int) float32 { return v })
}

// Sine is a full-scale sine at hz on every channel.
func Sine(rate, channels, frames int, hz float64) *Source {
	return NewSource(rate, channels, frames, func(i, _ int) float32 {
		return float32(math.Sin(2 * math.Pi * hz * float64(i) / float64(rate)))
	})
}

// Ramp encodes the channel into the sample: frame i, channel ch is
// i*0.001 + ch.
func Ramp(rate, channels, frames int) *Source {
	return NewSource(rate, channels, frames, func(i, ch int) float32 {
		return float32(i)*0.001 + float32(ch)
	})
}

func (s *Source) SampleRate() int { return s.Rate }
func (s *Source) Channels() int   { return s.Chans }

func (s *Source) Close() error {
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Source) Closed() bool { return s.closed }

// Rewind starts the source over.
func (s *Source) Rewind() { s.pos = 0 }

func (s *Source) ReadSamples(dst []float32) (int, error) {
	if s.Err != nil && s.pos >= s.Fail {
		return 0, s.Err
	}
	if s.pos >= s.Frames {
		return 0, io.EOF
	}

	frames := min(len(dst)/s.Chans, s.Frames-s.pos)
	if s.Err != nil {
		frames = min(frames, s.Fail-s.pos)
	}
	for f := range frames {
		for ch := range s.Chans {
			dst[f*s.Chans+ch] = s.Wave(s.pos+f, ch)
		}
	}
	s.pos += frames

	if s.pos >= s.Frames {
		return frames * s.Chans, io.EOF
	}
	return frames * s.Chans, nil
}
