// SPDX-License-Identifier: EPL-2.0

// Package pcm adapts go-audio integer decoders to audio.Source.
package pcm

import (
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
)

var ErrBitDepth = errors.New("unsupported bit depth")

// Reader is the part of the go-audio decoders a Source reads from.
type Reader interface {
	PCMBuffer(buf *goaudio.IntBuffer) (int, error)
}

// Source turns integer PCM into float32 samples with the same scaling the
// conversion engine uses.
type Source struct {
	dec      Reader
	rate     int
	channels int
	bits     int
	bias     int
	signed8  bool
	buf      goaudio.IntBuffer
	closer   io.Closer
}

// NewSource wraps dec. Unsigned 8-bit data (WAV) is re-centred before
// scaling; signed 8-bit data (AIFF) is accepted either as bytes or as
// already sign-extended values.
func NewSource(dec Reader, rate, channels, bits int, unsigned8 bool) (*Source, error) {
	switch bits {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d", ErrBitDepth, bits)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channel count %d", channels)
	}

	s := &Source{dec: dec, rate: rate, channels: channels, bits: bits}
	switch {
	case bits == 8 && unsigned8:
		s.bias = 128
	case bits == 8:
		s.signed8 = true
	}
	s.buf.Format = &goaudio.Format{NumChannels: channels, SampleRate: rate}
	return s, nil
}

// CloseWith makes Close close c.
func (s *Source) CloseWith(c io.Closer) { s.closer = c }

func (s *Source) SampleRate() int { return s.rate }
func (s *Source) Channels() int   { return s.channels }
func (s *Source) BitDepth() int   { return s.bits }

func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func (s *Source) ReadSamples(dst []float32) (int, error) {
	want := len(dst) / s.channels * s.channels
	if want == 0 {
		return 0, nil
	}

	if cap(s.buf.Data) < want {
		s.buf.Data = make([]int, want)
	}
	s.buf.Data = s.buf.Data[:want]

	n, err := s.dec.PCMBuffer(&s.buf)
	n = n / s.channels * s.channels
	for i, v := range s.buf.Data[:n] {
		if s.signed8 && v > 127 {
			v -= 256
		}
		dst[i] = ToFloat(v-s.bias, s.bits)
	}

	switch {
	case err != nil && !errors.Is(err, io.EOF):
		return n, fmt.Errorf("read pcm: %w", err)
	case n == 0:
		return 0, io.EOF
	}
	return n, nil
}

// ToFloat maps a signed sample of the given width into [-1, 1] as
// (v + 0.5) / (max + 0.5).
func ToFloat(v, bits int) float32 {
	top := float64(int64(1)<<(bits-1) - 1)
	return float32((float64(v) + 0.5) / (top + 0.5))
}
