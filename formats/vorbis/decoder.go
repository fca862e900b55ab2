// SPDX-License-Identifier: EPL-2.0

package vorbis

import (
	"errors"
	"fmt"
	"io"

	"github.com/jfreymuth/oggvorbis"

	"github.com/ik5/audstream/audio"
)

var ErrInvalidStream = errors.New("invalid Ogg Vorbis stream")

// oggReader is the part of oggvorbis.Reader the source reads from. Read
// counts interleaved values, not frames.
type oggReader interface {
	SampleRate() int
	Channels() int
	Read([]float32) (int, error)
}

type source struct {
	dec      oggReader
	rate     int
	channels int
	closer   io.Closer
}

func (s *source) SampleRate() int { return s.rate }
func (s *source) Channels() int   { return s.channels }

func (s *source) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func (s *source) ReadSamples(dst []float32) (int, error) {
	want := len(dst) / s.channels * s.channels
	if want == 0 {
		return 0, nil
	}

	n, err := s.dec.Read(dst[:want])
	n = n / s.channels * s.channels

	switch {
	case err != nil && !errors.Is(err, io.EOF):
		return n, fmt.Errorf("read vorbis: %w", err)
	case n == 0 && err != nil:
		return 0, io.EOF
	}
	return n, nil
}

// Decoder reads Ogg Vorbis streams through oggvorbis.
type Decoder struct{}

func (Decoder) Decode(r io.Reader) (audio.Source, error) {
	dec, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidStream, err)
	}
	if dec.Channels() <= 0 {
		return nil, fmt.Errorf("%w: %d channels", ErrInvalidStream, dec.Channels())
	}

	s := &source{dec: dec, rate: dec.SampleRate(), channels: dec.Channels()}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s, nil
}
