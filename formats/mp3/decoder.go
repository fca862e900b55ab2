// SPDX-License-Identifier: EPL-2.0

package mp3

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	gomp3 "github.com/hajimehoshi/go-mp3"

	"github.com/ik5/audstream/audio"
	"github.com/ik5/audstream/formats/internal/pcm"
)

// go-mp3 always produces 16-bit little-endian stereo.
const (
	channels   = 2
	frameBytes = channels * 2
)

var ErrInvalidStream = errors.New("invalid MP3 stream")

// mp3Reader is the part of gomp3.Decoder the source reads from.
type mp3Reader interface {
	Read([]byte) (int, error)
	SampleRate() int
}

type source struct {
	dec    mp3Reader
	rate   int
	buf    []byte
	carry  []byte
	closer io.Closer
}

func (s *source) SampleRate() int { return s.rate }
func (s *source) Channels() int   { return channels }

func (s *source) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// ReadSamples returns whole stereo frames. Bytes of a frame split across
// two decoder reads are carried over to the next call.
func (s *source) ReadSamples(dst []float32) (int, error) {
	want := len(dst) / channels * frameBytes
	if want == 0 {
		return 0, nil
	}
	if cap(s.buf) < want {
		s.buf = make([]byte, want)
	}
	buf := s.buf[:want]

	n := copy(buf, s.carry)
	s.carry = s.carry[:0]

	var err error
	for n < frameBytes && err == nil {
		var m int
		m, err = s.dec.Read(buf[n:])
		n += m
	}

	whole := n / frameBytes * frameBytes
	s.carry = append(s.carry, buf[whole:n]...)

	samples := whole / 2
	for i := range samples {
		dst[i] = pcm.ToFloat(int(int16(binary.LittleEndian.Uint16(buf[2*i:]))), 16)
	}

	switch {
	case err != nil && !errors.Is(err, io.EOF):
		return samples, fmt.Errorf("read mp3: %w", err)
	case samples == 0 && err != nil:
		return 0, io.EOF
	}
	return samples, nil
}

// Decoder reads MPEG-1/2 Layer III streams through go-mp3.
type Decoder struct{}

func (Decoder) Decode(r io.Reader) (audio.Source, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidStream, err)
	}

	s := &source{dec: dec, rate: dec.SampleRate()}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s, nil
}
