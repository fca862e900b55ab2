// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"errors"
	"io"
	"math"
)

// resampleBlock is how many source frames are read at a time.
const resampleBlock = 1024

// Resampler converts a Source to another sample rate with Catmull-Rom
// interpolation. The channel count is preserved. When downsampling, a
// one-pole low-pass below the new Nyquist frequency is applied first.
type Resampler struct {
	src      Source
	channels int
	rate     int
	step     float64 // source frames per output frame
	pos      float64 // position between hist[1] and hist[2]

	// hist holds four consecutive source frames around pos. live marks
	// frames read from the source rather than repeated at an edge.
	hist   [4][]float32
	live   [4]bool
	primed bool

	in       []float32
	inPos    int
	inFrames int
	srcDone  bool

	alpha  float32
	state  []float32
	warmed bool
}

func NewResampler(src Source, rate int) *Resampler {
	ch := src.Channels()
	r := &Resampler{
		src:      src,
		channels: ch,
		rate:     rate,
		step:     float64(src.SampleRate()) / float64(rate),
		in:       make([]float32, ch*resampleBlock),
		state:    make([]float32, ch),
	}
	for i := range r.hist {
		r.hist[i] = make([]float32, ch)
	}
	if r.step > 1 {
		cutoff := 0.45 * float64(rate)
		r.alpha = float32(1 - math.Exp(-2*math.Pi*cutoff/float64(src.SampleRate())))
	}
	return r
}

func (r *Resampler) SampleRate() int { return r.rate }
func (r *Resampler) Channels() int   { return r.channels }
func (r *Resampler) Close() error    { return r.src.Close() }

func (r *Resampler) ReadSamples(dst []float32) (int, error) {
	if len(dst)%r.channels != 0 {
		return 0, ErrInvalidDstSize
	}
	if !r.primed {
		if err := r.prime(); err != nil {
			return 0, err
		}
		r.primed = true
	}

	n := 0
	for n < len(dst) {
		for r.pos >= 1 {
			r.pos--
			if err := r.advance(); err != nil {
				return n, err
			}
		}
		if !r.live[1] {
			return n, io.EOF
		}

		x := float32(r.pos)
		for c := range r.channels {
			dst[n+c] = cubic(r.hist[0][c], r.hist[1][c], r.hist[2][c], r.hist[3][c], x)
		}
		n += r.channels
		r.pos += r.step
	}
	return n, nil
}

func (r *Resampler) prime() error {
	ok, err := r.pull(r.hist[1])
	if err != nil {
		return err
	}
	if !ok {
		return io.EOF
	}
	r.live[1] = true
	copy(r.hist[0], r.hist[1])

	for i := 2; i < len(r.hist); i++ {
		if r.live[i], err = r.pull(r.hist[i]); err != nil {
			return err
		}
		if !r.live[i] {
			copy(r.hist[i], r.hist[i-1])
		}
	}
	return nil
}

// advance shifts the window one source frame forward.
func (r *Resampler) advance() error {
	h := &r.hist
	h[0], h[1], h[2], h[3] = h[1], h[2], h[3], h[0]
	r.live[0], r.live[1], r.live[2] = r.live[1], r.live[2], r.live[3]

	ok, err := r.pull(h[3])
	if err != nil {
		return err
	}
	if !ok {
		copy(h[3], h[2])
	}
	r.live[3] = ok
	return nil
}

// pull copies the next source frame into frame. It reports false once the
// source is exhausted.
func (r *Resampler) pull(frame []float32) (bool, error) {
	for r.inPos >= r.inFrames {
		if r.srcDone {
			return false, nil
		}
		n, err := r.src.ReadSamples(r.in)
		r.inPos, r.inFrames = 0, n/r.channels
		if errors.Is(err, io.EOF) {
			r.srcDone = true
		} else if err != nil {
			return false, err
		}
	}

	off := r.inPos * r.channels
	copy(frame, r.in[off:off+r.channels])
	r.inPos++

	if r.alpha > 0 {
		if !r.warmed {
			copy(r.state, frame)
			r.warmed = true
		}
		for c := range frame {
			r.state[c] += r.alpha * (frame[c] - r.state[c])
			frame[c] = r.state[c]
		}
	}
	return true, nil
}

// cubic evaluates the Catmull-Rom spline through y0..y3 at x in [0, 1)
// between y1 and y2.
func cubic(y0, y1, y2, y3, x float32) float32 {
	a := -0.5*y0 + 1.5*y1 - 1.5*y2 + 0.5*y3
	b := y0 - 2.5*y1 + 2*y2 - 0.5*y3
	c := 0.5 * (y2 - y0)
	return ((a*x+b)*x+c)*x + y1
}
