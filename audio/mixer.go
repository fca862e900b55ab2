// SPDX-License-Identifier: EPL-2.0

package audio

// Mixer changes the channel count of a Source. Folding down averages the
// source channels that map onto each output channel (i % out); spreading up
// repeats source channel c % in on output channel c.
type Mixer struct {
	src  Source
	in   int
	out  int
	gain []float32
	tmp  []float32
}

// NewMixer returns a Mixer producing channels channels from src.
func NewMixer(src Source, channels int) *Mixer {
	m := &Mixer{src: src, in: src.Channels(), out: channels}

	if m.out < m.in {
		m.gain = make([]float32, m.out)
		for i := range m.in {
			m.gain[i%m.out]++
		}
		for c := range m.gain {
			m.gain[c] = 1 / m.gain[c]
		}
	}
	return m
}

// NewMonoMixer averages all channels of src into one.
func NewMonoMixer(src Source) *Mixer {
	return NewMixer(src, 1)
}

// Remix returns src unchanged when it already has channels channels, and a
// Mixer otherwise.
func Remix(src Source, channels int) (Source, error) {
	if channels <= 0 || src.Channels() <= 0 {
		return nil, ErrChannels
	}
	if src.Channels() == channels {
		return src, nil
	}
	return NewMixer(src, channels), nil
}

func (m *Mixer) SampleRate() int { return m.src.SampleRate() }
func (m *Mixer) Channels() int   { return m.out }
func (m *Mixer) Close() error    { return m.src.Close() }

func (m *Mixer) ReadSamples(dst []float32) (int, error) {
	if len(dst)%m.out != 0 {
		return 0, ErrInvalidDstSize
	}
	if len(dst) == 0 {
		return 0, nil
	}
	if m.in == m.out {
		return m.src.ReadSamples(dst)
	}

	need := len(dst) / m.out * m.in
	if cap(m.tmp) < need {
		m.tmp = make([]float32, need)
	}
	tmp := m.tmp[:need]

	n, err := m.src.ReadSamples(tmp)
	frames := n / m.in

	switch {
	case m.out == 1 && m.in == 2:
		for f := range frames {
			dst[f] = (tmp[2*f] + tmp[2*f+1]) * 0.5
		}
	case m.out < m.in:
		for f := range frames {
			o := dst[f*m.out : (f+1)*m.out]
			clear(o)
			for i, v := range tmp[f*m.in : (f+1)*m.in] {
				o[i%m.out] += v
			}
			for c := range o {
				o[c] *= m.gain[c]
			}
		}
	default:
		for f := range frames {
			s := tmp[f*m.in : (f+1)*m.in]
			for c := range m.out {
				dst[f*m.out+c] = s[c%m.in]
			}
		}
	}

	return frames * m.out, err
}
