// SPDX-License-Identifier: EPL-2.0

package convert

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ik5/audstream/format"
)

// sampleFunc converts the single sample at the start of src into dst.
type sampleFunc func(dst, src []byte)

var table [format.Count][format.Count]sampleFunc

func init() {
	for _, in := range format.Formats() {
		for _, out := range format.Formats() {
			table[in.Index()][out.Index()] = pair(in, out)
		}
	}
}

// Supported reports whether the engine has a conversion from in to out.
func Supported(in, out format.SampleFormat) bool {
	return lookup(in, out) != nil
}

func lookup(in, out format.SampleFormat) sampleFunc {
	if !in.Valid() || !out.Valid() {
		return nil
	}
	return table[in.Index()][out.Index()]
}

// Convert moves frames frames of info.Channels channels from in to out,
// converting each sample from info.InFormat to info.OutFormat. It never
// allocates and never panics on short buffers.
func Convert(out, in []byte, frames int, info *Info) error {
	fn := lookup(info.InFormat, info.OutFormat)
	if fn == nil {
		return fmt.Errorf("%w: %s to %s", ErrUnsupportedConversion, info.InFormat, info.OutFormat)
	}
	if frames <= 0 || info.Channels <= 0 {
		return nil
	}
	if len(info.InOffsets) < info.Channels || len(info.OutOffsets) < info.Channels {
		return fmt.Errorf("%w: offsets shorter than %d channels", ErrShortBuffer, info.Channels)
	}

	inW, outW := info.InFormat.Width(), info.OutFormat.Width()
	need, ok := span(frames, info.InStride, info.InOffsets[:info.Channels])
	if !ok || need*inW > len(in) {
		return fmt.Errorf("%w: input needs %d samples, has %d bytes", ErrShortBuffer, need, len(in))
	}
	need, ok = span(frames, info.OutStride, info.OutOffsets[:info.Channels])
	if !ok || need*outW > len(out) {
		return fmt.Errorf("%w: output needs %d samples, has %d bytes", ErrShortBuffer, need, len(out))
	}

	for ch := 0; ch < info.Channels; ch++ {
		ii, oi := info.InOffsets[ch], info.OutOffsets[ch]
		for range frames {
			fn(out[oi*outW:], in[ii*inW:])
			ii += info.InStride
			oi += info.OutStride
		}
	}

	return nil
}

// span is the number of samples a walk touches, counting from index zero.
func span(frames, stride int, offsets []int) (int, bool) {
	if stride < 0 {
		return 0, false
	}
	last := 0
	for _, off := range offsets {
		if off < 0 {
			return 0, false
		}
		last = max(last, off)
	}
	return (frames-1)*stride + last + 1, true
}

// Copy is the degenerate path when neither format nor layout changes.
func Copy(out, in []byte) int {
	return copy(out, in)
}

func pair(in, out format.SampleFormat) sampleFunc {
	switch {
	case in == out:
		w := in.Width()
		return func(dst, src []byte) {
			copy(dst[:w], src[:w])
		}

	case !in.IsFloat() && !out.IsFloat():
		read, write := intReader(in), intWriter(out)
		shift := out.Bits() - in.Bits()
		if shift > 0 {
			return func(dst, src []byte) {
				write(dst, read(src)<<shift)
			}
		}
		shift = -shift
		return func(dst, src []byte) {
			write(dst, read(src)>>shift)
		}

	case !in.IsFloat():
		read, write := intReader(in), floatWriter(out)
		scale := 1 / (float64(in.MaxInt()) + 0.5)
		return func(dst, src []byte) {
			write(dst, (float64(read(src))+0.5)*scale)
		}

	case !out.IsFloat():
		read, write := floatReader(in), intWriter(out)
		half := float64(out.MaxInt()) + 0.5
		lo, hi := out.MinInt(), out.MaxInt()
		return func(dst, src []byte) {
			write(dst, quantize(read(src), half, lo, hi))
		}

	default:
		read, write := floatReader(in), floatWriter(out)
		return func(dst, src []byte) {
			write(dst, read(src))
		}
	}
}

// quantize maps a float sample onto [lo, hi]. The half-step offset and the
// floor combine into round-half-up of x*half-0.5.
func quantize(x, half float64, lo, hi int64) int64 {
	if math.IsNaN(x) {
		return 0
	}
	v := math.Floor(x * half)
	if v >= float64(hi) {
		return hi
	}
	if v <= float64(lo) {
		return lo
	}
	return int64(v)
}

func intReader(f format.SampleFormat) func([]byte) int64 {
	switch f {
	case format.Int16:
		return func(b []byte) int64 {
			return int64(int16(binary.NativeEndian.Uint16(b)))
		}
	case format.Int24:
		return func(b []byte) int64 {
			return int64(int32(binary.NativeEndian.Uint32(b)<<8) >> 8)
		}
	case format.Int32:
		return func(b []byte) int64 {
			return int64(int32(binary.NativeEndian.Uint32(b)))
		}
	}
	return nil
}

func intWriter(f format.SampleFormat) func([]byte, int64) {
	switch f {
	case format.Int16:
		return func(b []byte, v int64) {
			binary.NativeEndian.PutUint16(b, uint16(v))
		}
	case format.Int24:
		return func(b []byte, v int64) {
			binary.NativeEndian.PutUint32(b, uint32(v)&0xFFFFFF)
		}
	case format.Int32:
		return func(b []byte, v int64) {
			binary.NativeEndian.PutUint32(b, uint32(v))
		}
	}
	return nil
}

func floatReader(f format.SampleFormat) func([]byte) float64 {
	if f == format.Float32 {
		return func(b []byte) float64 {
			return float64(math.Float32frombits(binary.NativeEndian.Uint32(b)))
		}
	}
	return func(b []byte) float64 {
		return math.Float64frombits(binary.NativeEndian.Uint64(b))
	}
}

func floatWriter(f format.SampleFormat) func([]byte, float64) {
	if f == format.Float32 {
		return func(b []byte, v float64) {
			binary.NativeEndian.PutUint32(b, math.Float32bits(float32(v)))
		}
	}
	return func(b []byte, v float64) {
		binary.NativeEndian.PutUint64(b, math.Float64bits(v))
	}
}
