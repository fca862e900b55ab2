// SPDX-License-Identifier: EPL-2.0

package format

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// SampleFormat identifies how a single sample is encoded in a byte buffer.
type SampleFormat uint8

const (
	// Int16 is a signed 16-bit integer.
	Int16 SampleFormat = iota + 1
	// Int24 is a signed 24-bit integer packed in the lower 3 bytes of a 4-byte word.
	Int24
	// Int32 is a signed 32-bit integer.
	Int32
	// Float32 is an IEEE-754 single in [-1.0, 1.0].
	Float32
	// Float64 is an IEEE-754 double in [-1.0, 1.0].
	Float64
)

// Count is the number of supported sample formats.
const Count = 5

// NativeLittleEndian reports whether the host stores integers little-endian.
var NativeLittleEndian = nativeLittleEndian()

func nativeLittleEndian() bool {
	var b [2]byte
	binary.NativeEndian.PutUint16(b[:], 1)
	return b[0] == 1
}

// Formats returns every supported format, in declaration order.
func Formats() [Count]SampleFormat {
	return [Count]SampleFormat{Int16, Int24, Int32, Float32, Float64}
}

// Valid reports whether f is one of the supported formats.
func (f SampleFormat) Valid() bool {
	return f >= Int16 && f <= Float64
}

// Index returns a zero based position usable for table lookups.
func (f SampleFormat) Index() int {
	return int(f) - 1
}

// Width is the number of bytes one sample occupies in a buffer.
func (f SampleFormat) Width() int {
	switch f {
	case Int16:
		return 2
	case Int24, Int32, Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

// Bits is the number of significant bits of the encoding.
func (f SampleFormat) Bits() int {
	switch f {
	case Int16:
		return 16
	case Int24:
		return 24
	case Int32, Float32:
		return 32
	case Float64:
		return 64
	default:
		return 0
	}
}

// IsFloat reports whether f is a floating point encoding.
func (f SampleFormat) IsFloat() bool {
	return f == Float32 || f == Float64
}

// MaxInt is the largest value an integer format can hold. Zero for floats.
func (f SampleFormat) MaxInt() int64 {
	if f.IsFloat() || !f.Valid() {
		return 0
	}
	return 1<<(f.Bits()-1) - 1
}

// MinInt is the smallest value an integer format can hold. Zero for floats.
func (f SampleFormat) MinInt() int64 {
	if f.IsFloat() || !f.Valid() {
		return 0
	}
	return -(1 << (f.Bits() - 1))
}

// BufferSize returns the byte length of frames*channels samples of f.
func (f SampleFormat) BufferSize(frames, channels int) int {
	return frames * channels * f.Width()
}

func (f SampleFormat) String() string {
	switch f {
	case Int16:
		return "int16"
	case Int24:
		return "int24"
	case Int32:
		return "int32"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("SampleFormat(%d)", uint8(f))
	}
}

// Parse accepts the String form as well as the short s16/s24/s32/f32/f64 names.
func Parse(s string) (SampleFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int16", "s16":
		return Int16, nil
	case "int24", "s24":
		return Int24, nil
	case "int32", "s32":
		return Int32, nil
	case "float32", "f32":
		return Float32, nil
	case "float64", "f64":
		return Float64, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}
