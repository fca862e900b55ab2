// SPDX-License-Identifier: EPL-2.0

package format

// Swap16 reverses the byte order of every 2-byte word in buf, in place.
func Swap16(buf []byte) {
	for i := 0; i+1 < len(buf); i += 2 {
		buf[i], buf[i+1] = buf[i+1], buf[i]
	}
}

// Swap32 reverses the byte order of every 4-byte word in buf, in place.
func Swap32(buf []byte) {
	for i := 0; i+3 < len(buf); i += 4 {
		buf[i], buf[i+3] = buf[i+3], buf[i]
		buf[i+1], buf[i+2] = buf[i+2], buf[i+1]
	}
}

// Swap64 reverses the byte order of every 8-byte word in buf, in place.
func Swap64(buf []byte) {
	for i := 0; i+7 < len(buf); i += 8 {
		buf[i], buf[i+7] = buf[i+7], buf[i]
		buf[i+1], buf[i+6] = buf[i+6], buf[i+1]
		buf[i+2], buf[i+5] = buf[i+5], buf[i+2]
		buf[i+3], buf[i+4] = buf[i+4], buf[i+3]
	}
}

// SwapBytes reverses the byte order of every sample of format f in buf.
// Int24 is swapped as the full 4-byte container.
func SwapBytes(buf []byte, f SampleFormat) {
	switch f.Width() {
	case 2:
		Swap16(buf)
	case 4:
		Swap32(buf)
	case 8:
		Swap64(buf)
	}
}
