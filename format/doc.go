// SPDX-License-Identifier: EPL-2.0

// Package format enumerates the sample encodings understood by the stream
// engine and provides the raw byte-order primitives used around them.
//
// # Encodings
//
// Five encodings are supported, each with a fixed width and range:
//   - Int16: 2 bytes, [-32768, 32767]
//   - Int24: 4 bytes, the value lives in the lower 3 bytes, [-8388608, 8388607]
//   - Int32: 4 bytes, [-2147483648, 2147483647]
//   - Float32: 4 bytes, nominally [-1.0, 1.0]
//   - Float64: 8 bytes, nominally [-1.0, 1.0]
//
// Buffers hold samples in host byte order. When a device reports the opposite
// byte order, SwapBytes converts a whole buffer in place:
//
//	if devLittleEndian != format.NativeLittleEndian {
//	    format.SwapBytes(buf, format.Int32)
//	}
package format
