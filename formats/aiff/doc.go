// SPDX-License-Identifier: EPL-2.0

// Package aiff provides AIFF (Audio Interchange File Format) decoding.
//
// This package uses github.com/go-audio/aiff to parse the container. Any
// uncompressed 8, 16, 24 or 32 bit file decodes, at any channel count and
// sample rate:
//
//	src, err := aiff.Decoder{}.Decode(f)
//	if err != nil {
//	    return err
//	}
//	defer src.Close()
//
// Samples use the same integer scaling as the other decoders. Unlike WAV,
// 8-bit AIFF data is signed.
//
// # Errors
//
//   - ErrNotAiffFile: the input is not a FORM/AIFF container
//   - ErrUnsupportedBitDepth: sample size outside 8, 16, 24 and 32 bits
//   - ErrUnsupportedAiffLayout: missing or empty COMM information
package aiff
