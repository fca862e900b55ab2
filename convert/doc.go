// SPDX-License-Identifier: EPL-2.0

// Package convert moves sample data between a user-facing layout and a
// device-facing layout, changing the sample format and the channel
// interleaving in a single pass.
//
// # Conversion parameters
//
// An Info is computed once per direction when a stream is opened:
//
//	info := convert.NewInfo(convert.Play,
//	    convert.Layout{Format: format.Float32, Channels: 2, Interleaved: true},
//	    convert.Layout{Format: format.Int24, Channels: 8, Interleaved: false},
//	    frames, 2)
//
// and reused for every period:
//
//	err := convert.Convert(deviceBuf, userBuf, frames, &info)
//
// Interleaved sides are walked with a stride equal to their channel count and
// start at channel k. Planar sides are walked with stride 1 and start at
// k*frames. The device side is shifted by the first channel.
//
// # Numeric rules
//
//   - Integer narrowing keeps the high-order bits (arithmetic shift right).
//   - Integer widening shifts left and zero-fills.
//   - Integer to float: (v + 0.5) / (max + 0.5).
//   - Float to integer: floor(x * (max + 0.5)), clamped, NaN becomes 0.
//   - Float to float is a plain numeric conversion.
//   - Same format copies the sample unchanged, so layout changes are lossless.
//
// Every pair of the five formats is resolved through a dispatch table built
// at package initialization. Convert does not allocate.
package convert
