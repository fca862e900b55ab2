// SPDX-License-Identifier: EPL-2.0

// Package otodrv plays streams on the system's audio output through
// github.com/ebitengine/oto/v3.
//
// oto pulls interleaved little-endian float32 samples from an io.Reader on
// its own goroutine. The driver hands oto a reader over its two output
// slots and runs BufferSwitch for the next slot whenever the current one has
// been read, so the stream callback runs on oto's goroutine. While the
// driver is stopped the reader returns silence.
//
// The driver has no inputs and at most two outputs. oto allows a single
// context per process, so every Driver in a process must agree on the
// sample rate and channel count of the first one that created buffers.
//
// On Linux oto needs cgo and the ALSA development headers.
package otodrv
