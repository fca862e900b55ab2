// SPDX-License-Identifier: EPL-2.0

// Package driver defines the contract between the stream engine and an audio
// backend.
//
// A backend owns the device buffers and the real-time goroutine. Once per
// period it calls Handler.BufferSwitch with the index of the buffer slot that
// is ready; the stream reads input from and writes output into the slices
// returned by Buffers for that slot before returning.
//
// # Lifecycle
//
//	Initialize -> (queries) -> CreateBuffers -> Start <-> Stop -> DisposeBuffers -> Shutdown
//
// Stop must not be called from inside BufferSwitch. The stream takes care of
// that by handing stop requests raised on the real-time goroutine to a
// separate goroutine.
//
// # Errors
//
// Backends report failures as *Error values carrying a Code. Every *Error
// matches ErrDriver with errors.Is.
package driver
