// SPDX-License-Identifier: EPL-2.0

// Package audstream is a real-time audio stream engine.
//
// A driver (package driver) owns two device buffer slots and calls back once
// per period. A stream (package stream) sits on top of it: it negotiates the
// sample rate and period with the device (package device), converts between
// the caller's sample layout and the device's (package convert), and runs
// the caller's callback through the Stopped, Running, Stopping and Closed
// states.
//
// This package ties the pieces together for the common case of playing a
// decoded file.
//
// # Playing a file
//
//	f, _ := os.Open("song.mp3")
//	src, _ := audstream.DefaultRegistry().Open(f.Name(), f)
//	defer src.Close()
//
//	drv := otodrv.New(otodrv.DefaultConfig())
//	rep, err := audstream.Play(ctx, drv, src, audstream.PlayOptions{})
//
// Play resamples and remixes the source to whatever the device negotiated
// and feeds it to the stream through an audio.Feeder, so decoding never runs
// on the real-time goroutine.
//
// # Rendering offline
//
// Render runs the same adaptation without a device and returns encoded
// samples:
//
//	pcm, err := audstream.Render(src, 16000, 1, format.Int16)
//
// # Drivers
//
//   - driver/loopback: software device with a ticker clock or manual steps,
//     loops output back to input and can capture to any io.Writer
//   - driver/otodrv: system playback through oto
//
// # Formats
//
// formats/wav, formats/mp3, formats/vorbis and formats/aiff decode files into
// audio.Source values. formats/wav also writes WAV files.
package audstream
