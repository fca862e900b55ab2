// SPDX-License-Identifier: EPL-2.0

// Package stream negotiates an audio session on a driver and runs the
// per-period callback protocol.
//
// # Opening
//
//	info, _ := device.Probe(drv, false)
//	s, err := stream.Open(drv, info, stream.Options{
//		OutputChannels: 2,
//		SampleRate:     48000,
//		Format:         format.Float32,
//	}, render)
//
// Open resolves the sample rate (the requested one when the device supports
// it, the device preference otherwise), fits the period size into the
// driver's range, and decides per direction whether the conversion engine
// is needed. The user buffers are always in the requested format and layout.
//
// # Callback protocol
//
// Each period the driver calls into the stream. The stream converts device
// input, calls the user callback, converts its output back, and advances the
// stream clock. The callback returns Continue, Complete or Abort.
//
// Complete plays the current period and then drains: the output is silenced
// until the drain counter passes DrainThreshold, after which the driver is
// stopped on a separate goroutine. Abort silences the current period and
// stops right away.
//
// # States
//
//	Stopped --Start--> Running --Stop--> Stopped
//	Running --callback Complete/Abort, Stop inside callback--> Stopping --> Stopped
//	any --Close or driver fault--> Closed
//
// The callback path takes no locks and does not allocate. Stop requests
// raised on it are handed to a single-slot stopper goroutine, which calls
// the driver's Stop outside the real-time goroutine.
//
// # Events and metrics
//
// When Options.Events is set, every state change made on a control
// goroutine is published as a StateChangedEvent. Counters are kept in Stats
// and exported to Prometheus labelled with the stream ID.
package stream
