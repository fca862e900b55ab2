// SPDX-License-Identifier: EPL-2.0

// Package loopback is a software audio device for tests, demos and capture.
//
// The driver keeps two buffer slots like a double-buffered sound card. Every
// period it copies the output written during the previous period into the
// input of the current one, so a duplex stream hears itself one period late.
// Channels the two sides do not share are silent.
//
// # Clock
//
// By default a ticker paced at frames/rate delivers periods on its own
// goroutine. When ticks are dropped the handler is told about an xrun.
// With Config.Manual set no goroutine runs and the caller drives periods
// with Step, which makes tests deterministic.
//
// # Capture
//
// Config.Capture receives each output period in the device's native sample
// type. A wav.Writer with the same format and channel count records a stream
// to disk:
//
//	w, _ := wav.NewWriter(f, 48000, 2, format.Float32)
//	cfg := loopback.DefaultConfig()
//	cfg.Capture = w
//	drv := loopback.New(cfg)
//
// Unplug simulates a removed device and exercises a stream's fault path.
package loopback
