// SPDX-License-Identifier: EPL-2.0

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ik5/audstream"
	"github.com/ik5/audstream/driver"
	"github.com/ik5/audstream/driver/loopback"
	"github.com/ik5/audstream/driver/otodrv"
	"github.com/ik5/audstream/format"
	"github.com/ik5/audstream/formats/wav"
)

var errCaptureUnsupported = errors.New("capture needs the loopback driver with interleaved host-order buffers")

// newDriver builds the configured driver. When capture names a file, the
// loopback output is recorded to it as WAV; the returned func finishes the
// file and must be called after the stream is closed.
func (a *app) newDriver(capture string) (driver.Driver, func() error, error) {
	nop := func() error { return nil }

	rates := make([]uint, 0, len(a.opts.DriverSampleRates))
	for _, r := range a.opts.DriverSampleRates {
		rates = append(rates, uint(r))
	}

	switch a.opts.DriverName {
	case "loopback", "":
		f, err := format.Parse(a.opts.DriverFormat)
		if err != nil {
			return nil, nil, fmt.Errorf("driver format: %w", err)
		}

		cfg := loopback.DefaultConfig()
		cfg.Inputs = a.opts.DriverInputChannels
		cfg.Outputs = a.opts.DriverOutputChannels
		if len(rates) > 0 {
			cfg.Rates = rates
		}
		cfg.Rate = uint(a.opts.DriverSampleRate)
		cfg.Format = f
		cfg.BigEndian = a.opts.DriverBigEndian
		cfg.NonInterleaved = a.opts.DriverNonInterleaved
		if a.opts.DriverPeriod > 0 {
			cfg.Sizes.Preferred = a.opts.DriverPeriod
		}

		if capture == "" {
			return loopback.New(cfg), nop, nil
		}
		if cfg.NonInterleaved || (cfg.BigEndian && format.NativeLittleEndian) {
			return nil, nil, errCaptureUnsupported
		}
		file, err := os.Create(capture)
		if err != nil {
			return nil, nil, fmt.Errorf("capture: %w", err)
		}
		sink := &captureFile{file: file, format: f}
		cfg.Capture = sink
		sink.drv = loopback.New(cfg)
		return sink.drv, sink.Close, nil

	case "oto":
		if capture != "" {
			return nil, nil, errCaptureUnsupported
		}
		cfg := otodrv.DefaultConfig()
		cfg.Channels = min(max(a.opts.DriverOutputChannels, 1), 2)
		if len(rates) > 0 {
			cfg.Rates = rates
		}
		cfg.Rate = uint(a.opts.DriverSampleRate)
		if a.opts.DriverPeriod > 0 {
			cfg.Sizes.Preferred = a.opts.DriverPeriod
		}
		return otodrv.New(cfg), nop, nil
	}
	return nil, nil, fmt.Errorf("unknown driver %q, want loopback or oto", a.opts.DriverName)
}

// playOptions maps the stream settings onto audstream.PlayOptions.
func (a *app) playOptions() (audstream.PlayOptions, error) {
	f, err := format.Parse(a.opts.StreamFormat)
	if err != nil {
		return audstream.PlayOptions{}, fmt.Errorf("stream format: %w", err)
	}
	return audstream.PlayOptions{
		SampleRate:   uint(a.opts.StreamSampleRate),
		Channels:     a.opts.StreamOutputChannels,
		FirstChannel: a.opts.StreamFirstOutputChannel,
		BufferFrames: a.opts.StreamBufferFrames,
		Format:       f,
		StopTimeout:  a.opts.StreamStopTimeout,
		Logger:       a.logger,
	}, nil
}

// captureFile starts a WAV file on the first captured period, once the
// driver knows the negotiated rate and channel count.
type captureFile struct {
	file   *os.File
	drv    *loopback.Driver
	format format.SampleFormat
	w      *wav.Writer
}

func (c *captureFile) open() error {
	rate, channels := c.drv.Layout()
	if channels == 0 {
		channels = 1
	}
	w, err := wav.NewWriter(c.file, int(rate), channels, c.format)
	if err != nil {
		return err
	}
	c.w = w
	return nil
}

func (c *captureFile) Write(p []byte) (int, error) {
	if c.w == nil {
		if err := c.open(); err != nil {
			return 0, err
		}
	}
	return c.w.Write(p)
}

func (c *captureFile) Close() error {
	var err error
	if c.w == nil {
		err = c.open()
	}
	if c.w != nil {
		err = errors.Join(err, c.w.Close())
	}
	return errors.Join(err, c.file.Close())
}
