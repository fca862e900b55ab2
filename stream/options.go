// SPDX-License-Identifier: EPL-2.0

package stream

import (
	"fmt"
	"log/slog"

	"github.com/kelindar/event"

	"github.com/ik5/audstream/device"
	"github.com/ik5/audstream/driver"
	"github.com/ik5/audstream/format"
)

const (
	// DefaultBufferFrames is used when neither the caller nor the driver
	// names a period size.
	DefaultBufferFrames = 512

	// MaxBufferBytes caps the size of any single stream buffer.
	MaxBufferBytes = 64 << 20
)

// Options describe the stream a caller wants.
type Options struct {
	// Name labels logs and metrics. Defaults to the stream ID.
	Name string

	InputChannels      int
	OutputChannels     int
	FirstInputChannel  int
	FirstOutputChannel int

	// BufferFrames is the requested period; 0 uses the driver preference.
	BufferFrames int
	// SampleRate is the requested rate; 0 uses the device preference.
	SampleRate uint
	// Format of the user buffers. Defaults to Float32.
	Format format.SampleFormat
	// NonInterleaved makes the user buffers planar.
	NonInterleaved bool

	UserData any

	Logger *slog.Logger
	Events *event.Dispatcher
}

func (o *Options) validate(dev *device.Info) error {
	if !dev.Valid {
		return fmt.Errorf("%w: device %q was not probed successfully", ErrConfig, dev.Name)
	}
	if o.InputChannels < 0 || o.OutputChannels < 0 || o.FirstInputChannel < 0 || o.FirstOutputChannel < 0 {
		return fmt.Errorf("%w: negative channel parameter", ErrConfig)
	}
	if o.InputChannels == 0 && o.OutputChannels == 0 {
		return fmt.Errorf("%w: no input or output channels requested", ErrConfig)
	}
	if o.BufferFrames < 0 {
		return fmt.Errorf("%w: negative buffer size %d", ErrConfig, o.BufferFrames)
	}
	if !o.Format.Valid() {
		return fmt.Errorf("%w: %s", ErrConfig, o.Format)
	}
	if o.InputChannels > 0 && !dev.IsCompatibleChannelRange(device.Input, o.InputChannels, o.FirstInputChannel) {
		return fmt.Errorf("%w: %d input channels from %d exceed the %d available",
			ErrConfig, o.InputChannels, o.FirstInputChannel, dev.InputChannels)
	}
	if o.OutputChannels > 0 && !dev.IsCompatibleChannelRange(device.Output, o.OutputChannels, o.FirstOutputChannel) {
		return fmt.Errorf("%w: %d output channels from %d exceed the %d available",
			ErrConfig, o.OutputChannels, o.FirstOutputChannel, dev.OutputChannels)
	}
	return nil
}

// negotiateRate returns the requested rate when the device supports it and
// the device preference otherwise.
func negotiateRate(requested uint, dev *device.Info) uint {
	if requested != 0 && dev.IsCompatibleSampleRate(requested) {
		return requested
	}
	return dev.PreferredSampleRate
}

// negotiateFrames fits the requested period into what the driver accepts.
func negotiateFrames(requested int, sizes driver.BufferSizes) int {
	if sizes.Min <= 0 && sizes.Max <= 0 && sizes.Preferred <= 0 {
		if requested > 0 {
			return requested
		}
		return DefaultBufferFrames
	}

	n := requested
	if n == 0 {
		n = sizes.Preferred
	}
	if n <= 0 {
		n = DefaultBufferFrames
	}

	lo, hi := max(sizes.Min, 1), sizes.Max
	if hi < lo {
		hi = lo
	}
	n = min(max(n, lo), hi)

	switch {
	case lo == hi:
		return lo
	case sizes.Granularity == driver.GranularityPowerOfTwo:
		return nearestPowerOfTwo(n, lo, hi)
	case sizes.Granularity > 0:
		g := sizes.Granularity
		n = (n + g - 1) / g * g
		for n > hi && n-g >= lo {
			n -= g
		}
		return min(n, hi)
	default:
		return n
	}
}

// nearestPowerOfTwo picks the power of two in [lo, hi] closest to n,
// preferring the larger one on a tie. n is returned when none exists.
func nearestPowerOfTwo(n, lo, hi int) int {
	best := 0
	for p := 1; p > 0 && p <= hi; p <<= 1 {
		if p < lo {
			continue
		}
		if best == 0 || absInt(p-n) <= absInt(best-n) {
			best = p
		}
	}
	if best == 0 {
		return n
	}
	return best
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// allocate returns a zeroed buffer of size bytes or ErrAllocation.
func allocate(what string, size int) ([]byte, error) {
	if size < 0 || size > MaxBufferBytes {
		return nil, fmt.Errorf("%w: %s needs %d bytes, limit is %d", ErrAllocation, what, size, MaxBufferBytes)
	}
	return make([]byte, size), nil
}
