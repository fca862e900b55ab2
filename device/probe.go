// SPDX-License-Identifier: EPL-2.0

package device

import (
	"fmt"

	"github.com/ik5/audstream/driver"
	"github.com/ik5/audstream/internal/logging"
)

// StandardRates are the sample rates Probe asks a driver about.
var StandardRates = []uint{
	4000, 5512, 8000, 9600, 11025, 16000, 22050,
	32000, 44100, 48000, 88200, 96000, 176400, 192000,
}

// highestPreferred caps the rate Probe picks when the current one is unusable.
const highestPreferred = 48000

// Probe initializes drv and reads its capabilities into an Info.
// A device without any usable sample rate yields an Info with Valid unset
// and an ErrNoSampleRates error.
func Probe(drv driver.Driver, verbose bool) (Info, error) {
	logger := logging.GetLogger("device").With("driver", drv.Name())

	if err := drv.Initialize(verbose); err != nil {
		return Info{Name: drv.Name()}, fmt.Errorf("initialize %s: %w", drv.Name(), err)
	}

	in, out, err := drv.ChannelCounts()
	if err != nil {
		return Info{Name: drv.Name()}, fmt.Errorf("channel counts: %w", err)
	}

	native, err := drv.SampleType()
	if err != nil {
		return Info{Name: drv.Name()}, fmt.Errorf("sample type: %w", err)
	}

	sizes, err := drv.BufferSizeRange()
	if err != nil {
		return Info{Name: drv.Name()}, fmt.Errorf("buffer size range: %w", err)
	}

	var rates []uint
	for _, rate := range StandardRates {
		if drv.CanSampleRate(rate) {
			rates = append(rates, rate)
		}
	}

	info := NewInfo(drv.Name(), in, out, rates, native)
	info.BufferSizes = sizes

	if len(info.SampleRates) == 0 {
		logger.Warn("device reports no usable sample rate")
		return info, fmt.Errorf("%w: %s", ErrNoSampleRates, drv.Name())
	}

	current, err := drv.SampleRate()
	if err != nil {
		logger.Debug("current sample rate unavailable", "error", err)
	}
	info.PreferredSampleRate = preferredRate(info.SampleRates, current)
	info.Valid = true

	logger.Debug("device probed",
		"inputs", in,
		"outputs", out,
		"format", native.Format,
		"little_endian", native.LittleEndian,
		"rates", info.SampleRates,
		"preferred", info.PreferredSampleRate)

	return info, nil
}

// preferredRate picks current when supported, else the highest supported
// rate not above 48 kHz, else the lowest supported rate.
func preferredRate(rates []uint, current uint) uint {
	best := uint(0)
	for _, r := range rates {
		if r == current {
			return r
		}
		if r <= highestPreferred {
			best = r
		}
	}
	if best == 0 {
		return rates[0]
	}
	return best
}
