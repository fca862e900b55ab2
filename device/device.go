// SPDX-License-Identifier: EPL-2.0

package device

import (
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/ik5/audstream/driver"
	"github.com/ik5/audstream/format"
)

// Mode selects which side of a device a query refers to.
type Mode uint8

const (
	Input Mode = iota
	Output
	Duplex
)

func (m Mode) String() string {
	switch m {
	case Input:
		return "input"
	case Output:
		return "output"
	case Duplex:
		return "duplex"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// namespace scopes device IDs derived from names.
var namespace = uuid.MustParse("5f8d1c4e-2b0a-4c1e-9a57-6f3b2d7e8c90")

// Info is a read-only snapshot of what a device can do.
type Info struct {
	Name  string
	ID    uuid.UUID
	Index int

	InputChannels  int
	OutputChannels int
	DuplexChannels int

	// SampleRates is sorted ascending and holds no duplicates.
	SampleRates         []uint
	PreferredSampleRate uint

	NativeFormat format.SampleFormat
	LittleEndian bool
	Interleaved  bool
	BufferSizes  driver.BufferSizes

	Valid bool
}

// NewInfo builds an Info with the derived fields filled in: ID from the
// name, DuplexChannels from the channel counts, and a sorted rate set.
func NewInfo(name string, in, out int, rates []uint, native driver.SampleType) Info {
	set := slices.Clone(rates)
	slices.Sort(set)
	set = slices.Compact(set)

	return Info{
		Name:           name,
		ID:             IDFor(name),
		InputChannels:  in,
		OutputChannels: out,
		DuplexChannels: duplexChannels(in, out),
		SampleRates:    set,
		NativeFormat:   native.Format,
		LittleEndian:   native.LittleEndian,
		Interleaved:    native.Interleaved,
	}
}

// IDFor returns the stable ID of the device called name.
func IDFor(name string) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte(name))
}

func duplexChannels(in, out int) int {
	if in == 0 || out == 0 {
		return 0
	}
	return min(in, out)
}

// IsCompatibleSampleRate reports whether rate is one of the supported rates.
func (i *Info) IsCompatibleSampleRate(rate uint) bool {
	_, found := slices.BinarySearch(i.SampleRates, rate)
	return found
}

// IsCompatibleFormat reports whether f is the device's native format. Any
// other format needs the conversion engine.
func (i *Info) IsCompatibleFormat(f format.SampleFormat) bool {
	return f == i.NativeFormat
}

// IsCompatibleChannelRange reports whether count channels starting at start
// fit on the mode side of the device.
func (i *Info) IsCompatibleChannelRange(mode Mode, count, start int) bool {
	if count < 0 || start < 0 {
		return false
	}
	return start+count <= i.AvailableChannels(mode)
}

// AvailableChannels returns the channel count of the mode side.
func (i *Info) AvailableChannels(mode Mode) int {
	switch mode {
	case Input:
		return i.InputChannels
	case Output:
		return i.OutputChannels
	case Duplex:
		return i.DuplexChannels
	default:
		return 0
	}
}

func (i *Info) String() string {
	return fmt.Sprintf("%s (in %d, out %d, %s, rates %v, preferred %d)",
		i.Name, i.InputChannels, i.OutputChannels, i.NativeFormat, i.SampleRates, i.PreferredSampleRate)
}
