// SPDX-License-Identifier: EPL-2.0

package convert

import (
	"fmt"

	"github.com/ik5/audstream/format"
)

// Direction says which way samples flow through a stream.
type Direction uint8

const (
	// Record moves samples from the device to the user buffer.
	Record Direction = iota
	// Play moves samples from the user buffer to the device.
	Play
)

func (d Direction) String() string {
	switch d {
	case Record:
		return "record"
	case Play:
		return "play"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
}

// Layout describes one side of a conversion.
type Layout struct {
	Format      format.SampleFormat
	Channels    int
	Interleaved bool
}

// Info holds everything Convert needs to move one period in one direction.
// Offsets and strides are expressed in samples, not bytes.
type Info struct {
	Direction  Direction
	Channels   int
	InStride   int
	OutStride  int
	InFormat   format.SampleFormat
	OutFormat  format.SampleFormat
	InOffsets  []int
	OutOffsets []int
}

// NewInfo builds the conversion parameters for dir between the user side and
// the device side of a stream. device.Channels is the full channel count of
// the device buffer. first shifts the device side by that many channels.
func NewInfo(dir Direction, user, device Layout, frames, first int) Info {
	in, out := device, user
	inFirst, outFirst := first, 0
	if dir == Play {
		in, out = user, device
		inFirst, outFirst = 0, first
	}

	info := Info{
		Direction: dir,
		Channels:  min(in.Channels, out.Channels),
		InFormat:  in.Format,
		OutFormat: out.Format,
	}
	if info.Channels < 0 {
		info.Channels = 0
	}

	info.InStride, info.InOffsets = walk(in, frames, inFirst, info.Channels)
	info.OutStride, info.OutOffsets = walk(out, frames, outFirst, info.Channels)

	return info
}

// walk returns the stride and per-channel start offsets for one side.
func walk(l Layout, frames, first, channels int) (int, []int) {
	offsets := make([]int, channels)

	if l.Interleaved {
		for k := range offsets {
			offsets[k] = k + first
		}
		return l.Channels, offsets
	}

	for k := range offsets {
		offsets[k] = (k + first) * frames
	}
	return 1, offsets
}

// Needed reports whether moving samples between user and device requires the
// conversion engine instead of a raw copy.
func Needed(user, device Layout) bool {
	return user.Format != device.Format ||
		user.Interleaved != device.Interleaved ||
		user.Channels != device.Channels
}
