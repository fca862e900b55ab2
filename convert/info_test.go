// SPDX-License-Identifier: EPL-2.0

package convert

import (
	"testing"

	"github.com/ik5/audstream/format"
)

func TestNewInfo_OffsetInvariant(t *testing.T) {
	t.Parallel()

	for _, dir := range []Direction{Record, Play} {
		for userCh := 0; userCh <= 4; userCh++ {
			for devCh := 0; devCh <= 6; devCh++ {
				for _, ui := range []bool{true, false} {
					for _, di := range []bool{true, false} {
						user := Layout{Format: format.Float32, Channels: userCh, Interleaved: ui}
						device := Layout{Format: format.Int16, Channels: devCh, Interleaved: di}
						info := NewInfo(dir, user, device, 32, 0)

						if info.Channels != min(userCh, devCh) {
							t.Fatalf("%v user=%d dev=%d: Channels = %d", dir, userCh, devCh, info.Channels)
						}
						if len(info.InOffsets) != info.Channels || len(info.OutOffsets) != info.Channels {
							t.Fatalf("%v user=%d dev=%d: offsets %d/%d, channels %d",
								dir, userCh, devCh, len(info.InOffsets), len(info.OutOffsets), info.Channels)
						}
					}
				}
			}
		}
	}
}

func TestNewInfo_Sides(t *testing.T) {
	t.Parallel()

	user := Layout{Format: format.Float32, Channels: 2, Interleaved: true}
	device := Layout{Format: format.Int24, Channels: 4, Interleaved: false}

	tests := []struct {
		name       string
		dir        Direction
		inFormat   format.SampleFormat
		outFormat  format.SampleFormat
		inStride   int
		outStride  int
		inOffsets  []int
		outOffsets []int
	}{
		{
			name:       "record reads the device",
			dir:        Record,
			inFormat:   format.Int24,
			outFormat:  format.Float32,
			inStride:   1,
			outStride:  2,
			inOffsets:  []int{16, 24},
			outOffsets: []int{0, 1},
		},
		{
			name:       "play writes the device",
			dir:        Play,
			inFormat:   format.Float32,
			outFormat:  format.Int24,
			inStride:   2,
			outStride:  1,
			inOffsets:  []int{0, 1},
			outOffsets: []int{16, 24},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			info := NewInfo(tt.dir, user, device, 8, 2)

			if info.InFormat != tt.inFormat || info.OutFormat != tt.outFormat {
				t.Errorf("formats = %s -> %s, want %s -> %s", info.InFormat, info.OutFormat, tt.inFormat, tt.outFormat)
			}
			if info.InStride != tt.inStride || info.OutStride != tt.outStride {
				t.Errorf("strides = %d/%d, want %d/%d", info.InStride, info.OutStride, tt.inStride, tt.outStride)
			}
			for k := range tt.inOffsets {
				if info.InOffsets[k] != tt.inOffsets[k] || info.OutOffsets[k] != tt.outOffsets[k] {
					t.Fatalf("offsets = %v/%v, want %v/%v", info.InOffsets, info.OutOffsets, tt.inOffsets, tt.outOffsets)
				}
			}
		})
	}
}

func TestNeeded(t *testing.T) {
	t.Parallel()

	base := Layout{Format: format.Float32, Channels: 2, Interleaved: true}

	tests := []struct {
		name   string
		device Layout
		want   bool
	}{
		{"identical", base, false},
		{"format", Layout{Format: format.Int16, Channels: 2, Interleaved: true}, true},
		{"interleave", Layout{Format: format.Float32, Channels: 2, Interleaved: false}, true},
		{"channel offset", Layout{Format: format.Float32, Channels: 3, Interleaved: true}, true},
	}

	for _, tt := range tests {
		if got := Needed(base, tt.device); got != tt.want {
			t.Errorf("%s: Needed() = %v, want %v", tt.name, got, tt.want)
		}
	}
}
