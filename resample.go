// SPDX-License-Identifier: EPL-2.0

package audstream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/ik5/audstream/audio"
	"github.com/ik5/audstream/convert"
	"github.com/ik5/audstream/format"
)

// renderBlock is how many frames Render pulls from the pipeline at a time.
const renderBlock = 4096

// Adapt returns src resampled to rate and mixed to channels. Folding down
// happens before resampling and spreading up after it, so the resampler
// always runs on the smaller channel count.
func Adapt(src audio.Source, rate, channels int) (audio.Source, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("%w: %d", audio.ErrSampleRate, rate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("%w: %d", audio.ErrChannels, channels)
	}

	resample := func(s audio.Source) audio.Source {
		if s.SampleRate() == rate {
			return s
		}
		return audio.NewResampler(s, rate)
	}

	if channels < src.Channels() {
		mixed, err := audio.Remix(src, channels)
		if err != nil {
			return nil, err
		}
		return resample(mixed), nil
	}
	return audio.Remix(resample(src), channels)
}

// Render reads src to the end through Adapt and returns the frames as
// interleaved host-order samples in format f.
//
// Example:
//
//	src, _ := wav.Decoder{}.Decode(file)
//	pcm, err := audstream.Render(src, 16000, 1, format.Int16)
func Render(src audio.Source, rate, channels int, f format.SampleFormat) ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("render: %w", format.ErrUnknownFormat)
	}
	pipe, err := Adapt(src, rate, channels)
	if err != nil {
		return nil, err
	}

	samples := make([]float32, renderBlock*channels)
	raw := make([]byte, format.Float32.BufferSize(renderBlock, channels))
	var (
		enc  []byte
		info convert.Info
	)
	if f != format.Float32 {
		enc = make([]byte, f.BufferSize(renderBlock, channels))
		info = convert.NewInfo(convert.Play,
			convert.Layout{Format: format.Float32, Channels: channels, Interleaved: true},
			convert.Layout{Format: f, Channels: channels, Interleaved: true},
			renderBlock, 0)
	}

	out := make([]byte, 0, f.BufferSize(rate, channels))
	for {
		n, err := pipe.ReadSamples(samples)
		if frames := n / channels; frames > 0 {
			block := raw[:format.Float32.BufferSize(frames, channels)]
			for i, v := range samples[:frames*channels] {
				binary.NativeEndian.PutUint32(block[i*4:], math.Float32bits(v))
			}
			if enc != nil {
				dst := enc[:f.BufferSize(frames, channels)]
				if cerr := convert.Convert(dst, block, frames, &info); cerr != nil {
					return nil, fmt.Errorf("render %s: %w", f, cerr)
				}
				block = dst
			}
			out = append(out, block...)
		}

		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("render: %w", err)
		}
	}
}

// ResampleToMono16 renders src as mono 16-bit samples at rate.
func ResampleToMono16(src audio.Source, rate int) ([]int16, error) {
	raw, err := Render(src, rate, 1, format.Int16)
	if err != nil {
		return nil, err
	}

	pcm := make([]int16, len(raw)/2)
	for i := range pcm {
		pcm[i] = int16(binary.NativeEndian.Uint16(raw[i*2:]))
	}
	return pcm, nil
}
