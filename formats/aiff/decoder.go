// SPDX-License-Identifier: EPL-2.0

package aiff

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-audio/aiff"

	"github.com/ik5/audstream/audio"
	"github.com/ik5/audstream/formats/internal/pcm"
)

// Decoder reads uncompressed AIFF files at 8, 16, 24 and 32 bits.
type Decoder struct{}

func (Decoder) Decode(r io.Reader) (audio.Source, error) {
	// go-audio needs to seek between chunks.
	rs, ok := r.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read aiff: %w", err)
		}
		rs = bytes.NewReader(data)
	}

	dec := aiff.NewDecoder(rs)
	if !dec.IsValidFile() {
		return nil, ErrNotAiffFile
	}
	dec.ReadInfo()

	f := dec.Format()
	if f == nil || f.NumChannels <= 0 || f.SampleRate <= 0 {
		return nil, ErrUnsupportedAiffLayout
	}

	// AIFF stores 8-bit samples signed.
	src, err := pcm.NewSource(dec, f.SampleRate, f.NumChannels, int(dec.BitDepth), false)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedBitDepth, err)
	}
	if c, ok := r.(io.Closer); ok {
		src.CloseWith(c)
	}
	return src, nil
}
