// SPDX-License-Identifier: EPL-2.0

package wav

import (
	"bytes"
	"fmt"
	"io"

	gowav "github.com/go-audio/wav"

	"github.com/ik5/audstream/audio"
	"github.com/ik5/audstream/formats/internal/pcm"
)

const formatPCM = 1

// Decoder reads integer PCM WAV files (8, 16, 24 and 32 bit).
type Decoder struct{}

func (Decoder) Decode(r io.Reader) (audio.Source, error) {
	rs, ok := r.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read wav: %w", err)
		}
		rs = bytes.NewReader(data)
	}

	dec := gowav.NewDecoder(rs)
	if !dec.IsValidFile() {
		if err := dec.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotWavFile, err)
		}
		return nil, ErrNotWavFile
	}
	if dec.WavAudioFormat != formatPCM {
		return nil, fmt.Errorf("%w: format tag %d", ErrUnsupportedEncoding, dec.WavAudioFormat)
	}

	src, err := pcm.NewSource(dec, int(dec.SampleRate), int(dec.NumChans), int(dec.BitDepth), true)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedEncoding, err)
	}
	if c, ok := r.(io.Closer); ok {
		src.CloseWith(c)
	}
	return src, nil
}
