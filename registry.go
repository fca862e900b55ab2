// SPDX-License-Identifier: EPL-2.0

package audstream

import (
	"github.com/ik5/audstream/audio"
	"github.com/ik5/audstream/formats/aiff"
	"github.com/ik5/audstream/formats/mp3"
	"github.com/ik5/audstream/formats/vorbis"
	"github.com/ik5/audstream/formats/wav"
)

// DefaultRegistry returns a registry with every bundled decoder.
func DefaultRegistry() *audio.Registry {
	r := audio.NewRegistry()
	r.Register("wav", wav.Decoder{}, "wav", "wave")
	r.Register("mp3", mp3.Decoder{}, "mp3")
	r.Register("vorbis", vorbis.Decoder{}, "ogg", "oga")
	r.Register("aiff", aiff.Decoder{}, "aiff", "aif")
	return r
}
